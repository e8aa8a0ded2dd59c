package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drblury/shipflow/internal/runtime/config"
	"github.com/drblury/shipflow/internal/runtime/handler"
	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/transport"
	"github.com/drblury/shipflow/transport/transports"
)

const maxLineBytes = 4 << 20

type runOptions struct {
	sourceID        string
	functionName    string
	functionVersion string
	functionARN     string
	hostEvent       bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [file...]",
		Short: "Run one invocation over newline-delimited records",
		Long: `Read newline-delimited records from the given files (or stdin when none
are given) and ship them as a single invocation.

With --event every input is a Kinesis, SQS or SNS trigger document and the
source id is taken from it.`,
		Example: `  cat access.log | shipflow run --source-id arn:aws:kinesis:eu-west-1:1:stream/web
  shipflow run --event kinesis-event.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(root.path(logging.AliasFromARN(opts.functionARN)))
			if err != nil {
				return err
			}
			logger, err := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			transports.RegisterAll()
			return runInputs(ctx, cfg, handler.Dependencies{Logger: logger}, opts, args, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&opts.sourceID, "source-id", "", "ARN or id of the upstream source")
	cmd.Flags().StringVar(&opts.functionName, "function-name", "shipflow", "function name reported in stats and logs")
	cmd.Flags().StringVar(&opts.functionVersion, "function-version", "$LATEST", "function version reported in stats and logs")
	cmd.Flags().StringVar(&opts.functionARN, "function-arn", "", "function ARN, its alias selects the default config file")
	cmd.Flags().BoolVar(&opts.hostEvent, "event", false, "inputs are trigger event documents instead of raw records")
	return cmd
}

func runInputs(ctx context.Context, cfg *config.Config, deps handler.Dependencies, opts *runOptions, files []string, stdin io.Reader) error {
	if deps.Transports == nil {
		deps.Transports = transport.DefaultRegistry
	}
	h, err := handler.New(cfg, deps)
	if err != nil {
		return err
	}
	defer h.Close()

	inv := handler.Invocation{
		FunctionName:    opts.functionName,
		FunctionVersion: opts.functionVersion,
		FunctionARN:     opts.functionARN,
		SourceID:        opts.sourceID,
	}

	inputs := func(yield func(string, io.Reader) bool) {
		if len(files) == 0 {
			yield("-", stdin)
			return
		}
		for _, name := range files {
			f, err := os.Open(name)
			if err != nil {
				yield(name, errReader{err})
				continue
			}
			ok := yield(name, f)
			f.Close()
			if !ok {
				return
			}
		}
	}

	if !opts.hostEvent {
		records, errp := readLines(inputs, time.Now)
		if err := h.Process(ctx, inv, records); err != nil {
			return err
		}
		return *errp
	}

	for name, r := range inputs {
		raw, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		batch, err := handler.DecodeEvent(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if opts.sourceID == "" {
			inv.SourceID = batch.SourceID
		}
		if err := h.Process(ctx, inv, batch.All()); err != nil {
			return err
		}
	}
	return nil
}

// readLines yields one record per non-empty line. The returned pointer holds
// the first read error once the sequence has been drained.
func readLines(inputs iter.Seq2[string, io.Reader], now func() time.Time) (iter.Seq[handler.Record], *error) {
	var readErr error
	seq := func(yield func(handler.Record) bool) {
		for name, r := range inputs {
			sc := bufio.NewScanner(r)
			sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
			for sc.Scan() {
				line := bytes.TrimRight(sc.Bytes(), "\r")
				if len(line) == 0 {
					continue
				}
				if !yield(handler.Record{Data: slices.Clone(line), ArrivalTime: now()}) {
					return
				}
			}
			if err := sc.Err(); err != nil {
				readErr = fmt.Errorf("read %s: %w", name, err)
				return
			}
		}
	}
	return seq, &readErr
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
