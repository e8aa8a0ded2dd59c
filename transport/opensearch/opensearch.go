// Package opensearch provides a sink that writes buffers through the bulk
// API. Each record is framed with its own index action line; the index is
// chosen per record from its event time.
package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/jsoncodec"
	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "opensearch"

const (
	DefaultIndexPrefix = "shipflow"
	indexDateLayout    = "2006.01.02"
)

// Config holds the OpenSearch specific settings.
type Config struct {
	Addresses   []string `mapstructure:"addresses"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	Insecure    bool     `mapstructure:"insecure"`
	IndexPrefix string   `mapstructure:"index_prefix"`
	// IDFromHash sets each document id to the event hash so redelivered
	// batches overwrite instead of duplicating.
	IDFromHash bool `mapstructure:"id_from_hash"`
}

// Sink posts buffers to the _bulk endpoint.
type Sink struct {
	transport.Base
	cfg    Config
	client *opensearch.Client
	logger logging.ServiceLogger
}

// Register registers the OpenSearch transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.OpenSearchCapabilities)
}

// Build creates the client. The record separator is forced to a newline as
// the bulk format requires.
func Build(_ context.Context, cfg transport.Config, logger logging.ServiceLogger) (transport.Transport, error) {
	var c Config
	if err := cfg.Decode(&c); err != nil {
		return nil, err
	}
	if len(c.Addresses) == 0 {
		return nil, errors.New("opensearch: addresses are required")
	}
	if c.IndexPrefix == "" {
		c.IndexPrefix = DefaultIndexPrefix
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: c.Addresses,
		Username:  c.Username,
		Password:  c.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: c.Insecure}, //nolint:gosec // opt-in for self-signed clusters
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	newline := "\n"
	cfg.Separator = &newline
	return &Sink{Base: transport.NewBase(cfg), cfg: c, client: client, logger: logger}, nil
}

type bulkAction struct {
	Index bulkTarget `json:"index"`
}

type bulkTarget struct {
	Index string `json:"_index"`
	ID    string `json:"_id,omitempty"`
}

// IndexName is <prefix>-YYYY.MM.DD of the event time, falling back to the
// arrival time.
func IndexName(prefix string, ev *event.Event) string {
	ms, ok := ev.EventTime()
	if !ok {
		ms = ev.ArrivalTime()
	}
	return prefix + "-" + time.UnixMilli(ms).UTC().Format(indexDateLayout)
}

// EncodeRecord prefixes the document with its action line.
func (s *Sink) EncodeRecord(ev *event.Event, serialized string) ([]byte, error) {
	action := bulkAction{Index: bulkTarget{Index: IndexName(s.cfg.IndexPrefix, ev)}}
	if s.cfg.IDFromHash {
		action.Index.ID = ev.Hash()
	}
	line, err := jsoncodec.Marshal(action)
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	b.Grow(len(line) + len(serialized) + 1)
	b.Write(line)
	b.WriteByte('\n')
	b.WriteString(serialized)
	return b.Bytes(), nil
}

type bulkResponse struct {
	Errors bool                         `json:"errors"`
	Items  []map[string]bulkItemOutcome `json:"items"`
}

type bulkItemOutcome struct {
	Index  string `json:"_index"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// BulkError reports the items the cluster rejected.
type BulkError struct {
	Failed int
	Total  int
	First  string
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("bulk request rejected %d of %d items: %s", e.Failed, e.Total, e.First)
}

func (s *Sink) SendBatch(ctx context.Context, buf *transport.Buffer) error {
	header := http.Header{"Content-Type": []string{"application/x-ndjson"}}
	if enc := buf.ContentEncoding(); enc != "" {
		header.Set("Content-Encoding", enc)
	}
	req := opensearchapi.BulkRequest{
		Body:   bytes.NewReader(buf.Bytes()),
		Header: header,
	}

	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return sferrors.NewTransportError(TransportName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return sferrors.NewTransportError(TransportName, err)
	}
	if resp.IsError() {
		return sferrors.NewTransportError(TransportName, fmt.Errorf("bulk request failed: %s: %s", resp.Status(), strings.TrimSpace(string(body))))
	}
	if err := checkBulk(body); err != nil {
		return sferrors.NewTransportError(TransportName, err)
	}
	s.logger.Debug("Bulk request accepted", logging.LogFields{"records": buf.Records()})
	return nil
}

func checkBulk(body []byte) error {
	var res bulkResponse
	if err := jsoncodec.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !res.Errors {
		return nil
	}
	berr := &BulkError{Total: len(res.Items)}
	for _, item := range res.Items {
		for _, outcome := range item {
			if outcome.Error == nil {
				continue
			}
			berr.Failed++
			if berr.First == "" {
				berr.First = fmt.Sprintf("%s: %s: %s", outcome.Index, outcome.Error.Type, outcome.Error.Reason)
			}
		}
	}
	return berr
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.OpenSearchCapabilities
}
