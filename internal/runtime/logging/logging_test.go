package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
)

func TestSlogServiceLoggerLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	base := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: LevelTrace}))
	logger := NewSlogServiceLogger(base)

	logger.Trace("trace", nil)
	logger.Debug("dbg", LogFields{"component": "buffer"})
	logger.Info("info", nil)
	logger.Warn("record dropped", LogFields{"bytes": 10})
	logger.Error("send failed", errors.New("boom"), nil)

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG-4 msg=trace",
		"component=buffer",
		"level=WARN msg=\"record dropped\" bytes=10",
		"level=ERROR msg=\"send failed\" error=boom",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestSlogServiceLoggerWith(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewSlogServiceLogger(slog.New(slog.NewTextHandler(buf, nil)))

	if logger.With(nil) != logger {
		t.Fatal("expected With(nil) to return the same logger")
	}
	logger.With(LogFields{"request_id": "r-1"}).Info("hello", nil)
	if !strings.Contains(buf.String(), "request_id=r-1") {
		t.Fatalf("expected child field, got %s", buf.String())
	}

	buf.Reset()
	logger.With(LogFields{"a": 1}).With(LogFields{"b": "two"}).Warn("nested", LogFields{"c": true})
	for _, want := range []string{"a=1", "b=two", "c=true", "level=WARN"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("expected %q in %s", want, buf.String())
		}
	}
}

func TestIdentityApply(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewSlogServiceLogger(slog.New(slog.NewTextHandler(buf, nil)))

	id := Identity{FunctionName: "shipper", Alias: "prod"}
	id.Apply(logger).Info("boot", nil)

	out := buf.String()
	if !strings.Contains(out, "function_name=shipper") || !strings.Contains(out, "alias=prod") {
		t.Fatalf("expected identity fields, got %s", out)
	}
	if strings.Contains(out, "function_version") {
		t.Fatalf("expected empty fields to be skipped, got %s", out)
	}
}

func TestAliasFromARN(t *testing.T) {
	tests := []struct {
		arn  string
		want string
	}{
		{"arn:aws:lambda:us-east-1:123456789012:function:shipper", "$LATEST"},
		{"arn:aws:lambda:us-east-1:123456789012:function:shipper:prod", "prod"},
		{"shipper", ""},
	}
	for _, tt := range tests {
		if got := AliasFromARN(tt.arn); got != tt.want {
			t.Errorf("AliasFromARN(%q) = %q, want %q", tt.arn, got, tt.want)
		}
	}
}

func TestWatermillServiceLoggerDelegates(t *testing.T) {
	base := newRecordingWatermillLogger()
	logger := NewWatermillServiceLogger(base)

	logger.Debug("dbg", LogFields{"component": "watermill"})
	logger.Warn("warn", nil)
	logger.Trace("trace", LogFields{"trace": true})
	logger.Error("oops", errors.New("boom"), LogFields{"failed": true})
	logger.With(LogFields{"child": "yes"}).Info("child_info", nil)

	if len(base.entries) != 6 {
		t.Fatalf("expected 6 log entries, got %d", len(base.entries))
	}
	if base.entries[0].level != "debug" || base.entries[0].fields["component"] != "watermill" {
		t.Fatalf("unexpected first entry: %#v", base.entries[0])
	}
	if base.entries[1].level != "info" {
		t.Fatalf("expected warn to map to info, got %s", base.entries[1].level)
	}
	if base.entries[4].fields["child"] != "yes" {
		t.Fatalf("expected With to propagate fields, got %#v", base.entries[4].fields)
	}
}

func TestConstructorsPanicOnNil(t *testing.T) {
	for name, fn := range map[string]func(){
		"slog":      func() { NewSlogServiceLogger(nil) },
		"watermill": func() { NewWatermillServiceLogger(nil) },
		"adapter":   func() { NewWatermillAdapter(nil) },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Fatal("expected panic")
				}
			}()
			fn()
		})
	}
}

func TestWatermillAdapterDelegates(t *testing.T) {
	buf := &bytes.Buffer{}
	adapter := NewWatermillAdapter(NewSlogServiceLogger(slog.New(slog.NewTextHandler(buf, nil))))

	adapter.Info("published", watermill.LogFields{"topic": "events"})
	adapter.With(watermill.LogFields{"child": "yes"}).Error("nack", errors.New("boom"), nil)

	out := buf.String()
	if !strings.Contains(out, "topic=events") || !strings.Contains(out, "child=yes") || !strings.Contains(out, "error=boom") {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestWatermillFieldConversions(t *testing.T) {
	if toWatermillFields(nil) != nil || fromWatermillFields(nil) != nil {
		t.Fatal("expected nil conversion to return nil")
	}
	lf := fromWatermillFields(toWatermillFields(LogFields{"a": 1}))
	if lf["a"].(int) != 1 {
		t.Fatalf("unexpected log fields: %#v", lf)
	}
}

func TestDiscardLogger(t *testing.T) {
	NewDiscardLogger().With(LogFields{"k": "v"}).Error("ignored", errors.New("x"), nil)
}

type recordingWatermillLogger struct {
	entries []watermillEntry
	sink    *[]watermillEntry
}

type watermillEntry struct {
	level  string
	fields watermill.LogFields
	err    error
}

func newRecordingWatermillLogger() *recordingWatermillLogger {
	logger := &recordingWatermillLogger{}
	logger.sink = &logger.entries
	return logger
}

func (r *recordingWatermillLogger) record(entry watermillEntry) {
	*r.sink = append(*r.sink, entry)
}

func (r *recordingWatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	r.record(watermillEntry{level: "error", fields: fields, err: err})
}

func (r *recordingWatermillLogger) Info(msg string, fields watermill.LogFields) {
	r.record(watermillEntry{level: "info", fields: fields})
}

func (r *recordingWatermillLogger) Debug(msg string, fields watermill.LogFields) {
	r.record(watermillEntry{level: "debug", fields: fields})
}

func (r *recordingWatermillLogger) Trace(msg string, fields watermill.LogFields) {
	r.record(watermillEntry{level: "trace", fields: fields})
}

func (r *recordingWatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	child := &recordingWatermillLogger{sink: r.sink}
	child.record(watermillEntry{level: "with", fields: fields})
	return child
}

func TestNewFromLevelAndFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(buf, "warn", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hidden", nil)
	logger.Warn("shown", LogFields{"k": "v"})
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("unexpected output: %s", out)
	}

	if _, err := New(buf, "loud", ""); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := New(buf, "", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if lvl, _ := ParseLevel("TRACE"); lvl != LevelTrace {
		t.Fatalf("expected trace level, got %v", lvl)
	}
}
