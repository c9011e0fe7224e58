package prerender

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/prerender/prerender/internal/sink"
	"github.com/hazyhaar/prerender/prerender/snapshot"
)

// Sink is the output interface for results.
type Sink = sink.Sink

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process callback sink. Results passed to
// onResult carry the HTML.
func NewCallbackSink(
	onResult func(ctx context.Context, res snapshot.Result) error,
	onSummary func(ctx context.Context, sum snapshot.Summary) error,
) Sink {
	return sink.NewCallback(onResult, onSummary)
}

// NewSQLiteSink opens the result manifest database at path.
func NewSQLiteSink(path string) (Sink, error) {
	return sink.OpenSQLite(path)
}

// OpenSinks builds the sinks listed in configuration.
func OpenSinks(cfgs []SinkConfig, logger *slog.Logger) ([]Sink, error) {
	var out []Sink
	for _, c := range cfgs {
		switch c.Type {
		case "", "stdout":
			out = append(out, NewStdoutSink(nil))
		case "webhook":
			if c.URL == "" {
				closeAll(out)
				return nil, fmt.Errorf("webhook sink: url required")
			}
			out = append(out, NewWebhookSink(c.URL, logger))
		case "sqlite":
			if c.DSN == "" {
				closeAll(out)
				return nil, fmt.Errorf("sqlite sink: dsn required")
			}
			s, err := NewSQLiteSink(c.DSN)
			if err != nil {
				closeAll(out)
				return nil, err
			}
			out = append(out, s)
		default:
			closeAll(out)
			return nil, fmt.Errorf("unknown sink type %q", c.Type)
		}
	}
	return out, nil
}

func closeAll(sinks []Sink) {
	for _, s := range sinks {
		s.Close()
	}
}
