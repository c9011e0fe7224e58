package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/prerender/prerender/snapshot"
)

// Router fans out to all configured sinks. One sink error or panic does not
// block the others: errors are logged and the first encountered is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

func (r *Router) Send(ctx context.Context, res snapshot.Result) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := deliver(func() error { return s.Send(ctx, res) }); err != nil {
			r.logger.Warn("sink: send result failed", "url", res.URL, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) SendSummary(ctx context.Context, sum snapshot.Summary) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := deliver(func() error { return s.SendSummary(ctx, sum) }); err != nil {
			r.logger.Warn("sink: send summary failed", "run_id", sum.RunID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// deliver calls send, reporting a panic as an error.
func deliver(send func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("sink: panic: %v", v)
		}
	}()
	return send()
}
