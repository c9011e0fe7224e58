package sink

import (
	"context"

	"github.com/hazyhaar/prerender/prerender/snapshot"
)

// ResultFunc is called for each result, HTML included.
type ResultFunc func(ctx context.Context, res snapshot.Result) error

// SummaryFunc is called once per run.
type SummaryFunc func(ctx context.Context, sum snapshot.Summary) error

// Callback delivers to in-process functions.
type Callback struct {
	onResult  ResultFunc
	onSummary SummaryFunc
}

// NewCallback creates a Callback sink. Either handler may be nil.
func NewCallback(onResult ResultFunc, onSummary SummaryFunc) *Callback {
	return &Callback{onResult: onResult, onSummary: onSummary}
}

func (c *Callback) Send(ctx context.Context, res snapshot.Result) error {
	if c.onResult != nil {
		return c.onResult(ctx, res)
	}
	return nil
}

func (c *Callback) SendSummary(ctx context.Context, sum snapshot.Summary) error {
	if c.onSummary != nil {
		return c.onSummary(ctx, sum)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
