// Package sink defines output backends for prerender results.
package sink

import (
	"context"

	"github.com/hazyhaar/prerender/prerender/snapshot"
)

// Sink receives one notice per rendered URL and one summary per run.
type Sink interface {
	Send(ctx context.Context, res snapshot.Result) error
	SendSummary(ctx context.Context, sum snapshot.Summary) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
