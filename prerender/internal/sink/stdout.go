package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/prerender/prerender/snapshot"
)

// Stdout writes JSON lines to an io.Writer (default os.Stdout). Results are
// written as notices, without the HTML body.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) Send(_ context.Context, res snapshot.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: "result", Data: res.Notice()})
}

func (s *Stdout) SendSummary(_ context.Context, sum snapshot.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: "summary", Data: sum})
}

func (s *Stdout) Close() error { return nil }
