package prerender

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/prerender/idgen"
	"github.com/hazyhaar/prerender/prerender/internal/session"
	"github.com/hazyhaar/prerender/prerender/snapshot"
)

// Opener acquires the browser session of one site.
type Opener func(ctx context.Context) (Browser, error)

// Outcome is one item of a site's result stream. Exactly one of Result
// and Err is set. URL is empty when the site failed before any session
// started (the browser could not be opened).
type Outcome struct {
	Site   string
	URL    string
	Result *snapshot.Result
	Err    error
}

// SiteRunner renders every URL of a site on one shared browser.
type SiteRunner struct {
	open      Opener
	pageLimit int
	newID     idgen.Generator
	logger    *slog.Logger
}

// NewSiteRunner creates a SiteRunner. Only WithLogger, WithIDGenerator and
// WithPageConcurrency apply.
func NewSiteRunner(open Opener, opts ...Option) *SiteRunner {
	o := buildOptions(opts)
	return &SiteRunner{open: open, pageLimit: o.pageLimit, newID: o.newID, logger: o.logger}
}

// Run starts one capture session per URL of s and streams their outcomes
// in completion order. A failing URL does not stop its siblings. The
// browser is released exactly once, after the last session, whatever the
// outcomes. The channel is closed when the site is done.
func (r *SiteRunner) Run(ctx context.Context, s *Site) <-chan Outcome {
	urls := s.PageURLs()
	out := make(chan Outcome, len(urls)+1)

	go func() {
		defer close(out)
		log := r.logger.With("site", s.Name)

		b, err := r.open(ctx)
		if err != nil {
			out <- Outcome{Site: s.Name, Err: fmt.Errorf("prerender: open browser: %w", err)}
			return
		}
		var once sync.Once
		release := func() {
			once.Do(func() {
				if err := b.Close(); err != nil {
					log.Warn("prerender: release browser", "error", err)
				}
				log.Debug("prerender: browser released")
			})
		}
		defer release()

		var g errgroup.Group
		if r.pageLimit > 0 {
			g.SetLimit(r.pageLimit)
		}
		for _, u := range urls {
			g.Go(func() error {
				sess := session.New(session.Config{Site: s, URL: u, NewID: r.newID, Logger: r.logger})
				res, err := r.runSession(ctx, sess, b)
				out <- Outcome{Site: s.Name, URL: u, Result: res, Err: err}
				return nil
			})
		}
		g.Wait()
		release()
	}()

	return out
}

// Render runs a single capture session for rawURL with the policies of s,
// returning the HTML without writing any file or screenshot.
func (r *SiteRunner) Render(ctx context.Context, s *Site, rawURL string) (*snapshot.Result, error) {
	b, err := r.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("prerender: open browser: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			r.logger.Warn("prerender: release browser", "site", s.Name, "error", err)
		}
	}()

	only := *s
	only.Screenshot = ""
	none := ""
	sess := session.New(session.Config{Site: &only, URL: rawURL, Output: &none, NewID: r.newID, Logger: r.logger})
	return r.runSession(ctx, sess, b)
}

// runSession runs sess and turns a panic raised anywhere inside it (a
// mutator, a replacement, the browser adapter) into that session's error.
func (r *SiteRunner) runSession(ctx context.Context, sess *session.Session, b Browser) (res *snapshot.Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.ErrorContext(ctx, "prerender: session panic recovered",
				"panic", v,
				"stack", string(debug.Stack()))
			res, err = nil, &ErrPanic{Value: v}
		}
	}()
	return sess.Run(ctx, b)
}

// ErrPanic wraps a panic recovered from a capture session.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("prerender: session panicked: %v", e.Value)
}
