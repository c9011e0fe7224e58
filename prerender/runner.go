package prerender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hazyhaar/prerender/idgen"
	"github.com/hazyhaar/prerender/prerender/internal/sink"
	"github.com/hazyhaar/prerender/prerender/snapshot"
)

// Failure is one URL (or whole site, when URL is empty) that produced no
// output.
type Failure struct {
	Site string
	URL  string
	Err  error
}

func (f Failure) Error() string {
	if f.URL == "" {
		return fmt.Sprintf("site %s: %v", f.Site, f.Err)
	}
	return fmt.Sprintf("site %s: %s: %v", f.Site, f.URL, f.Err)
}

// Report aggregates a run.
type Report struct {
	RunID    string
	Results  []*snapshot.Result // completed URLs, in completion order
	Failures []Failure
	Summary  snapshot.Summary
}

// Failed reports whether any URL or site failed.
func (r *Report) Failed() bool { return len(r.Failures) > 0 }

// Runner renders a set of sites.
type Runner struct {
	sites     []*Site
	byName    map[string]*Site
	siteRun   *SiteRunner
	sinks     *sink.Router
	siteLimit int
	renders   *semaphore.Weighted
	newID     idgen.Generator
	runID     idgen.Generator
	logger    *slog.Logger
}

// DefaultRenderConcurrency bounds Runner.Render when no limit is set.
const DefaultRenderConcurrency = 4

// ErrRenderBusy is returned by Render when the caller gave up waiting for
// a free render slot.
var ErrRenderBusy = errors.New("prerender: no render slot")

// NewRunner creates a Runner over compiled sites. Without WithOpener, sites
// are rendered on a locally launched headless Chrome with default settings.
// Without WithSinks, results go to a stdout sink.
func NewRunner(sites []*Site, opts ...Option) *Runner {
	o := buildOptions(opts)
	if o.opener == nil {
		o.opener = BrowserOpener(BrowserOptions{Stealth: true, Logger: o.logger})
	}
	if o.sinks == nil {
		o.sinks = []Sink{NewStdoutSink(nil)}
	}
	if o.renderLimit <= 0 {
		o.renderLimit = DefaultRenderConcurrency
	}
	byName := make(map[string]*Site, len(sites))
	for _, s := range sites {
		byName[s.Name] = s
	}
	return &Runner{
		sites:     sites,
		byName:    byName,
		siteRun:   NewSiteRunner(o.opener, WithLogger(o.logger), WithIDGenerator(o.newID), WithPageConcurrency(o.pageLimit)),
		sinks:     sink.NewRouter(o.logger, o.sinks...),
		siteLimit: o.siteLimit,
		renders:   semaphore.NewWeighted(int64(o.renderLimit)),
		newID:     o.newID,
		runID:     idgen.Prefixed("run_", o.newID),
		logger:    o.logger,
	}
}

// Sites returns the configured sites.
func (r *Runner) Sites() []*Site { return r.sites }

// Site returns the site named name.
func (r *Runner) Site(name string) (*Site, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Run renders every site and returns once all of them are done. A failing
// site or URL never stops the others; failures are logged, sent to the
// sinks and listed in the report.
func (r *Runner) Run(ctx context.Context) *Report {
	start := time.Now()
	rep := &Report{RunID: r.runID()}
	log := r.logger.With("run_id", rep.RunID)
	log.Info("prerender: run started", "sites", len(r.sites))

	var mu sync.Mutex
	record := func(o Outcome) {
		res := o.Result
		if o.Err != nil {
			res = &snapshot.Result{
				ID:        r.newID(),
				Site:      o.Site,
				URL:       o.URL,
				Error:     o.Err.Error(),
				Timestamp: time.Now().UnixMilli(),
			}
			log.Error("prerender: url failed", "site", o.Site, "url", o.URL, "error", o.Err)
		} else {
			log.Info("prerender: url done", "site", o.Site, "url", o.URL, "output", res.Output)
		}
		res.RunID = rep.RunID

		mu.Lock()
		if o.Err != nil {
			rep.Failures = append(rep.Failures, Failure{Site: o.Site, URL: o.URL, Err: o.Err})
		} else {
			rep.Results = append(rep.Results, res)
		}
		mu.Unlock()

		r.sinks.Send(ctx, *res)
	}

	var g errgroup.Group
	if r.siteLimit > 0 {
		g.SetLimit(r.siteLimit)
	}
	for _, s := range r.sites {
		g.Go(func() error {
			for o := range r.siteRun.Run(ctx, s) {
				record(o)
			}
			return nil
		})
	}
	g.Wait()

	rep.Summary = snapshot.Summary{
		RunID:      rep.RunID,
		Sites:      len(r.sites),
		Completed:  len(rep.Results),
		Failed:     len(rep.Failures),
		DurationMs: time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UnixMilli(),
	}
	for _, f := range rep.Failures {
		key := f.URL
		if key == "" {
			key = f.Site
		}
		rep.Summary.FailedURLs = append(rep.Summary.FailedURLs, key)
	}
	r.sinks.SendSummary(ctx, rep.Summary)

	log.Info("prerender: all done",
		"completed", rep.Summary.Completed, "failed", rep.Summary.Failed,
		"duration_ms", rep.Summary.DurationMs)
	return rep
}

// Render renders rawURL with the policies of the named site, without
// writing files. The result is sent to the sinks. At most the render
// concurrency limit of calls hold a browser at once; the others wait.
func (r *Runner) Render(ctx context.Context, siteName, rawURL string) (*snapshot.Result, error) {
	s, ok := r.Site(siteName)
	if !ok {
		return nil, fmt.Errorf("prerender: unknown site %q", siteName)
	}
	if err := r.renders.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderBusy, err)
	}
	defer r.renders.Release(1)
	res, err := r.siteRun.Render(ctx, s, rawURL)
	if err != nil {
		r.logger.Error("prerender: render failed", "site", siteName, "url", rawURL, "error", err)
		return nil, err
	}
	r.sinks.Send(ctx, *res)
	return res, nil
}

// Close closes the sinks.
func (r *Runner) Close() error {
	return r.sinks.Close()
}
