// Package session runs one capture session: open a page, capture the
// responses the site's policies select, settle, inline stylesheets in the
// live DOM, then hand the serialised document to the rewriter.
//
// Each session owns its content stores. They are never shared with another
// session, even one of the same site.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hazyhaar/prerender/horosafe"
	"github.com/hazyhaar/prerender/idgen"
	"github.com/hazyhaar/prerender/prerender/internal/capture"
	"github.com/hazyhaar/prerender/prerender/internal/match"
	"github.com/hazyhaar/prerender/prerender/internal/rewrite"
	"github.com/hazyhaar/prerender/prerender/internal/site"
	"github.com/hazyhaar/prerender/prerender/snapshot"
)

// Config configures a Session.
type Config struct {
	Site *site.Site
	URL  string
	// Output overrides the site's output path for URL. Nil = use the site.
	Output *string
	NewID  idgen.Generator
	Logger *slog.Logger
}

// Session is a single URL's capture-and-rewrite pipeline.
type Session struct {
	site    *site.Site
	url     string
	output  string
	newID   idgen.Generator
	logger  *slog.Logger
	stores  *capture.Stores
	pending sync.WaitGroup
}

// New creates a Session with fresh, empty stores.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewID == nil {
		cfg.NewID = idgen.Default
	}
	output := cfg.Site.URLs[cfg.URL]
	if cfg.Output != nil {
		output = *cfg.Output
	}
	return &Session{
		site:   cfg.Site,
		url:    cfg.URL,
		output: output,
		newID:  cfg.NewID,
		logger: cfg.Logger.With("site", cfg.Site.Name, "url", cfg.URL),
		stores: capture.NewStores(),
	}
}

// Stores exposes the session's content stores.
func (s *Session) Stores() *capture.Stores { return s.stores }

// Run executes the session against a page opened from b.
func (s *Session) Run(ctx context.Context, b Browser) (*snapshot.Result, error) {
	start := time.Now()

	classifier, err := capture.NewClassifier(s.site.Policies, s.url, s.stores, s.logger)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	page, err := b.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: open page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			s.logger.Debug("session: close page", "error", err)
		}
	}()

	stop := func() {}
	if !s.site.Policies.Empty() {
		stop = page.Observe(ctx, func(resp capture.Response) {
			s.pending.Add(1)
			go func() {
				defer s.pending.Done()
				if kind, kept := classifier.Accept(resp); kept {
					s.logger.Debug("session: captured", "resource", resp.URL(), "kind", kind)
				}
			}()
		})
	}

	navErr := page.Navigate(ctx, s.url)
	if navErr == nil && !s.site.Wait.Zero() {
		navErr = page.Wait(ctx, s.site.Wait)
	}
	s.flush(stop)
	if navErr != nil {
		return nil, fmt.Errorf("session: navigate %s: %w", s.url, navErr)
	}

	if p := s.site.Policies.Stylesheet; p != nil && s.stores.Of(capture.KindStylesheet).Len() > 0 {
		if err := s.inlineStylesheets(ctx, page, p.MatchDepth()); err != nil {
			s.logger.Warn("session: inline stylesheets failed", "error", err)
		}
	}

	var shot string
	if s.site.Screenshot != "" {
		p, err := s.screenshot(ctx, page)
		if err != nil {
			s.logger.Warn("session: screenshot failed", "path", s.site.Screenshot, "error", err)
		} else {
			shot = p
		}
	}

	content, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: extract content: %w", err)
	}

	out, err := rewrite.Rewrite(content, s.stores, s.site, s.logger)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	res := &snapshot.Result{
		ID:         s.newID(),
		Site:       s.site.Name,
		URL:        s.url,
		Screenshot: shot,
		HTML:       []byte(out),
		HTMLHash:   snapshot.HashHTML([]byte(out)),
		Resources:  s.stores.Counts(),
		Timestamp:  time.Now().UnixMilli(),
	}

	if s.output != "" {
		path, err := s.resolve(s.output)
		if err != nil {
			return nil, fmt.Errorf("session: output path: %w", err)
		}
		if err := writeFile(path, res.HTML); err != nil {
			return nil, fmt.Errorf("session: write output: %w", err)
		}
		res.Output = path
	}

	s.logger.Info("session: done",
		"output", res.Output, "size", len(res.HTML),
		"resources", res.Resources, "elapsed", time.Since(start))
	return res, nil
}

// flush ends the response subscription and waits for every classification
// already started. Nothing reads the stores before flush returns.
func (s *Session) flush(stop func()) {
	stop()
	s.pending.Wait()
}

func (s *Session) inlineStylesheets(ctx context.Context, page Page, depth int) error {
	hrefs, err := page.StylesheetLinks(ctx)
	if err != nil {
		return err
	}
	store := s.stores.Of(capture.KindStylesheet)
	pairs := match.Pair(hrefs, store.URLs(), depth)
	if len(pairs) == 0 {
		return nil
	}

	styles := make([]InlineStyle, 0, len(pairs))
	for i := range hrefs {
		u, ok := pairs[i]
		if !ok {
			continue
		}
		if r, ok := store.Get(u); ok {
			styles = append(styles, InlineStyle{Index: i, CSS: r.Text})
		}
	}
	return page.InlineStylesheets(ctx, styles)
}

func (s *Session) screenshot(ctx context.Context, page Page) (string, error) {
	path, err := s.resolve(s.site.Screenshot)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	data, err := page.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Session) resolve(p string) (string, error) {
	if s.site.OutputRoot == "" {
		return filepath.Clean(p), nil
	}
	return horosafe.SafePath(s.site.OutputRoot, p)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
