// Package prerender renders configured sites in a headless browser and
// rewrites each page into a self-contained document: stylesheets and
// scripts inlined, images embedded as data URIs, cache-busting query
// parameters appended.
//
// A Runner fans out across sites; each site gets one browser shared by
// concurrent capture sessions, one per URL. Results are streamed to sinks
// (stdout, webhook, callback, SQLite manifest) as they complete.
package prerender

import (
	"log/slog"

	"github.com/hazyhaar/prerender/idgen"
	"github.com/hazyhaar/prerender/prerender/internal/capture"
	"github.com/hazyhaar/prerender/prerender/internal/session"
	"github.com/hazyhaar/prerender/prerender/internal/site"
	"github.com/hazyhaar/prerender/prerender/snapshot"
)

// Site is one compiled site configuration.
type Site = site.Site

// Policies groups the per-kind capture policies of a site.
type Policies = capture.Policies

// Policy filters the responses captured for one resource kind.
type Policy = capture.Policy

// Exclusion is a DOM exclusion step (selector or mutator).
type Exclusion = site.Exclusion

// Mutator edits a parsed document in place.
type Mutator = site.Mutator

// Replacement rewrites the serialized document.
type Replacement = site.Replacement

// WaitCondition is an extra wait after network quiescence.
type WaitCondition = site.WaitCondition

// Browser opens pages for capture sessions.
type Browser = session.Browser

// Page is one browsing context.
type Page = session.Page

// InlineStyle is a stylesheet link replacement sent to a Page.
type InlineStyle = session.InlineStyle

// Response is a network response observed by a Page.
type Response = capture.Response

// ResourceType is a CDP resource type name.
type ResourceType = capture.ResourceType

// Result is the outcome of one capture session.
type Result = snapshot.Result

// Summary closes a run.
type Summary = snapshot.Summary

// Option configures a Runner or SiteRunner.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	newID       idgen.Generator
	siteLimit   int
	pageLimit   int
	renderLimit int
	sinks       []Sink
	opener      Opener
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), newID: idgen.Default}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithIDGenerator sets the generator for run and result IDs. Default: UUIDv7.
func WithIDGenerator(g idgen.Generator) Option {
	return func(o *options) {
		if g != nil {
			o.newID = g
		}
	}
}

// WithSiteConcurrency bounds the number of sites rendered at once.
// 0 = unbounded.
func WithSiteConcurrency(n int) Option {
	return func(o *options) { o.siteLimit = n }
}

// WithPageConcurrency bounds the capture sessions running at once per
// site. 0 = unbounded.
func WithPageConcurrency(n int) Option {
	return func(o *options) { o.pageLimit = n }
}

// WithRenderConcurrency bounds the Runner.Render calls (and so the
// browsers) running at once. 0 = DefaultRenderConcurrency.
func WithRenderConcurrency(n int) Option {
	return func(o *options) { o.renderLimit = n }
}

// WithSinks replaces the sinks built from configuration.
func WithSinks(sinks ...Sink) Option {
	return func(o *options) { o.sinks = sinks }
}

// WithOpener replaces the Chrome-backed browser opener.
func WithOpener(open Opener) Option {
	return func(o *options) { o.opener = open }
}
