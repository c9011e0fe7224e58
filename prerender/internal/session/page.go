package session

import (
	"context"

	"github.com/hazyhaar/prerender/prerender/internal/capture"
	"github.com/hazyhaar/prerender/prerender/internal/site"
)

// Browser is one browser session shared by the capture sessions of a site.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is one browsing context.
type Page interface {
	// Observe delivers every network response of the page to fn until stop
	// is called. fn may be called concurrently. After stop returns, fn is
	// never called again.
	Observe(ctx context.Context, fn func(capture.Response)) (stop func())
	// Navigate loads url and returns once the network has been quiet for
	// the page's settle window.
	Navigate(ctx context.Context, url string) error
	// Wait blocks on an extra caller-supplied condition.
	Wait(ctx context.Context, cond site.WaitCondition) error
	// StylesheetLinks returns the resolved href of every
	// link[rel="stylesheet"] in document order.
	StylesheetLinks(ctx context.Context) ([]string, error)
	// InlineStylesheets replaces the indexed stylesheet links with style
	// elements carrying the given CSS.
	InlineStylesheets(ctx context.Context, styles []InlineStyle) error
	// Screenshot captures the full page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// HTML serialises the live document, doctype included.
	HTML(ctx context.Context) (string, error)
	Close() error
}

// InlineStyle is one stylesheet link to replace. Index refers to the
// position in the StylesheetLinks result.
type InlineStyle struct {
	Index int    `json:"index"`
	CSS   string `json:"css"`
}
