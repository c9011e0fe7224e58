package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/prerender/prerender/internal/capture"
	"github.com/hazyhaar/prerender/prerender/internal/session"
	"github.com/hazyhaar/prerender/prerender/internal/site"
)

// Page wraps a Rod page. It implements session.Page.
type Page struct {
	page   *rod.Page
	cfg    *Config
	router *rod.HijackRouter
	once   sync.Once
}

// Observe subscribes to Network events. A response is delivered once its
// body has finished loading; failed loads are dropped.
func (p *Page) Observe(ctx context.Context, fn func(capture.Response)) (stop func()) {
	// Keep the Network domain enabled after the subscription ends so
	// bodies stay retrievable.
	if err := (proto.NetworkEnable{}).Call(p.page); err != nil {
		p.cfg.Logger.Warn("browser: enable network", "error", err)
	}

	sub, cancel := p.page.Context(ctx).WithCancel()
	pending := make(map[proto.NetworkRequestID]*response)

	wait := sub.EachEvent(
		func(e *proto.NetworkResponseReceived) {
			pending[e.RequestID] = &response{
				page:   p.page,
				id:     e.RequestID,
				url:    e.Response.URL,
				status: e.Response.Status,
				typ:    capture.ResourceType(e.Type),
			}
		},
		func(e *proto.NetworkLoadingFinished) {
			if r, ok := pending[e.RequestID]; ok {
				delete(pending, e.RequestID)
				fn(r)
			}
		},
		func(e *proto.NetworkLoadingFailed) {
			delete(pending, e.RequestID)
		},
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		wait()
	}()

	return func() {
		cancel()
		<-done
	}
}

// Navigate loads url, waits for the load event and then for the network
// to stay idle for the settle window.
func (p *Page) Navigate(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.NavigationTimeout)
	defer cancel()
	pg := p.page.Context(ctx)

	idle := pg.WaitRequestIdle(p.cfg.Settle, nil, nil, []proto.NetworkResourceType{
		proto.NetworkResourceTypeWebSocket,
		proto.NetworkResourceTypeEventSource,
		proto.NetworkResourceTypeMedia,
	})

	if err := pg.Navigate(url); err != nil {
		return err
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	idle()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("wait idle: %w", err)
	}
	return nil
}

// Wait blocks until cond.Selector is present, then sleeps cond.Delay.
func (p *Page) Wait(ctx context.Context, cond site.WaitCondition) error {
	if cond.Selector != "" {
		wctx, cancel := context.WithTimeout(ctx, p.cfg.NavigationTimeout)
		defer cancel()
		if _, err := p.page.Context(wctx).Element(cond.Selector); err != nil {
			return fmt.Errorf("wait for %q: %w", cond.Selector, err)
		}
	}
	if cond.Delay > 0 {
		t := time.NewTimer(cond.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

const stylesheetLinksJS = `() => Array.from(
	document.querySelectorAll('link[rel="stylesheet"]'), l => l.href)`

// StylesheetLinks returns the resolved hrefs of the stylesheet links.
func (p *Page) StylesheetLinks(ctx context.Context) ([]string, error) {
	res, err := p.page.Context(ctx).Eval(stylesheetLinksJS)
	if err != nil {
		return nil, fmt.Errorf("browser: stylesheet links: %w", err)
	}
	var hrefs []string
	for _, v := range res.Value.Arr() {
		hrefs = append(hrefs, v.Str())
	}
	return hrefs, nil
}

const inlineStylesheetsJS = `(styles) => {
	const links = Array.from(document.querySelectorAll('link[rel="stylesheet"]'));
	for (const s of styles) {
		const link = links[s.index];
		if (!link) continue;
		const style = document.createElement('style');
		style.setAttribute('data-src', link.href);
		style.textContent = s.css;
		link.replaceWith(style);
	}
}`

// InlineStylesheets swaps the indexed links for style elements.
func (p *Page) InlineStylesheets(ctx context.Context, styles []session.InlineStyle) error {
	if _, err := p.page.Context(ctx).Eval(inlineStylesheetsJS, styles); err != nil {
		return fmt.Errorf("browser: inline stylesheets: %w", err)
	}
	return nil
}

// Screenshot captures the full page as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := p.page.Context(ctx).Screenshot(true, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return data, nil
}

const documentHTMLJS = `() => {
	const dt = document.doctype;
	const doctype = dt ? new XMLSerializer().serializeToString(dt) : '';
	return doctype + document.documentElement.outerHTML;
}`

// HTML serialises the live document with its doctype.
func (p *Page) HTML(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(documentHTMLJS)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// Close closes the tab. Safe to call more than once.
func (p *Page) Close() error {
	var err error
	p.once.Do(func() {
		if p.router != nil {
			p.router.Stop()
		}
		err = p.page.Close()
	})
	return err
}

// response is a network response whose body is fetched on demand.
type response struct {
	page   *rod.Page
	id     proto.NetworkRequestID
	url    string
	status int
	typ    capture.ResourceType
}

func (r *response) URL() string                { return r.url }
func (r *response) Status() int                { return r.status }
func (r *response) Type() capture.ResourceType { return r.typ }

func (r *response) Body() ([]byte, error) {
	res, err := proto.NetworkGetResponseBody{RequestID: r.id}.Call(r.page)
	if err != nil {
		return nil, fmt.Errorf("browser: response body %s: %w", r.url, err)
	}
	if res.Base64Encoded {
		return base64.StdEncoding.DecodeString(res.Body)
	}
	return []byte(res.Body), nil
}
