package prerender_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/prerender/prerender"
	"github.com/hazyhaar/prerender/prerender/internal/rewrite"
)

type fakeResponse struct {
	url  string
	typ  prerender.ResourceType
	body string
}

func (f fakeResponse) URL() string                  { return f.url }
func (f fakeResponse) Status() int                  { return 200 }
func (f fakeResponse) Type() prerender.ResourceType { return f.typ }
func (f fakeResponse) Body() ([]byte, error)        { return []byte(f.body), nil }

type fixture struct {
	html      string
	responses []fakeResponse
	err       error
}

// fakeBrowser serves fixed pages keyed by URL.
type fakeBrowser struct {
	pages  map[string]fixture
	delay  time.Duration
	closes atomic.Int32

	mu       sync.Mutex
	inflight int
	peak     int
}

func newFakeBrowser(pages map[string]fixture) *fakeBrowser {
	return &fakeBrowser{pages: pages}
}

func (b *fakeBrowser) opener() prerender.Opener {
	return func(context.Context) (prerender.Browser, error) { return b, nil }
}

func (b *fakeBrowser) NewPage(context.Context) (prerender.Page, error) {
	return &fakePage{browser: b}, nil
}

func (b *fakeBrowser) Close() error {
	b.closes.Add(1)
	return nil
}

type fakePage struct {
	browser  *fakeBrowser
	mu       sync.Mutex
	observer func(prerender.Response)
	doc      *goquery.Document
}

func (p *fakePage) Observe(_ context.Context, fn func(prerender.Response)) func() {
	p.mu.Lock()
	p.observer = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.observer = nil
		p.mu.Unlock()
	}
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	b := p.browser
	b.mu.Lock()
	b.inflight++
	if b.inflight > b.peak {
		b.peak = b.inflight
	}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.inflight--
		b.mu.Unlock()
	}()
	time.Sleep(b.delay)

	fx, ok := b.pages[url]
	if !ok {
		return errors.New("net::ERR_NAME_NOT_RESOLVED")
	}
	if fx.err != nil {
		return fx.err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fx.html))
	if err != nil {
		return err
	}
	p.doc = doc

	p.mu.Lock()
	fn := p.observer
	p.mu.Unlock()
	if fn != nil {
		for _, r := range fx.responses {
			fn(r)
		}
	}
	return nil
}

func (p *fakePage) Wait(context.Context, prerender.WaitCondition) error { return nil }

func (p *fakePage) StylesheetLinks(context.Context) ([]string, error) {
	return rewrite.StylesheetHrefs(p.doc), nil
}

func (p *fakePage) InlineStylesheets(_ context.Context, styles []prerender.InlineStyle) error {
	css := make(map[int]string, len(styles))
	for _, st := range styles {
		css[st.Index] = st.CSS
	}
	rewrite.ReplaceStylesheets(p.doc, css)
	return nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) { return []byte("PNG"), nil }

func (p *fakePage) HTML(context.Context) (string, error) { return p.doc.Html() }

func (p *fakePage) Close() error { return nil }
