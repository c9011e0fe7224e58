package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/goleak"

	"github.com/hazyhaar/prerender/idgen"
	"github.com/hazyhaar/prerender/prerender/internal/capture"
	"github.com/hazyhaar/prerender/prerender/internal/rewrite"
	"github.com/hazyhaar/prerender/prerender/internal/site"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeResponse struct {
	url   string
	typ   capture.ResourceType
	body  string
	delay time.Duration
}

func (f *fakeResponse) URL() string                { return f.url }
func (f *fakeResponse) Status() int                { return 200 }
func (f *fakeResponse) Type() capture.ResourceType { return f.typ }
func (f *fakeResponse) Body() ([]byte, error) {
	time.Sleep(f.delay)
	return []byte(f.body), nil
}

// fakePage serves a fixed document and replays a fixed set of responses
// during Navigate.
type fakePage struct {
	mu        sync.Mutex
	doc       *goquery.Document
	responses []*fakeResponse
	observer  func(capture.Response)
	navErr    error
	shot      []byte
	waited    bool
	closed    bool
}

func newFakePage(t *testing.T, html string, responses ...*fakeResponse) *fakePage {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	return &fakePage{doc: doc, responses: responses, shot: []byte("PNG")}
}

func (p *fakePage) Observe(_ context.Context, fn func(capture.Response)) func() {
	p.mu.Lock()
	p.observer = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.observer = nil
		p.mu.Unlock()
	}
}

func (p *fakePage) Navigate(context.Context, string) error {
	if p.navErr != nil {
		return p.navErr
	}
	p.mu.Lock()
	fn := p.observer
	p.mu.Unlock()
	if fn != nil {
		for _, r := range p.responses {
			fn(r)
		}
	}
	return nil
}

func (p *fakePage) Wait(context.Context, site.WaitCondition) error {
	p.waited = true
	return nil
}

func (p *fakePage) StylesheetLinks(context.Context) ([]string, error) {
	return rewrite.StylesheetHrefs(p.doc), nil
}

func (p *fakePage) InlineStylesheets(_ context.Context, styles []InlineStyle) error {
	css := make(map[int]string, len(styles))
	for _, st := range styles {
		css[st.Index] = st.CSS
	}
	rewrite.ReplaceStylesheets(p.doc, css)
	return nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) { return p.shot, nil }

func (p *fakePage) HTML(context.Context) (string, error) { return p.doc.Html() }

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeBrowser struct{ page *fakePage }

func (b *fakeBrowser) NewPage(context.Context) (Page, error) { return b.page, nil }
func (b *fakeBrowser) Close() error                           { return nil }

const testPage = `<!DOCTYPE html><html><head>
<link rel="stylesheet" href="https://example.com/static/css/site.css">
<script src="https://example.com/static/js/app.js"></script>
</head><body><img src="https://example.com/static/img/logo.png"><p>hi</p></body></html>`

func testSite(out string) *site.Site {
	return &site.Site{
		Name: "example",
		URLs: map[string]string{"https://example.com/": out},
		Policies: capture.Policies{
			Stylesheet: &capture.Policy{},
			Script:     &capture.Policy{},
		},
	}
}

func TestRun_InlinesStylesheetsAndScripts(t *testing.T) {
	fp := newFakePage(t, testPage,
		&fakeResponse{url: "https://example.com/static/css/site.css", typ: capture.TypeStylesheet, body: "body{color:red}"},
		&fakeResponse{url: "https://example.com/static/js/app.js", typ: capture.TypeScript, body: "if (a < b) run()"},
	)
	s := New(Config{Site: testSite(""), URL: "https://example.com/", NewID: idgen.Sequence("r")})

	res, err := s.Run(context.Background(), &fakeBrowser{page: fp})
	if err != nil {
		t.Fatal(err)
	}
	html := string(res.HTML)
	if !strings.Contains(html, "body{color:red}") {
		t.Errorf("stylesheet not inlined: %s", html)
	}
	if !strings.Contains(html, "if (a < b) run()") {
		t.Errorf("script not inlined: %s", html)
	}
	if strings.Contains(html, `<link rel="stylesheet"`) {
		t.Errorf("stylesheet link left in output")
	}
	if res.ID != "r-1" {
		t.Errorf("ID: got %q, want %q", res.ID, "r-1")
	}
	if res.Resources["stylesheet"] != 1 || res.Resources["script"] != 1 {
		t.Errorf("Resources: got %v", res.Resources)
	}
	if res.Output != "" {
		t.Errorf("Output: got %q, want empty", res.Output)
	}
	if !fp.closed {
		t.Error("page not closed")
	}
}

func TestRun_FlushWaitsForSlowBodies(t *testing.T) {
	fp := newFakePage(t, testPage,
		&fakeResponse{url: "https://example.com/static/js/app.js", typ: capture.TypeScript, body: "slow()", delay: 50 * time.Millisecond},
	)
	s := New(Config{Site: testSite(""), URL: "https://example.com/"})

	res, err := s.Run(context.Background(), &fakeBrowser{page: fp})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(res.HTML), "slow()") {
		t.Errorf("late response missing from output: %s", res.HTML)
	}
}

func TestRun_NoPoliciesSkipsObservation(t *testing.T) {
	fp := newFakePage(t, testPage,
		&fakeResponse{url: "https://example.com/static/js/app.js", typ: capture.TypeScript, body: "x()"},
	)
	st := testSite("")
	st.Policies = capture.Policies{}
	s := New(Config{Site: st, URL: "https://example.com/"})

	res, err := s.Run(context.Background(), &fakeBrowser{page: fp})
	if err != nil {
		t.Fatal(err)
	}
	if fp.observer != nil {
		t.Error("observer registered without policies")
	}
	if strings.Contains(string(res.HTML), "x()") {
		t.Error("script inlined without policies")
	}
}

func TestRun_WritesOutputAndScreenshot(t *testing.T) {
	dir := t.TempDir()
	st := testSite("pages/index.html")
	st.OutputRoot = dir
	st.Screenshot = "shots/home.png"
	st.Wait = site.WaitCondition{Selector: "p"}
	fp := newFakePage(t, testPage)

	res, err := New(Config{Site: st, URL: "https://example.com/"}).Run(context.Background(), &fakeBrowser{page: fp})
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "pages/index.html")
	if res.Output != want {
		t.Errorf("Output: got %q, want %q", res.Output, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(res.HTML) {
		t.Error("written file differs from result HTML")
	}
	if _, err := os.Stat(filepath.Join(dir, "shots/home.png")); err != nil {
		t.Errorf("screenshot: %v", err)
	}
	if !fp.waited {
		t.Error("wait condition not applied")
	}
}

func TestRun_OutputEscapeRejected(t *testing.T) {
	st := testSite("../escape.html")
	st.OutputRoot = t.TempDir()
	_, err := New(Config{Site: st, URL: "https://example.com/"}).Run(context.Background(), &fakeBrowser{page: newFakePage(t, testPage)})
	if err == nil {
		t.Fatal("expected error for output outside root")
	}
}

func TestRun_NavigationError(t *testing.T) {
	fp := newFakePage(t, testPage)
	fp.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	_, err := New(Config{Site: testSite(""), URL: "https://example.com/"}).Run(context.Background(), &fakeBrowser{page: fp})
	if err == nil || !strings.Contains(err.Error(), "navigate") {
		t.Fatalf("got %v, want navigate error", err)
	}
	if !fp.closed {
		t.Error("page not closed after failure")
	}
}

func TestRun_SessionsDoNotShareStores(t *testing.T) {
	st := testSite("")
	a := New(Config{Site: st, URL: "https://example.com/"})
	b := New(Config{Site: st, URL: "https://example.com/"})

	fa := newFakePage(t, testPage,
		&fakeResponse{url: "https://example.com/static/js/app.js", typ: capture.TypeScript, body: "fromA()"},
	)
	if _, err := a.Run(context.Background(), &fakeBrowser{page: fa}); err != nil {
		t.Fatal(err)
	}
	res, err := b.Run(context.Background(), &fakeBrowser{page: newFakePage(t, testPage)})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(res.HTML), "fromA()") {
		t.Error("second session saw first session's capture")
	}
	if b.Stores().Of(capture.KindScript).Len() != 0 {
		t.Error("second session store not empty")
	}
}
