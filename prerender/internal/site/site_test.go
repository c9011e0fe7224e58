package site

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func parse(t *testing.T, s string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestExclusion_Selector(t *testing.T) {
	doc := parse(t, `<html><body><div class="ad">x</div><p>keep</p><div class="ad">y</div></body></html>`)
	if err := SelectorExclusion(".ad").Apply(doc); err != nil {
		t.Fatal(err)
	}
	if n := doc.Find(".ad").Length(); n != 0 {
		t.Errorf(".ad: got %d nodes, want 0", n)
	}
	if doc.Find("p").Text() != "keep" {
		t.Error("unrelated node removed")
	}
}

func TestExclusion_Mutator(t *testing.T) {
	doc := parse(t, `<html><body><p id="a">x</p></body></html>`)
	ex := MutatorExclusion("mark", func(d *goquery.Document) {
		d.Find("#a").SetAttr("data-seen", "1")
	})
	if err := ex.Apply(doc); err != nil {
		t.Fatal(err)
	}
	if v, _ := doc.Find("#a").Attr("data-seen"); v != "1" {
		t.Errorf("data-seen: got %q, want %q", v, "1")
	}
}

func TestExclusion_Empty(t *testing.T) {
	doc := parse(t, `<html></html>`)
	if err := (Exclusion{}).Apply(doc); err == nil {
		t.Error("expected error for empty exclusion")
	}
}

func TestStripComments(t *testing.T) {
	doc := parse(t, `<!-- top --><html><body><!-- a --><p>x<!-- b --></p></body></html>`)
	StripComments(doc)
	out, err := doc.Html()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "<!--") {
		t.Errorf("comments left: %s", out)
	}
	if !strings.Contains(out, "<p>x</p>") {
		t.Errorf("content lost: %s", out)
	}
}

func TestStripPreload(t *testing.T) {
	doc := parse(t, `<html><head><link rel="preload" href="a.js"><link rel="stylesheet" href="a.css"></head></html>`)
	StripPreload(doc)
	if doc.Find(`link[rel="preload"]`).Length() != 0 {
		t.Error("preload left")
	}
	if doc.Find(`link[rel="stylesheet"]`).Length() != 1 {
		t.Error("stylesheet removed")
	}
}

func TestRegisterMutator(t *testing.T) {
	if err := RegisterMutator("noop-test", func(*goquery.Document) {}); err != nil {
		t.Fatal(err)
	}
	if err := RegisterMutator("noop-test", func(*goquery.Document) {}); err == nil {
		t.Error("expected duplicate error")
	}
	if _, ok := LookupMutator("noop-test"); !ok {
		t.Error("lookup failed")
	}
	if _, ok := LookupMutator("strip-comments"); !ok {
		t.Error("builtin missing")
	}
}

func TestPageURLs(t *testing.T) {
	s := &Site{URLs: map[string]string{"https://b.example/": "", "https://a.example/": "a.html"}}
	got := s.PageURLs()
	if len(got) != 2 || got[0] != "https://a.example/" {
		t.Errorf("PageURLs: got %v", got)
	}
}
