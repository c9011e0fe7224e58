package rewrite

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/prerender/prerender/internal/capture"
	"github.com/hazyhaar/prerender/prerender/internal/match"
)

var (
	scriptOpen  = regexp.MustCompile(`(?i)<script>`)
	// The tokenizer ends a script at "</script" followed by ">", "/" or
	// whitespace, so every "</script" prefix is escaped.
	scriptClose = regexp.MustCompile(`(?i)</script>?`)
)

// EscapeScript percent-encodes literal <script> and </script> tags so the
// text can sit inside a script element without ending it early.
func EscapeScript(js string) string {
	js = scriptOpen.ReplaceAllLiteralString(js, "%3Cscript%3E")
	return scriptClose.ReplaceAllStringFunc(js, func(m string) string {
		if strings.HasSuffix(m, ">") {
			return "%3C/script%3E"
		}
		return "%3C/script"
	})
}

// InlineScripts replaces the src of every script element that references a
// captured script with the captured text. It returns the number of
// elements rewritten.
func InlineScripts(doc *goquery.Document, store *capture.Store, depth int) int {
	if store.Len() == 0 {
		return 0
	}
	scripts := doc.Find("script[src]")
	n := 0
	for _, r := range store.All() {
		hits := scripts.FilterFunction(func(_ int, sel *goquery.Selection) bool {
			src, ok := sel.Attr("src")
			return ok && match.Matches(src, r.URL, depth)
		})
		if hits.Length() == 0 {
			continue
		}
		hits.RemoveAttr("src").SetAttr(ProvenanceAttr, r.URL)
		setRawText(hits, EscapeScript(r.Text))
		n += hits.Length()
	}
	return n
}

const stylesheetLinks = `link[rel="stylesheet"]`

// StylesheetHrefs returns the href of every stylesheet link in document
// order. Indexes into the result are the ones ReplaceStylesheets takes.
func StylesheetHrefs(doc *goquery.Document) []string {
	links := doc.Find(stylesheetLinks)
	hrefs := make([]string, links.Length())
	links.Each(func(i int, sel *goquery.Selection) {
		hrefs[i], _ = sel.Attr("href")
	})
	return hrefs
}

// ReplaceStylesheets swaps the stylesheet link at each index of css for a
// style element holding the CSS, with the link's href as provenance.
// It returns the number of links replaced.
func ReplaceStylesheets(doc *goquery.Document, css map[int]string) int {
	n := 0
	doc.Find(stylesheetLinks).Each(func(i int, sel *goquery.Selection) {
		text, ok := css[i]
		if !ok {
			return
		}
		href, _ := sel.Attr("href")
		sel.ReplaceWithNodes(styleNode(href, text))
		n++
	})
	return n
}

// InlineStylesheets replaces every stylesheet link that references a
// captured stylesheet with a style element holding the captured CSS.
//
// Capture sessions run the same pass against the live page; this variant
// works on an already parsed document.
func InlineStylesheets(doc *goquery.Document, store *capture.Store, depth int) int {
	if store.Len() == 0 {
		return 0
	}
	css := make(map[int]string)
	for i, u := range match.Pair(StylesheetHrefs(doc), store.URLs(), depth) {
		if r, ok := store.Get(u); ok {
			css[i] = r.Text
		}
	}
	return ReplaceStylesheets(doc, css)
}

// setRawText replaces the children of each selected element with a single
// text node. Selection.SetText escapes and re-parses, which leaves entities
// verbatim inside raw-text elements such as script.
func setRawText(sel *goquery.Selection, text string) {
	for _, n := range sel.Nodes {
		for c := n.FirstChild; c != nil; c = n.FirstChild {
			n.RemoveChild(c)
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

func styleNode(href, css string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     "style",
		DataAtom: atom.Style,
		Attr:     []html.Attribute{{Key: ProvenanceAttr, Val: href}},
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	return n
}
