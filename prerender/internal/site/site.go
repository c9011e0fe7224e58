// Package site holds the compiled, read-only description of one site: the
// URLs to render, the per-kind capture policies and the document rewrite
// steps.
package site

import (
	"fmt"
	"sort"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/prerender/prerender/internal/capture"
)

// Mutator edits a parsed document in place.
type Mutator func(doc *goquery.Document)

// Exclusion is one DOM exclusion step: either a selector whose matches are
// removed, or a mutator invoked on the document. Exactly one is set.
type Exclusion struct {
	Selector string
	Mutator  Mutator
	Name     string // mutator name, for logs
}

// SelectorExclusion removes every node matching sel.
func SelectorExclusion(sel string) Exclusion {
	return Exclusion{Selector: sel}
}

// MutatorExclusion runs fn against the document.
func MutatorExclusion(name string, fn Mutator) Exclusion {
	return Exclusion{Mutator: fn, Name: name}
}

// Apply runs the exclusion against doc.
func (e Exclusion) Apply(doc *goquery.Document) error {
	switch {
	case e.Mutator != nil:
		e.Mutator(doc)
	case e.Selector != "":
		doc.Find(e.Selector).Remove()
	default:
		return fmt.Errorf("site: empty exclusion")
	}
	return nil
}

// Replacement rewrites the full serialized document.
type Replacement func(html string) string

// WaitCondition is an extra wait after network quiescence.
type WaitCondition struct {
	Selector string        // wait until an element matches
	Delay    time.Duration // then sleep
}

// Zero reports whether no wait is configured.
func (w WaitCondition) Zero() bool {
	return w.Selector == "" && w.Delay <= 0
}

// Site is one site configuration. Read-only once compiled.
type Site struct {
	Name string
	// URLs maps each page URL to its output path ("" = return only).
	URLs map[string]string
	// OutputRoot, when set, confines output paths to this directory.
	OutputRoot string
	// Screenshot is the path of the full-page image ("" = none).
	Screenshot string

	Policies     capture.Policies
	Exclusions   []Exclusion
	Replacements []Replacement
	Wait         WaitCondition
}

// PageURLs returns the configured URLs in lexical order.
func (s *Site) PageURLs() []string {
	out := make([]string, 0, len(s.URLs))
	for u := range s.URLs {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
