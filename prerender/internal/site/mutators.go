package site

import (
	"fmt"
	"sort"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	mutatorsMu sync.RWMutex
	mutators   = map[string]Mutator{
		"strip-comments": StripComments,
		"strip-preload":  StripPreload,
	}
)

// RegisterMutator makes fn available to configuration files under name.
func RegisterMutator(name string, fn Mutator) error {
	if name == "" || fn == nil {
		return fmt.Errorf("site: register mutator: empty name or func")
	}
	mutatorsMu.Lock()
	defer mutatorsMu.Unlock()
	if _, dup := mutators[name]; dup {
		return fmt.Errorf("site: mutator %q already registered", name)
	}
	mutators[name] = fn
	return nil
}

// LookupMutator returns the mutator registered under name.
func LookupMutator(name string) (Mutator, bool) {
	mutatorsMu.RLock()
	defer mutatorsMu.RUnlock()
	fn, ok := mutators[name]
	return fn, ok
}

// MutatorNames lists registered mutators.
func MutatorNames() []string {
	mutatorsMu.RLock()
	defer mutatorsMu.RUnlock()
	out := make([]string, 0, len(mutators))
	for n := range mutators {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// StripComments removes every HTML comment node.
func StripComments(doc *goquery.Document) {
	for _, root := range doc.Nodes {
		removeComments(root)
	}
}

func removeComments(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			removeComments(c)
		}
		c = next
	}
}

// StripPreload removes preload, modulepreload and prefetch hints. Once
// resources are inlined these hints only cause duplicate downloads.
func StripPreload(doc *goquery.Document) {
	doc.Find(`link[rel="preload"], link[rel="modulepreload"], link[rel="prefetch"]`).Remove()
}
