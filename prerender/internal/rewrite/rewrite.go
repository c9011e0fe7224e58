// Package rewrite turns the rendered document of one capture session into
// its final form: DOM exclusions, script inlining, image inlining,
// cache-bust renaming and custom text replacements.
//
// Rewrite is deterministic and never touches the network. Passes run in a
// fixed order; the first two operate on the parsed document, the rest on
// the serialized text, so cache-bust renaming also reaches into inlined
// script and style text.
package rewrite

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/prerender/prerender/internal/capture"
	"github.com/hazyhaar/prerender/prerender/internal/site"
)

// ProvenanceAttr records the original resource URL on rewritten nodes.
const ProvenanceAttr = "data-src"

// Rewrite applies every pass to src and returns the final HTML.
func Rewrite(src string, stores *capture.Stores, s *site.Site, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("rewrite: parse: %w", err)
	}

	for i, ex := range s.Exclusions {
		if err := ex.Apply(doc); err != nil {
			logger.Warn("rewrite: exclusion skipped", "index", i, "error", err)
		}
	}

	if p := s.Policies.Script; p != nil {
		InlineScripts(doc, stores.Of(capture.KindScript), p.MatchDepth())
	}

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("rewrite: serialize: %w", err)
	}

	if p := s.Policies.Image; p != nil {
		out = InlineImages(out, stores.Of(capture.KindImage), p.MatchDepth(), logger)
	}
	if p := s.Policies.CacheBust; p != nil {
		out = CacheBust(out, stores.Of(capture.KindCacheBust), p.MatchDepth(), logger)
	}

	for _, fn := range s.Replacements {
		out = fn(out)
	}
	return out, nil
}
