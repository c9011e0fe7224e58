// Package match associates captured resource URLs with the references that
// point at them inside a document. Captured URLs are absolute and frequently
// served from a CDN edge with a different host or prefix than the one the
// markup uses, so association is done on the trailing path segments only.
//
// This is the only place where a captured URL is compared with a reference
// found in markup. Stores are keyed by the exact captured URL.
package match

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// DefaultDepth is the number of trailing path segments kept when no depth
// is configured.
const DefaultDepth = 3

// ErrEmptyKey is returned when a URL has no path to match on.
var ErrEmptyKey = errors.New("match: empty path")

// Key returns the last depth segments of the URL path joined by "/". When
// the path has fewer segments the full path is returned, leading slash
// included. Scheme, host and query are ignored.
func Key(rawURL string, depth int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("match: parse %q: %w", rawURL, err)
	}
	return tail(u.EscapedPath(), depth)
}

// KeyWithQuery is Key followed by "?" and the raw query when the URL has one.
func KeyWithQuery(rawURL string, depth int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("match: parse %q: %w", rawURL, err)
	}
	k, err := tail(u.EscapedPath(), depth)
	if err != nil {
		return "", err
	}
	if u.RawQuery != "" {
		k += "?" + u.RawQuery
	}
	return k, nil
}

func tail(path string, depth int) (string, error) {
	if depth <= 0 {
		depth = DefaultDepth
	}
	segs := strings.Split(path, "/")
	if len(segs) > depth {
		segs = segs[len(segs)-depth:]
	}
	k := strings.Join(segs, "/")
	if strings.Trim(k, "/") == "" {
		return "", ErrEmptyKey
	}
	return k, nil
}

// Matches reports whether ref ends with the match key of captured.
func Matches(ref, captured string, depth int) bool {
	if ref == "" {
		return false
	}
	k, err := KeyWithQuery(captured, depth)
	if err != nil {
		return false
	}
	return strings.HasSuffix(ref, k)
}

// Pair associates references with captured URLs. The result maps the index
// of each matched reference to the captured URL it resolves to. Captured
// URLs are tried in lexical order so the association is deterministic when
// several keys share a suffix.
func Pair(refs, captured []string, depth int) map[int]string {
	keys := make([]string, len(captured))
	copy(keys, captured)
	sort.Strings(keys)

	out := make(map[int]string)
	for i, ref := range refs {
		for _, c := range keys {
			if Matches(ref, c, depth) {
				out[i] = c
				break
			}
		}
	}
	return out
}
