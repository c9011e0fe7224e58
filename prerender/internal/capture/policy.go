// Package capture decides which network responses observed during a page
// navigation are kept, and stores the kept ones for the rewrite passes.
//
// One Stores value belongs to exactly one capture session. Nothing in this
// package is process-wide.
package capture

import (
	"fmt"
	"regexp"

	"github.com/hazyhaar/prerender/prerender/internal/match"
)

// Kind is the resource kind a policy and a store apply to.
type Kind int

const (
	KindStylesheet Kind = iota // inlined as <style>
	KindScript                 // inlined into <script>
	KindImage                  // inlined as data: URI
	KindCacheBust              // renamed with a content hash
	numKinds
)

// Kinds lists every kind in classification order.
var Kinds = [...]Kind{KindStylesheet, KindScript, KindImage, KindCacheBust}

func (k Kind) String() string {
	switch k {
	case KindStylesheet:
		return "stylesheet"
	case KindScript:
		return "script"
	case KindImage:
		return "image"
	case KindCacheBust:
		return "cache_bust"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Binary reports whether payloads of this kind are kept as bytes.
func (k Kind) Binary() bool {
	return k == KindImage || k == KindCacheBust
}

// ResourceType is the browser's classification of a request. Values match
// the Chrome DevTools Protocol Network.ResourceType names.
type ResourceType string

const (
	TypeDocument   ResourceType = "Document"
	TypeStylesheet ResourceType = "Stylesheet"
	TypeImage      ResourceType = "Image"
	TypeMedia      ResourceType = "Media"
	TypeFont       ResourceType = "Font"
	TypeScript     ResourceType = "Script"
	TypeXHR        ResourceType = "XHR"
	TypeFetch      ResourceType = "Fetch"
	TypeOther      ResourceType = "Other"
)

// Policy is the immutable filter set for one resource kind.
type Policy struct {
	// SameOrigin rejects responses whose origin differs from the page's.
	SameOrigin bool
	// Include must match the full response URL when set.
	Include *regexp.Regexp
	// Exclude must not match the full response URL when set.
	Exclude *regexp.Regexp
	// MaxSize rejects payloads larger than this many bytes. 0 = unlimited.
	MaxSize int64
	// Depth is the number of trailing path segments used for matching.
	// Default: 3.
	Depth int
	// Types restricts the accepted request types. Empty = the kind's
	// default (stylesheet, script and image kinds accept their own type,
	// cache-bust accepts everything).
	Types []ResourceType
	// Hash names the digest used for cache-busting: md5 (default),
	// sha256 or blake2b.
	Hash string
}

// MatchDepth returns the configured depth or the default.
func (p *Policy) MatchDepth() int {
	if p == nil || p.Depth <= 0 {
		return match.DefaultDepth
	}
	return p.Depth
}

func (p *Policy) acceptsType(kind Kind, t ResourceType) bool {
	if len(p.Types) > 0 {
		for _, want := range p.Types {
			if want == t {
				return true
			}
		}
		return false
	}
	switch kind {
	case KindStylesheet:
		return t == TypeStylesheet
	case KindScript:
		return t == TypeScript
	case KindImage:
		return t == TypeImage
	}
	return true
}

// Policies groups the per-kind policies of a site. A nil policy disables
// its kind.
type Policies struct {
	Stylesheet *Policy
	Script     *Policy
	Image      *Policy
	CacheBust  *Policy
}

// For returns the policy for kind, or nil.
func (p Policies) For(kind Kind) *Policy {
	switch kind {
	case KindStylesheet:
		return p.Stylesheet
	case KindScript:
		return p.Script
	case KindImage:
		return p.Image
	case KindCacheBust:
		return p.CacheBust
	}
	return nil
}

// Empty reports whether no kind is enabled.
func (p Policies) Empty() bool {
	return p.Stylesheet == nil && p.Script == nil && p.Image == nil && p.CacheBust == nil
}
