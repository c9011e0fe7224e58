package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// ErrRejected marks a response that did not pass its policy. It is a filter
// decision, not a failure.
var ErrRejected = errors.New("capture: rejected")

// Response is one network response observed by the browser.
type Response interface {
	URL() string
	Status() int
	Type() ResourceType
	// Body returns the full response body. It may be called more than once.
	Body() ([]byte, error)
}

// Resource is a captured response. Immutable once created.
type Resource struct {
	URL  string
	Kind Kind
	Type ResourceType
	Text string // stylesheet and script payloads
	Data []byte // image and cache-bust payloads
	Hash string // cache-bust only
}

// Size returns the payload length in bytes.
func (r *Resource) Size() int {
	if r.Kind.Binary() {
		return len(r.Data)
	}
	return len(r.Text)
}

// Origin returns the serialized origin of rawURL: lowercase scheme and
// host, with the port dropped when it is the scheme's default.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("capture: parse %q: %w", rawURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	switch port := u.Port(); {
	case port == "":
	case scheme == "http" && port == "80", scheme == "https" && port == "443":
	default:
		host += ":" + port
	}
	return scheme + "://" + host, nil
}

// Classify applies policy p to resp for the given kind. Responses that fail
// a filter yield an error wrapping ErrRejected. Any other error is a
// resource-level failure (unparsable URL, unreadable body).
func Classify(resp Response, kind Kind, p *Policy, pageOrigin string) (*Resource, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: %s disabled", ErrRejected, kind)
	}
	if st := resp.Status(); st != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRejected, st)
	}
	if !p.acceptsType(kind, resp.Type()) {
		return nil, fmt.Errorf("%w: type %s", ErrRejected, resp.Type())
	}

	rawURL := resp.URL()
	if p.SameOrigin {
		origin, err := Origin(rawURL)
		if err != nil {
			return nil, err
		}
		if origin != pageOrigin {
			return nil, fmt.Errorf("%w: cross-origin %s", ErrRejected, origin)
		}
	}
	if p.Include != nil && !p.Include.MatchString(rawURL) {
		return nil, fmt.Errorf("%w: include pattern", ErrRejected)
	}
	if p.Exclude != nil && p.Exclude.MatchString(rawURL) {
		return nil, fmt.Errorf("%w: exclude pattern", ErrRejected)
	}

	body, err := resp.Body()
	if err != nil {
		return nil, fmt.Errorf("capture: read body %s: %w", rawURL, err)
	}
	if p.MaxSize > 0 && int64(len(body)) > p.MaxSize {
		return nil, fmt.Errorf("%w: %d bytes over limit %d", ErrRejected, len(body), p.MaxSize)
	}

	r := &Resource{URL: rawURL, Kind: kind, Type: resp.Type()}
	if kind.Binary() {
		r.Data = body
	} else {
		r.Text = string(body)
	}
	if kind == KindCacheBust {
		h, err := Digest(p.Hash, body)
		if err != nil {
			return nil, err
		}
		r.Hash = h
	}
	return r, nil
}

// Classifier routes responses of one capture session into its stores.
type Classifier struct {
	policies Policies
	origin   string
	stores   *Stores
	logger   *slog.Logger
}

// NewClassifier creates a Classifier for the page at pageURL.
func NewClassifier(policies Policies, pageURL string, stores *Stores, logger *slog.Logger) (*Classifier, error) {
	origin, err := Origin(pageURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{policies: policies, origin: origin, stores: stores, logger: logger}, nil
}

// Accept classifies resp against the stylesheet, script, image and
// cache-bust policies in that order and stores it under the first kind
// that accepts it. It reports the kind and whether the response was kept.
func (c *Classifier) Accept(resp Response) (Kind, bool) {
	resp = &memoResponse{Response: resp}
	for _, kind := range Kinds {
		p := c.policies.For(kind)
		if p == nil {
			continue
		}
		r, err := Classify(resp, kind, p, c.origin)
		if err != nil {
			if !errors.Is(err, ErrRejected) {
				c.logger.Debug("capture: skip resource",
					"url", resp.URL(), "kind", kind, "error", err)
			}
			continue
		}
		c.stores.Of(kind).Put(r)
		return kind, true
	}
	return 0, false
}

// memoResponse reads the body at most once across kinds.
type memoResponse struct {
	Response
	once sync.Once
	body []byte
	err  error
}

func (m *memoResponse) Body() ([]byte, error) {
	m.once.Do(func() { m.body, m.err = m.Response.Body() })
	return m.body, m.err
}
