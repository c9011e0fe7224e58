package rewrite

import (
	"encoding/base64"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html"

	"github.com/hazyhaar/prerender/prerender/internal/capture"
	"github.com/hazyhaar/prerender/prerender/internal/match"
)

// CacheBustParam is the query parameter carrying the content hash.
const CacheBustParam = "_v"

// DataURI returns the data: URI for an image resource. The subtype comes
// from the path extension; without one it is sniffed from the bytes.
func DataURI(r *capture.Resource) string {
	return "data:" + imageMIME(r) + ";base64," + base64.StdEncoding.EncodeToString(r.Data)
}

func imageMIME(r *capture.Resource) string {
	var ext string
	if u, err := url.Parse(r.URL); err == nil {
		ext = strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	}
	switch ext {
	case "":
		mt, _, _ := strings.Cut(mimetype.Detect(r.Data).String(), ";")
		return mt
	case "jpg":
		return "image/jpeg"
	case "svg":
		return "image/svg+xml"
	}
	return "image/" + ext
}

// quote matches a CSS string delimiter, raw or as the serializer writes it
// inside attribute values.
const quote = `['"]|&#39;|&#34;`

// imageRef matches one url(...) or src="..." reference ending with key.
// The reference body cannot cross quotes, parentheses or whitespace. Keys
// holding characters the serializer escapes also match in escaped form.
func imageRef(key string) (*regexp.Regexp, error) {
	keys := regexp.QuoteMeta(key)
	if esc := html.EscapeString(key); esc != key {
		keys = "(?:" + keys + "|" + regexp.QuoteMeta(esc) + ")"
	}
	return regexp.Compile(`(url\(\s*(?:` + quote + `)?|src\s*=\s*['"])(?:[^'"()\s<>&]|&amp;)*?` + keys + `(` + quote + `|[)\s])`)
}

// InlineImages substitutes a data: URI for every url(...) and src="..."
// reference to a captured image.
func InlineImages(src string, store *capture.Store, depth int, logger *slog.Logger) string {
	for _, r := range store.All() {
		key, err := match.KeyWithQuery(r.URL, depth)
		if err != nil {
			logger.Debug("rewrite: skip image", "url", r.URL, "error", err)
			continue
		}
		re, err := imageRef(key)
		if err != nil {
			logger.Debug("rewrite: skip image", "url", r.URL, "error", err)
			continue
		}
		repl := "${1}" + strings.ReplaceAll(DataURI(r), "$", "$$") + "${2}"
		src = re.ReplaceAllString(src, repl)
	}
	return src
}

// BustedPath returns the truncated path+query of a captured URL and its
// hashed form, e.g. "x/y/z.js?a=1" and "x/y/z.js?a=1&_v=<hash>".
func BustedPath(r *capture.Resource, depth int) (plain, hashed string, err error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", "", err
	}
	plain, err = match.Key(r.URL, depth)
	if err != nil {
		return "", "", err
	}
	sep := "?"
	if u.RawQuery != "" {
		plain += "?" + u.RawQuery
		sep = "&"
	}
	return plain, plain + sep + CacheBustParam + "=" + r.Hash, nil
}

// CacheBust replaces every literal occurrence of each captured resource's
// truncated path+query with its hashed form. The substitution is global
// over the whole text, inlined script and style bodies included. Keys are
// applied longest first and an occurrence already followed by a
// cache-bust parameter is left alone, so a key that is a suffix of another
// never busts the same reference twice.
func CacheBust(src string, store *capture.Store, depth int, logger *slog.Logger) string {
	type bust struct{ plain, hashed string }
	var busts []bust
	for _, r := range store.All() {
		plain, hashed, err := BustedPath(r, depth)
		if err != nil {
			logger.Debug("rewrite: skip cache-bust", "url", r.URL, "error", err)
			continue
		}
		busts = append(busts, bust{plain, hashed})
		// Attribute values carry "&" as "&amp;".
		if esc := html.EscapeString(plain); esc != plain {
			busts = append(busts, bust{esc, html.EscapeString(hashed)})
		}
	}
	sort.SliceStable(busts, func(i, j int) bool {
		return len(busts[i].plain) > len(busts[j].plain)
	})
	for _, b := range busts {
		src = replaceUnbusted(src, b.plain, b.hashed)
	}
	return src
}

func replaceUnbusted(src, plain, hashed string) string {
	if plain == "" {
		return src
	}
	var b strings.Builder
	for {
		i := strings.Index(src, plain)
		if i < 0 {
			break
		}
		end := i + len(plain)
		b.WriteString(src[:i])
		if busted(src[end:]) {
			b.WriteString(plain)
		} else {
			b.WriteString(hashed)
		}
		src = src[end:]
	}
	b.WriteString(src)
	return b.String()
}

func busted(rest string) bool {
	for _, sep := range []string{"?", "&", "&amp;"} {
		if strings.HasPrefix(rest, sep+CacheBustParam+"=") {
			return true
		}
	}
	return false
}
