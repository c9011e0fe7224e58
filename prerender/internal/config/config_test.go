package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/prerender/prerender/internal/capture"
)

const sample = `
concurrency:
  sites: 2
  pages: 4
browser:
  settle: 1s
  block: [media, fonts]
sinks:
  - type: webhook
    url: https://hooks.example.com/prerender
sites:
  - name: docs
    output_root: dist
    screenshot: docs.png
    urls:
      "https://docs.example.com/": index.html
      "https://docs.example.com/guide/":
    wait_for:
      selector: "#app"
      delay: 200ms
    stylesheet:
      same_origin: true
    script:
      exclude: "analytics"
    image:
      max_size: 65536
      depth: 2
    cache_bust:
      include: "\\.(woff2|json)$"
      types: [font, fetch]
      hash: sha256
    exclude:
      - selector: "script[type=module]"
      - mutator: strip-comments
    replace:
      - find: "http://"
        with: "https://"
      - pattern: "v=\\d+"
        with: "v=0"
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("sites: []\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.Stealth == nil || !*cfg.Browser.Stealth {
		t.Error("stealth should default to true")
	}
	if cfg.Browser.Settle != 500*time.Millisecond {
		t.Errorf("Settle: got %v", cfg.Browser.Settle)
	}
	if cfg.Browser.NavigationTimeout != 60*time.Second {
		t.Errorf("NavigationTimeout: got %v", cfg.Browser.NavigationTimeout)
	}
	if cfg.Browser.Viewport.Width != 2560 || cfg.Browser.Viewport.Height != 1440 {
		t.Errorf("Viewport: got %+v", cfg.Browser.Viewport)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0].Type != "stdout" {
		t.Errorf("Sinks: got %+v", cfg.Sinks)
	}
}

func TestParse_Sample(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Concurrency.Sites != 2 || cfg.Concurrency.Pages != 4 {
		t.Errorf("Concurrency: got %+v", cfg.Concurrency)
	}
	if cfg.Browser.Settle != time.Second {
		t.Errorf("Settle: got %v", cfg.Browser.Settle)
	}
	opts := cfg.BrowserOptions()
	if !opts.Stealth || len(opts.ResourceBlocking) != 2 {
		t.Errorf("BrowserOptions: got %+v", opts)
	}
	if got := cfg.Sites[0].URLs["https://docs.example.com/guide/"]; got != "" {
		t.Errorf("null output: got %q, want empty", got)
	}
}

func TestCompile_Sample(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	sites, err := cfg.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if len(sites) != 1 {
		t.Fatalf("sites: got %d, want 1", len(sites))
	}
	s := sites[0]
	if s.Name != "docs" || s.OutputRoot != "dist" || s.Screenshot != "docs.png" {
		t.Errorf("site: got %+v", s)
	}
	if s.Wait.Selector != "#app" || s.Wait.Delay != 200*time.Millisecond {
		t.Errorf("Wait: got %+v", s.Wait)
	}
	if p := s.Policies.Stylesheet; p == nil || !p.SameOrigin {
		t.Errorf("stylesheet policy: got %+v", p)
	}
	if p := s.Policies.Script; p == nil || !p.Exclude.MatchString("https://x/analytics.js") {
		t.Errorf("script policy: got %+v", p)
	}
	if p := s.Policies.Image; p == nil || p.MaxSize != 65536 || p.MatchDepth() != 2 {
		t.Errorf("image policy: got %+v", p)
	}
	cb := s.Policies.CacheBust
	if cb == nil || cb.Hash != "sha256" || len(cb.Types) != 2 || cb.Types[0] != capture.TypeFont {
		t.Errorf("cache_bust policy: got %+v", cb)
	}
	if len(s.Exclusions) != 2 || s.Exclusions[0].Selector == "" || s.Exclusions[1].Name != "strip-comments" {
		t.Errorf("Exclusions: got %+v", s.Exclusions)
	}
	if len(s.Replacements) != 2 {
		t.Fatalf("Replacements: got %d, want 2", len(s.Replacements))
	}
	out := "http://a?v=12"
	for _, fn := range s.Replacements {
		out = fn(out)
	}
	if out != "https://a?v=0" {
		t.Errorf("replacements: got %q, want %q", out, "https://a?v=0")
	}
}

func TestCompile_AbsentPolicyDisablesKind(t *testing.T) {
	cfg, err := Parse([]byte("sites:\n  - urls: {\"https://a.example/\": \"\"}\n"))
	if err != nil {
		t.Fatal(err)
	}
	sites, err := cfg.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if !sites[0].Policies.Empty() {
		t.Error("policies should be empty")
	}
	if sites[0].Name != "site-1" {
		t.Errorf("Name: got %q, want %q", sites[0].Name, "site-1")
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no urls", "sites:\n  - name: a\n", "no urls"},
		{"bad scheme", "sites:\n  - urls: {\"ftp://a/\": \"\"}\n", "url"},
		{"bad regex", "sites:\n  - urls: {\"https://a/\": \"\"}\n    script: {include: \"(\"}\n", "include"},
		{"bad hash", "sites:\n  - urls: {\"https://a/\": \"\"}\n    cache_bust: {hash: crc32}\n", "hash"},
		{"hash on image", "sites:\n  - urls: {\"https://a/\": \"\"}\n    image: {hash: md5}\n", "hash only"},
		{"bad type", "sites:\n  - urls: {\"https://a/\": \"\"}\n    image: {types: [bogus]}\n", "resource type"},
		{"bad selector", "sites:\n  - urls: {\"https://a/\": \"\"}\n    exclude: [{selector: \"[[\"}]\n", "selector"},
		{"unknown mutator", "sites:\n  - urls: {\"https://a/\": \"\"}\n    exclude: [{mutator: nope}]\n", "unknown mutator"},
		{"both exclusion", "sites:\n  - urls: {\"https://a/\": \"\"}\n    exclude: [{selector: p, mutator: strip-comments}]\n", "exclusive"},
		{"empty replace", "sites:\n  - urls: {\"https://a/\": \"\"}\n    replace: [{with: x}]\n", "empty replacement"},
		{"duplicate", "sites:\n  - {name: a, urls: {\"https://a/\": \"\"}}\n  - {name: a, urls: {\"https://b/\": \"\"}}\n", "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatal(err)
			}
			_, err = cfg.Compile()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prerender.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Sites) != 1 {
		t.Errorf("Sites: got %d, want 1", len(cfg.Sites))
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
