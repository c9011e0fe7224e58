// Package config handles prerender configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/prerender/prerender/internal/browser"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "prerender.yaml"

// Config is the top-level prerender configuration.
type Config struct {
	Browser     BrowserConfig     `yaml:"browser"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Sinks       []SinkConfig      `yaml:"sinks"`
	Sites       []SiteConfig      `yaml:"sites"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote            string           `yaml:"remote"`
	Stealth           *bool            `yaml:"stealth"`
	Headful           bool             `yaml:"headful"`
	XvfbDisplay       string           `yaml:"xvfb_display"`
	Viewport          browser.Viewport `yaml:"viewport"`
	Block             []string         `yaml:"block"`
	NavigationTimeout time.Duration    `yaml:"navigation_timeout"`
	Settle            time.Duration    `yaml:"settle"`
}

// ConcurrencyConfig bounds fan-out. 0 = unbounded for sites and pages;
// renders bounds the service mode's concurrent browsers (0 = default).
type ConcurrencyConfig struct {
	Sites   int `yaml:"sites"`
	Pages   int `yaml:"pages"`
	Renders int `yaml:"renders"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook | sqlite
	URL  string `yaml:"url"`  // for webhook
	DSN  string `yaml:"dsn"`  // for sqlite: database path
}

// SiteConfig defines one site to render.
type SiteConfig struct {
	Name string `yaml:"name"`
	// URLs maps each page URL to its output path. An empty path returns
	// the HTML without writing it.
	URLs       map[string]string `yaml:"urls"`
	OutputRoot string            `yaml:"output_root"`
	Screenshot string            `yaml:"screenshot"`
	WaitFor    *WaitConfig       `yaml:"wait_for"`

	Stylesheet *PolicyConfig `yaml:"stylesheet"`
	Script     *PolicyConfig `yaml:"script"`
	Image      *PolicyConfig `yaml:"image"`
	CacheBust  *PolicyConfig `yaml:"cache_bust"`

	Exclude []ExclusionConfig   `yaml:"exclude"`
	Replace []ReplacementConfig `yaml:"replace"`
}

// WaitConfig is an extra wait after network quiescence.
type WaitConfig struct {
	Selector string        `yaml:"selector"`
	Delay    time.Duration `yaml:"delay"`
}

// PolicyConfig is the capture policy of one resource kind. Presence of the
// block enables the kind.
type PolicyConfig struct {
	SameOrigin bool     `yaml:"same_origin"`
	Include    string   `yaml:"include"`
	Exclude    string   `yaml:"exclude"`
	MaxSize    int64    `yaml:"max_size"`
	Depth      int      `yaml:"depth"`
	Types      []string `yaml:"types"`
	Hash       string   `yaml:"hash"` // cache_bust only
}

// ExclusionConfig is one DOM exclusion: a selector or a named mutator.
type ExclusionConfig struct {
	Selector string `yaml:"selector"`
	Mutator  string `yaml:"mutator"`
}

// ReplacementConfig is one text replacement: a regular expression
// (pattern) or a literal string (find), replaced by With.
type ReplacementConfig struct {
	Pattern string `yaml:"pattern"`
	Find    string `yaml:"find"`
	With    string `yaml:"with"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.Stealth == nil {
		on := true
		c.Browser.Stealth = &on
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		c.Browser.Viewport = browser.Viewport{Width: 2560, Height: 1440}
	}
	if c.Browser.NavigationTimeout <= 0 {
		c.Browser.NavigationTimeout = 60 * time.Second
	}
	if c.Browser.Settle <= 0 {
		c.Browser.Settle = 500 * time.Millisecond
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "stdout"}}
	}
}

// BrowserOptions converts the browser section for the browser manager.
func (c *Config) BrowserOptions() browser.Config {
	return browser.Config{
		RemoteURL:         c.Browser.Remote,
		Stealth:           c.Browser.Stealth != nil && *c.Browser.Stealth,
		Headful:           c.Browser.Headful,
		XvfbDisplay:       c.Browser.XvfbDisplay,
		Viewport:          c.Browser.Viewport,
		ResourceBlocking:  c.Browser.Block,
		NavigationTimeout: c.Browser.NavigationTimeout,
		Settle:            c.Browser.Settle,
	}
}
