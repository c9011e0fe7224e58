package prerender

import (
	"context"
	"fmt"

	"github.com/hazyhaar/prerender/prerender/internal/browser"
	"github.com/hazyhaar/prerender/prerender/internal/config"
	"github.com/hazyhaar/prerender/prerender/internal/site"
)

// Config is the top-level prerender configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome.
type BrowserConfig = config.BrowserConfig

// ConcurrencyConfig bounds fan-out.
type ConcurrencyConfig = config.ConcurrencyConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// SiteConfig defines one site to render.
type SiteConfig = config.SiteConfig

// BrowserOptions configures the Chrome-backed opener.
type BrowserOptions = browser.Config

// DefaultConfigPath is read when no configuration path is given.
const DefaultConfigPath = config.DefaultPath

// LoadConfigFile reads a YAML configuration file. An empty path reads
// DefaultConfigPath from the working directory.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// RegisterMutator makes fn available to configuration files as an
// exclusion (`exclude: [{mutator: name}]`). Register before loading.
func RegisterMutator(name string, fn Mutator) error {
	return site.RegisterMutator(name, fn)
}

// BrowserOpener launches (or connects to) one Chrome per call.
func BrowserOpener(opts BrowserOptions) Opener {
	return func(ctx context.Context) (Browser, error) {
		m := browser.NewManager(opts)
		if err := m.Start(ctx); err != nil {
			m.Close()
			return nil, err
		}
		return m, nil
	}
}

// New compiles cfg and creates a Runner with the configured browser,
// concurrency limits and sinks. Options override the configuration.
func New(cfg *Config, opts ...Option) (*Runner, error) {
	sites, err := cfg.Compile()
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	base := []Option{
		WithLogger(o.logger),
		WithIDGenerator(o.newID),
		WithSiteConcurrency(cfg.Concurrency.Sites),
		WithPageConcurrency(cfg.Concurrency.Pages),
		WithRenderConcurrency(cfg.Concurrency.Renders),
	}
	if o.opener == nil {
		bo := cfg.BrowserOptions()
		bo.Logger = o.logger
		base = append(base, WithOpener(BrowserOpener(bo)))
	}
	if o.sinks == nil {
		sinks, err := OpenSinks(cfg.Sinks, o.logger)
		if err != nil {
			return nil, fmt.Errorf("prerender: %w", err)
		}
		base = append(base, WithSinks(sinks...))
	}
	return NewRunner(sites, append(base, opts...)...), nil
}
