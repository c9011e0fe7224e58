package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"

	"github.com/hazyhaar/prerender/horosafe"
	"github.com/hazyhaar/prerender/prerender/internal/capture"
	"github.com/hazyhaar/prerender/prerender/internal/site"
)

// Compile validates every site and turns it into its read-only runtime form.
func (c *Config) Compile() ([]*site.Site, error) {
	seen := make(map[string]bool, len(c.Sites))
	out := make([]*site.Site, 0, len(c.Sites))
	for i := range c.Sites {
		sc := &c.Sites[i]
		if sc.Name == "" {
			sc.Name = fmt.Sprintf("site-%d", i+1)
		}
		if err := horosafe.ValidateIdentifier(sc.Name); err != nil {
			return nil, fmt.Errorf("config: site name: %w", err)
		}
		if seen[sc.Name] {
			return nil, fmt.Errorf("config: duplicate site name %q", sc.Name)
		}
		seen[sc.Name] = true

		s, err := sc.compile()
		if err != nil {
			return nil, fmt.Errorf("config: site %q: %w", sc.Name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (sc *SiteConfig) compile() (*site.Site, error) {
	if len(sc.URLs) == 0 {
		return nil, fmt.Errorf("no urls")
	}
	urls := make(map[string]string, len(sc.URLs))
	for u, out := range sc.URLs {
		if err := horosafe.ValidateURL(u, horosafe.AllowPrivate()); err != nil {
			return nil, fmt.Errorf("url %q: %w", u, err)
		}
		urls[u] = out
	}

	s := &site.Site{
		Name:       sc.Name,
		URLs:       urls,
		OutputRoot: sc.OutputRoot,
		Screenshot: sc.Screenshot,
	}
	if sc.WaitFor != nil {
		if sc.WaitFor.Selector != "" {
			if _, err := cascadia.Compile(sc.WaitFor.Selector); err != nil {
				return nil, fmt.Errorf("wait_for: %w", err)
			}
		}
		s.Wait = site.WaitCondition{Selector: sc.WaitFor.Selector, Delay: sc.WaitFor.Delay}
	}

	var err error
	if s.Policies.Stylesheet, err = sc.Stylesheet.compile(capture.KindStylesheet); err != nil {
		return nil, err
	}
	if s.Policies.Script, err = sc.Script.compile(capture.KindScript); err != nil {
		return nil, err
	}
	if s.Policies.Image, err = sc.Image.compile(capture.KindImage); err != nil {
		return nil, err
	}
	if s.Policies.CacheBust, err = sc.CacheBust.compile(capture.KindCacheBust); err != nil {
		return nil, err
	}

	for i, ex := range sc.Exclude {
		e, err := ex.compile()
		if err != nil {
			return nil, fmt.Errorf("exclude[%d]: %w", i, err)
		}
		s.Exclusions = append(s.Exclusions, e)
	}
	for i, r := range sc.Replace {
		fn, err := r.compile()
		if err != nil {
			return nil, fmt.Errorf("replace[%d]: %w", i, err)
		}
		s.Replacements = append(s.Replacements, fn)
	}
	return s, nil
}

func (pc *PolicyConfig) compile(kind capture.Kind) (*capture.Policy, error) {
	if pc == nil {
		return nil, nil
	}
	p := &capture.Policy{
		SameOrigin: pc.SameOrigin,
		MaxSize:    pc.MaxSize,
		Depth:      pc.Depth,
		Hash:       strings.ToLower(pc.Hash),
	}
	if pc.MaxSize < 0 || pc.Depth < 0 {
		return nil, fmt.Errorf("%s: negative max_size or depth", kind)
	}
	var err error
	if pc.Include != "" {
		if p.Include, err = regexp.Compile(pc.Include); err != nil {
			return nil, fmt.Errorf("%s include: %w", kind, err)
		}
	}
	if pc.Exclude != "" {
		if p.Exclude, err = regexp.Compile(pc.Exclude); err != nil {
			return nil, fmt.Errorf("%s exclude: %w", kind, err)
		}
	}
	for _, t := range pc.Types {
		rt, ok := resourceTypes[strings.ToLower(t)]
		if !ok {
			return nil, fmt.Errorf("%s: unknown resource type %q", kind, t)
		}
		p.Types = append(p.Types, rt)
	}
	if p.Hash != "" {
		if kind != capture.KindCacheBust {
			return nil, fmt.Errorf("%s: hash only applies to cache_bust", kind)
		}
		if !capture.ValidHash(p.Hash) {
			return nil, fmt.Errorf("%s: unknown hash %q", kind, pc.Hash)
		}
	}
	return p, nil
}

var resourceTypes = map[string]capture.ResourceType{
	"document":   capture.TypeDocument,
	"stylesheet": capture.TypeStylesheet,
	"image":      capture.TypeImage,
	"media":      capture.TypeMedia,
	"font":       capture.TypeFont,
	"script":     capture.TypeScript,
	"xhr":        capture.TypeXHR,
	"fetch":      capture.TypeFetch,
	"other":      capture.TypeOther,
}

func (ec ExclusionConfig) compile() (site.Exclusion, error) {
	switch {
	case ec.Selector != "" && ec.Mutator != "":
		return site.Exclusion{}, fmt.Errorf("selector and mutator are exclusive")
	case ec.Selector != "":
		if _, err := cascadia.Compile(ec.Selector); err != nil {
			return site.Exclusion{}, fmt.Errorf("selector %q: %w", ec.Selector, err)
		}
		return site.SelectorExclusion(ec.Selector), nil
	case ec.Mutator != "":
		fn, ok := site.LookupMutator(ec.Mutator)
		if !ok {
			return site.Exclusion{}, fmt.Errorf("unknown mutator %q (known: %s)",
				ec.Mutator, strings.Join(site.MutatorNames(), ", "))
		}
		return site.MutatorExclusion(ec.Mutator, fn), nil
	}
	return site.Exclusion{}, fmt.Errorf("empty exclusion")
}

func (rc ReplacementConfig) compile() (site.Replacement, error) {
	switch {
	case rc.Pattern != "" && rc.Find != "":
		return nil, fmt.Errorf("pattern and find are exclusive")
	case rc.Pattern != "":
		re, err := regexp.Compile(rc.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern: %w", err)
		}
		with := rc.With
		return func(html string) string { return re.ReplaceAllString(html, with) }, nil
	case rc.Find != "":
		find, with := rc.Find, rc.With
		return func(html string) string { return strings.ReplaceAll(html, find, with) }, nil
	}
	return nil, fmt.Errorf("empty replacement")
}
