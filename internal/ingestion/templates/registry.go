package templates

import (
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shpitdev/cable-intel/internal/logger"
)

// Template describes one Shopify storefront we know how to crawl.
type Template struct {
	ID                string
	Name              string
	BaseURL           string
	SearchPath        string
	SearchParam       string
	SearchQuery       string
	ProductPathPrefix string
	// IncludeKeywords gates discovery candidates: a candidate whose
	// handle/title/summary contains none of them is skipped.
	IncludeKeywords  []string
	ExcludeKeywords  []string
	MaxDiscoverItems int
}

// MatchesProductURL reports whether the URL belongs to this vendor's product
// namespace.
func (t *Template) MatchesProductURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	base, err := url.Parse(t.BaseURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	baseHost := strings.TrimPrefix(strings.ToLower(base.Host), "www.")
	if host != baseHost {
		return false
	}
	return strings.HasPrefix(u.Path, t.ProductPathPrefix)
}

// IncludeCandidate filters discovery hits down to consumer cables.
func (t *Template) IncludeCandidate(handle, title, summaryHTML string) bool {
	haystack := strings.ToLower(handle + " " + title + " " + summaryHTML)
	for _, kw := range t.ExcludeKeywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return false
		}
	}
	if len(t.IncludeKeywords) == 0 {
		return true
	}
	for _, kw := range t.IncludeKeywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// builtinTemplates is the process-wide registry, immutable after Load.
var builtinTemplates = []*Template{
	{
		ID:                "anker",
		Name:              "Anker",
		BaseURL:           "https://www.anker.com",
		SearchPath:        "/search",
		SearchParam:       "q",
		SearchQuery:       "usb c cable",
		ProductPathPrefix: "/products/",
		IncludeKeywords:   []string{"cable"},
		ExcludeKeywords:   []string{"hdmi", "ethernet", "aux", "audio"},
		MaxDiscoverItems:  40,
	},
	{
		ID:                "ugreen",
		Name:              "UGREEN",
		BaseURL:           "https://www.ugreen.com",
		SearchPath:        "/search",
		SearchParam:       "q",
		SearchQuery:       "usb c cable",
		ProductPathPrefix: "/products/",
		IncludeKeywords:   []string{"cable"},
		ExcludeKeywords:   []string{"hdmi", "ethernet", "hub", "dock"},
		MaxDiscoverItems:  40,
	},
}

type Registry struct {
	log       *logger.Logger
	templates []*Template
	byID      map[string]*Template
}

// templateOverride is the optional YAML tuning shape (TEMPLATE_CONFIG_PATH).
type templateOverride struct {
	ID               string   `yaml:"id"`
	SearchQuery      string   `yaml:"search_query"`
	IncludeKeywords  []string `yaml:"include_keywords"`
	ExcludeKeywords  []string `yaml:"exclude_keywords"`
	MaxDiscoverItems int      `yaml:"max_discover_items"`
}

type overridesFile struct {
	Templates []templateOverride `yaml:"templates"`
}

// NewRegistry builds the immutable template registry, applying YAML
// overrides when configPath is set.
func NewRegistry(baseLog *logger.Logger, configPath string) (*Registry, error) {
	log := baseLog.With("component", "TemplateRegistry")
	tpls := make([]*Template, 0, len(builtinTemplates))
	for _, t := range builtinTemplates {
		cp := *t
		tpls = append(tpls, &cp)
	}

	if strings.TrimSpace(configPath) != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		var overrides overridesFile
		if err := yaml.Unmarshal(raw, &overrides); err != nil {
			return nil, err
		}
		for _, ov := range overrides.Templates {
			for _, t := range tpls {
				if t.ID != ov.ID {
					continue
				}
				if ov.SearchQuery != "" {
					t.SearchQuery = ov.SearchQuery
				}
				if len(ov.IncludeKeywords) > 0 {
					t.IncludeKeywords = ov.IncludeKeywords
				}
				if len(ov.ExcludeKeywords) > 0 {
					t.ExcludeKeywords = ov.ExcludeKeywords
				}
				if ov.MaxDiscoverItems > 0 {
					t.MaxDiscoverItems = ov.MaxDiscoverItems
				}
				log.Info("Applied template override", "template_id", t.ID)
			}
		}
	}

	byID := make(map[string]*Template, len(tpls))
	for _, t := range tpls {
		byID[t.ID] = t
	}
	return &Registry{log: log, templates: tpls, byID: byID}, nil
}

func (r *Registry) All() []*Template {
	out := make([]*Template, len(r.templates))
	copy(out, r.templates)
	return out
}

func (r *Registry) Get(id string) (*Template, bool) {
	t, ok := r.byID[strings.ToLower(strings.TrimSpace(id))]
	return t, ok
}

// MatchProductURL finds the template owning a product URL, if any.
func (r *Registry) MatchProductURL(raw string) (*Template, bool) {
	for _, t := range r.templates {
		if t.MatchesProductURL(raw) {
			return t, true
		}
	}
	return nil, false
}
