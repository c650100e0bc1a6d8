package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shpitdev/cable-intel/internal/apierr"
	"github.com/shpitdev/cable-intel/internal/ingestion"
	"github.com/shpitdev/cable-intel/internal/logger"
)

// Adapter crawls one Shopify storefront described by a Template. The suggest
// index is the only mutable state; it is lazily populated and safe to
// recompute.
type Adapter struct {
	log        *logger.Logger
	tpl        *Template
	httpClient *http.Client

	mu           sync.Mutex
	suggestIndex map[string]suggestProduct
}

func NewAdapter(baseLog *logger.Logger, tpl *Template, httpClient *http.Client) *Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Adapter{
		log:        baseLog.With("component", "ShopifyAdapter", "template_id", tpl.ID),
		tpl:        tpl,
		httpClient: httpClient,
	}
}

func (a *Adapter) Template() *Template { return a.tpl }

// CanonicalProductURL strips fragment and trailing slash.
func CanonicalProductURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimRight(strings.TrimSpace(raw), "/")
	}
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// DiscoverProductURLs finds candidate product pages from the vendor search
// page, falling back to the search-suggest endpoint when the page carries no
// embedded product state.
func (a *Adapter) DiscoverProductURLs(ctx context.Context, maxItems int) ([]string, error) {
	if maxItems <= 0 || maxItems > a.tpl.MaxDiscoverItems {
		maxItems = a.tpl.MaxDiscoverItems
	}

	searchURL := fmt.Sprintf("%s%s?%s=%s", a.tpl.BaseURL, a.tpl.SearchPath, a.tpl.SearchParam, url.QueryEscape(a.tpl.SearchQuery))
	html, err := a.fetchText(ctx, searchURL)

	var handles []productCandidate
	if err == nil {
		handles = findEmbeddedProducts(html)
	}
	if err != nil || len(handles) == 0 {
		// No embedded state (or 404): ask the suggest endpoint instead.
		index, sErr := a.loadSuggestIndex(ctx)
		if sErr != nil {
			if err != nil {
				return nil, err
			}
			return nil, sErr
		}
		for _, p := range index {
			handles = append(handles, productCandidate{Handle: p.Handle, Title: p.Title, SummaryHTML: p.Body})
		}
	}

	seen := map[string]bool{}
	var out []string
	for _, c := range handles {
		if !a.tpl.IncludeCandidate(c.Handle, c.Title, c.SummaryHTML) {
			continue
		}
		productURL := CanonicalProductURL(a.tpl.BaseURL + strings.TrimRight(a.tpl.ProductPathPrefix, "/") + "/" + c.Handle)
		if seen[productURL] {
			continue
		}
		seen[productURL] = true
		out = append(out, productURL)
		if len(out) >= maxItems {
			break
		}
	}
	return out, nil
}

// ExtractFromProductURL resolves the product handle, fetches the product
// payload (embedded page state first, then the .js endpoint) and emits one
// parsed cable per variant. Returns nil when the URL is not a product page
// for this vendor.
func (a *Adapter) ExtractFromProductURL(ctx context.Context, rawURL string) (*ingestion.ExtractionResult, error) {
	handle := a.handleFromURL(rawURL)
	if handle == "" {
		return nil, nil
	}
	canonical := CanonicalProductURL(rawURL)

	product, err := a.fetchProduct(ctx, handle, canonical)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, nil
	}

	// A description with no capability signal gets supplemented from the
	// suggest payload before parsing.
	if !hasCapabilitySignals(product.Description) {
		if index, sErr := a.loadSuggestIndex(ctx); sErr == nil {
			if sp, ok := index[handle]; ok && hasCapabilitySignals(sp.Body) {
				product.Description = strings.TrimSpace(product.Description + "\n" + sp.Body)
			}
		}
	}

	cables := parseProduct(a.tpl, product, canonical)
	// The canonical product payload doubles as the evidence body.
	payload, _ := json.MarshalIndent(product, "", "  ")
	return &ingestion.ExtractionResult{
		SourceURL: canonical,
		Markdown:  string(payload),
		Cables:    cables,
	}, nil
}

func (a *Adapter) handleFromURL(rawURL string) string {
	if !a.tpl.MatchesProductURL(rawURL) {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	rest := strings.TrimPrefix(u.Path, a.tpl.ProductPathPrefix)
	rest = strings.TrimRight(rest, "/")
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func (a *Adapter) fetchProduct(ctx context.Context, handle, productURL string) (*shopifyProduct, error) {
	// Embedded page state first.
	if html, err := a.fetchText(ctx, productURL); err == nil {
		for _, c := range findEmbeddedProducts(html) {
			if c.Handle != handle {
				continue
			}
			if p := productFromLoose(c.Raw); p != nil {
				return p, nil
			}
		}
	}

	// Canonical .js payload.
	jsURL := a.tpl.BaseURL + strings.TrimRight(a.tpl.ProductPathPrefix, "/") + "/" + handle + ".js"
	raw, err := a.fetchText(ctx, jsURL)
	if err != nil {
		return nil, err
	}
	var p shopifyProduct
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, apierr.Newf(apierr.KindExtraction, "shopify product payload decode failed for %q: %v", handle, err)
	}
	if p.Handle == "" {
		p.Handle = handle
	}
	return &p, nil
}

type suggestProduct struct {
	Title  string `json:"title"`
	Handle string `json:"handle"`
	URL    string `json:"url"`
	Body   string `json:"body"`
}

type suggestResponse struct {
	Resources struct {
		Results struct {
			Products []suggestProduct `json:"products"`
		} `json:"results"`
	} `json:"resources"`
}

func (a *Adapter) loadSuggestIndex(ctx context.Context) (map[string]suggestProduct, error) {
	a.mu.Lock()
	if a.suggestIndex != nil {
		idx := a.suggestIndex
		a.mu.Unlock()
		return idx, nil
	}
	a.mu.Unlock()

	suggestURL := fmt.Sprintf("%s/search/suggest.json?q=%s&resources[type]=product",
		a.tpl.BaseURL, url.QueryEscape(a.tpl.SearchQuery))
	raw, err := a.fetchText(ctx, suggestURL)
	if err != nil {
		return nil, err
	}
	var parsed suggestResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, apierr.Newf(apierr.KindExtraction, "suggest payload decode failed: %v", err)
	}

	idx := make(map[string]suggestProduct, len(parsed.Resources.Results.Products))
	for _, p := range parsed.Resources.Results.Products {
		if p.Handle == "" && p.URL != "" {
			if u, uErr := url.Parse(p.URL); uErr == nil {
				p.Handle = strings.TrimRight(strings.TrimPrefix(u.Path, a.tpl.ProductPathPrefix), "/")
			}
		}
		if p.Handle != "" {
			idx[p.Handle] = p
		}
	}

	a.mu.Lock()
	a.suggestIndex = idx
	a.mu.Unlock()
	return idx, nil
}

func (a *Adapter) fetchText(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", apierr.New(apierr.KindFetch, err)
	}
	req.Header.Set("Accept", "text/html,application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", apierr.New(apierr.KindFetch, err)
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", apierr.New(apierr.KindFetch, readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apierr.Newf(apierr.KindFetch, "GET %s: http %d", rawURL, resp.StatusCode)
	}
	return string(body), nil
}

// hasCapabilitySignals is a cheap check for whether a description can feed
// the capability parser at all.
func hasCapabilitySignals(s string) bool {
	low := strings.ToLower(s)
	for _, tok := range []string{"watt", "gbps", "usb", "thunderbolt", "power delivery", "charging"} {
		if strings.Contains(low, tok) {
			return true
		}
	}
	return false
}
