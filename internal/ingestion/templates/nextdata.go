package templates

import (
	"encoding/json"
	"regexp"
	"strings"
)

var scriptJSONPattern = regexp.MustCompile(`(?is)<script[^>]*type="application/json"[^>]*>(.*?)</script>`)

// productCandidate is the loose shape we hunt for inside embedded page
// state: any object carrying a handle, a title-ish field and a variant list.
type productCandidate struct {
	Handle      string
	Title       string
	SummaryHTML string
	Raw         map[string]interface{}
}

// findEmbeddedProducts parses every application/json script blob in an HTML
// document and recursively collects product-like objects. Storefront state
// blobs ("next data" and friends) bury products at arbitrary depth, so the
// walk is shape-driven rather than path-driven.
func findEmbeddedProducts(html string) []productCandidate {
	var out []productCandidate
	seen := map[string]bool{}
	for _, m := range scriptJSONPattern.FindAllStringSubmatch(html, -1) {
		body := strings.TrimSpace(m[1])
		if body == "" {
			continue
		}
		var root interface{}
		if err := json.Unmarshal([]byte(body), &root); err != nil {
			continue
		}
		walkForProducts(root, func(c productCandidate) {
			if c.Handle == "" || seen[c.Handle] {
				return
			}
			seen[c.Handle] = true
			out = append(out, c)
		})
	}
	return out
}

func walkForProducts(node interface{}, emit func(productCandidate)) {
	switch v := node.(type) {
	case map[string]interface{}:
		if c, ok := asProductCandidate(v); ok {
			emit(c)
		}
		for _, child := range v {
			walkForProducts(child, emit)
		}
	case []interface{}:
		for _, child := range v {
			walkForProducts(child, emit)
		}
	}
}

func asProductCandidate(obj map[string]interface{}) (productCandidate, bool) {
	handle, _ := obj["handle"].(string)
	if handle == "" {
		return productCandidate{}, false
	}
	title, _ := obj["title"].(string)
	if title == "" {
		title, _ = obj["name"].(string)
	}
	if title == "" {
		return productCandidate{}, false
	}
	variants, ok := obj["variants"].([]interface{})
	if !ok || len(variants) == 0 {
		return productCandidate{}, false
	}
	summary, _ := obj["body_html"].(string)
	if summary == "" {
		summary, _ = obj["description"].(string)
	}
	return productCandidate{
		Handle:      handle,
		Title:       title,
		SummaryHTML: summary,
		Raw:         obj,
	}, true
}
