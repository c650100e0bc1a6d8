package templates

import (
	"encoding/json"
	"regexp"
	"strings"
)

// shopifyProduct is the canonical product record, matching the
// /products/<handle>.js payload shape.
type shopifyProduct struct {
	ID            int64            `json:"id"`
	Title         string           `json:"title"`
	Handle        string           `json:"handle"`
	Description   string           `json:"description"`
	Vendor        string           `json:"vendor"`
	FeaturedImage string           `json:"featured_image"`
	Images        []string         `json:"images"`
	KeyFeatures   []string         `json:"key_features"`
	Variants      []shopifyVariant `json:"variants"`
}

type shopifyVariant struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	Name          string   `json:"name"`
	SKU           string   `json:"sku"`
	PublicTitle   *string  `json:"public_title"`
	Options       []string `json:"options"`
	FeaturedImage *struct {
		Src string `json:"src"`
		Alt string `json:"alt"`
	} `json:"featured_image"`
}

var htmlTagPattern = regexp.MustCompile(`(?s)<[^>]+>`)

func stripHTML(s string) string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(s, " "))
}

// productFromLoose coerces an embedded-state product object (whose field
// names drift between storefront frameworks) into the canonical record.
// Returns nil when the object cannot carry a usable product.
func productFromLoose(obj map[string]interface{}) *shopifyProduct {
	// Round-tripping through JSON handles most of the overlap with the .js
	// shape. Images and key features drift between string lists and object
	// lists, so they are stripped first and coerced by hand.
	trimmed := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		if k == "images" || k == "key_features" {
			continue
		}
		trimmed[k] = v
	}
	raw, err := json.Marshal(trimmed)
	if err != nil {
		return nil
	}
	var p shopifyProduct
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	if p.Title == "" {
		if name, ok := obj["name"].(string); ok {
			p.Title = name
		}
	}
	if p.Description == "" {
		if body, ok := obj["body_html"].(string); ok {
			p.Description = body
		}
	}
	if imgs, ok := obj["images"].([]interface{}); ok {
		for _, img := range imgs {
			switch iv := img.(type) {
			case string:
				p.Images = append(p.Images, iv)
			case map[string]interface{}:
				if src, ok := iv["src"].(string); ok {
					p.Images = append(p.Images, src)
				}
			}
		}
	}
	if feats, ok := obj["key_features"].([]interface{}); ok {
		for _, feat := range feats {
			switch fv := feat.(type) {
			case string:
				p.KeyFeatures = append(p.KeyFeatures, fv)
			case map[string]interface{}:
				if title, ok := fv["title"].(string); ok && title != "" {
					p.KeyFeatures = append(p.KeyFeatures, title)
				}
				if text, ok := fv["text"].(string); ok && text != "" {
					p.KeyFeatures = append(p.KeyFeatures, text)
				}
			}
		}
	}
	if p.Title == "" || len(p.Variants) == 0 {
		return nil
	}
	p.Description = stripHTML(p.Description)
	return &p
}
