package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shpitdev/cable-intel/internal/apierr"
	"github.com/shpitdev/cable-intel/internal/clients/aigateway"
	"github.com/shpitdev/cable-intel/internal/clients/firecrawl"
	"github.com/shpitdev/cable-intel/internal/ingestion"
	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/normalization"
	"github.com/shpitdev/cable-intel/internal/types"
)

// maxMarkdownChars caps the page content handed to the model.
const maxMarkdownChars = 120000

// Extractor is the generic fallback for product pages no vendor template
// claims: scrape the page, then ask the model for schema-valid cables.
type Extractor struct {
	log       *logger.Logger
	firecrawl firecrawl.Client
	gateway   aigateway.Client
}

func New(baseLog *logger.Logger, fc firecrawl.Client, gw aigateway.Client) *Extractor {
	return &Extractor{
		log:       baseLog.With("component", "GenericExtractor"),
		firecrawl: fc,
		gateway:   gw,
	}
}

// Extract scrapes rawURL and extracts cables via the model. The scraped
// markdown/html ride along in the result so the caller can persist the
// evidence row.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*ingestion.ExtractionResult, error) {
	snap, err := e.firecrawl.Scrape(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	canonical := snap.SourceURL
	if canonical == "" {
		canonical = rawURL
	}
	contentHash := types.ContentHash(canonical, snap.Markdown, snap.HTML)

	markdown := snap.Markdown
	if len(markdown) > maxMarkdownChars {
		markdown = markdown[:maxMarkdownChars]
	}

	obj, err := e.gateway.GenerateObject(ctx, aigateway.GenerateObjectRequest{
		SchemaName:  "cable_extraction",
		Schema:      extractionSchema(),
		System:      extractionSystemPrompt,
		Prompt:      buildPrompt(rawURL, canonical, contentHash, markdown),
		Temperature: 0,
		MaxRetries:  2,
		Timeout:     90 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	result, err := decodeExtraction(obj, canonical)
	if err != nil {
		return nil, err
	}
	result.Markdown = snap.Markdown
	result.HTML = snap.HTML
	e.log.Info("Extracted cables from page",
		"url", canonical,
		"cables", fmt.Sprintf("%d", len(result.Cables)),
	)
	return result, nil
}

const extractionSystemPrompt = `You extract structured charging-cable listings from product page content.
Only report facts visible in the supplied content. Every cable needs evidence
snippets quoted verbatim from the content for brand, model and both connector
ends. Omit capability fields you cannot support with a snippet. Report one
entry per purchasable variant (length/color/wattage option).`

func buildPrompt(requestedURL, canonicalURL, contentHash, markdown string) string {
	return fmt.Sprintf(
		"Requested URL: %s\nCanonical URL: %s\nContent hash: %s\n\nPage content (markdown):\n%s",
		requestedURL, canonicalURL, contentHash, markdown,
	)
}

func extractionSchema() map[string]interface{} {
	evidence := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"fieldPath": map[string]interface{}{"type": "string"},
			"snippet":   map[string]interface{}{"type": "string"},
		},
		"required":             []string{"fieldPath", "snippet"},
		"additionalProperties": false,
	}
	cable := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"brand":          map[string]interface{}{"type": "string"},
			"model":          map[string]interface{}{"type": "string"},
			"variant":        map[string]interface{}{"type": []string{"string", "null"}},
			"sku":            map[string]interface{}{"type": []string{"string", "null"}},
			"connectorFrom":  map[string]interface{}{"type": "string"},
			"connectorTo":    map[string]interface{}{"type": "string"},
			"maxWatts":       map[string]interface{}{"type": []string{"number", "null"}},
			"pdSupported":    map[string]interface{}{"type": []string{"boolean", "null"}},
			"eprSupported":   map[string]interface{}{"type": []string{"boolean", "null"}},
			"usbGeneration":  map[string]interface{}{"type": []string{"string", "null"}},
			"maxGbps":        map[string]interface{}{"type": []string{"number", "null"}},
			"videoSupported": map[string]interface{}{"type": []string{"boolean", "null"}},
			"maxResolution":  map[string]interface{}{"type": []string{"string", "null"}},
			"maxRefreshHz":   map[string]interface{}{"type": []string{"number", "null"}},
			"imageUrls": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"evidence": map[string]interface{}{
				"type":  "array",
				"items": evidence,
			},
		},
		"required":             []string{"brand", "model", "connectorFrom", "connectorTo", "evidence"},
		"additionalProperties": false,
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"cables": map[string]interface{}{
				"type":  "array",
				"items": cable,
			},
		},
		"required":             []string{"cables"},
		"additionalProperties": false,
	}
}

type rawCable struct {
	Brand          string   `json:"brand"`
	Model          string   `json:"model"`
	Variant        *string  `json:"variant"`
	SKU            *string  `json:"sku"`
	ConnectorFrom  string   `json:"connectorFrom"`
	ConnectorTo    string   `json:"connectorTo"`
	MaxWatts       *float64 `json:"maxWatts"`
	PDSupported    *bool    `json:"pdSupported"`
	EPRSupported   *bool    `json:"eprSupported"`
	USBGeneration  *string  `json:"usbGeneration"`
	MaxGbps        *float64 `json:"maxGbps"`
	VideoSupported *bool    `json:"videoSupported"`
	MaxResolution  *string  `json:"maxResolution"`
	MaxRefreshHz   *float64 `json:"maxRefreshHz"`
	ImageURLs      []string `json:"imageUrls"`
	Evidence       []struct {
		FieldPath string `json:"fieldPath"`
		Snippet   string `json:"snippet"`
	} `json:"evidence"`
}

type rawExtraction struct {
	Cables []rawCable `json:"cables"`
}

// decodeExtraction converts the model payload into parsed cables, enforcing
// the critical-evidence contract and connector normalization.
func decodeExtraction(obj map[string]interface{}, canonicalURL string) (*ingestion.ExtractionResult, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, apierr.New(apierr.KindExtraction, err)
	}
	var parsed rawExtraction
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apierr.Newf(apierr.KindExtraction, "extraction payload did not match schema: %v", err)
	}

	result := &ingestion.ExtractionResult{SourceURL: canonicalURL}
	for i, rc := range parsed.Cables {
		if rc.Brand == "" || rc.Model == "" {
			return nil, apierr.Newf(apierr.KindExtraction, "cable %d missing brand or model", i)
		}
		cable := ingestion.ParsedCable{
			Brand:         rc.Brand,
			Model:         rc.Model,
			SKU:           deref(rc.SKU),
			Variant:       deref(rc.Variant),
			ConnectorFrom: normalization.NormalizeConnector(rc.ConnectorFrom),
			ConnectorTo:   normalization.NormalizeConnector(rc.ConnectorTo),
			ProductURL:    canonicalURL,
			ImageURLs:     rc.ImageURLs,
			Power: types.PowerSpec{
				MaxWatts:     rc.MaxWatts,
				PDSupported:  rc.PDSupported,
				EPRSupported: rc.EPRSupported,
			},
			Data: types.DataSpec{
				USBGeneration: rc.USBGeneration,
				MaxGbps:       rc.MaxGbps,
			},
			Video: types.VideoSpec{
				ExplicitlySupported: rc.VideoSupported,
				MaxResolution:       rc.MaxResolution,
				MaxRefreshHz:        rc.MaxRefreshHz,
			},
		}
		cable.Data.USBGeneration, cable.Data.MaxGbps = normalization.ClampDataCapabilityByConnector(
			cable.ConnectorFrom, cable.ConnectorTo, cable.Data.USBGeneration, cable.Data.MaxGbps)
		for _, ev := range rc.Evidence {
			cable.AddEvidence(ev.FieldPath, ev.Snippet)
		}
		if !cable.HasCriticalEvidence() {
			return nil, apierr.Newf(apierr.KindExtraction,
				"cable %d (%s %s) missing critical evidence paths", i, rc.Brand, rc.Model)
		}
		result.Cables = append(result.Cables, cable)
	}
	return result, nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
