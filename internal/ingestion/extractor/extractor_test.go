package extractor

import (
	"testing"
)

func TestDecodeExtractionValid(t *testing.T) {
	obj := map[string]interface{}{
		"cables": []interface{}{
			map[string]interface{}{
				"brand":         "Anker",
				"model":         "Anker 765 USB-C to USB-C Cable",
				"connectorFrom": "usb-c",
				"connectorTo":   "usb c",
				"maxWatts":      140.0,
				"pdSupported":   true,
				"evidence": []interface{}{
					map[string]interface{}{"fieldPath": "brand", "snippet": "Anker"},
					map[string]interface{}{"fieldPath": "model", "snippet": "Anker 765"},
					map[string]interface{}{"fieldPath": "connectorPair.from", "snippet": "USB-C to USB-C"},
					map[string]interface{}{"fieldPath": "connectorPair.to", "snippet": "USB-C to USB-C"},
					map[string]interface{}{"fieldPath": "power.maxWatts", "snippet": "140W"},
				},
			},
		},
	}
	result, err := decodeExtraction(obj, "https://example.com/products/a765")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(result.Cables) != 1 {
		t.Fatalf("cables = %d", len(result.Cables))
	}
	c := result.Cables[0]
	if c.ConnectorFrom != "USB-C" || c.ConnectorTo != "USB-C" {
		t.Fatalf("connectors not normalized: %q -> %q", c.ConnectorFrom, c.ConnectorTo)
	}
	if c.ProductURL != "https://example.com/products/a765" {
		t.Fatalf("productURL = %q", c.ProductURL)
	}
	if c.Power.MaxWatts == nil || *c.Power.MaxWatts != 140 {
		t.Fatalf("maxWatts = %v", c.Power.MaxWatts)
	}
}

func TestDecodeExtractionMissingCriticalEvidence(t *testing.T) {
	obj := map[string]interface{}{
		"cables": []interface{}{
			map[string]interface{}{
				"brand":         "Anker",
				"model":         "Anker 765",
				"connectorFrom": "usb-c",
				"connectorTo":   "usb-c",
				"evidence": []interface{}{
					map[string]interface{}{"fieldPath": "brand", "snippet": "Anker"},
				},
			},
		},
	}
	if _, err := decodeExtraction(obj, "https://example.com/p"); err == nil {
		t.Fatal("expected extraction error for missing critical evidence")
	}
}

func TestDecodeExtractionLightningClamp(t *testing.T) {
	obj := map[string]interface{}{
		"cables": []interface{}{
			map[string]interface{}{
				"brand":         "Apple",
				"model":         "Apple USB-C to Lightning Cable",
				"connectorFrom": "usb-c",
				"connectorTo":   "lightning",
				"usbGeneration": "USB 3.2 Gen 2",
				"maxGbps":       10.0,
				"evidence": []interface{}{
					map[string]interface{}{"fieldPath": "brand", "snippet": "Apple"},
					map[string]interface{}{"fieldPath": "model", "snippet": "USB-C to Lightning Cable"},
					map[string]interface{}{"fieldPath": "connectorPair.from", "snippet": "USB-C to Lightning"},
					map[string]interface{}{"fieldPath": "connectorPair.to", "snippet": "USB-C to Lightning"},
				},
			},
		},
	}
	result, err := decodeExtraction(obj, "https://example.com/p")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	c := result.Cables[0]
	if c.Data.MaxGbps == nil || *c.Data.MaxGbps != 0.48 {
		t.Fatalf("maxGbps = %v, want lightning ceiling", c.Data.MaxGbps)
	}
}

func TestDecodeExtractionEmptyCables(t *testing.T) {
	result, err := decodeExtraction(map[string]interface{}{"cables": []interface{}{}}, "https://example.com/p")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(result.Cables) != 0 {
		t.Fatalf("cables = %d, want 0", len(result.Cables))
	}
}
