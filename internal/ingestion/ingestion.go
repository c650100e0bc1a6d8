package ingestion

import (
	"github.com/shpitdev/cable-intel/internal/types"
)

// EvidencePointer ties an extracted field path to the snippet that supports
// it. The evidence source id is attached when the snapshot row is written.
type EvidencePointer struct {
	FieldPath string `json:"fieldPath"`
	Snippet   string `json:"snippet,omitempty"`
}

// ParsedCable is one extracted cable candidate (one per product variant).
type ParsedCable struct {
	Brand         string
	Model         string
	Variant       string
	SKU           string
	ConnectorFrom string
	ConnectorTo   string
	ProductURL    string
	ImageURLs     []string
	Power         types.PowerSpec
	Data          types.DataSpec
	Video         types.VideoSpec
	Evidence      []EvidencePointer
}

// ExtractionResult is the outcome of extracting one product page. Markdown
// and HTML carry the raw content the cables were read from; they back the
// append-only evidence row.
type ExtractionResult struct {
	SourceURL string
	Markdown  string
	HTML      string
	Cables    []ParsedCable
}

// HasCriticalEvidence reports whether all four critical field paths are
// present in the evidence list.
func (p *ParsedCable) HasCriticalEvidence() bool {
	need := map[string]bool{
		types.FieldPathBrand:         false,
		types.FieldPathModel:         false,
		types.FieldPathConnectorFrom: false,
		types.FieldPathConnectorTo:   false,
	}
	for _, ev := range p.Evidence {
		if _, ok := need[ev.FieldPath]; ok {
			need[ev.FieldPath] = true
		}
	}
	for _, ok := range need {
		if !ok {
			return false
		}
	}
	return true
}

// AddEvidence appends a pointer, dropping empty snippets for non-critical
// fields per the evidence rules.
func (p *ParsedCable) AddEvidence(fieldPath, snippet string) {
	if snippet == "" {
		switch fieldPath {
		case types.FieldPathBrand, types.FieldPathModel, types.FieldPathConnectorFrom, types.FieldPathConnectorTo:
			// critical pointers are kept even without a snippet
		default:
			return
		}
	}
	p.Evidence = append(p.Evidence, EvidencePointer{FieldPath: fieldPath, Snippet: snippet})
}
