package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// EvidenceSource is an append-only snapshot of a fetched product page.
// Rows are never mutated after insert.
type EvidenceSource struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	WorkflowID   uuid.UUID `gorm:"type:uuid;not null;index:idx_evidence_source_workflow" json:"workflow_id"`
	URL          string    `gorm:"column:url;not null" json:"url"`
	CanonicalURL string    `gorm:"column:canonical_url;not null;index:idx_evidence_source_canonical_url" json:"canonical_url"`
	FetchedAt    time.Time `gorm:"column:fetched_at;not null" json:"fetched_at"`
	ContentHash  string    `gorm:"column:content_hash;not null;index:idx_evidence_source_content_hash" json:"content_hash"`
	HTML         string    `gorm:"column:html;type:text" json:"html"`
	Markdown     string    `gorm:"column:markdown;type:text" json:"markdown"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

func (EvidenceSource) TableName() string { return "evidence_source" }

// ContentHash is the canonical snapshot fingerprint: sha-256 over the
// canonical URL, markdown and html joined by newlines. Identical inputs
// always produce identical hashes.
func ContentHash(canonicalURL, markdown, html string) string {
	h := sha256.New()
	_, _ = h.Write([]byte(canonicalURL))
	_, _ = h.Write([]byte{'\n'})
	_, _ = h.Write([]byte(markdown))
	_, _ = h.Write([]byte{'\n'})
	_, _ = h.Write([]byte(html))
	return hex.EncodeToString(h.Sum(nil))
}
