package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PowerSpec, DataSpec and VideoSpec are the three capability axes of a cable.
// Absent fields mean "no evidence", not "not supported".
type PowerSpec struct {
	MaxWatts     *float64 `json:"maxWatts,omitempty"`
	PDSupported  *bool    `json:"pdSupported,omitempty"`
	EPRSupported *bool    `json:"eprSupported,omitempty"`
}

type DataSpec struct {
	USBGeneration *string  `json:"usbGeneration,omitempty"`
	MaxGbps       *float64 `json:"maxGbps,omitempty"`
}

type VideoSpec struct {
	ExplicitlySupported *bool    `json:"explicitlySupported,omitempty"`
	MaxResolution       *string  `json:"maxResolution,omitempty"`
	MaxRefreshHz        *float64 `json:"maxRefreshHz,omitempty"`
}

// EvidenceRef ties one extracted field to the snapshot it was read from.
type EvidenceRef struct {
	FieldPath string    `json:"fieldPath"`
	SourceID  uuid.UUID `json:"sourceId"`
	Snippet   string    `json:"snippet,omitempty"`
}

// Critical evidence field paths: a spec without all four is quality-gated.
const (
	FieldPathBrand         = "brand"
	FieldPathModel         = "model"
	FieldPathConnectorFrom = "connectorPair.from"
	FieldPathConnectorTo   = "connectorPair.to"
)

// NormalizedSpec is one successful extraction bound to a variant and its
// evidence sources. Every sourceId inside EvidenceRefs must appear in
// EvidenceSourceIDs.
type NormalizedSpec struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkflowID        uuid.UUID      `gorm:"type:uuid;not null;index:idx_normalized_spec_workflow" json:"workflow_id"`
	VariantID         uuid.UUID      `gorm:"type:uuid;not null;index:idx_normalized_spec_variant" json:"variant_id"`
	EvidenceSourceIDs datatypes.JSON `gorm:"column:evidence_source_ids;type:jsonb" json:"evidence_source_ids"`
	Power             datatypes.JSON `gorm:"column:power;type:jsonb" json:"power"`
	Data              datatypes.JSON `gorm:"column:data;type:jsonb" json:"data"`
	Video             datatypes.JSON `gorm:"column:video;type:jsonb" json:"video"`
	EvidenceRefs      datatypes.JSON `gorm:"column:evidence_refs;type:jsonb" json:"evidence_refs"`
	CreatedAt         time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null" json:"updated_at"`
}

func (NormalizedSpec) TableName() string { return "normalized_spec" }

func (s *NormalizedSpec) PowerSpec() PowerSpec {
	var out PowerSpec
	JSONInto(s.Power, &out)
	return out
}

func (s *NormalizedSpec) DataSpec() DataSpec {
	var out DataSpec
	JSONInto(s.Data, &out)
	return out
}

func (s *NormalizedSpec) VideoSpec() VideoSpec {
	var out VideoSpec
	JSONInto(s.Video, &out)
	return out
}

func (s *NormalizedSpec) EvidenceRefList() []EvidenceRef {
	var out []EvidenceRef
	JSONInto(s.EvidenceRefs, &out)
	return out
}

func (s *NormalizedSpec) EvidenceSourceIDList() []uuid.UUID {
	var out []uuid.UUID
	JSONInto(s.EvidenceSourceIDs, &out)
	return out
}
