package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	QualityStateReady           = "ready"
	QualityStateNeedsEnrichment = "needs_enrichment"
)

// CableVariant is one purchasable cable (brand/model/variant/sku/connector
// pair). Rows are shared across specs and workflows; the image URL set only
// grows, and quality is recomputed on every upsert.
type CableVariant struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Brand            string         `gorm:"column:brand;not null;index:idx_cable_variant_brand_model,priority:1;index:idx_cable_variant_brand_sku,priority:1" json:"brand"`
	Model            string         `gorm:"column:model;not null;index:idx_cable_variant_brand_model,priority:2" json:"model"`
	Variant          string         `gorm:"column:variant" json:"variant,omitempty"`
	SKU              string         `gorm:"column:sku;index:idx_cable_variant_brand_sku,priority:2" json:"sku,omitempty"`
	ConnectorFrom    string         `gorm:"column:connector_from;not null;index:idx_cable_variant_connector_pair,priority:1" json:"connector_from"`
	ConnectorTo      string         `gorm:"column:connector_to;not null;index:idx_cable_variant_connector_pair,priority:2" json:"connector_to"`
	ProductURL       string         `gorm:"column:product_url" json:"product_url,omitempty"`
	ImageURLs        datatypes.JSON `gorm:"column:image_urls;type:jsonb" json:"image_urls"`
	QualityState     string         `gorm:"column:quality_state;not null" json:"quality_state"`
	QualityIssues    datatypes.JSON `gorm:"column:quality_issues;type:jsonb" json:"quality_issues"`
	QualityUpdatedAt time.Time      `gorm:"column:quality_updated_at" json:"quality_updated_at"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
}

func (CableVariant) TableName() string { return "cable_variant" }

func (v *CableVariant) ImageURLList() []string     { return StringsFrom(v.ImageURLs) }
func (v *CableVariant) QualityIssueList() []string { return StringsFrom(v.QualityIssues) }
