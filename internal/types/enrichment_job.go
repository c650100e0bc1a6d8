package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	EnrichmentJobStatusPending    = "pending"
	EnrichmentJobStatusInProgress = "in_progress"
	EnrichmentJobStatusCompleted  = "completed"
	EnrichmentJobStatusFailed     = "failed"
)

// EnrichmentJob asks for a variant to be re-ingested until it reaches the
// ready quality state. At most one open (pending or in_progress) job may
// exist per variant; AttemptCount is cumulative across reopenings.
type EnrichmentJob struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	VariantID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_enrichment_job_variant;index:idx_enrichment_job_variant_status,priority:1" json:"variant_id"`
	WorkflowID   uuid.UUID  `gorm:"type:uuid;not null" json:"workflow_id"`
	Status       string     `gorm:"column:status;not null;index:idx_enrichment_job_variant_status,priority:2" json:"status"`
	Reason       string     `gorm:"column:reason" json:"reason,omitempty"`
	AttemptCount int        `gorm:"column:attempt_count;not null" json:"attempt_count"`
	LastError    string     `gorm:"column:last_error" json:"last_error,omitempty"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`
}

func (EnrichmentJob) TableName() string { return "enrichment_job" }

func EnrichmentJobOpen(status string) bool {
	return status == EnrichmentJobStatusPending || status == EnrichmentJobStatusInProgress
}
