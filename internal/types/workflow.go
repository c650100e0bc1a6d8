package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	WorkflowStatusRunning   = "running"
	WorkflowStatusCompleted = "completed"
	WorkflowStatusFailed    = "failed"
)

const (
	WorkflowItemStatusPending    = "pending"
	WorkflowItemStatusInProgress = "in_progress"
	WorkflowItemStatusCompleted  = "completed"
	WorkflowItemStatusFailed     = "failed"
)

// Workflow is one seed-ingest run. Finalized exactly once after every item
// reaches a terminal status.
type Workflow struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Status         string         `gorm:"column:status;not null;index:idx_ingest_workflow_status" json:"status"`
	AllowedDomains datatypes.JSON `gorm:"column:allowed_domains;type:jsonb" json:"allowed_domains"`
	SeedURLs       datatypes.JSON `gorm:"column:seed_urls;type:jsonb" json:"seed_urls"`
	StartedAt      time.Time      `gorm:"column:started_at;not null;index:idx_ingest_workflow_started_at" json:"started_at"`
	FinishedAt     *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	TotalItems     int            `gorm:"column:total_items;not null" json:"total_items"`
	CompletedItems int            `gorm:"column:completed_items;not null" json:"completed_items"`
	FailedItems    int            `gorm:"column:failed_items;not null" json:"failed_items"`
	LastError      string         `gorm:"column:last_error" json:"last_error,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (Workflow) TableName() string { return "ingest_workflow" }

// WorkflowItem tracks a single seed URL inside a workflow. Status transitions
// are monotonic except pending->in_progress, which repeats once per retry.
type WorkflowItem struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	WorkflowID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_ingest_workflow_item_workflow;index:idx_ingest_workflow_item_workflow_status,priority:1" json:"workflow_id"`
	URL              string     `gorm:"column:url;not null" json:"url"`
	CanonicalURL     string     `gorm:"column:canonical_url;not null" json:"canonical_url"`
	Status           string     `gorm:"column:status;not null;index:idx_ingest_workflow_item_workflow_status,priority:2" json:"status"`
	AttemptCount     int        `gorm:"column:attempt_count;not null" json:"attempt_count"`
	EvidenceSourceID *uuid.UUID `gorm:"type:uuid;column:evidence_source_id" json:"evidence_source_id,omitempty"`
	NormalizedSpecID *uuid.UUID `gorm:"type:uuid;column:normalized_spec_id" json:"normalized_spec_id,omitempty"`
	LastError        string     `gorm:"column:last_error" json:"last_error,omitempty"`
	CreatedAt        time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"not null" json:"updated_at"`
}

func (WorkflowItem) TableName() string { return "ingest_workflow_item" }
