package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	InferenceStatusIdle          = "idle"
	InferenceStatusRunning       = "inference_running"
	InferenceStatusNeedsFollowup = "needs_followup"
	InferenceStatusReady         = "ready"
	InferenceStatusFailed        = "failed"
)

const (
	ConfidenceBandLow    = "low"
	ConfidenceBandMedium = "medium"
	ConfidenceBandHigh   = "high"
)

const (
	QuestionStatusPending  = "pending"
	QuestionStatusAnswered = "answered"
)

// Uncertainty categories, in follow-up priority order.
const (
	UncertaintyPower     = "power"
	UncertaintyData      = "data"
	UncertaintyVideo     = "video"
	UncertaintyConnector = "connector"
)

// InferenceDraft is the working cable description a workspace builds up.
// Numeric fields stay raw strings until the draft is promoted.
type InferenceDraft struct {
	ConnectorFrom string `json:"connectorFrom,omitempty"`
	ConnectorTo   string `json:"connectorTo,omitempty"`
	Watts         string `json:"watts,omitempty"`
	USBGeneration string `json:"usbGeneration,omitempty"`
	Gbps          string `json:"gbps,omitempty"`
	VideoSupport  string `json:"videoSupport,omitempty"`
	MaxResolution string `json:"maxResolution,omitempty"`
	MaxRefreshHz  string `json:"maxRefreshHz,omitempty"`
	DataOnly      bool   `json:"dataOnly"`
}

// DraftPatch is a partial draft update; nil fields are left untouched.
type DraftPatch struct {
	ConnectorFrom *string `json:"connectorFrom,omitempty"`
	ConnectorTo   *string `json:"connectorTo,omitempty"`
	Watts         *string `json:"watts,omitempty"`
	USBGeneration *string `json:"usbGeneration,omitempty"`
	Gbps          *string `json:"gbps,omitempty"`
	VideoSupport  *string `json:"videoSupport,omitempty"`
	MaxResolution *string `json:"maxResolution,omitempty"`
	MaxRefreshHz  *string `json:"maxRefreshHz,omitempty"`
	DataOnly      *bool   `json:"dataOnly,omitempty"`
}

// Apply copies the patch's set fields onto the draft.
func (d *InferenceDraft) Apply(p *DraftPatch) {
	if p == nil {
		return
	}
	if p.ConnectorFrom != nil {
		d.ConnectorFrom = *p.ConnectorFrom
	}
	if p.ConnectorTo != nil {
		d.ConnectorTo = *p.ConnectorTo
	}
	if p.Watts != nil {
		d.Watts = *p.Watts
	}
	if p.USBGeneration != nil {
		d.USBGeneration = *p.USBGeneration
	}
	if p.Gbps != nil {
		d.Gbps = *p.Gbps
	}
	if p.VideoSupport != nil {
		d.VideoSupport = *p.VideoSupport
	}
	if p.MaxResolution != nil {
		d.MaxResolution = *p.MaxResolution
	}
	if p.MaxRefreshHz != nil {
		d.MaxRefreshHz = *p.MaxRefreshHz
	}
	if p.DataOnly != nil {
		d.DataOnly = *p.DataOnly
	}
}

// FillFrom copies the patch's set fields onto the draft only where the draft
// field is still empty. DataOnly is filled only when the patch carries it and
// nothing deterministic already decided it.
func (d *InferenceDraft) FillFrom(p *DraftPatch, dataOnlyDecided bool) {
	if p == nil {
		return
	}
	if p.ConnectorFrom != nil && d.ConnectorFrom == "" {
		d.ConnectorFrom = *p.ConnectorFrom
	}
	if p.ConnectorTo != nil && d.ConnectorTo == "" {
		d.ConnectorTo = *p.ConnectorTo
	}
	if p.Watts != nil && d.Watts == "" {
		d.Watts = *p.Watts
	}
	if p.USBGeneration != nil && d.USBGeneration == "" {
		d.USBGeneration = *p.USBGeneration
	}
	if p.Gbps != nil && d.Gbps == "" {
		d.Gbps = *p.Gbps
	}
	if p.VideoSupport != nil && d.VideoSupport == "" {
		d.VideoSupport = *p.VideoSupport
	}
	if p.MaxResolution != nil && d.MaxResolution == "" {
		d.MaxResolution = *p.MaxResolution
	}
	if p.MaxRefreshHz != nil && d.MaxRefreshHz == "" {
		d.MaxRefreshHz = *p.MaxRefreshHz
	}
	if p.DataOnly != nil && !dataOnlyDecided {
		d.DataOnly = *p.DataOnly
	}
}

// FollowUpQuestion is a yes/no/skip prompt resolving one uncertainty
// category, with pre-baked patches per answer branch.
type FollowUpQuestion struct {
	ID          string      `json:"id"`
	Category    string      `json:"category"`
	Question    string      `json:"question"`
	Status      string      `json:"status"`
	ApplyIfYes  *DraftPatch `json:"applyIfYes,omitempty"`
	ApplyIfNo   *DraftPatch `json:"applyIfNo,omitempty"`
	ApplyIfSkip *DraftPatch `json:"applyIfSkip,omitempty"`
}

// InferenceSession is the per-workspace manual inference state. One row per
// normalized workspace id, lazily created.
type InferenceSession struct {
	ID                    uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID           string         `gorm:"column:workspace_id;not null;uniqueIndex:idx_manual_inference_session_workspace" json:"workspace_id"`
	Draft                 datatypes.JSON `gorm:"column:draft;type:jsonb" json:"draft"`
	Prompt                string         `gorm:"column:prompt" json:"prompt,omitempty"`
	Status                string         `gorm:"column:status;not null" json:"status"`
	Confidence            float64        `gorm:"column:confidence;not null" json:"confidence"`
	ConfidenceBand        string         `gorm:"column:confidence_band;not null" json:"confidence_band"`
	Notes                 datatypes.JSON `gorm:"column:notes;type:jsonb" json:"notes"`
	FollowUpQuestions     datatypes.JSON `gorm:"column:follow_up_questions;type:jsonb" json:"follow_up_questions"`
	AnsweredQuestionCount int            `gorm:"column:answered_question_count;not null" json:"answered_question_count"`
	LLMUsed               bool           `gorm:"column:llm_used;not null" json:"llm_used"`
	LastError             string         `gorm:"column:last_error" json:"last_error,omitempty"`
	CreatedAt             time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"not null" json:"updated_at"`
}

func (InferenceSession) TableName() string { return "manual_inference_session" }

func (s *InferenceSession) DraftValue() InferenceDraft {
	var out InferenceDraft
	JSONInto(s.Draft, &out)
	return out
}

func (s *InferenceSession) NoteList() []string { return StringsFrom(s.Notes) }

func (s *InferenceSession) QuestionList() []FollowUpQuestion {
	var out []FollowUpQuestion
	JSONInto(s.FollowUpQuestions, &out)
	return out
}

// NormalizeWorkspaceID is the session key rule: lower-case, trimmed.
func NormalizeWorkspaceID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ConfidenceBandFor discretizes a confidence value for UI presentation.
func ConfidenceBandFor(confidence float64) string {
	switch {
	case confidence < 0.55:
		return ConfidenceBandLow
	case confidence < 0.78:
		return ConfidenceBandMedium
	default:
		return ConfidenceBandHigh
	}
}

// ClampConfidence keeps every stored confidence inside [0, 0.99].
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 0.99 {
		return 0.99
	}
	return v
}
