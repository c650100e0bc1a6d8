package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/shpitdev/cable-intel/internal/apierr"
	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/repos"
	"github.com/shpitdev/cable-intel/internal/types"
)

const followupConfidenceCeiling = 0.78

// InferenceDefaults is the static contract handed to clients: empty draft,
// band thresholds, category priority.
type InferenceDefaults struct {
	Draft            types.InferenceDraft `json:"draft"`
	Bands            map[string]float64   `json:"bands"`
	CategoryPriority []string             `json:"categoryPriority"`
}

// InferenceStatus is the compact session summary.
type InferenceStatus struct {
	WorkspaceID      string  `json:"workspaceId"`
	Status           string  `json:"status"`
	Confidence       float64 `json:"confidence"`
	ConfidenceBand   string  `json:"confidenceBand"`
	PendingQuestions int     `json:"pendingQuestions"`
	LLMUsed          bool    `json:"llmUsed"`
}

// InferenceService runs the manual-entry inference pipeline per workspace.
type InferenceService interface {
	EnsureSession(ctx context.Context, workspaceID string) (*types.InferenceSession, error)
	GetSession(ctx context.Context, workspaceID string) (*types.InferenceSession, error)
	Status(ctx context.Context, workspaceID string) (*InferenceStatus, error)
	// RunPrompt executes the deterministic pass, then the model pass, merges
	// both and generates follow-up questions.
	RunPrompt(ctx context.Context, workspaceID, prompt string) (*types.InferenceSession, error)
	// UpdateDraft applies a manual field patch without touching confidence.
	UpdateDraft(ctx context.Context, workspaceID string, patch *types.DraftPatch) (*types.InferenceSession, error)
	AnswerQuestion(ctx context.Context, workspaceID, questionID, answer string) (*types.InferenceSession, error)
	Reset(ctx context.Context, workspaceID string) (*types.InferenceSession, error)
	Defaults() InferenceDefaults
}

type inferenceService struct {
	log         *logger.Logger
	sessionRepo repos.InferenceSessionRepo
	llm         LLMInferencer
}

func NewInferenceService(baseLog *logger.Logger, sessionRepo repos.InferenceSessionRepo, llm LLMInferencer) InferenceService {
	return &inferenceService{
		log:         baseLog.With("service", "InferenceService"),
		sessionRepo: sessionRepo,
		llm:         llm,
	}
}

func (s *inferenceService) Defaults() InferenceDefaults {
	return InferenceDefaults{
		Draft: types.InferenceDraft{},
		Bands: map[string]float64{
			types.ConfidenceBandLow:    0.55,
			types.ConfidenceBandMedium: 0.78,
		},
		CategoryPriority: []string{
			types.UncertaintyPower,
			types.UncertaintyData,
			types.UncertaintyVideo,
			types.UncertaintyConnector,
		},
	}
}

func (s *inferenceService) EnsureSession(ctx context.Context, workspaceID string) (*types.InferenceSession, error) {
	ws := types.NormalizeWorkspaceID(workspaceID)
	if ws == "" {
		return nil, apierr.Newf(apierr.KindValidation, "workspace id is required")
	}
	session, err := s.sessionRepo.EnsureByWorkspace(ctx, nil, &types.InferenceSession{
		WorkspaceID:    ws,
		Status:         types.InferenceStatusIdle,
		ConfidenceBand: types.ConfidenceBandLow,
		Draft:          types.JSONFrom(types.InferenceDraft{}),
	})
	if err != nil {
		return nil, apierr.New(apierr.KindPersistence, err)
	}
	return session, nil
}

func (s *inferenceService) GetSession(ctx context.Context, workspaceID string) (*types.InferenceSession, error) {
	session, err := s.sessionRepo.GetByWorkspace(ctx, nil, types.NormalizeWorkspaceID(workspaceID))
	if err != nil {
		return nil, apierr.New(apierr.KindPersistence, err)
	}
	if session == nil {
		return nil, apierr.Newf(apierr.KindNotFound, "no inference session for workspace %q", workspaceID)
	}
	return session, nil
}

func (s *inferenceService) Status(ctx context.Context, workspaceID string) (*InferenceStatus, error) {
	session, err := s.GetSession(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	pending := 0
	for _, q := range session.QuestionList() {
		if q.Status == types.QuestionStatusPending {
			pending++
		}
	}
	return &InferenceStatus{
		WorkspaceID:      session.WorkspaceID,
		Status:           session.Status,
		Confidence:       session.Confidence,
		ConfidenceBand:   session.ConfidenceBand,
		PendingQuestions: pending,
		LLMUsed:          session.LLMUsed,
	}, nil
}

func (s *inferenceService) RunPrompt(ctx context.Context, workspaceID, prompt string) (*types.InferenceSession, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, apierr.Newf(apierr.KindValidation, "prompt must not be empty")
	}
	session, err := s.EnsureSession(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	if err := s.sessionRepo.UpdateFields(ctx, nil, session.ID, map[string]interface{}{
		"status": types.InferenceStatusRunning,
		"prompt": prompt,
	}); err != nil {
		return nil, apierr.New(apierr.KindPersistence, err)
	}

	det := RunDeterministicInference(prompt)

	llmRes, llmErr := s.runLLM(ctx, prompt)
	if llmErr != nil {
		_ = s.sessionRepo.UpdateFields(ctx, nil, session.ID, map[string]interface{}{
			"status":     types.InferenceStatusFailed,
			"last_error": llmErr.Error(),
		})
		return nil, llmErr
	}

	draft, confidence, uncertainties, notes, llmUsed := mergeInference(det, llmRes)
	questions := buildFollowUps(&draft, uncertainties)

	status := types.InferenceStatusReady
	if len(questions) > 0 && confidence < followupConfidenceCeiling {
		status = types.InferenceStatusNeedsFollowup
	}

	updates := map[string]interface{}{
		"draft":                   types.JSONFrom(draft),
		"status":                  status,
		"confidence":              confidence,
		"confidence_band":         types.ConfidenceBandFor(confidence),
		"notes":                   types.JSONFrom(notes),
		"follow_up_questions":     types.JSONFrom(questions),
		"answered_question_count": 0,
		"llm_used":                llmUsed,
		"last_error":              "",
	}
	if err := s.sessionRepo.UpdateFields(ctx, nil, session.ID, updates); err != nil {
		return nil, apierr.New(apierr.KindPersistence, err)
	}
	return s.GetSession(ctx, workspaceID)
}

// runLLM tolerates a missing model client (deterministic-only deployments)
// but propagates real model failures.
func (s *inferenceService) runLLM(ctx context.Context, prompt string) (*LLMInferenceResult, error) {
	if s.llm == nil {
		return nil, nil
	}
	return s.llm.Infer(ctx, prompt)
}

// mergeInference combines both passes: deterministic fields win, the model
// fills gaps, confidence is 0.35/0.65 weighted, uncertainties are unioned.
func mergeInference(det DeterministicResult, llm *LLMInferenceResult) (types.InferenceDraft, float64, []string, []string, bool) {
	draft := det.Draft
	notes := append([]string(nil), det.Notes...)

	if llm == nil {
		return draft, det.Confidence, det.Uncertainties, notes, false
	}

	draft.FillFrom(llm.Patch, det.DataOnlyDecided)
	notes = append(notes, llm.Notes...)

	seen := map[string]bool{}
	for _, cat := range det.Uncertainties {
		seen[cat] = true
	}
	for _, cat := range llm.Uncertainties {
		seen[cat] = true
	}
	// The union keeps the fixed priority order.
	var ordered []string
	for _, cat := range []string{
		types.UncertaintyPower,
		types.UncertaintyData,
		types.UncertaintyVideo,
		types.UncertaintyConnector,
	} {
		if seen[cat] {
			ordered = append(ordered, cat)
		}
	}

	confidence := types.ClampConfidence(0.35*det.Confidence + 0.65*llm.Confidence)
	return draft, confidence, ordered, notes, true
}

// buildFollowUps generates at most three yes/no/skip questions for the open
// uncertainty categories, in priority order, skipping already-filled fields.
func buildFollowUps(draft *types.InferenceDraft, uncertainties []string) []types.FollowUpQuestion {
	var out []types.FollowUpQuestion
	for _, cat := range uncertainties {
		if len(out) >= 3 {
			break
		}
		q := followUpFor(cat, draft)
		if q != nil {
			out = append(out, *q)
		}
	}
	return out
}

func followUpFor(category string, draft *types.InferenceDraft) *types.FollowUpQuestion {
	strPtrOf := func(s string) *string { return &s }
	boolPtrOf := func(b bool) *bool { return &b }

	switch category {
	case types.UncertaintyPower:
		if draft.Watts != "" {
			return nil
		}
		return &types.FollowUpQuestion{
			ID:       uuid.NewString(),
			Category: category,
			Question: "Is the cable advertised for fast charging (60W or more)?",
			Status:   types.QuestionStatusPending,
			ApplyIfYes: &types.DraftPatch{
				Watts:    strPtrOf("60"),
				DataOnly: boolPtrOf(false),
			},
			ApplyIfNo:   &types.DraftPatch{Watts: strPtrOf("15")},
			ApplyIfSkip: &types.DraftPatch{},
		}
	case types.UncertaintyData:
		if draft.Gbps != "" {
			return nil
		}
		return &types.FollowUpQuestion{
			ID:       uuid.NewString(),
			Category: category,
			Question: "Is the cable advertised for high-speed data transfer (10 Gbps or more)?",
			Status:   types.QuestionStatusPending,
			ApplyIfYes: &types.DraftPatch{
				Gbps: strPtrOf("10"),
			},
			ApplyIfNo: &types.DraftPatch{
				Gbps:          strPtrOf("0.48"),
				USBGeneration: strPtrOf("USB 2.0"),
			},
			ApplyIfSkip: &types.DraftPatch{},
		}
	case types.UncertaintyVideo:
		if draft.VideoSupport != "" {
			return nil
		}
		return &types.FollowUpQuestion{
			ID:          uuid.NewString(),
			Category:    category,
			Question:    "Does the cable mention video output (connecting a monitor or display)?",
			Status:      types.QuestionStatusPending,
			ApplyIfYes:  &types.DraftPatch{VideoSupport: strPtrOf("yes")},
			ApplyIfNo:   &types.DraftPatch{VideoSupport: strPtrOf("no")},
			ApplyIfSkip: &types.DraftPatch{},
		}
	case types.UncertaintyConnector:
		if draft.ConnectorFrom != "" && draft.ConnectorTo != "" {
			return nil
		}
		return &types.FollowUpQuestion{
			ID:       uuid.NewString(),
			Category: category,
			Question: "Are both ends of the cable USB-C?",
			Status:   types.QuestionStatusPending,
			ApplyIfYes: &types.DraftPatch{
				ConnectorFrom: strPtrOf("USB-C"),
				ConnectorTo:   strPtrOf("USB-C"),
			},
			// "No" tells us only what the cable is not, so the ends stay open.
			ApplyIfNo:   &types.DraftPatch{},
			ApplyIfSkip: &types.DraftPatch{},
		}
	}
	return nil
}

func (s *inferenceService) UpdateDraft(ctx context.Context, workspaceID string, patch *types.DraftPatch) (*types.InferenceSession, error) {
	if patch == nil {
		return nil, apierr.Newf(apierr.KindValidation, "draft patch is required")
	}
	session, err := s.GetSession(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	draft := session.DraftValue()
	draft.Apply(patch)
	if err := s.sessionRepo.UpdateFields(ctx, nil, session.ID, map[string]interface{}{
		"draft": types.JSONFrom(draft),
	}); err != nil {
		return nil, apierr.New(apierr.KindPersistence, err)
	}
	return s.GetSession(ctx, workspaceID)
}

const (
	AnswerYes  = "yes"
	AnswerNo   = "no"
	AnswerSkip = "skip"
)

func (s *inferenceService) AnswerQuestion(ctx context.Context, workspaceID, questionID, answer string) (*types.InferenceSession, error) {
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer != AnswerYes && answer != AnswerNo && answer != AnswerSkip {
		return nil, apierr.Newf(apierr.KindValidation, "answer must be yes, no or skip")
	}

	session, err := s.GetSession(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	questions := session.QuestionList()
	idx := -1
	for i, q := range questions {
		if q.ID == questionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, apierr.Newf(apierr.KindNotFound, "question %q not found", questionID)
	}
	if questions[idx].Status == types.QuestionStatusAnswered {
		return nil, apierr.Newf(apierr.KindValidation, "question %q is already answered", questionID)
	}

	draft := session.DraftValue()
	var patch *types.DraftPatch
	delta := 0.03
	switch answer {
	case AnswerYes:
		patch = questions[idx].ApplyIfYes
		delta = 0.08
	case AnswerNo:
		patch = questions[idx].ApplyIfNo
		delta = 0.08
	case AnswerSkip:
		patch = questions[idx].ApplyIfSkip
	}
	draft.Apply(patch)
	questions[idx].Status = types.QuestionStatusAnswered

	confidence := types.ClampConfidence(session.Confidence + delta)

	pending := 0
	for _, q := range questions {
		if q.Status == types.QuestionStatusPending {
			pending++
		}
	}
	status := types.InferenceStatusReady
	if pending > 0 && confidence < followupConfidenceCeiling {
		status = types.InferenceStatusNeedsFollowup
	}

	if err := s.sessionRepo.UpdateFields(ctx, nil, session.ID, map[string]interface{}{
		"draft":                   types.JSONFrom(draft),
		"follow_up_questions":     types.JSONFrom(questions),
		"answered_question_count": session.AnsweredQuestionCount + 1,
		"confidence":              confidence,
		"confidence_band":         types.ConfidenceBandFor(confidence),
		"status":                  status,
	}); err != nil {
		return nil, apierr.New(apierr.KindPersistence, err)
	}
	return s.GetSession(ctx, workspaceID)
}

func (s *inferenceService) Reset(ctx context.Context, workspaceID string) (*types.InferenceSession, error) {
	session, err := s.EnsureSession(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.UpdateFields(ctx, nil, session.ID, map[string]interface{}{
		"draft":                   types.JSONFrom(types.InferenceDraft{}),
		"prompt":                  "",
		"status":                  types.InferenceStatusIdle,
		"confidence":              0.0,
		"confidence_band":         types.ConfidenceBandLow,
		"notes":                   types.JSONFrom([]string{}),
		"follow_up_questions":     types.JSONFrom([]types.FollowUpQuestion{}),
		"answered_question_count": 0,
		"llm_used":                false,
		"last_error":              "",
	}); err != nil {
		return nil, apierr.New(apierr.KindPersistence, err)
	}
	return s.GetSession(ctx, workspaceID)
}
