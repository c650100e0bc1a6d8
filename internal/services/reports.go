package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/shpitdev/cable-intel/internal/apierr"
	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/repos"
	"github.com/shpitdev/cable-intel/internal/types"
)

// WorkflowReport is the observable outcome of one ingest run: the workflow
// row, the cables it produced (best spec per variant) and the items that
// never completed.
type WorkflowReport struct {
	Workflow    *types.Workflow       `json:"workflow"`
	Cables      []CableSummary        `json:"cables"`
	FailedItems []*types.WorkflowItem `json:"failedItems"`
}

type ReportService interface {
	// GetWorkflowReport hydrates the run's cables; limit <= 0 returns all.
	GetWorkflowReport(ctx context.Context, workflowID uuid.UUID, limit int) (*WorkflowReport, error)
	GetLatestWorkflowReport(ctx context.Context, limit int) (*WorkflowReport, error)
}

type reportService struct {
	log          *logger.Logger
	workflowRepo repos.WorkflowRepo
	itemRepo     repos.WorkflowItemRepo
	specRepo     repos.NormalizedSpecRepo
	variantRepo  repos.CableVariantRepo
}

func NewReportService(
	baseLog *logger.Logger,
	workflowRepo repos.WorkflowRepo,
	itemRepo repos.WorkflowItemRepo,
	specRepo repos.NormalizedSpecRepo,
	variantRepo repos.CableVariantRepo,
) ReportService {
	return &reportService{
		log:          baseLog.With("service", "ReportService"),
		workflowRepo: workflowRepo,
		itemRepo:     itemRepo,
		specRepo:     specRepo,
		variantRepo:  variantRepo,
	}
}

func (s *reportService) GetWorkflowReport(ctx context.Context, workflowID uuid.UUID, limit int) (*WorkflowReport, error) {
	wf, err := s.workflowRepo.GetByID(ctx, nil, workflowID)
	if err != nil {
		return nil, apierr.New(apierr.KindPersistence, err)
	}
	if wf == nil {
		return nil, apierr.Newf(apierr.KindNotFound, "workflow %s not found", workflowID)
	}
	return s.buildReport(ctx, wf, limit)
}

func (s *reportService) GetLatestWorkflowReport(ctx context.Context, limit int) (*WorkflowReport, error) {
	wf, err := s.workflowRepo.GetLatest(ctx, nil)
	if err != nil {
		return nil, apierr.New(apierr.KindPersistence, err)
	}
	if wf == nil {
		return nil, apierr.Newf(apierr.KindNotFound, "no workflows have run yet")
	}
	return s.buildReport(ctx, wf, limit)
}

func (s *reportService) buildReport(ctx context.Context, wf *types.Workflow, limit int) (*WorkflowReport, error) {
	items, err := s.itemRepo.ListByWorkflow(ctx, nil, wf.ID)
	if err != nil {
		return nil, apierr.New(apierr.KindPersistence, err)
	}
	failed := make([]*types.WorkflowItem, 0)
	for _, item := range items {
		if item.Status == types.WorkflowItemStatusFailed {
			failed = append(failed, item)
		}
	}

	specs, err := s.specRepo.ListByWorkflow(ctx, nil, wf.ID)
	if err != nil {
		return nil, apierr.New(apierr.KindPersistence, err)
	}

	type best struct {
		spec  *types.NormalizedSpec
		score int
	}
	bestByVariant := map[uuid.UUID]best{}
	var variantOrder []uuid.UUID
	for _, spec := range specs {
		score := CompletenessScore(spec.PowerSpec(), spec.DataSpec(), spec.VideoSpec(), len(spec.EvidenceRefList()) > 0)
		cur, ok := bestByVariant[spec.VariantID]
		if !ok {
			variantOrder = append(variantOrder, spec.VariantID)
		}
		if !ok || score > cur.score || (score == cur.score && spec.CreatedAt.After(cur.spec.CreatedAt)) {
			bestByVariant[spec.VariantID] = best{spec: spec, score: score}
		}
	}

	variants, err := s.variantRepo.GetByIDs(ctx, nil, variantOrder)
	if err != nil {
		return nil, apierr.New(apierr.KindPersistence, err)
	}
	variantByID := make(map[uuid.UUID]*types.CableVariant, len(variants))
	for _, v := range variants {
		variantByID[v.ID] = v
	}

	cables := make([]CableSummary, 0, len(variantOrder))
	for _, vid := range variantOrder {
		v, ok := variantByID[vid]
		if !ok {
			continue
		}
		b := bestByVariant[vid]
		cables = append(cables, summarizeCable(v, b.spec, b.score))
		if limit > 0 && len(cables) >= limit {
			break
		}
	}

	return &WorkflowReport{
		Workflow:    wf,
		Cables:      cables,
		FailedItems: failed,
	}, nil
}
