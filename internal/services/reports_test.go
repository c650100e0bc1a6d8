package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shpitdev/cable-intel/internal/apierr"
	"github.com/shpitdev/cable-intel/internal/repos"
	"github.com/shpitdev/cable-intel/internal/types"
)

func TestWorkflowReportCablesAndFailures(t *testing.T) {
	gdb := newTestDB(t)
	log := newTestLogger(t)
	workflows := repos.NewWorkflowRepo(gdb, log)
	items := repos.NewWorkflowItemRepo(gdb, log)
	specs := repos.NewNormalizedSpecRepo(gdb, log)
	variants := repos.NewCableVariantRepo(gdb, log)
	svc := NewReportService(log, workflows, items, specs, variants)
	ctx := context.Background()

	wf, err := workflows.Create(ctx, nil, &types.Workflow{
		Status:         types.WorkflowStatusCompleted,
		StartedAt:      time.Now().UTC(),
		TotalItems:     2,
		CompletedItems: 1,
		FailedItems:    1,
	})
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	if _, err := items.CreateBatch(ctx, nil, []*types.WorkflowItem{
		{WorkflowID: wf.ID, URL: "https://a.example.com/1", CanonicalURL: "https://a.example.com/1", Status: types.WorkflowItemStatusCompleted},
		{WorkflowID: wf.ID, URL: "https://a.example.com/2", CanonicalURL: "https://a.example.com/2", Status: types.WorkflowItemStatusFailed, LastError: "fetch timed out"},
	}); err != nil {
		t.Fatalf("create items: %v", err)
	}

	v, err := variants.Create(ctx, nil, &types.CableVariant{
		Brand:         "Anker",
		Model:         "765 Cable",
		SKU:           "A1",
		ConnectorFrom: "USB-C",
		ConnectorTo:   "USB-C",
		QualityState:  types.QualityStateReady,
	})
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}
	watts := 240.0
	if _, err := specs.Insert(ctx, nil, &types.NormalizedSpec{
		WorkflowID: wf.ID,
		VariantID:  v.ID,
		Power:      types.JSONFrom(types.PowerSpec{}),
	}); err != nil {
		t.Fatalf("insert spec: %v", err)
	}
	rich, err := specs.Insert(ctx, nil, &types.NormalizedSpec{
		WorkflowID: wf.ID,
		VariantID:  v.ID,
		Power:      types.JSONFrom(types.PowerSpec{MaxWatts: &watts}),
	})
	if err != nil {
		t.Fatalf("insert spec: %v", err)
	}

	report, err := svc.GetWorkflowReport(ctx, wf.ID, 0)
	if err != nil {
		t.Fatalf("GetWorkflowReport: %v", err)
	}
	if report.Workflow.ID != wf.ID {
		t.Fatalf("workflow = %s, want %s", report.Workflow.ID, wf.ID)
	}
	if len(report.Cables) != 1 {
		t.Fatalf("cables = %d, want both specs collapsed to one", len(report.Cables))
	}
	if report.Cables[0].SpecID != rich.ID {
		t.Fatalf("cable spec = %s, want the higher-scoring spec %s", report.Cables[0].SpecID, rich.ID)
	}
	if report.Cables[0].CompletenessScore != 5 {
		t.Fatalf("score = %d, want 5 for wattage alone", report.Cables[0].CompletenessScore)
	}
	if len(report.FailedItems) != 1 || report.FailedItems[0].URL != "https://a.example.com/2" {
		t.Fatalf("failed items = %+v, want only the failed URL", report.FailedItems)
	}

	latest, err := svc.GetLatestWorkflowReport(ctx, 0)
	if err != nil {
		t.Fatalf("GetLatestWorkflowReport: %v", err)
	}
	if latest.Workflow.ID != wf.ID {
		t.Fatalf("latest = %s, want %s", latest.Workflow.ID, wf.ID)
	}
}

func TestWorkflowReportLimitsCables(t *testing.T) {
	gdb := newTestDB(t)
	log := newTestLogger(t)
	workflows := repos.NewWorkflowRepo(gdb, log)
	items := repos.NewWorkflowItemRepo(gdb, log)
	specs := repos.NewNormalizedSpecRepo(gdb, log)
	variants := repos.NewCableVariantRepo(gdb, log)
	svc := NewReportService(log, workflows, items, specs, variants)
	ctx := context.Background()

	wf, err := workflows.Create(ctx, nil, &types.Workflow{
		Status:    types.WorkflowStatusCompleted,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	for _, sku := range []string{"A1", "A2", "A3"} {
		v, err := variants.Create(ctx, nil, &types.CableVariant{
			Brand:         "Anker",
			Model:         "Cable " + sku,
			SKU:           sku,
			ConnectorFrom: "USB-C",
			ConnectorTo:   "USB-C",
			QualityState:  types.QualityStateReady,
		})
		if err != nil {
			t.Fatalf("create variant: %v", err)
		}
		if _, err := specs.Insert(ctx, nil, &types.NormalizedSpec{
			WorkflowID: wf.ID,
			VariantID:  v.ID,
		}); err != nil {
			t.Fatalf("insert spec: %v", err)
		}
	}

	report, err := svc.GetWorkflowReport(ctx, wf.ID, 2)
	if err != nil {
		t.Fatalf("GetWorkflowReport: %v", err)
	}
	if len(report.Cables) != 2 {
		t.Fatalf("cables = %d, want the limit honored", len(report.Cables))
	}
}

func TestWorkflowReportNotFound(t *testing.T) {
	gdb := newTestDB(t)
	log := newTestLogger(t)
	svc := NewReportService(log,
		repos.NewWorkflowRepo(gdb, log),
		repos.NewWorkflowItemRepo(gdb, log),
		repos.NewNormalizedSpecRepo(gdb, log),
		repos.NewCableVariantRepo(gdb, log),
	)
	ctx := context.Background()

	if _, err := svc.GetWorkflowReport(ctx, uuid.New(), 0); apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("err = %v, want not_found", err)
	}
	if _, err := svc.GetLatestWorkflowReport(ctx, 0); apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("err = %v, want not_found on an empty database", err)
	}
}
