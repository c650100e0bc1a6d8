package services

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shpitdev/cable-intel/internal/ingestion"
	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/repos"
	"github.com/shpitdev/cable-intel/internal/types"
)

// CatalogService owns the variant dedupe/merge path: every successful
// extraction lands here and produces exactly one spec row plus an upserted
// variant with recomputed quality.
type CatalogService interface {
	// UpsertVariantAndInsertSpec merges one parsed cable into the catalog.
	// Everything happens in a single transaction: variant upsert, quality
	// recompute, spec insert and enrichment queue side effects.
	UpsertVariantAndInsertSpec(ctx context.Context, workflowID uuid.UUID, cable *ingestion.ParsedCable, evidenceSourceID uuid.UUID) (*types.CableVariant, *types.NormalizedSpec, error)
}

type catalogService struct {
	db             *gorm.DB
	log            *logger.Logger
	variantRepo    repos.CableVariantRepo
	specRepo       repos.NormalizedSpecRepo
	enrichmentRepo repos.EnrichmentJobRepo
}

func NewCatalogService(
	db *gorm.DB,
	baseLog *logger.Logger,
	variantRepo repos.CableVariantRepo,
	specRepo repos.NormalizedSpecRepo,
	enrichmentRepo repos.EnrichmentJobRepo,
) CatalogService {
	return &catalogService{
		db:             db,
		log:            baseLog.With("service", "CatalogService"),
		variantRepo:    variantRepo,
		specRepo:       specRepo,
		enrichmentRepo: enrichmentRepo,
	}
}

func (s *catalogService) UpsertVariantAndInsertSpec(ctx context.Context, workflowID uuid.UUID, cable *ingestion.ParsedCable, evidenceSourceID uuid.UUID) (*types.CableVariant, *types.NormalizedSpec, error) {
	var variant *types.CableVariant
	var spec *types.NormalizedSpec

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.matchExisting(ctx, tx, cable)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if existing == nil {
			variant = &types.CableVariant{
				Brand:         cable.Brand,
				Model:         cable.Model,
				Variant:       cable.Variant,
				SKU:           cable.SKU,
				ConnectorFrom: cable.ConnectorFrom,
				ConnectorTo:   cable.ConnectorTo,
				ProductURL:    cable.ProductURL,
				ImageURLs:     types.JSONFrom(dedupeStrings(cable.ImageURLs)),
			}
			q := AssessQuality(variant, cable)
			variant.QualityState = q.State
			variant.QualityIssues = types.JSONFrom(q.Issues)
			variant.QualityUpdatedAt = now
			if variant, err = s.variantRepo.Create(ctx, tx, variant); err != nil {
				return err
			}
		} else {
			updates := s.mergeUpdates(existing, cable, now)
			if err := s.variantRepo.UpdateFields(ctx, tx, existing.ID, updates); err != nil {
				return err
			}
			if variant, err = s.variantRepo.GetByID(ctx, tx, existing.ID); err != nil {
				return err
			}
		}

		spec = &types.NormalizedSpec{
			WorkflowID:        workflowID,
			VariantID:         variant.ID,
			EvidenceSourceIDs: types.JSONFrom([]uuid.UUID{evidenceSourceID}),
			Power:             types.JSONFrom(cable.Power),
			Data:              types.JSONFrom(cable.Data),
			Video:             types.JSONFrom(cable.Video),
			EvidenceRefs:      types.JSONFrom(evidenceRefs(cable, evidenceSourceID)),
		}
		if spec, err = s.specRepo.Insert(ctx, tx, spec); err != nil {
			return err
		}

		return s.applyEnrichmentSideEffects(ctx, tx, workflowID, variant, now)
	})
	if err != nil {
		return nil, nil, err
	}
	return variant, spec, nil
}

// matchExisting looks for the merge target: exact (brand, sku, connector
// pair) first, then (brand, model) rows with equal variant label, sku and
// connector pair.
func (s *catalogService) matchExisting(ctx context.Context, tx *gorm.DB, cable *ingestion.ParsedCable) (*types.CableVariant, error) {
	if cable.SKU != "" {
		hit, err := s.variantRepo.FindNewestBySKU(ctx, tx, cable.Brand, cable.SKU, cable.ConnectorFrom, cable.ConnectorTo)
		if err != nil {
			return nil, err
		}
		if hit != nil {
			return hit, nil
		}
	}
	rows, err := s.variantRepo.ListByBrandModel(ctx, tx, cable.Brand, cable.Model)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Variant == cable.Variant &&
			row.SKU == cable.SKU &&
			row.ConnectorFrom == cable.ConnectorFrom &&
			row.ConnectorTo == cable.ConnectorTo {
			return row, nil
		}
	}
	return nil, nil
}

var modelLengthToken = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:ft|feet|m|meter|meters)\b`)

// mergeUpdates folds the incoming cable into an existing variant row. Image
// URLs are a set union (never shrink), identity fields prefer the richer
// value, and quality is recomputed on the merged shape.
func (s *catalogService) mergeUpdates(existing *types.CableVariant, cable *ingestion.ParsedCable, now time.Time) map[string]interface{} {
	merged := *existing

	merged.Model = preferModel(existing.Model, cable.Model)
	if existing.SKU == "" && cable.SKU != "" {
		merged.SKU = cable.SKU
	}
	if existing.ProductURL == "" && cable.ProductURL != "" {
		merged.ProductURL = cable.ProductURL
	}
	merged.Variant = preferVariantLabel(existing.Variant, cable.Variant, merged.SKU)
	images := dedupeStrings(append(existing.ImageURLList(), cable.ImageURLs...))

	merged.ImageURLs = types.JSONFrom(images)
	q := AssessQuality(&merged, cable)

	return map[string]interface{}{
		"model":              merged.Model,
		"variant":            merged.Variant,
		"sku":                merged.SKU,
		"product_url":        merged.ProductURL,
		"image_urls":         types.JSONFrom(images),
		"quality_state":      q.State,
		"quality_issues":     types.JSONFrom(q.Issues),
		"quality_updated_at": now,
	}
}

// preferVariantLabel keeps the more descriptive variant label. A label is a
// placeholder when it is empty or merely repeats the SKU (the single-variant
// fallback); a descriptive label beats a placeholder, otherwise longer wins.
func preferVariantLabel(existing, incoming, sku string) string {
	existing = strings.TrimSpace(existing)
	incoming = strings.TrimSpace(incoming)
	placeholder := func(s string) bool {
		return s == "" || (sku != "" && strings.EqualFold(s, sku))
	}
	exPH, inPH := placeholder(existing), placeholder(incoming)
	if exPH != inPH {
		if exPH {
			return incoming
		}
		return existing
	}
	if len(incoming) > len(existing) {
		return incoming
	}
	return existing
}

// preferModel keeps the cleaner model name: a name without a length token
// beats one with it, longer otherwise. Existing wins ties.
func preferModel(existing, incoming string) string {
	existing = strings.TrimSpace(existing)
	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return existing
	}
	if existing == "" {
		return incoming
	}
	exHasLen := modelLengthToken.MatchString(existing)
	inHasLen := modelLengthToken.MatchString(incoming)
	if exHasLen != inHasLen {
		if inHasLen {
			return existing
		}
		return incoming
	}
	if len(incoming) > len(existing) {
		return incoming
	}
	return existing
}

// applyEnrichmentSideEffects keeps the queue consistent with quality state:
// needs_enrichment ensures one open job, ready closes all open jobs.
func (s *catalogService) applyEnrichmentSideEffects(ctx context.Context, tx *gorm.DB, workflowID uuid.UUID, variant *types.CableVariant, now time.Time) error {
	if variant.QualityState == types.QualityStateReady {
		return s.enrichmentRepo.CloseOpenForVariant(ctx, tx, variant.ID, now)
	}

	reason := ""
	if issues := variant.QualityIssueList(); len(issues) > 0 {
		reason = issues[0]
	}

	open, err := s.enrichmentRepo.GetOpenByVariant(ctx, tx, variant.ID)
	if err != nil {
		return err
	}
	if open != nil {
		return s.enrichmentRepo.UpdateFields(ctx, tx, open.ID, map[string]interface{}{
			"reason":      reason,
			"workflow_id": workflowID,
			"updated_at":  now,
		})
	}

	// A previously failed job reopens (keeping its attempt count) instead of
	// spawning a fresh row.
	failed, err := s.enrichmentRepo.GetNewestFailedByVariant(ctx, tx, variant.ID)
	if err != nil {
		return err
	}
	if failed != nil {
		return s.enrichmentRepo.UpdateFields(ctx, tx, failed.ID, map[string]interface{}{
			"status":      types.EnrichmentJobStatusPending,
			"reason":      reason,
			"workflow_id": workflowID,
			"last_error":  "",
			"updated_at":  now,
		})
	}

	_, err = s.enrichmentRepo.Create(ctx, tx, &types.EnrichmentJob{
		VariantID:  variant.ID,
		WorkflowID: workflowID,
		Status:     types.EnrichmentJobStatusPending,
		Reason:     reason,
	})
	return err
}

func evidenceRefs(cable *ingestion.ParsedCable, sourceID uuid.UUID) []types.EvidenceRef {
	out := make([]types.EvidenceRef, 0, len(cable.Evidence))
	for _, ev := range cable.Evidence {
		out = append(out, types.EvidenceRef{
			FieldPath: ev.FieldPath,
			SourceID:  sourceID,
			Snippet:   ev.Snippet,
		})
	}
	return out
}

func dedupeStrings(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
