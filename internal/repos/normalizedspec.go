package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/types"
)

type NormalizedSpecRepo interface {
	Insert(ctx context.Context, tx *gorm.DB, spec *types.NormalizedSpec) (*types.NormalizedSpec, error)
	ListNewest(ctx context.Context, tx *gorm.DB, limit int) ([]*types.NormalizedSpec, error)
	ListByVariant(ctx context.Context, tx *gorm.DB, variantID uuid.UUID) ([]*types.NormalizedSpec, error)
	ListByWorkflow(ctx context.Context, tx *gorm.DB, workflowID uuid.UUID) ([]*types.NormalizedSpec, error)
}

type normalizedSpecRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNormalizedSpecRepo(db *gorm.DB, baseLog *logger.Logger) NormalizedSpecRepo {
	return &normalizedSpecRepo{
		db:  db,
		log: baseLog.With("repo", "NormalizedSpecRepo"),
	}
}

func (r *normalizedSpecRepo) Insert(ctx context.Context, tx *gorm.DB, spec *types.NormalizedSpec) (*types.NormalizedSpec, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if spec.ID == uuid.Nil {
		spec.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(spec).Error; err != nil {
		return nil, err
	}
	return spec, nil
}

func (r *normalizedSpecRepo) ListNewest(ctx context.Context, tx *gorm.DB, limit int) ([]*types.NormalizedSpec, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.NormalizedSpec
	if limit <= 0 {
		return out, nil
	}
	err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *normalizedSpecRepo) ListByVariant(ctx context.Context, tx *gorm.DB, variantID uuid.UUID) ([]*types.NormalizedSpec, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.NormalizedSpec
	if variantID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *normalizedSpecRepo) ListByWorkflow(ctx context.Context, tx *gorm.DB, workflowID uuid.UUID) ([]*types.NormalizedSpec, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.NormalizedSpec
	if workflowID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
