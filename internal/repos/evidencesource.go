package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/types"
)

type EvidenceSourceRepo interface {
	Insert(ctx context.Context, tx *gorm.DB, src *types.EvidenceSource) (*types.EvidenceSource, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.EvidenceSource, error)
	GetByContentHash(ctx context.Context, tx *gorm.DB, hash string) (*types.EvidenceSource, error)
	ListByWorkflow(ctx context.Context, tx *gorm.DB, workflowID uuid.UUID) ([]*types.EvidenceSource, error)
}

type evidenceSourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEvidenceSourceRepo(db *gorm.DB, baseLog *logger.Logger) EvidenceSourceRepo {
	return &evidenceSourceRepo{
		db:  db,
		log: baseLog.With("repo", "EvidenceSourceRepo"),
	}
}

// Insert is append-only; evidence rows are never updated.
func (r *evidenceSourceRepo) Insert(ctx context.Context, tx *gorm.DB, src *types.EvidenceSource) (*types.EvidenceSource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(src).Error; err != nil {
		return nil, err
	}
	return src, nil
}

func (r *evidenceSourceRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.EvidenceSource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EvidenceSource
	if len(ids) == 0 {
		return out, nil
	}
	err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Order("fetched_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *evidenceSourceRepo) GetByContentHash(ctx context.Context, tx *gorm.DB, hash string) (*types.EvidenceSource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if hash == "" {
		return nil, nil
	}
	var row types.EvidenceSource
	err := transaction.WithContext(ctx).
		Where("content_hash = ?", hash).
		Order("fetched_at DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *evidenceSourceRepo) ListByWorkflow(ctx context.Context, tx *gorm.DB, workflowID uuid.UUID) ([]*types.EvidenceSource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EvidenceSource
	if workflowID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("fetched_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
