package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/types"
)

type WorkflowRepo interface {
	Create(ctx context.Context, tx *gorm.DB, wf *types.Workflow) (*types.Workflow, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Workflow, error)
	GetLatest(ctx context.Context, tx *gorm.DB) (*types.Workflow, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type workflowRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkflowRepo(db *gorm.DB, baseLog *logger.Logger) WorkflowRepo {
	return &workflowRepo{
		db:  db,
		log: baseLog.With("repo", "WorkflowRepo"),
	}
}

func (r *workflowRepo) Create(ctx context.Context, tx *gorm.DB, wf *types.Workflow) (*types.Workflow, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if wf.ID == uuid.Nil {
		wf.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(wf).Error; err != nil {
		return nil, err
	}
	return wf, nil
}

func (r *workflowRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Workflow, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Workflow
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
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

func (r *workflowRepo) GetLatest(ctx context.Context, tx *gorm.DB) (*types.Workflow, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Workflow
	err := transaction.WithContext(ctx).
		Order("started_at DESC").
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

func (r *workflowRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(ctx).
		Model(&types.Workflow{}).
		Where("id = ?", id).
		Updates(updates).Error
}
