package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/types"
)

type WorkflowItemRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, items []*types.WorkflowItem) ([]*types.WorkflowItem, error)
	ListByWorkflow(ctx context.Context, tx *gorm.DB, workflowID uuid.UUID) ([]*types.WorkflowItem, error)
	ListByWorkflowStatus(ctx context.Context, tx *gorm.DB, workflowID uuid.UUID, status string) ([]*types.WorkflowItem, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type workflowItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkflowItemRepo(db *gorm.DB, baseLog *logger.Logger) WorkflowItemRepo {
	return &workflowItemRepo{
		db:  db,
		log: baseLog.With("repo", "WorkflowItemRepo"),
	}
}

func (r *workflowItemRepo) CreateBatch(ctx context.Context, tx *gorm.DB, items []*types.WorkflowItem) ([]*types.WorkflowItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(items) == 0 {
		return []*types.WorkflowItem{}, nil
	}
	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
	}
	if err := transaction.WithContext(ctx).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *workflowItemRepo) ListByWorkflow(ctx context.Context, tx *gorm.DB, workflowID uuid.UUID) ([]*types.WorkflowItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.WorkflowItem
	if workflowID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *workflowItemRepo) ListByWorkflowStatus(ctx context.Context, tx *gorm.DB, workflowID uuid.UUID, status string) ([]*types.WorkflowItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.WorkflowItem
	if workflowID == uuid.Nil || status == "" {
		return out, nil
	}
	err := transaction.WithContext(ctx).
		Where("workflow_id = ? AND status = ?", workflowID, status).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *workflowItemRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.WorkflowItem{}).
		Where("id = ?", id).
		Updates(updates).Error
}
