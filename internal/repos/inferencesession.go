package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/types"
)

type InferenceSessionRepo interface {
	GetByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID string) (*types.InferenceSession, error)
	// EnsureByWorkspace lazily creates the session row for a workspace.
	EnsureByWorkspace(ctx context.Context, tx *gorm.DB, session *types.InferenceSession) (*types.InferenceSession, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type inferenceSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInferenceSessionRepo(db *gorm.DB, baseLog *logger.Logger) InferenceSessionRepo {
	return &inferenceSessionRepo{
		db:  db,
		log: baseLog.With("repo", "InferenceSessionRepo"),
	}
}

func (r *inferenceSessionRepo) GetByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID string) (*types.InferenceSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	workspaceID = types.NormalizeWorkspaceID(workspaceID)
	if workspaceID == "" {
		return nil, nil
	}
	var row types.InferenceSession
	err := transaction.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
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

func (r *inferenceSessionRepo) EnsureByWorkspace(ctx context.Context, tx *gorm.DB, session *types.InferenceSession) (*types.InferenceSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	session.WorkspaceID = types.NormalizeWorkspaceID(session.WorkspaceID)
	if session.WorkspaceID == "" {
		return nil, nil
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace_id"}},
			DoNothing: true,
		}).
		Create(session).Error
	if err != nil {
		return nil, err
	}
	return r.GetByWorkspace(ctx, transaction, session.WorkspaceID)
}

func (r *inferenceSessionRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.InferenceSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}
