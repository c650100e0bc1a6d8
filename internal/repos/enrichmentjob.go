package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/types"
)

type EnrichmentQueueSummary struct {
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"inProgress"`
	Failed     int64 `json:"failed"`
}

type EnrichmentJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *types.EnrichmentJob) (*types.EnrichmentJob, error)
	// GetOpenByVariant returns the pending/in_progress job for a variant,
	// locked FOR UPDATE when the dialect supports it. Callers must hold a
	// transaction to preserve the at-most-one-open invariant.
	GetOpenByVariant(ctx context.Context, tx *gorm.DB, variantID uuid.UUID) (*types.EnrichmentJob, error)
	GetNewestFailedByVariant(ctx context.Context, tx *gorm.DB, variantID uuid.UUID) (*types.EnrichmentJob, error)
	CloseOpenForVariant(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, now time.Time) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	// ClaimNextPending atomically moves the oldest pending job to
	// in_progress and increments its attempt count.
	ClaimNextPending(ctx context.Context, tx *gorm.DB) (*types.EnrichmentJob, error)
	Summary(ctx context.Context, tx *gorm.DB) (*EnrichmentQueueSummary, error)
}

type enrichmentJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEnrichmentJobRepo(db *gorm.DB, baseLog *logger.Logger) EnrichmentJobRepo {
	return &enrichmentJobRepo{
		db:  db,
		log: baseLog.With("repo", "EnrichmentJobRepo"),
	}
}

func (r *enrichmentJobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.EnrichmentJob) (*types.EnrichmentJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *enrichmentJobRepo) GetOpenByVariant(ctx context.Context, tx *gorm.DB, variantID uuid.UUID) (*types.EnrichmentJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if variantID == uuid.Nil {
		return nil, nil
	}
	q := transaction.WithContext(ctx)
	if supportsRowLocks(transaction) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row types.EnrichmentJob
	err := q.
		Where("variant_id = ? AND status IN ?", variantID, []string{types.EnrichmentJobStatusPending, types.EnrichmentJobStatusInProgress}).
		Order("created_at DESC").
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

func (r *enrichmentJobRepo) GetNewestFailedByVariant(ctx context.Context, tx *gorm.DB, variantID uuid.UUID) (*types.EnrichmentJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if variantID == uuid.Nil {
		return nil, nil
	}
	var row types.EnrichmentJob
	err := transaction.WithContext(ctx).
		Where("variant_id = ? AND status = ?", variantID, types.EnrichmentJobStatusFailed).
		Order("created_at DESC").
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

func (r *enrichmentJobRepo) CloseOpenForVariant(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, now time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if variantID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.EnrichmentJob{}).
		Where("variant_id = ? AND status IN ?", variantID, []string{types.EnrichmentJobStatusPending, types.EnrichmentJobStatusInProgress}).
		Updates(map[string]interface{}{
			"status":       types.EnrichmentJobStatusCompleted,
			"completed_at": now,
			"updated_at":   now,
		}).Error
}

func (r *enrichmentJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.EnrichmentJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *enrichmentJobRepo) ClaimNextPending(ctx context.Context, tx *gorm.DB) (*types.EnrichmentJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	var claimed *types.EnrichmentJob
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		q := txx
		if supportsRowLocks(txx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var job types.EnrichmentJob
		qErr := q.
			Where("status = ?", types.EnrichmentJobStatusPending).
			Order("created_at ASC").
			First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.EnrichmentJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":        types.EnrichmentJobStatusInProgress,
				"attempt_count": gorm.Expr("attempt_count + 1"),
				"updated_at":    now,
			}).Error
		if uErr != nil {
			return uErr
		}
		job.Status = types.EnrichmentJobStatusInProgress
		job.AttemptCount++
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *enrichmentJobRepo) Summary(ctx context.Context, tx *gorm.DB) (*EnrichmentQueueSummary, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	out := &EnrichmentQueueSummary{}
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := transaction.WithContext(ctx).
		Model(&types.EnrichmentJob{}).
		Select("status, count(*) as n").
		Where("status IN ?", []string{types.EnrichmentJobStatusPending, types.EnrichmentJobStatusInProgress, types.EnrichmentJobStatusFailed}).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		switch r.Status {
		case types.EnrichmentJobStatusPending:
			out.Pending = r.N
		case types.EnrichmentJobStatusInProgress:
			out.InProgress = r.N
		case types.EnrichmentJobStatusFailed:
			out.Failed = r.N
		}
	}
	return out, nil
}

// SQLite (used by the test harness) has no SELECT ... FOR UPDATE; its writes
// are serialized at the database level anyway.
func supportsRowLocks(db *gorm.DB) bool {
	if db == nil || db.Dialector == nil {
		return false
	}
	return db.Dialector.Name() == "postgres"
}
