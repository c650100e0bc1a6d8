package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/types"
)

type CableVariantRepo interface {
	Create(ctx context.Context, tx *gorm.DB, v *types.CableVariant) (*types.CableVariant, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CableVariant, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.CableVariant, error)
	// FindNewestBySKU matches (brand, sku, connector_from, connector_to),
	// newest by (updated_at desc, created_at desc).
	FindNewestBySKU(ctx context.Context, tx *gorm.DB, brand, sku, connectorFrom, connectorTo string) (*types.CableVariant, error)
	// ListByBrandModel returns all rows for (brand, model); the caller
	// filters on equal variant/sku/connector pair.
	ListByBrandModel(ctx context.Context, tx *gorm.DB, brand, model string) ([]*types.CableVariant, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type cableVariantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCableVariantRepo(db *gorm.DB, baseLog *logger.Logger) CableVariantRepo {
	return &cableVariantRepo{
		db:  db,
		log: baseLog.With("repo", "CableVariantRepo"),
	}
}

func (r *cableVariantRepo) Create(ctx context.Context, tx *gorm.DB, v *types.CableVariant) (*types.CableVariant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}

func (r *cableVariantRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CableVariant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.CableVariant
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

func (r *cableVariantRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.CableVariant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CableVariant
	if len(ids) == 0 {
		return out, nil
	}
	err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *cableVariantRepo) FindNewestBySKU(ctx context.Context, tx *gorm.DB, brand, sku, connectorFrom, connectorTo string) (*types.CableVariant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if brand == "" || sku == "" {
		return nil, nil
	}
	var row types.CableVariant
	err := transaction.WithContext(ctx).
		Where("brand = ? AND sku = ? AND connector_from = ? AND connector_to = ?", brand, sku, connectorFrom, connectorTo).
		Order("updated_at DESC, created_at DESC").
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

func (r *cableVariantRepo) ListByBrandModel(ctx context.Context, tx *gorm.DB, brand, model string) ([]*types.CableVariant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CableVariant
	if brand == "" || model == "" {
		return out, nil
	}
	err := transaction.WithContext(ctx).
		Where("brand = ? AND model = ?", brand, model).
		Order("updated_at DESC, created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *cableVariantRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.CableVariant{}).
		Where("id = ?", id).
		Updates(updates).Error
}
