package audit

import (
	"context"

	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	"github.com/storefrontlabs/storefront-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an audit repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters Filters) (*EntryList, error) {
	params = params.Normalize()

	query := r.db.WithContext(ctx).Model(&models.AuditLog{})
	if filters.Entity != nil {
		query = query.Where("entity_name = ?", *filters.Entity)
	}
	if filters.RecordID != nil {
		query = query.Where("record_id = ?", *filters.RecordID)
	}
	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.ActorID != nil {
		query = query.Where("actor_id = ?", *filters.ActorID)
	}
	if filters.From != nil {
		query = query.Where("created_at >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("created_at <= ?", *filters.To)
	}

	var entries []models.AuditLog
	err := query.
		Order("created_at DESC").
		Offset(params.Offset).
		Limit(params.Limit + 1).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	hasMore := len(entries) > params.Limit
	if hasMore {
		entries = entries[:params.Limit]
	}
	return &EntryList{Entries: entries, HasMore: hasMore}, nil
}
