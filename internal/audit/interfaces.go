package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	"github.com/storefrontlabs/storefront-backend/pkg/enums"
	"github.com/storefrontlabs/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for the audit trail.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, params pagination.Params, filters Filters) (*EntryList, error)
}

// Filters narrows the admin audit listing.
type Filters struct {
	Entity   *enums.AuditEntity
	RecordID *uuid.UUID
	Action   *enums.AuditAction
	ActorID  *uuid.UUID
	From     *time.Time
	To       *time.Time
}

// EntryList is one page of audit entries, newest first.
type EntryList struct {
	Entries []models.AuditLog
	HasMore bool
}

// Recorder appends audit entries inside the caller's transaction.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, change Change) error
}
