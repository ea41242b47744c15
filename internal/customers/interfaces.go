package customers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	"github.com/storefrontlabs/storefront-backend/pkg/enums"
)

// Repository defines persistence operations for customer profiles.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Customer, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, id uuid.UUID, updates map[string]any) error

	// UpdateUserState lives here so deactivating a profile retires the login
	// in the same transaction.
	UpdateUserState(ctx context.Context, userID uuid.UUID, state enums.EntityState) error
}
