package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	"github.com/storefrontlabs/storefront-backend/pkg/enums"
	"github.com/storefrontlabs/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error

	CreateLine(ctx context.Context, line *models.OrderLine) error
	FindLine(ctx context.Context, lineID uuid.UUID) (*models.OrderLine, error)
	DeleteLine(ctx context.Context, lineID uuid.UUID) error
	ListLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error)

	// RecomputeTotal rewrites the cached order total from its line subtotals.
	// Runs in the same transaction as the line change that made it stale.
	RecomputeTotal(ctx context.Context, orderID uuid.UUID) error
}

// OrderList is a page of orders plus a lookahead flag.
type OrderList struct {
	Orders  []models.Order
	HasMore bool
}

// ProductReader is the slice of the catalog orders need: price and stock at
// line-creation time.
type ProductReader interface {
	FindActiveProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}
