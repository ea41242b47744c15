package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	"github.com/storefrontlabs/storefront-backend/pkg/enums"
)

// Repository defines persistence operations for carts and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateCart(ctx context.Context, cart *models.Cart) error
	FindCart(ctx context.Context, id uuid.UUID) (*models.Cart, error)
	FindActiveCartByCustomer(ctx context.Context, customerID uuid.UUID) (*models.Cart, error)
	UpdateCartStatus(ctx context.Context, id uuid.UUID, status enums.CartStatus) error

	CreateLine(ctx context.Context, line *models.CartLine) error
	// FindLineForUpdate locks the (cart, product) line row for the duration of
	// the transaction so concurrent merges serialize.
	FindLineForUpdate(ctx context.Context, cartID, productID uuid.UUID) (*models.CartLine, error)
	// UpdateLine rewrites quantity, unit price, and subtotal together so a
	// merge never leaves a stale price behind.
	UpdateLine(ctx context.Context, lineID uuid.UUID, quantity int, unitPrice, subtotal decimal.Decimal) error
	DeleteLine(ctx context.Context, lineID uuid.UUID) error
	FindLine(ctx context.Context, lineID uuid.UUID) (*models.CartLine, error)
	ListLines(ctx context.Context, cartID uuid.UUID) ([]models.CartLine, error)
}

// ProductReader is the slice of the catalog the cart needs: stock and state
// checks at merge time.
type ProductReader interface {
	FindActiveProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// NewOrder carries everything the order factory needs to place an order from
// a cart inside the caller's transaction.
type NewOrder struct {
	CustomerID      uuid.UUID
	PaymentMethod   enums.PaymentMethod
	ShippingAddress string
	Lines           []models.CartLine
}

// OrderFactory turns a checked-out cart into a persisted order. Implemented
// by the orders service so checkout stays a single transaction.
type OrderFactory interface {
	CreateFromCart(ctx context.Context, tx *gorm.DB, order NewOrder) (*models.Order, error)
}
