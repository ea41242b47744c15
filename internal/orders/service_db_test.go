package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/internal/audit"
	"github.com/storefrontlabs/storefront-backend/internal/catalog"
	"github.com/storefrontlabs/storefront-backend/internal/cart"
	"github.com/storefrontlabs/storefront-backend/internal/inventory"
	"github.com/storefrontlabs/storefront-backend/pkg/config"
	"github.com/storefrontlabs/storefront-backend/pkg/db"
	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	"github.com/storefrontlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/storefrontlabs/storefront-backend/pkg/errors"
)

// setupCheckoutTestDB boots a real client against in-memory sqlite so the
// whole create-order path runs inside an actual transaction.
func setupCheckoutTestDB(t *testing.T) *db.Client {
	t.Helper()

	client, err := db.New(context.Background(), config.DBConfig{
		DSN:    "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared",
		Driver: config.DBDriverSQLite,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	statements := []string{
		`CREATE TABLE products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  price NUMERIC NOT NULL,
  stock INTEGER NOT NULL DEFAULT 0,
  category_id TEXT NOT NULL,
  state TEXT NOT NULL DEFAULT 'active',
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  total NUMERIC NOT NULL DEFAULT 0,
  payment_method TEXT NOT NULL,
  shipping_address TEXT NOT NULL,
  placed_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE order_lines (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price NUMERIC NOT NULL,
  subtotal NUMERIC NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE audit_logs (
  id TEXT PRIMARY KEY,
  entity_name TEXT NOT NULL,
  record_id TEXT NOT NULL,
  action TEXT NOT NULL,
  actor_id TEXT,
  actor_email TEXT,
  ip_address TEXT,
  endpoint TEXT,
  before_state TEXT,
  after_state TEXT,
  changes TEXT,
  created_at DATETIME
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, client.DB().Exec(stmt).Error)
	}
	return client
}

func newCheckoutService(t *testing.T, client *db.Client) Service {
	t.Helper()

	auditRepo := audit.NewRepository(client.DB())
	recorder, err := audit.NewRecorder(auditRepo)
	require.NoError(t, err)

	svc, err := NewService(
		NewRepository(client.DB()),
		catalog.NewRepository(client.DB()),
		inventory.NewAdjuster(),
		client,
		recorder,
	)
	require.NoError(t, err)
	return svc
}

func seedCheckoutProduct(t *testing.T, client *db.Client, stock int) *models.Product {
	t.Helper()

	product := &models.Product{
		Name:       "Cold Brew",
		Price:      decimal.RequireFromString("4.50"),
		Stock:      stock,
		CategoryID: uuid.New(),
		State:      enums.EntityStateActive,
	}
	require.NoError(t, client.DB().Create(product).Error)
	return product
}

func assertNothingPersisted(t *testing.T, client *db.Client, productID uuid.UUID, wantStock int) {
	t.Helper()

	for _, model := range []any{&models.Order{}, &models.OrderLine{}, &models.AuditLog{}} {
		var n int64
		require.NoError(t, client.DB().Model(model).Count(&n).Error)
		assert.Zero(t, n, "expected no rows for %T", model)
	}

	var got models.Product
	require.NoError(t, client.DB().First(&got, "id = ?", productID).Error)
	assert.Equal(t, wantStock, got.Stock)
}

func TestCreateFromCartRollbackLeavesNoAuditTrace(t *testing.T) {
	client := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, client)
	product := seedCheckoutProduct(t, client, 10)
	ctx := context.Background()

	// The order and its audit entry land, then a later step in the same
	// transaction fails. Everything must vanish together.
	sentinel := errors.New("charge declined")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := svc.CreateFromCart(ctx, tx, cart.NewOrder{
			CustomerID:      uuid.New(),
			PaymentMethod:   enums.PaymentMethodCard,
			ShippingAddress: "12 Main St",
			Lines:           []models.CartLine{{ProductID: product.ID, Quantity: 2}},
		})
		require.NoError(t, err)
		require.NotNil(t, order)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	assertNothingPersisted(t, client, product.ID, 10)
}

func TestCreateFromCartInsufficientStockRollsBackOrder(t *testing.T) {
	client := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, client)
	product := seedCheckoutProduct(t, client, 10)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := svc.CreateFromCart(ctx, tx, cart.NewOrder{
			CustomerID:      uuid.New(),
			PaymentMethod:   enums.PaymentMethodCash,
			ShippingAddress: "12 Main St",
			Lines:           []models.CartLine{{ProductID: product.ID, Quantity: 50}},
		})
		return err
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficient), "got %v", err)

	assertNothingPersisted(t, client, product.ID, 10)
}
