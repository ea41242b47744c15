package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/internal/audit"
	"github.com/storefrontlabs/storefront-backend/pkg/db"
	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	"github.com/storefrontlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/storefrontlabs/storefront-backend/pkg/errors"
)

// MaxLineQuantity caps any single cart or order line.
const MaxLineQuantity = 1000

// maxMergeAttempts bounds retries when concurrent first inserts of the same
// (cart, product) line collide on the unique index.
const maxMergeAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines cart operations.
type Service interface {
	GetOrCreate(ctx context.Context, customerID uuid.UUID) (*models.Cart, error)
	AddLine(ctx context.Context, customerID, productID uuid.UUID, quantity int) (*models.CartLine, error)
	RemoveLine(ctx context.Context, customerID, lineID uuid.UUID) error
	Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error)
}

// CheckoutInput carries the fields needed to turn a cart into an order.
type CheckoutInput struct {
	CustomerID      uuid.UUID
	PaymentMethod   enums.PaymentMethod
	ShippingAddress string
}

type service struct {
	repo     Repository
	products ProductReader
	tx       txRunner
	orders   OrderFactory
	recorder audit.Recorder
}

// NewService builds the cart service with the required dependencies.
func NewService(repo Repository, products ProductReader, tx txRunner, orders OrderFactory, recorder audit.Recorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product reader required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order factory required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	return &service{repo: repo, products: products, tx: tx, orders: orders, recorder: recorder}, nil
}

func (s *service) GetOrCreate(ctx context.Context, customerID uuid.UUID) (*models.Cart, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}

	var lastErr error
	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		cart, err := s.repo.FindActiveCartByCustomer(ctx, customerID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		var created *models.Cart
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			fresh := &models.Cart{CustomerID: customerID, Status: enums.CartStatusActive}
			if err := repo.CreateCart(ctx, fresh); err != nil {
				return err // raw so the retry loop can inspect the driver error
			}
			created = fresh
			return s.recorder.Record(ctx, tx, audit.Change{
				Entity:   enums.AuditEntityCarts,
				RecordID: fresh.ID,
				Action:   enums.AuditActionCreate,
				After:    snapshotCart(fresh),
			})
		})
		if err == nil {
			return created, nil
		}
		// A concurrent call won the insert; the next read picks up its cart.
		if db.IsUniqueViolation(err, "uq_carts_customer_active") {
			lastErr = err
			continue
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "cart contention, retries exhausted")
}

// AddLine merges quantity into an existing (cart, product) line or creates a
// new one. Concurrent first inserts of the same pair hit the unique index,
// which surfaces as a bounded retry here.
func (s *service) AddLine(ctx context.Context, customerID, productID uuid.UUID, quantity int) (*models.CartLine, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be positive")
	}
	if quantity > MaxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, fmt.Sprintf("quantity cannot exceed %d", MaxLineQuantity))
	}

	var result *models.CartLine
	var lastErr error
	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			line, err := s.addLineTx(ctx, tx, customerID, productID, quantity)
			if err != nil {
				return err
			}
			result = line
			return nil
		})
		if err == nil {
			return result, nil
		}
		if !isMergeRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "cart line contention, retries exhausted")
}

func (s *service) addLineTx(ctx context.Context, tx *gorm.DB, customerID, productID uuid.UUID, quantity int) (*models.CartLine, error) {
	repo := s.repo.WithTx(tx)

	cart, err := s.activeCartTx(ctx, tx, repo, customerID)
	if err != nil {
		return nil, err
	}

	product, err := s.products.FindActiveProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	line, err := repo.FindLineForUpdate(ctx, cart.ID, productID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock cart line")
	}

	if line != nil {
		merged := line.Quantity + quantity
		if merged > MaxLineQuantity {
			return nil, pkgerrors.New(
				pkgerrors.CodeInvalidQuantity,
				fmt.Sprintf("merged quantity %d exceeds the %d cap", merged, MaxLineQuantity),
			)
		}
		if product.Stock < merged {
			return nil, insufficientStock(merged, product.Stock)
		}

		before := snapshotLine(line)
		subtotal := product.Price.Mul(decimal.NewFromInt(int64(merged)))
		if err := repo.UpdateLine(ctx, line.ID, merged, product.Price, subtotal); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge cart line")
		}
		line.Quantity = merged
		line.UnitPrice = product.Price
		line.Subtotal = subtotal

		err = s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityCartLines,
			RecordID: line.ID,
			Action:   enums.AuditActionUpdate,
			Before:   before,
			After:    snapshotLine(line),
		})
		if err != nil {
			return nil, err
		}
		return line, nil
	}

	if product.Stock < quantity {
		return nil, insufficientStock(quantity, product.Stock)
	}

	fresh := &models.CartLine{
		CartID:    cart.ID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: product.Price,
		Subtotal:  product.Price.Mul(decimal.NewFromInt(int64(quantity))),
	}
	if err := repo.CreateLine(ctx, fresh); err != nil {
		return nil, err // raw so the retry loop can inspect the driver error
	}

	err = s.recorder.Record(ctx, tx, audit.Change{
		Entity:   enums.AuditEntityCartLines,
		RecordID: fresh.ID,
		Action:   enums.AuditActionCreate,
		After:    snapshotLine(fresh),
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

func (s *service) activeCartTx(ctx context.Context, tx *gorm.DB, repo Repository, customerID uuid.UUID) (*models.Cart, error) {
	cart, err := repo.FindActiveCartByCustomer(ctx, customerID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	fresh := &models.Cart{CustomerID: customerID, Status: enums.CartStatusActive}
	if err := repo.CreateCart(ctx, fresh); err != nil {
		return nil, err // raw so the retry loop can inspect the driver error
	}
	err = s.recorder.Record(ctx, tx, audit.Change{
		Entity:   enums.AuditEntityCarts,
		RecordID: fresh.ID,
		Action:   enums.AuditActionCreate,
		After:    snapshotCart(fresh),
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

func (s *service) RemoveLine(ctx context.Context, customerID, lineID uuid.UUID) error {
	if customerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if lineID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "line id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		line, err := repo.FindLine(ctx, lineID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
		}

		cart, err := repo.FindCart(ctx, line.CartID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		// Ownership failures read as absence, line ids are not guessable.
		if cart.CustomerID != customerID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
		}
		if cart.Status != enums.CartStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is no longer open")
		}

		before := snapshotLine(line)
		if err := repo.DeleteLine(ctx, lineID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart line")
		}

		return s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityCartLines,
			RecordID: lineID,
			Action:   enums.AuditActionDelete,
			Before:   before,
		})
	})
}

func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment method %q", input.PaymentMethod))
	}
	if len(strings.TrimSpace(input.ShippingAddress)) < 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address must be at least 5 characters")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindActiveCartByCustomer(ctx, input.CustomerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "no active cart to check out")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		lines, err := repo.ListLines(ctx, cart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart lines")
		}
		if len(lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")
		}

		order, err = s.orders.CreateFromCart(ctx, tx, NewOrder{
			CustomerID:      input.CustomerID,
			PaymentMethod:   input.PaymentMethod,
			ShippingAddress: input.ShippingAddress,
			Lines:           lines,
		})
		if err != nil {
			return err
		}

		before := snapshotCart(cart)
		if err := repo.UpdateCartStatus(ctx, cart.ID, enums.CartStatusCompleted); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete cart")
		}
		cart.Status = enums.CartStatusCompleted

		return s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityCarts,
			RecordID: cart.ID,
			Action:   enums.AuditActionUpdate,
			Before:   before,
			After:    snapshotCart(cart),
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func isMergeRetryable(err error) bool {
	return db.IsUniqueViolation(err, "uq_cart_lines_cart_product") ||
		db.IsUniqueViolation(err, "uq_carts_customer_active") ||
		db.IsSerializationFailure(err)
}

func insufficientStock(requested, available int) error {
	return pkgerrors.New(
		pkgerrors.CodeInsufficient,
		fmt.Sprintf("requested %d, only %d available", requested, available),
	).WithDetails(map[string]any{
		"requested": requested,
		"available": available,
	})
}

type cartSnapshot struct {
	CustomerID uuid.UUID `json:"customer_id"`
	Status     string    `json:"status"`
}

func snapshotCart(c *models.Cart) cartSnapshot {
	return cartSnapshot{CustomerID: c.CustomerID, Status: c.Status.String()}
}

type lineSnapshot struct {
	CartID    uuid.UUID `json:"cart_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Subtotal  string    `json:"subtotal"`
}

func snapshotLine(l *models.CartLine) lineSnapshot {
	return lineSnapshot{
		CartID:    l.CartID,
		ProductID: l.ProductID,
		Quantity:  l.Quantity,
		UnitPrice: l.UnitPrice.StringFixed(2),
		Subtotal:  l.Subtotal.StringFixed(2),
	}
}
