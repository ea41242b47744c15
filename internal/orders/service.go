package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/internal/audit"
	"github.com/storefrontlabs/storefront-backend/internal/cart"
	"github.com/storefrontlabs/storefront-backend/internal/inventory"
	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	"github.com/storefrontlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/storefrontlabs/storefront-backend/pkg/errors"
	"github.com/storefrontlabs/storefront-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines order operations. It also backs cart checkout through
// CreateFromCart.
type Service interface {
	cart.OrderFactory

	Get(ctx context.Context, customerID, orderID uuid.UUID) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error)
	AddLine(ctx context.Context, customerID, orderID, productID uuid.UUID, quantity int) (*models.OrderLine, error)
	RemoveLine(ctx context.Context, customerID, orderID, lineID uuid.UUID) error
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error)
}

type service struct {
	repo     Repository
	products ProductReader
	stock    inventory.Adjuster
	tx       txRunner
	recorder audit.Recorder
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, products ProductReader, stock inventory.Adjuster, tx txRunner, recorder audit.Recorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product reader required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock adjuster required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	return &service{repo: repo, products: products, stock: stock, tx: tx, recorder: recorder}, nil
}

// CreateFromCart places an order inside the caller's transaction. Stock is
// reserved per line and each line freezes the product price at this moment.
func (s *service) CreateFromCart(ctx context.Context, tx *gorm.DB, input cart.NewOrder) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order creation requires a transaction")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order needs at least one line")
	}

	repo := s.repo.WithTx(tx)

	order := &models.Order{
		CustomerID:      input.CustomerID,
		Status:          enums.OrderStatusPending,
		PaymentMethod:   input.PaymentMethod,
		ShippingAddress: input.ShippingAddress,
	}
	if err := repo.CreateOrder(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	for _, cartLine := range input.Lines {
		line, err := s.createLineTx(ctx, tx, repo, order.ID, cartLine.ProductID, cartLine.Quantity)
		if err != nil {
			return nil, err
		}
		order.Lines = append(order.Lines, *line)
	}

	if err := repo.RecomputeTotal(ctx, order.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute order total")
	}
	order.Total = sumSubtotals(order.Lines)

	err := s.recorder.Record(ctx, tx, audit.Change{
		Entity:   enums.AuditEntityOrders,
		RecordID: order.ID,
		Action:   enums.AuditActionCreate,
		After:    snapshotOrder(order),
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// createLineTx reserves stock and persists one line with the current product
// price frozen into it.
func (s *service) createLineTx(ctx context.Context, tx *gorm.DB, repo Repository, orderID, productID uuid.UUID, quantity int) (*models.OrderLine, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be positive")
	}
	if quantity > cart.MaxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, fmt.Sprintf("quantity cannot exceed %d", cart.MaxLineQuantity))
	}

	product, err := s.products.FindActiveProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	if err := s.stock.Reserve(ctx, tx, productID, quantity); err != nil {
		return nil, err
	}

	line := &models.OrderLine{
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: product.Price,
		Subtotal:  product.Price.Mul(decimal.NewFromInt(int64(quantity))),
	}
	if err := repo.CreateLine(ctx, line); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order line")
	}

	err = s.recorder.Record(ctx, tx, audit.Change{
		Entity:   enums.AuditEntityOrderLines,
		RecordID: line.ID,
		Action:   enums.AuditActionCreate,
		After:    snapshotLine(line),
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

func (s *service) Get(ctx context.Context, customerID, orderID uuid.UUID) (*models.Order, error) {
	if customerID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer and order ids required")
	}

	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	// Ownership failures read as absence, order ids are not guessable.
	if order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}

	list, err := s.repo.ListByCustomer(ctx, customerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

// AddLine appends a product to a pending order, reserving stock and
// recomputing the total in one transaction.
func (s *service) AddLine(ctx context.Context, customerID, orderID, productID uuid.UUID, quantity int) (*models.OrderLine, error) {
	if customerID == uuid.Nil || orderID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer, order and product ids required")
	}

	var result *models.OrderLine
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := s.mutableOrderTx(ctx, repo, customerID, orderID)
		if err != nil {
			return err
		}

		line, err := s.createLineTx(ctx, tx, repo, order.ID, productID, quantity)
		if err != nil {
			return err
		}

		if err := repo.RecomputeTotal(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute order total")
		}
		result = line
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveLine drops a line from a pending order, returning its stock and
// recomputing the total in one transaction.
func (s *service) RemoveLine(ctx context.Context, customerID, orderID, lineID uuid.UUID) error {
	if customerID == uuid.Nil || orderID == uuid.Nil || lineID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer, order and line ids required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := s.mutableOrderTx(ctx, repo, customerID, orderID)
		if err != nil {
			return err
		}

		line, err := repo.FindLine(ctx, lineID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order line not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order line")
		}
		if line.OrderID != order.ID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order line not found")
		}

		if err := s.stock.Restock(ctx, tx, line.ProductID, line.Quantity); err != nil {
			return err
		}

		before := snapshotLine(line)
		if err := repo.DeleteLine(ctx, lineID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order line")
		}
		if err := repo.RecomputeTotal(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute order total")
		}

		return s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityOrderLines,
			RecordID: lineID,
			Action:   enums.AuditActionDelete,
			Before:   before,
		})
	})
}

// UpdateStatus advances an order along the fulfilment chain. Cancelling a not
// yet delivered order returns its reserved stock.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", status))
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		if !transitionAllowed(order.Status, status) {
			return pkgerrors.New(
				pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move order from %s to %s", order.Status, status),
			)
		}

		if status == enums.OrderStatusCancelled {
			for _, line := range order.Lines {
				if err := s.stock.Restock(ctx, tx, line.ProductID, line.Quantity); err != nil {
					return err
				}
			}
		}

		before := snapshotOrder(order)
		if err := repo.UpdateOrderStatus(ctx, order.ID, status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.Status = status
		updated = order

		return s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityOrders,
			RecordID: order.ID,
			Action:   enums.AuditActionUpdate,
			Before:   before,
			After:    snapshotOrder(order),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// mutableOrderTx loads an order whose lines may still change. Only pending
// orders qualify.
func (s *service) mutableOrderTx(ctx context.Context, repo Repository, customerID, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order lines can only change while pending")
	}
	return order, nil
}

// orderTransitions lists the statuses each status may move to.
var orderTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:          {enums.OrderStatusPaymentConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusPaymentConfirmed: {enums.OrderStatusPreparing, enums.OrderStatusCancelled},
	enums.OrderStatusPreparing:        {enums.OrderStatusOutForDelivery, enums.OrderStatusReadyForPickup, enums.OrderStatusCancelled},
	enums.OrderStatusOutForDelivery:   {enums.OrderStatusDelivered},
	enums.OrderStatusReadyForPickup:   {enums.OrderStatusDelivered},
}

func transitionAllowed(from, to enums.OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func sumSubtotals(lines []models.OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal)
	}
	return total
}

type orderSnapshot struct {
	CustomerID      uuid.UUID `json:"customer_id"`
	Status          string    `json:"status"`
	Total           string    `json:"total"`
	PaymentMethod   string    `json:"payment_method"`
	ShippingAddress string    `json:"shipping_address"`
}

func snapshotOrder(o *models.Order) orderSnapshot {
	return orderSnapshot{
		CustomerID:      o.CustomerID,
		Status:          o.Status.String(),
		Total:           o.Total.StringFixed(2),
		PaymentMethod:   o.PaymentMethod.String(),
		ShippingAddress: o.ShippingAddress,
	}
}

type lineSnapshot struct {
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Subtotal  string    `json:"subtotal"`
}

func snapshotLine(l *models.OrderLine) lineSnapshot {
	return lineSnapshot{
		OrderID:   l.OrderID,
		ProductID: l.ProductID,
		Quantity:  l.Quantity,
		UnitPrice: l.UnitPrice.StringFixed(2),
		Subtotal:  l.Subtotal.StringFixed(2),
	}
}
