package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/internal/audit"
	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	"github.com/storefrontlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/storefrontlabs/storefront-backend/pkg/errors"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubCartRepo struct {
	carts map[uuid.UUID]*models.Cart
	lines map[uuid.UUID]*models.CartLine

	createLineErrs []error // popped per CreateLine call
}

func newStubCartRepo() *stubCartRepo {
	return &stubCartRepo{
		carts: map[uuid.UUID]*models.Cart{},
		lines: map[uuid.UUID]*models.CartLine{},
	}
}

func (s *stubCartRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubCartRepo) CreateCart(ctx context.Context, cart *models.Cart) error {
	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	s.carts[cart.ID] = cart
	return nil
}

func (s *stubCartRepo) FindCart(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	cart, ok := s.carts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *cart
	return &copied, nil
}

func (s *stubCartRepo) FindActiveCartByCustomer(ctx context.Context, customerID uuid.UUID) (*models.Cart, error) {
	for _, cart := range s.carts {
		if cart.CustomerID == customerID && cart.Status == enums.CartStatusActive {
			copied := *cart
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCartRepo) UpdateCartStatus(ctx context.Context, id uuid.UUID, status enums.CartStatus) error {
	cart, ok := s.carts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cart.Status = status
	return nil
}

func (s *stubCartRepo) CreateLine(ctx context.Context, line *models.CartLine) error {
	if len(s.createLineErrs) > 0 {
		err := s.createLineErrs[0]
		s.createLineErrs = s.createLineErrs[1:]
		if err != nil {
			return err
		}
	}
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}
	s.lines[line.ID] = line
	return nil
}

func (s *stubCartRepo) FindLineForUpdate(ctx context.Context, cartID, productID uuid.UUID) (*models.CartLine, error) {
	for _, line := range s.lines {
		if line.CartID == cartID && line.ProductID == productID {
			copied := *line
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCartRepo) UpdateLine(ctx context.Context, lineID uuid.UUID, quantity int, unitPrice, subtotal decimal.Decimal) error {
	line, ok := s.lines[lineID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	line.Quantity = quantity
	line.UnitPrice = unitPrice
	line.Subtotal = subtotal
	return nil
}

func (s *stubCartRepo) DeleteLine(ctx context.Context, lineID uuid.UUID) error {
	delete(s.lines, lineID)
	return nil
}

func (s *stubCartRepo) FindLine(ctx context.Context, lineID uuid.UUID) (*models.CartLine, error) {
	line, ok := s.lines[lineID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *line
	return &copied, nil
}

func (s *stubCartRepo) ListLines(ctx context.Context, cartID uuid.UUID) ([]models.CartLine, error) {
	var out []models.CartLine
	for _, line := range s.lines {
		if line.CartID == cartID {
			out = append(out, *line)
		}
	}
	return out, nil
}

type stubProductReader struct {
	products map[uuid.UUID]*models.Product
}

func (s *stubProductReader) FindActiveProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, ok := s.products[id]
	if !ok || product.State != enums.EntityStateActive {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *product
	return &copied, nil
}

type stubOrderFactory struct {
	placed *NewOrder
	fail   error
}

func (s *stubOrderFactory) CreateFromCart(ctx context.Context, tx *gorm.DB, order NewOrder) (*models.Order, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	s.placed = &order
	return &models.Order{
		ID:              uuid.New(),
		CustomerID:      order.CustomerID,
		Status:          enums.OrderStatusPending,
		PaymentMethod:   order.PaymentMethod,
		ShippingAddress: order.ShippingAddress,
	}, nil
}

type stubRecorder struct {
	changes []audit.Change
}

func (s *stubRecorder) Record(ctx context.Context, tx *gorm.DB, change audit.Change) error {
	s.changes = append(s.changes, change)
	return nil
}

type cartFixture struct {
	svc      Service
	repo     *stubCartRepo
	products *stubProductReader
	factory  *stubOrderFactory
	recorder *stubRecorder

	customerID uuid.UUID
	productID  uuid.UUID
}

func newCartFixture(t *testing.T, stock int) *cartFixture {
	t.Helper()
	repo := newStubCartRepo()
	productID := uuid.New()
	products := &stubProductReader{products: map[uuid.UUID]*models.Product{
		productID: {
			ID:    productID,
			Name:  "Cold Brew",
			Price: decimal.NewFromFloat(4.50),
			Stock: stock,
			State: enums.EntityStateActive,
		},
	}}
	factory := &stubOrderFactory{}
	recorder := &stubRecorder{}

	svc, err := NewService(repo, products, stubTxRunner{}, factory, recorder)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &cartFixture{
		svc:        svc,
		repo:       repo,
		products:   products,
		factory:    factory,
		recorder:   recorder,
		customerID: uuid.New(),
		productID:  productID,
	}
}

func TestAddLineCreatesCartAndLine(t *testing.T) {
	f := newCartFixture(t, 10)

	line, err := f.svc.AddLine(context.Background(), f.customerID, f.productID, 3)
	if err != nil {
		t.Fatalf("add line failed: %v", err)
	}
	if line.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", line.Quantity)
	}
	if !line.Subtotal.Equal(decimal.RequireFromString("13.50")) {
		t.Fatalf("expected subtotal 13.50, got %s", line.Subtotal)
	}
	if len(f.repo.carts) != 1 {
		t.Fatalf("expected cart to be created")
	}
	// cart create + line create
	if len(f.recorder.changes) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(f.recorder.changes))
	}
}

func TestAddLineMergesQuantities(t *testing.T) {
	f := newCartFixture(t, 10)

	if _, err := f.svc.AddLine(context.Background(), f.customerID, f.productID, 2); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	f.recorder.changes = nil

	line, err := f.svc.AddLine(context.Background(), f.customerID, f.productID, 3)
	if err != nil {
		t.Fatalf("second add failed: %v", err)
	}
	if line.Quantity != 5 {
		t.Fatalf("expected merged quantity 5, got %d", line.Quantity)
	}
	if !line.Subtotal.Equal(decimal.RequireFromString("22.50")) {
		t.Fatalf("expected subtotal 22.50, got %s", line.Subtotal)
	}
	if len(f.repo.lines) != 1 {
		t.Fatalf("expected a single line after merge, got %d", len(f.repo.lines))
	}
	if len(f.recorder.changes) != 1 || f.recorder.changes[0].Action != enums.AuditActionUpdate {
		t.Fatalf("expected one update audit entry, got %+v", f.recorder.changes)
	}
}

func TestAddLineMergeRefreshesPriceSnapshot(t *testing.T) {
	f := newCartFixture(t, 10)

	if _, err := f.svc.AddLine(context.Background(), f.customerID, f.productID, 2); err != nil {
		t.Fatalf("first add failed: %v", err)
	}

	// Catalog reprices the product before the second add.
	f.products.products[f.productID].Price = decimal.RequireFromString("6.00")

	line, err := f.svc.AddLine(context.Background(), f.customerID, f.productID, 1)
	if err != nil {
		t.Fatalf("second add failed: %v", err)
	}
	if !line.UnitPrice.Equal(decimal.RequireFromString("6.00")) {
		t.Fatalf("expected refreshed unit price 6.00, got %s", line.UnitPrice)
	}
	if !line.Subtotal.Equal(decimal.RequireFromString("18.00")) {
		t.Fatalf("expected subtotal 18.00, got %s", line.Subtotal)
	}
}

func TestAddLineMergeChecksStockAgainstMergedQuantity(t *testing.T) {
	f := newCartFixture(t, 4)

	if _, err := f.svc.AddLine(context.Background(), f.customerID, f.productID, 3); err != nil {
		t.Fatalf("first add failed: %v", err)
	}

	_, err := f.svc.AddLine(context.Background(), f.customerID, f.productID, 2)
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficient) {
		t.Fatalf("expected insufficient inventory, got %v", err)
	}

	typed := pkgerrors.As(err)
	details := typed.Details().(map[string]any)
	if details["requested"] != 5 || details["available"] != 4 {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestAddLineQuantityBounds(t *testing.T) {
	f := newCartFixture(t, 2000)

	for _, qty := range []int{0, -1, MaxLineQuantity + 1} {
		_, err := f.svc.AddLine(context.Background(), f.customerID, f.productID, qty)
		if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidQuantity) {
			t.Fatalf("expected invalid quantity for %d, got %v", qty, err)
		}
	}

	// Merging past the cap is rejected even though each call is in range.
	if _, err := f.svc.AddLine(context.Background(), f.customerID, f.productID, 600); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	_, err := f.svc.AddLine(context.Background(), f.customerID, f.productID, 500)
	if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidQuantity) {
		t.Fatalf("expected invalid quantity for merged total, got %v", err)
	}
}

func TestAddLineUnknownProduct(t *testing.T) {
	f := newCartFixture(t, 10)

	_, err := f.svc.AddLine(context.Background(), f.customerID, uuid.New(), 1)
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddLineRetriesOnUniqueViolation(t *testing.T) {
	f := newCartFixture(t, 10)

	// First insert loses the race; the retry finds the winner's line and merges.
	f.repo.createLineErrs = []error{
		&pgconn.PgError{Code: "23505", ConstraintName: "uq_cart_lines_cart_product"},
	}
	winner := &models.CartLine{ID: uuid.New(), ProductID: f.productID, Quantity: 2}

	raceOnce := &racingRepo{stubCartRepo: f.repo, winner: winner}
	svc, err := NewService(raceOnce, f.products, stubTxRunner{}, f.factory, f.recorder)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	line, err := svc.AddLine(context.Background(), f.customerID, f.productID, 3)
	if err != nil {
		t.Fatalf("add line failed: %v", err)
	}
	if line.Quantity != 5 {
		t.Fatalf("expected merged quantity 5 after retry, got %d", line.Quantity)
	}
}

// racingRepo injects the winning line after the first CreateLine failure so a
// retry observes it, mimicking a lost unique-index race.
type racingRepo struct {
	*stubCartRepo
	winner   *models.CartLine
	injected bool
}

func (r *racingRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *racingRepo) CreateLine(ctx context.Context, line *models.CartLine) error {
	err := r.stubCartRepo.CreateLine(ctx, line)
	if err != nil && !r.injected {
		r.injected = true
		r.winner.CartID = line.CartID
		r.stubCartRepo.lines[r.winner.ID] = r.winner
	}
	return err
}

// cartRaceRepo makes the first CreateCart lose to a concurrent winner: the
// winner's active cart appears and the insert fails on the partial unique
// index over (customer_id) WHERE status = 'active'.
type cartRaceRepo struct {
	*stubCartRepo
	winner   *models.Cart
	injected bool
}

func (r *cartRaceRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *cartRaceRepo) CreateCart(ctx context.Context, cart *models.Cart) error {
	if !r.injected {
		r.injected = true
		r.stubCartRepo.carts[r.winner.ID] = r.winner
		return &pgconn.PgError{Code: "23505", ConstraintName: "uq_carts_customer_active"}
	}
	return r.stubCartRepo.CreateCart(ctx, cart)
}

func TestGetOrCreateReturnsWinnerAfterInsertRace(t *testing.T) {
	f := newCartFixture(t, 10)

	winner := &models.Cart{ID: uuid.New(), CustomerID: f.customerID, Status: enums.CartStatusActive}
	racing := &cartRaceRepo{stubCartRepo: f.repo, winner: winner}
	svc, err := NewService(racing, f.products, stubTxRunner{}, f.factory, f.recorder)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	cart, err := svc.GetOrCreate(context.Background(), f.customerID)
	if err != nil {
		t.Fatalf("get or create failed: %v", err)
	}
	if cart.ID != winner.ID {
		t.Fatalf("expected the winner's cart, got %s", cart.ID)
	}
	if len(f.repo.carts) != 1 {
		t.Fatalf("expected a single cart, got %d", len(f.repo.carts))
	}
	// No create audit entry for the losing insert.
	if len(f.recorder.changes) != 0 {
		t.Fatalf("expected no audit entries, got %+v", f.recorder.changes)
	}
}

func TestAddLineLandsOnWinnerCartAfterInsertRace(t *testing.T) {
	f := newCartFixture(t, 10)

	winner := &models.Cart{ID: uuid.New(), CustomerID: f.customerID, Status: enums.CartStatusActive}
	racing := &cartRaceRepo{stubCartRepo: f.repo, winner: winner}
	svc, err := NewService(racing, f.products, stubTxRunner{}, f.factory, f.recorder)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	line, err := svc.AddLine(context.Background(), f.customerID, f.productID, 2)
	if err != nil {
		t.Fatalf("add line failed: %v", err)
	}
	if line.CartID != winner.ID {
		t.Fatalf("expected line on the winner's cart, got %s", line.CartID)
	}
	if len(f.repo.carts) != 1 {
		t.Fatalf("expected a single cart, got %d", len(f.repo.carts))
	}
}

func TestAddLineGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newCartFixture(t, 10)

	violation := &pgconn.PgError{Code: "23505", ConstraintName: "uq_cart_lines_cart_product"}
	f.repo.createLineErrs = []error{violation, violation, violation}

	_, err := f.svc.AddLine(context.Background(), f.customerID, f.productID, 1)
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict after retries, got %v", err)
	}
}

func TestRemoveLine(t *testing.T) {
	f := newCartFixture(t, 10)

	line, err := f.svc.AddLine(context.Background(), f.customerID, f.productID, 2)
	if err != nil {
		t.Fatalf("add line failed: %v", err)
	}
	f.recorder.changes = nil

	if err := f.svc.RemoveLine(context.Background(), f.customerID, line.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(f.repo.lines) != 0 {
		t.Fatal("expected line to be deleted")
	}
	if len(f.recorder.changes) != 1 || f.recorder.changes[0].Action != enums.AuditActionDelete {
		t.Fatalf("expected delete audit entry, got %+v", f.recorder.changes)
	}

	if err := f.svc.RemoveLine(context.Background(), f.customerID, line.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found on second remove, got %v", err)
	}
}

func TestRemoveLineOwnershipReadsAsAbsence(t *testing.T) {
	f := newCartFixture(t, 10)

	line, err := f.svc.AddLine(context.Background(), f.customerID, f.productID, 2)
	if err != nil {
		t.Fatalf("add line failed: %v", err)
	}

	err = f.svc.RemoveLine(context.Background(), uuid.New(), line.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for foreign customer, got %v", err)
	}
}

func TestCheckout(t *testing.T) {
	f := newCartFixture(t, 10)

	if _, err := f.svc.AddLine(context.Background(), f.customerID, f.productID, 2); err != nil {
		t.Fatalf("add line failed: %v", err)
	}

	order, err := f.svc.Checkout(context.Background(), CheckoutInput{
		CustomerID:      f.customerID,
		PaymentMethod:   enums.PaymentMethodCard,
		ShippingAddress: "12 Main St",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if order == nil || order.CustomerID != f.customerID {
		t.Fatalf("unexpected order %+v", order)
	}
	if f.factory.placed == nil || len(f.factory.placed.Lines) != 1 {
		t.Fatalf("expected factory to receive the cart lines")
	}

	for _, cart := range f.repo.carts {
		if cart.Status != enums.CartStatusCompleted {
			t.Fatalf("expected cart to be completed, got %s", cart.Status)
		}
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newCartFixture(t, 10)

	// Cart exists but has no lines.
	if _, err := f.svc.GetOrCreate(context.Background(), f.customerID); err != nil {
		t.Fatalf("get or create failed: %v", err)
	}

	_, err := f.svc.Checkout(context.Background(), CheckoutInput{
		CustomerID:      f.customerID,
		PaymentMethod:   enums.PaymentMethodCash,
		ShippingAddress: "12 Main St",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCheckoutValidatesInput(t *testing.T) {
	f := newCartFixture(t, 10)

	_, err := f.svc.Checkout(context.Background(), CheckoutInput{
		CustomerID:      f.customerID,
		PaymentMethod:   enums.PaymentMethod("crypto"),
		ShippingAddress: "12 Main St",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = f.svc.Checkout(context.Background(), CheckoutInput{
		CustomerID:      f.customerID,
		PaymentMethod:   enums.PaymentMethodCard,
		ShippingAddress: "x",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for short address, got %v", err)
	}
}
