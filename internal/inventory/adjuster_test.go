package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgerrors "github.com/storefrontlabs/storefront-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	ddl := `CREATE TABLE products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL DEFAULT 'active',
		updated_at TIMESTAMP
	)`
	if err := db.Exec(ddl).Error; err != nil {
		t.Fatalf("create products table: %v", err)
	}
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, id uuid.UUID, stock int, state string) {
	t.Helper()
	err := db.Exec(
		"INSERT INTO products (id, name, stock, state) VALUES (?, ?, ?, ?)",
		id, "widget", stock, state,
	).Error
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func productStock(t *testing.T, db *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var stock int
	if err := db.Raw("SELECT stock FROM products WHERE id = ?", id).Scan(&stock).Error; err != nil {
		t.Fatalf("load stock: %v", err)
	}
	return stock
}

func TestReserveDecrementsStock(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	adj := NewAdjuster()

	productID := uuid.New()
	seedProduct(t, db, productID, 10, "active")

	err := db.Transaction(func(tx *gorm.DB) error {
		return adj.Reserve(ctx, tx, productID, 3)
	})
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if got := productStock(t, db, productID); got != 7 {
		t.Fatalf("expected stock 7, got %d", got)
	}
}

func TestReserveInsufficientStock(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	adj := NewAdjuster()

	productID := uuid.New()
	seedProduct(t, db, productID, 2, "active")

	err := db.Transaction(func(tx *gorm.DB) error {
		return adj.Reserve(ctx, tx, productID, 5)
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficient) {
		t.Fatalf("expected insufficient inventory error, got %v", err)
	}

	typed := pkgerrors.As(err)
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	if details["available"] != 2 || details["requested"] != 5 {
		t.Fatalf("unexpected details %v", details)
	}
	if got := productStock(t, db, productID); got != 2 {
		t.Fatalf("stock must be untouched, got %d", got)
	}
}

func TestReserveUnknownOrInactiveProduct(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	adj := NewAdjuster()

	err := db.Transaction(func(tx *gorm.DB) error {
		return adj.Reserve(ctx, tx, uuid.New(), 1)
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}

	inactiveID := uuid.New()
	seedProduct(t, db, inactiveID, 10, "inactive")
	err = db.Transaction(func(tx *gorm.DB) error {
		return adj.Reserve(ctx, tx, inactiveID, 1)
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for inactive product, got %v", err)
	}
}

func TestReserveRejectsInvalidQuantity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	adj := NewAdjuster()

	productID := uuid.New()
	seedProduct(t, db, productID, 10, "active")

	for _, qty := range []int{0, -3} {
		err := db.Transaction(func(tx *gorm.DB) error {
			return adj.Reserve(ctx, tx, productID, qty)
		})
		if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidQuantity) {
			t.Fatalf("expected invalid quantity for %d, got %v", qty, err)
		}
	}

	if err := (adjuster{}).Reserve(ctx, nil, productID, 1); !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error without tx, got %v", err)
	}
}

func TestRestockIncrementsStock(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	adj := NewAdjuster()

	productID := uuid.New()
	seedProduct(t, db, productID, 2, "active")

	err := db.Transaction(func(tx *gorm.DB) error {
		return adj.Restock(ctx, tx, productID, 4)
	})
	if err != nil {
		t.Fatalf("restock failed: %v", err)
	}
	if got := productStock(t, db, productID); got != 6 {
		t.Fatalf("expected stock 6, got %d", got)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return adj.Restock(ctx, tx, uuid.New(), 1)
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// Concurrent reservations against one row must never oversell: with stock 5
// and ten workers asking for 1, exactly five succeed.
func TestReserveConcurrentDoesNotOversell(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	adj := NewAdjuster()

	productID := uuid.New()
	seedProduct(t, db, productID, 5, "active")

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- db.Transaction(func(tx *gorm.DB) error {
				return adj.Reserve(ctx, tx, productID, 1)
			})
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		}
	}
	if succeeded > 5 {
		t.Fatalf("oversold: %d reservations succeeded with stock 5", succeeded)
	}
	if got := productStock(t, db, productID); got < 0 {
		t.Fatalf("stock went negative: %d", got)
	}
	if got := productStock(t, db, productID); got != 5-succeeded {
		t.Fatalf("expected stock %d, got %d", 5-succeeded, got)
	}
}
