package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/storefrontlabs/storefront-backend/pkg/errors"
)

// Adjuster is the single mutation path for product stock. Every decrement and
// increment goes through here inside the caller's transaction.
type Adjuster interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Restock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type adjuster struct{}

// NewAdjuster exposes the default stock adjuster.
func NewAdjuster() Adjuster {
	return adjuster{}
}

// Reserve decrements stock by qty. The guard in the UPDATE keeps the check and
// the decrement atomic, so concurrent reservations can never oversell.
func (adjuster) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if err := validateAdjustment(tx, productID, qty); err != nil {
		return err
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET stock = stock - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state = 'active' AND stock >= ?
	`, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
	}
	if res.RowsAffected == 0 {
		return reserveFailure(ctx, tx, productID, qty)
	}
	return nil
}

// Restock increments stock by qty, used when an order line is removed or an
// inactive duplicate product absorbs a re-create.
func (adjuster) Restock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if err := validateAdjustment(tx, productID, qty); err != nil {
		return err
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET stock = stock + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, qty, productID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

func validateAdjustment(tx *gorm.DB, productID uuid.UUID, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "stock adjustment requires a transaction")
	}
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be positive")
	}
	return nil
}

// reserveFailure reloads the row to report why the guarded decrement matched
// nothing.
func reserveFailure(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	var row struct {
		Stock int
		State enums.EntityState
	}
	err := tx.WithContext(ctx).
		Table("products").
		Select("stock", "state").
		Where("id = ?", productID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product stock")
	}
	if row.State != enums.EntityStateActive {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return pkgerrors.New(
		pkgerrors.CodeInsufficient,
		fmt.Sprintf("requested %d, only %d available", qty, row.Stock),
	).WithDetails(map[string]any{
		"requested": qty,
		"available": row.Stock,
	})
}
