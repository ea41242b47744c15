package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/pkg/enums"
)

// Order is a placed purchase. Total caches the sum of line subtotals and is
// recomputed inside the same transaction as any line mutation.
type Order struct {
	ID              uuid.UUID           `gorm:"type:uuid;primaryKey"`
	CustomerID      uuid.UUID           `gorm:"column:customer_id;type:uuid;not null"`
	Status          enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	Total           decimal.Decimal     `gorm:"column:total;type:numeric(10,2);not null;default:0"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	ShippingAddress string              `gorm:"column:shipping_address;not null"`
	Lines           []OrderLine         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PlacedAt        time.Time           `gorm:"column:placed_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
