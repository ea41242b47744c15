package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/pkg/enums"
)

// Cart is a customer's open basket. One active cart per customer at a time.
type Cart struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey"`
	CustomerID uuid.UUID        `gorm:"column:customer_id;type:uuid;not null"`
	Status     enums.CartStatus `gorm:"column:status;type:text;not null;default:'active'"`
	Lines      []CartLine       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
