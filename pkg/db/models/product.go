package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/pkg/enums"
)

// Product represents a catalog listing with its on-hand stock.
type Product struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Name        string            `gorm:"column:name;not null"`
	Description string            `gorm:"column:description;not null;default:''"`
	Price       decimal.Decimal   `gorm:"column:price;type:numeric(10,2);not null"`
	Stock       int               `gorm:"column:stock;not null;default:0"`
	CategoryID  uuid.UUID         `gorm:"column:category_id;type:uuid;not null"`
	State       enums.EntityState `gorm:"column:state;type:text;not null;default:'active'"`
	Category    *Category         `gorm:"foreignKey:CategoryID"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
