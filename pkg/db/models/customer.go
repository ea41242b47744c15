package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/pkg/enums"
)

// Customer holds the storefront profile attached to a User.
type Customer struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID         `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	FirstName string            `gorm:"column:first_name;not null"`
	LastName  string            `gorm:"column:last_name;not null"`
	Phone     *string           `gorm:"column:phone"`
	Address   *string           `gorm:"column:address"`
	State     enums.EntityState `gorm:"column:state;type:text;not null;default:'active'"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Customer) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
