package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/pkg/enums"
)

// User represents the canonical identity entity.
type User struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Email        string            `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string            `gorm:"column:password_hash;not null"`
	Role         enums.UserRole    `gorm:"column:role;type:text;not null;default:'customer'"`
	State        enums.EntityState `gorm:"column:state;type:text;not null;default:'active'"`

	EmailConfirmed      bool       `gorm:"column:email_confirmed;not null;default:false"`
	ConfirmationPinHash *string    `gorm:"column:confirmation_pin_hash"`
	ConfirmationPinExp  *time.Time `gorm:"column:confirmation_pin_expires_at"`
	ResetPinHash        *string    `gorm:"column:reset_pin_hash"`
	ResetPinExp         *time.Time `gorm:"column:reset_pin_expires_at"`

	LastLoginAt *time.Time `gorm:"column:last_login_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
