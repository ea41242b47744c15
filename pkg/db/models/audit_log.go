package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/pkg/enums"
)

// AuditLog is the append-only record of entity mutations. Actor fields are
// nullable so system-initiated changes can still be recorded.
type AuditLog struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey"`
	EntityName enums.AuditEntity `gorm:"column:entity_name;type:text;not null;index:idx_audit_logs_entity"`
	RecordID   uuid.UUID         `gorm:"column:record_id;type:uuid;not null;index:idx_audit_logs_entity"`
	Action     enums.AuditAction `gorm:"column:action;type:text;not null"`

	ActorID    *uuid.UUID `gorm:"column:actor_id;type:uuid"`
	ActorEmail *string    `gorm:"column:actor_email"`
	IPAddress  *string    `gorm:"column:ip_address"`
	Endpoint   *string    `gorm:"column:endpoint"`

	BeforeState json.RawMessage `gorm:"column:before_state;type:jsonb"`
	AfterState  json.RawMessage `gorm:"column:after_state;type:jsonb"`
	Changes     json.RawMessage `gorm:"column:changes;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
