// Package models holds the persistence entities shared by every domain
// service. Primary keys are generated application-side in BeforeCreate hooks
// so the same migrations run on postgres and sqlite.
package models

import "github.com/google/uuid"

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
