package audit

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	pkgerrors "github.com/storefrontlabs/storefront-backend/pkg/errors"
)

type recorder struct {
	repo Repository
}

// NewRecorder builds the transactional audit recorder.
func NewRecorder(repo Repository) (Recorder, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &recorder{repo: repo}, nil
}

// Record appends one audit entry using the caller's transaction so the entry
// commits and rolls back together with the mutation it describes.
func (r *recorder) Record(ctx context.Context, tx *gorm.DB, change Change) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "audit record requires a transaction")
	}
	if err := change.validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invalid audit change")
	}

	before, err := snapshot(change.Before)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "snapshot before state")
	}
	after, err := snapshot(change.After)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "snapshot after state")
	}
	changes, err := diff(before, after)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "diff audit states")
	}

	actor := ActorFromContext(ctx)
	entry := &models.AuditLog{
		EntityName:  change.Entity,
		RecordID:    change.RecordID,
		Action:      change.Action,
		ActorID:     actor.ID,
		ActorEmail:  actor.Email,
		IPAddress:   actor.IP,
		Endpoint:    actor.Endpoint,
		BeforeState: before,
		AfterState:  after,
		Changes:     changes,
	}

	if err := r.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist audit entry")
	}
	return nil
}
