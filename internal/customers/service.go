package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/internal/audit"
	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	"github.com/storefrontlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/storefrontlabs/storefront-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines customer profile operations.
type Service interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Customer, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*models.Customer, error)
	Deactivate(ctx context.Context, userID uuid.UUID) error
}

// UpdateProfileInput carries optional profile changes. Nil fields are left
// untouched.
type UpdateProfileInput struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Address   *string
}

type service struct {
	repo     Repository
	tx       txRunner
	recorder audit.Recorder
}

// NewService builds the customer service with the required dependencies.
func NewService(repo Repository, tx txRunner, recorder audit.Recorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	return &service{repo: repo, tx: tx, recorder: recorder}, nil
}

func (s *service) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Customer, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	customer, err := s.activeProfile(ctx, s.repo, userID)
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*models.Customer, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	updates, err := buildProfileUpdates(input)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}

	var updated *models.Customer
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		customer, err := s.activeProfile(ctx, repo, userID)
		if err != nil {
			return err
		}

		before := snapshotCustomer(customer)
		if err := repo.UpdateCustomer(ctx, customer.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update profile")
		}

		customer, err = repo.FindByID(ctx, customer.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload profile")
		}
		updated = customer

		return s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityCustomers,
			RecordID: customer.ID,
			Action:   enums.AuditActionUpdate,
			Before:   before,
			After:    snapshotCustomer(customer),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Deactivate retires the profile and its login together. Rows stay in place
// for the audit trail, only the state flips.
func (s *service) Deactivate(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		customer, err := s.activeProfile(ctx, repo, userID)
		if err != nil {
			return err
		}

		before := snapshotCustomer(customer)
		updates := map[string]any{"state": enums.EntityStateInactive}
		if err := repo.UpdateCustomer(ctx, customer.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate profile")
		}
		if err := repo.UpdateUserState(ctx, userID, enums.EntityStateInactive); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate user")
		}
		customer.State = enums.EntityStateInactive

		return s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityCustomers,
			RecordID: customer.ID,
			Action:   enums.AuditActionDelete,
			Before:   before,
			After:    snapshotCustomer(customer),
		})
	})
}

func (s *service) activeProfile(ctx context.Context, repo Repository, userID uuid.UUID) (*models.Customer, error) {
	customer, err := repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	if customer.State != enums.EntityStateActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
	}
	return customer, nil
}

func buildProfileUpdates(input UpdateProfileInput) (map[string]any, error) {
	updates := map[string]any{}
	if input.FirstName != nil {
		name := strings.TrimSpace(*input.FirstName)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "first name cannot be empty")
		}
		updates["first_name"] = name
	}
	if input.LastName != nil {
		name := strings.TrimSpace(*input.LastName)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "last name cannot be empty")
		}
		updates["last_name"] = name
	}
	if input.Phone != nil {
		updates["phone"] = strings.TrimSpace(*input.Phone)
	}
	if input.Address != nil {
		updates["address"] = strings.TrimSpace(*input.Address)
	}
	return updates, nil
}

type customerSnapshot struct {
	UserID    uuid.UUID `json:"user_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     *string   `json:"phone,omitempty"`
	Address   *string   `json:"address,omitempty"`
	State     string    `json:"state"`
}

func snapshotCustomer(c *models.Customer) customerSnapshot {
	return customerSnapshot{
		UserID:    c.UserID,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Phone:     c.Phone,
		Address:   c.Address,
		State:     c.State.String(),
	}
}
