package customers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/internal/audit"
	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	"github.com/storefrontlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/storefrontlabs/storefront-backend/pkg/errors"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubCustomerRepo struct {
	customers  map[uuid.UUID]*models.Customer
	userStates map[uuid.UUID]enums.EntityState
}

func newStubCustomerRepo() *stubCustomerRepo {
	return &stubCustomerRepo{
		customers:  map[uuid.UUID]*models.Customer{},
		userStates: map[uuid.UUID]enums.EntityState{},
	}
}

func (s *stubCustomerRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubCustomerRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Customer, error) {
	for _, customer := range s.customers {
		if customer.UserID == userID {
			copied := *customer
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCustomerRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	customer, ok := s.customers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *customer
	return &copied, nil
}

func (s *stubCustomerRepo) UpdateCustomer(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	customer, ok := s.customers[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for column, value := range updates {
		switch column {
		case "first_name":
			customer.FirstName = value.(string)
		case "last_name":
			customer.LastName = value.(string)
		case "phone":
			phone := value.(string)
			customer.Phone = &phone
		case "address":
			address := value.(string)
			customer.Address = &address
		case "state":
			customer.State = value.(enums.EntityState)
		}
	}
	return nil
}

func (s *stubCustomerRepo) UpdateUserState(ctx context.Context, userID uuid.UUID, state enums.EntityState) error {
	s.userStates[userID] = state
	return nil
}

type stubRecorder struct {
	changes []audit.Change
}

func (s *stubRecorder) Record(ctx context.Context, tx *gorm.DB, change audit.Change) error {
	s.changes = append(s.changes, change)
	return nil
}

func newCustomerFixture(t *testing.T) (Service, *stubCustomerRepo, *stubRecorder, uuid.UUID) {
	t.Helper()
	repo := newStubCustomerRepo()
	recorder := &stubRecorder{}

	userID := uuid.New()
	customerID := uuid.New()
	repo.customers[customerID] = &models.Customer{
		ID:        customerID,
		UserID:    userID,
		FirstName: "Ada",
		LastName:  "Lovelace",
		State:     enums.EntityStateActive,
	}

	svc, err := NewService(repo, stubTxRunner{}, recorder)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, repo, recorder, userID
}

func TestGetProfile(t *testing.T) {
	svc, _, _, userID := newCustomerFixture(t)

	customer, err := svc.GetProfile(context.Background(), userID)
	if err != nil {
		t.Fatalf("get profile failed: %v", err)
	}
	if customer.FirstName != "Ada" {
		t.Fatalf("unexpected profile %+v", customer)
	}

	if _, err := svc.GetProfile(context.Background(), uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _, recorder, userID := newCustomerFixture(t)

	phone := "  555-0100 "
	updated, err := svc.UpdateProfile(context.Background(), userID, UpdateProfileInput{Phone: &phone})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Phone == nil || *updated.Phone != "555-0100" {
		t.Fatalf("expected trimmed phone, got %v", updated.Phone)
	}
	if len(recorder.changes) != 1 || recorder.changes[0].Action != enums.AuditActionUpdate {
		t.Fatalf("expected one update audit entry, got %+v", recorder.changes)
	}
}

func TestUpdateProfileValidation(t *testing.T) {
	svc, _, _, userID := newCustomerFixture(t)

	if _, err := svc.UpdateProfile(context.Background(), userID, UpdateProfileInput{}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty input, got %v", err)
	}

	blank := "  "
	_, err := svc.UpdateProfile(context.Background(), userID, UpdateProfileInput{FirstName: &blank})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
}

func TestDeactivate(t *testing.T) {
	svc, repo, recorder, userID := newCustomerFixture(t)

	if err := svc.Deactivate(context.Background(), userID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if repo.userStates[userID] != enums.EntityStateInactive {
		t.Fatal("expected user to be deactivated with the profile")
	}
	if len(recorder.changes) != 1 || recorder.changes[0].Action != enums.AuditActionDelete {
		t.Fatalf("expected delete audit entry, got %+v", recorder.changes)
	}

	// The row survives, reads just stop seeing it.
	if _, err := svc.GetProfile(context.Background(), userID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found after deactivation, got %v", err)
	}
	if err := svc.Deactivate(context.Background(), userID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found on second deactivation, got %v", err)
	}
}
