package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/internal/audit"
	pkgauth "github.com/storefrontlabs/storefront-backend/pkg/auth"
	"github.com/storefrontlabs/storefront-backend/pkg/config"
	"github.com/storefrontlabs/storefront-backend/pkg/db"
	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	"github.com/storefrontlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/storefrontlabs/storefront-backend/pkg/errors"
	"github.com/storefrontlabs/storefront-backend/pkg/mailer"
	"github.com/storefrontlabs/storefront-backend/pkg/security"
)

// MinPasswordLength is the minimum accepted password size at registration
// and reset.
const MinPasswordLength = 8

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the authentication flows.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	ConfirmEmail(ctx context.Context, email, pin string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, pin, newPassword string) error
}

// RegisterInput carries the fields needed to create a user and their profile.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     *string
	Address   *string
}

// LoginResult pairs the signed token with the authenticated user.
type LoginResult struct {
	Token string
	User  *models.User
}

type service struct {
	repo     Repository
	tx       txRunner
	recorder audit.Recorder
	mail     mailer.Sender
	jwtCfg   config.JWTConfig
	pwCfg    config.PasswordConfig
	now      func() time.Time
}

// NewService builds the auth service with the required dependencies.
func NewService(repo Repository, tx txRunner, recorder audit.Recorder, mail mailer.Sender, jwtCfg config.JWTConfig, pwCfg config.PasswordConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("identity repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if mail == nil {
		return nil, fmt.Errorf("mail sender required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		recorder: recorder,
		mail:     mail,
		jwtCfg:   jwtCfg,
		pwCfg:    pwCfg,
		now:      time.Now,
	}, nil
}

// Register creates the user and their customer profile in one transaction and
// mails a confirmation PIN.
func (s *service) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if len(input.Password) < MinPasswordLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if strings.TrimSpace(input.FirstName) == "" || strings.TrimSpace(input.LastName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "first and last name required")
	}

	passwordHash, err := security.HashPassword(input.Password, s.pwCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	pin, err := security.GeneratePin()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate confirmation pin")
	}
	pinHash := security.HashPin(pin)
	pinExp := s.now().Add(s.pwCfg.PinTTL)

	var created *models.User
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		user := &models.User{
			Email:               email,
			PasswordHash:        passwordHash,
			Role:                enums.UserRoleCustomer,
			State:               enums.EntityStateActive,
			ConfirmationPinHash: &pinHash,
			ConfirmationPinExp:  &pinExp,
		}
		if err := repo.CreateUser(ctx, user); err != nil {
			if db.IsUniqueViolation(err, "uq_users_email") {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
		}

		customer := &models.Customer{
			UserID:    user.ID,
			FirstName: strings.TrimSpace(input.FirstName),
			LastName:  strings.TrimSpace(input.LastName),
			Phone:     input.Phone,
			Address:   input.Address,
			State:     enums.EntityStateActive,
		}
		if err := repo.CreateCustomer(ctx, customer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create customer profile")
		}

		err := s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityUsers,
			RecordID: user.ID,
			Action:   enums.AuditActionCreate,
			After:    snapshotUser(user),
		})
		if err != nil {
			return err
		}
		err = s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityCustomers,
			RecordID: customer.ID,
			Action:   enums.AuditActionCreate,
			After:    snapshotCustomer(customer),
		})
		if err != nil {
			return err
		}

		created = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Mail delivery is best effort, the PIN can be re-requested.
	_ = s.mail.Send(ctx, email, "Confirm your email",
		fmt.Sprintf("Your confirmation PIN is %s. It expires in %s.", pin, s.pwCfg.PinTTL))

	return created, nil
}

// Login verifies credentials and mints an access token. All credential
// failures share one message so responses never reveal which part was wrong.
func (s *service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password required")
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidCredentials()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user.State != enums.EntityStateActive {
		return nil, invalidCredentials()
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return nil, invalidCredentials()
	}
	if !user.EmailConfirmed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "email not confirmed")
	}

	token, err := pkgauth.MintAccessToken(s.jwtCfg, s.now(), pkgauth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint token")
	}

	loginAt := s.now()
	if err := s.repo.UpdateUser(ctx, user.ID, map[string]any{"last_login_at": loginAt}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record login")
	}
	user.LastLoginAt = &loginAt

	return &LoginResult{Token: token, User: user}, nil
}

// ConfirmEmail validates the mailed PIN and marks the account usable.
func (s *service) ConfirmEmail(ctx context.Context, email, pin string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		user, err := repo.FindUserByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		if user.EmailConfirmed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "email already confirmed")
		}
		if err := checkPin(pin, user.ConfirmationPinHash, user.ConfirmationPinExp, s.now()); err != nil {
			return err
		}

		before := snapshotUser(user)
		updates := map[string]any{
			"email_confirmed":             true,
			"confirmation_pin_hash":       nil,
			"confirmation_pin_expires_at": nil,
		}
		if err := repo.UpdateUser(ctx, user.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm email")
		}
		user.EmailConfirmed = true

		return s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityUsers,
			RecordID: user.ID,
			Action:   enums.AuditActionUpdate,
			Before:   before,
			After:    snapshotUser(user),
		})
	})
}

// RequestPasswordReset mails a reset PIN. Unknown emails return success so the
// endpoint cannot be used to enumerate accounts.
func (s *service) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user.State != enums.EntityStateActive {
		return nil
	}

	pin, err := security.GeneratePin()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate reset pin")
	}
	pinHash := security.HashPin(pin)
	pinExp := s.now().Add(s.pwCfg.PinTTL)

	updates := map[string]any{
		"reset_pin_hash":       pinHash,
		"reset_pin_expires_at": pinExp,
	}
	if err := s.repo.UpdateUser(ctx, user.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store reset pin")
	}

	_ = s.mail.Send(ctx, email, "Reset your password",
		fmt.Sprintf("Your password reset PIN is %s. It expires in %s.", pin, s.pwCfg.PinTTL))
	return nil
}

// ResetPassword replaces the password after validating the mailed PIN.
func (s *service) ResetPassword(ctx context.Context, email, pin, newPassword string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if len(newPassword) < MinPasswordLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	passwordHash, err := security.HashPassword(newPassword, s.pwCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		user, err := repo.FindUserByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		if err := checkPin(pin, user.ResetPinHash, user.ResetPinExp, s.now()); err != nil {
			return err
		}

		before := snapshotUser(user)
		updates := map[string]any{
			"password_hash":        passwordHash,
			"reset_pin_hash":       nil,
			"reset_pin_expires_at": nil,
		}
		if err := repo.UpdateUser(ctx, user.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset password")
		}

		return s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityUsers,
			RecordID: user.ID,
			Action:   enums.AuditActionUpdate,
			Before:   before,
			After:    snapshotUser(user),
		})
	})
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "email required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid email address")
	}
	return email, nil
}

func invalidCredentials() error {
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
}

func checkPin(pin string, digest *string, expiresAt *time.Time, now time.Time) error {
	if len(pin) != security.PinLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("pin must be %d digits", security.PinLength))
	}
	if digest == nil || expiresAt == nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "no pending pin")
	}
	if now.After(*expiresAt) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "pin expired")
	}
	if !security.VerifyPin(pin, *digest) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid pin")
	}
	return nil
}

type userSnapshot struct {
	Email          string `json:"email"`
	Role           string `json:"role"`
	State          string `json:"state"`
	EmailConfirmed bool   `json:"email_confirmed"`
}

func snapshotUser(u *models.User) userSnapshot {
	return userSnapshot{
		Email:          u.Email,
		Role:           u.Role.String(),
		State:          u.State.String(),
		EmailConfirmed: u.EmailConfirmed,
	}
}

type customerSnapshot struct {
	UserID    uuid.UUID `json:"user_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	State     string    `json:"state"`
}

func snapshotCustomer(c *models.Customer) customerSnapshot {
	return customerSnapshot{
		UserID:    c.UserID,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		State:     c.State.String(),
	}
}
