package auth

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/internal/audit"
	pkgauth "github.com/storefrontlabs/storefront-backend/pkg/auth"
	"github.com/storefrontlabs/storefront-backend/pkg/config"
	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	"github.com/storefrontlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/storefrontlabs/storefront-backend/pkg/errors"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubIdentityRepo struct {
	users     map[uuid.UUID]*models.User
	customers map[uuid.UUID]*models.Customer
}

func newStubIdentityRepo() *stubIdentityRepo {
	return &stubIdentityRepo{
		users:     map[uuid.UUID]*models.User{},
		customers: map[uuid.UUID]*models.Customer{},
	}
}

func (s *stubIdentityRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubIdentityRepo) CreateUser(ctx context.Context, user *models.User) error {
	for _, existing := range s.users {
		if existing.Email == user.Email {
			// Matches the driver error shape the service maps to a conflict.
			return &uniqueViolation{constraint: "uq_users_email"}
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	s.users[user.ID] = user
	return nil
}

// uniqueViolation mimics a driver duplicate-key error via the string fallback.
type uniqueViolation struct {
	constraint string
}

func (u *uniqueViolation) Error() string {
	return "duplicate key value violates unique constraint \"" + u.constraint + "\""
}

func (s *stubIdentityRepo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range s.users {
		if user.Email == strings.ToLower(strings.TrimSpace(email)) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubIdentityRepo) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *stubIdentityRepo) UpdateUser(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	user, ok := s.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for column, value := range updates {
		switch column {
		case "email_confirmed":
			user.EmailConfirmed = value.(bool)
		case "confirmation_pin_hash":
			user.ConfirmationPinHash = optionalString(value)
		case "confirmation_pin_expires_at":
			user.ConfirmationPinExp = optionalTime(value)
		case "reset_pin_hash":
			user.ResetPinHash = optionalString(value)
		case "reset_pin_expires_at":
			user.ResetPinExp = optionalTime(value)
		case "password_hash":
			user.PasswordHash = value.(string)
		case "last_login_at":
			t := value.(time.Time)
			user.LastLoginAt = &t
		}
	}
	return nil
}

func optionalString(value any) *string {
	if value == nil {
		return nil
	}
	s := value.(string)
	return &s
}

func optionalTime(value any) *time.Time {
	if value == nil {
		return nil
	}
	t := value.(time.Time)
	return &t
}

func (s *stubIdentityRepo) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	if customer.ID == uuid.Nil {
		customer.ID = uuid.New()
	}
	s.customers[customer.ID] = customer
	return nil
}

type stubRecorder struct {
	changes []audit.Change
}

func (s *stubRecorder) Record(ctx context.Context, tx *gorm.DB, change audit.Change) error {
	s.changes = append(s.changes, change)
	return nil
}

type stubMailer struct {
	sent []sentMail
}

type sentMail struct {
	to      string
	subject string
	body    string
}

func (s *stubMailer) Send(ctx context.Context, to, subject, body string) error {
	s.sent = append(s.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

var pinPattern = regexp.MustCompile(`\b\d{6}\b`)

func (s *stubMailer) lastPin(t *testing.T) string {
	t.Helper()
	if len(s.sent) == 0 {
		t.Fatal("no mail sent")
	}
	pin := pinPattern.FindString(s.sent[len(s.sent)-1].body)
	if pin == "" {
		t.Fatalf("no pin in mail body %q", s.sent[len(s.sent)-1].body)
	}
	return pin
}

type authFixture struct {
	svc      Service
	repo     *stubIdentityRepo
	recorder *stubRecorder
	mailer   *stubMailer
}

func testConfigs() (config.JWTConfig, config.PasswordConfig) {
	jwtCfg := config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "storefront-test",
		ExpirationMinutes: 15,
	}
	// Cheap argon parameters keep the suite fast.
	pwCfg := config.PasswordConfig{
		ArgonMemoryKB:    8192,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
		PinTTL:           15 * time.Minute,
	}
	return jwtCfg, pwCfg
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	repo := newStubIdentityRepo()
	recorder := &stubRecorder{}
	sender := &stubMailer{}
	jwtCfg, pwCfg := testConfigs()

	svc, err := NewService(repo, stubTxRunner{}, recorder, sender, jwtCfg, pwCfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &authFixture{svc: svc, repo: repo, recorder: recorder, mailer: sender}
}

func (f *authFixture) register(t *testing.T, email string) *models.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  "hunter2hunter2",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return user
}

func TestRegisterCreatesUserProfileAndMailsPin(t *testing.T) {
	f := newAuthFixture(t)

	user := f.register(t, "Ada@Example.com ")
	if user.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.EmailConfirmed {
		t.Fatal("expected email to start unconfirmed")
	}
	if len(f.repo.customers) != 1 {
		t.Fatalf("expected customer profile, got %d", len(f.repo.customers))
	}
	// user create + customer create
	if len(f.recorder.changes) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(f.recorder.changes))
	}
	if pin := f.mailer.lastPin(t); len(pin) != 6 {
		t.Fatalf("expected 6-digit pin, got %q", pin)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "ada@example.com")

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     "ada@example.com",
		Password:  "hunter2hunter2",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture(t)

	cases := []RegisterInput{
		{Email: "", Password: "hunter2hunter2", FirstName: "A", LastName: "B"},
		{Email: "not-an-email", Password: "hunter2hunter2", FirstName: "A", LastName: "B"},
		{Email: "a@example.com", Password: "short", FirstName: "A", LastName: "B"},
		{Email: "a@example.com", Password: "hunter2hunter2", FirstName: " ", LastName: "B"},
	}
	for _, input := range cases {
		if _, err := f.svc.Register(context.Background(), input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %+v, got %v", input, err)
		}
	}
}

func TestConfirmEmailThenLogin(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "ada@example.com")
	pin := f.mailer.lastPin(t)

	// Login before confirmation is rejected.
	_, err := f.svc.Login(context.Background(), "ada@example.com", "hunter2hunter2")
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict before confirmation, got %v", err)
	}

	if err := f.svc.ConfirmEmail(context.Background(), "ada@example.com", pin); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	result, err := f.svc.Login(context.Background(), "ada@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if result.Token == "" {
		t.Fatal("expected a token")
	}
	if result.User.LastLoginAt == nil {
		t.Fatal("expected last login to be recorded")
	}

	jwtCfg, _ := testConfigs()
	claims, err := pkgauth.ParseAccessToken(jwtCfg, result.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Email != "ada@example.com" || claims.Role != enums.UserRoleCustomer {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestConfirmEmailWrongPin(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "ada@example.com")
	pin := f.mailer.lastPin(t)

	wrong := "000000"
	if wrong == pin {
		wrong = "000001"
	}
	err := f.svc.ConfirmEmail(context.Background(), "ada@example.com", wrong)
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	if err := f.svc.ConfirmEmail(context.Background(), "ada@example.com", pin); err != nil {
		t.Fatalf("confirm with correct pin failed: %v", err)
	}
	err = f.svc.ConfirmEmail(context.Background(), "ada@example.com", pin)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on second confirm, got %v", err)
	}
}

func TestLoginWrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "ada@example.com")
	pin := f.mailer.lastPin(t)
	if err := f.svc.ConfirmEmail(context.Background(), "ada@example.com", pin); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	_, wrongPw := f.svc.Login(context.Background(), "ada@example.com", "wrong-password")
	_, unknown := f.svc.Login(context.Background(), "ghost@example.com", "hunter2hunter2")

	if !pkgerrors.IsCode(wrongPw, pkgerrors.CodeUnauthorized) || !pkgerrors.IsCode(unknown, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for both, got %v and %v", wrongPw, unknown)
	}
	if pkgerrors.As(wrongPw).Error() != pkgerrors.As(unknown).Error() {
		t.Fatal("expected identical messages for wrong password and unknown user")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "ada@example.com")
	confirmPin := f.mailer.lastPin(t)
	if err := f.svc.ConfirmEmail(context.Background(), "ada@example.com", confirmPin); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	if err := f.svc.RequestPasswordReset(context.Background(), "ada@example.com"); err != nil {
		t.Fatalf("request reset failed: %v", err)
	}
	resetPin := f.mailer.lastPin(t)

	err := f.svc.ResetPassword(context.Background(), "ada@example.com", resetPin, "correct-horse-battery")
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	if _, err := f.svc.Login(context.Background(), "ada@example.com", "hunter2hunter2"); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected old password to stop working, got %v", err)
	}
	if _, err := f.svc.Login(context.Background(), "ada@example.com", "correct-horse-battery"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}

	// The PIN is single use.
	err = f.svc.ResetPassword(context.Background(), "ada@example.com", resetPin, "another-password1")
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized on pin reuse, got %v", err)
	}
}

func TestRequestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	f := newAuthFixture(t)

	if err := f.svc.RequestPasswordReset(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if len(f.mailer.sent) != 0 {
		t.Fatal("expected no mail for unknown email")
	}
}

func TestExpiredPinRejected(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "ada@example.com")
	pin := f.mailer.lastPin(t)

	svc := f.svc.(*service)
	svc.now = func() time.Time { return time.Now().Add(time.Hour) }

	err := f.svc.ConfirmEmail(context.Background(), "ada@example.com", pin)
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for expired pin, got %v", err)
	}
}
