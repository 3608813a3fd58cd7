package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/store"
	"backoffice-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AdminStore persists admin accounts
type AdminStore interface {
	CreateAdmin(ctx context.Context, admin *models.Admin) error
	GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error)
	GetAdminByID(ctx context.Context, id int64) (*models.Admin, error)
	MarkAdminVerified(ctx context.Context, id int64) error
	UpdateAdminPassword(ctx context.Context, id int64, passwordHash string) error
	TouchLastLoginAttempt(ctx context.Context, id int64, at time.Time) error
}

// OtpGate issues and checks one-time codes
type OtpGate interface {
	Issue(ctx context.Context, email, purpose string) error
	Verify(ctx context.Context, email, purpose, code string) bool
}

// AuthService runs registration and the two-step login
type AuthService struct {
	store       AdminStore
	otp         OtpGate
	jwtSecret   string
	tokenTTL    time.Duration
	loginWindow time.Duration
	bcryptCost  int
	now         func() time.Time
	logger      *zap.Logger
}

// NewAuthService creates a new auth service. loginWindow bounds how long after a
// password check a login code may be resent; it is normally the OTP TTL.
func NewAuthService(store AdminStore, otp OtpGate, jwtSecret string, tokenTTL, loginWindow time.Duration) *AuthService {
	return &AuthService{
		store:       store,
		otp:         otp,
		jwtSecret:   jwtSecret,
		tokenTTL:    tokenTTL,
		loginWindow: loginWindow,
		bcryptCost:  bcrypt.DefaultCost,
		now:         time.Now,
		logger:      util.GetLogger(),
	}
}

// LoginResult is returned once both login steps succeeded
type LoginResult struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Admin     *models.Admin `json:"admin"`
}

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Register creates an unverified admin and sends a registration code. An
// existing unverified account takes the new password and gets a fresh code,
// so whoever confirms the code owns the password.
func (s *AuthService) Register(ctx context.Context, email, password string) error {
	email = models.NormalizeEmail(email)
	if err := checkStruct(credentials{Email: email, Password: password}); err != nil {
		return err
	}

	existing, err := s.store.GetAdminByEmail(ctx, email)
	switch {
	case err == nil && existing.IsVerified:
		return fmt.Errorf("email %s is already registered: %w", email, ErrConflict)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if existing != nil {
		if err := s.store.UpdateAdminPassword(ctx, existing.ID, string(hash)); err != nil {
			return fmt.Errorf("failed to update admin: %w", err)
		}
		s.logger.Info("Re-sending registration otp to unverified admin", zap.Int64("admin_id", existing.ID))
		return s.otp.Issue(ctx, email, models.OtpPurposeRegister)
	}

	admin := &models.Admin{Email: email, PasswordHash: string(hash)}
	if err := s.store.CreateAdmin(ctx, admin); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("email %s is already registered: %w", email, ErrConflict)
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}
	s.logger.Info("Admin registered", zap.Int64("admin_id", admin.ID))

	return s.otp.Issue(ctx, email, models.OtpPurposeRegister)
}

// ConfirmRegistration verifies the registration code and marks the admin verified
func (s *AuthService) ConfirmRegistration(ctx context.Context, email, code string) error {
	email = models.NormalizeEmail(email)

	if !s.otp.Verify(ctx, email, models.OtpPurposeRegister, code) {
		return ErrInvalidOTP
	}

	admin, err := s.store.GetAdminByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidOTP
	}
	if err != nil {
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	if err := s.store.MarkAdminVerified(ctx, admin.ID); err != nil {
		return fmt.Errorf("failed to verify admin: %w", err)
	}
	s.logger.Info("Admin verified", zap.Int64("admin_id", admin.ID))
	return nil
}

// Login checks the password of a verified admin and sends a login code.
// It never returns a session token by itself.
func (s *AuthService) Login(ctx context.Context, email, password string) error {
	email = models.NormalizeEmail(email)

	admin, err := s.store.GetAdminByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	if !admin.IsVerified {
		return ErrAdminNotVerified
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	if err := s.store.TouchLastLoginAttempt(ctx, admin.ID, s.now()); err != nil {
		s.logger.Warn("Failed to record login attempt", zap.Int64("admin_id", admin.ID), zap.Error(err))
	}

	return s.otp.Issue(ctx, email, models.OtpPurposeLogin)
}

// VerifyLogin checks the login code and issues the session token
func (s *AuthService) VerifyLogin(ctx context.Context, email, code string) (*LoginResult, error) {
	email = models.NormalizeEmail(email)

	if !s.otp.Verify(ctx, email, models.OtpPurposeLogin, code) {
		return nil, ErrInvalidOTP
	}

	admin, err := s.store.GetAdminByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidOTP
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}

	token, expiresAt, err := util.CreateSessionToken(admin.ID, admin.Email, s.jwtSecret, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	s.logger.Info("Admin logged in", zap.Int64("admin_id", admin.ID))
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Admin: admin}, nil
}

// ResendOTP re-issues a code when the account is in the state the purpose
// expects. A login code additionally needs a password check within
// loginWindow. Any other case succeeds silently so emails cannot be enumerated.
func (s *AuthService) ResendOTP(ctx context.Context, email, purpose string) error {
	email = models.NormalizeEmail(email)
	if !models.ValidOtpPurpose(purpose) {
		return &ValidationError{Errors: []string{"purpose must be one of: login, register"}}
	}

	admin, err := s.store.GetAdminByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	if (purpose == models.OtpPurposeRegister) == admin.IsVerified {
		return nil
	}
	if purpose == models.OtpPurposeLogin && !s.passwordStepPending(admin) {
		s.logger.Info("Ignoring login otp resend without a recent password check", zap.Int64("admin_id", admin.ID))
		return nil
	}
	return s.otp.Issue(ctx, email, purpose)
}

func (s *AuthService) passwordStepPending(admin *models.Admin) bool {
	if admin.LastLoginAttempt == nil {
		return false
	}
	return s.now().Sub(*admin.LastLoginAttempt) < s.loginWindow
}

// Authenticate resolves a session token to its admin. It returns
// util.ErrTokenExpired or util.ErrTokenInvalid on rejection.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Admin, error) {
	claims, err := util.ParseSessionToken(token, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	admin, err := s.store.GetAdminByID(ctx, claims.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, util.ErrTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}
	return admin, nil
}
