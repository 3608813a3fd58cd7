package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"backoffice-service/internal/models"
)

// CreateAdmin inserts a new admin account
func (s *Store) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	query := `
		INSERT INTO admins (email, password_hash, is_verified)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, admin, query, admin.Email, admin.PasswordHash, admin.IsVerified)
	if isUniqueViolation(err) {
		return fmt.Errorf("admin %s: %w", admin.Email, ErrDuplicate)
	}
	return err
}

// GetAdminByEmail retrieves an admin by normalized email
func (s *Store) GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	var admin models.Admin
	err := s.db.GetContext(ctx, &admin, "SELECT * FROM admins WHERE email = $1", email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("admin %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

// GetAdminByID retrieves an admin by ID
func (s *Store) GetAdminByID(ctx context.Context, id int64) (*models.Admin, error) {
	var admin models.Admin
	err := s.db.GetContext(ctx, &admin, "SELECT * FROM admins WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("admin %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

// MarkAdminVerified sets the verified flag
func (s *Store) MarkAdminVerified(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE admins SET is_verified = TRUE WHERE id = $1", id)
	if err != nil {
		return err
	}
	return expectOneRow(res, fmt.Sprintf("admin %d", id))
}

// UpdateAdminPassword replaces the password hash of an unverified admin
func (s *Store) UpdateAdminPassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE admins SET password_hash = $1 WHERE id = $2 AND is_verified = FALSE", passwordHash, id)
	if err != nil {
		return err
	}
	return expectOneRow(res, fmt.Sprintf("admin %d", id))
}

// TouchLastLoginAttempt records when the admin last passed the password step
func (s *Store) TouchLastLoginAttempt(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE admins SET last_login_attempt = $1 WHERE id = $2", at, id)
	return err
}
