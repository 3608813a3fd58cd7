package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"backoffice-service/internal/models"
)

// ReplaceOtp deletes every record for the (email, purpose) pair and inserts
// otp in the same transaction, so the pair holds at most one record.
func (s *Store) ReplaceOtp(ctx context.Context, otp *models.OtpRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM otps WHERE email = $1 AND purpose = $2", otp.Email, otp.Purpose); err != nil {
		return fmt.Errorf("failed to delete previous otp: %w", err)
	}

	query := `
		INSERT INTO otps (email, code, purpose, expires_at, used)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id, created_at`

	if err := tx.GetContext(ctx, otp, query, otp.Email, otp.Code, otp.Purpose, otp.ExpiresAt); err != nil {
		return fmt.Errorf("failed to insert otp: %w", err)
	}
	otp.Used = false

	return tx.Commit()
}

// FindActiveOtp returns the unused, unexpired record of the pair
func (s *Store) FindActiveOtp(ctx context.Context, email, purpose string, now time.Time) (*models.OtpRecord, error) {
	var otp models.OtpRecord
	err := s.db.GetContext(ctx, &otp, `
		SELECT * FROM otps
		WHERE email = $1 AND purpose = $2 AND used = FALSE AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1`, email, purpose, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &otp, nil
}

// ConsumeOtp flips the used flag. It reports false when the record was
// already used, so only one concurrent verifier can win.
func (s *Store) ConsumeOtp(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE otps SET used = TRUE WHERE id = $1 AND used = FALSE", id)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// PurgeOtps deletes used records and records that expired before the cutoff
func (s *Store) PurgeOtps(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM otps WHERE used = TRUE OR expires_at <= $1", before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
