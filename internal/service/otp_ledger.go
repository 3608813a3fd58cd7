package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/store"
	"backoffice-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	otpMin  = 100000
	otpSpan = 900000
)

// OtpStore persists one-time codes
type OtpStore interface {
	ReplaceOtp(ctx context.Context, otp *models.OtpRecord) error
	FindActiveOtp(ctx context.Context, email, purpose string, now time.Time) (*models.OtpRecord, error)
	ConsumeOtp(ctx context.Context, id int64) (bool, error)
	PurgeOtps(ctx context.Context, before time.Time) (int64, error)
}

// AttemptLimiter counts verification attempts per (email, purpose) window
type AttemptLimiter interface {
	RegisterOtpAttempt(ctx context.Context, email, purpose string, window time.Duration) (int64, error)
	ResetOtpAttempts(ctx context.Context, email, purpose string) error
}

// Notifier delivers an issued code to its owner
type Notifier interface {
	SendOTP(ctx context.Context, otp *models.OtpRecord) error
}

// OtpLedger issues and verifies single-use, time-boxed codes. Each
// (email, purpose) pair holds at most one code at a time.
type OtpLedger struct {
	store       OtpStore
	limiter     AttemptLimiter
	notifier    Notifier
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
	logger      *zap.Logger
}

// NewOtpLedger creates a ledger. limiter may be nil and maxAttempts <= 0
// disables attempt limiting.
func NewOtpLedger(store OtpStore, limiter AttemptLimiter, notifier Notifier, ttl time.Duration, maxAttempts int) *OtpLedger {
	return &OtpLedger{
		store:       store,
		limiter:     limiter,
		notifier:    notifier,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
		logger:      util.GetLogger(),
	}
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}

// Issue replaces any code of the pair with a fresh one and hands it to the
// notifier. Delivery failures are logged, never returned.
func (l *OtpLedger) Issue(ctx context.Context, email, purpose string) error {
	ctx, span := util.StartSpan(ctx, "OtpLedger.Issue", attribute.String("otp.purpose", purpose))
	defer span.End()

	email = models.NormalizeEmail(email)
	if !models.ValidOtpPurpose(purpose) {
		return &ValidationError{Errors: []string{fmt.Sprintf("unknown otp purpose %q", purpose)}}
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate otp: %w", err)
	}

	otp := &models.OtpRecord{
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: l.now().Add(l.ttl),
	}
	if err := l.store.ReplaceOtp(ctx, otp); err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to store otp: %w", err)
	}
	util.OtpIssuedTotal.WithLabelValues(purpose).Inc()

	if l.limiter != nil {
		if err := l.limiter.ResetOtpAttempts(ctx, email, purpose); err != nil {
			l.logger.Warn("Failed to reset otp attempts", zap.String("purpose", purpose), zap.Error(err))
		}
	}

	if err := l.notifier.SendOTP(ctx, otp); err != nil {
		util.OtpDeliveryFailedTotal.Inc()
		l.logger.Error("Failed to hand otp to notifier",
			zap.String("email", email),
			zap.String("purpose", purpose),
			zap.Error(err))
	}
	return nil
}

// Verify consumes the active code of the pair when candidate matches it.
// Every failure, whatever its cause, is a plain false.
func (l *OtpLedger) Verify(ctx context.Context, email, purpose, candidate string) bool {
	ctx, span := util.StartSpan(ctx, "OtpLedger.Verify", attribute.String("otp.purpose", purpose))
	defer span.End()

	email = models.NormalizeEmail(email)
	ok := l.verify(ctx, email, purpose, candidate)

	result := "rejected"
	if ok {
		result = "accepted"
	}
	util.OtpVerificationsTotal.WithLabelValues(purpose, result).Inc()
	span.SetAttributes(attribute.Bool("otp.accepted", ok))
	return ok
}

func (l *OtpLedger) verify(ctx context.Context, email, purpose, candidate string) bool {
	if !models.ValidOtpPurpose(purpose) || candidate == "" {
		return false
	}

	if l.limiter != nil && l.maxAttempts > 0 {
		attempts, err := l.limiter.RegisterOtpAttempt(ctx, email, purpose, l.ttl)
		if err != nil {
			l.logger.Warn("Otp attempt limiter unavailable", zap.Error(err))
		} else if attempts > int64(l.maxAttempts) {
			l.logger.Warn("Otp attempts exhausted",
				zap.String("email", email),
				zap.String("purpose", purpose),
				zap.Int64("attempts", attempts))
			return false
		}
	}

	otp, err := l.store.FindActiveOtp(ctx, email, purpose, l.now())
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		l.logger.Error("Failed to load otp", zap.String("purpose", purpose), zap.Error(err))
		return false
	}

	if !otp.Active(l.now()) || subtle.ConstantTimeCompare([]byte(otp.Code), []byte(candidate)) != 1 {
		return false
	}

	consumed, err := l.store.ConsumeOtp(ctx, otp.ID)
	if err != nil {
		l.logger.Error("Failed to consume otp", zap.Int64("otp_id", otp.ID), zap.Error(err))
		return false
	}
	return consumed
}

// PurgeExpired removes used codes and codes past their expiry
func (l *OtpLedger) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := l.store.PurgeOtps(ctx, l.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge otps: %w", err)
	}
	util.OtpPurgedTotal.Add(float64(n))
	return n, nil
}
