package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAdminNotVerified   = errors.New("admin account is not verified")
	ErrInvalidOTP         = errors.New("invalid or expired OTP")
)

// ValidationError collects every problem found in one request
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientStockError names the product that cannot cover the requested quantity
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q (id %d): available %d, requested %d",
		e.Name, e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

func notFound(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}
