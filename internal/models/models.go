package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products in the catalog
type Category struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Product represents a sellable item with its stock count
type Product struct {
	ID             int64           `db:"id" json:"id"`
	Name           string          `db:"name" json:"name" validate:"required"`
	Price          decimal.Decimal `db:"price" json:"price" validate:"gte=0"`
	WholesalePrice decimal.Decimal `db:"wholesale_price" json:"wholesale_price" validate:"gte=0"`
	Stock          int             `db:"stock" json:"stock" validate:"gte=0"`
	CategoryID     int64           `db:"category_id" json:"category_id" validate:"gt=0"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// ProductView is the product projection returned to ordinary reads (no wholesale price)
type ProductView struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	CategoryID int64           `json:"category_id"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// View strips the wholesale price
func (p Product) View() ProductView {
	return ProductView{
		ID:         p.ID,
		Name:       p.Name,
		Price:      p.Price,
		Stock:      p.Stock,
		CategoryID: p.CategoryID,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

// Sale is a point-of-sale transaction. TotalPrice is always derived from Lines.
type Sale struct {
	ID         int64           `db:"id" json:"id"`
	TotalPrice decimal.Decimal `db:"total_price" json:"total_price"`
	SaleDate   time.Time       `db:"sale_date" json:"sale_date"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	Lines      []SaleLine      `db:"-" json:"sale_items"`
}

// SaleLine is one product/quantity entry of a sale with its price snapshot
type SaleLine struct {
	ID        int64           `db:"id" json:"id"`
	SaleID    int64           `db:"sale_id" json:"sale_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	Subtotal  decimal.Decimal `db:"subtotal" json:"subtotal"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// SaleFilter narrows sale listings by sale date, both bounds optional
type SaleFilter struct {
	From *time.Time
	To   *time.Time
}

// MonthlyStats summarizes the sales of one calendar month
type MonthlyStats struct {
	Month        int             `json:"month"`
	Year         int             `json:"year"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	SalesCount   int             `json:"sales_count"`
	Sales        []Sale          `json:"sales"`
}

// OTP purposes
const (
	OtpPurposeLogin    = "login"
	OtpPurposeRegister = "register"
)

// ValidOtpPurpose reports whether purpose is a known OTP purpose
func ValidOtpPurpose(purpose string) bool {
	return purpose == OtpPurposeLogin || purpose == OtpPurposeRegister
}

// OtpRecord is a single-use, time-boxed one-time code for an (email, purpose) pair
type OtpRecord struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Code      string    `db:"code" json:"-"`
	Purpose   string    `db:"purpose" json:"purpose"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Used      bool      `db:"used" json:"used"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Active reports whether the record is unused and not yet expired at now
func (o OtpRecord) Active(now time.Time) bool {
	return !o.Used && o.ExpiresAt.After(now)
}

// Admin is a back-office account
type Admin struct {
	ID               int64      `db:"id" json:"id"`
	Email            string     `db:"email" json:"email"`
	PasswordHash     string     `db:"password_hash" json:"-"`
	IsVerified       bool       `db:"is_verified" json:"is_verified"`
	LastLoginAttempt *time.Time `db:"last_login_attempt" json:"last_login_attempt,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
