package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"backoffice-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotFound is returned when a looked-up row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned on unique constraint violations
	ErrDuplicate = errors.New("duplicate record")
	// ErrReferenced is returned when a row is still referenced by another table
	ErrReferenced = errors.New("record is still referenced")
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema if it does not exist yet
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Tx is the set of writes that must happen inside one database transaction
type Tx interface {
	LockProducts(ctx context.Context, ids []int64) ([]models.Product, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error)
	IncrementStock(ctx context.Context, productID int64, quantity int) (bool, error)
	UpdateProduct(ctx context.Context, product *models.Product) error
	CreateSale(ctx context.Context, sale *models.Sale) error
	CreateSaleLine(ctx context.Context, line *models.SaleLine) error
	UpdateSaleTotal(ctx context.Context, saleID int64, total decimal.Decimal) error
	LockSale(ctx context.Context, id int64) (*models.Sale, error)
	GetSaleLines(ctx context.Context, saleID int64) ([]models.SaleLine, error)
	DeleteSaleLines(ctx context.Context, saleID int64) error
	DeleteSale(ctx context.Context, saleID int64) error
}

type txStore struct {
	tx *sqlx.Tx
}

// WithTx runs fn inside a read-committed transaction. The transaction is
// rolled back when fn returns an error and committed otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

var _ Tx = (*txStore)(nil)
