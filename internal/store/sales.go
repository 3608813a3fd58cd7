package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"backoffice-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// GetSaleByID retrieves a sale together with its lines
func (s *Store) GetSaleByID(ctx context.Context, id int64) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.GetContext(ctx, &sale, "SELECT * FROM sales WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sale %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	lines := []models.SaleLine{}
	if err := s.db.SelectContext(ctx, &lines,
		"SELECT * FROM sale_lines WHERE sale_id = $1 ORDER BY id", id); err != nil {
		return nil, err
	}
	sale.Lines = lines
	return &sale, nil
}

// ListSales retrieves sales newest first, each with its lines
func (s *Store) ListSales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, error) {
	query := "SELECT * FROM sales WHERE 1 = 1"
	args := []interface{}{}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND sale_date >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND sale_date < $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"

	sales := []models.Sale{}
	if err := s.db.SelectContext(ctx, &sales, query, args...); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return sales, nil
	}

	if err := s.attachLines(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

// attachLines loads the lines of all given sales with one query
func (s *Store) attachLines(ctx context.Context, sales []models.Sale) error {
	ids := make([]int64, len(sales))
	for i := range sales {
		ids[i] = sales[i].ID
	}

	query, args, err := sqlx.In("SELECT * FROM sale_lines WHERE sale_id IN (?) ORDER BY id", ids)
	if err != nil {
		return err
	}
	query = s.db.Rebind(query)

	var lines []models.SaleLine
	if err := s.db.SelectContext(ctx, &lines, query, args...); err != nil {
		return err
	}

	bySale := make(map[int64][]models.SaleLine, len(sales))
	for _, line := range lines {
		bySale[line.SaleID] = append(bySale[line.SaleID], line)
	}
	for i := range sales {
		sales[i].Lines = bySale[sales[i].ID]
		if sales[i].Lines == nil {
			sales[i].Lines = []models.SaleLine{}
		}
	}
	return nil
}

// CreateSale inserts the parent sale row
func (t *txStore) CreateSale(ctx context.Context, sale *models.Sale) error {
	query := `
		INSERT INTO sales (total_price)
		VALUES ($1)
		RETURNING id, sale_date, created_at`

	if err := t.tx.GetContext(ctx, sale, query, sale.TotalPrice); err != nil {
		return fmt.Errorf("failed to create sale: %w", err)
	}
	return nil
}

// CreateSaleLine inserts one line of a sale
func (t *txStore) CreateSaleLine(ctx context.Context, line *models.SaleLine) error {
	query := `
		INSERT INTO sale_lines (sale_id, product_id, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	if err := t.tx.GetContext(ctx, line, query,
		line.SaleID, line.ProductID, line.Quantity, line.UnitPrice, line.Subtotal); err != nil {
		return fmt.Errorf("failed to create sale line: %w", err)
	}
	return nil
}

// UpdateSaleTotal sets the derived total of a sale
func (t *txStore) UpdateSaleTotal(ctx context.Context, saleID int64, total decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx, "UPDATE sales SET total_price = $1 WHERE id = $2", total, saleID)
	if err != nil {
		return fmt.Errorf("failed to update sale total: %w", err)
	}
	return nil
}

// LockSale loads a sale row with a FOR UPDATE lock
func (t *txStore) LockSale(ctx context.Context, id int64) (*models.Sale, error) {
	var sale models.Sale
	err := t.tx.GetContext(ctx, &sale, "SELECT * FROM sales WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sale %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetSaleLines retrieves the lines of a sale inside the transaction
func (t *txStore) GetSaleLines(ctx context.Context, saleID int64) ([]models.SaleLine, error) {
	lines := []models.SaleLine{}
	err := t.tx.SelectContext(ctx, &lines, "SELECT * FROM sale_lines WHERE sale_id = $1 ORDER BY id", saleID)
	return lines, err
}

// DeleteSaleLines removes every line of a sale
func (t *txStore) DeleteSaleLines(ctx context.Context, saleID int64) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM sale_lines WHERE sale_id = $1", saleID)
	if err != nil {
		return fmt.Errorf("failed to delete sale lines: %w", err)
	}
	return nil
}

// DeleteSale removes the sale row
func (t *txStore) DeleteSale(ctx context.Context, saleID int64) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM sales WHERE id = $1", saleID)
	if err != nil {
		return fmt.Errorf("failed to delete sale: %w", err)
	}
	return expectOneRow(res, fmt.Sprintf("sale %d", saleID))
}
