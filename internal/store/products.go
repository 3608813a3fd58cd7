package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"backoffice-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateCategory inserts a new category
func (s *Store) CreateCategory(ctx context.Context, category *models.Category) error {
	query := `
		INSERT INTO categories (name, description)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, category, query, category.Name, category.Description)
	if isUniqueViolation(err) {
		return fmt.Errorf("category %q: %w", category.Name, ErrDuplicate)
	}
	return err
}

// GetCategoryByID retrieves a category by ID
func (s *Store) GetCategoryByID(ctx context.Context, id int64) (*models.Category, error) {
	var category models.Category
	err := s.db.GetContext(ctx, &category, "SELECT * FROM categories WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// ListCategories retrieves all categories
func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	err := s.db.SelectContext(ctx, &categories, "SELECT * FROM categories ORDER BY name")
	return categories, err
}

// UpdateCategory overwrites name and description
func (s *Store) UpdateCategory(ctx context.Context, category *models.Category) error {
	err := s.db.GetContext(ctx, &category.UpdatedAt,
		"UPDATE categories SET name = $1, description = $2, updated_at = NOW() WHERE id = $3 RETURNING updated_at",
		category.Name, category.Description, category.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("category %d: %w", category.ID, ErrNotFound)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("category %q: %w", category.Name, ErrDuplicate)
	}
	return err
}

// DeleteCategory removes a category that no product references
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM categories WHERE id = $1", id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("category %d: %w", id, ErrReferenced)
	}
	if err != nil {
		return err
	}
	return expectOneRow(res, fmt.Sprintf("category %d", id))
}

// CreateProduct inserts a new product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, price, wholesale_price, stock, category_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, product, query,
		product.Name, product.Price, product.WholesalePrice, product.Stock, product.CategoryID)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("category %d: %w", product.CategoryID, ErrNotFound)
	}
	return err
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// GetProductsByCategory retrieves the products of one category
func (s *Store) GetProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE category_id = $1 ORDER BY id", categoryID)
	return products, err
}

// DeleteProduct removes a product. Sale lines keep their snapshot.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	return expectOneRow(res, fmt.Sprintf("product %d", id))
}

// UpdateProduct overwrites every editable product column. Callers hold the
// row lock from LockProducts, so the stock written is the stock they read.
func (t *txStore) UpdateProduct(ctx context.Context, product *models.Product) error {
	query := `
		UPDATE products
		SET name = $1, price = $2, wholesale_price = $3, stock = $4, category_id = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`

	err := t.tx.GetContext(ctx, &product.UpdatedAt, query,
		product.Name, product.Price, product.WholesalePrice, product.Stock, product.CategoryID, product.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %d: %w", product.ID, ErrNotFound)
	}
	if isForeignKeyViolation(err) {
		return fmt.Errorf("category %d: %w", product.CategoryID, ErrNotFound)
	}
	return err
}

// LockProducts loads the given products with FOR UPDATE row locks, in id
// order so that concurrent sales acquire locks in the same sequence.
func (t *txStore) LockProducts(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?) ORDER BY id FOR UPDATE", ids)
	if err != nil {
		return nil, err
	}
	query = t.tx.Rebind(query)

	var products []models.Product
	if err := t.tx.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}
	return products, nil
}

// DecrementStock subtracts quantity only if enough stock remains. It
// reports false when the guard rejected the update.
func (t *txStore) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
		quantity, productID)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}
	return affectedOne(res)
}

// IncrementStock adds quantity back. It reports false when the product no longer exists.
func (t *txStore) IncrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
		quantity, productID)
	if err != nil {
		return false, fmt.Errorf("failed to increment stock: %w", err)
	}
	return affectedOne(res)
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func expectOneRow(res sql.Result, what string) error {
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
