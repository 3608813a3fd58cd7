package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"backoffice-service/internal/models"
	"backoffice-service/internal/store"

	"github.com/shopspring/decimal"
)

// CatalogStore persists categories and products
type CatalogStore interface {
	CreateCategory(ctx context.Context, category *models.Category) error
	GetCategoryByID(ctx context.Context, id int64) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	UpdateCategory(ctx context.Context, category *models.Category) error
	DeleteCategory(ctx context.Context, id int64) error

	CreateProduct(ctx context.Context, product *models.Product) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error
}

// CatalogService manages categories and products
type CatalogService struct {
	store CatalogStore
}

func NewCatalogService(store CatalogStore) *CatalogService {
	return &CatalogService{store: store}
}

type categoryInput struct {
	Name string `json:"name" validate:"required"`
}

type CategoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type ProductRequest struct {
	Name           *string          `json:"name"`
	Price          *decimal.Decimal `json:"price"`
	WholesalePrice *decimal.Decimal `json:"wholesale_price"`
	Stock          *int             `json:"stock"`
	CategoryID     *int64           `json:"category_id"`
}

// translate maps store sentinels to the service taxonomy
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", subject(err, store.ErrNotFound), ErrNotFound)
	case errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%s already exists: %w", subject(err, store.ErrDuplicate), ErrConflict)
	case errors.Is(err, store.ErrReferenced):
		return fmt.Errorf("%s is still in use: %w", subject(err, store.ErrReferenced), ErrConflict)
	default:
		return fmt.Errorf("failed to %s: %w", what, err)
	}
}

func subject(err, sentinel error) string {
	return strings.TrimSuffix(err.Error(), ": "+sentinel.Error())
}

func (s *CatalogService) CreateCategory(ctx context.Context, req *CategoryRequest) (*models.Category, error) {
	var name string
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
	}
	if err := checkStruct(categoryInput{Name: name}); err != nil {
		return nil, err
	}

	category := &models.Category{Name: name}
	if req.Description != nil {
		category.Description = *req.Description
	}
	if err := s.store.CreateCategory(ctx, category); err != nil {
		return nil, translate(err, "create category")
	}
	return category, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories, err := s.store.ListCategories(ctx)
	return categories, translate(err, "list categories")
}

// UpdateCategory applies only the fields present in req
func (s *CatalogService) UpdateCategory(ctx context.Context, id int64, req *CategoryRequest) (*models.Category, error) {
	if req.Name != nil {
		if err := checkStruct(categoryInput{Name: strings.TrimSpace(*req.Name)}); err != nil {
			return nil, err
		}
	}

	category, err := s.store.GetCategoryByID(ctx, id)
	if err != nil {
		return nil, translate(err, "get category")
	}
	if req.Name != nil {
		category.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		category.Description = *req.Description
	}

	if err := s.store.UpdateCategory(ctx, category); err != nil {
		return nil, translate(err, "update category")
	}
	return category, nil
}

func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	return translate(s.store.DeleteCategory(ctx, id), "delete category")
}

func (r *ProductRequest) apply(p *models.Product) {
	if r.Name != nil {
		p.Name = strings.TrimSpace(*r.Name)
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.WholesalePrice != nil {
		p.WholesalePrice = *r.WholesalePrice
	}
	if r.Stock != nil {
		p.Stock = *r.Stock
	}
	if r.CategoryID != nil {
		p.CategoryID = *r.CategoryID
	}
}

func (s *CatalogService) CreateProduct(ctx context.Context, req *ProductRequest) (*models.Product, error) {
	product := &models.Product{Price: decimal.Zero, WholesalePrice: decimal.Zero}
	req.apply(product)
	if req.Price == nil {
		return nil, &ValidationError{Errors: []string{"price is required"}}
	}
	if err := checkStruct(product); err != nil {
		return nil, err
	}

	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, translate(err, "create product")
	}
	return product, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, translate(err, "get product")
	}
	return product, nil
}

// ListProducts returns the full rows, wholesale price included. Callers
// decide which projection to expose.
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	products, err := s.store.GetProducts(ctx)
	return products, translate(err, "list products")
}

func (s *CatalogService) ListProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error) {
	if _, err := s.store.GetCategoryByID(ctx, categoryID); err != nil {
		return nil, translate(err, "get category")
	}
	products, err := s.store.GetProductsByCategory(ctx, categoryID)
	return products, translate(err, "list products")
}

// UpdateProduct applies only the fields present in req. The row is read
// under the same lock sales take, so a concurrent sale's stock change is
// never written over.
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, req *ProductRequest) (*models.Product, error) {
	var product *models.Product
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.LockProducts(ctx, []int64{id})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
		}

		product = &locked[0]
		req.apply(product)
		if err := checkStruct(product); err != nil {
			return err
		}
		return tx.UpdateProduct(ctx, product)
	})

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return nil, err
	}
	if err != nil {
		return nil, translate(err, "update product")
	}
	return product, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	return translate(s.store.DeleteProduct(ctx, id), "delete product")
}
