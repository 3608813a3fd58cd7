package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/store"
	"backoffice-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const idempotencyLockTTL = 30 * time.Second

// SaleStore is the persistence the sale engine needs
type SaleStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error
	GetSaleByID(ctx context.Context, id int64) (*models.Sale, error)
	ListSales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, error)
}

// SaleEvents publishes sale domain events after commit
type SaleEvents interface {
	PublishSaleCreated(ctx context.Context, sale *models.Sale) error
	PublishSaleDeleted(ctx context.Context, sale *models.Sale) error
}

// IdempotencyStore remembers which sale a client key produced
type IdempotencyStore interface {
	AcquireLock(ctx context.Context, lockKey, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, owner string) error
	GetIdempotencyKey(ctx context.Context, key string) (string, bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// SaleService creates and reverses point-of-sale transactions
type SaleService struct {
	store          SaleStore
	events         SaleEvents
	idempotency    IdempotencyStore
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewSaleService creates a new sale service. idempotency may be nil.
func NewSaleService(store SaleStore, events SaleEvents, idempotency IdempotencyStore, idempotencyTTL time.Duration) *SaleService {
	return &SaleService{
		store:          store,
		events:         events,
		idempotency:    idempotency,
		idempotencyTTL: idempotencyTTL,
		logger:         util.GetLogger(),
	}
}

// maxQuantity matches the INTEGER stock column
const maxQuantity = math.MaxInt32

// SaleItemRequest is one requested product/quantity pair
type SaleItemRequest struct {
	ProductID int64 `json:"productId" validate:"gt=0"`
	Quantity  int   `json:"quantity" validate:"gt=0,lte=2147483647"`
}

// CreateSaleRequest represents a request to create a sale
type CreateSaleRequest struct {
	Items          []SaleItemRequest `json:"items" validate:"min=1,dive"`
	IdempotencyKey string            `json:"-"`
}

// validateSaleItems checks every item, then the merged quantity per product
func validateSaleItems(req *CreateSaleRequest) error {
	if err := checkStruct(req); err != nil {
		return err
	}

	merged := make(map[int64]int64, len(req.Items))
	var details []string
	for _, item := range req.Items {
		before := merged[item.ProductID]
		merged[item.ProductID] += int64(item.Quantity)
		if before <= maxQuantity && merged[item.ProductID] > maxQuantity {
			details = append(details, fmt.Sprintf("quantity of product %d must total at most %d", item.ProductID, maxQuantity))
		}
	}
	if len(details) > 0 {
		return &ValidationError{Errors: details}
	}
	return nil
}

// CreateSale validates the items and runs the sale transaction. With an
// idempotency key, a repeated request returns the sale created the first time.
func (s *SaleService) CreateSale(ctx context.Context, req *CreateSaleRequest) (*models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "SaleService.CreateSale",
		attribute.Int("sale.items", len(req.Items)))
	defer span.End()

	if err := validateSaleItems(req); err != nil {
		util.SalesFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	var (
		sale *models.Sale
		err  error
	)
	if req.IdempotencyKey != "" && s.idempotency != nil {
		sale, err = s.createIdempotent(ctx, req)
	} else {
		sale, err = s.createSale(ctx, req.Items)
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("sale.id", sale.ID))
	return sale, nil
}

func (s *SaleService) createIdempotent(ctx context.Context, req *CreateSaleRequest) (*models.Sale, error) {
	key := "sale:" + req.IdempotencyKey

	if sale, ok := s.lookupIdempotent(ctx, key); ok {
		return sale, nil
	}

	owner := uuid.New().String()
	acquired, err := s.idempotency.AcquireLock(ctx, key, owner, idempotencyLockTTL)
	if err != nil {
		s.logger.Warn("Idempotency lock unavailable, creating sale without it",
			zap.String("idempotency_key", req.IdempotencyKey), zap.Error(err))
		return s.createSale(ctx, req.Items)
	}
	if !acquired {
		return nil, fmt.Errorf("a sale with this idempotency key is already being processed: %w", ErrConflict)
	}
	defer func() {
		if err := s.idempotency.ReleaseLock(context.Background(), key, owner); err != nil {
			s.logger.Warn("Failed to release idempotency lock", zap.String("key", key), zap.Error(err))
		}
	}()

	// The previous holder may have finished while we waited for the lock.
	if sale, ok := s.lookupIdempotent(ctx, key); ok {
		return sale, nil
	}

	sale, err := s.createSale(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	if err := s.idempotency.SetIdempotencyKey(ctx, key, sale.ID, s.idempotencyTTL); err != nil {
		s.logger.Error("Failed to record idempotency key",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("sale_id", sale.ID),
			zap.Error(err))
	}
	return sale, nil
}

func (s *SaleService) lookupIdempotent(ctx context.Context, key string) (*models.Sale, bool) {
	val, ok, err := s.idempotency.GetIdempotencyKey(ctx, key)
	if err != nil {
		s.logger.Warn("Failed to read idempotency key", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	saleID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		s.logger.Warn("Corrupt idempotency value", zap.String("key", key), zap.String("value", val))
		return nil, false
	}

	sale, err := s.store.GetSaleByID(ctx, saleID)
	if err != nil {
		// The sale was deleted since; treat the key as unused.
		s.logger.Info("Idempotent sale no longer available",
			zap.Int64("sale_id", saleID), zap.Error(err))
		return nil, false
	}

	s.logger.Info("Duplicate sale request detected",
		zap.String("key", key), zap.Int64("sale_id", sale.ID))
	return sale, true
}

// createSale locks every referenced product, checks stock for all lines and
// only then writes the sale, its lines and the stock decrements.
func (s *SaleService) createSale(ctx context.Context, items []SaleItemRequest) (*models.Sale, error) {
	start := time.Now()
	defer func() {
		util.SaleTransactionLatency.WithLabelValues("create").Observe(time.Since(start).Seconds())
	}()

	requested := make(map[int64]int, len(items))
	for _, item := range items {
		requested[item.ProductID] += item.Quantity
	}
	ids := make([]int64, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var sale *models.Sale
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}

		byID := make(map[int64]models.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		for _, id := range ids {
			if _, ok := byID[id]; !ok {
				return notFound("product %d", id)
			}
		}
		for _, id := range ids {
			p := byID[id]
			if p.Stock < requested[id] {
				return &InsufficientStockError{ProductID: id, Name: p.Name, Available: p.Stock, Requested: requested[id]}
			}
		}

		created := &models.Sale{TotalPrice: decimal.Zero}
		if err := tx.CreateSale(ctx, created); err != nil {
			return err
		}

		total := decimal.Zero
		lines := make([]models.SaleLine, 0, len(items))
		for _, item := range items {
			p := byID[item.ProductID]

			ok, err := tx.DecrementStock(ctx, p.ID, item.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return &InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: p.Stock, Requested: requested[p.ID]}
			}

			line := models.SaleLine{
				SaleID:    created.ID,
				ProductID: p.ID,
				Quantity:  item.Quantity,
				UnitPrice: p.Price,
				Subtotal:  p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
			}
			if err := tx.CreateSaleLine(ctx, &line); err != nil {
				return err
			}
			total = total.Add(line.Subtotal)
			lines = append(lines, line)
		}

		if err := tx.UpdateSaleTotal(ctx, created.ID, total); err != nil {
			return err
		}

		created.TotalPrice = total
		created.Lines = lines
		sale = created
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientStock):
			util.SalesFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, err
		case errors.Is(err, ErrNotFound):
			util.SalesFailedTotal.WithLabelValues("product_not_found").Inc()
			return nil, err
		default:
			util.SalesFailedTotal.WithLabelValues("db_error").Inc()
			return nil, fmt.Errorf("failed to create sale: %w", err)
		}
	}

	units := 0
	for _, item := range items {
		units += item.Quantity
	}
	util.SalesCreatedTotal.Inc()
	util.SaleUnitsSoldTotal.Add(float64(units))
	util.SaleRevenueTotal.Add(sale.TotalPrice.InexactFloat64())

	s.logger.Info("Sale created",
		zap.Int64("sale_id", sale.ID),
		zap.String("total_price", sale.TotalPrice.StringFixed(2)),
		zap.Int("lines", len(sale.Lines)))

	if err := s.events.PublishSaleCreated(ctx, sale); err != nil {
		s.logger.Error("Failed to publish SaleCreated event", zap.Int64("sale_id", sale.ID), zap.Error(err))
	}

	return sale, nil
}

// DeleteSale restores the stock of every line and removes the sale
func (s *SaleService) DeleteSale(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "SaleService.DeleteSale", attribute.Int64("sale.id", id))
	defer span.End()

	if id <= 0 {
		return &ValidationError{Errors: []string{"sale id must be a positive integer"}}
	}

	start := time.Now()
	defer func() {
		util.SaleTransactionLatency.WithLabelValues("delete").Observe(time.Since(start).Seconds())
	}()

	var deleted *models.Sale
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sale, err := tx.LockSale(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return notFound("sale %d", id)
		}
		if err != nil {
			return err
		}

		lines, err := tx.GetSaleLines(ctx, id)
		if err != nil {
			return err
		}

		for _, line := range lines {
			ok, err := tx.IncrementStock(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				s.logger.Warn("Product of sale line no longer exists, stock not restored",
					zap.Int64("sale_id", id),
					zap.Int64("product_id", line.ProductID),
					zap.Int("quantity", line.Quantity))
			}
		}

		if err := tx.DeleteSaleLines(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteSale(ctx, id); err != nil {
			return err
		}

		sale.Lines = lines
		deleted = sale
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete sale: %w", err)
	}

	util.SalesDeletedTotal.Inc()
	s.logger.Info("Sale deleted", zap.Int64("sale_id", id), zap.Int("lines", len(deleted.Lines)))

	if err := s.events.PublishSaleDeleted(ctx, deleted); err != nil {
		s.logger.Error("Failed to publish SaleDeleted event", zap.Int64("sale_id", id), zap.Error(err))
	}
	return nil
}

// GetSale retrieves a sale with its lines
func (s *SaleService) GetSale(ctx context.Context, id int64) (*models.Sale, error) {
	if id <= 0 {
		return nil, &ValidationError{Errors: []string{"sale id must be a positive integer"}}
	}

	sale, err := s.store.GetSaleByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("sale %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}
	return sale, nil
}

// ListSales retrieves sales newest first
func (s *SaleService) ListSales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, &ValidationError{Errors: []string{"end date must not be before start date"}}
	}

	sales, err := s.store.ListSales(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	return sales, nil
}

type statsPeriod struct {
	Month int `json:"month" validate:"gte=1,lte=12"`
	Year  int `json:"year" validate:"gte=2000,lte=2100"`
}

// MonthlyStats sums the sales dated within one calendar month (UTC)
func (s *SaleService) MonthlyStats(ctx context.Context, month, year int) (*models.MonthlyStats, error) {
	if err := checkStruct(statsPeriod{Month: month, Year: year}); err != nil {
		return nil, err
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	sales, err := s.store.ListSales(ctx, models.SaleFilter{From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("failed to load monthly sales: %w", err)
	}

	revenue := decimal.Zero
	for _, sale := range sales {
		revenue = revenue.Add(sale.TotalPrice)
	}

	return &models.MonthlyStats{
		Month:        month,
		Year:         year,
		TotalRevenue: revenue,
		SalesCount:   len(sales),
		Sales:        sales,
	}, nil
}
