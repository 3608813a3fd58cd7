package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/service"
	"backoffice-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSales struct {
	lastCreate *service.CreateSaleRequest
	createErr  error
	deleteErr  error
	deletedID  int64
	statsMonth int
}

func (s *stubSales) CreateSale(ctx context.Context, req *service.CreateSaleRequest) (*models.Sale, error) {
	s.lastCreate = req
	if s.createErr != nil {
		return nil, s.createErr
	}
	line := models.SaleLine{ID: 1, SaleID: 10, ProductID: req.Items[0].ProductID, Quantity: req.Items[0].Quantity,
		UnitPrice: decimal.NewFromInt(10), Subtotal: decimal.NewFromInt(int64(10 * req.Items[0].Quantity))}
	return &models.Sale{ID: 10, TotalPrice: line.Subtotal, Lines: []models.SaleLine{line}}, nil
}

func (s *stubSales) DeleteSale(ctx context.Context, id int64) error {
	s.deletedID = id
	return s.deleteErr
}

func (s *stubSales) GetSale(ctx context.Context, id int64) (*models.Sale, error) {
	return nil, errors.New("connection refused")
}

func (s *stubSales) ListSales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, error) {
	return []models.Sale{}, nil
}

func (s *stubSales) MonthlyStats(ctx context.Context, month, year int) (*models.MonthlyStats, error) {
	s.statsMonth = month
	return &models.MonthlyStats{Month: month, Year: year, TotalRevenue: decimal.Zero, Sales: []models.Sale{}}, nil
}

type stubAuth struct {
	loginErr error
	result   *service.LoginResult
}

func (a *stubAuth) Register(ctx context.Context, email, password string) error { return nil }
func (a *stubAuth) ConfirmRegistration(ctx context.Context, email, code string) error {
	return service.ErrInvalidOTP
}
func (a *stubAuth) Login(ctx context.Context, email, password string) error { return a.loginErr }
func (a *stubAuth) VerifyLogin(ctx context.Context, email, code string) (*service.LoginResult, error) {
	return a.result, nil
}
func (a *stubAuth) ResendOTP(ctx context.Context, email, purpose string) error { return nil }

func (a *stubAuth) Authenticate(ctx context.Context, token string) (*models.Admin, error) {
	switch token {
	case "good":
		return &models.Admin{ID: 1, Email: "owner@shop.test", IsVerified: true}, nil
	case "old":
		return nil, util.ErrTokenExpired
	default:
		return nil, util.ErrTokenInvalid
	}
}

type stubCatalog struct {
	service.CatalogService
	products []models.Product
}

func (c *stubCatalog) ListProducts(ctx context.Context) ([]models.Product, error) {
	return c.products, nil
}

type fixture struct {
	router  *gin.Engine
	sales   *stubSales
	auth    *stubAuth
	catalog *stubCatalog
}

func newFixture(development bool, checks ...ReadinessCheck) *fixture {
	f := &fixture{sales: &stubSales{}, auth: &stubAuth{}, catalog: &stubCatalog{}}
	f.router = gin.New()
	NewHandler(f.sales, f.auth, f.catalog, development, checks...).SetupRoutes(f.router)
	return f
}

func (f *fixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(true)
	w := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestReadinessCheck(t *testing.T) {
	ok := newFixture(true, ReadinessCheck{Name: "postgres", Ping: func(ctx context.Context) error { return nil }})
	assert.Equal(t, http.StatusOK, ok.do(http.MethodGet, "/ready", "", nil).Code)

	down := newFixture(true, ReadinessCheck{Name: "redis", Ping: func(ctx context.Context) error { return errors.New("dial tcp") }})
	w := down.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, map[string]interface{}{"redis": "unavailable"}, decode(t, w)["failed"])
}

func TestProtectedRoutesRejectBadTokens(t *testing.T) {
	f := newFixture(true)

	w := f.do(http.MethodGet, "/api/v1/sale", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid", decode(t, w)["kind"])

	w = f.do(http.MethodGet, "/api/v1/sale", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid", decode(t, w)["kind"])

	w = f.do(http.MethodGet, "/api/v1/sale", "old", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "expired", decode(t, w)["kind"])

	w = f.do(http.MethodGet, "/api/v1/sale", "good", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateSale(t *testing.T) {
	f := newFixture(true)
	body := map[string]interface{}{"items": []map[string]interface{}{{"productId": 7, "quantity": 3}}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sale", bytes.NewBufferString(`{"items":[{"productId":7,"quantity":3}]}`))
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set("Idempotency-Key", "k-1")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, "Sale created", out["message"])
	assert.Len(t, out["items"], 1)
	assert.Equal(t, "k-1", f.sales.lastCreate.IdempotencyKey)
	assert.Equal(t, []service.SaleItemRequest{{ProductID: 7, Quantity: 3}}, f.sales.lastCreate.Items)

	// non-integer numbers reach validation as zero instead of failing to decode
	body["items"] = []map[string]interface{}{{"productId": 7, "quantity": 1.5}, {"quantity": 2}}
	f.do(http.MethodPost, "/api/v1/sale", "good", body)
	assert.Equal(t, []service.SaleItemRequest{{ProductID: 7, Quantity: 0}, {ProductID: 0, Quantity: 2}}, f.sales.lastCreate.Items)
}

func TestCreateSaleErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		check  func(t *testing.T, out map[string]interface{})
	}{
		{
			name:   "validation",
			err:    &service.ValidationError{Errors: []string{"items must contain at least one entry"}},
			status: http.StatusBadRequest,
			check: func(t *testing.T, out map[string]interface{}) {
				assert.Equal(t, []interface{}{"items must contain at least one entry"}, out["details"])
			},
		},
		{
			name:   "insufficient stock",
			err:    &service.InsufficientStockError{ProductID: 1, Name: "Phone case", Available: 2, Requested: 3},
			status: http.StatusBadRequest,
			check: func(t *testing.T, out map[string]interface{}) {
				product := out["product"].(map[string]interface{})
				assert.Equal(t, "Phone case", product["name"])
				assert.EqualValues(t, 2, product["available"])
				assert.EqualValues(t, 3, product["requested"])
			},
		},
		{
			name:   "missing product",
			err:    fmtNotFound("product 42"),
			status: http.StatusNotFound,
			check: func(t *testing.T, out map[string]interface{}) {
				assert.Contains(t, out["error"], "product 42")
			},
		},
		{
			name:   "in flight",
			err:    service.ErrConflict,
			status: http.StatusConflict,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(true)
			f.sales.createErr = tc.err
			w := f.do(http.MethodPost, "/api/v1/sale", "good",
				map[string]interface{}{"items": []map[string]interface{}{{"productId": 1, "quantity": 3}}})
			assert.Equal(t, tc.status, w.Code)
			if tc.check != nil {
				tc.check(t, decode(t, w))
			}
		})
	}
}

func fmtNotFound(what string) error {
	return fmt.Errorf("%s: %w", what, service.ErrNotFound)
}

func TestDeleteSale(t *testing.T) {
	f := newFixture(true)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodDelete, "/api/v1/sale/abc", "good", nil).Code)

	w := f.do(http.MethodDelete, "/api/v1/sale/12", "good", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(12), f.sales.deletedID)

	f.sales.deleteErr = fmtNotFound("sale 13")
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/v1/sale/13", "good", nil).Code)
}

func TestInternalErrorsAreRedactedOutsideDevelopment(t *testing.T) {
	prod := newFixture(false)
	w := prod.do(http.MethodGet, "/api/v1/sale/5", "good", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	out := decode(t, w)
	assert.Equal(t, "Internal server error", out["error"])
	assert.NotContains(t, out, "details")

	dev := newFixture(true)
	out = decode(t, dev.do(http.MethodGet, "/api/v1/sale/5", "good", nil))
	assert.Equal(t, []interface{}{"connection refused"}, out["details"])
}

func TestMonthlyStatsRoute(t *testing.T) {
	f := newFixture(true)

	w := f.do(http.MethodGet, "/api/v1/sale/stats/monthly?month=3&year=2024", "good", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, f.sales.statsMonth)

	w = f.do(http.MethodGet, "/api/v1/sale/stats/monthly?month=march", "good", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, decode(t, w)["details"], 2)
}

func TestListSalesRejectsBadDates(t *testing.T) {
	f := newFixture(true)
	w := f.do(http.MethodGet, "/api/v1/sale?from=yesterday", "good", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginFlow(t *testing.T) {
	f := newFixture(true)
	creds := map[string]string{"email": "owner@shop.test", "password": "hunter22"}

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/admin/login", "", creds).Code)

	f.auth.loginErr = service.ErrAdminNotVerified
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/api/v1/admin/login", "", creds).Code)

	f.auth.loginErr = service.ErrInvalidCredentials
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/v1/admin/login", "", creds).Code)

	assert.Equal(t, http.StatusBadRequest,
		f.do(http.MethodPost, "/api/v1/admin/login", "", map[string]string{"email": "owner@shop.test"}).Code)

	f.auth.result = &service.LoginResult{
		Token:     "signed",
		ExpiresAt: time.Now().Add(time.Hour),
		Admin:     &models.Admin{ID: 1, Email: "owner@shop.test", PasswordHash: "secret-hash"},
	}
	w := f.do(http.MethodPost, "/api/v1/admin/login/verify", "", map[string]string{"email": "owner@shop.test", "otp": "123456"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "signed", decode(t, w)["token"])
	assert.NotContains(t, w.Body.String(), "secret-hash")

	w = f.do(http.MethodPost, "/api/v1/admin/register/confirm", "", map[string]string{"email": "owner@shop.test", "otp": "000000"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListProductsHidesWholesalePrice(t *testing.T) {
	f := newFixture(true)
	f.catalog.products = []models.Product{{ID: 1, Name: "Cable", Price: decimal.NewFromInt(3), WholesalePrice: decimal.NewFromInt(1)}}

	w := f.do(http.MethodGet, "/api/v1/product", "good", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "wholesale_price")

	w = f.do(http.MethodGet, "/api/v1/product/wholesale", "good", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "wholesale_price")
}
