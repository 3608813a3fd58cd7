package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/service"
	"backoffice-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SaleEngine is the sale surface the handlers call
type SaleEngine interface {
	CreateSale(ctx context.Context, req *service.CreateSaleRequest) (*models.Sale, error)
	DeleteSale(ctx context.Context, id int64) error
	GetSale(ctx context.Context, id int64) (*models.Sale, error)
	ListSales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, error)
	MonthlyStats(ctx context.Context, month, year int) (*models.MonthlyStats, error)
}

// AuthGate is the registration and login surface the handlers call
type AuthGate interface {
	Register(ctx context.Context, email, password string) error
	ConfirmRegistration(ctx context.Context, email, code string) error
	Login(ctx context.Context, email, password string) error
	VerifyLogin(ctx context.Context, email, code string) (*service.LoginResult, error)
	ResendOTP(ctx context.Context, email, purpose string) error
	Authenticate(ctx context.Context, token string) (*models.Admin, error)
}

// Catalog is the category and product surface the handlers call
type Catalog interface {
	CreateCategory(ctx context.Context, req *service.CategoryRequest) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	UpdateCategory(ctx context.Context, id int64, req *service.CategoryRequest) (*models.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	CreateProduct(ctx context.Context, req *service.ProductRequest) (*models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error)
	UpdateProduct(ctx context.Context, id int64, req *service.ProductRequest) (*models.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

// ReadinessCheck is one dependency checked by /ready
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	sales       SaleEngine
	auth        AuthGate
	catalog     Catalog
	checks      []ReadinessCheck
	development bool
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler. development controls whether
// internal error details reach the client.
func NewHandler(sales SaleEngine, auth AuthGate, catalog Catalog, development bool, checks ...ReadinessCheck) *Handler {
	return &Handler{
		sales:       sales,
		auth:        auth,
		catalog:     catalog,
		checks:      checks,
		development: development,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		admin := v1.Group("/admin")
		admin.POST("/register", h.register)
		admin.POST("/register/confirm", h.confirmRegistration)
		admin.POST("/login", h.login)
		admin.POST("/login/verify", h.verifyLogin)
		admin.POST("/otp/resend", h.resendOTP)

		protected := v1.Group("", h.requireAdmin())

		protected.GET("/category", h.listCategories)
		protected.POST("/category", h.createCategory)
		protected.PATCH("/category/:id", h.updateCategory)
		protected.DELETE("/category/:id", h.deleteCategory)

		protected.GET("/product", h.listProducts)
		protected.POST("/product", h.createProduct)
		protected.GET("/product/wholesale", h.listWholesaleProducts)
		protected.GET("/product/category/:categoryId", h.listProductsByCategory)
		protected.GET("/product/:id", h.getProduct)
		protected.PATCH("/product/:id", h.updateProduct)
		protected.DELETE("/product/:id", h.deleteProduct)

		protected.POST("/sale", h.createSale)
		protected.GET("/sale", h.listSales)
		protected.GET("/sale/stats/monthly", h.monthlyStats)
		protected.GET("/sale/:id", h.getSale)
		protected.DELETE("/sale/:id", h.deleteSale)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for _, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", check.Name), zap.Error(err))
			failed[check.Name] = "unavailable"
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + param,
		})
		return 0, false
	}
	return id, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
