package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/service"

	"github.com/gin-gonic/gin"
)

// Numbers are bound loosely so that a bad entry becomes an itemized
// validation message rather than a decoding failure.
type saleItemBody struct {
	ProductID json.Number `json:"productId"`
	Quantity  json.Number `json:"quantity"`
}

type createSaleBody struct {
	Items []saleItemBody `json:"items"`
}

func wholeNumber(n json.Number) int64 {
	v, err := n.Int64()
	if err != nil {
		return 0
	}
	return v
}

// createSale handles sale creation
func (h *Handler) createSale(c *gin.Context) {
	var body createSaleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	req := &service.CreateSaleRequest{
		Items:          make([]service.SaleItemRequest, 0, len(body.Items)),
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	}
	for _, item := range body.Items {
		req.Items = append(req.Items, service.SaleItemRequest{
			ProductID: wholeNumber(item.ProductID),
			Quantity:  int(wholeNumber(item.Quantity)),
		})
	}

	sale, err := h.sales.CreateSale(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Sale created",
		"sale":    sale,
		"items":   sale.Lines,
	})
}

// deleteSale reverses a sale and restores stock
func (h *Handler) deleteSale(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.sales.DeleteSale(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Sale deleted and stock restored"})
}

func (h *Handler) getSale(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	sale, err := h.sales.GetSale(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sale":  sale,
		"items": sale.Lines,
	})
}

// parseDay accepts RFC 3339 timestamps or plain dates. A plain end date
// covers its whole day.
func parseDay(value string, end bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	if end {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

// listSales handles GET /sale?from=&to=
func (h *Handler) listSales(c *gin.Context) {
	var (
		filter  models.SaleFilter
		details []string
		err     error
	)
	if filter.From, err = parseDay(c.Query("from"), false); err != nil {
		details = append(details, "from must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
	}
	if filter.To, err = parseDay(c.Query("to"), true); err != nil {
		details = append(details, "to must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
	}
	if len(details) > 0 {
		h.respondError(c, &service.ValidationError{Errors: details})
		return
	}

	sales, err := h.sales.ListSales(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sales": sales,
		"count": len(sales),
	})
}

// monthlyStats handles GET /sale/stats/monthly?month=&year=
func (h *Handler) monthlyStats(c *gin.Context) {
	var details []string
	month, err := strconv.Atoi(c.Query("month"))
	if err != nil {
		details = append(details, "month must be an integer")
	}
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		details = append(details, "year must be an integer")
	}
	if len(details) > 0 {
		h.respondError(c, &service.ValidationError{Errors: details})
		return
	}

	stats, err := h.sales.MonthlyStats(c.Request.Context(), month, year)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
