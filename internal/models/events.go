package models

import "time"

// Event types
const (
	EventTypeSaleCreated = "SALE_CREATED"
	EventTypeSaleDeleted = "SALE_DELETED"
	EventTypeOtpIssued   = "OTP_ISSUED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleCreatedEvent published after a sale commits
type SaleCreatedEvent struct {
	BaseEvent
	SaleID     int64          `json:"sale_id"`
	TotalPrice string         `json:"total_price"`
	Items      []SaleLineData `json:"items"`
}

// SaleDeletedEvent published after a sale is reversed and removed
type SaleDeletedEvent struct {
	BaseEvent
	SaleID int64          `json:"sale_id"`
	Items  []SaleLineData `json:"items"`
}

// OtpIssuedEvent carries a freshly issued code to the notification worker
type OtpIssuedEvent struct {
	BaseEvent
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	Purpose   string    `json:"purpose"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SaleLineData represents line data in events
type SaleLineData struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// LineData converts sale lines to their event representation
func LineData(lines []SaleLine) []SaleLineData {
	data := make([]SaleLineData, 0, len(lines))
	for _, l := range lines {
		data = append(data, SaleLineData{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
		})
	}
	return data
}
