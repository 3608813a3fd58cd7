package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events and outgoing notifications
type EventPublisher struct {
	sales         *Producer
	notifications *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(sales, notifications *Producer) *EventPublisher {
	return &EventPublisher{sales: sales, notifications: notifications}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// PublishSaleCreated publishes SaleCreated event
func (ep *EventPublisher) PublishSaleCreated(ctx context.Context, sale *models.Sale) error {
	event := &models.SaleCreatedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeSaleCreated),
		SaleID:     sale.ID,
		TotalPrice: sale.TotalPrice.StringFixed(2),
		Items:      models.LineData(sale.Lines),
	}
	return ep.sales.PublishEvent(ctx, fmt.Sprintf("sale-%d", sale.ID), event)
}

// PublishSaleDeleted publishes SaleDeleted event
func (ep *EventPublisher) PublishSaleDeleted(ctx context.Context, sale *models.Sale) error {
	event := &models.SaleDeletedEvent{
		BaseEvent: newBaseEvent(models.EventTypeSaleDeleted),
		SaleID:    sale.ID,
		Items:     models.LineData(sale.Lines),
	}
	return ep.sales.PublishEvent(ctx, fmt.Sprintf("sale-%d", sale.ID), event)
}

// SendOTP hands a code to the notification topic; the worker delivers it by email
func (ep *EventPublisher) SendOTP(ctx context.Context, otp *models.OtpRecord) error {
	event := &models.OtpIssuedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOtpIssued),
		Email:     otp.Email,
		Code:      otp.Code,
		Purpose:   otp.Purpose,
		ExpiresAt: otp.ExpiresAt,
	}
	return ep.notifications.PublishEvent(ctx, otp.Email, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onOtpIssued func(context.Context, *models.OtpIssuedEvent) error
	logger      *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOtpIssued registers a handler for OtpIssued events
func (eh *EventHandler) OnOtpIssued(handler func(context.Context, *models.OtpIssuedEvent) error) {
	eh.onOtpIssued = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOtpIssued:
		if eh.onOtpIssued != nil {
			var event models.OtpIssuedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OtpIssued event: %w", err)
			}
			return eh.onOtpIssued(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
