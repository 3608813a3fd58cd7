package worker

import (
	"context"

	"backoffice-service/internal/broker"
	"backoffice-service/internal/models"
	"backoffice-service/internal/util"

	"go.uber.org/zap"
)

// EventSource delivers messages to a handler until its context ends
type EventSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// OtpSender delivers an issued code to its owner
type OtpSender interface {
	SendOTP(ctx context.Context, event *models.OtpIssuedEvent) error
}

// NotificationWorker consumes the notifications topic and emails OTP codes
type NotificationWorker struct {
	consumer     EventSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer EventSource, sender OtpSender) *NotificationWorker {
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnOtpIssued(func(ctx context.Context, event *models.OtpIssuedEvent) error {
		if err := sender.SendOTP(ctx, event); err != nil {
			util.OtpDeliveryFailedTotal.Inc()
			w.logger.Error("Failed to deliver OTP",
				zap.String("email", event.Email),
				zap.String("purpose", event.Purpose),
				zap.Error(err))
			return err
		}
		return nil
	})

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker...")
	return w.consumer.Close()
}
