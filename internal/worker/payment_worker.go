package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-lifecycle/internal/broker"
	"order-lifecycle/internal/models"
	"order-lifecycle/internal/service"
	"order-lifecycle/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const processedTTL = 7 * 24 * time.Hour

// PaymentApplier records payment results on orders
type PaymentApplier interface {
	ApplyPaymentEvent(ctx context.Context, event *models.PaymentResultEvent) error
}

// IdempotencyStore remembers which events were already applied
type IdempotencyStore interface {
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ForgetProcessed(ctx context.Context, key string) error
}

// PaymentWorker applies payment events from the payment subsystem
type PaymentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	payments     PaymentApplier
	processed    IdempotencyStore
	logger       *zap.Logger
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(
	consumer *broker.Consumer,
	payments PaymentApplier,
	processed IdempotencyStore,
) *PaymentWorker {
	pw := &PaymentWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		payments:     payments,
		processed:    processed,
		logger:       util.GetLogger(),
	}

	pw.eventHandler.On(models.EventTypePaymentSuccess, pw.handlePaymentEvent)
	pw.eventHandler.On(models.EventTypePaymentFailed, pw.handlePaymentEvent)
	pw.eventHandler.On(models.EventTypePaymentRefunded, pw.handlePaymentEvent)

	return pw
}

// Start starts the payment worker
func (pw *PaymentWorker) Start(ctx context.Context) error {
	pw.logger.Info("Starting payment worker")
	return pw.consumer.StartConsuming(ctx, pw.HandleMessage)
}

// HandleMessage decodes and applies one payment event
func (pw *PaymentWorker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	return pw.eventHandler.HandleMessage(ctx, msg)
}

// Stop stops the payment worker
func (pw *PaymentWorker) Stop() error {
	pw.logger.Info("Stopping payment worker")
	return pw.consumer.Close()
}

// dedupeKey identifies an event for idempotency. Events without an id fall
// back to the order, type and transaction they carry.
func dedupeKey(event *models.PaymentResultEvent) string {
	if event.EventID != "" {
		return "payment-event:" + event.EventID
	}
	return fmt.Sprintf("payment-event:%s:%s:%s", event.OrderID, event.EventType, event.TransactionID)
}

// handlePaymentEvent applies each event at most once. Events that can never
// apply (unknown order, bad status) are dropped; other failures release the
// idempotency key so the consumer's retry can apply it.
func (pw *PaymentWorker) handlePaymentEvent(ctx context.Context, event *models.PaymentResultEvent) error {
	if event.OrderID == "" {
		pw.logger.Warn("Dropping payment event without order id",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType))
		return nil
	}

	key := dedupeKey(event)
	first, err := pw.processed.MarkProcessed(ctx, key, processedTTL)
	if err != nil {
		return err
	}
	if !first {
		pw.logger.Info("Duplicate payment event skipped",
			zap.String("key", key),
			zap.String("order_id", event.OrderID))
		return nil
	}

	err = pw.payments.ApplyPaymentEvent(ctx, event)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrInvalidInput):
		pw.logger.Warn("Dropping payment event",
			zap.String("event_id", event.EventID),
			zap.String("order_id", event.OrderID),
			zap.Error(err))
		return nil
	}

	if ferr := pw.processed.ForgetProcessed(ctx, key); ferr != nil {
		pw.logger.Error("Failed to release idempotency key", zap.String("key", key), zap.Error(ferr))
	}
	return err
}
