package service

import (
	"context"
	"fmt"
	"time"

	"order-lifecycle/internal/broker"
	"order-lifecycle/internal/models"
	"order-lifecycle/internal/store"
	"order-lifecycle/internal/util"

	"go.uber.org/zap"
)

// PaymentDetails is the optional payment metadata accompanying a payment
// status update. Empty fields leave the stored value untouched.
type PaymentDetails struct {
	Method        string     `json:"method,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
	Gateway       string     `json:"gateway,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

// UpdatePaymentStatus records a payment status change and its details.
// Marking an order paid without a timestamp stamps paid_at with now.
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, orderID string, status models.PaymentStatus, details PaymentDetails) (result *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdatePaymentStatus")
	defer func() { util.EndSpan(span, err) }()

	if !status.Valid() {
		return nil, fmt.Errorf("%w: payment status %q", ErrInvalidInput, status)
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	patch := store.OrderPatch{PaymentStatus: &status}
	if details.Method != "" {
		patch.PaymentMethod = &details.Method
	}
	if details.TransactionID != "" {
		patch.TransactionID = &details.TransactionID
	}
	if details.Gateway != "" {
		patch.PaymentGateway = &details.Gateway
	}
	switch {
	case details.PaidAt != nil:
		paidAt := details.PaidAt.UTC()
		patch.PaidAt = &paidAt
	case status == models.PaymentStatusPaid && order.PaidAt == nil:
		now := s.now()
		patch.PaidAt = &now
	}

	if err := s.orders.PatchOrder(ctx, orderID, patch); err != nil {
		return nil, mapStoreError(err)
	}

	util.PaymentUpdatesTotal.WithLabelValues(string(status)).Inc()
	s.logger.Info("Payment status updated",
		zap.String("order_id", orderID),
		zap.String("from", string(order.PaymentStatus)),
		zap.String("to", string(status)))

	if s.publisher != nil {
		event := &models.OrderPaymentUpdatedEvent{
			BaseEvent:     broker.NewBaseEvent(models.EventTypeOrderPaymentUpdated),
			OrderID:       orderID,
			PaymentStatus: status,
			TransactionID: details.TransactionID,
		}
		if err := s.publisher.PublishPaymentUpdated(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderPaymentUpdated event", zap.String("order_id", orderID), zap.Error(err))
		}
	}

	return s.loadOrder(ctx, orderID)
}

// PaymentStatusForEvent maps an incoming payment event type to the payment
// status it records.
func PaymentStatusForEvent(eventType string) (models.PaymentStatus, bool) {
	switch eventType {
	case models.EventTypePaymentSuccess:
		return models.PaymentStatusPaid, true
	case models.EventTypePaymentFailed:
		return models.PaymentStatusFailed, true
	case models.EventTypePaymentRefunded:
		return models.PaymentStatusRefunded, true
	}
	return "", false
}

// ApplyPaymentEvent applies a payment result emitted by the payment subsystem
func (s *OrderService) ApplyPaymentEvent(ctx context.Context, event *models.PaymentResultEvent) error {
	status, ok := PaymentStatusForEvent(event.EventType)
	if !ok {
		return fmt.Errorf("%w: event type %q", ErrInvalidInput, event.EventType)
	}
	_, err := s.UpdatePaymentStatus(ctx, event.OrderID, status, PaymentDetails{
		Method:        event.Method,
		TransactionID: event.TransactionID,
		Gateway:       event.Gateway,
		PaidAt:        event.PaidAt,
	})
	return err
}
