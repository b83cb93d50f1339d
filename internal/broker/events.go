package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"order-lifecycle/internal/models"
	"order-lifecycle/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing order lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// NewBaseEvent stamps a fresh event id and timestamp
func NewBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

func orderKey(orderID string) string {
	return fmt.Sprintf("order-%s", orderID)
}

// PublishStatusChanged publishes ORDER_STATUS_CHANGED
func (ep *EventPublisher) PublishStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// PublishCompensated publishes ORDER_CANCELLED or ORDER_RETURNED
func (ep *EventPublisher) PublishCompensated(ctx context.Context, event *models.OrderCompensatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// PublishPaymentUpdated publishes ORDER_PAYMENT_UPDATED
func (ep *EventPublisher) PublishPaymentUpdated(ctx context.Context, event *models.OrderPaymentUpdatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// PublishTrackingUpdated publishes ORDER_TRACKING_UPDATED
func (ep *EventPublisher) PublishTrackingUpdated(ctx context.Context, event *models.OrderTrackingUpdatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// PaymentEventFunc handles one decoded payment result
type PaymentEventFunc func(context.Context, *models.PaymentResultEvent) error

// EventHandler routes incoming payment events
type EventHandler struct {
	handlers map[string]PaymentEventFunc
	logger   *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{
		handlers: make(map[string]PaymentEventFunc),
		logger:   util.GetLogger(),
	}
}

// On registers a handler for an event type
func (eh *EventHandler) On(eventType string, handler PaymentEventFunc) {
	eh.handlers[eventType] = handler
}

// HandleMessage routes messages to the registered handler; unknown types are
// skipped. The event_type header is preferred and the body is the fallback.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	eventType := headerValue(msg, EventTypeHeader)
	if eventType == "" {
		var baseEvent models.BaseEvent
		if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
			return fmt.Errorf("%w: base event: %v", ErrMalformedMessage, err)
		}
		eventType = baseEvent.EventType
	}

	handler, ok := eh.handlers[eventType]
	if !ok {
		eh.logger.Debug("Unhandled event type", zap.String("event_type", eventType))
		return nil
	}

	var event models.PaymentResultEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("%w: %s event: %v", ErrMalformedMessage, eventType, err)
	}
	if event.EventType == "" {
		event.EventType = eventType
	}

	eh.logger.Info("Handling event",
		zap.String("event_type", event.EventType),
		zap.String("event_id", event.EventID),
		zap.String("order_id", event.OrderID))

	return handler(ctx, &event)
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
