package models

import "time"

// Event types
const (
	EventTypeOrderStatusChanged   = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled       = "ORDER_CANCELLED"
	EventTypeOrderReturned        = "ORDER_RETURNED"
	EventTypeOrderPaymentUpdated  = "ORDER_PAYMENT_UPDATED"
	EventTypeOrderTrackingUpdated = "ORDER_TRACKING_UPDATED"
	EventTypePaymentSuccess       = "PAYMENT_SUCCESS"
	EventTypePaymentFailed        = "PAYMENT_FAILED"
	EventTypePaymentRefunded      = "PAYMENT_REFUNDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderStatusChangedEvent published after every committed transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	From        OrderStatus `json:"from"`
	To          OrderStatus `json:"to"`
	Note        string      `json:"note,omitempty"`
	ActorID     string      `json:"actor_id,omitempty"`
	ActorKind   ActorKind   `json:"actor_kind"`
}

// OrderCompensatedEvent published when a cancel or return restored stock
type OrderCompensatedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Reason      string          `json:"reason"`
	ActorKind   ActorKind       `json:"actor_kind"`
	Items       []StockMovement `json:"items"`
}

// StockMovement records one variant's restored quantity
type StockMovement struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	NewStock  int    `json:"new_stock"`
}

// OrderPaymentUpdatedEvent published after a payment status change
type OrderPaymentUpdatedEvent struct {
	BaseEvent
	OrderID       string        `json:"order_id"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	TransactionID string        `json:"transaction_id,omitempty"`
}

// OrderTrackingUpdatedEvent published after tracking fields change
type OrderTrackingUpdatedEvent struct {
	BaseEvent
	OrderID          string `json:"order_id"`
	TrackingNumber   string `json:"tracking_number"`
	ShippingProvider string `json:"shipping_provider"`
}

// PaymentResultEvent is emitted by the checkout/payment subsystem
type PaymentResultEvent struct {
	BaseEvent
	OrderID       string     `json:"order_id"`
	TransactionID string     `json:"transaction_id,omitempty"`
	Method        string     `json:"method,omitempty"`
	Gateway       string     `json:"gateway,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	Reason        string     `json:"reason,omitempty"`
}
