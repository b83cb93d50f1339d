package service

import (
	"context"
	"time"

	"order-lifecycle/internal/models"
	"order-lifecycle/internal/store"
)

// OrderRepository is the order data access used by the lifecycle manager.
// Implemented by *store.Store.
type OrderRepository interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetOrderByID(ctx context.Context, id string, opts store.LoadOptions) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number string, opts store.LoadOptions) (*models.Order, error)
	ListOrders(ctx context.Context, filter store.OrderFilter, page store.Pagination, opts store.LoadOptions) ([]models.Order, int, error)
	ListOrdersByUser(ctx context.Context, userID string, statuses []models.OrderStatus, page store.Pagination) ([]models.Order, int, error)
	FindPendingOrdersBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	PatchOrder(ctx context.Context, id string, patch store.OrderPatch) error
	TransitionStatus(ctx context.Context, id string, from, to models.OrderStatus, patch store.OrderPatch) error
	AppendHistory(ctx context.Context, entry *models.StatusHistoryEntry) error
	ListHistory(ctx context.Context, orderID string) ([]models.StatusHistoryEntry, error)
}

// StockRepository persists variant stock
type StockRepository interface {
	AdjustStock(ctx context.Context, productID, sku string, delta int) (int, error)
}

// StatsRepository runs the read-side aggregations
type StatsRepository interface {
	OrderStatusBuckets(ctx context.Context, from, to *time.Time) ([]models.StatusBucket, error)
	DailyRevenue(ctx context.Context, from, to time.Time, exclude []models.OrderStatus) ([]models.DailyRevenue, error)
}

// StockCache mirrors committed stock levels for fast reads
type StockCache interface {
	SetStock(ctx context.Context, productID, sku string, stock int) error
}

// EventPublisher emits lifecycle events after commit
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishCompensated(ctx context.Context, event *models.OrderCompensatedEvent) error
	PublishPaymentUpdated(ctx context.Context, event *models.OrderPaymentUpdatedEvent) error
	PublishTrackingUpdated(ctx context.Context, event *models.OrderTrackingUpdatedEvent) error
}
