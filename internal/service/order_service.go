package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-lifecycle/internal/broker"
	"order-lifecycle/internal/models"
	"order-lifecycle/internal/store"
	"order-lifecycle/internal/util"

	"go.uber.org/zap"
)

var fullLoad = store.LoadOptions{WithUser: true, WithProducts: true, WithCoupon: true}

// OrderService drives orders through their lifecycle
type OrderService struct {
	orders    OrderRepository
	inventory *InventoryAdjuster
	publisher EventPublisher
	policy    models.ReturnPolicy
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service; publisher may be nil
func NewOrderService(
	orders OrderRepository,
	inventory *InventoryAdjuster,
	publisher EventPublisher,
	policy models.ReturnPolicy,
) *OrderService {
	return &OrderService{
		orders:    orders,
		inventory: inventory,
		publisher: publisher,
		policy:    policy,
		logger:    util.GetLogger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OrderPage is one page of an order listing
type OrderPage struct {
	Orders     []models.Order `json:"orders"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

type transitionCmd struct {
	to     models.OrderStatus
	note   string
	reason string
	actor  models.Actor
}

// UpdateOrderStatus moves an order to newStatus. Moves into cancelled or
// returned restore stock in the same transaction as the status change.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, newStatus models.OrderStatus, note string, actor models.Actor) (result *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus")
	defer func() { util.EndSpan(span, err) }()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(order.Status, newStatus) {
		util.OrderTransitionsRejected.WithLabelValues("invalid_transition").Inc()
		return nil, fmt.Errorf("%w: %s -> %s, allowed: %v", ErrInvalidTransition, order.Status, newStatus, order.Status.AllowedNext())
	}

	return s.transition(ctx, order, transitionCmd{to: newStatus, note: note, reason: note, actor: actor})
}

// CancelOrder cancels an order on behalf of its owner, an admin or the system
// and returns its items to stock.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string, actor models.Actor) (result *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer func() { util.EndSpan(span, err) }()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsPrivileged() && order.UserID != actor.ID {
		util.OrderTransitionsRejected.WithLabelValues("forbidden").Inc()
		return nil, fmt.Errorf("%w: order %s", ErrForbidden, orderID)
	}

	order.RefreshFlags(s.policy, s.now())
	if !order.CanCancel {
		util.OrderTransitionsRejected.WithLabelValues("not_cancellable").Inc()
		return nil, fmt.Errorf("%w: order %s cannot be cancelled in status %s", ErrInvalidOperation, orderID, order.Status)
	}

	return s.transition(ctx, order, transitionCmd{to: models.OrderStatusCancelled, note: reason, reason: reason, actor: actor})
}

// ReturnOrder returns a delivered order. Only the owning user may request it.
func (s *OrderService) ReturnOrder(ctx context.Context, orderID, reason string, actor models.Actor) (result *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ReturnOrder")
	defer func() { util.EndSpan(span, err) }()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.ID {
		util.OrderTransitionsRejected.WithLabelValues("forbidden").Inc()
		return nil, fmt.Errorf("%w: order %s", ErrForbidden, orderID)
	}

	order.RefreshFlags(s.policy, s.now())
	if !order.CanReturn {
		util.OrderTransitionsRejected.WithLabelValues("not_returnable").Inc()
		return nil, fmt.Errorf("%w: order %s cannot be returned in status %s", ErrInvalidOperation, orderID, order.Status)
	}

	return s.transition(ctx, order, transitionCmd{to: models.OrderStatusReturned, note: reason, reason: reason, actor: actor})
}

// transition commits the conditional status update, the history entry and
// any stock restoration atomically, then mirrors stock and publishes events.
func (s *OrderService) transition(ctx context.Context, order *models.Order, cmd transitionCmd) (*models.Order, error) {
	now := s.now()
	from := order.Status

	var patch store.OrderPatch
	switch cmd.to {
	case models.OrderStatusDelivered:
		patch.DeliveredAt = &now
	case models.OrderStatusCancelled:
		patch.CancelReason = &cmd.reason
		patch.CancelledAt = &now
	case models.OrderStatusReturned:
		patch.ReturnReason = &cmd.reason
		patch.ReturnedAt = &now
	}

	var movements []models.StockMovement
	err := s.orders.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.orders.TransitionStatus(ctx, order.ID, from, cmd.to, patch); err != nil {
			return mapStoreError(err)
		}
		if err := s.orders.AppendHistory(ctx, &models.StatusHistoryEntry{
			OrderID:    order.ID,
			FromStatus: from,
			ToStatus:   cmd.to,
			Note:       cmd.note,
			ActorID:    cmd.actor.ID,
			ActorKind:  cmd.actor.Kind,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		if !cmd.to.RestoresStock() {
			return nil
		}
		var err error
		movements, err = s.inventory.restoreItems(ctx, order.ID, order.Items)
		return err
	})
	if err != nil {
		s.recordFailure(order, cmd, err)
		return nil, err
	}

	util.OrderTransitionsTotal.WithLabelValues(string(from), string(cmd.to)).Inc()
	s.logger.Info("Order status changed",
		zap.String("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(cmd.to)),
		zap.String("actor_kind", string(cmd.actor.Kind)))

	if cmd.to.RestoresStock() {
		s.recordCompensation(order, cmd, movements)
		s.inventory.MirrorStock(ctx, movements)
	}
	s.publishTransition(ctx, order, from, cmd, movements)

	return s.loadOrder(ctx, order.ID)
}

func (s *OrderService) recordFailure(order *models.Order, cmd transitionCmd, err error) {
	var restoreErr *RestorationError
	switch {
	case errors.As(err, &restoreErr):
		util.OrderTransitionsRejected.WithLabelValues("stock_restoration").Inc()
		s.logger.Error("Stock restoration failed, status change rolled back",
			zap.String("order_id", order.ID),
			zap.String("to", string(cmd.to)),
			zap.Any("items", restoreErr.Items))
	case errors.Is(err, ErrConflict):
		util.OrderTransitionsRejected.WithLabelValues("conflict").Inc()
		s.logger.Warn("Order status changed concurrently",
			zap.String("order_id", order.ID),
			zap.String("expected", string(order.Status)))
	default:
		util.OrderTransitionsRejected.WithLabelValues("error").Inc()
		s.logger.Error("Failed to change order status",
			zap.String("order_id", order.ID),
			zap.String("to", string(cmd.to)),
			zap.Error(err))
	}
}

func (s *OrderService) recordCompensation(order *models.Order, cmd transitionCmd, movements []models.StockMovement) {
	units := 0
	for _, m := range movements {
		units += m.Quantity
	}
	util.StockRestoredUnits.Add(float64(units))

	if cmd.to == models.OrderStatusCancelled {
		util.OrdersCancelledTotal.WithLabelValues(string(cmd.actor.Kind)).Inc()
	} else {
		util.OrdersReturnedTotal.Inc()
	}
	s.logger.Info("Stock restored",
		zap.String("order_id", order.ID),
		zap.Int("units", units),
		zap.Int("variants", len(movements)))
}

func (s *OrderService) publishTransition(ctx context.Context, order *models.Order, from models.OrderStatus, cmd transitionCmd, movements []models.StockMovement) {
	if s.publisher == nil {
		return
	}

	changed := &models.OrderStatusChangedEvent{
		BaseEvent:   broker.NewBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		From:        from,
		To:          cmd.to,
		Note:        cmd.note,
		ActorID:     cmd.actor.ID,
		ActorKind:   cmd.actor.Kind,
	}
	if err := s.publisher.PublishStatusChanged(ctx, changed); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.String("order_id", order.ID), zap.Error(err))
	}

	if !cmd.to.RestoresStock() {
		return
	}
	eventType := models.EventTypeOrderCancelled
	if cmd.to == models.OrderStatusReturned {
		eventType = models.EventTypeOrderReturned
	}
	compensated := &models.OrderCompensatedEvent{
		BaseEvent:   broker.NewBaseEvent(eventType),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Reason:      cmd.reason,
		ActorKind:   cmd.actor.Kind,
		Items:       movements,
	}
	if err := s.publisher.PublishCompensated(ctx, compensated); err != nil {
		s.logger.Error("Failed to publish compensation event", zap.String("order_id", order.ID), zap.Error(err))
	}
}

// TrackingUpdate carries the shipment fields set by fulfilment
type TrackingUpdate struct {
	TrackingNumber   string `json:"tracking_number"`
	ShippingProvider string `json:"shipping_provider"`
}

// UpdateTracking stores tracking info verbatim; status is not touched
func (s *OrderService) UpdateTracking(ctx context.Context, orderID string, update TrackingUpdate) (result *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateTracking")
	defer func() { util.EndSpan(span, err) }()

	if err := s.orders.PatchOrder(ctx, orderID, store.OrderPatch{
		TrackingNumber:   &update.TrackingNumber,
		ShippingProvider: &update.ShippingProvider,
	}); err != nil {
		return nil, mapStoreError(err)
	}

	if s.publisher != nil {
		event := &models.OrderTrackingUpdatedEvent{
			BaseEvent:        broker.NewBaseEvent(models.EventTypeOrderTrackingUpdated),
			OrderID:          orderID,
			TrackingNumber:   update.TrackingNumber,
			ShippingProvider: update.ShippingProvider,
		}
		if err := s.publisher.PublishTrackingUpdated(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderTrackingUpdated event", zap.String("order_id", orderID), zap.Error(err))
		}
	}

	return s.loadOrder(ctx, orderID)
}

// GetOrder returns a populated order visible to the actor
func (s *OrderService) GetOrder(ctx context.Context, orderID string, actor models.Actor) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.authorize(order, actor)
}

// GetOrderByNumber looks an order up by its human-readable number
func (s *OrderService) GetOrderByNumber(ctx context.Context, number string, actor models.Actor) (*models.Order, error) {
	order, err := s.orders.GetOrderByNumber(ctx, number, fullLoad)
	if err != nil {
		return nil, mapStoreError(err)
	}
	order.RefreshFlags(s.policy, s.now())
	return s.authorize(order, actor)
}

// GetOrderHistory returns the status history of an order, oldest first
func (s *OrderService) GetOrderHistory(ctx context.Context, orderID string, actor models.Actor) ([]models.StatusHistoryEntry, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(order, actor); err != nil {
		return nil, err
	}
	history, err := s.orders.ListHistory(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return history, nil
}

// ListOrders lists orders across all users
func (s *OrderService) ListOrders(ctx context.Context, filter store.OrderFilter, page store.Pagination) (*OrderPage, error) {
	page = page.Normalize()
	orders, total, err := s.orders.ListOrders(ctx, filter, page, store.LoadOptions{WithUser: true, WithProducts: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return s.pageOf(orders, total, page), nil
}

// ListMyOrders lists the actor's own orders
func (s *OrderService) ListMyOrders(ctx context.Context, actor models.Actor, statuses []models.OrderStatus, page store.Pagination) (*OrderPage, error) {
	if actor.ID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	page = page.Normalize()
	orders, total, err := s.orders.ListOrdersByUser(ctx, actor.ID, statuses, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return s.pageOf(orders, total, page), nil
}

func (s *OrderService) pageOf(orders []models.Order, total int, page store.Pagination) *OrderPage {
	now := s.now()
	for i := range orders {
		orders[i].RefreshFlags(s.policy, now)
	}
	return &OrderPage{
		Orders:     orders,
		Total:      total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: (total + page.Limit - 1) / page.Limit,
	}
}

func (s *OrderService) authorize(order *models.Order, actor models.Actor) (*models.Order, error) {
	if !actor.IsPrivileged() && order.UserID != actor.ID {
		return nil, fmt.Errorf("%w: order %s", ErrForbidden, order.ID)
	}
	return order, nil
}

func (s *OrderService) loadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID, fullLoad)
	if err != nil {
		return nil, mapStoreError(err)
	}
	order.RefreshFlags(s.policy, s.now())
	return order, nil
}
