package models

import (
	"slices"
	"time"
)

var orderStateTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipping, OrderStatusCancelled},
	OrderStatusShipping:   {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {OrderStatusReturned},
}

var allOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipping,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusReturned,
}

// AllOrderStatuses returns every known order status in lifecycle order
func AllOrderStatuses() []OrderStatus {
	return slices.Clone(allOrderStatuses)
}

// Valid reports whether s is a known order status
func (s OrderStatus) Valid() bool {
	return slices.Contains(allOrderStatuses, s)
}

// Terminal reports whether no transition leaves s
func (s OrderStatus) Terminal() bool {
	return len(orderStateTransitions[s]) == 0
}

// AllowedNext returns the statuses reachable from s in one step
func (s OrderStatus) AllowedNext() []OrderStatus {
	return slices.Clone(orderStateTransitions[s])
}

// CanTransition reports whether from -> to is in the lifecycle table.
// A status never transitions to itself.
func CanTransition(from, to OrderStatus) bool {
	return slices.Contains(orderStateTransitions[from], to)
}

// Cancellable reports whether an order in status s may be cancelled
func (s OrderStatus) Cancellable() bool {
	return CanTransition(s, OrderStatusCancelled)
}

// RestoresStock reports whether entering s returns the order's items to inventory
func (s OrderStatus) RestoresStock() bool {
	return s == OrderStatusCancelled || s == OrderStatusReturned
}

// CountsAsRevenue reports whether orders in status s contribute to revenue
func (s OrderStatus) CountsAsRevenue() bool {
	return !s.RestoresStock()
}

// Valid reports whether s is a known payment status
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// ReturnPolicy decides return eligibility for delivered orders.
// A zero Window means delivered orders are always returnable.
type ReturnPolicy struct {
	Window time.Duration
}

// Eligible reports whether a delivered order may still be returned at now
func (p ReturnPolicy) Eligible(o *Order, now time.Time) bool {
	if o.Status != OrderStatusDelivered {
		return false
	}
	if p.Window <= 0 || o.DeliveredAt == nil {
		return true
	}
	return !now.After(o.DeliveredAt.Add(p.Window))
}

// RefreshFlags recomputes CanCancel and CanReturn
func (o *Order) RefreshFlags(policy ReturnPolicy, now time.Time) {
	o.CanCancel = o.Status.Cancellable()
	o.CanReturn = policy.Eligible(o, now)
}

// TotalQuantity sums the quantity of every line item
func (o *Order) TotalQuantity() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}
