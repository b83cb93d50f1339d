package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionMatchesTable(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
		OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
		OrderStatusProcessing: {OrderStatusShipping, OrderStatusCancelled},
		OrderStatusShipping:   {OrderStatusDelivered, OrderStatusCancelled},
		OrderStatusDelivered:  {OrderStatusReturned},
	}

	for _, from := range AllOrderStatuses() {
		for _, to := range AllOrderStatuses() {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.True(t, OrderStatusReturned.Terminal())
	assert.False(t, OrderStatusDelivered.Terminal())
	assert.False(t, OrderStatusPending.Terminal())
}

func TestCancellable(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipping} {
		assert.True(t, s.Cancellable(), s)
	}
	for _, s := range []OrderStatus{OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned} {
		assert.False(t, s.Cancellable(), s)
	}
}

func TestRefreshFlags(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	delivered := now.Add(-72 * time.Hour)

	o := &Order{Status: OrderStatusShipping}
	o.RefreshFlags(ReturnPolicy{}, now)
	assert.True(t, o.CanCancel)
	assert.False(t, o.CanReturn)

	o = &Order{Status: OrderStatusDelivered, DeliveredAt: &delivered}
	o.RefreshFlags(ReturnPolicy{}, now)
	assert.False(t, o.CanCancel)
	assert.True(t, o.CanReturn)

	o.RefreshFlags(ReturnPolicy{Window: 48 * time.Hour}, now)
	assert.False(t, o.CanReturn)

	o.RefreshFlags(ReturnPolicy{Window: 7 * 24 * time.Hour}, now)
	assert.True(t, o.CanReturn)
}

func TestStatusValidity(t *testing.T) {
	assert.True(t, OrderStatusReturned.Valid())
	assert.False(t, OrderStatus("shipped").Valid())
	assert.True(t, PaymentStatusRefunded.Valid())
	assert.False(t, PaymentStatus("completed").Valid())
}
