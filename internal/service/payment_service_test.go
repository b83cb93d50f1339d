package service

import (
	"context"
	"testing"
	"time"

	"order-lifecycle/internal/broker"
	"order-lifecycle/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdatePaymentStatusPaidStampsPaidAt(t *testing.T) {
	f := newFixture(models.ReturnPolicy{})
	f.store.put(newTestOrder(orderID, models.OrderStatusPending, item(skuRedM, 1)))

	order, err := f.svc.UpdatePaymentStatus(context.Background(), orderID, models.PaymentStatusPaid, PaymentDetails{
		TransactionID: "TXN-42",
		Gateway:       "vnpay",
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, "TXN-42", order.TransactionID)
	assert.Equal(t, "vnpay", order.Gateway)
	require.NotNil(t, order.PaidAt)
	assert.True(t, order.PaidAt.Equal(testNow))
	assert.Equal(t, models.OrderStatusPending, order.Status)

	require.Len(t, f.publisher.payments, 1)
	assert.Equal(t, "TXN-42", f.publisher.payments[0].TransactionID)
}

func TestUpdatePaymentStatusKeepsExplicitPaidAt(t *testing.T) {
	f := newFixture(models.ReturnPolicy{})
	f.store.put(newTestOrder(orderID, models.OrderStatusConfirmed, item(skuRedM, 1)))

	paidAt := time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)
	order, err := f.svc.UpdatePaymentStatus(context.Background(), orderID, models.PaymentStatusPaid, PaymentDetails{
		Method: "card",
		PaidAt: &paidAt,
	})
	require.NoError(t, err)
	require.NotNil(t, order.PaidAt)
	assert.True(t, order.PaidAt.Equal(paidAt))
	assert.Equal(t, "card", order.Method)
}

func TestUpdatePaymentStatusRefundKeepsDetails(t *testing.T) {
	f := newFixture(models.ReturnPolicy{})
	f.store.put(newTestOrder(orderID, models.OrderStatusReturned, item(skuRedM, 1)))

	_, err := f.svc.UpdatePaymentStatus(context.Background(), orderID, models.PaymentStatusPaid, PaymentDetails{TransactionID: "TXN-1"})
	require.NoError(t, err)

	order, err := f.svc.UpdatePaymentStatus(context.Background(), orderID, models.PaymentStatusRefunded, PaymentDetails{})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, order.PaymentStatus)
	assert.Equal(t, "TXN-1", order.TransactionID)
	assert.NotNil(t, order.PaidAt)
}

func TestUpdatePaymentStatusValidation(t *testing.T) {
	f := newFixture(models.ReturnPolicy{})
	f.store.put(newTestOrder(orderID, models.OrderStatusPending, item(skuRedM, 1)))

	_, err := f.svc.UpdatePaymentStatus(context.Background(), orderID, models.PaymentStatus("completed"), PaymentDetails{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.UpdatePaymentStatus(context.Background(), "missing", models.PaymentStatusPaid, PaymentDetails{})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, f.publisher.payments)
}

func TestApplyPaymentEvent(t *testing.T) {
	f := newFixture(models.ReturnPolicy{})
	f.store.put(newTestOrder(orderID, models.OrderStatusPending, item(skuRedM, 1)))

	err := f.svc.ApplyPaymentEvent(context.Background(), &models.PaymentResultEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypePaymentFailed),
		OrderID:   orderID,
		Reason:    "card declined",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, f.store.stored(orderID).PaymentStatus)

	err = f.svc.ApplyPaymentEvent(context.Background(), &models.PaymentResultEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   orderID,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
