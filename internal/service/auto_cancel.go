package service

import (
	"context"
	"fmt"
	"time"

	"order-lifecycle/internal/models"
	"order-lifecycle/internal/util"

	"go.uber.org/zap"
)

// Auto-cancel outcomes
const (
	AutoCancelCancelled = "cancelled"
	AutoCancelFailed    = "failed"
)

// AutoCancelResult is the outcome for one stale order
type AutoCancelResult struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Outcome     string `json:"outcome"`
	Error       string `json:"error,omitempty"`
}

// AutoCancelReport summarizes one sweep
type AutoCancelReport struct {
	Cutoff    time.Time          `json:"cutoff"`
	Cancelled int                `json:"cancelled"`
	Failed    int                `json:"failed"`
	Results   []AutoCancelResult `json:"results"`
}

// AutoCancelPendingOrders cancels every order still pending after hoursAgo
// hours. Each order is attempted independently; a failure is reported in its
// result and does not stop the sweep. Running it twice is harmless because
// the second run finds no pending orders past the cutoff.
func (s *OrderService) AutoCancelPendingOrders(ctx context.Context, hoursAgo int) (report *AutoCancelReport, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AutoCancelPendingOrders")
	defer func() { util.EndSpan(span, err) }()

	if hoursAgo <= 0 {
		return nil, fmt.Errorf("%w: hours must be positive, got %d", ErrInvalidInput, hoursAgo)
	}

	cutoff := s.now().Add(-time.Duration(hoursAgo) * time.Hour)
	stale, err := s.orders.FindPendingOrdersBefore(ctx, cutoff)
	if err != nil {
		util.AutoCancelRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to find pending orders: %w", err)
	}

	reason := fmt.Sprintf("Automatically cancelled: pending for more than %d hours", hoursAgo)
	report = &AutoCancelReport{Cutoff: cutoff, Results: make([]AutoCancelResult, 0, len(stale))}
	for _, order := range stale {
		result := AutoCancelResult{OrderID: order.ID, OrderNumber: order.OrderNumber, Outcome: AutoCancelCancelled}
		if _, err := s.CancelOrder(ctx, order.ID, reason, models.SystemActor); err != nil {
			result.Outcome = AutoCancelFailed
			result.Error = err.Error()
			report.Failed++
			s.logger.Error("Auto-cancel failed", zap.String("order_id", order.ID), zap.Error(err))
		} else {
			report.Cancelled++
		}
		util.AutoCancelOrdersTotal.WithLabelValues(result.Outcome).Inc()
		report.Results = append(report.Results, result)
	}

	util.AutoCancelRunsTotal.WithLabelValues("success").Inc()
	s.logger.Info("Auto-cancel sweep finished",
		zap.Time("cutoff", cutoff),
		zap.Int("cancelled", report.Cancelled),
		zap.Int("failed", report.Failed))
	return report, nil
}
