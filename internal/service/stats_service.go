package service

import (
	"context"
	"fmt"
	"time"

	"order-lifecycle/internal/models"
	"order-lifecycle/internal/util"

	"github.com/shopspring/decimal"
)

// StatsService answers the admin reporting queries
type StatsService struct {
	stats StatsRepository
}

// NewStatsService creates a new stats service
func NewStatsService(stats StatsRepository) *StatsService {
	return &StatsService{stats: stats}
}

// StatusStats is the count and revenue of one status
type StatusStats struct {
	Count   int64           `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

// OrderStats is the admin order summary
type OrderStats struct {
	TotalOrders  int64                               `json:"total_orders"`
	TotalRevenue decimal.Decimal                     `json:"total_revenue"`
	ByStatus     map[models.OrderStatus]*StatusStats `json:"by_status"`
}

// RevenueReport is the daily revenue breakdown over a range
type RevenueReport struct {
	From  time.Time             `json:"from"`
	To    time.Time             `json:"to"`
	Total decimal.Decimal       `json:"total"`
	Days  []models.DailyRevenue `json:"days"`
}

// GetOrderStats counts orders per status over an optional created-at range.
// Only statuses with orders appear in the breakdown. Cancelled and returned
// orders are counted but carry no revenue.
func (s *StatsService) GetOrderStats(ctx context.Context, from, to *time.Time) (stats *OrderStats, err error) {
	ctx, span := util.StartSpan(ctx, "StatsService.GetOrderStats")
	defer func() { util.EndSpan(span, err) }()

	if from != nil && to != nil && to.Before(*from) {
		return nil, fmt.Errorf("%w: range end before start", ErrInvalidInput)
	}

	buckets, err := s.stats.OrderStatusBuckets(ctx, from, to)
	if err != nil {
		return nil, err
	}

	stats = &OrderStats{
		TotalRevenue: decimal.Zero,
		ByStatus:     make(map[models.OrderStatus]*StatusStats),
	}
	for _, b := range buckets {
		entry, ok := stats.ByStatus[b.Status]
		if !ok {
			entry = &StatusStats{Revenue: decimal.Zero}
			stats.ByStatus[b.Status] = entry
		}
		entry.Count += b.Count
		stats.TotalOrders += b.Count
		if b.Status.CountsAsRevenue() {
			entry.Revenue = entry.Revenue.Add(b.Revenue)
			stats.TotalRevenue = stats.TotalRevenue.Add(b.Revenue)
		}
	}
	return stats, nil
}

// GetRevenue reports revenue per UTC day over [from, to). Days without
// revenue-bearing orders are omitted.
func (s *StatsService) GetRevenue(ctx context.Context, from, to time.Time) (report *RevenueReport, err error) {
	ctx, span := util.StartSpan(ctx, "StatsService.GetRevenue")
	defer func() { util.EndSpan(span, err) }()

	if !to.After(from) {
		return nil, fmt.Errorf("%w: range end must be after start", ErrInvalidInput)
	}

	var excluded []models.OrderStatus
	for _, status := range models.AllOrderStatuses() {
		if !status.CountsAsRevenue() {
			excluded = append(excluded, status)
		}
	}

	days, err := s.stats.DailyRevenue(ctx, from, to, excluded)
	if err != nil {
		return nil, err
	}

	report = &RevenueReport{From: from, To: to, Total: decimal.Zero, Days: days}
	for _, d := range days {
		report.Total = report.Total.Add(d.Revenue)
	}
	return report, nil
}
