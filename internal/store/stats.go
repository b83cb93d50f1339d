package store

import (
	"context"
	"fmt"
	"time"

	"order-lifecycle/internal/models"

	"github.com/lib/pq"
)

// OrderStatusBuckets counts orders and sums their totals per status,
// optionally restricted to a created-at range.
func (s *Store) OrderStatusBuckets(ctx context.Context, from, to *time.Time) ([]models.StatusBucket, error) {
	where, args := OrderFilter{CreatedFrom: from, CreatedTo: to}.clause()

	var buckets []models.StatusBucket
	query := fmt.Sprintf(`
		SELECT status, COUNT(*) AS count, COALESCE(SUM(total), 0) AS revenue
		FROM orders %s
		GROUP BY status
		ORDER BY status`, where)
	if err := s.conn(ctx).SelectContext(ctx, &buckets, query, args...); err != nil {
		return nil, fmt.Errorf("failed to aggregate orders by status: %w", err)
	}
	return buckets, nil
}

// DailyRevenue sums order totals per UTC calendar day in [from, to),
// skipping the given statuses. Days without orders produce no row.
func (s *Store) DailyRevenue(ctx context.Context, from, to time.Time, exclude []models.OrderStatus) ([]models.DailyRevenue, error) {
	excluded := make([]string, len(exclude))
	for i, st := range exclude {
		excluded[i] = string(st)
	}

	var days []models.DailyRevenue
	err := s.conn(ctx).SelectContext(ctx, &days, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		       COALESCE(SUM(total), 0) AS revenue,
		       COUNT(*) AS order_count
		FROM orders
		WHERE created_at >= $1 AND created_at < $2 AND NOT (status = ANY($3))
		GROUP BY day
		ORDER BY day`,
		from, to, pq.Array(excluded))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate daily revenue: %w", err)
	}
	return days, nil
}
