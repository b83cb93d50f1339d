package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"order-lifecycle/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const orderColumns = `
	id, order_number, user_id, status, payment_status,
	payment_method, transaction_id, payment_gateway, paid_at,
	ship_full_name, ship_phone, ship_line1, ship_line2, ship_city,
	ship_province, ship_postal_code, ship_country,
	tracking_number, shipping_provider,
	subtotal, shipping_fee, discount, total, coupon_code,
	cancel_reason, return_reason,
	created_at, updated_at, delivered_at, cancelled_at, returned_at`

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

var sortColumns = map[string]string{
	"created_at":   "created_at",
	"total":        "total",
	"order_number": "order_number",
	"status":       "status",
}

// LoadOptions selects which referenced entities are populated on an order.
// Line items are always loaded.
type LoadOptions struct {
	WithUser     bool
	WithProducts bool
	WithCoupon   bool
	WithHistory  bool
}

// OrderFilter narrows order listings
type OrderFilter struct {
	UserID        string
	Statuses      []models.OrderStatus
	PaymentStatus models.PaymentStatus
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
}

// Pagination controls page, size and ordering of listings
type Pagination struct {
	Page     int
	Limit    int
	SortBy   string
	SortDesc bool
}

// Normalize clamps the page and limit and resolves the sort column
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if _, ok := sortColumns[p.SortBy]; !ok {
		p.SortBy = "created_at"
		p.SortDesc = true
	}
	return p
}

// Offset returns the row offset of the page
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// OrderPatch is a field-level update; nil fields are left untouched
type OrderPatch struct {
	PaymentStatus    *models.PaymentStatus
	PaymentMethod    *string
	TransactionID    *string
	PaymentGateway   *string
	PaidAt           *time.Time
	TrackingNumber   *string
	ShippingProvider *string
	CancelReason     *string
	ReturnReason     *string
	DeliveredAt      *time.Time
	CancelledAt      *time.Time
	ReturnedAt       *time.Time
}

func (p OrderPatch) assignments() ([]string, []interface{}) {
	var cols []string
	var args []interface{}
	add := func(col string, v interface{}) {
		cols = append(cols, col)
		args = append(args, v)
	}

	if p.PaymentStatus != nil {
		add("payment_status", string(*p.PaymentStatus))
	}
	if p.PaymentMethod != nil {
		add("payment_method", *p.PaymentMethod)
	}
	if p.TransactionID != nil {
		add("transaction_id", *p.TransactionID)
	}
	if p.PaymentGateway != nil {
		add("payment_gateway", *p.PaymentGateway)
	}
	if p.PaidAt != nil {
		add("paid_at", *p.PaidAt)
	}
	if p.TrackingNumber != nil {
		add("tracking_number", *p.TrackingNumber)
	}
	if p.ShippingProvider != nil {
		add("shipping_provider", *p.ShippingProvider)
	}
	if p.CancelReason != nil {
		add("cancel_reason", *p.CancelReason)
	}
	if p.ReturnReason != nil {
		add("return_reason", *p.ReturnReason)
	}
	if p.DeliveredAt != nil {
		add("delivered_at", *p.DeliveredAt)
	}
	if p.CancelledAt != nil {
		add("cancelled_at", *p.CancelledAt)
	}
	if p.ReturnedAt != nil {
		add("returned_at", *p.ReturnedAt)
	}
	return cols, args
}

// CreateOrder inserts an order with its line items. Missing ids and order
// number are generated.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.OrderNumber == "" {
		order.OrderNumber = NewOrderNumber(time.Now())
	}
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = models.PaymentStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = order.CreatedAt

	return s.RunInTx(ctx, func(ctx context.Context) error {
		q := s.conn(ctx)
		_, err := q.ExecContext(ctx, `
			INSERT INTO orders (
				id, order_number, user_id, status, payment_status,
				payment_method, transaction_id, payment_gateway, paid_at,
				ship_full_name, ship_phone, ship_line1, ship_line2, ship_city,
				ship_province, ship_postal_code, ship_country,
				subtotal, shipping_fee, discount, total, coupon_code,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
			order.ID, order.OrderNumber, order.UserID, order.Status, order.PaymentStatus,
			order.Method, order.TransactionID, order.Gateway, order.PaidAt,
			order.FullName, order.Phone, order.Line1, order.Line2, order.City,
			order.Province, order.PostalCode, order.Country,
			order.Subtotal, order.ShippingFee, order.Discount, order.Total, order.CouponCode,
			order.CreatedAt, order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			if item.ID == "" {
				item.ID = uuid.New().String()
			}
			item.OrderID = order.ID
			_, err := q.ExecContext(ctx, `
				INSERT INTO order_items (id, order_id, product_id, sku, quantity, unit_price)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				item.ID, item.OrderID, item.ProductID, item.SKU, item.Quantity, item.UnitPrice)
			if err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
		}
		return nil
	})
}

// NewOrderNumber builds a human-readable order number
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

// isUUID reports whether id can match a UUID column. Other values would
// make Postgres reject the query instead of matching nothing.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string, opts LoadOptions) (*models.Order, error) {
	if !isUUID(id) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return s.getOrder(ctx, "id", id, opts)
}

// GetOrderByNumber retrieves an order by its order number
func (s *Store) GetOrderByNumber(ctx context.Context, number string, opts LoadOptions) (*models.Order, error) {
	return s.getOrder(ctx, "order_number", number, opts)
}

func (s *Store) getOrder(ctx context.Context, column, value string, opts LoadOptions) (*models.Order, error) {
	var order models.Order
	query := fmt.Sprintf("SELECT %s FROM orders WHERE %s = $1", orderColumns, column)
	err := s.conn(ctx).GetContext(ctx, &order, query, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, value)
	}
	if err != nil {
		return nil, err
	}

	orders := []*models.Order{&order}
	if err := s.populate(ctx, orders, opts); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders returns one page of orders matching the filter and the total match count
func (s *Store) ListOrders(ctx context.Context, filter OrderFilter, page Pagination, opts LoadOptions) ([]models.Order, int, error) {
	page = page.Normalize()
	if filter.matchesNothing() {
		return []models.Order{}, 0, nil
	}
	where, args := filter.clause()

	total, err := s.CountOrders(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	direction := "ASC"
	if page.SortDesc {
		direction = "DESC"
	}
	query := fmt.Sprintf("SELECT %s FROM orders %s ORDER BY %s %s, id LIMIT $%d OFFSET $%d",
		orderColumns, where, sortColumns[page.SortBy], direction, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset())

	var orders []models.Order
	if err := s.conn(ctx).SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	ptrs := make([]*models.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := s.populate(ctx, ptrs, opts); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ListOrdersByUser returns one page of a user's orders, optionally
// narrowed to some statuses
func (s *Store) ListOrdersByUser(ctx context.Context, userID string, statuses []models.OrderStatus, page Pagination) ([]models.Order, int, error) {
	filter := OrderFilter{UserID: userID, Statuses: statuses}
	return s.ListOrders(ctx, filter, page, LoadOptions{WithProducts: true})
}

// CountOrders counts orders matching the filter
func (s *Store) CountOrders(ctx context.Context, filter OrderFilter) (int, error) {
	if filter.matchesNothing() {
		return 0, nil
	}
	where, args := filter.clause()
	var count int
	if err := s.conn(ctx).GetContext(ctx, &count, "SELECT COUNT(*) FROM orders "+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

// matchesNothing reports a filter on a user id no order can carry
func (f OrderFilter) matchesNothing() bool {
	return f.UserID != "" && !isUUID(f.UserID)
}

func (f OrderFilter) clause() (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", pq.Array(statuses))
	}
	if f.PaymentStatus != "" {
		add("payment_status = $%d", string(f.PaymentStatus))
	}
	if f.CreatedFrom != nil {
		add("created_at >= $%d", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		add("created_at < $%d", *f.CreatedTo)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// FindPendingOrdersBefore returns pending orders created before cutoff, oldest first
func (s *Store) FindPendingOrdersBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var orders []models.Order
	query := fmt.Sprintf("SELECT %s FROM orders WHERE status = $1 AND created_at < $2 ORDER BY created_at", orderColumns)
	if err := s.conn(ctx).SelectContext(ctx, &orders, query, models.OrderStatusPending, cutoff); err != nil {
		return nil, fmt.Errorf("failed to find pending orders: %w", err)
	}
	return orders, nil
}

// PatchOrder applies a field-level update
func (s *Store) PatchOrder(ctx context.Context, id string, patch OrderPatch) error {
	if !isUUID(id) {
		return fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	cols, args := patch.assignments()
	if len(cols) == 0 {
		return nil
	}

	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE orders SET %s, updated_at = NOW() WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	res, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to patch order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return nil
}

// TransitionStatus moves an order from one status to another together with
// a patch. The update only applies while the stored status still equals from.
func (s *Store) TransitionStatus(ctx context.Context, id string, from, to models.OrderStatus, patch OrderPatch) error {
	if !isUUID(id) {
		return fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	cols, args := patch.assignments()
	sets := []string{"status = $1"}
	args = append([]interface{}{string(to)}, args...)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+2))
	}
	args = append(args, id, string(from))
	query := fmt.Sprintf("UPDATE orders SET %s, updated_at = NOW() WHERE id = $%d AND status = $%d",
		strings.Join(sets, ", "), len(args)-1, len(args))

	res, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: order %s expected %s", ErrStatusMismatch, id, from)
	}
	return nil
}

// AppendHistory records a status change; history rows are never updated
func (s *Store) AppendHistory(ctx context.Context, entry *models.StatusHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO order_status_history (id, order_id, from_status, to_status, note, actor_id, actor_kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.OrderID, entry.FromStatus, entry.ToStatus,
		entry.Note, entry.ActorID, entry.ActorKind, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// ListHistory returns an order's status history, oldest first
func (s *Store) ListHistory(ctx context.Context, orderID string) ([]models.StatusHistoryEntry, error) {
	if !isUUID(orderID) {
		return []models.StatusHistoryEntry{}, nil
	}
	var entries []models.StatusHistoryEntry
	err := s.conn(ctx).SelectContext(ctx, &entries, `
		SELECT id, order_id, from_status, to_status, note, actor_id, actor_kind, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	return entries, err
}

func (s *Store) populate(ctx context.Context, orders []*models.Order, opts LoadOptions) error {
	if len(orders) == 0 {
		return nil
	}
	q := s.conn(ctx)

	ids := make([]string, len(orders))
	byID := make(map[string]*models.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []models.OrderItem{}
	}

	var items []models.OrderItem
	err := q.SelectContext(ctx, &items, `
		SELECT id, order_id, product_id, sku, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, sku, id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	if opts.WithProducts && len(items) > 0 {
		productIDs := make([]string, 0, len(items))
		for _, item := range items {
			productIDs = append(productIDs, item.ProductID)
		}
		var products []models.ProductSummary
		if err := q.SelectContext(ctx, &products,
			"SELECT id, name, slug FROM products WHERE id = ANY($1)", pq.Array(productIDs)); err != nil {
			return fmt.Errorf("failed to load products: %w", err)
		}
		productMap := make(map[string]*models.ProductSummary, len(products))
		for i := range products {
			productMap[products[i].ID] = &products[i]
		}
		for i := range items {
			items[i].Product = productMap[items[i].ProductID]
		}
	}

	for _, item := range items {
		o := byID[item.OrderID]
		o.Items = append(o.Items, item)
	}

	for _, o := range orders {
		if opts.WithUser {
			var user models.UserSummary
			err := q.GetContext(ctx, &user, "SELECT id, name, email FROM users WHERE id = $1", o.UserID)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to load user: %w", err)
			}
			if err == nil {
				o.User = &user
			}
		}
		if opts.WithCoupon && o.CouponCode != nil {
			var coupon models.Coupon
			err := q.GetContext(ctx, &coupon,
				"SELECT code, discount_type, discount_value FROM coupons WHERE code = $1", *o.CouponCode)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to load coupon: %w", err)
			}
			if err == nil {
				o.Coupon = &coupon
			}
		}
		if opts.WithHistory {
			history, err := s.ListHistory(ctx, o.ID)
			if err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}
			o.History = history
		}
	}
	return nil
}
