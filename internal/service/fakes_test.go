package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"order-lifecycle/internal/models"
	"order-lifecycle/internal/store"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu      sync.Mutex
	orders  map[string]*models.Order
	stock   map[string]int
	history []models.StatusHistoryEntry

	failStock    map[string]error
	listedByUser []string
	// afterGet runs after an order is read, to simulate concurrent writers
	afterGet func(stored *models.Order)
}

func newMemStore() *memStore {
	return &memStore{
		orders:    make(map[string]*models.Order),
		stock:     make(map[string]int),
		failStock: make(map[string]error),
	}
}

func stockKey(productID, sku string) string {
	return productID + "/" + sku
}

func (m *memStore) setStock(productID, sku string, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[stockKey(productID, sku)] = qty
}

func (m *memStore) stockOf(productID, sku string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[stockKey(productID, sku)]
}

func (m *memStore) put(o *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.OrderNumber == "" {
		o.OrderNumber = store.NewOrderNumber(o.CreatedAt)
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = models.PaymentStatusPending
	}
	m.orders[o.ID] = cloneOrder(o)
}

func (m *memStore) stored(id string) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneOrder(m.orders[id])
}

func cloneOrder(o *models.Order) *models.Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]models.OrderItem(nil), o.Items...)
	return &c
}

func (m *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	orders := make(map[string]*models.Order, len(m.orders))
	for id, o := range m.orders {
		orders[id] = cloneOrder(o)
	}
	stock := make(map[string]int, len(m.stock))
	for k, v := range m.stock {
		stock[k] = v
	}
	historyLen := len(m.history)
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.orders = orders
		m.stock = stock
		m.history = m.history[:historyLen]
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) GetOrderByID(ctx context.Context, id string, opts store.LoadOptions) (*models.Order, error) {
	m.mu.Lock()
	o, ok := m.orders[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}
	c := cloneOrder(o)
	if m.afterGet != nil {
		m.afterGet(o)
	}
	m.mu.Unlock()
	return c, nil
}

func (m *memStore) GetOrderByNumber(ctx context.Context, number string, opts store.LoadOptions) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNumber == number {
			return cloneOrder(o), nil
		}
	}
	return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, number)
}

func (m *memStore) ListOrders(ctx context.Context, filter store.OrderFilter, page store.Pagination, opts store.LoadOptions) ([]models.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []models.Order
	for _, o := range m.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, o.Status) {
			continue
		}
		matched = append(matched, *cloneOrder(o))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *memStore) ListOrdersByUser(ctx context.Context, userID string, statuses []models.OrderStatus, page store.Pagination) ([]models.Order, int, error) {
	m.mu.Lock()
	m.listedByUser = append(m.listedByUser, userID)
	m.mu.Unlock()
	filter := store.OrderFilter{UserID: userID, Statuses: statuses}
	return m.ListOrders(ctx, filter, page.Normalize(), store.LoadOptions{WithProducts: true})
}

func containsStatus(list []models.OrderStatus, s models.OrderStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *memStore) FindPendingOrdersBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Order
	for _, o := range m.orders {
		if o.Status == models.OrderStatusPending && o.CreatedAt.Before(cutoff) {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) PatchOrder(ctx context.Context, id string, patch store.OrderPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}
	applyPatch(o, patch)
	return nil
}

func (m *memStore) TransitionStatus(ctx context.Context, id string, from, to models.OrderStatus, patch store.OrderPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return fmt.Errorf("%w: order %s expected %s", store.ErrStatusMismatch, id, from)
	}
	o.Status = to
	applyPatch(o, patch)
	return nil
}

func applyPatch(o *models.Order, p store.OrderPatch) {
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.PaymentMethod != nil {
		o.Method = *p.PaymentMethod
	}
	if p.TransactionID != nil {
		o.TransactionID = *p.TransactionID
	}
	if p.PaymentGateway != nil {
		o.Gateway = *p.PaymentGateway
	}
	if p.PaidAt != nil {
		o.PaidAt = p.PaidAt
	}
	if p.TrackingNumber != nil {
		o.TrackingNumber = *p.TrackingNumber
	}
	if p.ShippingProvider != nil {
		o.ShippingProvider = *p.ShippingProvider
	}
	if p.CancelReason != nil {
		o.CancelReason = p.CancelReason
	}
	if p.ReturnReason != nil {
		o.ReturnReason = p.ReturnReason
	}
	if p.DeliveredAt != nil {
		o.DeliveredAt = p.DeliveredAt
	}
	if p.CancelledAt != nil {
		o.CancelledAt = p.CancelledAt
	}
	if p.ReturnedAt != nil {
		o.ReturnedAt = p.ReturnedAt
	}
}

func (m *memStore) AppendHistory(ctx context.Context, entry *models.StatusHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = fmt.Sprintf("h-%d", len(m.history)+1)
	m.history = append(m.history, *entry)
	return nil
}

func (m *memStore) ListHistory(ctx context.Context, orderID string) ([]models.StatusHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StatusHistoryEntry
	for _, h := range m.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memStore) AdjustStock(ctx context.Context, productID, sku string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := stockKey(productID, sku)
	if err := m.failStock[key]; err != nil {
		return 0, err
	}
	current, ok := m.stock[key]
	if !ok {
		return 0, fmt.Errorf("%w: variant %s", store.ErrNotFound, key)
	}
	if current+delta < 0 {
		return 0, fmt.Errorf("%w: %s available=%d, delta=%d", store.ErrInsufficientStock, key, current, delta)
	}
	m.stock[key] = current + delta
	return current + delta, nil
}

func (m *memStore) OrderStatusBuckets(ctx context.Context, from, to *time.Time) ([]models.StatusBucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byStatus := make(map[models.OrderStatus]*models.StatusBucket)
	for _, o := range m.orders {
		if from != nil && o.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && !o.CreatedAt.Before(*to) {
			continue
		}
		b, ok := byStatus[o.Status]
		if !ok {
			b = &models.StatusBucket{Status: o.Status, Revenue: decimal.Zero}
			byStatus[o.Status] = b
		}
		b.Count++
		b.Revenue = b.Revenue.Add(o.Total)
	}

	var out []models.StatusBucket
	for _, b := range byStatus {
		out = append(out, *b)
	}
	return out, nil
}

func (m *memStore) DailyRevenue(ctx context.Context, from, to time.Time, exclude []models.OrderStatus) ([]models.DailyRevenue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byDay := make(map[string]*models.DailyRevenue)
	for _, o := range m.orders {
		if o.CreatedAt.Before(from) || !o.CreatedAt.Before(to) || containsStatus(exclude, o.Status) {
			continue
		}
		day := o.CreatedAt.UTC().Format("2006-01-02")
		d, ok := byDay[day]
		if !ok {
			d = &models.DailyRevenue{Date: day, Revenue: decimal.Zero}
			byDay[day] = d
		}
		d.Revenue = d.Revenue.Add(o.Total)
		d.OrderCount++
	}

	var out []models.DailyRevenue
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

type memCache struct {
	mu    sync.Mutex
	stock map[string]int
	err   error
}

func newMemCache() *memCache {
	return &memCache{stock: make(map[string]int)}
}

func (c *memCache) SetStock(ctx context.Context, productID, sku string, stock int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.stock[stockKey(productID, sku)] = stock
	return nil
}

func (c *memCache) get(productID, sku string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.stock[stockKey(productID, sku)]
	return v, ok
}

type recordingPublisher struct {
	mu       sync.Mutex
	err      error
	changed  []*models.OrderStatusChangedEvent
	comp     []*models.OrderCompensatedEvent
	payments []*models.OrderPaymentUpdatedEvent
	tracking []*models.OrderTrackingUpdatedEvent
}

func (p *recordingPublisher) PublishStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return p.err
}

func (p *recordingPublisher) PublishCompensated(ctx context.Context, e *models.OrderCompensatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.comp = append(p.comp, e)
	return p.err
}

func (p *recordingPublisher) PublishPaymentUpdated(ctx context.Context, e *models.OrderPaymentUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments = append(p.payments, e)
	return p.err
}

func (p *recordingPublisher) PublishTrackingUpdated(ctx context.Context, e *models.OrderTrackingUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracking = append(p.tracking, e)
	return p.err
}

type fixture struct {
	store     *memStore
	cache     *memCache
	publisher *recordingPublisher
	svc       *OrderService
}

func newFixture(policy models.ReturnPolicy) *fixture {
	ms := newMemStore()
	cache := newMemCache()
	pub := &recordingPublisher{}
	svc := NewOrderService(ms, NewInventoryAdjuster(ms, cache), pub, policy)
	svc.now = func() time.Time { return testNow }
	return &fixture{store: ms, cache: cache, publisher: pub, svc: svc}
}

const (
	owner     = "user-1"
	productA  = "prod-a"
	skuRedM   = "A-RED-M"
	skuBlueL  = "A-BLUE-L"
	orderID   = "order-1"
	otherUser = "user-2"
)

var (
	ownerActor = models.Actor{ID: owner, Kind: models.ActorUser}
	adminActor = models.Actor{ID: "admin-1", Kind: models.ActorAdmin}
	otherActor = models.Actor{ID: otherUser, Kind: models.ActorUser}
)

func newTestOrder(id string, status models.OrderStatus, items ...models.OrderItem) *models.Order {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return &models.Order{
		ID:        id,
		UserID:    owner,
		Status:    status,
		Items:     items,
		Subtotal:  total,
		Total:     total,
		CreatedAt: testNow.Add(-time.Hour),
	}
}

func item(sku string, qty int) models.OrderItem {
	return models.OrderItem{
		ID:        "item-" + sku,
		ProductID: productA,
		SKU:       sku,
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString("25.00"),
	}
}
