package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"order-lifecycle/internal/models"
	"order-lifecycle/internal/service"
	"order-lifecycle/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OrderManager is the lifecycle surface exposed over HTTP
type OrderManager interface {
	GetOrder(ctx context.Context, orderID string, actor models.Actor) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number string, actor models.Actor) (*models.Order, error)
	GetOrderHistory(ctx context.Context, orderID string, actor models.Actor) ([]models.StatusHistoryEntry, error)
	ListOrders(ctx context.Context, filter store.OrderFilter, page store.Pagination) (*service.OrderPage, error)
	ListMyOrders(ctx context.Context, actor models.Actor, statuses []models.OrderStatus, page store.Pagination) (*service.OrderPage, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus, note string, actor models.Actor) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID, reason string, actor models.Actor) (*models.Order, error)
	ReturnOrder(ctx context.Context, orderID, reason string, actor models.Actor) (*models.Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID string, status models.PaymentStatus, details service.PaymentDetails) (*models.Order, error)
	UpdateTracking(ctx context.Context, orderID string, update service.TrackingUpdate) (*models.Order, error)
	AutoCancelPendingOrders(ctx context.Context, hoursAgo int) (*service.AutoCancelReport, error)
}

// StatsReporter serves the admin reports
type StatsReporter interface {
	GetOrderStats(ctx context.Context, from, to *time.Time) (*service.OrderStats, error)
	GetRevenue(ctx context.Context, from, to time.Time) (*service.RevenueReport, error)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orders          OrderManager
	stats           StatsReporter
	db              Pinger
	autoCancelHours int
	corsOrigins     []string
}

// NewHandler creates a new HTTP handler
func NewHandler(orders OrderManager, stats StatsReporter, db Pinger, autoCancelHours int, corsOrigins []string) *Handler {
	return &Handler{
		orders:          orders,
		stats:           stats,
		db:              db,
		autoCancelHours: autoCancelHours,
		corsOrigins:     corsOrigins,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(h.corsOrigins))
	router.Use(prometheusMiddleware())
	router.Use(loggingMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", identityMiddleware())
	{
		v1.GET("/orders", requireAdmin(), h.listOrders)
		v1.GET("/orders/me", h.listMyOrders)
		v1.GET("/orders/number/:number", h.getOrderByNumber)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/history", h.getOrderHistory)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/return", h.returnOrder)
		v1.PATCH("/orders/:id/status", requireAdmin(), h.updateOrderStatus)
		v1.PATCH("/orders/:id/payment", requireAdmin(), h.updatePaymentStatus)
		v1.PATCH("/orders/:id/tracking", requireAdmin(), h.updateTracking)

		admin := v1.Group("/admin", requireAdmin())
		admin.GET("/stats/orders", h.orderStats)
		admin.GET("/stats/revenue", h.revenueReport)
		admin.POST("/orders/auto-cancel", h.autoCancel)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when the database answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) getOrderByNumber(c *gin.Context) {
	order, err := h.orders.GetOrderByNumber(c.Request.Context(), c.Param("number"), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) getOrderHistory(c *gin.Context) {
	history, err := h.orders.GetOrderHistory(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (h *Handler) listOrders(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}
	page, err := parsePagination(c)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.orders.ListOrders(c.Request.Context(), filter, page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) listMyOrders(c *gin.Context) {
	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		writeError(c, err)
		return
	}
	page, err := parsePagination(c)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.orders.ListMyOrders(c.Request.Context(), actorFrom(c), statuses, page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type updateStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
	Note   string             `json:"note"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}

	order, err := h.orders.UpdateOrderStatus(c.Request.Context(), c.Param("id"), req.Status, req.Note, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelOrder(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
			return
		}
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), c.Param("id"), req.Reason, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type returnRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) returnOrder(c *gin.Context) {
	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}

	order, err := h.orders.ReturnOrder(c.Request.Context(), c.Param("id"), req.Reason, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type paymentUpdateRequest struct {
	PaymentStatus models.PaymentStatus   `json:"payment_status"`
	Details       service.PaymentDetails `json:"details"`
}

// decodePaymentUpdate rejects keys outside the recognized payment fields
func decodePaymentUpdate(c *gin.Context) (*paymentUpdateRequest, error) {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()

	var req paymentUpdateRequest
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	if req.PaymentStatus == "" {
		return nil, fmt.Errorf("%w: payment_status is required", service.ErrInvalidInput)
	}
	return &req, nil
}

func (h *Handler) updatePaymentStatus(c *gin.Context) {
	req, err := decodePaymentUpdate(c)
	if err != nil {
		writeError(c, err)
		return
	}

	order, err := h.orders.UpdatePaymentStatus(c.Request.Context(), c.Param("id"), req.PaymentStatus, req.Details)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) updateTracking(c *gin.Context) {
	var req service.TrackingUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}

	order, err := h.orders.UpdateTracking(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) orderStats(c *gin.Context) {
	from, err := parseTimeParam(c, "from")
	if err != nil {
		writeError(c, err)
		return
	}
	to, err := parseRangeEnd(c, "to")
	if err != nil {
		writeError(c, err)
		return
	}

	stats, err := h.stats.GetOrderStats(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// revenueReport defaults to the last 30 days when the range is omitted
func (h *Handler) revenueReport(c *gin.Context) {
	from, err := parseTimeParam(c, "from")
	if err != nil {
		writeError(c, err)
		return
	}
	to, err := parseRangeEnd(c, "to")
	if err != nil {
		writeError(c, err)
		return
	}

	end := time.Now().UTC()
	if to != nil {
		end = *to
	}
	start := end.AddDate(0, 0, -30)
	if from != nil {
		start = *from
	}

	report, err := h.stats.GetRevenue(c.Request.Context(), start, end)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) autoCancel(c *gin.Context) {
	hours := h.autoCancelHours
	if raw := c.Query("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, fmt.Errorf("%w: hours must be an integer", service.ErrInvalidInput))
			return
		}
		hours = n
	}

	report, err := h.orders.AutoCancelPendingOrders(c.Request.Context(), hours)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func parseFilter(c *gin.Context) (store.OrderFilter, error) {
	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		return store.OrderFilter{}, err
	}
	filter := store.OrderFilter{
		UserID:   c.Query("user_id"),
		Statuses: statuses,
	}
	if raw := c.Query("payment_status"); raw != "" {
		ps := models.PaymentStatus(raw)
		if !ps.Valid() {
			return filter, fmt.Errorf("%w: payment_status %q", service.ErrInvalidInput, raw)
		}
		filter.PaymentStatus = ps
	}
	if filter.CreatedFrom, err = parseTimeParam(c, "from"); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = parseRangeEnd(c, "to"); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseStatuses(raw string) ([]models.OrderStatus, error) {
	if raw == "" {
		return nil, nil
	}
	var statuses []models.OrderStatus
	for _, part := range strings.Split(raw, ",") {
		s := models.OrderStatus(strings.TrimSpace(part))
		if !s.Valid() {
			return nil, fmt.Errorf("%w: status %q", service.ErrInvalidInput, part)
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

func parsePagination(c *gin.Context) (store.Pagination, error) {
	var page store.Pagination
	var err error
	if raw := c.Query("page"); raw != "" {
		if page.Page, err = strconv.Atoi(raw); err != nil {
			return page, fmt.Errorf("%w: page must be an integer", service.ErrInvalidInput)
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if page.Limit, err = strconv.Atoi(raw); err != nil {
			return page, fmt.Errorf("%w: limit must be an integer", service.ErrInvalidInput)
		}
	}
	page.SortBy = c.Query("sort_by")
	page.SortDesc = c.DefaultQuery("order", "desc") == "desc"
	return page, nil
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates (UTC midnight)
func parseTimeParam(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s must be RFC 3339 or YYYY-MM-DD", service.ErrInvalidInput, name)
}

// parseRangeEnd parses an exclusive upper bound. A plain date includes that
// whole day, so the bound becomes the following midnight.
func parseRangeEnd(c *gin.Context, name string) (*time.Time, error) {
	t, err := parseTimeParam(c, name)
	if err != nil || t == nil {
		return t, err
	}
	if _, dateErr := time.Parse("2006-01-02", c.Query(name)); dateErr == nil {
		end := t.AddDate(0, 0, 1)
		return &end, nil
	}
	return t, nil
}
