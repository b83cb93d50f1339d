package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipping   OrderStatus = "shipping"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusReturned   OrderStatus = "returned"
)

// PaymentStatus is tracked independently of OrderStatus
type PaymentStatus string

// Payment statuses
const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// ActorKind identifies who triggered a lifecycle change
type ActorKind string

const (
	ActorUser   ActorKind = "user"
	ActorAdmin  ActorKind = "admin"
	ActorSystem ActorKind = "system"
)

// Actor is the requester of a lifecycle operation
type Actor struct {
	ID   string    `json:"id"`
	Kind ActorKind `json:"kind"`
}

// IsPrivileged reports whether the actor may act on any order
func (a Actor) IsPrivileged() bool {
	return a.Kind == ActorAdmin || a.Kind == ActorSystem
}

// SystemActor is used by scheduled jobs
var SystemActor = Actor{Kind: ActorSystem}

// ShippingAddress is stored inline on the order
type ShippingAddress struct {
	FullName   string `db:"ship_full_name" json:"full_name"`
	Phone      string `db:"ship_phone" json:"phone"`
	Line1      string `db:"ship_line1" json:"line1"`
	Line2      string `db:"ship_line2" json:"line2,omitempty"`
	City       string `db:"ship_city" json:"city"`
	Province   string `db:"ship_province" json:"province,omitempty"`
	PostalCode string `db:"ship_postal_code" json:"postal_code"`
	Country    string `db:"ship_country" json:"country"`
}

// PaymentInfo holds the persisted payment details of an order
type PaymentInfo struct {
	Method        string     `db:"payment_method" json:"method,omitempty"`
	TransactionID string     `db:"transaction_id" json:"transaction_id,omitempty"`
	Gateway       string     `db:"payment_gateway" json:"gateway,omitempty"`
	PaidAt        *time.Time `db:"paid_at" json:"paid_at,omitempty"`
}

// Order represents a customer order
type Order struct {
	ID               string          `db:"id" json:"id"`
	OrderNumber      string          `db:"order_number" json:"order_number"`
	UserID           string          `db:"user_id" json:"user_id"`
	Status           OrderStatus     `db:"status" json:"status"`
	PaymentStatus    PaymentStatus   `db:"payment_status" json:"payment_status"`
	PaymentInfo      `json:"payment"`
	ShippingAddress  `json:"shipping_address"`
	TrackingNumber   string          `db:"tracking_number" json:"tracking_number,omitempty"`
	ShippingProvider string          `db:"shipping_provider" json:"shipping_provider,omitempty"`
	Subtotal         decimal.Decimal `db:"subtotal" json:"subtotal"`
	ShippingFee      decimal.Decimal `db:"shipping_fee" json:"shipping_fee"`
	Discount         decimal.Decimal `db:"discount" json:"discount"`
	Total            decimal.Decimal `db:"total" json:"total"`
	CouponCode       *string         `db:"coupon_code" json:"coupon_code,omitempty"`
	CancelReason     *string         `db:"cancel_reason" json:"cancel_reason,omitempty"`
	ReturnReason     *string         `db:"return_reason" json:"return_reason,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
	DeliveredAt      *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	CancelledAt      *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	ReturnedAt       *time.Time      `db:"returned_at" json:"returned_at,omitempty"`

	CanCancel bool `db:"-" json:"can_cancel"`
	CanReturn bool `db:"-" json:"can_return"`

	Items   []OrderItem          `db:"-" json:"items"`
	User    *UserSummary         `db:"-" json:"user,omitempty"`
	Coupon  *Coupon              `db:"-" json:"coupon,omitempty"`
	History []StatusHistoryEntry `db:"-" json:"history,omitempty"`
}

// OrderItem is a line item; unit price is frozen at purchase time
type OrderItem struct {
	ID        string          `db:"id" json:"id"`
	OrderID   string          `db:"order_id" json:"order_id"`
	ProductID string          `db:"product_id" json:"product_id"`
	SKU       string          `db:"sku" json:"sku"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`

	Product *ProductSummary `db:"-" json:"product,omitempty"`
}

// LineTotal returns unit price times quantity
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ProductVariant is one color/size combination of a product
type ProductVariant struct {
	ProductID     string    `db:"product_id" json:"product_id"`
	SKU           string    `db:"sku" json:"sku"`
	Color         string    `db:"color" json:"color"`
	Size          string    `db:"size" json:"size"`
	StockQuantity int       `db:"stock_quantity" json:"stock_quantity"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ProductSummary is the populated view of a product on an order item
type ProductSummary struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Slug string `db:"slug" json:"slug"`
}

// UserSummary is the populated view of an order's owner
type UserSummary struct {
	ID    string `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
}

// Coupon is the populated view of an applied coupon
type Coupon struct {
	Code          string          `db:"code" json:"code"`
	DiscountType  string          `db:"discount_type" json:"discount_type"`
	DiscountValue decimal.Decimal `db:"discount_value" json:"discount_value"`
}

// StatusHistoryEntry is an append-only audit record of a status change
type StatusHistoryEntry struct {
	ID         string      `db:"id" json:"id"`
	OrderID    string      `db:"order_id" json:"order_id"`
	FromStatus OrderStatus `db:"from_status" json:"from_status"`
	ToStatus   OrderStatus `db:"to_status" json:"to_status"`
	Note       string      `db:"note" json:"note,omitempty"`
	ActorID    string      `db:"actor_id" json:"actor_id,omitempty"`
	ActorKind  ActorKind   `db:"actor_kind" json:"actor_kind"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

// StatusBucket is one row of the per-status aggregation
type StatusBucket struct {
	Status  OrderStatus     `db:"status" json:"status"`
	Count   int64           `db:"count" json:"count"`
	Revenue decimal.Decimal `db:"revenue" json:"revenue"`
}

// DailyRevenue is one day of the revenue report
type DailyRevenue struct {
	Date       string          `db:"day" json:"date"`
	Revenue    decimal.Decimal `db:"revenue" json:"revenue"`
	OrderCount int64           `db:"order_count" json:"order_count"`
}
