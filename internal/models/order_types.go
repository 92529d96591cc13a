package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfillment axis of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderPacked     OrderStatus = "packed"
	OrderDispatched OrderStatus = "dispatched"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderPacked, OrderDispatched, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// PaymentStatus is the payment axis of an order, orthogonal to OrderStatus.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Address is a denormalized copy of the shipping address taken at checkout.
// It is stored as a JSON column.
type Address struct {
	FullName     string `json:"fullName" binding:"required"`
	Phone        string `json:"phone" binding:"required"`
	AddressLine1 string `json:"addressLine1" binding:"required"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city" binding:"required"`
	State        string `json:"state" binding:"required"`
	Postcode     string `json:"postcode" binding:"required"`
	Country      string `json:"country,omitempty"`
}

// Value implements driver.Valuer.
func (a Address) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *Address) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		*a = Address{}
		return nil
	}
	return errors.Errorf("models: cannot scan %T into Address", src)
}

// Order is the model for the 'orders' table.
// Items are loaded from 'order_items' and never rewritten after creation.
type Order struct {
	ID          int64           `json:"-" db:"id"`
	OrderNumber string          `json:"orderNumber" db:"order_number"`
	UserID      int64           `json:"userId" db:"user_id"`
	Items       []LineItem      `json:"items" db:"-"`
	Subtotal    decimal.Decimal `json:"subtotal" db:"subtotal"`
	Discount    decimal.Decimal `json:"discount" db:"discount"`
	Total       decimal.Decimal `json:"total" db:"total"`
	Currency    string          `json:"currency" db:"currency"`
	CouponID    *int64          `json:"-" db:"coupon_id"`
	CouponCode  *string         `json:"couponCode,omitempty" db:"coupon_code"`

	Status        OrderStatus   `json:"status" db:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus" db:"payment_status"`

	// --- Gateway identifiers ---
	GatewayOrderID   string  `json:"gatewayOrderId" db:"gateway_order_id"`
	GatewayPaymentID *string `json:"gatewayPaymentId,omitempty" db:"gateway_payment_id"`
	GatewaySignature *string `json:"-" db:"gateway_signature"`

	// --- Fulfillment ---
	ShippingAddress     Address    `json:"shippingAddress" db:"shipping_address"`
	TrackingNumber      *string    `json:"trackingNumber,omitempty" db:"tracking_number"`
	Notes               *string    `json:"notes,omitempty" db:"notes"`
	EstimatedDeliveryAt *time.Time `json:"estimatedDeliveryAt,omitempty" db:"estimated_delivery_at"`
	DeliveredAt         *time.Time `json:"deliveredAt,omitempty" db:"delivered_at"`

	Version   int       `json:"-" db:"version"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// LineItem is the model for the 'order_items' table: a frozen snapshot of the
// product as it was priced at checkout.
type LineItem struct {
	ID          int64           `json:"-" db:"id"`
	OrderID     int64           `json:"-" db:"order_id"`
	ProductID   int64           `json:"productId" db:"product_id"`
	ProductName string          `json:"productName" db:"product_name"`
	Brand       string          `json:"brand,omitempty" db:"brand"`
	Category    string          `json:"category,omitempty" db:"category"`
	ImageURL    string          `json:"imageUrl,omitempty" db:"image_url"`
	UnitPrice   decimal.Decimal `json:"unitPrice" db:"unit_price"` // Price at the time of purchase
	Quantity    int             `json:"quantity" db:"quantity"`
	LineTotal   decimal.Decimal `json:"lineTotal" db:"line_total"`
}

// Clone returns a deep copy, so event payloads never alias a live order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	c.CouponID = cloneInt64(o.CouponID)
	c.CouponCode = cloneString(o.CouponCode)
	c.GatewayPaymentID = cloneString(o.GatewayPaymentID)
	c.GatewaySignature = cloneString(o.GatewaySignature)
	c.TrackingNumber = cloneString(o.TrackingNumber)
	c.Notes = cloneString(o.Notes)
	c.EstimatedDeliveryAt = cloneTime(o.EstimatedDeliveryAt)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	return &c
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
