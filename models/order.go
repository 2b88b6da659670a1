package models

import (
	"time"
)

type PaymentMethod string

const (
	PaymentMethodOnline PaymentMethod = "ONLINE"
	PaymentMethodCOD    PaymentMethod = "COD"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusAdvance  PaymentStatus = "ADVANCE_PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "CREATED"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether an admin/webhook move from s to next is
// allowed. Cancellation is reachable from any non-terminal state.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == OrderStatusCancelled {
		return true
	}
	switch s {
	case OrderStatusCreated:
		return next == OrderStatusConfirmed
	case OrderStatusConfirmed:
		return next == OrderStatusShipped
	case OrderStatusShipped:
		return next == OrderStatusDelivered
	}
	return false
}

type CartItem struct {
	ProductID string  `json:"product_id" binding:"required"`
	Name      string  `json:"name" binding:"required"`
	Image     string  `json:"image"`
	Size      string  `json:"size"`
	Color     string  `json:"color"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity" binding:"required,min=1"`
}

// ShippingAddress is embedded into orders as a snapshot. Editing a saved
// address must never change historical orders.
type ShippingAddress struct {
	FullName     string `json:"full_name" binding:"required"`
	Phone        string `json:"phone" binding:"required"`
	AddressLine1 string `json:"address_line1" binding:"required"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city" binding:"required"`
	State        string `json:"state" binding:"required"`
	Pincode      string `json:"pincode" binding:"required"`
	Country      string `json:"country" binding:"required"`
}

type Order struct {
	ID               int             `json:"id"`
	OrderNumber      string          `json:"order_number"`
	UserID           *int            `json:"user_id,omitempty"`
	GuestUserID      *int            `json:"guest_user_id,omitempty"`
	Items            []CartItem      `json:"items" binding:"required"`
	ShippingAddress  ShippingAddress `json:"shipping_address" binding:"required"`
	Subtotal         float64         `json:"subtotal"`
	Discount         float64         `json:"discount"`
	ShippingCharge   float64         `json:"shipping_charge"`
	Total            float64         `json:"total"`
	CouponCode       string          `json:"coupon_code,omitempty"`
	PaymentMethod    PaymentMethod   `json:"payment_method"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	OrderStatus      OrderStatus     `json:"order_status"`
	GatewayOrderID   string          `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string          `json:"gateway_payment_id,omitempty"`
	AdvancePaid      float64         `json:"advance_paid,omitempty"`
	Waybill          string          `json:"waybill,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type OrderEvent struct {
	OrderID int    `json:"order_id,omitempty"`
	Type    string `json:"type"` // created, status_updated, payment_check, shipment_requested
	// GatewayOrderID is set on payment_check events, which fire before any
	// order row exists.
	GatewayOrderID string      `json:"gateway_order_id,omitempty"`
	Status         OrderStatus `json:"status,omitempty"`
	Total          float64     `json:"total,omitempty"`
	Occurred       time.Time   `json:"occurred"`
}
