// Package pricing computes authoritative order totals. Both the coupon
// preview endpoint and order creation go through Quote, so the number the
// shopper saw and the number that gets charged cannot diverge.
package pricing

import (
	"errors"
	"time"

	"checkout-service/models"
)

var (
	ErrCouponInactive  = errors.New("coupon is not active")
	ErrCouponExpired   = errors.New("coupon has expired")
	ErrMinOrderNotMet  = errors.New("cart subtotal below coupon minimum")
	ErrCouponExhausted = errors.New("coupon usage limit reached")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidItem     = errors.New("invalid cart item")
)

type Breakdown struct {
	Subtotal       float64 `json:"subtotal"`
	Discount       float64 `json:"discount"`
	ShippingCharge float64 `json:"shipping_charge"`
	Total          float64 `json:"total"`
	CouponCode     string  `json:"coupon_code,omitempty"`
}

// Quote validates the cart and optional coupon and returns the pricing
// breakdown. Client-submitted totals are never an input here.
func Quote(items []models.CartItem, coupon *models.Coupon, shippingCharge float64, now time.Time) (Breakdown, error) {
	if len(items) == 0 {
		return Breakdown{}, ErrEmptyCart
	}

	var subtotal float64
	for _, item := range items {
		if item.Quantity < 1 || item.UnitPrice < 0 {
			return Breakdown{}, ErrInvalidItem
		}
		subtotal += item.UnitPrice * float64(item.Quantity)
	}

	b := Breakdown{Subtotal: subtotal, ShippingCharge: shippingCharge}

	if coupon != nil {
		discount, err := couponDiscount(coupon, subtotal, now)
		if err != nil {
			return Breakdown{}, err
		}
		b.Discount = discount
		b.CouponCode = coupon.Code
	}

	b.Total = subtotal - b.Discount + shippingCharge
	if b.Total < 0 {
		b.Total = 0
	}
	return b, nil
}

func couponDiscount(coupon *models.Coupon, subtotal float64, now time.Time) (float64, error) {
	if !coupon.IsActive {
		return 0, ErrCouponInactive
	}
	if !coupon.ExpiryDate.After(now) {
		return 0, ErrCouponExpired
	}
	if coupon.MinOrderAmount > 0 && subtotal < coupon.MinOrderAmount {
		return 0, ErrMinOrderNotMet
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return 0, ErrCouponExhausted
	}

	var discount float64
	switch coupon.DiscountType {
	case models.DiscountPercentage:
		discount = subtotal * coupon.DiscountValue / 100
		if coupon.MaxDiscount > 0 && discount > coupon.MaxDiscount {
			discount = coupon.MaxDiscount
		}
	case models.DiscountFlat:
		discount = coupon.DiscountValue
	}

	// A flat coupon larger than the cart never drives the total negative.
	if discount > subtotal {
		discount = subtotal
	}
	return discount, nil
}
