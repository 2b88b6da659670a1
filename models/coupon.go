package models

import (
	"time"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFlat       DiscountType = "flat"
)

type Coupon struct {
	ID             int          `json:"id"`
	Code           string       `json:"code" binding:"required"`
	DiscountType   DiscountType `json:"discount_type" binding:"required,oneof=percentage flat"`
	DiscountValue  float64      `json:"discount_value" binding:"required"`
	MinOrderAmount float64      `json:"min_order_amount"`
	MaxDiscount    float64      `json:"max_discount"` // 0 means uncapped
	ExpiryDate     time.Time    `json:"expiry_date" binding:"required"`
	IsActive       bool         `json:"is_active"`
	UsageLimit     int          `json:"usage_limit"` // 0 means unlimited
	UsedCount      int          `json:"used_count"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
