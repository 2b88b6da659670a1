package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-sql-driver/mysql"

	"checkout-service/database"
	"checkout-service/middlewares"
	"checkout-service/models"
)

// CreateCoupon adds a new discount rule. Codes are unique
// case-insensitively; a duplicate is a 409, not a generic failure, so the
// admin UI can tell "already exists" apart from "try again".
func CreateCoupon(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordCheckoutOperation("create_coupon", ok)
	}()

	var coupon models.Coupon
	if err := c.ShouldBindJSON(&coupon); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if coupon.DiscountType == models.DiscountPercentage &&
		(coupon.DiscountValue < 0 || coupon.DiscountValue > 100) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Percentage discount must be between 0 and 100"})
		return
	}
	if coupon.DiscountValue < 0 || coupon.MinOrderAmount < 0 || coupon.MaxDiscount < 0 || coupon.UsageLimit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Amounts must not be negative"})
		return
	}

	coupon.Code = normalizeCouponCode(coupon.Code)

	result, err := database.DB.Exec(`
		INSERT INTO coupons (code, discount_type, discount_value, min_order_amount,
			max_discount, expiry_date, is_active, usage_limit, used_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NOW(), NOW())
	`, coupon.Code, coupon.DiscountType, coupon.DiscountValue, coupon.MinOrderAmount,
		coupon.MaxDiscount, coupon.ExpiryDate, coupon.IsActive, coupon.UsageLimit)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			c.JSON(http.StatusConflict, gin.H{"error": "Coupon code already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create coupon"})
		return
	}

	id, err := result.LastInsertId()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create coupon"})
		return
	}
	coupon.ID = int(id)

	c.JSON(http.StatusCreated, coupon)
}

func ListCoupons(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordCheckoutOperation("list_coupons", ok)
	}()

	rows, err := database.DB.Query(`
		SELECT id, code, discount_type, discount_value, min_order_amount, max_discount,
		       expiry_date, is_active, usage_limit, used_count, created_at, updated_at
		FROM coupons
		ORDER BY created_at DESC
	`)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	defer rows.Close()

	coupons := []models.Coupon{}
	for rows.Next() {
		var coupon models.Coupon
		if err := rows.Scan(&coupon.ID, &coupon.Code, &coupon.DiscountType,
			&coupon.DiscountValue, &coupon.MinOrderAmount, &coupon.MaxDiscount,
			&coupon.ExpiryDate, &coupon.IsActive, &coupon.UsageLimit, &coupon.UsedCount,
			&coupon.CreatedAt, &coupon.UpdatedAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		coupons = append(coupons, coupon)
	}

	c.JSON(http.StatusOK, coupons)
}

// SetCouponActive toggles a coupon without touching its discount terms.
// Terms on historical orders are snapshots and stay as charged.
func SetCouponActive(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordCheckoutOperation("toggle_coupon", ok)
	}()

	couponID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid coupon ID"})
		return
	}

	var request struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := database.DB.Exec(`
		UPDATE coupons SET is_active = ?, updated_at = NOW() WHERE id = ?
	`, *request.IsActive, couponID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Coupon not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Coupon updated", "coupon_id": couponID})
}

func DeleteCoupon(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordCheckoutOperation("delete_coupon", ok)
	}()

	couponID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid coupon ID"})
		return
	}

	result, err := database.DB.Exec(`DELETE FROM coupons WHERE id = ?`, couponID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Coupon not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Coupon deleted", "coupon_id": couponID})
}
