package controllers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"checkout-service/database"
	"checkout-service/middlewares"
	"checkout-service/models"
	"checkout-service/payment"
	"checkout-service/pricing"
	"checkout-service/shipping"
)

type deliveryCheckRequest struct {
	Pincode     string            `json:"pincode" binding:"required,len=6"`
	Items       []models.CartItem `json:"items" binding:"required"`
	CODRequired bool              `json:"cod_required"`
}

// DeliveryCheck asks the shipping partner whether the address is
// serviceable. Partner failures are reported but carry serviceable=false
// rather than an error status: serviceability never blocks checkout.
func DeliveryCheck(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordCheckoutOperation("delivery_check", ok)
	}()

	var req deliveryCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	weightGrams := 0
	for _, item := range req.Items {
		weightGrams += 500 * item.Quantity // default 500g per unit
	}

	result, err := shipClient.CheckServiceability(c.Request.Context(), req.Pincode, weightGrams, req.CODRequired)
	if err != nil {
		if errors.Is(err, shipping.ErrPartnerUnavailable) {
			c.JSON(http.StatusOK, gin.H{
				"serviceable": false,
				"message":     "Could not check delivery for this pincode right now",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Delivery check failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

type applyCouponRequest struct {
	Code           string            `json:"code" binding:"required"`
	Items          []models.CartItem `json:"items" binding:"required"`
	ShippingCharge float64           `json:"shipping_charge"`
}

// ApplyCoupon prices the cart with a coupon. The same pricing.Quote runs
// again at order creation, so the preview can never drift from the charge.
func ApplyCoupon(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordCheckoutOperation("apply_coupon", ok)
	}()

	var req applyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ShippingCharge < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid shipping charge"})
		return
	}

	coupon, err := fetchCoupon(database.DB, req.Code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Invalid coupon code"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	breakdown, err := pricing.Quote(req.Items, coupon, req.ShippingCharge, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": couponErrorMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"discount_amount": breakdown.Discount,
		"final_total":     breakdown.Total,
		"breakdown":       breakdown,
	})
}

// normalizeCouponCode makes lookups case-insensitive: codes are stored
// uppercase and compared uppercase.
func normalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func fetchCoupon(db *sql.DB, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := db.QueryRow(`
		SELECT id, code, discount_type, discount_value, min_order_amount, max_discount,
		       expiry_date, is_active, usage_limit, used_count
		FROM coupons WHERE code = ?
	`, normalizeCouponCode(code)).Scan(
		&coupon.ID, &coupon.Code, &coupon.DiscountType, &coupon.DiscountValue,
		&coupon.MinOrderAmount, &coupon.MaxDiscount, &coupon.ExpiryDate,
		&coupon.IsActive, &coupon.UsageLimit, &coupon.UsedCount,
	)
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

func couponErrorMessage(err error) string {
	switch {
	case errors.Is(err, pricing.ErrCouponInactive):
		return "This coupon is no longer active"
	case errors.Is(err, pricing.ErrCouponExpired):
		return "This coupon has expired"
	case errors.Is(err, pricing.ErrMinOrderNotMet):
		return "Cart total is below the coupon minimum"
	case errors.Is(err, pricing.ErrCouponExhausted):
		return "This coupon has been fully redeemed"
	case errors.Is(err, pricing.ErrEmptyCart):
		return "Cart is empty"
	default:
		return "Coupon could not be applied"
	}
}

type createPaymentRequest struct {
	Purpose        string            `json:"purpose" binding:"required,oneof=order cod_advance"`
	Items          []models.CartItem `json:"items"`
	CouponCode     string            `json:"coupon_code"`
	ShippingCharge float64           `json:"shipping_charge"`
}

// CreatePayment reserves a gateway order before the hosted checkout opens.
// The amount is always computed server-side: the full recomputed total for
// online orders, the configured advance for COD.
func CreatePayment(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordCheckoutOperation("create_payment", ok)
	}()

	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var amount float64
	switch req.Purpose {
	case "cod_advance":
		if cfg.CODAdvanceAmount <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "COD advance is not enabled"})
			return
		}
		amount = cfg.CODAdvanceAmount
	case "order":
		if req.ShippingCharge < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid shipping charge"})
			return
		}
		var coupon *models.Coupon
		if req.CouponCode != "" {
			var err error
			coupon, err = fetchCoupon(database.DB, req.CouponCode)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					c.JSON(http.StatusNotFound, gin.H{"error": "Invalid coupon code"})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
				return
			}
		}
		breakdown, err := pricing.Quote(req.Items, coupon, req.ShippingCharge, time.Now())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": couponErrorMessage(err)})
			return
		}
		amount = breakdown.Total
	}

	amountPaise := payment.Paise(amount)
	order, err := gateway.CreateOrder(c.Request.Context(), amountPaise, req.Purpose)
	if err != nil {
		// No payment UI has opened yet, so aborting here carries no
		// partial-charge risk.
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not initiate payment, please retry"})
		return
	}

	// The row is what verification later checks the paid amount and purpose
	// against, so a gateway order we failed to record must not be handed out.
	if _, err := database.DB.ExecContext(c.Request.Context(), `
		INSERT INTO gateway_orders (gateway_order_id, purpose, amount_paise)
		VALUES (?, ?, ?)
	`, order.ID, req.Purpose, amountPaise); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not initiate payment, please retry"})
		return
	}

	if rabbitMQ != nil {
		expiry := models.OrderEvent{
			Type:           "payment_check",
			GatewayOrderID: order.ID,
			Occurred:       time.Now(),
		}
		if err := rabbitMQ.PublishDelayedEvent(expiry, 15*time.Minute); err != nil {
			log.Printf("Failed to schedule payment check for %s: %v", order.ID, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"gateway_order_id": order.ID,
		"amount":           order.Amount,
		"currency":         order.Currency,
	})
}

// fetchGatewayOrder loads the recorded purpose and amount for a gateway
// order handed out by CreatePayment. sql.ErrNoRows means the id was never
// issued here, or its payment window already expired.
func fetchGatewayOrder(db *sql.DB, gatewayOrderID string) (purpose string, amountPaise int64, err error) {
	err = db.QueryRow(`
		SELECT purpose, amount_paise FROM gateway_orders WHERE gateway_order_id = ?
	`, gatewayOrderID).Scan(&purpose, &amountPaise)
	return purpose, amountPaise, err
}

type verifyPaymentRequest struct {
	GatewayOrderID   string `json:"gateway_order_id" binding:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
	orderRequest
}

// VerifyPayment closes the online path: verify the callback signature,
// check the paid amount against the gateway order actually issued, then
// persist the order in one transaction. A bad signature or an amount that
// does not cover the recomputed total never writes an order; a write
// failure after capture surfaces ORDER_NOT_CONFIRMED with the payment
// reference so the money trail is never lost. Identity is resolved before
// any payment semantics so its failures stay plain validation errors.
func VerifyPayment(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordCheckoutOperation("verify_payment", ok)
	}()

	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity, ok := resolveIdentity(c, req.orderRequest)
	if !ok {
		return
	}

	if err := gateway.VerifySignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature); err != nil {
		middlewares.RecordPaymentVerification("failed")
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error": "Payment verification failed",
			"code":  "PAYMENT_VERIFICATION_FAILED",
		})
		return
	}

	// A valid signature only proves the gateway order was paid. It says
	// nothing about what the order was for: a signature from the small COD
	// advance must not buy a full cart.
	purpose, amountPaise, err := fetchGatewayOrder(database.DB, req.GatewayOrderID)
	if err != nil || purpose != "order" {
		middlewares.RecordPaymentVerification("failed")
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error": "Payment verification failed",
			"code":  "PAYMENT_VERIFICATION_FAILED",
		})
		return
	}
	middlewares.RecordPaymentVerification("verified")

	order, err := writeOrder(c, identity, req.orderRequest, paymentDetails{
		Method:           models.PaymentMethodOnline,
		Status:           models.PaymentStatusPaid,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		AmountPaise:      amountPaise,
	})
	if err != nil {
		if errors.Is(err, errPaidAmountMismatch) {
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error": "Paid amount does not match the order total",
				"code":  "PAYMENT_AMOUNT_MISMATCH",
			})
			return
		}
		var dup *duplicatePaymentError
		if errors.As(err, &dup) {
			c.JSON(http.StatusConflict, gin.H{
				"error":        "Order already exists for this payment",
				"order_number": dup.OrderNumber,
			})
			return
		}
		if status, msg := orderErrorResponse(err); status != 0 {
			c.JSON(status, gin.H{"error": msg})
			return
		}
		// Money at risk: the charge is captured but the order is not.
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":              "Payment captured but order not confirmed, contact support",
			"code":               "ORDER_NOT_CONFIRMED",
			"gateway_payment_id": req.GatewayPaymentID,
		})
		return
	}

	afterOrderCreated(c, order, req.Email)
	c.JSON(http.StatusCreated, gin.H{"order_id": order.ID, "order_number": order.OrderNumber})
}
