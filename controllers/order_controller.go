package controllers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"checkout-service/checkout"
	"checkout-service/database"
	"checkout-service/middlewares"
	"checkout-service/models"
	"checkout-service/payment"
	"checkout-service/pricing"
)

type orderRequest struct {
	GuestSessionID  string                 `json:"guest_session_id"`
	Name            string                 `json:"name" binding:"required"`
	Email           string                 `json:"email" binding:"required"`
	Phone           string                 `json:"phone" binding:"required"`
	Items           []models.CartItem      `json:"items" binding:"required"`
	ShippingAddress models.ShippingAddress `json:"shipping_address" binding:"required"`
	CouponCode      string                 `json:"coupon_code"`
	ShippingCharge  float64                `json:"shipping_charge"`
}

type identity struct {
	UserID  *int
	GuestID *int
}

// resolveIdentity decides whether the order belongs to an authenticated
// user or a guest session, provisioning the guest identity on first use.
// Writes the error response itself when neither is available.
func resolveIdentity(c *gin.Context, req orderRequest) (identity, bool) {
	if userID, exists := c.Get("userID"); exists {
		id := userID.(int)
		return identity{UserID: &id}, true
	}

	if req.GuestSessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Sign in or provide a guest session"})
		return identity{}, false
	}

	guestID, err := upsertGuestIdentity(c.Request.Context(), database.DB, guestRequest{
		SessionID: req.GuestSessionID,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Address:   &req.ShippingAddress,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save guest identity"})
		return identity{}, false
	}
	return identity{GuestID: &guestID}, true
}

type paymentDetails struct {
	Method           models.PaymentMethod
	Status           models.PaymentStatus
	GatewayOrderID   string
	GatewayPaymentID string
	// AmountPaise is what the gateway order was issued for. Online orders
	// must match it against the recomputed total before persisting.
	AmountPaise int64
	AdvancePaid float64
}

type duplicatePaymentError struct {
	OrderNumber string
}

func (e *duplicatePaymentError) Error() string {
	return fmt.Sprintf("order %s already exists for this payment", e.OrderNumber)
}

var (
	errCouponNotFound     = errors.New("coupon not found")
	errPaidAmountMismatch = errors.New("paid amount does not match order total")
)

// writeOrder re-validates the payload, recomputes the pricing breakdown
// from the stored coupon (client totals are never trusted), and persists
// the order and its items in one transaction. Coupon redemption is counted
// inside the same transaction with a usage-limit guard, so two concurrent
// redemptions of the last slot cannot both commit.
func writeOrder(c *gin.Context, id identity, req orderRequest, pay paymentDetails) (*models.Order, error) {
	form := checkout.ContactForm{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.ShippingAddress,
	}
	if err := form.Validate(); err != nil {
		return nil, err
	}
	if req.ShippingCharge < 0 {
		return nil, &checkout.FieldError{Field: "shipping_charge", Reason: "must not be negative"}
	}

	tx, err := database.DB.BeginTx(c.Request.Context(), nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var coupon *models.Coupon
	if req.CouponCode != "" {
		coupon, err = fetchCouponForUpdate(tx, req.CouponCode)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, errCouponNotFound
			}
			return nil, err
		}
	}

	breakdown, err := pricing.Quote(req.Items, coupon, req.ShippingCharge, time.Now())
	if err != nil {
		return nil, err
	}

	// The gateway charged what CreatePayment asked for; the recomputed
	// total must land on the same paise or the payload was tampered with.
	if pay.Method == models.PaymentMethodOnline && payment.Paise(breakdown.Total) != pay.AmountPaise {
		return nil, errPaidAmountMismatch
	}

	if coupon != nil {
		result, err := tx.Exec(`
			UPDATE coupons SET used_count = used_count + 1, updated_at = NOW()
			WHERE id = ? AND (usage_limit = 0 OR used_count < usage_limit)
		`, coupon.ID)
		if err != nil {
			return nil, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, pricing.ErrCouponExhausted
		}
	}

	addressJSON, err := json.Marshal(req.ShippingAddress)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		OrderNumber:      "ORD-" + uuid.NewString(),
		UserID:           id.UserID,
		GuestUserID:      id.GuestID,
		Items:            req.Items,
		ShippingAddress:  req.ShippingAddress,
		Subtotal:         breakdown.Subtotal,
		Discount:         breakdown.Discount,
		ShippingCharge:   breakdown.ShippingCharge,
		Total:            breakdown.Total,
		CouponCode:       breakdown.CouponCode,
		PaymentMethod:    pay.Method,
		PaymentStatus:    pay.Status,
		OrderStatus:      models.OrderStatusCreated,
		GatewayOrderID:   pay.GatewayOrderID,
		GatewayPaymentID: pay.GatewayPaymentID,
		AdvancePaid:      pay.AdvancePaid,
	}

	var paymentID any
	if pay.GatewayPaymentID != "" {
		paymentID = pay.GatewayPaymentID
	}

	result, err := tx.Exec(`
		INSERT INTO orders (order_number, user_id, guest_user_id, shipping_address,
			subtotal, discount, shipping_charge, total, coupon_code,
			payment_method, payment_status, order_status,
			gateway_order_id, gateway_payment_id, advance_paid, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`, order.OrderNumber, order.UserID, order.GuestUserID, addressJSON,
		order.Subtotal, order.Discount, order.ShippingCharge, order.Total, order.CouponCode,
		order.PaymentMethod, order.PaymentStatus, order.OrderStatus,
		order.GatewayOrderID, paymentID, order.AdvancePaid)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil, existingOrderConflict(pay.GatewayPaymentID)
		}
		return nil, err
	}

	orderID, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	order.ID = int(orderID)

	for _, item := range req.Items {
		if _, err := tx.Exec(`
			INSERT INTO order_items (order_id, product_id, name, image, size, color, unit_price, quantity)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, orderID, item.ProductID, item.Name, item.Image, item.Size, item.Color,
			item.UnitPrice, item.Quantity); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

// fetchCouponForUpdate locks the coupon row for the duration of the
// order-write transaction so redemption counting is race-free.
func fetchCouponForUpdate(tx *sql.Tx, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := tx.QueryRow(`
		SELECT id, code, discount_type, discount_value, min_order_amount, max_discount,
		       expiry_date, is_active, usage_limit, used_count
		FROM coupons WHERE code = ?
		FOR UPDATE
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

// existingOrderConflict resolves a duplicate-key failure into the order
// that already owns the payment reference.
func existingOrderConflict(gatewayPaymentID string) error {
	var orderNumber string
	err := database.DB.QueryRow(`
		SELECT order_number FROM orders WHERE gateway_payment_id = ?
	`, gatewayPaymentID).Scan(&orderNumber)
	if err != nil {
		return &duplicatePaymentError{}
	}
	return &duplicatePaymentError{OrderNumber: orderNumber}
}

// orderErrorResponse maps recoverable order-write failures to HTTP. An
// unmapped error returns (0, "") so the caller applies its own fallback.
func orderErrorResponse(err error) (int, string) {
	var fieldErr *checkout.FieldError
	switch {
	case errors.As(err, &fieldErr):
		return http.StatusBadRequest, fieldErr.Error()
	case errors.Is(err, errCouponNotFound):
		return http.StatusNotFound, "Invalid coupon code"
	case errors.Is(err, pricing.ErrEmptyCart),
		errors.Is(err, pricing.ErrInvalidItem),
		errors.Is(err, pricing.ErrCouponInactive),
		errors.Is(err, pricing.ErrCouponExpired),
		errors.Is(err, pricing.ErrMinOrderNotMet),
		errors.Is(err, pricing.ErrCouponExhausted):
		return http.StatusBadRequest, couponErrorMessage(err)
	}
	return 0, ""
}

// afterOrderCreated publishes order events and sends the confirmation
// email. All of it is best-effort; the order is already durable.
func afterOrderCreated(c *gin.Context, order *models.Order, email string) {
	if rabbitMQ != nil {
		priority := 5
		if order.Total > 1000 { // large orders jump the queue
			priority = 9
		}

		event := models.OrderEvent{
			OrderID:  order.ID,
			Type:     "created",
			Status:   order.OrderStatus,
			Total:    order.Total,
			Occurred: time.Now(),
		}
		if err := rabbitMQ.PublishOrderEvent(event, priority); err != nil {
			log.Printf("Failed to publish order created event: %v", err)
		}
	}

	if notifier != nil {
		if err := notifier.OrderConfirmation(c.Request.Context(), order, email); err != nil {
			log.Printf("Failed to send order confirmation for %s: %v", order.OrderNumber, err)
		}
	}
}

type codOrderRequest struct {
	orderRequest
	AdvanceGatewayOrderID   string `json:"advance_gateway_order_id"`
	AdvanceGatewayPaymentID string `json:"advance_gateway_payment_id"`
	AdvanceSignature        string `json:"advance_signature"`
}

// CreateCODOrder persists a cash-on-delivery order. When the COD advance
// is configured, the order is rejected until the advance payment has been
// captured and its signature verified; the amount charged at the door is
// the remainder.
func CreateCODOrder(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordCheckoutOperation("create_cod_order", ok)
	}()

	var req codOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pay := paymentDetails{Method: models.PaymentMethodCOD, Status: models.PaymentStatusPending}
	if cfg.CODAdvanceAmount > 0 {
		if req.AdvanceGatewayPaymentID == "" || req.AdvanceSignature == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "COD advance payment required before placing this order"})
			return
		}
		if err := gateway.VerifySignature(req.AdvanceGatewayOrderID, req.AdvanceGatewayPaymentID, req.AdvanceSignature); err != nil {
			middlewares.RecordPaymentVerification("failed")
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error": "Advance payment verification failed",
				"code":  "PAYMENT_VERIFICATION_FAILED",
			})
			return
		}
		purpose, amountPaise, err := fetchGatewayOrder(database.DB, req.AdvanceGatewayOrderID)
		if err != nil || purpose != "cod_advance" || amountPaise != payment.Paise(cfg.CODAdvanceAmount) {
			middlewares.RecordPaymentVerification("failed")
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error": "Advance payment verification failed",
				"code":  "PAYMENT_VERIFICATION_FAILED",
			})
			return
		}
		middlewares.RecordPaymentVerification("verified")
		pay.Status = models.PaymentStatusAdvance
		pay.GatewayOrderID = req.AdvanceGatewayOrderID
		pay.GatewayPaymentID = req.AdvanceGatewayPaymentID
		pay.AdvancePaid = cfg.CODAdvanceAmount
	}

	id, ok := resolveIdentity(c, req.orderRequest)
	if !ok {
		return
	}

	order, err := writeOrder(c, id, req.orderRequest, pay)
	if err != nil {
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
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create order"})
		return
	}

	afterOrderCreated(c, order, req.Email)
	c.JSON(http.StatusCreated, gin.H{
		"order_id":        order.ID,
		"order_number":    order.OrderNumber,
		"due_at_delivery": order.Total - order.AdvancePaid,
	})
}

// GetOrders lists orders for the authenticated user, or for a guest
// session passed as ?guest_session_id=.
func GetOrders(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordCheckoutOperation("list_orders", ok)
	}()

	where := ""
	var arg any
	if userID, exists := c.Get("userID"); exists {
		where = "o.user_id = ?"
		arg = userID
	} else if session := c.Query("guest_session_id"); session != "" {
		var guestID int
		err := database.DB.QueryRow(`SELECT id FROM guest_identities WHERE session_id = ?`, session).Scan(&guestID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusOK, []models.Order{})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		where = "o.guest_user_id = ?"
		arg = guestID
	} else {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in or provide a guest session"})
		return
	}

	rows, err := database.DB.Query(`
		SELECT o.id, o.order_number, o.shipping_address, o.subtotal, o.discount,
		       o.shipping_charge, o.total, o.coupon_code, o.payment_method,
		       o.payment_status, o.order_status, o.waybill, o.created_at,
		       oi.product_id, oi.name, oi.image, oi.size, oi.color, oi.unit_price, oi.quantity
		FROM orders o
		JOIN order_items oi ON o.id = oi.order_id
		WHERE `+where+`
		ORDER BY o.created_at DESC, oi.id ASC
	`, arg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	defer rows.Close()

	ordersMap := make(map[int]*models.Order)
	var orderIDs []int
	for rows.Next() {
		var (
			order       models.Order
			addressJSON []byte
			item        models.CartItem
		)
		if err := rows.Scan(&order.ID, &order.OrderNumber, &addressJSON, &order.Subtotal,
			&order.Discount, &order.ShippingCharge, &order.Total, &order.CouponCode,
			&order.PaymentMethod, &order.PaymentStatus, &order.OrderStatus, &order.Waybill,
			&order.CreatedAt, &item.ProductID, &item.Name, &item.Image, &item.Size,
			&item.Color, &item.UnitPrice, &item.Quantity); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}

		existing, seen := ordersMap[order.ID]
		if !seen {
			if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
				log.Printf("Error decoding address for order %d: %v", order.ID, err)
			}
			existing = &order
			ordersMap[order.ID] = existing
			orderIDs = append(orderIDs, order.ID)
		}
		existing.Items = append(existing.Items, item)
	}

	orders := make([]models.Order, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		orders = append(orders, *ordersMap[orderID])
	}

	c.JSON(http.StatusOK, orders)
}

// GetOrderDetails returns one order, scoped to its owner.
func GetOrderDetails(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordCheckoutOperation("order_details", ok)
	}()

	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var order models.Order
	var addressJSON []byte
	err = database.DB.QueryRow(`
		SELECT id, order_number, user_id, guest_user_id, shipping_address, subtotal, discount,
		       shipping_charge, total, coupon_code, payment_method, payment_status,
		       order_status, waybill, created_at
		FROM orders WHERE id = ?
	`, orderID).Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &order.GuestUserID, &addressJSON,
		&order.Subtotal, &order.Discount, &order.ShippingCharge, &order.Total,
		&order.CouponCode, &order.PaymentMethod, &order.PaymentStatus,
		&order.OrderStatus, &order.Waybill, &order.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if !ownsOrder(c, &order) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	rows, err := database.DB.Query(`
		SELECT product_id, name, image, size, color, unit_price, quantity
		FROM order_items WHERE order_id = ?
	`, orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get order items"})
		return
	}
	defer rows.Close()

	for rows.Next() {
		var item models.CartItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Image, &item.Size,
			&item.Color, &item.UnitPrice, &item.Quantity); err != nil {
			log.Printf("Error scanning order item: %v", err)
			continue
		}
		order.Items = append(order.Items, item)
	}

	c.JSON(http.StatusOK, order)
}

func ownsOrder(c *gin.Context, order *models.Order) bool {
	if isAdmin, exists := c.Get("isAdmin"); exists && isAdmin == true {
		return true
	}
	if userID, exists := c.Get("userID"); exists {
		return order.UserID != nil && *order.UserID == userID.(int)
	}
	if session := c.Query("guest_session_id"); session != "" && order.GuestUserID != nil {
		var guestID int
		if err := database.DB.QueryRow(`SELECT id FROM guest_identities WHERE session_id = ?`, session).Scan(&guestID); err == nil {
			return *order.GuestUserID == guestID
		}
	}
	return false
}

// UpdateOrderStatus moves an order through the admin state machine.
// Confirming an order requests shipment creation through the event queue.
func UpdateOrderStatus(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordCheckoutOperation("update_status", ok)
	}()

	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var request struct {
		Status models.OrderStatus `json:"status" binding:"required,oneof=CONFIRMED SHIPPED DELIVERED CANCELLED"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var current models.OrderStatus
	err = database.DB.QueryRow(`SELECT order_status FROM orders WHERE id = ?`, orderID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if !current.CanTransitionTo(request.Status) {
		c.JSON(http.StatusConflict, gin.H{
			"error": fmt.Sprintf("Cannot move order from %s to %s", current, request.Status),
		})
		return
	}

	result, err := database.DB.Exec(`
		UPDATE orders SET order_status = ?, updated_at = NOW()
		WHERE id = ? AND order_status = ?
	`, request.Status, orderID, current)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Order status changed concurrently, retry"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Order status updated", "order_id": orderID})

	if rabbitMQ != nil {
		priority := 5
		if request.Status == models.OrderStatusCancelled {
			priority = 8
		}

		event := models.OrderEvent{
			OrderID:  orderID,
			Type:     "status_updated",
			Status:   request.Status,
			Occurred: time.Now(),
		}
		if err := rabbitMQ.PublishOrderEvent(event, priority); err != nil {
			log.Printf("Failed to publish order updated event: %v", err)
		}

		if request.Status == models.OrderStatusConfirmed {
			shipEvent := event
			shipEvent.Type = "shipment_requested"
			if err := rabbitMQ.PublishOrderEvent(shipEvent, priority); err != nil {
				log.Printf("Failed to publish shipment requested event: %v", err)
			}
		}
	}
}
