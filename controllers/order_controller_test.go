package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout-service/database"
	"checkout-service/models"
	"checkout-service/payment"
)

// withMockDB swaps database.DB for a sqlmock connection for the duration
// of the test.
func withMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	orig := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = orig
		db.Close()
	})
	return mock
}

func testOrderContext(t *testing.T) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	return c
}

func validOrderRequest() orderRequest {
	return orderRequest{
		Name:  "Asha Nair",
		Email: "asha@example.com",
		Phone: "9876543210",
		Items: []models.CartItem{
			{ProductID: "p1", Name: "Kurta", Size: "M", Color: "Indigo", UnitPrice: 999.50, Quantity: 2},
		},
		ShippingAddress: models.ShippingAddress{
			FullName:     "Asha Nair",
			Phone:        "9876543210",
			AddressLine1: "14 MG Road",
			City:         "Kochi",
			State:        "Kerala",
			Pincode:      "682001",
			Country:      "India",
		},
		ShippingCharge: 49,
	}
}

func TestWriteOrderDuplicatePaymentSurfacesExistingOrder(t *testing.T) {
	mock := withMockDB(t)
	req := validOrderRequest()
	total := 999.50*2 + 49

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectQuery("SELECT order_number FROM orders").
		WithArgs("pay_77").
		WillReturnRows(sqlmock.NewRows([]string{"order_number"}).AddRow("ORD-first"))
	mock.ExpectRollback()

	uid := 7
	order, err := writeOrder(testOrderContext(t), identity{UserID: &uid}, req, paymentDetails{
		Method:           models.PaymentMethodOnline,
		Status:           models.PaymentStatusPaid,
		GatewayOrderID:   "order_77",
		GatewayPaymentID: "pay_77",
		AmountPaise:      payment.Paise(total),
	})

	assert.Nil(t, order)
	var dup *duplicatePaymentError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "ORD-first", dup.OrderNumber, "conflict carries the order that owns the payment")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteOrderRejectsPaidAmountBelowTotal(t *testing.T) {
	mock := withMockDB(t)
	req := validOrderRequest()

	mock.ExpectBegin()
	mock.ExpectRollback()

	uid := 7
	// Gateway order was issued for the COD advance, not the cart total.
	order, err := writeOrder(testOrderContext(t), identity{UserID: &uid}, req, paymentDetails{
		Method:           models.PaymentMethodOnline,
		Status:           models.PaymentStatusPaid,
		GatewayOrderID:   "order_adv",
		GatewayPaymentID: "pay_adv",
		AmountPaise:      payment.Paise(100),
	})

	assert.Nil(t, order)
	assert.ErrorIs(t, err, errPaidAmountMismatch)
	assert.NoError(t, mock.ExpectationsWereMet(), "nothing written before the amount check")
}
