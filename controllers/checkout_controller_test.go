package controllers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout-service/payment"
)

func verifyPaymentBody(t *testing.T, gatewayOrderID, paymentID, signature string) *bytes.Reader {
	t.Helper()
	req := validOrderRequest()
	payload := map[string]any{
		"gateway_order_id":   gatewayOrderID,
		"gateway_payment_id": paymentID,
		"signature":          signature,
		"name":               req.Name,
		"email":              req.Email,
		"phone":              req.Phone,
		"items":              req.Items,
		"shipping_address":   req.ShippingAddress,
		"shipping_charge":    req.ShippingCharge,
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func signCallback(secret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// A request with no session and no sign-in must fail as a plain validation
// error before any payment semantics run, even when the signature is junk.
func TestVerifyPaymentResolvesIdentityBeforeSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/verify", VerifyPayment)

	w := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodPost, "/verify",
		verifyPaymentBody(t, "order_1", "pay_1", "not-a-signature"))
	httpReq.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, httpReq)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "guest session")
	assert.NotContains(t, w.Body.String(), "PAYMENT_VERIFICATION_FAILED")
}

// A validly signed callback for a COD-advance gateway order must not buy a
// full cart: the recorded purpose is checked before any order is written.
func TestVerifyPaymentRejectsAdvanceSignatureForFullOrder(t *testing.T) {
	mock := withMockDB(t)

	origGateway := gateway
	gateway = payment.NewClient("http://gateway.invalid", "key_id", "key_secret")
	t.Cleanup(func() { gateway = origGateway })

	mock.ExpectQuery("SELECT purpose, amount_paise FROM gateway_orders").
		WithArgs("order_adv").
		WillReturnRows(sqlmock.NewRows([]string{"purpose", "amount_paise"}).
			AddRow("cod_advance", 10000))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/verify", func(c *gin.Context) { c.Set("userID", 7) }, VerifyPayment)

	w := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodPost, "/verify",
		verifyPaymentBody(t, "order_adv", "pay_adv", signCallback("key_secret", "order_adv", "pay_adv")))
	httpReq.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, httpReq)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "PAYMENT_VERIFICATION_FAILED")
	assert.NoError(t, mock.ExpectationsWereMet(), "no order insert after the purpose check fails")
}
