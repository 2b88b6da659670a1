package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	client := NewClient("http://unused", "key", "secret")

	good := sign("secret", "order_1", "pay_1")
	assert.NoError(t, client.VerifySignature("order_1", "pay_1", good))

	assert.ErrorIs(t, client.VerifySignature("order_1", "pay_1", good+"00"), ErrSignatureMismatch)
	assert.ErrorIs(t, client.VerifySignature("order_2", "pay_1", good), ErrSignatureMismatch)
	assert.ErrorIs(t, client.VerifySignature("order_1", "pay_2", good), ErrSignatureMismatch)
	assert.ErrorIs(t, client.VerifySignature("order_1", "pay_1", ""), ErrSignatureMismatch)

	wrongSecret := sign("other-secret", "order_1", "pay_1")
	assert.ErrorIs(t, client.VerifySignature("order_1", "pay_1", wrongSecret), ErrSignatureMismatch)
}

func TestPaise(t *testing.T) {
	assert.Equal(t, int64(1050), Paise(10.50))
	assert.Equal(t, int64(9999), Paise(99.99))
	assert.Equal(t, int64(170000), Paise(1700))
	assert.Equal(t, int64(0), Paise(0))
}

func TestCreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key_id", user)
		assert.Equal(t, "key_secret", pass)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(169900), body["amount"])
		assert.Equal(t, "INR", body["currency"])

		json.NewEncoder(w).Encode(GatewayOrder{
			ID:       "order_abc",
			Amount:   169900,
			Currency: "INR",
			Receipt:  "order",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key_id", "key_secret")
	order, err := client.CreateOrder(context.Background(), 169900, "order")
	require.NoError(t, err)
	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, int64(169900), order.Amount)
}

func TestCreateOrderGatewayDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "secret")
	_, err := client.CreateOrder(context.Background(), 100, "order")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}
