// Package payment wraps the payment gateway: order creation before the
// hosted checkout opens, and signature verification after it closes.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrSignatureMismatch means the callback's signature did not verify.
	// Callers must treat this as a failed payment, never as cancelled.
	ErrSignatureMismatch = errors.New("payment signature verification failed")
)

// GatewayOrder is the provider-side reservation created before any payment
// UI is shown.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // minor units (paise)
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

func NewClient(baseURL, keyID, keySecret string) *Client {
	return &Client{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

// Paise converts a rupee amount to integer paise, rounding half up so no
// float drift can undercharge.
func Paise(rupees float64) int64 {
	return int64(math.Round(rupees * 100))
}

// CreateOrder reserves a gateway order for the given amount. Failure here
// aborts checkout before the shopper sees any payment UI.
func (c *Client) CreateOrder(ctx context.Context, amountPaise int64, receipt string) (GatewayOrder, error) {
	payload, err := json.Marshal(map[string]any{
		"amount":   amountPaise,
		"currency": "INR",
		"receipt":  receipt,
	})
	if err != nil {
		return GatewayOrder{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return GatewayOrder{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return GatewayOrder{}, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var order GatewayOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return GatewayOrder{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return order, nil
}

// VerifySignature checks the callback signature: HMAC-SHA256 over
// "<orderID>|<paymentID>" keyed with the gateway secret, compared in
// constant time.
func (c *Client) VerifySignature(gatewayOrderID, paymentID, signature string) error {
	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}
