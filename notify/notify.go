// Package notify sends transactional messages through the email and
// WhatsApp providers. Both are simple send-and-ack HTTP contracts.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"checkout-service/models"
)

var ErrSendFailed = errors.New("message send failed")

// Sender delivers one message to one recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// EmailSender posts through the transactional email provider's API.
type EmailSender struct {
	APIURL string
	APIKey string
	From   string
	HTTP   *http.Client
}

func NewEmailSender(apiURL, apiKey, from string) *EmailSender {
	return &EmailSender{APIURL: apiURL, APIKey: apiKey, From: from, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

func (e *EmailSender) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": to}}},
		},
		"from":    map[string]string{"email": e.From},
		"subject": subject,
		"content": []map[string]string{{"type": "text/plain", "value": body}},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.APIURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrSendFailed, resp.StatusCode)
	}
	return nil
}

// WhatsAppSender posts through the WhatsApp Business API. Subject is
// ignored; WhatsApp messages have no subject line.
type WhatsAppSender struct {
	APIURL string
	Token  string
	HTTP   *http.Client
}

func NewWhatsAppSender(apiURL, token string) *WhatsAppSender {
	return &WhatsAppSender{APIURL: apiURL, Token: token, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

func (w *WhatsAppSender) Send(ctx context.Context, to, _, body string) error {
	payload, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.APIURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.Token)

	resp, err := w.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrSendFailed, resp.StatusCode)
	}
	return nil
}

// Notifier routes messages to the right provider per channel and owns the
// message templates.
type Notifier struct {
	Email    Sender
	WhatsApp Sender
}

// DeliverOTP satisfies the verification gate's delivery hook.
func (n *Notifier) DeliverOTP(ctx context.Context, channel models.OTPChannel, identifier, code string) error {
	body := fmt.Sprintf("Your verification code is %s. It expires in 5 minutes.", code)
	switch channel {
	case models.OTPChannelEmail:
		return n.Email.Send(ctx, identifier, "Your verification code", body)
	case models.OTPChannelWhatsApp:
		return n.WhatsApp.Send(ctx, identifier, "", body)
	}
	return fmt.Errorf("%w: unknown channel %q", ErrSendFailed, channel)
}

// OrderConfirmation emails the order summary after a successful checkout.
// Send failures are logged by callers, never surfaced to the shopper.
func (n *Notifier) OrderConfirmation(ctx context.Context, order *models.Order, email string) error {
	if email == "" {
		return nil
	}
	body := fmt.Sprintf(
		"Thanks for your order %s!\nSubtotal: ₹%.2f\nDiscount: ₹%.2f\nShipping: ₹%.2f\nTotal: ₹%.2f\nPayment: %s",
		order.OrderNumber, order.Subtotal, order.Discount, order.ShippingCharge, order.Total, order.PaymentMethod,
	)
	return n.Email.Send(ctx, email, "Order confirmed: "+order.OrderNumber, body)
}
