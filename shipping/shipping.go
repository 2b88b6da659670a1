// Package shipping talks to the shipping partner: serviceability lookups
// during checkout and shipment (waybill) creation once an order is
// confirmed.
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"checkout-service/models"
)

var ErrPartnerUnavailable = errors.New("shipping partner unavailable")

// Serviceability is the partner's answer for a delivery pincode. Errors
// and serviceable=false are informational for checkout; neither blocks
// progression to payment.
type Serviceability struct {
	Serviceable    bool    `json:"serviceable"`
	ShippingCharge float64 `json:"shipping_charge"`
	ETADays        int     `json:"eta_days"`
	CODAvailable   bool    `json:"cod_available"`
}

type Shipment struct {
	ShipmentID string `json:"shipment_id"`
	Waybill    string `json:"waybill"`
	Courier    string `json:"courier"`
}

type Client struct {
	baseURL       string
	token         string
	pickupPincode string
	http          *http.Client
}

func NewClient(baseURL, token, pickupPincode string) *Client {
	return &Client{
		baseURL:       baseURL,
		token:         token,
		pickupPincode: pickupPincode,
		http:          &http.Client{Timeout: 10 * time.Second},
	}
}

// CheckServiceability queries delivery options for a destination pincode.
func (c *Client) CheckServiceability(ctx context.Context, deliveryPincode string, weightGrams int, codRequired bool) (Serviceability, error) {
	q := url.Values{}
	q.Set("pickup_postcode", c.pickupPincode)
	q.Set("delivery_postcode", deliveryPincode)
	q.Set("weight", strconv.FormatFloat(float64(weightGrams)/1000, 'f', 2, 64))
	if codRequired {
		q.Set("cod", "1")
	} else {
		q.Set("cod", "0")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/courier/serviceability/?"+q.Encode(), nil)
	if err != nil {
		return Serviceability{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return Serviceability{}, fmt.Errorf("%w: %v", ErrPartnerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Partner reports unknown pincodes as 404; that's a clean
		// non-serviceable answer, not an outage.
		return Serviceability{Serviceable: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Serviceability{}, fmt.Errorf("%w: status %d", ErrPartnerUnavailable, resp.StatusCode)
	}

	var body struct {
		Data struct {
			AvailableCouriers []struct {
				Rate         float64 `json:"rate"`
				ETADays      int     `json:"estimated_delivery_days"`
				CODAvailable int     `json:"cod"`
			} `json:"available_courier_companies"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Serviceability{}, fmt.Errorf("%w: %v", ErrPartnerUnavailable, err)
	}

	couriers := body.Data.AvailableCouriers
	if len(couriers) == 0 {
		return Serviceability{Serviceable: false}, nil
	}

	// Cheapest courier wins.
	best := couriers[0]
	for _, courier := range couriers[1:] {
		if courier.Rate < best.Rate {
			best = courier
		}
	}
	return Serviceability{
		Serviceable:    true,
		ShippingCharge: best.Rate,
		ETADays:        best.ETADays,
		CODAvailable:   best.CODAvailable == 1,
	}, nil
}

// CreateShipment registers a confirmed order with the partner and returns
// the tracking waybill.
func (c *Client) CreateShipment(ctx context.Context, order *models.Order) (Shipment, error) {
	items := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]any{
			"name":          item.Name,
			"sku":           item.ProductID,
			"units":         item.Quantity,
			"selling_price": item.UnitPrice,
		})
	}

	payload, err := json.Marshal(map[string]any{
		"order_id":              order.OrderNumber,
		"payment_method":        order.PaymentMethod,
		"sub_total":             order.Subtotal,
		"total":                 order.Total,
		"billing_customer_name": order.ShippingAddress.FullName,
		"billing_phone":         order.ShippingAddress.Phone,
		"billing_address":       order.ShippingAddress.AddressLine1,
		"billing_address_2":     order.ShippingAddress.AddressLine2,
		"billing_city":          order.ShippingAddress.City,
		"billing_state":         order.ShippingAddress.State,
		"billing_pincode":       order.ShippingAddress.Pincode,
		"billing_country":       order.ShippingAddress.Country,
		"order_items":           items,
	})
	if err != nil {
		return Shipment{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/orders/create/adhoc", bytes.NewReader(payload))
	if err != nil {
		return Shipment{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return Shipment{}, fmt.Errorf("%w: %v", ErrPartnerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Shipment{}, fmt.Errorf("%w: status %d", ErrPartnerUnavailable, resp.StatusCode)
	}

	var shipment Shipment
	if err := json.NewDecoder(resp.Body).Decode(&shipment); err != nil {
		return Shipment{}, fmt.Errorf("%w: %v", ErrPartnerUnavailable, err)
	}
	return shipment, nil
}
