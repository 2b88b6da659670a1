package consumers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"checkout-service/config"
	"checkout-service/database"
	"checkout-service/models"
	"checkout-service/shipping"
)

// StartOrderConsumer consumes the order queue and the dead-letter queue.
// Delayed payment-check events expire gateway orders that were issued but
// never redeemed; shipment-requested events register confirmed orders with
// the shipping partner.
func StartOrderConsumer(ch *amqp.Channel, cfg *config.Config, ship *shipping.Client) {
	msgs, err := ch.Consume(
		cfg.OrderQueue,
		"checkout-service", // consumer tag
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,
	)
	if err != nil {
		log.Fatalf("Failed to register consumer: %v", err)
	}

	go func() {
		for msg := range msgs {
			processOrderMessage(msg, ship)
		}
	}()

	dlqMsgs, err := ch.Consume(
		cfg.DeadLetterQueue,
		"checkout-service-dlq", // consumer tag
		false,                  // auto-ack
		false,                  // exclusive
		false,                  // no-local
		false,                  // no-wait
		nil,
	)
	if err != nil {
		log.Printf("Failed to register DLQ consumer: %v", err)
	}

	go func() {
		for msg := range dlqMsgs {
			processDeadLetterMessage(msg)
		}
	}()
}

func processOrderMessage(msg amqp.Delivery, ship *shipping.Client) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in message processing: %v", r)
		}
	}()

	var event models.OrderEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		log.Printf("Invalid event body: %s", msg.Body)
		_ = msg.Nack(false, false) // straight to the DLQ
		return
	}

	log.Printf("Processing order event: ID=%d, Type=%s", event.OrderID, event.Type)

	switch event.Type {
	case "created":
		log.Printf("Order %d created with total %.2f", event.OrderID, event.Total)
	case "status_updated":
		log.Printf("Order %d moved to %s", event.OrderID, event.Status)
	case "payment_check":
		handlePaymentCheck(event.GatewayOrderID)
	case "shipment_requested":
		if err := handleShipmentRequested(event.OrderID, ship); err != nil {
			log.Printf("Shipment creation failed for order %d: %v", event.OrderID, err)
			_ = msg.Nack(false, false)
			return
		}
	default:
		log.Printf("Unknown event type: %s", event.Type)
	}

	_ = msg.Ack(false)
}

func processDeadLetterMessage(msg amqp.Delivery) {
	log.Printf("Received dead letter: %s", msg.Body)
	_ = msg.Ack(false)
}

// handlePaymentCheck expires a gateway order whose payment window has
// elapsed without a verified order claiming it. A redeemed gateway order is
// left alone; an unredeemed one is deleted so its signature can no longer
// be exchanged for an order, and the table stays flat.
func handlePaymentCheck(gatewayOrderID string) {
	result, err := database.DB.Exec(`
		DELETE FROM gateway_orders
		WHERE gateway_order_id = ?
		  AND NOT EXISTS (SELECT 1 FROM orders WHERE gateway_order_id = ?)
	`, gatewayOrderID, gatewayOrderID)
	if err != nil {
		log.Printf("Failed to expire gateway order %s: %v", gatewayOrderID, err)
		return
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		log.Printf("Expired unredeemed gateway order %s", gatewayOrderID)
	}
}

// handleShipmentRequested registers the order with the shipping partner
// and records the waybill. An already-shipped order is a no-op so redelivered
// events do not create duplicate shipments.
func handleShipmentRequested(orderID int, ship *shipping.Client) error {
	order, err := loadOrder(orderID)
	if err != nil {
		return err
	}
	if order.Waybill != "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shipment, err := ship.CreateShipment(ctx, order)
	if err != nil {
		return err
	}

	_, err = database.DB.Exec(`
		UPDATE orders SET waybill = ?, updated_at = NOW() WHERE id = ?
	`, shipment.Waybill, orderID)
	if err != nil {
		return err
	}
	log.Printf("Shipment created for order %d, waybill %s", orderID, shipment.Waybill)
	return nil
}

func loadOrder(orderID int) (*models.Order, error) {
	var order models.Order
	var addressJSON []byte
	err := database.DB.QueryRow(`
		SELECT id, order_number, shipping_address, subtotal, discount, shipping_charge, total,
		       payment_method, payment_status, order_status, waybill
		FROM orders WHERE id = ?
	`, orderID).Scan(
		&order.ID, &order.OrderNumber, &addressJSON, &order.Subtotal, &order.Discount,
		&order.ShippingCharge, &order.Total, &order.PaymentMethod, &order.PaymentStatus,
		&order.OrderStatus, &order.Waybill,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
		return nil, err
	}

	rows, err := database.DB.Query(`
		SELECT product_id, name, image, size, color, unit_price, quantity
		FROM order_items WHERE order_id = ?
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item models.CartItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Image, &item.Size,
			&item.Color, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	return &order, rows.Err()
}
