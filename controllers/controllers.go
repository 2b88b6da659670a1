package controllers

import (
	"checkout-service/config"
	"checkout-service/notify"
	"checkout-service/otp"
	"checkout-service/payment"
	"checkout-service/rabbitmq"
	"checkout-service/shipping"
)

var (
	cfg        *config.Config
	rabbitMQ   *rabbitmq.RabbitMQ
	gateway    *payment.Client
	shipClient *shipping.Client
	otpService *otp.Service
	notifier   *notify.Notifier
)

// Init wires the external collaborators into the handlers. Called once
// from main before routes are registered.
func Init(c *config.Config, rmq *rabbitmq.RabbitMQ, pay *payment.Client, ship *shipping.Client, otpSvc *otp.Service, n *notify.Notifier) {
	cfg = c
	rabbitMQ = rmq
	gateway = pay
	shipClient = ship
	otpService = otpSvc
	notifier = n
}
