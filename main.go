package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"checkout-service/config"
	"checkout-service/consumers"
	"checkout-service/controllers"
	"checkout-service/database"
	"checkout-service/middlewares"
	"checkout-service/notify"
	"checkout-service/otp"
	"checkout-service/payment"
	"checkout-service/rabbitmq"
	"checkout-service/shipping"
)

func main() {
	cfg := config.LoadConfig()

	if err := database.InitDB(cfg); err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}
	defer database.CloseDB()

	rmq, err := rabbitmq.NewRabbitMQ(cfg)
	if err != nil {
		log.Fatalf("RabbitMQ initialization failed: %v", err)
	}
	defer rmq.Close()

	if err := rmq.SetupQueues(); err != nil {
		log.Fatalf("Failed to setup RabbitMQ queues: %v", err)
	}

	gateway := payment.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret)
	shipClient := shipping.NewClient(cfg.ShippingBaseURL, cfg.ShippingToken, cfg.PickupPincode)
	notifier := &notify.Notifier{
		Email:    notify.NewEmailSender(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom),
		WhatsApp: notify.NewWhatsAppSender(cfg.WhatsAppAPIURL, cfg.WhatsAppToken),
	}
	otpService := otp.NewService(
		&otp.SQLStore{DB: database.DB},
		notifier,
		cfg.OTPSecret,
		time.Duration(cfg.OTPCooldownSeconds)*time.Second,
		time.Duration(cfg.OTPExpiryMinutes)*time.Minute,
		cfg.OTPMaxAttempts,
	)

	go consumers.StartOrderConsumer(rmq.Channel, cfg, shipClient)

	controllers.Init(cfg, rmq, gateway, shipClient, otpService, notifier)

	r := gin.Default()

	r.Use(middlewares.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	otpLimiter := middlewares.NewRateLimiter(3, 15*time.Minute)

	api := r.Group("/api")
	{
		api.POST("/otp/send", otpLimiter.Middleware(), controllers.SendOTP)
		api.POST("/otp/verify", controllers.VerifyOTP)
		api.POST("/guest", controllers.UpsertGuest)
		api.POST("/auth/register", controllers.Register)
	}

	// Checkout works for guests and signed-in users alike.
	checkoutGroup := r.Group("/api/checkout")
	checkoutGroup.Use(middlewares.OptionalAuth())
	{
		checkoutGroup.POST("/delivery", controllers.DeliveryCheck)
		checkoutGroup.POST("/coupon", controllers.ApplyCoupon)
		checkoutGroup.POST("/payment", controllers.CreatePayment)
		checkoutGroup.POST("/payment/verify", controllers.VerifyPayment)
	}

	orderGroup := r.Group("/api/orders")
	orderGroup.Use(middlewares.OptionalAuth())
	{
		orderGroup.POST("", controllers.CreateCODOrder)
		orderGroup.GET("", controllers.GetOrders)
		orderGroup.GET("/:id", controllers.GetOrderDetails)
	}

	adminGroup := r.Group("/api/admin")
	adminGroup.Use(middlewares.AuthMiddleware(), middlewares.AdminMiddleware())
	{
		adminGroup.PUT("/orders/:id/status", controllers.UpdateOrderStatus)
		adminGroup.POST("/coupons", controllers.CreateCoupon)
		adminGroup.GET("/coupons", controllers.ListCoupons)
		adminGroup.PUT("/coupons/:id", controllers.SetCouponActive)
		adminGroup.DELETE("/coupons/:id", controllers.DeleteCoupon)
	}

	port := ":8080"
	log.Printf("Checkout service starting on port %s", port)
	if err := r.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
