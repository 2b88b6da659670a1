package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"checkout-service/middlewares"
	"checkout-service/models"
	"checkout-service/otp"
)

type otpSendRequest struct {
	Channel    models.OTPChannel `json:"channel" binding:"required,oneof=email whatsapp"`
	Identifier string            `json:"identifier" binding:"required"`
}

func SendOTP(c *gin.Context) {
	var req otpSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cooldown, err := otpService.Send(c.Request.Context(), req.Channel, req.Identifier)
	if err != nil {
		if errors.Is(err, otp.ErrCooldown) {
			middlewares.RecordOTPSend(string(req.Channel), "cooldown")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":            "Please wait before requesting another code",
				"cooldown_seconds": cooldown,
			})
			return
		}
		middlewares.RecordOTPSend(string(req.Channel), "error")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to send verification code"})
		return
	}

	middlewares.RecordOTPSend(string(req.Channel), "sent")
	c.JSON(http.StatusOK, gin.H{"sent": true, "cooldown_seconds": cooldown})
}

type otpVerifyRequest struct {
	Channel    models.OTPChannel `json:"channel" binding:"required,oneof=email whatsapp"`
	Identifier string            `json:"identifier" binding:"required"`
	Code       string            `json:"code" binding:"required,len=6"`
}

func VerifyOTP(c *gin.Context) {
	var req otpVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := otpService.Verify(c.Request.Context(), req.Channel, req.Identifier, req.Code)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case errors.Is(err, otp.ErrCodeMismatch):
		c.JSON(http.StatusBadRequest, gin.H{
			"verified":           false,
			"error":              "Incorrect code",
			"remaining_attempts": result.RemainingAttempts,
		})
	case errors.Is(err, otp.ErrAttemptsExhausted):
		c.JSON(http.StatusBadRequest, gin.H{
			"verified":           false,
			"error":              "Too many incorrect attempts, request a new code",
			"remaining_attempts": 0,
		})
	case errors.Is(err, otp.ErrChallengeExpired):
		c.JSON(http.StatusBadRequest, gin.H{"verified": false, "error": "Code expired, request a new one"})
	case errors.Is(err, otp.ErrNoChallenge):
		c.JSON(http.StatusBadRequest, gin.H{"verified": false, "error": "No pending verification, request a code first"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Verification failed"})
	}
}
