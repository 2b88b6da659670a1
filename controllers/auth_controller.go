package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-sql-driver/mysql"

	"checkout-service/database"
	"checkout-service/models"
	"checkout-service/utils"
)

type registerRequest struct {
	Name    string            `json:"name" binding:"required"`
	Email   string            `json:"email" binding:"required,email"`
	Phone   string            `json:"phone" binding:"required"`
	Channel models.OTPChannel `json:"channel" binding:"required,oneof=email whatsapp"`
}

// verificationIdentifier picks the contact field the chosen channel must
// have verified. Derived from the account's own fields so a shopper cannot
// verify one address and register another.
func verificationIdentifier(channel models.OTPChannel, email, phone string) string {
	if channel == models.OTPChannelWhatsApp {
		return phone
	}
	return email
}

// Register creates an account after the verification gate has passed for
// the chosen channel. Guest checkout never reaches this handler.
func Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identifier := verificationIdentifier(req.Channel, req.Email, req.Phone)
	verified, err := otpService.IsVerified(c.Request.Context(), req.Channel, identifier)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Verification lookup failed"})
		return
	}
	if !verified {
		c.JSON(http.StatusForbidden, gin.H{"error": "Contact channel not verified"})
		return
	}

	result, err := database.DB.ExecContext(c.Request.Context(), `
		INSERT INTO users (name, email, phone, is_admin, created_at)
		VALUES (?, ?, ?, FALSE, NOW())
	`, req.Name, req.Email, req.Phone)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			c.JSON(http.StatusConflict, gin.H{"error": "Account already exists for this email"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	userID, err := result.LastInsertId()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	token, err := utils.GenerateToken(int(userID), false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue session"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user_id": userID, "token": token})
}
