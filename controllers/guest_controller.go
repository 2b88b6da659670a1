package controllers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"checkout-service/database"
	"checkout-service/models"
)

type guestRequest struct {
	SessionID string                  `json:"session_id" binding:"required"`
	Name      string                  `json:"name"`
	Email     string                  `json:"email"`
	Phone     string                  `json:"phone"`
	Address   *models.ShippingAddress `json:"address"`
}

// UpsertGuest provisions or refreshes the guest identity for a
// client-persisted session id. Repeat calls from the same session update
// the one row instead of creating duplicates.
func UpsertGuest(c *gin.Context) {
	var req guestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	guestID, err := upsertGuestIdentity(c.Request.Context(), database.DB, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save guest identity"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"guest_user_id": guestID})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsertGuestIdentity(ctx context.Context, db execer, req guestRequest) (int, error) {
	var addressJSON any
	if req.Address != nil {
		data, err := json.Marshal(req.Address)
		if err != nil {
			return 0, err
		}
		addressJSON = data
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO guest_identities (session_id, name, email, phone, last_address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			email = VALUES(email),
			phone = VALUES(phone),
			last_address = COALESCE(VALUES(last_address), last_address),
			updated_at = NOW()
	`, req.SessionID, req.Name, req.Email, req.Phone, addressJSON)
	if err != nil {
		return 0, err
	}

	var guestID int
	err = db.QueryRowContext(ctx, `
		SELECT id FROM guest_identities WHERE session_id = ?
	`, req.SessionID).Scan(&guestID)
	return guestID, err
}
