package models

import (
	"time"
)

// GuestIdentity tracks an unauthenticated shopper across checkout attempts.
// The session id is generated client-side and persisted there; the server
// upserts one row per session rather than creating duplicates.
type GuestIdentity struct {
	ID          int              `json:"id"`
	SessionID   string           `json:"session_id" binding:"required"`
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	Phone       string           `json:"phone"`
	LastAddress *ShippingAddress `json:"last_address,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type User struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

type OTPChannel string

const (
	OTPChannelEmail    OTPChannel = "email"
	OTPChannelWhatsApp OTPChannel = "whatsapp"
)

// OTPRecord stores a hashed one-time code. At most one live (unverified,
// unexpired) record exists per identifier+channel; sending a new code
// marks older ones used.
type OTPRecord struct {
	ID         int        `json:"id"`
	Identifier string     `json:"identifier"`
	Channel    OTPChannel `json:"channel"`
	OTPHash    string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Attempts   int        `json:"attempts"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	LastSentAt time.Time  `json:"last_sent_at"`
}
