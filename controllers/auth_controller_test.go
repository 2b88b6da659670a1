package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout-service/database"
	"checkout-service/models"
	"checkout-service/otp"
)

func TestVerificationIdentifierFollowsChannel(t *testing.T) {
	assert.Equal(t, "asha@example.com",
		verificationIdentifier(models.OTPChannelEmail, "asha@example.com", "9876543210"))
	assert.Equal(t, "9876543210",
		verificationIdentifier(models.OTPChannelWhatsApp, "asha@example.com", "9876543210"))
}

// The gate is checked against the email being registered, not against
// whatever address the caller happens to have verified.
func TestRegisterChecksVerificationOfSubmittedEmail(t *testing.T) {
	mock := withMockDB(t)

	origOTP := otpService
	otpService = otp.NewService(&otp.SQLStore{DB: database.DB}, nil,
		"test-secret", 30*time.Second, 5*time.Minute, 3)
	t.Cleanup(func() { otpService = origOTP })

	// The lookup must use the submitted account email.
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM otp_records").
		WithArgs("victim@example.com", "email", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	body, err := json.Marshal(map[string]any{
		"name":    "Attacker",
		"email":   "victim@example.com",
		"phone":   "9876543210",
		"channel": "email",
	})
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/register", Register)

	w := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, httpReq)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
