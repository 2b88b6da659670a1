package consumers

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout-service/database"
)

func withMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	orig := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = orig
		db.Close()
	})
	return mock
}

// An elapsed payment window deletes the gateway order only when no
// persisted order has claimed it.
func TestPaymentCheckExpiresUnredeemedGatewayOrder(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectExec("DELETE FROM gateway_orders").
		WithArgs("order_stale", "order_stale").
		WillReturnResult(sqlmock.NewResult(0, 1))

	handlePaymentCheck("order_stale")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentCheckLeavesRedeemedGatewayOrderAlone(t *testing.T) {
	mock := withMockDB(t)

	// The guarded DELETE matches no rows when an order references the id.
	mock.ExpectExec("DELETE FROM gateway_orders").
		WithArgs("order_paid", "order_paid").
		WillReturnResult(sqlmock.NewResult(0, 0))

	handlePaymentCheck("order_paid")
	assert.NoError(t, mock.ExpectationsWereMet())
}
