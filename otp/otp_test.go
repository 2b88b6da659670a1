package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout-service/models"
)

type memStore struct {
	records []*models.OTPRecord
	nextID  int
}

func (m *memStore) Live(_ context.Context, identifier string, channel models.OTPChannel) (*models.OTPRecord, error) {
	for i := len(m.records) - 1; i >= 0; i-- {
		rec := m.records[i]
		if rec.Identifier == identifier && rec.Channel == channel && !rec.Verified {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) LastSentAt(_ context.Context, identifier string, channel models.OTPChannel) (time.Time, error) {
	var last time.Time
	for _, rec := range m.records {
		if rec.Identifier == identifier && rec.Channel == channel && rec.LastSentAt.After(last) {
			last = rec.LastSentAt
		}
	}
	return last, nil
}

func (m *memStore) Consume(_ context.Context, identifier string, channel models.OTPChannel) error {
	for _, rec := range m.records {
		if rec.Identifier == identifier && rec.Channel == channel {
			rec.Verified = true
		}
	}
	return nil
}

func (m *memStore) Create(_ context.Context, rec *models.OTPRecord) error {
	m.nextID++
	rec.ID = m.nextID
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *memStore) IncrementAttempts(_ context.Context, id int) error {
	for _, rec := range m.records {
		if rec.ID == id {
			rec.Attempts++
		}
	}
	return nil
}

func (m *memStore) MarkVerified(_ context.Context, id int, at time.Time) error {
	for _, rec := range m.records {
		if rec.ID == id {
			rec.Verified = true
			rec.VerifiedAt = &at
		}
	}
	return nil
}

func (m *memStore) VerifiedSince(_ context.Context, identifier string, channel models.OTPChannel, cutoff time.Time) (bool, error) {
	for _, rec := range m.records {
		if rec.Identifier == identifier && rec.Channel == channel &&
			rec.VerifiedAt != nil && !rec.VerifiedAt.Before(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

type captureDeliverer struct {
	codes []string
}

func (d *captureDeliverer) DeliverOTP(_ context.Context, _ models.OTPChannel, _ string, code string) error {
	d.codes = append(d.codes, code)
	return nil
}

func newTestService() (*Service, *memStore, *captureDeliverer, *time.Time) {
	store := &memStore{}
	deliverer := &captureDeliverer{}
	svc := NewService(store, deliverer, "test-secret", 30*time.Second, 5*time.Minute, 3)
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	return svc, store, deliverer, &clock
}

const email = "asha@example.com"

func TestSendDeliversSixDigitCode(t *testing.T) {
	svc, _, deliverer, _ := newTestService()

	cooldown, err := svc.Send(context.Background(), models.OTPChannelEmail, email)
	require.NoError(t, err)
	assert.Equal(t, 30, cooldown)
	require.Len(t, deliverer.codes, 1)
	assert.Regexp(t, `^\d{6}$`, deliverer.codes[0])
}

func TestResendWithinCooldownGeneratesNothing(t *testing.T) {
	svc, _, deliverer, clock := newTestService()

	_, err := svc.Send(context.Background(), models.OTPChannelEmail, email)
	require.NoError(t, err)

	*clock = clock.Add(10 * time.Second)
	wait, err := svc.Send(context.Background(), models.OTPChannelEmail, email)
	assert.ErrorIs(t, err, ErrCooldown)
	assert.Greater(t, wait, 0)
	assert.Len(t, deliverer.codes, 1, "no new code inside the cooldown window")
}

func TestResendSupersedesOldCode(t *testing.T) {
	svc, _, deliverer, clock := newTestService()
	ctx := context.Background()

	_, err := svc.Send(ctx, models.OTPChannelEmail, email)
	require.NoError(t, err)
	oldCode := deliverer.codes[0]

	*clock = clock.Add(31 * time.Second)
	_, err = svc.Send(ctx, models.OTPChannelEmail, email)
	require.NoError(t, err)
	newCode := deliverer.codes[1]

	// The superseded code is dead even if it happens to differ.
	if oldCode != newCode {
		_, err = svc.Verify(ctx, models.OTPChannelEmail, email, oldCode)
		assert.Error(t, err)
	}

	result, err := svc.Verify(ctx, models.OTPChannelEmail, email, newCode)
	require.NoError(t, err)
	assert.True(t, result.Verified)
}

func TestVerifyHappyPath(t *testing.T) {
	svc, _, deliverer, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Send(ctx, models.OTPChannelEmail, email)
	require.NoError(t, err)

	result, err := svc.Verify(ctx, models.OTPChannelEmail, email, deliverer.codes[0])
	require.NoError(t, err)
	assert.True(t, result.Verified)

	verified, err := svc.IsVerified(ctx, models.OTPChannelEmail, email)
	require.NoError(t, err)
	assert.True(t, verified)
}

func TestAttemptExhaustionKillsCorrectCode(t *testing.T) {
	svc, _, deliverer, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Send(ctx, models.OTPChannelEmail, email)
	require.NoError(t, err)
	code := deliverer.codes[0]

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	result, err := svc.Verify(ctx, models.OTPChannelEmail, email, wrong)
	assert.ErrorIs(t, err, ErrCodeMismatch)
	assert.Equal(t, 2, result.RemainingAttempts)

	result, err = svc.Verify(ctx, models.OTPChannelEmail, email, wrong)
	assert.ErrorIs(t, err, ErrCodeMismatch)
	assert.Equal(t, 1, result.RemainingAttempts)

	result, err = svc.Verify(ctx, models.OTPChannelEmail, email, wrong)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, 0, result.RemainingAttempts)

	// The correct code must fail now: the record is invalidated.
	_, err = svc.Verify(ctx, models.OTPChannelEmail, email, code)
	assert.Error(t, err)

	verified, err := svc.IsVerified(ctx, models.OTPChannelEmail, email)
	require.NoError(t, err)
	assert.False(t, verified)
}

func TestExpiredCodeRejected(t *testing.T) {
	svc, _, deliverer, clock := newTestService()
	ctx := context.Background()

	_, err := svc.Send(ctx, models.OTPChannelEmail, email)
	require.NoError(t, err)

	*clock = clock.Add(6 * time.Minute)
	_, err = svc.Verify(ctx, models.OTPChannelEmail, email, deliverer.codes[0])
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

func TestVerifyWithoutChallenge(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Verify(context.Background(), models.OTPChannelEmail, email, "123456")
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestChannelsAreIndependent(t *testing.T) {
	svc, _, deliverer, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Send(ctx, models.OTPChannelEmail, email)
	require.NoError(t, err)

	// Same identifier on another channel has its own cooldown and code.
	_, err = svc.Send(ctx, models.OTPChannelWhatsApp, email)
	require.NoError(t, err)
	assert.Len(t, deliverer.codes, 2)
}

type flakyDeliverer struct {
	fail  bool
	codes []string
}

func (d *flakyDeliverer) DeliverOTP(_ context.Context, _ models.OTPChannel, _ string, code string) error {
	if d.fail {
		return errors.New("provider down")
	}
	d.codes = append(d.codes, code)
	return nil
}

func TestFailedDeliveryStampsNoCooldown(t *testing.T) {
	store := &memStore{}
	deliverer := &flakyDeliverer{fail: true}
	svc := NewService(store, deliverer, "test-secret", 30*time.Second, 5*time.Minute, 3)
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	ctx := context.Background()

	_, err := svc.Send(ctx, models.OTPChannelEmail, email)
	require.Error(t, err)
	assert.Empty(t, store.records, "an undelivered code leaves no record behind")

	// Provider recovers: the retry is not blocked by a cooldown nothing
	// was delivered for.
	deliverer.fail = false
	cooldown, err := svc.Send(ctx, models.OTPChannelEmail, email)
	require.NoError(t, err)
	assert.Equal(t, 30, cooldown)

	require.Len(t, deliverer.codes, 1)
	result, err := svc.Verify(ctx, models.OTPChannelEmail, email, deliverer.codes[0])
	require.NoError(t, err)
	assert.True(t, result.Verified)
}
