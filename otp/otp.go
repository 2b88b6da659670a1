// Package otp implements the verification gate in front of account
// creation: issue a one-time code over email or WhatsApp, verify it within
// an attempt budget, and keep at most one live challenge per
// identifier+channel pair.
package otp

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"checkout-service/models"
)

var (
	ErrCooldown          = errors.New("resend cooldown active")
	ErrNoChallenge       = errors.New("no pending verification for this identifier")
	ErrChallengeExpired  = errors.New("verification code expired")
	ErrAttemptsExhausted = errors.New("verification attempts exhausted")
	ErrCodeMismatch      = errors.New("incorrect verification code")
)

// Store persists OTP records. Implementations decide durability; the
// service owns all challenge semantics.
type Store interface {
	// Live returns the newest unexpired, unconsumed record for the pair,
	// or nil when none exists.
	Live(ctx context.Context, identifier string, channel models.OTPChannel) (*models.OTPRecord, error)
	// LastSentAt returns the most recent send time for the pair regardless
	// of record state, zero time when never sent.
	LastSentAt(ctx context.Context, identifier string, channel models.OTPChannel) (time.Time, error)
	// Consume marks every live record for the pair used up.
	Consume(ctx context.Context, identifier string, channel models.OTPChannel) error
	Create(ctx context.Context, rec *models.OTPRecord) error
	IncrementAttempts(ctx context.Context, id int) error
	// MarkVerified consumes the record and stamps a successful verification.
	MarkVerified(ctx context.Context, id int, at time.Time) error
	// VerifiedSince reports whether the pair completed a successful
	// verification at or after the cutoff.
	VerifiedSince(ctx context.Context, identifier string, channel models.OTPChannel, cutoff time.Time) (bool, error)
}

// Deliverer hands a generated code to the messaging provider for the
// chosen channel.
type Deliverer interface {
	DeliverOTP(ctx context.Context, channel models.OTPChannel, identifier, code string) error
}

type Service struct {
	store     Store
	deliver   Deliverer
	secret    []byte
	cooldown  time.Duration
	expiry    time.Duration
	maxTries  int
	verifyTTL time.Duration
	now       func() time.Time
}

func NewService(store Store, deliver Deliverer, secret string, cooldown, expiry time.Duration, maxTries int) *Service {
	return &Service{
		store:     store,
		deliver:   deliver,
		secret:    []byte(secret),
		cooldown:  cooldown,
		expiry:    expiry,
		maxTries:  maxTries,
		verifyTTL: 30 * time.Minute,
		now:       time.Now,
	}
}

// Send generates and delivers a fresh 6-digit code, superseding any prior
// live challenge for the pair. Returns the resend cooldown in seconds.
// Within the cooldown window no code is generated at all.
func (s *Service) Send(ctx context.Context, channel models.OTPChannel, identifier string) (int, error) {
	now := s.now()

	lastSent, err := s.store.LastSentAt(ctx, identifier, channel)
	if err != nil {
		return 0, err
	}
	if !lastSent.IsZero() {
		if wait := s.cooldown - now.Sub(lastSent); wait > 0 {
			return int(wait.Seconds()) + 1, ErrCooldown
		}
	}

	code, err := generateCode()
	if err != nil {
		return 0, err
	}

	// Deliver before touching the store. A provider outage must leave the
	// prior challenge live and the cooldown unstamped, so the shopper can
	// retry immediately.
	if err := s.deliver.DeliverOTP(ctx, channel, identifier, code); err != nil {
		return 0, fmt.Errorf("deliver otp: %w", err)
	}

	if err := s.store.Consume(ctx, identifier, channel); err != nil {
		return 0, err
	}

	rec := &models.OTPRecord{
		Identifier: identifier,
		Channel:    channel,
		OTPHash:    s.hash(identifier, channel, code),
		ExpiresAt:  now.Add(s.expiry),
		LastSentAt: now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return 0, err
	}
	return int(s.cooldown.Seconds()), nil
}

// Result reports a verification outcome. RemainingAttempts is meaningful
// only when Verified is false and the challenge is still live.
type Result struct {
	Verified          bool `json:"verified"`
	RemainingAttempts int  `json:"remaining_attempts"`
}

// Verify checks a submitted code against the live challenge. A correct
// code on a consumed or exhausted record still fails; the shopper must
// request a fresh code.
func (s *Service) Verify(ctx context.Context, channel models.OTPChannel, identifier, code string) (Result, error) {
	now := s.now()

	rec, err := s.store.Live(ctx, identifier, channel)
	if err != nil {
		return Result{}, err
	}
	if rec == nil {
		return Result{}, ErrNoChallenge
	}
	if now.After(rec.ExpiresAt) {
		_ = s.store.Consume(ctx, identifier, channel)
		return Result{}, ErrChallengeExpired
	}
	if rec.Attempts >= s.maxTries {
		_ = s.store.Consume(ctx, identifier, channel)
		return Result{}, ErrAttemptsExhausted
	}

	if !hmac.Equal([]byte(rec.OTPHash), []byte(s.hash(identifier, channel, code))) {
		if err := s.store.IncrementAttempts(ctx, rec.ID); err != nil {
			return Result{}, err
		}
		remaining := s.maxTries - rec.Attempts - 1
		if remaining <= 0 {
			_ = s.store.Consume(ctx, identifier, channel)
			return Result{RemainingAttempts: 0}, ErrAttemptsExhausted
		}
		return Result{RemainingAttempts: remaining}, ErrCodeMismatch
	}

	if err := s.store.MarkVerified(ctx, rec.ID, now); err != nil {
		return Result{}, err
	}
	return Result{Verified: true}, nil
}

// IsVerified reports whether the pair passed verification recently enough
// for the account-creation guard to accept it.
func (s *Service) IsVerified(ctx context.Context, channel models.OTPChannel, identifier string) (bool, error) {
	return s.store.VerifiedSince(ctx, identifier, channel, s.now().Add(-s.verifyTTL))
}

// hash binds the code to its identifier and channel so a code issued for
// one pair can never verify another.
func (s *Service) hash(identifier string, channel models.OTPChannel, code string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(identifier))
	mac.Write([]byte{0})
	mac.Write([]byte(channel))
	mac.Write([]byte{0})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
