package otp

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"checkout-service/models"
)

// SQLStore keeps OTP records in the otp_records table.
type SQLStore struct {
	DB *sql.DB
}

func (s *SQLStore) Live(ctx context.Context, identifier string, channel models.OTPChannel) (*models.OTPRecord, error) {
	var rec models.OTPRecord
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, identifier, channel, otp_hash, expires_at, attempts, verified, last_sent_at
		FROM otp_records
		WHERE identifier = ? AND channel = ? AND verified = FALSE
		ORDER BY id DESC
		LIMIT 1
	`, identifier, channel).Scan(
		&rec.ID, &rec.Identifier, &rec.Channel, &rec.OTPHash,
		&rec.ExpiresAt, &rec.Attempts, &rec.Verified, &rec.LastSentAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLStore) LastSentAt(ctx context.Context, identifier string, channel models.OTPChannel) (time.Time, error) {
	var last sql.NullTime
	err := s.DB.QueryRowContext(ctx, `
		SELECT MAX(last_sent_at) FROM otp_records
		WHERE identifier = ? AND channel = ?
	`, identifier, channel).Scan(&last)
	if err != nil {
		return time.Time{}, err
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time, nil
}

func (s *SQLStore) Consume(ctx context.Context, identifier string, channel models.OTPChannel) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE otp_records SET verified = TRUE
		WHERE identifier = ? AND channel = ? AND verified = FALSE
	`, identifier, channel)
	return err
}

func (s *SQLStore) Create(ctx context.Context, rec *models.OTPRecord) error {
	result, err := s.DB.ExecContext(ctx, `
		INSERT INTO otp_records (identifier, channel, otp_hash, expires_at, attempts, verified, last_sent_at)
		VALUES (?, ?, ?, ?, 0, FALSE, ?)
	`, rec.Identifier, rec.Channel, rec.OTPHash, rec.ExpiresAt, rec.LastSentAt)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = int(id)
	return nil
}

func (s *SQLStore) IncrementAttempts(ctx context.Context, id int) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE otp_records SET attempts = attempts + 1 WHERE id = ?
	`, id)
	return err
}

func (s *SQLStore) MarkVerified(ctx context.Context, id int, at time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE otp_records SET verified = TRUE, verified_at = ? WHERE id = ?
	`, at, id)
	return err
}

func (s *SQLStore) VerifiedSince(ctx context.Context, identifier string, channel models.OTPChannel, cutoff time.Time) (bool, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM otp_records
		WHERE identifier = ? AND channel = ? AND verified_at IS NOT NULL AND verified_at >= ?
	`, identifier, channel, cutoff).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
