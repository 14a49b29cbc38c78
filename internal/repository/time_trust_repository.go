package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stemsi/exstem-client/internal/model"
)

// TimeTrustRepository owns the time_trust_records table: one
// (server_time, device_time) anchor per local account.
type TimeTrustRepository struct {
	db *sql.DB
}

// NewTimeTrustRepository creates a new TimeTrustRepository.
func NewTimeTrustRepository(db *sql.DB) *TimeTrustRepository {
	return &TimeTrustRepository{db: db}
}

// Save overwrites the trust anchor for the user.
func (r *TimeTrustRepository) Save(ctx context.Context, rec model.TimeTrustRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO time_trust_records (user_email, server_time, device_time)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_email) DO UPDATE SET
		   server_time = excluded.server_time,
		   device_time = excluded.device_time`,
		rec.UserEmail, encodeTime(rec.ServerTime), encodeTime(rec.DeviceTime))
	if err != nil {
		return fmt.Errorf("save time trust record: %w", err)
	}
	return nil
}

// Get returns the trust anchor, or ErrNotFound if none was ever captured.
func (r *TimeTrustRepository) Get(ctx context.Context, userEmail string) (model.TimeTrustRecord, error) {
	var (
		rec                    model.TimeTrustRecord
		serverTime, deviceTime string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_email, server_time, device_time
		 FROM time_trust_records WHERE user_email = ?`,
		userEmail,
	).Scan(&rec.UserEmail, &serverTime, &deviceTime)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TimeTrustRecord{}, ErrNotFound
	}
	if err != nil {
		return model.TimeTrustRecord{}, fmt.Errorf("get time trust record: %w", err)
	}

	if rec.ServerTime, err = decodeTime(serverTime); err != nil {
		return model.TimeTrustRecord{}, fmt.Errorf("decode server_time: %w", err)
	}
	if rec.DeviceTime, err = decodeTime(deviceTime); err != nil {
		return model.TimeTrustRecord{}, fmt.Errorf("decode device_time: %w", err)
	}
	return rec, nil
}

// DeleteAll removes every trust anchor across all local accounts.
func (r *TimeTrustRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM time_trust_records`)
	if err != nil {
		return fmt.Errorf("wipe time trust records: %w", err)
	}
	return nil
}
