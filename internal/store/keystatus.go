package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trendwatch/trendwatch-go/internal/domain"
	"go.uber.org/zap"
)

// KeyStatusRepository persists the per-day usage state of each upstream API
// key, one row per key name. Secret values never touch this table.
type KeyStatusRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewKeyStatusRepository(postgres *PostgresService, logger *zap.Logger) *KeyStatusRepository {
	return &KeyStatusRepository{
		db:     postgres.DB(),
		logger: logger,
	}
}

// FetchOrCreate returns the persisted status for a key name, inserting a
// zeroed row on first reference.
func (r *KeyStatusRepository) FetchOrCreate(ctx context.Context, name string) (*domain.CredentialStatus, error) {
	query := `
		INSERT INTO api_key_daily_status (api_key, calls_made_today, is_failed_today, daily_use_percent)
		VALUES ($1, 0, FALSE, 0.0)
		ON CONFLICT (api_key) DO UPDATE SET api_key = EXCLUDED.api_key
		RETURNING api_key, calls_made_today, is_failed_today,
		          COALESCE(last_failed_pt_date, ''), COALESCE(last_used_pt_date, ''),
		          daily_use_percent
	`

	var status domain.CredentialStatus
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&status.Name,
		&status.CallsMadeToday,
		&status.IsFailedToday,
		&status.LastFailedDate,
		&status.LastUsedDate,
		&status.DailyUsePercent,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch-or-create key status for %s: %w", name, err)
	}

	return &status, nil
}

// UpdateUsage persists the counter and derived percentage after getKey,
// stamped with the reference-timezone date the counters belong to.
func (r *KeyStatusRepository) UpdateUsage(ctx context.Context, name string, callsMadeToday int, dailyUsePercent float64, usedDate string) error {
	query := `
		UPDATE api_key_daily_status
		SET calls_made_today = $2, daily_use_percent = $3, last_used_pt_date = $4
		WHERE api_key = $1
	`

	if _, err := r.db.ExecContext(ctx, query, name, callsMadeToday, dailyUsePercent, usedDate); err != nil {
		return fmt.Errorf("failed to update usage for key %s: %w", name, err)
	}
	return nil
}

// MarkFailed flags the key for the rest of the current reference-timezone day.
func (r *KeyStatusRepository) MarkFailed(ctx context.Context, name, failedDate string, dailyUsePercent float64) error {
	query := `
		UPDATE api_key_daily_status
		SET is_failed_today = TRUE, last_failed_pt_date = $2, daily_use_percent = $3
		WHERE api_key = $1
	`

	if _, err := r.db.ExecContext(ctx, query, name, failedDate, dailyUsePercent); err != nil {
		return fmt.Errorf("failed to mark key %s failed: %w", name, err)
	}
	return nil
}

// ResetAll zeroes every counter and clears every failure flag; called once
// per day boundary.
func (r *KeyStatusRepository) ResetAll(ctx context.Context) (int64, error) {
	query := `
		UPDATE api_key_daily_status
		SET calls_made_today = 0, is_failed_today = FALSE, daily_use_percent = 0.0,
		    last_used_pt_date = NULL
	`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reset key statuses: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}
