package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/trendwatch/trendwatch-go/internal/domain"
	"go.uber.org/zap"
)

type AlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewAlertRepository(postgres *PostgresService, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{
		db:     postgres.DB(),
		logger: logger,
	}
}

// Insert creates the immutable alert record and fills in its id. Status
// starts at PENDING_NOTIFICATION; only UpdateNotification touches it after.
func (r *AlertRepository) Insert(ctx context.Context, alert *domain.TriggeredAlert) error {
	matched, err := json.Marshal(alert.ParametersMatched)
	if err != nil {
		return fmt.Errorf("failed to marshal matched parameters: %w", err)
	}

	query := `
		INSERT INTO triggered_alerts (
			user_id, video_id, video_title, channel_id, channel_name,
			thumbnail_url, group_id, group_name, parameters_matched,
			views_at_trigger, likes_at_trigger, comments_at_trigger,
			published_at, triggered_at, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, query,
		alert.UserID, alert.VideoID, alert.VideoTitle, alert.ChannelID, alert.ChannelName,
		alert.ThumbnailURL, alert.GroupID, alert.GroupName, matched,
		alert.ViewsAtTrigger, alert.LikesAtTrigger, alert.CommentsAtTrigger,
		alert.PublishedAt, alert.TriggeredAt, alert.Status,
	).Scan(&alert.ID)
	if err != nil {
		return fmt.Errorf("failed to insert triggered alert for video %s: %w", alert.VideoID, err)
	}

	return nil
}

// UpdateNotification writes the terminal status and the per-channel delivery
// log, exactly once, keyed by alert id.
func (r *AlertRepository) UpdateNotification(ctx context.Context, alertID int64, status string, log []domain.DeliveryLogEntry) error {
	logJSON, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal notification log: %w", err)
	}

	query := `
		UPDATE triggered_alerts
		SET status = $2, notification_log = $3
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, alertID, status, logJSON)
	if err != nil {
		return fmt.Errorf("failed to update alert %d notification state: %w", alertID, err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		r.logger.Warn("Notification update matched no alert row", zap.Int64("alert_id", alertID))
	}
	return nil
}
