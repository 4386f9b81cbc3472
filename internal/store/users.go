package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trendwatch/trendwatch-go/internal/domain"
	"go.uber.org/zap"
)

type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewUserRepository(postgres *PostgresService, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     postgres.DB(),
		logger: logger,
	}
}

// ListAlertEligible returns users whose alerts are enabled and who have a
// rule-group configuration at all. Rule-group JSON is returned raw so a
// malformed blob only poisons its own user.
func (r *UserRepository) ListAlertEligible(ctx context.Context) ([]*domain.User, error) {
	query := `
		SELECT id, COALESCE(name, ''), filter_channels,
		       COALESCE(videos_published_within_hours_filter, 0),
		       email_verified, COALESCE(notification_email, ''),
		       discord_verified, COALESCE(discord_user_id, ''),
		       telegram_verified, COALESCE(telegram_chat_id, ''),
		       COALESCE(alert_template_telegram, ''),
		       COALESCE(alert_template_discord, ''),
		       COALESCE(alert_template_email_subject, ''),
		       COALESCE(alert_template_email_preview, '')
		FROM users
		WHERE alerts_enabled = TRUE
		  AND filter_channels IS NOT NULL
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert-eligible users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u := &domain.User{AlertsEnabled: true}
		if err := rows.Scan(
			&u.ID, &u.Name, &u.RuleGroupsJSON,
			&u.LookbackHours,
			&u.EmailVerified, &u.NotificationEmail,
			&u.DiscordVerified, &u.DiscordUserID,
			&u.TelegramVerified, &u.TelegramChatID,
			&u.TemplateTelegram,
			&u.TemplateDiscord,
			&u.TemplateEmailSubject,
			&u.TemplateEmailPreview,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}
