package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/trendwatch/trendwatch-go/internal/domain"
	"go.uber.org/zap"
)

type ChannelRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewChannelRepository(postgres *PostgresService, logger *zap.Logger) *ChannelRepository {
	return &ChannelRepository{
		db:     postgres.DB(),
		logger: logger,
	}
}

// Upsert writes the latest channel metadata keyed by the YouTube channel id,
// advancing last_fetched_at. Calling twice with identical data leaves one row.
func (r *ChannelRepository) Upsert(ctx context.Context, ch *domain.TrackedChannel) error {
	query := `
		INSERT INTO channels (
			channel_id, title, handle, description, thumbnail_url,
			subscriber_count, view_count, video_count,
			uploads_playlist_id, published_at, last_fetched_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (channel_id) DO UPDATE SET
			title               = EXCLUDED.title,
			handle              = COALESCE(NULLIF(EXCLUDED.handle, ''), channels.handle),
			description         = EXCLUDED.description,
			thumbnail_url       = EXCLUDED.thumbnail_url,
			subscriber_count    = EXCLUDED.subscriber_count,
			view_count          = EXCLUDED.view_count,
			video_count         = EXCLUDED.video_count,
			uploads_playlist_id = EXCLUDED.uploads_playlist_id,
			published_at        = EXCLUDED.published_at,
			last_fetched_at     = EXCLUDED.last_fetched_at
	`

	_, err := r.db.ExecContext(ctx, query,
		ch.ChannelID, ch.Title, ch.Handle, ch.Description, ch.ThumbnailURL,
		ch.SubscriberCount, ch.ViewCount, ch.VideoCount,
		ch.UploadsPlaylistID, nullableTime(ch.PublishedAt), ch.LastFetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert channel %s: %w", ch.ChannelID, err)
	}
	return nil
}

// GetByIDs returns the persisted rows for the given channel ids; missing
// channels are simply absent from the result.
func (r *ChannelRepository) GetByIDs(ctx context.Context, channelIDs []string) (map[string]*domain.TrackedChannel, error) {
	result := make(map[string]*domain.TrackedChannel)
	if len(channelIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT channel_id, title, COALESCE(handle, ''), COALESCE(description, ''),
		       COALESCE(thumbnail_url, ''), subscriber_count, view_count, video_count,
		       COALESCE(uploads_playlist_id, ''), published_at, last_fetched_at
		FROM channels
		WHERE channel_id = ANY($1)
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(channelIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ch          domain.TrackedChannel
			publishedAt sql.NullTime
			fetchedAt   sql.NullTime
		)
		if err := rows.Scan(
			&ch.ChannelID, &ch.Title, &ch.Handle, &ch.Description,
			&ch.ThumbnailURL, &ch.SubscriberCount, &ch.ViewCount, &ch.VideoCount,
			&ch.UploadsPlaylistID, &publishedAt, &fetchedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %w", err)
		}
		if publishedAt.Valid {
			ch.PublishedAt = publishedAt.Time
		}
		if fetchedAt.Valid {
			ch.LastFetchedAt = fetchedAt.Time
		}
		result[ch.ChannelID] = &ch
	}

	return result, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
