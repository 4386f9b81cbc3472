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

type VideoRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewVideoRepository(postgres *PostgresService, logger *zap.Logger) *VideoRepository {
	return &VideoRepository{
		db:     postgres.DB(),
		logger: logger,
	}
}

// UpsertBatch writes the latest known state of each video keyed by video id.
// Used after every successful detail fetch; failures affect the whole batch.
func (r *VideoRepository) UpsertBatch(ctx context.Context, videos []*domain.TrackedVideo) error {
	if len(videos) == 0 {
		return nil
	}

	query := `
		INSERT INTO videos (
			video_id, channel_id, title, description, thumbnail_url,
			published_at, duration_seconds, is_short,
			latest_view_count, latest_like_count, latest_comment_count,
			last_stats_update_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (video_id) DO UPDATE SET
			channel_id           = EXCLUDED.channel_id,
			title                = EXCLUDED.title,
			description          = EXCLUDED.description,
			thumbnail_url        = EXCLUDED.thumbnail_url,
			published_at         = EXCLUDED.published_at,
			duration_seconds     = EXCLUDED.duration_seconds,
			is_short             = EXCLUDED.is_short,
			latest_view_count    = EXCLUDED.latest_view_count,
			latest_like_count    = EXCLUDED.latest_like_count,
			latest_comment_count = EXCLUDED.latest_comment_count,
			last_stats_update_at = EXCLUDED.last_stats_update_at
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin video upsert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare video upsert: %w", err)
	}
	defer stmt.Close()

	for _, v := range videos {
		if _, err := stmt.ExecContext(ctx,
			v.VideoID, v.ChannelID, v.Title, v.Description, v.ThumbnailURL,
			v.PublishedAt, v.DurationSeconds, v.IsShort,
			v.LatestViewCount, v.LatestLikeCount, v.LatestCommentCount,
			v.LastStatsUpdateAt,
		); err != nil {
			return fmt.Errorf("failed to upsert video %s: %w", v.VideoID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit video upsert batch: %w", err)
	}

	r.logger.Debug("Video batch upserted", zap.Int("count", len(videos)))
	return nil
}

// ListRecentByChannels returns persisted videos for the given channels
// published after since. Serves the aggregation fallback when the primary
// provider is unavailable.
func (r *VideoRepository) ListRecentByChannels(ctx context.Context, channelIDs []string, since time.Time) ([]*domain.TrackedVideo, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT video_id, channel_id, title, COALESCE(thumbnail_url, ''),
		       published_at, COALESCE(duration_seconds, 0), is_short,
		       latest_view_count, latest_like_count, latest_comment_count
		FROM videos
		WHERE channel_id = ANY($1)
	`
	args := []any{pq.Array(channelIDs)}
	if !since.IsZero() {
		query += ` AND published_at > $2`
		args = append(args, since)
	}
	query += ` ORDER BY published_at DESC LIMIT 1000`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent videos: %w", err)
	}
	defer rows.Close()

	var videos []*domain.TrackedVideo
	for rows.Next() {
		var (
			v           domain.TrackedVideo
			publishedAt sql.NullTime
		)
		if err := rows.Scan(
			&v.VideoID, &v.ChannelID, &v.Title, &v.ThumbnailURL,
			&publishedAt, &v.DurationSeconds, &v.IsShort,
			&v.LatestViewCount, &v.LatestLikeCount, &v.LatestCommentCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan video row: %w", err)
		}
		if publishedAt.Valid {
			v.PublishedAt = publishedAt.Time
		}
		videos = append(videos, &v)
	}

	return videos, rows.Err()
}
