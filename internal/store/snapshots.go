package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trendwatch/trendwatch-go/internal/domain"
	"go.uber.org/zap"
)

// SnapshotRepository writes the append-only stats history. Rows are never
// updated or deleted here.
type SnapshotRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSnapshotRepository(postgres *PostgresService, logger *zap.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:     postgres.DB(),
		logger: logger,
	}
}

func (r *SnapshotRepository) Insert(ctx context.Context, snap *domain.VideoStatsSnapshot) error {
	query := `
		INSERT INTO video_stats_history (video_id, checked_at, view_count, like_count, comment_count)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		snap.VideoID, snap.CheckedAt, snap.ViewCount, snap.LikeCount, snap.CommentCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert stats snapshot for video %s: %w", snap.VideoID, err)
	}
	return nil
}
