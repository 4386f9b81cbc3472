package keypool

import (
	"context"
	"sync"
	"time"

	"github.com/trendwatch/trendwatch-go/internal/config"
	"github.com/trendwatch/trendwatch-go/internal/constants"
	"github.com/trendwatch/trendwatch-go/internal/domain"
	"github.com/trendwatch/trendwatch-go/internal/util"
	"go.uber.org/zap"
)

// StatusStore is the persistence surface the pool needs. Satisfied by
// store.KeyStatusRepository; kept narrow so tests can stub it.
type StatusStore interface {
	FetchOrCreate(ctx context.Context, name string) (*domain.CredentialStatus, error)
	UpdateUsage(ctx context.Context, name string, callsMadeToday int, dailyUsePercent float64, usedDate string) error
	MarkFailed(ctx context.Context, name, failedDate string, dailyUsePercent float64) error
	ResetAll(ctx context.Context) (int64, error)
}

// KeyPool rotates upstream API keys round-robin, tracking per-day usage and
// failures. Counters reset lazily at the reference-timezone day boundary.
// When the status store is unreachable at startup the pool serves keys from
// in-memory state alone for the rest of the process.
type KeyPool struct {
	mu            sync.Mutex
	keys          []domain.Credential
	lastUsedIndex int
	lastResetDate string
	statusRepo    StatusStore
	logger        *zap.Logger
	now           func() time.Time
	degraded      bool
	loaded        bool
}

func NewKeyPool(keys []config.APIKey, statusRepo StatusStore, logger *zap.Logger) *KeyPool {
	creds := make([]domain.Credential, 0, len(keys))
	for _, k := range keys {
		creds = append(creds, domain.Credential{Name: k.Name, Secret: k.Secret})
	}

	return &KeyPool{
		keys:          creds,
		lastUsedIndex: -1,
		statusRepo:    statusRepo,
		logger:        logger,
		now:           time.Now,
	}
}

// WithClock overrides the time source. Test use only.
func (p *KeyPool) WithClock(now func() time.Time) *KeyPool {
	p.now = now
	return p
}

// GetKey returns the next usable key secret in rotation and counts the call
// against it. ok is false only when every key has failed for the day.
func (p *KeyPool) GetKey(ctx context.Context) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ensureCurrentLocked(ctx)

	n := len(p.keys)
	if n == 0 {
		return "", false
	}

	for attempt := 1; attempt <= n; attempt++ {
		idx := (p.lastUsedIndex + attempt) % n
		key := &p.keys[idx]
		if key.IsFailedToday {
			continue
		}

		p.lastUsedIndex = idx
		key.CallsMadeToday++
		key.DailyUsePercent = util.ClampFloat(
			float64(key.CallsMadeToday)/float64(constants.QuotaPerKey), 0, 1)

		if !p.degraded {
			if err := p.statusRepo.UpdateUsage(ctx, key.Name, key.CallsMadeToday, key.DailyUsePercent, p.lastResetDate); err != nil {
				p.logger.Warn("Failed to persist key usage, continuing in memory",
					zap.String("key", key.Name), zap.Error(err))
			}
		}

		return key.Secret, true
	}

	p.logger.Error("All API keys exhausted for the day",
		zap.Int("total_keys", n),
		zap.String("reset_date", p.lastResetDate),
	)
	return "", false
}

// ReportFailure marks the key owning the given secret as failed for the rest
// of the day. Unknown secrets are ignored.
func (p *KeyPool) ReportFailure(ctx context.Context, secret string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ensureCurrentLocked(ctx)

	for i := range p.keys {
		key := &p.keys[i]
		if key.Secret != secret {
			continue
		}
		if key.IsFailedToday {
			return
		}

		today := util.PacificDateString(p.now())
		key.IsFailedToday = true
		key.LastFailedDate = today
		key.DailyUsePercent = 1.0

		p.logger.Warn("API key marked failed for the day",
			zap.String("key", key.Name),
			zap.String("date", today),
			zap.Int("calls_made", key.CallsMadeToday),
		)

		if !p.degraded {
			if err := p.statusRepo.MarkFailed(ctx, key.Name, today, key.DailyUsePercent); err != nil {
				p.logger.Warn("Failed to persist key failure",
					zap.String("key", key.Name), zap.Error(err))
			}
		}
		return
	}
}

// Stats reports the pool state for diagnostics and logging.
func (p *KeyPool) Stats(ctx context.Context) domain.PoolSummary {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ensureCurrentLocked(ctx)

	summary := domain.PoolSummary{
		TotalKeys:     len(p.keys),
		LastResetDate: p.lastResetDate,
		Keys:          make([]domain.CredentialStatus, 0, len(p.keys)),
	}
	for _, key := range p.keys {
		if key.IsFailedToday {
			summary.FailedToday++
		} else {
			summary.AvailableKeys++
		}
		summary.Keys = append(summary.Keys, domain.CredentialStatus{
			Name:            key.Name,
			CallsMadeToday:  key.CallsMadeToday,
			IsFailedToday:   key.IsFailedToday,
			LastFailedDate:  key.LastFailedDate,
			DailyUsePercent: key.DailyUsePercent,
		})
	}
	return summary
}

// ensureCurrentLocked loads persisted state on first use and performs the
// lazy day-boundary reset. Callers must hold p.mu.
func (p *KeyPool) ensureCurrentLocked(ctx context.Context) {
	today := util.PacificDateString(p.now())

	if !p.loaded {
		p.loadLocked(ctx, today)
	}

	if p.lastResetDate == today {
		return
	}

	for i := range p.keys {
		p.keys[i].CallsMadeToday = 0
		p.keys[i].IsFailedToday = false
		p.keys[i].DailyUsePercent = 0
	}
	p.lastUsedIndex = -1
	p.lastResetDate = today

	if !p.degraded {
		if _, err := p.statusRepo.ResetAll(ctx); err != nil {
			p.logger.Warn("Failed to persist daily key reset", zap.Error(err))
		}
	}

	p.logger.Info("Daily API key reset", zap.String("date", today), zap.Int("keys", len(p.keys)))
}

func (p *KeyPool) loadLocked(ctx context.Context, today string) {
	p.loaded = true
	p.lastResetDate = today

	for i := range p.keys {
		key := &p.keys[i]
		status, err := p.statusRepo.FetchOrCreate(ctx, key.Name)
		if err != nil {
			p.degraded = true
			p.logger.Warn("Key status store unreachable, running with in-memory state only",
				zap.String("key", key.Name), zap.Error(err))
			return
		}

		// Persisted state is only valid for the day it was written; a row
		// from a previous day is stale and starts the day at zero.
		if status.LastUsedDate == today {
			key.CallsMadeToday = status.CallsMadeToday
			key.DailyUsePercent = status.DailyUsePercent
		}
		if status.IsFailedToday && status.LastFailedDate == today {
			key.IsFailedToday = true
			key.LastFailedDate = status.LastFailedDate
		}
	}

	p.logger.Info("API key pool loaded",
		zap.Int("keys", len(p.keys)),
		zap.String("date", today),
	)
}
