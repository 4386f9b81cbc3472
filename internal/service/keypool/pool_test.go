package keypool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/trendwatch/trendwatch-go/internal/config"
	"github.com/trendwatch/trendwatch-go/internal/domain"
	"go.uber.org/zap"
)

type stubStatusStore struct {
	statuses    map[string]*domain.CredentialStatus
	fetchErr    error
	markedNames []string
	resetCalls  int
}

func newStubStatusStore() *stubStatusStore {
	return &stubStatusStore{statuses: make(map[string]*domain.CredentialStatus)}
}

func (s *stubStatusStore) FetchOrCreate(_ context.Context, name string) (*domain.CredentialStatus, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if st, ok := s.statuses[name]; ok {
		return st, nil
	}
	st := &domain.CredentialStatus{Name: name}
	s.statuses[name] = st
	return st, nil
}

func (s *stubStatusStore) UpdateUsage(_ context.Context, name string, calls int, pct float64, usedDate string) error {
	if st, ok := s.statuses[name]; ok {
		st.CallsMadeToday = calls
		st.DailyUsePercent = pct
		st.LastUsedDate = usedDate
	}
	return nil
}

func (s *stubStatusStore) MarkFailed(_ context.Context, name, date string, pct float64) error {
	s.markedNames = append(s.markedNames, name)
	if st, ok := s.statuses[name]; ok {
		st.IsFailedToday = true
		st.LastFailedDate = date
		st.DailyUsePercent = pct
	}
	return nil
}

func (s *stubStatusStore) ResetAll(context.Context) (int64, error) {
	s.resetCalls++
	for _, st := range s.statuses {
		st.CallsMadeToday = 0
		st.IsFailedToday = false
		st.DailyUsePercent = 0
		st.LastUsedDate = ""
	}
	return int64(len(s.statuses)), nil
}

func testKeys(n int) []config.APIKey {
	keys := make([]config.APIKey, 0, n)
	names := []string{"KEY_1", "KEY_2", "KEY_3", "KEY_4"}
	secrets := []string{"secret-a", "secret-b", "secret-c", "secret-d"}
	for i := 0; i < n; i++ {
		keys = append(keys, config.APIKey{Name: names[i], Secret: secrets[i]})
	}
	return keys
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGetKeyRoundRobin(t *testing.T) {
	pool := NewKeyPool(testKeys(3), newStubStatusStore(), zap.NewNop()).
		WithClock(fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))

	ctx := context.Background()
	want := []string{"secret-a", "secret-b", "secret-c", "secret-a"}
	for i, w := range want {
		got, ok := pool.GetKey(ctx)
		if !ok {
			t.Fatalf("call %d: expected a key, got none", i)
		}
		if got != w {
			t.Errorf("call %d: got %q, want %q", i, got, w)
		}
	}
}

func TestGetKeySkipsFailed(t *testing.T) {
	pool := NewKeyPool(testKeys(3), newStubStatusStore(), zap.NewNop()).
		WithClock(fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	pool.ReportFailure(ctx, "secret-b")

	for i := 0; i < 4; i++ {
		got, ok := pool.GetKey(ctx)
		if !ok {
			t.Fatalf("call %d: expected a key", i)
		}
		if got == "secret-b" {
			t.Fatalf("call %d: failed key was served", i)
		}
	}
}

func TestGetKeyAllFailed(t *testing.T) {
	pool := NewKeyPool(testKeys(2), newStubStatusStore(), zap.NewNop()).
		WithClock(fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	pool.ReportFailure(ctx, "secret-a")
	pool.ReportFailure(ctx, "secret-b")

	if _, ok := pool.GetKey(ctx); ok {
		t.Fatal("expected no key when all have failed")
	}
}

func TestDayBoundaryReset(t *testing.T) {
	store := newStubStatusStore()
	// 23:30 Pacific on June 1st is 06:30 UTC on June 2nd.
	current := time.Date(2025, 6, 2, 6, 30, 0, 0, time.UTC)
	pool := NewKeyPool(testKeys(2), store, zap.NewNop()).
		WithClock(func() time.Time { return current })
	ctx := context.Background()

	pool.ReportFailure(ctx, "secret-a")
	pool.ReportFailure(ctx, "secret-b")
	if _, ok := pool.GetKey(ctx); ok {
		t.Fatal("expected exhaustion before the boundary")
	}

	// Cross into June 2nd Pacific.
	current = current.Add(time.Hour)

	got, ok := pool.GetKey(ctx)
	if !ok {
		t.Fatal("expected keys to recover after the day boundary")
	}
	if got != "secret-a" {
		t.Errorf("rotation should restart at the first key, got %q", got)
	}
	if store.resetCalls != 1 {
		t.Errorf("expected one persisted reset, got %d", store.resetCalls)
	}
}

func TestUsagePercentTracksQuota(t *testing.T) {
	pool := NewKeyPool(testKeys(1), newStubStatusStore(), zap.NewNop()).
		WithClock(fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if _, ok := pool.GetKey(ctx); !ok {
			t.Fatal("expected a key")
		}
	}

	stats := pool.Stats(ctx)
	if len(stats.Keys) != 1 {
		t.Fatalf("expected 1 key in stats, got %d", len(stats.Keys))
	}
	key := stats.Keys[0]
	if key.CallsMadeToday != 100 {
		t.Errorf("calls = %d, want 100", key.CallsMadeToday)
	}
	if key.DailyUsePercent != 0.01 {
		t.Errorf("daily use percent = %f, want 0.01", key.DailyUsePercent)
	}
}

func TestDegradedModeStillServes(t *testing.T) {
	store := newStubStatusStore()
	store.fetchErr = errors.New("connection refused")
	pool := NewKeyPool(testKeys(2), store, zap.NewNop()).
		WithClock(fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	got, ok := pool.GetKey(ctx)
	if !ok {
		t.Fatal("expected a key even with the store down")
	}
	if got != "secret-a" {
		t.Errorf("got %q, want secret-a", got)
	}

	pool.ReportFailure(ctx, "secret-a")
	if len(store.markedNames) != 0 {
		t.Error("degraded pool should not call the store")
	}
}

func TestStaleCountersZeroedOnLoad(t *testing.T) {
	store := newStubStatusStore()
	store.statuses["KEY_1"] = &domain.CredentialStatus{
		Name:            "KEY_1",
		CallsMadeToday:  9000,
		DailyUsePercent: 0.9,
		LastUsedDate:    "2025-05-31",
	}
	pool := NewKeyPool(testKeys(1), store, zap.NewNop()).
		WithClock(fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))

	stats := pool.Stats(context.Background())
	key := stats.Keys[0]
	if key.CallsMadeToday != 0 {
		t.Errorf("calls after restart on a new day = %d, want 0", key.CallsMadeToday)
	}
	if key.DailyUsePercent != 0 {
		t.Errorf("daily use percent after restart = %f, want 0", key.DailyUsePercent)
	}
}

func TestSameDayCountersSurviveRestart(t *testing.T) {
	store := newStubStatusStore()
	store.statuses["KEY_1"] = &domain.CredentialStatus{
		Name:            "KEY_1",
		CallsMadeToday:  300,
		DailyUsePercent: 0.03,
		LastUsedDate:    "2025-06-01",
	}
	pool := NewKeyPool(testKeys(1), store, zap.NewNop()).
		WithClock(fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))

	stats := pool.Stats(context.Background())
	if got := stats.Keys[0].CallsMadeToday; got != 300 {
		t.Errorf("same-day calls after restart = %d, want 300", got)
	}
}

func TestStaleFailureClearedOnLoad(t *testing.T) {
	store := newStubStatusStore()
	store.statuses["KEY_1"] = &domain.CredentialStatus{
		Name:           "KEY_1",
		IsFailedToday:  true,
		LastFailedDate: "2025-05-30",
		CallsMadeToday: 9000,
	}
	pool := NewKeyPool(testKeys(1), store, zap.NewNop()).
		WithClock(fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))

	if _, ok := pool.GetKey(context.Background()); !ok {
		t.Fatal("a failure from a previous day should not block the key")
	}
}
