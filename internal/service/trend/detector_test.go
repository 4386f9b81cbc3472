package trend

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/trendwatch/trendwatch-go/internal/config"
	"github.com/trendwatch/trendwatch-go/internal/domain"
	apperrors "github.com/trendwatch/trendwatch-go/pkg/errors"
	"go.uber.org/zap"
)

type fakeUserStore struct {
	users []*domain.User
}

func (f *fakeUserStore) ListAlertEligible(context.Context) ([]*domain.User, error) {
	return f.users, nil
}

type fakeVideoSource struct {
	mu       sync.Mutex
	byChan   map[string][]*domain.VideoDetails
	err      error
	fetches  int
	fetchLog []string
}

func (f *fakeVideoSource) GetRecentVideos(_ context.Context, channelID string, _ time.Time) ([]*domain.VideoDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	f.fetchLog = append(f.fetchLog, channelID)
	if f.err != nil {
		return nil, f.err
	}
	return f.byChan[channelID], nil
}

type fakeVideoRepo struct {
	mu       sync.Mutex
	upserted int
	stored   []*domain.TrackedVideo
}

func (f *fakeVideoRepo) UpsertBatch(_ context.Context, videos []*domain.TrackedVideo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted += len(videos)
	return nil
}

func (f *fakeVideoRepo) ListRecentByChannels(context.Context, []string, time.Time) ([]*domain.TrackedVideo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored, nil
}

type fakeAlertRepo struct {
	mu       sync.Mutex
	inserted []*domain.TriggeredAlert
	err      error
	nextID   int64
}

func (f *fakeAlertRepo) Insert(_ context.Context, alert *domain.TriggeredAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.nextID++
	alert.ID = f.nextID
	f.inserted = append(f.inserted, alert)
	return nil
}

type fakeSnapshotRepo struct {
	mu       sync.Mutex
	inserted []*domain.VideoStatsSnapshot
}

func (f *fakeSnapshotRepo) Insert(_ context.Context, snap *domain.VideoStatsSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, snap)
	return nil
}

type fakeSender struct {
	mu        sync.Mutex
	delivered []*domain.TriggeredAlert
}

func (f *fakeSender) SendTrendAlert(_ context.Context, _ *domain.User, alert *domain.TriggeredAlert) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, alert)
	return "NOTIFIED (Email)", nil
}

type fakeRunCache struct {
	mu        sync.Mutex
	locked    bool
	lockBusy  bool
	cooldowns map[string]bool
}

func newFakeRunCache() *fakeRunCache {
	return &fakeRunCache{cooldowns: make(map[string]bool)}
}

func (f *fakeRunCache) AcquireLock(context.Context, string, time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockBusy {
		return false, nil
	}
	f.locked = true
	return true, nil
}

func (f *fakeRunCache) ReleaseLock(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = false
	return nil
}

func (f *fakeRunCache) MarkCooldown(_ context.Context, key string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cooldowns[key] = true
	return nil
}

func (f *fakeRunCache) InCooldown(_ context.Context, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cooldowns[key]
}

type detectorFixture struct {
	detector  *Detector
	users     *fakeUserStore
	source    *fakeVideoSource
	videos    *fakeVideoRepo
	alerts    *fakeAlertRepo
	snapshots *fakeSnapshotRepo
	sender    *fakeSender
	cache     *fakeRunCache
}

func newDetectorFixture() *detectorFixture {
	f := &detectorFixture{
		users:     &fakeUserStore{},
		source:    &fakeVideoSource{byChan: make(map[string][]*domain.VideoDetails)},
		videos:    &fakeVideoRepo{},
		alerts:    &fakeAlertRepo{},
		snapshots: &fakeSnapshotRepo{},
		sender:    &fakeSender{},
		cache:     newFakeRunCache(),
	}
	cfg := config.DetectorConfig{
		CronSpec:      "*/5 * * * *",
		LookbackHours: 24,
		AlertCooldown: 6 * time.Hour,
		RunLockTTL:    10 * time.Minute,
	}
	f.detector = NewDetector(f.users, f.source, f.videos, f.alerts, f.snapshots, f.sender, f.cache, cfg, zap.NewNop())
	return f
}

func ruleUser(minViews int64) *domain.User {
	return &domain.User{
		ID:            "u1",
		Name:          "Pat",
		AlertsEnabled: true,
		RuleGroupsJSON: `[{"id":"g1","name":"Big Hits","channels":["UC1"],` +
			`"params":{"min_views":` + strconv.FormatInt(minViews, 10) + `}}]`,
	}
}

func recentVideo(id string, views int64) *domain.VideoDetails {
	v := &domain.VideoDetails{ChannelTitle: "Chan One"}
	v.VideoID = id
	v.ChannelID = "UC1"
	v.Title = "Video " + id
	v.PublishedAt = time.Now().Add(-2 * time.Hour)
	v.LatestViewCount = views
	v.LatestLikeCount = views / 20
	return v
}

func TestRunOnceDetectsAndDispatches(t *testing.T) {
	f := newDetectorFixture()
	f.users.users = []*domain.User{ruleUser(1000000)}
	f.source.byChan["UC1"] = []*domain.VideoDetails{
		recentVideo("hot", 1500000),
		recentVideo("cold", 500000),
	}

	if err := f.detector.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(f.alerts.inserted) != 1 {
		t.Fatalf("alerts = %d, want 1", len(f.alerts.inserted))
	}
	alert := f.alerts.inserted[0]
	if alert.VideoID != "hot" {
		t.Errorf("alerted video = %q, want hot", alert.VideoID)
	}
	if alert.Status != domain.AlertStatusPending {
		t.Errorf("insert status = %q", alert.Status)
	}
	if got := alert.ParametersMatched["min_views"]; got != "Met (1500000 >= 1000000)" {
		t.Errorf("breakdown = %q", got)
	}
	if len(f.sender.delivered) != 1 || f.sender.delivered[0].ID != alert.ID {
		t.Error("the inserted alert should be dispatched")
	}
	if len(f.snapshots.inserted) != 1 || f.snapshots.inserted[0].VideoID != "hot" {
		t.Error("a stats snapshot should be recorded for the match")
	}
	if f.videos.upserted != 2 {
		t.Errorf("videos upserted = %d, want 2", f.videos.upserted)
	}
}

func TestRunOnceCooldownSuppressesRepeat(t *testing.T) {
	f := newDetectorFixture()
	f.users.users = []*domain.User{ruleUser(1000)}
	f.source.byChan["UC1"] = []*domain.VideoDetails{recentVideo("v1", 5000)}

	if err := f.detector.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.detector.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(f.alerts.inserted) != 1 {
		t.Fatalf("alerts = %d, want 1 (second run deduped)", len(f.alerts.inserted))
	}
	if len(f.sender.delivered) != 1 {
		t.Errorf("deliveries = %d, want 1", len(f.sender.delivered))
	}
}

func TestRunOnceSkipsWhenLockBusy(t *testing.T) {
	f := newDetectorFixture()
	f.users.users = []*domain.User{ruleUser(1)}
	f.source.byChan["UC1"] = []*domain.VideoDetails{recentVideo("v1", 100)}
	f.cache.lockBusy = true

	if err := f.detector.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.source.fetches != 0 {
		t.Error("a locked run must not touch the upstream")
	}
	if len(f.alerts.inserted) != 0 {
		t.Error("a locked run must not create alerts")
	}
}

func TestRunOnceSkipsMalformedRuleGroups(t *testing.T) {
	f := newDetectorFixture()
	bad := &domain.User{ID: "bad", AlertsEnabled: true, RuleGroupsJSON: "{not json"}
	good := ruleUser(1000)
	f.users.users = []*domain.User{bad, good}
	f.source.byChan["UC1"] = []*domain.VideoDetails{recentVideo("v1", 5000)}

	if err := f.detector.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.alerts.inserted) != 1 {
		t.Fatalf("alerts = %d, want 1 from the valid user", len(f.alerts.inserted))
	}
	if f.alerts.inserted[0].UserID != "u1" {
		t.Errorf("alert user = %q", f.alerts.inserted[0].UserID)
	}
}

func TestRunOnceFallsBackToStoredVideos(t *testing.T) {
	f := newDetectorFixture()
	f.users.users = []*domain.User{ruleUser(1000)}
	f.source.err = apperrors.NewKeyRotationError("all keys exhausted", 429, nil)

	stored := recentVideo("vstored", 9000)
	f.videos.stored = []*domain.TrackedVideo{&stored.TrackedVideo}

	if err := f.detector.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.alerts.inserted) != 1 {
		t.Fatalf("alerts = %d, want 1 from stored stats", len(f.alerts.inserted))
	}
	if f.alerts.inserted[0].VideoID != "vstored" {
		t.Errorf("alert video = %q", f.alerts.inserted[0].VideoID)
	}
}

func TestRunOnceChannelFetchedOncePerSweep(t *testing.T) {
	f := newDetectorFixture()
	other := ruleUser(500)
	other.ID = "u2"
	f.users.users = []*domain.User{ruleUser(1000), other}
	f.source.byChan["UC1"] = []*domain.VideoDetails{recentVideo("v1", 5000)}

	if err := f.detector.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.source.fetches != 1 {
		t.Errorf("fetches = %d, want 1 shared fetch", f.source.fetches)
	}
	if len(f.alerts.inserted) != 2 {
		t.Errorf("alerts = %d, want one per user", len(f.alerts.inserted))
	}
}

func TestRunOnceAlertInsertFailureSkipsDispatch(t *testing.T) {
	f := newDetectorFixture()
	f.users.users = []*domain.User{ruleUser(1000)}
	f.source.byChan["UC1"] = []*domain.VideoDetails{recentVideo("v1", 5000)}
	f.alerts.err = errors.New("insert failed")

	if err := f.detector.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.sender.delivered) != 0 {
		t.Error("an unrecorded alert must not be dispatched")
	}
	if len(f.cache.cooldowns) != 0 {
		t.Error("a failed insert must not enter cooldown")
	}
}

func TestRunOnceReleasesLock(t *testing.T) {
	f := newDetectorFixture()
	f.users.users = []*domain.User{ruleUser(1000)}

	if err := f.detector.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.cache.locked {
		t.Error("the run lock should be released after the sweep")
	}
}

func TestRunOnceUsesConfiguredDefaultLookback(t *testing.T) {
	f := newDetectorFixture()
	cfg := config.DetectorConfig{
		CronSpec:      "*/5 * * * *",
		LookbackHours: 1,
		AlertCooldown: 6 * time.Hour,
		RunLockTTL:    10 * time.Minute,
	}
	detector := NewDetector(f.users, f.source, f.videos, f.alerts, f.snapshots, f.sender, f.cache, cfg, zap.NewNop())

	// No per-user window, so the configured one-hour default applies.
	f.users.users = []*domain.User{ruleUser(1000)}
	old := recentVideo("old", 5000)
	old.PublishedAt = time.Now().Add(-3 * time.Hour)
	f.source.byChan["UC1"] = []*domain.VideoDetails{old}

	if err := detector.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.alerts.inserted) != 0 {
		t.Error("a video outside the configured default window must not alert")
	}

	// A per-user window still overrides the configured default.
	wide := ruleUser(1000)
	wide.LookbackHours = 6
	f.users.users = []*domain.User{wide}
	f.cache.cooldowns = map[string]bool{}

	if err := detector.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.alerts.inserted) != 1 {
		t.Errorf("alerts = %d, want 1 inside the per-user window", len(f.alerts.inserted))
	}
}

func TestRunOnceRespectsLookbackWindow(t *testing.T) {
	f := newDetectorFixture()
	user := ruleUser(1000)
	user.LookbackHours = 1
	f.users.users = []*domain.User{user}

	old := recentVideo("old", 5000)
	old.PublishedAt = time.Now().Add(-3 * time.Hour)
	f.source.byChan["UC1"] = []*domain.VideoDetails{old}

	if err := f.detector.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.alerts.inserted) != 0 {
		t.Error("a video outside the lookback window must not alert")
	}
}
