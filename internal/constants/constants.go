package constants

import "time"

// Quota accounting for the primary provider. The quota is informational:
// it derives the usage percentage but never hard-caps a key.
const (
	QuotaPerKey      = 10000
	SearchQuotaCost  = 100
	DetailsQuotaCost = 1
)

// Bounds on a single channel's recent-video fetch. Three search pages of
// fifty ids cap worst-case latency and quota use per channel per run.
const (
	MaxSearchPages      = 3
	MaxResultsPerPage   = 50
	VideoDetailsBatch   = 50
	UpstreamTimeout     = 15 * time.Second
	ChannelStaleAfter   = 7 * 24 * time.Hour
	DefaultLookback     = 24 * time.Hour
	AggregateCacheTTL   = 1 * time.Hour
	ShortMaxDurationSec = 61
)

// ViewStatsConfig groups the secondary provider's fixed request shape.
var ViewStatsConfig = struct {
	GroupBy   string
	SortOrder string
}{
	GroupBy:   "daily",
	SortOrder: "ASC",
}

// CircuitBreakerConfig guards the secondary analytics provider.
var CircuitBreakerConfig = struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HealthCheckInterval time.Duration
}{
	FailureThreshold:    5,
	ResetTimeout:        2 * time.Minute,
	HealthCheckInterval: 30 * time.Second,
}
