package viewstats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/trendwatch/trendwatch-go/internal/config"
	"github.com/trendwatch/trendwatch-go/internal/constants"
	"github.com/trendwatch/trendwatch-go/internal/domain"
	"github.com/trendwatch/trendwatch-go/internal/util"
	apperrors "github.com/trendwatch/trendwatch-go/pkg/errors"
	"go.uber.org/zap"
)

// ChannelStats is the decoded analytics series for one channel handle.
type ChannelStats struct {
	Handle          string
	SubscriberCount int64
	TotalViews      int64
	ViewsDelta      int64
	Points          []StatPoint
}

// StatPoint is one daily sample.
type StatPoint struct {
	Date        string `json:"date"`
	Views       int64  `json:"views"`
	Subscribers int64  `json:"subscribers"`
}

type statsResponse struct {
	Handle string      `json:"handle"`
	Totals statTotals  `json:"totals"`
	Data   []StatPoint `json:"data"`
}

type statTotals struct {
	Views       int64 `json:"views"`
	Subscribers int64 `json:"subscribers"`
}

// Client talks to the secondary analytics provider. Responses arrive as
// AES-GCM sealed binary bodies; the client decrypts and decodes them. A
// circuit breaker keeps a flapping provider from stalling every run.
type Client struct {
	http    *resty.Client
	breaker *util.CircuitBreaker
	key     []byte
	nonce   []byte
	enabled bool
	logger  *zap.Logger
}

func NewClient(cfg config.ViewStatsConfig, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(constants.UpstreamTimeout).
		SetRetryCount(2).
		SetAuthToken(cfg.BearerToken).
		SetHeader("Accept", "application/octet-stream")

	return &Client{
		http: httpClient,
		breaker: util.NewCircuitBreaker(
			constants.CircuitBreakerConfig.FailureThreshold,
			constants.CircuitBreakerConfig.ResetTimeout,
			logger,
		),
		key:     cfg.DecryptKey,
		nonce:   cfg.DecryptIV,
		enabled: cfg.BearerToken != "",
		logger:  logger,
	}
}

// Enabled reports whether the provider is configured at all. A disabled
// client makes every lookup fall through to the primary provider.
func (c *Client) Enabled() bool {
	return c.enabled
}

// GetChannelStats fetches the analytics series for a channel handle over the
// given timeframe.
func (c *Client) GetChannelStats(ctx context.Context, handle, timeframe string) (*ChannelStats, error) {
	if !c.enabled {
		return nil, apperrors.NewServiceError("analytics provider not configured", "viewstats", "stats", nil)
	}
	if !c.breaker.CanExecute() {
		return nil, apperrors.NewServiceError("analytics provider circuit open", "viewstats", "stats", nil)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("handle", handle).
		SetQueryParams(map[string]string{
			"range":     rangeForTimeframe(timeframe),
			"groupBy":   constants.ViewStatsConfig.GroupBy,
			"sortOrder": constants.ViewStatsConfig.SortOrder,
		}).
		Get("/channels/{handle}/stats")
	if err != nil {
		c.breaker.RecordFailure()
		return nil, apperrors.NewServiceError("analytics request failed", "viewstats", "stats", err)
	}

	if resp.StatusCode() == 404 {
		// An unknown handle is a data condition, not a provider outage.
		c.breaker.RecordSuccess()
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("handle %s not tracked by analytics provider", handle), "channel")
	}
	if resp.IsError() {
		c.breaker.RecordFailure()
		return nil, apperrors.NewAPIError(
			fmt.Sprintf("analytics provider returned %d", resp.StatusCode()),
			resp.StatusCode(),
			map[string]any{"handle": handle},
		)
	}

	stats, err := c.decode(handle, resp.Body())
	if err != nil {
		// A payload we cannot open counts against the breaker: either the
		// provider rotated its key material or it is serving garbage.
		c.breaker.RecordFailure()
		return nil, err
	}

	c.breaker.RecordSuccess()
	c.logger.Debug("Analytics stats fetched",
		zap.String("handle", handle),
		zap.String("timeframe", timeframe),
		zap.Int("points", len(stats.Points)),
	)
	return stats, nil
}

func (c *Client) decode(handle string, body []byte) (*ChannelStats, error) {
	plaintext, err := decryptPayload(c.key, c.nonce, body)
	if err != nil {
		return nil, err
	}

	var decoded statsResponse
	if err := json.Unmarshal(plaintext, &decoded); err != nil {
		return nil, apperrors.NewDecryptionError("decrypted payload is not valid JSON", err)
	}

	stats := &ChannelStats{
		Handle:          handle,
		SubscriberCount: decoded.Totals.Subscribers,
		TotalViews:      decoded.Totals.Views,
		Points:          decoded.Data,
	}
	if n := len(decoded.Data); n > 1 {
		stats.ViewsDelta = decoded.Data[n-1].Views - decoded.Data[0].Views
	}
	return stats, nil
}

// BreakerState exposes the breaker for diagnostics.
func (c *Client) BreakerState() util.CircuitState {
	return c.breaker.State()
}

func rangeForTimeframe(timeframe string) string {
	switch timeframe {
	case domain.TimeframeLast24Hours:
		return "7"
	case domain.TimeframeLast7Days:
		return "7"
	case domain.TimeframeLast30Days:
		return "30"
	case domain.TimeframeAllTime:
		return "alltime"
	default:
		return "7"
	}
}
