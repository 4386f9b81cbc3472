package trend

import (
	"fmt"
	"time"

	"github.com/trendwatch/trendwatch-go/internal/domain"
)

// Evaluate decides whether a video satisfies every configured threshold of a
// rule group. It is pure: no clock, no IO. A video published at or before
// the cutoff never matches, and a group with no thresholds never matches.
//
// All configured thresholds must hold at once. The returned map carries one
// breakdown string per threshold, e.g. "Met (1500000 >= 1000000)".
func Evaluate(video *domain.TrackedVideo, params domain.RuleParams, cutoff time.Time) (domain.MatchedParams, bool) {
	if video == nil || params.Empty() {
		return nil, false
	}
	if !video.PublishedAt.After(cutoff) {
		return nil, false
	}

	matched := make(domain.MatchedParams)

	if params.MinViews != nil {
		if video.LatestViewCount < *params.MinViews {
			return nil, false
		}
		matched["min_views"] = metInt(video.LatestViewCount, *params.MinViews)
	}

	if params.MinLikes != nil {
		if video.LatestLikeCount < *params.MinLikes {
			return nil, false
		}
		matched["min_likes"] = metInt(video.LatestLikeCount, *params.MinLikes)
	}

	if params.MinComments != nil {
		if video.LatestCommentCount < *params.MinComments {
			return nil, false
		}
		matched["min_comments"] = metInt(video.LatestCommentCount, *params.MinComments)
	}

	if params.LikeViewRatio != nil {
		// A video with no views has no ratio; the threshold is unmet rather
		// than vacuously satisfied.
		if video.LatestViewCount == 0 {
			return nil, false
		}
		ratio := float64(video.LatestLikeCount) / float64(video.LatestViewCount)
		if ratio < *params.LikeViewRatio {
			return nil, false
		}
		matched["like_view_ratio"] = metFloat(ratio, *params.LikeViewRatio)
	}

	return matched, true
}

func metInt(actual, threshold int64) string {
	return fmt.Sprintf("Met (%d >= %d)", actual, threshold)
}

// Ratios read at three decimals so "0.060 >= 0.050" stays comparable at a
// glance.
func metFloat(actual, threshold float64) string {
	return fmt.Sprintf("Met (%.3f >= %.3f)", actual, threshold)
}
