package trend

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/trendwatch/trendwatch-go/internal/domain"
)

func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }

var cutoff = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func videoAt(published time.Time, views, likes, comments int64) *domain.TrackedVideo {
	return &domain.TrackedVideo{
		VideoID:            "v1",
		PublishedAt:        published,
		LatestViewCount:    views,
		LatestLikeCount:    likes,
		LatestCommentCount: comments,
	}
}

func TestEvaluateAllThresholdsMet(t *testing.T) {
	video := videoAt(cutoff.Add(time.Hour), 1500000, 90000, 4000)
	params := domain.RuleParams{
		MinViews:    i64(1000000),
		MinLikes:    i64(50000),
		MinComments: i64(1000),
	}

	matched, ok := Evaluate(video, params, cutoff)
	if !ok {
		t.Fatal("expected a match")
	}

	want := domain.MatchedParams{
		"min_views":    "Met (1500000 >= 1000000)",
		"min_likes":    "Met (90000 >= 50000)",
		"min_comments": "Met (4000 >= 1000)",
	}
	if diff := cmp.Diff(want, matched); diff != "" {
		t.Errorf("matched params mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateOneThresholdUnmet(t *testing.T) {
	video := videoAt(cutoff.Add(time.Hour), 1500000, 100, 4000)
	params := domain.RuleParams{
		MinViews: i64(1000000),
		MinLikes: i64(50000),
	}

	if matched, ok := Evaluate(video, params, cutoff); ok || matched != nil {
		t.Fatal("a single unmet threshold must fail the whole group")
	}
}

func TestEvaluateCutoff(t *testing.T) {
	params := domain.RuleParams{MinViews: i64(1)}

	before := videoAt(cutoff.Add(-time.Minute), 100, 0, 0)
	if _, ok := Evaluate(before, params, cutoff); ok {
		t.Error("video published before the cutoff must not match")
	}

	exact := videoAt(cutoff, 100, 0, 0)
	if _, ok := Evaluate(exact, params, cutoff); ok {
		t.Error("video published exactly at the cutoff must not match")
	}

	after := videoAt(cutoff.Add(time.Second), 100, 0, 0)
	if _, ok := Evaluate(after, params, cutoff); !ok {
		t.Error("video published after the cutoff should match")
	}
}

func TestEvaluateEmptyParamsNeverMatch(t *testing.T) {
	video := videoAt(cutoff.Add(time.Hour), 10000000, 500000, 10000)
	if _, ok := Evaluate(video, domain.RuleParams{}, cutoff); ok {
		t.Fatal("a group with no thresholds must never match")
	}
}

func TestEvaluateLikeViewRatio(t *testing.T) {
	params := domain.RuleParams{LikeViewRatio: f64(0.05)}

	matched, ok := Evaluate(videoAt(cutoff.Add(time.Hour), 1000, 60, 0), params, cutoff)
	if !ok {
		t.Fatal("ratio 0.06 should satisfy 0.05")
	}
	if got := matched["like_view_ratio"]; got != "Met (0.060 >= 0.050)" {
		t.Errorf("breakdown = %q", got)
	}

	if _, ok := Evaluate(videoAt(cutoff.Add(time.Hour), 1000, 40, 0), params, cutoff); ok {
		t.Error("ratio 0.04 must not satisfy 0.05")
	}
}

func TestEvaluateRatioWithZeroViews(t *testing.T) {
	params := domain.RuleParams{LikeViewRatio: f64(0.01)}
	if _, ok := Evaluate(videoAt(cutoff.Add(time.Hour), 0, 100, 0), params, cutoff); ok {
		t.Fatal("zero views must leave the ratio threshold unmet")
	}
}

func TestEvaluateThresholdEquality(t *testing.T) {
	params := domain.RuleParams{MinViews: i64(1000)}
	if _, ok := Evaluate(videoAt(cutoff.Add(time.Hour), 1000, 0, 0), params, cutoff); !ok {
		t.Fatal("exactly meeting a threshold counts as met")
	}
}

func TestEvaluateNilVideo(t *testing.T) {
	if _, ok := Evaluate(nil, domain.RuleParams{MinViews: i64(1)}, cutoff); ok {
		t.Fatal("nil video must not match")
	}
}
