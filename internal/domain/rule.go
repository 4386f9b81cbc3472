package domain

import "encoding/json"

// RuleParams holds the thresholds of one rule group. A nil field means the
// threshold is not configured and is simply not evaluated.
type RuleParams struct {
	MinViews      *int64   `json:"min_views,omitempty"`
	MinLikes      *int64   `json:"min_likes,omitempty"`
	MinComments   *int64   `json:"min_comments,omitempty"`
	LikeViewRatio *float64 `json:"like_view_ratio,omitempty"`
}

// Empty reports whether no threshold at all is configured. An empty rule
// never matches; it would otherwise flag every video in the window.
func (p RuleParams) Empty() bool {
	return p.MinViews == nil && p.MinLikes == nil && p.MinComments == nil && p.LikeViewRatio == nil
}

// RuleGroup is a named set of tracked channels plus thresholds, embedded as
// JSON in the user record. It has no lifecycle of its own.
type RuleGroup struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Channels []string   `json:"channels"`
	Params   RuleParams `json:"params"`
}

// ParseRuleGroups decodes the user's rule-group blob. Malformed JSON is the
// caller's signal to skip the user.
func ParseRuleGroups(raw string) ([]RuleGroup, error) {
	var groups []RuleGroup
	if err := json.Unmarshal([]byte(raw), &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// MatchedParams maps each satisfied threshold to a human-readable breakdown
// such as "Met (1500000 >= 1000000)", kept for audit and display.
type MatchedParams map[string]string
