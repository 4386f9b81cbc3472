package youtube

import (
	"testing"

	"google.golang.org/api/googleapi"
)

func TestParseISODuration(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"PT45S", 45},
		{"PT1M1S", 61},
		{"PT3M20S", 200},
		{"PT1H2M3S", 3723},
		{"P1DT2H", 93600},
		{"PT0S", 0},
		{"", 0},
		{"garbage", 0},
		{"PT1X", 0},
	}
	for _, c := range cases {
		if got := parseISODuration(c.in); got != c.want {
			t.Errorf("parseISODuration(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestIsKeyError(t *testing.T) {
	quota := &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}}}
	if !isKeyError(quota) {
		t.Error("quotaExceeded should rotate the key")
	}

	rate := &googleapi.Error{Code: 429}
	if !isKeyError(rate) {
		t.Error("429 should rotate the key")
	}

	notFound := &googleapi.Error{Code: 404}
	if isKeyError(notFound) {
		t.Error("404 must not burn a key")
	}

	badRequest := &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "invalidSearchFilter"}}}
	if isKeyError(badRequest) {
		t.Error("a non-key 403 reason must not burn a key")
	}
}

func TestNormalizeHandle(t *testing.T) {
	if got := normalizeHandle("@SomeCreator"); got != "somecreator" {
		t.Errorf("got %q", got)
	}
	if got := normalizeHandle(""); got != "" {
		t.Errorf("got %q", got)
	}
}
