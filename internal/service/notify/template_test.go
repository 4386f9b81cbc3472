package notify

import (
	"strings"
	"testing"
	"time"
)

func TestRenderSubstitutesAllPlaceholders(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := RenderContext{
		VideoTitle:  "Big Launch",
		ChannelName: "Rocket Channel",
		Views:       1500000,
		Likes:       90000,
		Comments:    4000,
		VideoURL:    "https://www.youtube.com/watch?v=abc",
		PublishedAt: now.Add(-5 * time.Hour),
		Now:         now,
		GroupName:   "Space",
		UserName:    "Pat",
	}

	got := Render("{user_name}: {video_title} by {channel_name} ({views}/{likes}/{comments}) {time_ago} in {group_name} {video_url}", ctx)
	want := "Pat: Big Launch by Rocket Channel (1500000/90000/4000) 5h ago in Space https://www.youtube.com/watch?v=abc"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestRenderLeavesUnknownPlaceholders(t *testing.T) {
	got := Render("{video_title} {no_such_thing}", RenderContext{VideoTitle: "X"})
	if got != "X {no_such_thing}" {
		t.Errorf("got %q", got)
	}
}

func TestCountsRenderAsPlainDecimals(t *testing.T) {
	got := Render("{views} views", RenderContext{Views: 1500000})
	if got != "1500000 views" {
		t.Errorf("got %q, counts must not carry grouping", got)
	}
}

func TestEmailBodiesEscapeUserContent(t *testing.T) {
	ctx := RenderContext{
		VideoTitle:  `<script>alert("x")</script>`,
		ChannelName: "Ch",
		Now:         time.Now(),
		PublishedAt: time.Now().Add(-time.Hour),
	}
	body := emailHTMLBody("preview", ctx)
	if strings.Contains(body, "<script>") {
		t.Error("video title must be escaped in the HTML body")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Error("escaped title missing from the HTML body")
	}
}

func TestTemplateOr(t *testing.T) {
	if got := templateOr("  ", "fallback"); got != "fallback" {
		t.Errorf("blank custom template should fall back, got %q", got)
	}
	if got := templateOr("custom", "fallback"); got != "custom" {
		t.Errorf("got %q", got)
	}
}
