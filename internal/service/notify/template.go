package notify

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/trendwatch/trendwatch-go/internal/domain"
	"github.com/trendwatch/trendwatch-go/internal/util"
)

// Default message templates, used when the user has not customized one.
const (
	DefaultTemplateTelegram = "🔥 *{video_title}*\n" +
		"by {channel_name} is trending in your group \"{group_name}\"!\n\n" +
		"👀 {views} views · 👍 {likes} likes · 💬 {comments} comments\n" +
		"Published {time_ago}\n\n" +
		"{video_url}"

	DefaultTemplateDiscord = "🔥 **{video_title}**\n" +
		"by {channel_name} is trending in your group \"{group_name}\"!\n\n" +
		"👀 {views} views · 👍 {likes} likes · 💬 {comments} comments\n" +
		"Published {time_ago}\n\n" +
		"{video_url}"

	DefaultTemplateEmailSubject = "🔥 Trending: {video_title}"

	DefaultTemplateEmailPreview = "{video_title} by {channel_name} just hit {views} views."
)

// RenderContext carries every value a template placeholder can reference.
type RenderContext struct {
	VideoTitle  string
	ChannelName string
	Views       int64
	Likes       int64
	Comments    int64
	VideoURL    string
	PublishedAt time.Time
	Now         time.Time
	GroupName   string
	UserName    string
}

// NewRenderContext builds the placeholder values for one alert.
func NewRenderContext(user *domain.User, alert *domain.TriggeredAlert, now time.Time) RenderContext {
	video := domain.TrackedVideo{VideoID: alert.VideoID}
	return RenderContext{
		VideoTitle:  alert.VideoTitle,
		ChannelName: alert.ChannelName,
		Views:       alert.ViewsAtTrigger,
		Likes:       alert.LikesAtTrigger,
		Comments:    alert.CommentsAtTrigger,
		VideoURL:    video.VideoURL(),
		PublishedAt: alert.PublishedAt,
		Now:         now,
		GroupName:   alert.GroupName,
		UserName:    user.Name,
	}
}

// Render substitutes every known placeholder in the template. Unknown
// placeholders pass through untouched so a typo is visible in the message
// instead of silently eating text.
func Render(template string, ctx RenderContext) string {
	replacer := strings.NewReplacer(
		"{video_title}", ctx.VideoTitle,
		"{channel_name}", ctx.ChannelName,
		"{views}", formatCount(ctx.Views),
		"{likes}", formatCount(ctx.Likes),
		"{comments}", formatCount(ctx.Comments),
		"{video_url}", ctx.VideoURL,
		"{time_ago}", util.CoarseTimeAgo(ctx.PublishedAt, ctx.Now),
		"{group_name}", ctx.GroupName,
		"{user_name}", ctx.UserName,
	)
	return replacer.Replace(template)
}

// templateOr returns the user's template when set, the default otherwise.
func templateOr(custom, fallback string) string {
	if strings.TrimSpace(custom) != "" {
		return custom
	}
	return fallback
}

// formatCount renders a counter as a plain decimal. Counts go into templates
// verbatim; any grouping or localization is the template author's choice.
func formatCount(n int64) string {
	return strconv.FormatInt(n, 10)
}

// emailHTMLBody renders the fixed HTML shell around the rendered preview
// line. Users customize the subject and preview; the body layout is ours.
func emailHTMLBody(preview string, ctx RenderContext) string {
	return fmt.Sprintf(`<html><body style="font-family:Arial,sans-serif;color:#222">
<p>%s</p>
<h2 style="margin:8px 0">%s</h2>
<p>by <strong>%s</strong> in your group &quot;%s&quot;</p>
<table cellpadding="4">
<tr><td>Views</td><td><strong>%s</strong></td></tr>
<tr><td>Likes</td><td><strong>%s</strong></td></tr>
<tr><td>Comments</td><td><strong>%s</strong></td></tr>
<tr><td>Published</td><td>%s</td></tr>
</table>
<p><a href="%s">Watch on YouTube</a></p>
</body></html>`,
		htmlEscape(preview),
		htmlEscape(ctx.VideoTitle),
		htmlEscape(ctx.ChannelName),
		htmlEscape(ctx.GroupName),
		formatCount(ctx.Views),
		formatCount(ctx.Likes),
		formatCount(ctx.Comments),
		util.CoarseTimeAgo(ctx.PublishedAt, ctx.Now),
		ctx.VideoURL,
	)
}

func emailTextBody(preview string, ctx RenderContext) string {
	return fmt.Sprintf("%s\n\n%s\nby %s in your group %q\n\nViews: %s\nLikes: %s\nComments: %s\nPublished %s\n\n%s\n",
		preview,
		ctx.VideoTitle,
		ctx.ChannelName,
		ctx.GroupName,
		formatCount(ctx.Views),
		formatCount(ctx.Likes),
		formatCount(ctx.Comments),
		util.CoarseTimeAgo(ctx.PublishedAt, ctx.Now),
		ctx.VideoURL,
	)
}

func htmlEscape(s string) string {
	return html.EscapeString(s)
}
