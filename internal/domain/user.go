package domain

// User is the slice of the users table the pipeline consumes: eligibility,
// rule groups, lookback window, notification destinations and templates.
// Account management itself lives elsewhere.
type User struct {
	ID            string
	Name          string
	AlertsEnabled bool

	// RuleGroupsJSON is the raw filter_channels blob; parsed per run so a
	// malformed value isolates to that user.
	RuleGroupsJSON string

	// LookbackHours bounds how far back published videos are considered.
	// Zero means the default window.
	LookbackHours int

	EmailVerified     bool
	NotificationEmail string
	DiscordVerified   bool
	DiscordUserID     string
	TelegramVerified  bool
	TelegramChatID    string

	TemplateTelegram     string
	TemplateDiscord      string
	TemplateEmailSubject string
	TemplateEmailPreview string
}
