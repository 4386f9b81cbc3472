package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/trendwatch/trendwatch-go/internal/domain"
	"go.uber.org/zap"
)

// Display names used in delivery logs and the final alert status.
const (
	ChannelEmail    = "Email"
	ChannelTelegram = "Telegram"
	ChannelDiscord  = "Discord"
)

const (
	deliverySent   = "sent"
	deliveryFailed = "failed"
)

// AlertStore is the persistence surface the dispatcher writes its outcome
// to. Satisfied by store.AlertRepository.
type AlertStore interface {
	UpdateNotification(ctx context.Context, alertID int64, status string, log []domain.DeliveryLogEntry) error
}

// Dispatcher fans one triggered alert out to every notification channel the
// user has verified. Channels are attempted concurrently and independently;
// one failing channel never blocks the others. Exactly one terminal status
// is written per alert.
type Dispatcher struct {
	email    EmailSender
	telegram TelegramSender
	discord  DiscordSender
	alerts   AlertStore
	logger   *zap.Logger
	now      func() time.Time
}

func NewDispatcher(email EmailSender, telegram TelegramSender, discord DiscordSender, alerts AlertStore, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		email:    email,
		telegram: telegram,
		discord:  discord,
		alerts:   alerts,
		logger:   logger,
		now:      time.Now,
	}
}

type attempt struct {
	channel string
	to      string
	send    func() error
}

// SendTrendAlert delivers the alert and records the outcome. The returned
// status is also persisted on the alert row along with the per-channel log.
func (d *Dispatcher) SendTrendAlert(ctx context.Context, user *domain.User, alert *domain.TriggeredAlert) (string, error) {
	renderCtx := NewRenderContext(user, alert, d.now())
	attempts := d.buildAttempts(user, renderCtx)

	if len(attempts) == 0 {
		d.logger.Info("No verified notification channels",
			zap.String("user_id", user.ID),
			zap.Int64("alert_id", alert.ID),
		)
		status := domain.AlertStatusNoChannel
		return status, d.alerts.UpdateNotification(ctx, alert.ID, status, nil)
	}

	log := make([]domain.DeliveryLogEntry, len(attempts))
	p := pool.New().WithMaxGoroutines(len(attempts))

	for idx, a := range attempts {
		idx, a := idx, a
		p.Go(func() {
			entry := domain.DeliveryLogEntry{
				Channel: a.channel,
				To:      a.to,
				At:      d.now(),
				Status:  deliverySent,
			}
			if err := a.send(); err != nil {
				entry.Status = deliveryFailed
				entry.Error = err.Error()
				d.logger.Warn("Notification channel failed",
					zap.String("channel", a.channel),
					zap.String("user_id", user.ID),
					zap.Int64("alert_id", alert.ID),
					zap.Error(err),
				)
			}
			log[idx] = entry
		})
	}
	p.Wait()

	var delivered []string
	for _, entry := range log {
		if entry.Status == deliverySent {
			delivered = append(delivered, entry.Channel)
		}
	}

	status := domain.AlertStatusFailedAll
	if len(delivered) > 0 {
		status = fmt.Sprintf("NOTIFIED (%s)", strings.Join(delivered, ", "))
	}

	d.logger.Info("Alert dispatched",
		zap.Int64("alert_id", alert.ID),
		zap.String("user_id", user.ID),
		zap.String("status", status),
		zap.Int("attempted", len(attempts)),
		zap.Int("delivered", len(delivered)),
	)

	return status, d.alerts.UpdateNotification(ctx, alert.ID, status, log)
}

// buildAttempts gates each channel on its verified flag plus a destination
// and a configured sender. The order here fixes the order in the delivery
// log and the status string.
func (d *Dispatcher) buildAttempts(user *domain.User, renderCtx RenderContext) []attempt {
	var attempts []attempt

	if d.email != nil && user.EmailVerified && user.NotificationEmail != "" {
		to := user.NotificationEmail
		subject := Render(templateOr(user.TemplateEmailSubject, DefaultTemplateEmailSubject), renderCtx)
		preview := Render(templateOr(user.TemplateEmailPreview, DefaultTemplateEmailPreview), renderCtx)
		attempts = append(attempts, attempt{
			channel: ChannelEmail,
			to:      to,
			send: func() error {
				return d.email.Send(to, subject, emailTextBody(preview, renderCtx), emailHTMLBody(preview, renderCtx))
			},
		})
	}

	if d.telegram != nil && user.TelegramVerified && user.TelegramChatID != "" {
		to := user.TelegramChatID
		text := Render(templateOr(user.TemplateTelegram, DefaultTemplateTelegram), renderCtx)
		attempts = append(attempts, attempt{
			channel: ChannelTelegram,
			to:      to,
			send:    func() error { return d.telegram.Send(to, text) },
		})
	}

	if d.discord != nil && user.DiscordVerified && user.DiscordUserID != "" {
		to := user.DiscordUserID
		content := Render(templateOr(user.TemplateDiscord, DefaultTemplateDiscord), renderCtx)
		attempts = append(attempts, attempt{
			channel: ChannelDiscord,
			to:      to,
			send:    func() error { return d.discord.SendDM(to, content) },
		})
	}

	return attempts
}
