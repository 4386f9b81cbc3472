package notify

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramSender delivers one alert message to a chat.
type TelegramSender interface {
	Send(chatID, text string) error
}

// TelegramBotSender sends through the Bot API using Markdown formatting.
type TelegramBotSender struct {
	bot    *tgbotapi.BotAPI
	logger *zap.Logger
}

func NewTelegramBotSender(token string, logger *zap.Logger) (*TelegramBotSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))
	return &TelegramBotSender{bot: bot, logger: logger}, nil
}

func (s *TelegramBotSender) Send(chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid Telegram chat id %q: %w", chatID, err)
	}

	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = false

	if _, err := s.bot.Send(msg); err != nil {
		s.logger.Error("Telegram send failed", zap.String("chat_id", chatID), zap.Error(err))
		return err
	}
	return nil
}
