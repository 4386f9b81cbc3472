package notify

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordSender delivers one alert as a direct message.
type DiscordSender interface {
	SendDM(userID, content string) error
}

// DiscordBotSender opens a DM channel per recipient and posts the message.
// The session is REST-only; no gateway connection is opened for outbound
// messages.
type DiscordBotSender struct {
	session *discordgo.Session
	logger  *zap.Logger
}

func NewDiscordBotSender(token string, logger *zap.Logger) (*DiscordBotSender, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Discord session: %w", err)
	}
	return &DiscordBotSender{session: session, logger: logger}, nil
}

func (s *DiscordBotSender) SendDM(userID, content string) error {
	channel, err := s.session.UserChannelCreate(userID)
	if err != nil {
		s.logger.Error("Discord DM channel create failed",
			zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to open DM channel for %s: %w", userID, err)
	}

	if _, err := s.session.ChannelMessageSend(channel.ID, content); err != nil {
		s.logger.Error("Discord send failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

func (s *DiscordBotSender) Close() error {
	return s.session.Close()
}
