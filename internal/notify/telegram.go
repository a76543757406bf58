package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"matchpulse/internal/model"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ChatResolver maps a user to their Telegram chat. The second return is
// false when the user has no linked chat.
type ChatResolver interface {
	TelegramChatID(ctx context.Context, userID string) (int64, bool, error)
}

// TelegramChannel delivers fire events as Telegram messages.
type TelegramChannel struct {
	api   telegramAPI
	chats ChatResolver
}

// NewTelegramChannel creates the channel from a bot token.
func NewTelegramChannel(token string, chats ChatResolver) (*TelegramChannel, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &TelegramChannel{api: api, chats: chats}, nil
}

// NewTelegramChannelWithAPI creates the channel with a custom API
// implementation (useful for testing).
func NewTelegramChannelWithAPI(api telegramAPI, chats ChatResolver) *TelegramChannel {
	return &TelegramChannel{api: api, chats: chats}
}

// Name implements Channel.
func (c *TelegramChannel) Name() string { return "telegram" }

// Enabled implements Channel.
func (c *TelegramChannel) Enabled(f model.Filter) bool { return f.TelegramEnabled }

// Deliver sends the formatted fire event to the user's linked chat.
// A user without a linked chat is a delivery failure for this channel only.
func (c *TelegramChannel) Deliver(ctx context.Context, ev model.FireEvent) error {
	chatID, ok, err := c.chats.TelegramChatID(ctx, ev.Filter.UserID)
	if err != nil {
		return fmt.Errorf("resolve chat: %w", err)
	}
	if !ok {
		return fmt.Errorf("user %s has no linked telegram chat", ev.Filter.UserID)
	}

	msg := tgbotapi.NewMessage(chatID, FormatFireMessage(ev))
	msg.DisableWebPagePreview = true
	sent, err := c.api.Send(msg)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if sent.MessageID == 0 {
		return fmt.Errorf("send message: no message id in response")
	}
	return nil
}
