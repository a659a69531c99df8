package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
)

// TelegramChannel connects to the Telegram Bot API via long polling.
type TelegramChannel struct {
	bot        *telego.Bot
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// NewTelegramChannel creates a Telegram channel from a bot token.
func NewTelegramChannel(token string) (*TelegramChannel, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramChannel{bot: bot, pollDone: make(chan struct{})}, nil
}

// Name identifies the provider.
func (c *TelegramChannel) Name() models.Channel {
	return models.ChannelTelegram
}

// Send delivers a text message. The recipient is the chat id.
func (c *TelegramChannel) Send(ctx context.Context, recipient, text string) (string, error) {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: telegram recipient %q is not a chat id", models.ErrEmptyRecipient, recipient)
	}
	msg, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	if err != nil {
		return "", fmt.Errorf("failed to send telegram message to %d: %w", chatID, err)
	}
	return strconv.Itoa(msg.MessageID), nil
}

// Start begins long polling and normalizes private text messages.
func (c *TelegramChannel) Start(ctx context.Context, handle func(models.InboundMessage)) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start telegram long polling: %w", err)
	}

	go func() {
		defer close(c.pollDone)
		for update := range updates {
			msg := update.Message
			if msg == nil || msg.Text == "" || msg.Chat.Type != telego.ChatTypePrivate {
				continue
			}
			displayName := msg.Chat.FirstName
			if msg.From != nil && msg.From.FirstName != "" {
				displayName = msg.From.FirstName
			}
			handle(models.InboundMessage{
				Channel:           models.ChannelTelegram,
				ContactExternalID: strconv.FormatInt(msg.Chat.ID, 10),
				ProviderMessageID: strconv.Itoa(msg.MessageID),
				DisplayName:       displayName,
				Body:              msg.Text,
				Kind:              models.MessageKindText,
				Timestamp:         time.Unix(int64(msg.Date), 0),
			})
		}
	}()

	slog.Info("TelegramChannel.Start: long polling running")
	return nil
}

// Stop cancels polling and waits for the pump to exit.
func (c *TelegramChannel) Stop() error {
	if c.pollCancel != nil {
		c.pollCancel()
		<-c.pollDone
	}
	return nil
}
