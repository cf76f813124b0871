// Package telegram connects the bot to the Telegram Bot API using long
// polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/joescharf/teambot/internal/chat"
)

// Config holds the transport settings.
type Config struct {
	Token          string
	APIEndpoint    string // empty for the public Bot API
	TimeoutSeconds int
	Debug          bool
}

// botAPI is the part of *tgbotapi.BotAPI the client uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client sends and receives chat messages through Telegram.
type Client struct {
	api     botAPI
	timeout int
	log     *slog.Logger
}

// New authenticates with the Bot API and returns a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	api.Debug = cfg.Debug
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("authorized on telegram", "bot", api.Self.UserName)
	return newClient(api, cfg.TimeoutSeconds, logger), nil
}

func newClient(api botAPI, timeout int, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, timeout: timeout, log: logger}
}

// Send delivers a reply. Keyboard and RemoveKeyboard map onto Telegram reply
// keyboards. The Bot API client takes no context, so ctx is only checked
// before the request starts.
func (c *Client) Send(ctx context.Context, r chat.Reply) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("telegram send to %d: %w", r.ChatID, err)
	}
	msg := tgbotapi.NewMessage(r.ChatID, r.Text)
	switch {
	case len(r.Keyboard) > 0:
		buttons := make([]tgbotapi.KeyboardButton, len(r.Keyboard))
		for i, label := range r.Keyboard {
			buttons[i] = tgbotapi.NewKeyboardButton(label)
		}
		kb := tgbotapi.NewOneTimeReplyKeyboard(buttons)
		kb.ResizeKeyboard = true
		msg.ReplyMarkup = kb
	case r.RemoveKeyboard:
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	}
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", r.ChatID, err)
	}
	return nil
}

// Run polls for updates and passes each text message to handle, one at a
// time, until ctx is cancelled. Sequential handling keeps each user's
// messages in order.
func (c *Client) Run(ctx context.Context, handle func(context.Context, chat.Inbound)) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.timeout
	updates := c.api.GetUpdatesChan(u)
	defer c.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			in, ok := toInbound(upd)
			if !ok {
				continue
			}
			handle(ctx, in)
		}
	}
}

// toInbound converts a text message update. Other update types are skipped.
func toInbound(upd tgbotapi.Update) (chat.Inbound, bool) {
	m := upd.Message
	if m == nil || m.From == nil || m.Chat == nil || m.Text == "" {
		return chat.Inbound{}, false
	}
	return chat.Inbound{
		UserID:    m.From.ID,
		ChatID:    m.Chat.ID,
		Username:  m.From.UserName,
		FirstName: m.From.FirstName,
		Text:      m.Text,
	}, true
}
