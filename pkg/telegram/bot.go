package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot posts plain text alerts through the Bot API. It never polls for updates.
type Bot struct {
	api    *tgbotapi.BotAPI
	chatID string
}

type options struct {
	endpoint string
	client   tgbotapi.HTTPClient
}

type Option func(*options)

// WithEndpoint overrides the API endpoint format, "<host>/bot%s/%s".
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

func WithHTTPClient(client tgbotapi.HTTPClient) Option {
	return func(o *options) { o.client = client }
}

// NewBot creates a bot that posts to chatID by default. The token is checked
// with getMe, so a revoked token fails here and not on the first alert.
func NewBot(token, chatID string, opts ...Option) (*Bot, error) {
	o := options{
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, o.endpoint, o.client)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Bot{api: api, chatID: chatID}, nil
}

// Username returns the bot account name reported by getMe.
func (b *Bot) Username() string { return b.api.Self.UserName }

// SendMessage posts text to chatID, or to the default chat when chatID is empty.
// A numeric id addresses a chat, anything else is taken as a channel username.
func (b *Bot) SendMessage(ctx context.Context, chatID, text string) error {
	if chatID == "" {
		chatID = b.chatID
	}
	if chatID == "" {
		return fmt.Errorf("telegram chat id is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel("@"+strings.TrimPrefix(chatID, "@"), text)
	}

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("telegram API error: %w", err)
	}
	return nil
}
