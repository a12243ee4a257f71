// Package telegram delivers report messages and photos through the Bot API
// and decodes webhook updates into bot commands.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gastos/internal/log"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	OpSendMessage = "sendMessage"
	OpSendPhoto   = "sendPhoto"
	OpConnect     = "getMe"
)

// DeliveryError is returned by every failed send, including context expiry.
type DeliveryError struct {
	Op     string
	ChatID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("telegram %s to chat %d: %v", e.Op, e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// APIErrorCode returns the Bot API error code carried by err, or 0.
func APIErrorCode(err error) int {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

type Options struct {
	Token string
	// Endpoint is a format string taking the token and the method name.
	Endpoint   string
	HTTPClient *http.Client
	// Timeout bounds each HTTP call when HTTPClient is nil.
	Timeout time.Duration
}

// Client sends messages without retrying. Each call returns when the API
// answers or ctx is done, whichever comes first.
type Client struct {
	bot    *tgbotapi.BotAPI
	token  string
	logger *log.Logger
}

// NewClient verifies the token with getMe before returning.
func NewClient(opts Options, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if logger == nil {
		logger = log.Discard()
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, endpoint, httpClient)
	if err != nil {
		return nil, &DeliveryError{Op: OpConnect, Err: redact(err, opts.Token)}
	}

	logger = logger.WithComponent(log.ComponentTelegram)
	logger.Info("Telegram bot authorized", "bot_username", bot.Self.UserName)
	return &Client{bot: bot, token: opts.Token, logger: logger}, nil
}

// SendText sends an HTML parse-mode message.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if err := c.send(ctx, OpSendMessage, chatID, msg); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "Message sent", log.FieldChatID, chatID, "length", len(text))
	return nil
}

// SendPhoto uploads png with an HTML parse-mode caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "resumen.png", Bytes: png})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML

	if err := c.send(ctx, OpSendPhoto, chatID, photo); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "Photo sent", log.FieldChatID, chatID, log.FieldImageSize, humanize.Bytes(uint64(len(png))))
	return nil
}

func (c *Client) send(ctx context.Context, op string, chatID int64, msg tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Op: op, ChatID: chatID, Err: err}
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.bot.Send(msg)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return &DeliveryError{Op: op, ChatID: chatID, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			return &DeliveryError{Op: op, ChatID: chatID, Err: redact(err, c.token)}
		}
		return nil
	}
}

// redactedError hides the bot token, which net/http puts in URL errors.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, token string) error {
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<redacted>"), err: err}
}
