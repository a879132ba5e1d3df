package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTelegramAPI is the Bot API root.
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	BotToken string

	// APIURL overrides the Bot API root, mainly for tests.
	APIURL string

	Timeout    time.Duration
	HTTPClient *http.Client
}

// Telegram sends messages through the Telegram Bot API.
type Telegram struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
}

// NewTelegram creates a Telegram channel.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram bot token cannot be empty")
	}
	api := strings.TrimRight(cfg.APIURL, "/")
	if api == "" {
		api = DefaultTelegramAPI
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Telegram{
		endpoint: fmt.Sprintf("%s/bot%s/sendMessage", api, cfg.BotToken),
		timeout:  cfg.Timeout,
		http:     hc,
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers msg to every recipient. Failures are joined.
func (t *Telegram) Send(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		return nil
	}
	text := msg.Text
	if msg.Subject != "" {
		text = msg.Subject + "\n\n" + msg.Text
	}

	var errs []error
	for _, chatID := range msg.Recipients {
		if err := t.send(ctx, chatID, text); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Telegram) send(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		// the URL embeds the bot token, keep it out of the error
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("send: %w", uerr.Err)
		}
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	var out sendMessageResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return fmt.Errorf("status %d: decode response: %w", resp.StatusCode, err)
	}
	if !out.OK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, out.Description)
	}
	return nil
}
