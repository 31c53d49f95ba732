package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org/bot"

// StatusFunc renders the current refresh status for /status.
type StatusFunc func() string

type Bot struct {
	token   string
	baseURL string
	status  StatusFunc
	logger  *slog.Logger
	client  *http.Client
	offset  int64
	backoff time.Duration
}

func NewBot(token string, status StatusFunc, logger *slog.Logger) *Bot {
	return &Bot{
		token:   token,
		baseURL: telegramAPI,
		status:  status,
		logger:  logger,
		client:  &http.Client{Timeout: 40 * time.Second},
		backoff: 5 * time.Second,
	}
}

func (b *Bot) endpoint(method string) string {
	return b.baseURL + b.token + "/" + method
}

// SendMessage sends a text message to a Telegram chat.
func (b *Bot) SendMessage(chatID int64, text string) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, _ := json.Marshal(payload)

	resp, err := b.client.Post(b.endpoint("sendMessage"), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("telegram API error %d: %s", resp.StatusCode, errResp.Description)
	}
	return nil
}

// Run long-polls for commands until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("telegram bot started")
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			b.poll(ctx)
		}
	}
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

func (b *Bot) poll(ctx context.Context) {
	url := fmt.Sprintf("%s?offset=%d&timeout=30", b.endpoint("getUpdates"), b.offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		b.logger.Error("create poll request", "error", err)
		return
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		b.logger.Error("poll updates", "error", err)
		sleepCtx(ctx, b.backoff)
		return
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool     `json:"ok"`
		Description string   `json:"description"`
		Result      []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		b.logger.Error("decode updates", "error", err)
		sleepCtx(ctx, b.backoff)
		return
	}
	// 409 when another replica is polling, 401 on a bad token.
	if resp.StatusCode != http.StatusOK || !result.OK {
		b.logger.Error("poll updates rejected", "status", resp.StatusCode, "description", result.Description)
		sleepCtx(ctx, b.backoff)
		return
	}

	for _, u := range result.Result {
		b.offset = u.UpdateID + 1
		if u.Message == nil {
			continue
		}
		b.handle(u.Message.Chat.ID, strings.TrimSpace(u.Message.Text))
	}
}

func (b *Bot) handle(chatID int64, text string) {
	// Commands in groups arrive as /status@botname.
	cmd, _, _ := strings.Cut(text, "@")
	var reply string
	switch cmd {
	case "/start", "/help":
		reply = "📈 <b>OUSD Analytics Bot</b>\n\n" +
			"Commands:\n" +
			"/status: Freshness of every chart source\n" +
			"/help: Show this message"
	case "/status":
		reply = b.status()
	default:
		reply = "Unknown command. Send /help for available commands."
	}
	if err := b.SendMessage(chatID, reply); err != nil {
		b.logger.Error("reply failed", "chat_id", chatID, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
