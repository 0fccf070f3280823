// Package notify delivers plain-text messages. Delivery is fire-and-forget:
// implementations report success as a bool and never return errors to the caller.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"watchdash/internal/models"

	"go.uber.org/zap"
)

// Notifier sends text to a channel. For Telegram the channel is a chat id;
// an empty channel means the configured default.
type Notifier interface {
	Send(ctx context.Context, channel, text string) bool
}

const defaultTelegramURL = "https://api.telegram.org"

// TelegramNotifier posts messages through the Telegram Bot API.
type TelegramNotifier struct {
	baseURL  string
	botToken string
	chatID   string
	client   *http.Client
	logger   *zap.Logger
}

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatID: default target chat/group/channel ID
func NewTelegramNotifier(botToken, chatID string, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		baseURL:  defaultTelegramURL,
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, channel, text string) bool {
	if channel == "" {
		channel = t.chatID
	}
	if t.botToken == "" || channel == "" {
		t.logger.Warn("telegram: bot token or chat id missing, message dropped")
		return false
	}

	body, err := json.Marshal(map[string]string{
		"chat_id": channel,
		"text":    text,
	})
	if err != nil {
		return false
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.logger.Warn("telegram: create request", zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Warn("telegram: send", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.logger.Warn("telegram: unexpected status", zap.Int("status", resp.StatusCode))
		return false
	}
	t.logger.Debug("telegram: message sent", zap.String("chat_id", channel))
	return true
}

// LogNotifier writes messages to the log. Used when Telegram is not configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, channel, text string) bool {
	n.logger.Info("notify", zap.String("channel", channel), zap.String("text", text))
	return true
}

// New picks the Telegram notifier when enabled, otherwise the log notifier.
func New(cfg models.TelegramConfig, logger *zap.Logger) Notifier {
	if cfg.Enabled {
		return NewTelegramNotifier(cfg.BotToken, cfg.ChatID, logger)
	}
	return NewLogNotifier(logger)
}

// SignalAlerter sends one message per symbol when its status label changes to a firing one.
// Repeated cycles with the same label stay silent.
type SignalAlerter struct {
	mu       sync.Mutex
	notifier Notifier
	channel  string
	last     map[string]string
	logger   *zap.Logger
}

func NewSignalAlerter(n Notifier, channel string, logger *zap.Logger) *SignalAlerter {
	return &SignalAlerter{
		notifier: n,
		channel:  channel,
		last:     make(map[string]string),
		logger:   logger,
	}
}

// Observe inspects one cycle's rows and returns how many alerts were delivered.
func (a *SignalAlerter) Observe(ctx context.Context, rows []models.StatusRow) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	sent := 0
	for _, row := range rows {
		if row.Status == models.LabelNoData {
			continue
		}
		prev, seen := a.last[row.Ticker]
		a.last[row.Ticker] = row.Status
		if !row.Fired() || (seen && prev == row.Status) {
			continue
		}
		if a.notifier.Send(ctx, a.channel, FormatAlert(row)) {
			sent++
		} else {
			a.logger.Warn("signal alert not delivered", zap.String("symbol", row.Ticker), zap.String("status", row.Status))
		}
	}
	return sent
}

// FormatAlert renders a status row as a short message.
func FormatAlert(row models.StatusRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (%s)\n", row.Status, row.Name, row.Ticker)
	fmt.Fprintf(&b, "close %.2f", row.Close)
	if row.DrawdownPct != nil {
		fmt.Fprintf(&b, " | DD %.2f%%", *row.DrawdownPct)
	}
	if row.RSI != nil {
		fmt.Fprintf(&b, " | RSI %.1f", *row.RSI)
	}
	if row.TPBand != "" {
		fmt.Fprintf(&b, "\nTP band %s", row.TPBand)
	}
	return b.String()
}
