// Package notify delivers trade and signal notifications to external channels.
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

	"crypto-trader/internal/models"
	"crypto-trader/internal/resilience"
	"crypto-trader/pkg/utils"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendSignal(ctx context.Context, signal models.Signal) error
	SendTrade(ctx context.Context, trade models.Trade) error
	SendError(ctx context.Context, err error, context string) error
}

// Channel defines the interface for a notification channel.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Symbol    string
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationSignal NotificationType = "signal"
	NotificationTrade  NotificationType = "trade"
	NotificationError  NotificationType = "error"
	NotificationInfo   NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll        NotificationLevel = "all"
	LevelTradesOnly NotificationLevel = "trades_only" // signals and executed trades
	LevelErrorsOnly NotificationLevel = "errors_only"
)

// Config holds notification settings.
type Config struct {
	Level    string         `mapstructure:"level"`
	Terminal bool           `mapstructure:"terminal"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// WebhookConfig holds webhook channel settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram bot channel settings.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// ValidLevel reports whether level is a known filter. Empty means all.
func ValidLevel(level string) bool {
	switch NotificationLevel(level) {
	case "", LevelAll, LevelTradesOnly, LevelErrorsOnly:
		return true
	}
	return false
}

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []Channel
	level    NotificationLevel
	mu       sync.RWMutex
}

// NewMultiNotifier creates a MultiNotifier with the channels enabled in cfg.
// Remote channels are guarded with retry and a circuit breaker. The
// terminal channel is not added here since it needs a writer.
func NewMultiNotifier(cfg Config) *MultiNotifier {
	mn := &MultiNotifier{
		channels: make([]Channel, 0),
		level:    NotificationLevel(cfg.Level),
	}

	if mn.level == "" {
		mn.level = LevelAll
	}

	breaker := resilience.DefaultCircuitBreakerConfig()
	retry := resilience.DefaultRetry()
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, Guard(NewWebhookNotifier(cfg.Webhook), breaker, retry))
	}
	if cfg.Telegram.Enabled {
		mn.channels = append(mn.channels, Guard(NewTelegramNotifier(cfg.Telegram), breaker, retry))
	}

	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch Channel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Channels returns the names of the registered channels.
func (mn *MultiNotifier) Channels() []string {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	names := make([]string, 0, len(mn.channels))
	for _, ch := range mn.channels {
		names = append(names, ch.Name())
	}
	return names
}

func (mn *MultiNotifier) shouldSend(notifType NotificationType) bool {
	switch mn.level {
	case LevelTradesOnly:
		return notifType == NotificationTrade || notifType == NotificationSignal
	case LevelErrorsOnly:
		return notifType == NotificationError
	default:
		return true
	}
}

// Send sends a notification to all enabled channels. Every channel is
// attempted; failures are joined into one error.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if ch.IsEnabled() {
			if err := ch.Send(ctx, n); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendSignal sends a trade signal notification.
func (mn *MultiNotifier) SendSignal(ctx context.Context, signal models.Signal) error {
	title := fmt.Sprintf("%s signal: %s", signal.Type, signal.Symbol)
	message := fmt.Sprintf(
		"Confidence: %s\nEntry: %s\nTarget: %s\nStop: %s\nR:R: %s",
		utils.FormatConfidence(signal.Confidence),
		utils.FormatPrice(signal.EntryPrice),
		utils.FormatPrice(signal.TargetPrice),
		utils.FormatPrice(signal.StopLoss),
		utils.FormatRiskReward(signal.RiskRewardRatio),
	)
	if signal.Reasoning != "" {
		message += fmt.Sprintf("\n\nReasoning: %s", signal.Reasoning)
	}

	return mn.Send(ctx, Notification{
		Type:    NotificationSignal,
		Symbol:  signal.Symbol,
		Title:   title,
		Message: message,
		Data: map[string]interface{}{
			"symbol":       signal.Symbol,
			"side":         signal.Type,
			"confidence":   signal.Confidence,
			"entry_price":  signal.EntryPrice,
			"target_price": signal.TargetPrice,
			"stop_loss":    signal.StopLoss,
			"risk_reward":  signal.RiskRewardRatio,
		},
		Timestamp: signal.CreatedAt,
	})
}

// SendTrade sends an executed trade notification.
func (mn *MultiNotifier) SendTrade(ctx context.Context, trade models.Trade) error {
	title := fmt.Sprintf("Trade executed: %s %s", trade.Side, trade.Symbol)
	message := fmt.Sprintf(
		"Quantity: %s\nPrice: %s\nCommission: %s",
		utils.FormatQuantity(trade.Quantity),
		utils.FormatUSD(trade.Price),
		utils.FormatUSD(trade.Commission),
	)

	data := map[string]interface{}{
		"id":         trade.ID,
		"symbol":     trade.Symbol,
		"side":       trade.Side,
		"quantity":   trade.Quantity.String(),
		"price":      trade.Price.String(),
		"commission": trade.Commission.String(),
	}
	if trade.RealizedPnL != nil {
		message += fmt.Sprintf("\nRealized P&L: %s", utils.FormatPnL(*trade.RealizedPnL))
		data["realized_pnl"] = trade.RealizedPnL.String()
	}

	return mn.Send(ctx, Notification{
		Type:      NotificationTrade,
		Symbol:    trade.Symbol,
		Title:     title,
		Message:   message,
		Data:      data,
		Timestamp: trade.Timestamp,
	})
}

// SendError sends an error notification.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, errContext string) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   "Error: " + errContext,
		Message: err.Error(),
		Data: map[string]interface{}{
			"context": errContext,
			"error":   err.Error(),
		},
	})
}

// WebhookNotifier sends notifications via HTTP webhook.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled returns whether the notifier is enabled.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send posts the notification as JSON.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"type":      n.Type,
		"symbol":    n.Symbol,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "CryptoTrader/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends notifications via Telegram bot.
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	baseURL  string
	client   *http.Client
}

// NewTelegramNotifier creates a new TelegramNotifier.
func NewTelegramNotifier(cfg TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		baseURL:  telegramAPI,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the name of the notifier.
func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// IsEnabled returns whether the notifier is enabled.
func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

// Send sends a notification via Telegram.
func (t *TelegramNotifier) Send(ctx context.Context, n Notification) error {
	if !t.enabled {
		return nil
	}

	text := fmt.Sprintf("<b>%s</b>\n\n%s", escapeHTML(n.Title), escapeHTML(n.Message))
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling telegram payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The request URL embeds the bot token.
		return fmt.Errorf("sending telegram message: %s", strings.ReplaceAll(err.Error(), t.botToken, "****"))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// escapeHTML escapes HTML special characters for Telegram.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// NoOpNotifier is a notifier that does nothing.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing.
func (n *NoOpNotifier) Send(ctx context.Context, notif Notification) error {
	return nil
}

// SendSignal does nothing.
func (n *NoOpNotifier) SendSignal(ctx context.Context, signal models.Signal) error {
	return nil
}

// SendTrade does nothing.
func (n *NoOpNotifier) SendTrade(ctx context.Context, trade models.Trade) error {
	return nil
}

// SendError does nothing.
func (n *NoOpNotifier) SendError(ctx context.Context, err error, context string) error {
	return nil
}
