// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Alessandro1981/etf-checker/internal/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

// sender is the slice of *tgbotapi.BotAPI the client needs for delivery.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// StatusFunc returns the current baselines for the /baselines command.
type StatusFunc func() models.State

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	out            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	c := newClient(bot, chatIDInt, maxRetries, retryDelayBase)
	c.bot = bot
	return c, nil
}

func newClient(out sender, chatID int64, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		out:            out,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		sleep:          sleepContext,
	}
}

// Configured reports whether the client can deliver.
func (c *Client) Configured() bool { return c != nil && c.out != nil }

func (c *Client) Name() string { return "telegram" }

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, status StatusFunc) {
	if c.bot == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message, status)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message, status StatusFunc) {
	var reply tgbotapi.MessageConfig
	switch msg.Command() {
	case "ping":
		reply = tgbotapi.NewMessage(msg.Chat.ID, "Pong")
	case "baselines":
		if status == nil {
			return
		}
		reply = tgbotapi.NewMessage(msg.Chat.ID, formatBaselines(status()))
		reply.ParseMode = "MarkdownV2"
	default:
		return
	}
	c.out.Send(reply) //nolint:errcheck
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.out.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if i == c.maxRetries-1 {
			break
		}
		if err := c.sleep(ctx, c.retryDelayBase*time.Duration(i+1)); err != nil {
			return err
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(ctx context.Context, cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Monitoring error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(ctx, text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(ctx context.Context, failureCount int) error {
	text := fmt.Sprintf("✅ *Monitoring recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(ctx, text)
}

// Send delivers a price alert.
func (c *Client) Send(ctx context.Context, title, message string) error {
	return c.sendMarkdownV2(ctx, formatAlert(title, message))
}

func formatAlert(title, message string) string {
	return fmt.Sprintf("🚨 *%s*\n\n%s", escapeMarkdownV2(title), escapeMarkdownV2(message))
}

// formatBaselines renders the baselines sorted by symbol.
func formatBaselines(state models.State) string {
	if len(state.Baselines) == 0 {
		return "No baselines recorded yet\\."
	}
	symbols := make([]string, 0, len(state.Baselines))
	for symbol := range state.Baselines {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)

	var b strings.Builder
	b.WriteString("📊 *Baselines*\n\n")
	for _, symbol := range symbols {
		price := decimal.NewFromFloat(state.Baselines[symbol]).StringFixed(2)
		fmt.Fprintf(&b, "%s: `%s`\n", escapeMarkdownV2(symbol), escapeMarkdownV2(price))
	}
	if !state.LastBaselineUpdate.IsZero() {
		updated := escapeMarkdownV2(state.LastBaselineUpdate.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "\n📅 Updated: %s\n", updated)
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
