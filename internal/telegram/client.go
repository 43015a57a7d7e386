// Package telegram provides a client for sending report notifications via Telegram Bot API.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/marketmood/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendReport sends a completed report summary.
func (c *Client) SendReport(report *models.Report, ticker string) error {
	return c.sendMarkdownV2(formatReport(report, ticker))
}

// formatReport formats a report summary into a Telegram MarkdownV2 message.
func formatReport(report *models.Report, ticker string) string {
	s := report.Summary

	moodEmoji := "😐"
	if s.Score > 0.1 {
		moodEmoji = "📈"
	} else if s.Score < -0.1 {
		moodEmoji = "📉"
	}

	subject := report.Query
	if ticker != "" {
		subject = fmt.Sprintf("%s (%s)", report.Query, ticker)
	}

	message := fmt.Sprintf("%s *Market mood: %s*\n\n", moodEmoji, escapeMarkdownV2(subject))
	message += fmt.Sprintf("📅 %s\n", escapeMarkdownV2(report.GeneratedAt.Format("2006-01-02 15:04:05")))
	message += fmt.Sprintf("📰 %d headlines analyzed\n\n", report.Count)

	scoreStr := escapeMarkdownV2(fmt.Sprintf("%+.2f", s.Score))
	message += fmt.Sprintf("Score: *%s*\n", scoreStr)
	message += fmt.Sprintf("👍 %d \\| 😐 %d \\| 👎 %d\n", s.Positive, s.Neutral, s.Negative)

	if len(report.TopPositive) > 0 {
		top := report.TopPositive[0]
		message += fmt.Sprintf("\nBest: [%s](%s)\n", escapeMarkdownV2(top.Title), top.URL)
	}
	if len(report.TopNegative) > 0 {
		top := report.TopNegative[0]
		message += fmt.Sprintf("Worst: [%s](%s)\n", escapeMarkdownV2(top.Title), top.URL)
	}

	return message
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
