package telegram

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
	"github.com/easayliu/alist-photo-relay/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Client struct {
	config *config.TelegramConfig
	bot    *tgbotapi.BotAPI
}

func NewClient(cfg *config.TelegramConfig) *Client {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logger.Error("Failed to create Telegram bot", "error", err)
		return &Client{
			config: cfg,
			bot:    nil,
		}
	}

	logger.Info("Telegram bot connected successfully", "username", bot.Self.UserName)

	return &Client{
		config: cfg,
		bot:    bot,
	}
}

// cleanUTF8 确保文本是有效的UTF-8编码
func cleanUTF8(text string) string {
	if !utf8.ValidString(text) {
		return strings.ToValidUTF8(text, "?")
	}
	return text
}

func (c *Client) SendMessage(chatID int64, text string) error {
	if c.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	msg := tgbotapi.NewMessage(chatID, cleanUTF8(text))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// SendNotification 发送给所有配置的会话，单个会话失败不影响其他会话
func (c *Client) SendNotification(msg *NotificationMessage) error {
	if !c.config.Enabled || len(c.config.ChatIDs) == 0 {
		logger.Debug("Telegram disabled or no chat IDs configured")
		return nil
	}

	text := FormatNotification(msg)

	var failed int
	for _, chatID := range c.config.ChatIDs {
		if err := c.SendMessage(chatID, text); err != nil {
			logger.Error("Failed to send notification", "chatID", chatID, "error", err)
			failed++
			continue
		}
		logger.Debug("Notification sent", "chatID", chatID, "type", msg.Type)
	}

	if failed == len(c.config.ChatIDs) {
		return fmt.Errorf("notification %s not delivered to any chat", msg.Type)
	}
	return nil
}

// FormatNotification 渲染 HTML 消息
func FormatNotification(msg *NotificationMessage) string {
	icon := "ℹ️"
	switch msg.Type {
	case "task:started":
		icon = "▶️"
	case "task:stopped":
		icon = "⏹"
	case "task:recovering":
		icon = "🔄"
	case "task:recovered":
		icon = "✅"
	case "task:error", "download:failed":
		icon = "❌"
	case "cycle:completed", "download:completed":
		icon = "📷"
	case "digest":
		icon = "📊"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>\n\n", icon, html.EscapeString(msg.Title))
	if msg.Content != "" {
		b.WriteString(html.EscapeString(msg.Content))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "⏰ %s", msg.Timestamp.Format("2006-01-02 15:04:05"))
	return b.String()
}
