package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"DeadManSwitch/pkg/logger"
)

// MaxMessageLength Telegram 单条消息的字符上限
const MaxMessageLength = 4096

// Message 收到的一条消息
type Message struct {
	UpdateID int
	ChatID   int64
	FromID   int64
	Text     string
	SentAt   time.Time
}

// Client Bot API 的薄封装：拉取最新消息、发送文本
type Client struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// Config 客户端参数
type Config struct {
	Token       string
	ChatID      int64
	APIEndpoint string // 形如 https://api.telegram.org/bot%s/%s
	ReadTimeout time.Duration
}

// New 创建客户端，不访问网络；Telegram 不可用时由后续调用返回错误
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("failed to create telegram bot: empty token")
	}

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	bot := &tgbotapi.BotAPI{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: cfg.ReadTimeout},
		Buffer: 100,
	}
	bot.SetAPIEndpoint(endpoint)

	return &Client{bot: bot, chatID: cfg.ChatID}, nil
}

// Verify 调用 getMe 校验 token，返回机器人用户名
func (c *Client) Verify(ctx context.Context) (string, error) {
	type result struct {
		user tgbotapi.User
		err  error
	}

	done := make(chan result, 1)
	go func() {
		user, err := c.bot.GetMe()
		done <- result{user: user, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("failed to verify telegram bot: %w", r.err)
		}
		logger.Logger.Info("Telegram bot verified", zap.String("username", r.user.UserName))
		return r.user.UserName, nil
	}
}

// Latest 取最新一条消息，chatID 非 0 时只看该会话
// 不确认 offset，同一条消息在 Telegram 保留期内会被重复读到
func (c *Client) Latest(ctx context.Context, chatID int64) (Message, bool, error) {
	updates, err := c.updates(ctx)
	if err != nil {
		return Message{}, false, err
	}
	msg, ok := newestMessage(updates, chatID)
	return msg, ok, nil
}

// FetchLatest 取配置会话里的最新消息
func (c *Client) FetchLatest(ctx context.Context) (Message, bool, error) {
	return c.Latest(ctx, c.chatID)
}

// SendText 发送文本，超长时按字符切分为多条，空文本忽略
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range ChunkMessage(text, MaxMessageLength) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("failed to send telegram message: %w", err)
		}
	}
	return nil
}

func (c *Client) updates(ctx context.Context) ([]tgbotapi.Update, error) {
	type result struct {
		updates []tgbotapi.Update
		err     error
	}

	// BotAPI 不接受 context，请求本身受 http.Client 超时约束
	done := make(chan result, 1)
	go func() {
		cfg := tgbotapi.NewUpdate(0)
		cfg.Timeout = 0
		updates, err := c.bot.GetUpdates(cfg)
		done <- result{updates: updates, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("failed to get telegram updates: %w", r.err)
		}
		return r.updates, nil
	}
}

func newestMessage(updates []tgbotapi.Update, chatID int64) (Message, bool) {
	var (
		newest Message
		found  bool
	)

	for _, u := range updates {
		m := u.Message
		if m == nil || m.Chat == nil {
			continue
		}
		if chatID != 0 && m.Chat.ID != chatID {
			continue
		}
		if found && u.UpdateID < newest.UpdateID {
			continue
		}

		newest = Message{
			UpdateID: u.UpdateID,
			ChatID:   m.Chat.ID,
			FromID:   m.Chat.ID,
			Text:     m.Text,
			SentAt:   m.Time(),
		}
		if m.From != nil {
			newest.FromID = m.From.ID
		}
		if newest.Text == "" {
			newest.Text = m.Caption
		}
		found = true
	}

	return newest, found
}

// ChunkMessage 按 rune 切分，空串返回 nil
func ChunkMessage(text string, max int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	chunks := make([]string, 0, len(runes)/max+1)
	for len(runes) > max {
		chunks = append(chunks, string(runes[:max]))
		runes = runes[max:]
	}
	return append(chunks, string(runes))
}
