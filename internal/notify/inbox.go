package notify

import (
	"context"

	"DeadManSwitch/internal/checkin"
	"DeadManSwitch/pkg/telegram"
)

// LatestFetcher 由 telegram.Client 实现
type LatestFetcher interface {
	FetchLatest(ctx context.Context) (telegram.Message, bool, error)
}

// TelegramInbox 把 Telegram 最新消息适配为 checkin.MessageInbox
type TelegramInbox struct {
	client LatestFetcher
}

var _ checkin.MessageInbox = (*TelegramInbox)(nil)

func NewTelegramInbox(client LatestFetcher) *TelegramInbox {
	return &TelegramInbox{client: client}
}

func (i *TelegramInbox) FetchLatest(ctx context.Context) (checkin.InboxMessage, bool, error) {
	msg, ok, err := i.client.FetchLatest(ctx)
	if err != nil || !ok {
		return checkin.InboxMessage{}, false, err
	}
	return checkin.InboxMessage{Text: msg.Text, SentAt: msg.SentAt}, true, nil
}
