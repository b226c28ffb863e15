package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"DeadManSwitch/pkg/telegram"
)

var (
	errConfirmRequired = stderrors.New("refusing to reset without --yes")
	errNoMessage       = stderrors.New("no message found, send any message to the bot first")
)

// chatClient 由 telegram.Client 实现
type chatClient interface {
	Latest(ctx context.Context, chatID int64) (telegram.Message, bool, error)
	SendText(ctx context.Context, chatID int64, text string) error
}

// ChatIDCmd 打印最新消息的 chat id，用于首次配置 TELEGRAM_CHAT_ID
func ChatIDCmd() *cobra.Command {
	var send bool

	cmd := &cobra.Command{
		Use:   "chat-id",
		Short: "Print the chat id of the latest message sent to the bot",
		Long: `Send any message to the bot, then run this command.
Only TELEGRAM_TOKEN is required, the rest of the configuration is not validated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			if cfg.TelegramToken == "" {
				return fmt.Errorf("missing required configuration: TELEGRAM_TOKEN")
			}

			client, err := telegram.New(telegram.Config{
				Token:       cfg.TelegramToken,
				APIEndpoint: cfg.TelegramAPIEndpoint,
				ReadTimeout: cfg.InboxTimeout(),
			})
			if err != nil {
				return err
			}
			if _, err := client.Verify(cmd.Context()); err != nil {
				return err
			}

			return printChatID(cmd.Context(), client, send, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&send, "send", false, "also send the chat id back to the chat")
	return cmd
}

func printChatID(ctx context.Context, client chatClient, send bool, out io.Writer) error {
	msg, ok, err := client.Latest(ctx, 0)
	if err != nil {
		return err
	}
	if !ok {
		return errNoMessage
	}

	fmt.Fprintf(out, "%d\n", msg.ChatID)

	if send {
		if err := client.SendText(ctx, msg.ChatID, fmt.Sprintf("%d", msg.ChatID)); err != nil {
			return err
		}
	}
	return nil
}
