package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/qqgate/qqgate/internal/channel"
	"github.com/qqgate/qqgate/internal/config"
	"github.com/qqgate/qqgate/pkg/pluginsdk"
)

var sendCmd = &cobra.Command{
	Use:   "send <target> <text>",
	Short: "Send a message through a QQ account",
	Long: `Send one message and exit.

Targets: c2c:<openid>, group:<group_openid>, channel:<channel_id>, or a
bare user openid. With --reply-to the message is sent as a passive reply;
without it, the quota-limited proactive path is used.`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

var (
	sendAccount string
	sendReplyTo string
	sendVerbose bool
)

func init() {
	sendCmd.Flags().StringVarP(&sendAccount, "account", "a", "default", "Account id to send from")
	sendCmd.Flags().StringVar(&sendReplyTo, "reply-to", "", "Inbound message id to reply to")
	sendCmd.Flags().BoolVarP(&sendVerbose, "verbose", "v", false, "Enable verbose logging")
}

func runSend(cmd *cobra.Command, args []string) error {
	logOut := io.Discard
	if sendVerbose {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	qq := channel.New(config.NewCache(cfg, time.Minute), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res := qq.Send(ctx, sendAccount, pluginsdk.OutgoingMessage{
		To:        args[0],
		Text:      args[1],
		ReplyToID: sendReplyTo,
	})
	if res.Error != "" {
		return fmt.Errorf("send failed: %s", res.Error)
	}

	fmt.Printf("sent %s (timestamp %s)\n", res.MessageID, res.Timestamp)
	return nil
}
