package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qqgate/qqgate/internal/channel"
	"github.com/qqgate/qqgate/internal/config"
	"github.com/qqgate/qqgate/internal/infra"
	"github.com/qqgate/qqgate/internal/interfaces/http"
	"github.com/qqgate/qqgate/pkg/pluginsdk"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the QQ gateway sessions",
	Long: `Start gateway sessions for every enabled, configured account and the
local status server.

Sessions reconnect automatically with bounded backoff and resume where
the platform allows it.`,
	RunE: runGateway,
}

var (
	gatewayPort    int
	gatewayBind    string
	gatewayVerbose bool
)

func init() {
	gatewayCmd.Flags().IntVarP(&gatewayPort, "port", "p", 18791, "Status server listen port")
	gatewayCmd.Flags().StringVar(&gatewayBind, "bind", "loopback", "Bind mode: loopback or all")
	gatewayCmd.Flags().BoolVarP(&gatewayVerbose, "verbose", "v", false, "Enable verbose logging")
}

func runGateway(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if gatewayVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	infra.PrintBanner(version)

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("config load warning, using defaults", "error", err)
		cfg = config.Default()
	}

	if cmd.Flags().Changed("port") {
		cfg.Gateway.Port = gatewayPort
	}
	if cmd.Flags().Changed("bind") {
		cfg.Gateway.Bind = gatewayBind
	}

	slog.Info("starting qqgate",
		"version", version,
		"port", cfg.Gateway.Port,
		"bind", cfg.Gateway.Bind,
	)

	cfgCache := config.NewCache(cfg, 2*time.Second)
	qq := channel.New(cfgCache, logger)
	qq.SetMessageHandler(func(msg pluginsdk.IncomingMessage) {
		slog.Info("inbound message",
			"account", msg.AccountID,
			"surface", msg.Surface,
			"conversation", msg.ConversationID,
			"sender", msg.SenderID,
			"messageId", msg.MessageID,
		)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := 0
	for _, accountID := range qq.Accounts() {
		snap, err := qq.ResolveAccount(accountID)
		if err != nil {
			slog.Warn("skipping account", "account", accountID, "error", err)
			continue
		}
		if !snap.Enabled || !snap.Configured {
			slog.Debug("skipping account",
				"account", accountID,
				"enabled", snap.Enabled,
				"configured", snap.Configured,
			)
			continue
		}
		if err := qq.StartAccount(ctx, accountID); err != nil {
			slog.Error("failed to start account", "account", accountID, "error", err)
			continue
		}
		started++
	}
	if started == 0 {
		slog.Warn("no account started; set appId/clientSecret in the config or QQ_APP_ID/QQ_CLIENT_SECRET")
	}

	httpServer := http.NewServer(cfg, logger, version)
	httpServer.SetSessionStatus(qq.StatusStore().Snapshot)
	httpServer.SetAccounts(func() ([]pluginsdk.AccountSnapshot, error) {
		ids := qq.Accounts()
		out := make([]pluginsdk.AccountSnapshot, 0, len(ids))
		for _, id := range ids {
			snap, err := qq.ResolveAccount(id)
			if err != nil {
				return nil, err
			}
			out = append(out, snap)
		}
		return out, nil
	})

	go func() {
		if err := httpServer.Start(ctx); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("qqgate ready", "accounts", started, "port", cfg.Gateway.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel()
	qq.StopAll()

	return nil
}
