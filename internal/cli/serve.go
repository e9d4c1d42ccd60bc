package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mailherald/mailherald/internal/api"
	"github.com/mailherald/mailherald/internal/config"
	"github.com/mailherald/mailherald/internal/deviceflow"
	"github.com/mailherald/mailherald/internal/history"
	"github.com/mailherald/mailherald/internal/logging"
	"github.com/mailherald/mailherald/internal/metrics"
	"github.com/mailherald/mailherald/internal/poller"
	"github.com/mailherald/mailherald/internal/summarize"
	"github.com/mailherald/mailherald/internal/telegram"
	"github.com/mailherald/mailherald/internal/userstore"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Start the MailHerald service",
	Long: `Start the MailHerald service in main mode.

This command starts the Telegram bot, the Gmail poll-and-notify engine,
and the ops HTTP server for health and metrics.

Example:
  mailherald serve --config config.yaml --data-dir ./data`,
	RunE: runServe,
}

var serveFlags struct {
	Host    string
	Port    int
	Timeout time.Duration
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Ops server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Ops server port (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", 0, "Shutdown timeout (overrides config)")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Secrets like the bot token usually arrive via a .env file next to
	// the binary. Missing file is fine.
	_ = godotenv.Load()

	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}
	if serveFlags.Timeout > 0 {
		cfg.Server.ShutdownTimeout = serveFlags.Timeout
	}
	if globalFlags.DataDir != "" {
		cfg.Storage.DataDir = globalFlags.DataDir
	}

	logger := logging.NewLogger(logging.WithLevel(logging.LogLevel(cfg.Server.LogLevel)))
	m := metrics.NewMetrics("mailherald")

	users := userstore.NewStore(filepath.Join(cfg.Storage.DataDir, "users"))
	histories := history.NewStore(filepath.Join(cfg.Storage.DataDir, "histories"))

	tgClient, err := telegram.NewTGBotAPIClient(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("failed to connect to Telegram: %w", err)
	}

	bot := telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.AdminChatID, true, &telegram.BotOptions{
		RateLimiter: telegram.NewRateLimiter(cfg.Telegram.RateLimit.MessagesPerMinute),
		BotAPI:      tgClient,
	})

	var summarizer summarize.Summarizer
	if cfg.Summarizer.Enabled {
		summarizer = summarize.NewOllamaClient(cfg.Summarizer.BaseURL, cfg.Summarizer.Model, cfg.Summarizer.Timeout)
		logger.Info("summarizer enabled", "base_url", cfg.Summarizer.BaseURL, "model", cfg.Summarizer.Model)
	}

	authorizer := deviceflow.NewAuthorizer(nil, users, bot, m, logger, cfg.DeviceFlow, cfg.Google)
	resolver := poller.NewStoreResolver(users, logger)
	engine := poller.NewEngine(users, histories, resolver, bot, summarizer, m, logger, cfg.Poller)

	startedAt := time.Now()

	bot.SetGrantCallback(func(targetChatID int64) error {
		return authorizer.Begin(context.Background(), targetChatID)
	})
	bot.SetStatusCallback(func() (*telegram.SystemStatus, error) {
		return &telegram.SystemStatus{
			AuthorizedUsers: len(users.ListUsers()),
			ActiveSessions:  authorizer.ActiveSessions(),
			PollInterval:    cfg.Poller.Interval,
			Uptime:          time.Since(startedAt),
		}, nil
	})

	server := api.NewServer(cfg.Server, m, logger, func() api.StatusReport {
		return api.StatusReport{
			Version:         cfg.Version,
			AuthorizedUsers: len(users.ListUsers()),
			ActiveSessions:  authorizer.ActiveSessions(),
			PollerRunning:   engine.IsRunning(),
			UptimeSeconds:   int64(time.Since(startedAt).Seconds()),
		}
	})

	// Config edits are picked up for visibility; most settings need a
	// restart to apply and the reload says so.
	loader.SetOnChange(func(updated *config.Config) {
		logger.Info("configuration file changed; restart to apply", "path", globalFlags.Config)
	})
	if err := loader.StartWatcher(); err != nil {
		logger.Warn("config watcher unavailable", "error", err.Error())
	}

	if err := bot.Start(); err != nil {
		return fmt.Errorf("failed to start Telegram bot: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start poll engine: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	logger.Info("mailherald started",
		"admin_chat_id", cfg.Telegram.AdminChatID,
		"poll_interval", cfg.Poller.Interval.String(),
		"data_dir", cfg.Storage.DataDir,
		"authorized_users", len(users.ListUsers()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("ops server failed", "error", err.Error())
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	cancel()
	if err := engine.Stop(); err != nil {
		logger.Error("stopping poll engine failed", "error", err.Error())
	}
	authorizer.Stop()
	if err := bot.Stop(); err != nil {
		logger.Error("stopping Telegram bot failed", "error", err.Error())
	}
	loader.StopWatcher()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("stopping ops server failed", "error", err.Error())
	}

	logger.Info("mailherald stopped")
	return nil
}
