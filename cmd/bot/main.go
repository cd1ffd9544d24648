package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/bot"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/command"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/config"
	ctxpkg "github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/context"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/db"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/generation"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/logging"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/openai"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/session"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/storage"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/store"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/telegram"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "bot",
	Short:         "Telegram bot backed by an OpenAI-compatible chat model",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the settings file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer logger.Sync()

	backend, err := openBackend(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	defaults := session.DefaultSettings()
	defaults.Temperature = float32(cfg.Chat.DefaultTemperature)
	sessions := store.New(backend, defaults)

	modelTimeout := time.Duration(cfg.Model.Timeout) * time.Second
	provider := openai.NewClient(cfg.Model.APIKey, cfg.Model.URL, cfg.Model.Name, cfg.Model.MaxTokens, modelTimeout)
	assembler := ctxpkg.NewAssembler(cfg.Chat.HistoryWindow)
	coordinator := generation.New(provider, sessions, assembler, modelTimeout, logger)
	interpreter := command.NewInterpreter(sessions, coordinator)

	// The HTTP client timeout has to outlast a full long-poll cycle.
	client := telegram.NewClient(cfg.Telegram.APIBase, cfg.Telegram.Token,
		time.Duration(cfg.Telegram.PollTimeout+10)*time.Second)

	me, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe probe: %w", err)
	}
	logger.Info("authorized",
		zap.String("username", me.Username),
		zap.Int64("bot_id", me.ID),
		zap.String("model", cfg.Model.Name),
	)

	b := bot.New(client, interpreter, coordinator, cfg.Telegram.PollTimeout, logger)

	if cfg.Telegram.Transport == config.TransportWebhook {
		srv := telegram.NewWebhookServer(cfg.Telegram.WebhookListen, cfg.Telegram.WebhookPath,
			func(u telegram.Update) { b.Dispatch(ctx, u) }, logger)
		logger.Info("receiving webhook updates",
			zap.String("addr", cfg.Telegram.WebhookListen),
			zap.String("path", cfg.Telegram.WebhookPath),
		)
		err = srv.Run(ctx)
		b.Wait()
		return err
	}

	logger.Info("long polling for updates", zap.Int("timeout_seconds", cfg.Telegram.PollTimeout))
	return b.Run(ctx)
}

func openBackend(cfg config.StorageConfig, logger *zap.Logger) (storage.Backend, error) {
	if cfg.Mode == config.StorageDurable {
		database, err := db.OpenDB(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite at %s: %w", cfg.Path, err)
		}
		if err := db.InitSchema(database); err != nil {
			database.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
		logger.Info("using durable session storage", zap.String("path", cfg.Path))
		return storage.NewSQLite(database), nil
	}
	logger.Info("using volatile session storage")
	return storage.NewMemory(), nil
}
