package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tillsync/internal/api"
	"tillsync/internal/config"
	"tillsync/internal/logging"
	"tillsync/internal/metrics"
	"tillsync/internal/netmon"
	"tillsync/internal/notify"
	"tillsync/internal/queue"
	"tillsync/internal/remote"
	"tillsync/internal/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	st, err := openStore(cfg, &logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := netmon.NewMonitor(netmon.NewHTTPProber(cfg.Netmon), cfg.Netmon, &logger)
	go monitor.Start(ctx)

	submitter := remote.NewClient(cfg.Backend, cfg.App.DeviceID, &logger)

	manager, err := queue.NewManager(st, submitter, monitor, cfg.Queue, &logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	if cfg.Telegram.Enabled {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			return fmt.Errorf("init telegram bot: %w", err)
		}
		notifier := notify.NewStuckOrderNotifier(bot, cfg.Telegram.ChatID, &logger)
		notifier.Attach(manager)
		defer notifier.Stop()
	}

	if cfg.Backup.Enabled && cfg.Storage.Backend == "sqlite" {
		backupService := store.NewBackupService(cfg.Storage.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, manager, cfg.Exports.Path, cfg.Monitoring.PrometheusEnabled, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("control API error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().Msg("tillsync started")
	<-ctx.Done()
	logger.Info().Msg("shutting down")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "main").Logger()

	return cfg, logger, closer, nil
}

func openStore(cfg *config.Config, logger *zerolog.Logger) (store.Store, error) {
	switch cfg.Storage.Backend {
	case "redis":
		client := store.NewRedisClient(cfg.Storage.Redis)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis store: %w", err)
		}
		logger.Info().Str("addr", cfg.Storage.Redis.Address).Msg("redis queue store opened")
		return store.NewRedisStore(client, cfg.App.DeviceID), nil
	default:
		return store.NewSQLiteStore(cfg.Storage.Path, logger)
	}
}
