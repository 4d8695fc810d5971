package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/infraops/infrabot/internal/bot"
	"github.com/infraops/infrabot/internal/config"
	"github.com/infraops/infrabot/internal/mfa"
	"github.com/infraops/infrabot/internal/mikrotik"
	"github.com/infraops/infrabot/pkg/logger"
)

func main() {
	format := logger.FormatJSON
	if f := os.Getenv("LOG_FORMAT"); f != "" {
		format = logger.Format(f)
	}
	log := logger.New(
		logger.WithFormat(format),
		logger.WithAttr(slog.String("app", "infrabot")),
	)

	if err := run(log); err != nil {
		log.Error("bot exited with error", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.Info("configuration loaded",
		"devices", len(cfg.Devices),
		"admins", len(cfg.AdminIDs),
		"mfa_enabled", cfg.MFA.Enabled,
	)

	var (
		store    *mfa.Store
		sessions *mfa.SessionManager
		verifier *mfa.Verifier
	)
	if cfg.MFA.Enabled {
		store, err = mfa.OpenStore(cfg.MFA.DBPath, cfg.MFA.EncryptionKey, log)
		if err != nil {
			return err
		}
		defer store.Close()

		sessions = mfa.NewSessionManager(store, cfg.MFA.SessionTTL, log)
		verifier = mfa.NewVerifier(store, sessions, log)
		go sessions.Run(ctx, mfa.DefaultCleanupInterval)
	} else {
		log.Warn("MFA is disabled; sensitive commands will be rejected")
	}

	routers, err := mikrotik.NewManager(cfg, log)
	if err != nil {
		return err
	}

	b, err := bot.New(cfg, routers, store, sessions, verifier, log)
	if err != nil {
		return err
	}

	log.Info("bot starting")
	return b.Run(ctx)
}
