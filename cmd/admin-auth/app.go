package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sipico/admin-auth/internal/auth"
	"github.com/sipico/admin-auth/internal/config"
	"github.com/sipico/admin-auth/internal/events"
	"github.com/sipico/admin-auth/internal/logging"
	"github.com/sipico/admin-auth/internal/mail"
	"github.com/sipico/admin-auth/internal/permission"
	"github.com/sipico/admin-auth/internal/storage"
	"github.com/sipico/admin-auth/internal/token"
	"github.com/sipico/admin-auth/internal/user"
)

// families lists every token family in a stable order.
var families = []string{token.APIToken, token.TransferToken, token.ServiceAccountToken}

// app holds the wired services for one process.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	level     *slog.LevelVar
	settings  *config.Store
	store     *storage.SQLiteStorage
	hub       *events.Hub
	tokens    map[string]*token.Lifecycle
	gate      *auth.Gate
	bootstrap *auth.BootstrapService
	users     *user.Service
}

// newApp validates cfg and wires storage, settings and services. Logs go to logOut.
func newApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	lvl, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	level := new(slog.LevelVar)
	level.Set(lvl)
	logger := logging.New(logOut, level, cfg.LogFormat)

	settings, err := config.NewStore(cfg.SettingsFile)
	if err != nil {
		return nil, err
	}
	seedSettings(settings, cfg)

	registry, err := loadActions(cfg.ActionsFile)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	hub := events.NewHub(logger)
	hub.On("*", func(_ context.Context, e events.Event) {
		logger.Info("admin event", "event", e.Name, "event_id", e.ID)
	})

	tokenOpts := []token.Option{token.WithLogger(logger), token.WithEventBus(hub)}
	a := &app{
		cfg:      cfg,
		logger:   logger,
		level:    level,
		settings: settings,
		store:    store,
		hub:      hub,
		tokens: map[string]*token.Lifecycle{
			token.APIToken:            token.New(token.APITokenFamily(registry), store, settings, tokenOpts...),
			token.TransferToken:       token.New(token.TransferTokenFamily(nil), store, settings, tokenOpts...),
			token.ServiceAccountToken: token.New(token.ServiceAccountFamily(nil), store, settings, tokenOpts...),
		},
		bootstrap: auth.NewBootstrapService(store, hub),
		users:     user.NewService(store, user.WithLogger(logger), user.WithEventBus(hub)),
	}
	a.gate = auth.NewGate(store, settings, newMailer(cfg, logger), auth.WithLogger(logger), auth.WithEventBus(hub))
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// seedSettings copies process config into settings paths left unset by the
// settings file and environment.
func seedSettings(s *config.Store, cfg *config.Config) {
	for path, val := range map[string]string{
		config.AbsoluteURLPath:         cfg.AdminURL,
		config.ForgotPasswordFromPath:  cfg.MailFrom,
		config.ForgotPasswordReplyPath: cfg.MailReplyTo,
	} {
		if val != "" && s.GetString(path, "") == "" {
			s.Set(path, val)
		}
	}
}

// loadActions reads the api token permission registry. No file means no actions.
func loadActions(path string) (*permission.StaticRegistry, error) {
	if path == "" {
		return permission.NewStaticRegistry(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open actions file: %w", err)
	}
	defer f.Close() //nolint:errcheck
	return permission.LoadRegistry(f)
}

func newMailer(cfg *config.Config, logger *slog.Logger) mail.Sender {
	if cfg.SMTPHost == "" {
		return mail.LogSender{Logger: logger}
	}
	return mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom, cfg.MailReplyTo)
}
