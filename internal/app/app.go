// Package app wires the components shared by the bridge and the terminal
// client from a loaded configuration.
package app

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"medius/internal/api"
	"medius/internal/auth"
	"medius/internal/bus"
	"medius/internal/chat"
	"medius/internal/config"
	"medius/internal/domain"
	"medius/internal/realtime"
	"medius/internal/security"
	"medius/internal/store/sqlite"
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Identity auth.Session
	API      *api.Client
	Bus      *bus.PubSubBus
	Drafts   *sqlite.DraftRepo
	Cache    *sqlite.CacheRepo

	db *sql.DB
}

// New opens the local cache and builds the identity, REST client and bus.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	identity, err := NewIdentity(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(cfg.CacheDSN)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if err := sqlite.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache: %w", err)
	}

	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init encryptor: %w", err)
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Identity: identity,
		API: api.New(cfg.APIBaseURL, identity, api.Options{
			Timeout: cfg.HTTPTimeout,
			Retries: cfg.FetchRetries,
			Logger:  logger,
		}),
		Bus:    bus.New(logger),
		Drafts: sqlite.NewDraftRepo(db, encryptor),
		Cache:  sqlite.NewCacheRepo(db, encryptor),
		db:     db,
	}, nil
}

// NewIdentity picks the static token when one is configured and falls back
// to minting tokens with the shared signing secret.
func NewIdentity(cfg *config.Config) (auth.Session, error) {
	if cfg.AccessToken != "" {
		return auth.NewTokenSession(cfg.AccessToken)
	}
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("no credential configured: %w", domain.ErrUnauthorized)
	}
	tokens := security.NewTokenService(cfg.SigningSecret, cfg.TokenTTL)
	return auth.NewSigningSession(tokens, domain.User{ID: cfg.UserID, Username: cfg.Username}), nil
}

// Policy is the reconnect policy from the configuration.
func (a *App) Policy() realtime.Policy {
	return realtime.Policy{
		MaxAttempts: a.Config.MaxReconnectAttempts,
		BaseDelay:   a.Config.BaseReconnectDelay,
		MaxDelay:    a.Config.MaxReconnectDelay,
	}
}

// SessionFactory builds chat sessions backed by a realtime manager per deal.
func (a *App) SessionFactory(opener chat.Opener) chat.Factory {
	return func(dealID string) (*chat.Session, error) {
		rc := realtime.Config{
			URL:          a.Config.WebSocketURL,
			DealID:       dealID,
			Policy:       a.Policy(),
			PingInterval: a.Config.PingInterval,
		}
		return chat.NewSession(dealID, chat.Deps{
			API:     a.API,
			Auth:    a.Identity,
			Channel: chat.ManagerChannel(rc, a.Identity, realtime.WithLogger(a.Logger)),
			Drafts:  a.Drafts,
			Cache:   a.Cache,
			Bus:     a.Bus,
			Opener:  opener,
			Logger:  a.Logger,
		})
	}
}

func (a *App) Close() error {
	a.Bus.Close()
	return a.db.Close()
}
