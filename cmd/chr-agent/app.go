package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/childhealth/fieldsync/internal/config"
	"github.com/childhealth/fieldsync/internal/domain/child"
	"github.com/childhealth/fieldsync/internal/domain/identity"
	"github.com/childhealth/fieldsync/internal/platform/auth"
	"github.com/childhealth/fieldsync/internal/platform/events"
	"github.com/childhealth/fieldsync/internal/platform/fieldcrypt"
	"github.com/childhealth/fieldsync/internal/platform/localstore"
	"github.com/childhealth/fieldsync/internal/platform/logging"
	"github.com/childhealth/fieldsync/internal/platform/syncengine"
	"github.com/childhealth/fieldsync/internal/platform/transport"
)

// app is everything one agent command needs, wired once per process.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	store     *localstore.Store
	identity  *identity.Service
	records   *child.Service
	bus       *events.Bus
	transport *transport.Client
	engine    *syncengine.Engine
}

func newApp(ctx context.Context, online bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateAgent(); err != nil {
		return nil, err
	}
	logger := logging.New("chr-agent", cfg.LogLevel, cfg.Env)

	crypt, err := fieldcrypt.NewService(cfg.FieldEncryptionKey, logger)
	if err != nil {
		return nil, err
	}

	store := localstore.Open(cfg.LocalDBPath, crypt, logger)
	if err := store.Init(ctx); err != nil {
		return nil, err
	}

	session := identity.NewSession()
	issuer := auth.NewTokenIssuer(cfg.SigningKey(), cfg.AuthIssuer, cfg.TokenTTL)
	idSvc := identity.NewService(store, store, issuer, session, logger)
	if err := idSvc.Restore(ctx); err != nil {
		store.Close()
		return nil, err
	}

	bus := events.NewBus()
	client := transport.New(cfg.ServerURL, cfg.HTTPTimeout, logger)
	engine := syncengine.New(store, client, session, bus, logger,
		syncengine.WithMaxAttempts(cfg.SyncMaxAttempts),
		syncengine.WithBaseDelay(cfg.SyncBaseDelay),
		syncengine.WithInterval(cfg.SyncInterval),
		syncengine.WithOnline(online),
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		identity:  idSvc,
		records:   child.NewService(store, session, logger),
		bus:       bus,
		transport: client,
		engine:    engine,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close local store")
	}
}
