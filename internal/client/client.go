package client

import (
	"fmt"

	"github.com/TheMichaelB/chatsync/internal/config"
	"github.com/TheMichaelB/chatsync/internal/events"
	syncsvc "github.com/TheMichaelB/chatsync/internal/services/sync"
	"github.com/TheMichaelB/chatsync/internal/state"
	"github.com/TheMichaelB/chatsync/internal/store"
	"github.com/TheMichaelB/chatsync/internal/transport"
)

// Client wires the sync engine together: stores, fetch collaborator,
// registry, coordinator, and the service surface.
type Client struct {
	Sync *syncsvc.Service

	config        *config.Config
	logger        *events.Logger
	stateStore    state.Store
	authoritative store.Store
	staging       store.Store
}

// New creates a fully wired client from config.
func New(cfg *config.Config, logger *events.Logger) (*Client, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	stateStore, err := state.NewSQLiteStore(cfg.StatePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	authoritative, err := store.NewSQLiteStore(cfg.MessagesPath(), logger)
	if err != nil {
		stateStore.Close()
		return nil, fmt.Errorf("open message store: %w", err)
	}

	staging, err := store.NewSQLiteStore(cfg.StagingPath(), logger)
	if err != nil {
		stateStore.Close()
		authoritative.Close()
		return nil, fmt.Errorf("open staging store: %w", err)
	}

	var fetcher transport.Fetcher = transport.NewHTTPFetcher(&cfg.Bridge, logger)

	registry := syncsvc.NewRegistry()
	coordinator := syncsvc.NewCoordinator(stateStore, syncsvc.CoordinatorConfig{
		BatchSize:          cfg.Sync.BatchSize,
		CheckpointInterval: cfg.Sync.CheckpointInterval,
		BatchDelay:         cfg.Sync.BatchDelay,
	}, logger)
	reconciler := syncsvc.NewReconciler(authoritative, staging, "history", logger)

	service := syncsvc.NewService(registry, coordinator, reconciler, fetcher, stateStore, logger)

	return &Client{
		Sync:          service,
		config:        cfg,
		logger:        logger,
		stateStore:    stateStore,
		authoritative: authoritative,
		staging:       staging,
	}, nil
}

// Close waits for running syncs and releases the stores.
func (c *Client) Close() error {
	c.Sync.Wait()

	var firstErr error
	for _, closer := range []interface{ Close() error }{c.staging, c.authoritative, c.stateStore} {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
