package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	crowdfundledger "fundhouse/contexts/funding-core/crowdfund-ledger"
	"fundhouse/contexts/funding-core/crowdfund-ledger/adapters/memory"
	postgresadapter "fundhouse/contexts/funding-core/crowdfund-ledger/adapters/postgres"
	workerapp "fundhouse/contexts/funding-core/crowdfund-ledger/application/workers"
	"fundhouse/internal/platform/config"
	"fundhouse/internal/platform/db"
	"fundhouse/internal/platform/httpserver"
	"fundhouse/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres      *db.Postgres
	outboxRelay   workerapp.OutboxRelay
	refundSweeper workerapp.RefundSweeper
	relayEnabled  bool
	sweepEnabled  bool
	pollInterval  time.Duration
	logger        *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	if strings.TrimSpace(cfg.AdminAddress) == "" {
		return nil, errors.New("ADMIN_ADDRESS is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	if err := repo.AutoMigrate(); err != nil {
		_ = pg.Close()
		return nil, err
	}

	// Vault is in-process until the external settlement rail is wired.
	vault := memory.NewVault(cfg.FundingAsset)

	module := crowdfundledger.NewModule(crowdfundledger.Dependencies{
		Ledger:         repo,
		Reader:         repo,
		Vault:          vault,
		Admin:          repo,
		Idempotency:    repo,
		Clock:          postgresadapter.SystemClock{},
		IDGenerator:    postgresadapter.UUIDGenerator{},
		AdminAddress:   cfg.AdminAddress,
		FundingAsset:   cfg.FundingAsset,
		IdempotencyTTL: 7 * 24 * time.Hour,
		Logger:         logger,
	})

	server := httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	bus, err := messaging.NewKafka(cfg.EventBrokers, logger)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	vault := memory.NewVault(cfg.FundingAsset)

	module := crowdfundledger.NewModule(crowdfundledger.Dependencies{
		Ledger:         repo,
		Reader:         repo,
		Vault:          vault,
		Admin:          repo,
		Idempotency:    repo,
		Clock:          postgresadapter.SystemClock{},
		IDGenerator:    postgresadapter.UUIDGenerator{},
		AdminAddress:   cfg.AdminAddress,
		FundingAsset:   cfg.FundingAsset,
		IdempotencyTTL: 7 * 24 * time.Hour,
		Logger:         logger,
	})

	return &WorkerApp{
		postgres: pg,
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    repo,
			Publisher: bus,
			Clock:     postgresadapter.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		refundSweeper: workerapp.RefundSweeper{
			Ledger:      repo,
			PushRefunds: module.Handler.PushRefunds,
			Clock:       postgresadapter.SystemClock{},
			CampaignCap: 10,
			WindowSize:  50,
			Logger:      logger,
		},
		relayEnabled: cfg.EnableOutboxRelay,
		sweepEnabled: cfg.EnableRefundSweeper,
		pollInterval: 2 * time.Second,
		logger:       logger,
	}, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"outbox_relay", w.relayEnabled,
		"refund_sweeper", w.sweepEnabled,
	)

	for {
		if w.relayEnabled {
			if err := w.outboxRelay.RunOnce(ctx); err != nil {
				return err
			}
		}
		if w.sweepEnabled {
			if err := w.refundSweeper.RunOnce(ctx); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
