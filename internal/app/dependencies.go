package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/nailflow/capacity/internal/domain"
	"github.com/nailflow/capacity/internal/storage/memory"
	"github.com/nailflow/capacity/internal/storage/postgres"
)

// Dependencies содержит хранилища, выбранные по конфигурации.
type Dependencies struct {
	CapacityRepo    domain.CapacityRepository
	AuditRepo       domain.AuditRepository
	OutboxRepo      domain.OutboxRepository
	IdempotencyRepo domain.IdempotencyRepository

	// Store не nil только для postgres-драйвера; им пользуются
	// health-чекер и graceful shutdown.
	Store *postgres.Store

	Logger *log.Entry
}

// NewDependencies выбирает и инициализирует хранилище по cfg.StorageDriver.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	switch cfg.StorageDriver {
	case StorageMemory, "":
		logger.Info("используем in-memory хранилище")
		return &Dependencies{
			CapacityRepo:    memory.NewCapacityRepository(),
			AuditRepo:       memory.NewAuditRepository(),
			OutboxRepo:      memory.NewOutboxRepository(),
			IdempotencyRepo: memory.NewIdempotencyRepository(),
			Logger:          logger,
		}, nil

	case StoragePostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires CAP_POSTGRES_DSN")
		}

		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("ensure postgres schema: %w", err)
			}
		}

		logger.Info("используем postgres хранилище")
		return &Dependencies{
			CapacityRepo:    postgres.NewCapacityRepository(store),
			AuditRepo:       postgres.NewAuditRepository(store),
			OutboxRepo:      postgres.NewOutboxRepository(store),
			IdempotencyRepo: postgres.NewIdempotencyRepository(store),
			Store:           store,
			Logger:          logger,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %q (use %s|%s)", cfg.StorageDriver, StorageMemory, StoragePostgres)
	}
}

// Close освобождает ресурсы хранилища.
func (d *Dependencies) Close() {
	if d == nil || d.Store == nil {
		return
	}
	if err := d.Store.Close(); err != nil {
		d.Logger.WithError(err).Warn("failed to close postgres store")
	}
}
