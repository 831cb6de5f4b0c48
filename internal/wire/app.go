package wire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	boltstore "github.com/alanyang/portfolio-api/internal/adapter/bolt"
	"github.com/alanyang/portfolio-api/internal/adapter/memory"
	mongostore "github.com/alanyang/portfolio-api/internal/adapter/mongo"
	pgdb "github.com/alanyang/portfolio-api/internal/adapter/postgres"
	pgdocument "github.com/alanyang/portfolio-api/internal/adapter/postgres/document"
	pgeventbus "github.com/alanyang/portfolio-api/internal/adapter/postgres/eventbus"
	"github.com/alanyang/portfolio-api/internal/adapter/postgres/migrations"
	"github.com/alanyang/portfolio-api/internal/adapter/rabbitmq"
	"github.com/alanyang/portfolio-api/internal/config"
	"github.com/alanyang/portfolio-api/internal/domain/resource"
	portdocument "github.com/alanyang/portfolio-api/internal/port/document"
	porteventbus "github.com/alanyang/portfolio-api/internal/port/eventbus"

	documentsvc "github.com/alanyang/portfolio-api/internal/service/document"

	"github.com/alanyang/portfolio-api/internal/transport"
	mcptransport "github.com/alanyang/portfolio-api/internal/transport/mcp"
)

// App holds the top-level resources needed to run and gracefully stop the server.
type App struct {
	Server   *http.Server
	Store    portdocument.Store
	EventBus porteventbus.EventBus
	Services []*documentsvc.Service
}

// Build is the composition root: the only place concrete types are wired to their
// interface dependencies.
func Build(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	// ── Storage ──────────────────────────────────────────────────────────────
	store, pool, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// ── Change events ────────────────────────────────────────────────────────
	eventBus, err := openEventBus(ctx, cfg, pool)
	if err != nil {
		_ = store.Close(context.WithoutCancel(ctx))
		return nil, err
	}

	// ── Services ─────────────────────────────────────────────────────────────
	mode := cfg.Mode()
	resources := resource.All(mode)
	services := make([]*documentsvc.Service, 0, len(resources))
	for _, res := range resources {
		services = append(services, documentsvc.NewService(res, store, eventBus))
	}

	mcpServer := mcptransport.New(version, services)

	// ── Transport ─────────────────────────────────────────────────────────────
	router := transport.NewRouter(
		ctx,
		mode,
		services,
		store,
		eventBus,
		mcpServer.Handler(),
		memory.NewCache(),
		cfg.IdempotencyTTL,
		transport.NewMetrics(),
	)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	slog.Info("application wired",
		"port", cfg.Port,
		"mode", mode,
		"storage", cfg.Storage.Driver,
		"event_bus", cfg.Events.Driver,
	)

	return &App{
		Server:   server,
		Store:    store,
		EventBus: eventBus,
		Services: services,
	}, nil
}

// Close releases the event bus, then the store.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.EventBus.Close(), a.Store.Close(ctx))
}

// Migrate applies the Postgres schema and returns.
func Migrate(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage.PostgresURL == "" {
		return errors.New("DATABASE_URL not set")
	}
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Storage.ConnectTimeout)
	defer cancel()

	pool, err := pgdb.Connect(connectCtx, cfg.Storage.PostgresURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	return migrations.Apply(ctx, pool)
}

// openStore returns the configured store. The pool is non-nil only for the
// postgres driver and is owned by the store.
func openStore(ctx context.Context, cfg *config.Config) (portdocument.Store, *pgxpool.Pool, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Storage.ConnectTimeout)
	defer cancel()

	switch cfg.Storage.Driver {
	case config.StorageMongo:
		store, err := mongostore.Connect(connectCtx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to mongodb: %w", err)
		}
		return store, nil, nil

	case config.StoragePostgres:
		pool, err := pgdb.Connect(connectCtx, cfg.Storage.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := migrations.Apply(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrating database: %w", err)
		}
		return pgdocument.New(pool), pool, nil

	case config.StorageBolt:
		store, err := boltstore.Open(cfg.Storage.BoltPath, cfg.Storage.ConnectTimeout)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	case config.StorageMemory:
		slog.Warn("using in-memory storage; documents are lost on restart")
		return memory.NewStore(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func openEventBus(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (porteventbus.EventBus, error) {
	switch cfg.Events.Driver {
	case config.EventBusMemory:
		return memory.NewEventBus(), nil

	case config.EventBusPostgres:
		if pool == nil {
			return nil, errors.New("the postgres event bus requires the postgres storage driver")
		}
		return pgeventbus.New(pool), nil

	case config.EventBusRabbitMQ:
		conn, err := rabbitmq.Dial(ctx, cfg.Events.RabbitURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
		}
		bus, err := rabbitmq.New(conn, cfg.Events.RabbitExchange)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("declaring exchange: %w", err)
		}
		return bus, nil
	}
	return nil, fmt.Errorf("unknown event bus %q", cfg.Events.Driver)
}
