package infrastructure

import (
	"context"
	"log/slog"
	"time"

	"tokenomy/internal/config"
	"tokenomy/internal/gate"
	"tokenomy/internal/metrics"
	"tokenomy/internal/ratelimit"
	"tokenomy/internal/repository/postgres"
	"tokenomy/internal/service"
	transportHTTP "tokenomy/internal/transport/http"
	transportNATS "tokenomy/internal/transport/nats"
	"tokenomy/internal/worker"

	"github.com/nats-io/nats.go"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, func() {
		db.Close()
		_ = rdb.Close()
	})

	store := postgres.NewStore(db)
	collector := metrics.NewCollector()
	catalog := service.DefaultCatalog()

	// ── Messaging ──────────────────────────────────────────────────────────
	var (
		bus service.EventBus
		nc  *nats.Conn
	)
	if url := cfg.NatsAddr(); url != "" {
		nc, err = connectNats(url)
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		bus = transportNATS.NewBus(nc)
		cleanupFns = append(cleanupFns, nc.Close)
	} else {
		slog.Warn("NATS not configured: events disabled, side effects run in dev mode")
	}

	// ── Engines ────────────────────────────────────────────────────────────
	ledger := service.NewLedger(store, bus, collector)
	market := service.NewShareMarket(store, bus, collector)
	pricing := service.NewPricingEngine(store,
		gate.NewRedis(rdb, "tokenomy:gate"),
		catalog, bus, collector, cfg.PricingZeroUsageRatio)

	var limiter ratelimit.Limiter
	if cfg.RateLimit > 0 {
		limiter = ratelimit.NewRedis(rdb, "tokenomy:rl", cfg.RateLimit, cfg.RateWindow)
	}

	// Every catalog action is dispatched to the platform adapter over NATS
	// request-reply. Without NATS the effects only log, which keeps local
	// development usable.
	effectors := make(map[string]service.Effector, len(catalog.All()))
	for _, a := range catalog.All() {
		if nc != nil {
			effectors[a.ID] = transportNATS.NewEffector(nc, a.ID)
		} else {
			effectors[a.ID] = devEffector(a.ID)
		}
	}

	engine, err := service.NewActionEngine(service.ActionEngineConfig{
		Store:        store,
		Catalog:      catalog,
		Effectors:    effectors,
		Authorizer:   service.NewStaticAuthorizer(cfg.AgentCapabilities),
		Dividends:    market,
		Limiter:      limiter,
		Metrics:      collector,
		Bus:          bus,
		SystemOwners: cfg.SystemOwners,
	})
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}

	// ── Servers ────────────────────────────────────────────────────────────
	var servers []Server

	if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
		handler := transportHTTP.NewHandler(ledger, engine, market, pricing, collector)
		servers = append(servers, transportHTTP.NewServer(addr, handler))
	}
	if nc != nil {
		servers = append(servers, transportNATS.NewHandler(ledger, nc))
	}
	servers = append(servers,
		worker.NewPricingWorker(pricing, cfg.PricingWorkerInterval),
		worker.NewRetentionWorker(store, cfg.RetentionInterval,
			time.Duration(cfg.PriceHistoryHorizonDays)*24*time.Hour),
	)

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// devEffector acknowledges an effect without a platform adapter attached.
func devEffector(actionID string) service.Effector {
	return service.EffectorFunc(func(_ context.Context, communityID, targetID string, _ map[string]string) error {
		slog.Info("dev effector: pretending the platform applied the effect",
			"action", actionID, "community", communityID, "target", targetID)
		return nil
	})
}

// runCleanup returns a single function that calls all cleanup functions in
// reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
