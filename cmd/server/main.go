package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"tollgate/internal/events"
	eventshandler "tollgate/internal/events/handler"
	kafkasink "tollgate/internal/events/sink/kafka"
	eventsmemory "tollgate/internal/events/store/memory"
	eventspostgres "tollgate/internal/events/store/postgres"
	"tollgate/internal/flow"
	flowhandler "tollgate/internal/flow/handler"
	flowmetrics "tollgate/internal/flow/metrics"
	"tollgate/internal/insights"
	insightshandler "tollgate/internal/insights/handler"
	"tollgate/internal/ledger"
	"tollgate/internal/platform/config"
	"tollgate/internal/platform/httpserver"
	"tollgate/internal/platform/logger"
	platformredis "tollgate/internal/platform/redis"
	"tollgate/internal/policy"
	"tollgate/internal/settings"
	settingshandler "tollgate/internal/settings/handler"
	settingsmemory "tollgate/internal/settings/store/memory"
	settingspostgres "tollgate/internal/settings/store/postgres"
	"tollgate/internal/simulator"
	simulatorhandler "tollgate/internal/simulator/handler"
	"tollgate/internal/tokens"
	httptransport "tollgate/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	// Settings and event stores: Postgres when configured, memory otherwise.
	var settingsStore settings.Store
	var eventStore events.Store

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("connect postgres (pgx)", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		settingsStore, err = settingspostgres.New(ctx, pool)
		if err != nil {
			log.Error("init settings store", "error", err)
			os.Exit(1)
		}

		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("connect postgres (database/sql)", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		eventStore, err = eventspostgres.New(ctx, db)
		if err != nil {
			log.Error("init event store", "error", err)
			os.Exit(1)
		}
	} else {
		settingsStore = settingsmemory.New(settings.Default())
		eventStore = eventsmemory.New(eventsmemory.DefaultWindow)
	}

	// Payment ledger: Redis-backed when configured so verification state is
	// shared across instances.
	var ledgerStore ledger.Store = ledger.NewMemoryStore()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		ledgerStore = ledger.NewRedisStore(redisClient.Client)
	}

	var verifier ledger.Verifier = ledger.MockVerifier{}
	if cfg.VerifierMode == "onchain" {
		verifier = ledger.NewOnChainVerifier(cfg.FacilitatorURL, nil)
	}
	paymentLedger := ledger.New(ledgerStore, verifier, ledger.WithLogger(log))

	// Event publisher with optional kafka fan-out.
	publisherOpts := []events.PublisherOption{
		events.WithLogger(log),
		events.WithAsyncBuffer(256),
	}
	if len(cfg.KafkaBrokers) > 0 {
		sink := kafkasink.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer sink.Close()
		publisherOpts = append(publisherOpts, events.WithSink(sink))
	}
	publisher := events.NewPublisher(eventStore, publisherOpts...)
	defer publisher.Close()

	engine, err := policy.NewEngine(paymentLedger, policy.WithRecipient(cfg.PublisherWallet))
	if err != nil {
		log.Error("init policy engine", "error", err)
		os.Exit(1)
	}

	flows, err := flow.NewService(engine, paymentLedger, settingsStore, publisher,
		flow.WithLogger(log),
		flow.WithMetrics(flowmetrics.New()),
	)
	if err != nil {
		log.Error("init flow service", "error", err)
		os.Exit(1)
	}

	registry := tokens.NewRegistry()
	aggregator := insights.New(eventStore, settingsStore, registry)
	sim := simulator.New(flows, log)

	router := httptransport.NewRouter(httptransport.Deps{
		Access:        flowhandler.New(flows, log),
		Settings:      settingshandler.New(settingsStore, log),
		Events:        eventshandler.New(publisher, log),
		Insights:      insightshandler.New(aggregator, log),
		Simulator:     simulatorhandler.New(sim, log),
		JWTSigningKey: []byte(cfg.JWTSigningKey),
		Logger:        log,
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting tollgate", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
