// Package main is the entry point for the TripMate sync server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"github.com/pkordes/tripmate/internal/config"
	"github.com/pkordes/tripmate/internal/handler"
	"github.com/pkordes/tripmate/internal/middleware"
	"github.com/pkordes/tripmate/internal/notify"
	"github.com/pkordes/tripmate/internal/repo"
	"github.com/pkordes/tripmate/internal/service"
	"github.com/pkordes/tripmate/migrations"
	"github.com/pkordes/tripmate/spec"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	// --- Logger -----------------------------------------------------------
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Store ------------------------------------------------------------
	var (
		store repo.StateRepo
		pool  *pgxpool.Pool
	)
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, err := repo.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		store = repo.NewMongoStateRepo(client.Database(cfg.MongoDatabase).Collection("trip_state"))
		slog.Info("mongo connection established", "database", cfg.MongoDatabase)
	default:
		pool, err = openPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = repo.NewStateRepo(pool)
		slog.Info("database connection established")
	}

	// --- Change notifications ---------------------------------------------
	// With the postgres broker the trigger announces every write, so the
	// service publishes nothing itself.
	var (
		publisher notify.Publisher
		listener  notify.Listener
	)
	switch cfg.Broker {
	case config.BrokerPostgres:
		listener = notify.NewPGListener(pool, logger)
	case config.BrokerRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		broker := notify.NewRedisBroker(rdb)
		publisher, listener = broker, broker
	default:
		broker := notify.NewLocalBroker()
		publisher, listener = broker, broker
	}

	hub := notify.NewHub()
	go hub.Run(ctx)
	go func() {
		if err := notify.NewFanout(listener, store, hub, logger).Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("change listener stopped", "broker", cfg.Broker, "error", err)
		}
	}()

	// --- Services ---------------------------------------------------------
	upstream := &http.Client{Timeout: 15 * time.Second}

	var answerer service.Answerer
	switch {
	case cfg.OpenAIKey != "":
		answerer = service.NewOpenAIAnswerer(cfg.OpenAIKey)
	case cfg.GeminiKey != "":
		gemini, err := service.NewGeminiAnswerer(ctx, cfg.GeminiKey, "")
		if err != nil {
			return err
		}
		defer gemini.Close()
		answerer = gemini
	}

	deps := handler.Deps{
		State:  service.NewStateService(store, publisher, logger),
		Export: service.NewExportService(store),
		Flights: service.NewFlightService(service.FlightConfig{
			AviationstackKey: cfg.AviationstackKey,
			RapidAPIKey:      cfg.RapidAPIKey,
		}, upstream),
		News:      service.NewNewsService(cfg.NewsAPIKey, "", upstream),
		Concierge: service.NewConciergeService(answerer),
		Hub:       hub,
		OpenAPI:   spec.OpenAPI,
		Logger:    logger,
	}

	var opts handler.RouteOptions
	if cfg.SessionSecret != "" {
		sessions := middleware.NewSessions([]byte(cfg.SessionSecret), 0)
		deps.Sessions = sessions
		opts.Trips = append(opts.Trips, sessions.Require)
	} else {
		slog.Warn("SESSION_SECRET not set; trip routes are open")
	}
	opts.Proxies = append(opts.Proxies, middleware.NewRateLimiter(cfg.ProxyRatePerMin, 5).Limit)

	// --- Router -----------------------------------------------------------
	// RequestID → RealIP → Logger → Recoverer → CORS → body cap.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))
	r.Mount("/", handler.NewServer(deps).Routes(opts))

	// --- HTTP Server ------------------------------------------------------
	// No ReadTimeout or WriteTimeout: subscriptions hold their connection
	// open, and the proxies bound their own upstream calls.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.StoreDriver, "broker", cfg.Broker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

// openPostgres connects, pings and migrates the server schema.
func openPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.Postgres)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Info("migrations applied", "count", len(results))
	return pool, nil
}
