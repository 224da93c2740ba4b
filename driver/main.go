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

	"github.com/redis/go-redis/v9"

	"quickeats/gorest/accounts"
	"quickeats/gorest/auth"
	"quickeats/gorest/catalog"
	"quickeats/gorest/config"
	"quickeats/gorest/events"
	"quickeats/gorest/handlers"
	"quickeats/gorest/media"
	"quickeats/gorest/middleware/logkafka"
	"quickeats/gorest/orders"
	"quickeats/gorest/store"
	"quickeats/gorest/telem"
	"quickeats/gorest/utils"
)

const serviceName = "quickeats-api"

// repository is satisfied by both store.Mongo and store.Memory.
type repository interface {
	accounts.Repository
	catalog.Repository
	orders.Repository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := telem.NewLogger(telem.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "api", Env: cfg.Env})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	shutdownMetrics, err := telem.InitMetrics(ctx, serviceName, cfg.MetricsAddr, log)
	if err != nil {
		return err
	}
	defer shutdownWith(log, "metrics", shutdownMetrics)

	shutdownTracing, err := telem.InitTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer shutdownWith(log, "tracing", shutdownTracing)

	handlers.Init()

	var (
		repo   repository
		checks []func(context.Context) error
	)
	switch cfg.StoreBackend {
	case "memory":
		log.Warn("using in-memory store; data is lost on restart")
		repo = store.NewMemory()
	default:
		client, err := utils.InitMongoClient(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn("mongo disconnect", "error", err)
			}
		}()
		m := store.NewMongo(client.Database(cfg.MongoDB), cfg.RequestTimeout)
		if err := m.EnsureIndexes(ctx); err != nil {
			return err
		}
		repo = m
		checks = append(checks, func(ctx context.Context) error { return client.Ping(ctx, nil) })
		log.Info("connected to MongoDB", "db", cfg.MongoDB)
	}

	var (
		cache catalog.Cache
		idem  orders.Idempotency
	)
	if cfg.RedisAddr != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		cache = store.NewRedisCache(rdb, cfg.MenuCacheTTL)
		idem = store.NewRedisIdempotency(rdb)
		checks = append(checks, func(ctx context.Context) error { return redisPing(ctx, rdb) })
		log.Info("connected to Redis", "addr", cfg.RedisAddr)
	} else {
		cache = store.NewMemoryCache(cfg.MenuCacheTTL)
		idem = store.NewMemoryIdempotency()
	}

	var (
		publisher events.Publisher = events.NopPublisher{}
		logSink   logkafka.Sink
	)
	if len(cfg.KafkaBrokers) > 0 {
		pub := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.OrderTopic)
		defer pub.Close()
		publisher = pub

		sink := logkafka.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaLogTopic)
		defer sink.Close()
		logSink = sink
	}

	images, err := media.NewDiskStore(cfg.UploadDir)
	if err != nil {
		return err
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.CustomerTokenTTL, cfg.AdminTokenTTL)
	api := &handlers.API{
		Accounts: accounts.NewService(repo, issuer, log.With("component", "accounts")),
		Catalog:  catalog.NewService(repo, cache, images, log.With("component", "catalog")),
		Orders: orders.NewService(repo, repo, repo, idem, publisher, log.With("component", "orders"), orders.Config{
			Tolerance:         cfg.TotalTolerance,
			IdempotencyWindow: cfg.IdempotencyWindow,
		}),
		Guard:      auth.NewGuard(cfg.JWTSecret, repo),
		Log:        log,
		RequestLog: logkafka.New(logSink, cfg.Env, log.With("component", "http")),
		UploadDir:  cfg.UploadDir,
		Ready: func(ctx context.Context) error {
			for _, check := range checks {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	}

	srv := &http.Server{
		Handler:      handlers.NewRouter(api),
		Addr:         ":" + cfg.Port,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr, "store", cfg.StoreBackend)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func redisPing(ctx context.Context, rdb *redis.Client) error {
	return rdb.Ping(ctx).Err()
}

func shutdownWith(log *slog.Logger, name string, fn telem.ShutdownFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn("shutdown failed", "component", name, "error", err)
	}
}
