package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/timeless/internal/adapter/auth"
	"github.com/rl1809/timeless/internal/adapter/handler"
	"github.com/rl1809/timeless/internal/adapter/messaging"
	"github.com/rl1809/timeless/internal/adapter/payment"
	"github.com/rl1809/timeless/internal/adapter/storage"
	"github.com/rl1809/timeless/internal/config"
	"github.com/rl1809/timeless/internal/core/service"
	"github.com/rl1809/timeless/internal/logger"
	"github.com/rl1809/timeless/internal/port"
	"github.com/rl1809/timeless/internal/telemetry"
)

const (
	healthInterval  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// backends groups the storage implementations selected by STORAGE_DRIVER.
type backends struct {
	catalog   port.CatalogReader
	carts     port.CartRepository
	users     port.UserRepository
	checkouts port.CheckoutRepository
	locker    port.CheckoutLocker
	cache     port.ProductCache
	pingers   map[string]handler.Pinger
	closers   []func() error
}

func main() {
	cfg, v, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	config.Watch(v, func(level string) {
		log.Info().Str("level", logger.SetLevel(level).String()).Msg("log level reloaded")
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, "timeless", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracing")
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}

	// Publisher
	var publisher port.EventPublisher
	var kafkaPublisher *messaging.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher = messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		publisher = kafkaPublisher
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing checkout events")
	}

	tokens, err := auth.NewJWTMaker(cfg.TokenSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token maker")
	}
	provider := payment.NewStripeProvider(payment.StripeConfig{
		APIKey:        cfg.StripeAPIKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		SuccessURL:    cfg.CheckoutSuccessURL,
		CancelURL:     cfg.CheckoutCancelURL,
	})

	// Services
	publicCatalog := b.catalog
	if b.cache != nil {
		publicCatalog = storage.NewCachedCatalog(b.catalog, b.cache, cfg.ProductCacheTTL, log)
	}
	catalogService := service.NewCatalogService(publicCatalog)
	cartService := service.NewCartService(b.carts, b.catalog, log)
	authService := service.NewAuthService(b.users, auth.NewBcryptHasher(0), tokens, log)
	checkoutService := service.NewCheckoutService(b.carts, b.checkouts, provider, b.locker,
		service.CheckoutConfig{LockTTL: cfg.CheckoutLockTTL, QueueSize: cfg.QueueSize}, log)

	// Start worker pool
	recorder := service.NewCheckoutRecorder(b.checkouts, publisher, log)
	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			recorder.Run(id, checkoutService.GetCheckoutQueue())
		}(i)
	}
	log.Info().Int("workers", cfg.WorkerCount).Msg("started checkout workers")

	grpcHandler := handler.NewGRPCHandler(b.pingers, log)
	grpcServer := handler.NewGRPCServer(grpcHandler)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("failed to listen")
	}

	httpHandler := handler.NewHTTPHandler(catalogService, cartService, checkoutService, authService, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(httpHandler, authService, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		grpcHandler.Run(gctx, healthInterval)
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP shutdown")
		}
		log.Info().Msg("HTTP server stopped")

		grpcServer.GracefulStop()
		log.Info().Msg("gRPC server stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}

	// Close checkout queue and wait for workers
	checkoutService.Close()
	wg.Wait()
	log.Info().Msg("workers stopped")

	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.Error().Err(err).Msg("close kafka publisher")
		}
	}

	// Close connections
	for _, closeFn := range b.closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close connection")
		}
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Error().Err(err).Msg("flush traces")
	}
	log.Info().Msg("connections closed")
}

func openBackends(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*backends, error) {
	if cfg.StorageDriver == config.DriverMemory {
		mem := storage.NewMemoryStore(storage.SeedProducts()...)
		log.Warn().Msg("using in-memory storage; data is lost on exit")
		return &backends{
			catalog:   mem,
			carts:     mem,
			users:     mem,
			checkouts: mem,
			locker:    mem,
			pingers:   map[string]handler.Pinger{"memory": mem},
		}, nil
	}

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQLMaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	log.Info().Msg("connected to mysql")

	if cfg.MigrateOnStart {
		if err := storage.Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
		log.Info().Msg("schema migrated")
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Info().Msg("connected to redis")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)
	return &backends{
		catalog:   mysqlAdapter,
		carts:     mysqlAdapter,
		users:     mysqlAdapter,
		checkouts: mysqlAdapter,
		locker:    redisAdapter,
		cache:     redisAdapter,
		pingers:   map[string]handler.Pinger{"mysql": mysqlAdapter, "redis": redisAdapter},
		closers:   []func() error{rdb.Close, db.Close},
	}, nil
}
