package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/feral-file/ff-ownership-indexer/internal/adapter"
	"github.com/feral-file/ff-ownership-indexer/internal/api/server"
	"github.com/feral-file/ff-ownership-indexer/internal/block"
	"github.com/feral-file/ff-ownership-indexer/internal/config"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/messaging"
	"github.com/feral-file/ff-ownership-indexer/internal/metadata"
	"github.com/feral-file/ff-ownership-indexer/internal/metrics"
	"github.com/feral-file/ff-ownership-indexer/internal/ownership"
	"github.com/feral-file/ff-ownership-indexer/internal/parser"
	"github.com/feral-file/ff-ownership-indexer/internal/providers/ethereum"
	"github.com/feral-file/ff-ownership-indexer/internal/providers/jetstream"
	"github.com/feral-file/ff-ownership-indexer/internal/queue"
	"github.com/feral-file/ff-ownership-indexer/internal/ratelimit"
	"github.com/feral-file/ff-ownership-indexer/internal/reconcile"
	"github.com/feral-file/ff-ownership-indexer/internal/store"
	"github.com/feral-file/ff-ownership-indexer/internal/worker"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadWorkerConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "worker",
			"network": cfg.Chain.Network,
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)

	logger.InfoCtx(ctx, "Starting NFT ownership worker")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("host", cfg.Database.Host))
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	if cfg.Database.ReadHost != "" {
		if err := store.UseReadReplica(db, cfg.Database.ReadDSN()); err != nil {
			logger.FatalCtx(ctx, "Failed to configure read replica", zap.Error(err))
		}
		logger.InfoCtx(ctx, "Using read replica", zap.String("read_host", cfg.Database.ReadHost))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.FatalCtx(ctx, "Failed to get underlying sql.DB", zap.Error(err))
	}
	defer sqlDB.Close()
	logger.InfoCtx(ctx, "Connected to database")

	dataStore := store.NewPGStore(db)

	// Initialize adapters
	clock := adapter.NewClock()
	redisClient := adapter.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx); err != nil {
		logger.FatalCtx(ctx, "Failed to connect to redis", zap.Error(err), zap.String("addr", cfg.Redis.Addr))
	}

	// Initialize chain client
	rpcLimiter, err := ratelimit.NewLimiter(ratelimit.Config{
		Name:              "rpc:" + cfg.Chain.Network,
		RequestsPerSecond: cfg.Chain.RPCRateLimitPerSecond,
	}, redisClient.NewRateLimiter(), clock)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create RPC rate limiter", zap.Error(err))
	}

	ethClient, err := adapter.NewEthClientDialer().Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to dial chain RPC", zap.Error(err))
	}
	defer ethClient.Close()

	chainClient, err := ethereum.NewClient(ethereum.Config{
		MulticallAddress: cfg.Chain.MulticallAddress,
	}, ethClient, rpcLimiter, clock)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create chain client", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to chain RPC", zap.String("network", cfg.Chain.Network))

	heads := block.NewHeadProvider(ethereum.NewBlockFetcher(chainClient), block.Config{
		TTL:         cfg.Chain.BlockHeadTTL,
		StaleWindow: cfg.Chain.BlockHeadStaleWindow,
	}, clock)

	// Initialize ownership change notifications
	var publisher messaging.Publisher = messaging.NewNopPublisher()
	if cfg.NATS.URL != "" {
		publisher, err = jetstream.NewPublisher(ctx, jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		}, adapter.NewNatsJetStream())
		if err != nil {
			logger.FatalCtx(ctx, "Failed to create NATS publisher", zap.Error(err))
		}
		logger.InfoCtx(ctx, "Publishing ownership changes", zap.String("stream", cfg.NATS.StreamName))
	} else {
		logger.WarnCtx(ctx, "NATS URL not configured, ownership change notifications are disabled")
	}
	defer publisher.Close()

	// Initialize engines
	m := metrics.New()
	registry := parser.NewRegistry()
	resolver := metadata.NewFileResolver(metadata.Config{
		Dir:       cfg.Metadata.Dir,
		Network:   cfg.Chain.Network,
		TTL:       cfg.Metadata.TTL,
		CacheSize: cfg.Metadata.CacheSize,
	}, adapter.NewFileSystem())

	syncer := ownership.NewSyncer(ownership.Config{
		FetchLimit:          cfg.Sync.FetchLimit,
		SubBatchSize:        cfg.Sync.SubBatchSize,
		MetadataConcurrency: cfg.Sync.MetadataConcurrency,
	}, dataStore, registry, resolver, publisher, m)

	reconciler := reconcile.NewReconciler(reconcile.Config{
		SingleWindowSize: cfg.Reconcile.SingleWindowSize,
		BalanceBatchSize: cfg.Reconcile.BalanceBatchSize,
	}, dataStore, chainClient, registry, publisher, m, clock)

	// Initialize queue
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	queueClient := adapter.NewQueueClient(redisOpt)
	defer queueClient.Close()
	queueInspector := adapter.NewQueueInspector(redisOpt)
	defer queueInspector.Close()
	jobQueue := queue.NewQueue(queue.Config{
		MaxRetry:  cfg.Queue.MaxRetry,
		Timeout:   cfg.Queue.JobTimeout,
		Retention: cfg.Queue.Retention,
	}, queueClient, queueInspector)

	dispatcher := worker.NewDispatcher(m)
	worker.NewHandlers(worker.Config{
		StartBlock: cfg.Schedule.StartBlock,
	}, dataStore, chainClient, heads, syncer, reconciler, jobQueue).Register(dispatcher)

	asynqServer := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Queue.Concurrency,
		Queues:      queue.Queues,
		Logger:      logger.Default().Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			id, _ := asynq.GetTaskID(ctx)
			logger.ErrorCtx(ctx, err,
				zap.String("job", task.Type()),
				zap.String("job_id", id),
				zap.Int("retried", retried),
				zap.Int("max_retry", maxRetry),
			)
		}),
	})

	srv := server.New(server.Config{
		Debug: cfg.Debug,
		Host:  cfg.Server.Host,
		Port:  cfg.Server.Port,
	}, m, map[string]server.Check{
		"database": sqlDB.PingContext,
		"redis":    redisClient.Ping,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := asynqServer.Start(dispatcher); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}
		logger.InfoCtx(gctx, "Worker started and listening for jobs",
			zap.Int("concurrency", cfg.Queue.Concurrency))

		<-gctx.Done()
		asynqServer.Shutdown()
		return nil
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorCtx(ctx, err, zap.String("component", "worker"))
	}

	// Use non-context logger for final message since original ctx is canceled
	logger.Info("Worker stopped")
}
