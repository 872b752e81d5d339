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
	"github.com/feral-file/ff-ownership-indexer/internal/admission"
	"github.com/feral-file/ff-ownership-indexer/internal/api/server"
	"github.com/feral-file/ff-ownership-indexer/internal/config"
	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/metrics"
	"github.com/feral-file/ff-ownership-indexer/internal/providers/ethereum"
	"github.com/feral-file/ff-ownership-indexer/internal/queue"
	"github.com/feral-file/ff-ownership-indexer/internal/ratelimit"
	"github.com/feral-file/ff-ownership-indexer/internal/scheduler"
	"github.com/feral-file/ff-ownership-indexer/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadSchedulerConfig(*configFile, *envPath)
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
			"service": "scheduler",
			"network": cfg.Chain.Network,
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)

	logger.InfoCtx(ctx, "Starting NFT ownership scheduler")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("host", cfg.Database.Host))
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
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

	rpcURL := cfg.Chain.RPCURL
	if cfg.Chain.WebSocketURL != "" {
		rpcURL = cfg.Chain.WebSocketURL
	}
	ethClient, err := adapter.NewEthClientDialer().Dial(ctx, rpcURL)
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
	periodic := adapter.NewQueueScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   logger.Default().Sugar(),
	})

	queueCfg := queue.Config{
		MaxRetry:  cfg.Queue.MaxRetry,
		Timeout:   cfg.Queue.JobTimeout,
		Retention: cfg.Queue.Retention,
	}
	jobQueue := queue.NewQueue(queueCfg, queueClient, queueInspector)

	m := metrics.New()
	blocks := admission.NewLimiter(admission.Config{
		InFlightLimit: cfg.Queue.InFlightLimit,
		Interval:      cfg.Queue.AdmissionInterval,
	}, jobQueue, domain.NewBlockJob, clock, m)

	sched := scheduler.NewScheduler(scheduler.Config{
		FinalizedBlocksInterval:   cfg.Schedule.FinalizedBlocksInterval,
		MissingBlocksInterval:     cfg.Schedule.MissingBlocksInterval,
		OwnershipSyncInterval:     cfg.Schedule.OwnershipSyncInterval,
		ReconcileRefreshPeriod:    cfg.Reconcile.RefreshPeriod,
		PricingInterval:           cfg.Schedule.PricingInterval,
		VerifiedContractsInterval: cfg.Schedule.VerifiedContractsInterval,
		StakingValidatorsInterval: cfg.Schedule.StakingValidatorsInterval,
		BackfillRewind:            cfg.Schedule.BackfillRewind,
		GapPollInterval:           cfg.Schedule.GapPollInterval,
		StartBlock:                cfg.Schedule.StartBlock,
	}, dataStore, chainClient, blocks, periodic, queueCfg, clock)

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
		return sched.Run(gctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorCtx(ctx, err, zap.String("component", "scheduler"))
	}

	// Use non-context logger for final message since original ctx is canceled
	logger.Info("Scheduler stopped")
}
