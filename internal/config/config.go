package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadHost        string        `mapstructure:"read_host"`
	ReadPort        int           `mapstructure:"read_port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig holds the connection of the redis instance backing the job queue
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// QueueConfig holds durable job queue configuration
type QueueConfig struct {
	// Concurrency is the number of jobs a worker process runs at once
	Concurrency int `mapstructure:"concurrency"`
	// MaxRetry is the number of retries before a job is archived as failed
	MaxRetry int `mapstructure:"max_retry"`
	// InFlightLimit is the queue depth the admission layer fills up to
	InFlightLimit int `mapstructure:"in_flight_limit"`
	// AdmissionInterval is the period of the admission tick
	AdmissionInterval time.Duration `mapstructure:"admission_interval"`
	// JobTimeout bounds a single job run
	JobTimeout time.Duration `mapstructure:"job_timeout"`
	// Retention keeps completed block jobs, and their dedupe keys, for this long
	Retention time.Duration `mapstructure:"retention"`
}

// ChainConfig holds chain RPC configuration
type ChainConfig struct {
	RPCURL                string        `mapstructure:"rpc_url"`
	WebSocketURL          string        `mapstructure:"websocket_url"`
	Network               string        `mapstructure:"network"`
	MulticallAddress      string        `mapstructure:"multicall_address"`
	RPCRateLimitPerSecond int           `mapstructure:"rpc_rate_limit_per_second"`
	BlockHeadTTL          time.Duration `mapstructure:"block_head_ttl"`
	BlockHeadStaleWindow  time.Duration `mapstructure:"block_head_stale_window"`
}

// SyncConfig holds incremental ownership sync configuration
type SyncConfig struct {
	FetchLimit          int `mapstructure:"fetch_limit"`
	SubBatchSize        int `mapstructure:"sub_batch_size"`
	MetadataConcurrency int `mapstructure:"metadata_concurrency"`
}

// ReconcileConfig holds full reconciliation configuration
type ReconcileConfig struct {
	SingleWindowSize int `mapstructure:"single_window_size"`
	BalanceBatchSize int `mapstructure:"balance_batch_size"`
	// RefreshPeriod schedules a reconciliation of every collection; zero disables it
	RefreshPeriod time.Duration `mapstructure:"refresh_period"`
}

// MetadataConfig holds metadata file resolver configuration
type MetadataConfig struct {
	Dir       string        `mapstructure:"dir"`
	TTL       time.Duration `mapstructure:"ttl"`
	CacheSize int           `mapstructure:"cache_size"`
}

// ScheduleConfig holds recurring job intervals and backfill settings.
// A zero interval leaves the job unregistered.
type ScheduleConfig struct {
	FinalizedBlocksInterval   time.Duration `mapstructure:"finalized_blocks_interval"`
	MissingBlocksInterval     time.Duration `mapstructure:"missing_blocks_interval"`
	OwnershipSyncInterval     time.Duration `mapstructure:"ownership_sync_interval"`
	PricingInterval           time.Duration `mapstructure:"pricing_interval"`
	VerifiedContractsInterval time.Duration `mapstructure:"verified_contracts_interval"`
	StakingValidatorsInterval time.Duration `mapstructure:"staking_validators_interval"`
	BackfillRewind            uint64        `mapstructure:"backfill_rewind"`
	GapPollInterval           time.Duration `mapstructure:"gap_poll_interval"`
	StartBlock                uint64        `mapstructure:"start_block"`
}

// NATSConfig holds NATS JetStream configuration for ownership change notifications
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
}

// ServerConfig holds the health and metrics HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// SchedulerConfig holds configuration for the scheduler
type SchedulerConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig  `mapstructure:"database"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Queue      QueueConfig     `mapstructure:"queue"`
	Chain      ChainConfig     `mapstructure:"chain"`
	Reconcile  ReconcileConfig `mapstructure:"reconcile"`
	Schedule   ScheduleConfig  `mapstructure:"scheduler"`
	Server     ServerConfig    `mapstructure:"server"`
}

// WorkerConfig holds configuration for the worker
type WorkerConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig  `mapstructure:"database"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Queue      QueueConfig     `mapstructure:"queue"`
	Chain      ChainConfig     `mapstructure:"chain"`
	Sync       SyncConfig      `mapstructure:"sync"`
	Reconcile  ReconcileConfig `mapstructure:"reconcile"`
	Metadata   MetadataConfig  `mapstructure:"metadata"`
	Schedule   ScheduleConfig  `mapstructure:"scheduler"`
	NATS       NATSConfig      `mapstructure:"nats"`
	Server     ServerConfig    `mapstructure:"server"`
}

// LoadSchedulerConfig loads configuration for the scheduler
func LoadSchedulerConfig(configFile string, envPath string) (*SchedulerConfig, error) {
	v := configureViper("scheduler", configFile, envPath)

	setCommonDefaults(v)
	v.SetDefault("server.port", 8081)
	v.SetDefault("scheduler.finalized_blocks_interval", "4s")
	v.SetDefault("scheduler.missing_blocks_interval", "6h")
	v.SetDefault("scheduler.ownership_sync_interval", "30s")
	v.SetDefault("scheduler.gap_poll_interval", "10m")
	v.SetDefault("scheduler.backfill_rewind", 0)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg SchedulerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(cfg.Database, cfg.Redis, cfg.Chain); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWorkerConfig loads configuration for the worker
func LoadWorkerConfig(configFile string, envPath string) (*WorkerConfig, error) {
	v := configureViper("worker", configFile, envPath)

	setCommonDefaults(v)
	v.SetDefault("server.port", 8082)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.job_timeout", "2h")
	v.SetDefault("sync.fetch_limit", domain.DEFAULT_SYNC_FETCH_LIMIT)
	v.SetDefault("sync.sub_batch_size", domain.DEFAULT_SYNC_SUB_BATCH_SIZE)
	v.SetDefault("sync.metadata_concurrency", 16)
	v.SetDefault("metadata.dir", "blockchains")
	v.SetDefault("metadata.ttl", "5m")
	v.SetDefault("metadata.cache_size", 1024)
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.stream_name", "OWNERSHIP_CHANGES")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg WorkerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(cfg.Database, cfg.Redis, cfg.Chain); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setCommonDefaults(v *viper.Viper) {
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("queue.max_retry", 5)
	v.SetDefault("queue.in_flight_limit", 1000)
	v.SetDefault("queue.admission_interval", "3s")
	v.SetDefault("queue.retention", "24h")
	v.SetDefault("chain.network", "root")
	v.SetDefault("chain.multicall_address", domain.DEFAULT_MULTICALL3_ADDRESS)
	v.SetDefault("chain.block_head_ttl", "4s")
	v.SetDefault("chain.block_head_stale_window", "1m")
	v.SetDefault("reconcile.single_window_size", domain.DEFAULT_SINGLE_WINDOW_SIZE)
	v.SetDefault("reconcile.balance_batch_size", domain.DEFAULT_BALANCE_BATCH_SIZE)
	v.SetDefault("server.host", "0.0.0.0")
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			// Config file not found, use environment variables
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// validate reports the first required connection parameter that is absent
func validate(db DatabaseConfig, redis RedisConfig, chain ChainConfig) error {
	required := []struct {
		key   string
		value string
	}{
		{"database.host", db.Host},
		{"database.dbname", db.DBName},
		{"redis.addr", redis.Addr},
		{"chain.rpc_url", chain.RPCURL},
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s", domain.ErrMissingConfig, r.key)
		}
	}

	return nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	loadEnv(envPath, service)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix("NFT_INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Database
		"database.host",
		"database.port",
		"database.read_host",
		"database.read_port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// Redis
		"redis.addr",
		"redis.password",
		"redis.db",
		// Queue
		"queue.concurrency",
		"queue.max_retry",
		"queue.in_flight_limit",
		"queue.admission_interval",
		"queue.job_timeout",
		"queue.retention",
		// Chain
		"chain.rpc_url",
		"chain.websocket_url",
		"chain.network",
		"chain.multicall_address",
		"chain.rpc_rate_limit_per_second",
		"chain.block_head_ttl",
		"chain.block_head_stale_window",
		// Sync
		"sync.fetch_limit",
		"sync.sub_batch_size",
		"sync.metadata_concurrency",
		// Reconcile
		"reconcile.single_window_size",
		"reconcile.balance_batch_size",
		"reconcile.refresh_period",
		// Metadata
		"metadata.dir",
		"metadata.ttl",
		"metadata.cache_size",
		// Scheduler
		"scheduler.finalized_blocks_interval",
		"scheduler.missing_blocks_interval",
		"scheduler.ownership_sync_interval",
		"scheduler.pricing_interval",
		"scheduler.verified_contracts_interval",
		"scheduler.staking_validators_interval",
		"scheduler.backfill_rewind",
		"scheduler.gap_poll_interval",
		"scheduler.start_block",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		// Server
		"server.host",
		"server.port",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Shared base first, then local, then optional per-service local
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		_ = godotenv.Overload(filepath.Join(envPath, envFile))
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ReadDSN returns the read-replica database connection string.
// If ReadPort is not configured, it falls back to Port.
func (c *DatabaseConfig) ReadDSN() string {
	port := c.ReadPort
	if port == 0 {
		port = c.Port
	}

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.ReadHost, port, c.User, c.Password, c.DBName, c.SSLMode)
}
