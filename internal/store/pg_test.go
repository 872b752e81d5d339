package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	testDB      *gorm.DB
	pgContainer *postgres.PostgresContainer
)

// TestMain prepares the PostgreSQL database shared by the store tests.
// When neither TEST_DB_HOST nor a container runtime is available the PostgreSQL
// suite is skipped and only the in-memory suite runs.
func TestMain(m *testing.M) {
	ctx := context.Background()

	dsn, err := testDSN(ctx)
	if err != nil {
		fmt.Printf("PostgreSQL unavailable, skipping PostgreSQL store tests: %v\n", err)
		os.Exit(m.Run())
	}

	testDB, err = gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		terminateContainer(ctx)
		os.Exit(1)
	}

	if err := initializeTestDatabase(testDB); err != nil {
		fmt.Printf("Failed to initialize database: %v\n", err)
		terminateContainer(ctx)
		os.Exit(1)
	}

	code := m.Run()
	terminateContainer(ctx)
	os.Exit(code)
}

// testDSN returns the DSN of the external test database when TEST_DB_HOST is set,
// otherwise it starts a PostgreSQL container
func testDSN(ctx context.Context) (string, error) {
	if host := os.Getenv("TEST_DB_HOST"); host != "" {
		port := envOr("TEST_DB_PORT", "5432")
		user := envOr("TEST_DB_USER", "postgres")
		password := envOr("TEST_DB_PASSWORD", "postgres")
		name := envOr("TEST_DB_NAME", "test_db")

		fmt.Printf("Using external database: %s:%s/%s\n", host, port, name)
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, user, password, name), nil
	}

	var err error
	pgContainer, err = postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		terminateContainer(ctx)
		return "", fmt.Errorf("failed to get connection string: %w", err)
	}

	return dsn, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func terminateContainer(ctx context.Context) {
	if pgContainer == nil {
		return
	}
	if err := pgContainer.Terminate(ctx); err != nil {
		fmt.Printf("Failed to terminate PostgreSQL container: %v\n", err)
	}
	pgContainer = nil
}

// initializeTestDatabase runs the schema initialization
func initializeTestDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	schemaPath := filepath.Join("..", "..", "db", "init_pg_db.sql")
	schemaSQL, err := os.ReadFile(schemaPath) //nolint:gosec,G304
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	if _, err = sqlDB.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// initPGTestDB opens a transaction per test that is rolled back on cleanup
func initPGTestDB(t *testing.T) Store {
	tx := testDB.Begin()
	require.NotNil(t, tx)
	require.NoError(t, tx.Error)

	t.Cleanup(func() {
		tx.Rollback()
	})

	return NewPGStore(tx)
}

func cleanupPGTestDB(t *testing.T) {}

// TestPostgreSQLStore runs all store tests against PostgreSQL
func TestPostgreSQLStore(t *testing.T) {
	if testDB == nil {
		t.Skip("PostgreSQL test database not available")
	}

	RunStoreTests(t, initPGTestDB, cleanupPGTestDB)
}

func TestCalculateSafeBatchSize(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		fields int
		want   int
	}{
		{"fewer records than the limit", 10, nftOwnerFields, 10},
		{"nft owner rows", 100000, nftOwnerFields, 4964},
		{"id list", 100000, 1, 64535},
		{"huge field count", 5, 100000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, calculateSafeBatchSize(tt.total, tt.fields))
		})
	}
}

func TestNormalizeConnectionPoolSettings(t *testing.T) {
	open, idle, lifetime, idleTime := NormalizeConnectionPoolSettings(0, 0, 0, 0)
	require.Equal(t, 20, open)
	require.Equal(t, 5, idle)
	require.Equal(t, 5*time.Minute, lifetime)
	require.Equal(t, 10*time.Minute, idleTime)

	open, idle, _, _ = NormalizeConnectionPoolSettings(4, 10, time.Minute, time.Minute)
	require.Equal(t, 4, open)
	require.Equal(t, 4, idle)
}
