package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/metrics"
	"github.com/feral-file/ff-ownership-indexer/internal/ownership"
	"github.com/feral-file/ff-ownership-indexer/internal/parser"
	"github.com/feral-file/ff-ownership-indexer/internal/store"
)

const (
	defaultCollections    = 10
	defaultTokensPerNft   = 100
	defaultSftCollections = 5
	defaultTransfers      = 10000
	defaultHolders        = 50
	defaultRuns           = 3
	defaultSeed           = 42
)

type Config struct {
	BenchmarkConfig
	Debug      bool
	OutputFile string // Output markdown file path (optional)
	SavePath   string // Persist the effective configuration (optional)
}

// RunStats is the outcome of one sync run over a fresh store
type RunStats struct {
	Run          int
	Events       int
	Updated      int
	Deleted      int
	Duration     time.Duration
	FirstPass    time.Duration
	Mismatches   int
	ReplayWrites int
	Err          error
}

func main() {
	cfg := parseFlags()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := logger.Initialize(logger.Config{Debug: cfg.Debug}); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}

	if cfg.SavePath != "" {
		if err := SaveConfig(cfg.SavePath, &cfg.BenchmarkConfig); err != nil {
			fmt.Printf("⚠️  Warning: Failed to save config: %v\n", err)
		}
	}

	workload := GenerateWorkload(cfg.BenchmarkConfig)
	fmt.Printf("Generated %d events (%d nft collections x %d tokens, %d sft collections, %d holders)\n",
		len(workload.Events), cfg.Collections, cfg.TokensPerNft, cfg.SftCollections, cfg.Holders)
	fmt.Printf("Fetch limit: %d, sub-batch size: %d, runs: %d\n\n", cfg.FetchLimit, cfg.SubBatchSize, cfg.Runs)

	var results []RunStats
	for i := 1; i <= cfg.Runs; i++ {
		if ctx.Err() != nil {
			fmt.Println("\n\nReceived interrupt signal, shutting down...")
			break
		}

		stats := runOnce(ctx, cfg.BenchmarkConfig, workload)
		stats.Run = i
		results = append(results, stats)
		fmt.Printf("%s run %d: %s (%s)\n", statusEmoji(stats.Mismatches, stats.Err), i,
			formatDuration(stats.Duration), formatRate(stats.Events, stats.Duration))
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("BENCHMARK RESULTS")
	fmt.Println(strings.Repeat("=", 80))
	printResults(cfg.BenchmarkConfig, results)

	if cfg.OutputFile != "" {
		if err := writeMarkdownReport(cfg.OutputFile, cfg.BenchmarkConfig, results); err != nil {
			fmt.Printf("\n⚠️  Warning: Failed to write markdown file: %v\n", err)
		} else {
			fmt.Printf("\n✓ Report written to: %s\n", cfg.OutputFile)
		}
	}

	for _, r := range results {
		if r.Err != nil || r.Mismatches > 0 {
			os.Exit(1)
		}
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.IntVar(&cfg.Collections, "collections", defaultCollections, "Number of nft collections")
	flag.IntVar(&cfg.TokensPerNft, "tokens", defaultTokensPerNft, "Tokens minted per nft collection")
	flag.IntVar(&cfg.SftCollections, "sft-collections", defaultSftCollections, "Number of sft collections")
	flag.IntVar(&cfg.Transfers, "transfers", defaultTransfers, "Number of transfer events")
	flag.IntVar(&cfg.Holders, "holders", defaultHolders, "Number of distinct holders")
	flag.IntVar(&cfg.FetchLimit, "fetch-limit", domain.DEFAULT_SYNC_FETCH_LIMIT, "Records fetched per sync round")
	flag.IntVar(&cfg.SubBatchSize, "sub-batch", domain.DEFAULT_SYNC_SUB_BATCH_SIZE, "Records applied per transaction")
	flag.IntVar(&cfg.Runs, "runs", defaultRuns, "Number of runs")
	flag.Int64Var(&cfg.Seed, "seed", defaultSeed, "Workload random seed")
	flag.StringVar(&cfg.OutputFile, "output", "", "Output markdown file path (optional)")
	flag.StringVar(&cfg.SavePath, "save-config", "", "Save the effective configuration to this path (optional)")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")

	configFile := flag.String("config", "", "Path to config file (optional)")

	flag.Parse()

	// Load from config file if specified
	if *configFile != "" {
		fileCfg, err := LoadConfig(*configFile)
		if err != nil {
			fmt.Printf("Warning: failed to load config file: %v\n", err)
		} else {
			// Explicit flags win, the file fills the rest
			set := make(map[string]bool)
			flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
			cfg.BenchmarkConfig.mergeUnset(fileCfg, set)
		}
	}

	if cfg.Holders <= 0 {
		cfg.Holders = 1
	}
	if cfg.Runs <= 0 {
		cfg.Runs = 1
	}

	return cfg
}

// runOnce replays the workload into a fresh store, syncs it twice and verifies the projection.
// The second pass must find nothing left to apply.
func runOnce(ctx context.Context, cfg BenchmarkConfig, w *Workload) RunStats {
	st := store.NewMemoryStore()
	stats := RunStats{Events: len(w.Events)}

	if err := st.SaveEvents(ctx, w.Events); err != nil {
		stats.Err = fmt.Errorf("failed to save events: %w", err)
		return stats
	}

	syncer := ownership.NewSyncer(ownership.Config{
		FetchLimit:   cfg.FetchLimit,
		SubBatchSize: cfg.SubBatchSize,
	}, st, parser.NewRegistry(), nil, nil, metrics.New())

	start := time.Now()
	result, err := syncer.Run(ctx)
	stats.FirstPass = time.Since(start)
	if err != nil {
		stats.Err = err
		stats.Duration = stats.FirstPass
		return stats
	}
	stats.Updated = result.Updated
	stats.Deleted = result.Deleted

	replay, err := syncer.Run(ctx)
	stats.Duration = time.Since(start)
	if err != nil {
		stats.Err = err
		return stats
	}
	stats.ReplayWrites = replay.Updated + replay.Deleted

	stats.Mismatches, stats.Err = w.Verify(ctx, st)
	stats.Mismatches += stats.ReplayWrites
	return stats
}

func printResults(cfg BenchmarkConfig, results []RunStats) {
	durations := make([]time.Duration, 0, len(results))
	for _, r := range results {
		durations = append(durations, r.FirstPass)

		fmt.Printf("\nRun %d %s\n", r.Run, statusEmoji(r.Mismatches, r.Err))
		fmt.Printf("  Events:       %d\n", r.Events)
		fmt.Printf("  Updated:      %d\n", r.Updated)
		fmt.Printf("  Deleted:      %d\n", r.Deleted)
		fmt.Printf("  First pass:   %s (%s)\n", formatDuration(r.FirstPass), formatRate(r.Events, r.FirstPass))
		fmt.Printf("  Mismatches:   %d (%s)\n", r.Mismatches, percentageString(r.Mismatches, r.Updated+r.Deleted))
		if r.Err != nil {
			fmt.Printf("  Error:        %v\n", r.Err)
		}
	}

	fmt.Printf("\nFirst pass p50: %s, p90: %s, max: %s (sub-batch %d)\n",
		formatDuration(percentile(durations, 50)),
		formatDuration(percentile(durations, 90)),
		formatDuration(percentile(durations, 100)),
		cfg.SubBatchSize)
}

// writeMarkdownReport writes a markdown report of the runs
func writeMarkdownReport(filepath string, cfg BenchmarkConfig, results []RunStats) error {
	file, err := os.Create(filepath)
	if err != nil {
		return err
	}
	defer func() {
		_ = file.Close()
	}()

	// Write header
	_, _ = fmt.Fprintf(file, "# Ownership Sync Benchmark Report\n\n")
	_, _ = fmt.Fprintf(file, "Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))

	// Workload section
	_, _ = fmt.Fprintf(file, "## Workload\n\n")
	_, _ = fmt.Fprintf(file, "| Property | Value |\n")
	_, _ = fmt.Fprintf(file, "|----------|-------|\n")
	_, _ = fmt.Fprintf(file, "| **NFT Collections** | %d |\n", cfg.Collections)
	_, _ = fmt.Fprintf(file, "| **Tokens per NFT** | %d |\n", cfg.TokensPerNft)
	_, _ = fmt.Fprintf(file, "| **SFT Collections** | %d |\n", cfg.SftCollections)
	_, _ = fmt.Fprintf(file, "| **Transfers** | %d |\n", cfg.Transfers)
	_, _ = fmt.Fprintf(file, "| **Holders** | %d |\n", cfg.Holders)
	_, _ = fmt.Fprintf(file, "| **Fetch Limit** | %d |\n", cfg.FetchLimit)
	_, _ = fmt.Fprintf(file, "| **Sub-batch Size** | %d |\n", cfg.SubBatchSize)
	_, _ = fmt.Fprintf(file, "| **Seed** | %d |\n", cfg.Seed)
	_, _ = fmt.Fprintf(file, "\n")

	if len(results) == 0 {
		_, _ = fmt.Fprintf(file, "*No runs completed.*\n")
		return nil
	}

	// Runs section
	_, _ = fmt.Fprintf(file, "## Runs\n\n")
	_, _ = fmt.Fprintf(file, "| Run | Status | Events | Updated | Deleted | First Pass | Rate | Mismatches |\n")
	_, _ = fmt.Fprintf(file, "|-----|--------|--------|---------|---------|------------|------|------------|\n")
	durations := make([]time.Duration, 0, len(results))
	for _, r := range results {
		durations = append(durations, r.FirstPass)
		_, _ = fmt.Fprintf(file, "| %d | %s | %d | %d | %d | %s | %s | %d |\n",
			r.Run, statusEmoji(r.Mismatches, r.Err), r.Events, r.Updated, r.Deleted,
			formatDuration(r.FirstPass), formatRate(r.Events, r.FirstPass), r.Mismatches)
	}
	_, _ = fmt.Fprintf(file, "\n")

	_, _ = fmt.Fprintf(file, "## Summary\n\n")
	_, _ = fmt.Fprintf(file, "| Metric | Value |\n")
	_, _ = fmt.Fprintf(file, "|--------|-------|\n")
	_, _ = fmt.Fprintf(file, "| **p50** | %s |\n", formatDuration(percentile(durations, 50)))
	_, _ = fmt.Fprintf(file, "| **p90** | %s |\n", formatDuration(percentile(durations, 90)))
	_, _ = fmt.Fprintf(file, "| **Max** | %s |\n", formatDuration(percentile(durations, 100)))

	return nil
}
