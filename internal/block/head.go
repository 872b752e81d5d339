package block

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-ownership-indexer/internal/adapter"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
)

// HeadProvider provides cached access to the chain heads.
// The scheduler and the block handlers ask for the head far more often than it moves,
// so each head is cached for a TTL and served stale within StaleWindow when the RPC fails.
//
//go:generate mockgen -source=head.go -destination=../mocks/block_head_provider.go -package=mocks -mock_names=HeadProvider=MockHeadProvider
type HeadProvider interface {
	// GetLatestBlock returns the latest block number, potentially from cache
	GetLatestBlock(ctx context.Context) (uint64, error)

	// GetFinalizedBlock returns the latest finalized block number, potentially from cache
	GetFinalizedBlock(ctx context.Context) (uint64, error)
}

// BlockFetcher reads the chain heads from the RPC
//
//go:generate mockgen -source=head.go -destination=../mocks/block_head_provider.go -package=mocks -mock_names=BlockFetcher=MockBlockFetcher
type BlockFetcher interface {
	// FetchLatestBlock fetches the latest block number
	FetchLatestBlock(ctx context.Context) (uint64, error)

	// FetchFinalizedBlock fetches the latest finalized block number
	FetchFinalizedBlock(ctx context.Context) (uint64, error)
}

// Config holds configuration for the HeadProvider
type Config struct {
	// TTL is how long to cache a head
	TTL time.Duration

	// StaleWindow is how long to use stale data if fetching fails
	// If the cached data is older than this and fetch fails, return error
	StaleWindow time.Duration
}

// cachedHead is one head with the time it was fetched
type cachedHead struct {
	number    uint64
	fetchedAt time.Time
}

type headProvider struct {
	fetcher BlockFetcher
	config  Config
	clock   adapter.Clock

	mu        sync.RWMutex
	latest    *cachedHead
	finalized *cachedHead
}

// NewHeadProvider creates a new HeadProvider with caching
func NewHeadProvider(fetcher BlockFetcher, config Config, clock adapter.Clock) HeadProvider {
	return &headProvider{
		fetcher: fetcher,
		config:  config,
		clock:   clock,
	}
}

// GetLatestBlock returns the latest block number, using cache if valid
func (p *headProvider) GetLatestBlock(ctx context.Context) (uint64, error) {
	return p.get(ctx, "latest", &p.latest, p.fetcher.FetchLatestBlock)
}

// GetFinalizedBlock returns the latest finalized block number, using cache if valid
func (p *headProvider) GetFinalizedBlock(ctx context.Context) (uint64, error) {
	return p.get(ctx, "finalized", &p.finalized, p.fetcher.FetchFinalizedBlock)
}

func (p *headProvider) get(ctx context.Context, name string, slot **cachedHead, fetch func(context.Context) (uint64, error)) (uint64, error) {
	p.mu.RLock()
	cached := *slot
	p.mu.RUnlock()

	now := p.clock.Now()

	if cached != nil && now.Sub(cached.fetchedAt) < p.config.TTL {
		logger.DebugCtx(ctx, "Using cached head", zap.String("head", name), zap.Uint64("block_number", cached.number))
		return cached.number, nil
	}

	number, err := fetch(ctx)
	if err != nil {
		if cached != nil && now.Sub(cached.fetchedAt) < p.config.StaleWindow {
			logger.WarnCtx(ctx, "Using stale head", zap.String("head", name), zap.Uint64("block_number", cached.number), zap.Error(err))
			return cached.number, nil
		}
		return 0, fmt.Errorf("failed to fetch %s block and no valid cache available: %w", name, err)
	}

	p.mu.Lock()
	// Heads never move backwards within the cache
	if current := *slot; current != nil && current.number > number {
		number = current.number
	}
	*slot = &cachedHead{number: number, fetchedAt: now}
	p.mu.Unlock()

	return number, nil
}
