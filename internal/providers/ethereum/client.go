package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/feral-file/ff-ownership-indexer/internal/adapter"
	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/ratelimit"
)

// ChainClient is the chain RPC client used by the scheduler and the engines
//
//go:generate mockgen -source=client.go -destination=../../mocks/chain_client.go -package=mocks -mock_names=ChainClient=MockChainClient
type ChainClient interface {
	// GetChainHead returns the latest block number
	GetChainHead(ctx context.Context) (uint64, error)

	// GetFinalizedHead returns the latest finalized block number
	GetFinalizedHead(ctx context.Context) (uint64, error)

	// BatchCall issues every call in one multicall round trip.
	// A reverted call is reported through its CallResult, never as an error of the batch.
	BatchCall(ctx context.Context, calls []Call) ([]CallResult, error)

	// FetchBlock returns a block and its transactions carrying NFT transfer logs
	FetchBlock(ctx context.Context, blockNumber uint64) (*domain.Block, []domain.EvmTransaction, error)

	// SubscribeNewBlocks calls handler with every new head until ctx is done.
	// A dropped subscription is re-established with exponential backoff.
	SubscribeNewBlocks(ctx context.Context, handler BlockHandler) error

	// Close closes the connection
	Close()
}

// BlockHandler receives the number of a newly observed head
type BlockHandler func(ctx context.Context, blockNumber uint64) error

// Config holds chain client configuration
type Config struct {
	// MulticallAddress is the Multicall3 deployment, DEFAULT_MULTICALL3_ADDRESS when empty
	MulticallAddress string

	// PollInterval is the head polling period used when the endpoint has no subscriptions
	PollInterval time.Duration

	// ResubscribeInitialInterval and ResubscribeMaxInterval bound the re-subscription backoff
	ResubscribeInitialInterval time.Duration
	ResubscribeMaxInterval     time.Duration
}

type chainClient struct {
	config    Config
	multicall common.Address
	client    adapter.EthClient
	limiter   ratelimit.Limiter
	clock     adapter.Clock
}

// NewClient creates a chain client. A nil limiter leaves RPC calls unlimited.
func NewClient(cfg Config, client adapter.EthClient, limiter ratelimit.Limiter, clock adapter.Clock) (ChainClient, error) {
	if cfg.MulticallAddress == "" {
		cfg.MulticallAddress = domain.DEFAULT_MULTICALL3_ADDRESS
	}
	if !common.IsHexAddress(cfg.MulticallAddress) {
		return nil, fmt.Errorf("invalid multicall address: %s", cfg.MulticallAddress)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 4 * time.Second
	}
	if cfg.ResubscribeInitialInterval <= 0 {
		cfg.ResubscribeInitialInterval = time.Second
	}
	if cfg.ResubscribeMaxInterval <= 0 {
		cfg.ResubscribeMaxInterval = time.Minute
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited()
	}

	return &chainClient{
		config:    cfg,
		multicall: common.HexToAddress(cfg.MulticallAddress),
		client:    client,
		limiter:   limiter,
		clock:     clock,
	}, nil
}

// GetChainHead returns the latest block number
func (c *chainClient) GetChainHead(ctx context.Context) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	number, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return number, nil
}

// GetFinalizedHead returns the latest finalized block number
func (c *chainClient) GetFinalizedHead(ctx context.Context) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	header, err := c.client.HeaderByNumber(ctx, big.NewInt(int64(rpc.FinalizedBlockNumber)))
	if err != nil {
		return 0, fmt.Errorf("failed to get finalized header: %w", err)
	}
	return header.Number.Uint64(), nil
}

// BatchCall issues every call through Multicall3 aggregate3 with allowFailure set
func (c *chainClient) BatchCall(ctx context.Context, calls []Call) ([]CallResult, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	data, err := packAggregate3(calls)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.client.CallContract(ctx, geth.CallMsg{
		To:   &c.multicall,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call multicall: %w", err)
	}

	results, err := unpackAggregate3(result)
	if err != nil {
		return nil, err
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("multicall returned %d results for %d calls", len(results), len(calls))
	}

	return results, nil
}

// FetchBlock returns the block header and the transactions of the block with NFT transfer logs
func (c *chainClient) FetchBlock(ctx context.Context, blockNumber uint64) (*domain.Block, []domain.EvmTransaction, error) {
	number := new(big.Int).SetUint64(blockNumber)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	header, err := c.client.HeaderByNumber(ctx, number)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get header %d: %w", blockNumber, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	logs, err := c.client.FilterLogs(ctx, geth.FilterQuery{
		FromBlock: number,
		ToBlock:   number,
		Topics:    transferTopics,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get logs of block %d: %w", blockNumber, err)
	}

	txs, err := groupTransactions(blockNumber, header.Time, logs)
	if err != nil {
		return nil, nil, err
	}

	logger.DebugCtx(ctx, "Fetched block",
		zap.Uint64("block_number", blockNumber),
		zap.Int("logs", len(logs)),
		zap.Int("transactions", len(txs)))

	return &domain.Block{
		Number:    blockNumber,
		Hash:      header.Hash().Hex(),
		Timestamp: blockTime(header.Time),
	}, txs, nil
}

// Close closes the connection
func (c *chainClient) Close() {
	c.client.Close()
}

func blockTime(timestamp uint64) time.Time {
	return time.Unix(int64(timestamp), 0).UTC() //nolint:gosec,G115 // block time from geth fits int64
}
