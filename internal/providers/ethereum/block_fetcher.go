package ethereum

import (
	"context"

	"github.com/feral-file/ff-ownership-indexer/internal/block"
)

// chainBlockFetcher implements block.BlockFetcher on top of the chain client
type chainBlockFetcher struct {
	client ChainClient
}

func NewBlockFetcher(client ChainClient) block.BlockFetcher {
	return &chainBlockFetcher{client: client}
}

// FetchLatestBlock fetches the latest block number
func (f *chainBlockFetcher) FetchLatestBlock(ctx context.Context) (uint64, error) {
	return f.client.GetChainHead(ctx)
}

// FetchFinalizedBlock fetches the latest finalized block number
func (f *chainBlockFetcher) FetchFinalizedBlock(ctx context.Context) (uint64, error) {
	return f.client.GetFinalizedHead(ctx)
}
