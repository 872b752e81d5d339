package store

import (
	"context"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
)

// SyncBatch is the aggregated write set of one sync sub-batch.
// It is applied atomically together with the processed flags of its source records.
type SyncBatch struct {
	// Sets are absolute single kind writes
	Sets []domain.OwnershipRecord
	// Deletes remove single kind records (burns)
	Deletes []domain.OwnershipKey
	// Increments add the signed Amount to balance kind records, creating them when absent
	Increments []domain.OwnershipRecord
	// EventIDs are the native events of the sub-batch
	EventIDs []string
	// TransactionHashes are the EVM transactions of the sub-batch
	TransactionHashes []string
}

// IsEmpty reports whether the batch neither writes nor marks anything
func (b SyncBatch) IsEmpty() bool {
	return len(b.Sets) == 0 && len(b.Deletes) == 0 && len(b.Increments) == 0 &&
		len(b.EventIDs) == 0 && len(b.TransactionHashes) == 0
}

// ReconcileBatch is the diff of one reconciliation window against chain state.
// Upserts set absolute values, never increments.
type ReconcileBatch struct {
	Upserts []domain.OwnershipRecord
	Deletes []domain.OwnershipKey
}

// IsEmpty reports whether the batch has no writes
func (b ReconcileBatch) IsEmpty() bool {
	return len(b.Upserts) == 0 && len(b.Deletes) == 0
}

// Store defines the interface for database operations
type Store interface {
	// FindUnprocessedEvents retrieves up to limit unprocessed native events ordered by (block_number, event_index)
	FindUnprocessedEvents(ctx context.Context, limit int) ([]domain.Event, error)
	// FindUnprocessedEvmTransactions retrieves up to limit unprocessed EVM transactions ordered by (block_number, transaction_index)
	FindUnprocessedEvmTransactions(ctx context.Context, limit int) ([]domain.EvmTransaction, error)
	// SaveEvents appends native events, existing events are left untouched
	SaveEvents(ctx context.Context, events []domain.Event) error
	// SaveEvmTransactions appends EVM transactions, existing transactions are left untouched
	SaveEvmTransactions(ctx context.Context, txs []domain.EvmTransaction) error
	// FindNativeCollectionEvents retrieves every native event of a section that refers to a collection id
	FindNativeCollectionEvents(ctx context.Context, section string, collectionID uint32) ([]domain.Event, error)
	// FindContractEvmTransactions retrieves every EVM transaction with a log emitted by the contract
	FindContractEvmTransactions(ctx context.Context, contractAddress string) ([]domain.EvmTransaction, error)

	// ApplySyncBatch applies a sync sub-batch and marks its source records processed in one transaction
	ApplySyncBatch(ctx context.Context, batch SyncBatch) error
	// ApplyReconcileBatch applies absolute upserts and deletions in one transaction
	ApplyReconcileBatch(ctx context.Context, batch ReconcileBatch) error
	// GetOwnershipRecords retrieves the records of a contract, restricted to tokenIDs when not empty
	GetOwnershipRecords(ctx context.Context, kind domain.TokenKind, contractAddress string, tokenIDs []string) ([]domain.OwnershipRecord, error)

	// GetCollection retrieves a collection by contract address, nil when not tracked
	GetCollection(ctx context.Context, contractAddress string) (*domain.Collection, error)
	// GetCollectionsByAddresses retrieves the tracked collections among the given addresses keyed by address
	GetCollectionsByAddresses(ctx context.Context, addresses []string) (map[string]domain.Collection, error)
	// ListCollections retrieves every tracked collection
	ListCollections(ctx context.Context) ([]domain.Collection, error)
	// UpsertCollection creates or updates a collection
	UpsertCollection(ctx context.Context, collection domain.Collection) error

	// SaveBlock appends a block, an existing block is left untouched
	SaveBlock(ctx context.Context, block domain.Block) error
	// GetLastBlockNumber retrieves the highest stored block number, false when no block is stored
	GetLastBlockNumber(ctx context.Context) (uint64, bool, error)
	// MarkBlocksFinalized marks every stored block up to and including upTo finalized
	MarkBlocksFinalized(ctx context.Context, upTo uint64) (int64, error)
	// FindMissingBlockRanges retrieves the ranges within [from, to] that have no stored block
	FindMissingBlockRanges(ctx context.Context, from, to uint64) ([]domain.BlockRange, error)

	// SetKeyValue sets a key-value pair in the key-value store
	SetKeyValue(ctx context.Context, key string, value string) error
	// GetKeyValue retrieves a value by key, empty string when absent
	GetKeyValue(ctx context.Context, key string) (string, error)
	// DeleteKeyValue removes a key
	DeleteKeyValue(ctx context.Context, key string) error
	// GetAllKeyValuesByPrefix retrieves all key-value pairs with a specific prefix
	GetAllKeyValuesByPrefix(ctx context.Context, prefix string) (map[string]string, error)
}
