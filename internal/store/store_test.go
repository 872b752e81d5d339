package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
)

// =============================================================================
// Test Data Builders
// =============================================================================

var (
	testSingleContract  = domain.CollectionIDToSingleAddress(1124)
	testBalanceContract = domain.CollectionIDToBalanceAddress(2148)
	testOwnerA          = domain.NormalizeAddress("0x1111111111111111111111111111111111111111")
	testOwnerB          = domain.NormalizeAddress("0x2222222222222222222222222222222222222222")
	testOwnerC          = domain.NormalizeAddress("0x3333333333333333333333333333333333333333")
	testTime            = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func buildTestEvent(block, index uint64, section, method string, args string) domain.Event {
	return domain.Event{
		EventID:     fmt.Sprintf("%d-%d", block, index),
		BlockNumber: block,
		EventIndex:  index,
		Section:     section,
		Method:      method,
		Args:        json.RawMessage(args),
		Timestamp:   testTime,
	}
}

func buildTestEvmTransaction(hash string, block, index uint64, logs ...domain.EvmLogEvent) domain.EvmTransaction {
	return domain.EvmTransaction{
		Hash:             hash,
		BlockNumber:      block,
		TransactionIndex: index,
		Timestamp:        testTime,
		Events:           logs,
	}
}

func buildSingleRecord(contract, tokenID, owner string) domain.OwnershipRecord {
	return domain.OwnershipRecord{
		Kind:            domain.TokenKindSingle,
		ContractAddress: contract,
		TokenID:         tokenID,
		Owner:           owner,
		Provenance:      domain.Provenance{BlockNumber: 10, EventID: "10-1", Timestamp: testTime},
	}
}

func buildBalanceRecord(contract, tokenID, owner string, amount int64) domain.OwnershipRecord {
	return domain.OwnershipRecord{
		Kind:            domain.TokenKindBalance,
		ContractAddress: contract,
		TokenID:         tokenID,
		Owner:           owner,
		Amount:          big.NewInt(amount),
		Provenance:      domain.Provenance{BlockNumber: 10, EventID: "10-1", Timestamp: testTime},
	}
}

// ownersByToken flattens records to tokenId -> owner for single kind assertions
func ownersByToken(records []domain.OwnershipRecord) map[string]string {
	result := make(map[string]string, len(records))
	for _, r := range records {
		result[r.TokenID] = r.Owner
	}
	return result
}

// balancesByOwner flattens records to "tokenId/owner" -> amount for balance kind assertions
func balancesByOwner(records []domain.OwnershipRecord) map[string]string {
	result := make(map[string]string, len(records))
	for _, r := range records {
		result[r.TokenID+"/"+r.Owner] = r.Amount.String()
	}
	return result
}

// =============================================================================
// Source records
// =============================================================================

func testSourceRecords(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("unprocessed events are returned in numeric chain order", func(t *testing.T) {
		events := []domain.Event{
			buildTestEvent(12, 10, "nft", "Transfer", `{}`),
			buildTestEvent(12, 9, "nft", "Transfer", `{}`),
			buildTestEvent(100, 1, "nft", "Mint", `{}`),
			buildTestEvent(9, 2, "balances", "Transfer", `{}`),
		}
		require.NoError(t, store.SaveEvents(ctx, events))

		found, err := store.FindUnprocessedEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, found, 4)

		ids := make([]string, len(found))
		for i, e := range found {
			ids[i] = e.EventID
		}
		assert.Equal(t, []string{"9-2", "12-9", "12-10", "100-1"}, ids)
	})

	t.Run("limit bounds the fetch", func(t *testing.T) {
		found, err := store.FindUnprocessedEvents(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, found, 2)
		assert.Equal(t, "9-2", found[0].EventID)
	})

	t.Run("saving an existing event keeps its processed flag", func(t *testing.T) {
		err := store.ApplySyncBatch(ctx, SyncBatch{EventIDs: []string{"9-2"}})
		require.NoError(t, err)

		require.NoError(t, store.SaveEvents(ctx, []domain.Event{buildTestEvent(9, 2, "balances", "Transfer", `{}`)}))

		found, err := store.FindUnprocessedEvents(ctx, 10)
		require.NoError(t, err)
		for _, e := range found {
			assert.NotEqual(t, "9-2", e.EventID)
		}
	})

	t.Run("unprocessed evm transactions are ordered by block and index", func(t *testing.T) {
		log := domain.EvmLogEvent{
			Type:      domain.StandardERC721,
			EventName: "Transfer",
			Address:   testSingleContract,
			From:      testOwnerA,
			To:        testOwnerB,
			TokenID:   "1",
		}
		txs := []domain.EvmTransaction{
			buildTestEvmTransaction("0xbb", 20, 3, log),
			buildTestEvmTransaction("0xaa", 20, 12, log),
			buildTestEvmTransaction("0xcc", 3, 0),
		}
		require.NoError(t, store.SaveEvmTransactions(ctx, txs))

		found, err := store.FindUnprocessedEvmTransactions(ctx, 10)
		require.NoError(t, err)
		require.Len(t, found, 3)
		assert.Equal(t, "0xcc", found[0].Hash)
		assert.Equal(t, "0xbb", found[1].Hash)
		assert.Equal(t, "0xaa", found[2].Hash)
		require.Len(t, found[1].Events, 1)
		assert.Equal(t, testOwnerB, found[1].Events[0].To)
	})

	t.Run("find native events referring to a collection", func(t *testing.T) {
		events := []domain.Event{
			buildTestEvent(200, 1, "sft", "Mint", `{"collectionId": 2148, "owner": "x"}`),
			buildTestEvent(200, 2, "sft", "TokenCreate", `{"tokenId": [2148, 0], "tokenOwner": "y"}`),
			buildTestEvent(200, 3, "sft", "Mint", `{"collectionId": 99}`),
			buildTestEvent(200, 4, "nft", "Mint", `{"collectionId": 2148}`),
			buildTestEvent(200, 5, "sft", "Transfer", `{"collectionId": "2148"}`),
		}
		require.NoError(t, store.SaveEvents(ctx, events))

		found, err := store.FindNativeCollectionEvents(ctx, "sft", 2148)
		require.NoError(t, err)

		ids := make([]string, len(found))
		for i, e := range found {
			ids[i] = e.EventID
		}
		assert.Equal(t, []string{"200-1", "200-2", "200-5"}, ids)
	})

	t.Run("find evm transactions of a contract", func(t *testing.T) {
		found, err := store.FindContractEvmTransactions(ctx, testSingleContract)
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "0xbb", found[0].Hash)

		found, err = store.FindContractEvmTransactions(ctx, testBalanceContract)
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

// =============================================================================
// Ownership projection
// =============================================================================

func testApplySyncBatch(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("applies sets increments and marks sources processed", func(t *testing.T) {
		require.NoError(t, store.SaveEvents(ctx, []domain.Event{
			buildTestEvent(1, 1, "nft", "Mint", `{}`),
			buildTestEvent(1, 2, "sft", "Mint", `{}`),
		}))

		err := store.ApplySyncBatch(ctx, SyncBatch{
			Sets: []domain.OwnershipRecord{
				buildSingleRecord(testSingleContract, "5", testOwnerA),
				buildSingleRecord(testSingleContract, "6", testOwnerA),
			},
			Increments: []domain.OwnershipRecord{
				buildBalanceRecord(testBalanceContract, "2", testOwnerA, 3),
			},
			EventIDs: []string{"1-1", "1-2"},
		})
		require.NoError(t, err)

		singles, err := store.GetOwnershipRecords(ctx, domain.TokenKindSingle, testSingleContract, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"5": testOwnerA, "6": testOwnerA}, ownersByToken(singles))

		balances, err := store.GetOwnershipRecords(ctx, domain.TokenKindBalance, testBalanceContract, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"2/" + testOwnerA: "3"}, balancesByOwner(balances))

		unprocessed, err := store.FindUnprocessedEvents(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, unprocessed)
	})

	t.Run("single kind set replaces the owner", func(t *testing.T) {
		err := store.ApplySyncBatch(ctx, SyncBatch{
			Sets: []domain.OwnershipRecord{buildSingleRecord(testSingleContract, "5", testOwnerB)},
		})
		require.NoError(t, err)

		records, err := store.GetOwnershipRecords(ctx, domain.TokenKindSingle, testSingleContract, []string{"5"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, testOwnerB, records[0].Owner)
	})

	t.Run("increments are added and balances reaching zero are removed", func(t *testing.T) {
		err := store.ApplySyncBatch(ctx, SyncBatch{
			Increments: []domain.OwnershipRecord{
				buildBalanceRecord(testBalanceContract, "2", testOwnerA, -3),
				buildBalanceRecord(testBalanceContract, "2", testOwnerB, 3),
			},
		})
		require.NoError(t, err)

		balances, err := store.GetOwnershipRecords(ctx, domain.TokenKindBalance, testBalanceContract, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"2/" + testOwnerB: "3"}, balancesByOwner(balances))
	})

	t.Run("a debit of an unknown holder never leaves a stored row", func(t *testing.T) {
		err := store.ApplySyncBatch(ctx, SyncBatch{
			Increments: []domain.OwnershipRecord{buildBalanceRecord(testBalanceContract, "7", testOwnerC, -1)},
		})
		require.NoError(t, err)

		balances, err := store.GetOwnershipRecords(ctx, domain.TokenKindBalance, testBalanceContract, []string{"7"})
		require.NoError(t, err)
		assert.Empty(t, balances)
	})

	t.Run("deletes remove single kind records", func(t *testing.T) {
		err := store.ApplySyncBatch(ctx, SyncBatch{
			Deletes: []domain.OwnershipKey{{Kind: domain.TokenKindSingle, ContractAddress: testSingleContract, TokenID: "6"}},
		})
		require.NoError(t, err)

		records, err := store.GetOwnershipRecords(ctx, domain.TokenKindSingle, testSingleContract, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"5": testOwnerB}, ownersByToken(records))
	})

	t.Run("a batch claiming processed sources is rolled back", func(t *testing.T) {
		require.NoError(t, store.SaveEvents(ctx, []domain.Event{buildTestEvent(2, 1, "sft", "Mint", `{}`)}))

		err := store.ApplySyncBatch(ctx, SyncBatch{
			Increments: []domain.OwnershipRecord{buildBalanceRecord(testBalanceContract, "2", testOwnerB, 10)},
			EventIDs:   []string{"2-1", "1-1"},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrSourceAlreadyProcessed))

		balances, err := store.GetOwnershipRecords(ctx, domain.TokenKindBalance, testBalanceContract, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"2/" + testOwnerB: "3"}, balancesByOwner(balances))

		unprocessed, err := store.FindUnprocessedEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, unprocessed, 1)
		assert.Equal(t, "2-1", unprocessed[0].EventID)
	})

	t.Run("metadata is kept when a write carries none", func(t *testing.T) {
		withMetadata := buildSingleRecord(testSingleContract, "9", testOwnerA)
		withMetadata.Metadata = &domain.Metadata{Name: "Token 9", Image: "ipfs://image"}
		require.NoError(t, store.ApplySyncBatch(ctx, SyncBatch{Sets: []domain.OwnershipRecord{withMetadata}}))

		require.NoError(t, store.ApplySyncBatch(ctx, SyncBatch{
			Sets: []domain.OwnershipRecord{buildSingleRecord(testSingleContract, "9", testOwnerC)},
		}))

		records, err := store.GetOwnershipRecords(ctx, domain.TokenKindSingle, testSingleContract, []string{"9"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, testOwnerC, records[0].Owner)
		require.NotNil(t, records[0].Metadata)
		assert.Equal(t, "Token 9", records[0].Metadata.Name)
	})

	t.Run("empty metadata clears the stored metadata", func(t *testing.T) {
		withMetadata := buildSingleRecord(testSingleContract, "10", testOwnerA)
		withMetadata.Metadata = &domain.Metadata{Name: "Token 10"}
		require.NoError(t, store.ApplySyncBatch(ctx, SyncBatch{Sets: []domain.OwnershipRecord{withMetadata}}))

		cleared := buildSingleRecord(testSingleContract, "10", testOwnerB)
		cleared.Metadata = &domain.Metadata{}
		require.NoError(t, store.ApplySyncBatch(ctx, SyncBatch{Sets: []domain.OwnershipRecord{cleared}}))

		records, err := store.GetOwnershipRecords(ctx, domain.TokenKindSingle, testSingleContract, []string{"10"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, testOwnerB, records[0].Owner)
		assert.Nil(t, records[0].Metadata)
	})
}

func testApplyReconcileBatch(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("upserts set absolute amounts", func(t *testing.T) {
		require.NoError(t, store.ApplySyncBatch(ctx, SyncBatch{
			Increments: []domain.OwnershipRecord{buildBalanceRecord(testBalanceContract, "1", testOwnerA, 5)},
		}))

		err := store.ApplyReconcileBatch(ctx, ReconcileBatch{
			Upserts: []domain.OwnershipRecord{
				buildBalanceRecord(testBalanceContract, "1", testOwnerA, 2),
				buildSingleRecord(testSingleContract, "1", testOwnerB),
			},
		})
		require.NoError(t, err)

		balances, err := store.GetOwnershipRecords(ctx, domain.TokenKindBalance, testBalanceContract, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"1/" + testOwnerA: "2"}, balancesByOwner(balances))

		singles, err := store.GetOwnershipRecords(ctx, domain.TokenKindSingle, testSingleContract, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"1": testOwnerB}, ownersByToken(singles))
	})

	t.Run("deletes remove balance records", func(t *testing.T) {
		err := store.ApplyReconcileBatch(ctx, ReconcileBatch{
			Deletes: []domain.OwnershipKey{{
				Kind:            domain.TokenKindBalance,
				ContractAddress: testBalanceContract,
				TokenID:         "1",
				Owner:           testOwnerA,
			}},
		})
		require.NoError(t, err)

		balances, err := store.GetOwnershipRecords(ctx, domain.TokenKindBalance, testBalanceContract, nil)
		require.NoError(t, err)
		assert.Empty(t, balances)
	})

	t.Run("non-positive balance upserts are rejected", func(t *testing.T) {
		err := store.ApplyReconcileBatch(ctx, ReconcileBatch{
			Upserts: []domain.OwnershipRecord{buildBalanceRecord(testBalanceContract, "1", testOwnerA, 0)},
		})
		assert.Error(t, err)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		assert.NoError(t, store.ApplyReconcileBatch(ctx, ReconcileBatch{}))
	})
}

// =============================================================================
// Collections
// =============================================================================

func testCollections(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("get missing collection returns nil", func(t *testing.T) {
		collection, err := store.GetCollection(ctx, testSingleContract)
		require.NoError(t, err)
		assert.Nil(t, collection)
	})

	t.Run("upsert and get", func(t *testing.T) {
		id := uint32(1124)
		supply := uint64(50)
		err := store.UpsertCollection(ctx, domain.Collection{
			ContractAddress: testSingleContract,
			Kind:            domain.TokenKindSingle,
			CollectionID:    &id,
			TotalSupply:     &supply,
			Name:            "Native",
		})
		require.NoError(t, err)

		collection, err := store.GetCollection(ctx, testSingleContract)
		require.NoError(t, err)
		require.NotNil(t, collection)
		assert.Equal(t, domain.TokenKindSingle, collection.Kind)
		require.NotNil(t, collection.CollectionID)
		assert.Equal(t, id, *collection.CollectionID)
		require.NotNil(t, collection.TotalSupply)
		assert.Equal(t, supply, *collection.TotalSupply)
		assert.True(t, collection.IsNative())
	})

	t.Run("upsert updates supply", func(t *testing.T) {
		supply := uint64(75)
		err := store.UpsertCollection(ctx, domain.Collection{
			ContractAddress: testSingleContract,
			Kind:            domain.TokenKindSingle,
			TotalSupply:     &supply,
		})
		require.NoError(t, err)

		collection, err := store.GetCollection(ctx, testSingleContract)
		require.NoError(t, err)
		require.NotNil(t, collection.TotalSupply)
		assert.Equal(t, supply, *collection.TotalSupply)
	})

	t.Run("invalid kind is rejected", func(t *testing.T) {
		err := store.UpsertCollection(ctx, domain.Collection{ContractAddress: testOwnerA, Kind: "fungible"})
		assert.Error(t, err)
	})

	t.Run("list and lookup by addresses", func(t *testing.T) {
		require.NoError(t, store.UpsertCollection(ctx, domain.Collection{
			ContractAddress: testBalanceContract,
			Kind:            domain.TokenKindBalance,
		}))

		collections, err := store.ListCollections(ctx)
		require.NoError(t, err)
		assert.Len(t, collections, 2)

		byAddress, err := store.GetCollectionsByAddresses(ctx, []string{testBalanceContract, testOwnerA})
		require.NoError(t, err)
		require.Len(t, byAddress, 1)
		assert.Equal(t, domain.TokenKindBalance, byAddress[testBalanceContract].Kind)
		assert.Nil(t, byAddress[testBalanceContract].TotalSupply)
	})
}

// =============================================================================
// Blocks
// =============================================================================

func testBlocks(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("no block stored", func(t *testing.T) {
		_, found, err := store.GetLastBlockNumber(ctx)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("last block and missing ranges", func(t *testing.T) {
		for _, n := range []uint64{3, 4, 7, 10} {
			require.NoError(t, store.SaveBlock(ctx, domain.Block{Number: n, Hash: fmt.Sprintf("0x%02x", n), Timestamp: testTime}))
		}
		require.NoError(t, store.SaveBlock(ctx, domain.Block{Number: 4, Hash: "0xdup", Timestamp: testTime}))

		last, found, err := store.GetLastBlockNumber(ctx)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, uint64(10), last)

		ranges, err := store.FindMissingBlockRanges(ctx, 0, 12)
		require.NoError(t, err)
		assert.Equal(t, []domain.BlockRange{{From: 0, To: 2}, {From: 5, To: 6}, {From: 8, To: 9}, {From: 11, To: 12}}, ranges)

		ranges, err = store.FindMissingBlockRanges(ctx, 3, 4)
		require.NoError(t, err)
		assert.Empty(t, ranges)
	})

	t.Run("mark finalized", func(t *testing.T) {
		count, err := store.MarkBlocksFinalized(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		count, err = store.MarkBlocksFinalized(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})
}

// =============================================================================
// Key-value store
// =============================================================================

func testKeyValueStore(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("get non-existent key returns empty string", func(t *testing.T) {
		value, err := store.GetKeyValue(ctx, "nonexistent:key")
		require.NoError(t, err)
		assert.Equal(t, "", value)
	})

	t.Run("set update and delete", func(t *testing.T) {
		key := domain.RECONCILE_PROGRESS_KEY_BASE + testSingleContract

		require.NoError(t, store.SetKeyValue(ctx, key, "value1"))
		require.NoError(t, store.SetKeyValue(ctx, key, "value2"))

		value, err := store.GetKeyValue(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "value2", value)

		require.NoError(t, store.DeleteKeyValue(ctx, key))
		value, err = store.GetKeyValue(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "", value)
	})

	t.Run("get all key-values by prefix", func(t *testing.T) {
		require.NoError(t, store.SetKeyValue(ctx, "test:kv:prefix:key1", "value1"))
		require.NoError(t, store.SetKeyValue(ctx, "test:kv:prefix:key2", "value2"))
		require.NoError(t, store.SetKeyValue(ctx, "other:key", "value3"))

		values, err := store.GetAllKeyValuesByPrefix(ctx, "test:kv:prefix")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"test:kv:prefix:key1": "value1",
			"test:kv:prefix:key2": "value2",
		}, values)
	})
}

// RunStoreTests runs the shared suite against a Store implementation
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	tests := []struct {
		name string
		fn   func(*testing.T, Store)
	}{
		{"SourceRecords", testSourceRecords},
		{"ApplySyncBatch", testApplySyncBatch},
		{"ApplyReconcileBatch", testApplyReconcileBatch},
		{"Collections", testCollections},
		{"Blocks", testBlocks},
		{"KeyValueStore", testKeyValueStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := initDB(t)
			defer cleanupDB(t)
			tt.fn(t, store)
		})
	}
}
