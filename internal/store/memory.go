package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
)

// memoryStore is an in-process Store with the same write semantics as the PostgreSQL store.
// It backs engine tests and local runs without a database.
type memoryStore struct {
	mu          sync.RWMutex
	owners      map[domain.OwnershipKey]domain.OwnershipRecord
	events      map[string]domain.Event
	evmTxs      map[string]domain.EvmTransaction
	collections map[string]domain.Collection
	blocks      map[uint64]domain.Block
	kv          map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() Store {
	return &memoryStore{
		owners:      make(map[domain.OwnershipKey]domain.OwnershipRecord),
		events:      make(map[string]domain.Event),
		evmTxs:      make(map[string]domain.EvmTransaction),
		collections: make(map[string]domain.Collection),
		blocks:      make(map[uint64]domain.Block),
		kv:          make(map[string]string),
	}
}

func cloneRecord(record domain.OwnershipRecord) domain.OwnershipRecord {
	if record.Amount != nil {
		record.Amount = new(big.Int).Set(record.Amount)
	}
	if record.CollectionID != nil {
		id := *record.CollectionID
		record.CollectionID = &id
	}
	if record.Metadata != nil {
		metadata := *record.Metadata
		record.Metadata = &metadata
	}
	return record
}

func (s *memoryStore) FindUnprocessedEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []domain.Event
	for _, event := range s.events {
		if !event.Processed {
			events = append(events, event)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].OrderingKey().Less(events[j].OrderingKey())
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (s *memoryStore) FindUnprocessedEvmTransactions(ctx context.Context, limit int) ([]domain.EvmTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var txs []domain.EvmTransaction
	for _, tx := range s.evmTxs {
		if !tx.Processed {
			txs = append(txs, tx)
		}
	}
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].OrderingKey().Less(txs[j].OrderingKey())
	})
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (s *memoryStore) SaveEvents(ctx context.Context, events []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range events {
		if _, ok := s.events[event.EventID]; !ok {
			s.events[event.EventID] = event
		}
	}
	return nil
}

func (s *memoryStore) SaveEvmTransactions(ctx context.Context, txs []domain.EvmTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		if _, ok := s.evmTxs[tx.Hash]; !ok {
			s.evmTxs[tx.Hash] = tx
		}
	}
	return nil
}

// referencesCollection mirrors the args->>'collectionId' / args->'tokenId'->>0 lookup of the SQL store
func referencesCollection(args json.RawMessage, id string) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(args, &fields); err != nil {
		return false
	}
	if raw, ok := fields["collectionId"]; ok && strings.Trim(string(raw), `"`) == id {
		return true
	}
	if raw, ok := fields["tokenId"]; ok {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err == nil && len(pair) > 0 {
			return strings.Trim(string(pair[0]), `"`) == id
		}
	}
	return false
}

func (s *memoryStore) FindNativeCollectionEvents(ctx context.Context, section string, collectionID uint32) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id := strconv.FormatUint(uint64(collectionID), 10)
	var events []domain.Event
	for _, event := range s.events {
		if event.Section == section && referencesCollection(event.Args, id) {
			events = append(events, event)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].OrderingKey().Less(events[j].OrderingKey())
	})
	return events, nil
}

func (s *memoryStore) FindContractEvmTransactions(ctx context.Context, contractAddress string) ([]domain.EvmTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var txs []domain.EvmTransaction
	for _, tx := range s.evmTxs {
		for _, log := range tx.Events {
			if log.Address == contractAddress {
				txs = append(txs, tx)
				break
			}
		}
	}
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].OrderingKey().Less(txs[j].OrderingKey())
	})
	return txs, nil
}

func (s *memoryStore) ApplySyncBatch(ctx context.Context, batch SyncBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Claims are checked before any write so a conflict leaves the state untouched
	for _, id := range batch.EventIDs {
		if event, ok := s.events[id]; !ok || event.Processed {
			return fmt.Errorf("%w: event %s", domain.ErrSourceAlreadyProcessed, id)
		}
	}
	for _, hash := range batch.TransactionHashes {
		if tx, ok := s.evmTxs[hash]; !ok || tx.Processed {
			return fmt.Errorf("%w: transaction %s", domain.ErrSourceAlreadyProcessed, hash)
		}
	}

	for _, id := range batch.EventIDs {
		event := s.events[id]
		event.Processed = true
		s.events[id] = event
	}
	for _, hash := range batch.TransactionHashes {
		tx := s.evmTxs[hash]
		tx.Processed = true
		s.evmTxs[hash] = tx
	}

	for _, record := range batch.Sets {
		s.upsertLocked(record)
	}
	for _, key := range batch.Deletes {
		delete(s.owners, key)
	}
	for _, record := range batch.Increments {
		key := record.Key()
		next := cloneRecord(record)
		if current, ok := s.owners[key]; ok {
			next.Amount = new(big.Int).Add(current.Amount, record.Amount)
			if next.Metadata == nil {
				next.Metadata = current.Metadata
			}
		}
		if next.Metadata.IsEmpty() {
			next.Metadata = nil
		}
		if next.Amount == nil || next.Amount.Sign() <= 0 {
			delete(s.owners, key)
			continue
		}
		s.owners[key] = next
	}

	return nil
}

func (s *memoryStore) upsertLocked(record domain.OwnershipRecord) {
	key := record.Key()
	next := cloneRecord(record)
	if current, ok := s.owners[key]; ok && next.Metadata == nil {
		next.Metadata = current.Metadata
	}
	if next.Metadata.IsEmpty() {
		next.Metadata = nil
	}
	s.owners[key] = next
}

func (s *memoryStore) ApplyReconcileBatch(ctx context.Context, batch ReconcileBatch) error {
	for _, record := range batch.Upserts {
		if !record.Kind.IsValid() {
			return fmt.Errorf("unknown token kind: %s", record.Kind)
		}
		if record.Kind == domain.TokenKindBalance && (record.Amount == nil || record.Amount.Sign() <= 0) {
			return fmt.Errorf("non-positive amount for %s/%s owner %s", record.ContractAddress, record.TokenID, record.Owner)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range batch.Upserts {
		s.upsertLocked(record)
	}
	for _, key := range batch.Deletes {
		delete(s.owners, key)
	}
	return nil
}

func (s *memoryStore) GetOwnershipRecords(ctx context.Context, kind domain.TokenKind, contractAddress string, tokenIDs []string) ([]domain.OwnershipRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filter map[string]struct{}
	if len(tokenIDs) > 0 {
		filter = make(map[string]struct{}, len(tokenIDs))
		for _, id := range tokenIDs {
			filter[id] = struct{}{}
		}
	}

	var records []domain.OwnershipRecord
	for key, record := range s.owners {
		if key.Kind != kind || key.ContractAddress != contractAddress {
			continue
		}
		if filter != nil {
			if _, ok := filter[key.TokenID]; !ok {
				continue
			}
		}
		records = append(records, cloneRecord(record))
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].TokenID != records[j].TokenID {
			return records[i].TokenID < records[j].TokenID
		}
		return records[i].Owner < records[j].Owner
	})
	return records, nil
}

func (s *memoryStore) GetCollection(ctx context.Context, contractAddress string) (*domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	collection, ok := s.collections[contractAddress]
	if !ok {
		return nil, nil
	}
	return &collection, nil
}

func (s *memoryStore) GetCollectionsByAddresses(ctx context.Context, addresses []string) (map[string]domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Collection)
	for _, address := range addresses {
		if collection, ok := s.collections[address]; ok {
			result[address] = collection
		}
	}
	return result, nil
}

func (s *memoryStore) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	collections := make([]domain.Collection, 0, len(s.collections))
	for _, collection := range s.collections {
		collections = append(collections, collection)
	}
	sort.Slice(collections, func(i, j int) bool {
		return collections[i].ContractAddress < collections[j].ContractAddress
	})
	return collections, nil
}

func (s *memoryStore) UpsertCollection(ctx context.Context, collection domain.Collection) error {
	if !collection.Kind.IsValid() {
		return fmt.Errorf("invalid collection kind: %s", collection.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections[collection.ContractAddress] = collection
	return nil
}

func (s *memoryStore) SaveBlock(ctx context.Context, block domain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[block.Number]; !ok {
		s.blocks[block.Number] = block
	}
	return nil
}

func (s *memoryStore) GetLastBlockNumber(ctx context.Context) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last uint64
	found := false
	for number := range s.blocks {
		if !found || number > last {
			last = number
			found = true
		}
	}
	return last, found, nil
}

func (s *memoryStore) MarkBlocksFinalized(ctx context.Context, upTo uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for number, block := range s.blocks {
		if number <= upTo && !block.Finalized {
			block.Finalized = true
			s.blocks[number] = block
			count++
		}
	}
	return count, nil
}

func (s *memoryStore) FindMissingBlockRanges(ctx context.Context, from, to uint64) ([]domain.BlockRange, error) {
	if from > to {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var numbers []uint64
	for number := range s.blocks {
		if number >= from && number <= to {
			numbers = append(numbers, number)
		}
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	var ranges []domain.BlockRange
	next := from
	for _, number := range numbers {
		if number > next {
			ranges = append(ranges, domain.BlockRange{From: next, To: number - 1})
		}
		next = number + 1
	}
	if next <= to {
		ranges = append(ranges, domain.BlockRange{From: next, To: to})
	}
	return ranges, nil
}

func (s *memoryStore) SetKeyValue(ctx context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kv[key] = value
	return nil
}

func (s *memoryStore) GetKeyValue(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.kv[key], nil
}

func (s *memoryStore) DeleteKeyValue(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.kv, key)
	return nil
}

func (s *memoryStore) GetAllKeyValuesByPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]string)
	for key, value := range s.kv {
		if strings.HasPrefix(key, prefix) {
			result[key] = value
		}
	}
	return result, nil
}
