package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

func hasDBResolver(db *gorm.DB) bool {
	return db != nil && db.Callback().Query().Get("gorm:db_resolver") != nil
}

// primary routes reads that must observe the latest writes to the primary database
func primary(db *gorm.DB) *gorm.DB {
	if !hasDBResolver(db) {
		return db
	}
	return db.Clauses(dbresolver.Write)
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM database connection.
// Zero values fall back to the defaults of NormalizeConnectionPoolSettings.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// UseReadReplica routes reads to the replica at dsn, writes and primary() reads stay on db
func UseReadReplica(db *gorm.DB, dsn string) error {
	err := db.Use(dbresolver.Register(dbresolver.Config{
		Replicas: []gorm.Dialector{postgres.Open(dsn)},
		Policy:   dbresolver.RandomPolicy{},
	}))
	if err != nil {
		return fmt.Errorf("failed to register read replica: %w", err)
	}
	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// calculateSafeBatchSize computes the batch size for bulk statements so a single query
// stays under PostgreSQL's limit of 65535 bind parameters.
//
// Example with headroom of 1000:
//   - NftOwner row: 13 fields → (65,535 - 1,000) / 13 = 4,964 rows/batch
//   - Event row: 9 fields → (65,535 - 1,000) / 9 = 7,170 rows/batch
//   - plain id list: 1 field → 64,535 ids/batch
func calculateSafeBatchSize(totalRecords int, fieldsPerRecord int) int {
	const maxParams = 65535
	const totalHeadroom = 1000

	availableParams := maxParams - totalHeadroom
	safeBatchSize := max(availableParams/fieldsPerRecord, 1)

	if safeBatchSize > totalRecords {
		return totalRecords
	}

	return safeBatchSize
}

// chunk splits items into consecutive slices of at most size elements
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

const (
	nftOwnerFields       = 13
	eventFields          = 9
	evmTransactionFields = 7
	tupleFields          = 3
)

// =============================================================================
// Source records
// =============================================================================

// FindUnprocessedEvents retrieves up to limit unprocessed native events in chain order
func (s *pgStore) FindUnprocessedEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	var rows []schema.Event
	err := primary(s.db).WithContext(ctx).
		Where("NOT processed").
		Order("block_number ASC, event_index ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find unprocessed events: %w", err)
	}

	events := make([]domain.Event, len(rows))
	for i, row := range rows {
		events[i] = fromEventRow(row)
	}
	return events, nil
}

// FindUnprocessedEvmTransactions retrieves up to limit unprocessed EVM transactions in chain order
func (s *pgStore) FindUnprocessedEvmTransactions(ctx context.Context, limit int) ([]domain.EvmTransaction, error) {
	var rows []schema.EvmTransaction
	err := primary(s.db).WithContext(ctx).
		Where("NOT processed").
		Order("block_number ASC, transaction_index ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find unprocessed evm transactions: %w", err)
	}

	txs := make([]domain.EvmTransaction, len(rows))
	for i, row := range rows {
		txs[i] = fromEvmTransactionRow(row)
	}
	return txs, nil
}

// SaveEvents appends native events, ignoring events that already exist
func (s *pgStore) SaveEvents(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]schema.Event, len(events))
	for i, event := range events {
		rows[i] = toEventRow(event)
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		CreateInBatches(rows, calculateSafeBatchSize(len(rows), eventFields)).Error
	if err != nil {
		return fmt.Errorf("failed to save events: %w", err)
	}

	return nil
}

// SaveEvmTransactions appends EVM transactions, ignoring transactions that already exist
func (s *pgStore) SaveEvmTransactions(ctx context.Context, txs []domain.EvmTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	rows := make([]schema.EvmTransaction, len(txs))
	for i, tx := range txs {
		rows[i] = toEvmTransactionRow(tx)
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hash"}},
			DoNothing: true,
		}).
		CreateInBatches(rows, calculateSafeBatchSize(len(rows), evmTransactionFields)).Error
	if err != nil {
		return fmt.Errorf("failed to save evm transactions: %w", err)
	}

	return nil
}

// FindNativeCollectionEvents retrieves every event of a section that refers to the collection,
// either through args.collectionId or through the (collectionId, serial) pair in args.tokenId
func (s *pgStore) FindNativeCollectionEvents(ctx context.Context, section string, collectionID uint32) ([]domain.Event, error) {
	id := strconv.FormatUint(uint64(collectionID), 10)

	var rows []schema.Event
	err := s.db.WithContext(ctx).
		Where("section = ?", section).
		Where("(args->>'collectionId' = ? OR args->'tokenId'->>0 = ?)", id, id).
		Order("block_number ASC, event_index ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find events of collection %d: %w", collectionID, err)
	}

	events := make([]domain.Event, len(rows))
	for i, row := range rows {
		events[i] = fromEventRow(row)
	}
	return events, nil
}

// FindContractEvmTransactions retrieves every EVM transaction carrying a log of the contract
func (s *pgStore) FindContractEvmTransactions(ctx context.Context, contractAddress string) ([]domain.EvmTransaction, error) {
	filter := fmt.Sprintf(`[{"address": %q}]`, contractAddress)

	var rows []schema.EvmTransaction
	err := s.db.WithContext(ctx).
		Where("events @> ?::jsonb", filter).
		Order("block_number ASC, transaction_index ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find evm transactions of %s: %w", contractAddress, err)
	}

	txs := make([]domain.EvmTransaction, len(rows))
	for i, row := range rows {
		txs[i] = fromEvmTransactionRow(row)
	}
	return txs, nil
}

// =============================================================================
// Ownership projection
// =============================================================================

// ApplySyncBatch claims the source records of the batch and applies its ownership writes in
// one transaction. When any record was already processed by another run the transaction is
// rolled back and ErrSourceAlreadyProcessed is returned, so increments are never applied twice.
func (s *pgStore) ApplySyncBatch(ctx context.Context, batch SyncBatch) error {
	if batch.IsEmpty() {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Claim the source records
		if err := claimSources(tx, &schema.Event{}, "event_id", batch.EventIDs); err != nil {
			return err
		}
		if err := claimSources(tx, &schema.EvmTransaction{}, "hash", batch.TransactionHashes); err != nil {
			return err
		}

		// 2. Single kind: absolute owner writes and burns
		if err := upsertSingleOwners(tx, batch.Sets); err != nil {
			return err
		}
		if err := deleteOwnerships(tx, batch.Deletes); err != nil {
			return err
		}

		// 3. Balance kind: increments followed by the <= 0 cleanup
		if err := incrementBalances(tx, batch.Increments); err != nil {
			return err
		}
		if err := deleteEmptyBalances(tx, batch.Increments); err != nil {
			return err
		}

		return nil
	})
}

// ApplyReconcileBatch applies absolute ownership values and deletions in one transaction
func (s *pgStore) ApplyReconcileBatch(ctx context.Context, batch ReconcileBatch) error {
	if batch.IsEmpty() {
		return nil
	}

	var singles, balances []domain.OwnershipRecord
	for _, record := range batch.Upserts {
		switch record.Kind {
		case domain.TokenKindSingle:
			singles = append(singles, record)
		case domain.TokenKindBalance:
			if record.Amount == nil || record.Amount.Sign() <= 0 {
				return fmt.Errorf("non-positive amount for %s/%s owner %s", record.ContractAddress, record.TokenID, record.Owner)
			}
			balances = append(balances, record)
		default:
			return fmt.Errorf("unknown token kind: %s", record.Kind)
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertSingleOwners(tx, singles); err != nil {
			return err
		}
		if err := setBalances(tx, balances); err != nil {
			return err
		}
		return deleteOwnerships(tx, batch.Deletes)
	})
}

// GetOwnershipRecords retrieves the records of a contract, optionally restricted to token ids
func (s *pgStore) GetOwnershipRecords(ctx context.Context, kind domain.TokenKind, contractAddress string, tokenIDs []string) ([]domain.OwnershipRecord, error) {
	query := func(db *gorm.DB, ids []string) ([]schema.NftOwner, error) {
		var rows []schema.NftOwner
		q := db.WithContext(ctx).Where("kind = ? AND contract_address = ?", string(kind), contractAddress)
		if len(ids) > 0 {
			q = q.Where("token_id IN ?", ids)
		}
		err := q.Order("token_id ASC, owner ASC").Find(&rows).Error
		return rows, err
	}

	var rows []schema.NftOwner
	if len(tokenIDs) == 0 {
		r, err := query(s.db, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get ownership records: %w", err)
		}
		rows = r
	} else {
		for _, ids := range chunk(tokenIDs, calculateSafeBatchSize(len(tokenIDs), 1)) {
			r, err := query(s.db, ids)
			if err != nil {
				return nil, fmt.Errorf("failed to get ownership records: %w", err)
			}
			rows = append(rows, r...)
		}
	}

	records := make([]domain.OwnershipRecord, 0, len(rows))
	for _, row := range rows {
		record, err := fromNftOwnerRow(row)
		if err != nil {
			return nil, fmt.Errorf("failed to convert ownership record %d: %w", row.ID, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func claimSources(tx *gorm.DB, model interface{}, column string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	for _, ids := range chunk(ids, calculateSafeBatchSize(len(ids), 1)) {
		result := tx.Model(model).
			Where(column+" IN ? AND NOT processed", ids).
			Update("processed", true)
		if result.Error != nil {
			return fmt.Errorf("failed to mark %s processed: %w", column, result.Error)
		}
		if result.RowsAffected != int64(len(ids)) {
			return fmt.Errorf("%w: claimed %d of %d records by %s", domain.ErrSourceAlreadyProcessed, result.RowsAffected, len(ids), column)
		}
	}

	return nil
}

func toNftOwnerRows(records []domain.OwnershipRecord) ([]schema.NftOwner, error) {
	rows := make([]schema.NftOwner, len(records))
	for i, record := range records {
		row, err := toNftOwnerRow(record)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

// provenanceAssignments copies the provenance columns of the incoming row on conflict.
// Metadata is replaced unless the incoming row leaves it unknown (NULL).
func provenanceAssignments() clause.Set {
	set := clause.AssignmentColumns([]string{"collection_id", "block_number", "event_id", "transaction_hash", "timestamp", "updated_at"})
	return append(set, clause.Assignment{
		Column: clause.Column{Name: "metadata"},
		Value:  gorm.Expr("COALESCE(EXCLUDED.metadata, nft_owners.metadata)"),
	})
}

func kindTarget(kind domain.TokenKind) clause.Where {
	return clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: fmt.Sprintf("kind = '%s'", kind)}}}
}

func upsertSingleOwners(tx *gorm.DB, records []domain.OwnershipRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows, err := toNftOwnerRows(records)
	if err != nil {
		return err
	}

	updates := append(clause.AssignmentColumns([]string{"owner"}), provenanceAssignments()...)
	err = tx.Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "contract_address"}, {Name: "token_id"}},
		TargetWhere: kindTarget(domain.TokenKindSingle),
		DoUpdates:   updates,
	}).CreateInBatches(rows, calculateSafeBatchSize(len(rows), nftOwnerFields)).Error
	if err != nil {
		return fmt.Errorf("failed to upsert single owners: %w", err)
	}

	return nil
}

func incrementBalances(tx *gorm.DB, records []domain.OwnershipRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows, err := toNftOwnerRows(records)
	if err != nil {
		return err
	}

	updates := append(clause.Set{{
		Column: clause.Column{Name: "amount"},
		Value:  gorm.Expr("nft_owners.amount + EXCLUDED.amount"),
	}}, provenanceAssignments()...)
	err = tx.Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "contract_address"}, {Name: "token_id"}, {Name: "owner"}},
		TargetWhere: kindTarget(domain.TokenKindBalance),
		DoUpdates:   updates,
	}).CreateInBatches(rows, calculateSafeBatchSize(len(rows), nftOwnerFields)).Error
	if err != nil {
		return fmt.Errorf("failed to increment balances: %w", err)
	}

	return nil
}

func setBalances(tx *gorm.DB, records []domain.OwnershipRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows, err := toNftOwnerRows(records)
	if err != nil {
		return err
	}

	updates := append(clause.AssignmentColumns([]string{"amount"}), provenanceAssignments()...)
	err = tx.Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "contract_address"}, {Name: "token_id"}, {Name: "owner"}},
		TargetWhere: kindTarget(domain.TokenKindBalance),
		DoUpdates:   updates,
	}).CreateInBatches(rows, calculateSafeBatchSize(len(rows), nftOwnerFields)).Error
	if err != nil {
		return fmt.Errorf("failed to set balances: %w", err)
	}

	return nil
}

// deleteEmptyBalances removes every balance row of the touched contracts whose amount dropped to zero or below
func deleteEmptyBalances(tx *gorm.DB, increments []domain.OwnershipRecord) error {
	if len(increments) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var contracts []string
	for _, record := range increments {
		if _, ok := seen[record.ContractAddress]; ok {
			continue
		}
		seen[record.ContractAddress] = struct{}{}
		contracts = append(contracts, record.ContractAddress)
	}

	result := tx.Where("kind = ? AND contract_address IN ? AND amount <= 0", string(domain.TokenKindBalance), contracts).
		Delete(&schema.NftOwner{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete empty balances: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		logger.Debug("Deleted empty balances", zap.Int64("count", result.RowsAffected))
	}

	return nil
}

func deleteOwnerships(tx *gorm.DB, keys []domain.OwnershipKey) error {
	var singles, balances [][]interface{}
	for _, key := range keys {
		switch key.Kind {
		case domain.TokenKindSingle:
			singles = append(singles, []interface{}{key.ContractAddress, key.TokenID})
		case domain.TokenKindBalance:
			balances = append(balances, []interface{}{key.ContractAddress, key.TokenID, key.Owner})
		}
	}

	for _, tuples := range chunk(singles, calculateSafeBatchSize(len(singles), tupleFields)) {
		err := tx.Where("kind = ? AND (contract_address, token_id) IN ?", string(domain.TokenKindSingle), tuples).
			Delete(&schema.NftOwner{}).Error
		if err != nil {
			return fmt.Errorf("failed to delete single owners: %w", err)
		}
	}
	for _, tuples := range chunk(balances, calculateSafeBatchSize(len(balances), tupleFields)) {
		err := tx.Where("kind = ? AND (contract_address, token_id, owner) IN ?", string(domain.TokenKindBalance), tuples).
			Delete(&schema.NftOwner{}).Error
		if err != nil {
			return fmt.Errorf("failed to delete balances: %w", err)
		}
	}

	return nil
}

// =============================================================================
// Collections
// =============================================================================

// GetCollection retrieves a collection by contract address
func (s *pgStore) GetCollection(ctx context.Context, contractAddress string) (*domain.Collection, error) {
	var row schema.Collection
	err := s.db.WithContext(ctx).Where("contract_address = ?", contractAddress).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	collection := fromCollectionRow(row)
	return &collection, nil
}

// GetCollectionsByAddresses retrieves the tracked collections among addresses
func (s *pgStore) GetCollectionsByAddresses(ctx context.Context, addresses []string) (map[string]domain.Collection, error) {
	result := make(map[string]domain.Collection)
	if len(addresses) == 0 {
		return result, nil
	}

	var rows []schema.Collection
	err := s.db.WithContext(ctx).Where("contract_address IN ?", addresses).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get collections by addresses: %w", err)
	}

	for _, row := range rows {
		result[row.ContractAddress] = fromCollectionRow(row)
	}
	return result, nil
}

// ListCollections retrieves every tracked collection ordered by address
func (s *pgStore) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	var rows []schema.Collection
	if err := s.db.WithContext(ctx).Order("contract_address ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	collections := make([]domain.Collection, len(rows))
	for i, row := range rows {
		collections[i] = fromCollectionRow(row)
	}
	return collections, nil
}

// UpsertCollection creates or updates a collection
func (s *pgStore) UpsertCollection(ctx context.Context, collection domain.Collection) error {
	if !collection.Kind.IsValid() {
		return fmt.Errorf("invalid collection kind: %s", collection.Kind)
	}

	row := toCollectionRow(collection)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contract_address"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "collection_id", "total_supply", "name", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert collection: %w", err)
	}

	return nil
}

// =============================================================================
// Blocks
// =============================================================================

// SaveBlock appends a block, ignoring a block that already exists
func (s *pgStore) SaveBlock(ctx context.Context, block domain.Block) error {
	row := schema.Block{
		Number:    int64(block.Number), //nolint:gosec,G115
		Hash:      block.Hash,
		Timestamp: block.Timestamp,
		Finalized: block.Finalized,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "number"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save block %d: %w", block.Number, err)
	}

	return nil
}

// GetLastBlockNumber retrieves the highest stored block number
func (s *pgStore) GetLastBlockNumber(ctx context.Context) (uint64, bool, error) {
	var last sql.NullInt64
	err := s.db.WithContext(ctx).Model(&schema.Block{}).Select("MAX(number)").Row().Scan(&last)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get last block number: %w", err)
	}
	if !last.Valid {
		return 0, false, nil
	}

	return uint64(last.Int64), true, nil //nolint:gosec,G115
}

// MarkBlocksFinalized marks stored blocks up to and including upTo finalized
func (s *pgStore) MarkBlocksFinalized(ctx context.Context, upTo uint64) (int64, error) {
	result := s.db.WithContext(ctx).Model(&schema.Block{}).
		Where("number <= ? AND NOT finalized", upTo).
		Update("finalized", true)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark blocks finalized: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// FindMissingBlockRanges retrieves the ranges within [from, to] without a stored block.
// Two sentinel numbers just outside the range turn leading and trailing gaps into inner gaps.
func (s *pgStore) FindMissingBlockRanges(ctx context.Context, from, to uint64) ([]domain.BlockRange, error) {
	if from > to {
		return nil, nil
	}

	type gap struct {
		GapFrom int64
		GapTo   int64
	}

	var gaps []gap
	err := s.db.WithContext(ctx).Raw(`
		SELECT number + 1 AS gap_from, next_number - 1 AS gap_to
		FROM (
			SELECT number, LEAD(number) OVER (ORDER BY number) AS next_number
			FROM (
				SELECT CAST(? AS BIGINT) - 1 AS number
				UNION ALL
				SELECT number FROM blocks WHERE number BETWEEN ? AND ?
				UNION ALL
				SELECT CAST(? AS BIGINT) + 1
			) bounded
		) numbered
		WHERE next_number > number + 1
		ORDER BY gap_from`, from, from, to, to).
		Scan(&gaps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find missing blocks: %w", err)
	}

	ranges := make([]domain.BlockRange, len(gaps))
	for i, g := range gaps {
		ranges[i] = domain.BlockRange{From: uint64(g.GapFrom), To: uint64(g.GapTo)} //nolint:gosec,G115
	}
	return ranges, nil
}

// =============================================================================
// Key-value store
// =============================================================================

// SetKeyValue sets a key-value pair in the key-value store
func (s *pgStore) SetKeyValue(ctx context.Context, key string, value string) error {
	kv := schema.KeyValue{
		Key:   key,
		Value: value,
	}

	if err := s.db.WithContext(ctx).Save(&kv).Error; err != nil {
		return fmt.Errorf("failed to set key-value: %w", err)
	}

	return nil
}

// GetKeyValue retrieves a value by key from the key-value store
func (s *pgStore) GetKeyValue(ctx context.Context, key string) (string, error) {
	var kv schema.KeyValue
	err := primary(s.db).WithContext(ctx).Where("key = ?", key).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get key-value: %w", err)
	}

	return kv.Value, nil
}

// DeleteKeyValue removes a key from the key-value store
func (s *pgStore) DeleteKeyValue(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&schema.KeyValue{}).Error; err != nil {
		return fmt.Errorf("failed to delete key-value: %w", err)
	}

	return nil
}

// GetAllKeyValuesByPrefix retrieves all key-value pairs with a specific prefix
func (s *pgStore) GetAllKeyValuesByPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	var kvs []schema.KeyValue
	err := s.db.WithContext(ctx).Where("key LIKE ?", prefix+"%").Find(&kvs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get key-values by prefix: %w", err)
	}

	result := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		result[kv.Key] = kv.Value
	}

	return result, nil
}
