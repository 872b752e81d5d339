package reconcile

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"go.uber.org/zap"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/providers/ethereum"
	"github.com/feral-file/ff-ownership-indexer/internal/store"
)

// balanceKey addresses one stored balance within a run
type balanceKey struct {
	tokenID string
	owner   string
}

// balance reconciles every candidate holder against every known token id, one
// balanceOfBatch read per holder. The offset indexes the holder list stored when
// the run started, so holders appearing or disappearing before a resume never
// shift it.
func (r *run) balance(ctx context.Context, totalSupply uint64) error {
	candidates, tokenIDs, stored, err := r.candidates(ctx, totalSupply)
	if err != nil {
		return err
	}
	if len(tokenIDs) == 0 {
		return nil
	}

	holders, err := r.holderList(ctx, candidates)
	if err != nil {
		return err
	}

	ids := make([]*big.Int, len(tokenIDs))
	for i, id := range tokenIDs {
		ids[i], _ = new(big.Int).SetString(id, 10)
	}

	total := uint64(len(holders))
	r.progress.Total = total
	size := uint64(r.cfg.BalanceBatchSize)

	for offset := r.progress.Offset; offset < total; offset += size {
		end := min(offset+size, total)

		batch, err := r.balanceBatch(ctx, holders[offset:end], tokenIDs, ids, stored)
		if err != nil {
			return fmt.Errorf("failed to reconcile holders [%d, %d): %w", offset, end, err)
		}
		if err := r.apply(ctx, batch, end); err != nil {
			return err
		}
	}
	return clearHolders(ctx, r.store, r.collection.ContractAddress)
}

// holderList returns the holders of the run. A fresh run stores the sorted
// candidates; a resumed run keeps its stored list and appends candidates first
// seen since, sorted, behind it.
func (r *run) holderList(ctx context.Context, candidates []string) ([]string, error) {
	address := r.collection.ContractAddress

	var holders []string
	if r.result.Resumed {
		stored, err := loadHolders(ctx, r.store, address)
		if err != nil {
			return nil, err
		}
		holders = stored
		if holders == nil && r.progress.Offset > 0 {
			logger.WarnCtx(ctx, "Holder list of resumed run is missing, restarting from the first holder",
				zap.String("contract", address),
				zap.String("runID", r.progress.RunID),
				zap.Uint64("offset", r.progress.Offset),
			)
			r.progress.Offset = 0
		}
	}

	if holders == nil {
		if err := saveHolders(ctx, r.store, address, candidates); err != nil {
			return nil, err
		}
		return candidates, nil
	}

	known := make(map[string]struct{}, len(holders))
	for _, holder := range holders {
		known[holder] = struct{}{}
	}
	added := 0
	for _, candidate := range candidates {
		if _, ok := known[candidate]; !ok {
			holders = append(holders, candidate)
			added++
		}
	}
	if added > 0 {
		logger.InfoCtx(ctx, "Appending holders first seen since the run started",
			zap.String("contract", address),
			zap.Int("added", added),
		)
		if err := saveHolders(ctx, r.store, address, holders); err != nil {
			return nil, err
		}
	}
	return holders, nil
}

func (r *run) balanceBatch(
	ctx context.Context,
	holders []string,
	tokenIDs []string,
	ids []*big.Int,
	stored map[balanceKey]domain.OwnershipRecord,
) (store.ReconcileBatch, error) {
	var batch store.ReconcileBatch

	calls := make([]ethereum.Call, 0, len(holders))
	for _, holder := range holders {
		call, err := ethereum.BalanceOfBatchCall(r.collection.ContractAddress, holder, ids)
		if err != nil {
			return batch, err
		}
		calls = append(calls, call)
	}

	results, err := r.chain.BatchCall(ctx, calls)
	if err != nil {
		return batch, err
	}
	if len(results) != len(calls) {
		return batch, fmt.Errorf("expected %d call results, got %d", len(calls), len(results))
	}

	inconclusive := 0
	for i, result := range results {
		amounts, ok := ethereum.DecodeBalanceOfBatch(result, len(ids))
		if !ok {
			inconclusive++
			continue
		}

		for j, amount := range amounts {
			key := balanceKey{tokenID: tokenIDs[j], owner: holders[i]}
			current, exists := stored[key]

			switch {
			case amount.Sign() > 0:
				if exists && current.Amount.Cmp(amount) == 0 {
					continue
				}
				batch.Upserts = append(batch.Upserts, r.record(key.tokenID, key.owner, amount))
			case exists:
				batch.Deletes = append(batch.Deletes, current.Key())
			}
		}
	}
	r.inconclusive(inconclusive)

	return batch, nil
}

func (r *run) storedBalances(ctx context.Context) (map[balanceKey]domain.OwnershipRecord, error) {
	records, err := r.store.GetOwnershipRecords(ctx, domain.TokenKindBalance, r.collection.ContractAddress, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get ownership records: %w", err)
	}

	stored := make(map[balanceKey]domain.OwnershipRecord, len(records))
	for _, record := range records {
		stored[balanceKey{tokenID: record.TokenID, owner: record.Owner}] = record
	}
	return stored, nil
}

// candidates returns the sorted holder set and the sorted token id set of the
// collection: every party seen in its native events or EVM logs, every stored
// holder, and the token ids [0, totalSupply) plus every observed id. It also
// returns the stored balances, loaded once for the whole run.
func (r *run) candidates(ctx context.Context, totalSupply uint64) ([]string, []string, map[balanceKey]domain.OwnershipRecord, error) {
	holders := make(map[string]struct{})
	tokenIDs := make(map[string]struct{})

	addHolder := func(address string) {
		if address == "" || !domain.IsAddress(address) || domain.IsZeroAddress(address) {
			return
		}
		holders[domain.NormalizeAddress(address)] = struct{}{}
	}

	for id := uint64(0); id < totalSupply; id++ {
		tokenIDs[new(big.Int).SetUint64(id).String()] = struct{}{}
	}

	if r.collection.CollectionID != nil {
		events, err := r.store.FindNativeCollectionEvents(ctx, "sft", *r.collection.CollectionID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to find native collection events: %w", err)
		}
		for _, event := range events {
			deltas, err := r.registry.ParseEvent(event)
			if err != nil {
				logger.WarnCtx(ctx, "Skipping unparseable event for candidate holders",
					zap.String("eventID", event.EventID),
					zap.Error(err),
				)
				continue
			}
			for _, d := range deltas {
				if d.ContractAddress != r.collection.ContractAddress {
					continue
				}
				addHolder(d.Owner)
				tokenIDs[d.TokenID] = struct{}{}
			}
		}
	}

	txs, err := r.store.FindContractEvmTransactions(ctx, r.collection.ContractAddress)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to find contract EVM transactions: %w", err)
	}
	for _, tx := range txs {
		for _, log := range tx.Events {
			if domain.NormalizeAddress(log.Address) != r.collection.ContractAddress {
				continue
			}
			addHolder(log.From)
			addHolder(log.To)
			addHolder(log.Operator)
			if log.TokenID != "" {
				tokenIDs[log.TokenID] = struct{}{}
			}
			for _, id := range log.IDs {
				tokenIDs[id] = struct{}{}
			}
		}
	}

	stored, err := r.storedBalances(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	for key := range stored {
		addHolder(key.owner)
		tokenIDs[key.tokenID] = struct{}{}
	}

	holderList := make([]string, 0, len(holders))
	for holder := range holders {
		holderList = append(holderList, holder)
	}
	sort.Strings(holderList)

	idList := make([]string, 0, len(tokenIDs))
	for id := range tokenIDs {
		if _, ok := new(big.Int).SetString(id, 10); ok {
			idList = append(idList, id)
		}
	}
	sort.Slice(idList, func(i, j int) bool {
		if len(idList[i]) != len(idList[j]) {
			return len(idList[i]) < len(idList[j])
		}
		return idList[i] < idList[j]
	})

	logger.DebugCtx(ctx, "Assembled candidate holders",
		zap.String("contract", r.collection.ContractAddress),
		zap.Int("holders", len(holderList)),
		zap.Int("tokenIDs", len(idList)),
	)

	return holderList, idList, stored, nil
}
