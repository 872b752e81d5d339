package reconcile

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"go.uber.org/zap"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/providers/ethereum"
	"github.com/feral-file/ff-ownership-indexer/internal/store"
)

// single reconciles token ids [offset, totalSupply) window by window with ownerOf reads.
// A failed read is inconclusive and never deletes; only a zero address owner does.
func (r *run) single(ctx context.Context, totalSupply uint64) error {
	r.progress.Total = totalSupply
	window := uint64(r.cfg.SingleWindowSize)

	for offset := r.progress.Offset; offset < totalSupply; offset += window {
		end := min(offset+window, totalSupply)

		batch, err := r.singleWindow(ctx, offset, end)
		if err != nil {
			return fmt.Errorf("failed to reconcile tokens [%d, %d): %w", offset, end, err)
		}
		if err := r.apply(ctx, batch, end); err != nil {
			return err
		}

		logger.DebugCtx(ctx, "Reconciled token window",
			zap.String("contract", r.collection.ContractAddress),
			zap.Uint64("from", offset),
			zap.Uint64("to", end),
			zap.Int("upserts", len(batch.Upserts)),
			zap.Int("deletes", len(batch.Deletes)),
		)
	}
	return nil
}

func (r *run) singleWindow(ctx context.Context, from, to uint64) (store.ReconcileBatch, error) {
	var batch store.ReconcileBatch

	tokenIDs := make([]string, 0, to-from)
	calls := make([]ethereum.Call, 0, to-from)
	for id := from; id < to; id++ {
		call, err := ethereum.OwnerOfCall(r.collection.ContractAddress, new(big.Int).SetUint64(id))
		if err != nil {
			return batch, err
		}
		calls = append(calls, call)
		tokenIDs = append(tokenIDs, strconv.FormatUint(id, 10))
	}

	results, err := r.chain.BatchCall(ctx, calls)
	if err != nil {
		return batch, err
	}
	if len(results) != len(calls) {
		return batch, fmt.Errorf("expected %d call results, got %d", len(calls), len(results))
	}

	records, err := r.store.GetOwnershipRecords(ctx, domain.TokenKindSingle, r.collection.ContractAddress, tokenIDs)
	if err != nil {
		return batch, fmt.Errorf("failed to get ownership records: %w", err)
	}
	stored := make(map[string]domain.OwnershipRecord, len(records))
	for _, record := range records {
		stored[record.TokenID] = record
	}

	inconclusive := 0
	for i, result := range results {
		tokenID := tokenIDs[i]
		current, exists := stored[tokenID]

		owner, ok := ethereum.DecodeOwnerOf(result)
		if !ok {
			inconclusive++
			continue
		}

		if domain.IsZeroAddress(owner) {
			if exists {
				batch.Deletes = append(batch.Deletes, current.Key())
			}
			continue
		}
		if exists && current.Owner == owner {
			continue
		}
		batch.Upserts = append(batch.Upserts, r.record(tokenID, owner, nil))
	}
	r.inconclusive(inconclusive)

	return batch, nil
}
