package ownership

import (
	"math/big"
	"sort"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/store"
)

// aggregator folds the deltas of one sub-batch, in chain order, into one write per key.
// Single kind keys keep the last set or delete; balance kind keys sum their amounts.
type aggregator struct {
	sets       map[domain.OwnershipKey]domain.OwnershipRecord
	deletes    map[domain.OwnershipKey]domain.OwnershipRecord
	increments map[domain.OwnershipKey]domain.OwnershipRecord
}

func newAggregator() *aggregator {
	return &aggregator{
		sets:       make(map[domain.OwnershipKey]domain.OwnershipRecord),
		deletes:    make(map[domain.OwnershipKey]domain.OwnershipRecord),
		increments: make(map[domain.OwnershipKey]domain.OwnershipRecord),
	}
}

func recordOf(d domain.OwnershipDelta) domain.OwnershipRecord {
	return domain.OwnershipRecord{
		Kind:            d.Kind,
		ContractAddress: d.ContractAddress,
		CollectionID:    d.CollectionID,
		TokenID:         d.TokenID,
		Owner:           d.Owner,
		Provenance:      d.Provenance,
	}
}

// add folds deltas; callers pass them in chain order
func (a *aggregator) add(deltas ...domain.OwnershipDelta) {
	for _, d := range deltas {
		key := d.Key()
		switch d.Kind {
		case domain.TokenKindSingle:
			if d.Delete {
				delete(a.sets, key)
				a.deletes[key] = recordOf(d)
			} else {
				delete(a.deletes, key)
				a.sets[key] = recordOf(d)
			}
		case domain.TokenKindBalance:
			current, ok := a.increments[key]
			if !ok {
				current = recordOf(d)
				current.Amount = new(big.Int)
			}
			current.Amount = new(big.Int).Add(current.Amount, d.Amount)
			current.Provenance = d.Provenance
			a.increments[key] = current
		}
	}
}

// batch returns the aggregated writes sorted by key. Balance sums of zero are dropped.
func (a *aggregator) batch() store.SyncBatch {
	var batch store.SyncBatch
	for _, r := range a.sets {
		batch.Sets = append(batch.Sets, r)
	}
	for _, r := range a.deletes {
		batch.Deletes = append(batch.Deletes, r.Key())
	}
	for _, r := range a.increments {
		if r.Amount.Sign() == 0 {
			continue
		}
		batch.Increments = append(batch.Increments, r)
	}

	sortRecords(batch.Sets)
	sortRecords(batch.Increments)
	sort.Slice(batch.Deletes, func(i, j int) bool {
		return keyLess(batch.Deletes[i], batch.Deletes[j])
	})
	return batch
}

// changes summarises the aggregated writes per contract
func (a *aggregator) changes(source domain.ChangeSource) []domain.OwnershipChange {
	byContract := make(map[string]*domain.OwnershipChange)
	tokens := make(map[string]map[string]struct{})

	touch := func(r domain.OwnershipRecord) *domain.OwnershipChange {
		c, ok := byContract[r.ContractAddress]
		if !ok {
			c = &domain.OwnershipChange{ContractAddress: r.ContractAddress, Kind: r.Kind, Source: source}
			byContract[r.ContractAddress] = c
			tokens[r.ContractAddress] = make(map[string]struct{})
		}
		tokens[r.ContractAddress][r.TokenID] = struct{}{}
		if r.BlockNumber >= c.BlockNumber {
			c.BlockNumber = r.BlockNumber
			c.Timestamp = r.Timestamp
		}
		return c
	}

	for _, r := range a.sets {
		touch(r).Updated++
	}
	for _, r := range a.increments {
		if r.Amount.Sign() == 0 {
			continue
		}
		touch(r).Updated++
	}
	for _, r := range a.deletes {
		touch(r).Deleted++
	}

	out := make([]domain.OwnershipChange, 0, len(byContract))
	for address, c := range byContract {
		for id := range tokens[address] {
			c.TokenIDs = append(c.TokenIDs, id)
		}
		sortTokenIDs(c.TokenIDs)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ContractAddress < out[j].ContractAddress
	})
	return out
}

func keyLess(a, b domain.OwnershipKey) bool {
	if a.ContractAddress != b.ContractAddress {
		return a.ContractAddress < b.ContractAddress
	}
	if a.TokenID != b.TokenID {
		return tokenIDLess(a.TokenID, b.TokenID)
	}
	return a.Owner < b.Owner
}

func sortRecords(records []domain.OwnershipRecord) {
	sort.Slice(records, func(i, j int) bool {
		return keyLess(records[i].Key(), records[j].Key())
	})
}

// tokenIDLess compares decimal token ids numerically
func tokenIDLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func sortTokenIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return tokenIDLess(ids[i], ids[j])
	})
}
