package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/store"
)

const (
	eventsPerBlock = 10
	sftIssuance    = 1000
	// burnPercent is the share of nft transfers replaced by a burn
	burnPercent = 2
)

type balanceKey struct {
	contract string
	tokenID  string
	owner    string
}

// Workload is a synthetic native event history with the ownership it must converge to
type Workload struct {
	Events   []domain.Event
	Owners   map[domain.OwnershipKey]string
	Balances map[balanceKey]int64
	// Contracts lists every generated contract, keyed by kind and address
	Contracts []domain.OwnershipKey
}

type generator struct {
	rng     *rand.Rand
	holders []string
	events  []domain.Event
	start   time.Time
}

func holderAddress(i int) string {
	return domain.NormalizeAddress(fmt.Sprintf("0x%040x", i+1))
}

func (g *generator) emit(section, method string, args map[string]any) {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}

	n := len(g.events)
	block := uint64(n/eventsPerBlock + 1)
	index := uint64(n % eventsPerBlock)
	g.events = append(g.events, domain.Event{
		EventID:     fmt.Sprintf("%d-%d", block, index),
		BlockNumber: block,
		EventIndex:  index,
		Section:     section,
		Method:      method,
		Args:        raw,
		Timestamp:   g.start.Add(time.Duration(block) * 4 * time.Second),
	})
}

func (g *generator) holder() string {
	return g.holders[g.rng.Intn(len(g.holders))]
}

// GenerateWorkload builds a deterministic event history for cfg
func GenerateWorkload(cfg BenchmarkConfig) *Workload {
	g := &generator{
		rng:   rand.New(rand.NewSource(cfg.Seed)), //nolint:gosec,G404
		start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for i := 0; i < cfg.Holders; i++ {
		g.holders = append(g.holders, holderAddress(i))
	}

	w := &Workload{
		Owners:   make(map[domain.OwnershipKey]string),
		Balances: make(map[balanceKey]int64),
	}

	// every nft collection is minted in one range to the first holder
	for c := 0; c < cfg.Collections; c++ {
		g.emit("nft", "Mint", map[string]any{
			"collectionId": c,
			"start":        0,
			"end":          cfg.TokensPerNft - 1,
			"owner":        g.holders[0],
		})
		contract := domain.CollectionIDToAddress(domain.TokenKindSingle, uint32(c))
		w.Contracts = append(w.Contracts, domain.OwnershipKey{Kind: domain.TokenKindSingle, ContractAddress: contract})
		for t := 0; t < cfg.TokensPerNft; t++ {
			w.Owners[singleKey(contract, t)] = g.holders[0]
		}
	}

	sftBase := cfg.Collections
	for s := 0; s < cfg.SftCollections; s++ {
		id := sftBase + s
		g.emit("sft", "TokenCreate", map[string]any{
			"tokenId":         []int{id, 0},
			"tokenOwner":      g.holders[0],
			"initialIssuance": sftIssuance,
		})
		contract := domain.CollectionIDToAddress(domain.TokenKindBalance, uint32(id))
		w.Contracts = append(w.Contracts, domain.OwnershipKey{Kind: domain.TokenKindBalance, ContractAddress: contract})
		w.Balances[balanceKey{contract, "0", g.holders[0]}] = sftIssuance
	}

	for i := 0; i < cfg.Transfers; i++ {
		if cfg.SftCollections > 0 && (cfg.Collections == 0 || g.rng.Intn(2) == 0) {
			g.sftTransfer(w, sftBase+g.rng.Intn(cfg.SftCollections))
			continue
		}
		if cfg.Collections > 0 {
			g.nftTransfer(w, g.rng.Intn(cfg.Collections), g.rng.Intn(cfg.TokensPerNft))
		}
	}

	w.Events = g.events
	return w
}

func singleKey(contract string, tokenID int) domain.OwnershipKey {
	return domain.OwnershipKey{Kind: domain.TokenKindSingle, ContractAddress: contract, TokenID: fmt.Sprint(tokenID)}
}

func (g *generator) nftTransfer(w *Workload, collection, token int) {
	contract := domain.CollectionIDToAddress(domain.TokenKindSingle, uint32(collection))
	key := singleKey(contract, token)
	if _, ok := w.Owners[key]; !ok {
		return
	}

	if g.rng.Intn(100) < burnPercent {
		g.emit("nft", "Burn", map[string]any{
			"collectionId": collection,
			"serialNumber": token,
		})
		delete(w.Owners, key)
		return
	}

	to := g.holder()
	g.emit("nft", "Transfer", map[string]any{
		"collectionId":  collection,
		"serialNumbers": []int{token},
		"previousOwner": w.Owners[key],
		"newOwner":      to,
	})
	w.Owners[key] = to
}

func (g *generator) sftTransfer(w *Workload, collection int) {
	contract := domain.CollectionIDToAddress(domain.TokenKindBalance, uint32(collection))

	var holders []balanceKey
	for k, amount := range w.Balances {
		if k.contract == contract && amount > 0 {
			holders = append(holders, k)
		}
	}
	if len(holders) == 0 {
		return
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].owner < holders[j].owner })

	from := holders[g.rng.Intn(len(holders))]
	amount := g.rng.Int63n(w.Balances[from]) + 1
	to := g.holder()

	g.emit("sft", "Transfer", map[string]any{
		"collectionId":  collection,
		"serialNumbers": []int{0},
		"balances":      []int64{amount},
		"previousOwner": from.owner,
		"newOwner":      to,
	})

	w.Balances[from] -= amount
	if w.Balances[from] == 0 {
		delete(w.Balances, from)
	}
	w.Balances[balanceKey{contract, "0", to}] += amount
}

// Verify counts the records whose stored value differs from the expected one,
// including expected records that are missing and stored records that should not exist
func (w *Workload) Verify(ctx context.Context, st store.Store) (int, error) {
	mismatches := 0
	seenOwners := make(map[domain.OwnershipKey]struct{})
	seenBalances := make(map[balanceKey]struct{})

	for _, c := range w.Contracts {
		records, err := st.GetOwnershipRecords(ctx, c.Kind, c.ContractAddress, nil)
		if err != nil {
			return 0, fmt.Errorf("failed to get ownership records: %w", err)
		}

		for _, r := range records {
			if r.Kind == domain.TokenKindSingle {
				seenOwners[r.Key()] = struct{}{}
				if w.Owners[r.Key()] != r.Owner {
					mismatches++
				}
				continue
			}

			key := balanceKey{r.ContractAddress, r.TokenID, r.Owner}
			seenBalances[key] = struct{}{}
			if r.Amount == nil || w.Balances[key] != r.Amount.Int64() {
				mismatches++
			}
		}
	}

	for k := range w.Owners {
		if _, ok := seenOwners[k]; !ok {
			mismatches++
		}
	}
	for k := range w.Balances {
		if _, ok := seenBalances[k]; !ok {
			mismatches++
		}
	}
	return mismatches, nil
}
