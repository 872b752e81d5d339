package parser

import (
	"fmt"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
)

// EventKind is the closed set of source record shapes the registry knows about
type EventKind int

const (
	// KindUnsupported is a tracked record without handler. Parsing it is a hard error.
	KindUnsupported EventKind = iota
	KindNftMint
	KindNftTransfer
	KindNftBridgedMint
	KindNftBurn
	KindSftTokenCreate
	KindSftMint
	KindSftTransfer
	KindSftBurn
	KindERC721Transfer
	KindERC1155TransferSingle
	KindERC1155TransferBatch
)

var kindNames = map[EventKind]string{
	KindUnsupported:           "unsupported",
	KindNftMint:               "nftMint",
	KindNftTransfer:           "nftTransfer",
	KindNftBridgedMint:        "nftBridgedMint",
	KindNftBurn:               "nftBurn",
	KindSftTokenCreate:        "sftTokenCreate",
	KindSftMint:               "sftMint",
	KindSftTransfer:           "sftTransfer",
	KindSftBurn:               "sftBurn",
	KindERC721Transfer:        "ERC721Transfer",
	KindERC1155TransferSingle: "ERC1155TransferSingle",
	KindERC1155TransferBatch:  "ERC1155TransferBatch",
}

var kindsByKey = func() map[string]EventKind {
	m := make(map[string]EventKind, len(kindNames))
	for kind, name := range kindNames {
		if kind != KindUnsupported {
			m[name] = kind
		}
	}
	return m
}()

func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// KindOf maps a parser key to its event kind, KindUnsupported when unknown
func KindOf(key string) EventKind {
	if kind, ok := kindsByKey[key]; ok {
		return kind
	}
	return KindUnsupported
}

// DefaultTrackedKeys are the parser keys selected for ownership sync
var DefaultTrackedKeys = []string{
	"nftMint", "nftTransfer", "nftBridgedMint", "nftBurn",
	"sftTokenCreate", "sftMint", "sftTransfer", "sftBurn",
	"ERC721Transfer", "ERC1155TransferSingle", "ERC1155TransferBatch",
}

// Registry maps source records to ownership deltas.
// A record whose key is not tracked is irrelevant to ownership and yields no delta.
// A tracked key without a handler is a fatal condition for the record.
type Registry struct {
	tracked map[string]struct{}
}

// NewRegistry creates a registry tracking the given parser keys, DefaultTrackedKeys when empty
func NewRegistry(trackedKeys ...string) *Registry {
	if len(trackedKeys) == 0 {
		trackedKeys = DefaultTrackedKeys
	}
	tracked := make(map[string]struct{}, len(trackedKeys))
	for _, key := range trackedKeys {
		tracked[key] = struct{}{}
	}
	return &Registry{tracked: tracked}
}

// IsTracked reports whether records with the parser key take part in ownership sync
func (r *Registry) IsTracked(key string) bool {
	_, ok := r.tracked[key]
	return ok
}

// ParseEvent returns the ownership deltas of a native event.
// Untracked events return no delta and no error.
func (r *Registry) ParseEvent(event domain.Event) ([]domain.OwnershipDelta, error) {
	key := event.ParserKey()
	if !r.IsTracked(key) {
		return nil, nil
	}

	var (
		deltas []domain.OwnershipDelta
		err    error
	)
	switch kind := KindOf(key); kind {
	case KindNftMint:
		deltas, err = parseNftMint(event)
	case KindNftTransfer:
		deltas, err = parseNftTransfer(event)
	case KindNftBridgedMint:
		deltas, err = parseNftBridgedMint(event)
	case KindNftBurn:
		deltas, err = parseNftBurn(event)
	case KindSftTokenCreate:
		deltas, err = parseSftTokenCreate(event)
	case KindSftMint:
		deltas, err = parseSftMint(event)
	case KindSftTransfer:
		deltas, err = parseSftTransfer(event)
	case KindSftBurn:
		deltas, err = parseSftBurn(event)
	case KindERC721Transfer, KindERC1155TransferSingle, KindERC1155TransferBatch:
		return nil, fmt.Errorf("%w: %s is an EVM log key, event %s", domain.ErrUnsupportedEvent, key, event.EventID)
	case KindUnsupported:
		return nil, fmt.Errorf("%w: %s (event %s)", domain.ErrUnsupportedEvent, key, event.EventID)
	default:
		return nil, fmt.Errorf("%w: unhandled kind %s (event %s)", domain.ErrUnsupportedEvent, kind, event.EventID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse event %s (%s): %w", event.EventID, key, err)
	}

	return filterDeltas(deltas), nil
}

// ParseEvmLog returns the ownership deltas of one decoded log of an EVM transaction.
// Untracked logs return no delta and no error.
func (r *Registry) ParseEvmLog(tx domain.EvmTransaction, log domain.EvmLogEvent) ([]domain.OwnershipDelta, error) {
	key := log.ParserKey()
	if !r.IsTracked(key) {
		return nil, nil
	}

	var (
		deltas []domain.OwnershipDelta
		err    error
	)
	switch kind := KindOf(key); kind {
	case KindERC721Transfer:
		deltas, err = parseERC721Transfer(tx, log)
	case KindERC1155TransferSingle:
		deltas, err = parseERC1155TransferSingle(tx, log)
	case KindERC1155TransferBatch:
		deltas, err = parseERC1155TransferBatch(tx, log)
	case KindNftMint, KindNftTransfer, KindNftBridgedMint, KindNftBurn,
		KindSftTokenCreate, KindSftMint, KindSftTransfer, KindSftBurn:
		return nil, fmt.Errorf("%w: %s is a native event key, transaction %s", domain.ErrUnsupportedEvent, key, tx.Hash)
	case KindUnsupported:
		return nil, fmt.Errorf("%w: %s (transaction %s)", domain.ErrUnsupportedEvent, key, tx.Hash)
	default:
		return nil, fmt.Errorf("%w: unhandled kind %s (transaction %s)", domain.ErrUnsupportedEvent, kind, tx.Hash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse log %d of transaction %s (%s): %w", log.LogIndex, tx.Hash, key, err)
	}

	return filterDeltas(deltas), nil
}

// filterDeltas drops deltas that would not change ownership: zero amounts and
// balance changes of the zero address
func filterDeltas(deltas []domain.OwnershipDelta) []domain.OwnershipDelta {
	filtered := deltas[:0]
	for _, d := range deltas {
		if d.IsEmpty() {
			continue
		}
		if d.Kind == domain.TokenKindBalance && domain.IsZeroAddress(d.Owner) {
			continue
		}
		if d.Kind == domain.TokenKindSingle && !d.Delete && domain.IsZeroAddress(d.Owner) {
			continue
		}
		filtered = append(filtered, d)
	}
	return filtered
}
