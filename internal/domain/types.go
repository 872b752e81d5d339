package domain

import (
	"encoding/json"
	"math/big"
	"time"
)

// TokenKind is the ownership model of a collection
type TokenKind string

const (
	// TokenKindSingle is the one-owner-per-token model (ERC721-like)
	TokenKindSingle TokenKind = "single"
	// TokenKindBalance is the per-owner quantity model (ERC1155-like)
	TokenKindBalance TokenKind = "balance"
)

// IsValid reports whether the kind is one of the known ownership models
func (k TokenKind) IsValid() bool {
	return k == TokenKindSingle || k == TokenKindBalance
}

// TokenStandard is the EVM token standard of a decoded log
type TokenStandard string

const (
	StandardERC721  TokenStandard = "ERC721"
	StandardERC1155 TokenStandard = "ERC1155"
)

// Kind returns the ownership model the standard maps to
func (s TokenStandard) Kind() TokenKind {
	if s == StandardERC1155 {
		return TokenKindBalance
	}
	return TokenKindSingle
}

// Metadata is the off-chain descriptive data of a token.
// It is resolved lazily and never used to decide ownership.
type Metadata struct {
	Name         string            `json:"name,omitempty"`
	Image        string            `json:"image,omitempty"`
	AnimationURL string            `json:"animation_url,omitempty"`
	Attributes   []json.RawMessage `json:"attributes,omitempty"`
}

// IsEmpty reports whether no metadata field is set
func (m *Metadata) IsEmpty() bool {
	return m == nil || (m.Name == "" && m.Image == "" && m.AnimationURL == "" && len(m.Attributes) == 0)
}

// Provenance records where an ownership value came from
type Provenance struct {
	BlockNumber     uint64    `json:"block_number"`
	EventID         string    `json:"event_id,omitempty"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// OwnershipDelta is one ownership change derived from one source record.
//
// For TokenKindSingle the delta sets the owner of (contract, tokenId), or removes
// the record when Delete is true. For TokenKindBalance the delta carries a signed
// Amount that is added to the (contract, tokenId, owner) balance.
type OwnershipDelta struct {
	Kind            TokenKind
	ContractAddress string
	CollectionID    *uint32
	TokenID         string
	Owner           string
	Amount          *big.Int
	Delete          bool
	Order           OrderingKey
	Provenance
}

// IsEmpty reports whether applying the delta would not change anything
func (d OwnershipDelta) IsEmpty() bool {
	if d.Kind == TokenKindBalance {
		return d.Amount == nil || d.Amount.Sign() == 0
	}
	return !d.Delete && d.Owner == ""
}

// OwnershipRecord is one row of the ownership projection
type OwnershipRecord struct {
	Kind            TokenKind
	ContractAddress string
	CollectionID    *uint32
	TokenID         string
	Owner           string
	// Amount is nil for TokenKindSingle and always positive for TokenKindBalance
	Amount *big.Int
	// Metadata is nil when unknown, which keeps the stored metadata on write.
	// A non-nil empty value clears it.
	Metadata *Metadata
	Provenance
}

// OwnershipKey is the natural identity of an ownership record.
// Owner is empty for TokenKindSingle.
type OwnershipKey struct {
	Kind            TokenKind
	ContractAddress string
	TokenID         string
	Owner           string
}

// Key returns the natural identity the delta applies to
func (d OwnershipDelta) Key() OwnershipKey {
	key := OwnershipKey{Kind: d.Kind, ContractAddress: d.ContractAddress, TokenID: d.TokenID}
	if d.Kind == TokenKindBalance {
		key.Owner = d.Owner
	}
	return key
}

// Key returns the natural identity of the record
func (r OwnershipRecord) Key() OwnershipKey {
	key := OwnershipKey{Kind: r.Kind, ContractAddress: r.ContractAddress, TokenID: r.TokenID}
	if r.Kind == TokenKindBalance {
		key.Owner = r.Owner
	}
	return key
}

// SourceKind identifies a tracked source-of-record table
type SourceKind string

const (
	SourceKindEvent          SourceKind = "event"
	SourceKindEvmTransaction SourceKind = "evm_transaction"
)

// Event is a native chain event as appended by block ingestion
type Event struct {
	EventID     string          `json:"event_id"`
	BlockNumber uint64          `json:"block_number"`
	EventIndex  uint64          `json:"event_index"`
	Section     string          `json:"section"`
	Method      string          `json:"method"`
	Args        json.RawMessage `json:"args"`
	Timestamp   time.Time       `json:"timestamp"`
	Processed   bool            `json:"processed"`
}

// OrderingKey returns the chain position of the event
func (e Event) OrderingKey() OrderingKey {
	return OrderingKey{Block: e.BlockNumber, Index: e.EventIndex}
}

// ParserKey returns the registry key of the event, e.g. "nftMint"
func (e Event) ParserKey() string {
	return e.Section + e.Method
}

// EvmTransaction is an EVM transaction with its decoded token logs
type EvmTransaction struct {
	Hash             string        `json:"hash"`
	BlockNumber      uint64        `json:"block_number"`
	TransactionIndex uint64        `json:"transaction_index"`
	Timestamp        time.Time     `json:"timestamp"`
	Events           []EvmLogEvent `json:"events"`
	Processed        bool          `json:"processed"`
}

// OrderingKey returns the chain position of the transaction
func (t EvmTransaction) OrderingKey() OrderingKey {
	return OrderingKey{Block: t.BlockNumber, Index: t.TransactionIndex}
}

// EvmLogEvent is one decoded ERC721/ERC1155 log of a transaction
type EvmLogEvent struct {
	Type      TokenStandard `json:"type"`
	EventName string        `json:"eventName"`
	Address   string        `json:"address"`
	From      string        `json:"from,omitempty"`
	To        string        `json:"to,omitempty"`
	Operator  string        `json:"operator,omitempty"`
	TokenID   string        `json:"tokenId,omitempty"`
	Value     string        `json:"value,omitempty"`
	IDs       []string      `json:"ids,omitempty"`
	Values    []string      `json:"values,omitempty"`
	LogIndex  uint64        `json:"logIndex"`
}

// ParserKey returns the registry key of the log, e.g. "ERC1155TransferSingle"
func (e EvmLogEvent) ParserKey() string {
	return string(e.Type) + e.EventName
}

// Collection is the descriptive record of a tracked token contract
type Collection struct {
	ContractAddress string    `json:"contract_address"`
	Kind            TokenKind `json:"kind"`
	// CollectionID is set when the contract is a precompile backed by a native collection
	CollectionID *uint32 `json:"collection_id,omitempty"`
	// TotalSupply is nil until the supply is known; reconciliation is skipped while nil
	TotalSupply *uint64 `json:"total_supply,omitempty"`
	Name        string  `json:"name,omitempty"`
}

// IsNative reports whether native events already cover the collection
func (c Collection) IsNative() bool {
	return c.CollectionID != nil
}

// Block is a block observed by ingestion
type Block struct {
	Number    uint64    `json:"number"`
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	Finalized bool      `json:"finalized"`
}

// BlockRange is an inclusive range of block numbers
type BlockRange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// Len returns the number of blocks in the range
func (r BlockRange) Len() uint64 {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// ChangeSource identifies the engine that produced an ownership change
type ChangeSource string

const (
	ChangeSourceSync      ChangeSource = "sync"
	ChangeSourceReconcile ChangeSource = "reconcile"
)

// OwnershipChange summarises the ownership writes applied to one contract by one run
type OwnershipChange struct {
	ContractAddress string       `json:"contractAddress"`
	Kind            TokenKind    `json:"kind"`
	Source          ChangeSource `json:"source"`
	Updated         int          `json:"updated"`
	Deleted         int          `json:"deleted"`
	TokenIDs        []string     `json:"tokenIds,omitempty"`
	BlockNumber     uint64       `json:"blockNumber,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
}
