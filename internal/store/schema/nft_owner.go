package schema

import (
	"time"

	"gorm.io/datatypes"
)

// NftOwner represents the nft_owners table - the ownership projection for both token kinds.
// Single kind rows are unique by (contract_address, token_id), balance kind rows by
// (contract_address, token_id, owner). Both are enforced with partial unique indexes.
type NftOwner struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Kind is the ownership model of the row (single, balance)
	Kind string `gorm:"column:kind;not null;type:text"`
	// ContractAddress is the checksummed address of the token contract
	ContractAddress string `gorm:"column:contract_address;not null;type:text"`
	// CollectionID is the native collection backing a precompile contract
	CollectionID *int64 `gorm:"column:collection_id;type:bigint"`
	// TokenID is the token id within the contract (string to support up to 78 digits)
	TokenID string `gorm:"column:token_id;not null;type:text"`
	// Owner is the checksummed address of the holder
	Owner string `gorm:"column:owner;not null;type:text"`
	// Amount is the held quantity for balance rows, nil for single rows
	Amount *string `gorm:"column:amount;type:numeric(78,0)"`
	// Metadata is the resolved off-chain metadata, never used to decide ownership
	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb"`
	// BlockNumber is the block of the last write
	BlockNumber int64 `gorm:"column:block_number;not null;default:0"`
	// EventID is the native event of the last write
	EventID *string `gorm:"column:event_id;type:text"`
	// TransactionHash is the EVM transaction of the last write
	TransactionHash *string `gorm:"column:transaction_hash;type:text"`
	// Timestamp is the block time of the last write
	Timestamp time.Time `gorm:"column:timestamp;not null;type:timestamptz"`
	// CreatedAt is the timestamp when this row was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this row was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the NftOwner model
func (NftOwner) TableName() string {
	return "nft_owners"
}
