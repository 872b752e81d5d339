package schema

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
)

// EvmLogEvents is the decoded token logs of a transaction stored as JSONB
type EvmLogEvents []domain.EvmLogEvent

// Scan implements the sql.Scanner interface for reading from database
func (e *EvmLogEvents) Scan(value interface{}) error {
	if value == nil {
		*e = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported type for evm log events: %T", value)
	}

	return json.Unmarshal(bytes, e)
}

// Value implements the driver.Valuer interface for writing to database
func (e EvmLogEvents) Value() (driver.Value, error) {
	if e == nil {
		return "[]", nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// EvmTransaction represents the evm_transactions table - EVM transactions with decoded
// ERC721/ERC1155 logs appended by block ingestion
type EvmTransaction struct {
	// Hash is the transaction hash
	Hash string `gorm:"column:hash;primaryKey;type:text"`
	// BlockNumber is the block the transaction was included in
	BlockNumber int64 `gorm:"column:block_number;not null"`
	// TransactionIndex is the position of the transaction within the block
	TransactionIndex int64 `gorm:"column:transaction_index;not null"`
	// Timestamp is the block time
	Timestamp time.Time `gorm:"column:timestamp;not null;type:timestamptz"`
	// Events holds the decoded token logs of the transaction
	Events EvmLogEvents `gorm:"column:events;not null;type:jsonb"`
	// Processed is flipped once by the ownership sync
	Processed bool `gorm:"column:processed;not null;default:false"`
	// CreatedAt is the timestamp when this row was appended
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the EvmTransaction model
func (EvmTransaction) TableName() string {
	return "evm_transactions"
}
