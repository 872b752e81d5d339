package schema

import "time"

// Collection represents the collections table - tracked token contracts
type Collection struct {
	// ContractAddress is the checksummed contract address
	ContractAddress string `gorm:"column:contract_address;primaryKey;type:text"`
	// Kind is the ownership model of the contract (single, balance)
	Kind string `gorm:"column:kind;not null;type:text"`
	// CollectionID is set for precompile contracts backed by a native collection
	CollectionID *int64 `gorm:"column:collection_id;type:bigint"`
	// TotalSupply is nil until known, reconciliation is skipped while nil
	TotalSupply *int64 `gorm:"column:total_supply;type:bigint"`
	// Name is the descriptive name of the collection
	Name      string    `gorm:"column:name;not null;default:'';type:text"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Collection model
func (Collection) TableName() string {
	return "collections"
}
