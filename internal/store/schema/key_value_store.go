package schema

import "time"

// KeyValue represents the key_value_store table - small pieces of scheduler and
// reconciliation state (missing block ranges, reconciliation progress)
type KeyValue struct {
	// Key is namespaced by a prefix, e.g. "reconcile_progress:<contract>"
	Key string `gorm:"column:key;primaryKey;type:text"`
	// Value is the JSON or plain text state
	Value     string    `gorm:"column:value;not null;type:text"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for the KeyValue model
func (KeyValue) TableName() string {
	return "key_value_store"
}
