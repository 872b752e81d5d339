package schema

import (
	"time"

	"gorm.io/datatypes"
)

// Event represents the events table - native chain events appended by block ingestion
type Event struct {
	// EventID is "<block>-<index>"
	EventID     string         `gorm:"column:event_id;primaryKey;type:text"`
	BlockNumber int64          `gorm:"column:block_number;not null"`
	EventIndex  int64          `gorm:"column:event_index;not null"`
	Section     string         `gorm:"column:section;not null;type:text"`
	Method      string         `gorm:"column:method;not null;type:text"`
	Args        datatypes.JSON `gorm:"column:args;type:jsonb"`
	Timestamp   time.Time      `gorm:"column:timestamp;not null;type:timestamptz"`
	// Processed is flipped once by the ownership sync
	Processed bool      `gorm:"column:processed;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Event model
func (Event) TableName() string {
	return "events"
}
