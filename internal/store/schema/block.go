package schema

import "time"

// Block represents the blocks table - blocks observed by ingestion
type Block struct {
	Number    int64     `gorm:"column:number;primaryKey"`
	Hash      string    `gorm:"column:hash;not null;type:text"`
	Timestamp time.Time `gorm:"column:timestamp;not null;type:timestamptz"`
	Finalized bool      `gorm:"column:finalized;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Block model
func (Block) TableName() string {
	return "blocks"
}
