package archive

import (
	"time"

	"gorm.io/datatypes"
)

// MessageModel is the archived form of a chat message.
type MessageModel struct {
	ID        string         `gorm:"primaryKey;size:64"`
	Seq       int64          `gorm:"autoIncrement;uniqueIndex"`
	SessionID string         `gorm:"size:64;index;not null"`
	Role      string         `gorm:"size:16;not null"`
	Content   string         `gorm:"type:text;not null"`
	Model     string         `gorm:"size:32"`
	Sources   datatypes.JSON `gorm:"type:jsonb"`
	Metadata  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"index;not null"`
}

// TableName keeps the table name stable across gorm versions.
func (MessageModel) TableName() string { return "messages" }
