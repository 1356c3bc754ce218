package models

import (
	"time"
)

// VaultItem is a message id inside the vault channel.
type VaultItem struct {
	ID        uint `gorm:"primaryKey"`
	MessageID int  `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

// Retraction is a delivered copy waiting to be deleted from the recipient's chat.
type Retraction struct {
	ID          string `gorm:"size:36;primaryKey"`
	ChatID      int64  `gorm:"not null"`
	MessageID   int    `gorm:"not null"`
	DeliveredAt time.Time
	DueAt       time.Time `gorm:"not null;index"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{&User{}, &Role{}, &Referral{}, &VaultItem{}, &Retraction{}}
}
