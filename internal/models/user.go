package models

import (
	"time"
)

type User struct {
	ID            uint       `gorm:"primaryKey"`
	TelegramID    int64      `gorm:"uniqueIndex;not null"`
	Username      string     `gorm:"size:255"`
	Banned        bool       `gorm:"not null;default:false"`
	ReferrerID    *int64     `gorm:"index"` // telegram id, written once
	ReferralCount int        `gorm:"not null;default:0"`
	UnlockedAt    *time.Time // set once, when the count first reaches the threshold
	// StartedAt is nil for rows created on the user's behalf (credited
	// referrer, pre-emptive ban) until their own first /start.
	StartedAt *time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Role grants elevated access (no referral requirement, no cooldown).
type Role struct {
	ID         uint   `gorm:"primaryKey"`
	TelegramID int64  `gorm:"uniqueIndex;not null"`
	Name       string `gorm:"size:32;not null"`
	GrantedBy  int64
	CreatedAt  time.Time
}
