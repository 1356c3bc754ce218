package models

import (
	"time"
)

// Referral links a referred user to the user whose link they arrived with.
// A user can be referred at most once, enforced by the unique index.
type Referral struct {
	ID         uint  `gorm:"primaryKey"`
	ReferrerID int64 `gorm:"not null;index"`
	ReferredID int64 `gorm:"not null;uniqueIndex"`
	CreatedAt  time.Time
}
