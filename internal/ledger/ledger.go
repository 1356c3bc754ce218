// Package ledger records who referred whom and keeps each referrer's count
// equal to the number of referral edges naming them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"refgate-bot/internal/models"
)

// DefaultThreshold is the number of referrals that unlocks content.
const DefaultThreshold = 1

type Ledger struct {
	DB        *gorm.DB
	Threshold int
	now       func() time.Time
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{DB: db, Threshold: DefaultThreshold, now: time.Now}
}

// Arrival describes what RegisterArrival changed.
type Arrival struct {
	IsNewUser bool
	// Linked is true when this arrival created a referral edge to ReferrerID.
	Linked     bool
	ReferrerID int64
	// ReferrerUnlocked is true for exactly one arrival per referrer: the one
	// whose edge first brought the referrer's count up to the threshold.
	ReferrerUnlocked bool
}

// RegisterArrival records the user's first arrival and, when referrerID names
// another user, links the two and bumps the referrer's count. A referrer who
// has not started the bot yet gets a placeholder row so the credit is kept.
// Repeat arrivals change nothing.
//
// The user row, the edge and the increment share one transaction, and the edge
// insert is ignored on conflict with the unique referred_id index, so a count
// is incremented if and only if its edge exists.
func (l *Ledger) RegisterArrival(ctx context.Context, userID int64, referrerID *int64, username string) (Arrival, error) {
	var out Arrival
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		first, err := l.markStarted(tx, userID, username)
		if err != nil {
			return err
		}
		if !first {
			return nil
		}
		out.IsNewUser = true

		if referrerID == nil || *referrerID == userID {
			return nil
		}
		ref := *referrerID

		placeholder := models.User{TelegramID: ref}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&placeholder).Error; err != nil {
			return fmt.Errorf("ensure referrer: %w", err)
		}

		edge := models.Referral{ReferrerID: ref, ReferredID: userID}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge)
		if res.Error != nil {
			return fmt.Errorf("create referral: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		out.Linked = true
		out.ReferrerID = ref

		if err := tx.Model(&models.User{}).
			Where("telegram_id = ? AND referrer_id IS NULL", userID).
			Update("referrer_id", ref).Error; err != nil {
			return fmt.Errorf("set referrer: %w", err)
		}
		if err := tx.Model(&models.User{}).
			Where("telegram_id = ?", ref).
			UpdateColumn("referral_count", gorm.Expr("referral_count + ?", 1)).Error; err != nil {
			return fmt.Errorf("increment referral count: %w", err)
		}

		res = tx.Model(&models.User{}).
			Where("telegram_id = ? AND unlocked_at IS NULL AND referral_count >= ?", ref, l.threshold()).
			UpdateColumn("unlocked_at", l.clock())
		if res.Error != nil {
			return fmt.Errorf("mark unlocked: %w", res.Error)
		}
		out.ReferrerUnlocked = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return Arrival{}, err
	}
	return out, nil
}

// markStarted reports whether this is the user's first /start. It creates the
// row, or claims a placeholder row by setting started_at exactly once.
func (l *Ledger) markStarted(tx *gorm.DB, userID int64, username string) (bool, error) {
	now := l.clock()
	user := models.User{TelegramID: userID, Username: username, StartedAt: &now}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&user)
	if res.Error != nil {
		return false, fmt.Errorf("create user: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	res = tx.Model(&models.User{}).
		Where("telegram_id = ? AND started_at IS NULL", userID).
		Updates(map[string]any{"started_at": now, "username": username})
	if res.Error != nil {
		return false, fmt.Errorf("claim user: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ReferralCount returns the user's count, 0 for unknown users.
func (l *Ledger) ReferralCount(ctx context.Context, userID int64) (int, error) {
	var user models.User
	err := l.DB.WithContext(ctx).Select("referral_count").Where("telegram_id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("referral count: %w", err)
	}
	return user.ReferralCount, nil
}

// EdgeCount counts the referral edges naming referrerID. It always equals
// ReferralCount for the same user.
func (l *Ledger) EdgeCount(ctx context.Context, referrerID int64) (int64, error) {
	var n int64
	if err := l.DB.WithContext(ctx).Model(&models.Referral{}).Where("referrer_id = ?", referrerID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("edge count: %w", err)
	}
	return n, nil
}

// Users lists the telegram ids of everyone who started the bot, oldest row first.
func (l *Ledger) Users(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := l.DB.WithContext(ctx).Model(&models.User{}).
		Where("started_at IS NOT NULL").
		Order("id").
		Pluck("telegram_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return ids, nil
}

func (l *Ledger) clock() time.Time {
	if l.now == nil {
		return time.Now()
	}
	return l.now()
}

func (l *Ledger) threshold() int {
	if l.Threshold <= 0 {
		return DefaultThreshold
	}
	return l.Threshold
}
