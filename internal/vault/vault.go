// Package vault holds the pool of content references that can be delivered.
package vault

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"refgate-bot/internal/models"
)

type Vault struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Vault {
	return &Vault{DB: db}
}

// SampleOne picks a reference uniformly at random. ok is false when the vault
// is empty.
//
// Each call is a single statement, so an eviction committed before it can
// never be returned.
func (v *Vault) SampleOne(ctx context.Context) (ref int, ok bool, err error) {
	var items []models.VaultItem
	if err := v.DB.WithContext(ctx).Order("RANDOM()").Limit(1).Find(&items).Error; err != nil {
		return 0, false, fmt.Errorf("sample vault: %w", err)
	}
	if len(items) == 0 {
		return 0, false, nil
	}
	return items[0].MessageID, true, nil
}

// Evict removes ref for good. Evicting a missing ref is not an error.
func (v *Vault) Evict(ctx context.Context, ref int) error {
	if err := v.DB.WithContext(ctx).Where("message_id = ?", ref).Delete(&models.VaultItem{}).Error; err != nil {
		return fmt.Errorf("evict %d: %w", ref, err)
	}
	return nil
}

// Add stores ref; adding an existing ref is a no-op.
func (v *Vault) Add(ctx context.Context, ref int) error {
	item := models.VaultItem{MessageID: ref}
	if err := v.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&item).Error; err != nil {
		return fmt.Errorf("add %d: %w", ref, err)
	}
	return nil
}

func (v *Vault) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := v.DB.WithContext(ctx).Model(&models.VaultItem{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
