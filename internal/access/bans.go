package access

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"refgate-bot/internal/models"
)

var ErrUnknownUser = errors.New("access: unknown user")

// BanList keeps the ban flag on user rows. Banning someone who never started
// the bot creates a placeholder row; the ledger still treats their first
// /start as a first arrival.
type BanList struct {
	DB *gorm.DB
}

func (b *BanList) IsBanned(ctx context.Context, userID int64) (bool, error) {
	var user models.User
	err := b.DB.WithContext(ctx).Select("banned").Where("telegram_id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check ban: %w", err)
	}
	return user.Banned, nil
}

func (b *BanList) Ban(ctx context.Context, userID int64) error {
	user := models.User{TelegramID: userID, Banned: true}
	err := b.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"banned", "updated_at"}),
	}).Create(&user).Error
	if err != nil {
		return fmt.Errorf("ban: %w", err)
	}
	return nil
}

// Unban returns ErrUnknownUser when there is no row for userID.
func (b *BanList) Unban(ctx context.Context, userID int64) error {
	res := b.DB.WithContext(ctx).Model(&models.User{}).Where("telegram_id = ?", userID).Update("banned", false)
	if res.Error != nil {
		return fmt.Errorf("update ban: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUnknownUser
	}
	return nil
}
