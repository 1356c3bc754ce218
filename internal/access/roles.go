package access

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"refgate-bot/internal/models"
)

const RoleSudo = "sudo"

// RoleStore keeps elevated-role membership in the database. Owner is always
// elevated and cannot be revoked.
type RoleStore struct {
	DB    *gorm.DB
	Owner int64
}

func (s *RoleStore) Has(ctx context.Context, userID int64) (bool, error) {
	if s.Owner != 0 && userID == s.Owner {
		return true, nil
	}
	var n int64
	if err := s.DB.WithContext(ctx).Model(&models.Role{}).Where("telegram_id = ?", userID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// Grant is idempotent; granting twice keeps the first grant.
func (s *RoleStore) Grant(ctx context.Context, userID, grantedBy int64) error {
	role := models.Role{TelegramID: userID, Name: RoleSudo, GrantedBy: grantedBy}
	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&role).Error; err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

// Revoke reports whether a grant was removed.
func (s *RoleStore) Revoke(ctx context.Context, userID int64) (bool, error) {
	res := s.DB.WithContext(ctx).Where("telegram_id = ?", userID).Delete(&models.Role{})
	if res.Error != nil {
		return false, fmt.Errorf("revoke role: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *RoleStore) List(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.DB.WithContext(ctx).Model(&models.Role{}).Order("id").Pluck("telegram_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
