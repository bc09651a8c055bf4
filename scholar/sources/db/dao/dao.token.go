package dao

import (
	"context"
	"time"

	"scholar/scholar/sources/db/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TokenDAO struct {
	DB *gorm.DB
}

func NewTokenDAO(db *gorm.DB) *TokenDAO {
	return &TokenDAO{DB: db}
}

func (dao *TokenDAO) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	return dao.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.RevokedToken{JTI: jti, ExpiresAt: expiresAt}).Error
}

func (dao *TokenDAO) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := dao.DB.WithContext(ctx).Model(&models.RevokedToken{}).Where("jti = ?", jti).Count(&count).Error
	return count > 0, err
}

// PruneExpired drops revocations for tokens that can no longer validate.
func (dao *TokenDAO) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res := dao.DB.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.RevokedToken{})
	return res.RowsAffected, res.Error
}
