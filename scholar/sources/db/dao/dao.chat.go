package dao

import (
	"context"
	"errors"
	"time"

	"scholar/scholar/sources/db/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatDAO struct {
	DB *gorm.DB
}

func NewChatDAO(db *gorm.DB) *ChatDAO {
	return &ChatDAO{DB: db}
}

func (dao *ChatDAO) CreateSession(ctx context.Context, session *models.ChatSession) error {
	return dao.DB.WithContext(ctx).Create(session).Error
}

// GetSession returns nil when the session does not exist or belongs to
// another user.
func (dao *ChatDAO) GetSession(ctx context.Context, userID int, id uuid.UUID) (*models.ChatSession, error) {
	var session models.ChatSession
	err := dao.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (dao *ChatDAO) ListSessions(ctx context.Context, userID int) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	err := dao.DB.WithContext(ctx).Where("user_id = ?", userID).Order("updated_at desc").Find(&sessions).Error
	return sessions, err
}

// DeleteSession removes the session and its messages. It reports false when
// nothing owned by userID matched.
func (dao *ChatDAO) DeleteSession(ctx context.Context, userID int, id uuid.UUID) (bool, error) {
	deleted := false
	err := dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.ChatSession{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return tx.Where("session_id = ?", id).Delete(&models.ChatMessage{}).Error
	})
	return deleted, err
}

// SaveMessage stores a message and bumps the session's activity time.
func (dao *ChatDAO) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	return dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.ChatSession{}).Where("id = ?", msg.SessionID).Update("updated_at", time.Now()).Error
	})
}

func (dao *ChatDAO) GetMessages(ctx context.Context, sessionID uuid.UUID) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := dao.DB.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at asc").Find(&msgs).Error
	return msgs, err
}
