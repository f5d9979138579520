package main

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"zenspace/models"
	"zenspace/pkg/authflow"
)

// GORM-backed implementations of the authflow store contracts.

type gormUserStore struct {
	db *gorm.DB
}

func (s gormUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s gormUserStore) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s gormUserStore) Create(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) { // race after the caller's pre-check
			return authflow.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s gormUserStore) Update(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Save(user).Error
}

type gormSessionStore struct {
	db *gorm.DB
}

func (s gormSessionStore) Create(ctx context.Context, session *models.Session) error {
	return s.db.WithContext(ctx).Create(session).Error
}

// Get treats a malformed id like any other miss: the id column is a plain
// string, so bad input simply matches nothing.
func (s gormSessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete is conditional: RowsAffected tells the caller whether this request
// actually removed the row, which is what serializes concurrent rotations of
// the same refresh token.
func (s gormSessionStore) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// chatStore and analyticsStore keep the chat persistence behind the same
// kind of contract the authflow stores use, so handlers never touch gorm.

type chatStore interface {
	Create(ctx context.Context, chat *models.Chat) error
	Recent(ctx context.Context, userID uint, limit int) ([]models.Chat, error)
}

type analyticsStore interface {
	Create(ctx context.Context, row *models.Analytics) error
	Recent(ctx context.Context, userID uint, limit int) ([]models.Analytics, error)
}

type gormChatStore struct {
	db *gorm.DB
}

func (s gormChatStore) Create(ctx context.Context, chat *models.Chat) error {
	return s.db.WithContext(ctx).Create(chat).Error
}

// Recent returns the newest messages first.
func (s gormChatStore) Recent(ctx context.Context, userID uint, limit int) ([]models.Chat, error) {
	var chats []models.Chat
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&chats).Error
	if err != nil {
		return nil, err
	}
	return chats, nil
}

type gormAnalyticsStore struct {
	db *gorm.DB
}

func (s gormAnalyticsStore) Create(ctx context.Context, row *models.Analytics) error {
	return s.db.WithContext(ctx).Create(row).Error
}

func (s gormAnalyticsStore) Recent(ctx context.Context, userID uint, limit int) ([]models.Analytics, error) {
	var rows []models.Analytics
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}
