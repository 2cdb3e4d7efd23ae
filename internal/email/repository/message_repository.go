package repository

import (
	"context"
	"errors"
	"time"

	emaildomain "mailcake-backend/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository defines the interface for stored message operations
type MessageRepository interface {
	Exists(ctx context.Context, accountID, providerMessageID string) (bool, error)
	// Create inserts the message; a row that already exists for the same
	// (account, provider message id) is left untouched and Create reports false.
	Create(ctx context.Context, message *emaildomain.Message) (bool, error)
	FindByID(ctx context.Context, id string) (*emaildomain.Message, error)
	CountInThread(ctx context.Context, accountID, threadID string) (int64, error)
	// SelectUnenriched returns ids of the account's messages without an enrichment
	// result, newest first
	SelectUnenriched(ctx context.Context, accountID string, limit int) ([]string, error)
	CountUnenriched(ctx context.Context, accountID string) (int64, error)
}

// messageRepository implements MessageRepository interface
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new instance of messageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

func (r *messageRepository) Exists(ctx context.Context, accountID, providerMessageID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&emaildomain.Message{}).
		Where("account_id = ? AND provider_message_id = ?", accountID, providerMessageID).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *messageRepository) Create(ctx context.Context, message *emaildomain.Message) (bool, error) {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "provider_message_id"}},
		DoNothing: true,
	}).Create(message)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *messageRepository) FindByID(ctx context.Context, id string) (*emaildomain.Message, error) {
	var message emaildomain.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) CountInThread(ctx context.Context, accountID, threadID string) (int64, error) {
	if threadID == "" {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&emaildomain.Message{}).
		Where("account_id = ? AND thread_id = ?", accountID, threadID).
		Count(&count).Error
	return count, err
}

func (r *messageRepository) unenriched(ctx context.Context, accountID string) *gorm.DB {
	return r.db.WithContext(ctx).Model(&emaildomain.Message{}).
		Joins("LEFT JOIN email_summaries ON email_summaries.message_id = email_messages.id").
		Where("email_messages.account_id = ? AND email_summaries.id IS NULL", accountID)
}

func (r *messageRepository) SelectUnenriched(ctx context.Context, accountID string, limit int) ([]string, error) {
	var ids []string
	err := r.unenriched(ctx, accountID).
		Order("COALESCE(email_messages.received_at, email_messages.created_at) DESC").
		Limit(limit).
		Pluck("email_messages.id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *messageRepository) CountUnenriched(ctx context.Context, accountID string) (int64, error) {
	var count int64
	err := r.unenriched(ctx, accountID).Count(&count).Error
	return count, err
}
