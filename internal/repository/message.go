package repository

import (
	"context"

	"classifieds/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository defines the interface for buyer to seller messages.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	ListReceived(ctx context.Context, receiverID uint, limit, offset int) ([]models.Message, error)
	CountUnread(ctx context.Context, receiverID uint) (int64, error)
	MarkRead(ctx context.Context, id, receiverID uint) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	err := r.db.WithContext(ctx).Create(message).Error
	return translateError(err, "Message", message.ID)
}

// ListReceived returns the inbox of receiverID, newest first.
func (r *messageRepository) ListReceived(ctx context.Context, receiverID uint, limit, offset int) ([]models.Message, error) {
	messages := []models.Message{}
	err := r.db.WithContext(ctx).
		Where("receiver_id = ?", receiverID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, translateError(err, "Message", nil)
	}
	return messages, nil
}

func (r *messageRepository) CountUnread(ctx context.Context, receiverID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("receiver_id = ? AND is_read = ?", receiverID, false).
		Count(&count).Error
	if err != nil {
		return 0, translateError(err, "Message", nil)
	}
	return count, nil
}

// MarkRead flags a message as read. Messages addressed to someone else are not found.
func (r *messageRepository) MarkRead(ctx context.Context, id, receiverID uint) error {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND receiver_id = ?", id, receiverID).
		UpdateColumn("is_read", true)
	if result.Error != nil {
		return translateError(result.Error, "Message", id)
	}
	if result.RowsAffected == 0 {
		// Marking an already read message is a no-op on some drivers; check existence.
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Message{}).
			Where("id = ? AND receiver_id = ?", id, receiverID).
			Count(&count).Error; err != nil {
			return translateError(err, "Message", id)
		}
		if count == 0 {
			return models.NewNotFoundError("Message", id)
		}
	}
	return nil
}
