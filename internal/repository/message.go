package repository

import (
	"context"

	"echosphere/internal/model"

	"gorm.io/gorm"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) error
	FindByID(ctx context.Context, id uint) (*model.Message, error)
	// ListByRoom returns the messages of a room oldest first with senders loaded.
	ListByRoom(ctx context.Context, roomID uint) ([]model.Message, error)
	// Latest returns the most recent message of each room that has one.
	Latest(ctx context.Context, roomIDs []uint) (map[uint]model.Message, error)
	UpdateContent(ctx context.Context, id uint, content string) error
	Delete(ctx context.Context, id uint) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository returns a gorm-backed MessageRepository.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *model.Message) error {
	return r.db.WithContext(ctx).Omit("Sender").Create(msg).Error
}

func (r *messageRepository) FindByID(ctx context.Context, id uint) (*model.Message, error) {
	var msg model.Message
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) ListByRoom(ctx context.Context, roomID uint) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Where("chat_room_id = ?", roomID).
		Order("created_at, id").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) Latest(ctx context.Context, roomIDs []uint) (map[uint]model.Message, error) {
	latest := make(map[uint]model.Message, len(roomIDs))
	for _, roomID := range roomIDs {
		var msg model.Message
		err := r.db.WithContext(ctx).
			Preload("Sender").
			Where("chat_room_id = ?", roomID).
			Order("created_at DESC, id DESC").
			Limit(1).
			Find(&msg).Error
		if err != nil {
			return nil, err
		}
		if msg.ID != 0 {
			latest[roomID] = msg
		}
	}
	return latest, nil
}

func (r *messageRepository) UpdateContent(ctx context.Context, id uint, content string) error {
	res := r.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", id).Update("content", content)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *messageRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Message{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
