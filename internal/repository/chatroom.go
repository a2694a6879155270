package repository

import (
	"context"

	"echosphere/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatRoomRepository interface {
	// Create inserts room and connects participantIDs to it.
	Create(ctx context.Context, room *model.ChatRoom, participantIDs []uint) error
	FindByID(ctx context.Context, id uint) (*model.ChatRoom, error)
	Exists(ctx context.Context, id uint) (bool, error)
	IsParticipant(ctx context.Context, roomID, userID uint) (bool, error)
	// Connect adds participants; ids already connected are left alone.
	Connect(ctx context.Context, roomID uint, userIDs []uint) error
	Disconnect(ctx context.Context, roomID, userID uint) error
	Rename(ctx context.Context, id uint, name string) error
	// Delete removes the room with its join rows and messages and returns
	// the ids of the removed messages.
	Delete(ctx context.Context, id uint) ([]uint, error)
	ListForUser(ctx context.Context, userID uint) ([]model.ChatRoom, error)
	Participants(ctx context.Context, roomID uint) ([]model.User, error)
}

type chatRoomRepository struct {
	db *gorm.DB
}

// NewChatRoomRepository returns a gorm-backed ChatRoomRepository.
func NewChatRoomRepository(db *gorm.DB) ChatRoomRepository {
	return &chatRoomRepository{db: db}
}

func (r *chatRoomRepository) Create(ctx context.Context, room *model.ChatRoom, participantIDs []uint) error {
	if err := r.db.WithContext(ctx).Omit("Participants", "Messages").Create(room).Error; err != nil {
		return err
	}
	return r.Connect(ctx, room.ID, participantIDs)
}

func (r *chatRoomRepository) FindByID(ctx context.Context, id uint) (*model.ChatRoom, error) {
	var room model.ChatRoom
	err := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("users.id") }).
		First(&room, id).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *chatRoomRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ChatRoom{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *chatRoomRepository) IsParticipant(ctx context.Context, roomID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ChatRoomParticipant{}).
		Where("chat_room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *chatRoomRepository) Connect(ctx context.Context, roomID uint, userIDs []uint) error {
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]model.ChatRoomParticipant, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, model.ChatRoomParticipant{ChatRoomID: roomID, UserID: id})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (r *chatRoomRepository) Disconnect(ctx context.Context, roomID, userID uint) error {
	return r.db.WithContext(ctx).
		Where("chat_room_id = ? AND user_id = ?", roomID, userID).
		Delete(&model.ChatRoomParticipant{}).Error
}

func (r *chatRoomRepository) Rename(ctx context.Context, id uint, name string) error {
	res := r.db.WithContext(ctx).Model(&model.ChatRoom{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *chatRoomRepository) Delete(ctx context.Context, id uint) ([]uint, error) {
	db := r.db.WithContext(ctx)

	var messageIDs []uint
	if err := db.Model(&model.Message{}).Where("chat_room_id = ?", id).Order("id").Pluck("id", &messageIDs).Error; err != nil {
		return nil, err
	}
	if err := db.Where("chat_room_id = ?", id).Delete(&model.Message{}).Error; err != nil {
		return nil, err
	}
	if err := db.Where("chat_room_id = ?", id).Delete(&model.ChatRoomParticipant{}).Error; err != nil {
		return nil, err
	}

	res := db.Delete(&model.ChatRoom{}, id)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	return messageIDs, nil
}

func (r *chatRoomRepository) ListForUser(ctx context.Context, userID uint) ([]model.ChatRoom, error) {
	var rooms []model.ChatRoom
	err := r.db.WithContext(ctx).
		Joins("JOIN chat_room_participants crp ON crp.chat_room_id = chat_rooms.id").
		Where("crp.user_id = ?", userID).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("users.id") }).
		Order("chat_rooms.id").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *chatRoomRepository) Participants(ctx context.Context, roomID uint) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Joins("JOIN chat_room_participants crp ON crp.user_id = users.id").
		Where("crp.chat_room_id = ?", roomID).
		Order("users.id").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
