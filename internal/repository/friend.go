package repository

import (
	"context"

	"echosphere/internal/model"

	"gorm.io/gorm"
)

type FriendRepository interface {
	CreateRequest(ctx context.Context, req *model.FriendRequest) error
	FindRequest(ctx context.Context, id uint) (*model.FriendRequest, error)
	// PendingRequestExists reports a pending request in either direction.
	PendingRequestExists(ctx context.Context, userA, userB uint) (bool, error)
	PendingFor(ctx context.Context, receiverID uint) ([]model.FriendRequest, error)
	SetRequestStatus(ctx context.Context, id uint, status string) error
	// Befriend writes the two directed edges of a friendship.
	Befriend(ctx context.Context, userA, userB uint) error
	AreFriends(ctx context.Context, userA, userB uint) (bool, error)
	// ListFriendUsers returns the users on the other side of userID's edges.
	ListFriendUsers(ctx context.Context, userID uint) ([]model.User, error)
}

type friendRepository struct {
	db *gorm.DB
}

// NewFriendRepository returns a gorm-backed FriendRepository.
func NewFriendRepository(db *gorm.DB) FriendRepository {
	return &friendRepository{db: db}
}

func (r *friendRepository) CreateRequest(ctx context.Context, req *model.FriendRequest) error {
	return r.db.WithContext(ctx).Omit("Sender", "Receiver").Create(req).Error
}

func (r *friendRepository) FindRequest(ctx context.Context, id uint) (*model.FriendRequest, error) {
	var req model.FriendRequest
	err := r.db.WithContext(ctx).Preload("Sender").Preload("Receiver").First(&req, id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *friendRepository) PendingRequestExists(ctx context.Context, userA, userB uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.FriendRequest{}).
		Where("status = ?", model.FriendRequestPending).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userA, userB, userB, userA).
		Count(&count).Error
	return count > 0, err
}

func (r *friendRepository) PendingFor(ctx context.Context, receiverID uint) ([]model.FriendRequest, error) {
	var reqs []model.FriendRequest
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Where("receiver_id = ? AND status = ?", receiverID, model.FriendRequestPending).
		Order("id").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *friendRepository) SetRequestStatus(ctx context.Context, id uint, status string) error {
	res := r.db.WithContext(ctx).Model(&model.FriendRequest{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *friendRepository) Befriend(ctx context.Context, userA, userB uint) error {
	edges := []model.Friend{
		{User1ID: userA, User2ID: userB},
		{User1ID: userB, User2ID: userA},
	}
	return r.db.WithContext(ctx).Create(&edges).Error
}

func (r *friendRepository) AreFriends(ctx context.Context, userA, userB uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Friend{}).
		Where("user1_id = ? AND user2_id = ?", userA, userB).
		Count(&count).Error
	return count > 0, err
}

func (r *friendRepository) ListFriendUsers(ctx context.Context, userID uint) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Joins("JOIN friends ON friends.user2_id = users.id AND friends.deleted_at IS NULL").
		Where("friends.user1_id = ?", userID).
		Order("friends.id").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
