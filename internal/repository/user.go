package repository

import (
	"context"
	"strings"

	"echosphere/internal/model"

	"gorm.io/gorm"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	// CountExisting reports how many of ids name existing users.
	CountExisting(ctx context.Context, ids []uint) (int64, error)
	UpdateName(ctx context.Context, id uint, name string) error
	UpdateBio(ctx context.Context, id uint, bio string) error
	UpdateProfilePicture(ctx context.Context, id uint, key string) error
	Search(ctx context.Context, keyword string) ([]model.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a gorm-backed UserRepository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *userRepository) CountExisting(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("id IN ?", ids).Count(&count).Error
	return count, err
}

func (r *userRepository) UpdateName(ctx context.Context, id uint, name string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userRepository) UpdateBio(ctx context.Context, id uint, bio string) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("bio", bio).Error
}

func (r *userRepository) UpdateProfilePicture(ctx context.Context, id uint, key string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("profile_picture_key", key)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userRepository) Search(ctx context.Context, keyword string) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("LOWER(name) LIKE ?", "%"+strings.ToLower(keyword)+"%").
		Order("id").
		Limit(50).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
