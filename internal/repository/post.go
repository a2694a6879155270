package repository

import (
	"context"
	"strings"

	"echosphere/internal/model"

	"gorm.io/gorm"
)

// PostFilter narrows a post listing. Visibility is evaluated for ViewerID
// unless PublicOnly is set.
type PostFilter struct {
	ViewerID   uint
	AuthorID   uint
	PublicOnly bool
	Keyword    string
	Offset     int
	Limit      int
	Ascending  bool
}

type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	FindByID(ctx context.Context, id uint) (*model.Post, error)
	Update(ctx context.Context, id uint, fields map[string]any) error
	// Delete removes the post with its likes and comments.
	Delete(ctx context.Context, id uint) error
	// List returns one page of matching posts and the total match count.
	List(ctx context.Context, filter PostFilter) ([]model.Post, int64, error)
	HasLike(ctx context.Context, postID, userID uint) (bool, error)
	AddLike(ctx context.Context, postID, userID uint) error
	RemoveLike(ctx context.Context, postID, userID uint) error
	AddComment(ctx context.Context, comment *model.Comment) error
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository returns a gorm-backed PostRepository.
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	return r.db.WithContext(ctx).Omit("User").Create(post).Error
}

func (r *postRepository) FindByID(ctx context.Context, id uint) (*model.Post, error) {
	var post model.Post
	err := r.withRelations(r.db.WithContext(ctx)).First(&post, id).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) Update(ctx context.Context, id uint, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&model.Post{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("post_id = ?", id).Delete(&model.PostLike{}).Error; err != nil {
		return err
	}
	if err := db.Where("post_id = ?", id).Delete(&model.Comment{}).Error; err != nil {
		return err
	}

	res := db.Delete(&model.Post{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *postRepository) List(ctx context.Context, filter PostFilter) ([]model.Post, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Post{})

	if filter.AuthorID != 0 {
		q = q.Where("posts.user_id = ?", filter.AuthorID)
	}

	if filter.PublicOnly {
		q = q.Where("posts.visibility = ?", model.VisibilityPublic)
	} else {
		friends := r.db.Model(&model.Friend{}).Select("user2_id").Where("user1_id = ?", filter.ViewerID)
		q = q.Where("(posts.visibility = ? OR posts.user_id = ? OR (posts.visibility = ? AND posts.user_id IN (?)))",
			model.VisibilityPublic, filter.ViewerID, model.VisibilityFriends, friends)
	}

	if filter.Keyword != "" {
		pattern := "%" + strings.ToLower(filter.Keyword) + "%"
		authors := r.db.Model(&model.User{}).Select("id").Where("LOWER(name) LIKE ?", pattern)
		q = q.Where("(LOWER(posts.content) LIKE ? OR posts.user_id IN (?))", pattern, authors)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "posts.created_at DESC, posts.id DESC"
	if filter.Ascending {
		order = "posts.created_at, posts.id"
	}

	page := r.withRelations(q.Session(&gorm.Session{})).Order(order).Offset(filter.Offset)
	if filter.Limit > 0 {
		page = page.Limit(filter.Limit)
	}

	var posts []model.Post
	if err := page.Find(&posts).Error; err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (r *postRepository) HasLike(ctx context.Context, postID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.PostLike{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *postRepository) AddLike(ctx context.Context, postID, userID uint) error {
	return r.db.WithContext(ctx).Create(&model.PostLike{PostID: postID, UserID: userID}).Error
}

func (r *postRepository) RemoveLike(ctx context.Context, postID, userID uint) error {
	return r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&model.PostLike{}).Error
}

func (r *postRepository) AddComment(ctx context.Context, comment *model.Comment) error {
	return r.db.WithContext(ctx).Omit("User").Create(comment).Error
}

func (r *postRepository) withRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("User").
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("comments.id") }).
		Preload("Comments.User").
		Preload("Likes", func(db *gorm.DB) *gorm.DB { return db.Order("post_likes.id") })
}
