package model

import "time"

const (
	VisibilityPublic  = "public"
	VisibilityFriends = "friends-only"
	VisibilityPrivate = "private"
)

// ValidVisibility reports whether v is a known post visibility.
func ValidVisibility(v string) bool {
	switch v {
	case VisibilityPublic, VisibilityFriends, VisibilityPrivate:
		return true
	default:
		return false
	}
}

// Post is hard-deleted together with its likes and comments.
type Post struct {
	ID         uint       `json:"id" gorm:"primarykey"`
	UserID     uint       `json:"userId" gorm:"index"`
	User       User       `json:"-"`
	Content    string     `json:"content"`
	MediaKey   string     `json:"mediaKey,omitempty"`
	Visibility string     `json:"visibility" gorm:"default:public;index"`
	Comments   []Comment  `json:"-"`
	Likes      []PostLike `json:"-"`
	CreatedAt  time.Time  `json:"createdAt" gorm:"index"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// PostLike is unique per post and user.
type PostLike struct {
	ID        uint `gorm:"primarykey"`
	PostID    uint `gorm:"uniqueIndex:idx_post_like_user"`
	UserID    uint `gorm:"uniqueIndex:idx_post_like_user"`
	CreatedAt time.Time
}

type Comment struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	PostID    uint      `json:"postId" gorm:"index"`
	UserID    uint      `json:"userId"`
	User      User      `json:"-"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// LikerIDs returns the ids of the users who liked the loaded post.
func (p *Post) LikerIDs() []uint {
	ids := make([]uint, 0, len(p.Likes))
	for _, like := range p.Likes {
		ids = append(ids, like.UserID)
	}
	return ids
}
