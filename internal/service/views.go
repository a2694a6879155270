package service

import (
	"time"

	"echosphere/internal/model"
)

// ChatRoomView is a chatroom as returned to the caller after a mutation.
type ChatRoomView struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	IsGroup      bool   `json:"isGroup"`
	Participants []uint `json:"participants"`
}

func newChatRoomView(room *model.ChatRoom) *ChatRoomView {
	return &ChatRoomView{
		ID:           room.ID,
		Name:         room.Name,
		IsGroup:      room.IsGroup,
		Participants: room.ParticipantIDs(),
	}
}

// ChatRoomSummary is one entry of the caller's chatroom list.
type ChatRoomSummary struct {
	ID           uint                `json:"id"`
	Name         string              `json:"name"`
	IsGroup      bool                `json:"isGroup"`
	Participants []model.UserSummary `json:"participants"`
	LastMessage  *MessageView        `json:"lastMessage,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
}

type MessageView struct {
	ID       uint   `json:"id"`
	Sender   string `json:"sender"`
	Message  string `json:"message"`
	SenderID uint   `json:"senderId"`
}

func newMessageView(msg *model.Message) MessageView {
	return MessageView{
		ID:       msg.ID,
		Sender:   msg.Sender.Name,
		Message:  msg.Content,
		SenderID: msg.SenderID,
	}
}

// Conversation is the seed payload of a chatroom view.
type Conversation struct {
	ChatRoomName string        `json:"chatRoomName"`
	Messages     []MessageView `json:"messages"`
}

type FriendRequestView struct {
	ID         uint      `json:"id"`
	SenderID   uint      `json:"senderId"`
	SenderName string    `json:"senderName"`
	ReceiverID uint      `json:"receiverId"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

type PostView struct {
	ID         uint              `json:"id"`
	Author     model.UserSummary `json:"author"`
	Content    string            `json:"content"`
	MediaKey   string            `json:"mediaKey,omitempty"`
	Visibility string            `json:"visibility"`
	Likes      int               `json:"likes"`
	LikedByMe  bool              `json:"likedByMe"`
	Comments   []CommentView     `json:"comments"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

func newPostView(post *model.Post, viewerID uint) PostView {
	comments := make([]CommentView, 0, len(post.Comments))
	for i := range post.Comments {
		comments = append(comments, newCommentView(&post.Comments[i]))
	}

	liked := false
	for _, id := range post.LikerIDs() {
		if id == viewerID {
			liked = true
			break
		}
	}

	return PostView{
		ID:         post.ID,
		Author:     post.User.Summary(),
		Content:    post.Content,
		MediaKey:   post.MediaKey,
		Visibility: post.Visibility,
		Likes:      len(post.Likes),
		LikedByMe:  liked,
		Comments:   comments,
		CreatedAt:  post.CreatedAt,
		UpdatedAt:  post.UpdatedAt,
	}
}

type CommentView struct {
	ID        uint              `json:"id"`
	Author    model.UserSummary `json:"author"`
	Content   string            `json:"content"`
	CreatedAt time.Time         `json:"createdAt"`
}

func newCommentView(c *model.Comment) CommentView {
	return CommentView{ID: c.ID, Author: c.User.Summary(), Content: c.Content, CreatedAt: c.CreatedAt}
}

type PageMeta struct {
	CurrentPage int   `json:"currentPage"`
	PageSize    int   `json:"pageSize"`
	TotalPosts  int64 `json:"totalPosts"`
	TotalPages  int64 `json:"totalPages"`
}

// PostPage is one page of a post listing.
type PostPage struct {
	Data []PostView `json:"data"`
	Meta PageMeta   `json:"meta"`
}

type LikeResult struct {
	Message string `json:"message"`
	Liked   bool   `json:"liked"`
	Likes   int    `json:"likes"`
}

type CommentResult struct {
	Message string      `json:"message"`
	Comment CommentView `json:"comment"`
}
