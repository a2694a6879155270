package service

import (
	"context"
	"encoding/json"
	"io"

	"echosphere/internal/mirror"
	"echosphere/internal/model"
)

type UserService interface {
	Signup(ctx context.Context, name, email, password string) (*model.User, error)
	// Login returns a session token for valid credentials.
	Login(ctx context.Context, email, password string) (string, *model.User, error)
	GetUser(ctx context.Context, id uint) (*model.User, error)
	Search(ctx context.Context, keyword string) ([]model.UserSummary, error)
	UpdateProfile(ctx context.Context, callerID uint, name, bio string) (*model.User, error)
}

type ChatRoomService interface {
	Create(ctx context.Context, callerID uint, name string, participantIDs []uint) (*ChatRoomView, error)
	AddParticipants(ctx context.Context, callerID, roomID uint, userIDs []uint) error
	Participants(ctx context.Context, callerID, roomID uint) ([]model.UserSummary, error)
	Rename(ctx context.Context, callerID, roomID uint, name string) (*ChatRoomView, error)
	Leave(ctx context.Context, callerID, roomID uint) error
	Delete(ctx context.Context, callerID, roomID uint) error
	List(ctx context.Context, callerID uint) ([]ChatRoomSummary, error)
}

type MessageService interface {
	Fetch(ctx context.Context, callerID, roomID uint) (*Conversation, error)
	Send(ctx context.Context, callerID, roomID uint, text string) (*MessageView, error)
	Edit(ctx context.Context, callerID, roomID, messageID uint, text string) (*model.Message, error)
	Delete(ctx context.Context, callerID, roomID, messageID uint) error
}

type FriendService interface {
	SendRequest(ctx context.Context, callerID, receiverID uint) error
	PendingRequests(ctx context.Context, callerID uint) ([]FriendRequestView, error)
	// Accept befriends both users and opens a direct chatroom for them.
	Accept(ctx context.Context, callerID, requestID uint) (*ChatRoomView, error)
	Reject(ctx context.Context, callerID, requestID uint) error
	// Friends lists the users userID is friends with.
	Friends(ctx context.Context, userID uint) ([]model.UserSummary, error)
}

// PostService applies post visibility for the viewer on every read.
type PostService interface {
	Create(ctx context.Context, callerID uint, in PostInput) (*PostView, error)
	Get(ctx context.Context, callerID, postID uint) (*PostView, error)
	Update(ctx context.Context, callerID, postID uint, in PostInput) (*PostView, error)
	Delete(ctx context.Context, callerID, postID uint) error
	Feed(ctx context.Context, callerID uint, page PageRequest) (*PostPage, error)
	Explore(ctx context.Context, page PageRequest) (*PostPage, error)
	Search(ctx context.Context, callerID uint, keyword string, page PageRequest) (*PostPage, error)
	ByUser(ctx context.Context, callerID, authorID uint, page PageRequest) (*PostPage, error)
	ToggleLike(ctx context.Context, callerID, postID uint) (*LikeResult, error)
	Comment(ctx context.Context, callerID, postID uint, content string) (*CommentResult, error)
}

type RealtimeService interface {
	// Authorize checks that callerID may subscribe to q and returns the
	// query scoped to what the caller may see.
	Authorize(ctx context.Context, callerID uint, q mirror.Query) (mirror.Query, error)
	Value(ctx context.Context, path string) (json.RawMessage, error)
	Join(ctx context.Context, roomID, userID uint)
	Leave(ctx context.Context, roomID, userID uint)
	Online(ctx context.Context, callerID, roomID uint) ([]uint, error)
}

// MediaService stores uploaded files in object storage.
type MediaService interface {
	UploadAvatar(ctx context.Context, userID uint, file io.Reader, filename, contentType string, size int64) (*model.FileMetadata, error)
	AvatarURL(ctx context.Context, userID uint) (string, error)
	UploadPostMedia(ctx context.Context, userID uint, file io.Reader, filename, contentType string, size int64) (*model.FileMetadata, error)
	PresignURL(ctx context.Context, key string) (string, error)
	HealthCheck(ctx context.Context) error
}
