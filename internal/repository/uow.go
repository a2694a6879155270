package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories groups the accessors that share one connection or transaction.
type Repositories struct {
	Users     UserRepository
	ChatRooms ChatRoomRepository
	Messages  MessageRepository
	Friends   FriendRepository
	Outbox    OutboxRepository
	Posts     PostRepository
}

// NewRepositories binds every repository to db.
func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:     NewUserRepository(db),
		ChatRooms: NewChatRoomRepository(db),
		Messages:  NewMessageRepository(db),
		Friends:   NewFriendRepository(db),
		Outbox:    NewOutboxRepository(db),
		Posts:     NewPostRepository(db),
	}
}

// UnitOfWork runs fn against repositories bound to a single transaction.
// The transaction commits when fn returns nil.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(r Repositories) error) error
}

type unitOfWork struct {
	db *gorm.DB
}

// NewUnitOfWork returns a UnitOfWork running gorm transactions on db.
func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &unitOfWork{db: db}
}

func (u *unitOfWork) Do(ctx context.Context, fn func(r Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
