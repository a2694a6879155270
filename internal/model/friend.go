package model

import "gorm.io/gorm"

const (
	FriendRequestPending  = "pending"
	FriendRequestAccepted = "accepted"
	FriendRequestRejected = "rejected"
)

type FriendRequest struct {
	gorm.Model
	SenderID   uint   `json:"senderId" gorm:"index"`
	Sender     User   `json:"-"`
	ReceiverID uint   `json:"receiverId" gorm:"index"`
	Receiver   User   `json:"-"`
	Status     string `json:"status" gorm:"default:pending;index"`
}

type Friend struct {
	gorm.Model
	User1ID uint `json:"user1Id" gorm:"index"`
	User2ID uint `json:"user2Id"`
}
