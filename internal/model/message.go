package model

import "time"

type Message struct {
	ID         uint      `json:"id" gorm:"primarykey"`
	ChatRoomID uint      `json:"chatRoomId" gorm:"index"`
	SenderID   uint      `json:"senderId" gorm:"index"`
	Sender     User      `json:"-"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
