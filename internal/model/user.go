package model

import (
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	ChatRooms         []ChatRoom `json:"-" gorm:"many2many:chat_room_participants;"`
	Name              string     `json:"name"`
	Email             string     `json:"email" gorm:"uniqueIndex"`
	Password          string     `json:"password,omitempty"`
	Bio               string     `json:"bio,omitempty"`
	ProfilePictureKey string     `json:"profile_picture_key,omitempty"`
}

func (u *User) SanitizePassword() {
	u.Password = ""
}

// UserSummary is the public projection of a user embedded in chat payloads.
type UserSummary struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name}
}
