package model

import (
	"sort"
	"time"
)

// ChatRoom is hard-deleted, so it does not embed gorm.Model.
type ChatRoom struct {
	ID           uint      `json:"id" gorm:"primarykey"`
	Name         string    `json:"name"`
	IsGroup      bool      `json:"isGroup"`
	Participants []User    `json:"participants,omitempty" gorm:"many2many:chat_room_participants;"`
	Messages     []Message `json:"messages,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ChatRoomParticipant is the join row behind ChatRoom.Participants.
type ChatRoomParticipant struct {
	ChatRoomID uint `gorm:"primaryKey"`
	UserID     uint `gorm:"primaryKey"`
	CreatedAt  time.Time
}

// ParticipantIDs returns the ids of the loaded participants in ascending order.
func (c *ChatRoom) ParticipantIDs() []uint {
	ids := make([]uint, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *ChatRoom) HasParticipant(userID uint) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// UniqueIDs collapses duplicates and zero ids, returning ascending order.
func UniqueIDs(groups ...[]uint) []uint {
	seen := make(map[uint]struct{})
	out := make([]uint, 0)
	for _, group := range groups {
		for _, id := range group {
			if id == 0 {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
