package model

import "time"

// OutboxEvent is one pending mirror operation, written in the same
// transaction as the relational change it describes.
type OutboxEvent struct {
	ID            uint   `gorm:"primarykey"`
	Op            string `gorm:"size:16"`
	Path          string `gorm:"size:255"`
	Payload       []byte
	Attempts      int
	LastError     string
	NextAttemptAt time.Time `gorm:"index"`
	DeliveredAt   *time.Time `gorm:"index"`
	CreatedAt     time.Time
}
