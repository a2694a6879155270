package repository

import (
	"context"
	"time"

	"echosphere/internal/model"

	"gorm.io/gorm"
)

type OutboxRepository interface {
	Add(ctx context.Context, events []model.OutboxEvent) error
	// Pending returns undelivered events below maxAttempts in id order.
	Pending(ctx context.Context, maxAttempts, limit int) ([]model.OutboxEvent, error)
	MarkDelivered(ctx context.Context, id uint, at time.Time) error
	MarkFailed(ctx context.Context, id uint, attempts int, lastErr string, next time.Time) error
	CountPending(ctx context.Context) (int64, error)
}

type outboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository returns a gorm-backed OutboxRepository.
func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Add(ctx context.Context, events []model.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&events).Error
}

func (r *outboxRepository) Pending(ctx context.Context, maxAttempts, limit int) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("delivered_at IS NULL AND attempts < ?", maxAttempts).
		Order("id").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *outboxRepository) MarkDelivered(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Update("delivered_at", at).Error
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uint, attempts int, lastErr string, next time.Time) error {
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":        attempts,
			"last_error":      lastErr,
			"next_attempt_at": next,
		}).Error
}

func (r *outboxRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("delivered_at IS NULL").Count(&count).Error
	return count, err
}
