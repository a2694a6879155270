package repository

import (
	"time"

	"echosphere/internal/model"
	"echosphere/internal/pkg/logging"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB connects to PostgreSQL. gorm logs through jww at the level matching
// logLevel.
func NewDB(dsn, logLevel string) (*gorm.DB, error) {
	db, err := Open(postgres.Open(dsn), logLevel)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sql.DB")
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Open opens any gorm dialector with the shared logger setup and registers
// the custom participant join table.
func Open(dialector gorm.Dialector, logLevel string) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(jww.INFO, logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logging.GormLevel(logLevel),
		}),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if err := db.SetupJoinTable(&model.ChatRoom{}, "Participants", &model.ChatRoomParticipant{}); err != nil {
		return nil, errors.Wrap(err, "failed to set up chatroom join table")
	}
	if err := db.SetupJoinTable(&model.User{}, "ChatRooms", &model.ChatRoomParticipant{}); err != nil {
		return nil, errors.Wrap(err, "failed to set up user join table")
	}

	return db, nil
}

// Migrate creates or updates the schema for every model.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.User{},
		&model.ChatRoom{},
		&model.ChatRoomParticipant{},
		&model.Message{},
		&model.FriendRequest{},
		&model.Friend{},
		&model.OutboxEvent{},
		&model.Post{},
		&model.PostLike{},
		&model.Comment{},
	)
	return errors.Wrap(err, "failed to migrate schema")
}
