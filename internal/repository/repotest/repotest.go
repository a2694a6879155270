// Package repotest opens throwaway stores for tests: an in-memory SQLite
// database with the production schema and a miniredis-backed client.
package repotest

import (
	"testing"

	"echosphere/internal/model"
	"echosphere/internal/pkg/auth"
	"echosphere/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := repository.Open(sqlite.Open(dsn), "error")
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.Migrate(db))
	return db
}

func NewRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

// CreateUser inserts a user with a hashed "password" password.
func CreateUser(t *testing.T, db *gorm.DB, name string) *model.User {
	t.Helper()

	hash, err := auth.HashPassword("password")
	require.NoError(t, err)

	user := &model.User{Name: name, Email: name + "@echosphere.test", Password: hash}
	require.NoError(t, db.Create(user).Error)
	return user
}
