package repository_test

import (
	"context"
	"testing"
	"time"

	"echosphere/internal/model"
	"echosphere/internal/repository"
	"echosphere/internal/repository/repotest"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitOfWorkRollsBack(t *testing.T) {
	db := repotest.NewDB(t)
	uow := repository.NewUnitOfWork(db)
	repos := repository.NewRepositories(db)
	ctx := context.Background()

	alice := repotest.CreateUser(t, db, "alice")
	boom := errors.New("boom")

	err := uow.Do(ctx, func(r repository.Repositories) error {
		room := &model.ChatRoom{Name: "Trip", IsGroup: true}
		if err := r.ChatRooms.Create(ctx, room, []uint{alice.ID}); err != nil {
			return err
		}
		if err := r.Outbox.Add(ctx, []model.OutboxEvent{{Op: "set", Path: "chatRooms/1"}}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rooms, err := repos.ChatRooms.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, rooms)

	pending, err := repos.Outbox.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestOutboxLifecycle(t *testing.T) {
	db := repotest.NewDB(t)
	repos := repository.NewRepositories(db)
	ctx := context.Background()

	require.NoError(t, repos.Outbox.Add(ctx, []model.OutboxEvent{
		{Op: "set", Path: "messages/1", Payload: []byte(`{}`)},
		{Op: "remove", Path: "messages/2", Payload: []byte(`{}`)},
	}))

	events, err := repos.Outbox.Pending(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "messages/1", events[0].Path)

	now := time.Now()
	require.NoError(t, repos.Outbox.MarkDelivered(ctx, events[0].ID, now))
	require.NoError(t, repos.Outbox.MarkFailed(ctx, events[1].ID, 3, "down", now.Add(time.Second)))

	events, err = repos.Outbox.Pending(ctx, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	count, err := repos.Outbox.CountPending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
