package replication

import (
	"context"
	"testing"
	"time"

	"echosphere/internal/config"
	"echosphere/internal/mirror"
	"echosphere/internal/mirror/mirrortest"
	"echosphere/internal/model"
	"echosphere/internal/repository"
	"echosphere/internal/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repos repository.Repositories
	uow   repository.UnitOfWork
	tree  *mirrortest.Flaky
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := repotest.NewDB(t)
	rdb, _ := repotest.NewRedis(t)
	return &fixture{
		repos: repository.NewRepositories(db),
		uow:   repository.NewUnitOfWork(db),
		tree:  mirrortest.NewFlaky(mirror.NewRedisTree(rdb, "test")),
	}
}

func (f *fixture) exists(t *testing.T, path string) bool {
	t.Helper()
	_, ok, err := f.tree.Get(context.Background(), path)
	require.NoError(t, err)
	return ok
}

func TestNewSelectsMode(t *testing.T) {
	f := newFixture(t)

	r, err := New(config.SyncModeDirect, f.tree)
	require.NoError(t, err)
	assert.IsType(t, &Direct{}, r)

	r, err = New(config.SyncModeOutbox, f.tree)
	require.NoError(t, err)
	assert.IsType(t, &Outbox{}, r)

	_, err = New("eventual", f.tree)
	assert.Error(t, err)
}

func TestDirectDeliversImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := NewDirect(f.tree)
	ops := []mirror.Op{mirror.SetOp("messages/1", model.MirrorMessage{ID: 1, Content: "hi"})}

	require.NoError(t, f.uow.Do(ctx, func(repos repository.Repositories) error {
		return r.Stage(ctx, repos.Outbox, ops)
	}))
	pending, err := f.repos.Outbox.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	require.NoError(t, r.Deliver(ctx, ops))
	assert.True(t, f.exists(t, "messages/1"))

	f.tree.Down.Store(true)
	assert.ErrorIs(t, r.Deliver(ctx, ops), mirrortest.ErrUnavailable)
}

func TestOutboxStagesThenRelayDelivers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := NewOutbox()

	ops := []mirror.Op{
		mirror.SetOp("chatRooms/1", model.MirrorChatRoom{ID: 1, Name: "Trip", Participants: []uint{1, 2}, IsGroup: true}),
		mirror.UnionOp("chatRooms/1", "participants", []uint{3}),
	}
	require.NoError(t, f.uow.Do(ctx, func(repos repository.Repositories) error {
		return r.Stage(ctx, repos.Outbox, ops)
	}))
	require.NoError(t, r.Deliver(ctx, ops))
	assert.False(t, f.exists(t, "chatRooms/1"))

	relay := NewRelay(f.repos.Outbox, f.tree, RelayConfig{Rate: 1000})
	delivered, err := relay.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	raw, ok, err := f.tree.Get(ctx, "chatRooms/1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":1,"name":"Trip","participants":[1,2,3],"isGroup":true}`, string(raw))

	pending, err := f.repos.Outbox.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestRelayBacksOffAndKeepsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	events, err := Events([]mirror.Op{
		mirror.SetOp("messages/1", model.MirrorMessage{ID: 1, Content: "hi"}),
		mirror.RemoveOp("messages/1"),
	})
	require.NoError(t, err)
	require.NoError(t, f.repos.Outbox.Add(ctx, events))

	now := time.Now()
	relay := NewRelay(f.repos.Outbox, f.tree, RelayConfig{
		Rate:           1000,
		MaxAttempts:    5,
		BaseRetryDelay: time.Minute,
	})
	relay.now = func() time.Time { return now }

	f.tree.Down.Store(true)
	delivered, err := relay.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.EqualValues(t, 1, f.tree.Writes.Load(), "rows behind a failure wait")

	pending, err := f.repos.Outbox.Pending(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, mirrortest.ErrUnavailable.Error(), pending[0].LastError)
	assert.WithinDuration(t, now.Add(time.Minute), pending[0].NextAttemptAt, time.Second)

	f.tree.Down.Store(false)
	delivered, err = relay.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, delivered, "backoff not yet expired")

	now = now.Add(2 * time.Minute)
	delivered, err = relay.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	assert.False(t, f.exists(t, "messages/1"))
}

func TestRelayGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	events, err := Events([]mirror.Op{
		mirror.SetOp("messages/1", model.MirrorMessage{ID: 1}),
		mirror.SetOp("messages/2", model.MirrorMessage{ID: 2}),
	})
	require.NoError(t, err)
	require.NoError(t, f.repos.Outbox.Add(ctx, events))

	relay := NewRelay(f.repos.Outbox, f.tree, RelayConfig{Rate: 1000, MaxAttempts: 1})

	f.tree.Down.Store(true)
	_, err = relay.Tick(ctx)
	require.NoError(t, err)

	pending, err := f.repos.Outbox.Pending(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	count, err := f.repos.Outbox.CountPending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count, "dead rows stay for inspection")
}

func TestRetryDelayIsCapped(t *testing.T) {
	relay := NewRelay(nil, nil, RelayConfig{BaseRetryDelay: time.Second, MaxRetryDelay: 10 * time.Second})

	assert.Equal(t, time.Second, relay.retryDelay(1))
	assert.Equal(t, 4*time.Second, relay.retryDelay(3))
	assert.Equal(t, 10*time.Second, relay.retryDelay(20))
}

func TestRunStopsWithContext(t *testing.T) {
	f := newFixture(t)
	relay := NewRelay(f.repos.Outbox, f.tree, RelayConfig{PollInterval: 10 * time.Millisecond, Rate: 1000})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}
