package service

import (
	"context"
	"testing"
	"time"

	"echosphere/internal/mirror"
	"echosphere/internal/replication"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendWritesBothStores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice, "Trip", bob)

	view, err := f.messages.Send(ctx, alice.ID, room.ID, "hi")
	require.NoError(t, err)
	assert.Equal(t, "alice", view.Sender)
	assert.Equal(t, "hi", view.Message)

	stored, err := f.repos.Messages.FindByID(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", stored.Content)

	doc, ok := f.mirrorMessage(t, view.ID)
	require.True(t, ok)
	assert.Equal(t, view.ID, doc.ID)
	assert.Equal(t, "hi", doc.Content)
	assert.Equal(t, alice.ID, doc.SenderID)
	assert.Equal(t, room.ID, doc.ChatRoomID)
	assert.False(t, doc.Read)
}

func TestSendChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, mallory := f.user(t, "alice"), f.user(t, "mallory")
	room := f.room(t, alice, "Trip")

	_, err := f.messages.Send(ctx, alice.ID, room.ID, "  ")
	requireKind(t, err, ErrValidation)

	_, err = f.messages.Send(ctx, alice.ID, room.ID+100, "hi")
	requireKind(t, err, ErrNotFound)

	_, err = f.messages.Send(ctx, mallory.ID, room.ID, "hi")
	requireKind(t, err, ErrForbidden)

	msgs, err := f.repos.Messages.ListByRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSendMirrorFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	room := f.room(t, alice, "Trip")

	f.tree.Down.Store(true)
	_, err := f.messages.Send(ctx, alice.ID, room.ID, "hi")
	requireKind(t, err, ErrMirror)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, msgInternal, se.Msg)

	msgs, err := f.repos.Messages.ListByRoom(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	f.tree.Down.Store(false)
	children, err := f.tree.Children(ctx, "messages")
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestFetchConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, mallory := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "mallory")
	room := f.room(t, alice, "Trip", bob)

	_, err := f.messages.Send(ctx, alice.ID, room.ID, "one")
	require.NoError(t, err)
	_, err = f.messages.Send(ctx, bob.ID, room.ID, "two")
	require.NoError(t, err)

	conv, err := f.messages.Fetch(ctx, bob.ID, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "Trip", conv.ChatRoomName)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "one", conv.Messages[0].Message)
	assert.Equal(t, "alice", conv.Messages[0].Sender)
	assert.Equal(t, bob.ID, conv.Messages[1].SenderID)

	_, err = f.messages.Fetch(ctx, mallory.ID, room.ID)
	requireKind(t, err, ErrForbidden)
	_, err = f.messages.Fetch(ctx, alice.ID, room.ID+100)
	requireKind(t, err, ErrNotFound)
}

func TestEditBySender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	room := f.room(t, alice, "Trip")
	sent, err := f.messages.Send(ctx, alice.ID, room.ID, "typo")
	require.NoError(t, err)

	updated, err := f.messages.Edit(ctx, alice.ID, room.ID, sent.ID, "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", updated.Content)

	doc, ok := f.mirrorMessage(t, sent.ID)
	require.True(t, ok)
	assert.Equal(t, "fixed", doc.Content)
	assert.Equal(t, room.ID, doc.ChatRoomID)
}

func TestEditAndDeleteByOtherUserChangeNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice, "Trip", bob)
	sent, err := f.messages.Send(ctx, alice.ID, room.ID, "mine")
	require.NoError(t, err)
	writes := f.tree.Writes.Load()

	_, err = f.messages.Edit(ctx, bob.ID, room.ID, sent.ID, "yours")
	requireKind(t, err, ErrForbidden)
	requireKind(t, f.messages.Delete(ctx, bob.ID, room.ID, sent.ID), ErrForbidden)

	stored, err := f.repos.Messages.FindByID(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", stored.Content)

	doc, ok := f.mirrorMessage(t, sent.ID)
	require.True(t, ok)
	assert.Equal(t, "mine", doc.Content)
	assert.Equal(t, writes, f.tree.Writes.Load())
}

func TestEditChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	room := f.room(t, alice, "Trip")
	other := f.room(t, alice, "Other")
	sent, err := f.messages.Send(ctx, alice.ID, room.ID, "hi")
	require.NoError(t, err)

	_, err = f.messages.Edit(ctx, alice.ID, room.ID, 0, "x")
	requireKind(t, err, ErrValidation)
	_, err = f.messages.Edit(ctx, alice.ID, room.ID, sent.ID, "")
	requireKind(t, err, ErrValidation)
	_, err = f.messages.Edit(ctx, alice.ID, other.ID, sent.ID, "x")
	requireKind(t, err, ErrNotFound)
	_, err = f.messages.Edit(ctx, alice.ID, room.ID, sent.ID+100, "x")
	requireKind(t, err, ErrNotFound)
}

func TestEditMirrorFailureIsDistinct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	room := f.room(t, alice, "Trip")
	sent, err := f.messages.Send(ctx, alice.ID, room.ID, "before")
	require.NoError(t, err)

	f.tree.Down.Store(true)
	_, err = f.messages.Edit(ctx, alice.ID, room.ID, sent.ID, "after")
	requireKind(t, err, ErrMirror)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "failed to update message in realtime store", se.Msg)

	stored, err := f.repos.Messages.FindByID(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", stored.Content)

	f.tree.Down.Store(false)
	doc, _ := f.mirrorMessage(t, sent.ID)
	assert.Equal(t, "before", doc.Content)
}

func TestDeleteMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	room := f.room(t, alice, "Trip")
	sent, err := f.messages.Send(ctx, alice.ID, room.ID, "bye")
	require.NoError(t, err)

	requireKind(t, f.messages.Delete(ctx, alice.ID, room.ID, 0), ErrValidation)
	require.NoError(t, f.messages.Delete(ctx, alice.ID, room.ID, sent.ID))

	_, ok := f.mirrorMessage(t, sent.ID)
	assert.False(t, ok)
	requireKind(t, f.messages.Delete(ctx, alice.ID, room.ID, sent.ID), ErrNotFound)
}

func TestOutboxModeDefersMirrorWrites(t *testing.T) {
	f := newFixtureWith(t, func(mirror.Tree) replication.Replicator { return replication.NewOutbox() })
	ctx := context.Background()
	alice := f.user(t, "alice")
	room := f.room(t, alice, "Trip")

	sent, err := f.messages.Send(ctx, alice.ID, room.ID, "hi")
	require.NoError(t, err)
	_, ok := f.mirrorMessage(t, sent.ID)
	assert.False(t, ok)

	relay := replication.NewRelay(f.repos.Outbox, f.tree, replication.RelayConfig{Rate: 1000, PollInterval: time.Millisecond})
	delivered, err := relay.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	_, ok = f.mirrorRoom(t, room.ID)
	assert.True(t, ok)
	doc, ok := f.mirrorMessage(t, sent.ID)
	require.True(t, ok)
	assert.Equal(t, "hi", doc.Content)
}

func TestOutboxModeSurvivesMirrorOutage(t *testing.T) {
	f := newFixtureWith(t, func(mirror.Tree) replication.Replicator { return replication.NewOutbox() })
	ctx := context.Background()
	alice := f.user(t, "alice")

	f.tree.Down.Store(true)
	room, err := f.rooms.Create(ctx, alice.ID, "Trip", []uint{alice.ID})
	require.NoError(t, err)

	pending, err := f.repos.Outbox.CountPending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	f.tree.Down.Store(false)
	relay := replication.NewRelay(f.repos.Outbox, f.tree, replication.RelayConfig{Rate: 1000})
	_, err = relay.Tick(ctx)
	require.NoError(t, err)

	_, ok := f.mirrorRoom(t, room.ID)
	assert.True(t, ok)
}
