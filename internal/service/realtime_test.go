package service

import (
	"context"
	"encoding/json"
	"testing"

	"echosphere/internal/mirror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeSubscriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, mallory := f.user(t, "alice"), f.user(t, "mallory")
	room := f.room(t, alice, "Trip")
	roomKey := uintString(room.ID)

	q, err := f.realtime.Authorize(ctx, mallory.ID, mirror.Query{Path: "chatRooms", MemberField: "name", Member: "x"})
	require.NoError(t, err)
	assert.Equal(t, "participants", q.MemberField)
	assert.Equal(t, uintString(mallory.ID), q.Member)

	doc, ok := f.mirrorRoom(t, room.ID)
	require.True(t, ok)
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.False(t, q.Matches(raw), "rooms of others stay hidden")
	own, err := f.realtime.Authorize(ctx, alice.ID, mirror.Query{Path: "chatRooms"})
	require.NoError(t, err)
	assert.True(t, own.Matches(raw))

	q, err = f.realtime.Authorize(ctx, alice.ID, mirror.Query{Path: "messages", OrderBy: "chatRoomId", EqualTo: roomKey})
	require.NoError(t, err)
	assert.False(t, q.Scoped())

	_, err = f.realtime.Authorize(ctx, mallory.ID, mirror.Query{Path: "messages", OrderBy: "chatRoomId", EqualTo: roomKey})
	requireKind(t, err, ErrForbidden)
	_, err = f.realtime.Authorize(ctx, alice.ID, mirror.Query{Path: "messages"})
	requireKind(t, err, ErrValidation)
	_, err = f.realtime.Authorize(ctx, alice.ID, mirror.Query{Path: "messages", OrderBy: "chatRoomId", EqualTo: "abc"})
	requireKind(t, err, ErrValidation)
	_, err = f.realtime.Authorize(ctx, alice.ID, mirror.Query{Path: "posts"})
	requireKind(t, err, ErrValidation)
}

func TestValueReadsUsersOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.users.Signup(ctx, "Alice", "alice@example.com", "pw")
	require.NoError(t, err)

	raw, err := f.realtime.Value(ctx, "users/1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Alice")

	_, err = f.realtime.Value(ctx, "users/2")
	requireKind(t, err, ErrNotFound)
	_, err = f.realtime.Value(ctx, "messages/1")
	requireKind(t, err, ErrForbidden)
	_, err = f.realtime.Value(ctx, "users")
	requireKind(t, err, ErrValidation)
}

func TestPresence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, mallory := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "mallory")
	room := f.room(t, alice, "Trip", bob)

	f.realtime.Join(ctx, room.ID, alice.ID)
	f.realtime.Join(ctx, room.ID, bob.ID)
	f.realtime.Leave(ctx, room.ID, bob.ID)

	online, err := f.realtime.Online(ctx, alice.ID, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{alice.ID}, online)

	_, err = f.realtime.Online(ctx, mallory.ID, room.ID)
	requireKind(t, err, ErrForbidden)
}
