package service

import (
	"context"
	"testing"

	"echosphere/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriendRequestAcceptOpensDirectRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	require.NoError(t, f.friends.SendRequest(ctx, alice.ID, bob.ID))
	requireKind(t, f.friends.SendRequest(ctx, bob.ID, alice.ID), ErrConflict)

	pending, err := f.friends.PendingRequests(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "alice", pending[0].SenderName)

	_, err = f.friends.Accept(ctx, alice.ID, pending[0].ID)
	requireKind(t, err, ErrForbidden)

	room, err := f.friends.Accept(ctx, bob.ID, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "alice, bob", room.Name)
	assert.False(t, room.IsGroup)
	assert.Equal(t, []uint{alice.ID, bob.ID}, room.Participants)

	doc, ok := f.mirrorRoom(t, room.ID)
	require.True(t, ok)
	assert.False(t, doc.IsGroup)

	friends, err := f.friends.Friends(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.UserSummary{{ID: bob.ID, Name: "bob"}}, friends)

	friends, err = f.friends.Friends(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.UserSummary{{ID: alice.ID, Name: "alice"}}, friends)

	_, err = f.friends.Friends(ctx, 999)
	requireKind(t, err, ErrNotFound)

	_, err = f.friends.Accept(ctx, bob.ID, pending[0].ID)
	requireKind(t, err, ErrConflict)
	requireKind(t, f.friends.SendRequest(ctx, alice.ID, bob.ID), ErrConflict)
}

func TestFriendRequestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	requireKind(t, f.friends.SendRequest(ctx, alice.ID, alice.ID), ErrValidation)
	requireKind(t, f.friends.SendRequest(ctx, alice.ID, 999), ErrNotFound)
	require.NoError(t, f.friends.SendRequest(ctx, alice.ID, bob.ID))

	pending, err := f.friends.PendingRequests(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, f.friends.Reject(ctx, bob.ID, pending[0].ID))

	pending, err = f.friends.PendingRequests(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	rooms, err := f.rooms.List(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, rooms)

	requireKind(t, f.friends.Reject(ctx, bob.ID, 999), ErrNotFound)
}
