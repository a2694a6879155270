package service

import (
	"context"
	"encoding/json"
	"testing"

	"echosphere/internal/mirror"
	"echosphere/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignupAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.users.Signup(ctx, "Alice", "Alice@Example.com", "s3cret")
	require.NoError(t, err)
	assert.Empty(t, user.Password)
	assert.Equal(t, "alice@example.com", user.Email)

	raw, ok, err := f.tree.Get(ctx, mirror.Path(model.MirrorUsers, user.ID))
	require.NoError(t, err)
	require.True(t, ok)
	var doc model.MirrorUser
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "Alice", doc.Name)

	_, err = f.users.Signup(ctx, "Other", "alice@example.com", "x")
	requireKind(t, err, ErrValidation)

	token, logged, err := f.users.Login(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)

	claims, err := f.tokens.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	_, _, err = f.users.Login(ctx, "alice@example.com", "wrong")
	requireKind(t, err, ErrUnauthorized)
	_, _, err = f.users.Login(ctx, "nobody@example.com", "s3cret")
	requireKind(t, err, ErrUnauthorized)
}

func TestSignupToleratesMirrorOutage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tree.Down.Store(true)
	user, err := f.users.Signup(ctx, "Alice", "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)

	_, err = f.users.Signup(ctx, "", "bob@example.com", "x")
	requireKind(t, err, ErrValidation)
}

func TestUpdateProfileRemirrorsName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")

	user, err := f.users.UpdateProfile(ctx, alice.ID, "Alicia", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", user.Name)
	assert.Equal(t, "hello", user.Bio)

	raw, ok, err := f.tree.Get(ctx, mirror.Path(model.MirrorUsers, alice.ID))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(raw), "Alicia")

	_, err = f.users.UpdateProfile(ctx, 999, "Ghost", "")
	requireKind(t, err, ErrNotFound)
}

func TestGetAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	f.user(t, "bob")

	user, err := f.users.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, user.Password)

	_, err = f.users.GetUser(ctx, 999)
	requireKind(t, err, ErrNotFound)

	found, err := f.users.Search(ctx, "AL")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, alice.ID, found[0].ID)

	_, err = f.users.Search(ctx, " ")
	requireKind(t, err, ErrValidation)
}
