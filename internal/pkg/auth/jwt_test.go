package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager("test-key", time.Hour)

	token, err := m.GenerateToken(42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
}

func TestTokenManager_RejectsForeignKey(t *testing.T) {
	token, err := NewTokenManager("key-a", time.Hour).GenerateToken(1)
	require.NoError(t, err)

	_, err = NewTokenManager("key-b", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	m := NewTokenManager("test-key", time.Nanosecond)
	token, err := m.GenerateToken(1)
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	_, err = m.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	m := NewTokenManager("test-key", time.Hour)
	token, err := m.GenerateToken(7)
	require.NoError(t, err)

	t.Run("authorization header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/chatrooms", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		id, err := m.Authenticate(r)
		require.NoError(t, err)
		assert.Equal(t, uint(7), id)
	})

	t.Run("query parameter", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/realtime/subscribe?token="+token, nil)
		id, err := m.Authenticate(r)
		require.NoError(t, err)
		assert.Equal(t, uint(7), id)
	})

	t.Run("missing", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/chatrooms", nil)
		_, err := m.Authenticate(r)
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/chatrooms", nil)
		r.Header.Set("Authorization", "Basic abc")
		_, err := m.Authenticate(r)
		assert.ErrorIs(t, err, ErrMissingToken)
	})
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("hunter2", hash))
	assert.False(t, CheckPasswordHash("hunter3", hash))
}
