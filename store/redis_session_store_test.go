package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/mother-bot/types"
)

func newTestSessionStore(t *testing.T, timeout time.Duration) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), mr.Addr(), "", 0, "motherbot")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionStore(client, timeout), mr
}

func TestRedisSessionStore_SaveGet(t *testing.T) {
	s, mr := newTestSessionStore(t, 30*time.Minute)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	session := &types.Session{
		Key:            types.SessionKey{UserID: 42, Role: types.RoleUser},
		ChatID:         42,
		State:          types.StateAwaitingBotToken,
		Collected:      types.Collected{SelectedPlan: "free", ShopName: "Tea House"},
		CreatedAt:      now,
		LastActivityAt: now,
	}
	require.NoError(t, s.SaveSession(ctx, session))

	assert.True(t, mr.Exists("motherbot:session:user:42"))
	assert.Equal(t, time.Hour, mr.TTL("motherbot:session:user:42"))

	got, err := s.GetSession(ctx, session.Key)
	require.NoError(t, err)
	assert.Equal(t, types.StateAwaitingBotToken, got.State)
	assert.Equal(t, "Tea House", got.Collected.ShopName)
	assert.True(t, got.LastActivityAt.Equal(now))
}

func TestRedisSessionStore_MissingIsNotFound(t *testing.T) {
	s, _ := newTestSessionStore(t, time.Minute)

	_, err := s.GetSession(context.Background(), types.SessionKey{UserID: 7, Role: types.RoleUser})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestRedisSessionStore_TTLExpiry(t *testing.T) {
	s, mr := newTestSessionStore(t, time.Minute)
	ctx := context.Background()
	key := types.SessionKey{UserID: 1, Role: types.RoleUser}

	require.NoError(t, s.SaveSession(ctx, &types.Session{Key: key, State: types.StateAwaitingShopName}))

	mr.FastForward(time.Minute + time.Second)
	listed, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 1, "a session just past its timeout is still visible to the sweep")

	mr.FastForward(time.Minute)
	_, err = s.GetSession(ctx, key)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestRedisSessionStore_RolesAreSeparate(t *testing.T) {
	s, _ := newTestSessionStore(t, time.Minute)
	ctx := context.Background()

	user := types.SessionKey{UserID: 5, Role: types.RoleUser}
	admin := types.SessionKey{UserID: 5, Role: types.RoleAdmin}
	require.NoError(t, s.SaveSession(ctx, &types.Session{Key: user, State: types.StateAwaitingPhone}))
	require.NoError(t, s.SaveSession(ctx, &types.Session{Key: admin, State: types.StateAwaitingBroadcastText}))

	require.NoError(t, s.DeleteSession(ctx, user))

	_, err := s.GetSession(ctx, user)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	got, err := s.GetSession(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, types.StateAwaitingBroadcastText, got.State)

	all, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, admin, all[0].Key)
}
