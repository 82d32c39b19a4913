package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BatmanBruc/mother-bot/types"
)

// RedisSessionStore keeps one JSON session per (role, user) key. Every write refreshes
// the key TTL. The TTL is twice the session timeout: the sweep must still find a stale
// session to notify its actor, and the TTL only catches sessions it never reached.
type RedisSessionStore struct {
	client *RedisClient
	ttl    time.Duration
}

func NewRedisSessionStore(redisClient *RedisClient, sessionTimeout time.Duration) *RedisSessionStore {
	if sessionTimeout <= 0 {
		sessionTimeout = 30 * time.Minute
	}

	return &RedisSessionStore{
		client: redisClient,
		ttl:    2 * sessionTimeout,
	}
}

func (s *RedisSessionStore) key(k types.SessionKey) string {
	return s.client.generateKey("session", string(k.Role), strconv.FormatInt(k.UserID, 10))
}

func (s *RedisSessionStore) GetSession(ctx context.Context, key types.SessionKey) (*types.Session, error) {
	var session types.Session
	if err := s.client.Get(ctx, s.key(key), &session); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.NotFound("session", key.String())
		}
		return nil, err
	}
	return &session, nil
}

func (s *RedisSessionStore) SaveSession(ctx context.Context, session *types.Session) error {
	if session == nil {
		return fmt.Errorf("nil session")
	}
	return s.client.Set(ctx, s.key(session.Key), session, s.ttl)
}

func (s *RedisSessionStore) DeleteSession(ctx context.Context, key types.SessionKey) error {
	return s.client.Del(ctx, s.key(key))
}

func (s *RedisSessionStore) ListSessions(ctx context.Context) ([]*types.Session, error) {
	keys, err := s.client.ScanKeys(ctx, s.client.generateKey("session", "*"))
	if err != nil {
		return nil, err
	}

	sessions := make([]*types.Session, 0, len(keys))
	for _, key := range keys {
		var session types.Session
		if err := s.client.Get(ctx, key, &session); err != nil {
			// expired between SCAN and GET
			continue
		}
		sessions = append(sessions, &session)
	}
	return sessions, nil
}
