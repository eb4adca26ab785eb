package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ambrosia-fish/armatillo-api/internal/pkce"
	"github.com/ambrosia-fish/armatillo-api/internal/repository"
)

// RedisSessionStore implements SessionStore backed by Redis. Expiry is
// enforced twice: by the key TTL and by the created_at embedded in the
// payload, so a Redis instance with persistence lag cannot resurrect a
// stale challenge.
type RedisSessionStore struct {
	client redis.UniversalClient
}

var _ repository.SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore constructs a Redis-backed session store.
func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func stateKey(sessionID string) string {
	return "session:" + sessionID + ":oauth_state"
}

func pkceKey(sessionID string) string {
	return "session:" + sessionID + ":pkce"
}

type statePayload struct {
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveState stores the CSRF state for the session with TTL.
func (s *RedisSessionStore) SaveState(ctx context.Context, sessionID, state string, ttl time.Duration) error {
	payload, err := json.Marshal(statePayload{State: state, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, stateKey(sessionID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// State returns the stored CSRF state, or "" when none is stored.
func (s *RedisSessionStore) State(ctx context.Context, sessionID string) (string, error) {
	bytes, err := s.client.Get(ctx, stateKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("load state: %w", err)
	}
	var payload statePayload
	if err := json.Unmarshal(bytes, &payload); err != nil {
		return "", fmt.Errorf("decode state: %w", err)
	}
	return payload.State, nil
}

// DeleteState removes the stored CSRF state.
func (s *RedisSessionStore) DeleteState(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, stateKey(sessionID)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// SavePKCE stores the pending code challenge. One outstanding
// challenge per session; a second save replaces the first.
func (s *RedisSessionStore) SavePKCE(ctx context.Context, sessionID string, challenge pkce.Challenge, ttl time.Duration) error {
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}
	if err := s.client.Set(ctx, pkceKey(sessionID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist challenge: %w", err)
	}
	return nil
}

// PKCE loads the pending code challenge, or nil when absent.
func (s *RedisSessionStore) PKCE(ctx context.Context, sessionID string) (*pkce.Challenge, error) {
	bytes, err := s.client.Get(ctx, pkceKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	var challenge pkce.Challenge
	if err := json.Unmarshal(bytes, &challenge); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	return &challenge, nil
}

// DeletePKCE clears the pending code challenge.
func (s *RedisSessionStore) DeletePKCE(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, pkceKey(sessionID)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}
