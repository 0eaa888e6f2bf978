package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"caravan/internal/codec"
	"caravan/internal/types"
)

const sessionKeyPrefix = "conversation:session:%d"

// SessionStore keeps at most one session per user. Entries expire after the TTL.
type SessionStore interface {
	Load(ctx context.Context, id types.UserID) (SessionState, bool, error)
	Save(ctx context.Context, id types.UserID, s SessionState) error
	Delete(ctx context.Context, id types.UserID) error
}

type RedisSessionStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{redis: client, ttl: ttl}
}

func (s *RedisSessionStore) Load(ctx context.Context, id types.UserID) (SessionState, bool, error) {
	data, err := s.redis.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return SessionState{}, false, nil
	}
	if err != nil {
		return SessionState{}, false, err
	}
	var st SessionState
	if err := codec.Unmarshal(data, &st); err != nil {
		return SessionState{}, false, fmt.Errorf("decode session %d: %w", id, err)
	}
	if st.Draft == nil {
		st.Draft = Draft{}
	}
	return st, true, nil
}

// Save writes the session and restarts its TTL.
func (s *RedisSessionStore) Save(ctx context.Context, id types.UserID, st SessionState) error {
	data, err := codec.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", id, err)
	}
	return s.redis.Set(ctx, sessionKey(id), data, s.ttl).Err()
}

func (s *RedisSessionStore) Delete(ctx context.Context, id types.UserID) error {
	return s.redis.Del(ctx, sessionKey(id)).Err()
}

func sessionKey(id types.UserID) string {
	return fmt.Sprintf(sessionKeyPrefix, int64(id))
}

type memorySession struct {
	state   SessionState
	expires time.Time
}

type MemorySessionStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[types.UserID]memorySession
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{ttl: ttl, now: time.Now, sessions: map[types.UserID]memorySession{}}
}

func (m *MemorySessionStore) Load(_ context.Context, id types.UserID) (SessionState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return SessionState{}, false, nil
	}
	if m.ttl > 0 && m.now().After(s.expires) {
		delete(m.sessions, id)
		return SessionState{}, false, nil
	}
	return s.state.clone(), true, nil
}

func (m *MemorySessionStore) Save(_ context.Context, id types.UserID, st SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = memorySession{state: st.clone(), expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id types.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}
