// README: Broadcast card tracking: which channel message shows which pending order.
package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"caravan/internal/types"
)

const (
	cardKeyPrefix = "dispatch:order:%s:card"
	// Cards of orders nobody took expire on their own.
	cardTTL = 7 * 24 * time.Hour
)

// Card is a posted broadcast message.
type Card struct {
	Ref      types.MessageRef
	PostedAt time.Time
}

type CardStore interface {
	Record(ctx context.Context, orderID types.ID, ref types.MessageRef) error
	// Take returns the card and forgets it. ok is false when none was recorded.
	Take(ctx context.Context, orderID types.ID) (Card, bool, error)
}

type RedisCardStore struct {
	redis *redis.Client
}

func NewRedisCardStore(client *redis.Client) *RedisCardStore {
	return &RedisCardStore{redis: client}
}

func (s *RedisCardStore) Record(ctx context.Context, orderID types.ID, ref types.MessageRef) error {
	key := cardKey(orderID)
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, key,
		"chat", strconv.FormatInt(int64(ref.ChatID), 10),
		"message", strconv.Itoa(ref.MessageID),
		"posted_at", time.Now().UTC().Format(time.RFC3339),
	)
	pipe.Expire(ctx, key, cardTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisCardStore) Take(ctx context.Context, orderID types.ID) (Card, bool, error) {
	key := cardKey(orderID)
	pipe := s.redis.TxPipeline()
	get := pipe.HGetAll(ctx, key)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Card{}, false, err
	}
	vals := get.Val()
	if len(vals) == 0 {
		return Card{}, false, nil
	}
	c, err := parseCard(vals)
	if err != nil {
		return Card{}, false, fmt.Errorf("card %s: %w", orderID, err)
	}
	return c, true, nil
}

func parseCard(vals map[string]string) (Card, error) {
	chat, err := strconv.ParseInt(vals["chat"], 10, 64)
	if err != nil {
		return Card{}, err
	}
	msg, err := strconv.Atoi(vals["message"])
	if err != nil {
		return Card{}, err
	}
	c := Card{Ref: types.MessageRef{ChatID: types.ChatID(chat), MessageID: msg}}
	if at, err := time.Parse(time.RFC3339, vals["posted_at"]); err == nil {
		c.PostedAt = at
	}
	return c, nil
}

func cardKey(orderID types.ID) string {
	return fmt.Sprintf(cardKeyPrefix, string(orderID))
}

type MemoryCardStore struct {
	mu    sync.Mutex
	cards map[types.ID]Card
}

func NewMemoryCardStore() *MemoryCardStore {
	return &MemoryCardStore{cards: map[types.ID]Card{}}
}

func (m *MemoryCardStore) Record(_ context.Context, orderID types.ID, ref types.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[orderID] = Card{Ref: ref, PostedAt: time.Now().UTC()}
	return nil
}

func (m *MemoryCardStore) Take(_ context.Context, orderID types.ID) (Card, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[orderID]
	delete(m.cards, orderID)
	return c, ok, nil
}
