package testdb

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

// Redis connects to CARAVAN_TEST_REDIS and flushes the selected database. Skips when unset.
func Redis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("CARAVAN_TEST_REDIS")
	if addr == "" {
		t.Skip("CARAVAN_TEST_REDIS not set; skipping Redis-backed tests")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return client
}
