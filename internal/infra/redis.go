// README: Redis client initialization for sessions and dispatch cards.
package infra

import "github.com/redis/go-redis/v9"

func NewRedis(addr string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, DB: db})
}
