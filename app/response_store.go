package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/chenyahui/gin-cache/persist"
	"github.com/redis/go-redis/v9"
)

// redisStore backs the short-lived response cache with redis.
type redisStore struct {
	client *redis.Client
}

func newRedisStore(addr string) (*redisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &redisStore{client: client}, nil
}

func (s *redisStore) Get(key string, value any) error {
	b, err := s.client.Get(context.Background(), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return persist.ErrCacheMiss
		}
		return err
	}

	return json.Unmarshal(b, value)
}

func (s *redisStore) Set(key string, value any, expire time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return s.client.Set(context.Background(), key, b, expire).Err()
}

func (s *redisStore) Delete(key string) error {
	return s.client.Del(context.Background(), key).Err()
}
