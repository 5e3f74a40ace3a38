package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const tokenPairKey = "session:tokens"

type tokenPair struct {
	Access  string `json:"access_token"`
	Refresh string `json:"refresh_token"`
}

// RedisTokenStore implements domain.TokenStore. The pair survives
// daemon restarts so a workstation keeps its session across reboots.
type RedisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore creates a new Redis token store
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{
		client: client,
	}
}

func (r *RedisTokenStore) Load(ctx context.Context) (string, string, error) {
	data, err := r.client.Get(ctx, tokenPairKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return "", "", nil
		}
		return "", "", fmt.Errorf("redis get error: %w", err)
	}

	var pair tokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return "", "", fmt.Errorf("unmarshal error: %w", err)
	}
	return pair.Access, pair.Refresh, nil
}

func (r *RedisTokenStore) Save(ctx context.Context, accessToken, refreshToken string) error {
	data, err := json.Marshal(tokenPair{Access: accessToken, Refresh: refreshToken})
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	if err := r.client.Set(ctx, tokenPairKey, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (r *RedisTokenStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, tokenPairKey).Err()
}
