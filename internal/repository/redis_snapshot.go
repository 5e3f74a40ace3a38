package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/luxclinic/sessiond/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	snapshotProfileKey      = "session:snapshot:profile"
	snapshotOrganizationKey = "session:snapshot:organization"
)

// RedisSnapshotCache implements domain.SnapshotCache using Redis. The
// snapshot has no TTL; it is only ever replaced or cleared by the
// session manager.
type RedisSnapshotCache struct {
	client *redis.Client
}

// NewRedisSnapshotCache creates a new Redis snapshot cache
func NewRedisSnapshotCache(client *redis.Client) *RedisSnapshotCache {
	return &RedisSnapshotCache{
		client: client,
	}
}

// Profile returns the cached profile, or nil on a miss.
func (r *RedisSnapshotCache) Profile(ctx context.Context) (*domain.Profile, error) {
	var profile domain.Profile
	found, err := r.get(ctx, snapshotProfileKey, &profile)
	if err != nil || !found {
		return nil, err
	}
	return &profile, nil
}

// Organization returns the cached organization, or nil on a miss.
func (r *RedisSnapshotCache) Organization(ctx context.Context) (*domain.Organization, error) {
	var org domain.Organization
	found, err := r.get(ctx, snapshotOrganizationKey, &org)
	if err != nil || !found {
		return nil, err
	}
	return &org, nil
}

func (r *RedisSnapshotCache) SetProfile(ctx context.Context, profile *domain.Profile) error {
	return r.set(ctx, snapshotProfileKey, profile)
}

func (r *RedisSnapshotCache) SetOrganization(ctx context.Context, org *domain.Organization) error {
	return r.set(ctx, snapshotOrganizationKey, org)
}

func (r *RedisSnapshotCache) RemoveOrganization(ctx context.Context) error {
	return r.client.Del(ctx, snapshotOrganizationKey).Err()
}

// Clear drops both snapshot slots.
func (r *RedisSnapshotCache) Clear(ctx context.Context) error {
	return r.client.Del(ctx, snapshotProfileKey, snapshotOrganizationKey).Err()
}

func (r *RedisSnapshotCache) get(ctx context.Context, key string, dest interface{}) (bool, error) {
	tracer := otel.Tracer("redis")
	ctx, span := tracer.Start(ctx, "redis.Get",
		trace.WithAttributes(attribute.String("cache.key", key)),
	)
	defer span.End()

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			span.SetAttributes(attribute.String("cache.result", "miss"))
			return false, nil
		}
		span.RecordError(err)
		return false, fmt.Errorf("redis get error: %w", err)
	}

	span.SetAttributes(attribute.String("cache.result", "hit"))
	if err := json.Unmarshal(data, dest); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("unmarshal error: %w", err)
	}
	return true, nil
}

func (r *RedisSnapshotCache) set(ctx context.Context, key string, value interface{}) error {
	tracer := otel.Tracer("redis")
	ctx, span := tracer.Start(ctx, "redis.Set",
		trace.WithAttributes(attribute.String("cache.key", key)),
	)
	defer span.End()

	data, err := json.Marshal(value)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshal error: %w", err)
	}

	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}
