package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"connectsprobot/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	OwnerTTL   = 5 * time.Minute
	SessionTTL = 30 * 24 * time.Hour
)

// CacheService fronts Redis for the hot-path owner lookups and for the
// per-user chat state (which owner a front-door user is talking to).
type CacheService interface {
	GetOwner(ctx context.Context, telegramID int64) (*models.Owner, error)
	SetOwner(ctx context.Context, owner *models.Owner, ttl time.Duration) error
	DeleteOwner(ctx context.Context, telegramID int64) error

	SetActiveOwner(ctx context.Context, userID, ownerID int64, ttl time.Duration) error
	GetActiveOwner(ctx context.Context, userID int64) (int64, error)
	ClearActiveOwner(ctx context.Context, userID int64) error

	SetString(ctx context.Context, key, value string, ttl time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error

	Ping(ctx context.Context) error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsedAddr = strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", err, parsedAddr)
	}

	return &redisCacheService{client: client}
}

// NewWithClient wraps an existing client, for tests.
func NewWithClient(client *redis.Client) CacheService {
	return &redisCacheService{client: client}
}

func ownerKey(id int64) string   { return fmt.Sprintf("connectspro:owner:%d", id) }
func sessionKey(id int64) string { return fmt.Sprintf("connectspro:session:%d", id) }

func (r *redisCacheService) GetOwner(ctx context.Context, telegramID int64) (*models.Owner, error) {
	data, err := r.client.Get(ctx, ownerKey(telegramID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var owner models.Owner
	if err := json.Unmarshal(data, &owner); err != nil {
		return nil, err
	}
	return &owner, nil
}

func (r *redisCacheService) SetOwner(ctx context.Context, owner *models.Owner, ttl time.Duration) error {
	data, err := json.Marshal(owner)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, ownerKey(owner.TelegramID), data, ttl).Err()
}

func (r *redisCacheService) DeleteOwner(ctx context.Context, telegramID int64) error {
	return r.client.Del(ctx, ownerKey(telegramID)).Err()
}

func (r *redisCacheService) SetActiveOwner(ctx context.Context, userID, ownerID int64, ttl time.Duration) error {
	return r.client.Set(ctx, sessionKey(userID), strconv.FormatInt(ownerID, 10), ttl).Err()
}

// GetActiveOwner returns 0 when the user has no bound owner.
func (r *redisCacheService) GetActiveOwner(ctx context.Context, userID int64) (int64, error) {
	val, err := r.client.Get(ctx, sessionKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

func (r *redisCacheService) ClearActiveOwner(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, sessionKey(userID)).Err()
}

func (r *redisCacheService) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCacheService) GetString(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (r *redisCacheService) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
