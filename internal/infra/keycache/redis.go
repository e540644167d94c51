package keycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"keygate/internal/domain"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "keygate:"

type Redis struct {
	client *redis.Client
	prefix string
}

type redisRecord struct {
	ClientID    string             `json:"client_id"`
	Identity    string             `json:"unique_id"`
	Fingerprint domain.Fingerprint `json:"fingerprint"`
	PublicKey   string             `json:"public_key"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func NewRedis(addr, password string, db int) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: client, prefix: defaultRedisPrefix}, nil
}

// NewRedisWithClient uses an existing client; prefix namespaces all keys.
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, identity string) (*domain.KeyRecord, bool, error) {
	raw, err := r.client.Get(ctx, r.identityKey(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var cached redisRecord
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false, fmt.Errorf("decode cached record: %w", err)
	}
	return &domain.KeyRecord{
		ClientID:    cached.ClientID,
		Identity:    cached.Identity,
		Fingerprint: cached.Fingerprint,
		PublicKey:   cached.PublicKey,
		CreatedAt:   cached.CreatedAt,
		UpdatedAt:   cached.UpdatedAt,
	}, true, nil
}

func (r *Redis) Put(ctx context.Context, record domain.KeyRecord, ttl time.Duration) error {
	payload, err := json.Marshal(redisRecord{
		ClientID:    record.ClientID,
		Identity:    record.Identity,
		Fingerprint: record.Fingerprint,
		PublicKey:   record.PublicKey,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode cached record: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.identityKey(record.Identity), payload, ttl)
		pipe.Set(ctx, r.clientKey(record.ClientID), record.Identity, ttl)
		return nil
	})
	return err
}

func (r *Redis) Evict(ctx context.Context, clientID, identity string) error {
	keys := []string{r.clientKey(clientID)}
	if identity != "" {
		keys = append(keys, r.identityKey(identity))
	}
	linked, err := r.client.Get(ctx, r.clientKey(clientID)).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return err
	default:
		keys = append(keys, r.identityKey(linked))
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) identityKey(identity string) string {
	return r.prefix + "id:" + identity
}

func (r *Redis) clientKey(clientID string) string {
	return r.prefix + "client:" + clientID
}

var _ Cache = (*Redis)(nil)
