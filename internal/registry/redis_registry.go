package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultKeyPrefix             = "acgs2:registry:agents"
	defaultRedisMaxConnections   = 20
	defaultRedisSocketTimeout    = 5 * time.Second
	defaultConnectTimeout        = 5 * time.Second
)

// RedisRegistry is a distributed Registry backed by a single Redis hash,
// grounded on registry.py's RedisAgentRegistry exactly, including its
// connection-pool defaults (max_connections=20, socket_timeout=5.0,
// socket_connect_timeout=5.0) to avoid resource exhaustion under load.
type RedisRegistry struct {
	client             *redis.Client
	keyPrefix          string
	constitutionalHash string
}

// RedisRegistryOption customizes RedisRegistry construction.
type RedisRegistryOption func(*redisRegistryOptions)

type redisRegistryOptions struct {
	keyPrefix      string
	maxConnections int
	socketTimeout  time.Duration
	connectTimeout time.Duration
}

func WithKeyPrefix(prefix string) RedisRegistryOption {
	return func(o *redisRegistryOptions) { o.keyPrefix = prefix }
}

func WithMaxConnections(n int) RedisRegistryOption {
	return func(o *redisRegistryOptions) { o.maxConnections = n }
}

// NewRedisRegistry dials redisURL with the bounded connection pool the
// teacher's own services are never shown using, but which the original
// Python implementation requires explicitly to avoid resource exhaustion.
func NewRedisRegistry(redisURL, constitutionalHash string, opts ...RedisRegistryOption) (*RedisRegistry, error) {
	options := &redisRegistryOptions{
		keyPrefix:      defaultKeyPrefix,
		maxConnections: defaultRedisMaxConnections,
		socketTimeout:  defaultRedisSocketTimeout,
		connectTimeout: defaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(options)
	}

	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	parsed.PoolSize = options.maxConnections
	parsed.ReadTimeout = options.socketTimeout
	parsed.WriteTimeout = options.socketTimeout
	parsed.DialTimeout = options.connectTimeout

	return &RedisRegistry{
		client:             redis.NewClient(parsed),
		keyPrefix:          options.keyPrefix,
		constitutionalHash: constitutionalHash,
	}, nil
}

// Ping reports whether the underlying Redis connection is reachable, used
// by internal/recovery to supervise this registry as an external
// dependency.
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRegistry) Register(ctx context.Context, agentID string, capabilities, metadata map[string]any) (bool, error) {
	if capabilities == nil {
		capabilities = map[string]any{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	rec := AgentRecord{
		AgentID:            agentID,
		Capabilities:       capabilities,
		Metadata:           metadata,
		RegisteredAt:       time.Now().UTC(),
		ConstitutionalHash: r.constitutionalHash,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	// HSETNX returns 1 only if the field was newly created, matching the
	// original's "register only if not already present" semantics.
	ok, err := r.client.HSetNX(ctx, r.keyPrefix, agentID, data).Result()
	return ok, err
}

func (r *RedisRegistry) Unregister(ctx context.Context, agentID string) (bool, error) {
	n, err := r.client.HDel(ctx, r.keyPrefix, agentID).Result()
	return n > 0, err
}

func (r *RedisRegistry) Get(ctx context.Context, agentID string) (*AgentRecord, bool, error) {
	data, err := r.client.HGet(ctx, r.keyPrefix, agentID).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rec AgentRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func (r *RedisRegistry) ListAgents(ctx context.Context) ([]string, error) {
	return r.client.HKeys(ctx, r.keyPrefix).Result()
}

func (r *RedisRegistry) Exists(ctx context.Context, agentID string) (bool, error) {
	return r.client.HExists(ctx, r.keyPrefix, agentID).Result()
}

func (r *RedisRegistry) UpdateMetadata(ctx context.Context, agentID string, metadata map[string]any) (bool, error) {
	data, err := r.client.HGet(ctx, r.keyPrefix, agentID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var rec AgentRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return false, err
	}
	for k, v := range metadata {
		rec.Metadata[k] = v
	}
	rec.UpdatedAt = time.Now().UTC()
	updated, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	if err := r.client.HSet(ctx, r.keyPrefix, agentID, updated).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *RedisRegistry) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.keyPrefix).Err()
}

// Close releases the underlying connection pool.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
