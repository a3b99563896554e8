package kv

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures the networked Store implementation.
type RedisConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
}

// DefaultRedisConfig returns sane production defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
	}
}

// RedisStore is the production Store backed by a single Redis client.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore dials Redis and verifies connectivity with a Ping.
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, wrapNetworkErr("connect", cfg.Addr, err)
	}

	logger.Info("kv redis store connected", zap.String("addr", cfg.Addr))

	return &RedisStore{client: client, logger: logger.With(zap.String("component", "kv.redis"))}, nil
}

// NewRedisStoreFromClient wraps an already-constructed client, used by tests
// that dial a miniredis instance directly.
func NewRedisStoreFromClient(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, logger: logger.With(zap.String("component", "kv.redis"))}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", wrapNetworkErr("get", key, err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return wrapNetworkErr("set", key, err)
	}
	return nil
}

func (s *RedisStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrapNetworkErr("setex", key, err)
	}
	return nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return wrapNetworkErr("del", keys[0], err)
	}
	return nil
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	if err := s.client.HSet(ctx, key, field, value).Err(); err != nil {
		return wrapNetworkErr("hset", key, err)
	}
	return nil
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, error) {
	val, err := s.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", wrapNetworkErr("hget", key, err)
	}
	return val, nil
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, z Z) error {
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: z.Score, Member: z.Member}).Err(); err != nil {
		return wrapNetworkErr("zadd", key, err)
	}
	return nil
}

func (s *RedisStore) ZRangeByScore(ctx context.Context, key string, lo, hi float64) ([]string, error) {
	members, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: formatScore(lo),
		Max: formatScore(hi),
	}).Result()
	if err != nil {
		return nil, wrapNetworkErr("zrangebyscore", key, err)
	}
	return members, nil
}

func (s *RedisStore) ZRemRangeByScore(ctx context.Context, key string, lo, hi float64) (int64, error) {
	n, err := s.client.ZRemRangeByScore(ctx, key, formatScore(lo), formatScore(hi)).Result()
	if err != nil {
		return 0, wrapNetworkErr("zremrangebyscore", key, err)
	}
	return n, nil
}

func (s *RedisStore) ZCount(ctx context.Context, key string, lo, hi float64) (int64, error) {
	n, err := s.client.ZCount(ctx, key, formatScore(lo), formatScore(hi)).Result()
	if err != nil {
		return 0, wrapNetworkErr("zcount", key, err)
	}
	return n, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return wrapNetworkErr("expire", key, err)
	}
	return nil
}

func (s *RedisStore) Pipeline(ctx context.Context, fn func(Pipeliner) error) error {
	pipe := s.client.Pipeline()
	p := &redisPipeliner{pipe: pipe, ctx: ctx}
	if err := fn(p); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return wrapNetworkErr("pipeline", "<batch>", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// redisPipeliner adapts redis.Pipeliner to the kv.Pipeliner contract.
type redisPipeliner struct {
	pipe redis.Pipeliner
	ctx  context.Context
}

func (p *redisPipeliner) Set(key, value string) { p.pipe.Set(p.ctx, key, value, 0) }
func (p *redisPipeliner) SetEx(key, value string, ttl time.Duration) {
	p.pipe.Set(p.ctx, key, value, ttl)
}
func (p *redisPipeliner) Del(keys ...string) { p.pipe.Del(p.ctx, keys...) }
func (p *redisPipeliner) HSet(key, field, value string) {
	p.pipe.HSet(p.ctx, key, field, value)
}
func (p *redisPipeliner) ZAdd(key string, z Z) {
	p.pipe.ZAdd(p.ctx, key, redis.Z{Score: z.Score, Member: z.Member})
}
func (p *redisPipeliner) ZRemRangeByScore(key string, lo, hi float64) {
	p.pipe.ZRemRangeByScore(p.ctx, key, formatScore(lo), formatScore(hi))
}
func (p *redisPipeliner) Expire(key string, ttl time.Duration) {
	p.pipe.Expire(p.ctx, key, ttl)
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
