package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps values as plain string keys and indexes them by write time
// in one sorted set, so Scan can return newest-first without KEYS.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

type RedisConfig struct {
	Host      string
	Port      string
	Password  string
	DB        int
	Namespace string
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:      "localhost",
		Port:      "6379",
		Password:  "",
		DB:        0,
		Namespace: "skysearch:",
	}
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{
		client:    client,
		namespace: cfg.Namespace,
	}, nil
}

func (s *RedisStore) indexKey() string {
	return s.namespace + "index"
}

func (s *RedisStore) valueKey(key string) string {
	return s.namespace + "v:" + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	pipe := s.client.Pipeline()
	val := pipe.Get(ctx, s.valueKey(key))
	score := pipe.ZScore(ctx, s.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Record{}, err
	}

	data, err := val.Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	ms, err := score.Result()
	if err != nil {
		// Value without index entry; treat as missing so it gets rewritten.
		return Record{}, ErrNotFound
	}

	return Record{Key: key, Value: data, Timestamp: time.UnixMilli(int64(ms))}, nil
}

func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.valueKey(rec.Key), rec.Value, 0)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(rec.Timestamp.UnixMilli()),
		Member: rec.Key,
	})
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	valueKeys := make([]string, len(keys))
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		valueKeys[i] = s.valueKey(k)
		members[i] = k
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, valueKeys...)
	pipe.ZRem(ctx, s.indexKey(), members...)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Scan(ctx context.Context, prefix string) ([]Record, error) {
	entries, err := s.client.ZRevRangeWithScores(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	var keys []string
	var stamps []time.Time
	for _, z := range entries {
		member, ok := z.Member.(string)
		if !ok || !strings.HasPrefix(member, prefix) {
			continue
		}
		keys = append(keys, member)
		stamps = append(stamps, time.UnixMilli(int64(z.Score)))
	}
	if len(keys) == 0 {
		return nil, nil
	}

	valueKeys := make([]string, len(keys))
	for i, k := range keys {
		valueKeys[i] = s.valueKey(k)
	}
	values, err := s.client.MGet(ctx, valueKeys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(keys))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, Record{Key: keys[i], Value: []byte(str), Timestamp: stamps[i]})
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
