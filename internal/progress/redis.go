package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go-jobpilot/internal/models"
)

// RedisStore shares progress between processes. Each record is a JSON string
// under <prefix><configID>; a set under <prefix>index lists the ids.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisClient dials addr and pings it once.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "jobpilot:progress:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(configID string) string { return s.prefix + configID }

func (s *RedisStore) indexKey() string { return s.prefix + "index" }

func (s *RedisStore) Put(ctx context.Context, rec models.ProgressRecord, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key(rec.ConfigID), raw, ttl)
		p.SAdd(ctx, s.indexKey(), rec.ConfigID)
		return nil
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, configID string) (models.ProgressRecord, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(configID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.ProgressRecord{}, false, nil
	}
	if err != nil {
		return models.ProgressRecord{}, false, err
	}
	var rec models.ProgressRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.ProgressRecord{}, false, fmt.Errorf("decode progress %s: %w", configID, err)
	}
	return rec, true, nil
}

// List reads every indexed record and prunes ids whose record has expired.
func (s *RedisStore) List(ctx context.Context) ([]models.ProgressRecord, error) {
	ids, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.ProgressRecord{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]models.ProgressRecord, 0, len(vals))
	var stale []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var rec models.ProgressRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("decode progress %s: %w", ids[i], err)
		}
		out = append(out, rec)
	}
	if len(stale) > 0 {
		_ = s.rdb.SRem(ctx, s.indexKey(), stale...).Err()
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, configID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.key(configID))
		p.SRem(ctx, s.indexKey(), configID)
		return nil
	})
	return err
}
