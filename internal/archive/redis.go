package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lhdbsbz/berrychat/internal/chat"
)

const (
	defaultTTL         = 24 * time.Hour
	defaultMaxMessages = 50
	keyPrefix          = "berrychat:archive:"
)

// RedisStore keeps the last max records of each session in a list that expires after ttl.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	max int
}

// DialRedis connects to redisURL (redis://host:port/db) and pings it.
func DialRedis(redisURL string, ttl time.Duration, max int) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisStore(rdb, ttl, max), nil
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration, max int) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if max <= 0 {
		max = defaultMaxMessages
	}
	return &RedisStore{rdb: rdb, ttl: ttl, max: max}
}

func key(sessionID string) string { return keyPrefix + sessionID }

func (s *RedisStore) Append(ctx context.Context, rec chat.ExchangeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	k := key(rec.SessionID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, data)
		pipe.LTrim(ctx, k, int64(-s.max), -1)
		pipe.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]chat.ExchangeRecord, error) {
	items, err := s.rdb.LRange(ctx, key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	out := make([]chat.ExchangeRecord, 0, len(items))
	for _, item := range items {
		var rec chat.ExchangeRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }
