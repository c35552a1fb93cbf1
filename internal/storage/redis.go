package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

const redisConnectTimeout = 5 * time.Second

// redisStore keeps one sorted set per source, scored by insertion time so
// LoadAll returns ids in delivery order.
type redisStore struct {
	client *redis.Client
	prefix string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (IdentifierStore, error) {
	if cfg.Redis.Addr == "" {
		return nil, errors.New("storage.redis.addr is required for redis driver")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedis(client, cfg.Redis.Prefix, log), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string, log logx.Logger) IdentifierStore {
	if prefix == "" {
		prefix = "gabriel:ids:"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &redisStore{client: client, prefix: prefix, log: log}
}

func (s *redisStore) key(source string) string { return s.prefix + source }

func (s *redisStore) LoadAll(ctx context.Context, source string) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.key(source), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load %s: %w", source, err)
	}
	s.log.Debug("identifiers loaded", logx.String("key", s.key(source)), logx.Int("count", len(ids)))
	return ids, nil
}

func (s *redisStore) Create(ctx context.Context, source, id string) error {
	if id == "" {
		return nil
	}
	err := s.client.ZAddNX(ctx, s.key(source), redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: id,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis create %s/%s: %w", source, id, err)
	}
	return nil
}

func (s *redisStore) Close() error { return s.client.Close() }
