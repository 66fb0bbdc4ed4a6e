package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/savergiggio/Telgram-Server-Monitoring/internal/alerts"
)

const recordsHash = "servermonitor:alert_records"

// Store keeps alert records as JSON values in a redis hash, for deployments
// where the agent's data directory is not durable (e.g. ephemeral
// containers pointing at a shared redis).
type Store struct {
	rdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

func Open(cfg Config) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Load(ctx context.Context, key alerts.Key) (*alerts.Record, error) {
	raw, err := s.rdb.HGet(ctx, recordsHash, string(key)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec alerts.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode record %q: %w", key, err)
	}
	return &rec, nil
}

func (s *Store) Save(ctx context.Context, key alerts.Key, rec alerts.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, recordsHash, string(key), string(b)).Err()
}

func (s *Store) LoadAll(ctx context.Context) (map[alerts.Key]alerts.Record, error) {
	raw, err := s.rdb.HGetAll(ctx, recordsHash).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[alerts.Key]alerts.Record, len(raw))
	for k, v := range raw {
		var rec alerts.Record
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("decode record %q: %w", k, err)
		}
		out[alerts.Key(k)] = rec
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, key alerts.Key) error {
	return s.rdb.HDel(ctx, recordsHash, string(key)).Err()
}
