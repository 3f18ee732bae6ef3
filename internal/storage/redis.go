package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/tutor-quest/internal/models"
)

// RedisStore implements Store on Redis.
// Drafts live under <prefix>draft:<id>, submissions in the list <prefix>submissions.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects to Redis
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fail("open", fmt.Errorf("failed to connect to redis: %w", err))
	}

	return &RedisStore{client: client, prefix: cfg.Prefix}, nil
}

func (s *RedisStore) draftKey(id string) string {
	return s.prefix + "draft:" + id
}

func (s *RedisStore) submissionsKey() string {
	return s.prefix + "submissions"
}

func (s *RedisStore) SaveDraft(ctx context.Context, id string, a models.Attempt) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fail("save draft", err)
	}
	return fail("save draft", s.client.Set(ctx, s.draftKey(id), payload, 0).Err())
}

func (s *RedisStore) LoadDraft(ctx context.Context, id string) (*models.Attempt, error) {
	payload, err := s.client.Get(ctx, s.draftKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fail("load draft", err)
	}

	var a models.Attempt
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fail("load draft", fmt.Errorf("decode draft %q: %w", id, err))
	}
	return &a, nil
}

func (s *RedisStore) DeleteDraft(ctx context.Context, id string) error {
	return fail("delete draft", s.client.Del(ctx, s.draftKey(id)).Err())
}

func (s *RedisStore) AppendSubmission(ctx context.Context, sub models.Submission) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fail("append submission", err)
	}
	return fail("append submission", s.client.RPush(ctx, s.submissionsKey(), payload).Err())
}

func (s *RedisStore) ListSubmissions(ctx context.Context) ([]models.Submission, error) {
	entries, err := s.client.LRange(ctx, s.submissionsKey(), 0, -1).Result()
	if err != nil {
		return nil, fail("list submissions", err)
	}

	out := make([]models.Submission, 0, len(entries))
	for _, entry := range entries {
		var sub models.Submission
		if err := json.Unmarshal([]byte(entry), &sub); err != nil {
			return nil, fail("list submissions", err)
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *RedisStore) ClearSubmissions(ctx context.Context) error {
	return fail("clear submissions", s.client.Del(ctx, s.submissionsKey()).Err())
}

// Purge removes every key under the store prefix
func (s *RedisStore) Purge(ctx context.Context) error {
	pattern := s.prefix + "*"
	var cursor uint64
	var keysDeleted int

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fail("purge", fmt.Errorf("failed to scan keys: %w", err))
		}

		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fail("purge", err)
			}
			keysDeleted += len(keys)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	slog.Info("redis store purged", "prefix", s.prefix, "keys_deleted", keysDeleted)
	return nil
}

// Ping verifies Redis connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return fail("ping", s.client.Ping(ctx).Err())
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
