// Package remote implements the shared translation and interval store on
// Redis.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/MimeLyc/dualsub/internal/apperr"
	"github.com/MimeLyc/dualsub/internal/recorder"
	"github.com/MimeLyc/dualsub/internal/translation"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis connection and key namespace.
type RedisConfig struct {
	Addr     string // e.g. localhost:6379
	Password string
	DB       int
	Prefix   string
	// Timeout bounds every call that arrives without its own deadline.
	Timeout time.Duration
}

// RedisStore keeps translation records in hashes and caption intervals in
// one sorted set per video, scored by start time.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisStore connects and verifies the server with a ping.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	store := NewRedisStoreWithClient(client, cfg.Prefix, cfg.Timeout)

	ctx, cancel := context.WithTimeout(context.Background(), store.timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperr.Wrap(err, apperr.KindNetwork, fmt.Sprintf("failed to connect to redis at %s", cfg.Addr))
	}
	return store, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, timeout time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "dualsub"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RedisStore{client: client, prefix: prefix, timeout: timeout}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) translationKey(key translation.Key) string {
	return s.prefix + ":tr:" + key.Hash()
}

func (s *RedisStore) intervalsKey(videoID string) string {
	return s.prefix + ":iv:" + videoID
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *RedisStore) Find(ctx context.Context, key translation.Key) (translation.Record, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, s.translationKey(key)).Result()
	if err != nil {
		return translation.Record{}, false, apperr.Wrap(err, apperr.KindNetwork, "redis find failed")
	}
	if len(fields) == 0 {
		return translation.Record{}, false, nil
	}

	updatedMs, _ := strconv.ParseInt(fields["updated_at"], 10, 64)
	return translation.Record{
		ID:          fields["id"],
		Key:         key,
		Translation: fields["translation"],
		Provider:    fields["provider"],
		UpdatedAt:   time.UnixMilli(updatedMs).UTC(),
	}, true, nil
}

func (s *RedisStore) Upsert(ctx context.Context, rec translation.Record) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.client.HSet(ctx, s.translationKey(rec.Key), map[string]any{
		"id":          rec.ID,
		"video_id":    rec.Key.VideoID,
		"model":       rec.Key.Model,
		"source_lang": rec.Key.SourceLang,
		"target_lang": rec.Key.TargetLang,
		"text":        rec.Key.Text,
		"translation": rec.Translation,
		"provider":    rec.Provider,
		"updated_at":  rec.UpdatedAt.UnixMilli(),
	}).Err()
	if err != nil {
		return apperr.Wrap(err, apperr.KindNetwork, "redis upsert failed")
	}
	return nil
}

// SaveInterval adds iv to its video's set. Identical intervals collapse into
// one member.
func (s *RedisStore) SaveInterval(ctx context.Context, iv recorder.Interval) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	member, err := json.Marshal(iv)
	if err != nil {
		return err
	}
	err = s.client.ZAdd(ctx, s.intervalsKey(iv.VideoID), redis.Z{Score: iv.StartTime, Member: string(member)}).Err()
	if err != nil {
		return apperr.Wrap(err, apperr.KindNetwork, "redis interval save failed")
	}
	return nil
}

// ListIntervals returns the intervals of a video ordered by start time.
// Members that fail to decode are skipped.
func (s *RedisStore) ListIntervals(ctx context.Context, videoID string) ([]recorder.Interval, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	members, err := s.client.ZRange(ctx, s.intervalsKey(videoID), 0, -1).Result()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindNetwork, "redis interval list failed")
	}

	ret := make([]recorder.Interval, 0, len(members))
	for _, m := range members {
		var iv recorder.Interval
		if err := json.Unmarshal([]byte(m), &iv); err != nil {
			continue
		}
		ret = append(ret, iv)
	}
	return ret, nil
}
