package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	queueKeyPrefix = "harmony:queue:"
	blacklistKey   = "harmony:soundcron_blacklist"
)

// RedisQueue keeps each guild's queue in a Redis list so it survives
// restarts and can be shared between processes.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

var _ Queue = (*RedisQueue)(nil)

func queueKey(guildID string) string {
	return queueKeyPrefix + guildID
}

func (q *RedisQueue) Push(ctx context.Context, guildID string, track Track) (int, error) {
	data, err := json.Marshal(track)
	if err != nil {
		return 0, fmt.Errorf("failed to encode track: %w", err)
	}
	n, err := q.client.RPush(ctx, queueKey(guildID), data).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to push track for guild %s: %w", guildID, err)
	}
	return int(n), nil
}

func (q *RedisQueue) Pop(ctx context.Context, guildID string) (Track, bool, error) {
	data, err := q.client.LPop(ctx, queueKey(guildID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Track{}, false, nil
	}
	if err != nil {
		return Track{}, false, fmt.Errorf("failed to pop track for guild %s: %w", guildID, err)
	}
	var track Track
	if err := json.Unmarshal(data, &track); err != nil {
		return Track{}, false, fmt.Errorf("failed to decode track: %w", err)
	}
	return track, true, nil
}

func (q *RedisQueue) List(ctx context.Context, guildID string, limit int) ([]Track, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	items, err := q.client.LRange(ctx, queueKey(guildID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks for guild %s: %w", guildID, err)
	}
	tracks := make([]Track, 0, len(items))
	for _, item := range items {
		var track Track
		if err := json.Unmarshal([]byte(item), &track); err != nil {
			return nil, fmt.Errorf("failed to decode track: %w", err)
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

func (q *RedisQueue) Len(ctx context.Context, guildID string) (int, error) {
	n, err := q.client.LLen(ctx, queueKey(guildID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to measure queue for guild %s: %w", guildID, err)
	}
	return int(n), nil
}

func (q *RedisQueue) Clear(ctx context.Context, guildID string) error {
	if err := q.client.Del(ctx, queueKey(guildID)).Err(); err != nil {
		return fmt.Errorf("failed to clear queue for guild %s: %w", guildID, err)
	}
	return nil
}

type RedisBlacklist struct {
	client *redis.Client
}

func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client}
}

var _ Blacklist = (*RedisBlacklist)(nil)

func (b *RedisBlacklist) AddToBlacklist(ctx context.Context, soundCronID string) error {
	_, err := b.client.SAdd(ctx, blacklistKey, soundCronID).Result()
	if err != nil {
		return fmt.Errorf("failed to add soundCronID %s to blacklist: %w", soundCronID, err)
	}
	return nil
}

func (b *RedisBlacklist) IsBlacklisted(ctx context.Context, soundCronID string) (bool, error) {
	ok, err := b.client.SIsMember(ctx, blacklistKey, soundCronID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist for %s: %w", soundCronID, err)
	}
	return ok, nil
}
