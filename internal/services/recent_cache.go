package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/redis/go-redis/v9"
)

// RecentCache holds the newest WindowSize messages of a channel. A cached
// list is always a complete tail of the log, or absent.
type RecentCache interface {
	// Recent returns the cached tail oldest first, and false on a miss.
	Recent(ctx context.Context, channelID string) ([]models.Message, bool)
	Push(ctx context.Context, msg models.Message)
	// Warm replaces the cached tail with msgs, given oldest first.
	Warm(ctx context.Context, channelID string, msgs []models.Message)
}

type NopRecentCache struct{}

func (NopRecentCache) Recent(context.Context, string) ([]models.Message, bool) { return nil, false }
func (NopRecentCache) Push(context.Context, models.Message)                    {}
func (NopRecentCache) Warm(context.Context, string, []models.Message)          {}

const (
	recentKeyPrefix = "channel:"
	recentKeySuffix = ":recent"
	recentTTL       = 10 * time.Minute
)

func recentKey(channelID string) string {
	return recentKeyPrefix + channelID + recentKeySuffix
}

// RedisRecentCache keeps each channel's tail as a Redis list, newest at the
// head.
type RedisRecentCache struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisRecentCache(client *redis.Client, logger *slog.Logger) *RedisRecentCache {
	return &RedisRecentCache{client: client, logger: logger}
}

// Push only extends a list that already exists. Starting a list here would
// leave a partial tail that looks like a hit.
func (c *RedisRecentCache) Push(ctx context.Context, msg models.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	key := recentKey(msg.ChannelID)

	pipe := c.client.Pipeline()
	pipe.LPushX(ctx, key, data)
	pipe.LTrim(ctx, key, 0, WindowSize-1)
	pipe.Expire(ctx, key, recentTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("recent cache push failed", "channel_id", msg.ChannelID, "error", err)
	}
}

func (c *RedisRecentCache) Recent(ctx context.Context, channelID string) ([]models.Message, bool) {
	raw, err := c.client.LRange(ctx, recentKey(channelID), 0, WindowSize-1).Result()
	if err != nil || len(raw) == 0 {
		return nil, false
	}

	msgs := make([]models.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var m models.Message
		if err := json.Unmarshal([]byte(raw[i]), &m); err != nil {
			// A damaged entry makes the tail incomplete; treat it as a miss.
			return nil, false
		}
		msgs = append(msgs, m)
	}
	return msgs, true
}

func (c *RedisRecentCache) Warm(ctx context.Context, channelID string, msgs []models.Message) {
	if len(msgs) == 0 {
		return
	}
	key := recentKey(channelID)

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	for i := len(msgs) - 1; i >= 0; i-- {
		data, err := json.Marshal(msgs[i])
		if err != nil {
			return
		}
		pipe.RPush(ctx, key, data)
	}
	pipe.LTrim(ctx, key, 0, WindowSize-1)
	pipe.Expire(ctx, key, recentTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("recent cache warm failed", "channel_id", channelID, "error", err)
	}
}
