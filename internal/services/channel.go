package services

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/AnshRaj112/palchat-backend/internal/store"
	"github.com/AnshRaj112/palchat-backend/pkg/apperr"
)

const (
	// WindowSize caps what a subscriber sees. Storage keeps everything.
	WindowSize         = 100
	MaxMessageLength   = 2000
	DefaultRecentLimit = 50
)

// Channel is the append-only message log of one friendship.
type Channel struct {
	store       store.Store
	friendships *Friendships
	cache       RecentCache
	logger      *slog.Logger
}

func NewChannel(st store.Store, friendships *Friendships, cache RecentCache, logger *slog.Logger) *Channel {
	if cache == nil {
		cache = NopRecentCache{}
	}
	return &Channel{store: st, friendships: friendships, cache: cache, logger: logger}
}

func windowQuery(channelID string, limit int) store.Query {
	return store.Query{
		Collection: CollMessages,
		Filters:    []store.Filter{store.Eq("channelId", channelID)},
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      limit,
	}
}

// reverse turns a newest-first page into the oldest-first order clients render.
func reverse(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// Subscribe delivers the latest WindowSize messages, oldest first, on every
// change to the log.
func (c *Channel) Subscribe(ctx context.Context, channelID string, fn func([]models.Message, error)) (store.Subscription, error) {
	sub, err := c.store.Subscribe(ctx, windowQuery(channelID, WindowSize), func(snap store.Snapshot) {
		msgs := []models.Message{}
		if err := snap.Decode(&msgs); err != nil {
			fn(nil, storeError(err, nil))
			return
		}
		reverse(msgs)
		fn(msgs, nil)
	})
	if err != nil {
		return nil, storeError(err, nil)
	}
	return sub, nil
}

// SubscribeAs is Subscribe for a member of the channel.
func (c *Channel) SubscribeAs(ctx context.Context, channelID, userID string, fn func([]models.Message, error)) (store.Subscription, error) {
	if _, err := c.friendships.GetForMember(ctx, channelID, userID); err != nil {
		return nil, err
	}
	return c.Subscribe(ctx, channelID, fn)
}

// Append stores a message with a store-assigned timestamp and then updates
// the friendship preview. A failed preview update does not fail the send.
func (c *Channel) Append(ctx context.Context, channelID, senderID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, apperr.ErrMessageTooLong
	}
	if _, err := c.friendships.GetForMember(ctx, channelID, senderID); err != nil {
		return nil, err
	}

	id, err := c.store.Create(ctx, CollMessages, models.Message{
		ChannelID: channelID,
		SenderID:  senderID,
		Text:      text,
	}, store.WithServerTimestamp("timestamp"))
	if err != nil {
		return nil, storeError(err, nil)
	}

	var msg models.Message
	if err := c.store.Get(ctx, CollMessages, id, &msg); err != nil {
		return nil, storeError(err, nil)
	}

	if err := c.friendships.Touch(ctx, channelID, text); err != nil {
		c.logger.Warn("chat preview update failed", "channel_id", channelID, "error", err)
	}
	c.cache.Push(ctx, msg)
	return &msg, nil
}

// Recent returns up to limit of the newest messages, oldest first. The cache
// answers when it holds the channel; otherwise the store does and the cache
// is warmed.
func (c *Channel) Recent(ctx context.Context, channelID, userID string, limit int) ([]models.Message, error) {
	if _, err := c.friendships.GetForMember(ctx, channelID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > WindowSize {
		limit = WindowSize
	}

	if cached, ok := c.cache.Recent(ctx, channelID); ok {
		// Concurrent appends can reach the cache out of order.
		sort.SliceStable(cached, func(i, j int) bool {
			return cached[i].Timestamp.Before(cached[j].Timestamp)
		})
		if len(cached) > limit {
			cached = cached[len(cached)-limit:]
		}
		return cached, nil
	}

	msgs := []models.Message{}
	if err := c.store.Find(ctx, windowQuery(channelID, WindowSize), &msgs); err != nil {
		return nil, storeError(err, nil)
	}
	reverse(msgs)
	c.cache.Warm(ctx, channelID, msgs)

	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}
