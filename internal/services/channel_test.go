package services

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/AnshRaj112/palchat-backend/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")
	carol := e.register(t, "carol")
	fs := e.befriend(t, bob, alice)

	_, err := e.channel.Append(ctx, fs.ID, alice.ID, "   ")
	assert.ErrorIs(t, err, apperr.ErrEmptyMessage)

	_, err = e.channel.Append(ctx, fs.ID, alice.ID, strings.Repeat("a", MaxMessageLength+1))
	assert.ErrorIs(t, err, apperr.ErrMessageTooLong)

	_, err = e.channel.Append(ctx, fs.ID, alice.ID, strings.Repeat("ß", MaxMessageLength))
	assert.NoError(t, err)

	_, err = e.channel.Append(ctx, fs.ID, carol.ID, "hi")
	assert.ErrorIs(t, err, apperr.ErrNotMember)

	_, err = e.channel.Append(ctx, "missing", alice.ID, "hi")
	assert.ErrorIs(t, err, apperr.ErrFriendshipMissing)
}

func TestAppendUpdatesPreview(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")
	fs := e.befriend(t, bob, alice)

	msg, err := e.channel.Append(ctx, fs.ID, alice.ID, "  hello bob  ")
	require.NoError(t, err)
	assert.Equal(t, "hello bob", msg.Text)
	assert.Equal(t, alice.ID, msg.SenderID)
	assert.Equal(t, fs.ID, msg.ChannelID)
	assert.False(t, msg.Timestamp.IsZero())

	got, err := e.friendships.Get(ctx, fs.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello bob", got.LastMessage)
	assert.False(t, got.LastMessageTime.Before(msg.Timestamp))
}

func TestSubscribeWindow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")
	fs := e.befriend(t, bob, alice)

	const total = WindowSize + 50
	for i := 0; i < total; i++ {
		_, err := e.channel.Append(ctx, fs.ID, alice.ID, fmt.Sprintf("m%03d", i))
		require.NoError(t, err)
	}

	rec := newRecorder[[]models.Message]()
	sub, err := e.channel.SubscribeAs(ctx, fs.ID, bob.ID, rec.fn)
	require.NoError(t, err)
	defer sub.Close()

	got := rec.waitFor(t, func(m []models.Message) bool { return len(m) == WindowSize })
	assert.Equal(t, "m050", got[0].Text)
	assert.Equal(t, fmt.Sprintf("m%03d", total-1), got[WindowSize-1].Text)

	_, err = e.channel.Append(ctx, fs.ID, bob.ID, "latest")
	require.NoError(t, err)
	got = rec.waitFor(t, func(m []models.Message) bool { return len(m) > 0 && m[len(m)-1].Text == "latest" })
	assert.Len(t, got, WindowSize)
	assert.Equal(t, "m051", got[0].Text)
}

func TestSubscribeAsNonMember(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")
	carol := e.register(t, "carol")
	fs := e.befriend(t, bob, alice)

	_, err := e.channel.SubscribeAs(context.Background(), fs.ID, carol.ID, func([]models.Message, error) {})
	assert.ErrorIs(t, err, apperr.ErrNotMember)
}

func TestConcurrentAppendsStayOrdered(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")
	fs := e.befriend(t, bob, alice)

	var wg sync.WaitGroup
	for _, sender := range []*models.User{alice, bob} {
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(sender *models.User, i int) {
				defer wg.Done()
				_, err := e.channel.Append(ctx, fs.ID, sender.ID, fmt.Sprintf("%s-%d", sender.Username, i))
				assert.NoError(t, err)
			}(sender, i)
		}
	}
	wg.Wait()

	msgs, err := e.channel.Recent(ctx, fs.ID, alice.ID, WindowSize)
	require.NoError(t, err)
	require.Len(t, msgs, 40)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i].Timestamp.After(msgs[i-1].Timestamp), "message %d out of order", i)
	}
}

// fakeCache records what the channel does with its cache.
type fakeCache struct {
	mu     sync.Mutex
	tails  map[string][]models.Message
	pushes int
	warms  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{tails: map[string][]models.Message{}}
}

func (c *fakeCache) Recent(_ context.Context, channelID string) ([]models.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tail, ok := c.tails[channelID]
	if !ok {
		return nil, false
	}
	return append([]models.Message(nil), tail...), true
}

func (c *fakeCache) Push(_ context.Context, msg models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushes++
	if tail, ok := c.tails[msg.ChannelID]; ok {
		c.tails[msg.ChannelID] = append(tail, msg)
	}
}

func (c *fakeCache) Warm(_ context.Context, channelID string, msgs []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warms++
	c.tails[channelID] = append([]models.Message(nil), msgs...)
}

func TestRecentUsesCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cache := newFakeCache()
	ch := NewChannel(e.store, e.friendships, cache, e.logger)

	alice := e.register(t, "alice")
	bob := e.register(t, "bob")
	carol := e.register(t, "carol")
	fs := e.befriend(t, bob, alice)

	for i := 0; i < 5; i++ {
		_, err := ch.Append(ctx, fs.ID, alice.ID, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 5, cache.pushes)

	_, err := ch.Recent(ctx, fs.ID, carol.ID, 10)
	assert.ErrorIs(t, err, apperr.ErrNotMember)

	msgs, err := ch.Recent(ctx, fs.ID, bob.ID, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"m2", "m3", "m4"}, texts(msgs))
	assert.Equal(t, 1, cache.warms)

	_, err = ch.Append(ctx, fs.ID, bob.ID, "m5")
	require.NoError(t, err)

	msgs, err = ch.Recent(ctx, fs.ID, alice.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4", "m5"}, texts(msgs))
	assert.Equal(t, 1, cache.warms)
}

func texts(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

// laggyCache delays every push so concurrent appends land out of order.
type laggyCache struct {
	*fakeCache
	delay func() time.Duration
}

func (c laggyCache) Push(ctx context.Context, msg models.Message) {
	time.Sleep(c.delay())
	c.fakeCache.Push(ctx, msg)
}

func TestRecentFromCacheIsOrdered(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(7))
	cache := laggyCache{fakeCache: newFakeCache(), delay: func() time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return time.Duration(rng.Intn(3000)) * time.Microsecond
	}}
	ch := NewChannel(e.store, e.friendships, cache, e.logger)

	alice := e.register(t, "alice")
	bob := e.register(t, "bob")
	fs := e.befriend(t, bob, alice)

	_, err := ch.Recent(ctx, fs.ID, alice.ID, 0)
	require.NoError(t, err)
	require.Equal(t, 1, cache.warms)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ch.Append(ctx, fs.ID, alice.ID, fmt.Sprintf("m%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := ch.Recent(ctx, fs.ID, bob.ID, WindowSize)
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i].Timestamp.After(msgs[i-1].Timestamp), "message %d out of order", i)
	}
}

func TestRecentSortsCachedTail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cache := newFakeCache()
	ch := NewChannel(e.store, e.friendships, cache, e.logger)

	alice := e.register(t, "alice")
	bob := e.register(t, "bob")
	fs := e.befriend(t, bob, alice)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(text string, sec int) models.Message {
		return models.Message{ChannelID: fs.ID, Text: text, Timestamp: base.Add(time.Duration(sec) * time.Second)}
	}
	cache.Warm(ctx, fs.ID, []models.Message{at("c", 3), at("a", 1), at("d", 4), at("b", 2)})

	msgs, err := ch.Recent(ctx, fs.ID, alice.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, texts(msgs))
}
