package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AnshRaj112/palchat-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID      string    `bson:"_id,omitempty"`
	Owner   string    `bson:"owner"`
	Tags    []string  `bson:"tags"`
	Rank    int       `bson:"rank"`
	Created time.Time `bson:"created,omitempty"`
}

func TestCreateAssignsIDAndTimestamp(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Create(ctx, "items", item{Owner: "a"}, store.WithServerTimestamp("created"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var got item
	require.NoError(t, s.Get(ctx, "items", id, &got))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "a", got.Owner)
	assert.False(t, got.Created.IsZero())
}

func TestGetMissing(t *testing.T) {
	var got item
	err := New().Get(context.Background(), "items", "nope", &got)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTimestampsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewWithClock(store.NewClock(func() time.Time { return fixed }))

	var last time.Time
	for i := 0; i < 5; i++ {
		id, err := s.Create(ctx, "items", item{Owner: "a"}, store.WithServerTimestamp("created"))
		require.NoError(t, err)
		var got item
		require.NoError(t, s.Get(ctx, "items", id, &got))
		assert.True(t, got.Created.After(last), "timestamp %d did not advance", i)
		last = got.Created
	}
}

func TestFindFiltersOrdersAndLimits(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, it := range []item{
		{Owner: "a", Rank: 3, Tags: []string{"x"}},
		{Owner: "b", Rank: 1, Tags: []string{"x", "y"}},
		{Owner: "a", Rank: 2, Tags: []string{"y"}},
		{Owner: "a", Rank: 1, Tags: []string{"x", "z"}},
	} {
		_, err := s.Create(ctx, "items", it)
		require.NoError(t, err)
	}

	var byOwner []item
	require.NoError(t, s.Find(ctx, store.Query{
		Collection: "items",
		Filters:    []store.Filter{store.Eq("owner", "a")},
		OrderBy:    "rank",
	}, &byOwner))
	require.Len(t, byOwner, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{byOwner[0].Rank, byOwner[1].Rank, byOwner[2].Rank})

	var tagged []item
	require.NoError(t, s.Find(ctx, store.Query{
		Collection: "items",
		Filters:    []store.Filter{store.Contains("tags", "x")},
		OrderBy:    "rank",
		Descending: true,
		Limit:      2,
	}, &tagged))
	require.Len(t, tagged, 2)
	assert.Equal(t, 3, tagged[0].Rank)
	assert.Equal(t, 1, tagged[1].Rank)
}

func TestFindEmptyCollection(t *testing.T) {
	var out []item
	require.NoError(t, New().Find(context.Background(), store.Query{Collection: "items"}, &out))
	assert.Empty(t, out)
}

func TestUpdateWhereGuard(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, err := s.Create(ctx, "items", item{Owner: "a", Rank: 1})
	require.NoError(t, err)

	ok, err := s.UpdateWhere(ctx, "items", id, []store.Filter{store.Eq("rank", 1)}, store.Fields{"rank": 2})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UpdateWhere(ctx, "items", id, []store.Filter{store.Eq("rank", 1)}, store.Fields{"rank": 3})
	require.NoError(t, err)
	assert.False(t, ok)

	var got item
	require.NoError(t, s.Get(ctx, "items", id, &got))
	assert.Equal(t, 2, got.Rank)

	_, err = s.UpdateWhere(ctx, "items", "missing", nil, store.Fields{"rank": 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateServerTimestamp(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, err := s.Create(ctx, "items", item{Owner: "a"}, store.WithServerTimestamp("created"))
	require.NoError(t, err)

	var before item
	require.NoError(t, s.Get(ctx, "items", id, &before))
	require.NoError(t, s.Update(ctx, "items", id, store.Fields{"created": store.ServerTimestamp}))

	var after item
	require.NoError(t, s.Get(ctx, "items", id, &after))
	assert.True(t, after.Created.After(before.Created))
}

func TestEnsureUnique(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.EnsureUnique(ctx, "items", "owner"))

	_, err := s.Create(ctx, "items", item{Owner: "a"})
	require.NoError(t, err)
	_, err = s.Create(ctx, "items", item{Owner: "a"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	id, err := s.Create(ctx, "items", item{Owner: "b"})
	require.NoError(t, err)
	err = s.Update(ctx, "items", id, store.Fields{"owner": "a"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestRunTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, err := s.Create(ctx, "items", item{Owner: "a", Rank: 1})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Update(ctx, "items", id, store.Fields{"rank": 9}); err != nil {
			return err
		}
		if _, err := tx.Create(ctx, "items", item{Owner: "c"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var all []item
	require.NoError(t, s.Find(ctx, store.Query{Collection: "items"}, &all))
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].Rank)
}

func TestRunTransactionCommits(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, err := s.Create(ctx, "items", item{Owner: "a", Rank: 1})
	require.NoError(t, err)

	err = s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var it item
		if err := tx.Get(ctx, "items", id, &it); err != nil {
			return err
		}
		if err := tx.Update(ctx, "items", id, store.Fields{"rank": it.Rank + 1}); err != nil {
			return err
		}
		_, err := tx.Create(ctx, "items", item{Owner: "c"})
		return err
	})
	require.NoError(t, err)

	var all []item
	require.NoError(t, s.Find(ctx, store.Query{Collection: "items", OrderBy: "rank"}, &all))
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[1].Rank)
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	ctx := context.Background()
	s := New()

	snaps := make(chan []item, 16)
	sub, err := s.Subscribe(ctx, store.Query{
		Collection: "items",
		Filters:    []store.Filter{store.Eq("owner", "a")},
	}, func(snap store.Snapshot) {
		var items []item
		assert.NoError(t, snap.Decode(&items))
		snaps <- items
	})
	require.NoError(t, err)
	defer sub.Close()

	assert.Empty(t, waitSnapshot(t, snaps))

	_, err = s.Create(ctx, "items", item{Owner: "a"})
	require.NoError(t, err)
	assert.Len(t, waitSnapshot(t, snaps), 1)

	_, err = s.Create(ctx, "items", item{Owner: "a"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		select {
		case got := <-snaps:
			return len(got) == 2
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	ctx := context.Background()
	s := New()

	snaps := make(chan []item, 16)
	sub, err := s.Subscribe(ctx, store.Query{Collection: "items"}, func(snap store.Snapshot) {
		var items []item
		_ = snap.Decode(&items)
		snaps <- items
	})
	require.NoError(t, err)
	waitSnapshot(t, snaps)

	sub.Close()
	sub.Close()

	_, err = s.Create(ctx, "items", item{Owner: "a"})
	require.NoError(t, err)

	select {
	case <-snaps:
		t.Fatal("snapshot delivered after Close")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Close(ctx))

	_, err := s.Create(ctx, "items", item{Owner: "a"})
	assert.ErrorIs(t, err, store.ErrClosed)
	_, err = s.Subscribe(ctx, store.Query{Collection: "items"}, func(store.Snapshot) {})
	assert.ErrorIs(t, err, store.ErrClosed)
}

func waitSnapshot(t *testing.T, ch <-chan []item) []item {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}
