package services

import (
	"context"
	"errors"
	"testing"

	"github.com/AnshRaj112/palchat-backend/internal/store"
	"github.com/AnshRaj112/palchat-backend/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// indexingStore records the secondary indexes it is asked for.
type indexingStore struct {
	*memstore.Store
	calls [][]string
	err   error
}

func (s *indexingStore) EnsureIndex(_ context.Context, collection string, fields ...string) error {
	s.calls = append(s.calls, append([]string{collection}, fields...))
	return s.err
}

var _ store.Indexer = (*indexingStore)(nil)

func TestEnsureIndexesCreatesQueryIndexes(t *testing.T) {
	st := &indexingStore{Store: memstore.New()}
	require.NoError(t, EnsureIndexes(context.Background(), st))
	assert.Equal(t, [][]string{
		{CollMessages, "channelId", "timestamp"},
		{CollFriendRequests, "toId", "status", "timestamp"},
		{CollFriendRequests, "status"},
		{CollFriendships, "users"},
	}, st.calls)

	// The unique constraints still apply.
	_, err := st.Create(context.Background(), CollUsers, map[string]interface{}{"username": "alice"})
	require.NoError(t, err)
	_, err = st.Create(context.Background(), CollUsers, map[string]interface{}{"username": "alice"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestEnsureIndexesStopsOnError(t *testing.T) {
	boom := errors.New("index build failed")
	st := &indexingStore{Store: memstore.New(), err: boom}
	assert.ErrorIs(t, EnsureIndexes(context.Background(), st), boom)
	assert.Len(t, st.calls, 1)
}

func TestEnsureIndexesWithoutIndexer(t *testing.T) {
	assert.NoError(t, EnsureIndexes(context.Background(), memstore.New()))
}
