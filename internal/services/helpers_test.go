package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/AnshRaj112/palchat-backend/internal/store"
	"github.com/AnshRaj112/palchat-backend/internal/store/memstore"
	"github.com/AnshRaj112/palchat-backend/pkg/utils"
	"github.com/stretchr/testify/require"
)

const (
	testWait = 2 * time.Second
	testTick = 10 * time.Millisecond
)

// testHasher keeps argon2 cheap enough for race tests.
var testHasher = utils.Argon2Hasher{Params: utils.Argon2Params{
	Memory:      64,
	Time:        1,
	Parallelism: 1,
	SaltLength:  8,
	KeyLength:   16,
}}

type env struct {
	store       *memstore.Store
	logger      *slog.Logger
	directory   *Directory
	identity    *Identity
	requests    *FriendRequests
	friendships *Friendships
	channel     *Channel
	sessions    *SessionManager
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithStore(t, memstore.New())
}

func newEnvWithStore(t *testing.T, st *memstore.Store) *env {
	t.Helper()
	logger := discardLogger()
	require.NoError(t, EnsureIndexes(context.Background(), st))

	e := &env{store: st, logger: logger}
	e.directory = NewDirectory(st, testHasher, logger)
	e.identity = NewIdentity(st, NewFileLocalState(filepath.Join(t.TempDir(), "device.json")), e.directory, logger)
	e.friendships = NewFriendships(st, logger)
	e.requests = NewFriendRequests(st, e.directory, logger)
	e.channel = NewChannel(st, e.friendships, nil, logger)
	e.sessions = NewSessionManager(e.identity, logger)
	return e
}

func (e *env) register(t *testing.T, username string) *models.User {
	t.Helper()
	u, err := e.directory.Register(context.Background(), username, "secret-"+username)
	require.NoError(t, err)
	return u
}

// befriend runs the whole handshake and returns the friendship.
func (e *env) befriend(t *testing.T, a, b *models.User) *models.Friendship {
	t.Helper()
	ctx := context.Background()
	req, err := e.requests.Send(ctx, a, b.ID)
	require.NoError(t, err)
	_, err = e.requests.Respond(ctx, req.ID, b.ID, models.ActionAccept)
	require.NoError(t, err)

	var list []models.Friendship
	require.NoError(t, e.store.Find(ctx, store.Query{
		Collection: CollFriendships,
		Filters:    []store.Filter{store.Eq("requestId", req.ID)},
	}, &list))
	require.Len(t, list, 1)
	return &list[0]
}

// recorder collects deliveries from a live subscription.
type recorder[T any] struct {
	ch chan T
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{ch: make(chan T, 64)}
}

func (r *recorder[T]) fn(v T, err error) {
	if err != nil {
		return
	}
	// Never block the delivery goroutine; drop the oldest when full.
	select {
	case r.ch <- v:
	default:
		select {
		case <-r.ch:
		default:
		}
		r.ch <- v
	}
}

// waitFor returns the first delivery that satisfies ok.
func (r *recorder[T]) waitFor(t *testing.T, ok func(T) bool) T {
	t.Helper()
	deadline := time.After(testWait)
	for {
		select {
		case v := <-r.ch:
			if ok(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for live update")
			var zero T
			return zero
		}
	}
}
