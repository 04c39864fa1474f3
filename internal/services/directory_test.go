package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/AnshRaj112/palchat-backend/internal/store"
	"github.com/AnshRaj112/palchat-backend/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDefaults(t *testing.T) {
	e := newEnv(t)
	u, err := e.directory.Register(context.Background(), "alice", "secret1")
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, models.DefaultBio, u.Bio)
	assert.GreaterOrEqual(t, u.AvatarSeed, models.MinAvatarSeed)
	assert.LessOrEqual(t, u.AvatarSeed, models.MaxAvatarSeed)
	assert.False(t, u.CreatedAt.IsZero())
	assert.NotEqual(t, "secret1", u.PasswordHash)
	assert.True(t, strings.HasPrefix(u.PasswordHash, "$argon2id$"))
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for _, name := range []string{"", "  ", " alice", "alice ", strings.Repeat("a", 21)} {
		_, err := e.directory.Register(ctx, name, "secret1")
		assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err), "username %q", name)
	}

	_, err := e.directory.Register(ctx, "alice", "abc")
	assert.ErrorIs(t, err, apperr.ErrPasswordTooShort)

	var users []models.User
	require.NoError(t, e.store.Find(ctx, store.Query{Collection: CollUsers}, &users))
	assert.Empty(t, users)
}

func TestRegisterTaken(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice")

	_, err := e.directory.Register(context.Background(), "alice", "other-pass")
	assert.ErrorIs(t, err, apperr.ErrUsernameTaken)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

func TestRegisterIsCaseSensitive(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice")
	u := e.register(t, "Alice")
	assert.Equal(t, "Alice", u.Username)
}

func TestRegisterRaceLeavesOneUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	const racers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		errs    []error
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.directory.Register(ctx, "racer", "secret1")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	for _, err := range errs {
		assert.ErrorIs(t, err, apperr.ErrUsernameTaken)
	}

	var users []models.User
	require.NoError(t, e.store.Find(ctx, store.Query{
		Collection: CollUsers,
		Filters:    []store.Filter{store.Eq("username", "racer")},
	}, &users))
	assert.Len(t, users, 1)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")

	u, err := e.directory.Login(ctx, "alice", "secret-alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)

	_, err = e.directory.Login(ctx, "nobody", "secret-alice")
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)

	_, err = e.directory.Login(ctx, "ALICE", "secret-alice")
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestLoginWrongPasswordChangesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")

	before, err := e.directory.Get(ctx, alice.ID)
	require.NoError(t, err)

	_, err = e.directory.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, apperr.ErrBadPassword)
	assert.Equal(t, apperr.CodeAuth, apperr.CodeOf(err))

	after, err := e.directory.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdateProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")

	_, err := e.directory.UpdateProfile(ctx, alice.ID, strings.Repeat("x", 51), 2)
	assert.ErrorIs(t, err, apperr.ErrBioTooLong)

	_, err = e.directory.UpdateProfile(ctx, alice.ID, "ok", 6)
	assert.ErrorIs(t, err, apperr.ErrInvalidAvatarSeed)

	stored, err := e.directory.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultBio, stored.Bio)

	bio := strings.Repeat("é", 50)
	u, err := e.directory.UpdateProfile(ctx, alice.ID, bio, 3)
	require.NoError(t, err)
	assert.Equal(t, bio, u.Bio)
	assert.Equal(t, 3, u.AvatarSeed)
	assert.Equal(t, "alice", u.Username)

	_, err = e.directory.UpdateProfile(ctx, "missing", "ok", 1)
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestUpdatePassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")

	assert.ErrorIs(t, e.directory.UpdatePassword(ctx, alice.ID, "abc"), apperr.ErrPasswordTooShort)
	require.NoError(t, e.directory.UpdatePassword(ctx, alice.ID, "newpass"))

	_, err := e.directory.Login(ctx, "alice", "secret-alice")
	assert.ErrorIs(t, err, apperr.ErrBadPassword)
	_, err = e.directory.Login(ctx, "alice", "newpass")
	assert.NoError(t, err)
}

func TestSearch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")

	got, err := e.directory.Search(ctx, "alice", bob.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, alice.ID, got[0].ID)

	got, err = e.directory.Search(ctx, "alice", alice.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = e.directory.Search(ctx, "ali", bob.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = e.directory.Search(ctx, "", bob.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWatchProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.register(t, "alice")

	rec := newRecorder[*models.User]()
	sub, err := e.directory.WatchProfile(ctx, alice.ID, rec.fn)
	require.NoError(t, err)
	defer sub.Close()

	rec.waitFor(t, func(u *models.User) bool { return u != nil && u.Bio == models.DefaultBio })

	_, err = e.directory.UpdateProfile(ctx, alice.ID, "new bio", 4)
	require.NoError(t, err)
	got := rec.waitFor(t, func(u *models.User) bool { return u != nil && u.Bio == "new bio" })
	assert.Equal(t, 4, got.AvatarSeed)
}
