package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/AnshRaj112/palchat-backend/internal/store"
	"github.com/AnshRaj112/palchat-backend/pkg/apperr"
	"github.com/redis/go-redis/v9"
)

// LocalState holds the device-side "bound application user id" key, one per
// principal. Load returns "" when nothing is bound.
type LocalState interface {
	Load(ctx context.Context, principalID string) (string, error)
	Save(ctx context.Context, principalID, userID string) error
	Clear(ctx context.Context, principalID string) error
}

// Identity keeps the principal -> user binding: the server record in the
// document store and the device key in LocalState.
type Identity struct {
	store     store.Store
	local     LocalState
	directory *Directory
	logger    *slog.Logger
	now       func() time.Time
}

func NewIdentity(st store.Store, local LocalState, directory *Directory, logger *slog.Logger) *Identity {
	return &Identity{store: st, local: local, directory: directory, logger: logger, now: time.Now}
}

// BindLocalIdentity records that principalID is signed in as userID. The last
// bind wins.
func (i *Identity) BindLocalIdentity(ctx context.Context, principalID, userID string) error {
	rec := models.Identity{
		PrincipalID:       principalID,
		ApplicationUserID: userID,
		BoundAt:           i.now().UTC(),
	}
	if err := i.store.Set(ctx, CollIdentities, principalID, rec); err != nil {
		return storeError(err, nil)
	}
	if err := i.local.Save(ctx, principalID, userID); err != nil {
		return apperr.Store(err)
	}
	return nil
}

// ClearLocalIdentity forgets the device key. The server record stays.
func (i *Identity) ClearLocalIdentity(ctx context.Context, principalID string) error {
	if err := i.local.Clear(ctx, principalID); err != nil {
		return apperr.Store(err)
	}
	return nil
}

// Resume signs the principal back in from its device key. A key that points
// at a user who no longer exists is dropped.
func (i *Identity) Resume(ctx context.Context, principalID string) (*models.User, error) {
	userID, err := i.local.Load(ctx, principalID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if userID == "" {
		return nil, apperr.ErrNoIdentity
	}

	u, err := i.directory.Get(ctx, userID)
	if errors.Is(err, apperr.ErrUserNotFound) {
		i.logger.Info("dropping binding to missing user", "principal_id", principalID, "user_id", userID)
		if err := i.local.Clear(ctx, principalID); err != nil {
			i.logger.Warn("clear local identity failed", "principal_id", principalID, "error", err)
		}
		return nil, apperr.ErrNoIdentity
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// BoundUser reads the server-side binding.
func (i *Identity) BoundUser(ctx context.Context, principalID string) (string, error) {
	var rec models.Identity
	if err := i.store.Get(ctx, CollIdentities, principalID, &rec); err != nil {
		return "", storeError(err, apperr.ErrNoIdentity)
	}
	return rec.ApplicationUserID, nil
}

const (
	// DeviceBindingTTL is 7 days, refreshed on every successful read.
	DeviceBindingTTL       = 7 * 24 * time.Hour
	DeviceBindingKeyPrefix = "device_binding:"
)

// RedisLocalState keeps device keys in Redis with a sliding expiry.
type RedisLocalState struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocalState(client *redis.Client) *RedisLocalState {
	return &RedisLocalState{client: client, ttl: DeviceBindingTTL}
}

func (r *RedisLocalState) Load(ctx context.Context, principalID string) (string, error) {
	userID, err := r.client.GetEx(ctx, DeviceBindingKeyPrefix+principalID, r.ttl).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return userID, err
}

func (r *RedisLocalState) Save(ctx context.Context, principalID, userID string) error {
	return r.client.Set(ctx, DeviceBindingKeyPrefix+principalID, userID, r.ttl).Err()
}

func (r *RedisLocalState) Clear(ctx context.Context, principalID string) error {
	return r.client.Del(ctx, DeviceBindingKeyPrefix+principalID).Err()
}

// FileLocalState keeps device keys in a small JSON file, for single-node
// setups without Redis.
type FileLocalState struct {
	path string
	mu   sync.Mutex
}

func NewFileLocalState(path string) *FileLocalState {
	return &FileLocalState{path: path}
}

func (f *FileLocalState) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	bindings := map[string]string{}
	if len(data) == 0 {
		return bindings, nil
	}
	if err := json.Unmarshal(data, &bindings); err != nil {
		return nil, err
	}
	return bindings, nil
}

// write replaces the file atomically.
func (f *FileLocalState) write(bindings map[string]string) error {
	data, err := json.MarshalIndent(bindings, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileLocalState) Load(_ context.Context, principalID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bindings, err := f.read()
	if err != nil {
		return "", err
	}
	return bindings[principalID], nil
}

func (f *FileLocalState) Save(_ context.Context, principalID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bindings, err := f.read()
	if err != nil {
		return err
	}
	bindings[principalID] = userID
	return f.write(bindings)
}

func (f *FileLocalState) Clear(_ context.Context, principalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bindings, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := bindings[principalID]; !ok {
		return nil
	}
	delete(bindings, principalID)
	return f.write(bindings)
}
