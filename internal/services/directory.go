package services

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/AnshRaj112/palchat-backend/internal/store"
	"github.com/AnshRaj112/palchat-backend/pkg/apperr"
	"github.com/AnshRaj112/palchat-backend/pkg/utils"
)

// Directory owns user records: registration, login and profile edits.
type Directory struct {
	store  store.Store
	hasher utils.PasswordHasher
	logger *slog.Logger

	// AvatarSeed picks the seed for new accounts.
	AvatarSeed func() int
}

func NewDirectory(st store.Store, hasher utils.PasswordHasher, logger *slog.Logger) *Directory {
	if hasher == nil {
		hasher = utils.NewArgon2Hasher()
	}
	return &Directory{
		store:  st,
		hasher: hasher,
		logger: logger,
		AvatarSeed: func() int {
			return models.MinAvatarSeed + rand.IntN(models.MaxAvatarSeed-models.MinAvatarSeed+1)
		},
	}
}

// FindByUsername is an exact, case-sensitive lookup.
func (d *Directory) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var users []models.User
	err := d.store.Find(ctx, store.Query{
		Collection: CollUsers,
		Filters:    []store.Filter{store.Eq("username", username)},
		Limit:      1,
	}, &users)
	if err != nil {
		return nil, storeError(err, nil)
	}
	if len(users) == 0 {
		return nil, apperr.ErrUserNotFound
	}
	return &users[0], nil
}

// Search returns the user whose username matches query exactly, unless that
// user is excludeUserID. An empty query matches nobody.
func (d *Directory) Search(ctx context.Context, query, excludeUserID string) ([]models.UserSummary, error) {
	out := []models.UserSummary{}
	if query == "" {
		return out, nil
	}
	u, err := d.FindByUsername(ctx, query)
	if errors.Is(err, apperr.ErrUserNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if u.ID != excludeUserID {
		out = append(out, u.Summary())
	}
	return out, nil
}

func (d *Directory) Get(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	if err := d.store.Get(ctx, CollUsers, userID, &u); err != nil {
		return nil, storeError(err, apperr.ErrUserNotFound)
	}
	return &u, nil
}

// Register creates an account. Availability is checked before and again right
// after hashing; the unique index on username settles any race that is left.
func (d *Directory) Register(ctx context.Context, username, password string) (*models.User, error) {
	if err := utils.ValidateUsername(username); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if err := utils.ValidatePassword(password); err != nil {
		return nil, apperr.ErrPasswordTooShort
	}

	if err := d.checkAvailable(ctx, username); err != nil {
		return nil, err
	}

	hash, err := d.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "operation failed", err)
	}

	if err := d.checkAvailable(ctx, username); err != nil {
		return nil, err
	}

	user := models.User{
		Username:     username,
		PasswordHash: hash,
		Bio:          models.DefaultBio,
		AvatarSeed:   d.AvatarSeed(),
	}
	id, err := d.store.Create(ctx, CollUsers, user,
		store.WithServerTimestamp("createdAt"),
		store.WithServerTimestamp("updatedAt"),
	)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperr.ErrUsernameTaken
	}
	if err != nil {
		return nil, storeError(err, nil)
	}

	d.logger.Info("user registered", "user_id", id, "username", username)
	return d.Get(ctx, id)
}

func (d *Directory) checkAvailable(ctx context.Context, username string) error {
	_, err := d.FindByUsername(ctx, username)
	switch {
	case err == nil:
		return apperr.ErrUsernameTaken
	case errors.Is(err, apperr.ErrUserNotFound):
		return nil
	default:
		return err
	}
}

// Login never writes. A miss is NotFound and a wrong password is AuthError.
func (d *Directory) Login(ctx context.Context, username, password string) (*models.User, error) {
	u, err := d.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	ok, err := d.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		d.logger.Error("stored password hash unreadable", "user_id", u.ID, "error", err)
		return nil, apperr.Store(err)
	}
	if !ok {
		return nil, apperr.ErrBadPassword
	}
	return u, nil
}

func (d *Directory) UpdateProfile(ctx context.Context, userID, bio string, avatarSeed int) (*models.User, error) {
	if err := utils.ValidateBio(bio); err != nil {
		return nil, apperr.ErrBioTooLong
	}
	if avatarSeed < models.MinAvatarSeed || avatarSeed > models.MaxAvatarSeed {
		return nil, apperr.ErrInvalidAvatarSeed
	}

	err := d.store.Update(ctx, CollUsers, userID, store.Fields{
		"bio":        bio,
		"avatarSeed": avatarSeed,
		"updatedAt":  store.ServerTimestamp,
	})
	if err != nil {
		return nil, storeError(err, apperr.ErrUserNotFound)
	}
	return d.Get(ctx, userID)
}

func (d *Directory) UpdatePassword(ctx context.Context, userID, password string) error {
	if err := utils.ValidatePassword(password); err != nil {
		return apperr.ErrPasswordTooShort
	}
	hash, err := d.hasher.Hash(password)
	if err != nil {
		return apperr.Store(err)
	}
	err = d.store.Update(ctx, CollUsers, userID, store.Fields{
		"passwordHash": hash,
		"updatedAt":    store.ServerTimestamp,
	})
	return storeError(err, apperr.ErrUserNotFound)
}

// WatchProfile delivers the user's own record on every change. fn gets nil
// when the record is missing.
func (d *Directory) WatchProfile(ctx context.Context, userID string, fn func(*models.User, error)) (store.Subscription, error) {
	q := store.Query{
		Collection: CollUsers,
		Filters:    []store.Filter{store.Eq("_id", userID)},
		Limit:      1,
	}
	sub, err := d.store.Subscribe(ctx, q, func(snap store.Snapshot) {
		var users []models.User
		if err := snap.Decode(&users); err != nil {
			fn(nil, storeError(err, nil))
			return
		}
		if len(users) == 0 {
			fn(nil, nil)
			return
		}
		fn(&users[0], nil)
	})
	if err != nil {
		return nil, storeError(err, nil)
	}
	return sub, nil
}
