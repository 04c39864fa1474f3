package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/AnshRaj112/palchat-backend/internal/store"
	"github.com/AnshRaj112/palchat-backend/pkg/apperr"
)

const PreviewLength = 80

// Friendships is the registry of two-party chats.
type Friendships struct {
	store  store.Store
	logger *slog.Logger
}

func NewFriendships(st store.Store, logger *slog.Logger) *Friendships {
	return &Friendships{store: st, logger: logger}
}

func forUserQuery(userID string) store.Query {
	return store.Query{
		Collection: CollFriendships,
		Filters:    []store.Filter{store.Contains("users", userID)},
		OrderBy:    "lastMessageTime",
		Descending: true,
	}
}

func toChats(list []models.Friendship, userID string) []models.Chat {
	chats := make([]models.Chat, 0, len(list))
	for i := range list {
		chats = append(chats, list[i].ChatFor(userID))
	}
	return chats
}

// WatchForUser delivers the caller's chats, most recently active first, on
// every change to any friendship.
func (f *Friendships) WatchForUser(ctx context.Context, userID string, fn func([]models.Chat, error)) (store.Subscription, error) {
	sub, err := f.store.Subscribe(ctx, forUserQuery(userID), func(snap store.Snapshot) {
		var list []models.Friendship
		if err := snap.Decode(&list); err != nil {
			fn(nil, storeError(err, nil))
			return
		}
		fn(toChats(list, userID), nil)
	})
	if err != nil {
		return nil, storeError(err, nil)
	}
	return sub, nil
}

func (f *Friendships) ListForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	var list []models.Friendship
	if err := f.store.Find(ctx, forUserQuery(userID), &list); err != nil {
		return nil, storeError(err, nil)
	}
	return toChats(list, userID), nil
}

func (f *Friendships) Get(ctx context.Context, friendshipID string) (*models.Friendship, error) {
	var fs models.Friendship
	if err := f.store.Get(ctx, CollFriendships, friendshipID, &fs); err != nil {
		return nil, storeError(err, apperr.ErrFriendshipMissing)
	}
	return &fs, nil
}

// GetForMember loads the friendship and checks userID is one of its two
// members.
func (f *Friendships) GetForMember(ctx context.Context, friendshipID, userID string) (*models.Friendship, error) {
	fs, err := f.Get(ctx, friendshipID)
	if err != nil {
		return nil, err
	}
	if !fs.HasMember(userID) {
		return nil, apperr.ErrNotMember
	}
	return fs, nil
}

// Touch sets the preview and activity time. Concurrent touches from both
// members resolve last write wins.
func (f *Friendships) Touch(ctx context.Context, friendshipID, text string) error {
	err := f.store.Update(ctx, CollFriendships, friendshipID, store.Fields{
		"lastMessage":     Preview(text),
		"lastMessageTime": store.ServerTimestamp,
	})
	return storeError(err, apperr.ErrFriendshipMissing)
}

// Preview cuts text down to PreviewLength runes.
func Preview(text string) string {
	r := []rune(text)
	if len(r) <= PreviewLength {
		return text
	}
	return string(r[:PreviewLength])
}

// createForRequest materializes an accepted request. It reads both users
// through rw so that inside a transaction the snapshot is consistent with the
// status change.
func createForRequest(ctx context.Context, rw store.Tx, req *models.FriendRequest) (string, error) {
	details := make([]models.UserSummary, 0, 2)
	for _, id := range []string{req.FromID, req.ToID} {
		var u models.User
		err := rw.Get(ctx, CollUsers, id, &u)
		if errors.Is(err, store.ErrNotFound) {
			// The peer resolves to a placeholder later.
			continue
		}
		if err != nil {
			return "", err
		}
		details = append(details, u.Summary())
	}

	fs := models.Friendship{
		Users:       []string{req.FromID, req.ToID},
		UserDetails: details,
		LastMessage: models.AcceptedPreview,
		RequestID:   req.ID,
	}
	return rw.Create(ctx, CollFriendships, fs,
		store.WithServerTimestamp("lastMessageTime"),
		store.WithServerTimestamp("createdAt"),
	)
}

// Reconcile creates the friendship for every accepted request that lacks
// one. It covers stores where accepting cannot run as a transaction.
func (f *Friendships) Reconcile(ctx context.Context) (int, error) {
	var accepted []models.FriendRequest
	err := f.store.Find(ctx, store.Query{
		Collection: CollFriendRequests,
		Filters:    []store.Filter{store.Eq("status", string(models.RequestAccepted))},
	}, &accepted)
	if err != nil {
		return 0, storeError(err, nil)
	}

	created := 0
	for i := range accepted {
		req := &accepted[i]
		var existing []models.Friendship
		err := f.store.Find(ctx, store.Query{
			Collection: CollFriendships,
			Filters:    []store.Filter{store.Eq("requestId", req.ID)},
			Limit:      1,
		}, &existing)
		if err != nil {
			return created, storeError(err, nil)
		}
		if len(existing) > 0 {
			continue
		}

		id, err := createForRequest(ctx, f.store, req)
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return created, storeError(err, nil)
		}
		f.logger.Info("reconciled missing friendship", "request_id", req.ID, "friendship_id", id)
		created++
	}
	return created, nil
}

// StartReconcileLoop runs Reconcile every interval until ctx is done.
func (f *Friendships) StartReconcileLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := f.Reconcile(ctx)
				if err != nil {
					f.logger.Error("friendship reconcile failed", "error", err)
					continue
				}
				if n > 0 {
					f.logger.Warn("friendship reconcile repaired records", "count", n)
				}
			}
		}
	}()
}
