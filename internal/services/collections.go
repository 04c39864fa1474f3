package services

import (
	"context"
	"errors"

	"github.com/AnshRaj112/palchat-backend/internal/store"
	"github.com/AnshRaj112/palchat-backend/pkg/apperr"
)

const (
	CollUsers          = "users"
	CollIdentities     = "identities"
	CollFriendRequests = "friend_requests"
	CollFriendships    = "friendships"
	CollMessages       = "messages"
)

// EnsureIndexes sets up the store-level constraints the services rely on.
// Called on startup from main once the store is connected.
func EnsureIndexes(ctx context.Context, st store.Store) error {
	if err := st.EnsureUnique(ctx, CollUsers, "username"); err != nil {
		return err
	}
	if err := st.EnsureUnique(ctx, CollFriendships, "requestId"); err != nil {
		return err
	}
	ix, ok := st.(store.Indexer)
	if !ok {
		return nil
	}
	for _, idx := range queryIndexes {
		if err := ix.EnsureIndex(ctx, idx.collection, idx.fields...); err != nil {
			return err
		}
	}
	return nil
}

// queryIndexes back the windowed and filtered queries the services run.
var queryIndexes = []struct {
	collection string
	fields     []string
}{
	{CollMessages, []string{"channelId", "timestamp"}},
	{CollFriendRequests, []string{"toId", "status", "timestamp"}},
	{CollFriendRequests, []string{"status"}},
	{CollFriendships, []string{"users"}},
}

// storeError converts a store failure into an AppError. A miss becomes
// notFound when one is given.
func storeError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if notFound != nil && errors.Is(err, store.ErrNotFound) {
		return notFound
	}
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Store(err)
}
