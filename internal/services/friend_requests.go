package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/AnshRaj112/palchat-backend/internal/store"
	"github.com/AnshRaj112/palchat-backend/pkg/apperr"
)

// FriendRequests runs the pending -> accepted|rejected handshake.
type FriendRequests struct {
	store     store.Store
	directory *Directory
	logger    *slog.Logger
}

func NewFriendRequests(st store.Store, directory *Directory, logger *slog.Logger) *FriendRequests {
	return &FriendRequests{store: st, directory: directory, logger: logger}
}

// Send always creates a new pending request, even if the pair already has one.
func (r *FriendRequests) Send(ctx context.Context, from *models.User, toID string) (*models.FriendRequest, error) {
	if toID == "" {
		return nil, apperr.Validation("recipient is required")
	}
	if from.ID == toID {
		return nil, apperr.ErrSelfRequest
	}
	if _, err := r.directory.Get(ctx, toID); err != nil {
		return nil, err
	}

	req := models.FriendRequest{
		FromID:         from.ID,
		FromName:       from.Username,
		FromAvatarSeed: from.AvatarSeed,
		ToID:           toID,
		Status:         models.RequestPending,
	}
	id, err := r.store.Create(ctx, CollFriendRequests, req, store.WithServerTimestamp("timestamp"))
	if err != nil {
		return nil, storeError(err, nil)
	}
	r.logger.Info("friend request sent", "request_id", id, "from_id", from.ID, "to_id", toID)
	return r.Get(ctx, id)
}

func (r *FriendRequests) Get(ctx context.Context, requestID string) (*models.FriendRequest, error) {
	var req models.FriendRequest
	if err := r.store.Get(ctx, CollFriendRequests, requestID, &req); err != nil {
		return nil, storeError(err, apperr.ErrRequestNotFound)
	}
	return &req, nil
}

func incomingQuery(userID string) store.Query {
	return store.Query{
		Collection: CollFriendRequests,
		Filters: []store.Filter{
			store.Eq("toId", userID),
			store.Eq("status", string(models.RequestPending)),
		},
		OrderBy: "timestamp",
	}
}

// WatchIncoming delivers the pending requests addressed to userID, oldest
// first.
func (r *FriendRequests) WatchIncoming(ctx context.Context, userID string, fn func([]models.FriendRequest, error)) (store.Subscription, error) {
	sub, err := r.store.Subscribe(ctx, incomingQuery(userID), func(snap store.Snapshot) {
		var list []models.FriendRequest
		if err := snap.Decode(&list); err != nil {
			fn(nil, storeError(err, nil))
			return
		}
		fn(list, nil)
	})
	if err != nil {
		return nil, storeError(err, nil)
	}
	return sub, nil
}

func (r *FriendRequests) ListIncoming(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	list := []models.FriendRequest{}
	if err := r.store.Find(ctx, incomingQuery(userID), &list); err != nil {
		return nil, storeError(err, nil)
	}
	return list, nil
}

// Respond lets the recipient settle a pending request once. Accepting marks
// the request and creates the friendship in one transaction; on stores that
// cannot do that the two writes run in order and Friendships.Reconcile
// repairs a crash between them.
func (r *FriendRequests) Respond(ctx context.Context, requestID, responderID string, action models.RequestAction) (*models.FriendRequest, error) {
	switch action {
	case models.ActionAccept:
		err := r.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			return r.accept(ctx, tx, requestID, responderID)
		})
		if errors.Is(err, store.ErrTxUnsupported) {
			r.logger.Warn("store has no transactions, accepting without one", "request_id", requestID)
			err = r.accept(ctx, r.store, requestID, responderID)
		}
		if err != nil {
			return nil, storeError(err, nil)
		}
	case models.ActionReject:
		if err := r.settle(ctx, r.store, requestID, responderID, models.RequestRejected); err != nil {
			return nil, storeError(err, nil)
		}
	default:
		return nil, apperr.ErrInvalidAction
	}

	r.logger.Info("friend request answered", "request_id", requestID, "action", string(action))
	return r.Get(ctx, requestID)
}

func (r *FriendRequests) accept(ctx context.Context, tx store.Tx, requestID, responderID string) error {
	if err := r.settle(ctx, tx, requestID, responderID, models.RequestAccepted); err != nil {
		return err
	}
	var req models.FriendRequest
	if err := tx.Get(ctx, CollFriendRequests, requestID, &req); err != nil {
		return err
	}
	_, err := createForRequest(ctx, tx, &req)
	return err
}

// settle moves a pending request to status. The pending guard makes a second
// answer fail instead of overwriting the first.
func (r *FriendRequests) settle(ctx context.Context, tx store.Tx, requestID, responderID string, status models.RequestStatus) error {
	var req models.FriendRequest
	if err := tx.Get(ctx, CollFriendRequests, requestID, &req); err != nil {
		return storeError(err, apperr.ErrRequestNotFound)
	}
	if req.ToID != responderID {
		return apperr.ErrNotRecipient
	}
	if req.Status.Terminal() {
		return apperr.ErrRequestResolved
	}

	ok, err := tx.UpdateWhere(ctx, CollFriendRequests, requestID,
		[]store.Filter{store.Eq("status", string(models.RequestPending))},
		store.Fields{
			"status":      string(status),
			"respondedAt": store.ServerTimestamp,
		})
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrRequestResolved
	}
	return nil
}
