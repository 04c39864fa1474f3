package mongostore

import (
	"context"
	"strings"

	"github.com/AnshRaj112/palchat-backend/internal/store"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
)

// illegalOperation is the server code for "Transaction numbers are only
// allowed on a replica set member or mongos".
const illegalOperation = 20

type tx struct {
	s       *Store
	touched map[string]struct{}
}

// RunTransaction needs a replica set or mongos. On a standalone server it
// returns store.ErrTxUnsupported without having written anything.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sess, err := s.db.Client().StartSession()
	if err != nil {
		return errors.Wrap(err, "mongostore.RunTransaction.StartSession")
	}
	defer sess.EndSession(ctx)

	var t *tx
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		// WithTransaction may retry the callback; start every attempt clean.
		t = &tx{s: s, touched: make(map[string]struct{})}
		return nil, fn(sc, t)
	})
	if err != nil {
		if isTxUnsupported(err) {
			return store.ErrTxUnsupported
		}
		return err
	}

	for c := range t.touched {
		s.publish(ctx, c)
	}
	return nil
}

func isTxUnsupported(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == illegalOperation {
		return true
	}
	return strings.Contains(err.Error(), "Transaction numbers are only allowed")
}

func (t *tx) Get(ctx context.Context, collection, id string, dest any) error {
	return t.s.Get(ctx, collection, id, dest)
}

func (t *tx) Find(ctx context.Context, q store.Query, dest any) error {
	return t.s.Find(ctx, q, dest)
}

func (t *tx) Create(ctx context.Context, collection string, doc any, opts ...store.WriteOption) (string, error) {
	id, err := t.s.create(ctx, collection, doc, opts...)
	if err == nil {
		t.touched[collection] = struct{}{}
	}
	return id, err
}

func (t *tx) Set(ctx context.Context, collection, id string, doc any) error {
	err := t.s.set(ctx, collection, id, doc)
	if err == nil {
		t.touched[collection] = struct{}{}
	}
	return err
}

func (t *tx) Update(ctx context.Context, collection, id string, fields store.Fields) error {
	_, err := t.UpdateWhere(ctx, collection, id, nil, fields)
	return err
}

func (t *tx) UpdateWhere(ctx context.Context, collection, id string, guard []store.Filter, fields store.Fields) (bool, error) {
	ok, err := t.s.updateWhere(ctx, collection, id, guard, fields)
	if ok {
		t.touched[collection] = struct{}{}
	}
	return ok, err
}
