package memstore

import (
	"context"

	"github.com/AnshRaj112/palchat-backend/internal/store"
)

// tx runs with the store write lock held for its whole life. Every write
// records an undo step; a failed transaction replays them in reverse.
type tx struct {
	s       *Store
	undo    []func()
	touched map[string]struct{}
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	t := &tx{s: s, touched: make(map[string]struct{})}
	err := fn(ctx, t)
	if err != nil {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	for c := range t.touched {
		s.notifier.Publish(ctx, c)
	}
	return nil
}

func (t *tx) snapshot(collection, id string) {
	c := t.s.coll(collection)
	prev, existed := c.docs[id]
	var prevDoc = func() *record {
		if !existed {
			return nil
		}
		cp := *prev
		return &cp
	}()
	t.undo = append(t.undo, func() {
		if prevDoc == nil {
			delete(c.docs, id)
			return
		}
		c.docs[id] = prevDoc
	})
	t.touched[collection] = struct{}{}
}

func (t *tx) Get(ctx context.Context, collection, id string, dest any) error {
	return t.s.get(collection, id, dest)
}

func (t *tx) Find(ctx context.Context, q store.Query, dest any) error {
	docs, err := t.s.query(q)
	if err != nil {
		return err
	}
	return store.DecodeAll(docs, dest)
}

func (t *tx) Create(ctx context.Context, collection string, doc any, opts ...store.WriteOption) (string, error) {
	id, err := t.s.create(collection, doc, opts...)
	if err != nil {
		return "", err
	}
	t.undo = append(t.undo, func() { delete(t.s.coll(collection).docs, id) })
	t.touched[collection] = struct{}{}
	return id, nil
}

func (t *tx) Set(ctx context.Context, collection, id string, doc any) error {
	t.snapshot(collection, id)
	return t.s.set(collection, id, doc)
}

func (t *tx) Update(ctx context.Context, collection, id string, fields store.Fields) error {
	_, err := t.UpdateWhere(ctx, collection, id, nil, fields)
	return err
}

func (t *tx) UpdateWhere(ctx context.Context, collection, id string, guard []store.Filter, fields store.Fields) (bool, error) {
	t.snapshot(collection, id)
	return t.s.updateWhere(collection, id, guard, fields)
}
