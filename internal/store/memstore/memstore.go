// Package memstore is an in-process implementation of store.Store. It backs
// the test suite and single-process development runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AnshRaj112/palchat-backend/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type record struct {
	seq uint64
	doc bson.M
}

type collection struct {
	docs   map[string]*record
	unique []string
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	seq         uint64
	clock       *store.Clock
	notifier    *store.LocalNotifier
	closed      bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return NewWithClock(store.NewClock(nil))
}

func NewWithClock(clock *store.Clock) *Store {
	return &Store{
		collections: make(map[string]*collection),
		clock:       clock,
		notifier:    store.NewLocalNotifier(),
	}
}

// coll must be called with the write lock held.
func (s *Store) coll(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]*record)}
		s.collections[name] = c
	}
	return c
}

func (s *Store) Get(ctx context.Context, collection, id string, dest any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(collection, id, dest)
}

func (s *Store) get(collection, id string, dest any) error {
	if s.closed {
		return store.ErrClosed
	}
	c, ok := s.collections[collection]
	if !ok {
		return store.ErrNotFound
	}
	rec, ok := c.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	return decode(rec.doc, dest)
}

func (s *Store) Find(ctx context.Context, q store.Query, dest any) error {
	docs, err := s.load(q)
	if err != nil {
		return err
	}
	return store.DecodeAll(docs, dest)
}

func (s *Store) load(q store.Query) ([]bson.Raw, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query(q)
}

func (s *Store) query(q store.Query) ([]bson.Raw, error) {
	if s.closed {
		return nil, store.ErrClosed
	}

	var matched []*record
	c, ok := s.collections[q.Collection]
	if !ok {
		return nil, nil
	}
	for _, rec := range c.docs {
		if matchAll(rec.doc, q.Filters) {
			matched = append(matched, rec)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if q.OrderBy != "" {
			c := compare(matched[i].doc[q.OrderBy], matched[j].doc[q.OrderBy])
			if c != 0 {
				if q.Descending {
					return c > 0
				}
				return c < 0
			}
		}
		if q.Descending {
			return matched[i].seq > matched[j].seq
		}
		return matched[i].seq < matched[j].seq
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]bson.Raw, 0, len(matched))
	for _, rec := range matched {
		raw, err := bson.Marshal(rec.doc)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, collection string, doc any, opts ...store.WriteOption) (string, error) {
	s.mu.Lock()
	id, err := s.create(collection, doc, opts...)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	s.notifier.Publish(ctx, collection)
	return id, nil
}

func (s *Store) create(collection string, doc any, opts ...store.WriteOption) (string, error) {
	if s.closed {
		return "", store.ErrClosed
	}
	m, id, err := store.PrepareCreate(doc, s.clock.Now, opts...)
	if err != nil {
		return "", err
	}
	c := s.coll(collection)
	if _, exists := c.docs[id]; exists {
		return "", store.ErrDuplicate
	}
	if err := s.checkUnique(c, id, m); err != nil {
		return "", err
	}
	s.seq++
	c.docs[id] = &record{seq: s.seq, doc: m}
	return id, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, doc any) error {
	s.mu.Lock()
	err := s.set(collection, id, doc)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notifier.Publish(ctx, collection)
	return nil
}

func (s *Store) set(collection, id string, doc any) error {
	if s.closed {
		return store.ErrClosed
	}
	m, err := store.ToM(doc)
	if err != nil {
		return err
	}
	m["_id"] = id
	c := s.coll(collection)
	if err := s.checkUnique(c, id, m); err != nil {
		return err
	}
	if rec, ok := c.docs[id]; ok {
		rec.doc = m
		return nil
	}
	s.seq++
	c.docs[id] = &record{seq: s.seq, doc: m}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields store.Fields) error {
	_, err := s.UpdateWhere(ctx, collection, id, nil, fields)
	return err
}

func (s *Store) UpdateWhere(ctx context.Context, collection, id string, guard []store.Filter, fields store.Fields) (bool, error) {
	s.mu.Lock()
	ok, err := s.updateWhere(collection, id, guard, fields)
	s.mu.Unlock()
	if err != nil || !ok {
		return ok, err
	}
	s.notifier.Publish(ctx, collection)
	return true, nil
}

func (s *Store) updateWhere(collection, id string, guard []store.Filter, fields store.Fields) (bool, error) {
	if s.closed {
		return false, store.ErrClosed
	}
	c := s.coll(collection)
	rec, ok := c.docs[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if !matchAll(rec.doc, guard) {
		return false, nil
	}

	next := make(bson.M, len(rec.doc))
	for k, v := range rec.doc {
		next[k] = v
	}
	for k, v := range store.ResolveFields(fields, s.clock.Now) {
		next[k] = v
	}
	// Round-trip so stored values have the same shape as created ones.
	norm, err := store.ToM(next)
	if err != nil {
		return false, err
	}
	if err := s.checkUnique(c, id, norm); err != nil {
		return false, err
	}
	rec.doc = norm
	return true, nil
}

func (s *Store) checkUnique(c *collection, id string, m bson.M) error {
	for _, field := range c.unique {
		v, ok := m[field]
		if !ok {
			continue
		}
		for otherID, rec := range c.docs {
			if otherID == id {
				continue
			}
			if ov, ok := rec.doc[field]; ok && compare(ov, v) == 0 {
				return store.ErrDuplicate
			}
		}
	}
	return nil
}

func (s *Store) EnsureUnique(ctx context.Context, collection, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collection)
	for _, f := range c.unique {
		if f == field {
			return nil
		}
	}
	seen := make(map[string]bool)
	for _, rec := range c.docs {
		key := fmt.Sprint(store.Normalize(rec.doc[field]))
		if seen[key] {
			return store.ErrDuplicate
		}
		seen[key] = true
	}
	c.unique = append(c.unique, field)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, q store.Query, fn func(store.Snapshot)) (store.Subscription, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, store.ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	wake, err := s.notifier.Listen(subCtx, q.Collection)
	if err != nil {
		cancel()
		return nil, err
	}
	load := func(context.Context) ([]bson.Raw, error) { return s.load(q) }
	return store.Watch(subCtx, wake, load, fn, cancel), nil
}

func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func decode(m bson.M, dest any) error {
	raw, err := bson.Marshal(m)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, dest)
}

func matchAll(doc bson.M, filters []store.Filter) bool {
	for _, f := range filters {
		if !match(doc, f) {
			return false
		}
	}
	return true
}

func match(doc bson.M, f store.Filter) bool {
	v, ok := doc[f.Field]
	if !ok {
		return false
	}
	switch f.Op {
	case store.OpContains:
		arr, ok := v.(primitive.A)
		if !ok {
			return false
		}
		for _, item := range arr {
			if compare(item, f.Value) == 0 {
				return true
			}
		}
		return false
	default:
		return compare(v, f.Value) == 0
	}
}

// compare orders strings, integers, floats, booleans and dates. Values of
// different kinds compare by their printed form so ordering stays total.
func compare(a, b any) int {
	a, b = store.Normalize(a), store.Normalize(b)
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case float64:
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case nil:
		if b == nil {
			return 0
		}
		return -1
	}
	if b == nil {
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
