// Package mongostore implements store.Store on MongoDB. Change signals go
// through a store.Notifier so live queries work across server instances.
package mongostore

import (
	"context"
	"log/slog"
	"strings"

	"github.com/AnshRaj112/palchat-backend/internal/store"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	db       *mongo.Database
	clock    *store.Clock
	notifier store.Notifier
	logger   *slog.Logger
}

var (
	_ store.Store   = (*Store)(nil)
	_ store.Indexer = (*Store)(nil)
)

func New(db *mongo.Database, notifier store.Notifier, logger *slog.Logger) *Store {
	if notifier == nil {
		notifier = store.NewLocalNotifier()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:       db,
		clock:    store.NewClock(nil),
		notifier: notifier,
		logger:   logger,
	}
}

func (s *Store) publish(ctx context.Context, collection string) {
	if err := s.notifier.Publish(ctx, collection); err != nil {
		s.logger.Warn("change notification failed", "collection", collection, "error", err)
	}
}

func (s *Store) Get(ctx context.Context, collection, id string, dest any) error {
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(dest)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "mongostore.Get.FindOne")
	}
	return nil
}

func (s *Store) Find(ctx context.Context, q store.Query, dest any) error {
	docs, err := s.load(ctx, q)
	if err != nil {
		return err
	}
	return store.DecodeAll(docs, dest)
}

func (s *Store) load(ctx context.Context, q store.Query) ([]bson.Raw, error) {
	opts := options.Find()
	dir := 1
	if q.Descending {
		dir = -1
	}
	if q.OrderBy != "" {
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.db.Collection(q.Collection).Find(ctx, buildFilter(q.Filters), opts)
	if err != nil {
		return nil, errors.Wrap(err, "mongostore.Find")
	}
	defer cur.Close(ctx)

	var docs []bson.Raw
	for cur.Next(ctx) {
		docs = append(docs, append(bson.Raw(nil), cur.Current...))
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrap(err, "mongostore.Find.Cursor")
	}
	return docs, nil
}

func (s *Store) Create(ctx context.Context, collection string, doc any, opts ...store.WriteOption) (string, error) {
	id, err := s.create(ctx, collection, doc, opts...)
	if err != nil {
		return "", err
	}
	s.publish(ctx, collection)
	return id, nil
}

func (s *Store) create(ctx context.Context, collection string, doc any, opts ...store.WriteOption) (string, error) {
	m, id, err := store.PrepareCreate(doc, s.clock.Now, opts...)
	if err != nil {
		return "", err
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", store.ErrDuplicate
		}
		return "", errors.Wrap(err, "mongostore.Create.InsertOne")
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, doc any) error {
	if err := s.set(ctx, collection, id, doc); err != nil {
		return err
	}
	s.publish(ctx, collection)
	return nil
}

func (s *Store) set(ctx context.Context, collection, id string, doc any) error {
	m, err := store.ToM(doc)
	if err != nil {
		return err
	}
	m["_id"] = id
	_, err = s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, m, options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	return errors.Wrap(err, "mongostore.Set.ReplaceOne")
}

func (s *Store) Update(ctx context.Context, collection, id string, fields store.Fields) error {
	_, err := s.UpdateWhere(ctx, collection, id, nil, fields)
	return err
}

func (s *Store) UpdateWhere(ctx context.Context, collection, id string, guard []store.Filter, fields store.Fields) (bool, error) {
	ok, err := s.updateWhere(ctx, collection, id, guard, fields)
	if err != nil || !ok {
		return ok, err
	}
	s.publish(ctx, collection)
	return true, nil
}

func (s *Store) updateWhere(ctx context.Context, collection, id string, guard []store.Filter, fields store.Fields) (bool, error) {
	filter := buildFilter(guard)
	filter["_id"] = id

	coll := s.db.Collection(collection)
	res, err := coll.UpdateOne(ctx, filter, bson.M{"$set": store.ResolveFields(fields, s.clock.Now)})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, store.ErrDuplicate
		}
		return false, errors.Wrap(err, "mongostore.UpdateWhere.UpdateOne")
	}
	if res.MatchedCount > 0 {
		return true, nil
	}

	// Tell "guard failed" apart from "no such document".
	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, errors.Wrap(err, "mongostore.UpdateWhere.CountDocuments")
	}
	if n == 0 {
		return false, store.ErrNotFound
	}
	return false, nil
}

func (s *Store) EnsureUnique(ctx context.Context, collection, field string) error {
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetName("uniq_" + field).SetUnique(true),
	}
	if _, err := s.db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return errors.Wrap(err, "mongostore.EnsureUnique.CreateOne")
	}
	return nil
}

// EnsureIndex adds a plain ascending index. Used at startup for the fields the
// live queries filter on.
func (s *Store) EnsureIndex(ctx context.Context, collection string, fields ...string) error {
	keys := bson.D{}
	for _, f := range fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	model := mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetName("idx_" + strings.Join(fields, "_")),
	}
	_, err := s.db.Collection(collection).Indexes().CreateOne(ctx, model)
	return errors.Wrap(err, "mongostore.EnsureIndex.CreateOne")
}

func (s *Store) Subscribe(ctx context.Context, q store.Query, fn func(store.Snapshot)) (store.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	wake, err := s.notifier.Listen(subCtx, q.Collection)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "mongostore.Subscribe.Listen")
	}
	load := func(ctx context.Context) ([]bson.Raw, error) { return s.load(ctx, q) }
	return store.Watch(subCtx, wake, load, fn, cancel), nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// buildFilter ANDs the filters together. A contains filter must not match a
// scalar field, so it is expressed with $elemMatch rather than plain equality.
func buildFilter(filters []store.Filter) bson.M {
	clauses := make(bson.A, 0, len(filters))
	for _, f := range filters {
		switch f.Op {
		case store.OpContains:
			clauses = append(clauses, bson.M{f.Field: bson.M{"$elemMatch": bson.M{"$eq": f.Value}}})
		default:
			clauses = append(clauses, bson.M{f.Field: f.Value})
		}
	}
	switch len(clauses) {
	case 0:
		return bson.M{}
	case 1:
		return clauses[0].(bson.M)
	default:
		return bson.M{"$and": clauses}
	}
}
