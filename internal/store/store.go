// Package store defines the document store boundary the chat core runs on:
// keyed records, equality and membership queries, single-field ordering,
// live full-snapshot subscriptions and a store-assigned monotonic clock.
package store

import (
	"context"
	"errors"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	ErrNotFound      = errors.New("store: document not found")
	ErrDuplicate     = errors.New("store: unique constraint violated")
	ErrTxUnsupported = errors.New("store: transactions not supported by backend")
	ErrClosed        = errors.New("store: closed")
)

// Fields is a partial update. A value equal to ServerTimestamp is replaced by
// the store clock at write time.
type Fields map[string]any

type serverTimestamp struct{}

// ServerTimestamp marks a field to be stamped with the store clock.
var ServerTimestamp = serverTimestamp{}

type Op int

const (
	OpEq Op = iota
	// OpContains matches documents whose array field contains Value.
	OpContains
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, value any) Filter { return Filter{Field: field, Op: OpEq, Value: value} }

func Contains(field string, value any) Filter {
	return Filter{Field: field, Op: OpContains, Value: value}
}

type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	// Limit <= 0 means unbounded.
	Limit int
}

type WriteOptions struct {
	TimestampFields []string
}

type WriteOption func(*WriteOptions)

// WithServerTimestamp stamps field with the store clock on create.
func WithServerTimestamp(field string) WriteOption {
	return func(o *WriteOptions) {
		o.TimestampFields = append(o.TimestampFields, field)
	}
}

func ApplyWriteOptions(opts []WriteOption) WriteOptions {
	var o WriteOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

type Reader interface {
	// Get decodes the document with the given id into dest. ErrNotFound on miss.
	Get(ctx context.Context, collection, id string, dest any) error
	// Find decodes every matching document into dest, which must be a pointer
	// to a slice.
	Find(ctx context.Context, q Query, dest any) error
}

type Writer interface {
	// Create inserts doc and returns its id. An empty "_id" is assigned by the
	// store.
	Create(ctx context.Context, collection string, doc any, opts ...WriteOption) (string, error)
	// Set writes doc under id, replacing any previous document.
	Set(ctx context.Context, collection, id string, doc any) error
	Update(ctx context.Context, collection, id string, fields Fields) error
	// UpdateWhere applies fields only when the document still matches guard.
	// It reports whether the update happened.
	UpdateWhere(ctx context.Context, collection, id string, guard []Filter, fields Fields) (bool, error)
}

type Tx interface {
	Reader
	Writer
}

// Snapshot is the full result set of a subscribed query at one point in time.
type Snapshot struct {
	Docs []bson.Raw
	Err  error
}

func (s Snapshot) Decode(dest any) error {
	if s.Err != nil {
		return s.Err
	}
	return DecodeAll(s.Docs, dest)
}

type Subscription interface {
	// Close stops delivery. No callback runs after Close returns. It must not
	// be called from inside the subscription's own callback.
	Close()
}

type Store interface {
	Reader
	Writer
	// Subscribe delivers the current result set of q immediately and again
	// after every change to q's collection. Deliveries for one subscription
	// are serialized; each carries the whole result set.
	Subscribe(ctx context.Context, q Query, fn func(Snapshot)) (Subscription, error)
	// RunTransaction commits every write made through tx atomically, or none.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	EnsureUnique(ctx context.Context, collection, field string) error
	Close(ctx context.Context) error
}

// Indexer is implemented by stores that can add secondary indexes for the
// fields queries filter and sort on.
type Indexer interface {
	EnsureIndex(ctx context.Context, collection string, fields ...string) error
}

// DecodeAll decodes docs into dest, a pointer to a slice of any bson-decodable
// element type.
func DecodeAll(docs []bson.Raw, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return errors.New("store: dest must be a pointer to a slice")
	}
	slice := rv.Elem()
	elemType := slice.Type().Elem()
	out := reflect.MakeSlice(slice.Type(), 0, len(docs))
	for _, d := range docs {
		p := reflect.New(elemType)
		if err := bson.Unmarshal(d, p.Interface()); err != nil {
			return err
		}
		out = reflect.Append(out, p.Elem())
	}
	slice.Set(out)
	return nil
}
