package mongostore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AnshRaj112/palchat-backend/internal/store"
	"go.mongodb.org/mongo-driver/mongo"
)

// ChangeStreamNotifier turns MongoDB change streams into store change
// signals. Writes made by any client show up, so Publish has nothing to do.
// It requires a replica set.
type ChangeStreamNotifier struct {
	ctx    context.Context
	db     *mongo.Database
	logger *slog.Logger
	local  *store.LocalNotifier

	mu       sync.Mutex
	watching map[string]bool
}

var _ store.Notifier = (*ChangeStreamNotifier)(nil)

// NewChangeStreamNotifier watches collections lazily, one stream per
// collection, until ctx is done.
func NewChangeStreamNotifier(ctx context.Context, db *mongo.Database, logger *slog.Logger) *ChangeStreamNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeStreamNotifier{
		ctx:      ctx,
		db:       db,
		logger:   logger,
		local:    store.NewLocalNotifier(),
		watching: make(map[string]bool),
	}
}

func (n *ChangeStreamNotifier) Publish(context.Context, string) error { return nil }

func (n *ChangeStreamNotifier) Listen(ctx context.Context, collection string) (<-chan struct{}, error) {
	n.mu.Lock()
	if !n.watching[collection] {
		n.watching[collection] = true
		go n.watch(collection)
	}
	n.mu.Unlock()
	return n.local.Listen(ctx, collection)
}

func (n *ChangeStreamNotifier) watch(collection string) {
	backoff := time.Second
	for {
		if n.ctx.Err() != nil {
			return
		}

		err := func() error {
			cs, err := n.db.Collection(collection).Watch(n.ctx, mongo.Pipeline{})
			if err != nil {
				return err
			}
			defer cs.Close(context.Background())

			n.logger.Info("change stream started", "collection", collection)
			// Anything written while the stream was down is picked up by this
			// catch-up signal.
			n.local.Publish(n.ctx, collection)
			for cs.Next(n.ctx) {
				backoff = time.Second
				n.local.Publish(n.ctx, collection)
			}
			return cs.Err()
		}()
		if n.ctx.Err() != nil {
			return
		}

		n.logger.Warn("change stream interrupted", "collection", collection, "error", err, "retry_in", backoff)
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}
