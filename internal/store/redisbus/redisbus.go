// Package redisbus carries store change signals between server instances over
// Redis pub/sub.
package redisbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AnshRaj112/palchat-backend/internal/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "store:changed:"

type changeEvent struct {
	Collection string    `json:"collection"`
	Origin     string    `json:"origin"`
	At         time.Time `json:"at"`
}

// Notifier publishes one message per write and runs a single pattern
// subscription per process that fans signals out to local listeners.
type Notifier struct {
	client *redis.Client
	logger *slog.Logger
	local  *store.LocalNotifier
	origin string

	startOnce sync.Once
}

var _ store.Notifier = (*Notifier)(nil)

func New(client *redis.Client, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client: client,
		logger: logger,
		local:  store.NewLocalNotifier(),
		origin: uuid.NewString(),
	}
}

// Start runs the subscriber loop until ctx is done. Calling it more than once
// is harmless.
func (n *Notifier) Start(ctx context.Context) {
	n.startOnce.Do(func() {
		go n.run(ctx)
	})
}

func (n *Notifier) Publish(ctx context.Context, collection string) error {
	// Local listeners do not wait for the Redis round trip.
	n.local.Publish(ctx, collection)

	data, err := json.Marshal(changeEvent{Collection: collection, Origin: n.origin, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, channelPrefix+collection, data).Err()
}

func (n *Notifier) Listen(ctx context.Context, collection string) (<-chan struct{}, error) {
	return n.local.Listen(ctx, collection)
}

func (n *Notifier) run(ctx context.Context) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		func() {
			pubsub := n.client.PSubscribe(ctx, channelPrefix+"*")
			defer pubsub.Close()

			n.logger.Info("store change subscriber started", "pattern", channelPrefix+"*")

			for {
				msg, err := pubsub.ReceiveMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					n.logger.Warn("store change subscriber error", "error", err, "retry_in", backoff)
					select {
					case <-ctx.Done():
					case <-time.After(backoff):
					}
					backoff *= 2
					if backoff > 30*time.Second {
						backoff = 30 * time.Second
					}
					return
				}

				backoff = time.Second

				var event changeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					n.logger.Warn("bad store change payload", "channel", msg.Channel, "error", err)
					continue
				}
				if event.Origin == n.origin {
					continue
				}
				if event.Collection == "" {
					event.Collection = strings.TrimPrefix(msg.Channel, channelPrefix)
				}
				n.local.Publish(ctx, event.Collection)
			}
		}()
	}
}
