package store

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// Loader runs a subscribed query against the current committed state.
type Loader func(ctx context.Context) ([]bson.Raw, error)

type loopSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	onStop func()
}

func (s *loopSubscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		if s.onStop != nil {
			s.onStop()
		}
	})
}

// Watch delivers a snapshot right away and then once per signal on wake,
// until ctx is cancelled, wake is closed or the subscription is closed.
// Signals that arrive while a delivery is running coalesce into one reload,
// so a slow consumer sees the latest state rather than a backlog.
func Watch(ctx context.Context, wake <-chan struct{}, load Loader, fn func(Snapshot), onStop func()) Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &loopSubscription{cancel: cancel, done: make(chan struct{}), onStop: onStop}

	deliver := func() {
		docs, err := load(ctx)
		if ctx.Err() != nil {
			return
		}
		fn(Snapshot{Docs: docs, Err: err})
	}

	go func() {
		defer close(sub.done)
		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-wake:
				if !ok {
					return
				}
				deliver()
			}
		}
	}()

	return sub
}

// Signal does a non-blocking send on a one-slot wake channel.
func Signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
