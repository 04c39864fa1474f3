package store

import (
	"context"
	"sync"
)

// Notifier carries "collection changed" signals from writers to live
// subscriptions, possibly across processes.
type Notifier interface {
	Publish(ctx context.Context, collection string) error
	// Listen returns a one-slot channel that receives a signal after each
	// change to collection. It is closed once ctx is done.
	Listen(ctx context.Context, collection string) (<-chan struct{}, error)
}

// LocalNotifier fans change signals out to listeners in this process.
type LocalNotifier struct {
	mu        sync.Mutex
	listeners map[string]map[chan struct{}]struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{listeners: make(map[string]map[chan struct{}]struct{})}
}

func (n *LocalNotifier) Publish(_ context.Context, collection string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.listeners[collection] {
		Signal(ch)
	}
	return nil
}

func (n *LocalNotifier) Listen(ctx context.Context, collection string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	set, ok := n.listeners[collection]
	if !ok {
		set = make(map[chan struct{}]struct{})
		n.listeners[collection] = set
	}
	set[ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.listeners[collection], ch)
		if len(n.listeners[collection]) == 0 {
			delete(n.listeners, collection)
		}
		n.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}
