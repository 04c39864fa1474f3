package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AnshRaj112/palchat-backend/internal/services"
	"github.com/AnshRaj112/palchat-backend/pkg/apperr"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	liveReadLimit    = 64 * 1024
	livePongWait     = 90 * time.Second
	livePingInterval = 30 * time.Second
	liveWriteWait    = 10 * time.Second
)

// CloseSessionEnded is the close code sent when the session behind a live
// connection ends.
const CloseSessionEnded = 4001

// LiveClientMessage is what a client sends over /ws/live.
type LiveClientMessage struct {
	Type  string `json:"type"` // "subscribe", "unsubscribe", "ping"
	Topic string `json:"topic,omitempty"`
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(h.AllowedOrigins) == 0 {
				return true
			}
			for _, o := range h.AllowedOrigins {
				if o == "*" || strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		},
	}
}

// liveOutbox keeps the newest pending event per topic. A slow socket only
// ever skips stale snapshots.
type liveOutbox struct {
	mu      sync.Mutex
	pending map[string]services.LiveEvent
	order   []string
	wake    chan struct{}
}

func newLiveOutbox() *liveOutbox {
	return &liveOutbox{pending: map[string]services.LiveEvent{}, wake: make(chan struct{}, 1)}
}

// outboxKey coalesces snapshots per topic. Events without a topic (pongs,
// protocol errors) only replace events of the same type.
func outboxKey(ev services.LiveEvent) string {
	if ev.Topic == "" {
		return "type:" + ev.Type
	}
	return "topic:" + ev.Topic
}

func (o *liveOutbox) push(ev services.LiveEvent) {
	key := outboxKey(ev)
	o.mu.Lock()
	if _, queued := o.pending[key]; !queued {
		o.order = append(o.order, key)
	}
	o.pending[key] = ev
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *liveOutbox) drain() []services.LiveEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]services.LiveEvent, 0, len(o.order))
	for _, key := range o.order {
		out = append(out, o.pending[key])
	}
	o.pending = map[string]services.LiveEvent{}
	o.order = o.order[:0]
	return out
}

// LiveWebSocket streams topic snapshots to a signed-in client. Clients send
// {"type":"subscribe","topic":...} and receive the full current result for
// that topic after every change.
func (h *Handler) LiveWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, found := h.session(w, r)
	if !found {
		return
	}

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	connID := uuid.NewString()
	topics := map[string]struct{}{}
	defer func() {
		for topic := range topics {
			h.Live.Unsubscribe(sess, connID, topic)
		}
	}()

	outbox := newLiveOutbox()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLive(ctx, conn, outbox, sess.Done())
		// Unblocks the reader when the write side failed first.
		cancel()
		_ = conn.Close()
	}()
	defer func() { <-done }()
	defer cancel()

	conn.SetReadLimit(liveReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})

	h.Logger.Debug("live connection opened", "conn_id", connID, "user_id", sess.UserID())
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg LiveClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			outbox.push(services.LiveEvent{Type: "error", Error: "invalid message"})
			continue
		}
		msg.Topic = strings.TrimSpace(msg.Topic)

		switch msg.Type {
		case "subscribe":
			if err := h.Live.Subscribe(ctx, sess, connID, msg.Topic, outbox.push); err != nil {
				outbox.push(services.LiveEvent{Type: "error", Topic: msg.Topic, Error: apperr.MessageOf(err)})
				continue
			}
			topics[msg.Topic] = struct{}{}
		case "unsubscribe":
			h.Live.Unsubscribe(sess, connID, msg.Topic)
			delete(topics, msg.Topic)
		case "ping":
			_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
			outbox.push(services.LiveEvent{Type: "pong"})
		default:
			// Ignore unknown types
		}
	}
}

// writeLive sends queued events until ctx is done or the session ends. A
// session that ends (logout, a newer sign-in) closes the socket with
// CloseSessionEnded so the client knows to resume or sign in again.
func (h *Handler) writeLive(ctx context.Context, conn *websocket.Conn, outbox *liveOutbox, sessionDone <-chan struct{}) {
	ticker := time.NewTicker(livePingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(liveWriteWait))
			return
		case <-sessionDone:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(CloseSessionEnded, "session ended"),
				time.Now().Add(liveWriteWait))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		case <-outbox.wake:
			for _, ev := range outbox.drain() {
				_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			}
		}
	}
}
