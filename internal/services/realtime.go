package services

import (
	"context"
	"strings"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/AnshRaj112/palchat-backend/internal/store"
	"github.com/AnshRaj112/palchat-backend/pkg/apperr"
)

const (
	TopicProfile          = "profile"
	TopicIncomingRequests = "incoming_requests"
	TopicFriendships      = "friendships"
	TopicChannelPrefix    = "channel:"
)

// LiveEvent is one snapshot pushed to a live client. Data is the whole
// current result for the topic; clients replace, never merge.
type LiveEvent struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Live opens topic subscriptions for a session.
type Live struct {
	Directory      *Directory
	FriendRequests *FriendRequests
	Friendships    *Friendships
	Channel        *Channel
	Avatars        *Avatars
}

func liveKey(connID, topic string) string {
	return connID + "|" + topic
}

// Subscribe opens topic for one live connection of sess and tracks it in the
// session. push is called from the subscription's delivery goroutine and must
// not block for long.
func (l *Live) Subscribe(ctx context.Context, sess *Session, connID, topic string, push func(LiveEvent)) error {
	userID := sess.UserID()

	snapshot := func(data any, err error) {
		if err != nil {
			push(LiveEvent{Type: "error", Topic: topic, Error: apperr.MessageOf(err)})
			return
		}
		push(LiveEvent{Type: "snapshot", Topic: topic, Data: data})
	}

	var (
		sub store.Subscription
		err error
	)
	switch {
	case topic == TopicProfile:
		sub, err = l.Directory.WatchProfile(ctx, userID, func(u *models.User, err error) {
			if u != nil {
				l.Avatars.DecorateUser(u)
				sess.SetUser(u)
			}
			snapshot(u, err)
		})
	case topic == TopicIncomingRequests:
		sub, err = l.FriendRequests.WatchIncoming(ctx, userID, func(list []models.FriendRequest, err error) {
			snapshot(list, err)
		})
	case topic == TopicFriendships:
		sub, err = l.Friendships.WatchForUser(ctx, userID, func(chats []models.Chat, err error) {
			l.Avatars.DecorateChats(chats)
			snapshot(chats, err)
		})
	case strings.HasPrefix(topic, TopicChannelPrefix):
		channelID := strings.TrimPrefix(topic, TopicChannelPrefix)
		sub, err = l.Channel.SubscribeAs(ctx, channelID, userID, func(msgs []models.Message, err error) {
			snapshot(msgs, err)
		})
	default:
		return apperr.Validation("unknown topic")
	}
	if err != nil {
		return err
	}

	if !sess.Track(liveKey(connID, topic), sub) {
		return apperr.ErrNoIdentity
	}
	return nil
}

func (l *Live) Unsubscribe(sess *Session, connID, topic string) {
	sess.Untrack(liveKey(connID, topic))
}
