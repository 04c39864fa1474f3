package models

import "time"

const (
	AcceptedPreview = "request accepted"
	UnknownPeerName = "unknown user"
)

// Friendship is the two-party chat channel. UserDetails is taken when the
// request is accepted and is not refreshed on later profile edits.
type Friendship struct {
	ID              string        `bson:"_id,omitempty" json:"id"`
	Users           []string      `bson:"users" json:"users"`
	UserDetails     []UserSummary `bson:"userDetails" json:"user_details"`
	LastMessage     string        `bson:"lastMessage" json:"last_message"`
	LastMessageTime time.Time     `bson:"lastMessageTime" json:"last_message_time"`
	RequestID       string        `bson:"requestId" json:"request_id"`
	CreatedAt       time.Time     `bson:"createdAt" json:"created_at"`
}

func (f *Friendship) HasMember(userID string) bool {
	for _, id := range f.Users {
		if id == userID {
			return true
		}
	}
	return false
}

// Peer returns the other party as seen by userID, or a placeholder when the
// stored details do not contain anyone else.
func (f *Friendship) Peer(userID string) UserSummary {
	for _, d := range f.UserDetails {
		if d.ID != userID {
			return d
		}
	}
	return UserSummary{Username: UnknownPeerName}
}

// Chat is a friendship resolved for one of its members.
type Chat struct {
	ID              string      `json:"id"`
	Peer            UserSummary `json:"peer"`
	LastMessage     string      `json:"last_message"`
	LastMessageTime time.Time   `json:"last_message_time"`
}

func (f *Friendship) ChatFor(userID string) Chat {
	return Chat{
		ID:              f.ID,
		Peer:            f.Peer(userID),
		LastMessage:     f.LastMessage,
		LastMessageTime: f.LastMessageTime,
	}
}
