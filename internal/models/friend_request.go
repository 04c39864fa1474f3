package models

import "time"

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

func (s RequestStatus) Terminal() bool {
	return s == RequestAccepted || s == RequestRejected
}

type RequestAction string

const (
	ActionAccept RequestAction = "accept"
	ActionReject RequestAction = "reject"
)

// FriendRequest carries a snapshot of the sender so the recipient's inbox
// renders without extra lookups.
type FriendRequest struct {
	ID             string        `bson:"_id,omitempty" json:"id"`
	FromID         string        `bson:"fromId" json:"from_id"`
	FromName       string        `bson:"fromName" json:"from_name"`
	FromAvatarSeed int           `bson:"fromAvatarSeed" json:"from_avatar_seed"`
	ToID           string        `bson:"toId" json:"to_id"`
	Status         RequestStatus `bson:"status" json:"status"`
	Timestamp      time.Time     `bson:"timestamp" json:"timestamp"`
	RespondedAt    time.Time     `bson:"respondedAt,omitempty" json:"responded_at,omitempty"`
}

type SendFriendRequest struct {
	ToID string `json:"to_id"`
}

type RespondFriendRequest struct {
	Action RequestAction `json:"action"`
}
