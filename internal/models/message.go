package models

import "time"

// Message is one entry in a channel log. Messages are never edited.
type Message struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	ChannelID string    `bson:"channelId" json:"channel_id"`
	SenderID  string    `bson:"senderId" json:"sender_id"`
	Text      string    `bson:"text" json:"text"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}
