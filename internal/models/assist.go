package models

type RewriteStyle string

const (
	StyleFormal   RewriteStyle = "formal"
	StyleFriendly RewriteStyle = "friendly"
	StyleFix      RewriteStyle = "fix"
)

func (s RewriteStyle) Valid() bool {
	switch s {
	case StyleFormal, StyleFriendly, StyleFix:
		return true
	}
	return false
}

type RewriteRequest struct {
	Text  string       `json:"text"`
	Style RewriteStyle `json:"style"`
}

type SummarizeRequest struct {
	ChannelID string `json:"channel_id"`
}

type AssistResponse struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback,omitempty"`
}
