package models

import "time"

const (
	DefaultBio    = "Hey there! I am using PalChat."
	MinAvatarSeed = 1
	MaxAvatarSeed = 5
)

// User is a registered account. Username never changes after registration.
type User struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	Username     string    `bson:"username" json:"username"`
	PasswordHash string    `bson:"passwordHash" json:"-"`
	Bio          string    `bson:"bio" json:"bio"`
	AvatarSeed   int       `bson:"avatarSeed" json:"avatar_seed"`
	AvatarURL    string    `bson:"-" json:"avatar_url,omitempty"`
	CreatedAt    time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt    time.Time `bson:"updatedAt,omitempty" json:"updated_at,omitempty"`
}

// UserSummary is what other users get to see.
type UserSummary struct {
	ID         string `bson:"id" json:"id"`
	Username   string `bson:"username" json:"username"`
	AvatarSeed int    `bson:"avatarSeed" json:"avatar_seed"`
	AvatarURL  string `bson:"-" json:"avatar_url,omitempty"`
	Bio        string `bson:"bio" json:"bio"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:         u.ID,
		Username:   u.Username,
		AvatarSeed: u.AvatarSeed,
		AvatarURL:  u.AvatarURL,
		Bio:        u.Bio,
	}
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	Bio        string `json:"bio"`
	AvatarSeed int    `json:"avatar_seed"`
}

type UpdatePasswordRequest struct {
	Password string `json:"password"`
}
