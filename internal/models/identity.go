package models

import "time"

// Identity binds an anonymous principal to an application user. Last write
// wins; logout clears only the device copy.
type Identity struct {
	PrincipalID       string    `bson:"_id" json:"principal_id"`
	ApplicationUserID string    `bson:"applicationUserId" json:"application_user_id"`
	BoundAt           time.Time `bson:"boundAt" json:"bound_at"`
}

type Principal struct {
	ID          string `json:"principal_id"`
	DeviceToken string `json:"-"`
}

type PrincipalRequest struct {
	DeviceToken string `json:"device_token"`
}

type PrincipalResponse struct {
	PrincipalID string    `json:"principal_id"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
}
