package apperr

var (
	ErrUsernameTaken     = Conflict("username is already taken")
	ErrUserNotFound      = NotFound("user not found")
	ErrBadPassword       = Auth("incorrect password")
	ErrPasswordTooShort  = Validation("password must be at least 4 characters")
	ErrBioTooLong        = Validation("bio must be at most 50 characters")
	ErrInvalidAvatarSeed = Validation("avatar seed must be between 1 and 5")

	ErrSelfRequest       = Validation("cannot send a friend request to yourself")
	ErrRequestNotFound   = NotFound("friend request not found")
	ErrRequestResolved   = Conflict("friend request was already answered")
	ErrNotRecipient      = Forbidden("only the recipient can answer a friend request")
	ErrInvalidAction     = Validation("action must be accept or reject")
	ErrFriendshipMissing = NotFound("chat not found")
	ErrNotMember         = Forbidden("you are not part of this chat")

	ErrEmptyMessage   = Validation("message cannot be empty")
	ErrMessageTooLong = Validation("message must be at most 2000 characters")

	ErrEmptyText    = Validation("text cannot be empty")
	ErrInvalidStyle = Validation("style must be formal, friendly or fix")

	ErrNoIdentity = Unauthenticated("not signed in")
)
