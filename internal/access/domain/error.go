package domain

import "errors"

var (
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrMagicLinkInvalid   = errors.New("magic_link_invalid")
	ErrMagicLinkExpired   = errors.New("magic_link_expired")
	ErrMagicLinkConsumed  = errors.New("magic_link_consumed")
	ErrInvalidSession     = errors.New("invalid_session")
	ErrSessionExpired     = errors.New("session_expired")
	ErrSessionRevoked     = errors.New("session_revoked")
)
