package auth

import "errors"

var (
	ErrMissingToken           = errors.New("missing_token")
	ErrInvalidToken           = errors.New("invalid_token")
	ErrAccessTokenRequired    = errors.New("access_token_required")
	ErrRefreshTokenRequired   = errors.New("refresh_token_required")
	ErrRevocationUnavailable  = errors.New("auth_unavailable")
	ErrInsufficientPermission = errors.New("insufficient_permission")
)
