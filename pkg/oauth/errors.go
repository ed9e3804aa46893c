package oauth

import "errors"

var (
	// ErrInvalidState covers a state that is malformed, expired, already used or minted for
	// another connector.
	ErrInvalidState = errors.New("invalid oauth state")
	// ErrReconnectRequired means the refresh grant is gone and the user must authorize again.
	ErrReconnectRequired = errors.New("reconnect required")
	// ErrProviderRequest wraps any other failure talking to the provider.
	ErrProviderRequest = errors.New("provider request failed")

	ErrMissingParam       = errors.New("missing connector parameter")
	ErrSaveFailed         = errors.New("failed to save credentials")
	ErrRefreshUnsupported = errors.New("provider does not support token refresh")
)
