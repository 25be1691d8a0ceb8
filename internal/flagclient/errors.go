package flagclient

import "errors"

var (
	// ErrMissingCredential is returned by New when no SDK key is supplied.
	ErrMissingCredential = errors.New("flag service SDK key is not set")

	// ErrClientConstruction wraps invalid client options.
	ErrClientConstruction = errors.New("flag client could not be constructed")

	// ErrUnauthorized means the flag service rejected the SDK key. It is permanent:
	// the client stops retrying its initial sync.
	ErrUnauthorized = errors.New("flag service rejected the SDK key")

	// ErrClientClosed is the initialization error of a client closed before it became ready.
	ErrClientClosed = errors.New("flag client closed")

	// ErrInvalidContext is returned by NewContext.
	ErrInvalidContext = errors.New("invalid evaluation context")
)
