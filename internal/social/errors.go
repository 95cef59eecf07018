package social

import "errors"

var (
	// ErrInvalidInput marks requests rejected before any session work.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAuthentication marks a login flow that did not reach the authenticated state.
	ErrAuthentication = errors.New("authentication failed")
	// ErrSessionLost marks a browser that died while in use.
	ErrSessionLost = errors.New("browser session lost")
	// ErrQueueClosed is returned by a Queue after shutdown.
	ErrQueueClosed = errors.New("queue closed")
)
