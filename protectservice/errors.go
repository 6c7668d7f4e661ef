package protectservice

import "errors"

// Error classes surfaced by the controller client. Call sites wrap them with
// context, so match with errors.Is.
var (
	// ErrProbe means the dialect probe could not reach the controller.
	ErrProbe = errors.New("controller probe failed")
	// ErrConfig means required settings (credentials) are missing.
	ErrConfig = errors.New("invalid configuration")
	// ErrAuth means the controller rejected the login or the session is unusable.
	ErrAuth = errors.New("authentication failed")
	// ErrAPI means the controller answered with an unexpected shape or status.
	ErrAPI = errors.New("unexpected controller response")
	// ErrTransport means the request never got a usable answer (timeout, refused, 5xx after retries).
	ErrTransport = errors.New("transport failure")
)
