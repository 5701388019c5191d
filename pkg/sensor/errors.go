package sensor

import "errors"

var (
	// ErrNotConnected is returned when an operation needs an open link
	ErrNotConnected = errors.New("device not connected")

	// ErrNotReading is returned when stop is called outside the Reading state
	ErrNotReading = errors.New("device not reading")

	// ErrSessionClosed is returned when the session worker has been shut down
	ErrSessionClosed = errors.New("session closed")
)
