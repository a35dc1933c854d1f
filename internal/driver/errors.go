package driver

import "errors"

var (
	// ErrCommandTimeout is returned when a device agent does not answer
	// within the configured action timeout.
	ErrCommandTimeout = errors.New("driver: command timed out")

	// ErrPublishFailed is returned when a command cannot be handed to
	// the broker.
	ErrPublishFailed = errors.New("driver: publishing command failed")

	// ErrNotStarted is returned when a command is dispatched before the
	// result subscription is up.
	ErrNotStarted = errors.New("driver: not started")
)
