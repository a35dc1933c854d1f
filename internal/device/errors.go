package device

import "errors"

var (
	// ErrDeviceNotFound is returned when a device does not exist.
	ErrDeviceNotFound = errors.New("device: device not found")

	// ErrDeviceExists is returned when creating a device with a
	// duplicate ID or serial.
	ErrDeviceExists = errors.New("device: device already exists")

	// ErrValidation is the base error for device validation failures.
	// Specific failures wrap this sentinel; check with errors.Is.
	ErrValidation = errors.New("device: validation failed")

	// ErrSessionActive is returned when a device already has a live
	// editing session.
	ErrSessionActive = errors.New("device: editing session already active")

	// ErrNoSession is returned when ending a session that does not exist.
	ErrNoSession = errors.New("device: no active editing session")
)
