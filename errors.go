package usbresolver

import "errors"

// Predefined error types for robust error handling
var (
	// Rule set validation errors, surfaced before monitoring starts
	ErrDuplicateRole = errors.New("duplicate role in rule set")
	ErrInvalidRule   = errors.New("invalid device rule")
	ErrNoRules       = errors.New("rule set is empty")

	// Option validation
	ErrInvalidOption = errors.New("invalid monitor option")

	// Monitor lifecycle errors
	ErrAlreadyRunning = errors.New("monitor is already running")
	ErrNotRunning     = errors.New("monitor is not running")

	// Platform watcher errors
	ErrPlatformInit        = errors.New("no viable device watcher strategy available")
	ErrPlatformUnsupported = errors.New("platform not supported for USB monitoring")
)
