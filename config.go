package usbresolver

import (
	"time"

	"github.com/rs/zerolog"
)

// Config holds the tunables of a monitoring session. All values have
// working defaults; use the With* options to override them.
type Config struct {
	// DebounceWindow is how long a remove is held back waiting for a
	// re-add of the same role before a Detached event is emitted.
	DebounceWindow time.Duration

	// PollInterval is the full-rescan interval used by backends that
	// have no notification channel (Windows) and by the Linux watcher
	// while its event socket is unavailable.
	PollInterval time.Duration

	// KeepAliveInterval is how often the Linux watcher retries
	// reconnecting a broken event socket.
	KeepAliveInterval time.Duration

	// NodeRetries and NodeRetryDelay bound the wait for a /dev node
	// that appears after the attach notification (macOS driver races).
	// The delay doubles after every failed attempt.
	NodeRetries    int
	NodeRetryDelay time.Duration

	// EventBuffer is the capacity of the event channel handed to the
	// consumer. Events are dropped once the buffer is full.
	EventBuffer int

	Logger zerolog.Logger
}

// Option is a functional option for configuring a monitor
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		DebounceWindow:    200 * time.Millisecond,
		PollInterval:      time.Second,
		KeepAliveInterval: 5 * time.Second,
		NodeRetries:       6,
		NodeRetryDelay:    20 * time.Millisecond,
		EventBuffer:       16,
		Logger:            zerolog.Nop(),
	}
}

// WithDebounceWindow sets the detach debounce window
func WithDebounceWindow(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return ErrInvalidOption
		}
		c.DebounceWindow = d
		return nil
	}
}

// WithPollInterval sets the rescan interval for polling backends
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return ErrInvalidOption
		}
		c.PollInterval = d
		return nil
	}
}

// WithKeepAliveInterval sets the socket reconnect interval
func WithKeepAliveInterval(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return ErrInvalidOption
		}
		c.KeepAliveInterval = d
		return nil
	}
}

// WithNodeRetry sets the attempt budget and initial delay for waiting on
// late-appearing device nodes
func WithNodeRetry(attempts int, initial time.Duration) Option {
	return func(c *Config) error {
		if attempts < 1 || initial <= 0 {
			return ErrInvalidOption
		}
		c.NodeRetries = attempts
		c.NodeRetryDelay = initial
		return nil
	}
}

// WithEventBuffer sets the event channel capacity
func WithEventBuffer(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return ErrInvalidOption
		}
		c.EventBuffer = n
		return nil
	}
}

// WithLogger attaches a zerolog logger to the monitor. The default
// configuration discards all log output.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) error {
		c.Logger = l
		return nil
	}
}
