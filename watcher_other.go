//go:build !linux && !darwin && !windows

package usbresolver

// unsupportedWatcher is the stand-in on platforms without a backend. It
// fails at init so NewMonitor callers get ErrPlatformInit before anything
// starts.
type unsupportedWatcher struct{}

func newPlatformWatcher(Config) watcher { return unsupportedWatcher{} }

func (unsupportedWatcher) init() error { return ErrPlatformUnsupported }

func (unsupportedWatcher) scan() ([]rawDevice, error) { return nil, ErrPlatformUnsupported }

func (unsupportedWatcher) run(chan<- rawEvent) {}

func (unsupportedWatcher) shutdown() {}
