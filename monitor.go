package usbresolver

import (
	"context"
	"fmt"
	"sync"
)

// Monitor resolves physical USB devices to configured roles and emits
// attach/detach events as hardware comes and goes. It owns the platform
// watcher's lifecycle and is the only public entry point of the engine.
//
// A Monitor runs at most one session: NewMonitor, Start, consume Events,
// Stop. Start on a running monitor returns ErrAlreadyRunning.
type Monitor struct {
	cfg   Config
	rules []DeviceRule

	// newWatcher overrides platform watcher construction in tests.
	newWatcher func(Config) watcher

	mu      sync.Mutex
	running bool
	w       watcher
	deb     *debouncer
	events  chan DeviceEvent
	raw     chan rawEvent
	wg      sync.WaitGroup
}

// NewMonitor validates the rule set and prepares a monitor. Validation
// failures (duplicate roles, malformed rules) are fatal here, before any
// platform resource is touched.
func NewMonitor(rules []DeviceRule, opts ...Option) (*Monitor, error) {
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	// The rule set is immutable for the session; copy defensively.
	ruleCopy := make([]DeviceRule, len(rules))
	copy(ruleCopy, rules)

	return &Monitor{cfg: cfg, rules: ruleCopy}, nil
}

// Start constructs the platform watcher, performs the baseline scan, and
// begins forwarding the live stream through the matcher and debouncer to
// the Events channel. It returns once setup has succeeded; setup failures
// are returned synchronously and leave nothing running.
//
// Cancelling ctx is equivalent to calling Stop.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}

	construct := m.newWatcher
	if construct == nil {
		construct = newPlatformWatcher
	}

	w := construct(m.cfg)
	if err := w.init(); err != nil {
		return fmt.Errorf("%w: %w", ErrPlatformInit, err)
	}

	baseline, err := w.scan()
	if err != nil {
		w.shutdown()
		return fmt.Errorf("baseline scan: %w", err)
	}

	m.w = w
	m.events = make(chan DeviceEvent, m.cfg.EventBuffer)
	m.raw = make(chan rawEvent, m.cfg.EventBuffer)
	m.deb = newDebouncer(m.cfg.DebounceWindow, m.emit, m.cfg.Logger)
	m.running = true

	m.wg.Add(1)
	go m.pipeline(baseline)

	w.run(m.raw)

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			_ = m.Stop()
		}()
	}

	m.cfg.Logger.Info().Int("rules", len(m.rules)).Int("baseline_devices", len(baseline)).
		Msg("usb monitor started")
	return nil
}

// Events returns the channel on which Attached and Detached events are
// delivered. Events for a single role arrive in the order the watcher
// observed them; no ordering holds across roles. The channel is closed by
// Stop; events still queued at that point may be dropped.
func (m *Monitor) Events() <-chan DeviceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

// Attached returns a copy of the current role attachment table. Safe to
// call from any goroutine while the monitor runs.
func (m *Monitor) Attached() map[string]ResolvedDevice {
	m.mu.Lock()
	deb := m.deb
	m.mu.Unlock()

	if deb == nil {
		return map[string]ResolvedDevice{}
	}
	return deb.snapshot()
}

// Stop shuts the watcher down, cancels pending debounce timers, and closes
// the Events channel. It blocks until the watcher's background goroutine
// has terminated. Stopping a monitor that is not running returns
// ErrNotRunning.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running = false
	w := m.w
	m.mu.Unlock()

	// Shutdown returns only after the watcher stops sending, so closing
	// the raw channel afterwards is safe.
	w.shutdown()
	close(m.raw)
	m.wg.Wait()

	m.deb.close()
	close(m.events)

	m.cfg.Logger.Info().Msg("usb monitor stopped")
	return nil
}

// pipeline is the single consumer of raw watcher occurrences: it matches
// devices against the rule set, tracks watcher-key-to-role bindings, and
// drives the debouncer. Running it on one goroutine preserves per-role
// arrival order end to end.
func (m *Monitor) pipeline(baseline []rawDevice) {
	defer m.wg.Done()

	// Watcher key -> role, recorded at attach so a detach can be
	// resolved without device attributes.
	active := make(map[string]string)

	handleAttach := func(dev rawDevice) {
		res, ok := MatchDevice(m.rules, dev.info)
		if !ok {
			m.cfg.Logger.Debug().Str("device", dev.info.String()).Msg("device matches no rule, ignored")
			return
		}
		active[dev.key] = res.Role
		m.cfg.Logger.Debug().
			Str("role", res.Role).
			Str("method", res.MatchMethod.String()).
			Str("device", dev.info.String()).
			Msg("device resolved")
		m.deb.attach(res)
	}

	for _, dev := range baseline {
		handleAttach(dev)
	}

	for ev := range m.raw {
		switch ev.action {
		case rawAttach:
			handleAttach(ev.dev)
		case rawDetach:
			role, ok := active[ev.dev.key]
			if !ok {
				continue
			}
			delete(active, ev.dev.key)
			m.deb.detach(role)
		}
	}
}

// emit delivers an event without ever blocking the pipeline. If the
// consumer has fallen behind (or gone away) the event is dropped.
func (m *Monitor) emit(ev DeviceEvent) {
	select {
	case m.events <- ev:
	default:
		m.cfg.Logger.Warn().Str("role", ev.Role).Str("type", ev.Type.String()).
			Msg("event buffer full, dropping event")
	}
}
