package usbresolver

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// debouncer owns the per-role attachment table and absorbs the rapid
// remove/re-add churn some drivers exhibit during re-enumeration. A remove
// only becomes a Detached event if no re-add for the same role arrives
// within the debounce window.
//
// Attach and detach are called from the monitor's pipeline goroutine;
// pending detaches fire on timer goroutines. Both paths serialize on mu, so
// the sink sees per-role events in order: never two Attached for one role
// without a Detached in between, never a Detached for an unattached role.
type debouncer struct {
	window time.Duration
	emit   func(DeviceEvent)
	log    zerolog.Logger

	mu       sync.RWMutex
	attached map[string]ResolvedDevice
	pending  map[string]*time.Timer
	closed   bool
}

func newDebouncer(window time.Duration, emit func(DeviceEvent), log zerolog.Logger) *debouncer {
	return &debouncer{
		window:   window,
		emit:     emit,
		log:      log,
		attached: make(map[string]ResolvedDevice),
		pending:  make(map[string]*time.Timer),
	}
}

// attach records a resolved device for its role. A pending detach for the
// same role is cancelled and no event is emitted (the churn case). An
// attach for a role that is already attached with no pending detach is
// suppressed.
func (d *debouncer) attach(res ResolvedDevice) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	if timer, ok := d.pending[res.Role]; ok {
		timer.Stop()
		delete(d.pending, res.Role)
		d.attached[res.Role] = res
		d.log.Debug().Str("role", res.Role).Msg("re-attach within debounce window, coalesced")
		return
	}

	if _, ok := d.attached[res.Role]; ok {
		d.log.Debug().Str("role", res.Role).Msg("duplicate attach suppressed")
		return
	}

	d.attached[res.Role] = res
	resCopy := res
	d.emit(DeviceEvent{Type: Attached, Role: res.Role, Resolved: &resCopy})
}

// detach schedules a Detached event for the role unless a re-add cancels
// it first. Detaches for roles that are not attached are ignored.
func (d *debouncer) detach(role string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	if _, ok := d.attached[role]; !ok {
		return
	}
	if _, ok := d.pending[role]; ok {
		return
	}

	d.pending[role] = time.AfterFunc(d.window, func() {
		d.confirmDetach(role)
	})
}

// confirmDetach fires when the debounce window elapses with no re-add.
func (d *debouncer) confirmDetach(role string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	if _, ok := d.pending[role]; !ok {
		// Cancelled by a re-attach that won the lock race.
		return
	}
	delete(d.pending, role)
	delete(d.attached, role)
	d.emit(DeviceEvent{Type: Detached, Role: role})
}

// snapshot returns a copy of the current attachment table.
func (d *debouncer) snapshot() map[string]ResolvedDevice {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]ResolvedDevice, len(d.attached))
	for role, res := range d.attached {
		out[role] = res
	}
	return out
}

// close cancels all pending detaches. Nothing is emitted after close.
func (d *debouncer) close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	for role, timer := range d.pending {
		timer.Stop()
		delete(d.pending, role)
	}
}
