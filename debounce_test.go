package usbresolver

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// eventRecorder collects emitted events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []DeviceEvent
}

func (r *eventRecorder) record(ev DeviceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []DeviceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DeviceEvent, len(r.events))
	copy(out, r.events)
	return out
}

func testResolved(role string) ResolvedDevice {
	return ResolvedDevice{
		Role:        role,
		Device:      RawDeviceInfo{VID: 0x0403, PID: 0x6001, Serial: "SN-" + role},
		MatchMethod: MatchSerial,
	}
}

func TestDebouncerAttachEmitsImmediately(t *testing.T) {
	rec := &eventRecorder{}
	d := newDebouncer(50*time.Millisecond, rec.record, zerolog.Nop())
	defer d.close()

	d.attach(testResolved("imu"))

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Type != Attached || events[0].Role != "imu" {
		t.Errorf("Unexpected event %+v", events[0])
	}
	if events[0].Resolved == nil {
		t.Fatal("Attached event must carry the resolved device")
	}
}

func TestDebouncerCoalescesFlap(t *testing.T) {
	rec := &eventRecorder{}
	d := newDebouncer(100*time.Millisecond, rec.record, zerolog.Nop())
	defer d.close()

	d.attach(testResolved("imu"))
	d.detach("imu")
	d.attach(testResolved("imu")) // re-add inside the window

	// Wait well past the window; no Detached may surface.
	time.Sleep(250 * time.Millisecond)

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("Expected only the initial Attached, got %d events: %+v", len(events), events)
	}
	if events[0].Type != Attached {
		t.Errorf("Expected Attached, got %v", events[0].Type)
	}

	if _, ok := d.snapshot()["imu"]; !ok {
		t.Error("Role should still be attached after coalesced flap")
	}
}

func TestDebouncerConfirmsDetachAfterWindow(t *testing.T) {
	rec := &eventRecorder{}
	d := newDebouncer(30*time.Millisecond, rec.record, zerolog.Nop())
	defer d.close()

	d.attach(testResolved("imu"))
	d.detach("imu")

	deadline := time.Now().Add(time.Second)
	for {
		events := rec.all()
		if len(events) == 2 {
			if events[1].Type != Detached || events[1].Role != "imu" {
				t.Fatalf("Unexpected second event %+v", events[1])
			}
			if events[1].Resolved != nil {
				t.Error("Detached event must not carry a device")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for Detached, events: %+v", events)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if len(d.snapshot()) != 0 {
		t.Error("Attachment table should be empty after confirmed detach")
	}
}

func TestDebouncerSuppressesDuplicateAttach(t *testing.T) {
	rec := &eventRecorder{}
	d := newDebouncer(50*time.Millisecond, rec.record, zerolog.Nop())
	defer d.close()

	d.attach(testResolved("imu"))
	d.attach(testResolved("imu"))

	if events := rec.all(); len(events) != 1 {
		t.Errorf("Expected duplicate attach to be suppressed, got %d events", len(events))
	}
}

func TestDebouncerIgnoresDetachForUnattachedRole(t *testing.T) {
	rec := &eventRecorder{}
	d := newDebouncer(10*time.Millisecond, rec.record, zerolog.Nop())
	defer d.close()

	d.detach("ghost")
	time.Sleep(50 * time.Millisecond)

	if events := rec.all(); len(events) != 0 {
		t.Errorf("Expected no events, got %+v", events)
	}
}

func TestDebouncerCloseCancelsPending(t *testing.T) {
	rec := &eventRecorder{}
	d := newDebouncer(30*time.Millisecond, rec.record, zerolog.Nop())

	d.attach(testResolved("imu"))
	d.detach("imu")
	d.close()

	time.Sleep(100 * time.Millisecond)

	events := rec.all()
	if len(events) != 1 {
		t.Errorf("Expected pending detach to be cancelled by close, got %+v", events)
	}

	// Nothing is emitted after close.
	d.attach(testResolved("gps"))
	if events := rec.all(); len(events) != 1 {
		t.Errorf("Expected no events after close, got %+v", events)
	}
}

func TestDebouncerPerRoleOrdering(t *testing.T) {
	rec := &eventRecorder{}
	d := newDebouncer(10*time.Millisecond, rec.record, zerolog.Nop())
	defer d.close()

	// Several full attach/detach cycles; the recorded stream must
	// alternate strictly for the role.
	for i := 0; i < 3; i++ {
		d.attach(testResolved("imu"))
		d.detach("imu")
		time.Sleep(50 * time.Millisecond)
	}

	events := rec.all()
	if len(events) != 6 {
		t.Fatalf("Expected 6 events, got %d: %+v", len(events), events)
	}
	for i, ev := range events {
		want := Attached
		if i%2 == 1 {
			want = Detached
		}
		if ev.Type != want {
			t.Errorf("Event %d: expected %v, got %v", i, want, ev.Type)
		}
	}
}
