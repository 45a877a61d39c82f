//go:build windows

package usbresolver

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// scriptedScan serves a fixed sequence of enumeration results, repeating
// the last one once the script runs out.
type scriptedScan struct {
	mu      sync.Mutex
	results [][]rawDevice
	errs    []error
	calls   int
}

func (s *scriptedScan) next() ([]rawDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i], s.errs[i]
}

func newScriptedWatcher(script *scriptedScan) *windowsWatcher {
	cfg := DefaultConfig()
	cfg.PollInterval = 20 * time.Millisecond
	return &windowsWatcher{
		cfg:    cfg,
		log:    zerolog.Nop(),
		scanFn: script.next,
		stop:   make(chan struct{}),
	}
}

func windowsDevice(id, serial string) rawDevice {
	return rawDevice{
		key: id,
		info: RawDeviceInfo{
			VID:        0x0403,
			PID:        0x6001,
			Serial:     serial,
			SystemPath: id,
		},
	}
}

// A device that attaches after the caller's baseline scan but before the
// poll loop starts must still be announced: the first pass diffs against
// an empty snapshot.
func TestWindowsWatcherAnnouncesDeviceArrivingBeforeRun(t *testing.T) {
	late := windowsDevice(`USB\VID_0403&PID_6001\FT123456`, "FT123456")
	script := &scriptedScan{
		results: [][]rawDevice{{late}},
		errs:    []error{nil},
	}

	w := newScriptedWatcher(script)
	notify := make(chan rawEvent, 4)
	w.run(notify)
	defer w.shutdown()

	select {
	case ev := <-notify:
		if ev.action != rawAttach {
			t.Errorf("Expected attach, got action %d", ev.action)
		}
		if ev.dev.info.Serial != "FT123456" {
			t.Errorf("Expected serial FT123456, got %q", ev.dev.info.Serial)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Device present at loop start was never announced")
	}
}

func TestWindowsWatcherEmitsDetachOnDisappearance(t *testing.T) {
	dev := windowsDevice(`USB\VID_0403&PID_6001\ARD42`, "ARD42")
	script := &scriptedScan{
		results: [][]rawDevice{{dev}, {}},
		errs:    []error{nil, nil},
	}

	w := newScriptedWatcher(script)
	notify := make(chan rawEvent, 4)
	w.run(notify)
	defer w.shutdown()

	select {
	case ev := <-notify:
		if ev.action != rawAttach {
			t.Fatalf("Expected attach, got action %d", ev.action)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected attach before disappearance")
	}

	select {
	case ev := <-notify:
		if ev.action != rawDetach {
			t.Errorf("Expected detach, got action %d", ev.action)
		}
		if ev.dev.key != dev.key {
			t.Errorf("Expected detach key %q, got %q", dev.key, ev.dev.key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Disappeared device was never detached")
	}
}

// A transient enumeration failure must keep the previous snapshot instead
// of detaching every known device.
func TestWindowsWatcherKeepsSnapshotOnFailedScan(t *testing.T) {
	dev := windowsDevice(`USB\VID_0403&PID_6001\FT999`, "FT999")
	script := &scriptedScan{
		results: [][]rawDevice{{dev}, nil, {dev}},
		errs:    []error{nil, errors.New("setupapi hiccup"), nil},
	}

	w := newScriptedWatcher(script)
	notify := make(chan rawEvent, 4)
	w.run(notify)
	defer w.shutdown()

	select {
	case ev := <-notify:
		if ev.action != rawAttach {
			t.Fatalf("Expected attach, got action %d", ev.action)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected initial attach")
	}

	// The failed pass and the recovery pass must both be silent.
	select {
	case ev := <-notify:
		t.Errorf("Expected no event around failed enumeration, got action %d", ev.action)
	case <-time.After(150 * time.Millisecond):
	}
}
