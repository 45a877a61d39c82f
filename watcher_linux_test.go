//go:build linux

package usbresolver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// newFixtureWatcher builds a linuxWatcher pointed at a sysfs fixture tree,
// with the socket disabled so the loop runs in polling mode.
func newFixtureWatcher(t *testing.T) (*linuxWatcher, string) {
	t.Helper()
	root := t.TempDir()
	devicesDir := filepath.Join(root, "bus", "usb", "devices")
	if err := os.MkdirAll(devicesDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.PollInterval = 20 * time.Millisecond
	cfg.KeepAliveInterval = time.Hour

	w := &linuxWatcher{
		cfg:     cfg,
		log:     zerolog.Nop(),
		sysRoot: root,
		fd:      -1,
		stop:    make(chan struct{}),
	}
	return w, devicesDir
}

// A device that attaches after the caller's baseline scan but before the
// loop starts must still be announced: the loop's first reconcile diffs
// against an empty table.
func TestLinuxWatcherAnnouncesDeviceArrivingBeforeRun(t *testing.T) {
	w, devicesDir := newFixtureWatcher(t)

	devices, err := w.scan()
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 0 {
		t.Fatalf("Expected empty baseline, got %d devices", len(devices))
	}

	makeSysfsDevice(t, devicesDir, "1-1.4", "0403", "6001", "FT123456")

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

func TestLinuxWatcherEmitsDetachOnRemoval(t *testing.T) {
	w, devicesDir := newFixtureWatcher(t)
	devPath := makeSysfsDevice(t, devicesDir, "1-1.2", "2341", "8036", "ARD42")

	notify := make(chan rawEvent, 4)
	w.run(notify)
	defer w.shutdown()

	var attachKey string
	select {
	case ev := <-notify:
		if ev.action != rawAttach {
			t.Fatalf("Expected attach, got action %d", ev.action)
		}
		attachKey = ev.dev.key
	case <-time.After(2 * time.Second):
		t.Fatal("Expected attach before removal")
	}

	if err := os.RemoveAll(devPath); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-notify:
		if ev.action != rawDetach {
			t.Errorf("Expected detach, got action %d", ev.action)
		}
		if ev.dev.key != attachKey {
			t.Errorf("Expected detach key %q, got %q", attachKey, ev.dev.key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Removed device was never detached")
	}
}

// uevent fixture: a hub-rooted device with one interface node, laid out the
// way the kernel publishes it under /sys/devices.
func makeUEventFixture(t *testing.T, root string) (devPath, devpathRel, ifaceRel string) {
	t.Helper()
	busDir := filepath.Join(root, "devices", "pci0000:00", "usb1")
	devPath = makeSysfsDevice(t, busDir, "1-1", "1d6b", "0002", "")
	if err := os.MkdirAll(filepath.Join(devPath, "1-1:1.0"), 0o755); err != nil {
		t.Fatal(err)
	}
	return devPath, "/devices/pci0000:00/usb1/1-1", "/devices/pci0000:00/usb1/1-1/1-1:1.0"
}

func ueventDatagram(action, devpath, devtype string) []byte {
	var b []byte
	b = append(b, action+"@"+devpath...)
	b = append(b, 0)
	for _, rec := range []string{
		"ACTION=" + action,
		"DEVPATH=" + devpath,
		"SUBSYSTEM=usb",
		"DEVTYPE=" + devtype,
		"SEQNUM=4242",
	} {
		b = append(b, rec...)
		b = append(b, 0)
	}
	return b
}

func TestHandleUEventInterfaceAddBacktracksToDevice(t *testing.T) {
	w, _ := newFixtureWatcher(t)
	devPath, _, ifaceRel := makeUEventFixture(t, w.sysRoot)

	notify := make(chan rawEvent, 4)
	seen := make(map[string]rawDevice)

	w.handleUEvent(ueventDatagram("add", ifaceRel, "usb_interface"), notify, seen)

	select {
	case ev := <-notify:
		if ev.action != rawAttach {
			t.Errorf("Expected attach, got action %d", ev.action)
		}
		if ev.dev.key != devPath {
			t.Errorf("Expected key %q, got %q", devPath, ev.dev.key)
		}
		if ev.dev.info.VID != 0x1d6b || ev.dev.info.PID != 0x0002 {
			t.Errorf("Expected 1d6b:0002, got %04x:%04x", ev.dev.info.VID, ev.dev.info.PID)
		}
	default:
		t.Fatal("Interface add produced no attach")
	}

	// A second interface of the same device must not re-announce it.
	w.handleUEvent(ueventDatagram("add", ifaceRel, "usb_interface"), notify, seen)
	select {
	case ev := <-notify:
		t.Errorf("Expected no event for duplicate interface add, got action %d", ev.action)
	default:
	}
}

func TestHandleUEventDeviceRemove(t *testing.T) {
	w, _ := newFixtureWatcher(t)
	devPath, devpathRel, _ := makeUEventFixture(t, w.sysRoot)

	notify := make(chan rawEvent, 4)
	seen := map[string]rawDevice{devPath: {key: devPath}}

	// Interface removals precede the device removal and must be ignored.
	w.handleUEvent(ueventDatagram("remove", devpathRel+"/1-1:1.0", "usb_interface"), notify, seen)
	select {
	case <-notify:
		t.Fatal("Interface remove should not produce an event")
	default:
	}

	w.handleUEvent(ueventDatagram("remove", devpathRel, "usb_device"), notify, seen)
	select {
	case ev := <-notify:
		if ev.action != rawDetach {
			t.Errorf("Expected detach, got action %d", ev.action)
		}
		if ev.dev.key != devPath {
			t.Errorf("Expected key %q, got %q", devPath, ev.dev.key)
		}
	default:
		t.Fatal("Device remove produced no detach")
	}
	if _, ok := seen[devPath]; ok {
		t.Error("Expected device to be dropped from the identity table")
	}
}

func TestHandleUEventIgnoresOtherSubsystems(t *testing.T) {
	w, _ := newFixtureWatcher(t)
	_, devpathRel, _ := makeUEventFixture(t, w.sysRoot)

	notify := make(chan rawEvent, 4)
	seen := make(map[string]rawDevice)

	data := []byte("add@" + devpathRel + "\x00ACTION=add\x00DEVPATH=" + devpathRel +
		"\x00SUBSYSTEM=tty\x00DEVTYPE=usb_device\x00")
	w.handleUEvent(data, notify, seen)

	select {
	case <-notify:
		t.Fatal("Non-usb subsystem event should be ignored")
	default:
	}
}

func TestHandleUEventDropsAddWithoutDeviceAncestor(t *testing.T) {
	w, _ := newFixtureWatcher(t)

	// An interface path whose ancestors carry no device attributes.
	bare := filepath.Join(w.sysRoot, "devices", "pci0000:00", "usb2", "2-1", "2-1:1.0")
	if err := os.MkdirAll(bare, 0o755); err != nil {
		t.Fatal(err)
	}

	notify := make(chan rawEvent, 4)
	seen := make(map[string]rawDevice)

	w.handleUEvent(ueventDatagram("add", "/devices/pci0000:00/usb2/2-1/2-1:1.0", "usb_interface"), notify, seen)

	select {
	case <-notify:
		t.Fatal("Add with no attribute-bearing ancestor should be dropped")
	default:
	}
}
