package usbresolver

// rawAction is the kind of a raw watcher occurrence.
type rawAction int

const (
	rawAttach rawAction = iota
	rawDetach
)

// rawDevice pairs a device snapshot with the stable identity the platform
// watcher assigned at arrival time. Removal is matched on the key, never by
// re-reading attributes that may already be gone (the node is usually
// deleted before the remove notification is processed).
type rawDevice struct {
	key  string
	info RawDeviceInfo
}

// rawEvent is one add/remove occurrence as observed by a platform watcher,
// before matching and debouncing. Detach events carry only the key.
type rawEvent struct {
	action rawAction
	dev    rawDevice
}

// watcher is the capability contract shared by the three platform backends.
// Implementations are selected once at startup by newPlatformWatcher.
//
// init acquires OS resources and fails only if no viable strategy exists,
// including fallbacks. scan returns the current full inventory
// synchronously. run delivers occurrences on notify until shutdown is
// called; it must never terminate on a transient backend fault. shutdown
// is idempotent and returns only after the background goroutine has
// stopped sending.
type watcher interface {
	init() error
	scan() ([]rawDevice, error)
	run(notify chan<- rawEvent)
	shutdown()
}

// Discover performs a synchronous one-shot inventory of every currently
// visible USB device, independent of any rule set. It is the primitive the
// discovery CLI is built on: run it, copy the VID/PID/serial values you
// see into a rule file.
func Discover() ([]RawDeviceInfo, error) {
	w := newPlatformWatcher(DefaultConfig())
	if err := w.init(); err != nil {
		return nil, err
	}
	defer w.shutdown()

	devices, err := w.scan()
	if err != nil {
		return nil, err
	}

	out := make([]RawDeviceInfo, 0, len(devices))
	for _, dev := range devices {
		out = append(out, dev.info)
	}
	return out, nil
}

// diffSnapshots compares two inventories keyed by stable device identity
// and returns what appeared and what went away. Polling backends use it to
// synthesize attach/detach events from consecutive scans.
func diffSnapshots(prev, curr map[string]rawDevice) (added []rawDevice, removed []string) {
	for key, dev := range curr {
		if _, ok := prev[key]; !ok {
			added = append(added, dev)
		}
	}
	for key := range prev {
		if _, ok := curr[key]; !ok {
			removed = append(removed, key)
		}
	}
	return added, removed
}

// snapshotMap indexes an inventory by watcher key.
func snapshotMap(devices []rawDevice) map[string]rawDevice {
	m := make(map[string]rawDevice, len(devices))
	for _, dev := range devices {
		m[dev.key] = dev
	}
	return m
}
