//go:build windows

package usbresolver

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/windows"
)

// windowsWatcher polls the SetupAPI device enumeration at PollInterval and
// diffs consecutive snapshots. Windows offers no device notification
// channel usable from a headless worker (WM_DEVICECHANGE needs a window
// message pump), so polling is the primary strategy, not a fallback.
type windowsWatcher struct {
	cfg Config
	log zerolog.Logger

	// scanFn overrides device enumeration in tests.
	scanFn func() ([]rawDevice, error)

	stop     chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}
}

func newPlatformWatcher(cfg Config) watcher {
	return &windowsWatcher{
		cfg:  cfg,
		log:  cfg.Logger.With().Str("watcher", "windows").Logger(),
		stop: make(chan struct{}),
	}
}

// init checks the device-configuration subsystem once. Enumeration being
// unavailable at startup is the only fatal condition; later failures are
// absorbed by the poll loop.
func (w *windowsWatcher) init() error {
	devices, err := w.enumerate()
	if err != nil {
		return err
	}
	w.log.Debug().Int("devices", len(devices)).Msg("setupapi enumeration available")
	return nil
}

func (w *windowsWatcher) enumerate() ([]rawDevice, error) {
	if w.scanFn != nil {
		return w.scanFn()
	}
	return w.scan()
}

// scan enumerates every present device and keeps those whose hardware ID
// carries a USB VID/PID pair. The device instance ID is both the primary
// system path and the stable identity used for snapshot diffing.
func (w *windowsWatcher) scan() ([]rawDevice, error) {
	devInfo, err := windows.SetupDiGetClassDevsEx(nil, "", 0,
		windows.DIGCF_ALLCLASSES|windows.DIGCF_PRESENT, 0, "")
	if err != nil {
		return nil, fmt.Errorf("setupapi enumeration: %w", err)
	}
	defer devInfo.Close()

	var devices []rawDevice
	for i := 0; ; i++ {
		data, err := devInfo.EnumDeviceInfo(i)
		if err != nil {
			break
		}

		dev, ok := w.parseDevice(devInfo, data)
		if !ok {
			continue
		}
		devices = append(devices, dev)
	}

	return devices, nil
}

func (w *windowsWatcher) parseDevice(devInfo windows.DevInfo, data *windows.DevInfoData) (rawDevice, bool) {
	hwProp, err := devInfo.DeviceRegistryProperty(data, windows.SPDRP_HARDWAREID)
	if err != nil {
		return rawDevice{}, false
	}
	hwIDs, ok := hwProp.([]string)
	if !ok {
		if s, isStr := hwProp.(string); isStr {
			hwIDs = []string{s}
		} else {
			return rawDevice{}, false
		}
	}

	vid, pid, ok := parseHardwareIDs(hwIDs)
	if !ok {
		return rawDevice{}, false
	}

	instanceID, err := devInfo.DeviceInstanceID(data)
	if err != nil {
		return rawDevice{}, false
	}

	info := RawDeviceInfo{
		VID:        vid,
		PID:        pid,
		Serial:     serialFromInstanceID(instanceID),
		PortPath:   "unknown",
		SystemPath: instanceID,
	}

	if locProp, err := devInfo.DeviceRegistryProperty(data, windows.SPDRP_LOCATION_PATHS); err == nil {
		switch loc := locProp.(type) {
		case []string:
			if len(loc) > 0 {
				info.PortPath = loc[0]
			}
		case string:
			if loc != "" {
				info.PortPath = loc
			}
		}
	}

	if nameProp, err := devInfo.DeviceRegistryProperty(data, windows.SPDRP_FRIENDLYNAME); err == nil {
		if name, isStr := nameProp.(string); isStr {
			info.SystemPathAlt = comPortFromFriendlyName(name)
		}
	}

	return rawDevice{key: instanceID, info: info}, true
}

func (w *windowsWatcher) run(notify chan<- rawEvent) {
	w.loopDone = make(chan struct{})
	go w.loop(notify)
}

func (w *windowsWatcher) shutdown() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.loopDone != nil {
		<-w.loopDone
	}
}

// loop rescans at a fixed interval and synthesizes attach/detach events
// from the diff.
func (w *windowsWatcher) loop(notify chan<- rawEvent) {
	defer close(w.loopDone)

	// First pass diffs against an empty table so every device visible now
	// is announced, including any that attached after the caller's
	// baseline scan. Duplicates are suppressed downstream.
	seen := w.rescan(notify, make(map[string]rawDevice))

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		}

		seen = w.rescan(notify, seen)
	}
}

// rescan enumerates, diffs against the previous snapshot, and synthesizes
// attach/detach events. A failed enumeration keeps the previous snapshot:
// a transient SetupAPI error must not detach every known device.
func (w *windowsWatcher) rescan(notify chan<- rawEvent, seen map[string]rawDevice) map[string]rawDevice {
	devices, err := w.enumerate()
	if err != nil {
		w.log.Warn().Err(err).Msg("device enumeration failed, keeping previous snapshot")
		return seen
	}

	curr := snapshotMap(devices)
	added, removed := diffSnapshots(seen, curr)

	for _, dev := range added {
		w.send(notify, rawEvent{action: rawAttach, dev: dev})
	}
	for _, key := range removed {
		w.send(notify, rawEvent{action: rawDetach, dev: rawDevice{key: key}})
	}

	return curr
}

func (w *windowsWatcher) send(notify chan<- rawEvent, ev rawEvent) {
	select {
	case notify <- ev:
	case <-w.stop:
	}
}
