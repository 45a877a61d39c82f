//go:build linux

package usbresolver

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// uevent socket parameters. Group 1 is the kernel broadcast group; udev's
// processed events go to group 2 and are not needed here.
const (
	netlinkKObjectUEvent = 15 // NETLINK_KOBJECT_UEVENT
	ueventKernelGroup    = 1
	ueventBufferSize     = 8 << 10
)

// socketPollTimeout bounds how long a blocked read waits before the loop
// rechecks the stop channel. Shutdown is cooperative: it is observed at
// the next wake-up, not preemptively.
const socketPollTimeout = 500 * time.Millisecond

// linuxWatcher observes USB hot-plug through the kernel uevent netlink
// socket, with sysfs polling as a degraded fallback. The watcher never
// stops producing events on a transient fault: a broken or unavailable
// socket switches it to polling while a keep-alive loop retries the
// socket at KeepAliveInterval.
type linuxWatcher struct {
	cfg     Config
	log     zerolog.Logger
	sysRoot string // "/sys", overridable in tests

	fd       int
	stop     chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}
}

func newPlatformWatcher(cfg Config) watcher {
	return &linuxWatcher{
		cfg:     cfg,
		log:     cfg.Logger.With().Str("watcher", "linux").Logger(),
		sysRoot: "/sys",
		fd:      -1,
		stop:    make(chan struct{}),
	}
}

func (w *linuxWatcher) devicesDir() string {
	return filepath.Join(w.sysRoot, "bus", "usb", "devices")
}

// init opens the uevent socket. Socket failure (permissions, sandboxes) is
// not fatal as long as sysfs is readable: the run loop will poll and keep
// retrying the socket. Only losing both strategies fails.
func (w *linuxWatcher) init() error {
	if err := w.openSocket(); err != nil {
		w.log.Warn().Err(err).Msg("uevent socket unavailable, degrading to sysfs polling")
		if _, serr := os.Stat(w.devicesDir()); serr != nil {
			return fmt.Errorf("uevent socket (%v) and sysfs (%v) both unavailable", err, serr)
		}
	}
	return nil
}

func (w *linuxWatcher) openSocket() error {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK,
		netlinkKObjectUEvent)
	if err != nil {
		return fmt.Errorf("netlink socket: %w", err)
	}

	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: ueventKernelGroup,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("netlink bind: %w", err)
	}

	w.fd = fd
	return nil
}

func (w *linuxWatcher) closeSocket() {
	if w.fd >= 0 {
		unix.Close(w.fd)
		w.fd = -1
	}
}

func (w *linuxWatcher) scan() ([]rawDevice, error) {
	return scanUSBDevices(w.devicesDir())
}

func (w *linuxWatcher) run(notify chan<- rawEvent) {
	w.loopDone = make(chan struct{})
	go w.loop(notify)
}

// shutdown stops the background loop and waits for it to terminate. Safe
// to call more than once, and usable even when run was never started
// (the one-shot Discover path).
func (w *linuxWatcher) shutdown() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.loopDone != nil {
		<-w.loopDone
	} else {
		w.closeSocket()
	}
}

func (w *linuxWatcher) stopped() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// loop alternates between socket mode and degraded polling mode until
// shutdown. seen is the per-device identity table: removal events are
// matched against it instead of re-reading attributes that are already
// gone by the time the event is processed.
func (w *linuxWatcher) loop(notify chan<- rawEvent) {
	defer close(w.loopDone)
	defer w.closeSocket()

	// Start from an empty table and reconcile immediately: every device
	// visible now is announced, including any that attached after the
	// caller's baseline scan. Duplicates are suppressed downstream.
	seen := make(map[string]rawDevice)
	w.reconcile(notify, seen)

	for !w.stopped() {
		if w.fd >= 0 {
			w.socketLoop(notify, seen)
		} else {
			w.pollLoop(notify, seen)
		}
	}
}

// socketLoop consumes uevents until the socket breaks or shutdown is
// requested. On a read failure the socket is closed and the caller falls
// back to polling.
func (w *linuxWatcher) socketLoop(notify chan<- rawEvent, seen map[string]rawDevice) {
	buf := make([]byte, ueventBufferSize)
	pollFds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}

	for !w.stopped() {
		pollFds[0].Fd = int32(w.fd)
		pollFds[0].Revents = 0

		n, err := unix.Poll(pollFds, int(socketPollTimeout.Milliseconds()))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			w.log.Warn().Err(err).Msg("uevent socket poll failed, reconnecting")
			w.closeSocket()
			return
		}
		if n == 0 {
			continue
		}
		if pollFds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			w.log.Warn().Msg("uevent socket broken, reconnecting")
			w.closeSocket()
			return
		}

		size, err := unix.Read(w.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			if err == unix.ENOBUFS {
				// Kernel dropped events while we were behind; a
				// rescan reconciles the missed churn.
				w.log.Warn().Msg("uevent socket overflow, rescanning")
				w.reconcile(notify, seen)
				continue
			}
			w.log.Warn().Err(err).Msg("uevent socket read failed, reconnecting")
			w.closeSocket()
			return
		}

		w.handleUEvent(buf[:size], notify, seen)
	}
}

// pollLoop is the degraded mode: full sysfs rescans at PollInterval with
// snapshot diffing, plus a socket reconnect attempt every
// KeepAliveInterval. Returns when the socket is back or shutdown is
// requested.
func (w *linuxWatcher) pollLoop(notify chan<- rawEvent, seen map[string]rawDevice) {
	lastReconnect := time.Now()

	for !w.stopped() {
		if !sleepOrStop(w.cfg.PollInterval, w.stop) {
			return
		}

		w.reconcile(notify, seen)

		if time.Since(lastReconnect) >= w.cfg.KeepAliveInterval {
			lastReconnect = time.Now()
			if err := w.openSocket(); err == nil {
				w.log.Info().Msg("uevent socket reconnected")
				// Catch up on anything that changed right around
				// the reconnect before trusting the socket again.
				w.reconcile(notify, seen)
				return
			}
		}
	}
}

// reconcile diffs a fresh scan against the identity table and synthesizes
// the missing attach/detach occurrences.
func (w *linuxWatcher) reconcile(notify chan<- rawEvent, seen map[string]rawDevice) {
	devices, err := w.scan()
	if err != nil {
		w.log.Warn().Err(err).Msg("sysfs scan failed")
		return
	}

	curr := snapshotMap(devices)
	added, removed := diffSnapshots(seen, curr)

	for _, dev := range added {
		seen[dev.key] = dev
		w.send(notify, rawEvent{action: rawAttach, dev: dev})
	}
	for _, key := range removed {
		delete(seen, key)
		w.send(notify, rawEvent{action: rawDetach, dev: rawDevice{key: key}})
	}
}

// handleUEvent parses one netlink datagram and turns it into at most one
// raw occurrence. Interface-node events are backtracked to the nearest
// attribute-bearing ancestor; events with no such ancestor are dropped.
func (w *linuxWatcher) handleUEvent(data []byte, notify chan<- rawEvent, seen map[string]rawDevice) {
	evt := parseUEvent(data)
	if evt.subsystem != "usb" || evt.devpath == "" {
		return
	}

	nodePath := filepath.Join(w.sysRoot, evt.devpath)

	switch evt.action {
	case "add":
		if evt.devtype != "usb_device" {
			nodePath = resolveDeviceAncestor(w.sysRoot, nodePath)
			if nodePath == "" {
				return
			}
		}
		if _, ok := seen[nodePath]; ok {
			// Interface events of an already-announced device.
			return
		}
		info, ok := parseUSBDevice(nodePath)
		if !ok {
			return
		}
		dev := rawDevice{key: nodePath, info: info}
		seen[nodePath] = dev
		w.send(notify, rawEvent{action: rawAttach, dev: dev})

	case "remove":
		if evt.devtype != "usb_device" {
			return
		}
		if _, ok := seen[nodePath]; !ok {
			return
		}
		delete(seen, nodePath)
		w.send(notify, rawEvent{action: rawDetach, dev: rawDevice{key: nodePath}})
	}
}

func (w *linuxWatcher) send(notify chan<- rawEvent, ev rawEvent) {
	select {
	case notify <- ev:
	case <-w.stop:
	}
}

// uevent is one parsed kernel device notification.
type uevent struct {
	action    string
	devpath   string
	subsystem string
	devtype   string
}

// parseUEvent splits a uevent datagram into its null-separated KEY=VALUE
// records. The leading "action@devpath" summary line is redundant with the
// ACTION and DEVPATH records but kept as a fallback.
func parseUEvent(data []byte) uevent {
	var evt uevent

	for _, line := range bytes.Split(data, []byte{0}) {
		if len(line) == 0 {
			continue
		}
		s := string(line)

		idx := strings.IndexByte(s, '=')
		if idx < 0 {
			if at := strings.IndexByte(s, '@'); at > 0 {
				if evt.action == "" {
					evt.action = s[:at]
				}
				if evt.devpath == "" {
					evt.devpath = s[at+1:]
				}
			}
			continue
		}

		switch s[:idx] {
		case "ACTION":
			evt.action = s[idx+1:]
		case "DEVPATH":
			evt.devpath = s[idx+1:]
		case "SUBSYSTEM":
			evt.subsystem = s[idx+1:]
		case "DEVTYPE":
			evt.devtype = s[idx+1:]
		}
	}

	return evt
}
