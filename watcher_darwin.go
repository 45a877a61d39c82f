//go:build darwin

package usbresolver

/*
#cgo LDFLAGS: -framework CoreFoundation -framework IOKit
#include <stdlib.h>
#include <CoreFoundation/CoreFoundation.h>
#include <IOKit/IOKitLib.h>

extern void usbresolverDeviceArrived(void *refcon, io_iterator_t iterator);
extern void usbresolverDeviceTerminated(void *refcon, io_iterator_t iterator);
*/
import "C"

import (
	"fmt"
	"runtime"
	"runtime/cgo"
	"sync"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
)

// darwinWatcher observes USB hot-plug through IOKit matching
// notifications. Publish and terminate notifications for the IOUSBDevice
// class are delivered on a dedicated run-loop thread.
//
// Insertion races with asynchronous driver attachment: the /dev node of a
// serial device is created after the publish notification fires. The
// watcher retries the registry lookup with bounded exponential backoff
// (NodeRetries, NodeRetryDelay) before reporting the device without a
// usable node.
type darwinWatcher struct {
	cfg Config
	log zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}

	notify chan<- rawEvent

	// Owned by the run-loop thread after run starts.
	runLoopReady chan struct{}
	runLoop      C.CFRunLoopRef
	notifyPort   C.IONotificationPortRef
	handle       cgo.Handle
}

func newPlatformWatcher(cfg Config) watcher {
	return &darwinWatcher{
		cfg:          cfg,
		log:          cfg.Logger.With().Str("watcher", "darwin").Logger(),
		stop:         make(chan struct{}),
		runLoopReady: make(chan struct{}),
	}
}

// init checks the IOKit registry once. Matching-service lookup failing at
// startup means the subsystem is unobservable, which is the only fatal
// condition on this platform.
func (w *darwinWatcher) init() error {
	iter, err := usbServiceIterator()
	if err != nil {
		return err
	}
	C.IOObjectRelease(C.io_object_t(iter))
	return nil
}

func (w *darwinWatcher) scan() ([]rawDevice, error) {
	iter, err := usbServiceIterator()
	if err != nil {
		return nil, err
	}
	defer C.IOObjectRelease(C.io_object_t(iter))

	// Devices already present have had their drivers attached long ago;
	// a single registry pass is enough, no retry needed here.
	return w.collectDevices(iter, false), nil
}

func (w *darwinWatcher) run(notify chan<- rawEvent) {
	w.notify = notify
	w.loopDone = make(chan struct{})
	go w.runLoopThread()
}

// shutdown stops the run loop and waits for the thread to drain. The stop
// is cooperative: an in-flight callback finishes before the loop exits.
func (w *darwinWatcher) shutdown() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.loopDone == nil {
		return
	}
	<-w.runLoopReady

	// CFRunLoopStop is a no-op when the loop has not entered its run state
	// yet, so keep poking it until the thread confirms exit.
	for {
		if w.runLoop != 0 {
			C.CFRunLoopStop(w.runLoop)
		}
		select {
		case <-w.loopDone:
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// runLoopThread owns the notification port and the CFRunLoop. IOKit
// delivers matching notifications only to the run loop the port source
// was added to, so the thread is locked and runs until shutdown.
func (w *darwinWatcher) runLoopThread() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.loopDone)

	w.handle = cgo.NewHandle(w)
	defer w.handle.Delete()
	refcon := unsafe.Pointer(uintptr(w.handle))

	w.notifyPort = C.IONotificationPortCreate(0)
	if w.notifyPort == nil {
		w.log.Error().Msg("IONotificationPortCreate failed, watcher inert")
		close(w.runLoopReady)
		return
	}
	defer C.IONotificationPortDestroy(w.notifyPort)

	w.runLoop = C.CFRunLoopGetCurrent()
	source := C.IONotificationPortGetRunLoopSource(w.notifyPort)
	C.CFRunLoopAddSource(w.runLoop, source, C.kCFRunLoopDefaultMode)
	close(w.runLoopReady)

	published := C.CString("IOServicePublish")
	terminated := C.CString("IOServiceTerminate")
	defer C.free(unsafe.Pointer(published))
	defer C.free(unsafe.Pointer(terminated))

	var arrivedIter, terminatedIter C.io_iterator_t

	// Each registration consumes one reference to a matching dict.
	kr := C.IOServiceAddMatchingNotification(w.notifyPort, published,
		usbMatchingDict(),
		C.IOServiceMatchedCallback(C.usbresolverDeviceArrived), refcon, &arrivedIter)
	if kr != C.KERN_SUCCESS {
		w.log.Error().Int("kr", int(kr)).Msg("publish notification registration failed")
		return
	}
	defer C.IOObjectRelease(C.io_object_t(arrivedIter))

	kr = C.IOServiceAddMatchingNotification(w.notifyPort, terminated,
		usbMatchingDict(),
		C.IOServiceMatchedCallback(C.usbresolverDeviceTerminated), refcon, &terminatedIter)
	if kr != C.KERN_SUCCESS {
		w.log.Error().Int("kr", int(kr)).Msg("terminate notification registration failed")
		return
	}
	defer C.IOObjectRelease(C.io_object_t(terminatedIter))

	// Draining the iterators arms the notifications. The devices already
	// present show up here as well as in the baseline scan; the debounce
	// layer suppresses the duplicates.
	w.drainArrived(arrivedIter)
	w.drainTerminated(terminatedIter)

	select {
	case <-w.stop:
		return
	default:
	}

	C.CFRunLoopRun()
}

// drainArrived consumes an arrival iterator, resolving each service with
// the bounded dev-node retry.
func (w *darwinWatcher) drainArrived(iter C.io_iterator_t) {
	for _, dev := range w.collectDevices(iter, true) {
		w.send(rawEvent{action: rawAttach, dev: dev})
	}
}

// drainTerminated consumes a termination iterator. Device attributes are
// gone by now; only the registry path identity assigned at arrival is
// reported.
func (w *darwinWatcher) drainTerminated(iter C.io_iterator_t) {
	for {
		service := C.IOIteratorNext(iter)
		if service == 0 {
			return
		}
		key := registryEntryPath(service)
		C.IOObjectRelease(C.io_object_t(service))
		if key == "" {
			continue
		}
		w.send(rawEvent{action: rawDetach, dev: rawDevice{key: key}})
	}
}

// collectDevices walks a service iterator and parses each IOUSBDevice.
func (w *darwinWatcher) collectDevices(iter C.io_iterator_t, withRetry bool) []rawDevice {
	var devices []rawDevice
	for {
		service := C.IOIteratorNext(iter)
		if service == 0 {
			return devices
		}

		if dev, ok := w.parseService(service, withRetry); ok {
			devices = append(devices, dev)
		}
		C.IOObjectRelease(C.io_object_t(service))
	}
}

// parseService reads the identifying properties of one IOUSBDevice
// service. The registry entry path is the stable per-device identity;
// locationID encodes the physical port topology.
func (w *darwinWatcher) parseService(service C.io_service_t, withRetry bool) (rawDevice, bool) {
	key := registryEntryPath(service)
	if key == "" {
		return rawDevice{}, false
	}

	vid, ok := ioregNumber(service, "idVendor")
	if !ok {
		return rawDevice{}, false
	}
	pid, ok := ioregNumber(service, "idProduct")
	if !ok {
		return rawDevice{}, false
	}

	info := RawDeviceInfo{
		VID:        uint16(vid),
		PID:        uint16(pid),
		SystemPath: key,
	}
	if serial, ok := ioregString(service, "USB Serial Number"); ok {
		info.Serial = serial
	}
	locationID, _ := ioregNumber(service, "locationID")
	info.PortPath = fmt.Sprintf("0x%08x", uint32(locationID))

	var callout, dialin string
	lookup := func() bool {
		callout, dialin = findModemNodes(service)
		return callout != "" || dialin != ""
	}
	if withRetry {
		if !retryBackoff(w.cfg.NodeRetries, w.cfg.NodeRetryDelay, w.stop, lookup) {
			w.log.Debug().Str("device", info.String()).
				Msg("no serial node appeared within retry budget")
		}
	} else {
		lookup()
	}

	switch {
	case callout != "":
		info.SystemPath = callout
		info.SystemPathAlt = dialin
	case dialin != "":
		info.SystemPath = dialin
	}

	return rawDevice{key: key, info: info}, true
}

func (w *darwinWatcher) send(ev rawEvent) {
	select {
	case w.notify <- ev:
	case <-w.stop:
	}
}

//export usbresolverDeviceArrived
func usbresolverDeviceArrived(refcon unsafe.Pointer, iterator C.io_iterator_t) {
	w := cgo.Handle(uintptr(refcon)).Value().(*darwinWatcher)
	w.drainArrived(iterator)
}

//export usbresolverDeviceTerminated
func usbresolverDeviceTerminated(refcon unsafe.Pointer, iterator C.io_iterator_t) {
	w := cgo.Handle(uintptr(refcon)).Value().(*darwinWatcher)
	w.drainTerminated(iterator)
}

// usbMatchingDict returns a +1 matching dictionary for the IOUSBDevice
// class. IOServiceAddMatchingNotification and
// IOServiceGetMatchingServices both consume the reference.
func usbMatchingDict() C.CFMutableDictionaryRef {
	cls := C.CString("IOUSBDevice")
	defer C.free(unsafe.Pointer(cls))
	return C.IOServiceMatching(cls)
}

// usbServiceIterator returns an iterator over all currently registered
// IOUSBDevice services. Port 0 selects the default main port.
func usbServiceIterator() (C.io_iterator_t, error) {
	var iter C.io_iterator_t
	kr := C.IOServiceGetMatchingServices(0, usbMatchingDict(), &iter)
	if kr != C.KERN_SUCCESS {
		return 0, fmt.Errorf("IOServiceGetMatchingServices: kern_return %d", int(kr))
	}
	return iter, nil
}

// registryEntryPath returns the IOService-plane path of a registry entry.
func registryEntryPath(service C.io_service_t) string {
	plane := C.CString("IOService")
	defer C.free(unsafe.Pointer(plane))

	var buf C.io_string_t
	if C.IORegistryEntryGetPath(service, plane, &buf[0]) != C.KERN_SUCCESS {
		return ""
	}
	return C.GoString(&buf[0])
}

// findModemNodes searches the descendants of a USB device service for the
// serial driver's callout (/dev/cu.*) and dialin (/dev/tty.*) nodes.
func findModemNodes(service C.io_service_t) (callout, dialin string) {
	plane := C.CString("IOService")
	defer C.free(unsafe.Pointer(plane))

	var iter C.io_iterator_t
	kr := C.IORegistryEntryCreateIterator(service, plane,
		C.kIORegistryIterateRecursively, &iter)
	if kr != C.KERN_SUCCESS {
		return "", ""
	}
	defer C.IOObjectRelease(C.io_object_t(iter))

	for {
		child := C.IOIteratorNext(iter)
		if child == 0 {
			return callout, dialin
		}
		if callout == "" {
			if s, ok := ioregString(child, "IOCalloutDevice"); ok {
				callout = s
			}
		}
		if dialin == "" {
			if s, ok := ioregString(child, "IODialinDevice"); ok {
				dialin = s
			}
		}
		C.IOObjectRelease(C.io_object_t(child))
		if callout != "" && dialin != "" {
			return callout, dialin
		}
	}
}

// ioregNumber reads a CFNumber property from a registry entry.
func ioregNumber(service C.io_service_t, key string) (int64, bool) {
	ref := copyProperty(service, key)
	if ref == 0 {
		return 0, false
	}
	defer C.CFRelease(C.CFTypeRef(ref))

	if C.CFGetTypeID(C.CFTypeRef(ref)) != C.CFNumberGetTypeID() {
		return 0, false
	}

	var value C.longlong
	if C.CFNumberGetValue(C.CFNumberRef(ref), C.kCFNumberLongLongType,
		unsafe.Pointer(&value)) == 0 {
		return 0, false
	}
	return int64(value), true
}

// ioregString reads a CFString property from a registry entry.
func ioregString(service C.io_service_t, key string) (string, bool) {
	ref := copyProperty(service, key)
	if ref == 0 {
		return "", false
	}
	defer C.CFRelease(C.CFTypeRef(ref))

	if C.CFGetTypeID(C.CFTypeRef(ref)) != C.CFStringGetTypeID() {
		return "", false
	}

	cfStr := C.CFStringRef(ref)
	length := C.CFStringGetLength(cfStr)
	bufSize := C.CFStringGetMaximumSizeForEncoding(length, C.kCFStringEncodingUTF8) + 1

	buf := make([]byte, int(bufSize))
	if C.CFStringGetCString(cfStr, (*C.char)(unsafe.Pointer(&buf[0])), bufSize,
		C.kCFStringEncodingUTF8) == 0 {
		return "", false
	}
	return string(buf[:cIndexByte(buf)]), true
}

func cIndexByte(buf []byte) int {
	for i, b := range buf {
		if b == 0 {
			return i
		}
	}
	return len(buf)
}

// copyProperty wraps IORegistryEntryCreateCFProperty for a Go key.
func copyProperty(service C.io_service_t, key string) C.CFTypeRef {
	cKey := C.CString(key)
	defer C.free(unsafe.Pointer(cKey))

	cfKey := C.CFStringCreateWithCString(C.kCFAllocatorDefault, cKey, C.kCFStringEncodingUTF8)
	defer C.CFRelease(C.CFTypeRef(cfKey))

	return C.IORegistryEntryCreateCFProperty(C.io_registry_entry_t(service), cfKey,
		C.kCFAllocatorDefault, 0)
}
