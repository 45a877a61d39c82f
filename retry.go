package usbresolver

import "time"

// retryBackoff calls fn until it succeeds or the attempt budget runs out,
// sleeping between attempts with a delay that doubles each time. It is an
// explicit iterative loop rather than recursion so the behavior under
// sustained failure is bounded and verifiable: worst case it sleeps
// initial * (2^(attempts-1) - 1) in total and then gives up.
//
// The stop channel aborts the wait early; sleep reports false when stopped.
func retryBackoff(attempts int, initial time.Duration, stop <-chan struct{}, fn func() bool) bool {
	delay := initial
	for i := 0; i < attempts; i++ {
		if fn() {
			return true
		}
		if i == attempts-1 {
			break
		}
		if !sleepOrStop(delay, stop) {
			return false
		}
		delay *= 2
	}
	return false
}

// sleepOrStop sleeps for d unless stop closes first.
func sleepOrStop(d time.Duration, stop <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	}
}
