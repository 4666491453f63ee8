//go:build linux

package timer

import (
	"time"

	"golang.org/x/sys/unix"
)

var fallbackEpoch = time.Now()

// monotonicNow reads CLOCK_MONOTONIC, the base of gpiocdev edge timestamps
// since Linux 5.7.
func monotonicNow() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return time.Since(fallbackEpoch)
	}
	return time.Duration(ts.Nano())
}
