//go:build !linux

package timer

import "time"

var epoch = time.Now()

// monotonicNow reads the runtime's monotonic clock. There are no kernel edge
// timestamps to match off Linux.
func monotonicNow() time.Duration {
	return time.Since(epoch)
}
