//go:build !linux

package sched

import "time"

var boot = time.Now()

// Realtime returns monotonic nanoseconds.
func Realtime() uint64 {
	return uint64(time.Since(boot))
}
