package sched

import "golang.org/x/sys/unix"

// Realtime returns monotonic nanoseconds.
func Realtime() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		panic("no monotonic clock")
	}
	return uint64(ts.Nano())
}
