// Package sched is the part of the scheduler the blocking primitives
// consume: parking the calling thread with an atomic lock handoff and
// making a parked thread runnable again. Threads are goroutines; a parked
// thread blocks receiving on its wake channel.
package sched

import "runtime"

import "github.com/HExSA-Lab/nautilus-sub003/caller"
import "github.com/HExSA-Lab/nautilus-sub003/defs"
import "github.com/HExSA-Lab/nautilus-sub003/klog"
import "github.com/HExSA-Lab/nautilus-sub003/spinlock"
import "github.com/HExSA-Lab/nautilus-sub003/stats"
import "github.com/HExSA-Lab/nautilus-sub003/tinfo"

type schedstats_t struct {
	Nsleep  stats.Counter_t
	Nawaken stats.Counter_t
	Nspawn  stats.Counter_t
	Nexit   stats.Counter_t
}

var Stats schedstats_t

var log = klog.Mklog("sched")

// Sleep parks t, which must already be WAITING and registered on the wait
// queue protected by l. l is released only after t is committed to
// parking, so a waker that needs l cannot slip in between.
func Sleep(t *tinfo.Tnote_t, l *spinlock.Spinlock_t) {
	Sleep_extended(t, l.Unlock)
}

// Sleep_extended is Sleep for callers holding more than one lock; release
// drops all of them.
func Sleep_extended(t *tinfo.Tnote_t, release func()) {
	Stats.Nsleep.Inc()
	release()
	<-t.Wakech
	if !t.Casstatus(tinfo.SUSPENDED, tinfo.RUNNING) {
		caller.Fatal(log, "resumed thread was not suspended", "tid", t.Tid, "status", t.Status())
	}
}

// Awaken makes a SUSPENDED thread runnable. Only the waker that moved t
// from WAITING to SUSPENDED may call it.
func Awaken(t *tinfo.Tnote_t) defs.Err_t {
	if t.Status() != tinfo.SUSPENDED {
		return -defs.EINVAL
	}
	select {
	case t.Wakech <- struct{}{}:
	default:
		// a wakeup is already pending
		return -defs.EBUSY
	}
	Stats.Nawaken.Inc()
	return 0
}

func Yield() {
	runtime.Gosched()
}

// Spawn creates a thread running f. The thread exits when f returns.
func Spawn(name string, f func(t *tinfo.Tnote_t)) (*tinfo.Tnote_t, defs.Err_t) {
	t, err := tinfo.Threads.Mkthread(name)
	if err != 0 {
		return nil, err
	}
	Stats.Nspawn.Inc()
	go func() {
		defer func() {
			tinfo.Threads.Exit(t)
			Stats.Nexit.Inc()
		}()
		f(t)
	}()
	return t, 0
}
