// Package spinlock provides the busy-waiting lock that protects wait
// queues, semaphores and message queues. A holder never suspends; the only
// way to give up the CPU while holding one is to hand it to the scheduler
// (sched.Sleep), which releases it as part of parking the thread.
package spinlock

import "runtime"
import "sync/atomic"

// spins before yielding the processor to the lock holder
const attemptsBeforeYielding = 64

type Spinlock_t struct {
	state uint32
}

// Lock blocks until the lock can be acquired. Re-acquiring a lock already
// held by the caller deadlocks.
func (l *Spinlock_t) Lock() {
	for n := 0; ; n++ {
		if atomic.LoadUint32(&l.state) == 0 && atomic.CompareAndSwapUint32(&l.state, 0, 1) {
			return
		}
		if n >= attemptsBeforeYielding {
			runtime.Gosched()
			n = 0
		}
	}
}

// Trylock attempts to acquire the lock and reports whether it succeeded.
func (l *Spinlock_t) Trylock() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

func (l *Spinlock_t) Unlock() {
	if atomic.SwapUint32(&l.state, 0) != 1 {
		panic("unlock of unlocked spinlock")
	}
}

func (l *Spinlock_t) Held() bool {
	return atomic.LoadUint32(&l.state) != 0
}
