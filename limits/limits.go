package limits

import "sync/atomic"

// Sysatomic_t is a quota: the number of objects of one kind that may
// still be created.
type Sysatomic_t int64

type Syslimit_t struct {
	// live wait queues, including those owned by semaphores, mailboxes
	// and timers
	Waitqs Sysatomic_t
	// live semaphores
	Sems Sysatomic_t
	// live message queues
	Msgqs Sysatomic_t
	// live timers
	Timers Sysatomic_t
	// registered threads
	Threads Sysatomic_t
	// largest message queue capacity
	Msgqsize int
}

var Syslimit = MkSysLimit()

func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Waitqs:   1e5,
		Sems:     1e4,
		Msgqs:    1e4,
		Timers:   1e4,
		Threads:  1e4,
		Msgqsize: 1 << 20,
	}
}

// Given returns n units.
func (s *Sysatomic_t) Given(n uint) {
	atomic.AddInt64((*int64)(s), int64(n))
}

// Taken takes n units, all or none. It returns false if fewer than n are
// left.
func (s *Sysatomic_t) Taken(n uint) bool {
	p := (*int64)(s)
	for {
		left := atomic.LoadInt64(p)
		if left < int64(n) {
			return false
		}
		if atomic.CompareAndSwapInt64(p, left, left-int64(n)) {
			return true
		}
	}
}

func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

func (s *Sysatomic_t) Give() {
	s.Given(1)
}

// number of units left
func (s *Sysatomic_t) Left() int64 {
	return atomic.LoadInt64((*int64)(s))
}
