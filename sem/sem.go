// Package sem implements counting semaphores. A semaphore may be shared by
// name; it lives until the last reference is released.
//
// Threads block in Down and Down_timeout. Interrupt handlers may only use
// the Isr_i subset.
package sem

import "fmt"
import "io"
import "sync/atomic"

import "github.com/HExSA-Lab/nautilus-sub003/caller"
import "github.com/HExSA-Lab/nautilus-sub003/defs"
import "github.com/HExSA-Lab/nautilus-sub003/klog"
import "github.com/HExSA-Lab/nautilus-sub003/limits"
import "github.com/HExSA-Lab/nautilus-sub003/objreg"
import "github.com/HExSA-Lab/nautilus-sub003/sched"
import "github.com/HExSA-Lab/nautilus-sub003/spinlock"
import "github.com/HExSA-Lab/nautilus-sub003/stats"
import "github.com/HExSA-Lab/nautilus-sub003/timer"
import "github.com/HExSA-Lab/nautilus-sub003/tinfo"
import "github.com/HExSA-Lab/nautilus-sub003/waitq"

const debug = false

var log = klog.Mklog("semaphore")

var Sems = objreg.Mkregistry("semaphore", "semaphore", log)

type semstats_t struct {
	Ndown    stats.Counter_t
	Nblock   stats.Counter_t
	Nresleep stats.Counter_t
	Nup      stats.Counter_t
	Ntimeout stats.Counter_t
	Nidrm    stats.Counter_t
}

var Stats semstats_t

// Isr_i is the part of a semaphore that interrupt handlers may use. Both
// methods fail with -EWOULDBLOCK rather than spin or suspend.
type Isr_i interface {
	Try_up() defs.Err_t
	Try_down() defs.Err_t
}

// warns once per call path that releases a semaphore with sleepers
var relwarn = caller.Distinct_caller_t{Enabled: true}

type Sem_t struct {
	name string
	lock spinlock.Spinlock_t
	// count > 0: down will not wait. count <= 0: -count threads are
	// blocked in Down. written under lock, read atomically by dump and by
	// bounded waiters' wake conditions.
	count    int64
	refcount int64
	// threads in Down_timeout that may be sleeping on wq without having
	// debited count
	prospective int64
	// threads blocked in Down that have not yet claimed a grant
	nblocked int64
	// units handed by Up to threads blocked in Down and not yet claimed;
	// never more than nblocked
	grants int64
	dead   uint32
	wq     *waitq.Waitq_t
}

func Init() {
	Sems.Init()
}

// Deinit fails with -EBUSY while semaphores remain.
func Deinit() defs.Err_t {
	return Sems.Deinit()
}

func Dump(w io.Writer) {
	Sems.Dump(w)
}

// Mksem creates a semaphore with the given initial count and one
// reference. An empty name is replaced by a generated one. A negative
// count is a debt that Ups pay off before any Down is admitted.
func Mksem(name string, count int) (*Sem_t, defs.Err_t) {
	if !limits.Syslimit.Sems.Take() {
		return nil, -defs.ENOMEM
	}
	s := &Sem_t{}
	s.name = Sems.Mkname(name)
	if debug {
		log.Debug("create", "name", s.name, "count", count)
	}
	wq, err := waitq.Mkwaitq("")
	if err != 0 {
		limits.Syslimit.Sems.Give()
		log.Error("failed to allocate wait queue", "name", s.name)
		return nil, err
	}
	s.wq = wq
	s.count = int64(count)
	s.refcount = 1
	Sems.Add(s)
	return s, 0
}

// Find returns the semaphore with the given name, ignoring case, and
// attaches to it.
func Find(name string) (*Sem_t, bool) {
	o, ok := Sems.Find(name)
	if !ok {
		if debug {
			log.Debug("find failed", "name", name)
		}
		return nil, false
	}
	s := o.(*Sem_t)
	if !s.attach() {
		// released between lookup and attach
		return nil, false
	}
	return s, true
}

func (s *Sem_t) Name() string {
	return s.name
}

func (s *Sem_t) Count() int {
	return int(atomic.LoadInt64(&s.count))
}

func (s *Sem_t) Refcount() int {
	return int(atomic.LoadInt64(&s.refcount))
}

func (s *Sem_t) Dump() string {
	return fmt.Sprintf("%s : refcount=%d count=%d", s.name,
		atomic.LoadInt64(&s.refcount), atomic.LoadInt64(&s.count))
}

func (s *Sem_t) isdead() bool {
	return atomic.LoadUint32(&s.dead) != 0
}

// the wake condition of bounded waiters
func (s *Sem_t) available() bool {
	return atomic.LoadInt64(&s.count) >= 1 || s.isdead()
}

func (s *Sem_t) attach() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.isdead() {
		return false
	}
	atomic.AddInt64(&s.refcount, 1)
	return true
}

// Attach adds a reference to s.
func (s *Sem_t) Attach() {
	if !s.attach() {
		caller.Fatal(log, "attach to released semaphore", "name", s.name)
	}
}

// Release drops a reference. Dropping the last one removes s; threads
// still blocked on it wake with -EIDRM.
func (s *Sem_t) Release() {
	s.lock.Lock()
	if s.isdead() {
		s.lock.Unlock()
		caller.Fatal(log, "release of released semaphore", "name", s.name)
	}
	if atomic.AddInt64(&s.refcount, -1) > 0 {
		s.lock.Unlock()
		return
	}
	atomic.StoreUint32(&s.dead, 1)
	s.lock.Unlock()

	Sems.Del(s)
	if s.wq.Numwait() != 0 {
		if ok, path := relwarn.Distinct(); ok {
			log.Warn("semaphore released with sleepers", "name", s.name, "path", path)
		}
	}
	s.wq.Wake_all()
	if err := s.wq.Destroy(); err != 0 {
		caller.Fatal(log, "sleepers after release", "name", s.name, "err", err)
	}
	limits.Syslimit.Sems.Give()
	if debug {
		log.Debug("released", "name", s.name)
	}
}

// s.lock must be held. returns the wake to issue once it is dropped.
func (s *Sem_t) up_locked() func() {
	old := atomic.AddInt64(&s.count, 1) - 1
	Stats.Nup.Inc()
	// a negative initial count leaves old < 0 with nobody blocked; such a
	// unit only pays down the debt
	owed := old < 0 && s.grants < s.nblocked
	switch {
	case owed && s.prospective > 0:
		s.grants++
		// the thread owed the unit may be queued behind bounded waiters
		return func() { s.wq.Wake_all() }
	case owed:
		s.grants++
		return func() { s.wq.Wake_one() }
	case s.prospective > 0:
		return func() { s.wq.Wake_one() }
	}
	return nil
}

func (s *Sem_t) Up() {
	s.lock.Lock()
	if s.isdead() {
		s.lock.Unlock()
		caller.Fatal(log, "up on released semaphore", "name", s.name)
	}
	wake := s.up_locked()
	s.lock.Unlock()
	if wake != nil {
		wake()
	}
}

// Try_up is Up for interrupt context. Safe to call with no current thread.
func (s *Sem_t) Try_up() defs.Err_t {
	if !s.lock.Trylock() {
		return -defs.EWOULDBLOCK
	}
	if s.isdead() {
		s.lock.Unlock()
		return -defs.EIDRM
	}
	wake := s.up_locked()
	s.lock.Unlock()
	if wake != nil {
		wake()
	}
	return 0
}

// Try_down takes a unit if one is available without blocking. Safe to
// call with no current thread.
func (s *Sem_t) Try_down() defs.Err_t {
	if !s.lock.Trylock() {
		return -defs.EWOULDBLOCK
	}
	defer s.lock.Unlock()
	if s.isdead() {
		return -defs.EIDRM
	}
	if atomic.LoadInt64(&s.count) <= 0 {
		return -defs.EWOULDBLOCK
	}
	atomic.AddInt64(&s.count, -1)
	Stats.Ndown.Inc()
	return 0
}

// Down takes a unit, blocking t until one is available. It returns -EIDRM
// if s is released while t waits.
func (s *Sem_t) Down(t *tinfo.Tnote_t) defs.Err_t {
	s.lock.Lock()
	if s.isdead() {
		s.lock.Unlock()
		return -defs.EIDRM
	}
	Stats.Ndown.Inc()
	if atomic.AddInt64(&s.count, -1) >= 0 {
		s.lock.Unlock()
		return 0
	}
	Stats.Nblock.Inc()
	if debug {
		log.Debug("down sleep", "name", s.name, "tid", t.Tid)
	}
	s.nblocked++
	for {
		// enqueue under s.lock, which the scheduler drops once t is
		// committed to sleep
		t.Setstatus(tinfo.WAITING)
		s.wq.Enqueue(t)
		sched.Sleep(t, &s.lock)

		s.lock.Lock()
		if s.isdead() {
			s.nblocked--
			s.lock.Unlock()
			Stats.Nidrm.Inc()
			return -defs.EIDRM
		}
		if s.grants > 0 {
			s.grants--
			s.nblocked--
			s.lock.Unlock()
			return 0
		}
		// woken for a unit another debited thread claimed; the count
		// still carries our debit
		Stats.Nresleep.Inc()
	}
}

// Down_timeout takes a unit, waiting at most ns nanoseconds. It returns
// -ETIMEDOUT if no unit became available in time. Unlike Down it does not
// debit the count before sleeping.
func (s *Sem_t) Down_timeout(t *tinfo.Tnote_t, ns uint64) defs.Err_t {
	start := sched.Realtime()
	tm, err := timer.Thread_default(t)
	if err != 0 {
		return err
	}
	qs := []*waitq.Waitq_t{s.wq, tm.Waitq()}
	conds := []waitq.Cond_t{s.available, tm.Signalled}
	for {
		s.lock.Lock()
		if s.isdead() {
			s.lock.Unlock()
			Stats.Nidrm.Inc()
			return -defs.EIDRM
		}
		// try before checking the clock: a wakeup this thread absorbed
		// while the timer raced it must still be acted upon
		if atomic.LoadInt64(&s.count) > 0 {
			atomic.AddInt64(&s.count, -1)
			s.lock.Unlock()
			Stats.Ndown.Inc()
			return 0
		}
		el := sched.Realtime() - start
		if el >= ns {
			s.lock.Unlock()
			Stats.Ntimeout.Inc()
			return -defs.ETIMEDOUT
		}
		s.prospective++
		s.lock.Unlock()

		tm.Set(ns-el, timer.WAIT_ALL, nil, t.Cpu)
		tm.Start()
		waitq.Sleep_multiple(t, qs, conds)
		tm.Cancel()

		s.lock.Lock()
		s.prospective--
		s.lock.Unlock()
	}
}
