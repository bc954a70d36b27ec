// Package timer provides one-shot timers that threads can wait on. Each
// timer owns a wait queue; expiry runs on its own goroutine, the analogue
// of the timer interrupt, and wakes that queue.
package timer

import "fmt"
import "io"
import "math"
import "sync/atomic"
import "time"

import "github.com/HExSA-Lab/nautilus-sub003/defs"
import "github.com/HExSA-Lab/nautilus-sub003/klog"
import "github.com/HExSA-Lab/nautilus-sub003/limits"
import "github.com/HExSA-Lab/nautilus-sub003/objreg"
import "github.com/HExSA-Lab/nautilus-sub003/sched"
import "github.com/HExSA-Lab/nautilus-sub003/spinlock"
import "github.com/HExSA-Lab/nautilus-sub003/stats"
import "github.com/HExSA-Lab/nautilus-sub003/tinfo"
import "github.com/HExSA-Lab/nautilus-sub003/waitq"

const debug = false

var log = klog.Mklog("timer")

var Timers = objreg.Mkregistry("timer", "timer", log)

type timerstats_t struct {
	Nstart  stats.Counter_t
	Nfire   stats.Counter_t
	Ncancel stats.Counter_t
	Nstale  stats.Counter_t
}

var Stats timerstats_t

type Flags_t int

const (
	// expiry wakes every thread waiting on the timer
	WAIT_ALL Flags_t = 1 << iota
	// expiry wakes one waiting thread
	WAIT_ONE
	// expiry runs the callback in interrupt context
	CALLBACK
)

func (f Flags_t) String() string {
	switch f {
	case WAIT_ALL:
		return "wait-all"
	case WAIT_ONE:
		return "wait-one"
	case CALLBACK:
		return "callback"
	}
	return "UNKNOWN"
}

type State_t uint32

const (
	INACTIVE State_t = iota
	ACTIVE
	SIGNALLED
)

func (s State_t) String() string {
	switch s {
	case INACTIVE:
		return "inactive"
	case ACTIVE:
		return "ACTIVE"
	case SIGNALLED:
		return "SIGNALLED"
	}
	return "UNKNOWN"
}

type Timer_t struct {
	name  string
	state uint32
	// protects the fields below
	lock     spinlock.Spinlock_t
	flags    Flags_t
	deadline uint64
	cb       func()
	cpu      int
	// incremented whenever the timer is started or cancelled; an expiry
	// from an earlier generation is stale and ignored.
	gen   uint64
	hw    *time.Timer
	waitq *waitq.Waitq_t
	dead  bool
}

func Init() {
	Timers.Init()
}

func Deinit() defs.Err_t {
	return Timers.Deinit()
}

func Dump(w io.Writer) {
	Timers.Dump(w)
}

// Mktimer creates an inactive timer and its wait queue, named after the
// timer with a "-wait" suffix.
func Mktimer(name string) (*Timer_t, defs.Err_t) {
	if !limits.Syslimit.Timers.Take() {
		return nil, -defs.ENOMEM
	}
	tm := &Timer_t{}
	tm.name = Timers.Mkname(name)
	wq, err := waitq.Mkwaitq(tm.name + "-wait")
	if err != 0 {
		limits.Syslimit.Timers.Give()
		log.Error("timer allocation of wait queue failed", "name", tm.name)
		return nil, err
	}
	tm.waitq = wq
	Timers.Add(tm)
	return tm, 0
}

// Destroy cancels tm and frees it. Fails with -EBUSY while threads wait on
// it.
func (tm *Timer_t) Destroy() defs.Err_t {
	tm.Cancel()
	if err := tm.waitq.Destroy(); err != 0 {
		return err
	}
	tm.lock.Lock()
	tm.dead = true
	tm.lock.Unlock()
	Timers.Del(tm)
	limits.Syslimit.Timers.Give()
	return 0
}

// Thread_default returns t's own timer for bounded waits, creating it on
// first use. The timer is destroyed when t exits.
func Thread_default(t *tinfo.Tnote_t) (*Timer_t, defs.Err_t) {
	t.Lock()
	if tm, ok := t.Deftimer.(*Timer_t); ok {
		t.Unlock()
		return tm, 0
	}
	t.Unlock()
	tm, err := Mktimer(fmt.Sprintf("%s-%d-timer", t.Name, t.Tid))
	if err != 0 {
		return nil, err
	}
	t.Lock()
	t.Deftimer = tm
	t.Unlock()
	t.Atexit(func() {
		if err := tm.Destroy(); err != 0 {
			log.Error("cannot destroy thread timer", "name", tm.name, "err", err)
		}
	})
	return tm, 0
}

func (tm *Timer_t) Name() string {
	return tm.name
}

func (tm *Timer_t) Waitq() *waitq.Waitq_t {
	return tm.waitq
}

func (tm *Timer_t) State() State_t {
	return State_t(atomic.LoadUint32(&tm.state))
}

// Signalled reports whether the timer has expired since it was last
// started. Safe to call with wait queue locks held.
func (tm *Timer_t) Signalled() bool {
	return tm.State() == SIGNALLED
}

func (tm *Timer_t) Dump() string {
	tm.lock.Lock()
	defer tm.lock.Unlock()
	return fmt.Sprintf("%s : state=%s flags=%s deadline=%d cpu=%d",
		tm.name, tm.State(), tm.flags, tm.deadline, tm.cpu)
}

// Set configures tm to expire ns nanoseconds from now. cb is only used by
// CALLBACK timers. A set timer is inactive until started.
func (tm *Timer_t) Set(ns uint64, flags Flags_t, cb func(), cpu int) defs.Err_t {
	if flags != WAIT_ALL && flags != WAIT_ONE && flags != CALLBACK {
		return -defs.EINVAL
	}
	if flags == CALLBACK && cb == nil {
		return -defs.EINVAL
	}
	tm.lock.Lock()
	tm.stop()
	atomic.StoreUint32(&tm.state, uint32(INACTIVE))
	tm.flags = flags
	tm.deadline = deadline(ns)
	tm.cb = cb
	tm.cpu = cpu
	tm.lock.Unlock()
	if debug {
		log.Debug("set", "name", tm.name, "flags", flags, "ns", ns)
	}
	return 0
}

// Reset moves the deadline of a set timer to ns from now and deactivates
// it.
func (tm *Timer_t) Reset(ns uint64) {
	tm.lock.Lock()
	tm.stop()
	atomic.StoreUint32(&tm.state, uint32(INACTIVE))
	tm.deadline = deadline(ns)
	tm.lock.Unlock()
}

// deadline returns the time ns from now, saturating so that a huge ns
// means never rather than wrapping into the past.
func deadline(ns uint64) uint64 {
	now := sched.Realtime()
	if ns > math.MaxUint64-now {
		return math.MaxUint64
	}
	return now + ns
}

// tm.lock must be held
func (tm *Timer_t) stop() {
	tm.gen++
	if tm.hw != nil {
		tm.hw.Stop()
		tm.hw = nil
	}
}

func (tm *Timer_t) Start() defs.Err_t {
	tm.lock.Lock()
	if tm.dead {
		tm.lock.Unlock()
		return -defs.EINVAL
	}
	if tm.flags == 0 {
		tm.lock.Unlock()
		return -defs.EINVAL
	}
	tm.stop()
	atomic.StoreUint32(&tm.state, uint32(ACTIVE))
	gen := tm.gen
	var d time.Duration
	if now := sched.Realtime(); tm.deadline > now {
		left := tm.deadline - now
		if left > math.MaxInt64 {
			left = math.MaxInt64
		}
		d = time.Duration(left)
	}
	tm.hw = time.AfterFunc(d, func() { tm.expire(gen) })
	tm.lock.Unlock()
	Stats.Nstart.Inc()
	return 0
}

// expire runs in interrupt context.
func (tm *Timer_t) expire(gen uint64) {
	tm.lock.Lock()
	if tm.gen != gen || tm.State() != ACTIVE {
		tm.lock.Unlock()
		Stats.Nstale.Inc()
		return
	}
	// the state must be visible before the wakeup so that a sleeper
	// checking Signalled under the wait queue lock cannot miss both
	atomic.StoreUint32(&tm.state, uint32(SIGNALLED))
	tm.hw = nil
	flags, cb := tm.flags, tm.cb
	tm.lock.Unlock()
	Stats.Nfire.Inc()

	tm.signal(flags, cb)
}

func (tm *Timer_t) signal(flags Flags_t, cb func()) {
	var w waitq.Waker_i = tm.waitq
	switch flags {
	case WAIT_ALL:
		w.Wake_all()
	case WAIT_ONE:
		w.Wake_one()
	case CALLBACK:
		cb()
	}
}

// Cancel deactivates tm. Cancelling an active waiting timer wakes its
// waiters; cancelling an inactive or expired timer only clears its state.
func (tm *Timer_t) Cancel() defs.Err_t {
	tm.lock.Lock()
	active := tm.State() == ACTIVE
	tm.stop()
	atomic.StoreUint32(&tm.state, uint32(INACTIVE))
	flags := tm.flags
	tm.lock.Unlock()
	if active {
		Stats.Ncancel.Inc()
		if flags != CALLBACK {
			tm.signal(flags, nil)
		}
	}
	return 0
}

// Wait blocks t until tm expires.
func (tm *Timer_t) Wait(t *tinfo.Tnote_t) defs.Err_t {
	tm.lock.Lock()
	flags := tm.flags
	tm.lock.Unlock()
	if flags == CALLBACK {
		log.Error("trying to wait on a callback timer", "name", tm.name)
		return -defs.EINVAL
	}
	notactive := func() bool {
		return tm.State() != ACTIVE
	}
	tm.waitq.Sleep(t, notactive)
	if !tm.Signalled() {
		// cancelled or never started
		return -defs.EINTR
	}
	return 0
}

// Sleep blocks t for at least ns nanoseconds.
func Sleep(t *tinfo.Tnote_t, ns uint64) defs.Err_t {
	tm, err := Mktimer("")
	if err != 0 {
		log.Error("failed to allocate timer in sleep")
		return err
	}
	defer tm.Destroy()
	if err := tm.Set(ns, WAIT_ALL, nil, 0); err != 0 {
		return err
	}
	if err := tm.Start(); err != 0 {
		return err
	}
	return tm.Wait(t)
}
