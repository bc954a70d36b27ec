// Package waitq implements wait queues on which threads block pending an
// event. A thread may wait on several queues at once; whichever queue is
// signalled first wakes it, and the thread then removes itself from the
// rest.
//
// Wake paths may run in interrupt context and must not log: the console
// itself may be waiting on a wait queue.
package waitq

import "fmt"
import "io"
import "sort"
import "sync/atomic"

import "github.com/gammazero/deque"

import "github.com/HExSA-Lab/nautilus-sub003/caller"
import "github.com/HExSA-Lab/nautilus-sub003/defs"
import "github.com/HExSA-Lab/nautilus-sub003/klog"
import "github.com/HExSA-Lab/nautilus-sub003/limits"
import "github.com/HExSA-Lab/nautilus-sub003/objreg"
import "github.com/HExSA-Lab/nautilus-sub003/sched"
import "github.com/HExSA-Lab/nautilus-sub003/spinlock"
import "github.com/HExSA-Lab/nautilus-sub003/stats"
import "github.com/HExSA-Lab/nautilus-sub003/tinfo"

const debug = false

var log = klog.Mklog("waitqueue")

var Waitqs = objreg.Mkregistry("waitqueue", "waitqueue", log)

type wqstats_t struct {
	Nsleep   stats.Counter_t
	Nmulti   stats.Counter_t
	Nfast    stats.Counter_t
	Nwake    stats.Counter_t
	Nalready stats.Counter_t
}

var Stats wqstats_t

// Waker_i is the part of a wait queue that interrupt handlers may use.
// None of its methods suspend.
type Waker_i interface {
	Wake_one() bool
	Wake_all() int
}

// Cond_t reports whether the event a sleeper waits for has already
// happened. It is evaluated with the queue lock(s) held and must not block.
type Cond_t func() bool

// lock order for multi-queue operations
var wqseq uint64

type Waitq_t struct {
	name string
	seq  uint64
	lock spinlock.Spinlock_t
	// registrations, oldest first. only tids are kept; the queue never
	// owns a thread.
	list    deque.Deque[defs.Tid_t]
	numwait int64
	dead    bool
}

func Init() {
	Waitqs.Init()
}

// Deinit fails with -EBUSY if wait queues remain.
func Deinit() defs.Err_t {
	return Waitqs.Deinit()
}

func Dump(w io.Writer) {
	Waitqs.Dump(w)
}

// Mkwaitq creates a wait queue. An empty name is replaced by a generated
// one. Fails with -ENOMEM when the wait queue limit is reached.
func Mkwaitq(name string) (*Waitq_t, defs.Err_t) {
	if !limits.Syslimit.Waitqs.Take() {
		return nil, -defs.ENOMEM
	}
	q := &Waitq_t{}
	q.name = Waitqs.Mkname(name)
	q.seq = atomic.AddUint64(&wqseq, 1)
	Waitqs.Add(q)
	if debug {
		log.Debug("create", "name", q.name)
	}
	return q, 0
}

// Destroy fails with -EBUSY if threads are waiting on q.
func (q *Waitq_t) Destroy() defs.Err_t {
	q.lock.Lock()
	if q.list.Len() != 0 {
		q.lock.Unlock()
		return -defs.EBUSY
	}
	if q.dead {
		q.lock.Unlock()
		caller.Fatal(log, "double destroy", "name", q.name)
	}
	q.dead = true
	q.lock.Unlock()
	Waitqs.Del(q)
	limits.Syslimit.Waitqs.Give()
	if debug {
		log.Debug("destroy", "name", q.name)
	}
	return 0
}

func (q *Waitq_t) Name() string {
	return q.name
}

func (q *Waitq_t) Numwait() int64 {
	return atomic.LoadInt64(&q.numwait)
}

func (q *Waitq_t) Dump() string {
	return fmt.Sprintf("%-32s %d waiters", q.name, q.Numwait())
}

func (q *Waitq_t) Empty() bool {
	return q.Numwait() == 0
}

// Lock and Unlock give callers of the *_locked variants control over the
// queue lock.
func (q *Waitq_t) Lock() {
	q.lock.Lock()
}

func (q *Waitq_t) Unlock() {
	q.lock.Unlock()
}

// q must be locked. enqueueing a thread twice on one queue is a kernel bug.
func (q *Waitq_t) Enqueue_locked(t *tinfo.Tnote_t) {
	if q.dead {
		caller.Fatal(log, "enqueue on destroyed queue", "name", q.name, "tid", t.Tid)
	}
	if q.list.Index(func(tid defs.Tid_t) bool { return tid == t.Tid }) >= 0 {
		caller.Fatal(log, "thread already queued", "name", q.name, "tid", t.Tid)
	}
	q.list.PushBack(t.Tid)
	t.Addwait(1)
	atomic.AddInt64(&q.numwait, 1)
}

func (q *Waitq_t) Enqueue(t *tinfo.Tnote_t) {
	q.lock.Lock()
	q.Enqueue_locked(t)
	q.lock.Unlock()
}

// Dequeue_locked removes the oldest registration and returns its thread,
// or nil if q is empty. q must be locked.
func (q *Waitq_t) Dequeue_locked() *tinfo.Tnote_t {
	if q.list.Len() == 0 {
		return nil
	}
	tid := q.list.PopFront()
	atomic.AddInt64(&q.numwait, -1)
	t, ok := tinfo.Threads.Get(tid)
	if !ok {
		caller.Fatal(log, "queued thread has exited", "name", q.name, "tid", tid)
	}
	t.Addwait(-1)
	return t
}

func (q *Waitq_t) Dequeue() *tinfo.Tnote_t {
	q.lock.Lock()
	t := q.Dequeue_locked()
	q.lock.Unlock()
	return t
}

// Remove_specific_locked removes t's registration if present and reports
// whether it was. Removing an absent registration is not an error. q must
// be locked.
func (q *Waitq_t) Remove_specific_locked(t *tinfo.Tnote_t) bool {
	i := q.list.Index(func(tid defs.Tid_t) bool { return tid == t.Tid })
	if i < 0 {
		return false
	}
	q.list.Remove(i)
	atomic.AddInt64(&q.numwait, -1)
	t.Addwait(-1)
	return true
}

func (q *Waitq_t) Remove_specific(t *tinfo.Tnote_t) bool {
	q.lock.Lock()
	ret := q.Remove_specific_locked(t)
	q.lock.Unlock()
	return ret
}

// lockorder returns qs sorted into the global lock order.
func lockorder(qs []*Waitq_t) []*Waitq_t {
	ord := make([]*Waitq_t, len(qs))
	copy(ord, qs)
	sort.Slice(ord, func(i, j int) bool { return ord[i].seq < ord[j].seq })
	for i := 1; i < len(ord); i++ {
		if ord[i] == ord[i-1] {
			caller.Fatal(log, "queue listed twice", "name", ord[i].name)
		}
	}
	return ord
}

func lockall(ord []*Waitq_t) {
	for _, q := range ord {
		q.lock.Lock()
	}
}

func unlockall(ord []*Waitq_t) {
	for i := len(ord) - 1; i >= 0; i-- {
		ord[i].lock.Unlock()
	}
}

func Enqueue_multiple(qs []*Waitq_t, t *tinfo.Tnote_t) {
	ord := lockorder(qs)
	lockall(ord)
	for _, q := range qs {
		q.Enqueue_locked(t)
	}
	unlockall(ord)
}

// Dequeue_multiple removes t from every queue in qs it is still on.
func Dequeue_multiple(qs []*Waitq_t, t *tinfo.Tnote_t) {
	ord := lockorder(qs)
	lockall(ord)
	for _, q := range qs {
		q.Remove_specific_locked(t)
	}
	unlockall(ord)
}

// Sleep blocks t on q unless cond (which may be nil) already holds. The
// check and the enqueue happen under q's lock, and the lock is handed to
// the scheduler, so a waker cannot run between them.
func (q *Waitq_t) Sleep(t *tinfo.Tnote_t, cond Cond_t) {
	if t.Status() != tinfo.RUNNING {
		caller.Fatal(log, "sleep by non-running thread", "tid", t.Tid, "status", t.Status())
	}
	q.lock.Lock()
	if cond != nil && cond() {
		q.lock.Unlock()
		Stats.Nfast.Inc()
		if debug {
			log.Debug("fast wakeup", "name", q.name, "tid", t.Tid)
		}
		return
	}
	Stats.Nsleep.Inc()
	t.Setstatus(tinfo.WAITING)
	q.Enqueue_locked(t)
	if debug {
		log.Debug("sleep", "name", q.name, "tid", t.Tid)
	}
	sched.Sleep(t, &q.lock)
}

// Sleep_multiple blocks t on every queue in qs until one of them wakes it,
// unless some conds[i] already holds. conds may be shorter than qs and may
// contain nils. On return t is registered on none of the queues.
func Sleep_multiple(t *tinfo.Tnote_t, qs []*Waitq_t, conds []Cond_t) {
	if t.Status() != tinfo.RUNNING {
		caller.Fatal(log, "sleep by non-running thread", "tid", t.Tid, "status", t.Status())
	}
	if len(qs) == 0 || len(conds) > len(qs) {
		caller.Fatal(log, "bad multiple sleep", "queues", len(qs), "conds", len(conds))
	}
	ord := lockorder(qs)
	lockall(ord)
	for _, c := range conds {
		if c != nil && c() {
			unlockall(ord)
			Stats.Nfast.Inc()
			return
		}
	}
	Stats.Nmulti.Inc()
	t.Setstatus(tinfo.WAITING)
	for _, q := range qs {
		q.Enqueue_locked(t)
	}
	sched.Sleep_extended(t, func() { unlockall(ord) })
	// the waker removed us from one queue; leave the others
	Dequeue_multiple(qs, t)
}

// awaken wakes t if no other waker has already claimed it.
func awaken(q *Waitq_t, t *tinfo.Tnote_t) bool {
	if !t.Casstatus(tinfo.WAITING, tinfo.SUSPENDED) {
		Stats.Nalready.Inc()
		return false
	}
	if err := sched.Awaken(t); err != 0 {
		caller.Fatal(log, "failed to awaken thread", "name", q.name, "tid", t.Tid, "err", err)
	}
	Stats.Nwake.Inc()
	return true
}

// Wake_one_locked wakes the oldest waiter. It reports whether a thread was
// made runnable; a waiter already woken through another queue is dropped
// without effect. q must be locked. Safe in interrupt context.
func (q *Waitq_t) Wake_one_locked() bool {
	t := q.Dequeue_locked()
	if t == nil {
		return false
	}
	return awaken(q, t)
}

func (q *Waitq_t) Wake_one() bool {
	q.lock.Lock()
	ret := q.Wake_one_locked()
	q.lock.Unlock()
	return ret
}

// Wake_all_locked wakes every waiter and returns how many threads it made
// runnable. q must be locked. Safe in interrupt context.
func (q *Waitq_t) Wake_all_locked() int {
	n := 0
	for t := q.Dequeue_locked(); t != nil; t = q.Dequeue_locked() {
		if awaken(q, t) {
			n++
		}
	}
	return n
}

func (q *Waitq_t) Wake_all() int {
	q.lock.Lock()
	ret := q.Wake_all_locked()
	q.lock.Unlock()
	return ret
}
