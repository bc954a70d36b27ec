// Package msgq implements bounded FIFO message queues of opaque values.
// Threads block in Push and Pull; interrupt handlers may only use the
// Isr_i subset.
package msgq

import "fmt"
import "io"
import "sync/atomic"

import "github.com/HExSA-Lab/nautilus-sub003/caller"
import "github.com/HExSA-Lab/nautilus-sub003/circbuf"
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

var log = klog.Mklog("msg_queue")

var Msgqs = objreg.Mkregistry("msg_queue", "msg_queue", log)

type mqstats_t struct {
	Npush    stats.Counter_t
	Npull    stats.Counter_t
	Nblock   stats.Counter_t
	Ntimeout stats.Counter_t
	Nidrm    stats.Counter_t
}

var Stats mqstats_t

// Isr_i is the part of a message queue that interrupt handlers may use.
// Neither method spins or suspends.
type Isr_i interface {
	Try_push(v interface{}) defs.Err_t
	Try_pull() (interface{}, defs.Err_t)
}

type Msgq_t struct {
	name string
	lock spinlock.Spinlock_t
	// protected by lock
	cb circbuf.Circbuf_t
	// copies of the ring's state, written under lock and read atomically
	// by wake conditions and dump
	count    int64
	npush    uint64
	npull    uint64
	size     int64
	refcount int64
	dead     uint32
	pushwq   *waitq.Waitq_t
	pullwq   *waitq.Waitq_t
}

func Init() {
	Msgqs.Init()
}

// Deinit fails with -EBUSY while message queues remain.
func Deinit() defs.Err_t {
	return Msgqs.Deinit()
}

func Dump(w io.Writer) {
	Msgqs.Dump(w)
}

// Mkmsgq creates a message queue holding up to size values, with one
// reference. An empty name is replaced by a generated one.
func Mkmsgq(name string, size int) (*Msgq_t, defs.Err_t) {
	if !limits.Syslimit.Msgqs.Take() {
		return nil, -defs.ENOMEM
	}
	q := &Msgq_t{}
	q.name = Msgqs.Mkname(name)
	if debug {
		log.Debug("create", "name", q.name, "size", size)
	}
	if err := q.cb.Cb_init(size); err != 0 {
		limits.Syslimit.Msgqs.Give()
		log.Error("cannot allocate ring", "name", q.name, "size", size, "err", err)
		return nil, err
	}
	var err defs.Err_t
	if q.pushwq, err = waitq.Mkwaitq(""); err != 0 {
		q.cb.Cb_release()
		limits.Syslimit.Msgqs.Give()
		log.Error("failed to allocate push wait queue", "name", q.name)
		return nil, err
	}
	if q.pullwq, err = waitq.Mkwaitq(""); err != 0 {
		q.pushwq.Destroy()
		q.cb.Cb_release()
		limits.Syslimit.Msgqs.Give()
		log.Error("failed to allocate pull wait queue", "name", q.name)
		return nil, err
	}
	q.size = int64(size)
	q.refcount = 1
	Msgqs.Add(q)
	return q, 0
}

// Find returns the message queue with the given name, ignoring case, and
// attaches to it.
func Find(name string) (*Msgq_t, bool) {
	o, ok := Msgqs.Find(name)
	if !ok {
		return nil, false
	}
	q := o.(*Msgq_t)
	if !q.attach() {
		return nil, false
	}
	return q, true
}

func (q *Msgq_t) Name() string {
	return q.name
}

func (q *Msgq_t) Size() int {
	return int(q.size)
}

func (q *Msgq_t) Len() int {
	return int(atomic.LoadInt64(&q.count))
}

func (q *Msgq_t) Full() bool {
	return atomic.LoadInt64(&q.count) == q.size
}

func (q *Msgq_t) Empty() bool {
	return atomic.LoadInt64(&q.count) == 0
}

func (q *Msgq_t) Refcount() int {
	return int(atomic.LoadInt64(&q.refcount))
}

func (q *Msgq_t) Dump() string {
	return fmt.Sprintf("%s : refcount=%d cur_count=%d cur_push=%d cur_pull=%d",
		q.name, atomic.LoadInt64(&q.refcount), atomic.LoadInt64(&q.count),
		atomic.LoadUint64(&q.npush), atomic.LoadUint64(&q.npull))
}

func (q *Msgq_t) isdead() bool {
	return atomic.LoadUint32(&q.dead) != 0
}

// wake conditions of bounded waiters
func (q *Msgq_t) notfull() bool {
	return atomic.LoadInt64(&q.count) < q.size || q.isdead()
}

func (q *Msgq_t) notempty() bool {
	return atomic.LoadInt64(&q.count) > 0 || q.isdead()
}

func (q *Msgq_t) attach() bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.isdead() {
		return false
	}
	atomic.AddInt64(&q.refcount, 1)
	return true
}

func (q *Msgq_t) Attach() {
	if !q.attach() {
		caller.Fatal(log, "attach to released queue", "name", q.name)
	}
}

// Release drops a reference. Dropping the last one removes q and discards
// any values still queued; threads blocked on it wake with -EIDRM.
func (q *Msgq_t) Release() {
	q.lock.Lock()
	if q.isdead() {
		q.lock.Unlock()
		caller.Fatal(log, "release of released queue", "name", q.name)
	}
	if atomic.AddInt64(&q.refcount, -1) > 0 {
		q.lock.Unlock()
		return
	}
	atomic.StoreUint32(&q.dead, 1)
	q.cb.Cb_release()
	q.lock.Unlock()

	Msgqs.Del(q)
	for _, wq := range []*waitq.Waitq_t{q.pushwq, q.pullwq} {
		wq.Wake_all()
		if err := wq.Destroy(); err != 0 {
			caller.Fatal(log, "sleepers after release", "name", q.name, "err", err)
		}
	}
	limits.Syslimit.Msgqs.Give()
	if debug {
		log.Debug("released", "name", q.name)
	}
}

// q.lock must be held
func (q *Msgq_t) put_locked(v interface{}) bool {
	if !q.cb.Put(v) {
		return false
	}
	atomic.AddInt64(&q.count, 1)
	atomic.StoreUint64(&q.npush, q.cb.Head())
	Stats.Npush.Inc()
	return true
}

// q.lock must be held
func (q *Msgq_t) get_locked() (interface{}, bool) {
	v, ok := q.cb.Get()
	if !ok {
		return nil, false
	}
	atomic.AddInt64(&q.count, -1)
	atomic.StoreUint64(&q.npull, q.cb.Tail())
	Stats.Npull.Inc()
	return v, true
}

// Try_push appends v without blocking, failing with -EWOULDBLOCK if q is
// full or its lock is contested. Safe to call with no current thread.
func (q *Msgq_t) Try_push(v interface{}) defs.Err_t {
	if !q.lock.Trylock() {
		return -defs.EWOULDBLOCK
	}
	if q.isdead() {
		q.lock.Unlock()
		return -defs.EIDRM
	}
	ok := q.put_locked(v)
	q.lock.Unlock()
	if !ok {
		return -defs.EWOULDBLOCK
	}
	q.pullwq.Wake_one()
	return 0
}

// Try_pull removes the oldest value without blocking, failing with
// -EWOULDBLOCK if q is empty or its lock is contested. Safe to call with
// no current thread.
func (q *Msgq_t) Try_pull() (interface{}, defs.Err_t) {
	if !q.lock.Trylock() {
		return nil, -defs.EWOULDBLOCK
	}
	if q.isdead() {
		q.lock.Unlock()
		return nil, -defs.EIDRM
	}
	v, ok := q.get_locked()
	q.lock.Unlock()
	if !ok {
		return nil, -defs.EWOULDBLOCK
	}
	q.pushwq.Wake_one()
	return v, 0
}

// Push appends v, blocking t while q is full.
func (q *Msgq_t) Push(t *tinfo.Tnote_t, v interface{}) defs.Err_t {
	for {
		q.lock.Lock()
		if q.isdead() {
			q.lock.Unlock()
			Stats.Nidrm.Inc()
			return -defs.EIDRM
		}
		if q.put_locked(v) {
			q.lock.Unlock()
			q.pullwq.Wake_one()
			return 0
		}
		if debug {
			log.Debug("push sleep", "name", q.name, "tid", t.Tid)
		}
		Stats.Nblock.Inc()
		t.Setstatus(tinfo.WAITING)
		q.pushwq.Enqueue(t)
		sched.Sleep(t, &q.lock)
		// another pusher may have refilled q first
	}
}

// Pull removes the oldest value, blocking t while q is empty.
func (q *Msgq_t) Pull(t *tinfo.Tnote_t) (interface{}, defs.Err_t) {
	for {
		q.lock.Lock()
		if q.isdead() {
			q.lock.Unlock()
			Stats.Nidrm.Inc()
			return nil, -defs.EIDRM
		}
		if v, ok := q.get_locked(); ok {
			q.lock.Unlock()
			q.pushwq.Wake_one()
			return v, 0
		}
		if debug {
			log.Debug("pull sleep", "name", q.name, "tid", t.Tid)
		}
		Stats.Nblock.Inc()
		t.Setstatus(tinfo.WAITING)
		q.pullwq.Enqueue(t)
		sched.Sleep(t, &q.lock)
	}
}

// bounded runs op under q.lock until it succeeds or ns nanoseconds have
// passed, sleeping on wq and t's timer in between.
func (q *Msgq_t) bounded(t *tinfo.Tnote_t, ns uint64, wq *waitq.Waitq_t,
	ready waitq.Cond_t, op func() bool) defs.Err_t {
	start := sched.Realtime()
	tm, err := timer.Thread_default(t)
	if err != 0 {
		return err
	}
	qs := []*waitq.Waitq_t{wq, tm.Waitq()}
	conds := []waitq.Cond_t{ready, tm.Signalled}
	for {
		q.lock.Lock()
		if q.isdead() {
			q.lock.Unlock()
			Stats.Nidrm.Inc()
			return -defs.EIDRM
		}
		// try before checking the clock, so that a wakeup absorbed by a
		// racing timer expiry is not wasted
		if op() {
			q.lock.Unlock()
			return 0
		}
		el := sched.Realtime() - start
		q.lock.Unlock()
		if el >= ns {
			Stats.Ntimeout.Inc()
			return -defs.ETIMEDOUT
		}
		tm.Set(ns-el, timer.WAIT_ALL, nil, t.Cpu)
		tm.Start()
		waitq.Sleep_multiple(t, qs, conds)
		tm.Cancel()
	}
}

// Push_timeout is Push, giving up with -ETIMEDOUT after ns nanoseconds.
func (q *Msgq_t) Push_timeout(t *tinfo.Tnote_t, v interface{}, ns uint64) defs.Err_t {
	err := q.bounded(t, ns, q.pushwq, q.notfull, func() bool {
		return q.put_locked(v)
	})
	if err == 0 {
		q.pullwq.Wake_one()
	}
	return err
}

// Pull_timeout is Pull, giving up with -ETIMEDOUT after ns nanoseconds.
func (q *Msgq_t) Pull_timeout(t *tinfo.Tnote_t, ns uint64) (interface{}, defs.Err_t) {
	var v interface{}
	err := q.bounded(t, ns, q.pullwq, q.notempty, func() bool {
		var ok bool
		v, ok = q.get_locked()
		return ok
	})
	if err != 0 {
		return nil, err
	}
	q.pushwq.Wake_one()
	return v, 0
}
