package tinfo

import "sync"
import "sync/atomic"

import "github.com/HExSA-Lab/nautilus-sub003/defs"
import "github.com/HExSA-Lab/nautilus-sub003/hashtable"
import "github.com/HExSA-Lab/nautilus-sub003/limits"

type Status_t uint32

const (
	// running or runnable
	RUNNING Status_t = iota
	// registered on one or more wait queues and about to park or parked
	WAITING
	// woken by exactly one waker; will run again once it consumes its
	// wakeup
	SUSPENDED
	EXITED
)

func (s Status_t) String() string {
	switch s {
	case RUNNING:
		return "running"
	case WAITING:
		return "waiting"
	case SUSPENDED:
		return "suspended"
	case EXITED:
		return "exited"
	}
	return "???"
}

// Tnote_t is the per-thread state the blocking primitives need. Wait queues
// refer to a thread only by its Tid; the thread registry owns the note.
type Tnote_t struct {
	Tid  defs.Tid_t
	Name string
	Cpu  int
	// a wakeup is delivered by a single send; the buffer lets the waker
	// run before the sleeper has parked.
	Wakech chan struct{}
	status uint32
	// number of wait queues the thread is registered on
	numwait int64
	// protects Deftimer, Alive and onexit
	sync.Mutex
	// default timer for bounded waits, created lazily by the timer package
	Deftimer interface{}
	Alive    bool
	onexit   []func()
}

// Atexit registers f to run when t exits, for releasing per-thread
// objects other packages created on t's behalf.
func (t *Tnote_t) Atexit(f func()) {
	t.Lock()
	t.onexit = append(t.onexit, f)
	t.Unlock()
}

func (t *Tnote_t) Status() Status_t {
	return Status_t(atomic.LoadUint32(&t.status))
}

func (t *Tnote_t) Setstatus(s Status_t) {
	atomic.StoreUint32(&t.status, uint32(s))
}

// Casstatus atomically moves the thread from old to new. Only one of
// several racing wakers can move a thread out of WAITING.
func (t *Tnote_t) Casstatus(old, new Status_t) bool {
	return atomic.CompareAndSwapUint32(&t.status, uint32(old), uint32(new))
}

func (t *Tnote_t) Numwait() int64 {
	return atomic.LoadInt64(&t.numwait)
}

func (t *Tnote_t) Addwait(n int64) {
	if atomic.AddInt64(&t.numwait, n) < 0 {
		panic("negative wait count")
	}
}

type Threadinfo_t struct {
	Notes *hashtable.Hashtable_t[*Tnote_t]
	ntid  int64
}

var Threads = MkThreadinfo()

func MkThreadinfo() *Threadinfo_t {
	ti := &Threadinfo_t{}
	ti.Init()
	return ti
}

func (ti *Threadinfo_t) Init() {
	ti.Notes = hashtable.MkHash[*Tnote_t](256)
}

// Mkthread registers a new thread. Fails with -ENOMEM when the thread
// limit is reached.
func (ti *Threadinfo_t) Mkthread(name string) (*Tnote_t, defs.Err_t) {
	if !limits.Syslimit.Threads.Take() {
		return nil, -defs.ENOMEM
	}
	tid := defs.Tid_t(atomic.AddInt64(&ti.ntid, 1))
	t := &Tnote_t{
		Tid:    tid,
		Name:   defs.Truncname(name),
		Wakech: make(chan struct{}, 1),
		Alive:  true,
	}
	if !ti.Notes.Set(tid, t) {
		panic("tid reuse")
	}
	return t, 0
}

// Get resolves a tid. It takes no lock and is safe from interrupt context.
func (ti *Threadinfo_t) Get(tid defs.Tid_t) (*Tnote_t, bool) {
	return ti.Notes.Get(tid)
}

// Exit unregisters t. A thread must not exit while registered on a wait
// queue.
func (ti *Threadinfo_t) Exit(t *Tnote_t) {
	if t.Numwait() != 0 {
		panic("exiting thread is still queued")
	}
	t.Lock()
	t.Alive = false
	fs := t.onexit
	t.onexit = nil
	t.Unlock()
	for i := len(fs) - 1; i >= 0; i-- {
		fs[i]()
	}
	t.Setstatus(EXITED)
	ti.Notes.Del(t.Tid)
	limits.Syslimit.Threads.Give()
}

func (ti *Threadinfo_t) Len() int {
	return ti.Notes.Size()
}
