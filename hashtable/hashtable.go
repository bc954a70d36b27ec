// Package hashtable maps thread ids to values. Lookups take no lock, so a
// waker in interrupt context can resolve a tid; writers lock one bucket.
package hashtable

import "fmt"
import "strings"
import "sync"
import "sync/atomic"

import "github.com/HExSA-Lab/nautilus-sub003/defs"

// chains are kept sorted by tid
type elem_t[V any] struct {
	tid   defs.Tid_t
	value V
	next  atomic.Pointer[elem_t[V]]
}

type bucket_t[V any] struct {
	sync.Mutex
	first atomic.Pointer[elem_t[V]]
}

type Hashtable_t[V any] struct {
	table []bucket_t[V]
	n     int64
}

func MkHash[V any](nbuckets int) *Hashtable_t[V] {
	if nbuckets <= 0 {
		panic("bad bucket count")
	}
	return &Hashtable_t[V]{table: make([]bucket_t[V], nbuckets)}
}

func (ht *Hashtable_t[V]) bucket(tid defs.Tid_t) *bucket_t[V] {
	// Knuth's multiplicative hash spreads sequential tids
	h := uint32(tid) * 2654435761
	return &ht.table[h%uint32(len(ht.table))]
}

func (ht *Hashtable_t[V]) Size() int {
	return int(atomic.LoadInt64(&ht.n))
}

// Get never blocks.
func (ht *Hashtable_t[V]) Get(tid defs.Tid_t) (V, bool) {
	for e := ht.bucket(tid).first.Load(); e != nil; e = e.next.Load() {
		if e.tid == tid {
			return e.value, true
		}
		if e.tid > tid {
			break
		}
	}
	var zero V
	return zero, false
}

// Set adds tid. It returns false, leaving the table unchanged, if tid is
// already present.
func (ht *Hashtable_t[V]) Set(tid defs.Tid_t, v V) bool {
	b := ht.bucket(tid)
	b.Lock()
	defer b.Unlock()
	prev := &b.first
	for e := prev.Load(); e != nil; e = prev.Load() {
		if e.tid == tid {
			return false
		}
		if e.tid > tid {
			break
		}
		prev = &e.next
	}
	n := &elem_t[V]{tid: tid, value: v}
	// publish only once n is complete
	n.next.Store(prev.Load())
	prev.Store(n)
	atomic.AddInt64(&ht.n, 1)
	return true
}

// Del removes tid, which must be present.
func (ht *Hashtable_t[V]) Del(tid defs.Tid_t) {
	b := ht.bucket(tid)
	b.Lock()
	defer b.Unlock()
	prev := &b.first
	for e := prev.Load(); e != nil; e = prev.Load() {
		if e.tid == tid {
			prev.Store(e.next.Load())
			atomic.AddInt64(&ht.n, -1)
			return
		}
		if e.tid > tid {
			break
		}
		prev = &e.next
	}
	panic(fmt.Sprintf("del of absent tid %d", tid))
}

// Iter calls f on each entry until f returns true. Entries added or
// removed concurrently may or may not be seen.
func (ht *Hashtable_t[V]) Iter(f func(defs.Tid_t, V) bool) bool {
	for i := range ht.table {
		for e := ht.table[i].first.Load(); e != nil; e = e.next.Load() {
			if f(e.tid, e.value) {
				return true
			}
		}
	}
	return false
}

func (ht *Hashtable_t[V]) String() string {
	var b strings.Builder
	for i := range ht.table {
		e := ht.table[i].first.Load()
		if e == nil {
			continue
		}
		fmt.Fprintf(&b, "bucket %d:", i)
		for ; e != nil; e = e.next.Load() {
			fmt.Fprintf(&b, " %d", e.tid)
		}
		b.WriteString("\n")
	}
	return b.String()
}
