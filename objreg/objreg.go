// Package objreg keeps the list of live named kernel objects of one kind,
// in creation order, for lookup by name and for the operator's dump
// commands. It is guarded by its own lock, independent of the objects'.
package objreg

import "fmt"
import "io"
import "strings"
import "sync/atomic"

import "github.com/gammazero/deque"

import "github.com/HExSA-Lab/nautilus-sub003/defs"
import "github.com/HExSA-Lab/nautilus-sub003/klog"
import "github.com/HExSA-Lab/nautilus-sub003/spinlock"

type Kobj_i interface {
	Name() string
	// one line describing the object's state
	Dump() string
}

type Registry_t struct {
	kind   string
	prefix string
	lock   spinlock.Spinlock_t
	objs   deque.Deque[Kobj_i]
	inited bool
	count  uint64
	log    *klog.Log_t
}

// Mkregistry returns a registry for objects whose generated names start
// with prefix.
func Mkregistry(kind, prefix string, log *klog.Log_t) *Registry_t {
	r := &Registry_t{kind: kind, prefix: prefix, log: log}
	return r
}

func (r *Registry_t) Init() {
	r.lock.Lock()
	r.inited = true
	r.lock.Unlock()
	r.log.Info("inited", "kind", r.kind)
}

// Deinit fails with -EBUSY while objects are still registered.
func (r *Registry_t) Deinit() defs.Err_t {
	r.lock.Lock()
	n := r.objs.Len()
	if n != 0 {
		r.lock.Unlock()
		r.log.Error("extant objects on deinit", "kind", r.kind, "count", n)
		return -defs.EBUSY
	}
	r.inited = false
	r.lock.Unlock()
	r.log.Info("deinit", "kind", r.kind)
	return 0
}

func (r *Registry_t) Inited() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.inited
}

// Mkname returns name clipped to the name limit, or a fresh generated name
// when name is empty.
func (r *Registry_t) Mkname(name string) string {
	if name == "" {
		name = fmt.Sprintf("%s%d", r.prefix, atomic.AddUint64(&r.count, 1)-1)
	}
	return defs.Truncname(name)
}

func (r *Registry_t) Add(o Kobj_i) {
	r.lock.Lock()
	r.objs.PushBack(o)
	r.lock.Unlock()
}

// Del removes o. Removing an object that is not registered is a no-op.
func (r *Registry_t) Del(o Kobj_i) {
	r.lock.Lock()
	if i := r.objs.Index(func(e Kobj_i) bool { return e == o }); i >= 0 {
		r.objs.Remove(i)
	}
	r.lock.Unlock()
}

// Find returns the oldest object whose name matches, ignoring case.
func (r *Registry_t) Find(name string) (Kobj_i, bool) {
	name = defs.Truncname(name)
	r.lock.Lock()
	defer r.lock.Unlock()
	i := r.objs.Index(func(e Kobj_i) bool {
		return strings.EqualFold(e.Name(), name)
	})
	if i < 0 {
		return nil, false
	}
	return r.objs.At(i), true
}

func (r *Registry_t) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.objs.Len()
}

// Iter calls f on every object, oldest first, with the registry locked.
// f must not call back into the registry. f may take an object's lock:
// objects call Add and Del with their own locks dropped, so the registry
// lock always comes first.
func (r *Registry_t) Iter(f func(Kobj_i)) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for i := 0; i < r.objs.Len(); i++ {
		f(r.objs.At(i))
	}
}

func (r *Registry_t) Dump(w io.Writer) {
	r.Iter(func(o Kobj_i) {
		fmt.Fprintf(w, "%s\n", o.Dump())
	})
}
