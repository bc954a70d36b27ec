package hashtable

import "math/rand"
import "strings"
import "sync"
import "sync/atomic"
import "testing"
import "time"

import "github.com/HExSA-Lab/nautilus-sub003/defs"

const SZ = 10

func fill(t *testing.T, ht *Hashtable_t[int], n int) {
	for i := 0; i < n; i++ {
		if !ht.Set(defs.Tid_t(i), i*10) {
			t.Fatalf("set %v", i)
		}
		if v, ok := ht.Get(defs.Tid_t(i)); !ok || v != i*10 {
			t.Fatalf("get %v: %v %v", i, v, ok)
		}
	}
}

func TestSimple(t *testing.T) {
	ht := MkHash[int](SZ)
	fill(t, ht, 3*SZ)
	if ht.Size() != 3*SZ {
		t.Fatalf("size %v", ht.Size())
	}
	// delete out of order to exercise chain middles
	for i := 3*SZ - 1; i >= 1; i -= 2 {
		ht.Del(defs.Tid_t(i))
	}
	for i := 0; i < 3*SZ; i++ {
		_, ok := ht.Get(defs.Tid_t(i))
		if ok != (i%2 == 0) {
			t.Fatalf("tid %v present %v", i, ok)
		}
	}
	if ht.Size() != 3*SZ/2 {
		t.Fatalf("size %v", ht.Size())
	}
	if !strings.Contains(ht.String(), "bucket") {
		t.Fatalf("string %q", ht.String())
	}
}

func TestSetExisting(t *testing.T) {
	ht := MkHash[string](SZ)
	if !ht.Set(7, "a") {
		t.Fatalf("first set")
	}
	if ht.Set(7, "b") {
		t.Fatalf("second set of one tid")
	}
	if v, _ := ht.Get(7); v != "a" {
		t.Fatalf("value replaced: %v", v)
	}
	n := 0
	ht.Iter(func(tid defs.Tid_t, v string) bool {
		n++
		return false
	})
	if n != 1 {
		t.Fatalf("iter visited %v", n)
	}
}

func TestDelAbsent(t *testing.T) {
	ht := MkHash[int](SZ)
	defer func() {
		if recover() == nil {
			t.Fatalf("del of absent tid did not panic")
		}
	}()
	ht.Del(3)
}

const NPROC = 4

func TestManyReaderOneWriter(t *testing.T) {
	ht := MkHash[int](SZ)
	fill(t, ht, SZ)

	var wg sync.WaitGroup
	done := int32(0)
	for p := 0; p < NPROC; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(id)))
			for atomic.LoadInt32(&done) == 0 {
				if id == 0 {
					tid := defs.Tid_t(SZ + r.Intn(SZ))
					if ht.Set(tid, id) {
						ht.Del(tid)
					}
					continue
				}
				v := r.Intn(SZ)
				got, ok := ht.Get(defs.Tid_t(v))
				if !ok || got != v*10 {
					t.Errorf("%v: %v %v", v, got, ok)
					return
				}
			}
		}(p)
	}
	time.Sleep(100 * time.Millisecond)
	atomic.StoreInt32(&done, 1)
	wg.Wait()
}
