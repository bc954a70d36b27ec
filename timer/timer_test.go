package timer

import "math"
import "strings"
import "sync"
import "testing"
import "time"

import "github.com/HExSA-Lab/nautilus-sub003/defs"
import "github.com/HExSA-Lab/nautilus-sub003/sched"
import "github.com/HExSA-Lab/nautilus-sub003/tinfo"

func waitfor(t *testing.T, what string, f func() bool) {
	deadline := time.Now().Add(10 * time.Second)
	for !f() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func mktimer(t *testing.T, name string) *Timer_t {
	tm, err := Mktimer(name)
	if err != 0 {
		t.Fatalf("mktimer %v", err)
	}
	return tm
}

func run(t *testing.T, name string, f func(*tinfo.Tnote_t)) {
	var wg sync.WaitGroup
	wg.Add(1)
	_, err := sched.Spawn(name, func(th *tinfo.Tnote_t) {
		defer wg.Done()
		f(th)
	})
	if err != 0 {
		t.Fatalf("spawn %v", err)
	}
	wg.Wait()
}

func TestWaitExpires(t *testing.T) {
	tm := mktimer(t, "")
	defer tm.Destroy()
	const d = 20 * time.Millisecond
	st := time.Now()
	if err := tm.Set(uint64(d), WAIT_ALL, nil, 0); err != 0 {
		t.Fatalf("set %v", err)
	}
	if tm.State() != INACTIVE {
		t.Fatalf("set timer is %v", tm.State())
	}
	if err := tm.Start(); err != 0 {
		t.Fatalf("start %v", err)
	}
	var err defs.Err_t
	run(t, "waiter", func(th *tinfo.Tnote_t) {
		err = tm.Wait(th)
	})
	if err != 0 {
		t.Fatalf("wait %v", err)
	}
	if el := time.Since(st); el < d {
		t.Fatalf("woke after %v", el)
	}
	if !tm.Signalled() {
		t.Fatalf("expired timer not signalled")
	}
	// a signalled timer does not block
	run(t, "late", func(th *tinfo.Tnote_t) {
		err = tm.Wait(th)
	})
	if err != 0 {
		t.Fatalf("late wait %v", err)
	}
}

func TestCallback(t *testing.T) {
	tm := mktimer(t, "cb")
	defer tm.Destroy()
	if tm.Set(1, CALLBACK, nil, 0) != -defs.EINVAL {
		t.Fatalf("callback timer without callback")
	}
	fired := make(chan struct{})
	tm.Set(uint64(time.Millisecond), CALLBACK, func() { close(fired) }, 0)
	tm.Start()
	select {
	case <-fired:
	case <-time.After(10 * time.Second):
		t.Fatalf("callback never ran")
	}
	waitfor(t, "signalled", tm.Signalled)
	var err defs.Err_t
	run(t, "waiter", func(th *tinfo.Tnote_t) {
		err = tm.Wait(th)
	})
	if err != -defs.EINVAL {
		t.Fatalf("wait on callback timer: %v", err)
	}
}

func TestCancelWakes(t *testing.T) {
	tm := mktimer(t, "")
	defer tm.Destroy()
	tm.Set(uint64(time.Hour), WAIT_ALL, nil, 0)
	tm.Start()
	var wg sync.WaitGroup
	errs := make([]defs.Err_t, 3)
	for i := range errs {
		i := i
		wg.Add(1)
		sched.Spawn("waiter", func(th *tinfo.Tnote_t) {
			defer wg.Done()
			errs[i] = tm.Wait(th)
		})
	}
	waitfor(t, "waiters", func() bool { return tm.Waitq().Numwait() == 3 })
	tm.Cancel()
	wg.Wait()
	for i, err := range errs {
		if err != -defs.EINTR {
			t.Fatalf("waiter %d: %v", i, err)
		}
	}
	if tm.State() != INACTIVE {
		t.Fatalf("cancelled timer is %v", tm.State())
	}
}

func TestCancelBeforeExpiry(t *testing.T) {
	tm := mktimer(t, "")
	defer tm.Destroy()
	tm.Set(uint64(5*time.Millisecond), WAIT_ONE, nil, 0)
	tm.Start()
	tm.Cancel()
	time.Sleep(20 * time.Millisecond)
	if tm.State() != INACTIVE {
		t.Fatalf("cancelled timer fired: %v", tm.State())
	}
	// restart after cancel
	tm.Reset(uint64(time.Millisecond))
	tm.Start()
	waitfor(t, "restarted timer", tm.Signalled)
}

func TestSleep(t *testing.T) {
	const d = 15 * time.Millisecond
	var err defs.Err_t
	st := time.Now()
	run(t, "sleeper", func(th *tinfo.Tnote_t) {
		err = Sleep(th, uint64(d))
	})
	if err != 0 {
		t.Fatalf("sleep %v", err)
	}
	if el := time.Since(st); el < d {
		t.Fatalf("slept only %v", el)
	}
}

func TestThreadDefault(t *testing.T) {
	var name string
	run(t, "owner", func(th *tinfo.Tnote_t) {
		a, err := Thread_default(th)
		if err != 0 {
			t.Errorf("thread_default %v", err)
			return
		}
		b, _ := Thread_default(th)
		if a != b {
			t.Errorf("second thread timer")
		}
		name = a.Name()
		if !strings.HasSuffix(a.Waitq().Name(), "-wait") {
			t.Errorf("timer wait queue named %q", a.Waitq().Name())
		}
	})
	if name == "" {
		t.FailNow()
	}
	waitfor(t, "thread timer release", func() bool {
		_, ok := Timers.Find(name)
		return !ok
	})
}

func TestDump(t *testing.T) {
	tm := mktimer(t, "dumpme")
	defer tm.Destroy()
	tm.Set(uint64(time.Hour), WAIT_ALL, nil, 2)
	tm.Start()
	defer tm.Cancel()
	s := tm.Dump()
	if !strings.HasPrefix(s, "dumpme : state=ACTIVE flags=wait-all") {
		t.Fatalf("dump %q", s)
	}
	if !strings.HasSuffix(s, "cpu=2") {
		t.Fatalf("dump %q", s)
	}
	if o, ok := Timers.Find("DUMPME"); !ok || o != tm {
		t.Fatalf("find by name")
	}
}

func TestHugeTimeout(t *testing.T) {
	tm := mktimer(t, "")
	defer tm.Destroy()
	fires := Stats.Nfire.Get()
	tm.Set(math.MaxUint64, WAIT_ALL, nil, 0)
	if tm.deadline != math.MaxUint64 {
		t.Fatalf("deadline wrapped to %d", tm.deadline)
	}
	tm.Start()
	time.Sleep(20 * time.Millisecond)
	if tm.State() != ACTIVE || Stats.Nfire.Get() != fires {
		t.Fatalf("timer of huge timeout expired: %v", tm.State())
	}
	tm.Cancel()
}
