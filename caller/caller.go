// Package caller reports where kernel invariant violations and other
// noteworthy events come from.
package caller

import "fmt"
import "runtime"
import "strings"
import "sync"

import "github.com/HExSA-Lab/nautilus-sub003/klog"

func pcs(skip int) []uintptr {
	buf := make([]uintptr, 64)
	return buf[:runtime.Callers(skip+1, buf)]
}

func render(pcs []uintptr) string {
	var b strings.Builder
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if b.Len() != 0 {
			b.WriteString("\t<-")
		}
		fmt.Fprintf(&b, "%s (%s:%d)\n", fr.Function, fr.File, fr.Line)
		if !more || fr.Function == "runtime.goexit" {
			break
		}
	}
	return b.String()
}

// Callerdump returns the call path of its caller's caller's ... caller,
// skipping start frames (1 is Callerdump's caller).
func Callerdump(start int) string {
	return render(pcs(start + 1))
}

// Fatal reports a kernel invariant violation on l with the offending call
// path and panics.
func Fatal(l *klog.Log_t, msg string, args ...any) {
	args = append(args, "path", Callerdump(2))
	l.Error(msg, args...)
	panic(msg)
}

// Distinct_caller_t detects the first call from each distinct call path,
// for reporting a condition once per path rather than every time.
type Distinct_caller_t struct {
	sync.Mutex
	Enabled bool
	seen    map[string]bool
}

func (dc *Distinct_caller_t) Len() int {
	dc.Lock()
	defer dc.Unlock()
	return len(dc.seen)
}

// Distinct reports whether this is the first call from the caller's path,
// and the path if it is.
func (dc *Distinct_caller_t) Distinct() (bool, string) {
	path := pcs(2)
	if len(path) == 0 {
		panic("no callers")
	}
	key := fmt.Sprint(path)
	dc.Lock()
	defer dc.Unlock()
	if !dc.Enabled || dc.seen[key] {
		return false, ""
	}
	if dc.seen == nil {
		dc.seen = make(map[string]bool)
	}
	dc.seen[key] = true
	return true, render(path)
}
