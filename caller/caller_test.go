package caller

import "strings"
import "testing"

import "github.com/HExSA-Lab/nautilus-sub003/klog"

func TestDistinct(t *testing.T) {
	dc := &Distinct_caller_t{Enabled: true}
	n := 0
	for i := 0; i < 3; i++ {
		if ok, _ := dc.Distinct(); ok {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("same path reported %v times", n)
	}
	if ok, path := dc.Distinct(); !ok || !strings.Contains(path, "TestDistinct") {
		t.Fatalf("new path not reported: %v %q", ok, path)
	}
	if dc.Len() != 2 {
		t.Fatalf("paths %v", dc.Len())
	}
}

func TestFatal(t *testing.T) {
	defer func() {
		if r := recover(); r != "corrupt" {
			t.Fatalf("recovered %v", r)
		}
	}()
	Fatal(klog.Mklog("test"), "corrupt")
}

func TestCallerdump(t *testing.T) {
	s := Callerdump(1)
	if !strings.HasPrefix(s, "github.com/HExSA-Lab/nautilus-sub003/caller.TestCallerdump") {
		t.Fatalf("dump starts %q", s)
	}
	if !strings.Contains(s, "\t<-testing.tRunner") {
		t.Fatalf("dump %q", s)
	}
}

func TestDisabled(t *testing.T) {
	dc := &Distinct_caller_t{}
	if ok, _ := dc.Distinct(); ok {
		t.Fatalf("disabled caller reported")
	}
}
