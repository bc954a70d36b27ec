package main

import "strings"
import "testing"
import "time"

import "github.com/HExSA-Lab/nautilus-sub003/sem"
import "github.com/HExSA-Lab/nautilus-sub003/tinfo"
import "github.com/HExSA-Lab/nautilus-sub003/waitq"

func TestShell(t *testing.T) {
	q, _ := waitq.Mkwaitq("shellq")
	defer q.Destroy()
	s, _ := sem.Mksem("shellsem", 2)
	defer s.Release()

	var b strings.Builder
	if !shell("wqs", &b) {
		t.Fatalf("wqs ended the shell")
	}
	if !strings.Contains(b.String(), "shellq") || !strings.Contains(b.String(), "0 waiters") {
		t.Fatalf("wqs: %q", b.String())
	}
	b.Reset()
	shell("  sems ", &b)
	if !strings.Contains(b.String(), "shellsem : refcount=1 count=2") {
		t.Fatalf("sems: %q", b.String())
	}
	b.Reset()
	shell("stats", &b)
	if !strings.Contains(b.String(), "#Nsleep") {
		t.Fatalf("stats: %q", b.String())
	}
	b.Reset()
	shell("frob", &b)
	if !strings.Contains(b.String(), "unknown command") {
		t.Fatalf("frob: %q", b.String())
	}
	if !shell("", &b) {
		t.Fatalf("empty line ended the shell")
	}
	if shell("quit", &b) {
		t.Fatalf("quit did not end the shell")
	}
}

func TestDemo(t *testing.T) {
	boot()
	n, err := demo(3, 50)
	if err != 0 {
		t.Fatalf("demo %v", err)
	}
	if n != 150 {
		t.Fatalf("moved %v", n)
	}
	deadline := time.Now().Add(10 * time.Second)
	for tinfo.Threads.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("threads did not exit")
		}
		time.Sleep(time.Millisecond)
	}
	if err := shutdown(); err != 0 {
		t.Fatalf("shutdown %v", err)
	}
}
