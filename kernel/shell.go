package main

import "fmt"
import "io"
import "strings"

import "github.com/HExSA-Lab/nautilus-sub003/msgq"
import "github.com/HExSA-Lab/nautilus-sub003/sched"
import "github.com/HExSA-Lab/nautilus-sub003/sem"
import "github.com/HExSA-Lab/nautilus-sub003/stats"
import "github.com/HExSA-Lab/nautilus-sub003/timer"
import "github.com/HExSA-Lab/nautilus-sub003/waitq"

var cmds = map[string]func(io.Writer){
	"wqs":    waitq.Dump,
	"sems":   sem.Dump,
	"mqs":    msgq.Dump,
	"timers": timer.Dump,
	"stats": func(w io.Writer) {
		fmt.Fprintf(w, "sched:%v", stats.Stats2String(&sched.Stats))
		fmt.Fprintf(w, "waitq:%v", stats.Stats2String(&waitq.Stats))
		fmt.Fprintf(w, "timer:%v", stats.Stats2String(&timer.Stats))
		fmt.Fprintf(w, "sem:%v", stats.Stats2String(&sem.Stats))
		fmt.Fprintf(w, "msgq:%v", stats.Stats2String(&msgq.Stats))
	},
}

// shell runs one console command and reports whether the console should
// keep going.
func shell(line string, w io.Writer) bool {
	f := strings.Fields(line)
	if len(f) == 0 {
		return true
	}
	switch f[0] {
	case "quit", "exit":
		return false
	case "help":
		fmt.Fprintf(w, "commands: wqs sems mqs timers stats quit\n")
		return true
	}
	c, ok := cmds[f[0]]
	if !ok {
		fmt.Fprintf(w, "unknown command %q\n", f[0])
		return true
	}
	c(w)
	return true
}
