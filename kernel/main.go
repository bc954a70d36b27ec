package main

import "bufio"
import "fmt"
import "os"
import "runtime"
import "time"

import "github.com/HExSA-Lab/nautilus-sub003/defs"
import "github.com/HExSA-Lab/nautilus-sub003/msgq"
import "github.com/HExSA-Lab/nautilus-sub003/sched"
import "github.com/HExSA-Lab/nautilus-sub003/sem"
import "github.com/HExSA-Lab/nautilus-sub003/timer"
import "github.com/HExSA-Lab/nautilus-sub003/tinfo"
import "github.com/HExSA-Lab/nautilus-sub003/waitq"

func boot() {
	waitq.Init()
	timer.Init()
	sem.Init()
	msgq.Init()
}

// shutdown tears the registries down in reverse order; each refuses while
// objects remain.
func shutdown() defs.Err_t {
	for _, f := range []func() defs.Err_t{msgq.Deinit, sem.Deinit,
		timer.Deinit, waitq.Deinit} {
		if err := f(); err != 0 {
			return err
		}
	}
	return 0
}

// demo runs producers and consumers over a mailbox, with a semaphore
// counting finished consumers. it returns the number of messages moved.
func demo(nprod, nmsgs int) (int, defs.Err_t) {
	mq, err := msgq.Mkmsgq("demo-mbox", 4)
	if err != 0 {
		return 0, err
	}
	defer mq.Release()
	done, err := sem.Mksem("demo-done", 0)
	if err != 0 {
		return 0, err
	}
	defer done.Release()

	moved := make([]int, nprod)
	for i := 0; i < nprod; i++ {
		i := i
		_, err := sched.Spawn(fmt.Sprintf("producer%d", i), func(t *tinfo.Tnote_t) {
			for j := 0; j < nmsgs; j++ {
				for mq.Push_timeout(t, j, uint64(10*time.Millisecond)) != 0 {
				}
			}
		})
		if err != 0 {
			return 0, err
		}
		_, err = sched.Spawn(fmt.Sprintf("consumer%d", i), func(t *tinfo.Tnote_t) {
			for j := 0; j < nmsgs; j++ {
				if _, err := mq.Pull(t); err != 0 {
					break
				}
				moved[i]++
			}
			done.Up()
		})
		if err != 0 {
			return 0, err
		}
	}
	var derr defs.Err_t
	waiter, err := sched.Spawn("demo-wait", func(t *tinfo.Tnote_t) {
		for i := 0; i < nprod; i++ {
			if derr = done.Down_timeout(t, uint64(10*time.Second)); derr != 0 {
				return
			}
		}
		timer.Sleep(t, uint64(time.Millisecond))
	})
	if err != 0 {
		return 0, err
	}
	for waiter.Status() != tinfo.EXITED {
		time.Sleep(time.Millisecond)
	}
	n := 0
	for _, m := range moved {
		n += m
	}
	return n, derr
}

func main() {
	fmt.Printf("          blocking layer\n")
	fmt.Printf("          go version: %v\n", runtime.Version())

	boot()
	n, err := demo(4, 100)
	if err != 0 {
		fmt.Printf("demo failed: %v\n", err)
	} else {
		fmt.Printf("demo moved %v messages\n", n)
	}

	in := bufio.NewScanner(os.Stdin)
	fmt.Printf("> ")
	for in.Scan() {
		if !shell(in.Text(), os.Stdout) {
			break
		}
		fmt.Printf("> ")
	}

	// let exiting threads free their timers
	for tinfo.Threads.Len() != 0 {
		time.Sleep(time.Millisecond)
	}
	if err := shutdown(); err != 0 {
		fmt.Printf("shutdown: %v\n", err)
		os.Exit(1)
	}
}
