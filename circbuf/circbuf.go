package circbuf

import "github.com/HExSA-Lab/nautilus-sub003/defs"
import "github.com/HExSA-Lab/nautilus-sub003/limits"

// a circular buffer of opaque values. not thread-safe -- the owner provides
// the locking. head counts values ever written and tail values ever read;
// slots are indexed modulo the buffer size.
type Circbuf_t struct {
	Buf   []interface{}
	bufsz int
	head  uint64
	tail  uint64
}

func (cb *Circbuf_t) Bufsz() int {
	return cb.bufsz
}

// fails with -EINVAL for a non-positive size and -ENOMEM for a size above
// the system's message queue limit.
func (cb *Circbuf_t) Cb_init(sz int) defs.Err_t {
	if sz <= 0 {
		return -defs.EINVAL
	}
	if sz > limits.Syslimit.Msgqsize {
		return -defs.ENOMEM
	}
	cb.Buf = make([]interface{}, sz)
	cb.bufsz = sz
	cb.head, cb.tail = 0, 0
	return 0
}

func (cb *Circbuf_t) Cb_release() {
	cb.Buf = nil
	cb.head, cb.tail = 0, 0
}

func (cb *Circbuf_t) Full() bool {
	return cb.head-cb.tail == uint64(cb.bufsz)
}

func (cb *Circbuf_t) Empty() bool {
	return cb.head == cb.tail
}

func (cb *Circbuf_t) Left() int {
	return cb.bufsz - cb.Used()
}

func (cb *Circbuf_t) Used() int {
	return int(cb.head - cb.tail)
}

// total number of values ever written
func (cb *Circbuf_t) Head() uint64 {
	return cb.head
}

// total number of values ever read
func (cb *Circbuf_t) Tail() uint64 {
	return cb.tail
}

// Put appends v; it returns false if the buffer is full.
func (cb *Circbuf_t) Put(v interface{}) bool {
	if cb.Buf == nil {
		panic("not initted")
	}
	if cb.Full() {
		return false
	}
	cb.Buf[cb.head%uint64(cb.bufsz)] = v
	cb.head++
	return true
}

// Get removes the oldest value; it returns false if the buffer is empty.
func (cb *Circbuf_t) Get() (interface{}, bool) {
	if cb.Buf == nil {
		panic("not initted")
	}
	if cb.Empty() {
		return nil, false
	}
	i := cb.tail % uint64(cb.bufsz)
	v := cb.Buf[i]
	// drop the reference so the value can be collected
	cb.Buf[i] = nil
	cb.tail++
	return v, true
}
