package defs

import "strconv"

const (
	EPERM       Err_t = 1
	ENOENT      Err_t = 2
	EINTR       Err_t = 4
	EAGAIN      Err_t = 11
	EWOULDBLOCK       = EAGAIN
	ENOMEM      Err_t = 12
	EBUSY       Err_t = 16
	EEXIST      Err_t = 17
	EINVAL      Err_t = 22
	EIDRM       Err_t = 43
	ETIMEDOUT   Err_t = 110
)

// Err_t is an errno. Functions return 0 on success and a negated errno on
// failure.
type Err_t int

var errstr = map[Err_t]string{
	EPERM:     "operation not permitted",
	ENOENT:    "no such object",
	EINTR:     "interrupted",
	EAGAIN:    "would block",
	ENOMEM:    "out of memory",
	EBUSY:     "object busy",
	EEXIST:    "object exists",
	EINVAL:    "invalid argument",
	EIDRM:     "object removed",
	ETIMEDOUT: "timed out",
}

func (e Err_t) String() string {
	if e == 0 {
		return "ok"
	}
	n := e
	if n < 0 {
		n = -n
	}
	if s, ok := errstr[n]; ok {
		return s
	}
	return "errno " + strconv.Itoa(int(e))
}

func (e Err_t) Error() string {
	return e.String()
}
