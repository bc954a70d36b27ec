// Package stats holds event counters for the console's stats command.
package stats

import "fmt"
import "reflect"
import "strings"
import "sync/atomic"

// compile-time switch; counters cost one atomic add when enabled
const Stats = true

type Counter_t int64

func (c *Counter_t) Inc() {
	c.Add(1)
}

func (c *Counter_t) Add(n int64) {
	if Stats {
		atomic.AddInt64((*int64)(c), n)
	}
}

func (c *Counter_t) Get() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// Stats2String renders the Counter_t fields of the struct st points to,
// one per line.
func Stats2String(st interface{}) string {
	if !Stats {
		return ""
	}
	v := reflect.ValueOf(st)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		panic("stats of non-struct pointer")
	}
	v = v.Elem()
	var b strings.Builder
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if !f.CanAddr() || !v.Type().Field(i).IsExported() {
			continue
		}
		if c, ok := f.Addr().Interface().(*Counter_t); ok {
			fmt.Fprintf(&b, "\n\t#%s: %d", v.Type().Field(i).Name, c.Get())
		}
	}
	b.WriteString("\n")
	return b.String()
}
