package defs

// maximum length of an object name, including the terminator the name
// would carry in a C-style fixed buffer.
const NAMELEN = 32

type Tid_t int

// Truncname clips name to the object name limit.
func Truncname(name string) string {
	if len(name) > NAMELEN-1 {
		return name[:NAMELEN-1]
	}
	return name
}
