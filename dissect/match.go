package dissect

import (
	"bytes"
	"fmt"
	"net"
)

// Match is the condition a discriminant value must satisfy for a binding
// to apply.
type Match interface {
	Matches(v any) bool
	String() string
}

// Equal matches a single value. The value is normalized under the
// discriminant field's kind when the binding is registered, so enum names
// ("tcp") and address strings are accepted.
func Equal(v any) Match {
	return equalMatch{value: v}
}

type equalMatch struct {
	value any
}

func (m equalMatch) Matches(v any) bool {
	return sameValue(m.value, v)
}

func (m equalMatch) String() string {
	return fmt.Sprintf("== %v", m.value)
}

// Range matches unsigned integers in [lo, hi], e.g. a port range.
func Range(lo, hi uint64) Match {
	return rangeMatch{lo: lo, hi: hi}
}

type rangeMatch struct {
	lo, hi uint64
}

func (m rangeMatch) Matches(v any) bool {
	u, ok := v.(uint64)
	return ok && u >= m.lo && u <= m.hi
}

func (m rangeMatch) String() string {
	return fmt.Sprintf("in [%d, %d]", m.lo, m.hi)
}

// Func matches through an arbitrary predicate; desc is used in logs.
func Func(desc string, f func(v any) bool) Match {
	return funcMatch{desc: desc, f: f}
}

type funcMatch struct {
	desc string
	f    func(v any) bool
}

func (m funcMatch) Matches(v any) bool {
	return m.f(v)
}

func (m funcMatch) String() string {
	return m.desc
}

func sameValue(a, b any) bool {
	switch x := a.(type) {
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case net.HardwareAddr:
		y, ok := b.(net.HardwareAddr)
		return ok && bytes.Equal(x, y)
	}
	return a == b
}
