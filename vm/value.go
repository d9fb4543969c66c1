package vm

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/chazu/rbvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Value representation
// ---------------------------------------------------------------------------

// Value is any runtime value. The dynamic type selects the class:
//
//	nil              NilClass
//	bool             TrueClass / FalseClass
//	int64            Integer
//	float64          Float
//	string           String (immutable)
//	bytecode.Symbol  Symbol
//	*Array, *Hash, *Range, *Regexp, *Proc, *Class, *Object
type Value = any

// Symbol is an interned name.
type Symbol = bytecode.Symbol

// Array is a mutable ordered list.
type Array struct {
	Elems []Value
}

// NewArray wraps elems without copying.
func NewArray(elems ...Value) *Array { return &Array{Elems: elems} }

// Len returns the element count.
func (a *Array) Len() int { return len(a.Elems) }

// At returns the element at i, counting from the end when i is negative,
// and nil when i is out of range.
func (a *Array) At(i int64) Value {
	if i < 0 {
		i += int64(len(a.Elems))
	}
	if i < 0 || i >= int64(len(a.Elems)) {
		return nil
	}
	return a.Elems[i]
}

// Range is a low..high or low...high interval.
type Range struct {
	Low, High Value
	Exclusive bool
}

// Regexp is a compiled regular expression literal.
type Regexp struct {
	Source string
	Flags  string
	re     *regexp.Regexp
}

// MatchString reports whether s contains a match.
func (r *Regexp) MatchString(s string) bool { return r.re.MatchString(s) }

// compileRegexp translates the literal flags to RE2 syntax: i and m map to
// the case-insensitive and dot-all groups, x is ignored.
func compileRegexp(source, flags string) (*Regexp, error) {
	prefix := ""
	if strings.Contains(flags, "i") {
		prefix += "i"
	}
	if strings.Contains(flags, "m") {
		prefix += "s"
	}
	pattern := source
	if prefix != "" {
		pattern = "(?" + prefix + ")" + source
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &Regexp{Source: source, Flags: flags, re: re}, nil
}

// ---------------------------------------------------------------------------
// Hash: insertion-ordered map
// ---------------------------------------------------------------------------

// Hash is an insertion-ordered map. Keys compare by value for numbers,
// strings, symbols and arrays, and by identity otherwise.
type Hash struct {
	// Default is returned for missing keys unless DefaultProc is set.
	Default     Value
	DefaultProc *Proc

	keys  []Value
	vals  []Value
	index map[any]int
}

// NewHash creates an empty hash.
func NewHash() *Hash {
	return &Hash{index: make(map[any]int)}
}

type arrayKey string

// hashKey normalizes v into a comparable Go map key.
func hashKey(v Value) any {
	switch x := v.(type) {
	case *Array:
		return arrayKey(inspect(x))
	}
	return v
}

// Get returns the value stored under k.
func (h *Hash) Get(k Value) (Value, bool) {
	i, ok := h.index[hashKey(k)]
	if !ok {
		return nil, false
	}
	return h.vals[i], true
}

// Set stores v under k, keeping the original insertion position of an
// existing key.
func (h *Hash) Set(k, v Value) {
	key := hashKey(k)
	if i, ok := h.index[key]; ok {
		h.vals[i] = v
		return
	}
	h.index[key] = len(h.keys)
	h.keys = append(h.keys, k)
	h.vals = append(h.vals, v)
}

// Len returns the number of entries.
func (h *Hash) Len() int { return len(h.keys) }

// Keys returns the keys in insertion order.
func (h *Hash) Keys() []Value { return append([]Value(nil), h.keys...) }

// Values returns the values in insertion order.
func (h *Hash) Values() []Value { return append([]Value(nil), h.vals...) }

// Delete removes k and returns its value.
func (h *Hash) Delete(k Value) (Value, bool) {
	key := hashKey(k)
	at, ok := h.index[key]
	if !ok {
		return nil, false
	}
	v := h.vals[at]
	h.keys = append(h.keys[:at], h.keys[at+1:]...)
	h.vals = append(h.vals[:at], h.vals[at+1:]...)
	delete(h.index, key)
	for j := at; j < len(h.keys); j++ {
		h.index[hashKey(h.keys[j])] = j
	}
	return v, true
}

// Copy returns a shallow copy sharing no storage with h.
func (h *Hash) Copy() *Hash {
	out := NewHash()
	out.Default, out.DefaultProc = h.Default, h.DefaultProc
	h.Each(out.Set)
	return out
}

// Each calls fn for every entry in insertion order.
func (h *Hash) Each(fn func(k, v Value)) {
	for i := range h.keys {
		fn(h.keys[i], h.vals[i])
	}
}

// ---------------------------------------------------------------------------
// Truthiness, equality and rendering
// ---------------------------------------------------------------------------

// Truthy reports whether v counts as true in a condition: everything except
// nil and false.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	}
	return true
}

// valuesEqual implements == for built-in values. Objects compare by
// identity.
func valuesEqual(a, b Value) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
		return false
	case float64:
		switch y := b.(type) {
		case int64:
			return x == float64(y)
		case float64:
			return x == y
		}
		return false
	case string:
		y, ok := b.(string)
		return ok && x == y
	case Symbol:
		y, ok := b.(Symbol)
		return ok && x == y
	case *Array:
		y, ok := b.(*Array)
		if !ok {
			return false
		}
		if x == y {
			return true
		}
		if len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !valuesEqual(x.Elems[i], y.Elems[i]) {
				return false
			}
		}
		return true
	case *Hash:
		y, ok := b.(*Hash)
		if !ok {
			return false
		}
		if x.Len() != y.Len() {
			return false
		}
		for i, k := range x.keys {
			v, ok := y.Get(k)
			if !ok || !valuesEqual(x.vals[i], v) {
				return false
			}
		}
		return true
	case *Range:
		y, ok := b.(*Range)
		return ok && x.Exclusive == y.Exclusive && valuesEqual(x.Low, y.Low) && valuesEqual(x.High, y.High)
	}
	return a == b
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.IsNaN(f):
		return "NaN"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// inspect renders v the way p prints it.
func inspect(v Value) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(x)
	case Symbol:
		return ":" + string(x)
	case *Array:
		parts := make([]string, len(x.Elems))
		for i, e := range x.Elems {
			parts[i] = inspect(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Hash:
		parts := make([]string, 0, x.Len())
		x.Each(func(k, v Value) {
			parts = append(parts, inspect(k)+"=>"+inspect(v))
		})
		return "{" + strings.Join(parts, ", ") + "}"
	case *Range:
		op := ".."
		if x.Exclusive {
			op = "..."
		}
		return inspect(x.Low) + op + inspect(x.High)
	case *Regexp:
		return "/" + x.Source + "/" + x.Flags
	case *MatchData:
		return x.inspect()
	}
	return toS(v)
}

// toS renders v the way puts and interpolation print it.
func toS(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case string:
		return x
	case Symbol:
		return string(x)
	case *Class:
		return x.Name
	case *Proc:
		if x.Lambda {
			return "#<Proc (lambda)>"
		}
		return "#<Proc>"
	case *Object:
		if x.Class.isException() {
			return exceptionMessage(x)
		}
		return "#<" + x.Class.Name + ">"
	case *MatchData:
		return toS(x.Group(0))
	case *Array, *Hash, *Range, *Regexp:
		return inspect(v)
	}
	return fmt.Sprint(v)
}

// toArray converts v for splatting: arrays as-is, nil to an empty array,
// hashes to their pairs and anything else to a one-element array.
func toArray(v Value) *Array {
	switch x := v.(type) {
	case *Array:
		return x
	case nil:
		return NewArray()
	case *Hash:
		pairs := make([]Value, 0, x.Len())
		x.Each(func(k, v Value) { pairs = append(pairs, NewArray(k, v)) })
		return NewArray(pairs...)
	}
	return NewArray(v)
}
