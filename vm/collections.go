package vm

import (
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Array Primitives
// ---------------------------------------------------------------------------

func (i *Interpreter) registerArrayPrimitives() {
	c := i.c.Array

	c.AddMethod("[]", 1, 2, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		return i.arraySlice(self.(*Array), args)
	})
	c.Methods["slice"] = c.Methods["[]"]
	c.AddMethod("[]=", 2, 3, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		a := self.(*Array)
		v := args[len(args)-1]
		if len(args) == 3 {
			start, end, ok := sliceBounds(i.mustInt(args[0]), i.mustInt(args[1]), a.Len())
			if !ok {
				i.raise(i.c.IndexError, "index %d out of array", i.mustInt(args[0]))
			}
			i.splice(a, start, end, v)
			return v
		}
		if r, ok := args[0].(*Range); ok {
			start, end, ok := i.rangeBounds(r, a.Len())
			if !ok {
				i.raise(i.c.RangeError, "%s out of range", inspect(r))
			}
			i.splice(a, start, end, v)
			return v
		}
		if !fastAset(a, i.mustInt(args[0]), v) {
			i.raise(i.c.IndexError, "index %d too small for array; minimum: -%d", args[0], a.Len())
		}
		return v
	})
	c.AddMethod1("at", func(i *Interpreter, self Value, arg Value) Value {
		return self.(*Array).At(i.mustInt(arg))
	})
	c.AddMethod("fetch", 1, 2, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		a := self.(*Array)
		idx := i.mustInt(args[0])
		if idx >= -int64(a.Len()) && idx < int64(a.Len()) {
			return a.At(idx)
		}
		switch {
		case blk != nil:
			return i.yield(blk, args[0])
		case len(args) > 1:
			return args[1]
		}
		i.raise(i.c.IndexError, "index %d outside of array bounds: %d...%d", idx, -a.Len(), a.Len())
		return nil
	})
	c.AddMethod("dig", 1, -1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		return i.dig(self, args)
	})
	c.AddMethod("values_at", 0, -1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		a := self.(*Array)
		out := make([]Value, len(args))
		for j, idx := range args {
			out[j] = a.At(i.mustInt(idx))
		}
		return NewArray(out...)
	})

	// Mutation
	c.AddMethod1("<<", func(_ *Interpreter, self Value, arg Value) Value {
		a := self.(*Array)
		a.Elems = append(a.Elems, arg)
		return a
	})
	c.AddMethod("push", 0, -1, func(_ *Interpreter, self Value, args []Value, _ *Proc) Value {
		a := self.(*Array)
		a.Elems = append(a.Elems, args...)
		return a
	})
	c.Methods["append"] = c.Methods["push"]
	c.AddMethod("unshift", 0, -1, func(_ *Interpreter, self Value, args []Value, _ *Proc) Value {
		a := self.(*Array)
		a.Elems = append(append([]Value(nil), args...), a.Elems...)
		return a
	})
	c.Methods["prepend"] = c.Methods["unshift"]
	c.AddMethod("insert", 1, -1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		a := self.(*Array)
		idx := i.mustInt(args[0])
		if idx < 0 {
			idx += int64(a.Len()) + 1
		}
		if idx < 0 {
			i.raise(i.c.IndexError, "index %d too small for array", idx)
		}
		for int64(a.Len()) < idx {
			a.Elems = append(a.Elems, nil)
		}
		i.splice(a, int(idx), int(idx), NewArray(args[1:]...))
		return a
	})
	c.AddMethod("pop", 0, 1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		a := self.(*Array)
		if len(args) == 0 {
			if a.Len() == 0 {
				return nil
			}
			v := a.Elems[a.Len()-1]
			a.Elems = a.Elems[:a.Len()-1]
			return v
		}
		n := i.count(args[0], a.Len())
		out := append([]Value(nil), a.Elems[a.Len()-n:]...)
		a.Elems = a.Elems[:a.Len()-n]
		return NewArray(out...)
	})
	c.AddMethod("shift", 0, 1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		a := self.(*Array)
		if len(args) == 0 {
			if a.Len() == 0 {
				return nil
			}
			v := a.Elems[0]
			a.Elems = a.Elems[1:]
			return v
		}
		n := i.count(args[0], a.Len())
		out := append([]Value(nil), a.Elems[:n]...)
		a.Elems = a.Elems[n:]
		return NewArray(out...)
	})
	c.AddMethod("concat", 0, -1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		a := self.(*Array)
		for _, o := range args {
			a.Elems = append(a.Elems, i.mustArray(o).Elems...)
		}
		return a
	})
	c.AddMethod("delete", 1, 1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		a := self.(*Array)
		var found Value
		hit := false
		kept := a.Elems[:0]
		for _, e := range a.Elems {
			if i.equal(e, args[0]) {
				found, hit = e, true
				continue
			}
			kept = append(kept, e)
		}
		a.Elems = kept
		if !hit && blk != nil {
			return i.yield(blk, args[0])
		}
		return found
	})
	c.AddMethod1("delete_at", func(i *Interpreter, self Value, arg Value) Value {
		a := self.(*Array)
		idx := i.mustInt(arg)
		if idx < 0 {
			idx += int64(a.Len())
		}
		if idx < 0 || idx >= int64(a.Len()) {
			return nil
		}
		v := a.Elems[idx]
		a.Elems = append(a.Elems[:idx], a.Elems[idx+1:]...)
		return v
	})
	c.AddMethod("delete_if", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		a := self.(*Array)
		var kept []Value
		for _, e := range a.Elems {
			if !Truthy(i.yield(blk, e)) {
				kept = append(kept, e)
			}
		}
		a.Elems = kept
		return a
	})
	c.Methods["reject!"] = c.Methods["delete_if"]
	c.AddMethod("map!", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		a := self.(*Array)
		for j := range a.Elems {
			a.Elems[j] = i.yield(blk, a.Elems[j])
		}
		return a
	})
	c.AddMethod("select!", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		a := self.(*Array)
		var kept []Value
		for _, e := range a.Elems {
			if Truthy(i.yield(blk, e)) {
				kept = append(kept, e)
			}
		}
		a.Elems = kept
		return a
	})
	c.AddMethod("sort!", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		a := self.(*Array)
		a.Elems = i.sorted(a.Elems, blk)
		return a
	})
	c.AddMethod0("clear", func(_ *Interpreter, self Value) Value {
		a := self.(*Array)
		a.Elems = nil
		return a
	})
	c.AddMethod1("replace", func(i *Interpreter, self Value, arg Value) Value {
		a := self.(*Array)
		a.Elems = append([]Value(nil), i.mustArray(arg).Elems...)
		return a
	})

	// Queries
	c.AddMethod0("length", func(_ *Interpreter, self Value) Value { return int64(self.(*Array).Len()) })
	c.Methods["size"] = c.Methods["length"]
	c.AddMethod0("empty?", func(_ *Interpreter, self Value) Value { return self.(*Array).Len() == 0 })
	c.AddMethod("last", 0, 1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		a := self.(*Array)
		if len(args) == 0 {
			return a.At(-1)
		}
		n := i.count(args[0], a.Len())
		return NewArray(append([]Value(nil), a.Elems[a.Len()-n:]...)...)
	})
	c.AddMethod("index", 0, 1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		for j, e := range self.(*Array).Elems {
			if len(args) > 0 && i.equal(e, args[0]) || len(args) == 0 && Truthy(i.yield(blk, e)) {
				return int64(j)
			}
		}
		return nil
	})
	c.AddMethod1("==", func(i *Interpreter, self Value, arg Value) Value {
		other, ok := arg.(*Array)
		if !ok {
			return false
		}
		a := self.(*Array)
		if a == other {
			return true
		}
		if a.Len() != other.Len() {
			return false
		}
		for j := range a.Elems {
			if !i.equal(a.Elems[j], other.Elems[j]) {
				return false
			}
		}
		return true
	})
	c.AddMethod1("<=>", func(i *Interpreter, self Value, arg Value) Value {
		other, ok := arg.(*Array)
		if !ok {
			return nil
		}
		a := self.(*Array)
		for j := 0; j < a.Len() && j < other.Len(); j++ {
			if n := i.compare(a.Elems[j], other.Elems[j]); n != 0 {
				return n
			}
		}
		return cmpOrdered(int64(a.Len()), int64(other.Len()))
	})

	// Iteration over the live array
	c.AddMethod("each", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		a := self.(*Array)
		for j := 0; j < a.Len(); j++ {
			i.yield(blk, a.Elems[j])
		}
		return a
	})
	c.AddMethod("each_index", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		a := self.(*Array)
		for j := 0; j < a.Len(); j++ {
			i.yield(blk, int64(j))
		}
		return a
	})

	// Building new arrays
	c.AddMethod1("+", func(i *Interpreter, self Value, arg Value) Value {
		a := self.(*Array)
		out := append([]Value(nil), a.Elems...)
		return NewArray(append(out, i.mustArray(arg).Elems...)...)
	})
	c.AddMethod1("-", func(i *Interpreter, self Value, arg Value) Value {
		drop := NewHash()
		for _, e := range i.mustArray(arg).Elems {
			drop.Set(e, true)
		}
		var out []Value
		for _, e := range self.(*Array).Elems {
			if _, ok := drop.Get(e); !ok {
				out = append(out, e)
			}
		}
		return NewArray(out...)
	})
	c.AddMethod1("&", func(i *Interpreter, self Value, arg Value) Value {
		other := NewHash()
		for _, e := range i.mustArray(arg).Elems {
			other.Set(e, true)
		}
		seen := NewHash()
		var out []Value
		for _, e := range self.(*Array).Elems {
			_, in := other.Get(e)
			_, dup := seen.Get(e)
			if in && !dup {
				seen.Set(e, true)
				out = append(out, e)
			}
		}
		return NewArray(out...)
	})
	c.AddMethod1("|", func(i *Interpreter, self Value, arg Value) Value {
		seen := NewHash()
		var out []Value
		for _, e := range append(append([]Value(nil), self.(*Array).Elems...), i.mustArray(arg).Elems...) {
			if _, dup := seen.Get(e); !dup {
				seen.Set(e, true)
				out = append(out, e)
			}
		}
		return NewArray(out...)
	})
	c.AddMethod1("*", func(i *Interpreter, self Value, arg Value) Value {
		a := self.(*Array)
		if sep, ok := arg.(string); ok {
			return i.join(a, sep)
		}
		n := i.mustInt(arg)
		if n < 0 {
			i.raise(i.c.ArgumentError, "negative argument")
		}
		var out []Value
		for j := int64(0); j < n; j++ {
			out = append(out, a.Elems...)
		}
		return NewArray(out...)
	})
	c.AddMethod("join", 0, 1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		sep := ""
		if len(args) > 0 && args[0] != nil {
			sep = i.mustString(args[0])
		}
		return i.join(self.(*Array), sep)
	})
	c.AddMethod0("reverse", func(_ *Interpreter, self Value) Value {
		a := self.(*Array)
		out := make([]Value, a.Len())
		for j, e := range a.Elems {
			out[a.Len()-1-j] = e
		}
		return NewArray(out...)
	})
	c.AddMethod("rotate", 0, 1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		a := self.(*Array)
		if a.Len() == 0 {
			return NewArray()
		}
		n := int64(1)
		if len(args) > 0 {
			n = i.mustInt(args[0])
		}
		k := int(floorMod(n, int64(a.Len())))
		return NewArray(append(append([]Value(nil), a.Elems[k:]...), a.Elems[:k]...)...)
	})
	c.AddMethod0("compact", func(_ *Interpreter, self Value) Value {
		var out []Value
		for _, e := range self.(*Array).Elems {
			if e != nil {
				out = append(out, e)
			}
		}
		return NewArray(out...)
	})
	c.AddMethod("flatten", 0, 1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		depth := int64(-1)
		if len(args) > 0 && args[0] != nil {
			depth = i.mustInt(args[0])
		}
		return NewArray(flatten(self.(*Array).Elems, depth)...)
	})
	c.AddMethod0("transpose", func(i *Interpreter, self Value) Value {
		rows := self.(*Array).Elems
		if len(rows) == 0 {
			return NewArray()
		}
		width := i.mustArray(rows[0]).Len()
		cols := make([]Value, width)
		for col := 0; col < width; col++ {
			out := make([]Value, len(rows))
			for r, row := range rows {
				ra := i.mustArray(row)
				if ra.Len() != width {
					i.raise(i.c.IndexError, "element size differs (%d should be %d)", ra.Len(), width)
				}
				out[r] = ra.Elems[col]
			}
			cols[col] = NewArray(out...)
		}
		return NewArray(cols...)
	})

	// Conversion
	c.AddMethod0("to_a", func(_ *Interpreter, self Value) Value { return self })
	c.Methods["deconstruct"] = c.Methods["to_a"]
	c.Methods["to_ary"] = c.Methods["to_a"]
	c.AddMethod0("inspect", func(i *Interpreter, self Value) Value { return i.inspectValue(self) })
	c.Methods["to_s"] = c.Methods["inspect"]
	c.AddMethod0("hash", func(_ *Interpreter, self Value) Value {
		var h int64 = 7
		for _, b := range []byte(inspect(self)) {
			h = h*31 + int64(b)
		}
		return h
	})
}

// newArray implements Array.new(size = 0, default = nil) and the block
// form.
func (i *Interpreter) newArray(args []Value, blk *Proc) *Array {
	if len(args) == 0 {
		return NewArray()
	}
	if src, ok := args[0].(*Array); ok && len(args) == 1 {
		return NewArray(append([]Value(nil), src.Elems...)...)
	}
	n := i.mustInt(args[0])
	if n < 0 {
		i.raise(i.c.ArgumentError, "negative array size")
	}
	out := make([]Value, n)
	for j := range out {
		switch {
		case blk != nil:
			out[j] = i.yield(blk, int64(j))
		case len(args) > 1:
			out[j] = args[1]
		}
	}
	return NewArray(out...)
}

func (i *Interpreter) mustArray(v Value) *Array {
	a, ok := v.(*Array)
	if !ok {
		i.raise(i.c.TypeError, "no implicit conversion of %s into Array", i.describeOperand(v))
	}
	return a
}

// arraySlice implements Array#[] for an index, start and length, or range.
func (i *Interpreter) arraySlice(a *Array, args []Value) Value {
	if len(args) == 2 {
		start, end, ok := sliceBounds(i.mustInt(args[0]), i.mustInt(args[1]), a.Len())
		if !ok {
			return nil
		}
		return NewArray(append([]Value(nil), a.Elems[start:end]...)...)
	}
	if r, ok := args[0].(*Range); ok {
		start, end, ok := i.rangeBounds(r, a.Len())
		if !ok {
			return nil
		}
		return NewArray(append([]Value(nil), a.Elems[start:end]...)...)
	}
	return a.At(i.mustInt(args[0]))
}

// splice replaces a[start:end] with v, or with v's elements when v is an
// array.
func (i *Interpreter) splice(a *Array, start, end int, v Value) {
	repl := []Value{v}
	if arr, ok := v.(*Array); ok {
		repl = arr.Elems
	}
	out := make([]Value, 0, a.Len()-(end-start)+len(repl))
	out = append(out, a.Elems[:start]...)
	out = append(out, repl...)
	a.Elems = append(out, a.Elems[end:]...)
}

func (i *Interpreter) join(a *Array, sep string) string {
	parts := make([]string, a.Len())
	for j, e := range a.Elems {
		if inner, ok := e.(*Array); ok {
			parts[j] = i.join(inner, sep)
		} else {
			parts[j] = i.stringify(e)
		}
	}
	return strings.Join(parts, sep)
}

func flatten(elems []Value, depth int64) []Value {
	var out []Value
	for _, e := range elems {
		if inner, ok := e.(*Array); ok && depth != 0 {
			out = append(out, flatten(inner.Elems, depth-1)...)
			continue
		}
		out = append(out, e)
	}
	return out
}

// dig follows keys through nested arrays and hashes.
func (i *Interpreter) dig(v Value, keys []Value) Value {
	for _, k := range keys {
		if v == nil {
			return nil
		}
		switch x := v.(type) {
		case *Array:
			v = x.At(i.mustInt(k))
		case *Hash:
			v = i.hashGet(x, k)
		default:
			v = i.callMethod(v, "dig", k)
		}
	}
	return v
}

// sliceBounds resolves a start and length against a sequence of n
// elements.
func sliceBounds(start, length int64, n int) (int, int, bool) {
	if start < 0 {
		start += int64(n)
	}
	if start < 0 || start > int64(n) || length < 0 {
		return 0, 0, false
	}
	end := start + length
	if end > int64(n) {
		end = int64(n)
	}
	return int(start), int(end), true
}

// rangeBounds resolves an integer range against a sequence of n elements.
func (i *Interpreter) rangeBounds(r *Range, n int) (int, int, bool) {
	low := int64(0)
	if r.Low != nil {
		low = i.mustInt(r.Low)
	}
	high := int64(n)
	exclusive := true
	if r.High != nil {
		high = i.mustInt(r.High)
		exclusive = r.Exclusive
		if high < 0 {
			high += int64(n)
		}
	}
	if low < 0 {
		low += int64(n)
	}
	if low < 0 || low > int64(n) {
		return 0, 0, false
	}
	end := high
	if !exclusive {
		end++
	}
	if end > int64(n) {
		end = int64(n)
	}
	if end < low {
		end = low
	}
	return int(low), int(end), true
}

// ---------------------------------------------------------------------------
// Hash Primitives
// ---------------------------------------------------------------------------

func (i *Interpreter) registerHashPrimitives() {
	c := i.c.Hash

	c.AddMethod1("[]", func(i *Interpreter, self Value, k Value) Value {
		return i.hashGet(self.(*Hash), k)
	})
	c.AddMethod2("[]=", func(_ *Interpreter, self Value, k, v Value) Value {
		self.(*Hash).Set(k, v)
		return v
	})
	c.Methods["store"] = c.Methods["[]="]
	c.AddMethod("fetch", 1, 2, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		if v, ok := self.(*Hash).Get(args[0]); ok {
			return v
		}
		switch {
		case blk != nil:
			return i.yield(blk, args[0])
		case len(args) > 1:
			return args[1]
		}
		i.raise(i.c.KeyError, "key not found: %s", i.inspectValue(args[0]))
		return nil
	})
	c.AddMethod("dig", 1, -1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		return i.dig(self, args)
	})
	c.AddMethod1("key?", func(_ *Interpreter, self Value, k Value) Value {
		_, ok := self.(*Hash).Get(k)
		return ok
	})
	for _, alias := range []string{"has_key?", "include?", "member?"} {
		c.Methods[alias] = c.Methods["key?"]
	}
	c.AddMethod1("value?", func(i *Interpreter, self Value, v Value) Value {
		for _, x := range self.(*Hash).vals {
			if i.equal(x, v) {
				return true
			}
		}
		return false
	})
	c.Methods["has_value?"] = c.Methods["value?"]
	c.AddMethod1("key", func(i *Interpreter, self Value, v Value) Value {
		h := self.(*Hash)
		for j, x := range h.vals {
			if i.equal(x, v) {
				return h.keys[j]
			}
		}
		return nil
	})
	c.AddMethod0("keys", func(_ *Interpreter, self Value) Value { return NewArray(self.(*Hash).Keys()...) })
	c.AddMethod0("values", func(_ *Interpreter, self Value) Value { return NewArray(self.(*Hash).Values()...) })
	c.AddMethod("values_at", 0, -1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		out := make([]Value, len(args))
		for j, k := range args {
			out[j] = i.hashGet(self.(*Hash), k)
		}
		return NewArray(out...)
	})
	c.AddMethod0("length", func(_ *Interpreter, self Value) Value { return int64(self.(*Hash).Len()) })
	c.Methods["size"] = c.Methods["length"]
	c.AddMethod0("empty?", func(_ *Interpreter, self Value) Value { return self.(*Hash).Len() == 0 })
	c.AddMethod0("default", func(_ *Interpreter, self Value) Value { return self.(*Hash).Default })
	c.AddMethod1("default=", func(_ *Interpreter, self Value, v Value) Value {
		self.(*Hash).Default = v
		return v
	})

	// Iteration
	c.AddMethod("each", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		h := self.(*Hash)
		for _, pair := range i.elements(h) {
			i.yield(blk, pair)
		}
		return h
	})
	c.Methods["each_pair"] = c.Methods["each"]
	c.AddMethod("each_key", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		for _, k := range self.(*Hash).Keys() {
			i.yield(blk, k)
		}
		return self
	})
	c.AddMethod("each_value", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		for _, v := range self.(*Hash).Values() {
			i.yield(blk, v)
		}
		return self
	})

	filter := func(keep bool) Builtin {
		return func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
			out := NewHash()
			self.(*Hash).Copy().Each(func(k, v Value) {
				if Truthy(i.yield(blk, k, v)) == keep {
					out.Set(k, v)
				}
			})
			return out
		}
	}
	c.AddMethod("select", 0, 0, filter(true))
	c.Methods["filter"] = c.Methods["select"]
	c.AddMethod("reject", 0, 0, filter(false))
	c.AddMethod("delete_if", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		h := self.(*Hash)
		h.Copy().Each(func(k, v Value) {
			if Truthy(i.yield(blk, k, v)) {
				h.Delete(k)
			}
		})
		return h
	})
	c.AddMethod("transform_values", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		out := NewHash()
		self.(*Hash).Copy().Each(func(k, v Value) { out.Set(k, i.yield(blk, v)) })
		return out
	})
	c.AddMethod("transform_keys", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		out := NewHash()
		self.(*Hash).Copy().Each(func(k, v Value) { out.Set(i.yield(blk, k), v) })
		return out
	})

	// Mutation and combination
	c.AddMethod("delete", 1, 1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		if v, ok := self.(*Hash).Delete(args[0]); ok {
			return v
		}
		if blk != nil {
			return i.yield(blk, args[0])
		}
		return nil
	})
	c.AddMethod0("clear", func(_ *Interpreter, self Value) Value {
		h := self.(*Hash)
		h.keys, h.vals, h.index = nil, nil, make(map[any]int)
		return h
	})
	merge := func(inPlace bool) Builtin {
		return func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
			h := self.(*Hash)
			if !inPlace {
				h = h.Copy()
			}
			for _, a := range args {
				other, ok := a.(*Hash)
				if !ok {
					i.raise(i.c.TypeError, "no implicit conversion of %s into Hash", i.describeOperand(a))
				}
				other.Each(func(k, v Value) {
					if old, exists := h.Get(k); exists && blk != nil {
						v = i.yield(blk, k, old, v)
					}
					h.Set(k, v)
				})
			}
			return h
		}
	}
	c.AddMethod("merge", 0, -1, merge(false))
	c.AddMethod("merge!", 0, -1, merge(true))
	c.Methods["update"] = c.Methods["merge!"]
	c.AddMethod0("invert", func(_ *Interpreter, self Value) Value {
		out := NewHash()
		self.(*Hash).Each(func(k, v Value) { out.Set(v, k) })
		return out
	})
	c.AddMethod0("compact", func(_ *Interpreter, self Value) Value {
		out := NewHash()
		self.(*Hash).Each(func(k, v Value) {
			if v != nil {
				out.Set(k, v)
			}
		})
		return out
	})
	c.AddMethod("slice", 0, -1, func(_ *Interpreter, self Value, args []Value, _ *Proc) Value {
		h := self.(*Hash)
		out := NewHash()
		for _, k := range args {
			if v, ok := h.Get(k); ok {
				out.Set(k, v)
			}
		}
		return out
	})
	c.AddMethod("except", 0, -1, func(_ *Interpreter, self Value, args []Value, _ *Proc) Value {
		out := self.(*Hash).Copy()
		for _, k := range args {
			out.Delete(k)
		}
		return out
	})

	// Conversion and comparison
	c.AddMethod0("to_h", func(_ *Interpreter, self Value) Value { return self })
	c.AddMethod1("deconstruct_keys", func(_ *Interpreter, self Value, _ Value) Value { return self })
	c.AddMethod0("inspect", func(i *Interpreter, self Value) Value { return i.inspectValue(self) })
	c.Methods["to_s"] = c.Methods["inspect"]
	c.AddMethod1("==", func(i *Interpreter, self Value, arg Value) Value {
		other, ok := arg.(*Hash)
		if !ok {
			return false
		}
		h := self.(*Hash)
		if h.Len() != other.Len() {
			return false
		}
		for j, k := range h.keys {
			v, ok := other.Get(k)
			if !ok || !i.equal(h.vals[j], v) {
				return false
			}
		}
		return true
	})
}

// hashGet is Hash#[]: the stored value, else the default proc's result,
// else the default value.
func (i *Interpreter) hashGet(h *Hash, k Value) Value {
	if v, ok := h.Get(k); ok {
		return v
	}
	if h.DefaultProc != nil {
		return i.callProc(h.DefaultProc, []Value{h, k}, nil, nil)
	}
	return h.Default
}

// ---------------------------------------------------------------------------
// Range Primitives
// ---------------------------------------------------------------------------

func (i *Interpreter) registerRangePrimitives() {
	c := i.c.Range

	c.AddMethod("each", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		r := self.(*Range)
		i.eachInRange(r, func(v Value) bool {
			i.yield(blk, v)
			return true
		})
		return r
	})
	c.AddMethod("step", 1, 1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		r := self.(*Range)
		by := i.mustInt(args[0])
		if by <= 0 {
			i.raise(i.c.ArgumentError, "step can't be negative or zero")
		}
		var out []Value
		n := int64(0)
		i.eachInRange(r, func(v Value) bool {
			if n%by == 0 {
				if blk != nil {
					i.yield(blk, v)
				} else {
					out = append(out, v)
				}
			}
			n++
			return true
		})
		if blk != nil {
			return r
		}
		return NewArray(out...)
	})

	c.AddMethod0("begin", func(_ *Interpreter, self Value) Value { return self.(*Range).Low })
	c.AddMethod("first", 0, 1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		r := self.(*Range)
		if len(args) == 0 {
			return r.Low
		}
		n := i.mustInt(args[0])
		var out []Value
		if n > 0 {
			i.eachInRange(r, func(v Value) bool {
				out = append(out, v)
				return int64(len(out)) < n
			})
		}
		return NewArray(out...)
	})
	c.AddMethod0("end", func(_ *Interpreter, self Value) Value { return self.(*Range).High })
	c.AddMethod("last", 0, 1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		r := self.(*Range)
		if len(args) == 0 {
			return r.High
		}
		elems := i.rangeElems(r)
		n := i.count(args[0], len(elems))
		return NewArray(append([]Value(nil), elems[len(elems)-n:]...)...)
	})
	c.AddMethod0("exclude_end?", func(_ *Interpreter, self Value) Value { return self.(*Range).Exclusive })

	c.AddMethod0("min", func(i *Interpreter, self Value) Value {
		r := self.(*Range)
		if i.rangeEmpty(r) {
			return nil
		}
		return r.Low
	})
	c.AddMethod0("max", func(i *Interpreter, self Value) Value {
		r := self.(*Range)
		if i.rangeEmpty(r) {
			return nil
		}
		if high, ok := r.High.(int64); ok && r.Exclusive {
			return high - 1
		}
		return r.High
	})
	c.AddMethod0("size", func(i *Interpreter, self Value) Value {
		r := self.(*Range)
		low, ok := r.Low.(int64)
		if !ok {
			return nil
		}
		if r.High == nil {
			return math.Inf(1)
		}
		high := i.mustInt(r.High)
		if r.Exclusive {
			high--
		}
		if high < low {
			return int64(0)
		}
		return high - low + 1
	})
	c.AddMethod("sum", 0, 1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		r := self.(*Range)
		low, lok := r.Low.(int64)
		high, hok := r.High.(int64)
		if blk == nil && len(args) == 0 && lok && hok {
			if r.Exclusive {
				high--
			}
			if high < low {
				return int64(0)
			}
			return (low + high) * (high - low + 1) / 2
		}
		return i.invoke(i.c.Enumerable.Methods["sum"], r, args, nil, blk)
	})

	cover := func(i *Interpreter, self Value, arg Value) Value {
		return i.rangeCovers(self.(*Range), arg)
	}
	for _, name := range []string{"===", "include?", "member?", "cover?"} {
		c.AddMethod1(name, cover)
	}

	c.AddMethod0("to_a", func(i *Interpreter, self Value) Value {
		return NewArray(i.rangeElems(self.(*Range))...)
	})
	c.Methods["entries"] = c.Methods["to_a"]
	c.AddMethod0("inspect", func(i *Interpreter, self Value) Value {
		r := self.(*Range)
		op := ".."
		if r.Exclusive {
			op = "..."
		}
		render := func(v Value) string {
			if v == nil {
				return ""
			}
			return i.inspectValue(v)
		}
		return render(r.Low) + op + render(r.High)
	})
	c.AddMethod0("to_s", func(i *Interpreter, self Value) Value {
		r := self.(*Range)
		op := ".."
		if r.Exclusive {
			op = "..."
		}
		return i.stringify(r.Low) + op + i.stringify(r.High)
	})
	c.AddMethod1("==", func(_ *Interpreter, self Value, arg Value) Value {
		return valuesEqual(self, arg)
	})
}

// eachInRange calls fn for each member of r until fn returns false.
// Integer ranges may be endless; string ranges step with String#succ.
func (i *Interpreter) eachInRange(r *Range, fn func(Value) bool) {
	switch low := r.Low.(type) {
	case int64:
		if r.High == nil {
			for j := low; ; j++ {
				if !fn(j) {
					return
				}
			}
		}
		high := i.mustInt(r.High)
		if f, ok := r.High.(float64); ok && f != math.Floor(f) {
			high = int64(math.Floor(f))
		} else if r.Exclusive {
			high--
		}
		for j := low; j <= high; j++ {
			if !fn(j) {
				return
			}
		}
	case string:
		high, ok := r.High.(string)
		if !ok {
			i.raise(i.c.TypeError, "can't iterate from String")
		}
		for s := low; len(s) <= len(high); s = toS(i.callMethod(s, "succ")) {
			if s == high {
				if !r.Exclusive {
					fn(s)
				}
				return
			}
			if !fn(s) {
				return
			}
		}
	default:
		i.raise(i.c.TypeError, "can't iterate from %s", i.classOf(r.Low).Name)
	}
}

func (i *Interpreter) rangeElems(r *Range) []Value {
	if r.High == nil {
		i.raise(i.c.RangeError, "cannot convert endless range to an array")
	}
	var out []Value
	i.eachInRange(r, func(v Value) bool {
		out = append(out, v)
		return true
	})
	return out
}

func (i *Interpreter) rangeEmpty(r *Range) bool {
	if r.High == nil {
		return false
	}
	n, ok := i.tryCompare(r.Low, r.High)
	return !ok || n > 0 || n == 0 && r.Exclusive
}

// rangeCovers reports whether v lies within r's bounds.
func (i *Interpreter) rangeCovers(r *Range, v Value) bool {
	if r.Low != nil {
		n, ok := i.tryCompare(r.Low, v)
		if !ok || n > 0 {
			return false
		}
	}
	if r.High != nil {
		n, ok := i.tryCompare(v, r.High)
		if !ok || n > 0 || n == 0 && r.Exclusive {
			return false
		}
	}
	return true
}

// tryCompare is <=> without raising for incomparable values.
func (i *Interpreter) tryCompare(a, b Value) (int64, bool) {
	if v, ok := numericBinary("<=>", a, b); ok {
		n, ok := v.(int64)
		return n, ok
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return int64(strings.Compare(x, y)), true
		}
		return 0, false
	}
	if immediate(a) {
		return 0, false
	}
	if i.classOf(a).Lookup("<=>") == nil {
		return 0, false
	}
	n, ok := i.callMethod(a, "<=>", b).(int64)
	return n, ok
}
