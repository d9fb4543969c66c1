package vm

import (
	"sort"
)

// ---------------------------------------------------------------------------
// Enumerable Primitives
// ---------------------------------------------------------------------------

// The Enumerable methods work on a snapshot of the receiver's elements:
// the array itself, the [key, value] pairs of a hash, the members of a
// range, or whatever a user-defined each yields.

func (i *Interpreter) registerEnumerablePrimitives() {
	c := i.c.Enumerable

	c.AddMethod0("to_a", func(i *Interpreter, self Value) Value {
		return NewArray(append([]Value(nil), i.elements(self)...)...)
	})
	c.Methods["entries"] = c.Methods["to_a"]

	c.AddMethod("map", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		elems := i.elements(self)
		out := make([]Value, len(elems))
		for j, e := range elems {
			out[j] = i.yield(blk, e)
		}
		return NewArray(out...)
	})
	c.Methods["collect"] = c.Methods["map"]

	c.AddMethod("flat_map", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		var out []Value
		for _, e := range i.elements(self) {
			r := i.yield(blk, e)
			if arr, ok := r.(*Array); ok {
				out = append(out, arr.Elems...)
			} else {
				out = append(out, r)
			}
		}
		return NewArray(out...)
	})

	filter := func(keep bool) Builtin {
		return func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
			var out []Value
			for _, e := range i.elements(self) {
				if Truthy(i.yield(blk, e)) == keep {
					out = append(out, e)
				}
			}
			return NewArray(out...)
		}
	}
	c.AddMethod("select", 0, 0, filter(true))
	c.Methods["filter"] = c.Methods["select"]
	c.AddMethod("reject", 0, 0, filter(false))

	c.AddMethod("filter_map", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		var out []Value
		for _, e := range i.elements(self) {
			if r := i.yield(blk, e); Truthy(r) {
				out = append(out, r)
			}
		}
		return NewArray(out...)
	})

	c.AddMethod("partition", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		var yes, no []Value
		for _, e := range i.elements(self) {
			if Truthy(i.yield(blk, e)) {
				yes = append(yes, e)
			} else {
				no = append(no, e)
			}
		}
		return NewArray(NewArray(yes...), NewArray(no...))
	})

	c.AddMethod("find", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		for _, e := range i.elements(self) {
			if Truthy(i.yield(blk, e)) {
				return e
			}
		}
		return nil
	})
	c.Methods["detect"] = c.Methods["find"]

	c.AddMethod("find_index", 0, 1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		for j, e := range i.elements(self) {
			if len(args) > 0 && i.equal(e, args[0]) || len(args) == 0 && Truthy(i.yield(blk, e)) {
				return int64(j)
			}
		}
		return nil
	})

	// Predicates take a pattern argument, a block, or test truthiness.
	predicate := func(name string, want bool, stopResult bool) {
		c.AddMethod(name, 0, 1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
			for _, e := range i.elements(self) {
				var hit bool
				switch {
				case len(args) > 0:
					hit = Truthy(i.callMethod(args[0], "===", e))
				case blk != nil:
					hit = Truthy(i.yield(blk, e))
				default:
					hit = Truthy(e)
				}
				if hit == want {
					return stopResult
				}
			}
			return !stopResult
		})
	}
	predicate("any?", true, true)
	predicate("all?", false, false)
	predicate("none?", true, false)

	c.AddMethod("count", 0, 1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		elems := i.elements(self)
		if len(args) == 0 && blk == nil {
			return int64(len(elems))
		}
		n := int64(0)
		for _, e := range elems {
			if len(args) > 0 && i.equal(e, args[0]) || len(args) == 0 && Truthy(i.yield(blk, e)) {
				n++
			}
		}
		return n
	})

	c.AddMethod1("include?", func(i *Interpreter, self Value, arg Value) Value {
		for _, e := range i.elements(self) {
			if i.equal(e, arg) {
				return true
			}
		}
		return false
	})
	c.Methods["member?"] = c.Methods["include?"]

	c.AddMethod("first", 0, 1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		elems := i.elements(self)
		if len(args) == 0 {
			if len(elems) == 0 {
				return nil
			}
			return elems[0]
		}
		return NewArray(append([]Value(nil), elems[:i.count(args[0], len(elems))]...)...)
	})
	c.AddMethod1("take", func(i *Interpreter, self Value, arg Value) Value {
		elems := i.elements(self)
		return NewArray(append([]Value(nil), elems[:i.count(arg, len(elems))]...)...)
	})
	c.AddMethod1("drop", func(i *Interpreter, self Value, arg Value) Value {
		elems := i.elements(self)
		return NewArray(append([]Value(nil), elems[i.count(arg, len(elems)):]...)...)
	})
	c.AddMethod("take_while", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		var out []Value
		for _, e := range i.elements(self) {
			if !Truthy(i.yield(blk, e)) {
				break
			}
			out = append(out, e)
		}
		return NewArray(out...)
	})
	c.AddMethod("drop_while", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		elems := i.elements(self)
		j := 0
		for j < len(elems) && Truthy(i.yield(blk, elems[j])) {
			j++
		}
		return NewArray(append([]Value(nil), elems[j:]...)...)
	})

	// Iteration
	c.AddMethod("each_with_index", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		for j, e := range i.elements(self) {
			i.yield(blk, e, int64(j))
		}
		return self
	})
	c.AddMethod("each_with_object", 1, 1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		memo := args[0]
		for _, e := range i.elements(self) {
			i.yield(blk, e, memo)
		}
		return memo
	})
	c.AddMethod("each_slice", 1, 1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		return i.chunks(i.elements(self), i.mustInt(args[0]), false, blk, self)
	})
	c.AddMethod("each_cons", 1, 1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		return i.chunks(i.elements(self), i.mustInt(args[0]), true, blk, self)
	})
	c.AddMethod("reverse_each", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		elems := i.elements(self)
		for j := len(elems) - 1; j >= 0; j-- {
			i.yield(blk, elems[j])
		}
		return self
	})

	// Folding
	c.AddMethod("inject", 0, 2, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		elems := i.elements(self)
		var acc Value
		op := ""
		switch {
		case len(args) == 2:
			acc, op = args[0], symbolName(args[1])
		case len(args) == 1 && blk == nil:
			op = symbolName(args[0])
		case len(args) == 1:
			acc = args[0]
		}
		if len(args) == 0 || len(args) == 1 && op != "" {
			if len(elems) == 0 {
				return nil
			}
			acc, elems = elems[0], elems[1:]
		}
		for _, e := range elems {
			if op != "" {
				acc = i.binaryOp(op, acc, e)
			} else {
				acc = i.yield(blk, acc, e)
			}
		}
		return acc
	})
	c.Methods["reduce"] = c.Methods["inject"]

	c.AddMethod("sum", 0, 1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		var acc Value = int64(0)
		if len(args) > 0 {
			acc = args[0]
		}
		for _, e := range i.elements(self) {
			if blk != nil {
				e = i.yield(blk, e)
			}
			acc = i.binaryOp("+", acc, e)
		}
		return acc
	})

	c.AddMethod0("tally", func(i *Interpreter, self Value) Value {
		h := NewHash()
		for _, e := range i.elements(self) {
			n, _ := h.Get(e)
			count, _ := n.(int64)
			h.Set(e, count+1)
		}
		return h
	})
	c.AddMethod("group_by", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		h := NewHash()
		for _, e := range i.elements(self) {
			k := i.yield(blk, e)
			group, ok := h.Get(k)
			if !ok {
				group = NewArray()
				h.Set(k, group)
			}
			arr := group.(*Array)
			arr.Elems = append(arr.Elems, e)
		}
		return h
	})
	c.AddMethod("to_h", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		h := NewHash()
		for _, e := range i.elements(self) {
			if blk != nil {
				e = i.yield(blk, e)
			}
			pair, ok := e.(*Array)
			if !ok || pair.Len() != 2 {
				i.raise(i.c.TypeError, "wrong element type %s (expected array)", i.classOf(e).Name)
			}
			h.Set(pair.Elems[0], pair.Elems[1])
		}
		return h
	})
	c.AddMethod("uniq", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		seen := NewHash()
		var out []Value
		for _, e := range i.elements(self) {
			k := e
			if blk != nil {
				k = i.yield(blk, e)
			}
			if _, dup := seen.Get(k); dup {
				continue
			}
			seen.Set(k, true)
			out = append(out, e)
		}
		return NewArray(out...)
	})
	c.AddMethod("zip", 0, -1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		elems := i.elements(self)
		others := make([][]Value, len(args))
		for j, a := range args {
			others[j] = i.elements(a)
		}
		out := make([]Value, len(elems))
		for j, e := range elems {
			row := []Value{e}
			for _, o := range others {
				if j < len(o) {
					row = append(row, o[j])
				} else {
					row = append(row, nil)
				}
			}
			out[j] = NewArray(row...)
		}
		return NewArray(out...)
	})

	// Ordering
	c.AddMethod("sort", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		return NewArray(i.sorted(i.elements(self), blk)...)
	})
	c.AddMethod("sort_by", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		return NewArray(i.sortedBy(i.elements(self), blk)...)
	})
	extreme := func(name string, sign int64) {
		c.AddMethod(name, 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
			var best Value
			for j, e := range i.elements(self) {
				if j == 0 || i.ordered(e, best, blk)*sign < 0 {
					best = e
				}
			}
			return best
		})
	}
	extreme("min", 1)
	extreme("max", -1)
	extremeBy := func(name string, sign int64) {
		c.AddMethod(name, 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
			var best, bestKey Value
			for j, e := range i.elements(self) {
				k := i.yield(blk, e)
				if j == 0 || i.compare(k, bestKey)*sign < 0 {
					best, bestKey = e, k
				}
			}
			return best
		})
	}
	extremeBy("min_by", 1)
	extremeBy("max_by", -1)
	c.AddMethod("minmax", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		s := i.sorted(i.elements(self), blk)
		if len(s) == 0 {
			return NewArray(nil, nil)
		}
		return NewArray(s[0], s[len(s)-1])
	})
}

// elements returns the values an Enumerable method iterates.
func (i *Interpreter) elements(v Value) []Value {
	switch x := v.(type) {
	case *Array:
		return x.Elems
	case *Hash:
		out := make([]Value, 0, x.Len())
		x.Each(func(k, v Value) { out = append(out, NewArray(k, v)) })
		return out
	case *Range:
		return i.rangeElems(x)
	}
	var out []Value
	collect := &Proc{fn: func(_ *Interpreter, args []Value, _ *Proc) Value {
		switch len(args) {
		case 0:
			out = append(out, nil)
		case 1:
			out = append(out, args[0])
		default:
			out = append(out, NewArray(args...))
		}
		return nil
	}}
	i.callWithBlock(v, "each", collect)
	return out
}

// equal is == for element comparisons.
func (i *Interpreter) equal(a, b Value) bool {
	if immediate(a) && immediate(b) {
		return valuesEqual(a, b)
	}
	return Truthy(i.callMethod(a, "==", b))
}

// binaryOp applies a binary method, using the numeric fast path first.
func (i *Interpreter) binaryOp(name string, a, b Value) Value {
	if v, ok := numericBinary(name, a, b); ok {
		return v
	}
	return i.callMethod(a, name, b)
}

// ordered compares a and b with the block when given, else with <=>.
func (i *Interpreter) ordered(a, b Value, blk *Proc) int64 {
	if blk == nil {
		return i.compare(a, b)
	}
	n, ok := i.yield(blk, a, b).(int64)
	if !ok {
		i.raise(i.c.ArgumentError, "comparison of %s with %s failed", i.classOf(a).Name, i.classOf(b).Name)
	}
	return n
}

func (i *Interpreter) sorted(elems []Value, blk *Proc) []Value {
	out := append([]Value(nil), elems...)
	sort.SliceStable(out, func(a, b int) bool { return i.ordered(out[a], out[b], blk) < 0 })
	return out
}

func (i *Interpreter) sortedBy(elems []Value, blk *Proc) []Value {
	type keyed struct{ key, val Value }
	ks := make([]keyed, len(elems))
	for j, e := range elems {
		ks[j] = keyed{i.yield(blk, e), e}
	}
	sort.SliceStable(ks, func(a, b int) bool { return i.compare(ks[a].key, ks[b].key) < 0 })
	out := make([]Value, len(ks))
	for j, k := range ks {
		out[j] = k.val
	}
	return out
}

// chunks implements each_slice and each_cons.
func (i *Interpreter) chunks(elems []Value, n int64, overlap bool, blk *Proc, self Value) Value {
	if n <= 0 {
		i.raise(i.c.ArgumentError, "invalid size")
	}
	var out []Value
	size := int(n)
	step := size
	if overlap {
		step = 1
	}
	for j := 0; j < len(elems); j += step {
		end := j + size
		if end > len(elems) {
			if overlap {
				break
			}
			end = len(elems)
		}
		chunk := NewArray(append([]Value(nil), elems[j:end]...)...)
		if blk != nil {
			i.yield(blk, chunk)
		} else {
			out = append(out, chunk)
		}
	}
	if blk != nil {
		return self
	}
	return NewArray(out...)
}

// count clamps a take/first argument to [0, n].
func (i *Interpreter) count(v Value, n int) int {
	c := i.mustInt(v)
	if c < 0 {
		i.raise(i.c.ArgumentError, "attempt to take negative size")
	}
	if c > int64(n) {
		return n
	}
	return int(c)
}
