package vm

import (
	"math"
	"strconv"
	"strings"

	"github.com/chazu/rbvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Fast paths for opt_* instructions
// ---------------------------------------------------------------------------

var optNames = map[bytecode.Opcode]string{
	bytecode.OpOptPlus:  "+",
	bytecode.OpOptMinus: "-",
	bytecode.OpOptMult:  "*",
	bytecode.OpOptDiv:   "/",
	bytecode.OpOptMod:   "%",
	bytecode.OpOptLt:    "<",
	bytecode.OpOptLe:    "<=",
	bytecode.OpOptGt:    ">",
	bytecode.OpOptGe:    ">=",
}

// fastBinary evaluates an opt_* instruction on built-in operands. It
// reports false when the operation must go through method dispatch,
// including integer division by zero so that Integer#/ raises.
func fastBinary(op bytecode.Opcode, a, b Value) (Value, bool) {
	switch op {
	case bytecode.OpOptEq, bytecode.OpOptNeq:
		if !immediate(a) || !immediate(b) {
			return nil, false
		}
		eq := valuesEqual(a, b)
		if op == bytecode.OpOptNeq {
			eq = !eq
		}
		return eq, true

	case bytecode.OpOptAref:
		switch x := a.(type) {
		case *Array:
			if idx, ok := b.(int64); ok {
				return x.At(idx), true
			}
		case *Hash:
			if v, ok := x.Get(b); ok {
				return v, true
			}
			if x.DefaultProc == nil {
				return x.Default, true
			}
		}
		return nil, false

	case bytecode.OpOptLtLt:
		if arr, ok := a.(*Array); ok {
			arr.Elems = append(arr.Elems, b)
			return arr, true
		}
		return nil, false
	}

	name, ok := optNames[op]
	if !ok {
		return nil, false
	}
	if v, ok := numericBinary(name, a, b); ok {
		return v, true
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return stringBinary(name, x, y)
		}
	}
	return nil, false
}

// fastAset stores into an array slot or hash entry.
func fastAset(recv, k, v Value) bool {
	switch x := recv.(type) {
	case *Array:
		idx, ok := k.(int64)
		if !ok {
			return false
		}
		if idx < 0 {
			idx += int64(len(x.Elems))
			if idx < 0 {
				return false
			}
		}
		for int64(len(x.Elems)) <= idx {
			x.Elems = append(x.Elems, nil)
		}
		x.Elems[idx] = v
		return true
	case *Hash:
		x.Set(k, v)
		return true
	}
	return false
}

func immediate(v Value) bool {
	switch v.(type) {
	case nil, bool, int64, float64, string, Symbol:
		return true
	}
	return false
}

// numericBinary applies a binary operator to two numbers. An integer and a
// float promote to float.
func numericBinary(name string, a, b Value) (Value, bool) {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return intBinary(name, x, y)
		case float64:
			return floatBinary(name, float64(x), y)
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return floatBinary(name, x, float64(y))
		case float64:
			return floatBinary(name, x, y)
		}
	}
	return nil, false
}

func intBinary(name string, x, y int64) (Value, bool) {
	switch name {
	case "+":
		return x + y, true
	case "-":
		return x - y, true
	case "*":
		return x * y, true
	case "/", "div":
		if y == 0 {
			return nil, false
		}
		return floorDiv(x, y), true
	case "%", "modulo":
		if y == 0 {
			return nil, false
		}
		return floorMod(x, y), true
	case "**":
		if y < 0 {
			return math.Pow(float64(x), float64(y)), true
		}
		return intPow(x, y), true
	case "<":
		return x < y, true
	case "<=":
		return x <= y, true
	case ">":
		return x > y, true
	case ">=":
		return x >= y, true
	case "==":
		return x == y, true
	case "<=>":
		return cmpOrdered(x, y), true
	case "&":
		return x & y, true
	case "|":
		return x | y, true
	case "^":
		return x ^ y, true
	case "<<":
		return x << uint64(y), true
	case ">>":
		return x >> uint64(y), true
	}
	return nil, false
}

func floatBinary(name string, x, y float64) (Value, bool) {
	switch name {
	case "+":
		return x + y, true
	case "-":
		return x - y, true
	case "*":
		return x * y, true
	case "/":
		return x / y, true
	case "%", "modulo":
		m := math.Mod(x, y)
		if m != 0 && (m < 0) != (y < 0) {
			m += y
		}
		return m, true
	case "div":
		if y == 0 {
			return nil, false
		}
		return int64(math.Floor(x / y)), true
	case "**":
		return math.Pow(x, y), true
	case "<":
		return x < y, true
	case "<=":
		return x <= y, true
	case ">":
		return x > y, true
	case ">=":
		return x >= y, true
	case "==":
		return x == y, true
	case "<=>":
		if math.IsNaN(x) || math.IsNaN(y) {
			return nil, true
		}
		return cmpOrdered(x, y), true
	}
	return nil, false
}

func stringBinary(name, x, y string) (Value, bool) {
	switch name {
	case "+":
		return x + y, true
	case "<":
		return x < y, true
	case "<=":
		return x <= y, true
	case ">":
		return x > y, true
	case ">=":
		return x >= y, true
	case "<=>":
		return int64(strings.Compare(x, y)), true
	}
	return nil, false
}

func cmpOrdered[T int64 | float64](x, y T) int64 {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func floorDiv(x, y int64) int64 {
	q := x / y
	if x%y != 0 && (x < 0) != (y < 0) {
		q--
	}
	return q
}

func floorMod(x, y int64) int64 {
	m := x % y
	if m != 0 && (m < 0) != (y < 0) {
		m += y
	}
	return m
}

func intPow(x, y int64) int64 {
	result := int64(1)
	for y > 0 {
		if y&1 == 1 {
			result *= x
		}
		x *= x
		y >>= 1
	}
	return result
}

// ---------------------------------------------------------------------------
// Comparison and conversion helpers
// ---------------------------------------------------------------------------

// compare orders a and b with <=>, raising ArgumentError when they are not
// comparable.
func (i *Interpreter) compare(a, b Value) int64 {
	if v, ok := numericBinary("<=>", a, b); ok {
		if n, ok := v.(int64); ok {
			return n
		}
	} else if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return int64(strings.Compare(x, y))
		}
	} else if n, ok := i.callMethod(a, "<=>", b).(int64); ok {
		return n
	}
	i.raise(i.c.ArgumentError, "comparison of %s with %s failed", i.classOf(a).Name, i.describeOperand(b))
	return 0
}

func (i *Interpreter) describeOperand(v Value) string {
	switch v.(type) {
	case nil, int64, float64, bool:
		return inspect(v)
	}
	return i.classOf(v).Name
}

// arith applies a numeric operator for the Integer and Float builtins.
func (i *Interpreter) arith(name string, a, b Value) Value {
	if v, ok := numericBinary(name, a, b); ok {
		return v
	}
	if _, ok := a.(int64); ok {
		if y, ok := b.(int64); ok && y == 0 {
			i.raise(i.c.ZeroDivisionError, "divided by 0")
		}
	}
	switch name {
	case "<", "<=", ">", ">=":
		i.raise(i.c.ArgumentError, "comparison of %s with %s failed", i.classOf(a).Name, i.describeOperand(b))
	case "<=>":
		return nil
	case "==":
		return valuesEqual(a, b)
	}
	if b == nil {
		i.raise(i.c.TypeError, "nil can't be coerced into %s", i.classOf(a).Name)
	}
	i.raise(i.c.TypeError, "%s can't be coerced into %s", i.classOf(b).Name, i.classOf(a).Name)
	return nil
}

// toInteger is Kernel#Integer.
func (i *Interpreter) toInteger(v Value) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			i.raise(i.c.RangeError, "%s out of range of integer", formatFloat(x))
		}
		return int64(x)
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), "_", "")
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			i.raise(i.c.ArgumentError, "invalid value for Integer(): %s", inspect(x))
		}
		return n
	case nil:
		i.raise(i.c.TypeError, "can't convert nil into Integer")
	}
	if n, ok := i.callMethod(v, "to_i").(int64); ok {
		return n
	}
	i.raise(i.c.TypeError, "can't convert %s into Integer", i.classOf(v).Name)
	return 0
}

// toFloat is Kernel#Float.
func (i *Interpreter) toFloat(v Value) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(x), "_", ""), 64)
		if err != nil {
			i.raise(i.c.ArgumentError, "invalid value for Float(): %s", inspect(x))
		}
		return f
	case nil:
		i.raise(i.c.TypeError, "can't convert nil into Float")
	}
	i.raise(i.c.TypeError, "can't convert %s into Float", i.classOf(v).Name)
	return 0
}

func (i *Interpreter) mustInt(v Value) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	}
	i.raise(i.c.TypeError, "no implicit conversion of %s into Integer", i.describeOperand(v))
	return 0
}

// roundTo rounds x half away from zero to digits decimal places.
func roundTo(x float64, digits int64, fn func(float64) float64) float64 {
	scale := math.Pow(10, float64(digits))
	return fn(x*scale) / scale
}

// ---------------------------------------------------------------------------
// Integer and Float Primitives
// ---------------------------------------------------------------------------

func (i *Interpreter) registerNumericPrimitives() {
	for _, c := range []*Class{i.c.Integer, i.c.Float} {
		for _, op := range []string{"+", "-", "*", "/", "%", "**", "<", "<=", ">", ">=", "<=>", "div", "modulo"} {
			c.AddMethod1(op, func(i *Interpreter, self Value, arg Value) Value {
				return i.arith(op, self, arg)
			})
		}
		c.AddMethod1("==", func(_ *Interpreter, self Value, arg Value) Value {
			return valuesEqual(self, arg)
		})
		c.Methods["==="] = c.Methods["=="]
		c.AddMethod1("eql?", func(_ *Interpreter, self Value, arg Value) Value {
			return sameKind(self, arg) && valuesEqual(self, arg)
		})
		c.AddMethod1("fdiv", func(i *Interpreter, self Value, arg Value) Value {
			return i.toFloat(self) / i.toFloat(arg)
		})
		c.AddMethod1("divmod", func(i *Interpreter, self Value, arg Value) Value {
			q := i.arith("div", self, arg)
			return NewArray(q, i.arith("%", self, arg))
		})
		c.AddMethod0("-@", func(_ *Interpreter, self Value) Value {
			if n, ok := self.(int64); ok {
				return -n
			}
			return -self.(float64)
		})
		c.AddMethod0("+@", func(_ *Interpreter, self Value) Value { return self })
		c.AddMethod0("abs", func(_ *Interpreter, self Value) Value {
			if n, ok := self.(int64); ok {
				if n < 0 {
					return -n
				}
				return n
			}
			return math.Abs(self.(float64))
		})
		c.Methods["magnitude"] = c.Methods["abs"]
		sign := func(name string, test func(float64) bool) {
			c.AddMethod0(name, func(i *Interpreter, self Value) Value {
				return test(i.toFloat(self))
			})
		}
		sign("zero?", func(f float64) bool { return f == 0 })
		sign("positive?", func(f float64) bool { return f > 0 })
		sign("negative?", func(f float64) bool { return f < 0 })
		c.AddMethod0("to_f", func(i *Interpreter, self Value) Value { return i.toFloat(self) })
		c.AddMethod0("to_s", func(_ *Interpreter, self Value) Value { return toS(self) })
		c.Methods["inspect"] = c.Methods["to_s"]
		c.AddMethod0("integer?", func(_ *Interpreter, self Value) Value {
			_, ok := self.(int64)
			return ok
		})
		c.AddMethod1("coerce", func(i *Interpreter, self Value, arg Value) Value {
			if _, ok := self.(int64); ok {
				if _, ok := arg.(int64); ok {
					return NewArray(arg, self)
				}
			}
			return NewArray(i.toFloat(arg), i.toFloat(self))
		})
	}

	i.registerIntegerPrimitives()
	i.registerFloatPrimitives()
}

func (i *Interpreter) registerIntegerPrimitives() {
	c := i.c.Integer

	for _, op := range []string{"&", "|", "^", "<<", ">>"} {
		c.AddMethod1(op, func(i *Interpreter, self Value, arg Value) Value {
			if v, ok := intBinary(op, self.(int64), i.mustInt(arg)); ok {
				return v
			}
			return nil
		})
	}

	c.AddMethod0("to_i", func(_ *Interpreter, self Value) Value { return self })
	c.Methods["to_int"] = c.Methods["to_i"]
	c.AddMethod("to_s", 0, 1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		base := int64(10)
		if len(args) > 0 {
			base = i.mustInt(args[0])
		}
		if base < 2 || base > 36 {
			i.raise(i.c.ArgumentError, "invalid radix %d", base)
		}
		return strconv.FormatInt(self.(int64), int(base))
	})
	c.AddMethod0("succ", func(_ *Interpreter, self Value) Value { return self.(int64) + 1 })
	c.Methods["next"] = c.Methods["succ"]
	c.AddMethod0("pred", func(_ *Interpreter, self Value) Value { return self.(int64) - 1 })
	c.AddMethod0("even?", func(_ *Interpreter, self Value) Value { return self.(int64)%2 == 0 })
	c.AddMethod0("odd?", func(_ *Interpreter, self Value) Value { return self.(int64)%2 != 0 })
	c.AddMethod0("chr", func(_ *Interpreter, self Value) Value { return string(rune(self.(int64))) })
	c.AddMethod0("ord", func(_ *Interpreter, self Value) Value { return self })
	c.AddMethod0("digits", func(_ *Interpreter, self Value) Value {
		n := self.(int64)
		if n < 0 {
			n = -n
		}
		var out []Value
		for {
			out = append(out, n%10)
			n /= 10
			if n == 0 {
				return NewArray(out...)
			}
		}
	})
	c.AddMethod1("gcd", func(i *Interpreter, self Value, arg Value) Value {
		return gcd(self.(int64), i.mustInt(arg))
	})
	c.AddMethod1("lcm", func(i *Interpreter, self Value, arg Value) Value {
		a, b := self.(int64), i.mustInt(arg)
		if a == 0 || b == 0 {
			return int64(0)
		}
		l := a / gcd(a, b) * b
		if l < 0 {
			l = -l
		}
		return l
	})
	c.AddMethod1("pow", func(i *Interpreter, self Value, arg Value) Value {
		return i.arith("**", self, arg)
	})

	rounding := func(name string, fn func(float64) float64) {
		c.AddMethod(name, 0, 1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
			n := self.(int64)
			if len(args) == 0 || i.mustInt(args[0]) >= 0 {
				return n
			}
			return int64(roundTo(float64(n), i.mustInt(args[0]), fn))
		})
	}
	rounding("floor", math.Floor)
	rounding("ceil", math.Ceil)
	rounding("round", math.Round)
	rounding("truncate", math.Trunc)

	// Iteration
	c.AddMethod("times", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		n := self.(int64)
		if blk == nil {
			return intSeq(0, n-1, 1)
		}
		for j := int64(0); j < n; j++ {
			i.yield(blk, j)
		}
		return n
	})
	c.AddMethod("upto", 1, 1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		from, to := self.(int64), i.mustInt(args[0])
		if blk == nil {
			return intSeq(from, to, 1)
		}
		for j := from; j <= to; j++ {
			i.yield(blk, j)
		}
		return self
	})
	c.AddMethod("downto", 1, 1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		from, to := self.(int64), i.mustInt(args[0])
		if blk == nil {
			return intSeq(from, to, -1)
		}
		for j := from; j >= to; j-- {
			i.yield(blk, j)
		}
		return self
	})
	c.AddMethod("step", 1, 2, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		from, to := self.(int64), i.mustInt(args[0])
		by := int64(1)
		if len(args) > 1 {
			by = i.mustInt(args[1])
		}
		if by == 0 {
			i.raise(i.c.ArgumentError, "step can't be 0")
		}
		seq := intSeq(from, to, by)
		if blk == nil {
			return seq
		}
		for _, v := range seq.Elems {
			i.yield(blk, v)
		}
		return self
	})
}

func (i *Interpreter) registerFloatPrimitives() {
	c := i.c.Float

	c.AddMethod0("to_i", func(i *Interpreter, self Value) Value { return i.toInteger(self) })
	c.Methods["to_int"] = c.Methods["to_i"]
	c.AddMethod0("nan?", func(_ *Interpreter, self Value) Value { return math.IsNaN(self.(float64)) })
	c.AddMethod0("finite?", func(_ *Interpreter, self Value) Value {
		f := self.(float64)
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	c.AddMethod0("infinite?", func(_ *Interpreter, self Value) Value {
		f := self.(float64)
		switch {
		case math.IsInf(f, 1):
			return int64(1)
		case math.IsInf(f, -1):
			return int64(-1)
		}
		return nil
	})

	rounding := func(name string, fn func(float64) float64) {
		c.AddMethod(name, 0, 1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
			f := self.(float64)
			if len(args) > 0 {
				if digits := i.mustInt(args[0]); digits > 0 {
					return roundTo(f, digits, fn)
				}
			}
			return i.toInteger(fn(f))
		})
	}
	rounding("floor", math.Floor)
	rounding("ceil", math.Ceil)
	rounding("round", math.Round)
	rounding("truncate", math.Trunc)

	i.c.Float.Consts["INFINITY"] = math.Inf(1)
	i.c.Float.Consts["NAN"] = math.NaN()
	i.c.Float.Consts["EPSILON"] = 2.220446049250313e-16
	i.c.Integer.Consts["MAX"] = int64(math.MaxInt64)
}

func gcd(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// intSeq lists from, from+by, ... up to and including to.
func intSeq(from, to, by int64) *Array {
	var out []Value
	for j := from; (by > 0 && j <= to) || (by < 0 && j >= to); j += by {
		out = append(out, j)
	}
	return NewArray(out...)
}
