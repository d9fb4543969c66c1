package vm

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Kernel Primitives
// ---------------------------------------------------------------------------

func (i *Interpreter) registerKernelPrimitives() {
	k := i.c.Kernel

	// Output
	k.AddMethod("puts", 0, -1, func(i *Interpreter, _ Value, args []Value, _ *Proc) Value {
		var b strings.Builder
		if len(args) == 0 {
			b.WriteByte('\n')
		}
		for _, a := range args {
			if arr, ok := a.(*Array); ok && arr.Len() == 0 {
				b.WriteByte('\n')
				continue
			}
			i.putsValue(&b, a)
		}
		i.write(b.String())
		return nil
	})

	k.AddMethod("print", 0, -1, func(i *Interpreter, _ Value, args []Value, _ *Proc) Value {
		var b strings.Builder
		for _, a := range args {
			b.WriteString(i.stringify(a))
		}
		i.write(b.String())
		return nil
	})

	k.AddMethod("p", 0, -1, func(i *Interpreter, _ Value, args []Value, _ *Proc) Value {
		var b strings.Builder
		for _, a := range args {
			b.WriteString(i.inspectValue(a))
			b.WriteByte('\n')
		}
		i.write(b.String())
		switch len(args) {
		case 0:
			return nil
		case 1:
			return args[0]
		}
		return NewArray(args...)
	})

	k.AddMethod("format", 1, -1, func(i *Interpreter, _ Value, args []Value, _ *Proc) Value {
		return i.sprintf(i.mustString(args[0]), args[1:])
	})
	k.Methods["sprintf"] = k.Methods["format"]

	// Exceptions and control
	k.AddMethod("raise", 0, 2, func(i *Interpreter, _ Value, args []Value, _ *Proc) Value {
		i.raiseObject(i.makeException(args))
		return nil
	})
	k.Methods["fail"] = k.Methods["raise"]

	k.AddMethod("loop", 0, 0, func(i *Interpreter, _ Value, _ []Value, blk *Proc) Value {
		for {
			i.yield(blk)
		}
	})

	k.AddMethod("lambda", 0, 0, func(i *Interpreter, _ Value, _ []Value, blk *Proc) Value {
		if blk == nil {
			i.raise(i.c.ArgumentError, "tried to create Proc object without a block")
		}
		blk.Lambda = true
		return blk
	})

	k.AddMethod("proc", 0, 0, func(i *Interpreter, _ Value, _ []Value, blk *Proc) Value {
		if blk == nil {
			i.raise(i.c.ArgumentError, "tried to create Proc object without a block")
		}
		return blk
	})

	k.AddMethod0("block_given?", func(i *Interpreter, _ Value) Value {
		f := i.current()
		return f != nil && f.methodFrame().block != nil
	})

	k.AddMethod0("__method__", func(i *Interpreter, _ Value) Value {
		f := i.current()
		if f == nil || f.methodFrame().method == nil {
			return nil
		}
		return Symbol(f.methodFrame().method.Name)
	})

	// Conversions
	k.AddMethod1("Integer", func(i *Interpreter, _ Value, v Value) Value {
		return i.toInteger(v)
	})
	k.AddMethod1("Float", func(i *Interpreter, _ Value, v Value) Value {
		return i.toFloat(v)
	})
	k.AddMethod1("String", func(i *Interpreter, _ Value, v Value) Value {
		return i.stringify(v)
	})
	k.AddMethod1("Array", func(_ *Interpreter, _ Value, v Value) Value {
		return toArray(v)
	})

	for _, name := range []string{"puts", "print", "p", "format", "sprintf", "raise", "fail", "loop",
		"lambda", "proc", "block_given?", "__method__", "Integer", "Float", "String", "Array"} {
		k.Methods[name].Private = true
	}

	// Identity and equality
	k.AddMethod1("==", func(_ *Interpreter, self Value, arg Value) Value {
		return valuesEqual(self, arg)
	})
	k.AddMethod1("!=", func(i *Interpreter, self Value, arg Value) Value {
		return !Truthy(i.callMethod(self, "==", arg))
	})
	k.AddMethod0("!", func(_ *Interpreter, self Value) Value {
		return !Truthy(self)
	})
	k.AddMethod1("equal?", func(_ *Interpreter, self Value, arg Value) Value {
		return identical(self, arg)
	})
	k.AddMethod1("eql?", func(_ *Interpreter, self Value, arg Value) Value {
		return identical(self, arg) || valuesEqual(self, arg) && sameKind(self, arg)
	})
	k.AddMethod1("===", func(i *Interpreter, self Value, arg Value) Value {
		return identical(self, arg) || Truthy(i.callMethod(self, "==", arg))
	})
	k.AddMethod1("=~", func(_ *Interpreter, _ Value, _ Value) Value {
		return nil
	})
	k.AddMethod0("nil?", func(_ *Interpreter, self Value) Value {
		return self == nil
	})

	// Reflection
	k.AddMethod0("class", func(i *Interpreter, self Value) Value {
		return i.realClass(self)
	})
	k.AddMethod0("singleton_class", func(i *Interpreter, self Value) Value {
		return i.singletonOf(self)
	})
	isA := func(i *Interpreter, self Value, arg Value) Value {
		c, ok := arg.(*Class)
		if !ok {
			i.raise(i.c.TypeError, "class or module required")
		}
		return i.classOf(self).IsSubclassOf(c)
	}
	k.AddMethod1("is_a?", isA)
	k.AddMethod1("kind_of?", isA)
	k.AddMethod1("instance_of?", func(i *Interpreter, self Value, arg Value) Value {
		return i.realClass(self) == arg
	})
	k.AddMethod("respond_to?", 1, 2, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		m := i.classOf(self).Lookup(symbolName(args[0]))
		if m == nil {
			return false
		}
		return !m.Private || len(args) > 1 && Truthy(args[1])
	})
	k.AddMethod1("extend", func(i *Interpreter, self Value, arg Value) Value {
		mod, ok := arg.(*Class)
		if !ok || !mod.IsModule {
			i.raise(i.c.TypeError, "wrong argument type %s (expected Module)", i.classOf(arg).Name)
		}
		i.singletonOf(self).Include(mod)
		return self
	})

	k.AddMethod("send", 1, -1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		return i.dispatch(self, symbolName(args[0]), args[1:], nil, blk, true, false)
	})
	k.Methods["__send__"] = k.Methods["send"]
	k.AddMethod("public_send", 1, -1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		return i.dispatch(self, symbolName(args[0]), args[1:], nil, blk, false, false)
	})

	k.AddMethod1("instance_variable_get", func(_ *Interpreter, self Value, name Value) Value {
		return ivarsOf(self)[symbolName(name)]
	})
	k.AddMethod2("instance_variable_set", func(i *Interpreter, self Value, name, v Value) Value {
		ivars := ivarsOf(self)
		if ivars == nil {
			i.raise(i.c.FrozenError, "can't modify frozen %s", i.classOf(self).Name)
		}
		ivars[symbolName(name)] = v
		return v
	})
	k.AddMethod1("instance_variable_defined?", func(_ *Interpreter, self Value, name Value) Value {
		_, ok := ivarsOf(self)[symbolName(name)]
		return ok
	})
	k.AddMethod0("instance_variables", func(_ *Interpreter, self Value) Value {
		names := sortedKeys(ivarsOf(self))
		out := make([]Value, len(names))
		for j, n := range names {
			out[j] = Symbol(n)
		}
		return NewArray(out...)
	})

	// Rendering
	k.AddMethod0("to_s", func(_ *Interpreter, self Value) Value {
		return toS(self)
	})
	k.AddMethod0("inspect", func(i *Interpreter, self Value) Value {
		if obj, ok := self.(*Object); ok {
			return i.inspectObject(obj)
		}
		return i.inspectValue(self)
	})

	// Copying
	k.AddMethod0("freeze", func(_ *Interpreter, self Value) Value { return self })
	k.AddMethod0("frozen?", func(_ *Interpreter, self Value) Value {
		return ivarsOf(self) == nil && !isCollection(self)
	})
	k.AddMethod0("dup", func(_ *Interpreter, self Value) Value {
		switch x := self.(type) {
		case *Array:
			return NewArray(append([]Value(nil), x.Elems...)...)
		case *Hash:
			return x.Copy()
		case *Object:
			c := NewObject(x.Class)
			for name, v := range x.Ivars {
				c.Ivars[name] = v
			}
			return c
		}
		return self
	})
	k.Methods["clone"] = k.Methods["dup"]

	k.AddMethod("tap", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		i.yield(blk, self)
		return self
	})
	k.AddMethod("then", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		return i.yield(blk, self)
	})

	// Object#initialize accepts no arguments.
	i.c.Object.AddMethod0("initialize", func(_ *Interpreter, _ Value) Value { return nil })
	i.c.Object.Methods["initialize"].Private = true

	i.registerComparablePrimitives()
	i.registerLiteralPrimitives()
}

// ---------------------------------------------------------------------------
// Comparable and the nil/true/false classes
// ---------------------------------------------------------------------------

func (i *Interpreter) registerComparablePrimitives() {
	c := i.c.Comparable

	cmp := func(name string, test func(int64) bool) {
		c.AddMethod1(name, func(i *Interpreter, self Value, arg Value) Value {
			return test(i.compare(self, arg))
		})
	}
	cmp("<", func(n int64) bool { return n < 0 })
	cmp("<=", func(n int64) bool { return n <= 0 })
	cmp(">", func(n int64) bool { return n > 0 })
	cmp(">=", func(n int64) bool { return n >= 0 })

	c.AddMethod1("==", func(i *Interpreter, self Value, arg Value) Value {
		if identical(self, arg) {
			return true
		}
		n, ok := i.callMethod(self, "<=>", arg).(int64)
		return ok && n == 0
	})
	c.AddMethod2("between?", func(i *Interpreter, self Value, lo, hi Value) Value {
		return i.compare(self, lo) >= 0 && i.compare(self, hi) <= 0
	})
	c.AddMethod2("clamp", func(i *Interpreter, self Value, lo, hi Value) Value {
		if i.compare(self, lo) < 0 {
			return lo
		}
		if i.compare(self, hi) > 0 {
			return hi
		}
		return self
	})
}

func (i *Interpreter) registerLiteralPrimitives() {
	n := i.c.NilClass
	n.AddMethod0("to_s", func(_ *Interpreter, _ Value) Value { return "" })
	n.AddMethod0("to_a", func(_ *Interpreter, _ Value) Value { return NewArray() })
	n.AddMethod0("to_h", func(_ *Interpreter, _ Value) Value { return NewHash() })
	n.AddMethod0("to_i", func(_ *Interpreter, _ Value) Value { return int64(0) })
	n.AddMethod0("to_f", func(_ *Interpreter, _ Value) Value { return 0.0 })
	n.AddMethod0("inspect", func(_ *Interpreter, _ Value) Value { return "nil" })
	n.AddMethod1("&", func(_ *Interpreter, _ Value, _ Value) Value { return false })
	n.AddMethod1("|", func(_ *Interpreter, _ Value, arg Value) Value { return Truthy(arg) })

	t := i.c.TrueClass
	t.AddMethod1("&", func(_ *Interpreter, _ Value, arg Value) Value { return Truthy(arg) })
	t.AddMethod1("|", func(_ *Interpreter, _ Value, _ Value) Value { return true })
	t.AddMethod1("^", func(_ *Interpreter, _ Value, arg Value) Value { return !Truthy(arg) })

	f := i.c.FalseClass
	f.AddMethod1("&", func(_ *Interpreter, _ Value, _ Value) Value { return false })
	f.AddMethod1("|", func(_ *Interpreter, _ Value, arg Value) Value { return Truthy(arg) })
	f.AddMethod1("^", func(_ *Interpreter, _ Value, arg Value) Value { return Truthy(arg) })
}

// ---------------------------------------------------------------------------
// Module and Class Primitives
// ---------------------------------------------------------------------------

func (i *Interpreter) registerModulePrimitives() {
	m := i.c.Module

	name := func(_ *Interpreter, self Value) Value {
		c := self.(*Class)
		if c.Name == "" {
			return nil
		}
		return c.Name
	}
	m.AddMethod0("name", name)
	m.AddMethod0("to_s", func(_ *Interpreter, self Value) Value {
		c := self.(*Class)
		if c.Name == "" {
			if c.IsModule {
				return "#<Module>"
			}
			return "#<Class>"
		}
		return c.Name
	})
	m.Methods["inspect"] = m.Methods["to_s"]

	m.AddMethod1("===", func(i *Interpreter, self Value, arg Value) Value {
		return i.classOf(arg).IsSubclassOf(self.(*Class))
	})
	m.AddMethod1("<", func(i *Interpreter, self Value, arg Value) Value {
		other := i.mustClass(arg)
		c := self.(*Class)
		if c == other {
			return false
		}
		if c.IsSubclassOf(other) {
			return true
		}
		if other.IsSubclassOf(c) {
			return false
		}
		return nil
	})
	m.AddMethod1("<=", func(i *Interpreter, self Value, arg Value) Value {
		other := i.mustClass(arg)
		c := self.(*Class)
		if c.IsSubclassOf(other) {
			return true
		}
		if other.IsSubclassOf(c) {
			return false
		}
		return nil
	})

	m.AddMethod0("ancestors", func(_ *Interpreter, self Value) Value {
		anc := self.(*Class).Ancestors()
		out := make([]Value, len(anc))
		for j, a := range anc {
			out[j] = a
		}
		return NewArray(out...)
	})
	m.AddMethod0("superclass", func(_ *Interpreter, self Value) Value {
		c := self.(*Class)
		if c.IsModule || c.Super == nil {
			return nil
		}
		return c.Super
	})
	m.AddMethod("include", 1, -1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		c := self.(*Class)
		for _, a := range args {
			mod, ok := a.(*Class)
			if !ok || !mod.IsModule {
				i.raise(i.c.TypeError, "wrong argument type %s (expected Module)", i.classOf(a).Name)
			}
			c.Include(mod)
		}
		return c
	})
	m.AddMethod1("include?", func(_ *Interpreter, self Value, arg Value) Value {
		mod, ok := arg.(*Class)
		return ok && mod.IsModule && self.(*Class).IsSubclassOf(mod)
	})

	m.AddMethod("instance_methods", 0, 1, func(_ *Interpreter, self Value, _ []Value, _ *Proc) Value {
		c := self.(*Class)
		var names []string
		for n, meth := range c.Methods {
			if !meth.Private {
				names = append(names, n)
			}
		}
		sort.Strings(names)
		out := make([]Value, len(names))
		for j, n := range names {
			out[j] = Symbol(n)
		}
		return NewArray(out...)
	})
	m.AddMethod1("method_defined?", func(_ *Interpreter, self Value, arg Value) Value {
		meth := self.(*Class).Lookup(symbolName(arg))
		return meth != nil && !meth.Private
	})

	// Attributes
	attr := func(read, write bool) Builtin {
		return func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
			c := self.(*Class)
			out := make([]Value, 0, len(args))
			for _, a := range args {
				n := symbolName(a)
				i.defineAttr(c, n, read, write)
				out = append(out, Symbol(n))
			}
			return NewArray(out...)
		}
	}
	m.AddMethod("attr_reader", 0, -1, attr(true, false))
	m.AddMethod("attr_writer", 0, -1, attr(false, true))
	m.AddMethod("attr_accessor", 0, -1, attr(true, true))

	m.AddMethod("define_method", 1, 2, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		c := self.(*Class)
		n := symbolName(args[0])
		body := blk
		if len(args) == 2 {
			body = i.toProc(args[1])
		}
		if body == nil {
			i.raise(i.c.ArgumentError, "tried to create Proc object without a block")
		}
		c.Define(n, &Method{Min: 0, Max: -1, Builtin: func(i *Interpreter, recv Value, args []Value, blk *Proc) Value {
			bound := *body
			bound.Self = recv
			bound.Lambda = true
			bound.active = false
			return i.callProc(&bound, args, nil, blk)
		}})
		return Symbol(n)
	})
	m.AddMethod2("alias_method", func(i *Interpreter, self Value, newName, oldName Value) Value {
		c := self.(*Class)
		meth := c.Lookup(symbolName(oldName))
		if meth == nil {
			i.raise(i.c.NameError, "undefined method '%s' for class '%s'", symbolName(oldName), c.Name)
		}
		alias := *meth
		c.Methods[symbolName(newName)] = &alias
		return Symbol(symbolName(newName))
	})

	visibility := func(private bool) Builtin {
		return func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
			c := self.(*Class)
			for _, a := range flattenNames(args) {
				i.setVisibility(c, a, private)
			}
			if len(args) == 1 {
				return args[0]
			}
			return nil
		}
	}
	m.AddMethod("private", 0, -1, visibility(true))
	m.AddMethod("public", 0, -1, visibility(false))
	m.AddMethod("module_function", 0, -1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		c := self.(*Class)
		meta := i.metaOf(c)
		for _, n := range flattenNames(args) {
			meth := c.Lookup(n)
			if meth == nil {
				i.raise(i.c.NameError, "undefined method '%s' for module '%s'", n, c.Name)
			}
			cp := *meth
			cp.Private = false
			meta.Methods[n] = &cp
		}
		return nil
	})

	// Constants
	m.AddMethod1("const_get", func(i *Interpreter, self Value, arg Value) Value {
		c := self.(*Class)
		n := symbolName(arg)
		v, ok := c.lookupConst(n)
		if !ok {
			i.raise(i.c.NameError, "uninitialized constant %s", i.constPath(c, n))
		}
		return v
	})
	m.AddMethod2("const_set", func(_ *Interpreter, self Value, arg, v Value) Value {
		self.(*Class).Consts[symbolName(arg)] = v
		return v
	})
	m.AddMethod1("const_defined?", func(_ *Interpreter, self Value, arg Value) Value {
		_, ok := self.(*Class).lookupConst(symbolName(arg))
		return ok
	})
	m.AddMethod0("constants", func(_ *Interpreter, self Value) Value {
		names := sortedKeys(self.(*Class).Consts)
		out := make([]Value, len(names))
		for j, n := range names {
			out[j] = Symbol(n)
		}
		return NewArray(out...)
	})
	m.AddMethod1("class_variable_get", func(i *Interpreter, self Value, arg Value) Value {
		c := self.(*Class)
		owner, ok := c.lookupCVar(symbolName(arg))
		if !ok {
			i.raise(i.c.NameError, "uninitialized class variable %s in %s", symbolName(arg), c.Name)
		}
		return owner.CVars[symbolName(arg)]
	})

	evalBody := func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		return i.classEval(self.(*Class), blk)
	}
	m.AddMethod("class_eval", 0, 0, evalBody)
	m.AddMethod("module_eval", 0, 0, evalBody)
	m.AddMethod("class_exec", 0, 0, evalBody)

	// Instantiation
	cl := i.c.Class
	cl.AddMethod("new", 0, -1, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		return i.instantiate(self.(*Class), args, blk)
	})
	cl.AddMethod0("allocate", func(i *Interpreter, self Value) Value {
		c := self.(*Class)
		if i.builtinBase(c) != nil {
			i.raise(i.c.TypeError, "allocator undefined for %s", c.Name)
		}
		return NewObject(c)
	})
}

// instantiate implements Class#new.
func (i *Interpreter) instantiate(cls *Class, args []Value, blk *Proc) Value {
	switch {
	case cls == i.c.Class:
		super := i.c.Object
		if len(args) > 0 {
			super = i.mustClass(args[0])
			if super.IsModule {
				i.raise(i.c.TypeError, "superclass must be a Class")
			}
		}
		k := newClass("", super, false)
		i.classEval(k, blk)
		return k
	case cls == i.c.Module:
		k := newClass("", nil, true)
		i.classEval(k, blk)
		return k
	case cls.singleton:
		i.raise(i.c.TypeError, "can't create instance of singleton class")
	}

	switch i.builtinBase(cls) {
	case nil:
	case i.c.Array:
		return i.newArray(args, blk)
	case i.c.Hash:
		h := NewHash()
		if len(args) > 0 {
			h.Default = args[0]
		}
		h.DefaultProc = blk
		return h
	case i.c.String:
		if len(args) == 0 {
			return ""
		}
		return i.mustString(args[0])
	case i.c.Range:
		if len(args) < 2 {
			i.raise(i.c.ArgumentError, "wrong number of arguments (given %d, expected 2..3)", len(args))
		}
		return &Range{Low: args[0], High: args[1], Exclusive: len(args) > 2 && Truthy(args[2])}
	case i.c.Regexp:
		if len(args) == 0 {
			i.raise(i.c.ArgumentError, "wrong number of arguments (given 0, expected 1..2)")
		}
		if re, ok := args[0].(*Regexp); ok {
			return re
		}
		flags := ""
		if len(args) > 1 && Truthy(args[1]) {
			flags = "i"
		}
		re, err := compileRegexp(i.mustString(args[0]), flags)
		if err != nil {
			i.raise(i.c.RegexpError, "%s", err)
		}
		return re
	case i.c.Proc:
		if blk == nil {
			i.raise(i.c.ArgumentError, "tried to create Proc object without a block")
		}
		return blk
	default:
		i.raise(i.c.NoMethodError, "undefined method 'new' for class %s", cls.Name)
	}

	obj := NewObject(cls)
	i.callWithBlock(obj, "initialize", blk, args...)
	return obj
}

// builtinBase returns the core class whose values are not *Object, if cls
// descends from one.
func (i *Interpreter) builtinBase(cls *Class) *Class {
	for k := cls; k != nil; k = k.Super {
		switch k {
		case i.c.Object, i.c.Exception:
			return nil
		case i.c.Array, i.c.Hash, i.c.String, i.c.Range, i.c.Regexp, i.c.Proc,
			i.c.Integer, i.c.Float, i.c.Numeric, i.c.Symbol,
			i.c.NilClass, i.c.TrueClass, i.c.FalseClass:
			return k
		}
	}
	return nil
}

// classEval runs blk with self and the definition target set to cls.
func (i *Interpreter) classEval(cls *Class, blk *Proc) Value {
	if blk == nil {
		return cls
	}
	bound := *blk
	bound.Self = cls
	bound.cref = &cref{class: cls, next: blk.cref}
	return i.callProc(&bound, []Value{cls}, nil, nil)
}

func (i *Interpreter) defineAttr(c *Class, name string, read, write bool) {
	ivar := "@" + name
	if read {
		c.AddMethod0(name, func(_ *Interpreter, self Value) Value {
			return ivarsOf(self)[ivar]
		})
	}
	if write {
		c.AddMethod1(name+"=", func(i *Interpreter, self Value, v Value) Value {
			ivars := ivarsOf(self)
			if ivars == nil {
				i.raise(i.c.FrozenError, "can't modify frozen %s", i.classOf(self).Name)
			}
			ivars[ivar] = v
			return v
		})
	}
}

// setVisibility marks name private or public in c, copying an inherited
// definition down first.
func (i *Interpreter) setVisibility(c *Class, name string, private bool) {
	meth, ok := c.Methods[name]
	if !ok {
		inherited := c.Lookup(name)
		if inherited == nil {
			i.raise(i.c.NameError, "undefined method '%s' for class '%s'", name, c.Name)
		}
		cp := *inherited
		meth = &cp
		c.Methods[name] = meth
	}
	meth.Private = private
}

func flattenNames(args []Value) []string {
	var out []string
	for _, a := range args {
		if arr, ok := a.(*Array); ok {
			out = append(out, flattenNames(arr.Elems)...)
			continue
		}
		out = append(out, symbolName(a))
	}
	return out
}

func (i *Interpreter) mustClass(v Value) *Class {
	c, ok := v.(*Class)
	if !ok {
		i.raise(i.c.TypeError, "compared with non class/module")
	}
	return c
}

// ---------------------------------------------------------------------------
// Exception Primitives
// ---------------------------------------------------------------------------

func (i *Interpreter) registerExceptionPrimitives() {
	e := i.c.Exception

	e.AddMethod("initialize", 0, 1, func(_ *Interpreter, self Value, args []Value, _ *Proc) Value {
		obj := self.(*Object)
		obj.Ivars["@message"] = nil
		if len(args) > 0 {
			obj.Ivars["@message"] = args[0]
		}
		return nil
	})
	e.Methods["initialize"].Private = true

	e.AddMethod0("to_s", func(_ *Interpreter, self Value) Value {
		return exceptionMessage(self.(*Object))
	})
	e.AddMethod0("message", func(i *Interpreter, self Value) Value {
		return i.stringify(i.callMethod(self, "to_s"))
	})
	e.AddMethod0("inspect", func(i *Interpreter, self Value) Value {
		obj := self.(*Object)
		msg := i.stringify(i.callMethod(self, "to_s"))
		if msg == "" || msg == obj.Class.Name {
			return obj.Class.Name
		}
		return fmt.Sprintf("#<%s: %s>", obj.Class.Name, msg)
	})
	e.AddMethod0("full_message", func(i *Interpreter, self Value) Value {
		obj := self.(*Object)
		msg := i.stringify(i.callMethod(self, "message"))
		if len(obj.backtrace) == 0 {
			return fmt.Sprintf("%s (%s)", msg, obj.Class.Name)
		}
		return fmt.Sprintf("%s: %s (%s)", obj.backtrace[0], msg, obj.Class.Name)
	})
	e.AddMethod0("backtrace", func(_ *Interpreter, self Value) Value {
		obj := self.(*Object)
		if obj.backtrace == nil {
			return nil
		}
		out := make([]Value, len(obj.backtrace))
		for j, line := range obj.backtrace {
			out[j] = line
		}
		return NewArray(out...)
	})
	e.AddMethod1("==", func(i *Interpreter, self Value, arg Value) Value {
		other, ok := arg.(*Object)
		if !ok {
			return false
		}
		obj := self.(*Object)
		return obj == other || obj.Class == other.Class && exceptionMessage(obj) == exceptionMessage(other)
	})

	i.metaOf(e).AddMethod("exception", 0, 1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		return i.instantiate(self.(*Class), args, nil)
	})
}

// makeException builds the exception raised by Kernel#raise.
func (i *Interpreter) makeException(args []Value) *Object {
	if len(args) == 0 {
		if cur, ok := i.globals["$!"].(*Object); ok {
			return cur
		}
		return i.newException(i.c.RuntimeError, "unhandled exception")
	}
	switch x := args[0].(type) {
	case string:
		if len(args) > 1 {
			i.raise(i.c.TypeError, "exception class/object expected")
		}
		return i.newException(i.c.RuntimeError, x)
	case *Class:
		if !x.isException() {
			break
		}
		obj, ok := i.instantiate(x, args[1:], nil).(*Object)
		if !ok {
			break
		}
		return obj
	case *Object:
		if !x.Class.isException() {
			break
		}
		if len(args) > 1 {
			x.Ivars["@message"] = args[1]
		}
		return x
	}
	i.raise(i.c.TypeError, "exception class/object expected")
	return nil
}

// ---------------------------------------------------------------------------
// Proc Primitives
// ---------------------------------------------------------------------------

func (i *Interpreter) registerProcPrimitives() {
	c := i.c.Proc

	call := func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		return i.callProc(self.(*Proc), args, nil, blk)
	}
	for _, name := range []string{"call", "yield", "[]", "==="} {
		c.AddMethod(name, 0, -1, call)
	}

	c.AddMethod0("to_proc", func(_ *Interpreter, self Value) Value { return self })
	c.AddMethod0("lambda?", func(_ *Interpreter, self Value) Value { return self.(*Proc).Lambda })
	c.AddMethod0("arity", func(_ *Interpreter, self Value) Value {
		p := self.(*Proc)
		if p.Seq == nil {
			return int64(-1)
		}
		shape := &p.Seq.Args
		req := int64(shape.Required())
		if shape.HasRest() || (p.Lambda && shape.Opt > 0) {
			return -req - 1
		}
		return req
	})
	c.AddMethod1(">>", func(i *Interpreter, self Value, arg Value) Value {
		first := self.(*Proc)
		second := i.toProc(arg)
		return &Proc{Lambda: true, fn: func(i *Interpreter, args []Value, blk *Proc) Value {
			return i.callProc(second, []Value{i.callProc(first, args, nil, blk)}, nil, nil)
		}}
	})
	c.AddMethod1("<<", func(i *Interpreter, self Value, arg Value) Value {
		second := self.(*Proc)
		first := i.toProc(arg)
		return &Proc{Lambda: true, fn: func(i *Interpreter, args []Value, blk *Proc) Value {
			return i.callProc(second, []Value{i.callProc(first, args, nil, blk)}, nil, nil)
		}}
	})
}

// ---------------------------------------------------------------------------
// Rendering helpers
// ---------------------------------------------------------------------------

func (i *Interpreter) write(s string) {
	if _, err := io.WriteString(i.opts.Stdout, s); err != nil {
		i.log.Errorf("write failed: %s", err)
	}
}

// putsValue appends v's puts rendering: array elements one per line, a
// trailing newline unless the text already ends in one.
func (i *Interpreter) putsValue(b *strings.Builder, v Value) {
	if arr, ok := v.(*Array); ok {
		for _, e := range arr.Elems {
			i.putsValue(b, e)
		}
		return
	}
	s := i.stringify(v)
	b.WriteString(s)
	if !strings.HasSuffix(s, "\n") {
		b.WriteByte('\n')
	}
}

// stringify converts v with its to_s method.
func (i *Interpreter) stringify(v Value) string {
	switch x := v.(type) {
	case string:
		return x
	case *Object:
		if m := i.classOf(x).Lookup("to_s"); m != nil && m.Builtin == nil {
			return toS(i.callMethod(v, "to_s"))
		}
	}
	return toS(v)
}

// inspectValue renders v as p prints it, calling inspect on objects.
func (i *Interpreter) inspectValue(v Value) string {
	switch x := v.(type) {
	case *Array:
		parts := make([]string, len(x.Elems))
		for j, e := range x.Elems {
			parts[j] = i.inspectValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Hash:
		parts := make([]string, 0, x.Len())
		x.Each(func(k, v Value) {
			parts = append(parts, i.inspectValue(k)+"=>"+i.inspectValue(v))
		})
		return "{" + strings.Join(parts, ", ") + "}"
	case *Object:
		return toS(i.callMethod(v, "inspect"))
	}
	return inspect(v)
}

func (i *Interpreter) inspectObject(obj *Object) string {
	if obj == i.main {
		return "main"
	}
	names := sortedKeys(obj.Ivars)
	if len(names) == 0 {
		return "#<" + obj.Class.Name + ">"
	}
	parts := make([]string, len(names))
	for j, n := range names {
		parts[j] = n + "=" + i.inspectValue(obj.Ivars[n])
	}
	return "#<" + obj.Class.Name + " " + strings.Join(parts, ", ") + ">"
}

func sortedKeys(m map[string]Value) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// identical is equal? for values: identity for heap values, equality for
// immediates.
func identical(a, b Value) bool {
	switch a.(type) {
	case *Array, *Hash, *Range, *Regexp, *Proc, *Class, *Object:
		return a == b
	}
	return sameKind(a, b) && valuesEqual(a, b)
}

func sameKind(a, b Value) bool {
	return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

func isCollection(v Value) bool {
	switch v.(type) {
	case *Array, *Hash:
		return true
	}
	return false
}
