package vm

import (
	"fmt"
	"strings"

	"github.com/chazu/rbvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Call sites
// ---------------------------------------------------------------------------

type callFunc func(recv Value, args []Value, kw *Hash, blk *Proc) Value

// call pops the receiver, arguments and block argument of a send or
// invokesuper and hands them to fn. A block literal becomes a Proc closed
// over f; a break out of it ends this call with the break value.
func (i *Interpreter) call(f *Frame, in *bytecode.Instruction, fn callFunc) (result Value) {
	cd := in.Call
	var blockArg Value
	if cd.Has(bytecode.FlagArgsBlockArg) {
		blockArg = i.pop()
	}
	args := i.popN(cd.Argc)
	recv := i.pop()
	pos, kw := splitArgs(cd, args)

	if in.Child == bytecode.NoSeq {
		var blk *Proc
		if cd.Has(bytecode.FlagArgsBlockArg) {
			blk = i.toProc(blockArg)
		} else if cd.Has(bytecode.FlagSuper) {
			blk = f.methodFrame().block
		}
		return fn(recv, pos, kw, blk)
	}

	p := i.newProc(f, f.Seq.Child(in.Child))
	p.active = true
	base, depth := i.sp, len(i.frames)
	defer func() {
		p.active = false
		r := recover()
		if r == nil {
			return
		}
		if sig, ok := r.(*throwSignal); ok && sig.kind == signalBreak && sig.proc == p {
			i.frames = i.frames[:depth]
			i.truncate(base)
			i.bp = f.BP
			result = sig.value
			return
		}
		panic(r)
	}()
	return fn(recv, pos, kw, p)
}

// splitArgs separates positional from keyword arguments. A splat call
// passes its positional arguments as one array.
func splitArgs(cd *bytecode.CallData, args []Value) ([]Value, *Hash) {
	n := len(cd.KwArgs)
	pos := args[:len(args)-n]
	if cd.Has(bytecode.FlagArgsSplat) && len(pos) > 0 {
		expanded := append([]Value(nil), toArray(pos[0]).Elems...)
		pos = append(expanded, pos[1:]...)
	}
	if n == 0 {
		return pos, nil
	}
	kw := NewHash()
	for j, name := range cd.KwArgs {
		kw.Set(Symbol(name), args[len(args)-n+j])
	}
	return pos, kw
}

// dispatch looks name up on recv's class and invokes it. A missing method
// goes to method_missing when defined, and otherwise raises NoMethodError,
// or NameError for a bare identifier.
func (i *Interpreter) dispatch(recv Value, name string, args []Value, kw *Hash, blk *Proc, fcall, vcall bool) Value {
	cls := i.classOf(recv)
	if m := cls.Lookup(name); m != nil {
		if m.Private && !fcall {
			i.raise(i.c.NoMethodError, "private method '%s' called for %s", name, describe(i, recv))
		}
		return i.invoke(m, recv, args, kw, blk)
	}
	if mm := cls.Lookup("method_missing"); mm != nil && mm.Builtin == nil {
		return i.invoke(mm, recv, append([]Value{Symbol(name)}, args...), kw, blk)
	}
	if vcall {
		i.raise(i.c.NameError, "undefined local variable or method '%s' for %s", name, describe(i, recv))
	}
	i.raise(i.c.NoMethodError, "undefined method '%s' for %s", name, describe(i, recv))
	return nil
}

func describe(i *Interpreter, v Value) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case *Object:
		if x == i.main {
			return "main:Object"
		}
		return "an instance of " + x.Class.Name
	case *Class:
		if x.IsModule {
			return "module " + x.Name
		}
		return "class " + x.Name
	}
	return "an instance of " + i.classOf(v).Name
}

// invoke runs m with self bound to recv.
func (i *Interpreter) invoke(m *Method, recv Value, args []Value, kw *Hash, blk *Proc) Value {
	if m.Builtin != nil {
		if kw != nil && kw.Len() > 0 {
			args = append(args, kw)
		}
		if len(args) < m.Min || (m.Max >= 0 && len(args) > m.Max) {
			defect(i.current(), ErrArity, "%s: wrong number of arguments (given %d, expected %s)",
				m.Name, len(args), arityRange(m.Min, m.Max))
		}
		return m.Builtin(i, recv, args, blk)
	}
	f := &Frame{Seq: m.Seq, Self: recv, method: m, block: blk, cref: m.cref}
	i.bind(f, args, kw, blk, true)
	return i.runFrame(f)
}

func arityRange(min, max int) string {
	switch {
	case max < 0:
		return fmt.Sprintf("%d+", min)
	case min == max:
		return fmt.Sprint(min)
	}
	return fmt.Sprintf("%d..%d", min, max)
}

// callMethod sends name to recv from Go code, with private access.
func (i *Interpreter) callMethod(recv Value, name string, args ...Value) Value {
	return i.dispatch(recv, name, args, nil, nil, true, false)
}

// callWithBlock sends name to recv with a block.
func (i *Interpreter) callWithBlock(recv Value, name string, blk *Proc, args ...Value) Value {
	return i.dispatch(recv, name, args, nil, blk, true, false)
}

// invokeSuper calls the next definition of the running method after the
// owner of the current one.
func (i *Interpreter) invokeSuper(f *Frame, recv Value, args []Value, kw *Hash, blk *Proc) Value {
	mf := f.methodFrame()
	if mf.method == nil {
		i.raise(i.c.RuntimeError, "super called outside of method")
	}
	m := mf.method
	sm := i.classOf(recv).lookupAfter(m.Owner, m.Name)
	if sm == nil {
		i.raise(i.c.NoMethodError, "super: no superclass method '%s' for %s", m.Name, describe(i, recv))
	}
	return i.invoke(sm, recv, args, kw, blk)
}

// invokeBlock yields to the block of the method that owns f.
func (i *Interpreter) invokeBlock(f *Frame, in *bytecode.Instruction) Value {
	args := i.popN(in.Call.Argc)
	pos, kw := splitArgs(in.Call, args)
	blk := f.methodFrame().block
	if blk == nil {
		i.raise(i.c.LocalJumpError, "no block given (yield)")
	}
	return i.callProc(blk, pos, kw, nil)
}

// ---------------------------------------------------------------------------
// Procs
// ---------------------------------------------------------------------------

func (i *Interpreter) newProc(f *Frame, seq *bytecode.InstructionSequence) *Proc {
	return &Proc{Seq: seq, Self: f.Self, env: f, cref: f.cref}
}

// toProc converts a &blk argument.
func (i *Interpreter) toProc(v Value) *Proc {
	switch x := v.(type) {
	case nil:
		return nil
	case *Proc:
		return x
	case Symbol:
		return i.symbolProc(string(x))
	}
	if p, ok := i.callMethod(v, "to_proc").(*Proc); ok {
		return p
	}
	i.raise(i.c.TypeError, "wrong argument type %s (expected Proc)", i.classOf(v).Name)
	return nil
}

// symbolProc is :name.to_proc: it sends name to its first argument.
func (i *Interpreter) symbolProc(name string) *Proc {
	return &Proc{Lambda: true, fn: func(i *Interpreter, args []Value, blk *Proc) Value {
		if len(args) == 0 {
			i.raise(i.c.ArgumentError, "no receiver given")
		}
		return i.dispatch(args[0], name, args[1:], nil, blk, false, false)
	}}
}

func (i *Interpreter) callProc(p *Proc, args []Value, kw *Hash, blk *Proc) Value {
	if p.fn != nil {
		if kw != nil && kw.Len() > 0 {
			args = append(args, kw)
		}
		return p.fn(i, args, blk)
	}
	f := &Frame{Seq: p.Seq, Self: p.Self, Parent: p.env, proc: p, cref: p.cref, lambda: p.Lambda}
	if p.env != nil {
		f.method = p.env.method
	}
	i.bind(f, args, kw, blk, p.Lambda)
	return i.runFrame(f)
}

// yield calls blk from a builtin, raising LocalJumpError when there is none.
func (i *Interpreter) yield(blk *Proc, args ...Value) Value {
	if blk == nil {
		i.raise(i.c.LocalJumpError, "no block given (yield)")
	}
	return i.callProc(blk, args, nil, nil)
}

// ---------------------------------------------------------------------------
// Argument binding
// ---------------------------------------------------------------------------

// bind fills f's locals from the arguments according to its sequence's
// argument shape and picks the entry point. strict binding (methods and
// lambdas) treats a count mismatch as a defect; lenient binding (blocks)
// splats a lone array, pads with nil and drops extras.
func (i *Interpreter) bind(f *Frame, args []Value, kw *Hash, blk *Proc, strict bool) {
	seq := f.Seq
	shape := &seq.Args
	f.Locals = make([]Value, seq.Locals.Size())
	args = append([]Value(nil), args...)

	if len(shape.Keywords) > 0 && kw == nil && len(args) > shape.Required() {
		if h, ok := args[len(args)-1].(*Hash); ok && symbolKeys(h) {
			kw = h
			args = args[:len(args)-1]
		}
	}
	if len(shape.Keywords) == 0 && kw != nil && kw.Len() > 0 {
		args = append(args, kw)
		kw = nil
	}

	positional := shape.Lead + shape.Opt + shape.Post
	if strict {
		if len(args) < shape.Required() || (shape.Max() >= 0 && len(args) > shape.Max()) {
			defect(f, ErrArity, "%s: wrong number of arguments (given %d, expected %s)",
				seq.Name, len(args), arityRange(shape.Required(), shape.Max()))
		}
	} else {
		if len(args) == 1 && (positional > 1 || (positional == 1 && shape.HasRest())) {
			if a, ok := args[0].(*Array); ok {
				args = append([]Value(nil), a.Elems...)
			}
		}
		for len(args) < shape.Required() {
			args = append(args, nil)
		}
		if max := shape.Max(); max >= 0 && len(args) > max {
			args = args[:max]
		}
	}

	n := len(args)
	optGiven := n - shape.Required()
	if optGiven > shape.Opt {
		optGiven = shape.Opt
	}
	if optGiven < 0 {
		optGiven = 0
	}
	copy(f.Locals, args[:shape.Lead+optGiven])
	restEnd := n - shape.Post
	if shape.HasRest() {
		f.Locals[shape.Rest] = NewArray(append([]Value(nil), args[shape.Lead+optGiven:restEnd]...)...)
	}
	postSlot := shape.Lead + shape.Opt
	if shape.HasRest() {
		postSlot++
	}
	copy(f.Locals[postSlot:], args[restEnd:])

	if len(shape.Keywords) > 0 {
		i.bindKeywords(f, postSlot+shape.Post, kw, strict)
	}
	if shape.Block >= 0 && blk != nil {
		f.Locals[shape.Block] = blk
	}
	f.block = blk
	if shape.Opt > 0 {
		f.PC = shape.OptTable()[optGiven]
	}
}

func (i *Interpreter) bindKeywords(f *Frame, start int, kw *Hash, strict bool) {
	keywords := f.Seq.Args.Keywords
	f.kwGiven = make([]bool, len(keywords))
	used := 0
	for j, k := range keywords {
		if kw != nil {
			if v, ok := kw.Get(Symbol(k.Name)); ok {
				f.Locals[start+j] = v
				f.kwGiven[j] = true
				used++
				continue
			}
		}
		if k.Required && strict {
			defect(f, ErrArity, "%s: missing keyword: :%s", f.Seq.Name, k.Name)
		}
	}
	if strict && kw != nil && used < kw.Len() {
		var unknown []string
		kw.Each(func(k, _ Value) {
			if s, ok := k.(Symbol); !ok || !hasKeyword(keywords, string(s)) {
				unknown = append(unknown, inspect(k))
			}
		})
		defect(f, ErrArity, "%s: unknown keywords: %s", f.Seq.Name, strings.Join(unknown, ", "))
	}
}

func hasKeyword(keywords []bytecode.Keyword, name string) bool {
	for _, k := range keywords {
		if k.Name == name {
			return true
		}
	}
	return false
}

func symbolKeys(h *Hash) bool {
	for _, k := range h.keys {
		if _, ok := k.(Symbol); !ok {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Classes of values
// ---------------------------------------------------------------------------

// classOf returns the class method lookup starts from.
func (i *Interpreter) classOf(v Value) *Class {
	switch x := v.(type) {
	case nil:
		return i.c.NilClass
	case bool:
		if x {
			return i.c.TrueClass
		}
		return i.c.FalseClass
	case int64:
		return i.c.Integer
	case float64:
		return i.c.Float
	case string:
		return i.c.String
	case Symbol:
		return i.c.Symbol
	case *Array:
		return i.c.Array
	case *Hash:
		return i.c.Hash
	case *Range:
		return i.c.Range
	case *Regexp:
		return i.c.Regexp
	case *MatchData:
		return i.c.MatchData
	case *Proc:
		return i.c.Proc
	case *Class:
		return i.metaOf(x)
	case *Object:
		if x.singleton != nil {
			return x.singleton
		}
		return x.Class
	}
	return i.c.Object
}

// realClass skips singleton classes.
func (i *Interpreter) realClass(v Value) *Class {
	c := i.classOf(v)
	for c.singleton && c.Super != nil {
		c = c.Super
	}
	return c
}

// metaOf returns the singleton class of a class or module, creating the
// chain up to its superclass on first use.
func (i *Interpreter) metaOf(c *Class) *Class {
	if c.meta != nil {
		return c.meta
	}
	var super *Class
	switch {
	case c.singleton:
		super = i.c.Class
	case c.Super != nil:
		super = i.metaOf(c.Super)
	case c.IsModule:
		super = i.c.Module
	default:
		super = i.c.Class
	}
	m := newClass("#<Class:"+c.Name+">", super, false)
	m.singleton = true
	m.attached = c
	c.meta = m
	return m
}

// singletonOf returns the singleton class of v for def obj.name and
// class << obj.
func (i *Interpreter) singletonOf(v Value) *Class {
	switch x := v.(type) {
	case *Class:
		return i.metaOf(x)
	case *Object:
		if x.singleton == nil {
			s := newClass("#<Class:"+toS(x)+">", x.Class, false)
			s.singleton = true
			s.attached = x
			x.singleton = s
		}
		return x.singleton
	}
	i.raise(i.c.TypeError, "can't define singleton")
	return nil
}

// ---------------------------------------------------------------------------
// Raising
// ---------------------------------------------------------------------------

func (i *Interpreter) newException(cls *Class, msg string) *Object {
	obj := NewObject(cls)
	obj.Ivars["@message"] = msg
	return obj
}

func exceptionMessage(obj *Object) string {
	if m, ok := obj.Ivars["@message"]; ok && m != nil {
		return toS(m)
	}
	return obj.Class.Name
}

// raise raises a new exception of cls in the running program.
func (i *Interpreter) raise(cls *Class, format string, args ...any) {
	i.raiseObject(i.newException(cls, fmt.Sprintf(format, args...)))
}

func (i *Interpreter) raiseObject(obj *Object) {
	panic(i.programError(obj))
}

func (i *Interpreter) programError(obj *Object) *ProgramError {
	if obj.backtrace == nil {
		obj.backtrace = i.backtrace()
	}
	return &ProgramError{Exception: obj, Backtrace: obj.backtrace}
}

// backtrace lists the active frames, innermost first.
func (i *Interpreter) backtrace() []string {
	out := make([]string, 0, len(i.frames))
	for j := len(i.frames) - 1; j >= 0; j-- {
		f := i.frames[j]
		out = append(out, fmt.Sprintf("%s:%d:in '%s'", f.Seq.Unit().File, f.Line(), f.Seq.Name))
	}
	return out
}
