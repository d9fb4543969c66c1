package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/joomcode/errorx"
	"github.com/tliron/commonlog"

	"github.com/chazu/rbvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Frame: execution state of one sequence activation
// ---------------------------------------------------------------------------

// Frame is one activation of an instruction sequence. Parent is the
// lexical enclosing frame, not the caller: a local at depth n lives n
// Parent hops away.
type Frame struct {
	Seq    *bytecode.InstructionSequence
	Self   Value
	Locals []Value
	Parent *Frame
	PC     int // next instruction
	BP     int // operand stack base

	cur      int // instruction being executed
	callerBP int
	method   *Method
	block    *Proc
	proc     *Proc
	cref     *cref
	lambda   bool
	kwGiven  []bool
	done     bool
	match    *MatchData // $~ of a method or top-level frame
}

// IsBlock reports whether the frame runs a block body.
func (f *Frame) IsBlock() bool { return f.Seq.Kind == bytecode.KindBlock }

// Local returns the value of a local declared in this frame's sequence.
func (f *Frame) Local(name string) (Value, bool) {
	slot, ok := f.Seq.Locals.Find(name)
	if !ok || slot >= len(f.Locals) {
		return nil, false
	}
	return f.Locals[slot], true
}

// Line returns the source line of the instruction being executed.
func (f *Frame) Line() int {
	if f.cur < len(f.Seq.Insns) {
		return f.Seq.Insns[f.cur].Line
	}
	return f.Seq.Line
}

// methodFrame walks out of block frames to the method or top-level frame
// that owns the block and super context.
func (f *Frame) methodFrame() *Frame {
	for f.IsBlock() && f.Parent != nil {
		f = f.Parent
	}
	return f
}

// returnTarget is the frame a return leaves: the nearest lambda, method or
// top-level frame. It is nil for an orphaned block.
func (f *Frame) returnTarget() *Frame {
	for f != nil && f.IsBlock() && !f.lambda {
		f = f.Parent
	}
	return f
}

// ---------------------------------------------------------------------------
// Interpreter
// ---------------------------------------------------------------------------

//go:generate mockgen -write_package_comment=false -package=$GOPACKAGE -self_package=github.com/chazu/rbvm/vm -destination=mock_tracer_test.go github.com/chazu/rbvm/vm Tracer

// Tracer observes every instruction before it executes.
type Tracer interface {
	Trace(f *Frame, in *bytecode.Instruction)
}

// TracerFunc adapts a function to Tracer.
type TracerFunc func(f *Frame, in *bytecode.Instruction)

func (fn TracerFunc) Trace(f *Frame, in *bytecode.Instruction) { fn(f, in) }

// Options configure an Interpreter.
type Options struct {
	MaxFrames int       // deeper calls raise SystemStackError
	StackSize int       // initial operand stack capacity
	Trace     bool      // log every instruction at debug level
	Tracer    Tracer    // overrides Trace
	Stdout    io.Writer // puts, print and p
}

// DefaultOptions returns the default interpreter limits.
func DefaultOptions() Options {
	return Options{MaxFrames: 10000, StackSize: 1024, Stdout: os.Stdout}
}

// Interpreter executes finalized instruction sequences. It is not safe for
// concurrent use.
type Interpreter struct {
	opts   Options
	log    commonlog.Logger
	tracer Tracer

	stack  []Value // operand stack shared by all frames
	sp     int     // next free slot
	bp     int     // base of the running frame
	frames []*Frame

	globals     map[string]Value
	gvarAliases map[string]string
	regexps     map[bytecode.RegexpSource]*Regexp

	postExe     []*Proc
	postExeSeen map[*bytecode.InstructionSequence]bool

	c       *coreClasses
	main    *Object
	core    *Object
	topCref *cref
}

// New creates an interpreter with the core classes installed.
func New(opts Options) *Interpreter {
	def := DefaultOptions()
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = def.MaxFrames
	}
	if opts.StackSize <= 0 {
		opts.StackSize = def.StackSize
	}
	if opts.Stdout == nil {
		opts.Stdout = def.Stdout
	}
	i := &Interpreter{
		opts:        opts,
		log:         commonlog.GetLogger("rbvm.vm"),
		stack:       make([]Value, opts.StackSize),
		globals:     make(map[string]Value),
		gvarAliases: make(map[string]string),
		regexps:     make(map[bytecode.RegexpSource]*Regexp),
		postExeSeen: make(map[*bytecode.InstructionSequence]bool),
	}
	i.tracer = opts.Tracer
	if i.tracer == nil && opts.Trace {
		i.tracer = TracerFunc(func(f *Frame, in *bytecode.Instruction) {
			i.log.Debugf("%s %04d %s", f.Seq.Name, f.cur, in)
		})
	}
	i.bootstrap()
	return i
}

// Object returns the root class.
func (i *Interpreter) Object() *Class { return i.c.Object }

// Main returns the top-level self.
func (i *Interpreter) Main() *Object { return i.main }

// Const returns a top-level constant.
func (i *Interpreter) Const(name string) (Value, bool) {
	v, ok := i.c.Object.Consts[name]
	return v, ok
}

// Global returns a global variable, following aliases.
func (i *Interpreter) Global(name string) Value { return i.globals[i.globalName(name)] }

// SetGlobal assigns a global variable, following aliases.
func (i *Interpreter) SetGlobal(name string, v Value) { i.globals[i.globalName(name)] = v }

// Depth returns the number of active frames.
func (i *Interpreter) Depth() int { return len(i.frames) }

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Run executes seq at top level with self bound to the main object.
func (i *Interpreter) Run(seq *bytecode.InstructionSequence, args ...Value) (Value, error) {
	return i.RunIn(seq, args, nil)
}

// RunUnit executes the root sequence of unit, then the END blocks it
// registered. An error from the program wins over one from an END block.
func (i *Interpreter) RunUnit(unit *bytecode.Unit) (Value, error) {
	root := unit.Root()
	if root == nil {
		return nil, ErrNotFinalized.New("unit has no sequences")
	}
	v, err := i.Run(root)
	if perr := i.runPostExe(); err == nil && perr != nil {
		return nil, perr
	}
	return v, err
}

// RunIn executes seq with enclosing as its lexical parent frame, so that
// depth-n locals of seq resolve into enclosing's chain. A nil enclosing
// runs seq at top level. Program exceptions come back as *ProgramError;
// interpreter defects as errorx errors in the vm namespace.
func (i *Interpreter) RunIn(seq *bytecode.InstructionSequence, args []Value, enclosing *Frame) (result Value, err error) {
	if seq == nil || !seq.Frozen() {
		return nil, ErrNotFinalized.New("sequence is not finalized")
	}

	return i.protect(seq.Name, func() Value {
		f := &Frame{Seq: seq, Self: i.main, Parent: enclosing, cref: i.topCref}
		i.bind(f, args, nil, nil, seq.Kind != bytecode.KindBlock)
		if enclosing != nil {
			f.Self = enclosing.Self
			f.cref = enclosing.cref
			f.method = enclosing.method
			f.block = enclosing.block
		}
		return i.runFrame(f)
	})
}

// protect runs fn and converts a panic unwinding out of it into an error,
// restoring the operand stack and frame list to their state on entry.
func (i *Interpreter) protect(name string, fn func() Value) (result Value, err error) {
	sp, bp, depth := i.sp, i.bp, len(i.frames)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		i.truncate(sp)
		i.bp = bp
		i.frames = i.frames[:depth]
		result, err = nil, i.runError(r)
		i.log.Debugf("run of %s aborted: %s", name, err)
	}()
	return fn(), nil
}

// runError converts a value recovered at the Run boundary into an error.
func (i *Interpreter) runError(r any) error {
	switch x := r.(type) {
	case *ProgramError:
		return x
	case *throwSignal:
		return i.programError(i.newException(i.c.LocalJumpError, fmt.Sprintf("unexpected %s", x.kind)))
	}
	if e, ok := errorx.ErrorFromPanic(r); ok {
		if errorx.Cast(e) != nil {
			return e
		}
		return ErrInternal.Wrap(e, "host failure")
	}
	return ErrInternal.New("host failure: %v", r)
}

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

func (i *Interpreter) current() *Frame {
	if len(i.frames) == 0 {
		return nil
	}
	return i.frames[len(i.frames)-1]
}

func (i *Interpreter) push(v Value) {
	if i.sp >= len(i.stack) {
		grown := make([]Value, len(i.stack)*2)
		copy(grown, i.stack)
		i.stack = grown
	}
	i.stack[i.sp] = v
	i.sp++
}

func (i *Interpreter) pop() Value {
	if i.sp <= i.bp {
		defect(i.current(), ErrStackUnderflow, "pop from an empty frame stack")
	}
	i.sp--
	v := i.stack[i.sp]
	i.stack[i.sp] = nil
	return v
}

// peek returns the value n slots below the top.
func (i *Interpreter) peek(n int) Value {
	if i.sp-n-1 < i.bp {
		defect(i.current(), ErrStackUnderflow, "read %d below the top of a %d-value stack", n, i.sp-i.bp)
	}
	return i.stack[i.sp-n-1]
}

func (i *Interpreter) popN(n int) []Value {
	if i.sp-n < i.bp {
		defect(i.current(), ErrStackUnderflow, "pop %d values from a %d-value stack", n, i.sp-i.bp)
	}
	out := make([]Value, n)
	copy(out, i.stack[i.sp-n:i.sp])
	i.truncate(i.sp - n)
	return out
}

// truncate drops every value at or above sp.
func (i *Interpreter) truncate(sp int) {
	for j := sp; j < i.sp; j++ {
		i.stack[j] = nil
	}
	i.sp = sp
}

// ---------------------------------------------------------------------------
// Frame management
// ---------------------------------------------------------------------------

func (i *Interpreter) pushFrame(f *Frame) {
	if len(i.frames) >= i.opts.MaxFrames {
		i.raise(i.c.SystemStackError, "stack level too deep")
	}
	f.BP = i.sp
	f.callerBP = i.bp
	i.bp = f.BP
	i.frames = append(i.frames, f)
}

func (i *Interpreter) popFrame(f *Frame) {
	i.frames = i.frames[:len(i.frames)-1]
	i.truncate(f.BP)
	i.bp = f.callerBP
	f.done = true
}

// runFrame executes f until it leaves and returns its value. Abnormal
// exits are offered to f's catch table and resume at the handler.
func (i *Interpreter) runFrame(f *Frame) Value {
	i.pushFrame(f)
	defer i.popFrame(f)
	for {
		if v, ok := i.runProtected(f); ok {
			return v
		}
	}
}

func (i *Interpreter) runProtected(f *Frame) (result Value, ok bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if i.handle(f, r) {
			return
		}
		if sig, isSig := r.(*throwSignal); isSig && sig.target == f {
			i.truncate(f.BP)
			i.bp = f.BP
			result, ok = sig.value, true
			return
		}
		panic(r)
	}()
	return i.execute(f), true
}

// handle looks for a catch entry of f covering the faulting instruction.
// Rescue entries take program exceptions only; ensure entries take every
// exception and non-local exit. On a match the stack is reset to the
// entry's depth, the exception is pushed and f resumes at the handler.
func (i *Interpreter) handle(f *Frame, r any) bool {
	var exc Value
	rescuable := false
	switch x := r.(type) {
	case *ProgramError:
		exc, rescuable = x.Exception, true
	case *throwSignal:
		exc = x
	default:
		return false
	}
	for _, c := range f.Seq.Catch {
		if !c.Covers(f.cur) || (c.Kind == bytecode.CatchRescue && !rescuable) {
			continue
		}
		i.truncate(f.BP + c.Depth)
		i.bp = f.BP
		i.push(exc)
		if rescuable {
			i.globals["$!"] = exc
		}
		f.PC = c.Cont
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

func (i *Interpreter) execute(f *Frame) Value {
	insns := f.Seq.Insns
	for {
		if f.PC < 0 || f.PC >= len(insns) {
			defect(f, ErrUnknownOpcode, "pc %d outside sequence of %d instructions", f.PC, len(insns))
		}
		in := &insns[f.PC]
		f.cur = f.PC
		f.PC++
		if i.tracer != nil {
			i.tracer.Trace(f, in)
		}

		switch in.Op {
		// --- Stack manipulation ---
		case bytecode.OpNop:

		case bytecode.OpPop:
			i.pop()

		case bytecode.OpDup:
			i.push(i.peek(0))

		case bytecode.OpDupN:
			vals := i.popN(in.Count)
			for _, v := range vals {
				i.push(v)
			}
			for _, v := range vals {
				i.push(v)
			}

		case bytecode.OpSwap:
			b := i.pop()
			a := i.pop()
			i.push(b)
			i.push(a)

		case bytecode.OpTopN:
			i.push(i.peek(in.Count))

		case bytecode.OpSetN:
			v := i.peek(0)
			i.peek(in.Count)
			i.stack[i.sp-in.Count-1] = v

		case bytecode.OpAdjustStack:
			i.popN(in.Count)

		// --- Put ---
		case bytecode.OpPutNil:
			i.push(nil)

		case bytecode.OpPutSelf:
			i.push(f.Self)

		case bytecode.OpPutObject:
			i.push(i.literal(in.Object))

		case bytecode.OpPutObjectFix0:
			i.push(int64(0))

		case bytecode.OpPutObjectFix1:
			i.push(int64(1))

		case bytecode.OpPutString:
			i.push(in.Object)

		case bytecode.OpPutSpecialObject:
			switch in.Index {
			case bytecode.SpecialVMCore:
				i.push(i.core)
			case bytecode.SpecialCBase, bytecode.SpecialConstBase:
				i.push(f.cref.class)
			default:
				defect(f, ErrUnknownOpcode, "putspecialobject type %d", in.Index)
			}

		// --- Variables ---
		case bytecode.OpGetLocal:
			env := i.env(f, in)
			i.push(env.Locals[in.Index])

		case bytecode.OpSetLocal:
			env := i.env(f, in)
			env.Locals[in.Index] = i.pop()

		case bytecode.OpGetInstanceVariable:
			i.push(ivarsOf(f.Self)[in.Name])

		case bytecode.OpSetInstanceVariable:
			v := i.pop()
			ivars := ivarsOf(f.Self)
			if ivars == nil {
				i.raise(i.c.FrozenError, "can't modify frozen %s: %s", i.classOf(f.Self).Name, inspect(f.Self))
			}
			ivars[in.Name] = v

		case bytecode.OpGetClassVariable:
			owner, ok := f.cref.class.lookupCVar(in.Name)
			if !ok {
				i.raise(i.c.NameError, "uninitialized class variable %s in %s", in.Name, f.cref.class.Name)
			}
			i.push(owner.CVars[in.Name])

		case bytecode.OpSetClassVariable:
			v := i.pop()
			owner, ok := f.cref.class.lookupCVar(in.Name)
			if !ok {
				owner = f.cref.class
			}
			owner.CVars[in.Name] = v

		case bytecode.OpGetGlobal:
			i.push(i.getGlobal(in.Name))

		case bytecode.OpSetGlobal:
			i.setGlobal(in.Name, i.pop())

		case bytecode.OpGetSpecial:
			i.push(i.special(in.Index, in.Flags))

		case bytecode.OpGetConstant:
			scope := i.pop()
			v, ok := i.findConst(f, scope, in.Name, in.Flags)
			if !ok {
				i.raise(i.c.NameError, "uninitialized constant %s", i.constPath(scope, in.Name))
			}
			i.push(v)

		case bytecode.OpSetConstant:
			cbase := i.pop()
			v := i.pop()
			scope, ok := cbase.(*Class)
			if !ok {
				i.raise(i.c.TypeError, "%s is not a class/module", inspect(cbase))
			}
			if c, ok := v.(*Class); ok && c.Name == "" {
				c.Name = i.constPath(scope, in.Name)
			}
			scope.Consts[in.Name] = v

		// --- Collections and strings ---
		case bytecode.OpNewArray:
			i.push(NewArray(i.popN(in.Count)...))

		case bytecode.OpNewHash:
			kv := i.popN(in.Count)
			h := NewHash()
			for j := 0; j+1 < len(kv); j += 2 {
				h.Set(kv[j], kv[j+1])
			}
			i.push(h)

		case bytecode.OpNewRange:
			high := i.pop()
			low := i.pop()
			i.push(&Range{Low: low, High: high, Exclusive: in.Flags != 0})

		case bytecode.OpSplatArray:
			v := i.pop()
			a := toArray(v)
			if a == v && in.Flags != 0 {
				a = NewArray(append([]Value(nil), a.Elems...)...)
			}
			i.push(a)

		case bytecode.OpConcatArray:
			b := toArray(i.pop())
			a := toArray(i.pop())
			elems := make([]Value, 0, len(a.Elems)+len(b.Elems))
			elems = append(elems, a.Elems...)
			i.push(NewArray(append(elems, b.Elems...)...))

		case bytecode.OpExpandArray:
			i.expandArray(i.pop(), in.Count, in.Post, in.Flags&bytecode.ExpandSplat != 0)

		case bytecode.OpConcatStrings:
			var s string
			for _, v := range i.popN(in.Count) {
				s += toS(v)
			}
			i.push(s)

		case bytecode.OpObjToString:
			v := i.pop()
			if s, ok := v.(string); ok {
				i.push(s)
				break
			}
			if s, ok := i.callMethod(v, "to_s").(string); ok {
				i.push(s)
			} else {
				i.push(toS(v))
			}

		case bytecode.OpToRegexp:
			var src string
			for _, v := range i.popN(in.Count) {
				src += toS(v)
			}
			re, err := compileRegexp(src, in.Name)
			if err != nil {
				i.raise(i.c.RegexpError, "%s", err)
			}
			i.push(re)

		// --- Control flow ---
		case bytecode.OpJump:
			f.PC = in.Target

		case bytecode.OpBranchIf:
			if Truthy(i.pop()) {
				f.PC = in.Target
			}

		case bytecode.OpBranchUnless:
			if !Truthy(i.pop()) {
				f.PC = in.Target
			}

		case bytecode.OpBranchNil:
			if i.pop() == nil {
				f.PC = in.Target
			}

		case bytecode.OpLeave:
			return i.pop()

		case bytecode.OpThrow:
			i.throw(f, in.Flags, i.pop())

		// --- Calls ---
		case bytecode.OpSend:
			i.push(i.call(f, in, func(recv Value, args []Value, kw *Hash, blk *Proc) Value {
				cd := in.Call
				return i.dispatch(recv, cd.Method, args, kw, blk, cd.Has(bytecode.FlagFCall), cd.Has(bytecode.FlagVCall))
			}))

		case bytecode.OpInvokeSuper:
			i.push(i.call(f, in, func(recv Value, args []Value, kw *Hash, blk *Proc) Value {
				return i.invokeSuper(f, recv, args, kw, blk)
			}))

		case bytecode.OpInvokeBlock:
			i.push(i.invokeBlock(f, in))

		case bytecode.OpOptPlus, bytecode.OpOptMinus, bytecode.OpOptMult, bytecode.OpOptDiv,
			bytecode.OpOptMod, bytecode.OpOptLt, bytecode.OpOptLe, bytecode.OpOptGt,
			bytecode.OpOptGe, bytecode.OpOptEq, bytecode.OpOptNeq, bytecode.OpOptAref,
			bytecode.OpOptLtLt:
			b := i.pop()
			a := i.pop()
			if v, ok := fastBinary(in.Op, a, b); ok {
				i.push(v)
				break
			}
			i.push(i.dispatch(a, in.Call.Method, []Value{b}, nil, nil, false, false))

		case bytecode.OpOptAset:
			v := i.pop()
			k := i.pop()
			recv := i.pop()
			if fastAset(recv, k, v) {
				i.push(v)
				break
			}
			i.push(i.dispatch(recv, in.Call.Method, []Value{k, v}, nil, nil, false, false))

		// --- Definitions ---
		case bytecode.OpDefineMethod:
			body := f.Seq.Child(in.Child)
			private := in.Name == "initialize" || f.methodFrame().Seq.Kind == bytecode.KindTop
			f.cref.class.Define(in.Name, &Method{Seq: body, cref: f.cref, Max: -1, Private: private})

		case bytecode.OpDefineSMethod:
			obj := i.pop()
			body := f.Seq.Child(in.Child)
			i.singletonOf(obj).Define(in.Name, &Method{Seq: body, cref: f.cref, Max: -1})

		case bytecode.OpDefineClass:
			super := i.pop()
			cbase := i.pop()
			i.push(i.defineClass(f, in, cbase, super))

		// --- Checks ---
		case bytecode.OpCheckMatch:
			pattern := i.pop()
			target := i.pop()
			i.push(i.checkMatch(in.Flags, target, pattern))

		case bytecode.OpCheckKeyword:
			if in.Index < 0 || in.Index >= len(f.kwGiven) {
				defect(f, ErrUnresolvedSlot, "checkkeyword %d with %d keywords", in.Index, len(f.kwGiven))
			}
			i.push(f.kwGiven[in.Index])

		case bytecode.OpDefined:
			i.push(i.defined(f, in, i.pop()))

		default:
			defect(f, ErrUnknownOpcode, "opcode 0x%02X", byte(in.Op))
		}
	}
}

// env walks the lexical chain in.Level hops and checks the slot.
func (i *Interpreter) env(f *Frame, in *bytecode.Instruction) *Frame {
	env := f
	for n := 0; n < in.Level; n++ {
		env = env.Parent
		if env == nil {
			defect(f, ErrEnclosingWalk, "local %s at depth %d exceeds the frame chain", in.Name, in.Level)
		}
	}
	if in.Index < 0 || in.Index >= len(env.Locals) {
		defect(f, ErrUnresolvedSlot, "local %s slot %d outside %d locals of %s", in.Name, in.Index, len(env.Locals), env.Seq.Name)
	}
	return env
}

// literal materializes a putobject operand.
func (i *Interpreter) literal(v any) Value {
	src, ok := v.(bytecode.RegexpSource)
	if !ok {
		return v
	}
	if re, ok := i.regexps[src]; ok {
		return re
	}
	re, err := compileRegexp(src.Source, src.Flags)
	if err != nil {
		i.raise(i.c.RegexpError, "%s", err)
	}
	i.regexps[src] = re
	return re
}

// expandArray spreads v so the first pre element ends on top, followed by
// the splat remainder and the post elements. Missing elements are nil and
// a non-array value counts as a one-element array.
func (i *Interpreter) expandArray(v Value, pre, post int, splat bool) {
	var elems []Value
	if a, ok := v.(*Array); ok {
		elems = a.Elems
	} else {
		elems = []Value{v}
	}
	at := func(j int) Value {
		if j >= 0 && j < len(elems) {
			return elems[j]
		}
		return nil
	}

	postStart := pre
	if splat {
		postStart = len(elems) - post
		if postStart < pre {
			postStart = pre
		}
	}
	for j := post - 1; j >= 0; j-- {
		i.push(at(postStart + j))
	}
	if splat {
		var rest []Value
		if postStart > pre {
			rest = append(rest, elems[pre:postStart]...)
		}
		i.push(NewArray(rest...))
	}
	for j := pre - 1; j >= 0; j-- {
		i.push(at(j))
	}
}

// throw implements throw <type>.
func (i *Interpreter) throw(f *Frame, typ int, v Value) {
	switch typ {
	case bytecode.ThrowRaise:
		switch x := v.(type) {
		case *throwSignal:
			panic(x)
		case *Object:
			if x.Class.isException() {
				i.raiseObject(x)
			}
		}
		i.raise(i.c.TypeError, "exception class/object expected")

	case bytecode.ThrowReturn:
		target := f.returnTarget()
		if target == nil || target.done {
			i.raise(i.c.LocalJumpError, "unexpected return")
		}
		panic(&throwSignal{kind: signalReturn, value: v, target: target})

	case bytecode.ThrowBreak:
		if f.lambda {
			panic(&throwSignal{kind: signalReturn, value: v, target: f})
		}
		if f.proc == nil || !f.proc.active {
			i.raise(i.c.LocalJumpError, "break from proc-closure")
		}
		panic(&throwSignal{kind: signalBreak, value: v, proc: f.proc})

	case bytecode.ThrowNext:
		panic(&throwSignal{kind: signalNext, value: v, target: f})

	default:
		defect(f, ErrUnknownOpcode, "throw type %d", typ)
	}
}

// ---------------------------------------------------------------------------
// Constants and definitions
// ---------------------------------------------------------------------------

// findConst resolves name. A nil scope searches the lexical cref chain,
// then the ancestors of the innermost class, then Object.
func (i *Interpreter) findConst(f *Frame, scope Value, name string, flags int) (Value, bool) {
	if flags&bytecode.ConstTop != 0 {
		return i.c.Object.lookupConst(name)
	}
	switch s := scope.(type) {
	case nil:
		for cr := f.cref; cr != nil; cr = cr.next {
			if v, ok := cr.class.Consts[name]; ok {
				return v, true
			}
		}
		if f.cref != nil {
			if v, ok := f.cref.class.lookupConst(name); ok {
				return v, true
			}
		}
		return i.c.Object.lookupConst(name)
	case *Class:
		return s.lookupConst(name)
	}
	i.raise(i.c.TypeError, "%s is not a class/module", inspect(scope))
	return nil, false
}

func (i *Interpreter) constPath(scope Value, name string) string {
	if c, ok := scope.(*Class); ok && c != i.c.Object && c.Name != "" {
		return c.Name + "::" + name
	}
	return name
}

// defineClass opens or creates the class, module or singleton class named
// by in and runs its body with the class as self and innermost cref.
func (i *Interpreter) defineClass(f *Frame, in *bytecode.Instruction, cbase, super Value) Value {
	var cls *Class
	typ := in.Flags & 3
	if typ == bytecode.ClassTypeSingleton {
		cls = i.singletonOf(cbase)
	} else {
		scope, ok := cbase.(*Class)
		if !ok {
			i.raise(i.c.TypeError, "%s is not a class/module", inspect(cbase))
		}
		module := typ == bytecode.ClassTypeModule
		var sc *Class
		if in.Flags&bytecode.ClassHasSuper != 0 {
			sc, ok = super.(*Class)
			if !ok || sc.IsModule {
				i.raise(i.c.TypeError, "superclass must be a Class")
			}
		}
		if existing, found := scope.Consts[in.Name]; found {
			c, ok := existing.(*Class)
			switch {
			case !ok || c.IsModule != module:
				kind := "class"
				if module {
					kind = "module"
				}
				i.raise(i.c.TypeError, "%s is not a %s", in.Name, kind)
			case sc != nil && c.Super != sc:
				i.raise(i.c.TypeError, "superclass mismatch for class %s", in.Name)
			}
			cls = c
		} else {
			if !module && sc == nil {
				sc = i.c.Object
			}
			cls = newClass(i.constPath(scope, in.Name), sc, module)
			scope.Consts[in.Name] = cls
		}
	}

	body := f.Seq.Child(in.Child)
	nf := &Frame{Seq: body, Self: cls, cref: &cref{class: cls, next: f.cref}}
	i.bind(nf, nil, nil, nil, true)
	return i.runFrame(nf)
}

// checkMatch implements checkmatch: when tests truthiness, case dispatches
// ===, rescue requires a class or module. With the array bit any element
// of the pattern may match.
func (i *Interpreter) checkMatch(flags int, target, pattern Value) bool {
	typ := flags &^ bytecode.CheckMatchArray
	match := func(p Value) bool {
		switch typ {
		case bytecode.CheckMatchWhen:
			return Truthy(p)
		case bytecode.CheckMatchRescue:
			c, ok := p.(*Class)
			if !ok {
				i.raise(i.c.TypeError, "class or module required for rescue clause")
			}
			return i.classOf(target).IsSubclassOf(c)
		}
		return Truthy(i.callMethod(p, "===", target))
	}
	if flags&bytecode.CheckMatchArray != 0 {
		for _, p := range toArray(pattern).Elems {
			if match(p) {
				return true
			}
		}
		return false
	}
	return match(pattern)
}

// defined implements defined?: the description string, or nil.
func (i *Interpreter) defined(f *Frame, in *bytecode.Instruction, v Value) Value {
	ok := false
	var desc string
	switch in.Index {
	case bytecode.DefinedIvar:
		_, ok = ivarsOf(f.Self)[in.Name]
		desc = "instance-variable"
	case bytecode.DefinedGvar:
		ok = i.globalDefined(in.Name)
		desc = "global-variable"
	case bytecode.DefinedCvar:
		_, ok = f.cref.class.lookupCVar(in.Name)
		desc = "class variable"
	case bytecode.DefinedConst:
		if _, isScope := v.(*Class); isScope || v == nil {
			_, ok = i.findConst(f, v, in.Name, 0)
		}
		desc = "constant"
	case bytecode.DefinedMethod:
		ok = i.classOf(v).Lookup(in.Name) != nil
		desc = "method"
	case bytecode.DefinedYield:
		ok = f.methodFrame().block != nil
		desc = "yield"
	case bytecode.DefinedNil:
		ok, desc = true, "nil"
	case bytecode.DefinedSelf:
		ok, desc = true, "self"
	case bytecode.DefinedTrue:
		ok, desc = true, "true"
	case bytecode.DefinedFalse:
		ok, desc = true, "false"
	case bytecode.DefinedAsgn:
		ok, desc = true, "assignment"
	case bytecode.DefinedLocal:
		ok, desc = true, "local-variable"
	case bytecode.DefinedExpr:
		ok, desc = true, "expression"
	default:
		defect(f, ErrUnknownOpcode, "defined type %d", in.Index)
	}
	if !ok {
		return nil
	}
	return desc
}

// ivarsOf returns the instance variable table of v, nil for immediates.
func ivarsOf(v Value) map[string]Value {
	switch x := v.(type) {
	case *Object:
		return x.Ivars
	case *Class:
		return x.Ivars
	}
	return nil
}
