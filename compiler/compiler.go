// Package compiler lowers an AST into a tree of instruction sequences.
//
// Every lowering function takes the node, a used flag and the scope being
// emitted into. When used is false the lowering must leave the operand stack
// exactly as it found it; when true it must leave exactly one value. Scopes
// are passed explicitly and a child scope is a fresh value, so nothing has
// to be restored after compiling a nested sequence.
package compiler

import (
	"github.com/joomcode/errorx"
	"github.com/tliron/commonlog"

	"github.com/chazu/rbvm/ast"
	"github.com/chazu/rbvm/pkg/bytecode"
)

// Compile-time defects. A failing compilation returns no unit.
var (
	Errors = errorx.NewNamespace("compile")

	ErrMissingRule = Errors.NewType("missing_lowering_rule")
	ErrInvalid     = Errors.NewType("invalid")

	PropLine = errorx.RegisterPrintableProperty("line")
)

// Options controls code generation.
type Options struct {
	bytecode.Options

	// File is the value of __FILE__.
	File string
}

// DefaultOptions returns the default code generation options.
func DefaultOptions() Options {
	return Options{Options: bytecode.DefaultOptions(), File: "<compiled>"}
}

// Compiler turns programs into units. A Compiler may be reused for any
// number of independent programs; the only state shared between them is
// the call-data intern table.
type Compiler struct {
	opts  Options
	calls *bytecode.CallDataTable
	log   commonlog.Logger
}

// New creates a compiler with its own call-data table.
func New(opts Options) *Compiler {
	return NewWithCalls(opts, bytecode.NewCallDataTable())
}

// NewWithCalls creates a compiler that interns call sites into calls.
func NewWithCalls(opts Options, calls *bytecode.CallDataTable) *Compiler {
	return &Compiler{
		opts:  opts,
		calls: calls,
		log:   commonlog.GetLogger("rbvm.compiler"),
	}
}

// Calls returns the call-data intern table.
func (c *Compiler) Calls() *bytecode.CallDataTable { return c.calls }

// Compile lowers program into a new unit whose root is the top-level
// sequence.
func Compile(program *ast.ProgramNode, opts Options) (*bytecode.Unit, error) {
	return New(opts).Compile(program)
}

// Compile lowers program into a new unit whose root is the top-level
// sequence. The first defect aborts the whole compilation.
func (c *Compiler) Compile(program *ast.ProgramNode) (unit *bytecode.Unit, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e, ok := errorx.ErrorFromPanic(r)
		if !ok || errorx.Cast(e) == nil {
			panic(r)
		}
		unit, err = nil, e
		c.log.Debugf("compilation aborted: %s", e)
	}()

	if program == nil {
		return nil, ErrInvalid.New("nil program")
	}

	unit = bytecode.NewUnit(c.opts.Options, c.calls)
	unit.File = c.opts.File
	top := unit.New(bytecode.KindTop, "<main>", program.Line, bytecode.NoSeq)
	for _, name := range program.Locals {
		top.Locals.Plain(name)
	}

	s := &scope{seq: top}
	c.compileStatements(program.Statements, true, s)
	top.Leave()
	c.finalize(top)
	return unit, nil
}

// ---------------------------------------------------------------------------
// Scopes
// ---------------------------------------------------------------------------

// scope is the emission context of one sequence.
type scope struct {
	seq    *bytecode.InstructionSequence
	parent *scope

	// transparent marks a for-loop body: it is a block at runtime but its
	// variables belong to the enclosing scope.
	transparent bool

	loops   []*loop
	ensures []*ast.EnsureNode
}

// loop holds the jump targets of the innermost while/until and the stack
// depth at its body.
type loop struct {
	next    *bytecode.Label
	brk     *bytecode.Label
	ensures int
	depth   int
}

func (s *scope) child(seq *bytecode.InstructionSequence) *scope {
	return &scope{seq: seq, parent: s}
}

func (s *scope) loop() *loop {
	if len(s.loops) == 0 {
		return nil
	}
	return s.loops[len(s.loops)-1]
}

// method returns the nearest enclosing method scope and the number of
// sequence hops to reach it.
func (s *scope) method() (*scope, int) {
	level := 0
	for cur := s; cur != nil; cur = cur.parent {
		if cur.seq.Kind == bytecode.KindMethod {
			return cur, level
		}
		if cur.seq.Kind != bytecode.KindBlock {
			return nil, 0
		}
		level++
	}
	return nil, 0
}

// ownerName is the name used for blocks created in s.
func (s *scope) ownerName() string {
	cur := s
	for cur.seq.Kind == bytecode.KindBlock && cur.parent != nil {
		cur = cur.parent
	}
	return cur.seq.Name
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (c *Compiler) fail(n ast.Node, t *errorx.Type, format string, args ...any) {
	err := t.New(format, args...)
	if n != nil {
		err = err.WithProperty(PropLine, n.Loc().Line)
	}
	errorx.Panic(err)
}

func (c *Compiler) finalize(seq *bytecode.InstructionSequence) {
	if err := seq.Finalize(); err != nil {
		errorx.Panic(errorx.Decorate(err, "finalize %s %q", seq.Kind, seq.Name))
	}
	c.log.Debugf("finalized %s %q: %d instructions, stack max %d", seq.Kind, seq.Name, seq.Len(), seq.StackMax)
}

func (c *Compiler) send(s *scope, name string, argc int, flags bytecode.CallFlag, kw []string, block bytecode.SeqID) {
	s.seq.Send(c.calls.Intern(name, argc, flags, kw), block)
}

// simpleSend emits a call with an explicit receiver and plain arguments.
func (c *Compiler) simpleSend(s *scope, name string, argc int) {
	c.send(s, name, argc, bytecode.FlagArgsSimple, nil, bytecode.NoSeq)
}

// coreSend emits a call on the VM core object, which the caller pushed
// below the arguments.
func (c *Compiler) coreSend(s *scope, name string, argc int) {
	c.send(s, "core#"+name, argc, bytecode.FlagArgsSimple, nil, bytecode.NoSeq)
}

// localRef resolves name at the parser-reported depth. Transparent scopes
// do not count towards the parser's depth but do count as sequence hops.
func (c *Compiler) localRef(n ast.Node, name string, depth int, s *scope, declare bool) bytecode.LocalRef {
	level := 0
	cur := s
	skip := func() {
		for cur != nil && cur.transparent {
			cur = cur.parent
			level++
		}
	}
	skip()
	for d := depth; d > 0 && cur != nil; d-- {
		cur = cur.parent
		level++
		skip()
	}
	if cur == nil {
		errorx.Panic(bytecode.ErrUnresolvedLocal.New("local %q at depth %d exceeds lexical nesting", name, depth).
			WithProperty(PropLine, n.Loc().Line))
	}
	idx, ok := cur.seq.Locals.Find(name)
	if !ok {
		if !declare || depth != 0 {
			errorx.Panic(bytecode.ErrUnresolvedLocal.New("local %q not declared in %s", name, cur.seq.Name).
				WithProperty(PropLine, n.Loc().Line))
		}
		idx = cur.seq.Locals.Plain(name)
	}
	return bytecode.LocalRef{Index: idx, Level: level}
}
