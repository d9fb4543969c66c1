package vm

import (
	"fmt"
	"strings"

	"github.com/joomcode/errorx"
)

// ---------------------------------------------------------------------------
// Interpreter defects
// ---------------------------------------------------------------------------

// Defects abort the current Run. They signal malformed bytecode or a bad
// call shape, never an exception raised by the running program.
var (
	Errors = errorx.NewNamespace("vm")

	ErrStackUnderflow = Errors.NewType("stack_underflow")
	ErrArity          = Errors.NewType("arity_mismatch")
	ErrUnresolvedSlot = Errors.NewType("unresolved_local_slot")
	ErrEnclosingWalk  = Errors.NewType("enclosing_walk")
	ErrUnknownOpcode  = Errors.NewType("unknown_opcode")
	ErrNotFinalized   = Errors.NewType("not_finalized")
	ErrInternal       = Errors.NewType("internal")
)

// Properties attached to defects.
var (
	PropSequence = errorx.RegisterPrintableProperty("sequence")
	PropPC       = errorx.RegisterPrintableProperty("pc")
)

// defect aborts the run with an errorx error located at f.
func defect(f *Frame, t *errorx.Type, format string, args ...any) {
	err := t.New(format, args...)
	if f != nil {
		err = err.WithProperty(PropSequence, f.Seq.Name).WithProperty(PropPC, f.cur)
	}
	errorx.Panic(err)
}

// ---------------------------------------------------------------------------
// Program errors
// ---------------------------------------------------------------------------

// ProgramError is an exception raised by the running program that no
// rescue clause handled. It carries the exception object.
type ProgramError struct {
	Exception *Object
	Backtrace []string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s: %s", e.Exception.Class.Name, exceptionMessage(e.Exception))
}

// ClassName returns the exception's class name.
func (e *ProgramError) ClassName() string { return e.Exception.Class.Name }

// Message returns the exception's message.
func (e *ProgramError) Message() string { return exceptionMessage(e.Exception) }

// Trace renders the error with its backtrace, one frame per line.
func (e *ProgramError) Trace() string {
	var b strings.Builder
	b.WriteString(e.Error())
	for _, l := range e.Backtrace {
		b.WriteString("\n\tfrom ")
		b.WriteString(l)
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Non-local control flow
// ---------------------------------------------------------------------------

type signalKind int

const (
	signalReturn signalKind = iota + 1
	signalBreak
	signalNext
)

func (k signalKind) String() string {
	switch k {
	case signalReturn:
		return "return"
	case signalBreak:
		return "break"
	case signalNext:
		return "next"
	}
	return "unknown"
}

// throwSignal is panicked by throw return/break/next and unwinds frames
// until it reaches its target. A return or next targets a frame; a break
// targets the send that passed the block.
type throwSignal struct {
	kind   signalKind
	value  Value
	target *Frame
	proc   *Proc
}
