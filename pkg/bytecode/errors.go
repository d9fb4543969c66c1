package bytecode

import "github.com/joomcode/errorx"

// Compile-time defects raised while building or finalizing a sequence.
// All of them abort the compilation unit.
var (
	Errors = errorx.NewNamespace("bytecode")

	ErrUnboundLabel    = Errors.NewType("unbound_label")
	ErrMissingTerminal = Errors.NewType("missing_terminal")
	ErrStackDepth      = Errors.NewType("stack_depth")
	ErrUnresolvedLocal = Errors.NewType("unresolved_local")
	ErrMisuse          = Errors.NewType("misuse")
	ErrMalformed       = Errors.NewType("malformed")
)

// Properties attached to finalize errors.
var (
	PropSequence = errorx.RegisterPrintableProperty("sequence")
	PropPosition = errorx.RegisterPrintableProperty("position")
)
