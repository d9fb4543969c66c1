package bytecode

import (
	"fmt"
	"strings"
)

// Symbol is an interned name literal (:foo).
type Symbol string

// String returns the symbol's name without the colon.
func (s Symbol) String() string { return string(s) }

// RegexpSource is the literal operand of a regular expression pushed by
// putobject. The VM compiles it on first use.
type RegexpSource struct {
	Source string
	Flags  string
}

// putspecialobject operands.
const (
	SpecialVMCore    = 1 // The VM's internal helper object
	SpecialCBase     = 2 // The class that def and alias target
	SpecialConstBase = 3 // The class that constant writes target
)

// getconstant flags.
const (
	ConstTop = 1 // ::Name, ignore the scope operand and start at Object
)

// checkmatch types.
const (
	CheckMatchWhen   = 1 // when with no case predicate: test truthiness
	CheckMatchCase   = 2 // pattern === target
	CheckMatchRescue = 3 // pattern must be an exception class or module
	CheckMatchArray  = 4 // bit: pattern is an array of alternatives
)

// throw types.
const (
	ThrowReturn = 1
	ThrowBreak  = 2
	ThrowNext   = 3
	ThrowRaise  = 6
)

// defined types.
const (
	DefinedNil = iota + 1
	DefinedIvar
	DefinedLocal
	DefinedGvar
	DefinedCvar
	DefinedConst
	DefinedMethod
	DefinedYield
	DefinedSelf
	DefinedTrue
	DefinedFalse
	DefinedAsgn
	DefinedExpr
)

// defineclass flags.
const (
	ClassTypeClass     = 0
	ClassTypeSingleton = 1
	ClassTypeModule    = 2
	ClassHasSuper      = 8
	ClassScoped        = 16
)

// getspecial keys and back-reference types. A type with the low bit set
// names a back reference by character ($& $` $' $+); otherwise type>>1 is
// the group number of $1..$n.
const (
	SpecialBackref = 1

	BackrefMatch     = '&'<<1 | 1
	BackrefPreMatch  = '`'<<1 | 1
	BackrefPostMatch = '\''<<1 | 1
	BackrefLastGroup = '+'<<1 | 1
)

// expandarray flags.
const (
	ExpandSplat = 1 // Leave the unassigned middle as an array for a splat target
)

// Instruction is one opcode plus its operand payload. Which operand fields
// are meaningful depends on Op; see the opcode comments.
type Instruction struct {
	Op     Opcode
	Object any    // putobject/putstring literal
	Name   string // variable, constant, method or keyword name
	Index  int    // local slot, keyword index or special-object type
	Level  int    // lexical depth of a local
	Count  int    // dupn/topn/setn/adjuststack/newarray/newhash/concatstrings/toregexp n; expandarray pre
	Post   int    // expandarray post count
	Flags  int    // per-opcode flags
	Call   *CallData
	Child  SeqID  // child sequence (block, method body, class body), NoSeq if none
	Label  *Label // branch target before finalize
	Target int    // branch target position after finalize
	Line   int
}

// Reads returns how many stack values the instruction pops.
func (in *Instruction) Reads() int {
	info := GetOpcodeInfo(in.Op)
	if info.Reads != Variable {
		return info.Reads
	}
	switch in.Op {
	case OpDupN, OpAdjustStack, OpNewArray, OpNewHash, OpConcatStrings, OpToRegexp:
		return in.Count
	case OpTopN, OpSetN:
		return in.Count + 1
	case OpSend, OpInvokeSuper:
		n := in.Call.Argc + 1
		if in.Call.Has(FlagArgsBlockArg) {
			n++
		}
		return n
	case OpInvokeBlock:
		return in.Call.Argc
	}
	return 0
}

// Writes returns how many stack values the instruction pushes.
func (in *Instruction) Writes() int {
	info := GetOpcodeInfo(in.Op)
	if info.Writes != Variable {
		return info.Writes
	}
	switch in.Op {
	case OpDupN:
		return in.Count * 2
	case OpTopN:
		return in.Count + 2
	case OpSetN:
		return in.Count + 1
	case OpExpandArray:
		n := in.Count + in.Post
		if in.Flags&ExpandSplat != 0 {
			n++
		}
		return n
	}
	return 0
}

// String renders the instruction in disassembly form.
func (in *Instruction) String() string {
	var b strings.Builder
	b.WriteString(in.Op.String())
	arg := func(format string, args ...any) {
		b.WriteByte(' ')
		fmt.Fprintf(&b, format, args...)
	}
	switch in.Op {
	case OpPutObject, OpPutString:
		arg("%s", inspectLiteral(in.Object))
	case OpPutSpecialObject, OpCheckKeyword:
		arg("%d", in.Index)
	case OpGetLocal, OpSetLocal:
		arg("%s@%d, %d", in.Name, in.Index, in.Level)
	case OpGetInstanceVariable, OpSetInstanceVariable, OpGetClassVariable,
		OpSetClassVariable, OpGetGlobal, OpSetGlobal, OpSetConstant:
		arg(":%s", in.Name)
	case OpGetConstant:
		arg(":%s, %d", in.Name, in.Flags)
	case OpDupN, OpTopN, OpSetN, OpAdjustStack, OpNewArray, OpNewHash, OpConcatStrings:
		arg("%d", in.Count)
	case OpToRegexp:
		arg("%q, %d", in.Name, in.Count)
	case OpNewRange, OpSplatArray, OpCheckMatch, OpThrow:
		arg("%d", in.Flags)
	case OpExpandArray:
		arg("%d, %d, %d", in.Count, in.Post, in.Flags)
	case OpJump, OpBranchIf, OpBranchUnless, OpBranchNil:
		if in.Label != nil {
			arg("%s", in.Label)
		} else {
			arg("%04d", in.Target)
		}
	case OpDefineMethod, OpDefineSMethod:
		arg(":%s, <seq %d>", in.Name, in.Child)
	case OpDefineClass:
		arg(":%s, <seq %d>, %d", in.Name, in.Child, in.Flags)
	case OpDefined:
		arg("%d, :%s", in.Index, in.Name)
	case OpGetSpecial:
		arg("%d, %d", in.Index, in.Flags)
	}
	if in.Call != nil {
		arg("<calldata!mid:%s, argc:%d", in.Call.Method, in.Call.Argc)
		if in.Call.Flags != 0 {
			fmt.Fprintf(&b, ", %s", in.Call.Flags)
		}
		if len(in.Call.KwArgs) > 0 {
			fmt.Fprintf(&b, ", kw:[%s]", strings.Join(in.Call.KwArgs, ","))
		}
		b.WriteByte('>')
		if (in.Op == OpSend || in.Op == OpInvokeSuper) && in.Child != NoSeq {
			fmt.Fprintf(&b, ", <seq %d>", in.Child)
		}
	}
	return b.String()
}

func inspectLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return fmt.Sprintf("%q", x)
	case Symbol:
		return ":" + string(x)
	case RegexpSource:
		return "/" + x.Source + "/" + x.Flags
	default:
		return fmt.Sprintf("%v", x)
	}
}
