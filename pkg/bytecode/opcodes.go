package bytecode

import "fmt"

// Opcode identifies a stack-machine instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop         Opcode = 0x00 // No operation
	OpPop         Opcode = 0x01 // Pop top of stack
	OpDup         Opcode = 0x02 // Duplicate top of stack
	OpDupN        Opcode = 0x03 // Duplicate the top n values: dupn <n>
	OpSwap        Opcode = 0x04 // Swap top two stack elements
	OpTopN        Opcode = 0x05 // Push a copy of the value n below the top: topn <n>
	OpSetN        Opcode = 0x06 // Store top into the slot n below the top: setn <n>
	OpAdjustStack Opcode = 0x07 // Drop n values: adjuststack <n>

	// ========================================================================
	// Put (0x10-0x1F)
	// ========================================================================

	OpPutNil           Opcode = 0x10 // Push nil
	OpPutSelf          Opcode = 0x11 // Push the frame's self
	OpPutObject        Opcode = 0x12 // Push a literal: putobject <object>
	OpPutObjectFix0    Opcode = 0x13 // Push integer 0
	OpPutObjectFix1    Opcode = 0x14 // Push integer 1
	OpPutString        Opcode = 0x15 // Push a fresh copy of a string literal
	OpPutSpecialObject Opcode = 0x16 // Push VMCore, cbase or const base: putspecialobject <type>

	// ========================================================================
	// Variables (0x20-0x2F)
	// ========================================================================

	OpGetLocal            Opcode = 0x20 // getlocal <index> <level>
	OpSetLocal            Opcode = 0x21 // setlocal <index> <level>
	OpGetInstanceVariable Opcode = 0x22 // getinstancevariable <name>
	OpSetInstanceVariable Opcode = 0x23 // setinstancevariable <name>
	OpGetClassVariable    Opcode = 0x24 // getclassvariable <name>
	OpSetClassVariable    Opcode = 0x25 // setclassvariable <name>
	OpGetGlobal           Opcode = 0x26 // getglobal <name>
	OpSetGlobal           Opcode = 0x27 // setglobal <name>
	OpGetConstant         Opcode = 0x28 // scope -> value: getconstant <name> <flags>
	OpSetConstant         Opcode = 0x29 // value cbase -> : setconstant <name>
	OpGetSpecial          Opcode = 0x2A // Last-match reference: getspecial <key> <type>

	// ========================================================================
	// Collections and strings (0x30-0x3F)
	// ========================================================================

	OpNewArray      Opcode = 0x30 // Pop n values into an array: newarray <n>
	OpNewHash       Opcode = 0x31 // Pop n values (key/value pairs) into a hash: newhash <n>
	OpNewRange      Opcode = 0x32 // low high -> range: newrange <exclude>
	OpSplatArray    Opcode = 0x33 // Convert top to an array: splatarray <dup>
	OpConcatArray   Opcode = 0x34 // a b -> a + b
	OpExpandArray   Opcode = 0x35 // Spread an array over targets: expandarray <pre> <post> <splat>
	OpConcatStrings Opcode = 0x36 // Pop n strings and join them: concatstrings <n>
	OpObjToString   Opcode = 0x37 // Convert top to a string via to_s
	OpToRegexp      Opcode = 0x38 // Pop n strings and compile a regexp: toregexp <flags> <n>

	// ========================================================================
	// Control flow (0x40-0x4F)
	// ========================================================================

	OpJump         Opcode = 0x40 // Unconditional jump: jump <label>
	OpBranchIf     Opcode = 0x41 // Pop, jump if truthy: branchif <label>
	OpBranchUnless Opcode = 0x42 // Pop, jump if falsy: branchunless <label>
	OpBranchNil    Opcode = 0x43 // Pop, jump if nil: branchnil <label>
	OpLeave        Opcode = 0x44 // Return top of stack from the frame
	OpThrow        Opcode = 0x45 // Raise, break, next or return: throw <type>

	// ========================================================================
	// Calls (0x50-0x5F)
	// ========================================================================

	OpSend        Opcode = 0x50 // Generic send: send <calldata> <block>
	OpInvokeSuper Opcode = 0x51 // Super call: invokesuper <calldata> <block>
	OpInvokeBlock Opcode = 0x52 // Yield to the frame's block: invokeblock <calldata>

	// ========================================================================
	// Specialized sends (0x60-0x6F) - fall back to generic dispatch
	// ========================================================================

	OpOptPlus  Opcode = 0x60 // a + b
	OpOptMinus Opcode = 0x61 // a - b
	OpOptMult  Opcode = 0x62 // a * b
	OpOptDiv   Opcode = 0x63 // a / b
	OpOptMod   Opcode = 0x64 // a % b
	OpOptLt    Opcode = 0x65 // a < b
	OpOptLe    Opcode = 0x66 // a <= b
	OpOptGt    Opcode = 0x67 // a > b
	OpOptGe    Opcode = 0x68 // a >= b
	OpOptEq    Opcode = 0x69 // a == b
	OpOptNeq   Opcode = 0x6A // a != b
	OpOptAref  Opcode = 0x6B // a[b]
	OpOptAset  Opcode = 0x6C // a[b] = c
	OpOptLtLt  Opcode = 0x6D // a << b

	// ========================================================================
	// Definitions (0x70-0x7F)
	// ========================================================================

	OpDefineMethod  Opcode = 0x70 // definemethod <name> <iseq>
	OpDefineSMethod Opcode = 0x71 // object -> : definesmethod <name> <iseq>
	OpDefineClass   Opcode = 0x72 // cbase super -> value: defineclass <name> <iseq> <flags>

	// ========================================================================
	// Checks (0x80-0x8F)
	// ========================================================================

	OpCheckMatch   Opcode = 0x80 // target pattern -> bool: checkmatch <type>
	OpCheckKeyword Opcode = 0x81 // Push whether keyword <index> was passed
	OpDefined      Opcode = 0x82 // object -> string|nil: defined <type> <name>
)

// Operand-dependent stack arity.
const Variable = -1

// OpcodeInfo describes one catalog entry.
type OpcodeInfo struct {
	Name          string // Disassembly name
	Reads         int    // Values popped (Variable = operand-dependent)
	Writes        int    // Values pushed (Variable = operand-dependent)
	Branches      bool   // Can transfer control to a label
	Leaves        bool   // Terminates the sequence's straight-line path
	Unconditional bool   // Never falls through to the next instruction
	SideEffects   bool   // Unsafe to drop even when the result is unused
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:         {Name: "nop"},
	OpPop:         {Name: "pop", Reads: 1},
	OpDup:         {Name: "dup", Reads: 1, Writes: 2},
	OpDupN:        {Name: "dupn", Reads: Variable, Writes: Variable},
	OpSwap:        {Name: "swap", Reads: 2, Writes: 2},
	OpTopN:        {Name: "topn", Reads: Variable, Writes: Variable},
	OpSetN:        {Name: "setn", Reads: Variable, Writes: Variable},
	OpAdjustStack: {Name: "adjuststack", Reads: Variable},

	// Put
	OpPutNil:           {Name: "putnil", Writes: 1},
	OpPutSelf:          {Name: "putself", Writes: 1},
	OpPutObject:        {Name: "putobject", Writes: 1},
	OpPutObjectFix0:    {Name: "putobject_INT2FIX_0_", Writes: 1},
	OpPutObjectFix1:    {Name: "putobject_INT2FIX_1_", Writes: 1},
	OpPutString:        {Name: "putstring", Writes: 1},
	OpPutSpecialObject: {Name: "putspecialobject", Writes: 1},

	// Variables
	OpGetLocal:            {Name: "getlocal", Writes: 1},
	OpSetLocal:            {Name: "setlocal", Reads: 1, SideEffects: true},
	OpGetInstanceVariable: {Name: "getinstancevariable", Writes: 1},
	OpSetInstanceVariable: {Name: "setinstancevariable", Reads: 1, SideEffects: true},
	OpGetClassVariable:    {Name: "getclassvariable", Writes: 1, SideEffects: true},
	OpSetClassVariable:    {Name: "setclassvariable", Reads: 1, SideEffects: true},
	OpGetGlobal:           {Name: "getglobal", Writes: 1},
	OpSetGlobal:           {Name: "setglobal", Reads: 1, SideEffects: true},
	OpGetConstant:         {Name: "getconstant", Reads: 1, Writes: 1, SideEffects: true},
	OpSetConstant:         {Name: "setconstant", Reads: 2, SideEffects: true},
	OpGetSpecial:          {Name: "getspecial", Writes: 1},

	// Collections and strings
	OpNewArray:      {Name: "newarray", Reads: Variable, Writes: 1},
	OpNewHash:       {Name: "newhash", Reads: Variable, Writes: 1},
	OpNewRange:      {Name: "newrange", Reads: 2, Writes: 1},
	OpSplatArray:    {Name: "splatarray", Reads: 1, Writes: 1, SideEffects: true},
	OpConcatArray:   {Name: "concatarray", Reads: 2, Writes: 1, SideEffects: true},
	OpExpandArray:   {Name: "expandarray", Reads: 1, Writes: Variable, SideEffects: true},
	OpConcatStrings: {Name: "concatstrings", Reads: Variable, Writes: 1},
	OpObjToString:   {Name: "objtostring", Reads: 1, Writes: 1, SideEffects: true},
	OpToRegexp:      {Name: "toregexp", Reads: Variable, Writes: 1, SideEffects: true},

	// Control flow
	OpJump:         {Name: "jump", Branches: true, Unconditional: true},
	OpBranchIf:     {Name: "branchif", Reads: 1, Branches: true},
	OpBranchUnless: {Name: "branchunless", Reads: 1, Branches: true},
	OpBranchNil:    {Name: "branchnil", Reads: 1, Branches: true},
	OpLeave:        {Name: "leave", Reads: 1, Leaves: true, Unconditional: true, SideEffects: true},
	OpThrow:        {Name: "throw", Reads: 1, Leaves: true, Unconditional: true, SideEffects: true},

	// Calls
	OpSend:        {Name: "send", Reads: Variable, Writes: 1, SideEffects: true},
	OpInvokeSuper: {Name: "invokesuper", Reads: Variable, Writes: 1, SideEffects: true},
	OpInvokeBlock: {Name: "invokeblock", Reads: Variable, Writes: 1, SideEffects: true},

	// Specialized sends
	OpOptPlus:  {Name: "opt_plus", Reads: 2, Writes: 1, SideEffects: true},
	OpOptMinus: {Name: "opt_minus", Reads: 2, Writes: 1, SideEffects: true},
	OpOptMult:  {Name: "opt_mult", Reads: 2, Writes: 1, SideEffects: true},
	OpOptDiv:   {Name: "opt_div", Reads: 2, Writes: 1, SideEffects: true},
	OpOptMod:   {Name: "opt_mod", Reads: 2, Writes: 1, SideEffects: true},
	OpOptLt:    {Name: "opt_lt", Reads: 2, Writes: 1, SideEffects: true},
	OpOptLe:    {Name: "opt_le", Reads: 2, Writes: 1, SideEffects: true},
	OpOptGt:    {Name: "opt_gt", Reads: 2, Writes: 1, SideEffects: true},
	OpOptGe:    {Name: "opt_ge", Reads: 2, Writes: 1, SideEffects: true},
	OpOptEq:    {Name: "opt_eq", Reads: 2, Writes: 1, SideEffects: true},
	OpOptNeq:   {Name: "opt_neq", Reads: 2, Writes: 1, SideEffects: true},
	OpOptAref:  {Name: "opt_aref", Reads: 2, Writes: 1, SideEffects: true},
	OpOptAset:  {Name: "opt_aset", Reads: 3, Writes: 1, SideEffects: true},
	OpOptLtLt:  {Name: "opt_ltlt", Reads: 2, Writes: 1, SideEffects: true},

	// Definitions
	OpDefineMethod:  {Name: "definemethod", SideEffects: true},
	OpDefineSMethod: {Name: "definesmethod", Reads: 1, SideEffects: true},
	OpDefineClass:   {Name: "defineclass", Reads: 2, Writes: 1, SideEffects: true},

	// Checks
	OpCheckMatch:   {Name: "checkmatch", Reads: 2, Writes: 1, SideEffects: true},
	OpCheckKeyword: {Name: "checkkeyword", Writes: 1},
	OpDefined:      {Name: "defined", Reads: 1, Writes: 1, SideEffects: true},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// Valid reports whether op is in the catalog.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the disassembly name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsBranch returns true if this opcode can jump to a label.
func (op Opcode) IsBranch() bool {
	return GetOpcodeInfo(op).Branches
}

// IsConditional returns true for branches that may also fall through.
func (op Opcode) IsConditional() bool {
	return op >= OpBranchIf && op <= OpBranchNil
}

// IsTerminal returns true if this opcode ends a straight-line path.
func (op Opcode) IsTerminal() bool {
	return GetOpcodeInfo(op).Leaves
}

// IsUnconditional returns true if execution never continues at the next
// instruction.
func (op Opcode) IsUnconditional() bool {
	return GetOpcodeInfo(op).Unconditional
}

// IsSend returns true if this opcode dispatches a method call.
func (op Opcode) IsSend() bool {
	return op == OpSend || op == OpInvokeSuper || op == OpInvokeBlock || op.IsSpecializedSend()
}

// IsSpecializedSend returns true for the opt_* family.
func (op Opcode) IsSpecializedSend() bool {
	return op >= OpOptPlus && op <= OpOptLtLt
}

// HasSideEffects returns true if the instruction must not be removed even
// when its result is discarded.
func (op Opcode) HasSideEffects() bool {
	return GetOpcodeInfo(op).SideEffects
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}

// specializedSends maps operator names to their opt_* instruction and the
// argument count the fast path handles.
var specializedSends = map[string]struct {
	op   Opcode
	argc int
}{
	"+":   {OpOptPlus, 1},
	"-":   {OpOptMinus, 1},
	"*":   {OpOptMult, 1},
	"/":   {OpOptDiv, 1},
	"%":   {OpOptMod, 1},
	"<":   {OpOptLt, 1},
	"<=":  {OpOptLe, 1},
	">":   {OpOptGt, 1},
	">=":  {OpOptGe, 1},
	"==":  {OpOptEq, 1},
	"!=":  {OpOptNeq, 1},
	"[]":  {OpOptAref, 1},
	"[]=": {OpOptAset, 2},
	"<<":  {OpOptLtLt, 1},
}
