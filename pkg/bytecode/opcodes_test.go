package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	// Ensure every defined opcode has metadata
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", op)
		}
	}
}

func TestOpcodeCount(t *testing.T) {
	if count := OpcodeCount(); count < 60 {
		t.Errorf("Expected at least 60 opcodes, got %d", count)
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "nop"},
		{OpPutObjectFix1, "putobject_INT2FIX_1_"},
		{OpGetLocal, "getlocal"},
		{OpBranchUnless, "branchunless"},
		{OpSend, "send"},
		{OpOptPlus, "opt_plus"},
		{OpLeave, "leave"},
		{OpDefineClass, "defineclass"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	op := Opcode(0xEE) // Not defined
	if got := op.String(); !strings.HasPrefix(got, "UNKNOWN") {
		t.Errorf("Unknown opcode should return UNKNOWN, got %q", got)
	}
	if op.Valid() {
		t.Error("0xEE should not be valid")
	}
}

func TestOpcodeControlFlags(t *testing.T) {
	tests := []struct {
		op            Opcode
		branch        bool
		terminal      bool
		unconditional bool
	}{
		{OpJump, true, false, true},
		{OpBranchIf, true, false, false},
		{OpBranchUnless, true, false, false},
		{OpBranchNil, true, false, false},
		{OpLeave, false, true, true},
		{OpThrow, false, true, true},
		{OpSend, false, false, false},
		{OpPop, false, false, false},
	}

	for _, tt := range tests {
		if got := tt.op.IsBranch(); got != tt.branch {
			t.Errorf("%s.IsBranch() = %v, want %v", tt.op, got, tt.branch)
		}
		if got := tt.op.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.op, got, tt.terminal)
		}
		if got := tt.op.IsUnconditional(); got != tt.unconditional {
			t.Errorf("%s.IsUnconditional() = %v, want %v", tt.op, got, tt.unconditional)
		}
	}
}

func TestOpcodeSideEffects(t *testing.T) {
	pure := []Opcode{OpPutNil, OpPutObject, OpDup, OpGetLocal, OpNewArray}
	for _, op := range pure {
		if op.HasSideEffects() {
			t.Errorf("%s.HasSideEffects() = true, want false", op)
		}
	}
	effectful := []Opcode{OpSend, OpSetLocal, OpLeave, OpDefineMethod, OpOptPlus}
	for _, op := range effectful {
		if !op.HasSideEffects() {
			t.Errorf("%s.HasSideEffects() = false, want true", op)
		}
	}
}

func TestInstructionArity(t *testing.T) {
	calls := NewCallDataTable()
	tests := []struct {
		name   string
		in     Instruction
		reads  int
		writes int
	}{
		{"pop", Instruction{Op: OpPop}, 1, 0},
		{"dup", Instruction{Op: OpDup}, 1, 2},
		{"dupn 2", Instruction{Op: OpDupN, Count: 2}, 2, 4},
		{"topn 1", Instruction{Op: OpTopN, Count: 1}, 2, 3},
		{"setn 2", Instruction{Op: OpSetN, Count: 2}, 3, 3},
		{"adjuststack 3", Instruction{Op: OpAdjustStack, Count: 3}, 3, 0},
		{"newarray 3", Instruction{Op: OpNewArray, Count: 3}, 3, 1},
		{"newhash 4", Instruction{Op: OpNewHash, Count: 4}, 4, 1},
		{"expandarray 2 1", Instruction{Op: OpExpandArray, Count: 2, Post: 1}, 1, 3},
		{"expandarray splat", Instruction{Op: OpExpandArray, Count: 1, Flags: ExpandSplat}, 1, 2},
		{"send argc 2", Instruction{Op: OpSend, Call: calls.Intern("foo", 2, FlagArgsSimple, nil)}, 3, 1},
		{"send blockarg", Instruction{Op: OpSend, Call: calls.Intern("foo", 1, FlagArgsBlockArg, nil)}, 3, 1},
		{"invokeblock argc 2", Instruction{Op: OpInvokeBlock, Call: calls.Intern("yield", 2, FlagArgsSimple, nil)}, 2, 1},
		{"setconstant", Instruction{Op: OpSetConstant, Name: "A"}, 2, 0},
		{"defineclass", Instruction{Op: OpDefineClass, Name: "A"}, 2, 1},
		{"leave", Instruction{Op: OpLeave}, 1, 0},
	}

	for _, tt := range tests {
		if got := tt.in.Reads(); got != tt.reads {
			t.Errorf("%s: Reads() = %d, want %d", tt.name, got, tt.reads)
		}
		if got := tt.in.Writes(); got != tt.writes {
			t.Errorf("%s: Writes() = %d, want %d", tt.name, got, tt.writes)
		}
	}
}

func TestCallDataInterning(t *testing.T) {
	table := NewCallDataTable()

	a := table.Intern("puts", 1, FlagFCall|FlagArgsSimple, nil)
	b := table.Intern("puts", 1, FlagFCall|FlagArgsSimple, nil)
	if a != b {
		t.Error("equal call sites should share one descriptor")
	}

	c := table.Intern("puts", 2, FlagFCall|FlagArgsSimple, nil)
	if a == c {
		t.Error("different argc should produce a different descriptor")
	}

	k1 := table.Intern("f", 2, FlagKwArg, []string{"a", "b"})
	k2 := table.Intern("f", 2, FlagKwArg, []string{"a", "b"})
	k3 := table.Intern("f", 2, FlagKwArg, []string{"b", "a"})
	if k1 != k2 {
		t.Error("equal keyword lists should share one descriptor")
	}
	if k1 == k3 {
		t.Error("keyword order is part of the descriptor")
	}
	if k1.Positional() != 0 {
		t.Errorf("Positional() = %d, want 0", k1.Positional())
	}

	if table.Len() != 4 {
		t.Errorf("Len() = %d, want 4", table.Len())
	}
	if table.At(table.ID(c)) != c {
		t.Error("At(ID(c)) should return c")
	}
	if table.ID(&CallData{Method: "puts"}) != -1 {
		t.Error("foreign descriptor should have ID -1")
	}
}

func TestCallFlagString(t *testing.T) {
	f := FlagFCall | FlagArgsSimple
	if got := f.String(); got != "FCALL|ARGS_SIMPLE" {
		t.Errorf("String() = %q", got)
	}
}
