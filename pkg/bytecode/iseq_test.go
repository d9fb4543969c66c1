package bytecode

import (
	"testing"

	"github.com/joomcode/errorx"
)

func newTop(opts Options) *InstructionSequence {
	u := NewUnit(opts, nil)
	return u.New(KindTop, "<main>", 1, NoSeq)
}

func noPeephole() Options {
	opts := DefaultOptions()
	opts.PeepholeOptimization = false
	return opts
}

func ops(s *InstructionSequence) []Opcode {
	out := make([]Opcode, len(s.Insns))
	for i, in := range s.Insns {
		out[i] = in.Op
	}
	return out
}

func sameOps(t *testing.T, got, want []Opcode) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFinalizeResolvesLabels(t *testing.T) {
	s := newTop(noPeephole())
	elseL := s.Label()
	done := s.Label()

	s.PutObject(true)
	s.BranchUnless(elseL)
	s.PutObject(int64(10))
	s.Jump(done)
	s.Push(elseL)
	s.PutObject(int64(20))
	s.Push(done)
	s.Leave()

	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !s.Frozen() {
		t.Fatal("sequence should be frozen")
	}
	if got := s.Insns[1].Target; got != 4 {
		t.Errorf("branchunless target = %d, want 4", got)
	}
	if got := s.Insns[3].Target; got != 5 {
		t.Errorf("jump target = %d, want 5", got)
	}
	if pos, ok := done.Position(); !ok || pos != 5 {
		t.Errorf("done.Position() = %d, %v", pos, ok)
	}
	if s.StackMax != 1 {
		t.Errorf("StackMax = %d, want 1", s.StackMax)
	}
}

func TestFinalizeUnboundLabel(t *testing.T) {
	s := newTop(DefaultOptions())
	dangling := s.Label()
	s.PutNil()
	s.BranchIf(dangling)
	s.PutNil()
	s.Leave()

	err := s.Finalize()
	if !errorx.IsOfType(err, ErrUnboundLabel) {
		t.Fatalf("expected unbound label error, got %v", err)
	}
	if s.Frozen() {
		t.Error("failed Finalize must not freeze")
	}
}

func TestFinalizeUnreferencedUnboundLabelIsFine(t *testing.T) {
	s := newTop(DefaultOptions())
	_ = s.Label()
	s.PutNil()
	s.Leave()
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestFinalizeLabelPastEnd(t *testing.T) {
	s := newTop(noPeephole())
	end := s.Label()
	s.Jump(end)
	s.Push(end)

	if err := s.Finalize(); !errorx.IsOfType(err, ErrUnboundLabel) {
		t.Fatalf("expected label error, got %v", err)
	}
}

func TestFinalizeMissingTerminal(t *testing.T) {
	s := newTop(DefaultOptions())
	s.PutNil()
	s.Pop()

	if err := s.Finalize(); !errorx.IsOfType(err, ErrMissingTerminal) {
		t.Fatalf("expected missing terminal, got %v", err)
	}

	empty := newTop(DefaultOptions())
	if err := empty.Finalize(); !errorx.IsOfType(err, ErrMissingTerminal) {
		t.Fatalf("empty sequence: expected missing terminal, got %v", err)
	}
}

func TestFinalizeFallOffEndThroughBranch(t *testing.T) {
	s := newTop(noPeephole())
	l := s.Label()
	s.PutNil()
	s.BranchIf(l)
	s.PutNil()
	s.Push(l)
	s.Leave()
	// The branch path reaches leave with 0 values, the fallthrough with 1.
	if err := s.Finalize(); !errorx.IsOfType(err, ErrStackDepth) {
		t.Fatalf("expected stack depth error, got %v", err)
	}
}

func TestFinalizeStackUnderflow(t *testing.T) {
	s := newTop(DefaultOptions())
	s.Pop()
	s.PutNil()
	s.Leave()

	if err := s.Finalize(); !errorx.IsOfType(err, ErrStackDepth) {
		t.Fatalf("expected stack depth error, got %v", err)
	}
}

func TestFinalizeLeaveDepth(t *testing.T) {
	s := newTop(DefaultOptions())
	s.PutNil()
	s.PutNil()
	s.Leave()

	if err := s.Finalize(); !errorx.IsOfType(err, ErrStackDepth) {
		t.Fatalf("expected stack depth error, got %v", err)
	}
}

func TestFinalizeSkipVerify(t *testing.T) {
	s := newTop(DefaultOptions())
	s.Unit().SkipVerify = true
	s.PutNil()
	s.PutNil()
	s.Leave()

	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize with SkipVerify: %v", err)
	}
}

func TestFinalizeTwice(t *testing.T) {
	s := newTop(DefaultOptions())
	s.PutNil()
	s.Leave()
	if err := s.Finalize(); err != nil {
		t.Fatal(err)
	}
	if err := s.Finalize(); !errorx.IsOfType(err, ErrMisuse) {
		t.Fatalf("expected misuse, got %v", err)
	}
}

func TestEmitAfterFinalizePanics(t *testing.T) {
	s := newTop(DefaultOptions())
	s.PutNil()
	s.Leave()
	if err := s.Finalize(); err != nil {
		t.Fatal(err)
	}

	defer func() {
		r := recover()
		err, ok := errorx.ErrorFromPanic(r)
		if !ok || !errorx.IsOfType(err, ErrMisuse) {
			t.Fatalf("expected misuse panic, got %v", r)
		}
	}()
	s.PutNil()
}

func TestPushTwicePanics(t *testing.T) {
	s := newTop(DefaultOptions())
	l := s.Label()
	s.Push(l)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic")
		}
	}()
	s.Push(l)
}

func TestPeepholeJumpToNext(t *testing.T) {
	s := newTop(DefaultOptions())
	next := s.Label()
	s.PutNil()
	s.Jump(next)
	s.Push(next)
	s.Leave()

	if err := s.Finalize(); err != nil {
		t.Fatal(err)
	}
	sameOps(t, ops(s), []Opcode{OpPutNil, OpLeave})
}

func TestPeepholeJumpToLeave(t *testing.T) {
	s := newTop(DefaultOptions())
	elseL := s.Label()
	done := s.Label()
	s.PutObject(true)
	s.BranchUnless(elseL)
	s.PutObject(int64(2))
	s.Jump(done)
	s.Push(elseL)
	s.PutObject(int64(3))
	s.Push(done)
	s.Leave()

	if err := s.Finalize(); err != nil {
		t.Fatal(err)
	}
	sameOps(t, ops(s), []Opcode{OpPutObject, OpBranchUnless, OpPutObject, OpLeave, OpPutObject, OpLeave})
	if s.Insns[1].Target != 4 {
		t.Errorf("branchunless target = %d, want 4", s.Insns[1].Target)
	}
}

func TestPeepholeDisabled(t *testing.T) {
	s := newTop(noPeephole())
	next := s.Label()
	s.PutNil()
	s.Jump(next)
	s.Push(next)
	s.Leave()

	if err := s.Finalize(); err != nil {
		t.Fatal(err)
	}
	sameOps(t, ops(s), []Opcode{OpPutNil, OpJump, OpLeave})
}

func TestOperandsUnification(t *testing.T) {
	s := newTop(DefaultOptions())
	s.PutObject(int64(0))
	s.PutObject(int64(1))
	s.PutObject(int64(2))
	s.AdjustStack(2)
	s.Leave()
	if err := s.Finalize(); err != nil {
		t.Fatal(err)
	}
	sameOps(t, ops(s), []Opcode{OpPutObjectFix0, OpPutObjectFix1, OpPutObject, OpAdjustStack, OpLeave})

	plain := newTop(Options{})
	plain.PutObject(int64(1))
	plain.Leave()
	if err := plain.Finalize(); err != nil {
		t.Fatal(err)
	}
	sameOps(t, ops(plain), []Opcode{OpPutObject, OpLeave})
}

func TestSpecializedSend(t *testing.T) {
	s := newTop(DefaultOptions())
	calls := s.Unit().Calls
	s.PutObject(int64(2))
	s.PutObject(int64(3))
	s.Send(calls.Intern("+", 1, FlagArgsSimple, nil), NoSeq)
	s.PutSelf()
	s.PutObject(int64(3))
	s.Send(calls.Intern("+", 1, FlagFCall|FlagArgsSimple, nil), NoSeq)
	s.AdjustStack(1)
	s.Leave()
	if err := s.Finalize(); err != nil {
		t.Fatal(err)
	}
	if s.Insns[2].Op != OpOptPlus {
		t.Errorf("explicit receiver: got %s, want opt_plus", s.Insns[2].Op)
	}
	if s.Insns[5].Op != OpSend {
		t.Errorf("fcall: got %s, want send", s.Insns[5].Op)
	}
}

func TestChildMustFinalizeFirst(t *testing.T) {
	u := NewUnit(DefaultOptions(), nil)
	top := u.New(KindTop, "<main>", 1, NoSeq)
	method := u.New(KindMethod, "foo", 1, top.ID)
	method.PutNil()
	method.Leave()

	top.DefineMethod("foo", method.ID)
	top.PutObject(Symbol("foo"))
	top.Leave()

	if err := top.Finalize(); !errorx.IsOfType(err, ErrMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
	if err := method.Finalize(); err != nil {
		t.Fatal(err)
	}
	if err := top.Finalize(); err != nil {
		t.Fatal(err)
	}
	if kids := top.Children(); len(kids) != 1 || kids[0] != method {
		t.Errorf("Children() = %v", kids)
	}
	if method.Parent() != top {
		t.Error("Parent() should be top")
	}
	if u.Root() != top {
		t.Error("Root() should be top")
	}
}

func TestResolveLocals(t *testing.T) {
	u := NewUnit(DefaultOptions(), nil)
	method := u.New(KindMethod, "m", 1, NoSeq)
	method.Locals.Plain("x")
	method.Locals.Plain("y")
	block := u.New(KindBlock, "block in m", 2, method.ID)
	block.Locals.Plain("x")

	ref, err := block.Resolve("x", 0)
	if err != nil || ref != (LocalRef{Index: 0, Level: 0}) {
		t.Errorf("x@0 = %+v, %v", ref, err)
	}
	ref, err = block.Resolve("y", 1)
	if err != nil || ref != (LocalRef{Index: 1, Level: 1}) {
		t.Errorf("y@1 = %+v, %v", ref, err)
	}
	ref, err = block.Resolve("x", 1)
	if err != nil || ref != (LocalRef{Index: 0, Level: 1}) {
		t.Errorf("outer x = %+v, %v", ref, err)
	}
	if _, err := block.Resolve("y", 2); !errorx.IsOfType(err, ErrUnresolvedLocal) {
		t.Errorf("depth past root: %v", err)
	}
	if _, err := block.Resolve("z", 0); !errorx.IsOfType(err, ErrUnresolvedLocal) {
		t.Errorf("unknown name: %v", err)
	}
}

func TestLocalTable(t *testing.T) {
	tbl := NewLocalTable()
	if tbl.Plain("a") != 0 || tbl.Plain("b") != 1 || tbl.Plain("a") != 0 {
		t.Fatal("Plain should assign slots in order and be idempotent")
	}
	if slot := tbl.Anonymous("for"); slot != 2 {
		t.Errorf("Anonymous slot = %d, want 2", slot)
	}
	if _, ok := tbl.Find("#for"); ok {
		t.Error("anonymous slot must not be findable")
	}
	if tbl.Size() != 3 || tbl.Name(1) != "b" {
		t.Errorf("Size() = %d, Name(1) = %q", tbl.Size(), tbl.Name(1))
	}
}

func TestOptTableAndCatchDepth(t *testing.T) {
	u := NewUnit(noPeephole(), nil)
	s := u.New(KindMethod, "m", 1, NoSeq)
	s.Locals.Plain("a")
	s.Args.Lead = 0
	s.Args.Opt = 1

	o0, o1 := s.Label(), s.Label()
	s.AddOptLabel(o0)
	s.AddOptLabel(o1)
	s.Push(o0)
	s.PutObject(int64(5))
	s.SetLocal("a", LocalRef{})
	s.Push(o1)

	start, end, handler, done := s.Label(), s.Label(), s.Label(), s.Label()
	s.PutSelf()
	s.Push(start)
	s.GetLocal("a", LocalRef{})
	s.Push(end)
	s.Jump(done)
	s.Push(handler)
	s.Pop()
	s.PutNil()
	s.Push(done)
	s.Swap()
	s.Pop()
	s.Leave()
	s.AddCatch(CatchRescue, start, end, handler)

	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if got := s.Args.OptTable(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("OptTable() = %v, want [0 2]", got)
	}
	c := s.Catch[0]
	if c.Start != 3 || c.End != 4 || c.Cont != 5 {
		t.Errorf("catch range = [%d,%d) -> %d", c.Start, c.End, c.Cont)
	}
	if c.Depth != 1 {
		t.Errorf("catch depth = %d, want 1", c.Depth)
	}
	if !c.Covers(3) || c.Covers(4) {
		t.Error("Covers should be half-open")
	}
}
