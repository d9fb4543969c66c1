package vm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/joomcode/errorx"

	"github.com/chazu/rbvm/ast"
	"github.com/chazu/rbvm/compiler"
	"github.com/chazu/rbvm/pkg/bytecode"
)

func compile(t *testing.T, prog *ast.ProgramNode, opts compiler.Options) *bytecode.Unit {
	t.Helper()
	unit, err := compiler.Compile(prog, opts)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return unit
}

// exec compiles and runs prog, returning the result, captured output and
// run error.
func exec(t *testing.T, prog *ast.ProgramNode, opts Options) (Value, string, error) {
	t.Helper()
	unit := compile(t, prog, compiler.DefaultOptions())
	var out bytes.Buffer
	opts.Stdout = &out
	v, err := New(opts).RunUnit(unit)
	return v, out.String(), err
}

func run(t *testing.T, prog *ast.ProgramNode) (Value, string) {
	t.Helper()
	v, out, err := exec(t, prog, DefaultOptions())
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	return v, out
}

func runErr(t *testing.T, prog *ast.ProgramNode) error {
	t.Helper()
	_, _, err := exec(t, prog, DefaultOptions())
	if err == nil {
		t.Fatal("expected run error")
	}
	return err
}

func expectRaise(t *testing.T, prog *ast.ProgramNode, class string) *ProgramError {
	t.Helper()
	err := runErr(t, prog)
	var pe *ProgramError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want program error %s", err, class)
	}
	if pe.ClassName() != class {
		t.Errorf("raised %s (%s), want %s", pe.ClassName(), pe.Message(), class)
	}
	return pe
}

func withBlock(call *ast.CallNode, blk *ast.BlockNode) *ast.CallNode {
	call.Block = blk
	return call
}

func ret(v ast.Node) *ast.ReturnNode { return &ast.ReturnNode{Arguments: ast.Args(v)} }

func brk(v ast.Node) *ast.BreakNode { return &ast.BreakNode{Arguments: ast.Args(v)} }

func ivarSet(name string, v ast.Node) *ast.InstanceVariableWriteNode {
	return &ast.InstanceVariableWriteNode{Name: name, Value: v}
}

func ivar(name string) *ast.InstanceVariableReadNode {
	return &ast.InstanceVariableReadNode{Name: name}
}

func class(name string, super ast.Node, body ...ast.Node) *ast.ClassNode {
	return &ast.ClassNode{ConstantPath: ast.Const(name), Superclass: super, Body: ast.Stmts(body...)}
}

func TestInterpreterArithmetic(t *testing.T) {
	v, _ := run(t, ast.Program(nil,
		ast.Op(ast.Op(ast.Int(1), "+", ast.Int(2)), "*", ast.Int(4))))
	if v != int64(12) {
		t.Errorf("(1 + 2) * 4 = %v, want 12", v)
	}

	v, _ = run(t, ast.Program(nil, ast.Op(ast.Int(-7), "/", ast.Int(2))))
	if v != int64(-4) {
		t.Errorf("-7 / 2 = %v, want -4", v)
	}

	v, _ = run(t, ast.Program(nil, ast.Op(ast.Int(1), "+", ast.Float(0.5))))
	if v != 1.5 {
		t.Errorf("1 + 0.5 = %v, want 1.5", v)
	}
}

func TestInterpreterSmallPrograms(t *testing.T) {
	tests := []struct {
		name string
		prog *ast.ProgramNode
		want Value
	}{
		{"addition", ast.Program(nil, ast.Op(ast.Int(1), "+", ast.Int(2))), int64(3)},
		{"local round trip", ast.Program([]string{"x"}, ast.Assign("x", ast.Int(1)), ast.Local("x")), int64(1)},
		{"if else", ast.Program(nil, ast.If(ast.True(), []ast.Node{ast.Int(1)}, []ast.Node{ast.Int(2)})), int64(1)},
		{"if else false", ast.Program(nil, ast.If(ast.False(), []ast.Node{ast.Int(1)}, []ast.Node{ast.Int(2)})), int64(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if v, _ := run(t, tt.prog); v != tt.want {
				t.Errorf("got %v, want %v", v, tt.want)
			}
		})
	}
}

func TestInterpreterWhileLoop(t *testing.T) {
	prog := ast.Program([]string{"sum", "i"},
		ast.Assign("sum", ast.Int(0)),
		ast.Assign("i", ast.Int(0)),
		ast.While(ast.Op(ast.Local("i"), "<", ast.Int(5)),
			ast.Assign("sum", ast.Op(ast.Local("sum"), "+", ast.Local("i"))),
			ast.Assign("i", ast.Op(ast.Local("i"), "+", ast.Int(1))),
		),
		ast.Local("sum"),
	)
	v, _ := run(t, prog)
	if v != int64(10) {
		t.Errorf("sum = %v, want 10", v)
	}
}

func TestInterpreterWhileBreakValue(t *testing.T) {
	prog := ast.Program([]string{"x"},
		ast.Assign("x", ast.While(ast.True(), brk(ast.Int(7)))),
		ast.Local("x"),
	)
	v, _ := run(t, prog)
	if v != int64(7) {
		t.Errorf("x = %v, want 7", v)
	}
}

func TestInterpreterLoopJumpsInsideExpressions(t *testing.T) {
	inArray := func(jump ast.Node) ast.Node {
		return ast.Array(ast.Int(1), ast.If(ast.Local("go"), []ast.Node{jump}, []ast.Node{ast.Int(2)}))
	}

	prog := ast.Program([]string{"x", "a", "go"},
		ast.Assign("go", ast.True()),
		ast.Assign("x", ast.While(ast.True(), ast.Assign("a", inArray(brk(ast.Int(5)))))),
		ast.Local("x"),
	)
	v, _ := run(t, prog)
	if v != int64(5) {
		t.Errorf("x = %v, want 5", v)
	}

	// Skips the array on odd i, so only even i reach n.
	i := func() ast.Node { return ast.Local("i") }
	prog = ast.Program([]string{"i", "n", "a", "go"},
		ast.Assign("i", ast.Int(0)),
		ast.Assign("n", ast.Int(0)),
		ast.While(ast.Op(i(), "<", ast.Int(6)),
			ast.Assign("i", ast.Op(i(), "+", ast.Int(1))),
			ast.Assign("go", ast.Op(ast.Op(i(), "%", ast.Int(2)), "==", ast.Int(1))),
			ast.Assign("a", inArray(&ast.NextNode{})),
			ast.Assign("n", ast.Op(ast.Local("n"), "+", i())),
		),
		ast.Local("n"),
	)
	v, _ = run(t, prog)
	if v != int64(12) {
		t.Errorf("n = %v, want 12", v)
	}
}

func TestInterpreterShortCircuit(t *testing.T) {
	prog := ast.Program(nil,
		&ast.AndNode{Left: ast.False(), Right: ast.FCall("puts", ast.Str("and"))},
		&ast.OrNode{Left: ast.Int(1), Right: ast.FCall("puts", ast.Str("or"))},
	)
	v, out := run(t, prog)
	if out != "" {
		t.Errorf("short circuit evaluated the right operand: %q", out)
	}
	if v != int64(1) {
		t.Errorf("1 || ... = %v, want 1", v)
	}
}

func TestInterpreterClosureWritesOuterLocal(t *testing.T) {
	prog := ast.Program([]string{"x"},
		ast.Assign("x", ast.Int(10)),
		withBlock(ast.Call(ast.Array(ast.Int(1), ast.Int(2), ast.Int(3)), "each"),
			ast.Block([]string{"y"}, nil,
				&ast.LocalVariableWriteNode{Name: "x", Depth: 1,
					Value: ast.Op(ast.OuterLocal("x", 1), "+", ast.Local("y"))})),
		ast.Local("x"),
	)
	v, _ := run(t, prog)
	if v != int64(16) {
		t.Errorf("x = %v, want 16", v)
	}
}

func TestInterpreterClosureInsideMethod(t *testing.T) {
	prog := ast.Program(nil,
		ast.Def("m", nil, []string{"v"},
			ast.Assign("v", ast.Int(1)),
			withBlock(ast.Call(ast.Array(ast.Int(1)), "each"),
				ast.Block(nil, nil,
					&ast.LocalVariableWriteNode{Name: "v", Depth: 1,
						Value: ast.Op(ast.OuterLocal("v", 1), "+", ast.Int(10))})),
			ast.Local("v")),
		ast.FCall("m"),
	)
	v, _ := run(t, prog)
	if v != int64(11) {
		t.Errorf("m = %v, want 11", v)
	}
}

func TestInterpreterBlockBreak(t *testing.T) {
	prog := ast.Program(nil,
		withBlock(ast.Call(ast.Array(ast.Int(1), ast.Int(2), ast.Int(3)), "each"),
			ast.Block([]string{"y"}, nil,
				ast.If(ast.Op(ast.Local("y"), "==", ast.Int(2)),
					[]ast.Node{brk(ast.Op(ast.Local("y"), "*", ast.Int(10)))}, nil))),
	)
	v, _ := run(t, prog)
	if v != int64(20) {
		t.Errorf("break value = %v, want 20", v)
	}
}

func TestInterpreterBlockNext(t *testing.T) {
	prog := ast.Program(nil,
		withBlock(ast.Call(ast.Array(ast.Int(1), ast.Int(2), ast.Int(3)), "map"),
			ast.Block([]string{"y"}, nil,
				ast.If(ast.Op(ast.Local("y"), "==", ast.Int(2)),
					[]ast.Node{&ast.NextNode{Arguments: ast.Args(ast.Int(0))}}, nil),
				ast.Local("y"))),
	)
	v, _ := run(t, prog)
	arr, ok := v.(*Array)
	if !ok {
		t.Fatalf("map returned %T, want *Array", v)
	}
	if diff := cmp.Diff([]Value{int64(1), int64(0), int64(3)}, arr.Elems); diff != "" {
		t.Errorf("map result mismatch (-want +got):\n%s", diff)
	}
}

func TestInterpreterReturnFromBlock(t *testing.T) {
	prog := ast.Program(nil,
		ast.Def("find", ast.Required("a"), []string{"a"},
			withBlock(ast.Call(ast.Local("a"), "each"),
				ast.Block([]string{"x"}, nil,
					ast.If(ast.Op(ast.Local("x"), ">", ast.Int(1)), []ast.Node{ret(ast.Local("x"))}, nil))),
			ast.Nil()),
		ast.FCall("find", ast.Array(ast.Int(1), ast.Int(2), ast.Int(3))),
	)
	v, _ := run(t, prog)
	if v != int64(2) {
		t.Errorf("find = %v, want 2", v)
	}
}

func TestInterpreterEnsureRunsOnReturn(t *testing.T) {
	prog := ast.Program(nil,
		ast.Def("f", nil, nil,
			&ast.BeginNode{
				Statements:   ast.Stmts(ret(ast.Int(1))),
				EnsureClause: &ast.EnsureNode{Statements: ast.Stmts(ast.FCall("puts", ast.Str("ensure")))},
			}),
		ast.FCall("f"),
	)
	v, out := run(t, prog)
	if v != int64(1) {
		t.Errorf("f = %v, want 1", v)
	}
	if out != "ensure\n" {
		t.Errorf("output = %q, want %q", out, "ensure\n")
	}
}

func TestInterpreterRescue(t *testing.T) {
	prog := ast.Program([]string{"e"},
		&ast.BeginNode{
			Statements: ast.Stmts(ast.Op(ast.Int(1), "/", ast.Int(0))),
			RescueClause: &ast.RescueNode{
				Exceptions: []ast.Node{ast.Const("ZeroDivisionError")},
				Reference:  ast.Target("e"),
				Statements: ast.Stmts(ast.Call(ast.Local("e"), "message")),
			},
		},
	)
	v, _ := run(t, prog)
	if v != "divided by 0" {
		t.Errorf("rescued message = %v, want %q", v, "divided by 0")
	}
}

func TestInterpreterRescueSkipsUnmatchedClass(t *testing.T) {
	prog := ast.Program(nil,
		&ast.BeginNode{
			Statements: ast.Stmts(ast.Call(ast.Int(1), "frobnicate")),
			RescueClause: &ast.RescueNode{
				Exceptions: []ast.Node{ast.Const("ZeroDivisionError")},
				Statements: ast.Stmts(ast.Int(0)),
			},
			EnsureClause: &ast.EnsureNode{Statements: ast.Stmts(ast.FCall("print", ast.Str("done")))},
		},
	)
	_, out, err := exec(t, prog, DefaultOptions())
	var pe *ProgramError
	if !errors.As(err, &pe) || pe.ClassName() != "NoMethodError" {
		t.Fatalf("error = %v, want NoMethodError", err)
	}
	if out != "done" {
		t.Errorf("ensure output = %q, want %q", out, "done")
	}
}

func TestInterpreterUncaughtException(t *testing.T) {
	pe := expectRaise(t, ast.Program(nil, ast.Op(ast.Int(1), "/", ast.Int(0))), "ZeroDivisionError")
	if pe.Error() != "ZeroDivisionError: divided by 0" {
		t.Errorf("Error() = %q", pe.Error())
	}
	expectRaise(t, ast.Program(nil, ast.Call(ast.Int(1), "frobnicate")), "NoMethodError")
	expectRaise(t, ast.Program(nil, ast.FCall("raise", ast.Str("boom"))), "RuntimeError")
}

func TestInterpreterClassWithIvars(t *testing.T) {
	prog := ast.Program(nil,
		class("Point", nil,
			ast.Def("initialize", ast.Required("x", "y"), []string{"x", "y"},
				ivarSet("@x", ast.Local("x")),
				ivarSet("@y", ast.Local("y"))),
			ast.Def("sum", nil, nil, ast.Op(ivar("@x"), "+", ivar("@y"))),
		),
		ast.Call(ast.Call(ast.Const("Point"), "new", ast.Int(2), ast.Int(3)), "sum"),
	)
	v, _ := run(t, prog)
	if v != int64(5) {
		t.Errorf("Point.new(2, 3).sum = %v, want 5", v)
	}
}

func TestInterpreterSuper(t *testing.T) {
	prog := ast.Program(nil,
		class("A", nil, ast.Def("hi", nil, nil, ast.Str("a"))),
		class("B", ast.Const("A"),
			ast.Def("hi", nil, nil, ast.Op(&ast.ForwardingSuperNode{}, "+", ast.Str("b")))),
		ast.Call(ast.Call(ast.Const("B"), "new"), "hi"),
	)
	v, _ := run(t, prog)
	if v != "ab" {
		t.Errorf("B.new.hi = %v, want %q", v, "ab")
	}
}

func TestInterpreterYield(t *testing.T) {
	yield := func(v ast.Node) *ast.YieldNode { return &ast.YieldNode{Arguments: ast.Args(v)} }
	prog := ast.Program(nil,
		ast.Def("twice", nil, nil, ast.Op(yield(ast.Int(1)), "+", yield(ast.Int(2)))),
		withBlock(ast.FCall("twice"),
			ast.Block([]string{"x"}, nil, ast.Op(ast.Local("x"), "*", ast.Int(10)))),
	)
	v, _ := run(t, prog)
	if v != int64(30) {
		t.Errorf("twice = %v, want 30", v)
	}
}

func TestInterpreterPatternMatch(t *testing.T) {
	prog := ast.Program([]string{"a", "b"},
		&ast.CaseMatchNode{
			Predicate: ast.Array(ast.Int(1), ast.Int(2)),
			Conditions: []*ast.InNode{{
				Pattern:    &ast.ArrayPatternNode{Requireds: []ast.Node{ast.Target("a"), ast.Target("b")}},
				Statements: ast.Stmts(ast.Op(ast.Local("a"), "+", ast.Local("b"))),
			}},
		},
	)
	v, _ := run(t, prog)
	if v != int64(3) {
		t.Errorf("match = %v, want 3", v)
	}

	expectRaise(t, ast.Program(nil,
		&ast.CaseMatchNode{
			Predicate:  ast.Int(5),
			Conditions: []*ast.InNode{{Pattern: ast.Const("String"), Statements: ast.Stmts(ast.Int(1))}},
		},
	), "NoMatchingPatternError")
}

func TestInterpreterOutput(t *testing.T) {
	prog := ast.Program(nil,
		ast.FCall("puts", ast.Int(1), ast.Str("a")),
		ast.FCall("p", ast.Array(ast.Int(1), ast.Str("x"), ast.Sym("s"))),
	)
	v, out := run(t, prog)
	want := "1\na\n[1, \"x\", :s]\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
	if _, ok := v.(*Array); !ok {
		t.Errorf("p returned %T, want its argument", v)
	}
}

func TestInterpreterArityDefect(t *testing.T) {
	err := runErr(t, ast.Program(nil,
		ast.Def("f", ast.Required("a"), []string{"a"}, ast.Local("a")),
		ast.FCall("f"),
	))
	if !errorx.IsOfType(err, ErrArity) {
		t.Errorf("error = %v, want %s", err, ErrArity.FullName())
	}

	err = runErr(t, ast.Program(nil, ast.Call(ast.Int(1), "abs", ast.Int(2))))
	if !errorx.IsOfType(err, ErrArity) {
		t.Errorf("builtin error = %v, want %s", err, ErrArity.FullName())
	}
}

func TestInterpreterStackLimit(t *testing.T) {
	prog := ast.Program(nil,
		ast.Def("down", nil, nil, ast.FCall("down")),
		ast.FCall("down"),
	)
	opts := DefaultOptions()
	opts.MaxFrames = 64
	_, _, err := exec(t, prog, opts)
	var pe *ProgramError
	if !errors.As(err, &pe) || pe.ClassName() != "SystemStackError" {
		t.Fatalf("error = %v, want SystemStackError", err)
	}
}

func TestInterpreterRecoversAfterError(t *testing.T) {
	in := New(Options{Stdout: &bytes.Buffer{}})
	bad := compile(t, ast.Program(nil, ast.Op(ast.Int(1), "/", ast.Int(0))), compiler.DefaultOptions())
	if _, err := in.RunUnit(bad); err == nil {
		t.Fatal("expected ZeroDivisionError")
	}
	if in.Depth() != 0 {
		t.Errorf("depth after failed run = %d, want 0", in.Depth())
	}
	good := compile(t, ast.Program(nil, ast.Op(ast.Int(2), "+", ast.Int(2))), compiler.DefaultOptions())
	v, err := in.RunUnit(good)
	if err != nil || v != int64(4) {
		t.Errorf("run after failure = %v, %v; want 4", v, err)
	}
}

func TestInterpreterPeepholeEquivalence(t *testing.T) {
	prog := ast.Program([]string{"n", "acc"},
		ast.Assign("n", ast.Int(6)),
		ast.Assign("acc", ast.Int(1)),
		ast.While(ast.Op(ast.Local("n"), ">", ast.Int(0)),
			ast.If(ast.Op(ast.Op(ast.Local("n"), "%", ast.Int(2)), "==", ast.Int(0)),
				[]ast.Node{ast.Assign("acc", ast.Op(ast.Local("acc"), "*", ast.Local("n")))},
				[]ast.Node{ast.Assign("acc", ast.Op(ast.Local("acc"), "+", ast.Local("n")))}),
			ast.Assign("n", ast.Op(ast.Local("n"), "-", ast.Int(1))),
		),
		ast.Local("acc"),
	)
	var results []Value
	for _, peephole := range []bool{false, true} {
		for _, specialized := range []bool{false, true} {
			opts := compiler.DefaultOptions()
			opts.PeepholeOptimization = peephole
			opts.SpecializedInstruction = specialized
			v, err := New(Options{Stdout: &bytes.Buffer{}}).RunUnit(compile(t, prog, opts))
			if err != nil {
				t.Fatalf("peephole=%v specialized=%v: %v", peephole, specialized, err)
			}
			results = append(results, v)
		}
	}
	for _, v := range results[1:] {
		if v != results[0] {
			t.Errorf("results differ across options: %v", results)
			break
		}
	}
}

func TestInterpreterTracer(t *testing.T) {
	unit := compile(t, ast.Program(nil, ast.Op(ast.Int(1), "+", ast.Int(2))), compiler.DefaultOptions())
	var ops []string
	in := New(Options{Tracer: TracerFunc(func(_ *Frame, in *bytecode.Instruction) {
		ops = append(ops, in.Op.String())
	})})
	if _, err := in.RunUnit(unit); err != nil {
		t.Fatal(err)
	}
	if len(ops) == 0 || ops[len(ops)-1] != bytecode.OpLeave.String() {
		t.Errorf("traced %v, want a stream ending in leave", ops)
	}
}

// runsSeq matches frames executing a given sequence.
type runsSeq struct{ seq *bytecode.InstructionSequence }

func (m runsSeq) Matches(x interface{}) bool {
	f, ok := x.(*Frame)
	return ok && f.Seq == m.seq
}

func (m runsSeq) String() string { return "frame running " + m.seq.Name }

func TestInterpreterTracerPerInstruction(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	unit := compile(t, ast.Program(nil,
		ast.Def("two", nil, nil, ast.Int(2)),
		ast.Op(ast.Int(1), "+", ast.FCall("two")),
	), compiler.DefaultOptions())
	var method *bytecode.InstructionSequence
	for _, s := range unit.Sequences() {
		if s.Kind == bytecode.KindMethod {
			method = s
		}
	}

	tracer := NewMockTracer(ctrl)
	tracer.EXPECT().Trace(runsSeq{unit.Root()}, gomock.Any()).Times(len(unit.Root().Insns))
	tracer.EXPECT().Trace(runsSeq{method}, gomock.Any()).Times(len(method.Insns))

	v, err := New(Options{Tracer: tracer}).RunUnit(unit)
	if err != nil || v != int64(3) {
		t.Errorf("run = %v, %v; want 3", v, err)
	}
}

func TestInterpreterRejectsUnfinalized(t *testing.T) {
	unit := bytecode.NewUnit(bytecode.DefaultOptions(), bytecode.NewCallDataTable())
	seq := unit.New(bytecode.KindTop, "<main>", 1, bytecode.NoSeq)
	seq.PutNil()
	seq.Leave()
	_, err := New(DefaultOptions()).Run(seq)
	if !errorx.IsOfType(err, ErrNotFinalized) {
		t.Errorf("error = %v, want %s", err, ErrNotFinalized.FullName())
	}
}

func TestInterpreterEnclosingFrame(t *testing.T) {
	unit := bytecode.NewUnit(bytecode.DefaultOptions(), bytecode.NewCallDataTable())
	outer := unit.New(bytecode.KindTop, "<main>", 1, bytecode.NoSeq)
	outer.Locals.Plain("x")
	blk := unit.New(bytecode.KindBlock, "block in <main>", 1, outer.ID)
	blk.GetLocal("x", bytecode.LocalRef{Index: 0, Level: 1})
	blk.Leave()
	if err := blk.Finalize(); err != nil {
		t.Fatal(err)
	}

	in := New(DefaultOptions())
	v, err := in.RunIn(blk, nil, &Frame{Seq: outer, Locals: []Value{int64(41)}})
	if err != nil || v != int64(41) {
		t.Errorf("RunIn = %v, %v; want 41", v, err)
	}

	_, err = in.Run(blk)
	if !errorx.IsOfType(err, ErrEnclosingWalk) {
		t.Errorf("error = %v, want %s", err, ErrEnclosingWalk.FullName())
	}
}

func TestInterpreterStackUnderflow(t *testing.T) {
	unit := bytecode.NewUnit(bytecode.DefaultOptions(), bytecode.NewCallDataTable())
	unit.SkipVerify = true
	seq := unit.New(bytecode.KindTop, "<main>", 1, bytecode.NoSeq)
	seq.Pop()
	seq.PutNil()
	seq.Leave()
	if err := seq.Finalize(); err != nil {
		t.Fatal(err)
	}
	_, err := New(DefaultOptions()).Run(seq)
	if !errorx.IsOfType(err, ErrStackUnderflow) {
		t.Errorf("error = %v, want %s", err, ErrStackUnderflow.FullName())
	}
	var pe *ProgramError
	if errors.As(err, &pe) {
		t.Error("defect reported as a program error")
	}
}

func TestInterpreterDestructuring(t *testing.T) {
	targets := func(names ...string) []ast.Node {
		var out []ast.Node
		for _, n := range names {
			out = append(out, ast.Target(n))
		}
		return out
	}
	locals := []string{"a", "b", "c"}
	result := ast.Array(ast.Local("a"), ast.Local("b"), ast.Local("c"))

	tests := []struct {
		name string
		node *ast.MultiWriteNode
		want string
	}{
		{"missing targets get nil",
			&ast.MultiWriteNode{Lefts: targets("a", "b", "c"), Value: ast.Array(ast.Int(1), ast.Int(2))},
			"[1, 2, nil]"},
		{"excess values are dropped",
			&ast.MultiWriteNode{Lefts: targets("a", "b"), Value: ast.Array(ast.Int(1), ast.Int(2), ast.Int(3))},
			"[1, 2, nil]"},
		{"splat captures the excess",
			&ast.MultiWriteNode{Lefts: targets("a"), Rest: &ast.SplatNode{Expression: ast.Target("b")},
				Value: ast.Array(ast.Int(1), ast.Int(2), ast.Int(3))},
			"[1, [2, 3], nil]"},
		{"splat with posts",
			&ast.MultiWriteNode{Lefts: targets("a"), Rest: &ast.SplatNode{Expression: ast.Target("b")},
				Rights: targets("c"), Value: ast.Array(ast.Int(1), ast.Int(2), ast.Int(3), ast.Int(4))},
			"[1, [2, 3], 4]"},
		{"short value leaves the splat empty",
			&ast.MultiWriteNode{Lefts: targets("a"), Rest: &ast.SplatNode{Expression: ast.Target("b")},
				Rights: targets("c"), Value: ast.Array(ast.Int(1))},
			"[1, [], nil]"},
		{"non-array value is wrapped",
			&ast.MultiWriteNode{Lefts: targets("a", "b"), Value: ast.Int(5)},
			"[5, nil, nil]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := run(t, ast.Program(locals, tt.node, result))
			if got := inspect(v); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestInterpreterSafeNavigationAttributeWrite(t *testing.T) {
	write := func(used bool) ast.Node {
		n := &ast.CallNode{Receiver: ast.Local("o"), Name: "size=", Arguments: ast.Args(ast.Int(3)),
			AttributeWrite: true, SafeNavigation: true}
		if used {
			return ast.Assign("r", n)
		}
		return n
	}

	v, _ := run(t, ast.Program([]string{"o", "r"},
		ast.Assign("o", ast.Nil()),
		ast.Assign("r", ast.Int(9)),
		write(true),
		ast.Local("r")))
	if v != nil {
		t.Errorf("nil&.size = 3 gave %v, want nil", v)
	}

	v, _ = run(t, ast.Program([]string{"o", "r"},
		ast.Assign("o", ast.Nil()),
		write(false),
		ast.Int(1)))
	if v != int64(1) {
		t.Errorf("unused write = %v, want 1", v)
	}

	v, _ = run(t, ast.Program([]string{"o", "r"},
		class("Box", nil, ast.FCall("attr_accessor", ast.Sym("size"))),
		ast.Assign("o", ast.Call(ast.Const("Box"), "new")),
		write(true),
		ast.Array(ast.Local("r"), ast.Call(ast.Local("o"), "size"))))
	if got := inspect(v); got != "[3, 3]" {
		t.Errorf("box&.size = 3 gave %s, want [3, 3]", got)
	}
}

func TestInterpreterDefInsideTopLevelBlockIsPrivate(t *testing.T) {
	define := withBlock(ast.Call(ast.Array(ast.Int(1)), "each"),
		ast.Block(nil, nil, ast.Def("helper", nil, nil, ast.Int(7))))

	v, _ := run(t, ast.Program(nil, define, ast.FCall("helper")))
	if v != int64(7) {
		t.Errorf("helper = %v, want 7", v)
	}

	define = withBlock(ast.Call(ast.Array(ast.Int(1)), "each"),
		ast.Block(nil, nil, ast.Def("helper", nil, nil, ast.Int(7))))
	expectRaise(t, ast.Program(nil, define, ast.Call(ast.Int(1), "helper")), "NoMethodError")
}
