package store

import (
	"bytes"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/joomcode/errorx"

	"github.com/chazu/rbvm/ast"
	"github.com/chazu/rbvm/compiler"
	"github.com/chazu/rbvm/pkg/bytecode"
	"github.com/chazu/rbvm/vm"
)

// sample exercises optional arguments, blocks, rescue, classes and every
// literal kind.
func sample() *ast.ProgramNode {
	params := ast.Required("a")
	params.Optionals = []*ast.OptionalParameterNode{{Name: "b", Value: ast.Int(10)}}

	sum := ast.Call(ast.Array(ast.Int(1), ast.Int(2), ast.Int(3)), "map")
	sum.Block = ast.Block([]string{"x"}, nil, ast.Op(ast.Local("x"), "*", ast.Float(1.5)))

	return ast.Program([]string{"e"},
		ast.Def("add", params, []string{"a", "b"}, ast.Op(ast.Local("a"), "+", ast.Local("b"))),
		&ast.ClassNode{
			ConstantPath: ast.Const("Box"),
			Body: ast.Stmts(ast.Def("label", nil, nil,
				&ast.InterpolatedStringNode{Parts: []ast.Node{
					ast.Str("box "),
					&ast.EmbeddedStatementsNode{Statements: ast.Stmts(ast.Sym("small"))},
				}})),
		},
		ast.FCall("p", ast.FCall("add", ast.Int(1))),
		ast.FCall("p", ast.FCall("add", ast.Int(1), ast.Int(2))),
		ast.FCall("p", sum),
		ast.FCall("p", ast.Call(ast.Call(ast.Const("Box"), "new"), "label")),
		ast.FCall("p", ast.Op(&ast.RegularExpressionNode{Source: "l+", Flags: "i"}, "=~", ast.Str("heLLo"))),
		ast.FCall("p", ast.Nil(), ast.True()),
		&ast.BeginNode{
			Statements: ast.Stmts(ast.Op(ast.Int(1), "/", ast.Int(0))),
			RescueClause: &ast.RescueNode{
				Exceptions: []ast.Node{ast.Const("ZeroDivisionError")},
				Reference:  ast.Target("e"),
				Statements: ast.Stmts(ast.Call(ast.Local("e"), "message")),
			},
		},
	)
}

func compileSample(t *testing.T, opts compiler.Options) *bytecode.Unit {
	t.Helper()
	unit, err := compiler.Compile(sample(), opts)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return unit
}

func execUnit(t *testing.T, unit *bytecode.Unit) (string, string) {
	t.Helper()
	var out bytes.Buffer
	opts := vm.DefaultOptions()
	opts.Stdout = &out
	v, err := vm.New(opts).RunUnit(unit)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	s, _ := v.(string)
	return s, out.String()
}

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"default", "unoptimized"} {
		t.Run(name, func(t *testing.T) {
			opts := compiler.DefaultOptions()
			if name == "unoptimized" {
				opts.PeepholeOptimization = false
				opts.SpecializedInstruction = false
				opts.OperandsUnification = false
			}
			unit := compileSample(t, opts)

			data, err := Marshal(unit)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			back, err := Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}

			if back.Len() != unit.Len() {
				t.Fatalf("decoded %d sequences, want %d", back.Len(), unit.Len())
			}
			if diff := cmp.Diff(unit.Options, back.Options); diff != "" {
				t.Errorf("options mismatch (-want +got):\n%s", diff)
			}
			for i, seq := range unit.Sequences() {
				got := back.Sequences()[i]
				if got.Name != seq.Name || got.Kind != seq.Kind || got.ParentID() != seq.ParentID() {
					t.Errorf("sequence %d = %s/%v, want %s/%v", i, got.Name, got.Kind, seq.Name, seq.Kind)
				}
				if got.StackMax != seq.StackMax {
					t.Errorf("%s stack max = %d, want %d", seq.Name, got.StackMax, seq.StackMax)
				}
				if diff := cmp.Diff(seq.Args.OptTable(), got.Args.OptTable()); diff != "" {
					t.Errorf("%s opt table mismatch (-want +got):\n%s", seq.Name, diff)
				}
			}

			again, err := Marshal(back)
			if err != nil {
				t.Fatalf("re-Marshal failed: %v", err)
			}
			if !bytes.Equal(data, again) {
				t.Error("encoding is not stable across a round trip")
			}

			wantResult, wantOut := execUnit(t, unit)
			gotResult, gotOut := execUnit(t, back)
			if gotResult != wantResult || gotOut != wantOut {
				t.Errorf("decoded unit ran to %q/%q, want %q/%q", gotResult, gotOut, wantResult, wantOut)
			}
			if wantResult != "divided by 0" {
				t.Errorf("result = %q", wantResult)
			}
		})
	}
}

func TestHash(t *testing.T) {
	a, err := Hash(compileSample(t, compiler.DefaultOptions()))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Hash(compileSample(t, compiler.DefaultOptions()))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("equal programs hash differently")
	}

	opts := compiler.DefaultOptions()
	opts.FrozenStringLiteral = true
	c, err := Hash(compileSample(t, opts))
	if err != nil {
		t.Fatal(err)
	}
	if a == c {
		t.Error("different options hash equally")
	}
}

func TestMarshalRejectsUnfinalized(t *testing.T) {
	unit := bytecode.NewUnit(bytecode.DefaultOptions(), nil)
	seq := unit.New(bytecode.KindTop, "<main>", 1, bytecode.NoSeq)
	seq.PutNil()
	seq.Leave()

	_, err := Marshal(unit)
	if !errorx.IsOfType(err, ErrMalformed) {
		t.Errorf("error = %v, want malformed", err)
	}
}

func TestUnmarshalRejects(t *testing.T) {
	good, err := Marshal(compileSample(t, compiler.DefaultOptions()))
	if err != nil {
		t.Fatal(err)
	}
	reencode := func(t *testing.T, edit func(w *wireUnit)) []byte {
		t.Helper()
		var c wireUnit
		if err := cbor.Unmarshal(good, &c); err != nil {
			t.Fatal(err)
		}
		edit(&c)
		data, err := cborEncMode.Marshal(&c)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	tests := []struct {
		name string
		data func(t *testing.T) []byte
		want *errorx.Type
	}{
		{"garbage", func(*testing.T) []byte { return []byte{0xff, 0x00} }, ErrMalformed},
		{"version", func(t *testing.T) []byte {
			return reencode(t, func(w *wireUnit) { w.Version = WireVersion + 1 })
		}, ErrVersion},
		{"unknown opcode", func(t *testing.T) []byte {
			return reencode(t, func(w *wireUnit) { w.Seqs[0].Insns[0].Op = 0xFE })
		}, ErrMalformed},
		{"branch out of range", func(t *testing.T) []byte {
			return reencode(t, func(w *wireUnit) {
				root := &w.Seqs[0]
				root.Insns = append([]wireInsn{{Op: uint8(bytecode.OpJump), Target: len(root.Insns) + 5}}, root.Insns...)
			})
		}, ErrMalformed},
		{"missing terminal", func(t *testing.T) []byte {
			return reencode(t, func(w *wireUnit) {
				root := &w.Seqs[0]
				root.Insns[len(root.Insns)-1] = wireInsn{Op: uint8(bytecode.OpPutNil)}
			})
		}, ErrMalformed},
		{"parent after child", func(t *testing.T) []byte {
			return reencode(t, func(w *wireUnit) { w.Seqs[0].Parent = int32(len(w.Seqs)) })
		}, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.data(t))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errorx.IsOfType(err, tt.want) {
				t.Errorf("error = %v, want %s", err, tt.want)
			}
		})
	}
}
