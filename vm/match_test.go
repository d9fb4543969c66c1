package vm

import (
	"testing"

	"github.com/chazu/rbvm/ast"
)

func re(src string) *ast.RegularExpressionNode { return &ast.RegularExpressionNode{Source: src} }

func backref(name string) ast.Node { return &ast.BackReferenceReadNode{Name: name} }

func group(n int) ast.Node { return &ast.NumberedReferenceReadNode{Number: n} }

func gvar(name string) ast.Node { return &ast.GlobalVariableReadNode{Name: name} }

func TestMatchReferences(t *testing.T) {
	refs := ast.Array(backref("$&"), group(1), group(2), backref("$`"), backref("$'"), backref("$+"), group(3))

	v, _ := run(t, ast.Program(nil,
		ast.Op(re(`(\w+)@(\w+)`), "=~", ast.Str("mail bob@example now")),
		refs))
	if got, want := inspect(v), `["bob@example", "bob", "example", "mail ", " now", "example", nil]`; got != want {
		t.Errorf("references = %s, want %s", got, want)
	}

	v, _ = run(t, ast.Program(nil,
		ast.Op(re(`b`), "=~", ast.Str("abc")),
		ast.Op(re(`z`), "=~", ast.Str("abc")),
		ast.Array(backref("$&"), gvar("$~"))))
	if got := inspect(v); got != "[nil, nil]" {
		t.Errorf("failed match left %s", got)
	}

	v, _ = run(t, ast.Program(nil, ast.Array(backref("$&"), group(1))))
	if got := inspect(v); got != "[nil, nil]" {
		t.Errorf("references before any match = %s", got)
	}
}

func TestMatchIsPerMethod(t *testing.T) {
	prog := ast.Program(nil,
		ast.Def("inner", nil, nil,
			ast.Op(re(`b`), "=~", ast.Str("abc")),
			backref("$&")),
		ast.Op(re(`a`), "=~", ast.Str("xa")),
		ast.Array(ast.FCall("inner"), backref("$&")),
	)
	v, _ := run(t, prog)
	if got := inspect(v); got != `["b", "a"]` {
		t.Errorf("got %s, want [\"b\", \"a\"]", got)
	}

	// A block writes its method's $~.
	prog = ast.Program(nil,
		withBlock(ast.Call(ast.Array(ast.Int(1)), "each"),
			ast.Block(nil, nil, ast.Op(re(`c`), "=~", ast.Str("abc")))),
		backref("$&"),
	)
	v, _ = run(t, prog)
	if v != "c" {
		t.Errorf("$& after block = %v, want c", v)
	}
}

func TestMatchWriteNamedGroups(t *testing.T) {
	write := func(subject string) *ast.MatchWriteNode {
		return &ast.MatchWriteNode{
			Call:    ast.Op(re(`(?<user>\w+)@(?<host>\w+)`), "=~", ast.Str(subject)),
			Targets: []*ast.LocalVariableTargetNode{ast.Target("user"), ast.Target("host")},
		}
	}
	locals := []string{"user", "host", "r"}
	result := ast.Array(ast.Local("r"), ast.Local("user"), ast.Local("host"))

	tests := []struct {
		name    string
		subject string
		want    string
	}{
		{"match binds groups", "to bob@example", `[3, "bob", "example"]`},
		{"no match clears locals", "nobody", "[nil, nil, nil]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := run(t, ast.Program(locals,
				ast.Assign("user", ast.Int(1)),
				ast.Assign("host", ast.Int(2)),
				ast.Assign("r", write(tt.subject)),
				result))
			if got := inspect(v); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	// Statement position keeps the stack balanced.
	v, _ := run(t, ast.Program([]string{"user", "host"}, write("a@b"), ast.Local("host")))
	if v != "b" {
		t.Errorf("host = %v, want b", v)
	}
}

func TestMatchData(t *testing.T) {
	m := func() ast.Node { return ast.Local("m") }
	prog := ast.Program([]string{"m"},
		ast.Assign("m", ast.Call(re(`(?<x>\d)(?<y>\d)?`), "match", ast.Str("a1"))),
		ast.Array(
			ast.Call(m(), "[]", ast.Int(0)),
			ast.Call(m(), "[]", ast.Sym("x")),
			ast.Call(m(), "[]", ast.Int(2)),
			ast.Call(m(), "pre_match"),
			ast.Call(m(), "captures"),
			ast.Call(m(), "named_captures"),
			ast.Call(m(), "begin", ast.Int(0)),
		),
	)
	v, _ := run(t, prog)
	want := `["1", "1", nil, "a", ["1", nil], {"x"=>"1", "y"=>nil}, 1]`
	if got := inspect(v); got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}

	v, _ = run(t, ast.Program(nil, ast.Call(re(`z`), "match", ast.Str("abc"))))
	if v != nil {
		t.Errorf("failed match = %v, want nil", v)
	}

	expectRaise(t, ast.Program(nil,
		ast.Call(ast.Call(re(`a`), "match", ast.Str("a")), "[]", ast.Sym("nope"))), "IndexError")

	v, _ = run(t, ast.Program(nil,
		ast.Call(ast.Call(re(`(?<w>b)`), "match", ast.Str("abc")), "inspect")))
	if v != `#<MatchData "b" w:"b">` {
		t.Errorf("inspect = %v", v)
	}
}

func TestAliasGlobalVariable(t *testing.T) {
	prog := ast.Program(nil,
		&ast.GlobalVariableWriteNode{Name: "$old", Value: ast.Int(1)},
		&ast.AliasGlobalVariableNode{NewName: "$new", OldName: "$old"},
		&ast.GlobalVariableWriteNode{Name: "$new", Value: ast.Int(2)},
		ast.Array(gvar("$old"), gvar("$new")),
	)
	v, _ := run(t, prog)
	if got := inspect(v); got != "[2, 2]" {
		t.Errorf("got %s, want [2, 2]", got)
	}

	// Aliasing back the other way must not loop.
	prog = ast.Program(nil,
		&ast.AliasGlobalVariableNode{NewName: "$a", OldName: "$b"},
		&ast.AliasGlobalVariableNode{NewName: "$b", OldName: "$a"},
		&ast.GlobalVariableWriteNode{Name: "$a", Value: ast.Int(3)},
		ast.Array(gvar("$a"), gvar("$b")),
	)
	v, _ = run(t, prog)
	if got := inspect(v); got != "[3, 3]" {
		t.Errorf("got %s, want [3, 3]", got)
	}

	// An alias of $~ reads the last match.
	prog = ast.Program(nil,
		&ast.AliasGlobalVariableNode{NewName: "$m", OldName: "$~"},
		ast.Op(re(`b+`), "=~", ast.Str("abbc")),
		ast.Call(gvar("$m"), "to_s"),
	)
	v, _ = run(t, prog)
	if v != "bb" {
		t.Errorf("$m = %v, want bb", v)
	}
}

func TestPostExecution(t *testing.T) {
	end := func(msg string) ast.Node {
		return &ast.PostExecutionNode{Statements: ast.Stmts(ast.FCall("puts", ast.Str(msg)))}
	}
	prog := ast.Program(nil,
		end("first"),
		withBlock(ast.Call(ast.Array(ast.Int(1), ast.Int(2)), "each"),
			ast.Block(nil, nil, end("once"))),
		ast.FCall("puts", ast.Str("main")),
		ast.Int(3),
	)
	v, out := run(t, prog)
	if v != int64(3) {
		t.Errorf("result = %v, want 3", v)
	}
	if out != "main\nonce\nfirst\n" {
		t.Errorf("output = %q", out)
	}

	// END blocks run after a failing program and do not mask its error.
	expectRaise(t, ast.Program(nil,
		end("cleanup"),
		ast.Op(ast.Int(1), "/", ast.Int(0))), "ZeroDivisionError")

	_, _, err := exec(t, ast.Program(nil,
		&ast.PostExecutionNode{Statements: ast.Stmts(ast.FCall("raise", ast.Str("late")))},
		ast.Int(1)), DefaultOptions())
	if err == nil {
		t.Error("error raised in END was dropped")
	}
}
