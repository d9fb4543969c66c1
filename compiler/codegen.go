package compiler

import (
	"strings"

	"github.com/chazu/rbvm/ast"
	"github.com/chazu/rbvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Codegen: lower AST nodes to instructions
// ---------------------------------------------------------------------------

// compileNode lowers n into s. A nil node is an absent expression and
// evaluates to nil.
func (c *Compiler) compileNode(n ast.Node, used bool, s *scope) {
	if n == nil {
		if used {
			s.seq.PutNil()
		}
		return
	}
	if st, ok := n.(*ast.StatementsNode); ok {
		c.compileStatements(st, used, s)
		return
	}
	s.seq.SetLine(n.Loc().Line)

	switch n := n.(type) {
	case *ast.ParenthesesNode:
		c.compileNode(n.Body, used, s)

	// Literals
	case *ast.IntegerNode:
		if used {
			s.seq.PutObject(n.Value)
		}
	case *ast.FloatNode:
		if used {
			s.seq.PutObject(n.Value)
		}
	case *ast.StringNode:
		if used {
			c.compileString(n.Value, s)
		}
	case *ast.SymbolNode:
		if used {
			s.seq.PutObject(bytecode.Symbol(n.Value))
		}
	case *ast.RegularExpressionNode:
		if used {
			s.seq.PutObject(bytecode.RegexpSource{Source: n.Source, Flags: n.Flags})
		}
	case *ast.InterpolatedStringNode:
		c.compileParts(n.Parts, s)
		s.seq.ConcatStrings(len(n.Parts))
		c.discard(used, s)
	case *ast.InterpolatedRegularExpressionNode:
		c.compileParts(n.Parts, s)
		s.seq.ToRegexp(n.Flags, len(n.Parts))
		c.discard(used, s)
	case *ast.TrueNode:
		if used {
			s.seq.PutObject(true)
		}
	case *ast.FalseNode:
		if used {
			s.seq.PutObject(false)
		}
	case *ast.NilNode:
		if used {
			s.seq.PutNil()
		}
	case *ast.SelfNode:
		if used {
			s.seq.PutSelf()
		}
	case *ast.SourceLineNode:
		if used {
			s.seq.PutObject(int64(n.Line))
		}
	case *ast.SourceFileNode:
		if used {
			c.compileString(c.opts.File, s)
		}
	case *ast.ArrayNode:
		c.compileArray(n, used, s)
	case *ast.HashNode:
		for _, e := range n.Elements {
			c.compileNode(e.Key, used, s)
			c.compileNode(e.Value, used, s)
		}
		if used {
			s.seq.NewHash(2 * len(n.Elements))
		}
	case *ast.RangeNode:
		c.compileNode(n.Left, used, s)
		c.compileNode(n.Right, used, s)
		if used {
			s.seq.NewRange(n.ExcludeEnd)
		}

	// Variables
	case *ast.LocalVariableReadNode:
		ref := c.localRef(n, n.Name, n.Depth, s, false)
		if used {
			s.seq.GetLocal(n.Name, ref)
		}
	case *ast.LocalVariableWriteNode:
		c.compileWrite(c.local(n, n.Name, n.Depth, s), n.Value, used, s)
	case *ast.LocalVariableOperatorWriteNode:
		c.compileOperatorWrite(c.local(n, n.Name, n.Depth, s), n.Operator, n.Value, used, s)
	case *ast.LocalVariableAndWriteNode:
		c.compileLogicalWrite(c.local(n, n.Name, n.Depth, s), true, n.Value, used, s)
	case *ast.LocalVariableOrWriteNode:
		c.compileLogicalWrite(c.local(n, n.Name, n.Depth, s), false, n.Value, used, s)

	case *ast.InstanceVariableReadNode:
		if used {
			s.seq.GetInstanceVariable(n.Name)
		}
	case *ast.InstanceVariableWriteNode:
		c.compileWrite(ivar(n.Name, s), n.Value, used, s)
	case *ast.InstanceVariableOperatorWriteNode:
		c.compileOperatorWrite(ivar(n.Name, s), n.Operator, n.Value, used, s)
	case *ast.InstanceVariableAndWriteNode:
		c.compileLogicalWrite(ivar(n.Name, s), true, n.Value, used, s)
	case *ast.InstanceVariableOrWriteNode:
		c.compileLogicalWrite(ivar(n.Name, s), false, n.Value, used, s)

	case *ast.ClassVariableReadNode:
		s.seq.GetClassVariable(n.Name)
		c.discard(used, s)
	case *ast.ClassVariableWriteNode:
		c.compileWrite(cvar(n.Name, s), n.Value, used, s)
	case *ast.ClassVariableOperatorWriteNode:
		c.compileOperatorWrite(cvar(n.Name, s), n.Operator, n.Value, used, s)
	case *ast.ClassVariableAndWriteNode:
		c.compileLogicalWrite(cvar(n.Name, s), true, n.Value, used, s)
	case *ast.ClassVariableOrWriteNode:
		c.compileLogicalWrite(cvar(n.Name, s), false, n.Value, used, s)

	case *ast.GlobalVariableReadNode:
		s.seq.GetGlobal(n.Name)
		c.discard(used, s)
	case *ast.GlobalVariableWriteNode:
		c.compileWrite(gvar(n.Name, s), n.Value, used, s)
	case *ast.GlobalVariableOperatorWriteNode:
		c.compileOperatorWrite(gvar(n.Name, s), n.Operator, n.Value, used, s)
	case *ast.GlobalVariableAndWriteNode:
		c.compileLogicalWrite(gvar(n.Name, s), true, n.Value, used, s)
	case *ast.GlobalVariableOrWriteNode:
		c.compileLogicalWrite(gvar(n.Name, s), false, n.Value, used, s)
	case *ast.BackReferenceReadNode:
		c.compileBackReference(n, used, s)
	case *ast.NumberedReferenceReadNode:
		if n.Number < 1 {
			c.fail(n, ErrInvalid, "invalid numbered reference $%d", n.Number)
		}
		if used {
			s.seq.GetSpecial(bytecode.SpecialBackref, n.Number<<1)
		}
	case *ast.MatchWriteNode:
		c.compileMatchWrite(n, used, s)

	case *ast.ConstantReadNode:
		s.seq.PutNil()
		s.seq.GetConstant(n.Name, 0)
		c.discard(used, s)
	case *ast.ConstantPathNode:
		if n.Parent == nil {
			s.seq.PutNil()
			s.seq.GetConstant(n.Name, bytecode.ConstTop)
		} else {
			c.compileNode(n.Parent, true, s)
			s.seq.GetConstant(n.Name, 0)
		}
		c.discard(used, s)
	case *ast.ConstantWriteNode:
		c.compileWrite(constant(n.Name, s), n.Value, used, s)
	case *ast.ConstantOperatorWriteNode:
		c.compileOperatorWrite(constant(n.Name, s), n.Operator, n.Value, used, s)
	case *ast.ConstantAndWriteNode:
		c.compileLogicalWrite(constant(n.Name, s), true, n.Value, used, s)
	case *ast.ConstantOrWriteNode:
		c.compileLogicalWrite(constant(n.Name, s), false, n.Value, used, s)

	case *ast.MultiWriteNode:
		c.compileMultiWrite(n, used, s)

	// Control flow
	case *ast.AndNode:
		c.compileLogical(n.Left, n.Right, true, used, s)
	case *ast.OrNode:
		c.compileLogical(n.Left, n.Right, false, used, s)
	case *ast.IfNode:
		c.compileIf(n.Predicate, n.Statements, n.Consequent, false, used, s)
	case *ast.UnlessNode:
		var alt ast.Node
		if n.Consequent != nil {
			alt = n.Consequent
		}
		c.compileIf(n.Predicate, n.Statements, alt, true, used, s)
	case *ast.ElseNode:
		c.compileStatements(n.Statements, used, s)
	case *ast.WhileNode:
		c.compileLoop(n.Predicate, n.Statements, n.DoWhile, false, used, s)
	case *ast.UntilNode:
		c.compileLoop(n.Predicate, n.Statements, n.DoWhile, true, used, s)
	case *ast.ForNode:
		c.compileFor(n, used, s)
	case *ast.BreakNode:
		c.compileBreak(n, used, s)
	case *ast.NextNode:
		c.compileNext(n, used, s)
	case *ast.ReturnNode:
		c.compileReturn(n, used, s)
	case *ast.CaseNode:
		c.compileCase(n, used, s)
	case *ast.CaseMatchNode:
		c.compileCaseMatch(n, used, s)
	case *ast.MatchPredicateNode:
		c.compileMatchPredicate(n, used, s)
	case *ast.MatchRequiredNode:
		c.compileMatchRequired(n, used, s)
	case *ast.BeginNode:
		c.compileBegin(n, used, s)
	case *ast.RescueModifierNode:
		c.compileBegin(&ast.BeginNode{
			Pos:        n.Pos,
			Statements: &ast.StatementsNode{Pos: n.Pos, Body: []ast.Node{n.Expression}},
			RescueClause: &ast.RescueNode{
				Pos:        n.Pos,
				Statements: &ast.StatementsNode{Pos: n.Pos, Body: []ast.Node{n.RescueExpression}},
			},
		}, used, s)
	case *ast.DefinedNode:
		c.compileDefined(n, used, s)

	// Calls
	case *ast.CallNode:
		c.compileCall(n, used, s)
	case *ast.LambdaNode:
		c.compileLambda(n, used, s)
	case *ast.SuperNode:
		c.compileSuper(n, used, s)
	case *ast.ForwardingSuperNode:
		c.compileForwardingSuper(n, used, s)
	case *ast.YieldNode:
		c.compileYield(n, used, s)

	// Definitions
	case *ast.DefNode:
		c.compileDef(n, used, s)
	case *ast.ClassNode:
		c.compileClass(n, used, s)
	case *ast.ModuleNode:
		c.compileModule(n, used, s)
	case *ast.SingletonClassNode:
		c.compileSingletonClass(n, used, s)
	case *ast.AliasMethodNode:
		c.compileAlias(n, used, s)
	case *ast.AliasGlobalVariableNode:
		c.compileAliasGlobal(n, used, s)
	case *ast.PostExecutionNode:
		c.compilePostExecution(n, used, s)

	default:
		c.fail(n, ErrMissingRule, "no lowering rule for %s", n.Kind())
	}
}

// compileStatements lowers a statement list. Only the last statement's
// value is kept; an empty list evaluates to nil.
func (c *Compiler) compileStatements(n *ast.StatementsNode, used bool, s *scope) {
	if n == nil || len(n.Body) == 0 {
		if used {
			s.seq.PutNil()
		}
		return
	}
	last := len(n.Body) - 1
	for i, stmt := range n.Body {
		c.compileNode(stmt, used && i == last, s)
	}
}

// discard pops the value just pushed when the context does not use it.
func (c *Compiler) discard(used bool, s *scope) {
	if !used {
		s.seq.Pop()
	}
}

func (c *Compiler) compileString(v string, s *scope) {
	if c.opts.FrozenStringLiteral {
		s.seq.PutObject(v)
	} else {
		s.seq.PutString(v)
	}
}

// compileParts pushes one string per interpolation part.
func (c *Compiler) compileParts(parts []ast.Node, s *scope) {
	for _, p := range parts {
		switch p := p.(type) {
		case *ast.StringNode:
			s.seq.PutObject(p.Value)
		case *ast.EmbeddedStatementsNode:
			c.compileStatements(p.Statements, true, s)
			s.seq.ObjToString()
		default:
			c.compileNode(p, true, s)
			s.seq.ObjToString()
		}
	}
}

func (c *Compiler) compileArray(n *ast.ArrayNode, used bool, s *scope) {
	if !used {
		for _, e := range n.Elements {
			if sp, ok := e.(*ast.SplatNode); ok {
				c.compileNode(sp.Expression, false, s)
				continue
			}
			c.compileNode(e, false, s)
		}
		return
	}
	if !hasSplat(n.Elements) {
		for _, e := range n.Elements {
			c.compileNode(e, true, s)
		}
		s.seq.NewArray(len(n.Elements))
		return
	}
	c.compileSplatList(n.Elements, s)
}

func hasSplat(nodes []ast.Node) bool {
	for _, n := range nodes {
		if _, ok := n.(*ast.SplatNode); ok {
			return true
		}
	}
	return false
}

// compileSplatList pushes a single array holding the elements, with splat
// elements spliced in.
func (c *Compiler) compileSplatList(elems []ast.Node, s *scope) {
	have := false
	pending := 0
	flush := func() {
		if pending == 0 {
			return
		}
		s.seq.NewArray(pending)
		if have {
			s.seq.ConcatArray()
		}
		have = true
		pending = 0
	}
	for _, e := range elems {
		sp, ok := e.(*ast.SplatNode)
		if !ok {
			c.compileNode(e, true, s)
			pending++
			continue
		}
		flush()
		c.compileNode(sp.Expression, true, s)
		if have {
			s.seq.ConcatArray()
		} else {
			s.seq.SplatArray(true)
		}
		have = true
	}
	flush()
	if !have {
		s.seq.NewArray(0)
	}
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// variable is an assignable location. read pushes the current value; write
// consumes the value on top of the stack.
type variable struct {
	read  func()
	write func()

	// defined is the defined? type checked before an ||= whose read
	// would raise, zero when the read is always safe.
	defined int
	name    string
}

func (c *Compiler) local(n ast.Node, name string, depth int, s *scope) variable {
	ref := c.localRef(n, name, depth, s, true)
	return variable{
		read:  func() { s.seq.GetLocal(name, ref) },
		write: func() { s.seq.SetLocal(name, ref) },
	}
}

func ivar(name string, s *scope) variable {
	return variable{
		read:  func() { s.seq.GetInstanceVariable(name) },
		write: func() { s.seq.SetInstanceVariable(name) },
	}
}

func cvar(name string, s *scope) variable {
	return variable{
		read:    func() { s.seq.GetClassVariable(name) },
		write:   func() { s.seq.SetClassVariable(name) },
		defined: bytecode.DefinedCvar,
		name:    name,
	}
}

func gvar(name string, s *scope) variable {
	return variable{
		read:  func() { s.seq.GetGlobal(name) },
		write: func() { s.seq.SetGlobal(name) },
	}
}

func constant(name string, s *scope) variable {
	return variable{
		read: func() {
			s.seq.PutNil()
			s.seq.GetConstant(name, 0)
		},
		write: func() {
			s.seq.PutSpecialObject(bytecode.SpecialConstBase)
			s.seq.SetConstant(name)
		},
		defined: bytecode.DefinedConst,
		name:    name,
	}
}

// compileWrite lowers v = value.
func (c *Compiler) compileWrite(v variable, value ast.Node, used bool, s *scope) {
	c.compileNode(value, true, s)
	if used {
		s.seq.Dup()
	}
	v.write()
}

// compileOperatorWrite lowers v op= value as v = v.op(value).
func (c *Compiler) compileOperatorWrite(v variable, op string, value ast.Node, used bool, s *scope) {
	v.read()
	c.compileNode(value, true, s)
	c.simpleSend(s, op, 1)
	if used {
		s.seq.Dup()
	}
	v.write()
}

// compileLogicalWrite lowers v &&= value (and is true) or v ||= value.
func (c *Compiler) compileLogicalWrite(v variable, and bool, value ast.Node, used bool, s *scope) {
	done := s.seq.Label()
	assign := s.seq.Label()
	guarded := !and && v.defined != 0
	if guarded {
		s.seq.PutNil()
		s.seq.Defined(v.defined, v.name)
		s.seq.BranchUnless(assign)
	}
	v.read()
	s.seq.Dup()
	if and {
		s.seq.BranchUnless(done)
	} else {
		s.seq.BranchIf(done)
	}
	s.seq.Pop()
	if guarded {
		s.seq.Push(assign)
	}
	c.compileNode(value, true, s)
	s.seq.Dup()
	v.write()
	s.seq.Push(done)
	c.discard(used, s)
}

// compileBackReference lowers $&, $`, $' and $+ to a getspecial on the
// last match.
func (c *Compiler) compileBackReference(n *ast.BackReferenceReadNode, used bool, s *scope) {
	if len(n.Name) != 2 || n.Name[0] != '$' || !strings.ContainsRune("&`'+", rune(n.Name[1])) {
		c.fail(n, ErrInvalid, "invalid back reference %q", n.Name)
	}
	if used {
		s.seq.GetSpecial(bytecode.SpecialBackref, int(n.Name[1])<<1|1)
	}
}
