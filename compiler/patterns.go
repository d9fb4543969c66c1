package compiler

import (
	"github.com/chazu/rbvm/ast"
	"github.com/chazu/rbvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Pattern matching
// ---------------------------------------------------------------------------

// compileCaseMatch lowers case/in. Each clause tests a copy of the subject;
// with no else clause a failed match raises NoMatchingPatternError.
func (c *Compiler) compileCaseMatch(n *ast.CaseMatchNode, used bool, s *scope) {
	end := s.seq.Label()
	bodies := make([]*bytecode.Label, len(n.Conditions))

	c.compileNode(n.Predicate, true, s)
	for i, in := range n.Conditions {
		bodies[i] = s.seq.Label()
		next := s.seq.Label()
		s.seq.SetLine(in.Line)
		s.seq.Dup()
		c.compilePattern(in.Pattern, bodies[i], next, s)
		s.seq.Push(next)
	}

	if n.Consequent != nil {
		s.seq.Pop()
		c.compileElse(n.Consequent, used, s)
	} else {
		s.seq.PutSpecialObject(bytecode.SpecialVMCore)
		s.seq.Swap()
		c.coreSend(s, "no_matching_pattern", 1)
		c.discard(used, s)
	}
	s.seq.Jump(end)

	for i, in := range n.Conditions {
		s.seq.Push(bodies[i])
		s.seq.Pop()
		c.compileStatements(in.Statements, used, s)
		s.seq.Jump(end)
	}
	s.seq.Push(end)
}

// compileMatchPredicate lowers value in pattern to true or false.
func (c *Compiler) compileMatchPredicate(n *ast.MatchPredicateNode, used bool, s *scope) {
	matched := s.seq.Label()
	unmatched := s.seq.Label()
	end := s.seq.Label()

	c.compileNode(n.Value, true, s)
	c.compilePattern(n.Pattern, matched, unmatched, s)
	s.seq.Push(matched)
	s.seq.PutObject(true)
	s.seq.Jump(end)
	s.seq.Push(unmatched)
	s.seq.PutObject(false)
	s.seq.Push(end)
	c.discard(used, s)
}

// compileMatchRequired lowers value => pattern, which raises on failure
// and evaluates to nil.
func (c *Compiler) compileMatchRequired(n *ast.MatchRequiredNode, used bool, s *scope) {
	matched := s.seq.Label()
	unmatched := s.seq.Label()
	done := s.seq.Label()

	c.compileNode(n.Value, true, s)
	s.seq.Dup()
	c.compilePattern(n.Pattern, matched, unmatched, s)
	s.seq.Push(unmatched)
	s.seq.PutSpecialObject(bytecode.SpecialVMCore)
	s.seq.Swap()
	c.coreSend(s, "no_matching_pattern", 1)
	s.seq.Pop()
	s.seq.Jump(done)
	s.seq.Push(matched)
	s.seq.Pop()
	s.seq.Push(done)
	if used {
		s.seq.PutNil()
	}
}

// compilePattern tests the value on top of the stack against p. The value
// is consumed on both exits and control always leaves through matched or
// unmatched.
func (c *Compiler) compilePattern(p ast.Node, matched, unmatched *bytecode.Label, s *scope) {
	if p != nil {
		s.seq.SetLine(p.Loc().Line)
	}
	switch p := p.(type) {
	case *ast.LocalVariableTargetNode:
		ref := c.localRef(p, p.Name, p.Depth, s, true)
		s.seq.SetLocal(p.Name, ref)
		s.seq.Jump(matched)

	case *ast.PinnedVariableNode:
		c.compileValuePattern(p.Variable, matched, unmatched, s)
	case *ast.PinnedExpressionNode:
		c.compileValuePattern(p.Expression, matched, unmatched, s)

	case *ast.AlternationPatternNode:
		leftOK := s.seq.Label()
		leftFail := s.seq.Label()
		s.seq.Dup()
		c.compilePattern(p.Left, leftOK, leftFail, s)
		s.seq.Push(leftOK)
		s.seq.Pop()
		s.seq.Jump(matched)
		s.seq.Push(leftFail)
		c.compilePattern(p.Right, matched, unmatched, s)

	case *ast.CapturePatternNode:
		ok := s.seq.Label()
		fail := s.seq.Label()
		s.seq.Dup()
		c.compilePattern(p.Value, ok, fail, s)
		s.seq.Push(ok)
		ref := c.localRef(p.Target, p.Target.Name, p.Target.Depth, s, true)
		s.seq.SetLocal(p.Target.Name, ref)
		s.seq.Jump(matched)
		s.seq.Push(fail)
		s.seq.Pop()
		s.seq.Jump(unmatched)

	case *ast.ArrayPatternNode:
		c.compileArrayPattern(p, matched, unmatched, s)
	case *ast.HashPatternNode:
		c.compileHashPattern(p, matched, unmatched, s)

	default:
		c.compileValuePattern(p, matched, unmatched, s)
	}
}

// compileValuePattern matches with pattern === value.
func (c *Compiler) compileValuePattern(p ast.Node, matched, unmatched *bytecode.Label, s *scope) {
	c.compileNode(p, true, s)
	s.seq.CheckMatch(bytecode.CheckMatchCase)
	s.seq.BranchIf(matched)
	s.seq.Jump(unmatched)
}

// compileDeconstruct checks the optional constant and that the value
// responds to method, then replaces it with the deconstructed value. It
// jumps to fail with one value on the stack.
func (c *Compiler) compileDeconstruct(constant ast.Node, method string, args int, fail *bytecode.Label, s *scope) {
	if constant != nil {
		s.seq.Dup()
		c.compileNode(constant, true, s)
		s.seq.CheckMatch(bytecode.CheckMatchCase)
		s.seq.BranchUnless(fail)
	}
	s.seq.Dup()
	s.seq.PutObject(bytecode.Symbol(method))
	c.simpleSend(s, "respond_to?", 1)
	s.seq.BranchUnless(fail)
	for i := 0; i < args; i++ {
		s.seq.PutNil()
	}
	c.simpleSend(s, method, args)
}

// compileArrayPattern lowers Const[a, *rest, b].
func (c *Compiler) compileArrayPattern(p *ast.ArrayPatternNode, matched, unmatched *bytecode.Label, s *scope) {
	fail := s.seq.Label()
	c.compileDeconstruct(p.Constant, "deconstruct", 0, fail, s)

	fixed := len(p.Requireds) + len(p.Posts)
	s.seq.Dup()
	c.simpleSend(s, "length", 0)
	s.seq.PutObject(int64(fixed))
	if p.Rest != nil {
		c.simpleSend(s, ">=", 1)
	} else {
		c.simpleSend(s, "==", 1)
	}
	s.seq.BranchUnless(fail)

	element := func(index int64, sub ast.Node) {
		ok := s.seq.Label()
		s.seq.Dup()
		s.seq.PutObject(index)
		c.simpleSend(s, "[]", 1)
		c.compilePattern(sub, ok, fail, s)
		s.seq.Push(ok)
	}
	for i, sub := range p.Requireds {
		element(int64(i), sub)
	}
	if p.Rest != nil && p.Rest.Expression != nil {
		ok := s.seq.Label()
		s.seq.Dup()
		s.seq.PutObject(int64(len(p.Requireds)))
		s.seq.PutObject(int64(-len(p.Posts) - 1))
		s.seq.NewRange(false)
		c.simpleSend(s, "[]", 1)
		c.compilePattern(p.Rest.Expression, ok, fail, s)
		s.seq.Push(ok)
	}
	for j, sub := range p.Posts {
		element(int64(j-len(p.Posts)), sub)
	}
	s.seq.Pop()
	s.seq.Jump(matched)

	s.seq.Push(fail)
	s.seq.Pop()
	s.seq.Jump(unmatched)
}

// compileHashPattern lowers Const(key: pattern, ...). A key without a
// pattern binds a local of the same name.
func (c *Compiler) compileHashPattern(p *ast.HashPatternNode, matched, unmatched *bytecode.Label, s *scope) {
	fail := s.seq.Label()
	c.compileDeconstruct(p.Constant, "deconstruct_keys", 1, fail, s)

	if len(p.Elements) == 0 {
		s.seq.Dup()
		c.simpleSend(s, "empty?", 0)
		s.seq.BranchUnless(fail)
	}
	for _, e := range p.Elements {
		key, ok := e.Key.(*ast.SymbolNode)
		if !ok {
			c.fail(e, ErrInvalid, "hash pattern key must be a symbol, got %s", e.Key.Kind())
		}
		s.seq.Dup()
		s.seq.PutObject(bytecode.Symbol(key.Value))
		c.simpleSend(s, "key?", 1)
		s.seq.BranchUnless(fail)

		s.seq.Dup()
		s.seq.PutObject(bytecode.Symbol(key.Value))
		c.simpleSend(s, "[]", 1)
		sub := e.Value
		if sub == nil {
			sub = &ast.LocalVariableTargetNode{Pos: key.Pos, Name: key.Value}
		}
		next := s.seq.Label()
		c.compilePattern(sub, next, fail, s)
		s.seq.Push(next)
	}
	s.seq.Pop()
	s.seq.Jump(matched)

	s.seq.Push(fail)
	s.seq.Pop()
	s.seq.Jump(unmatched)
}
