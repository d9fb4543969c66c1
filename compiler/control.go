package compiler

import (
	"github.com/chazu/rbvm/ast"
	"github.com/chazu/rbvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Conditionals
// ---------------------------------------------------------------------------

// compileLogical lowers left && right (and is true) or left || right.
func (c *Compiler) compileLogical(left, right ast.Node, and bool, used bool, s *scope) {
	end := s.seq.Label()
	c.compileNode(left, true, s)
	if used {
		s.seq.Dup()
	}
	if and {
		s.seq.BranchUnless(end)
	} else {
		s.seq.BranchIf(end)
	}
	if used {
		s.seq.Pop()
	}
	c.compileNode(right, used, s)
	s.seq.Push(end)
}

// compileIf lowers if/unless/elsif and the ternary operator. negate swaps
// the branches for unless.
func (c *Compiler) compileIf(pred ast.Node, then *ast.StatementsNode, alt ast.Node, negate bool, used bool, s *scope) {
	elseL := s.seq.Label()
	done := s.seq.Label()

	c.compileNode(pred, true, s)
	if negate {
		s.seq.BranchIf(elseL)
	} else {
		s.seq.BranchUnless(elseL)
	}
	c.compileStatements(then, used, s)
	s.seq.Jump(done)

	s.seq.Push(elseL)
	c.compileNode(alt, used, s)
	s.seq.Push(done)
}

// ---------------------------------------------------------------------------
// Loops
// ---------------------------------------------------------------------------

// compileLoop lowers while and until:
//
//	      jump pred        (skipped for begin...end while)
//	body: <statements>
//	pred: <predicate>
//	      branchif body    (branchunless for until)
//	      putnil
//	end:
//
// break jumps to end with its value on the stack and next jumps to pred.
func (c *Compiler) compileLoop(pred ast.Node, body *ast.StatementsNode, doWhile, until bool, used bool, s *scope) {
	bodyL := s.seq.Label()
	predL := s.seq.Label()
	endL := s.seq.Label()

	if !doWhile {
		s.seq.Jump(predL)
	}
	s.seq.Push(bodyL)
	s.loops = append(s.loops, &loop{next: predL, brk: endL, ensures: len(s.ensures), depth: s.seq.StackDepth()})
	c.compileStatements(body, false, s)
	s.loops = s.loops[:len(s.loops)-1]

	s.seq.Push(predL)
	c.compileNode(pred, true, s)
	if until {
		s.seq.BranchUnless(bodyL)
	} else {
		s.seq.BranchIf(bodyL)
	}
	s.seq.PutNil()
	s.seq.Push(endL)
	c.discard(used, s)
}

// compileFor lowers for index in collection as collection.each with a
// block whose locals belong to the enclosing scope.
func (c *Compiler) compileFor(n *ast.ForNode, used bool, s *scope) {
	c.compileNode(n.Collection, true, s)

	blk := s.seq.Unit().New(bytecode.KindBlock, "block in "+s.ownerName(), n.Line, s.seq.ID)
	bs := &scope{seq: blk, parent: s, transparent: true}
	slot := blk.Locals.Anonymous("for")
	blk.Args.Lead = 1
	blk.GetLocal(blk.Locals.Name(slot), bytecode.LocalRef{Index: slot})
	c.assignTarget(n.Index, bs)
	c.compileStatements(n.Statements, true, bs)
	blk.Leave()
	c.finalize(blk)

	c.send(s, "each", 0, bytecode.FlagArgsSimple, nil, blk.ID)
	c.discard(used, s)
}

// compileJumpValue pushes the value carried by break, next or return.
func (c *Compiler) compileJumpValue(args *ast.ArgumentsNode, s *scope) {
	switch {
	case args == nil || len(args.Arguments) == 0:
		s.seq.PutNil()
	case len(args.Arguments) == 1 && !hasSplat(args.Arguments):
		c.compileNode(args.Arguments[0], true, s)
	default:
		c.compileArray(&ast.ArrayNode{Pos: args.Pos, Elements: args.Arguments}, true, s)
	}
}

// inlineEnsures emits the ensure bodies entered since the loop began,
// innermost first.
func (c *Compiler) inlineEnsures(l *loop, s *scope) {
	saved := s.ensures
	for i := len(saved) - 1; i >= l.ensures; i-- {
		s.ensures = saved[:i]
		c.compileStatements(saved[i].Statements, false, s)
	}
	s.ensures = saved
}

// unwindLoop drops the operands pushed since the loop body began. With
// keep the value on top survives in place of them.
func (c *Compiler) unwindLoop(l *loop, keep bool, s *scope) {
	extra := s.seq.StackDepth() - l.depth
	if keep {
		extra--
		if extra > 0 {
			s.seq.SetN(extra)
		}
	}
	if extra > 0 {
		s.seq.AdjustStack(extra)
	}
}

func (c *Compiler) compileBreak(n *ast.BreakNode, used bool, s *scope) {
	depth := s.seq.StackDepth()
	if l := s.loop(); l != nil {
		c.compileJumpValue(n.Arguments, s)
		c.inlineEnsures(l, s)
		c.unwindLoop(l, true, s)
		s.seq.Jump(l.brk)
		s.seq.SetStackDepth(depth)
	} else if s.seq.Kind == bytecode.KindBlock {
		c.compileJumpValue(n.Arguments, s)
		s.seq.Throw(bytecode.ThrowBreak)
	} else {
		c.fail(n, ErrInvalid, "break outside of a loop or block")
	}
	if used {
		s.seq.PutNil()
	}
}

func (c *Compiler) compileNext(n *ast.NextNode, used bool, s *scope) {
	depth := s.seq.StackDepth()
	if l := s.loop(); l != nil {
		c.compileJumpValue(n.Arguments, s)
		s.seq.Pop()
		c.inlineEnsures(l, s)
		c.unwindLoop(l, false, s)
		s.seq.Jump(l.next)
		s.seq.SetStackDepth(depth)
	} else if s.seq.Kind == bytecode.KindBlock {
		c.compileJumpValue(n.Arguments, s)
		s.seq.Throw(bytecode.ThrowNext)
	} else {
		c.fail(n, ErrInvalid, "next outside of a loop or block")
	}
	if used {
		s.seq.PutNil()
	}
}

// compileReturn always throws, so that ensure handlers run and returns
// from blocks reach their method.
func (c *Compiler) compileReturn(n *ast.ReturnNode, used bool, s *scope) {
	switch s.seq.Kind {
	case bytecode.KindClass, bytecode.KindModule, bytecode.KindSingletonClass:
		c.fail(n, ErrInvalid, "return inside a class body")
	}
	c.compileJumpValue(n.Arguments, s)
	s.seq.Throw(bytecode.ThrowReturn)
	if used {
		s.seq.PutNil()
	}
}

// ---------------------------------------------------------------------------
// case/when
// ---------------------------------------------------------------------------

// compileCase lowers case/when. With a predicate each condition is tested
// with ===; without one each condition is tested for truthiness.
func (c *Compiler) compileCase(n *ast.CaseNode, used bool, s *scope) {
	end := s.seq.Label()
	bodies := make([]*bytecode.Label, len(n.Conditions))
	for i := range bodies {
		bodies[i] = s.seq.Label()
	}
	subject := n.Predicate != nil

	if subject {
		c.compileNode(n.Predicate, true, s)
	}
	for i, when := range n.Conditions {
		for _, cond := range when.Conditions {
			sp, splat := cond.(*ast.SplatNode)
			switch {
			case subject && splat:
				s.seq.Dup()
				c.compileNode(sp.Expression, true, s)
				s.seq.SplatArray(false)
				s.seq.CheckMatch(bytecode.CheckMatchCase | bytecode.CheckMatchArray)
			case subject:
				s.seq.Dup()
				c.compileNode(cond, true, s)
				s.seq.CheckMatch(bytecode.CheckMatchCase)
			case splat:
				s.seq.PutNil()
				c.compileNode(sp.Expression, true, s)
				s.seq.SplatArray(false)
				s.seq.CheckMatch(bytecode.CheckMatchWhen | bytecode.CheckMatchArray)
			default:
				c.compileNode(cond, true, s)
			}
			s.seq.BranchIf(bodies[i])
		}
	}

	if subject {
		s.seq.Pop()
	}
	c.compileElse(n.Consequent, used, s)
	s.seq.Jump(end)

	for i, when := range n.Conditions {
		s.seq.Push(bodies[i])
		if subject {
			s.seq.Pop()
		}
		c.compileStatements(when.Statements, used, s)
		s.seq.Jump(end)
	}
	s.seq.Push(end)
}

func (c *Compiler) compileElse(n *ast.ElseNode, used bool, s *scope) {
	if n == nil {
		if used {
			s.seq.PutNil()
		}
		return
	}
	c.compileStatements(n.Statements, used, s)
}

// ---------------------------------------------------------------------------
// begin/rescue/else/ensure
// ---------------------------------------------------------------------------

func (c *Compiler) compileBegin(n *ast.BeginNode, used bool, s *scope) {
	if n.EnsureClause != nil {
		c.compileEnsure(n, used, s)
		return
	}
	c.compileRescue(n, used, s)
}

// compileRescue lowers the body, rescue clauses and else part:
//
//	start:   <body>
//	end:     <else>
//	         jump done
//	handler: dup; <class>; checkmatch RESCUE; branchif clause_k   (per class)
//	         throw RAISE
//	clause_k: <bind or pop>; <statements>; jump done
//	done:
func (c *Compiler) compileRescue(n *ast.BeginNode, used bool, s *scope) {
	if n.RescueClause == nil {
		if n.ElseClause == nil {
			c.compileStatements(n.Statements, used, s)
			return
		}
		c.compileStatements(n.Statements, false, s)
		c.compileElse(n.ElseClause, used, s)
		return
	}

	start := s.seq.Label()
	end := s.seq.Label()
	handler := s.seq.Label()
	done := s.seq.Label()

	s.seq.Push(start)
	depth := s.seq.StackDepth()
	if n.ElseClause != nil {
		c.compileStatements(n.Statements, false, s)
	} else {
		c.compileStatements(n.Statements, used, s)
	}
	s.seq.Push(end)
	if n.ElseClause != nil {
		c.compileElse(n.ElseClause, used, s)
	}
	s.seq.Jump(done)

	var clauses []*ast.RescueNode
	for r := n.RescueClause; r != nil; r = r.Subsequent {
		clauses = append(clauses, r)
	}
	bodies := make([]*bytecode.Label, len(clauses))

	s.seq.Push(handler)
	s.seq.SetStackDepth(depth + 1)
	for k, r := range clauses {
		bodies[k] = s.seq.Label()
		s.seq.SetLine(r.Line)
		if len(r.Exceptions) == 0 {
			s.seq.Dup()
			s.seq.PutNil()
			s.seq.GetConstant("StandardError", 0)
			s.seq.CheckMatch(bytecode.CheckMatchRescue)
			s.seq.BranchIf(bodies[k])
			continue
		}
		for _, exc := range r.Exceptions {
			s.seq.Dup()
			if sp, ok := exc.(*ast.SplatNode); ok {
				c.compileNode(sp.Expression, true, s)
				s.seq.SplatArray(false)
				s.seq.CheckMatch(bytecode.CheckMatchRescue | bytecode.CheckMatchArray)
			} else {
				c.compileNode(exc, true, s)
				s.seq.CheckMatch(bytecode.CheckMatchRescue)
			}
			s.seq.BranchIf(bodies[k])
		}
	}
	s.seq.Throw(bytecode.ThrowRaise)

	for k, r := range clauses {
		s.seq.Push(bodies[k])
		if r.Reference != nil {
			c.assignTarget(r.Reference, s)
		} else {
			s.seq.Pop()
		}
		c.compileStatements(r.Statements, used, s)
		s.seq.Jump(done)
	}
	s.seq.Push(done)
	s.seq.AddCatch(bytecode.CatchRescue, start, end, handler)
}

// compileEnsure lowers a begin with an ensure clause. The ensure body is
// emitted twice: once on the normal path and once in the handler, which
// re-raises whatever interrupted the protected range.
func (c *Compiler) compileEnsure(n *ast.BeginNode, used bool, s *scope) {
	start := s.seq.Label()
	end := s.seq.Label()
	handler := s.seq.Label()
	done := s.seq.Label()

	inner := *n
	inner.EnsureClause = nil

	s.seq.Push(start)
	depth := s.seq.StackDepth()
	s.ensures = append(s.ensures, n.EnsureClause)
	c.compileRescue(&inner, used, s)
	s.ensures = s.ensures[:len(s.ensures)-1]
	s.seq.Push(end)
	c.compileStatements(n.EnsureClause.Statements, false, s)
	s.seq.Jump(done)

	s.seq.Push(handler)
	s.seq.SetStackDepth(depth + 1)
	c.compileStatements(n.EnsureClause.Statements, false, s)
	s.seq.Throw(bytecode.ThrowRaise)
	s.seq.Push(done)
	s.seq.AddCatch(bytecode.CatchEnsure, start, end, handler)
}

// ---------------------------------------------------------------------------
// defined?
// ---------------------------------------------------------------------------

// compileDefined answers statically where the answer cannot change at run
// time and emits a defined instruction otherwise.
func (c *Compiler) compileDefined(n *ast.DefinedNode, used bool, s *scope) {
	static := func(v string) {
		if used {
			s.seq.PutObject(v)
		}
	}
	runtime := func(typ int, name string) {
		s.seq.Defined(typ, name)
		c.discard(used, s)
	}

	switch v := n.Value.(type) {
	case *ast.ParenthesesNode:
		c.compileDefined(&ast.DefinedNode{Pos: n.Pos, Value: v.Body}, used, s)
	case nil, *ast.NilNode, *ast.TrueNode, *ast.FalseNode:
		static("expression")
	case *ast.SelfNode:
		static("self")
	case *ast.LocalVariableReadNode:
		c.localRef(v, v.Name, v.Depth, s, false)
		static("local-variable")
	case *ast.LocalVariableWriteNode, *ast.LocalVariableOperatorWriteNode,
		*ast.LocalVariableAndWriteNode, *ast.LocalVariableOrWriteNode,
		*ast.InstanceVariableWriteNode, *ast.InstanceVariableOperatorWriteNode,
		*ast.InstanceVariableAndWriteNode, *ast.InstanceVariableOrWriteNode,
		*ast.ClassVariableWriteNode, *ast.ClassVariableOperatorWriteNode,
		*ast.ClassVariableAndWriteNode, *ast.ClassVariableOrWriteNode,
		*ast.GlobalVariableWriteNode, *ast.GlobalVariableOperatorWriteNode,
		*ast.GlobalVariableAndWriteNode, *ast.GlobalVariableOrWriteNode,
		*ast.ConstantWriteNode, *ast.ConstantOperatorWriteNode,
		*ast.ConstantAndWriteNode, *ast.ConstantOrWriteNode,
		*ast.MultiWriteNode:
		static("assignment")
	case *ast.InstanceVariableReadNode:
		s.seq.PutNil()
		runtime(bytecode.DefinedIvar, v.Name)
	case *ast.GlobalVariableReadNode:
		s.seq.PutNil()
		runtime(bytecode.DefinedGvar, v.Name)
	case *ast.ClassVariableReadNode:
		s.seq.PutNil()
		runtime(bytecode.DefinedCvar, v.Name)
	case *ast.ConstantReadNode:
		s.seq.PutNil()
		runtime(bytecode.DefinedConst, v.Name)
	case *ast.ConstantPathNode:
		c.compileNode(v.Parent, true, s)
		runtime(bytecode.DefinedConst, v.Name)
	case *ast.CallNode:
		if v.Receiver == nil {
			s.seq.PutSelf()
		} else {
			c.compileNode(v.Receiver, true, s)
		}
		runtime(bytecode.DefinedMethod, v.Name)
	case *ast.YieldNode:
		s.seq.PutNil()
		runtime(bytecode.DefinedYield, "")
	case *ast.SuperNode, *ast.ForwardingSuperNode:
		if m, _ := s.method(); m != nil {
			static("super")
		} else if used {
			s.seq.PutNil()
		}
	default:
		static("expression")
	}
}
