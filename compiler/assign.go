package compiler

import (
	"github.com/chazu/rbvm/ast"
	"github.com/chazu/rbvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Multiple assignment
// ---------------------------------------------------------------------------

// compileMultiWrite lowers a, *b, c = value. The expression's value is the
// right-hand side.
func (c *Compiler) compileMultiWrite(n *ast.MultiWriteNode, used bool, s *scope) {
	c.compileNode(n.Value, true, s)
	if used {
		s.seq.Dup()
	}
	c.compileDestructure(n.Lefts, n.Rest, n.Rights, s)
}

// compileDestructure spreads the value on top of the stack over the
// targets and consumes it.
func (c *Compiler) compileDestructure(lefts []ast.Node, rest *ast.SplatNode, rights []ast.Node, s *scope) {
	s.seq.ExpandArray(len(lefts), len(rights), rest != nil)
	for _, t := range lefts {
		c.assignTarget(t, s)
	}
	if rest != nil {
		if rest.Expression != nil {
			c.assignTarget(rest.Expression, s)
		} else {
			s.seq.Pop()
		}
	}
	for _, t := range rights {
		c.assignTarget(t, s)
	}
}

// assignTarget stores the value on top of the stack into a binding
// position and consumes it.
func (c *Compiler) assignTarget(t ast.Node, s *scope) {
	if t != nil {
		s.seq.SetLine(t.Loc().Line)
	}
	switch t := t.(type) {
	case *ast.LocalVariableTargetNode:
		ref := c.localRef(t, t.Name, t.Depth, s, true)
		s.seq.SetLocal(t.Name, ref)
	case *ast.RequiredParameterNode:
		ref := c.localRef(t, t.Name, 0, s, true)
		s.seq.SetLocal(t.Name, ref)
	case *ast.InstanceVariableTargetNode:
		s.seq.SetInstanceVariable(t.Name)
	case *ast.GlobalVariableTargetNode:
		s.seq.SetGlobal(t.Name)
	case *ast.ConstantTargetNode:
		s.seq.PutSpecialObject(bytecode.SpecialConstBase)
		s.seq.SetConstant(t.Name)
	case *ast.MultiTargetNode:
		c.compileDestructure(t.Lefts, t.Rest, t.Rights, s)
	case *ast.SplatNode:
		if t.Expression == nil {
			s.seq.Pop()
			return
		}
		c.assignTarget(t.Expression, s)
	case *ast.CallNode:
		// recv.name = v or recv[i] = v with v already below the receiver.
		if t.Receiver == nil {
			s.seq.PutSelf()
		} else {
			c.compileNode(t.Receiver, true, s)
		}
		argc, flags, kw := c.compileArgs(t.Arguments, nil, s)
		if flags&bytecode.FlagArgsSplat != 0 {
			c.fail(t, ErrInvalid, "splat in an assignment target is not supported")
		}
		s.seq.TopN(argc + 1)
		name := t.Name
		if !t.AttributeWrite {
			name += "="
		}
		if t.Receiver == nil {
			flags |= bytecode.FlagFCall
		}
		c.send(s, name, argc+1, flags, kw, bytecode.NoSeq)
		s.seq.Pop()
		s.seq.Pop()
	case nil:
		c.fail(nil, ErrInvalid, "missing assignment target")
	default:
		c.fail(t, ErrInvalid, "cannot assign to %s", t.Kind())
	}
}

// compileMatchWrite lowers regexp =~ value with named groups:
//
//	           <call>
//	           getglobal $~; dup; branchunless unmatched
//	           (dup); putobject :name; send []; setlocal   (per target)
//	           jump matched
//	unmatched: pop; putnil; setlocal                       (per target)
//	matched:
func (c *Compiler) compileMatchWrite(n *ast.MatchWriteNode, used bool, s *scope) {
	if len(n.Targets) == 0 {
		c.compileNode(n.Call, used, s)
		return
	}
	unmatched := s.seq.Label()
	matched := s.seq.Label()

	c.compileNode(n.Call, true, s)
	s.seq.GetGlobal("$~")
	s.seq.Dup()
	s.seq.BranchUnless(unmatched)
	for k, t := range n.Targets {
		if k != len(n.Targets)-1 {
			s.seq.Dup()
		}
		s.seq.PutObject(bytecode.Symbol(t.Name))
		c.send(s, "[]", 1, bytecode.FlagArgsSimple, nil, bytecode.NoSeq)
		c.assignTarget(t, s)
	}
	s.seq.Jump(matched)

	s.seq.Push(unmatched)
	s.seq.Pop()
	for _, t := range n.Targets {
		s.seq.PutNil()
		c.assignTarget(t, s)
	}
	s.seq.Push(matched)
	c.discard(used, s)
}
