package compiler

import (
	"github.com/chazu/rbvm/ast"
	"github.com/chazu/rbvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// compileCall lowers a method call. Implicit-self calls push self and set
// FCALL; a bare identifier also sets VCALL.
func (c *Compiler) compileCall(n *ast.CallNode, used bool, s *scope) {
	if n.AttributeWrite {
		c.compileAttributeWrite(n, used, s)
		return
	}

	var flags bytecode.CallFlag
	if n.Receiver == nil {
		s.seq.PutSelf()
		flags |= bytecode.FlagFCall
		if n.VariableCall {
			flags |= bytecode.FlagVCall
		}
	} else {
		c.compileNode(n.Receiver, true, s)
	}

	end := c.safeNavigation(n, s)
	if end != nil {
		flags |= bytecode.FlagSafeNav
	}

	argc, argFlags, kw := c.compileArgs(n.Arguments, n.Block, s)
	block := bytecode.NoSeq
	if bn, ok := n.Block.(*ast.BlockNode); ok {
		block = c.compileBlock(bn, s)
	}
	s.seq.SetLine(n.Line)
	c.send(s, n.Name, argc, flags|argFlags, kw, block)

	if end != nil {
		s.seq.Push(end)
	}
	c.discard(used, s)
}

// compileArgs pushes the arguments of a call and returns the argument
// count, the argument flags and the keyword names.
//
// A trailing keyword list with symbol keys becomes keyword arguments;
// any splat collapses the positional arguments into one array.
func (c *Compiler) compileArgs(args *ast.ArgumentsNode, block ast.Node, s *scope) (int, bytecode.CallFlag, []string) {
	var list []ast.Node
	if args != nil {
		list = args.Arguments
	}
	var kwh *ast.KeywordHashNode
	if len(list) > 0 {
		if k, ok := list[len(list)-1].(*ast.KeywordHashNode); ok {
			kwh = k
			list = list[:len(list)-1]
		}
	}

	var (
		argc  int
		flags bytecode.CallFlag
		kw    []string
	)
	if hasSplat(list) {
		c.compileSplatList(list, s)
		if kwh != nil {
			c.compileKeywordHash(kwh, s)
			s.seq.NewArray(1)
			s.seq.ConcatArray()
		}
		argc = 1
		flags |= bytecode.FlagArgsSplat
	} else {
		for _, a := range list {
			c.compileNode(a, true, s)
		}
		argc = len(list)
		if kwh != nil {
			if names, ok := keywordNames(kwh); ok {
				for _, e := range kwh.Elements {
					c.compileNode(e.Value, true, s)
				}
				kw = names
				argc += len(names)
				flags |= bytecode.FlagKwArg
			} else {
				c.compileKeywordHash(kwh, s)
				argc++
			}
		}
	}

	if ba, ok := block.(*ast.BlockArgumentNode); ok {
		if ba.Expression == nil {
			c.fail(ba, ErrInvalid, "anonymous block argument is not supported")
		}
		c.compileNode(ba.Expression, true, s)
		flags |= bytecode.FlagArgsBlockArg
	}
	if flags&(bytecode.FlagArgsSplat|bytecode.FlagKwArg|bytecode.FlagArgsBlockArg) == 0 {
		flags |= bytecode.FlagArgsSimple
	}
	return argc, flags, kw
}

// keywordNames returns the key names when every key is a symbol literal.
func keywordNames(kwh *ast.KeywordHashNode) ([]string, bool) {
	names := make([]string, 0, len(kwh.Elements))
	seen := make(map[string]bool, len(kwh.Elements))
	for _, e := range kwh.Elements {
		sym, ok := e.Key.(*ast.SymbolNode)
		if !ok || seen[sym.Value] {
			return nil, false
		}
		seen[sym.Value] = true
		names = append(names, sym.Value)
	}
	return names, true
}

func (c *Compiler) compileKeywordHash(kwh *ast.KeywordHashNode, s *scope) {
	for _, e := range kwh.Elements {
		c.compileNode(e.Key, true, s)
		c.compileNode(e.Value, true, s)
	}
	s.seq.NewHash(2 * len(kwh.Elements))
}

// compileBlock compiles a block literal into a child sequence.
func (c *Compiler) compileBlock(bn *ast.BlockNode, s *scope) bytecode.SeqID {
	seq := s.seq.Unit().New(bytecode.KindBlock, "block in "+s.ownerName(), bn.Line, s.seq.ID)
	bs := s.child(seq)
	var params *ast.ParametersNode
	if bn.Parameters != nil {
		params = bn.Parameters.Parameters
	}
	c.compileParameters(params, bn.Locals, bs)
	c.compileStatements(bn.Body, true, bs)
	seq.Leave()
	c.finalize(seq)
	return seq.ID
}

// safeNavigation emits the nil guard of recv&.name with the receiver on
// top of the stack. The returned label is where a nil receiver lands,
// still on the stack in place of the call's result; nil without &.
func (c *Compiler) safeNavigation(n *ast.CallNode, s *scope) *bytecode.Label {
	if !n.SafeNavigation || n.Receiver == nil {
		return nil
	}
	end := s.seq.Label()
	s.seq.Dup()
	s.seq.BranchNil(end)
	return end
}

// compileAttributeWrite lowers recv.name = v and recv[i] = v. The
// expression's value is the assigned value, kept in a slot reserved
// below the receiver. With &. a nil receiver skips the arguments and the
// value is nil.
func (c *Compiler) compileAttributeWrite(n *ast.CallNode, used bool, s *scope) {
	if used {
		s.seq.PutNil()
	}
	var flags bytecode.CallFlag
	if n.Receiver == nil {
		s.seq.PutSelf()
		flags |= bytecode.FlagFCall
	} else {
		c.compileNode(n.Receiver, true, s)
	}
	end := c.safeNavigation(n, s)
	if end != nil {
		flags |= bytecode.FlagSafeNav
	}
	argc, argFlags, kw := c.compileArgs(n.Arguments, n.Block, s)
	if used {
		s.seq.SetN(argc + 1)
	}
	c.send(s, n.Name, argc, flags|argFlags, kw, bytecode.NoSeq)
	if end != nil {
		s.seq.Push(end)
	}
	s.seq.Pop()
}

// compileLambda lowers ->(params) { body } as a call to the VM core with
// the body as its block.
func (c *Compiler) compileLambda(n *ast.LambdaNode, used bool, s *scope) {
	s.seq.PutSpecialObject(bytecode.SpecialVMCore)
	block := c.compileBlock(&ast.BlockNode{
		Pos:        n.Pos,
		Locals:     n.Locals,
		Parameters: n.Parameters,
		Body:       n.Body,
	}, s)
	c.send(s, "core#lambda", 0, bytecode.FlagArgsSimple, nil, block)
	c.discard(used, s)
}

// superName returns the name of the method a super call resolves from.
func (c *Compiler) superName(n ast.Node, s *scope) string {
	m, _ := s.method()
	if m == nil {
		c.fail(n, ErrInvalid, "super called outside of a method")
	}
	return m.seq.Name
}

func (c *Compiler) compileSuper(n *ast.SuperNode, used bool, s *scope) {
	name := c.superName(n, s)
	s.seq.PutSelf()
	argc, flags, kw := c.compileArgs(n.Arguments, n.Block, s)
	block := bytecode.NoSeq
	if bn, ok := n.Block.(*ast.BlockNode); ok {
		block = c.compileBlock(bn, s)
	}
	cd := c.calls.Intern(name, argc, flags|bytecode.FlagFCall|bytecode.FlagSuper, kw)
	s.seq.InvokeSuper(cd, block)
	c.discard(used, s)
}

// compileForwardingSuper lowers a bare super, which passes the current
// values of the enclosing method's parameters.
func (c *Compiler) compileForwardingSuper(n *ast.ForwardingSuperNode, used bool, s *scope) {
	name := c.superName(n, s)
	m, level := s.method()
	shape := &m.seq.Args
	locals := m.seq.Locals
	get := func(slot int) {
		s.seq.GetLocal(locals.Name(slot), bytecode.LocalRef{Index: slot, Level: level})
	}

	s.seq.PutSelf()
	flags := bytecode.FlagFCall | bytecode.FlagSuper | bytecode.FlagZSuper
	argc := 0
	pre := shape.Lead + shape.Opt
	postStart := pre
	if shape.HasRest() {
		postStart++
	}
	if shape.HasRest() {
		for i := 0; i < pre; i++ {
			get(i)
		}
		s.seq.NewArray(pre)
		get(shape.Rest)
		s.seq.ConcatArray()
		for i := 0; i < shape.Post; i++ {
			get(postStart + i)
		}
		if shape.Post > 0 {
			s.seq.NewArray(shape.Post)
			s.seq.ConcatArray()
		}
		argc = 1
		flags |= bytecode.FlagArgsSplat
	} else {
		for i := 0; i < pre+shape.Post; i++ {
			get(i)
		}
		argc = pre + shape.Post
	}

	var kw []string
	kwStart := postStart + shape.Post
	for i, k := range shape.Keywords {
		get(kwStart + i)
		kw = append(kw, k.Name)
	}
	if len(kw) > 0 {
		argc += len(kw)
		flags |= bytecode.FlagKwArg
	}

	block := bytecode.NoSeq
	if n.Block != nil {
		block = c.compileBlock(n.Block, s)
	} else if shape.Block >= 0 {
		get(shape.Block)
		flags |= bytecode.FlagArgsBlockArg
	}
	if flags&(bytecode.FlagArgsSplat|bytecode.FlagKwArg|bytecode.FlagArgsBlockArg) == 0 {
		flags |= bytecode.FlagArgsSimple
	}
	s.seq.InvokeSuper(c.calls.Intern(name, argc, flags, kw), block)
	c.discard(used, s)
}

func (c *Compiler) compileYield(n *ast.YieldNode, used bool, s *scope) {
	if m, _ := s.method(); m == nil {
		c.fail(n, ErrInvalid, "yield outside of a method")
	}
	argc, flags, kw := c.compileArgs(n.Arguments, nil, s)
	s.seq.InvokeBlock(c.calls.Intern("yield", argc, flags, kw))
	c.discard(used, s)
}

// compileAlias lowers alias new old as a call to the VM core.
func (c *Compiler) compileAlias(n *ast.AliasMethodNode, used bool, s *scope) {
	s.seq.PutSpecialObject(bytecode.SpecialVMCore)
	s.seq.PutSpecialObject(bytecode.SpecialCBase)
	s.seq.PutObject(bytecode.Symbol(n.NewName.Value))
	s.seq.PutObject(bytecode.Symbol(n.OldName.Value))
	c.coreSend(s, "set_method_alias", 3)
	c.discard(used, s)
}

// compileAliasGlobal lowers alias $new $old. After it both names refer to
// the same variable.
func (c *Compiler) compileAliasGlobal(n *ast.AliasGlobalVariableNode, used bool, s *scope) {
	for _, name := range []string{n.NewName, n.OldName} {
		if len(name) < 2 || name[0] != '$' {
			c.fail(n, ErrInvalid, "invalid global variable name %q", name)
		}
	}
	s.seq.PutSpecialObject(bytecode.SpecialVMCore)
	s.seq.PutObject(bytecode.Symbol(n.NewName))
	s.seq.PutObject(bytecode.Symbol(n.OldName))
	c.coreSend(s, "set_variable_alias", 2)
	c.discard(used, s)
}

// compilePostExecution lowers END { ... } as a block handed to the VM
// core, which runs it once after the program finishes.
func (c *Compiler) compilePostExecution(n *ast.PostExecutionNode, used bool, s *scope) {
	s.seq.PutSpecialObject(bytecode.SpecialVMCore)
	block := c.compileBlock(&ast.BlockNode{Pos: n.Pos, Body: n.Statements}, s)
	c.send(s, "core#set_postexe", 0, bytecode.FlagArgsSimple, nil, block)
	c.discard(used, s)
}
