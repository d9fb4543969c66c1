package compiler

import (
	"github.com/chazu/rbvm/ast"
	"github.com/chazu/rbvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Methods
// ---------------------------------------------------------------------------

// compileDef compiles the method body into a child sequence and defines it
// on the current cbase, or on the receiver's singleton class for def
// recv.name.
func (c *Compiler) compileDef(n *ast.DefNode, used bool, s *scope) {
	seq := s.seq.Unit().New(bytecode.KindMethod, n.Name, n.Line, s.seq.ID)
	ms := s.child(seq)
	c.compileParameters(n.Parameters, n.Locals, ms)
	c.compileNode(n.Body, true, ms)
	seq.Leave()
	c.finalize(seq)

	s.seq.SetLine(n.Line)
	if n.Receiver != nil {
		c.compileNode(n.Receiver, true, s)
		s.seq.DefineSMethod(n.Name, seq.ID)
	} else {
		s.seq.DefineMethod(n.Name, seq.ID)
	}
	if used {
		s.seq.PutObject(bytecode.Symbol(n.Name))
	}
}

// compileParameters declares the parameter slots of s in argument order,
// then the remaining locals, and emits the prologue: optional parameter
// defaults, optional keyword defaults and destructuring of nested
// parameters.
func (c *Compiler) compileParameters(p *ast.ParametersNode, locals []string, s *scope) {
	seq := s.seq
	args := &seq.Args

	var multis []struct {
		slot   int
		target *ast.MultiTargetNode
	}
	positional := func(n ast.Node) {
		switch n := n.(type) {
		case *ast.RequiredParameterNode:
			seq.Locals.Plain(n.Name)
		case *ast.MultiTargetNode:
			slot := seq.Locals.Anonymous("multi")
			multis = append(multis, struct {
				slot   int
				target *ast.MultiTargetNode
			}{slot, n})
		default:
			c.fail(n, ErrInvalid, "unexpected positional parameter %s", n.Kind())
		}
	}

	if p != nil {
		for _, r := range p.Requireds {
			positional(r)
		}
		args.Lead = len(p.Requireds)
		for _, o := range p.Optionals {
			seq.Locals.Plain(o.Name)
		}
		args.Opt = len(p.Optionals)
		if p.Rest != nil {
			if p.Rest.Name == "" {
				args.Rest = seq.Locals.Anonymous("rest")
			} else {
				args.Rest = seq.Locals.Plain(p.Rest.Name)
			}
		}
		for _, r := range p.Posts {
			positional(r)
		}
		args.Post = len(p.Posts)
		for _, k := range p.Keywords {
			switch k := k.(type) {
			case *ast.RequiredKeywordParameterNode:
				seq.Locals.Plain(k.Name)
				args.Keywords = append(args.Keywords, bytecode.Keyword{Name: k.Name, Required: true})
			case *ast.OptionalKeywordParameterNode:
				seq.Locals.Plain(k.Name)
				args.Keywords = append(args.Keywords, bytecode.Keyword{Name: k.Name})
			default:
				c.fail(k, ErrInvalid, "unexpected keyword parameter %s", k.Kind())
			}
		}
		if p.Block != nil {
			if p.Block.Name == "" {
				args.Block = seq.Locals.Anonymous("block")
			} else {
				args.Block = seq.Locals.Plain(p.Block.Name)
			}
		}
	}
	for _, name := range locals {
		seq.Locals.Plain(name)
	}
	if p == nil {
		return
	}

	if len(p.Optionals) > 0 {
		entry := seq.Label()
		seq.Push(entry)
		seq.AddOptLabel(entry)
		for _, o := range p.Optionals {
			seq.SetLine(o.Line)
			c.compileNode(o.Value, true, s)
			slot, _ := seq.Locals.Find(o.Name)
			seq.SetLocal(o.Name, bytecode.LocalRef{Index: slot})
			next := seq.Label()
			seq.Push(next)
			seq.AddOptLabel(next)
		}
	}

	for i, k := range p.Keywords {
		opt, ok := k.(*ast.OptionalKeywordParameterNode)
		if !ok {
			continue
		}
		skip := seq.Label()
		seq.CheckKeyword(i)
		seq.BranchIf(skip)
		c.compileNode(opt.Value, true, s)
		slot, _ := seq.Locals.Find(opt.Name)
		seq.SetLocal(opt.Name, bytecode.LocalRef{Index: slot})
		seq.Push(skip)
	}

	for _, m := range multis {
		seq.GetLocal(seq.Locals.Name(m.slot), bytecode.LocalRef{Index: m.slot})
		c.compileDestructure(m.target.Lefts, m.target.Rest, m.target.Rights, s)
	}
}

// ---------------------------------------------------------------------------
// Classes and modules
// ---------------------------------------------------------------------------

// compileCBase pushes the scope a class or module is defined under and
// returns the constant name with the defineclass scope flags.
func (c *Compiler) compileCBase(path ast.Node, s *scope) (string, int) {
	switch p := path.(type) {
	case *ast.ConstantReadNode:
		s.seq.PutSpecialObject(bytecode.SpecialConstBase)
		return p.Name, 0
	case *ast.ConstantPathNode:
		c.compileNode(p.Parent, true, s)
		return p.Name, bytecode.ClassScoped
	}
	c.fail(path, ErrInvalid, "class or module name must be a constant")
	return "", 0
}

// compileClassBody compiles a class, module or singleton class body into a
// child sequence.
func (c *Compiler) compileClassBody(kind bytecode.Kind, name string, line int, body ast.Node, locals []string, s *scope) bytecode.SeqID {
	seq := s.seq.Unit().New(kind, name, line, s.seq.ID)
	cs := s.child(seq)
	for _, l := range locals {
		seq.Locals.Plain(l)
	}
	c.compileNode(body, true, cs)
	seq.Leave()
	c.finalize(seq)
	return seq.ID
}

func (c *Compiler) compileClass(n *ast.ClassNode, used bool, s *scope) {
	name, flags := c.compileCBase(n.ConstantPath, s)
	if n.Superclass != nil {
		c.compileNode(n.Superclass, true, s)
		flags |= bytecode.ClassHasSuper
	} else {
		s.seq.PutNil()
	}
	body := c.compileClassBody(bytecode.KindClass, "<class:"+name+">", n.Line, n.Body, n.Locals, s)
	s.seq.SetLine(n.Line)
	s.seq.DefineClass(name, body, flags|bytecode.ClassTypeClass)
	c.discard(used, s)
}

func (c *Compiler) compileModule(n *ast.ModuleNode, used bool, s *scope) {
	name, flags := c.compileCBase(n.ConstantPath, s)
	s.seq.PutNil()
	body := c.compileClassBody(bytecode.KindModule, "<module:"+name+">", n.Line, n.Body, n.Locals, s)
	s.seq.SetLine(n.Line)
	s.seq.DefineClass(name, body, flags|bytecode.ClassTypeModule)
	c.discard(used, s)
}

func (c *Compiler) compileSingletonClass(n *ast.SingletonClassNode, used bool, s *scope) {
	c.compileNode(n.Expression, true, s)
	s.seq.PutNil()
	body := c.compileClassBody(bytecode.KindSingletonClass, "singleton class", n.Line, n.Body, n.Locals, s)
	s.seq.SetLine(n.Line)
	s.seq.DefineClass("singletonclass", body, bytecode.ClassTypeSingleton)
	c.discard(used, s)
}
