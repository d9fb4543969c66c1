package ast

// Constructors for hand-built trees. They leave positions zero except where
// noted; front-ends that track positions build the structs directly.

// Program wraps statements in a program node declaring locals.
func Program(locals []string, body ...Node) *ProgramNode {
	return &ProgramNode{Pos: Pos{Line: 1}, Locals: locals, Statements: Stmts(body...)}
}

// Stmts builds a statement list.
func Stmts(body ...Node) *StatementsNode {
	return &StatementsNode{Body: body}
}

func Int(v int64) *IntegerNode            { return &IntegerNode{Value: v} }
func Float(v float64) *FloatNode          { return &FloatNode{Value: v} }
func Str(v string) *StringNode            { return &StringNode{Value: v} }
func Sym(v string) *SymbolNode            { return &SymbolNode{Value: v} }
func Nil() *NilNode                       { return &NilNode{} }
func True() *TrueNode                     { return &TrueNode{} }
func False() *FalseNode                   { return &FalseNode{} }
func Self() *SelfNode                     { return &SelfNode{} }
func Const(name string) *ConstantReadNode { return &ConstantReadNode{Name: name} }

// Array builds an array literal.
func Array(elems ...Node) *ArrayNode { return &ArrayNode{Elements: elems} }

// Hash builds a hash literal from alternating keys and values.
func Hash(kv ...Node) *HashNode {
	h := &HashNode{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Elements = append(h.Elements, &AssocNode{Key: kv[i], Value: kv[i+1]})
	}
	return h
}

// Local reads a local variable in the innermost scope.
func Local(name string) *LocalVariableReadNode {
	return &LocalVariableReadNode{Name: name}
}

// OuterLocal reads a local variable depth scopes outwards.
func OuterLocal(name string, depth int) *LocalVariableReadNode {
	return &LocalVariableReadNode{Name: name, Depth: depth}
}

// Assign writes a local variable in the innermost scope.
func Assign(name string, value Node) *LocalVariableWriteNode {
	return &LocalVariableWriteNode{Name: name, Value: value}
}

// Target is a local variable binding position in the innermost scope.
func Target(name string) *LocalVariableTargetNode {
	return &LocalVariableTargetNode{Name: name}
}

// Args wraps call arguments. It returns nil for no arguments.
func Args(args ...Node) *ArgumentsNode {
	if len(args) == 0 {
		return nil
	}
	return &ArgumentsNode{Arguments: args}
}

// Call is recv.name(args...).
func Call(recv Node, name string, args ...Node) *CallNode {
	return &CallNode{Receiver: recv, Name: name, Arguments: Args(args...)}
}

// FCall is name(args...) with an implicit receiver.
func FCall(name string, args ...Node) *CallNode {
	return &CallNode{Name: name, Arguments: Args(args...)}
}

// Op is the binary operator call left op right.
func Op(left Node, op string, right Node) *CallNode {
	return Call(left, op, right)
}

// Block builds a block with required parameters. Locals beyond the
// parameters are appended after them.
func Block(params []string, locals []string, body ...Node) *BlockNode {
	b := &BlockNode{Locals: append(append([]string(nil), params...), locals...), Body: Stmts(body...)}
	if len(params) > 0 {
		b.Parameters = &BlockParametersNode{Parameters: Required(params...)}
	}
	return b
}

// Required builds a parameter list of required parameters.
func Required(names ...string) *ParametersNode {
	p := &ParametersNode{}
	for _, n := range names {
		p.Requireds = append(p.Requireds, &RequiredParameterNode{Name: n})
	}
	return p
}

// Def builds def name(params) body with the parameters as its locals.
func Def(name string, params *ParametersNode, locals []string, body ...Node) *DefNode {
	return &DefNode{Name: name, Parameters: params, Locals: locals, Body: Stmts(body...)}
}

// If builds if pred then ... else ... end. alt may be nil.
func If(pred Node, then []Node, alt []Node) *IfNode {
	n := &IfNode{Predicate: pred, Statements: Stmts(then...)}
	if alt != nil {
		n.Consequent = &ElseNode{Statements: Stmts(alt...)}
	}
	return n
}

// While builds while pred do body end.
func While(pred Node, body ...Node) *WhileNode {
	return &WhileNode{Predicate: pred, Statements: Stmts(body...)}
}
