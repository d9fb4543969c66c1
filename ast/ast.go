// Package ast defines the closed node vocabulary produced by the front-end
// parser and consumed by the compiler.
//
// Nodes are plain structs with typed child fields. Every node reports its
// Kind and its source position; the compiler dispatches on the concrete type
// and rejects anything it has no lowering rule for.
package ast

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

// Pos is the source position of a node. It is embedded in every node.
type Pos struct {
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Loc returns the position itself.
func (p Pos) Loc() Pos { return p }
func (Pos) node()      {}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Kind() Kind
	Loc() Pos
	node() // marker method
}

// ---------------------------------------------------------------------------
// Program structure
// ---------------------------------------------------------------------------

// ProgramNode is the root of a compilation unit.
type ProgramNode struct {
	Pos
	Locals     []string
	Statements *StatementsNode
}

// StatementsNode is a statement list. Only the last statement produces the
// list's value.
type StatementsNode struct {
	Pos
	Body []Node
}

// ParenthesesNode is a parenthesized expression or statement list.
type ParenthesesNode struct {
	Pos
	Body Node // *StatementsNode or nil
}

// MissingNode stands for a syntax error recovered by the parser. It never
// compiles.
type MissingNode struct {
	Pos
}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

// IntegerNode is an integer literal.
type IntegerNode struct {
	Pos
	Value int64
}

// FloatNode is a floating-point literal.
type FloatNode struct {
	Pos
	Value float64
}

// StringNode is a plain string literal.
type StringNode struct {
	Pos
	Value string
}

// InterpolatedStringNode is "a#{b}c". Parts are StringNode and
// EmbeddedStatementsNode values.
type InterpolatedStringNode struct {
	Pos
	Parts []Node
}

// EmbeddedStatementsNode is the #{...} part of an interpolation.
type EmbeddedStatementsNode struct {
	Pos
	Statements *StatementsNode
}

// SymbolNode is :name.
type SymbolNode struct {
	Pos
	Value string
}

// RegularExpressionNode is /source/flags.
type RegularExpressionNode struct {
	Pos
	Source string
	Flags  string
}

// InterpolatedRegularExpressionNode is /a#{b}/flags.
type InterpolatedRegularExpressionNode struct {
	Pos
	Parts []Node
	Flags string
}

// MatchWriteNode is regexp =~ value where the regexp literal has named
// groups; each group is written to the local of the same name.
type MatchWriteNode struct {
	Pos
	Call    *CallNode
	Targets []*LocalVariableTargetNode
}

type TrueNode struct{ Pos }
type FalseNode struct{ Pos }
type NilNode struct{ Pos }
type SelfNode struct{ Pos }

// SourceLineNode is __LINE__.
type SourceLineNode struct{ Pos }

// SourceFileNode is __FILE__.
type SourceFileNode struct{ Pos }

// ArrayNode is [a, *b, c].
type ArrayNode struct {
	Pos
	Elements []Node
}

// HashNode is {k => v, ...}. Elements are AssocNode values.
type HashNode struct {
	Pos
	Elements []*AssocNode
}

// AssocNode is one key/value pair of a hash literal or keyword argument list.
type AssocNode struct {
	Pos
	Key   Node
	Value Node
}

// RangeNode is a..b or a...b. Either end may be nil.
type RangeNode struct {
	Pos
	Left       Node
	Right      Node
	ExcludeEnd bool
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// Local variables carry the lexical depth the parser resolved: 0 is the
// innermost scope, N means N scopes outwards.

type LocalVariableReadNode struct {
	Pos
	Name  string
	Depth int
}

type LocalVariableWriteNode struct {
	Pos
	Name  string
	Depth int
	Value Node
}

// LocalVariableOperatorWriteNode is x op= value.
type LocalVariableOperatorWriteNode struct {
	Pos
	Name     string
	Depth    int
	Operator string // "+", "-", ...
	Value    Node
}

type LocalVariableAndWriteNode struct {
	Pos
	Name  string
	Depth int
	Value Node
}

type LocalVariableOrWriteNode struct {
	Pos
	Name  string
	Depth int
	Value Node
}

// LocalVariableTargetNode is a local variable in a binding position: a
// multiple-assignment target, a for-loop index or a pattern binder.
type LocalVariableTargetNode struct {
	Pos
	Name  string
	Depth int
}

type InstanceVariableReadNode struct {
	Pos
	Name string
}

type InstanceVariableWriteNode struct {
	Pos
	Name  string
	Value Node
}

type InstanceVariableOperatorWriteNode struct {
	Pos
	Name     string
	Operator string
	Value    Node
}

type InstanceVariableAndWriteNode struct {
	Pos
	Name  string
	Value Node
}

type InstanceVariableOrWriteNode struct {
	Pos
	Name  string
	Value Node
}

type InstanceVariableTargetNode struct {
	Pos
	Name string
}

type ClassVariableReadNode struct {
	Pos
	Name string
}

type ClassVariableWriteNode struct {
	Pos
	Name  string
	Value Node
}

type ClassVariableOperatorWriteNode struct {
	Pos
	Name     string
	Operator string
	Value    Node
}

type ClassVariableAndWriteNode struct {
	Pos
	Name  string
	Value Node
}

type ClassVariableOrWriteNode struct {
	Pos
	Name  string
	Value Node
}

type GlobalVariableReadNode struct {
	Pos
	Name string
}

type GlobalVariableWriteNode struct {
	Pos
	Name  string
	Value Node
}

type GlobalVariableOperatorWriteNode struct {
	Pos
	Name     string
	Operator string
	Value    Node
}

type GlobalVariableAndWriteNode struct {
	Pos
	Name  string
	Value Node
}

type GlobalVariableOrWriteNode struct {
	Pos
	Name  string
	Value Node
}

type GlobalVariableTargetNode struct {
	Pos
	Name string
}

// BackReferenceReadNode is $&, $`, $' or $+. Name keeps the sigil.
type BackReferenceReadNode struct {
	Pos
	Name string
}

// NumberedReferenceReadNode is $1..$n.
type NumberedReferenceReadNode struct {
	Pos
	Number int
}

type ConstantReadNode struct {
	Pos
	Name string
}

// ConstantPathNode is Parent::Name, or ::Name when Parent is nil.
type ConstantPathNode struct {
	Pos
	Parent Node
	Name   string
}

type ConstantWriteNode struct {
	Pos
	Name  string
	Value Node
}

type ConstantOperatorWriteNode struct {
	Pos
	Name     string
	Operator string
	Value    Node
}

type ConstantAndWriteNode struct {
	Pos
	Name  string
	Value Node
}

type ConstantOrWriteNode struct {
	Pos
	Name  string
	Value Node
}

type ConstantTargetNode struct {
	Pos
	Name string
}

// ---------------------------------------------------------------------------
// Operators and control flow
// ---------------------------------------------------------------------------

type AndNode struct {
	Pos
	Left  Node
	Right Node
}

type OrNode struct {
	Pos
	Left  Node
	Right Node
}

// IfNode covers if, elsif, the ternary operator and the if modifier.
// Consequent is an *ElseNode, another *IfNode (elsif) or nil.
type IfNode struct {
	Pos
	Predicate  Node
	Statements *StatementsNode
	Consequent Node
}

type UnlessNode struct {
	Pos
	Predicate  Node
	Statements *StatementsNode
	Consequent *ElseNode
}

type ElseNode struct {
	Pos
	Statements *StatementsNode
}

// WhileNode is a while loop. DoWhile marks begin...end while, whose body runs
// before the first test.
type WhileNode struct {
	Pos
	Predicate  Node
	Statements *StatementsNode
	DoWhile    bool
}

type UntilNode struct {
	Pos
	Predicate  Node
	Statements *StatementsNode
	DoWhile    bool
}

// ForNode is for index in collection. Index is a target node.
type ForNode struct {
	Pos
	Index      Node
	Collection Node
	Statements *StatementsNode
}

type BreakNode struct {
	Pos
	Arguments *ArgumentsNode
}

type NextNode struct {
	Pos
	Arguments *ArgumentsNode
}

type ReturnNode struct {
	Pos
	Arguments *ArgumentsNode
}

// CaseNode is case/when. Predicate may be nil.
type CaseNode struct {
	Pos
	Predicate  Node
	Conditions []*WhenNode
	Consequent *ElseNode
}

type WhenNode struct {
	Pos
	Conditions []Node
	Statements *StatementsNode
}

// CaseMatchNode is case/in.
type CaseMatchNode struct {
	Pos
	Predicate  Node
	Conditions []*InNode
	Consequent *ElseNode
}

type InNode struct {
	Pos
	Pattern    Node
	Statements *StatementsNode
}

// MatchPredicateNode is value in pattern.
type MatchPredicateNode struct {
	Pos
	Value   Node
	Pattern Node
}

// MatchRequiredNode is value => pattern.
type MatchRequiredNode struct {
	Pos
	Value   Node
	Pattern Node
}

// BeginNode is begin/rescue/else/ensure/end. Any clause may be nil.
type BeginNode struct {
	Pos
	Statements   *StatementsNode
	RescueClause *RescueNode
	ElseClause   *ElseNode
	EnsureClause *EnsureNode
}

// RescueNode is one rescue clause. Exceptions defaults to StandardError
// when empty. Reference is a target node or nil.
type RescueNode struct {
	Pos
	Exceptions []Node
	Reference  Node
	Statements *StatementsNode
	Subsequent *RescueNode
}

type EnsureNode struct {
	Pos
	Statements *StatementsNode
}

// RescueModifierNode is expression rescue rescue_expression.
type RescueModifierNode struct {
	Pos
	Expression       Node
	RescueExpression Node
}

// DefinedNode is defined?(value).
type DefinedNode struct {
	Pos
	Value Node
}

// ---------------------------------------------------------------------------
// Patterns
// ---------------------------------------------------------------------------

// ArrayPatternNode is Const[a, *rest, b]. Constant and Rest may be nil; Rest
// is a *SplatNode whose Expression is a target or nil.
type ArrayPatternNode struct {
	Pos
	Constant  Node
	Requireds []Node
	Rest      *SplatNode
	Posts     []Node
}

// HashPatternNode is Const(key: pattern, ...). Elements are AssocNode values
// with SymbolNode keys.
type HashPatternNode struct {
	Pos
	Constant Node
	Elements []*AssocNode
}

type AlternationPatternNode struct {
	Pos
	Left  Node
	Right Node
}

// CapturePatternNode is pattern => target.
type CapturePatternNode struct {
	Pos
	Value  Node
	Target *LocalVariableTargetNode
}

// PinnedVariableNode is ^variable.
type PinnedVariableNode struct {
	Pos
	Variable Node
}

// PinnedExpressionNode is ^(expression).
type PinnedExpressionNode struct {
	Pos
	Expression Node
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// CallNode is a method call. Receiver is nil for implicit-self calls.
// VariableCall marks a bare identifier that the parser could not resolve as
// a local. AttributeWrite marks a.b = v and a[i] = v, whose value is the
// assigned value rather than the call result.
type CallNode struct {
	Pos
	Receiver       Node
	Name           string
	Arguments      *ArgumentsNode
	Block          Node // *BlockNode or *BlockArgumentNode
	SafeNavigation bool
	VariableCall   bool
	AttributeWrite bool
}

type ArgumentsNode struct {
	Pos
	Arguments []Node
}

// SplatNode is *expression. Expression is nil for an anonymous splat.
type SplatNode struct {
	Pos
	Expression Node
}

// KeywordHashNode is the trailing key: value list of a call.
type KeywordHashNode struct {
	Pos
	Elements []*AssocNode
}

// BlockArgumentNode is &expression.
type BlockArgumentNode struct {
	Pos
	Expression Node
}

// BlockNode is a do...end or {...} block attached to a call.
type BlockNode struct {
	Pos
	Locals     []string
	Parameters *BlockParametersNode
	Body       *StatementsNode
}

// LambdaNode is ->(params) { body }.
type LambdaNode struct {
	Pos
	Locals     []string
	Parameters *BlockParametersNode
	Body       *StatementsNode
}

// SuperNode is super(args) or super args.
type SuperNode struct {
	Pos
	Arguments *ArgumentsNode
	Block     Node
}

// ForwardingSuperNode is a bare super, forwarding the current arguments.
type ForwardingSuperNode struct {
	Pos
	Block *BlockNode
}

type YieldNode struct {
	Pos
	Arguments *ArgumentsNode
}

// ---------------------------------------------------------------------------
// Parameters
// ---------------------------------------------------------------------------

type ParametersNode struct {
	Pos
	Requireds []Node // *RequiredParameterNode or *MultiTargetNode
	Optionals []*OptionalParameterNode
	Rest      *RestParameterNode
	Posts     []Node
	Keywords  []Node // *RequiredKeywordParameterNode or *OptionalKeywordParameterNode
	Block     *BlockParameterNode
}

type RequiredParameterNode struct {
	Pos
	Name string
}

type OptionalParameterNode struct {
	Pos
	Name  string
	Value Node
}

// RestParameterNode is *name; Name is empty for an anonymous rest.
type RestParameterNode struct {
	Pos
	Name string
}

type RequiredKeywordParameterNode struct {
	Pos
	Name string
}

type OptionalKeywordParameterNode struct {
	Pos
	Name  string
	Value Node
}

type BlockParameterNode struct {
	Pos
	Name string
}

type BlockParametersNode struct {
	Pos
	Parameters *ParametersNode
}

// ---------------------------------------------------------------------------
// Multiple assignment
// ---------------------------------------------------------------------------

// MultiWriteNode is a, *b, c = value.
type MultiWriteNode struct {
	Pos
	Lefts  []Node
	Rest   *SplatNode
	Rights []Node
	Value  Node
}

// MultiTargetNode is a parenthesized nested target list, (a, b).
type MultiTargetNode struct {
	Pos
	Lefts  []Node
	Rest   *SplatNode
	Rights []Node
}

// ---------------------------------------------------------------------------
// Definitions
// ---------------------------------------------------------------------------

// DefNode is def name or def receiver.name.
type DefNode struct {
	Pos
	Name       string
	Receiver   Node
	Parameters *ParametersNode
	Body       Node // *StatementsNode or *BeginNode
	Locals     []string
}

type ClassNode struct {
	Pos
	ConstantPath Node
	Superclass   Node
	Body         Node
	Locals       []string
}

type ModuleNode struct {
	Pos
	ConstantPath Node
	Body         Node
	Locals       []string
}

// SingletonClassNode is class << expression.
type SingletonClassNode struct {
	Pos
	Expression Node
	Body       Node
	Locals     []string
}

// AliasMethodNode is alias new old.
type AliasMethodNode struct {
	Pos
	NewName *SymbolNode
	OldName *SymbolNode
}

// AliasGlobalVariableNode is alias $new $old. Both names keep the sigil.
type AliasGlobalVariableNode struct {
	Pos
	NewName string
	OldName string
}

// PostExecutionNode is END { statements }.
type PostExecutionNode struct {
	Pos
	Statements *StatementsNode
}
