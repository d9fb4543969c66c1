package ast

// Kind enumerates the node vocabulary.
type Kind uint8

const (
	KindProgram Kind = iota
	KindStatements
	KindParentheses
	KindMissing
	KindInteger
	KindFloat
	KindString
	KindInterpolatedString
	KindEmbeddedStatements
	KindSymbol
	KindRegularExpression
	KindInterpolatedRegularExpression
	KindTrue
	KindFalse
	KindNil
	KindSelf
	KindSourceLine
	KindSourceFile
	KindArray
	KindHash
	KindAssoc
	KindRange
	KindLocalVariableRead
	KindLocalVariableWrite
	KindLocalVariableOperatorWrite
	KindLocalVariableAndWrite
	KindLocalVariableOrWrite
	KindLocalVariableTarget
	KindInstanceVariableRead
	KindInstanceVariableWrite
	KindInstanceVariableOperatorWrite
	KindInstanceVariableAndWrite
	KindInstanceVariableOrWrite
	KindInstanceVariableTarget
	KindClassVariableRead
	KindClassVariableWrite
	KindClassVariableOperatorWrite
	KindClassVariableAndWrite
	KindClassVariableOrWrite
	KindGlobalVariableRead
	KindGlobalVariableWrite
	KindGlobalVariableOperatorWrite
	KindGlobalVariableAndWrite
	KindGlobalVariableOrWrite
	KindGlobalVariableTarget
	KindConstantRead
	KindConstantPath
	KindConstantWrite
	KindConstantOperatorWrite
	KindConstantAndWrite
	KindConstantOrWrite
	KindConstantTarget
	KindAnd
	KindOr
	KindIf
	KindUnless
	KindElse
	KindWhile
	KindUntil
	KindFor
	KindBreak
	KindNext
	KindReturn
	KindCase
	KindWhen
	KindCaseMatch
	KindIn
	KindMatchPredicate
	KindMatchRequired
	KindBegin
	KindRescue
	KindEnsure
	KindRescueModifier
	KindDefined
	KindArrayPattern
	KindHashPattern
	KindAlternationPattern
	KindCapturePattern
	KindPinnedVariable
	KindPinnedExpression
	KindCall
	KindArguments
	KindSplat
	KindKeywordHash
	KindBlockArgument
	KindBlock
	KindLambda
	KindSuper
	KindForwardingSuper
	KindYield
	KindParameters
	KindRequiredParameter
	KindOptionalParameter
	KindRestParameter
	KindRequiredKeywordParameter
	KindOptionalKeywordParameter
	KindBlockParameter
	KindBlockParameters
	KindMultiWrite
	KindMultiTarget
	KindDef
	KindClass
	KindModule
	KindSingletonClass
	KindAliasMethod
	KindBackReferenceRead
	KindNumberedReferenceRead
	KindMatchWrite
	KindAliasGlobalVariable
	KindPostExecution
)

var kindNames = [...]string{
	KindProgram:                       "ProgramNode",
	KindStatements:                    "StatementsNode",
	KindParentheses:                   "ParenthesesNode",
	KindMissing:                       "MissingNode",
	KindInteger:                       "IntegerNode",
	KindFloat:                         "FloatNode",
	KindString:                        "StringNode",
	KindInterpolatedString:            "InterpolatedStringNode",
	KindEmbeddedStatements:            "EmbeddedStatementsNode",
	KindSymbol:                        "SymbolNode",
	KindRegularExpression:             "RegularExpressionNode",
	KindInterpolatedRegularExpression: "InterpolatedRegularExpressionNode",
	KindTrue:                          "TrueNode",
	KindFalse:                         "FalseNode",
	KindNil:                           "NilNode",
	KindSelf:                          "SelfNode",
	KindSourceLine:                    "SourceLineNode",
	KindSourceFile:                    "SourceFileNode",
	KindArray:                         "ArrayNode",
	KindHash:                          "HashNode",
	KindAssoc:                         "AssocNode",
	KindRange:                         "RangeNode",
	KindLocalVariableRead:             "LocalVariableReadNode",
	KindLocalVariableWrite:            "LocalVariableWriteNode",
	KindLocalVariableOperatorWrite:    "LocalVariableOperatorWriteNode",
	KindLocalVariableAndWrite:         "LocalVariableAndWriteNode",
	KindLocalVariableOrWrite:          "LocalVariableOrWriteNode",
	KindLocalVariableTarget:           "LocalVariableTargetNode",
	KindInstanceVariableRead:          "InstanceVariableReadNode",
	KindInstanceVariableWrite:         "InstanceVariableWriteNode",
	KindInstanceVariableOperatorWrite: "InstanceVariableOperatorWriteNode",
	KindInstanceVariableAndWrite:      "InstanceVariableAndWriteNode",
	KindInstanceVariableOrWrite:       "InstanceVariableOrWriteNode",
	KindInstanceVariableTarget:        "InstanceVariableTargetNode",
	KindClassVariableRead:             "ClassVariableReadNode",
	KindClassVariableWrite:            "ClassVariableWriteNode",
	KindClassVariableOperatorWrite:    "ClassVariableOperatorWriteNode",
	KindClassVariableAndWrite:         "ClassVariableAndWriteNode",
	KindClassVariableOrWrite:          "ClassVariableOrWriteNode",
	KindGlobalVariableRead:            "GlobalVariableReadNode",
	KindGlobalVariableWrite:           "GlobalVariableWriteNode",
	KindGlobalVariableOperatorWrite:   "GlobalVariableOperatorWriteNode",
	KindGlobalVariableAndWrite:        "GlobalVariableAndWriteNode",
	KindGlobalVariableOrWrite:         "GlobalVariableOrWriteNode",
	KindGlobalVariableTarget:          "GlobalVariableTargetNode",
	KindConstantRead:                  "ConstantReadNode",
	KindConstantPath:                  "ConstantPathNode",
	KindConstantWrite:                 "ConstantWriteNode",
	KindConstantOperatorWrite:         "ConstantOperatorWriteNode",
	KindConstantAndWrite:              "ConstantAndWriteNode",
	KindConstantOrWrite:               "ConstantOrWriteNode",
	KindConstantTarget:                "ConstantTargetNode",
	KindAnd:                           "AndNode",
	KindOr:                            "OrNode",
	KindIf:                            "IfNode",
	KindUnless:                        "UnlessNode",
	KindElse:                          "ElseNode",
	KindWhile:                         "WhileNode",
	KindUntil:                         "UntilNode",
	KindFor:                           "ForNode",
	KindBreak:                         "BreakNode",
	KindNext:                          "NextNode",
	KindReturn:                        "ReturnNode",
	KindCase:                          "CaseNode",
	KindWhen:                          "WhenNode",
	KindCaseMatch:                     "CaseMatchNode",
	KindIn:                            "InNode",
	KindMatchPredicate:                "MatchPredicateNode",
	KindMatchRequired:                 "MatchRequiredNode",
	KindBegin:                         "BeginNode",
	KindRescue:                        "RescueNode",
	KindEnsure:                        "EnsureNode",
	KindRescueModifier:                "RescueModifierNode",
	KindDefined:                       "DefinedNode",
	KindArrayPattern:                  "ArrayPatternNode",
	KindHashPattern:                   "HashPatternNode",
	KindAlternationPattern:            "AlternationPatternNode",
	KindCapturePattern:                "CapturePatternNode",
	KindPinnedVariable:                "PinnedVariableNode",
	KindPinnedExpression:              "PinnedExpressionNode",
	KindCall:                          "CallNode",
	KindArguments:                     "ArgumentsNode",
	KindSplat:                         "SplatNode",
	KindKeywordHash:                   "KeywordHashNode",
	KindBlockArgument:                 "BlockArgumentNode",
	KindBlock:                         "BlockNode",
	KindLambda:                        "LambdaNode",
	KindSuper:                         "SuperNode",
	KindForwardingSuper:               "ForwardingSuperNode",
	KindYield:                         "YieldNode",
	KindParameters:                    "ParametersNode",
	KindRequiredParameter:             "RequiredParameterNode",
	KindOptionalParameter:             "OptionalParameterNode",
	KindRestParameter:                 "RestParameterNode",
	KindRequiredKeywordParameter:      "RequiredKeywordParameterNode",
	KindOptionalKeywordParameter:      "OptionalKeywordParameterNode",
	KindBlockParameter:                "BlockParameterNode",
	KindBlockParameters:               "BlockParametersNode",
	KindMultiWrite:                    "MultiWriteNode",
	KindMultiTarget:                   "MultiTargetNode",
	KindDef:                           "DefNode",
	KindClass:                         "ClassNode",
	KindModule:                        "ModuleNode",
	KindSingletonClass:                "SingletonClassNode",
	KindAliasMethod:                   "AliasMethodNode",
	KindBackReferenceRead:             "BackReferenceReadNode",
	KindNumberedReferenceRead:         "NumberedReferenceReadNode",
	KindMatchWrite:                    "MatchWriteNode",
	KindAliasGlobalVariable:           "AliasGlobalVariableNode",
	KindPostExecution:                 "PostExecutionNode",
}

// String returns the node type name, e.g. "CallNode".
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UnknownNode"
}

func (*ProgramNode) Kind() Kind                       { return KindProgram }
func (*StatementsNode) Kind() Kind                    { return KindStatements }
func (*ParenthesesNode) Kind() Kind                   { return KindParentheses }
func (*MissingNode) Kind() Kind                       { return KindMissing }
func (*IntegerNode) Kind() Kind                       { return KindInteger }
func (*FloatNode) Kind() Kind                         { return KindFloat }
func (*StringNode) Kind() Kind                        { return KindString }
func (*InterpolatedStringNode) Kind() Kind            { return KindInterpolatedString }
func (*EmbeddedStatementsNode) Kind() Kind            { return KindEmbeddedStatements }
func (*SymbolNode) Kind() Kind                        { return KindSymbol }
func (*RegularExpressionNode) Kind() Kind             { return KindRegularExpression }
func (*InterpolatedRegularExpressionNode) Kind() Kind { return KindInterpolatedRegularExpression }
func (*TrueNode) Kind() Kind                          { return KindTrue }
func (*FalseNode) Kind() Kind                         { return KindFalse }
func (*NilNode) Kind() Kind                           { return KindNil }
func (*SelfNode) Kind() Kind                          { return KindSelf }
func (*SourceLineNode) Kind() Kind                    { return KindSourceLine }
func (*SourceFileNode) Kind() Kind                    { return KindSourceFile }
func (*ArrayNode) Kind() Kind                         { return KindArray }
func (*HashNode) Kind() Kind                          { return KindHash }
func (*AssocNode) Kind() Kind                         { return KindAssoc }
func (*RangeNode) Kind() Kind                         { return KindRange }
func (*LocalVariableReadNode) Kind() Kind             { return KindLocalVariableRead }
func (*LocalVariableWriteNode) Kind() Kind            { return KindLocalVariableWrite }
func (*LocalVariableOperatorWriteNode) Kind() Kind    { return KindLocalVariableOperatorWrite }
func (*LocalVariableAndWriteNode) Kind() Kind         { return KindLocalVariableAndWrite }
func (*LocalVariableOrWriteNode) Kind() Kind          { return KindLocalVariableOrWrite }
func (*LocalVariableTargetNode) Kind() Kind           { return KindLocalVariableTarget }
func (*InstanceVariableReadNode) Kind() Kind          { return KindInstanceVariableRead }
func (*InstanceVariableWriteNode) Kind() Kind         { return KindInstanceVariableWrite }
func (*InstanceVariableOperatorWriteNode) Kind() Kind { return KindInstanceVariableOperatorWrite }
func (*InstanceVariableAndWriteNode) Kind() Kind      { return KindInstanceVariableAndWrite }
func (*InstanceVariableOrWriteNode) Kind() Kind       { return KindInstanceVariableOrWrite }
func (*InstanceVariableTargetNode) Kind() Kind        { return KindInstanceVariableTarget }
func (*ClassVariableReadNode) Kind() Kind             { return KindClassVariableRead }
func (*ClassVariableWriteNode) Kind() Kind            { return KindClassVariableWrite }
func (*ClassVariableOperatorWriteNode) Kind() Kind    { return KindClassVariableOperatorWrite }
func (*ClassVariableAndWriteNode) Kind() Kind         { return KindClassVariableAndWrite }
func (*ClassVariableOrWriteNode) Kind() Kind          { return KindClassVariableOrWrite }
func (*GlobalVariableReadNode) Kind() Kind            { return KindGlobalVariableRead }
func (*GlobalVariableWriteNode) Kind() Kind           { return KindGlobalVariableWrite }
func (*GlobalVariableOperatorWriteNode) Kind() Kind   { return KindGlobalVariableOperatorWrite }
func (*GlobalVariableAndWriteNode) Kind() Kind        { return KindGlobalVariableAndWrite }
func (*GlobalVariableOrWriteNode) Kind() Kind         { return KindGlobalVariableOrWrite }
func (*GlobalVariableTargetNode) Kind() Kind          { return KindGlobalVariableTarget }
func (*ConstantReadNode) Kind() Kind                  { return KindConstantRead }
func (*ConstantPathNode) Kind() Kind                  { return KindConstantPath }
func (*ConstantWriteNode) Kind() Kind                 { return KindConstantWrite }
func (*ConstantOperatorWriteNode) Kind() Kind         { return KindConstantOperatorWrite }
func (*ConstantAndWriteNode) Kind() Kind              { return KindConstantAndWrite }
func (*ConstantOrWriteNode) Kind() Kind               { return KindConstantOrWrite }
func (*ConstantTargetNode) Kind() Kind                { return KindConstantTarget }
func (*AndNode) Kind() Kind                           { return KindAnd }
func (*OrNode) Kind() Kind                            { return KindOr }
func (*IfNode) Kind() Kind                            { return KindIf }
func (*UnlessNode) Kind() Kind                        { return KindUnless }
func (*ElseNode) Kind() Kind                          { return KindElse }
func (*WhileNode) Kind() Kind                         { return KindWhile }
func (*UntilNode) Kind() Kind                         { return KindUntil }
func (*ForNode) Kind() Kind                           { return KindFor }
func (*BreakNode) Kind() Kind                         { return KindBreak }
func (*NextNode) Kind() Kind                          { return KindNext }
func (*ReturnNode) Kind() Kind                        { return KindReturn }
func (*CaseNode) Kind() Kind                          { return KindCase }
func (*WhenNode) Kind() Kind                          { return KindWhen }
func (*CaseMatchNode) Kind() Kind                     { return KindCaseMatch }
func (*InNode) Kind() Kind                            { return KindIn }
func (*MatchPredicateNode) Kind() Kind                { return KindMatchPredicate }
func (*MatchRequiredNode) Kind() Kind                 { return KindMatchRequired }
func (*BeginNode) Kind() Kind                         { return KindBegin }
func (*RescueNode) Kind() Kind                        { return KindRescue }
func (*EnsureNode) Kind() Kind                        { return KindEnsure }
func (*RescueModifierNode) Kind() Kind                { return KindRescueModifier }
func (*DefinedNode) Kind() Kind                       { return KindDefined }
func (*ArrayPatternNode) Kind() Kind                  { return KindArrayPattern }
func (*HashPatternNode) Kind() Kind                   { return KindHashPattern }
func (*AlternationPatternNode) Kind() Kind            { return KindAlternationPattern }
func (*CapturePatternNode) Kind() Kind                { return KindCapturePattern }
func (*PinnedVariableNode) Kind() Kind                { return KindPinnedVariable }
func (*PinnedExpressionNode) Kind() Kind              { return KindPinnedExpression }
func (*CallNode) Kind() Kind                          { return KindCall }
func (*ArgumentsNode) Kind() Kind                     { return KindArguments }
func (*SplatNode) Kind() Kind                         { return KindSplat }
func (*KeywordHashNode) Kind() Kind                   { return KindKeywordHash }
func (*BlockArgumentNode) Kind() Kind                 { return KindBlockArgument }
func (*BlockNode) Kind() Kind                         { return KindBlock }
func (*LambdaNode) Kind() Kind                        { return KindLambda }
func (*SuperNode) Kind() Kind                         { return KindSuper }
func (*ForwardingSuperNode) Kind() Kind               { return KindForwardingSuper }
func (*YieldNode) Kind() Kind                         { return KindYield }
func (*ParametersNode) Kind() Kind                    { return KindParameters }
func (*RequiredParameterNode) Kind() Kind             { return KindRequiredParameter }
func (*OptionalParameterNode) Kind() Kind             { return KindOptionalParameter }
func (*RestParameterNode) Kind() Kind                 { return KindRestParameter }
func (*RequiredKeywordParameterNode) Kind() Kind      { return KindRequiredKeywordParameter }
func (*OptionalKeywordParameterNode) Kind() Kind      { return KindOptionalKeywordParameter }
func (*BlockParameterNode) Kind() Kind                { return KindBlockParameter }
func (*BlockParametersNode) Kind() Kind               { return KindBlockParameters }
func (*MultiWriteNode) Kind() Kind                    { return KindMultiWrite }
func (*MultiTargetNode) Kind() Kind                   { return KindMultiTarget }
func (*DefNode) Kind() Kind                           { return KindDef }
func (*ClassNode) Kind() Kind                         { return KindClass }
func (*ModuleNode) Kind() Kind                        { return KindModule }
func (*SingletonClassNode) Kind() Kind                { return KindSingletonClass }
func (*AliasMethodNode) Kind() Kind                   { return KindAliasMethod }
func (*BackReferenceReadNode) Kind() Kind             { return KindBackReferenceRead }
func (*NumberedReferenceReadNode) Kind() Kind         { return KindNumberedReferenceRead }
func (*MatchWriteNode) Kind() Kind                    { return KindMatchWrite }
func (*AliasGlobalVariableNode) Kind() Kind           { return KindAliasGlobalVariable }
func (*PostExecutionNode) Kind() Kind                 { return KindPostExecution }
