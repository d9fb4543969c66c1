package bytecode

import (
	"fmt"
	"sort"

	"github.com/joomcode/errorx"
)

// Kind is the lexical scope an instruction sequence was compiled from.
type Kind uint8

const (
	KindTop Kind = iota
	KindMethod
	KindBlock
	KindClass
	KindModule
	KindSingletonClass
)

var kindNames = [...]string{"top", "method", "block", "class", "module", "singleton_class"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// SeqID is a handle to a sequence inside its Unit. The zero value means no
// sequence.
type SeqID int32

const NoSeq SeqID = 0

// Options mirrors the compile-time optimization switches.
type Options struct {
	FrozenStringLiteral    bool // string literals compile to putobject
	OperandsUnification    bool // putobject 0/1 use the INT2FIX forms
	PeepholeOptimization   bool // jump cleanup at finalize
	SpecializedInstruction bool // operator sends compile to opt_*
}

// DefaultOptions returns the default optimization switches.
func DefaultOptions() Options {
	return Options{
		OperandsUnification:    true,
		PeepholeOptimization:   true,
		SpecializedInstruction: true,
	}
}

// Unit is the arena owning every sequence of one compilation. Sequences
// reference their children and parent by SeqID.
type Unit struct {
	Options Options
	Calls   *CallDataTable
	File    string

	// SkipVerify disables the stack-depth pass in Finalize. Tests use it
	// to build deliberately unbalanced sequences.
	SkipVerify bool

	seqs []*InstructionSequence
}

// NewUnit creates an empty arena. A nil calls table gets a fresh one.
func NewUnit(opts Options, calls *CallDataTable) *Unit {
	if calls == nil {
		calls = NewCallDataTable()
	}
	return &Unit{Options: opts, Calls: calls, seqs: []*InstructionSequence{nil}}
}

// New allocates a sequence. The first sequence allocated is the root.
func (u *Unit) New(kind Kind, name string, line int, parent SeqID) *InstructionSequence {
	s := &InstructionSequence{
		ID:     SeqID(len(u.seqs)),
		Kind:   kind,
		Name:   name,
		Line:   line,
		Locals: NewLocalTable(),
		Args:   ArgShape{Rest: -1, Block: -1},
		parent: parent,
		unit:   u,
		line:   line,
	}
	u.seqs = append(u.seqs, s)
	if p := u.Seq(parent); p != nil {
		p.children = append(p.children, s.ID)
	}
	return s
}

// Seq returns the sequence with the given handle, or nil.
func (u *Unit) Seq(id SeqID) *InstructionSequence {
	if id <= NoSeq || int(id) >= len(u.seqs) {
		return nil
	}
	return u.seqs[id]
}

// Root returns the first sequence allocated, normally the top-level one.
func (u *Unit) Root() *InstructionSequence {
	return u.Seq(1)
}

// Len returns the number of sequences in the arena.
func (u *Unit) Len() int {
	return len(u.seqs) - 1
}

// Sequences returns all sequences in allocation order.
func (u *Unit) Sequences() []*InstructionSequence {
	return append([]*InstructionSequence(nil), u.seqs[1:]...)
}

// ---------------------------------------------------------------------------
// Labels
// ---------------------------------------------------------------------------

// Label is a branch target. It starts unbound; Push binds it to the next
// emitted instruction and Finalize resolves it to a position in Insns.
type Label struct {
	id       int
	seq      SeqID
	bound    bool
	resolved bool
	pos      int
	refs     int

	// depth is the emit-time stack depth at the label, recorded by the
	// first branch that targets it.
	depth    int
	hasDepth bool
}

func (l *Label) String() string { return fmt.Sprintf("label_%d", l.id) }

// Bound reports whether Push has been called for the label.
func (l *Label) Bound() bool { return l.bound }

// Position returns the resolved instruction position. ok is false before
// the owning sequence is finalized.
func (l *Label) Position() (pos int, ok bool) { return l.pos, l.resolved }

// ---------------------------------------------------------------------------
// Local table and argument shape
// ---------------------------------------------------------------------------

// LocalTable maps local variable names to slots in declaration order.
type LocalTable struct {
	names []string
	index map[string]int
}

// NewLocalTable creates an empty table.
func NewLocalTable() *LocalTable {
	return &LocalTable{index: make(map[string]int)}
}

// Plain declares name and returns its slot. Declaring an existing name
// returns the existing slot.
func (t *LocalTable) Plain(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	i := len(t.names)
	t.names = append(t.names, name)
	t.index[name] = i
	return i
}

// Anonymous declares a slot that no source name can reach.
func (t *LocalTable) Anonymous(hint string) int {
	i := len(t.names)
	t.names = append(t.names, "#"+hint)
	return i
}

// Find returns the slot of name.
func (t *LocalTable) Find(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Size returns the number of slots.
func (t *LocalTable) Size() int { return len(t.names) }

// Name returns the name of slot i.
func (t *LocalTable) Name(i int) string {
	if i < 0 || i >= len(t.names) {
		return ""
	}
	return t.names[i]
}

// Names returns the slot names in order.
func (t *LocalTable) Names() []string {
	return append([]string(nil), t.names...)
}

// Keyword is one keyword parameter.
type Keyword struct {
	Name     string
	Required bool
}

// ArgShape describes a sequence's parameters. Parameters occupy the first
// local slots in the order lead, optional, rest, post, keywords, block.
type ArgShape struct {
	Lead     int
	Opt      int
	Rest     int // slot of the rest parameter, -1 if none
	Post     int
	Keywords []Keyword
	Block    int // slot of the block parameter, -1 if none

	// optLabels has Opt+1 entries when Opt > 0. Entry k is where execution
	// starts when k optionals were supplied.
	optLabels []*Label
	optTable  []int
}

// Required returns the minimum positional argument count.
func (a *ArgShape) Required() int { return a.Lead + a.Post }

// HasRest reports whether the shape takes a rest parameter.
func (a *ArgShape) HasRest() bool { return a.Rest >= 0 }

// Max returns the maximum positional argument count, or -1 when unbounded.
func (a *ArgShape) Max() int {
	if a.HasRest() {
		return -1
	}
	return a.Lead + a.Opt + a.Post
}

// Simple reports whether the shape has only lead parameters.
func (a *ArgShape) Simple() bool {
	return a.Opt == 0 && !a.HasRest() && a.Post == 0 && len(a.Keywords) == 0 && a.Block < 0
}

// OptTable returns the resolved entry positions for optional parameters.
func (a *ArgShape) OptTable() []int { return a.optTable }

// ---------------------------------------------------------------------------
// Catch table
// ---------------------------------------------------------------------------

// CatchKind selects which abnormal exits a catch entry intercepts.
type CatchKind uint8

const (
	CatchRescue CatchKind = iota + 1 // program exceptions only
	CatchEnsure                      // every non-local exit
)

func (k CatchKind) String() string {
	switch k {
	case CatchRescue:
		return "rescue"
	case CatchEnsure:
		return "ensure"
	}
	return "unknown"
}

// CatchEntry covers the instruction range [Start, End). When an abnormal
// exit crosses a covered instruction, the VM resets the frame's stack to
// Depth values, pushes the exception and continues at Cont.
type CatchEntry struct {
	Kind  CatchKind
	Start int
	End   int
	Cont  int // Handler position
	Depth int

	start, end, handler *Label
}

// Covers reports whether pos lies inside the protected range.
func (c *CatchEntry) Covers(pos int) bool {
	return pos >= c.Start && pos < c.End
}

// ---------------------------------------------------------------------------
// InstructionSequence
// ---------------------------------------------------------------------------

// InstructionSequence is one lexical scope's instruction stream together
// with its local table and argument shape. It is mutable until Finalize and
// read-only afterwards.
type InstructionSequence struct {
	ID     SeqID
	Kind   Kind
	Name   string
	Line   int
	Locals *LocalTable
	Args   ArgShape
	Catch  []*CatchEntry

	// Insns is the resolved stream, populated by Finalize.
	Insns []Instruction
	// StackMax is the deepest operand stack the verifier observed.
	StackMax int

	parent   SeqID
	children []SeqID
	unit     *Unit
	pending  []Instruction
	labels   []*Label
	line     int
	frozen   bool
	depth    int
}

// Unit returns the owning arena.
func (s *InstructionSequence) Unit() *Unit { return s.unit }

// ParentID returns the handle of the lexical parent, NoSeq for the root.
func (s *InstructionSequence) ParentID() SeqID { return s.parent }

// Parent returns the lexical parent, or nil for the root.
func (s *InstructionSequence) Parent() *InstructionSequence { return s.unit.Seq(s.parent) }

// Children returns the owned child sequences in creation order.
func (s *InstructionSequence) Children() []*InstructionSequence {
	out := make([]*InstructionSequence, len(s.children))
	for i, id := range s.children {
		out[i] = s.unit.Seq(id)
	}
	return out
}

// Child returns the sequence referenced by an instruction operand.
func (s *InstructionSequence) Child(id SeqID) *InstructionSequence { return s.unit.Seq(id) }

// Frozen reports whether Finalize has succeeded.
func (s *InstructionSequence) Frozen() bool { return s.frozen }

// Len returns the number of emitted instructions.
func (s *InstructionSequence) Len() int {
	if s.frozen {
		return len(s.Insns)
	}
	return len(s.pending)
}

// LocalRef is a resolved local variable reference.
type LocalRef struct {
	Index int
	Level int
}

// Resolve walks depth parent links and looks name up in that sequence's
// local table.
func (s *InstructionSequence) Resolve(name string, depth int) (LocalRef, error) {
	target := s
	for i := 0; i < depth; i++ {
		target = target.Parent()
		if target == nil {
			return LocalRef{}, ErrUnresolvedLocal.New("local %q at depth %d exceeds lexical nesting of %s", name, depth, s.Name)
		}
	}
	idx, ok := target.Locals.Find(name)
	if !ok {
		return LocalRef{}, ErrUnresolvedLocal.New("local %q not declared in %s", name, target.Name)
	}
	return LocalRef{Index: idx, Level: depth}, nil
}

// Ancestor returns the sequence depth parent links up, or nil.
func (s *InstructionSequence) Ancestor(depth int) *InstructionSequence {
	target := s
	for i := 0; i < depth && target != nil; i++ {
		target = target.Parent()
	}
	return target
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

func (s *InstructionSequence) misuse(format string, args ...any) {
	errorx.Panic(ErrMisuse.New(format, args...).WithProperty(PropSequence, s.Name))
}

// Emit appends an instruction. The per-opcode helpers below are preferred.
func (s *InstructionSequence) Emit(in Instruction) {
	if s.frozen {
		s.misuse("emit %s into finalized sequence", in.Op)
	}
	if !in.Op.Valid() {
		s.misuse("emit unknown opcode 0x%02X", byte(in.Op))
	}
	if in.Label != nil {
		if in.Label.seq != s.ID {
			s.misuse("branch to %s of another sequence", in.Label)
		}
		in.Label.refs++
	}
	if in.Line == 0 {
		in.Line = s.line
	}
	s.depth += in.Writes() - in.Reads()
	if in.Label != nil && !in.Label.hasDepth {
		in.Label.depth, in.Label.hasDepth = s.depth, true
	}
	s.pending = append(s.pending, in)
}

// StackDepth returns the operand stack depth at the emission point,
// counted along the instructions emitted so far. Binding a label that a
// branch already targets resets it to the depth at that branch.
func (s *InstructionSequence) StackDepth() int { return s.depth }

// SetStackDepth overrides the emit-time depth, for code entered other
// than by falling through: exception handlers and code after a jump.
func (s *InstructionSequence) SetStackDepth(n int) { s.depth = n }

// SetLine sets the source line recorded on subsequent instructions.
func (s *InstructionSequence) SetLine(line int) {
	if line > 0 {
		s.line = line
	}
}

// Label allocates an unbound label.
func (s *InstructionSequence) Label() *Label {
	l := &Label{id: len(s.labels), seq: s.ID, pos: -1}
	s.labels = append(s.labels, l)
	return l
}

// Push binds l to the position of the next emitted instruction.
func (s *InstructionSequence) Push(l *Label) {
	if l.seq != s.ID {
		s.misuse("bind %s in another sequence", l)
	}
	if l.bound {
		s.misuse("%s bound twice", l)
	}
	if s.frozen {
		s.misuse("bind %s in finalized sequence", l)
	}
	l.bound = true
	l.pos = len(s.pending)
	if l.hasDepth {
		s.depth = l.depth
	}
}

// LabelPositions returns the sorted, distinct stream positions of the
// bound labels of a finalized sequence.
func (s *InstructionSequence) LabelPositions() []int {
	if !s.frozen {
		return nil
	}
	seen := make(map[int]bool)
	var out []int
	for _, l := range s.labels {
		if !l.resolved || l.pos >= len(s.Insns) || seen[l.pos] {
			continue
		}
		seen[l.pos] = true
		out = append(out, l.pos)
	}
	sort.Ints(out)
	return out
}

// AddOptLabel records the entry point for the next optional parameter count.
func (s *InstructionSequence) AddOptLabel(l *Label) {
	l.refs++
	s.Args.optLabels = append(s.Args.optLabels, l)
}

// AddCatch registers a catch entry covering [start, end) with the handler
// at handler.
func (s *InstructionSequence) AddCatch(kind CatchKind, start, end, handler *Label) {
	for _, l := range []*Label{start, end, handler} {
		if l.seq != s.ID {
			s.misuse("catch entry uses %s of another sequence", l)
		}
		l.refs++
	}
	s.Catch = append(s.Catch, &CatchEntry{Kind: kind, start: start, end: end, handler: handler})
}

func (s *InstructionSequence) Nop()  { s.Emit(Instruction{Op: OpNop}) }
func (s *InstructionSequence) Pop()  { s.Emit(Instruction{Op: OpPop}) }
func (s *InstructionSequence) Dup()  { s.Emit(Instruction{Op: OpDup}) }
func (s *InstructionSequence) Swap() { s.Emit(Instruction{Op: OpSwap}) }

func (s *InstructionSequence) DupN(n int)        { s.Emit(Instruction{Op: OpDupN, Count: n}) }
func (s *InstructionSequence) TopN(n int)        { s.Emit(Instruction{Op: OpTopN, Count: n}) }
func (s *InstructionSequence) SetN(n int)        { s.Emit(Instruction{Op: OpSetN, Count: n}) }
func (s *InstructionSequence) AdjustStack(n int) { s.Emit(Instruction{Op: OpAdjustStack, Count: n}) }

func (s *InstructionSequence) PutNil()  { s.Emit(Instruction{Op: OpPutNil}) }
func (s *InstructionSequence) PutSelf() { s.Emit(Instruction{Op: OpPutSelf}) }

// PutObject pushes a literal. With operand unification enabled the
// integers 0 and 1 use their dedicated instructions.
func (s *InstructionSequence) PutObject(v any) {
	if s.unit.Options.OperandsUnification {
		if n, ok := v.(int64); ok && (n == 0 || n == 1) {
			if n == 0 {
				s.Emit(Instruction{Op: OpPutObjectFix0})
			} else {
				s.Emit(Instruction{Op: OpPutObjectFix1})
			}
			return
		}
	}
	s.Emit(Instruction{Op: OpPutObject, Object: v})
}

func (s *InstructionSequence) PutString(v string) {
	s.Emit(Instruction{Op: OpPutString, Object: v})
}

func (s *InstructionSequence) PutSpecialObject(t int) {
	s.Emit(Instruction{Op: OpPutSpecialObject, Index: t})
}

func (s *InstructionSequence) GetLocal(name string, ref LocalRef) {
	s.Emit(Instruction{Op: OpGetLocal, Name: name, Index: ref.Index, Level: ref.Level})
}

func (s *InstructionSequence) SetLocal(name string, ref LocalRef) {
	s.Emit(Instruction{Op: OpSetLocal, Name: name, Index: ref.Index, Level: ref.Level})
}

func (s *InstructionSequence) GetInstanceVariable(name string) {
	s.Emit(Instruction{Op: OpGetInstanceVariable, Name: name})
}

func (s *InstructionSequence) SetInstanceVariable(name string) {
	s.Emit(Instruction{Op: OpSetInstanceVariable, Name: name})
}

func (s *InstructionSequence) GetClassVariable(name string) {
	s.Emit(Instruction{Op: OpGetClassVariable, Name: name})
}

func (s *InstructionSequence) SetClassVariable(name string) {
	s.Emit(Instruction{Op: OpSetClassVariable, Name: name})
}

func (s *InstructionSequence) GetGlobal(name string) {
	s.Emit(Instruction{Op: OpGetGlobal, Name: name})
}

func (s *InstructionSequence) SetGlobal(name string) {
	s.Emit(Instruction{Op: OpSetGlobal, Name: name})
}

// GetSpecial pushes the last match or one of its groups. For a back
// reference typ is BackrefMatch and friends; for $n it is n<<1.
func (s *InstructionSequence) GetSpecial(key, typ int) {
	s.Emit(Instruction{Op: OpGetSpecial, Index: key, Flags: typ})
}

func (s *InstructionSequence) GetConstant(name string, flags int) {
	s.Emit(Instruction{Op: OpGetConstant, Name: name, Flags: flags})
}

func (s *InstructionSequence) SetConstant(name string) {
	s.Emit(Instruction{Op: OpSetConstant, Name: name})
}

func (s *InstructionSequence) NewArray(n int) { s.Emit(Instruction{Op: OpNewArray, Count: n}) }
func (s *InstructionSequence) NewHash(n int)  { s.Emit(Instruction{Op: OpNewHash, Count: n}) }

func (s *InstructionSequence) NewRange(excludeEnd bool) {
	s.Emit(Instruction{Op: OpNewRange, Flags: boolFlag(excludeEnd)})
}

func (s *InstructionSequence) SplatArray(dup bool) {
	s.Emit(Instruction{Op: OpSplatArray, Flags: boolFlag(dup)})
}

func (s *InstructionSequence) ConcatArray() { s.Emit(Instruction{Op: OpConcatArray}) }

// ExpandArray spreads the top array so that the first pre element ends up on
// top, followed by the splat array (if any) and the post elements.
func (s *InstructionSequence) ExpandArray(pre, post int, splat bool) {
	flags := 0
	if splat {
		flags |= ExpandSplat
	}
	s.Emit(Instruction{Op: OpExpandArray, Count: pre, Post: post, Flags: flags})
}

func (s *InstructionSequence) ConcatStrings(n int) {
	s.Emit(Instruction{Op: OpConcatStrings, Count: n})
}

func (s *InstructionSequence) ObjToString() { s.Emit(Instruction{Op: OpObjToString}) }

func (s *InstructionSequence) ToRegexp(flags string, n int) {
	s.Emit(Instruction{Op: OpToRegexp, Name: flags, Count: n})
}

func (s *InstructionSequence) Jump(l *Label)     { s.Emit(Instruction{Op: OpJump, Label: l}) }
func (s *InstructionSequence) BranchIf(l *Label) { s.Emit(Instruction{Op: OpBranchIf, Label: l}) }
func (s *InstructionSequence) BranchUnless(l *Label) {
	s.Emit(Instruction{Op: OpBranchUnless, Label: l})
}
func (s *InstructionSequence) BranchNil(l *Label) { s.Emit(Instruction{Op: OpBranchNil, Label: l}) }

func (s *InstructionSequence) Leave()        { s.Emit(Instruction{Op: OpLeave}) }
func (s *InstructionSequence) Throw(typ int) { s.Emit(Instruction{Op: OpThrow, Flags: typ}) }

// Send emits a call. With specialized instructions enabled, simple operator
// calls with an explicit receiver and no block use the opt_* forms.
func (s *InstructionSequence) Send(cd *CallData, block SeqID) {
	if s.unit.Options.SpecializedInstruction && block == NoSeq && cd.Flags == FlagArgsSimple {
		if spec, ok := specializedSends[cd.Method]; ok && spec.argc == cd.Argc {
			s.Emit(Instruction{Op: spec.op, Call: cd})
			return
		}
	}
	s.Emit(Instruction{Op: OpSend, Call: cd, Child: block})
}

func (s *InstructionSequence) InvokeSuper(cd *CallData, block SeqID) {
	s.Emit(Instruction{Op: OpInvokeSuper, Call: cd, Child: block})
}

func (s *InstructionSequence) InvokeBlock(cd *CallData) {
	s.Emit(Instruction{Op: OpInvokeBlock, Call: cd})
}

func (s *InstructionSequence) DefineMethod(name string, body SeqID) {
	s.Emit(Instruction{Op: OpDefineMethod, Name: name, Child: body})
}

func (s *InstructionSequence) DefineSMethod(name string, body SeqID) {
	s.Emit(Instruction{Op: OpDefineSMethod, Name: name, Child: body})
}

func (s *InstructionSequence) DefineClass(name string, body SeqID, flags int) {
	s.Emit(Instruction{Op: OpDefineClass, Name: name, Child: body, Flags: flags})
}

func (s *InstructionSequence) CheckMatch(typ int) {
	s.Emit(Instruction{Op: OpCheckMatch, Flags: typ})
}

func (s *InstructionSequence) CheckKeyword(index int) {
	s.Emit(Instruction{Op: OpCheckKeyword, Index: index})
}

func (s *InstructionSequence) Defined(typ int, name string) {
	s.Emit(Instruction{Op: OpDefined, Index: typ, Name: name})
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}
