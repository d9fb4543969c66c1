// Package cfg partitions a finalized instruction sequence into basic blocks
// and links them into a control-flow graph.
//
// A block starts at position 0, at every bound label, at every optional
// argument entry, at every catch boundary and handler, and right after every
// branching or terminal instruction. Its successors are the fallthrough block
// (unless its last instruction never continues) and the branch target (if
// its last instruction branches). Blocks nothing can reach are kept and
// reported by Unreachable.
//
// The graph is a read-only view; building it never mutates the sequence.
package cfg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joomcode/errorx"

	"github.com/chazu/rbvm/pkg/bytecode"
)

var (
	Errors = errorx.NewNamespace("cfg")

	ErrNotFinalized = Errors.NewType("not_finalized")
	ErrStackDepth   = Errors.NewType("stack_depth")

	PropBlock = errorx.RegisterPrintableProperty("block")
)

// EdgeKind tells how control leaves a block along an edge.
type EdgeKind uint8

const (
	Fallthrough EdgeKind = iota
	Branch
)

func (k EdgeKind) String() string {
	if k == Branch {
		return "branch"
	}
	return "fallthrough"
}

// Edge links two blocks. Dead marks the untaken side of a conditional
// branch whose condition is a literal pushed in the same block.
type Edge struct {
	From, To *Block
	Kind     EdgeKind
	Dead     bool
}

// Block is a maximal straight-line run of instructions [Start, End).
type Block struct {
	ID         int
	Start, End int
	Insns      []bytecode.Instruction

	// Handler is set on the continuation of a catch entry, OptEntry on the
	// entry point for an optional argument count.
	Handler  bool
	OptEntry bool

	Succs []*Edge
	Preds []*Edge
}

// Last returns the block's final instruction.
func (b *Block) Last() *bytecode.Instruction { return &b.Insns[len(b.Insns)-1] }

// Len returns the number of instructions in the block.
func (b *Block) Len() int { return len(b.Insns) }

// Successor returns the block reached along the edge of the given kind, or
// nil.
func (b *Block) Successor(kind EdgeKind) *Block {
	for _, e := range b.Succs {
		if e.Kind == kind {
			return e.To
		}
	}
	return nil
}

func (b *Block) String() string {
	return fmt.Sprintf("block_%d [%d, %d)", b.ID, b.Start, b.End)
}

// Graph is the control-flow graph of one sequence.
type Graph struct {
	Seq *bytecode.InstructionSequence

	blocks []*Block
	owner  []int // block ID per instruction position
}

// Build partitions seq into blocks. seq must be finalized.
func Build(seq *bytecode.InstructionSequence) (*Graph, error) {
	if seq == nil || !seq.Frozen() {
		return nil, ErrNotFinalized.New("cfg of an unfinalized sequence")
	}
	insns := seq.Insns
	n := len(insns)
	g := &Graph{Seq: seq, owner: make([]int, n)}
	if n == 0 {
		return g, nil
	}

	leaders := map[int]bool{0: true}
	mark := func(pos int) {
		if pos >= 0 && pos < n {
			leaders[pos] = true
		}
	}
	for _, pos := range seq.LabelPositions() {
		mark(pos)
	}
	for _, pos := range seq.Args.OptTable() {
		mark(pos)
	}
	for _, c := range seq.Catch {
		mark(c.Start)
		mark(c.End)
		mark(c.Cont)
	}
	for i := range insns {
		op := insns[i].Op
		if op.IsBranch() {
			mark(insns[i].Target)
		}
		if op.IsBranch() || op.IsUnconditional() {
			mark(i + 1)
		}
	}

	starts := make([]int, 0, len(leaders))
	for pos := range leaders {
		starts = append(starts, pos)
	}
	sort.Ints(starts)
	for id, start := range starts {
		end := n
		if id+1 < len(starts) {
			end = starts[id+1]
		}
		b := &Block{ID: id, Start: start, End: end, Insns: insns[start:end:end]}
		g.blocks = append(g.blocks, b)
		for pos := start; pos < end; pos++ {
			g.owner[pos] = id
		}
	}

	for _, pos := range seq.Args.OptTable() {
		if b := g.BlockAt(pos); b != nil {
			b.OptEntry = true
		}
	}
	for _, c := range seq.Catch {
		if b := g.BlockAt(c.Cont); b != nil {
			b.Handler = true
		}
	}

	for _, b := range g.blocks {
		last := b.Last()
		always, never := constantBranch(b)
		if !last.Op.IsUnconditional() && b.End < n {
			g.link(b, g.blocks[g.owner[b.End]], Fallthrough, always)
		}
		if last.Op.IsBranch() {
			g.link(b, g.blocks[g.owner[last.Target]], Branch, never)
		}
	}
	return g, nil
}

func (g *Graph) link(from, to *Block, kind EdgeKind, dead bool) {
	e := &Edge{From: from, To: to, Kind: kind, Dead: dead}
	from.Succs = append(from.Succs, e)
	to.Preds = append(to.Preds, e)
}

// constantBranch reports, for a block ending in a conditional branch on a
// literal pushed immediately before it, whether the branch is always taken
// and whether it is never taken.
func constantBranch(b *Block) (always, never bool) {
	last := b.Last()
	if !last.Op.IsConditional() || b.Len() < 2 {
		return false, false
	}
	var v any
	switch prev := b.Insns[b.Len()-2]; prev.Op {
	case bytecode.OpPutNil:
		v = nil
	case bytecode.OpPutObject:
		v = prev.Object
	case bytecode.OpPutObjectFix0, bytecode.OpPutObjectFix1, bytecode.OpPutString:
		v = true
	default:
		return false, false
	}
	truthy := v != nil && v != false
	var taken bool
	switch last.Op {
	case bytecode.OpBranchIf:
		taken = truthy
	case bytecode.OpBranchUnless:
		taken = !truthy
	case bytecode.OpBranchNil:
		taken = v == nil
	}
	return taken, !taken
}

// Blocks returns the blocks in stream order.
func (g *Graph) Blocks() []*Block { return g.blocks }

// Entry returns the block at position 0, or nil for an empty sequence.
func (g *Graph) Entry() *Block {
	if len(g.blocks) == 0 {
		return nil
	}
	return g.blocks[0]
}

// BlockAt returns the block containing pos.
func (g *Graph) BlockAt(pos int) *Block {
	if pos < 0 || pos >= len(g.owner) {
		return nil
	}
	return g.blocks[g.owner[pos]]
}

// reach marks every block reachable from the entry, the optional argument
// entries and the handlers of protected ranges that are themselves reached.
// Dead edges are not followed.
func (g *Graph) reach() []bool {
	seen := make([]bool, len(g.blocks))
	var work []*Block
	visit := func(b *Block) {
		if b != nil && !seen[b.ID] {
			seen[b.ID] = true
			work = append(work, b)
		}
	}
	drain := func() {
		for len(work) > 0 {
			b := work[len(work)-1]
			work = work[:len(work)-1]
			for _, e := range b.Succs {
				if !e.Dead {
					visit(e.To)
				}
			}
		}
	}

	visit(g.Entry())
	for _, pos := range g.Seq.Args.OptTable() {
		visit(g.BlockAt(pos))
	}
	drain()
	g.eachLiveHandler(seen, func(h *Block) {
		visit(h)
		drain()
	})
	return seen
}

// eachLiveHandler calls fn for each catch handler whose protected range
// contains a reached block, until no new handler becomes live.
func (g *Graph) eachLiveHandler(seen []bool, fn func(*Block)) {
	done := make([]bool, len(g.Seq.Catch))
	for changed := true; changed; {
		changed = false
		for i, c := range g.Seq.Catch {
			if done[i] || !g.rangeReached(c, seen) {
				continue
			}
			done[i] = true
			changed = true
			fn(g.BlockAt(c.Cont))
		}
	}
}

func (g *Graph) rangeReached(c *bytecode.CatchEntry, seen []bool) bool {
	for pos := c.Start; pos < c.End && pos < len(g.owner); pos++ {
		if seen[g.owner[pos]] {
			return true
		}
	}
	return false
}

// Unreachable returns the blocks no entry point reaches.
func (g *Graph) Unreachable() []*Block {
	seen := g.reach()
	var out []*Block
	for _, b := range g.blocks {
		if !seen[b.ID] {
			out = append(out, b)
		}
	}
	return out
}

// Reachable reports whether a path of live edges leads from one block to
// another. A block reaches itself.
func (g *Graph) Reachable(from, to *Block) bool {
	if from == nil || to == nil {
		return false
	}
	seen := make([]bool, len(g.blocks))
	work := []*Block{from}
	seen[from.ID] = true
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		if b == to {
			return true
		}
		for _, e := range b.Succs {
			if !e.Dead && !seen[e.To.ID] {
				seen[e.To.ID] = true
				work = append(work, e.To)
			}
		}
	}
	return false
}

// StackDepths returns the operand stack depth on entry to each block,
// indexed by block ID, or -1 for blocks no entry point reaches. It re-runs
// the stack balance check over block paths: depths must agree where paths
// merge, no instruction may read more values than the stack holds and every
// leave must see exactly one value.
func (g *Graph) StackDepths() ([]int, error) {
	depth := make([]int, len(g.blocks))
	for i := range depth {
		depth[i] = -1
	}
	var work []*Block
	seed := func(b *Block, d int) error {
		if b == nil {
			return nil
		}
		if depth[b.ID] == -1 {
			depth[b.ID] = d
			work = append(work, b)
			return nil
		}
		if depth[b.ID] != d {
			return ErrStackDepth.New("depth mismatch entering %s: %d vs %d", b, depth[b.ID], d).
				WithProperty(PropBlock, b.ID)
		}
		return nil
	}
	drain := func() error {
		for len(work) > 0 {
			b := work[len(work)-1]
			work = work[:len(work)-1]
			d := depth[b.ID]
			for k := range b.Insns {
				in := &b.Insns[k]
				if r := in.Reads(); d < r {
					return ErrStackDepth.New("%s at %d reads %d values with %d on the stack", in.Op, b.Start+k, r, d).
						WithProperty(PropBlock, b.ID)
				}
				if in.Op == bytecode.OpLeave && d != 1 {
					return ErrStackDepth.New("leave at %d with %d values on the stack", b.Start+k, d).
						WithProperty(PropBlock, b.ID)
				}
				d = d - in.Reads() + in.Writes()
			}
			for _, e := range b.Succs {
				if err := seed(e.To, d); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := seed(g.Entry(), 0); err != nil {
		return nil, err
	}
	for _, pos := range g.Seq.Args.OptTable() {
		if err := seed(g.BlockAt(pos), 0); err != nil {
			return nil, err
		}
	}
	if err := drain(); err != nil {
		return nil, err
	}

	reached := make([]bool, len(g.blocks))
	for i, d := range depth {
		reached[i] = d >= 0
	}
	var failed error
	done := make([]bool, len(g.Seq.Catch))
	for changed := true; changed && failed == nil; {
		changed = false
		for i, c := range g.Seq.Catch {
			if done[i] || !g.rangeReached(c, reached) {
				continue
			}
			done[i] = true
			changed = true
			if err := seed(g.BlockAt(c.Cont), c.Depth+1); err != nil {
				failed = err
				break
			}
			if err := drain(); err != nil {
				failed = err
				break
			}
			for j, d := range depth {
				reached[j] = d >= 0
			}
		}
	}
	if failed != nil {
		return nil, failed
	}
	return depth, nil
}

// String renders the graph one block per line with its instructions and
// successor list.
func (g *Graph) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "== cfg %s\n", g.Seq.Name)
	for _, blk := range g.blocks {
		fmt.Fprintf(&b, "%s", blk)
		if blk.Handler {
			b.WriteString(" handler")
		}
		if blk.OptEntry {
			b.WriteString(" opt-entry")
		}
		b.WriteString("\n")
		for k := range blk.Insns {
			fmt.Fprintf(&b, "  %04d %s\n", blk.Start+k, &blk.Insns[k])
		}
		if len(blk.Succs) > 0 {
			succ := make([]string, len(blk.Succs))
			for k, e := range blk.Succs {
				succ[k] = fmt.Sprintf("block_%d (%s)", e.To.ID, e.Kind)
				if e.Dead {
					succ[k] += " dead"
				}
			}
			fmt.Fprintf(&b, "  -> %s\n", strings.Join(succ, ", "))
		}
	}
	return b.String()
}
