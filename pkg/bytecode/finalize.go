package bytecode

// Finalize resolves labels, checks the stream and freezes the sequence.
//
// Every child referenced by an instruction must already be finalized. The
// checks, in order: no referenced label is unbound, every resolved target
// lies inside the stream, the stream ends in a terminal instruction, and the
// symbolic stack depth never goes negative, agrees at every merge point and
// is exactly 1 before each leave.
func (s *InstructionSequence) Finalize() error {
	if s.frozen {
		return ErrMisuse.New("%s finalized twice", s.Name).WithProperty(PropSequence, s.Name)
	}

	for i := range s.pending {
		in := &s.pending[i]
		if in.Child == NoSeq {
			continue
		}
		child := s.unit.Seq(in.Child)
		if child == nil || !child.frozen {
			return ErrMalformed.New("%s references child sequence %d before it is finalized", in.Op, in.Child).
				WithProperty(PropSequence, s.Name).WithProperty(PropPosition, i)
		}
	}
	for _, l := range s.labels {
		if l.refs > 0 && !l.bound {
			return ErrUnboundLabel.New("%s is referenced but never bound", l).WithProperty(PropSequence, s.Name)
		}
	}

	insns := s.pending
	remap := make([]int, len(insns)+1)
	for i := range remap {
		remap[i] = i
	}
	if s.unit.Options.PeepholeOptimization {
		insns, remap = s.peephole()
	}

	n := len(insns)
	resolve := func(l *Label) (int, error) {
		pos := remap[l.pos]
		if pos >= n {
			return 0, ErrUnboundLabel.New("%s resolves past the end of the sequence", l).WithProperty(PropSequence, s.Name)
		}
		return pos, nil
	}

	for i := range insns {
		in := &insns[i]
		if in.Label == nil {
			continue
		}
		pos, err := resolve(in.Label)
		if err != nil {
			return err
		}
		in.Target = pos
	}
	optTable := make([]int, 0, len(s.Args.optLabels))
	for _, l := range s.Args.optLabels {
		pos, err := resolve(l)
		if err != nil {
			return err
		}
		optTable = append(optTable, pos)
	}
	for _, c := range s.Catch {
		var err error
		if c.Cont, err = resolve(c.handler); err != nil {
			return err
		}
		c.Start = remap[c.start.pos]
		c.End = remap[c.end.pos]
	}

	if n == 0 || !insns[n-1].Op.IsUnconditional() {
		return ErrMissingTerminal.New("%s does not end in leave, throw or jump", s.Name).WithProperty(PropSequence, s.Name)
	}

	max := 0
	if !s.unit.SkipVerify {
		var err error
		if max, err = s.verify(insns, optTable); err != nil {
			return err
		}
	}

	for i := range insns {
		insns[i].Label = nil
	}
	for _, l := range s.labels {
		if l.bound {
			l.pos = remap[l.pos]
			l.resolved = true
		}
	}
	s.Args.optTable = optTable
	s.Insns = insns
	s.StackMax = max
	s.pending = nil
	s.frozen = true
	return nil
}

// peephole removes jumps to the next instruction, threads jumps to jumps and
// turns jumps to leave into leave. It returns the new stream and a map from
// old positions (plus one past the end) to new ones.
func (s *InstructionSequence) peephole() ([]Instruction, []int) {
	src := s.pending
	target := func(l *Label) int {
		if l.pos < len(src) {
			return l.pos
		}
		return -1
	}

	for i := range src {
		in := &src[i]
		if in.Op != OpJump {
			continue
		}
		for hops := 0; hops < len(src); hops++ {
			p := target(in.Label)
			if p < 0 || src[p].Op != OpJump || src[p].Label == in.Label || p == i {
				break
			}
			in.Label.refs--
			in.Label = src[p].Label
			in.Label.refs++
		}
		if p := target(in.Label); p >= 0 && src[p].Op == OpLeave {
			in.Label.refs--
			line := in.Line
			*in = Instruction{Op: OpLeave, Line: line}
		}
	}

	out := make([]Instruction, 0, len(src))
	remap := make([]int, len(src)+1)
	for i := range src {
		remap[i] = len(out)
		in := src[i]
		if in.Op == OpJump && in.Label.pos == i+1 {
			in.Label.refs--
			continue
		}
		out = append(out, in)
	}
	remap[len(src)] = len(out)
	return out, remap
}

// verify runs the symbolic stack-depth pass and returns the maximum depth.
func (s *InstructionSequence) verify(insns []Instruction, optTable []int) (int, error) {
	n := len(insns)
	depth := make([]int, n)
	for i := range depth {
		depth[i] = -1
	}
	type item struct{ pos, depth int }
	var work []item
	max := 0

	seed := func(pos, d int) error {
		if pos < 0 || pos >= n {
			return ErrMalformed.New("branch target %d outside sequence", pos).WithProperty(PropSequence, s.Name)
		}
		if depth[pos] == -1 {
			depth[pos] = d
			work = append(work, item{pos, d})
			return nil
		}
		if depth[pos] != d {
			return ErrStackDepth.New("stack depth mismatch at merge: %d vs %d", depth[pos], d).
				WithProperty(PropSequence, s.Name).WithProperty(PropPosition, pos)
		}
		return nil
	}

	drain := func() error {
		for len(work) > 0 {
			it := work[len(work)-1]
			work = work[:len(work)-1]
			in := &insns[it.pos]
			r := in.Reads()
			if it.depth < r {
				return ErrStackDepth.New("%s reads %d values with %d on the stack", in.Op, r, it.depth).
					WithProperty(PropSequence, s.Name).WithProperty(PropPosition, it.pos)
			}
			if in.Op == OpLeave && it.depth != 1 {
				return ErrStackDepth.New("leave with %d values on the stack", it.depth).
					WithProperty(PropSequence, s.Name).WithProperty(PropPosition, it.pos)
			}
			d := it.depth - r + in.Writes()
			if d > max {
				max = d
			}
			if in.Op.IsBranch() {
				if err := seed(in.Target, d); err != nil {
					return err
				}
			}
			if !in.Op.IsUnconditional() {
				if it.pos+1 >= n {
					return ErrMissingTerminal.New("execution falls off the end of %s", s.Name).WithProperty(PropSequence, s.Name)
				}
				if err := seed(it.pos+1, d); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := seed(0, 0); err != nil {
		return 0, err
	}
	for _, pos := range optTable {
		if err := seed(pos, 0); err != nil {
			return 0, err
		}
	}
	if err := drain(); err != nil {
		return 0, err
	}

	// Handlers become reachable once the start of their range is.
	seeded := make([]bool, len(s.Catch))
	for changed := true; changed; {
		changed = false
		for i, c := range s.Catch {
			if seeded[i] || c.Start >= n || depth[c.Start] < 0 {
				continue
			}
			seeded[i] = true
			changed = true
			c.Depth = depth[c.Start]
			if err := seed(c.Cont, c.Depth+1); err != nil {
				return 0, err
			}
			if err := drain(); err != nil {
				return 0, err
			}
		}
	}
	return max, nil
}
