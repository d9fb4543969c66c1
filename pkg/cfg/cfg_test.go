package cfg

import (
	"github.com/joomcode/errorx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/chazu/rbvm/ast"
	"github.com/chazu/rbvm/compiler"
	"github.com/chazu/rbvm/pkg/bytecode"
)

func compileRoot(prog *ast.ProgramNode) *bytecode.InstructionSequence {
	unit, err := compiler.Compile(prog, compiler.DefaultOptions())
	Expect(err).NotTo(HaveOccurred())
	return unit.Root()
}

func mustBuild(seq *bytecode.InstructionSequence) *Graph {
	g, err := Build(seq)
	Expect(err).NotTo(HaveOccurred())
	return g
}

func blockWith(g *Graph, match func(in *bytecode.Instruction) bool) *Block {
	for _, b := range g.Blocks() {
		for k := range b.Insns {
			if match(&b.Insns[k]) {
				return b
			}
		}
	}
	return nil
}

func pushes(v any) func(in *bytecode.Instruction) bool {
	return func(in *bytecode.Instruction) bool {
		return in.Op == bytecode.OpPutObject && in.Object == v
	}
}

func newSeq(skipVerify bool) *bytecode.InstructionSequence {
	unit := bytecode.NewUnit(bytecode.DefaultOptions(), nil)
	unit.SkipVerify = skipVerify
	return unit.New(bytecode.KindTop, "<main>", 1, bytecode.NoSeq)
}

var _ = Describe("Build", func() {
	It("should reject an unfinalized sequence", func() {
		seq := newSeq(false)
		seq.PutNil()
		seq.Leave()

		_, err := Build(seq)
		Expect(errorx.IsOfType(err, ErrNotFinalized)).To(BeTrue())
	})

	It("should place every instruction in exactly one block", func() {
		seq := compileRoot(ast.Program([]string{"x"},
			ast.Assign("x", ast.Int(3)),
			ast.If(ast.Op(ast.Local("x"), ">", ast.Int(2)),
				[]ast.Node{ast.FCall("puts", ast.Str("big"))},
				[]ast.Node{ast.FCall("puts", ast.Str("small"))}),
		))
		g := mustBuild(seq)

		next := 0
		for i, b := range g.Blocks() {
			Expect(b.ID).To(Equal(i))
			Expect(b.Start).To(Equal(next))
			Expect(b.Len()).To(BeNumerically(">", 0))
			next = b.End
		}
		Expect(next).To(Equal(len(seq.Insns)))
		for pos := range seq.Insns {
			b := g.BlockAt(pos)
			Expect(pos).To(BeNumerically(">=", b.Start))
			Expect(pos).To(BeNumerically("<", b.End))
		}
	})

	It("should not mutate the sequence", func() {
		seq := compileRoot(ast.Program(nil,
			ast.While(ast.False(), ast.FCall("puts", ast.Int(1)))))
		before := append([]bytecode.Instruction(nil), seq.Insns...)

		mustBuild(seq)
		Expect(seq.Insns).To(Equal(before))
	})

	It("should keep the unreached else branch of a constant condition", func() {
		seq := compileRoot(ast.Program(nil,
			ast.If(ast.True(), []ast.Node{ast.Int(1)}, []ast.Node{ast.Int(2)})))
		g := mustBuild(seq)

		elseBlock := blockWith(g, pushes(int64(2)))
		Expect(elseBlock).NotTo(BeNil())
		Expect(g.Unreachable()).To(ContainElement(BeIdenticalTo(elseBlock)))
		Expect(g.Reachable(g.Entry(), elseBlock)).To(BeFalse())

		entry := g.Entry()
		Expect(entry.Last().Op).To(Equal(bytecode.OpBranchUnless))
		Expect(entry.Successor(Branch)).To(BeIdenticalTo(elseBlock))
		Expect(entry.Succs).To(ContainElement(HaveField("Dead", BeTrue())))
	})

	It("should report dead code after an unconditional exit", func() {
		seq := newSeq(false)
		seq.PutNil()
		seq.Leave()
		seq.PutObject(int64(5))
		seq.Leave()
		Expect(seq.Finalize()).To(Succeed())

		g := mustBuild(seq)
		Expect(g.Blocks()).To(HaveLen(2))
		Expect(g.Entry().Succs).To(BeEmpty())
		unreachable := g.Unreachable()
		Expect(unreachable).To(HaveLen(1))
		Expect(unreachable[0].Start).To(Equal(2))
	})

	Describe("a while loop", func() {
		var g *Graph

		BeforeEach(func() {
			g = mustBuild(compileRoot(ast.Program([]string{"i"},
				ast.Assign("i", ast.Int(0)),
				ast.While(ast.Op(ast.Local("i"), "<", ast.Int(3)),
					ast.Assign("i", ast.Op(ast.Local("i"), "+", ast.Int(1)))),
				ast.Local("i"),
			)))
		})

		It("should enter through the predicate", func() {
			entry := g.Entry()
			Expect(entry.Last().Op).To(Equal(bytecode.OpJump))
			Expect(entry.Successor(Fallthrough)).To(BeNil())

			pred := entry.Successor(Branch)
			Expect(pred).NotTo(BeNil())
			Expect(pred.Last().Op).To(Equal(bytecode.OpBranchIf))
		})

		It("should reach the body only from the predicate", func() {
			pred := g.Entry().Successor(Branch)
			body := pred.Successor(Branch)
			Expect(body).NotTo(BeNil())
			Expect(body.Preds).NotTo(BeEmpty())
			for _, e := range body.Preds {
				Expect(e.From).To(BeIdenticalTo(pred))
			}
			Expect(body.Successor(Fallthrough)).To(BeIdenticalTo(pred))
			Expect(g.Reachable(body, pred)).To(BeTrue())
			Expect(g.Reachable(g.Entry(), body)).To(BeTrue())
		})

		It("should have no unreachable blocks", func() {
			Expect(g.Unreachable()).To(BeEmpty())
		})

		It("should agree with the verifier on stack depths", func() {
			depths, err := g.StackDepths()
			Expect(err).NotTo(HaveOccurred())
			Expect(depths).To(HaveLen(len(g.Blocks())))
			Expect(depths[0]).To(Equal(0))
			for _, d := range depths {
				Expect(d).To(BeNumerically(">=", 0))
				Expect(d).To(BeNumerically("<=", g.Seq.StackMax))
			}
		})
	})

	It("should treat rescue handlers as entries", func() {
		seq := compileRoot(ast.Program(nil,
			&ast.BeginNode{
				Statements:   ast.Stmts(ast.Op(ast.Int(1), "/", ast.Int(0))),
				RescueClause: &ast.RescueNode{Statements: ast.Stmts(ast.Int(2))},
			},
		))
		Expect(seq.Catch).NotTo(BeEmpty())
		g := mustBuild(seq)

		handler := g.BlockAt(seq.Catch[0].Cont)
		Expect(handler.Handler).To(BeTrue())
		Expect(handler.Start).To(Equal(seq.Catch[0].Cont))
		Expect(g.Unreachable()).NotTo(ContainElement(BeIdenticalTo(handler)))

		depths, err := g.StackDepths()
		Expect(err).NotTo(HaveOccurred())
		Expect(depths[handler.ID]).To(Equal(seq.Catch[0].Depth + 1))
	})

	It("should mark optional argument entries", func() {
		params := ast.Required("a")
		params.Optionals = []*ast.OptionalParameterNode{{Name: "b", Value: ast.Int(1)}}
		unit, err := compiler.Compile(ast.Program(nil,
			ast.Def("f", params, []string{"a", "b"}, ast.Local("b"))), compiler.DefaultOptions())
		Expect(err).NotTo(HaveOccurred())

		var method *bytecode.InstructionSequence
		for _, s := range unit.Sequences() {
			if s.Kind == bytecode.KindMethod {
				method = s
			}
		}
		Expect(method).NotTo(BeNil())

		g := mustBuild(method)
		entries := 0
		for _, b := range g.Blocks() {
			if b.OptEntry {
				entries++
			}
		}
		Expect(entries).To(Equal(len(method.Args.OptTable())))
		Expect(g.Unreachable()).To(BeEmpty())
		_, err = g.StackDepths()
		Expect(err).NotTo(HaveOccurred())
	})

	It("should report unbalanced merges", func() {
		seq := newSeq(true)
		join := seq.Label()
		seq.PutNil()
		seq.BranchIf(join)
		seq.PutNil()
		seq.Push(join)
		seq.Leave()
		Expect(seq.Finalize()).To(Succeed())

		g := mustBuild(seq)
		_, err := g.StackDepths()
		Expect(errorx.IsOfType(err, ErrStackDepth)).To(BeTrue())
	})

	It("should render blocks and edges", func() {
		g := mustBuild(compileRoot(ast.Program(nil,
			ast.If(ast.True(), []ast.Node{ast.Int(1)}, []ast.Node{ast.Int(2)}))))
		out := g.String()
		Expect(out).To(ContainSubstring("== cfg <main>"))
		Expect(out).To(ContainSubstring("block_0 [0, "))
		Expect(out).To(ContainSubstring("(branch) dead"))
	})
})
