// Package store persists compiled units: a canonical CBOR wire form of the
// whole sequence tree, content hashes over it and a SQLite-backed cache.
package store

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/joomcode/errorx"

	"github.com/chazu/rbvm/pkg/bytecode"
)

var (
	Errors = errorx.NewNamespace("store")

	ErrMalformed = Errors.NewType("malformed")
	ErrVersion   = Errors.NewType("version")
	ErrCorrupt   = Errors.NewType("corrupt")
	ErrCache     = Errors.NewType("cache")
)

// WireVersion is the format revision written by Marshal.
const WireVersion = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Literal kinds carried by putobject and putstring.
const (
	litNil uint8 = iota
	litBool
	litInt
	litFloat
	litString
	litSymbol
	litRegexp
)

type wireUnit struct {
	Version int              `cbor:"1,keyasint"`
	File    string           `cbor:"2,keyasint,omitempty"`
	Options bytecode.Options `cbor:"3,keyasint"`
	Seqs    []wireSeq        `cbor:"4,keyasint"`
}

type wireSeq struct {
	Kind   uint8       `cbor:"1,keyasint"`
	Name   string      `cbor:"2,keyasint"`
	Line   int         `cbor:"3,keyasint"`
	Parent int32       `cbor:"4,keyasint,omitempty"`
	Locals []string    `cbor:"5,keyasint,omitempty"`
	Args   wireArgs    `cbor:"6,keyasint"`
	Catch  []wireCatch `cbor:"7,keyasint,omitempty"`
	Insns  []wireInsn  `cbor:"8,keyasint"`
}

type wireArgs struct {
	Lead     int                `cbor:"1,keyasint,omitempty"`
	Opt      int                `cbor:"2,keyasint,omitempty"`
	Rest     int                `cbor:"3,keyasint"`
	Post     int                `cbor:"4,keyasint,omitempty"`
	Keywords []bytecode.Keyword `cbor:"5,keyasint,omitempty"`
	Block    int                `cbor:"6,keyasint"`
	OptTable []int              `cbor:"7,keyasint,omitempty"`
}

type wireCatch struct {
	Kind  uint8 `cbor:"1,keyasint"`
	Start int   `cbor:"2,keyasint"`
	End   int   `cbor:"3,keyasint"`
	Cont  int   `cbor:"4,keyasint"`
}

type wireInsn struct {
	Op     uint8        `cbor:"1,keyasint"`
	Lit    *wireLiteral `cbor:"2,keyasint,omitempty"`
	Name   string       `cbor:"3,keyasint,omitempty"`
	Index  int          `cbor:"4,keyasint,omitempty"`
	Level  int          `cbor:"5,keyasint,omitempty"`
	Count  int          `cbor:"6,keyasint,omitempty"`
	Post   int          `cbor:"7,keyasint,omitempty"`
	Flags  int          `cbor:"8,keyasint,omitempty"`
	Call   *wireCall    `cbor:"9,keyasint,omitempty"`
	Child  int32        `cbor:"10,keyasint,omitempty"`
	Target int          `cbor:"11,keyasint,omitempty"`
	Line   int          `cbor:"12,keyasint,omitempty"`
}

type wireLiteral struct {
	Kind  uint8   `cbor:"1,keyasint"`
	Bool  bool    `cbor:"2,keyasint,omitempty"`
	Int   int64   `cbor:"3,keyasint,omitempty"`
	Float float64 `cbor:"4,keyasint,omitempty"`
	Str   string  `cbor:"5,keyasint,omitempty"`
	Flags string  `cbor:"6,keyasint,omitempty"`
}

type wireCall struct {
	Method string   `cbor:"1,keyasint"`
	Argc   int      `cbor:"2,keyasint,omitempty"`
	Flags  uint32   `cbor:"3,keyasint,omitempty"`
	KwArgs []string `cbor:"4,keyasint,omitempty"`
}

// Marshal encodes every sequence of unit in canonical CBOR. Equal units
// encode to equal bytes.
func Marshal(unit *bytecode.Unit) ([]byte, error) {
	w := wireUnit{Version: WireVersion, File: unit.File, Options: unit.Options}
	for _, seq := range unit.Sequences() {
		if !seq.Frozen() {
			return nil, ErrMalformed.New("sequence %s is not finalized", seq.Name)
		}
		ws, err := encodeSeq(seq)
		if err != nil {
			return nil, err
		}
		w.Seqs = append(w.Seqs, ws)
	}
	return cborEncMode.Marshal(&w)
}

func encodeSeq(seq *bytecode.InstructionSequence) (wireSeq, error) {
	ws := wireSeq{
		Kind:   uint8(seq.Kind),
		Name:   seq.Name,
		Line:   seq.Line,
		Parent: int32(seq.ParentID()),
		Locals: seq.Locals.Names(),
		Args: wireArgs{
			Lead:     seq.Args.Lead,
			Opt:      seq.Args.Opt,
			Rest:     seq.Args.Rest,
			Post:     seq.Args.Post,
			Keywords: seq.Args.Keywords,
			Block:    seq.Args.Block,
			OptTable: seq.Args.OptTable(),
		},
	}
	for _, c := range seq.Catch {
		ws.Catch = append(ws.Catch, wireCatch{Kind: uint8(c.Kind), Start: c.Start, End: c.End, Cont: c.Cont})
	}
	for i := range seq.Insns {
		in := &seq.Insns[i]
		wi := wireInsn{
			Op:    uint8(in.Op),
			Name:  in.Name,
			Index: in.Index,
			Level: in.Level,
			Count: in.Count,
			Post:  in.Post,
			Flags: in.Flags,
			Child: int32(in.Child),
			Line:  in.Line,
		}
		if in.Op.IsBranch() {
			wi.Target = in.Target
		}
		if in.Op == bytecode.OpPutObject || in.Op == bytecode.OpPutString {
			lit, err := encodeLiteral(in.Object)
			if err != nil {
				return ws, errorx.Decorate(err, "%s at %d", seq.Name, i)
			}
			wi.Lit = lit
		}
		if cd := in.Call; cd != nil {
			wi.Call = &wireCall{Method: cd.Method, Argc: cd.Argc, Flags: uint32(cd.Flags), KwArgs: cd.KwArgs}
		}
		ws.Insns = append(ws.Insns, wi)
	}
	return ws, nil
}

func encodeLiteral(v any) (*wireLiteral, error) {
	switch x := v.(type) {
	case nil:
		return &wireLiteral{Kind: litNil}, nil
	case bool:
		return &wireLiteral{Kind: litBool, Bool: x}, nil
	case int64:
		return &wireLiteral{Kind: litInt, Int: x}, nil
	case float64:
		return &wireLiteral{Kind: litFloat, Float: x}, nil
	case string:
		return &wireLiteral{Kind: litString, Str: x}, nil
	case bytecode.Symbol:
		return &wireLiteral{Kind: litSymbol, Str: string(x)}, nil
	case bytecode.RegexpSource:
		return &wireLiteral{Kind: litRegexp, Str: x.Source, Flags: x.Flags}, nil
	}
	return nil, ErrMalformed.New("literal of type %T has no wire form", v)
}

func (l *wireLiteral) value() (any, error) {
	switch l.Kind {
	case litNil:
		return nil, nil
	case litBool:
		return l.Bool, nil
	case litInt:
		return l.Int, nil
	case litFloat:
		return l.Float, nil
	case litString:
		return l.Str, nil
	case litSymbol:
		return bytecode.Symbol(l.Str), nil
	case litRegexp:
		return bytecode.RegexpSource{Source: l.Str, Flags: l.Flags}, nil
	}
	return nil, ErrMalformed.New("unknown literal kind %d", l.Kind)
}

// Unmarshal decodes a unit and rebuilds it through the emission API, so
// every sequence is finalized again and the label and stack checks rerun.
func Unmarshal(data []byte) (unit *bytecode.Unit, err error) {
	var w wireUnit
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, ErrMalformed.Wrap(err, "decode unit")
	}
	if w.Version != WireVersion {
		return nil, ErrVersion.New("wire version %d, want %d", w.Version, WireVersion)
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e, ok := errorx.ErrorFromPanic(r)
		if !ok {
			panic(r)
		}
		unit, err = nil, ErrMalformed.Wrap(e, "rebuild unit")
	}()

	// Jumps were already optimized when the unit was first finalized.
	opts := w.Options
	opts.PeepholeOptimization = false
	unit = bytecode.NewUnit(opts, nil)
	unit.File = w.File

	seqs := make([]*bytecode.InstructionSequence, len(w.Seqs))
	for i, ws := range w.Seqs {
		parent := bytecode.SeqID(ws.Parent)
		if parent != bytecode.NoSeq && (int(parent) > i || parent < 0) {
			return nil, ErrMalformed.New("sequence %s has parent %d after it", ws.Name, parent)
		}
		seqs[i] = unit.New(bytecode.Kind(ws.Kind), ws.Name, ws.Line, parent)
	}
	for i, ws := range w.Seqs {
		if err := rebuild(unit, seqs[i], &ws, len(w.Seqs)); err != nil {
			return nil, err
		}
	}
	// Children have higher handles than their parents.
	for i := len(seqs) - 1; i >= 0; i-- {
		if err := seqs[i].Finalize(); err != nil {
			return nil, ErrMalformed.Wrap(err, "finalize %s", seqs[i].Name)
		}
	}
	unit.Options = w.Options
	return unit, nil
}

func rebuild(unit *bytecode.Unit, seq *bytecode.InstructionSequence, ws *wireSeq, nseqs int) error {
	for _, name := range ws.Locals {
		if len(name) > 0 && name[0] == '#' {
			seq.Locals.Anonymous(name[1:])
		} else {
			seq.Locals.Plain(name)
		}
	}
	seq.Args.Lead = ws.Args.Lead
	seq.Args.Opt = ws.Args.Opt
	seq.Args.Rest = ws.Args.Rest
	seq.Args.Post = ws.Args.Post
	seq.Args.Keywords = ws.Args.Keywords
	seq.Args.Block = ws.Args.Block

	n := len(ws.Insns)
	labels := make(map[int]*bytecode.Label)
	labelAt := func(pos int) (*bytecode.Label, error) {
		if pos < 0 || pos > n {
			return nil, ErrMalformed.New("%s: position %d outside %d instructions", ws.Name, pos, n)
		}
		if l, ok := labels[pos]; ok {
			return l, nil
		}
		l := seq.Label()
		labels[pos] = l
		return l, nil
	}

	for _, pos := range ws.Args.OptTable {
		l, err := labelAt(pos)
		if err != nil {
			return err
		}
		seq.AddOptLabel(l)
	}
	for _, c := range ws.Catch {
		start, err := labelAt(c.Start)
		if err != nil {
			return err
		}
		end, err := labelAt(c.End)
		if err != nil {
			return err
		}
		cont, err := labelAt(c.Cont)
		if err != nil {
			return err
		}
		seq.AddCatch(bytecode.CatchKind(c.Kind), start, end, cont)
	}

	insns := make([]bytecode.Instruction, n)
	for i := range ws.Insns {
		wi := &ws.Insns[i]
		op := bytecode.Opcode(wi.Op)
		if !op.Valid() {
			return ErrMalformed.New("%s: unknown opcode 0x%02X at %d", ws.Name, wi.Op, i)
		}
		if wi.Child < 0 || int(wi.Child) > nseqs {
			return ErrMalformed.New("%s: child %d out of range at %d", ws.Name, wi.Child, i)
		}
		in := bytecode.Instruction{
			Op:    op,
			Name:  wi.Name,
			Index: wi.Index,
			Level: wi.Level,
			Count: wi.Count,
			Post:  wi.Post,
			Flags: wi.Flags,
			Child: bytecode.SeqID(wi.Child),
			Line:  wi.Line,
		}
		if wi.Lit != nil {
			v, err := wi.Lit.value()
			if err != nil {
				return err
			}
			in.Object = v
		}
		if wi.Call != nil {
			in.Call = unit.Calls.Intern(wi.Call.Method, wi.Call.Argc, bytecode.CallFlag(wi.Call.Flags), wi.Call.KwArgs)
		}
		if op.IsBranch() {
			l, err := labelAt(wi.Target)
			if err != nil {
				return err
			}
			in.Label = l
		}
		insns[i] = in
	}

	for i := range insns {
		if l, ok := labels[i]; ok {
			seq.Push(l)
		}
		seq.Emit(insns[i])
	}
	if l, ok := labels[n]; ok {
		seq.Push(l)
	}
	return nil
}

// Hash returns the SHA-256 digest of unit's canonical encoding.
func Hash(unit *bytecode.Unit) ([32]byte, error) {
	data, err := Marshal(unit)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}
