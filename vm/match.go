package vm

import (
	"strings"
	"unicode/utf8"

	"github.com/chazu/rbvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// MatchData and the last match
// ---------------------------------------------------------------------------

// MatchData is the result of a successful regexp match. Groups are held as
// byte offsets into Subject.
type MatchData struct {
	Regexp  *Regexp
	Subject string
	loc     []int
}

// newMatch runs re against s and returns nil when it does not match.
func newMatch(re *Regexp, s string) *MatchData {
	loc := re.re.FindStringSubmatchIndex(s)
	if loc == nil {
		return nil
	}
	return &MatchData{Regexp: re, Subject: s, loc: loc}
}

// Size is the number of groups including the whole match.
func (m *MatchData) Size() int { return len(m.loc) / 2 }

// Group returns group n, or nil when n is out of range or the group did
// not take part in the match.
func (m *MatchData) Group(n int) Value {
	if n < 0 || n >= m.Size() || m.loc[2*n] < 0 {
		return nil
	}
	return m.Subject[m.loc[2*n]:m.loc[2*n+1]]
}

// Named returns the group called name. The boolean is false when the
// regexp has no such group.
func (m *MatchData) Named(name string) (Value, bool) {
	idx := m.Regexp.re.SubexpIndex(name)
	if idx < 0 {
		return nil, false
	}
	return m.Group(idx), true
}

func (m *MatchData) PreMatch() string  { return m.Subject[:m.loc[0]] }
func (m *MatchData) PostMatch() string { return m.Subject[m.loc[1]:] }

// lastGroup is $+: the highest numbered group that matched.
func (m *MatchData) lastGroup() Value {
	for n := m.Size() - 1; n > 0; n-- {
		if v := m.Group(n); v != nil {
			return v
		}
	}
	return nil
}

func (m *MatchData) names() []string {
	var out []string
	for _, n := range m.Regexp.re.SubexpNames() {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

func (m *MatchData) inspect() string {
	var b strings.Builder
	b.WriteString("#<MatchData ")
	b.WriteString(inspect(m.Group(0)))
	names := m.Regexp.re.SubexpNames()
	for n := 1; n < m.Size(); n++ {
		b.WriteByte(' ')
		if names[n] != "" {
			b.WriteString(names[n])
		} else {
			b.WriteString(toS(int64(n)))
		}
		b.WriteByte(':')
		b.WriteString(inspect(m.Group(n)))
	}
	b.WriteByte('>')
	return b.String()
}

// lastMatch is $~ of the running method. Blocks share their method's.
func (i *Interpreter) lastMatch() *MatchData {
	if f := i.current(); f != nil {
		return f.methodFrame().match
	}
	return nil
}

func (i *Interpreter) setLastMatch(m *MatchData) {
	if f := i.current(); f != nil {
		f.methodFrame().match = m
	}
}

// match runs re against s, records the result as $~ and returns it.
func (i *Interpreter) match(re *Regexp, s string) *MatchData {
	m := newMatch(re, s)
	i.setLastMatch(m)
	return m
}

// special implements getspecial.
func (i *Interpreter) special(key, typ int) Value {
	m := i.lastMatch()
	if key != bytecode.SpecialBackref || m == nil {
		return nil
	}
	if typ&1 == 0 {
		return m.Group(typ >> 1)
	}
	switch typ {
	case bytecode.BackrefMatch:
		return m.Group(0)
	case bytecode.BackrefPreMatch:
		return m.PreMatch()
	case bytecode.BackrefPostMatch:
		return m.PostMatch()
	case bytecode.BackrefLastGroup:
		return m.lastGroup()
	}
	return nil
}

func (i *Interpreter) registerMatchDataPrimitives() {
	c := i.c.MatchData

	c.AddMethod1("[]", func(i *Interpreter, self Value, arg Value) Value {
		m := self.(*MatchData)
		switch x := arg.(type) {
		case int64:
			n := int(x)
			if n < 0 {
				n += m.Size()
			}
			return m.Group(n)
		case string, Symbol:
			v, ok := m.Named(symbolName(x))
			if !ok {
				i.raise(i.c.IndexError, "undefined group name reference: %s", symbolName(x))
			}
			return v
		}
		i.raise(i.c.TypeError, "no implicit conversion of %s into Integer", i.describeOperand(arg))
		return nil
	})
	c.AddMethod0("to_a", func(_ *Interpreter, self Value) Value {
		m := self.(*MatchData)
		out := make([]Value, m.Size())
		for n := range out {
			out[n] = m.Group(n)
		}
		return NewArray(out...)
	})
	c.AddMethod0("captures", func(_ *Interpreter, self Value) Value {
		m := self.(*MatchData)
		out := make([]Value, m.Size()-1)
		for n := range out {
			out[n] = m.Group(n + 1)
		}
		return NewArray(out...)
	})
	c.AddMethod0("named_captures", func(_ *Interpreter, self Value) Value {
		m := self.(*MatchData)
		h := NewHash()
		for _, name := range m.names() {
			v, _ := m.Named(name)
			h.Set(name, v)
		}
		return h
	})
	c.AddMethod0("names", func(_ *Interpreter, self Value) Value {
		return stringArray(self.(*MatchData).names())
	})
	c.AddMethod1("begin", func(i *Interpreter, self Value, arg Value) Value {
		m := self.(*MatchData)
		n := int(i.mustInt(arg))
		if n < 0 || n >= m.Size() {
			i.raise(i.c.IndexError, "index %d out of matches", n)
		}
		if m.loc[2*n] < 0 {
			return nil
		}
		return int64(utf8.RuneCountInString(m.Subject[:m.loc[2*n]]))
	})
	c.AddMethod0("pre_match", func(_ *Interpreter, self Value) Value { return self.(*MatchData).PreMatch() })
	c.AddMethod0("post_match", func(_ *Interpreter, self Value) Value { return self.(*MatchData).PostMatch() })
	c.AddMethod0("size", func(_ *Interpreter, self Value) Value { return int64(self.(*MatchData).Size()) })
	c.AddMethod0("to_s", func(_ *Interpreter, self Value) Value { return self.(*MatchData).Group(0) })
	c.AddMethod0("string", func(_ *Interpreter, self Value) Value { return self.(*MatchData).Subject })
	c.AddMethod0("regexp", func(_ *Interpreter, self Value) Value { return self.(*MatchData).Regexp })
	c.AddMethod0("inspect", func(_ *Interpreter, self Value) Value { return self.(*MatchData).inspect() })
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

// globalName follows alias $new $old links to the variable that holds the
// value.
func (i *Interpreter) globalName(name string) string {
	for {
		target, ok := i.gvarAliases[name]
		if !ok {
			return name
		}
		name = target
	}
}

func (i *Interpreter) getGlobal(name string) Value {
	name = i.globalName(name)
	if name == "$~" {
		if m := i.lastMatch(); m != nil {
			return m
		}
		return nil
	}
	return i.globals[name]
}

func (i *Interpreter) setGlobal(name string, v Value) {
	name = i.globalName(name)
	if name == "$~" {
		m, ok := v.(*MatchData)
		if !ok && v != nil {
			i.raise(i.c.TypeError, "wrong argument type %s (expected MatchData)", i.classOf(v).Name)
		}
		i.setLastMatch(m)
		return
	}
	i.globals[name] = v
}

func (i *Interpreter) globalDefined(name string) bool {
	name = i.globalName(name)
	if name == "$~" {
		return i.lastMatch() != nil
	}
	_, ok := i.globals[name]
	return ok
}

// aliasGlobal makes newName another name for oldName. Aliasing a name to
// itself, directly or through a chain, is ignored.
func (i *Interpreter) aliasGlobal(newName, oldName string) {
	target := i.globalName(oldName)
	if target == newName {
		return
	}
	i.gvarAliases[newName] = target
}

// ---------------------------------------------------------------------------
// END blocks
// ---------------------------------------------------------------------------

// registerPostExe records an END block. A site reached repeatedly still
// registers once.
func (i *Interpreter) registerPostExe(p *Proc) {
	if i.postExeSeen[p.Seq] {
		return
	}
	i.postExeSeen[p.Seq] = true
	i.postExe = append(i.postExe, p)
}

// runPostExe runs the registered END blocks, last registered first, and
// returns the first error they raise.
func (i *Interpreter) runPostExe() error {
	var first error
	for len(i.postExe) > 0 {
		p := i.postExe[len(i.postExe)-1]
		i.postExe = i.postExe[:len(i.postExe)-1]
		_, err := i.protect("END", func() Value { return i.callProc(p, nil, nil, nil) })
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}
