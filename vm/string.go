package vm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// String Primitives
// ---------------------------------------------------------------------------

func (i *Interpreter) registerStringPrimitives() {
	c := i.c.String

	c.AddMethod1("+", func(i *Interpreter, self Value, arg Value) Value {
		return self.(string) + i.mustString(arg)
	})
	c.AddMethod1("*", func(i *Interpreter, self Value, arg Value) Value {
		n := i.mustInt(arg)
		if n < 0 {
			i.raise(i.c.ArgumentError, "negative argument")
		}
		return strings.Repeat(self.(string), int(n))
	})
	c.AddMethod1("%", func(i *Interpreter, self Value, arg Value) Value {
		args := []Value{arg}
		if arr, ok := arg.(*Array); ok {
			args = arr.Elems
		}
		return i.sprintf(self.(string), args)
	})
	c.AddMethod1("<<", func(i *Interpreter, self Value, _ Value) Value {
		i.raise(i.c.FrozenError, "can't modify frozen String: %s", inspect(self))
		return nil
	})
	c.AddMethod1("==", func(_ *Interpreter, self Value, arg Value) Value {
		s, ok := arg.(string)
		return ok && s == self.(string)
	})
	c.Methods["==="] = c.Methods["=="]
	c.Methods["eql?"] = c.Methods["=="]
	c.AddMethod1("<=>", func(_ *Interpreter, self Value, arg Value) Value {
		s, ok := arg.(string)
		if !ok {
			return nil
		}
		return int64(strings.Compare(self.(string), s))
	})
	for _, op := range []string{"<", "<=", ">", ">="} {
		c.AddMethod1(op, func(i *Interpreter, self Value, arg Value) Value {
			s, ok := arg.(string)
			if !ok {
				i.raise(i.c.ArgumentError, "comparison of String with %s failed", i.describeOperand(arg))
			}
			v, _ := stringBinary(op, self.(string), s)
			return v
		})
	}

	// Size and conversion
	c.AddMethod0("length", func(_ *Interpreter, self Value) Value {
		return int64(utf8.RuneCountInString(self.(string)))
	})
	c.Methods["size"] = c.Methods["length"]
	c.AddMethod0("bytesize", func(_ *Interpreter, self Value) Value { return int64(len(self.(string))) })
	c.AddMethod0("empty?", func(_ *Interpreter, self Value) Value { return self.(string) == "" })
	c.AddMethod0("to_s", func(_ *Interpreter, self Value) Value { return self })
	c.Methods["to_str"] = c.Methods["to_s"]
	c.AddMethod0("inspect", func(_ *Interpreter, self Value) Value { return inspect(self) })
	c.AddMethod0("to_sym", func(_ *Interpreter, self Value) Value { return Symbol(self.(string)) })
	c.Methods["intern"] = c.Methods["to_sym"]
	c.AddMethod0("to_i", func(_ *Interpreter, self Value) Value { return leadingInt(self.(string)) })
	c.AddMethod0("to_f", func(_ *Interpreter, self Value) Value { return leadingFloat(self.(string)) })
	c.AddMethod0("frozen?", func(_ *Interpreter, _ Value) Value { return true })
	c.AddMethod0("dup", func(_ *Interpreter, self Value) Value { return self })
	c.AddMethod0("hash", func(_ *Interpreter, self Value) Value {
		var h int64 = 5381
		for _, b := range []byte(self.(string)) {
			h = h*33 + int64(b)
		}
		return h
	})

	// Case and whitespace
	str0 := func(name string, fn func(string) string) {
		c.AddMethod0(name, func(_ *Interpreter, self Value) Value { return fn(self.(string)) })
	}
	str0("upcase", strings.ToUpper)
	str0("downcase", strings.ToLower)
	str0("capitalize", capitalize)
	str0("swapcase", func(s string) string {
		return strings.Map(func(r rune) rune {
			if unicode.IsUpper(r) {
				return unicode.ToLower(r)
			}
			return unicode.ToUpper(r)
		}, s)
	})
	str0("strip", strings.TrimSpace)
	str0("lstrip", func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) })
	str0("rstrip", func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) })
	str0("chomp", func(s string) string {
		s = strings.TrimSuffix(s, "\n")
		return strings.TrimSuffix(s, "\r")
	})
	str0("chop", func(s string) string {
		if s == "" {
			return s
		}
		_, n := utf8.DecodeLastRuneInString(s)
		return s[:len(s)-n]
	})
	str0("reverse", func(s string) string {
		r := []rune(s)
		for a, b := 0, len(r)-1; a < b; a, b = a+1, b-1 {
			r[a], r[b] = r[b], r[a]
		}
		return string(r)
	})
	str0("succ", func(s string) string {
		r := []rune(s)
		for j := len(r) - 1; j >= 0; j-- {
			switch r[j] {
			case 'z':
				r[j] = 'a'
			case 'Z':
				r[j] = 'A'
			case '9':
				r[j] = '0'
			default:
				r[j]++
				return string(r)
			}
		}
		return "1" + string(r)
	})

	// Searching
	c.AddMethod1("include?", func(i *Interpreter, self Value, arg Value) Value {
		return strings.Contains(self.(string), i.mustString(arg))
	})
	c.AddMethod("start_with?", 1, -1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		for _, a := range args {
			if strings.HasPrefix(self.(string), i.mustString(a)) {
				return true
			}
		}
		return false
	})
	c.AddMethod("end_with?", 1, -1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		for _, a := range args {
			if strings.HasSuffix(self.(string), i.mustString(a)) {
				return true
			}
		}
		return false
	})
	c.AddMethod1("index", func(i *Interpreter, self Value, arg Value) Value {
		s := self.(string)
		at := strings.Index(s, i.mustString(arg))
		if at < 0 {
			return nil
		}
		return int64(utf8.RuneCountInString(s[:at]))
	})
	c.AddMethod1("count", func(i *Interpreter, self Value, arg Value) Value {
		set := i.mustString(arg)
		n := int64(0)
		for _, r := range self.(string) {
			if strings.ContainsRune(set, r) {
				n++
			}
		}
		return n
	})
	c.AddMethod1("=~", func(i *Interpreter, self Value, arg Value) Value {
		re, ok := arg.(*Regexp)
		if !ok {
			i.raise(i.c.TypeError, "wrong argument type %s (expected Regexp)", i.classOf(arg).Name)
		}
		return i.match(re, self.(string)).index()
	})
	c.AddMethod1("match?", func(i *Interpreter, self Value, arg Value) Value {
		return i.toRegexp(arg).MatchString(self.(string))
	})
	c.AddMethod1("match", func(i *Interpreter, self Value, arg Value) Value {
		if m := i.match(i.toRegexp(arg), self.(string)); m != nil {
			return m
		}
		return nil
	})
	c.AddMethod1("scan", func(i *Interpreter, self Value, arg Value) Value {
		re := i.toRegexp(arg)
		var out []Value
		for _, m := range re.re.FindAllStringSubmatch(self.(string), -1) {
			if len(m) == 1 {
				out = append(out, m[0])
				continue
			}
			groups := make([]Value, len(m)-1)
			for j, g := range m[1:] {
				groups[j] = g
			}
			out = append(out, NewArray(groups...))
		}
		return NewArray(out...)
	})

	// Slicing and splitting
	c.AddMethod("[]", 1, 2, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		return i.stringSlice(self.(string), args)
	})
	c.Methods["slice"] = c.Methods["[]"]
	c.AddMethod("split", 0, 2, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		s := self.(string)
		var parts []string
		switch {
		case len(args) == 0 || args[0] == nil || args[0] == " ":
			parts = strings.Fields(s)
		default:
			if re, ok := args[0].(*Regexp); ok {
				parts = re.re.Split(s, -1)
			} else if sep := i.mustString(args[0]); sep == "" {
				parts = strings.Split(s, "")
			} else {
				parts = strings.Split(s, sep)
			}
			for len(parts) > 0 && parts[len(parts)-1] == "" {
				parts = parts[:len(parts)-1]
			}
		}
		return stringArray(parts)
	})
	c.AddMethod0("chars", func(_ *Interpreter, self Value) Value {
		return stringArray(strings.Split(self.(string), ""))
	})
	c.AddMethod0("bytes", func(_ *Interpreter, self Value) Value {
		s := self.(string)
		out := make([]Value, len(s))
		for j := 0; j < len(s); j++ {
			out[j] = int64(s[j])
		}
		return NewArray(out...)
	})
	c.AddMethod0("lines", func(_ *Interpreter, self Value) Value {
		return stringArray(strings.SplitAfter(self.(string), "\n"))
	})
	c.AddMethod("each_char", 0, 0, func(i *Interpreter, self Value, _ []Value, blk *Proc) Value {
		for _, r := range self.(string) {
			i.yield(blk, string(r))
		}
		return self
	})
	c.AddMethod0("ord", func(i *Interpreter, self Value) Value {
		s := self.(string)
		if s == "" {
			i.raise(i.c.ArgumentError, "empty string")
		}
		r, _ := utf8.DecodeRuneInString(s)
		return int64(r)
	})

	// Replacement
	c.AddMethod("sub", 1, 2, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		return i.replace(self.(string), args, blk, false)
	})
	c.AddMethod("gsub", 1, 2, func(i *Interpreter, self Value, args []Value, blk *Proc) Value {
		return i.replace(self.(string), args, blk, true)
	})
	c.AddMethod2("tr", func(i *Interpreter, self Value, from, to Value) Value {
		f, t := []rune(i.mustString(from)), []rune(i.mustString(to))
		return strings.Map(func(r rune) rune {
			for j, x := range f {
				if x == r {
					if j < len(t) {
						return t[j]
					}
					if len(t) == 0 {
						return -1
					}
					return t[len(t)-1]
				}
			}
			return r
		}, self.(string))
	})
	c.AddMethod1("delete", func(i *Interpreter, self Value, arg Value) Value {
		set := i.mustString(arg)
		return strings.Map(func(r rune) rune {
			if strings.ContainsRune(set, r) {
				return -1
			}
			return r
		}, self.(string))
	})

	pad := func(name string, fn func(s, p string, n int) string) {
		c.AddMethod(name, 1, 2, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
			p := " "
			if len(args) > 1 {
				p = i.mustString(args[1])
			}
			if p == "" {
				i.raise(i.c.ArgumentError, "zero width padding")
			}
			s := self.(string)
			n := int(i.mustInt(args[0])) - utf8.RuneCountInString(s)
			if n <= 0 {
				return s
			}
			return fn(s, p, n)
		})
	}
	pad("ljust", func(s, p string, n int) string { return s + padding(p, n) })
	pad("rjust", func(s, p string, n int) string { return padding(p, n) + s })
	pad("center", func(s, p string, n int) string {
		left := n / 2
		return padding(p, left) + s + padding(p, n-left)
	})

	i.registerSymbolPrimitives()
	i.registerRegexpPrimitives()
}

func (i *Interpreter) registerSymbolPrimitives() {
	c := i.c.Symbol

	c.AddMethod0("to_s", func(_ *Interpreter, self Value) Value { return string(self.(Symbol)) })
	c.Methods["id2name"] = c.Methods["to_s"]
	c.Methods["name"] = c.Methods["to_s"]
	c.AddMethod0("to_sym", func(_ *Interpreter, self Value) Value { return self })
	c.AddMethod0("to_proc", func(i *Interpreter, self Value) Value {
		return i.symbolProc(string(self.(Symbol)))
	})
	c.AddMethod0("inspect", func(_ *Interpreter, self Value) Value { return inspect(self) })
	c.AddMethod0("length", func(_ *Interpreter, self Value) Value {
		return int64(utf8.RuneCountInString(string(self.(Symbol))))
	})
	c.Methods["size"] = c.Methods["length"]
	c.AddMethod0("empty?", func(_ *Interpreter, self Value) Value { return self.(Symbol) == "" })
	c.AddMethod0("upcase", func(_ *Interpreter, self Value) Value {
		return Symbol(strings.ToUpper(string(self.(Symbol))))
	})
	c.AddMethod0("downcase", func(_ *Interpreter, self Value) Value {
		return Symbol(strings.ToLower(string(self.(Symbol))))
	})
	c.AddMethod1("<=>", func(_ *Interpreter, self Value, arg Value) Value {
		s, ok := arg.(Symbol)
		if !ok {
			return nil
		}
		return int64(strings.Compare(string(self.(Symbol)), string(s)))
	})
	c.AddMethod("[]", 1, 2, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		return i.stringSlice(string(self.(Symbol)), args)
	})
	c.AddMethod1("start_with?", func(i *Interpreter, self Value, arg Value) Value {
		return strings.HasPrefix(string(self.(Symbol)), i.mustString(arg))
	})
	c.AddMethod1("end_with?", func(i *Interpreter, self Value, arg Value) Value {
		return strings.HasSuffix(string(self.(Symbol)), i.mustString(arg))
	})
}

func (i *Interpreter) registerRegexpPrimitives() {
	c := i.c.Regexp

	c.AddMethod1("===", func(i *Interpreter, self Value, arg Value) Value {
		switch s := arg.(type) {
		case string:
			return i.match(self.(*Regexp), s) != nil
		case Symbol:
			return i.match(self.(*Regexp), string(s)) != nil
		}
		i.setLastMatch(nil)
		return false
	})
	c.AddMethod1("=~", func(i *Interpreter, self Value, arg Value) Value {
		if arg == nil {
			i.setLastMatch(nil)
			return nil
		}
		return i.match(self.(*Regexp), i.mustString(arg)).index()
	})
	c.AddMethod1("match?", func(i *Interpreter, self Value, arg Value) Value {
		return arg != nil && self.(*Regexp).MatchString(i.mustString(arg))
	})
	c.AddMethod1("match", func(i *Interpreter, self Value, arg Value) Value {
		if arg == nil {
			i.setLastMatch(nil)
			return nil
		}
		if m := i.match(self.(*Regexp), i.mustString(arg)); m != nil {
			return m
		}
		return nil
	})
	c.AddMethod0("names", func(_ *Interpreter, self Value) Value {
		var out []string
		for _, n := range self.(*Regexp).re.SubexpNames() {
			if n != "" {
				out = append(out, n)
			}
		}
		return stringArray(out)
	})
	c.AddMethod0("source", func(_ *Interpreter, self Value) Value { return self.(*Regexp).Source })
	c.AddMethod0("inspect", func(_ *Interpreter, self Value) Value { return inspect(self) })
	c.AddMethod0("to_s", func(_ *Interpreter, self Value) Value {
		re := self.(*Regexp)
		return "(?" + re.Flags + ":" + re.Source + ")"
	})
	c.AddMethod1("==", func(_ *Interpreter, self Value, arg Value) Value {
		other, ok := arg.(*Regexp)
		re := self.(*Regexp)
		return ok && re.Source == other.Source && re.Flags == other.Flags
	})

	i.metaOf(c).AddMethod1("escape", func(i *Interpreter, _ Value, arg Value) Value {
		return regexp.QuoteMeta(i.mustString(arg))
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (i *Interpreter) mustString(v Value) string {
	switch x := v.(type) {
	case string:
		return x
	case Symbol:
		return string(x)
	}
	i.raise(i.c.TypeError, "no implicit conversion of %s into String", i.describeOperand(v))
	return ""
}

func (i *Interpreter) toRegexp(v Value) *Regexp {
	if re, ok := v.(*Regexp); ok {
		return re
	}
	re, err := compileRegexp(regexp.QuoteMeta(i.mustString(v)), "")
	if err != nil {
		i.raise(i.c.RegexpError, "%s", err)
	}
	return re
}

// index returns the character offset of the match, or nil for no match.
func (m *MatchData) index() Value {
	if m == nil {
		return nil
	}
	return int64(utf8.RuneCountInString(m.PreMatch()))
}

// stringSlice implements String#[] for an index, start and length, range,
// substring or regexp.
func (i *Interpreter) stringSlice(s string, args []Value) Value {
	r := []rune(s)
	n := len(r)
	if len(args) == 2 {
		start, end, ok := sliceBounds(i.mustInt(args[0]), i.mustInt(args[1]), n)
		if !ok {
			return nil
		}
		return string(r[start:end])
	}
	switch x := args[0].(type) {
	case int64:
		if x < 0 {
			x += int64(n)
		}
		if x < 0 || x >= int64(n) {
			return nil
		}
		return string(r[x])
	case *Range:
		start, end, ok := i.rangeBounds(x, n)
		if !ok {
			return nil
		}
		return string(r[start:end])
	case string:
		if strings.Contains(s, x) {
			return x
		}
		return nil
	case *Regexp:
		m := x.re.FindString(s)
		if m == "" && !x.re.MatchString(s) {
			return nil
		}
		return m
	}
	i.raise(i.c.TypeError, "no implicit conversion of %s into Integer", i.classOf(args[0]).Name)
	return nil
}

// replace implements sub and gsub. The replacement string may refer to
// groups as \1; a block receives the matched text instead.
func (i *Interpreter) replace(s string, args []Value, blk *Proc, all bool) Value {
	re := i.toRegexp(args[0])
	var template string
	if len(args) > 1 {
		template = rubyTemplate(i.mustString(args[1]))
	} else if blk == nil {
		i.raise(i.c.ArgumentError, "wrong number of arguments (given 1, expected 2)")
	}
	limit := 1
	if all {
		limit = -1
	}
	var b strings.Builder
	last := 0
	for _, m := range re.re.FindAllStringSubmatchIndex(s, limit) {
		b.WriteString(s[last:m[0]])
		if blk != nil && len(args) == 1 {
			b.WriteString(i.stringify(i.yield(blk, s[m[0]:m[1]])))
		} else {
			b.Write(re.re.ExpandString(nil, template, s, m))
		}
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// rubyTemplate converts \0..\9 group references to RE2 expansion syntax.
func rubyTemplate(s string) string {
	var b strings.Builder
	for j := 0; j < len(s); j++ {
		switch {
		case s[j] == '$':
			b.WriteString("$$")
		case s[j] == '\\' && j+1 < len(s) && s[j+1] >= '0' && s[j+1] <= '9':
			b.WriteString("${" + string(s[j+1]) + "}")
			j++
		case s[j] == '\\' && j+1 < len(s) && s[j+1] == '\\':
			b.WriteByte('\\')
			j++
		default:
			b.WriteByte(s[j])
		}
	}
	return b.String()
}

// sprintf implements format for the %d %i %f %e %g %s %p %x %o %b %c and
// %% directives with Go-compatible flags and widths.
func (i *Interpreter) sprintf(spec string, args []Value) string {
	var b strings.Builder
	n := 0
	next := func() Value {
		if n >= len(args) {
			i.raise(i.c.ArgumentError, "too few arguments")
		}
		v := args[n]
		n++
		return v
	}
	for j := 0; j < len(spec); j++ {
		if spec[j] != '%' {
			b.WriteByte(spec[j])
			continue
		}
		k := j + 1
		for k < len(spec) && strings.IndexByte("-+ 0#.123456789", spec[k]) >= 0 {
			k++
		}
		if k >= len(spec) {
			i.raise(i.c.ArgumentError, "incomplete format specifier; use %%%% (double %%) instead")
		}
		flags, verb := spec[j+1:k], spec[k]
		j = k
		switch verb {
		case '%':
			b.WriteByte('%')
		case 'd', 'i', 'u':
			fmt.Fprintf(&b, "%"+flags+"d", i.toInteger(next()))
		case 'x', 'X', 'o', 'b', 'B':
			fmt.Fprintf(&b, "%"+flags+string(verb), i.toInteger(next()))
		case 'f', 'e', 'E', 'g', 'G':
			fmt.Fprintf(&b, "%"+flags+string(verb), i.toFloat(next()))
		case 's':
			fmt.Fprintf(&b, "%"+flags+"s", i.stringify(next()))
		case 'p':
			fmt.Fprintf(&b, "%"+flags+"s", i.inspectValue(next()))
		case 'c':
			v := next()
			if s, ok := v.(string); ok {
				r, _ := utf8.DecodeRuneInString(s)
				fmt.Fprintf(&b, "%"+flags+"c", r)
			} else {
				fmt.Fprintf(&b, "%"+flags+"c", rune(i.toInteger(v)))
			}
		default:
			i.raise(i.c.ArgumentError, "malformed format string - %%%c", verb)
		}
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[n:])
}

func padding(p string, n int) string {
	r := []rune(p)
	out := make([]rune, n)
	for j := range out {
		out[j] = r[j%len(r)]
	}
	return string(out)
}

func stringArray(parts []string) *Array {
	out := make([]Value, len(parts))
	for j, p := range parts {
		out[j] = p
	}
	return NewArray(out...)
}

var (
	leadingIntRE   = regexp.MustCompile(`^\s*[+-]?\d[\d_]*`)
	leadingFloatRE = regexp.MustCompile(`^\s*[+-]?\d[\d_]*(\.\d+)?([eE][+-]?\d+)?`)
)

// leadingInt is String#to_i: the integer prefix of s, or 0.
func leadingInt(s string) int64 {
	m := leadingIntRE.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(m), "_", ""), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// leadingFloat is String#to_f.
func leadingFloat(s string) float64 {
	m := leadingFloatRE.FindString(s)
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(m), "_", ""), 64)
	if err != nil {
		return 0
	}
	return f
}
