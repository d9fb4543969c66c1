package vm

import (
	"github.com/chazu/rbvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Classes and modules
// ---------------------------------------------------------------------------

// Class is a class or module. Method lookup walks Ancestors.
type Class struct {
	Name     string
	Super    *Class
	IsModule bool

	Methods map[string]*Method
	Consts  map[string]Value
	CVars   map[string]Value
	Ivars   map[string]Value

	includes  []*Class
	meta      *Class
	singleton bool
	attached  Value
	exception bool
}

func newClass(name string, super *Class, module bool) *Class {
	return &Class{
		Name:     name,
		Super:    super,
		IsModule: module,
		Methods:  make(map[string]*Method),
		Consts:   make(map[string]Value),
		CVars:    make(map[string]Value),
		Ivars:    make(map[string]Value),

		exception: super != nil && super.exception,
	}
}

// Singleton reports whether c is the singleton class of one object.
func (c *Class) Singleton() bool { return c.singleton }

// Include appends m to c's mixins. Including a module twice is a no-op.
func (c *Class) Include(m *Class) {
	for _, inc := range c.includes {
		if inc == m {
			return
		}
	}
	c.includes = append(c.includes, m)
}

// Ancestors returns the method resolution order: the class, its mixins in
// reverse inclusion order, then the superclass chain.
func (c *Class) Ancestors() []*Class {
	var out []*Class
	seen := make(map[*Class]bool)
	var add func(k *Class)
	add = func(k *Class) {
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, k)
		for j := len(k.includes) - 1; j >= 0; j-- {
			add(k.includes[j])
		}
	}
	for k := c; k != nil; k = k.Super {
		add(k)
	}
	return out
}

// Lookup finds the method name along the ancestors.
func (c *Class) Lookup(name string) *Method {
	for _, k := range c.Ancestors() {
		if m, ok := k.Methods[name]; ok {
			return m
		}
	}
	return nil
}

// lookupAfter finds name in the ancestors that follow owner.
func (c *Class) lookupAfter(owner *Class, name string) *Method {
	found := false
	for _, k := range c.Ancestors() {
		if !found {
			found = k == owner
			continue
		}
		if m, ok := k.Methods[name]; ok {
			return m
		}
	}
	return nil
}

// IsSubclassOf reports whether other is among c's ancestors.
func (c *Class) IsSubclassOf(other *Class) bool {
	for _, k := range c.Ancestors() {
		if k == other {
			return true
		}
	}
	return false
}

// Define installs m under name with c as its owner.
func (c *Class) Define(name string, m *Method) {
	m.Name = name
	m.Owner = c
	c.Methods[name] = m
}

// lookupConst searches c and its ancestors for a constant.
func (c *Class) lookupConst(name string) (Value, bool) {
	for _, k := range c.Ancestors() {
		if v, ok := k.Consts[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// lookupCVar returns the ancestor holding a class variable.
func (c *Class) lookupCVar(name string) (*Class, bool) {
	for _, k := range c.Ancestors() {
		if _, ok := k.CVars[name]; ok {
			return k, true
		}
	}
	return nil, false
}

func (c *Class) isException() bool { return c.exception }

// ---------------------------------------------------------------------------
// Objects
// ---------------------------------------------------------------------------

// Object is an instance of a user-defined or exception class.
type Object struct {
	Class *Class
	Ivars map[string]Value

	singleton *Class
	backtrace []string
}

// NewObject allocates an instance of class.
func NewObject(class *Class) *Object {
	return &Object{Class: class, Ivars: make(map[string]Value)}
}

// ---------------------------------------------------------------------------
// Methods and procs
// ---------------------------------------------------------------------------

// Builtin is a method implemented in Go. Keyword arguments arrive as a
// trailing *Hash.
type Builtin func(i *Interpreter, self Value, args []Value, blk *Proc) Value

// Method is a method body: a compiled sequence or a builtin.
type Method struct {
	Name    string
	Owner   *Class
	Seq     *bytecode.InstructionSequence
	Builtin Builtin

	// Arity bounds the argument count of a builtin; Max < 0 is unbounded.
	Min, Max int

	// Private methods only accept calls with an implicit receiver.
	Private bool

	cref *cref
}

// Method registration helpers, one per fixed arity.
type (
	Method0Func func(i *Interpreter, self Value) Value
	Method1Func func(i *Interpreter, self, arg Value) Value
	Method2Func func(i *Interpreter, self, a, b Value) Value
)

// AddMethod installs a builtin taking between min and max arguments.
func (c *Class) AddMethod(name string, min, max int, fn Builtin) {
	c.Define(name, &Method{Builtin: fn, Min: min, Max: max})
}

func (c *Class) AddMethod0(name string, fn Method0Func) {
	c.AddMethod(name, 0, 0, func(i *Interpreter, self Value, _ []Value, _ *Proc) Value {
		return fn(i, self)
	})
}

func (c *Class) AddMethod1(name string, fn Method1Func) {
	c.AddMethod(name, 1, 1, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		return fn(i, self, args[0])
	})
}

func (c *Class) AddMethod2(name string, fn Method2Func) {
	c.AddMethod(name, 2, 2, func(i *Interpreter, self Value, args []Value, _ *Proc) Value {
		return fn(i, self, args[0], args[1])
	})
}

// Proc is a block or lambda closed over the frame that created it.
type Proc struct {
	Seq    *bytecode.InstructionSequence
	Self   Value
	Lambda bool

	env  *Frame
	cref *cref
	fn   func(i *Interpreter, args []Value, blk *Proc) Value

	// active is set while the call that received the block literal is
	// running; break is only valid then.
	active bool
}

// cref is the lexical class nesting used for constant lookup and as the
// target of def.
type cref struct {
	class *Class
	next  *cref
}
