package vm

// ---------------------------------------------------------------------------
// Core class tree
// ---------------------------------------------------------------------------

type coreClasses struct {
	Object, Module, Class, Kernel, Comparable, Enumerable *Class

	NilClass, TrueClass, FalseClass *Class
	Numeric, Integer, Float         *Class
	String, Symbol                  *Class
	Array, Hash, Range, Regexp      *Class
	MatchData                       *Class
	Proc                            *Class

	Exception, StandardError, RuntimeError, ArgumentError  *Class
	NameError, NoMethodError, TypeError, ZeroDivisionError *Class
	IndexError, KeyError, FrozenError, RegexpError         *Class
	LocalJumpError, NoMatchingPatternError, RangeError     *Class
	NoMatchingPatternKeyError, SystemStackError            *Class

	VMCore *Class
}

// bootstrap builds the class tree, the main object and the VM core helper,
// then installs the builtin methods.
func (i *Interpreter) bootstrap() {
	c := &coreClasses{}
	i.c = c

	c.Object = newClass("Object", nil, false)
	c.Module = newClass("Module", c.Object, false)
	c.Class = newClass("Class", c.Module, false)
	c.Kernel = newClass("Kernel", nil, true)
	c.Comparable = newClass("Comparable", nil, true)
	c.Enumerable = newClass("Enumerable", nil, true)
	c.Object.Include(c.Kernel)

	def := func(name string, super *Class) *Class {
		k := newClass(name, super, false)
		c.Object.Consts[name] = k
		return k
	}
	for _, k := range []*Class{c.Object, c.Module, c.Class, c.Kernel, c.Comparable, c.Enumerable} {
		c.Object.Consts[k.Name] = k
	}

	c.NilClass = def("NilClass", c.Object)
	c.TrueClass = def("TrueClass", c.Object)
	c.FalseClass = def("FalseClass", c.Object)
	c.Numeric = def("Numeric", c.Object)
	c.Numeric.Include(c.Comparable)
	c.Integer = def("Integer", c.Numeric)
	c.Float = def("Float", c.Numeric)
	c.String = def("String", c.Object)
	c.String.Include(c.Comparable)
	c.Symbol = def("Symbol", c.Object)
	c.Array = def("Array", c.Object)
	c.Hash = def("Hash", c.Object)
	c.Range = def("Range", c.Object)
	for _, k := range []*Class{c.Array, c.Hash, c.Range} {
		k.Include(c.Enumerable)
	}
	c.Regexp = def("Regexp", c.Object)
	c.MatchData = def("MatchData", c.Object)
	c.Proc = def("Proc", c.Object)

	c.Exception = def("Exception", c.Object)
	c.Exception.exception = true
	c.StandardError = def("StandardError", c.Exception)
	c.RuntimeError = def("RuntimeError", c.StandardError)
	c.ArgumentError = def("ArgumentError", c.StandardError)
	c.NameError = def("NameError", c.StandardError)
	c.NoMethodError = def("NoMethodError", c.NameError)
	c.TypeError = def("TypeError", c.StandardError)
	c.ZeroDivisionError = def("ZeroDivisionError", c.StandardError)
	c.IndexError = def("IndexError", c.StandardError)
	c.KeyError = def("KeyError", c.IndexError)
	c.FrozenError = def("FrozenError", c.RuntimeError)
	c.RegexpError = def("RegexpError", c.StandardError)
	c.RangeError = def("RangeError", c.StandardError)
	c.LocalJumpError = def("LocalJumpError", c.StandardError)
	c.NoMatchingPatternError = def("NoMatchingPatternError", c.StandardError)
	c.NoMatchingPatternKeyError = def("NoMatchingPatternKeyError", c.NoMatchingPatternError)
	c.SystemStackError = def("SystemStackError", c.Exception)

	c.VMCore = newClass("VMCore", c.Object, false)

	i.main = NewObject(c.Object)
	i.core = NewObject(c.VMCore)
	i.topCref = &cref{class: c.Object}

	i.registerKernelPrimitives()
	i.registerModulePrimitives()
	i.registerExceptionPrimitives()
	i.registerProcPrimitives()
	i.registerNumericPrimitives()
	i.registerStringPrimitives()
	i.registerEnumerablePrimitives()
	i.registerArrayPrimitives()
	i.registerHashPrimitives()
	i.registerRangePrimitives()
	i.registerMatchDataPrimitives()
	i.registerCorePrimitives()
}

// ---------------------------------------------------------------------------
// VM core helper
// ---------------------------------------------------------------------------

// registerCorePrimitives installs the methods the compiler calls on the
// object pushed by putspecialobject VMCore.
func (i *Interpreter) registerCorePrimitives() {
	c := i.c.VMCore

	c.AddMethod("core#set_method_alias", 3, 3, func(i *Interpreter, _ Value, args []Value, _ *Proc) Value {
		cls, ok := args[0].(*Class)
		if !ok {
			i.raise(i.c.TypeError, "%s is not a class/module", inspect(args[0]))
		}
		newName, oldName := symbolName(args[1]), symbolName(args[2])
		m := cls.Lookup(oldName)
		if m == nil {
			i.raise(i.c.NameError, "undefined method '%s' for class '%s'", oldName, cls.Name)
		}
		alias := *m
		cls.Methods[newName] = &alias
		return nil
	})

	c.AddMethod("core#set_variable_alias", 2, 2, func(i *Interpreter, _ Value, args []Value, _ *Proc) Value {
		i.aliasGlobal(symbolName(args[0]), symbolName(args[1]))
		return nil
	})

	c.AddMethod("core#set_postexe", 0, 0, func(i *Interpreter, _ Value, _ []Value, blk *Proc) Value {
		if blk == nil {
			i.raise(i.c.ArgumentError, "END requires a block")
		}
		i.registerPostExe(blk)
		return nil
	})

	c.AddMethod("core#lambda", 0, 0, func(i *Interpreter, _ Value, _ []Value, blk *Proc) Value {
		if blk == nil {
			i.raise(i.c.ArgumentError, "tried to create a Proc object without a block")
		}
		blk.Lambda = true
		return blk
	})

	c.AddMethod1("core#no_matching_pattern", func(i *Interpreter, _ Value, v Value) Value {
		i.raise(i.c.NoMatchingPatternError, "%s", inspect(v))
		return nil
	})
}

func symbolName(v Value) string {
	switch x := v.(type) {
	case Symbol:
		return string(x)
	case string:
		return x
	}
	return toS(v)
}
