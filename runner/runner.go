// Package runner wires the pipeline together: options from rbvm.toml, the
// compiler, the compile cache and an interpreter owned by one goroutine.
package runner

import (
	"context"
	"io"

	"github.com/joomcode/errorx"
	"github.com/tliron/commonlog"

	"github.com/chazu/rbvm/ast"
	"github.com/chazu/rbvm/compiler"
	"github.com/chazu/rbvm/config"
	"github.com/chazu/rbvm/pkg/bytecode"
	"github.com/chazu/rbvm/store"
	"github.com/chazu/rbvm/vm"
)

var (
	Errors = errorx.NewNamespace("runner")

	ErrWorker  = Errors.NewType("worker")
	ErrStopped = Errors.NewType("stopped")
)

// Source is one program to compile: the parsed tree plus the text it came
// from. Text only feeds the cache key; with no text the cache is bypassed.
type Source struct {
	File    string
	Text    []byte
	Program *ast.ProgramNode
}

// Runner compiles and runs programs under one configuration.
type Runner struct {
	cfg    *config.Config
	copts  compiler.Options
	comp   *compiler.Compiler
	cache  *store.Cache
	worker *Worker
	log    commonlog.Logger
}

// New builds a runner from cfg, opening the cache when cfg names one.
// A nil out keeps the interpreter's default output.
func New(ctx context.Context, cfg *config.Config, out io.Writer) (*Runner, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	r := &Runner{
		cfg:   cfg,
		copts: cfg.CompilerOptions(),
		log:   commonlog.GetLogger("rbvm.runner"),
	}
	r.comp = compiler.New(r.copts)

	if path := cfg.CachePath(); path != "" {
		cache, err := store.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		r.cache = cache
	}

	vopts := cfg.VMOptions()
	if out != nil {
		vopts.Stdout = out
	}
	r.worker = NewWorker(vm.New(vopts))
	return r, nil
}

// Close stops the interpreter goroutine and closes the cache.
func (r *Runner) Close() error {
	r.worker.Stop()
	if r.cache != nil {
		return r.cache.Close()
	}
	return nil
}

// Compile returns the unit for src, reading and filling the cache when one
// is open. The boolean reports a cache hit. Cache failures are logged and
// fall back to compiling.
func (r *Runner) Compile(ctx context.Context, src Source) (*bytecode.Unit, bool, error) {
	opts := r.copts.Options
	file := src.File
	if file == "" {
		file = r.copts.File
	}

	var key string
	if r.cache != nil && src.Text != nil {
		key = store.Key(file, src.Text, opts)
		unit, ok, err := r.cache.Get(ctx, key)
		switch {
		case err != nil:
			r.log.Warningf("cache read %s: %s", file, err)
		case ok:
			r.log.Debugf("cache hit for %s", file)
			return unit, true, nil
		}
	}

	comp := r.comp
	if file != r.copts.File {
		copts := r.copts
		copts.File = file
		comp = compiler.NewWithCalls(copts, r.comp.Calls())
	}
	unit, err := comp.Compile(src.Program)
	if err != nil {
		return nil, false, errorx.Decorate(err, "compile %s", file)
	}

	if key != "" {
		if err := r.cache.Put(ctx, key, unit); err != nil {
			r.log.Warningf("cache write %s: %s", file, err)
		}
	}
	return unit, false, nil
}

// Run compiles src and executes it on the interpreter goroutine. Program
// exceptions come back as *vm.ProgramError.
func (r *Runner) Run(ctx context.Context, src Source) (vm.Value, error) {
	unit, _, err := r.Compile(ctx, src)
	if err != nil {
		return nil, err
	}
	return r.Exec(ctx, unit)
}

// Exec executes an already compiled unit on the interpreter goroutine.
func (r *Runner) Exec(ctx context.Context, unit *bytecode.Unit) (vm.Value, error) {
	return r.worker.Do(ctx, func(interp *vm.Interpreter) (vm.Value, error) {
		return interp.RunUnit(unit)
	})
}
