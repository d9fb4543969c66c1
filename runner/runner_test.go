package runner

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/joomcode/errorx"

	"github.com/chazu/rbvm/ast"
	"github.com/chazu/rbvm/compiler"
	"github.com/chazu/rbvm/config"
	"github.com/chazu/rbvm/vm"
)

func newRunner(t *testing.T, cfg *config.Config) (*Runner, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	r, err := New(context.Background(), cfg, &out)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, &out
}

func greet(name string) Source {
	return Source{
		File: "greet.rb",
		Text: []byte(`puts "hello, ` + name + `"; 6 * 7`),
		Program: ast.Program(nil,
			ast.FCall("puts", ast.Op(ast.Str("hello, "), "+", ast.Str(name))),
			ast.Op(ast.Int(6), "*", ast.Int(7)),
		),
	}
}

func TestRunnerRun(t *testing.T) {
	r, out := newRunner(t, nil)

	v, err := r.Run(context.Background(), greet("world"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if v != int64(42) {
		t.Errorf("result = %v, want 42", v)
	}
	if out.String() != "hello, world\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunnerCache(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")
	r, out := newRunner(t, cfg)
	ctx := context.Background()

	_, hit, err := r.Compile(ctx, greet("cache"))
	if err != nil || hit {
		t.Fatalf("first Compile = hit %v, %v", hit, err)
	}
	unit, hit, err := r.Compile(ctx, greet("cache"))
	if err != nil || !hit {
		t.Fatalf("second Compile = hit %v, %v", hit, err)
	}
	if unit.File != "greet.rb" {
		t.Errorf("cached unit file = %q", unit.File)
	}

	v, err := r.Exec(ctx, unit)
	if err != nil || v != int64(42) {
		t.Errorf("Exec = %v, %v", v, err)
	}
	if out.String() != "hello, cache\n" {
		t.Errorf("output = %q", out.String())
	}

	src := greet("cache")
	src.Text = nil
	if _, hit, _ := r.Compile(ctx, src); hit {
		t.Error("source without text hit the cache")
	}
}

func TestRunnerErrors(t *testing.T) {
	r, _ := newRunner(t, nil)
	ctx := context.Background()

	_, err := r.Run(ctx, Source{Program: ast.Program(nil, ast.Op(ast.Int(1), "/", ast.Int(0)))})
	var pe *vm.ProgramError
	if !errors.As(err, &pe) || pe.ClassName() != "ZeroDivisionError" {
		t.Errorf("error = %v, want ZeroDivisionError", err)
	}

	_, err = r.Run(ctx, Source{Program: ast.Program(nil, &ast.MissingNode{})})
	if !errorx.IsOfType(err, compiler.ErrMissingRule) {
		t.Errorf("error = %v, want missing lowering rule", err)
	}

	v, err := r.Run(ctx, greet("again"))
	if err != nil || v != int64(42) {
		t.Errorf("run after errors = %v, %v", v, err)
	}
}

func TestRunnerConcurrent(t *testing.T) {
	r, out := newRunner(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := r.Run(ctx, greet("n"))
			if err == nil && v != int64(42) {
				err = errors.New("wrong result")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	if got := bytes.Count(out.Bytes(), []byte("hello, n\n")); got != 8 {
		t.Errorf("printed %d greetings, want 8", got)
	}
}

func TestWorkerStopAndCancel(t *testing.T) {
	w := NewWorker(vm.New(vm.DefaultOptions()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	block := make(chan struct{})
	go w.Do(context.Background(), func(*vm.Interpreter) (vm.Value, error) {
		<-block
		return nil, nil
	})
	// The worker is busy or about to be; a cancelled caller still returns.
	if _, err := w.Do(ctx, func(*vm.Interpreter) (vm.Value, error) { return nil, nil }); err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Do = %v", err)
	}
	close(block)

	v, err := w.Do(context.Background(), func(*vm.Interpreter) (vm.Value, error) { panic("boom") })
	if v != nil || !errorx.IsOfType(err, ErrWorker) {
		t.Errorf("panicking Do = %v, %v", v, err)
	}

	w.Stop()
	w.Stop()
	if _, err := w.Do(context.Background(), func(*vm.Interpreter) (vm.Value, error) { return int64(1), nil }); !errorx.IsOfType(err, ErrStopped) {
		t.Errorf("Do after Stop = %v, want stopped", err)
	}
}
