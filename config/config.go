// Package config handles rbvm.toml options: code generation switches,
// interpreter limits, logging and the compile cache.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/rbvm/compiler"
	"github.com/chazu/rbvm/pkg/bytecode"
	"github.com/chazu/rbvm/vm"
)

// FileName is the options file Load and FindAndLoad look for.
const FileName = "rbvm.toml"

//go:embed schema.cue
var schemaSource string

// Config represents an rbvm.toml file.
type Config struct {
	Compile Compile `toml:"compile" json:"compile"`
	VM      VM      `toml:"vm" json:"vm"`
	Log     Log     `toml:"log" json:"log"`
	Cache   Cache   `toml:"cache" json:"cache"`

	// Dir is the directory containing the rbvm.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Compile holds the code generation switches.
type Compile struct {
	FrozenStringLiteral    bool `toml:"frozen_string_literal" json:"frozen_string_literal"`
	OperandsUnification    bool `toml:"operands_unification" json:"operands_unification"`
	PeepholeOptimization   bool `toml:"peephole_optimization" json:"peephole_optimization"`
	SpecializedInstruction bool `toml:"specialized_instruction" json:"specialized_instruction"`
}

// VM holds the interpreter limits.
type VM struct {
	MaxFrames int  `toml:"max_frames" json:"max_frames"`
	StackSize int  `toml:"stack_size" json:"stack_size"`
	Trace     bool `toml:"trace" json:"trace"`
}

// Log configures the commonlog backend.
type Log struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// Cache locates the compiled-sequence cache. An empty path disables it.
type Cache struct {
	Path string `toml:"path" json:"path"`
}

// Default returns the options used when no rbvm.toml is present.
func Default() *Config {
	code := bytecode.DefaultOptions()
	limits := vm.DefaultOptions()
	return &Config{
		Compile: Compile{
			FrozenStringLiteral:    code.FrozenStringLiteral,
			OperandsUnification:    code.OperandsUnification,
			PeepholeOptimization:   code.PeepholeOptimization,
			SpecializedInstruction: code.SpecializedInstruction,
		},
		VM: VM{
			MaxFrames: limits.MaxFrames,
			StackSize: limits.StackSize,
		},
	}
}

// Load parses the rbvm.toml file in dir. Keys the file leaves out keep
// their defaults; unknown keys and out-of-range values are errors.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// Parse decodes rbvm.toml content over the defaults and validates it.
func Parse(content string) (*Config, error) {
	c := Default()
	md, err := toml.Decode(content, c)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find an rbvm.toml file, then loads
// and returns it. Returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks c against the embedded CUE schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// CompilerOptions returns the code generation options.
func (c *Config) CompilerOptions() compiler.Options {
	opts := compiler.DefaultOptions()
	opts.FrozenStringLiteral = c.Compile.FrozenStringLiteral
	opts.OperandsUnification = c.Compile.OperandsUnification
	opts.PeepholeOptimization = c.Compile.PeepholeOptimization
	opts.SpecializedInstruction = c.Compile.SpecializedInstruction
	return opts
}

// VMOptions returns the interpreter options. Output goes to stdout.
func (c *Config) VMOptions() vm.Options {
	opts := vm.DefaultOptions()
	opts.MaxFrames = c.VM.MaxFrames
	opts.StackSize = c.VM.StackSize
	opts.Trace = c.VM.Trace
	return opts
}

// CachePath returns the cache database path resolved against Dir, or ""
// when caching is off.
func (c *Config) CachePath() string {
	if c.Cache.Path == "" || filepath.IsAbs(c.Cache.Path) || c.Dir == "" {
		return c.Cache.Path
	}
	return filepath.Join(c.Dir, c.Cache.Path)
}

// ConfigureLogging applies the [log] section to the commonlog backend.
func (c *Config) ConfigureLogging() {
	var path *string
	if c.Log.File != "" {
		path = &c.Log.File
	}
	commonlog.Configure(c.Log.Verbosity, path)
}
