package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[compile]
frozen_string_literal = true
peephole_optimization = false

[vm]
max_frames = 500
trace = true

[log]
verbosity = 2
file = "rbvm.log"

[cache]
path = ".rbvm/cache.db"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := Default()
	want.Compile.FrozenStringLiteral = true
	want.Compile.PeepholeOptimization = false
	want.VM.MaxFrames = 500
	want.VM.Trace = true
	want.Log = Log{Verbosity: 2, File: "rbvm.log"}
	want.Cache.Path = ".rbvm/cache.db"
	want.Dir = c.Dir
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	if got := c.CachePath(); got != filepath.Join(c.Dir, ".rbvm", "cache.db") {
		t.Errorf("cache path = %q", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := Default()
	want.Dir = c.Dir
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
	if c.CachePath() != "" {
		t.Errorf("cache enabled by default: %q", c.CachePath())
	}
}

func TestConfigOptions(t *testing.T) {
	c := Default()
	c.Compile.SpecializedInstruction = false
	c.VM.StackSize = 64

	copts := c.CompilerOptions()
	if copts.SpecializedInstruction || !copts.PeepholeOptimization || !copts.OperandsUnification {
		t.Errorf("compiler options = %+v", copts.Options)
	}
	vopts := c.VMOptions()
	if vopts.StackSize != 64 || vopts.MaxFrames != c.VM.MaxFrames {
		t.Errorf("vm options = %+v", vopts)
	}
}

func TestConfigRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[vm\nmax_frames = 1", "parse error"},
		{"unknown key", "[vm]\nmax_depth = 10", "vm.max_depth"},
		{"unknown section", "[runtime]\ngc = true", "runtime"},
		{"too few frames", "[vm]\nmax_frames = 1", "invalid config"},
		{"verbosity range", "[log]\nverbosity = 9", "invalid config"},
		{"wrong type", "[compile]\npeephole_optimization = \"yes\"", "parse error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.content)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, dir, "[vm]\nmax_frames = 200\n")

	c, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c.VM.MaxFrames != 200 {
		t.Errorf("max_frames = %d, want 200", c.VM.MaxFrames)
	}
	abs, _ := filepath.Abs(dir)
	if c.Dir != abs {
		t.Errorf("dir = %q, want %q", c.Dir, abs)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if c.Dir != "" || c.VM.MaxFrames != Default().VM.MaxFrames {
		t.Errorf("expected defaults, got %+v", c)
	}
}
