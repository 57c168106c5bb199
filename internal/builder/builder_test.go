package builder

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/nebula-lang/orbit/internal/platform"
)

// chdir changes the working directory for the duration of the test.
// It stands in for t.Chdir, which requires Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatal(err)
		}
	})
}

// fakeRunner records commands and answers LookPath from a map.
type fakeRunner struct {
	onPath   map[string]bool
	commands []string
	runErr   error
}

func (r *fakeRunner) Run(dir, command string) error {
	r.commands = append(r.commands, command)
	return r.runErr
}

func (r *fakeRunner) LookPath(file string) bool {
	return r.onPath[file]
}

func envFrom(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func newTestBuilder(target platform.OS, runner *fakeRunner, vars map[string]string) *Builder {
	b := New(target, runner, log.New(io.Discard))
	b.env = envFrom(vars)
	return b
}

// newRuntimeRoot lays out a fake Nebula installation with the header
// and the shim source in place.
func newRuntimeRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"include", "src", "build"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "include", "nebula.h"), []byte("// header\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "nebula_shim.cpp"), []byte("// shim\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return root
}

func newSourceTree(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "native.cpp"), []byte("// entry\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return src
}

func TestSelectCompiler(t *testing.T) {
	tests := []struct {
		name   string
		target platform.OS
		vars   map[string]string
		onPath map[string]bool
		want   string
	}{
		{"windows mingw", platform.Windows, map[string]string{"MSYSTEM": "MINGW64"}, nil, "g++"},
		{"windows msys", platform.Windows, map[string]string{"MSYSTEM": "MSYS"}, nil, "g++"},
		{"windows vendor", platform.Windows, nil, nil, "cl"},
		{"linux with clang", platform.Linux, nil, map[string]bool{"clang++": true}, "clang++"},
		{"linux without clang", platform.Linux, nil, nil, "g++"},
		{"macos with clang", platform.MacOS, nil, map[string]bool{"clang++": true}, "clang++"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBuilder(tt.target, &fakeRunner{onPath: tt.onPath}, tt.vars)
			if got := b.SelectCompiler(); got != tt.want {
				t.Errorf("SelectCompiler() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLinkerFlags(t *testing.T) {
	tests := []struct {
		name   string
		target platform.OS
		vars   map[string]string
		want   string
	}{
		{"linux", platform.Linux, nil, "-shared -fPIC"},
		{"macos", platform.MacOS, nil, "-shared -fPIC -dynamiclib"},
		{"windows vendor", platform.Windows, nil, "/LD /MD"},
		{"windows mingw", platform.Windows, map[string]string{"MSYSTEM": "MINGW64"}, "-shared -fPIC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBuilder(tt.target, &fakeRunner{}, tt.vars)
			if got := strings.Join(b.LinkerFlags(), " "); got != tt.want {
				t.Errorf("LinkerFlags() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLocateRuntimeRoot(t *testing.T) {
	root := newRuntimeRoot(t)

	b := newTestBuilder(platform.Linux, &fakeRunner{}, map[string]string{"NEBULA_HOME": root})
	if got := b.LocateRuntimeRoot(); got != root {
		t.Errorf("LocateRuntimeRoot() = %q, want %q (env override)", got, root)
	}

	// Probing the current directory as a candidate.
	chdir(t, root)
	b = newTestBuilder(platform.Linux, &fakeRunner{}, nil)
	if got := b.LocateRuntimeRoot(); got != "." {
		t.Errorf("LocateRuntimeRoot() = %q, want %q", got, ".")
	}
}

func TestRenderCommandGCC(t *testing.T) {
	root := newRuntimeRoot(t)
	src := newSourceTree(t)
	b := newTestBuilder(platform.Linux, &fakeRunner{}, map[string]string{"NEBULA_HOME": root})

	cmd, err := b.RenderCommand(src, "/out/base64.so")
	if err != nil {
		t.Fatalf("RenderCommand() error = %v", err)
	}

	for _, want := range []string{
		"g++ -std=c++17 -fPIC -shared",
		`-I"` + filepath.Join(root, "include") + `"`,
		`"` + filepath.Join(src, "native.cpp") + `"`,
		`"` + filepath.Join(root, "src", "nebula_shim.cpp") + `"`,
		`-o "/out/base64.so"`,
		`-L"` + filepath.Join(root, "build") + `"`,
		"-Wl,-rpath,",
		"-lnebula_runtime",
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("command missing %q:\n%s", want, cmd)
		}
	}
}

func TestRenderCommandMSVC(t *testing.T) {
	root := newRuntimeRoot(t)
	src := newSourceTree(t)
	b := newTestBuilder(platform.Windows, &fakeRunner{}, map[string]string{"NEBULA_HOME": root})

	cmd, err := b.RenderCommand(src, `C:\out\base64.dll`)
	if err != nil {
		t.Fatalf("RenderCommand() error = %v", err)
	}

	for _, want := range []string{
		"cl /std:c++17",
		"/I\"",
		"/LD /MD",
		`/Fe:"C:\out\base64.dll"`,
		"/link /LIBPATH:\"",
		"nebula_runtime.lib",
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("command missing %q:\n%s", want, cmd)
		}
	}
	if strings.Contains(cmd, "-o ") || strings.Contains(cmd, "-rpath") {
		t.Errorf("vendor command carries GCC grammar flags:\n%s", cmd)
	}
}

func TestRenderCommandMingwSkipsRpath(t *testing.T) {
	root := newRuntimeRoot(t)
	src := newSourceTree(t)
	b := newTestBuilder(platform.Windows, &fakeRunner{}, map[string]string{
		"NEBULA_HOME": root,
		"MSYSTEM":     "MINGW64",
	})

	cmd, err := b.RenderCommand(src, "base64.dll")
	if err != nil {
		t.Fatalf("RenderCommand() error = %v", err)
	}
	if !strings.HasPrefix(cmd, "g++ ") {
		t.Errorf("command should use g++:\n%s", cmd)
	}
	if strings.Contains(cmd, "-rpath") {
		t.Errorf("rpath must be omitted on Windows:\n%s", cmd)
	}
}

func TestRenderCommandEntrySubdir(t *testing.T) {
	root := newRuntimeRoot(t)
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "src"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "src", "native.cpp"), []byte("// entry\n"), 0644); err != nil {
		t.Fatal(err)
	}
	b := newTestBuilder(platform.Linux, &fakeRunner{}, map[string]string{"NEBULA_HOME": root})

	cmd, err := b.RenderCommand(src, "out.so")
	if err != nil {
		t.Fatalf("RenderCommand() error = %v", err)
	}
	if !strings.Contains(cmd, filepath.Join(src, "src", "native.cpp")) {
		t.Errorf("command should pick src/native.cpp:\n%s", cmd)
	}
}

func TestRenderCommandFailures(t *testing.T) {
	root := newRuntimeRoot(t)

	t.Run("missing entry source", func(t *testing.T) {
		b := newTestBuilder(platform.Linux, &fakeRunner{}, map[string]string{"NEBULA_HOME": root})
		cmd, err := b.RenderCommand(t.TempDir(), "out.so")
		if err == nil || cmd != "" {
			t.Errorf("RenderCommand() = (%q, %v), want empty command and error", cmd, err)
		}
	})

	t.Run("missing shim", func(t *testing.T) {
		bare := t.TempDir() // a runtime root without src/nebula_shim.cpp
		if err := os.MkdirAll(filepath.Join(bare, "include"), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(bare, "include", "nebula.h"), []byte("// h\n"), 0644); err != nil {
			t.Fatal(err)
		}
		b := newTestBuilder(platform.Linux, &fakeRunner{}, map[string]string{"NEBULA_HOME": bare})
		cmd, err := b.RenderCommand(newSourceTree(t), "out.so")
		if err == nil || cmd != "" {
			t.Fatalf("RenderCommand() = (%q, %v), want empty command and error", cmd, err)
		}
		if !strings.Contains(err.Error(), "nebula_shim.cpp") {
			t.Errorf("error should name the shim: %v", err)
		}
	})
}

func TestExecute(t *testing.T) {
	runner := &fakeRunner{}
	b := newTestBuilder(platform.Linux, runner, nil)

	if err := b.Execute("/src", "g++ -o out.so"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(runner.commands) != 1 || runner.commands[0] != "g++ -o out.so" {
		t.Errorf("runner got %v", runner.commands)
	}

	runner.runErr = errors.New("exit status 1")
	if err := b.Execute("/src", "g++ -o out.so"); err == nil {
		t.Error("Execute() should propagate runner failure")
	}
}

func TestExecuteVendorToolchainRecovery(t *testing.T) {
	script := filepath.Join(t.TempDir(), "vcvars64.bat")
	if err := os.WriteFile(script, []byte("@echo off\n"), 0644); err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{} // cl not on PATH
	b := newTestBuilder(platform.Windows, runner, nil)
	b.vcvars = []string{script}

	if err := b.Execute("/src", "cl /Fe:out.dll"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := `"` + script + `" && cl /Fe:out.dll`
	if len(runner.commands) != 1 || runner.commands[0] != want {
		t.Errorf("runner got %v, want [%s]", runner.commands, want)
	}
}

func TestExecuteVendorToolchainNotFound(t *testing.T) {
	runner := &fakeRunner{}
	b := newTestBuilder(platform.Windows, runner, nil)
	b.vcvars = []string{filepath.Join(t.TempDir(), "missing.bat")}

	err := b.Execute("/src", "cl /Fe:out.dll")
	if err == nil {
		t.Fatal("Execute() should fail when no environment script exists")
	}
	if !strings.Contains(err.Error(), "toolchain not found") {
		t.Errorf("error = %v, want toolchain-not-found diagnostic", err)
	}
	if len(runner.commands) != 0 {
		t.Errorf("no command should run, got %v", runner.commands)
	}
}

func TestExecuteVendorToolchainOnPath(t *testing.T) {
	runner := &fakeRunner{onPath: map[string]bool{"cl": true}}
	b := newTestBuilder(platform.Windows, runner, nil)
	b.vcvars = nil

	if err := b.Execute("/src", "cl /Fe:out.dll"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(runner.commands) != 1 || runner.commands[0] != "cl /Fe:out.dll" {
		t.Errorf("command should run unwrapped, got %v", runner.commands)
	}
}

func TestBuildModule(t *testing.T) {
	root := newRuntimeRoot(t)
	src := newSourceTree(t)
	out := t.TempDir()
	runner := &fakeRunner{}
	b := newTestBuilder(platform.Linux, runner, map[string]string{"NEBULA_HOME": root})

	if err := b.BuildModule("base64", src, out, "1.0.0"); err != nil {
		t.Fatalf("BuildModule() error = %v", err)
	}
	if len(runner.commands) != 1 {
		t.Fatalf("runner got %v", runner.commands)
	}
	if !strings.Contains(runner.commands[0], filepath.Join(out, "base64", "base64.so")) {
		t.Errorf("command should target the module output path:\n%s", runner.commands[0])
	}
	if _, err := os.Stat(filepath.Join(out, "base64", "metadata.json")); err != nil {
		t.Errorf("descriptor not written: %v", err)
	}
}
