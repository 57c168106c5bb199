// Package builder synthesizes and executes compiler invocations for
// native Nebula modules, bridging the GCC/Clang and MSVC command
// grammars.
package builder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nebula-lang/orbit/internal/module"
	"github.com/nebula-lang/orbit/internal/platform"
	"github.com/nebula-lang/orbit/internal/shell"
)

// runtimeHeader marks a directory as a Nebula installation root.
const runtimeHeader = "nebula.h"

// runtimeLib is the runtime link library name (no prefix/suffix).
const runtimeLib = "nebula_runtime"

// shimSource lets built modules resolve runtime API symbols at load
// time via dlsym/GetProcAddress instead of link time, so no import
// library is needed on any platform. Building without it produces a
// module that cannot resolve the host API; rendering fails hard when
// it cannot be located.
const shimSource = "nebula_shim.cpp"

// entrySources are the conventional locations of a module's entry
// source file, relative to the source tree root. First hit wins.
var entrySources = []string{
	"native.cpp",
	filepath.Join("src", "native.cpp"),
	"module.cpp",
}

// vcvarsCandidates are conventional Visual Studio environment script
// locations, probed when cl is not on the search path.
var vcvarsCandidates = []string{
	`C:\Program Files\Microsoft Visual Studio\2022\Community\VC\Auxiliary\Build\vcvars64.bat`,
	`C:\Program Files\Microsoft Visual Studio\2022\Professional\VC\Auxiliary\Build\vcvars64.bat`,
	`C:\Program Files\Microsoft Visual Studio\2022\Enterprise\VC\Auxiliary\Build\vcvars64.bat`,
	`C:\Program Files (x86)\Microsoft Visual Studio\2019\Community\VC\Auxiliary\Build\vcvars64.bat`,
	`C:\Program Files (x86)\Microsoft Visual Studio\2019\BuildTools\VC\Auxiliary\Build\vcvars64.bat`,
}

// Builder renders and executes build commands for one target platform.
type Builder struct {
	os     platform.OS
	runner shell.Runner
	logger *log.Logger
	env    func(string) string
	vcvars []string
}

// New creates a builder for the given platform.
func New(target platform.OS, runner shell.Runner, logger *log.Logger) *Builder {
	return &Builder{
		os:     target,
		runner: runner,
		logger: logger,
		env:    os.Getenv,
		vcvars: vcvarsCandidates,
	}
}

// SelectCompiler picks the compiler command for the current platform.
// On Windows, MSYSTEM distinguishes a POSIX-emulation toolchain (g++)
// from the vendor toolchain (cl). Elsewhere clang++ is preferred when
// present, g++ otherwise.
func (b *Builder) SelectCompiler() string {
	if b.os == platform.Windows {
		msystem := b.env("MSYSTEM")
		if strings.Contains(msystem, "MINGW") || strings.Contains(msystem, "MSYS") {
			return "g++"
		}
		return "cl"
	}
	if b.runner.LookPath("clang++") {
		return "clang++"
	}
	return "g++"
}

// vendor reports whether compiler is the Windows vendor toolchain,
// which uses an incompatible command grammar.
func (b *Builder) vendor(compiler string) bool {
	return b.os == platform.Windows && compiler == "cl"
}

// LinkerFlags returns the shared-library linker flags for the active
// platform and toolchain.
func (b *Builder) LinkerFlags() []string {
	switch {
	case b.vendor(b.SelectCompiler()):
		return []string{"/LD", "/MD"}
	case b.os == platform.MacOS:
		return []string{"-shared", "-fPIC", "-dynamiclib"}
	default:
		return []string{"-shared", "-fPIC"}
	}
}

// IncludePaths returns the header search paths: the located runtime
// installation's include directory, then fixed relative fallbacks.
func (b *Builder) IncludePaths() []string {
	var paths []string
	if root := b.LocateRuntimeRoot(); root != "" {
		paths = append(paths, filepath.Join(root, "include"))
	}
	return append(paths, "../include", "../../include")
}

// LocateRuntimeRoot finds a Nebula installation: NEBULA_HOME wins,
// then platform-conventional locations and the current/parent
// directory, accepting the first containing include/nebula.h. Best
// effort; "" means no runtime was found and runtime linking is skipped.
func (b *Builder) LocateRuntimeRoot() string {
	if home := b.env("NEBULA_HOME"); home != "" {
		return home
	}

	var candidates []string
	if b.os == platform.Windows {
		candidates = append(candidates, `C:\Program Files\Nebula`, `C:\Nebula`)
		if b.env("MSYSTEM") != "" {
			candidates = append(candidates, "/mingw64/nebula", "/usr/local/nebula", "/opt/nebula")
		}
	} else {
		candidates = append(candidates, "/usr/local/nebula", "/opt/nebula")
		if home := b.env("HOME"); home != "" {
			candidates = append(candidates, filepath.Join(home, ".nebula"))
		}
	}
	candidates = append(candidates, ".", "..")

	for _, dir := range candidates {
		if fileExists(filepath.Join(dir, "include", runtimeHeader)) {
			return dir
		}
	}
	return ""
}

// locateEntry probes for the module's entry source file under srcDir.
func (b *Builder) locateEntry(srcDir string) string {
	for _, rel := range entrySources {
		path := filepath.Join(srcDir, rel)
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// locateShim probes for the runtime resolution shim source.
func (b *Builder) locateShim() string {
	var candidates []string
	if root := b.LocateRuntimeRoot(); root != "" {
		candidates = append(candidates, filepath.Join(root, "src", shimSource))
	}
	candidates = append(candidates,
		filepath.Join("..", "src", shimSource),
		filepath.Join("..", "..", "src", shimSource),
	)
	for _, path := range candidates {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// RenderCommand assembles the full compiler invocation for building
// the module source tree at srcDir into outPath. Returns an empty
// command with an error when the entry source or the runtime shim
// cannot be located; callers must treat that as a hard build failure.
func (b *Builder) RenderCommand(srcDir, outPath string) (string, error) {
	entry := b.locateEntry(srcDir)
	if entry == "" {
		return "", fmt.Errorf("no module entry source found under %s", srcDir)
	}
	shim := b.locateShim()
	if shim == "" {
		return "", errors.New(shimSource + " not found: cannot build without the runtime resolution shim")
	}

	compiler := b.SelectCompiler()
	root := b.LocateRuntimeRoot()

	var sb strings.Builder
	if b.vendor(compiler) {
		sb.WriteString(compiler + " /std:c++17 ")
		for _, path := range b.IncludePaths() {
			fmt.Fprintf(&sb, "/I\"%s\" ", path)
		}
		fmt.Fprintf(&sb, "\"%s\" \"%s\" ", entry, shim)
		sb.WriteString("/LD /MD ")
		fmt.Fprintf(&sb, "/Fe:\"%s\" ", outPath)
		if root != "" {
			fmt.Fprintf(&sb, "/link /LIBPATH:\"%s\" %s.lib ", filepath.Join(root, "build"), runtimeLib)
		}
	} else {
		sb.WriteString(compiler + " -std=c++17 -fPIC -shared ")
		for _, path := range b.IncludePaths() {
			fmt.Fprintf(&sb, "-I\"%s\" ", path)
		}
		fmt.Fprintf(&sb, "\"%s\" \"%s\" ", entry, shim)
		fmt.Fprintf(&sb, "-o \"%s\" ", outPath)
		if root != "" {
			libDir := filepath.Join(root, "build")
			fmt.Fprintf(&sb, "-L\"%s\" ", libDir)
			if b.os != platform.Windows {
				fmt.Fprintf(&sb, "-Wl,-rpath,\"%s\" ", libDir)
			}
			sb.WriteString("-l" + runtimeLib + " ")
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// Execute runs a rendered build command in dir. For the vendor
// toolchain with cl absent from the search path, it re-invokes the
// command through a Visual Studio environment script; when no script
// is found the build fails with an explicit diagnostic instead of a
// generic command-not-found exit.
func (b *Builder) Execute(dir, command string) error {
	if b.vendor(b.SelectCompiler()) && !b.runner.LookPath("cl") {
		script := ""
		for _, candidate := range b.vcvars {
			if fileExists(candidate) {
				script = candidate
				break
			}
		}
		if script == "" {
			return errors.New("vendor toolchain not found: cl is not on the search path and no Visual Studio environment script was located")
		}
		b.logger.Info("initializing vendor toolchain environment", "script", script)
		command = fmt.Sprintf("\"%s\" && %s", script, command)
	}

	b.logger.Info("executing build command", "command", command)
	if err := b.runner.Run(dir, command); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	return nil
}

// BuildModule compiles the module source tree at srcDir and installs
// the artifact and descriptor under outDir/<name>. This is the
// standalone `orbit build native` path.
func (b *Builder) BuildModule(name, srcDir, outDir, version string) error {
	base := filepath.Base(name)
	b.logger.Info("building native module", "module", base, "version", version, "platform", b.os)

	moduleDir := filepath.Join(outDir, base)
	if err := os.MkdirAll(moduleDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", moduleDir, err)
	}
	outPath := filepath.Join(moduleDir, base+b.os.LibraryExtension())

	command, err := b.RenderCommand(srcDir, outPath)
	if err != nil {
		return err
	}
	if err := b.Execute(srcDir, command); err != nil {
		return err
	}

	desc := module.Descriptor{
		Name:        base,
		Version:     version,
		Description: base + " native module for Nebula",
		Platform:    b.os.String(),
		Library:     base + b.os.LibraryExtension(),
	}
	if err := desc.Write(moduleDir); err != nil {
		b.logger.Warn("could not write module descriptor", "err", err)
	}

	b.logger.Info("built module", "artifact", outPath)
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
