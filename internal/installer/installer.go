// Package installer drives the resolution-acquisition-build pipeline:
// it resolves a module specifier against the registry, acquires the
// module (binary download or clone-and-build), writes the installed
// layout, and reconciles the project dependency manifest.
package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nebula-lang/orbit/internal/builder"
	"github.com/nebula-lang/orbit/internal/config"
	"github.com/nebula-lang/orbit/internal/fetch"
	"github.com/nebula-lang/orbit/internal/manifest"
	"github.com/nebula-lang/orbit/internal/module"
	"github.com/nebula-lang/orbit/internal/platform"
	"github.com/nebula-lang/orbit/internal/registry"
	"github.com/nebula-lang/orbit/internal/shell"
)

// Scope selects the install root.
type Scope int

const (
	// Local installs into the project's module directory.
	Local Scope = iota
	// Global installs into the user-wide module directory.
	Global
)

// scratchAttempts bounds the probe for a free scratch directory name.
const scratchAttempts = 10

// Installer orchestrates module installation. All operations are
// synchronous and blocking; nothing is retried.
type Installer struct {
	cfg      config.Config
	registry *registry.Client
	fetcher  fetch.Fetcher
	runner   shell.Runner
	builder  *builder.Builder
	logger   *log.Logger
	os       platform.OS
}

// New creates an installer.
func New(cfg config.Config, reg *registry.Client, fetcher fetch.Fetcher, runner shell.Runner, bld *builder.Builder, logger *log.Logger) *Installer {
	return &Installer{
		cfg:      cfg,
		registry: reg,
		fetcher:  fetcher,
		runner:   runner,
		builder:  bld,
		logger:   logger,
		os:       platform.Detect(),
	}
}

// Root returns the modules root for scope.
func (ins *Installer) Root(scope Scope) string {
	if scope == Global {
		return ins.cfg.GlobalRoot
	}
	return ins.cfg.LocalRoot
}

// splitSpec splits "name" or "name@version" into its parts.
func splitSpec(spec string) (name, version string) {
	name, version, _ = strings.Cut(spec, "@")
	return name, version
}

// Install resolves spec and installs the selected version. Every step
// is a hard gate; failure aborts without attempting later steps, and
// the installed-module descriptor is written only after the artifact
// exists.
func (ins *Installer) Install(spec string, scope Scope) error {
	name, requested := splitSpec(spec)
	ins.logger.Info("installing module", "module", name, "version", requested)

	if err := ins.registry.FetchIndex(); err != nil {
		return err
	}

	meta, err := ins.registry.FetchMetadata(name)
	if err != nil {
		return err
	}

	version := requested
	if version == "" {
		version = meta.Latest
	}
	ver, ok := meta.Versions[version]
	if !ok {
		return fmt.Errorf("version not found: %s@%s", name, version)
	}

	if !ver.Acquirable() {
		return fmt.Errorf("no binary available for %s and no source repository for %s@%s", ins.os, name, version)
	}

	moduleDir := filepath.Join(ins.Root(scope), name)
	if ver.Git.URL != "" {
		err = ins.buildFromSource(name, ver, moduleDir)
	} else {
		err = ins.downloadBinary(name, ver, moduleDir)
	}
	if err != nil {
		return err
	}

	desc := module.Descriptor{
		Name:        name,
		Version:     version,
		Description: ver.Description,
		Platform:    ins.os.String(),
		Library:     name + ins.os.LibraryExtension(),
	}
	if err := desc.Write(moduleDir); err != nil {
		return err
	}

	ins.logger.Info("installed module", "module", name, "version", version, "dir", moduleDir)

	if scope == Local {
		if err := ins.recordDependency(name, version); err != nil {
			return err
		}
	}
	return nil
}

// downloadBinary fetches the platform binary and writes it verbatim as
// the module artifact. An empty URL for the running platform is a hard
// failure before anything touches the filesystem.
func (ins *Installer) downloadBinary(name string, ver module.Version, moduleDir string) error {
	url := ver.Entries[ins.os.Key()]
	if url == "" {
		return fmt.Errorf("no binary available for %s", ins.os)
	}

	ins.logger.Info("downloading module binary", "url", url)
	data, err := ins.fetcher.Fetch(url)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", name, err)
	}

	if err := os.MkdirAll(moduleDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", moduleDir, err)
	}
	artifact := filepath.Join(moduleDir, name+ins.os.LibraryExtension())
	if err := os.WriteFile(artifact, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", artifact, err)
	}
	if ins.os != platform.Windows {
		if err := os.Chmod(artifact, 0755); err != nil {
			return fmt.Errorf("marking %s executable: %w", artifact, err)
		}
	}
	return nil
}

// buildFromSource clones the module repository into a scratch
// directory, builds it against the Nebula runtime, and removes the
// scratch directory whether or not the build succeeded.
func (ins *Installer) buildFromSource(name string, ver module.Version, moduleDir string) error {
	if err := os.MkdirAll(moduleDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", moduleDir, err)
	}

	scratch, err := ins.makeScratchDir(moduleDir)
	if err != nil {
		return err
	}
	// Scratch cleanup must never be skipped; partial clones would
	// accumulate across failed installs otherwise.
	defer os.RemoveAll(scratch)

	ins.logger.Info("cloning module source", "url", ver.Git.URL)
	if err := ins.runner.Run(scratch, fmt.Sprintf("git clone %q ./repo", ver.Git.URL)); err != nil {
		return fmt.Errorf("cloning %s: %w", ver.Git.URL, err)
	}

	repoDir := filepath.Join(scratch, "repo")
	if ver.Git.Ref != "" {
		if err := ins.runner.Run(repoDir, fmt.Sprintf("git checkout %q", ver.Git.Ref)); err != nil {
			return fmt.Errorf("checking out %s: %w", ver.Git.Ref, err)
		}
	}

	outPath := filepath.Join(moduleDir, name+ins.os.LibraryExtension())
	command, err := ins.builder.RenderCommand(repoDir, outPath)
	if err != nil {
		return err
	}
	if err := ins.builder.Execute(repoDir, command); err != nil {
		return fmt.Errorf("building %s from source: %w", name, err)
	}
	return nil
}

// makeScratchDir creates a fresh, uniquely-named scratch directory
// under moduleDir. Suffix probing avoids colliding with leftovers of
// an interrupted prior attempt.
func (ins *Installer) makeScratchDir(moduleDir string) (string, error) {
	for i := 0; i < scratchAttempts; i++ {
		dir := filepath.Join(moduleDir, fmt.Sprintf(".tmp%d", i))
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("creating scratch directory %s: %w", dir, err)
		}
		return dir, nil
	}
	return "", fmt.Errorf("no free scratch directory under %s after %d attempts", moduleDir, scratchAttempts)
}

// recordDependency reconciles the project manifest in the working
// directory. A project without a manifest is left alone.
func (ins *Installer) recordDependency(name, version string) error {
	content, err := os.ReadFile(manifest.File)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", manifest.File, err)
	}

	ins.logger.Info("updating project manifest", "file", manifest.File, "module", name, "version", version)
	updated := manifest.SetDependency(content, name, version)
	if err := os.WriteFile(manifest.File, updated, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", manifest.File, err)
	}
	return nil
}

// Uninstall removes the module's install directory wholesale.
func (ins *Installer) Uninstall(name string, scope Scope) error {
	moduleDir := filepath.Join(ins.Root(scope), name)
	if _, err := os.Stat(moduleDir); err != nil {
		return fmt.Errorf("module not installed: %s", name)
	}
	if err := os.RemoveAll(moduleDir); err != nil {
		return fmt.Errorf("removing %s: %w", moduleDir, err)
	}
	ins.logger.Info("uninstalled module", "module", name)
	return nil
}

// Update reinstalls name at the registry's current latest version.
// The uninstall of a module that was never actually present must not
// block the reinstall, so its failure is only logged. A crash between
// the two steps leaves the module absent, not corrupted.
func (ins *Installer) Update(name string, scope Scope) error {
	ins.logger.Info("updating module", "module", name)
	if ins.IsInstalled(name, scope) {
		if err := ins.Uninstall(name, scope); err != nil {
			ins.logger.Warn("uninstall before update failed", "module", name, "err", err)
		}
	}
	return ins.Install(name, scope)
}

// IsInstalled reports whether the module's install directory exists.
// It does not validate that the artifact inside it is present, so a
// directory left behind by an interrupted install is reported as
// installed.
func (ins *Installer) IsInstalled(name string, scope Scope) bool {
	_, err := os.Stat(filepath.Join(ins.Root(scope), name))
	return err == nil
}

// ListInstalled returns the installed module names in scope. A missing
// modules root means nothing is installed.
func (ins *Installer) ListInstalled(scope Scope) ([]string, error) {
	entries, err := os.ReadDir(ins.Root(scope))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing modules: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
