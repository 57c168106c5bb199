package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nebula-lang/orbit/internal/builder"
	"github.com/nebula-lang/orbit/internal/config"
	"github.com/nebula-lang/orbit/internal/fetch"
	"github.com/nebula-lang/orbit/internal/installer"
	"github.com/nebula-lang/orbit/internal/manifest"
	"github.com/nebula-lang/orbit/internal/platform"
	"github.com/nebula-lang/orbit/internal/registry"
	"github.com/nebula-lang/orbit/internal/shell"
)

const version = "0.1.0"

var (
	registryFlag string
	globalFlag   bool
	verboseFlag  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "orbit",
		Short:         "Package manager for Nebula native modules",
		Long:          "Orbit resolves modules against the Nebula module registry and installs precompiled binaries or builds them from source.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&registryFlag, "registry", "", "Registry base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Verbose output")

	installCmd := &cobra.Command{
		Use:   "install <module>[@version]",
		Short: "Install a module from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newInstaller().Install(args[0], scope())
		},
	}
	installCmd.Flags().BoolVarP(&globalFlag, "global", "g", false, "Install into the user-wide module directory")

	uninstallCmd := &cobra.Command{
		Use:   "uninstall <module>",
		Short: "Remove an installed module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newInstaller().Uninstall(args[0], scope())
		},
	}
	uninstallCmd.Flags().BoolVarP(&globalFlag, "global", "g", false, "Uninstall from the user-wide module directory")

	updateCmd := &cobra.Command{
		Use:   "update <module>",
		Short: "Update a module to the latest version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newInstaller().Update(args[0], scope())
		},
	}
	updateCmd.Flags().BoolVarP(&globalFlag, "global", "g", false, "Update in the user-wide module directory")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List installed modules",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	listCmd.Flags().BoolVarP(&globalFlag, "global", "g", false, "List the user-wide module directory")

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search for modules in the registry",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}

	infoCmd := &cobra.Command{
		Use:   "info <module>",
		Short: "Show module information",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}

	buildCmd := &cobra.Command{
		Use:   "build <native|nt> <module> [version]",
		Short: "Build a native module for the current platform",
		Args:  cobra.RangeArgs(2, 3),
		RunE:  runBuild,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show orbit version and platform",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			host := platform.Detect()
			fmt.Printf("orbit %s\n", version)
			fmt.Printf("Platform: %s\n", host)
			fmt.Printf("Library extension: %s\n", host.LibraryExtension())
		},
	}

	rootCmd.AddCommand(installCmd, uninstallCmd, updateCmd, listCmd, searchCmd, infoCmd, buildCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		newLogger().Error(err.Error())
		os.Exit(1)
	}
}

func scope() installer.Scope {
	if globalFlag {
		return installer.Global
	}
	return installer.Local
}

func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
	if verboseFlag {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func loadConfig() config.Config {
	logger := newLogger()
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		logger.Warn("ignoring unreadable config", "err", err)
	}
	if registryFlag != "" {
		cfg.RegistryURL = registryFlag
	}
	return cfg
}

func newRegistry() *registry.Client {
	cfg := loadConfig()
	return registry.NewClient(cfg.RegistryURL, fetch.NewClient(), newLogger())
}

func newInstaller() *installer.Installer {
	logger := newLogger()
	cfg := loadConfig()
	fetcher := fetch.NewClient()
	runner := shell.ExecRunner{}
	reg := registry.NewClient(cfg.RegistryURL, fetcher, logger)
	bld := builder.New(platform.Detect(), runner, logger)
	return installer.New(cfg, reg, fetcher, runner, bld, logger)
}

func runList(cmd *cobra.Command, args []string) error {
	ins := newInstaller()
	names, err := ins.ListInstalled(scope())
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("No modules installed")
		return nil
	}

	declared := map[string]string{}
	if !globalFlag {
		if content, err := os.ReadFile(manifest.File); err == nil {
			declared = manifest.Dependencies(content)
		}
	}

	fmt.Println("Installed modules:")
	for _, name := range names {
		if pinned, ok := declared[name]; ok {
			fmt.Printf("  %s (%s)\n", name, pinned)
		} else {
			fmt.Printf("  %s\n", name)
		}
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	reg := newRegistry()
	if err := reg.FetchIndex(); err != nil {
		return err
	}
	results := reg.Search(args[0])
	if len(results) == 0 {
		fmt.Printf("No modules found matching %q\n", args[0])
		return nil
	}
	fmt.Printf("Found %d module(s):\n", len(results))
	for _, name := range results {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	reg := newRegistry()
	if err := reg.FetchIndex(); err != nil {
		return err
	}
	meta, err := reg.FetchMetadata(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Module: %s\n", meta.Name)
	if meta.Description != "" {
		fmt.Printf("Description: %s\n", meta.Description)
	}
	if meta.Author != "" {
		fmt.Printf("Author: %s\n", meta.Author)
	}
	if meta.License != "" {
		fmt.Printf("License: %s\n", meta.License)
	}
	if meta.Repository != "" {
		fmt.Printf("Repository: %s\n", meta.Repository)
	}
	fmt.Printf("Latest: %s\n", meta.Latest)
	if _, ok := meta.Versions[meta.Latest]; !ok {
		logger.Warn("latest tag does not match any published version", "latest", meta.Latest)
	}

	fmt.Println("\nAvailable versions:")
	for _, id := range meta.SortedVersions() {
		if id == meta.Latest {
			fmt.Printf("  %s (latest)\n", id)
		} else {
			fmt.Printf("  %s\n", id)
		}
		if desc := meta.Versions[id].Description; desc != "" {
			fmt.Printf("    %s\n", desc)
		}
	}
	return nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	kind, name := args[0], args[1]
	buildVersion := "1.0.0"
	if len(args) == 3 {
		buildVersion = args[2]
	}

	switch kind {
	case "native":
		bld := builder.New(platform.Detect(), shell.ExecRunner{}, newLogger())
		return bld.BuildModule(name, "./"+name, "./orbit-modules", buildVersion)
	case "nt":
		return errors.New("nebula source module builds are not yet implemented")
	default:
		return fmt.Errorf("unknown build type %q (valid types: native, nt)", kind)
	}
}
