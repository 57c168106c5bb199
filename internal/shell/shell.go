// Package shell abstracts external process execution (git, compilers)
// so the installer and builder can be tested without spawning anything.
package shell

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Runner executes external commands.
type Runner interface {
	// Run executes command through the platform shell with dir as the
	// working directory, blocking until it exits.
	Run(dir, command string) error
	// LookPath reports whether an executable is on the search path.
	LookPath(file string) bool
}

// ExecRunner runs commands with os/exec, inheriting stdout/stderr.
type ExecRunner struct{}

func (ExecRunner) Run(dir, command string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/C", command)
	} else {
		cmd = exec.Command("sh", "-c", command)
	}
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %q: %w", command, err)
	}
	return nil
}

func (ExecRunner) LookPath(file string) bool {
	_, err := exec.LookPath(file)
	return err == nil
}
