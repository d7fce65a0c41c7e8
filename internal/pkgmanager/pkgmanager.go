package pkgmanager

import (
	"context"
	"fmt"
	"strings"

	"github.com/oshokin/pkgsync/internal/command"
)

// Tool names of the package stack this manager drives.
const (
	urpmiTool    = "urpmi"
	urpmeTool    = "urpme"
	urpmqTool    = "urpmq"
	addMediaTool = "urpmi.addmedia"
	rpmTool      = "rpm"
	indexTool    = "genhdlist2"
)

// Manager drives the urpmi/rpm package stack through a command.Runner.
// Methods return the raw subprocess Result so callers decide which exit
// codes are fatal, recoverable or informational.
type Manager struct {
	runner command.Runner
}

// New returns a Manager executing through the provided runner.
func New(runner command.Runner) *Manager {
	return &Manager{runner: runner}
}

// QueryInstalled asks the package database whether the package is installed
// and returns its version-release string when it is.
func (m *Manager) QueryInstalled(ctx context.Context, packageName string) (bool, string, error) {
	result, err := m.runner.Run(ctx, rpmTool, "-q", "--queryformat", "%{EVR}", packageName)
	if err != nil {
		return false, "", fmt.Errorf("query package database: %w", err)
	}

	if !result.Ok() {
		return false, "", nil
	}

	return true, strings.TrimSpace(result.Stdout), nil
}

// Install runs the high-level install/upgrade. Requires elevation.
func (m *Manager) Install(ctx context.Context, packageName string, flags []string) (command.Result, error) {
	args := append([]string{"--auto"}, flags...)
	args = append(args, packageName)

	return m.runner.RunElevated(ctx, urpmiTool, args...)
}

// Uninstall removes the installed package. Requires elevation.
func (m *Manager) Uninstall(ctx context.Context, packageName string) (command.Result, error) {
	return m.runner.RunElevated(ctx, urpmeTool, "--auto", packageName)
}

// InstallFile installs an artifact file directly through the low-level tool,
// bypassing dependency resolution. Requires elevation.
func (m *Manager) InstallFile(ctx context.Context, artifactPath string, flags []string) (command.Result, error) {
	args := append([]string{"-ivh"}, flags...)
	args = append(args, artifactPath)

	return m.runner.RunElevated(ctx, rpmTool, args...)
}

// HasMedia reports whether a medium with the given name is registered.
func (m *Manager) HasMedia(ctx context.Context, mediaName string) (bool, error) {
	result, err := m.runner.Run(ctx, urpmqTool, "--list-media")
	if err != nil {
		return false, fmt.Errorf("list media: %w", err)
	}

	if !result.Ok() {
		return false, fmt.Errorf("list media exited with code %d: %s", result.ExitCode, result.Stderr)
	}

	for _, line := range strings.Split(result.Stdout, "\n") {
		if strings.TrimSpace(line) == mediaName {
			return true, nil
		}
	}

	return false, nil
}

// AddMedia registers a local directory as a named medium. Requires elevation.
func (m *Manager) AddMedia(ctx context.Context, mediaName, directory string) (command.Result, error) {
	return m.runner.RunElevated(ctx, addMediaTool, mediaName, directory)
}

// GenerateIndex regenerates the repository index over a directory of packages.
func (m *Manager) GenerateIndex(ctx context.Context, directory string) (command.Result, error) {
	return m.runner.Run(ctx, indexTool, "--clean", directory)
}

// ImportKey imports a signing key into the package manager's trust database.
// Requires elevation.
func (m *Manager) ImportKey(ctx context.Context, keyPath string) (command.Result, error) {
	return m.runner.RunElevated(ctx, rpmTool, "--import", keyPath)
}
