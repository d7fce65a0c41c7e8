package platform

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/pkgsync/internal/command"
	"github.com/oshokin/pkgsync/internal/logger"
)

const (
	// ExpectedDistribution is the only distribution this tool supports.
	ExpectedDistribution = "mageia"

	// ExpectedArchitecture is the only machine architecture this tool supports.
	ExpectedArchitecture = "x86_64"

	// DefaultOSReleasePath is where the distribution identifies itself.
	DefaultOSReleasePath = "/etc/os-release"
)

var (
	// ErrUnsupportedDistribution is fatal: the tool runs on one distribution only.
	ErrUnsupportedDistribution = errors.New("unsupported distribution")
	// ErrUnsupportedArchitecture is fatal: only 64-bit x86 builds exist upstream.
	ErrUnsupportedArchitecture = errors.New("unsupported architecture")
	// ErrRunningAsRoot is fatal: the tool elevates individual commands instead.
	ErrRunningAsRoot = errors.New("refusing to run as root")

	errMissingOSReleaseField = errors.New("missing field in os-release")
)

// Info describes the running platform.
type Info struct {
	// Distribution is the os-release ID value, e.g. "mageia".
	Distribution string
	// Release is the os-release VERSION_ID value, e.g. "9".
	Release string
	// Architecture is the machine hardware name from uname, e.g. "x86_64".
	Architecture string
}

// Flags carries the install-time options selected for the detected release.
type Flags struct {
	// Urpmi is appended to the high-level install command.
	Urpmi []string
	// RPM is appended to the low-level fallback install command.
	RPM []string
}

// forceFlags reinstall over an existing package; used by every current release.
func forceFlags() Flags {
	return Flags{
		Urpmi: []string{"--force"},
		RPM:   []string{"--force"},
	}
}

// nodepsFlags skip dependency checks; release 6 shipped a dependency set the
// resolver could not always satisfy even when it was present.
func nodepsFlags() Flags {
	return Flags{
		Urpmi: []string{"--allow-nodeps"},
		RPM:   []string{"--nodeps"},
	}
}

// FlagsForRelease maps a release identifier to its install flags.
// The second return value reports whether the release is a known one.
func FlagsForRelease(release string) (Flags, bool) {
	switch release {
	case "6":
		return nodepsFlags(), true
	case "7", "8", "9":
		return forceFlags(), true
	default:
		// Forward-compatibility escape hatch: behave like the newest
		// supported release and let the caller warn.
		return forceFlags(), false
	}
}

// Detect reads distribution identity from osReleasePath and the machine
// architecture from uname.
func Detect(ctx context.Context, runner command.Runner, osReleasePath string) (*Info, error) {
	if osReleasePath == "" {
		osReleasePath = DefaultOSReleasePath
	}

	distribution, release, err := parseOSRelease(osReleasePath)
	if err != nil {
		return nil, err
	}

	result, err := runner.Run(ctx, "uname", "-m")
	if err != nil {
		return nil, fmt.Errorf("detect architecture: %w", err)
	}

	return &Info{
		Distribution: distribution,
		Release:      release,
		Architecture: strings.TrimSpace(result.Stdout),
	}, nil
}

// Validate enforces the platform contract and selects install flags.
// Wrong distribution or architecture is fatal. An unknown release only
// warns and falls back to the default flags.
func Validate(ctx context.Context, info *Info) (Flags, error) {
	if info.Distribution != ExpectedDistribution {
		return Flags{}, fmt.Errorf("%w: %q (want %q)",
			ErrUnsupportedDistribution, info.Distribution, ExpectedDistribution)
	}

	if info.Architecture != ExpectedArchitecture {
		return Flags{}, fmt.Errorf("%w: %q (want %q)",
			ErrUnsupportedArchitecture, info.Architecture, ExpectedArchitecture)
	}

	flags, known := FlagsForRelease(info.Release)
	if !known {
		logger.WarnKV(ctx, "Release is not in the supported set, proceeding anyway",
			"release", info.Release)
	} else {
		logger.InfoKV(ctx, "Platform validated",
			"distribution", info.Distribution,
			"release", info.Release,
			"architecture", info.Architecture)
	}

	return flags, nil
}

// RequireUnprivileged rejects execution under root. System-wide writes are
// elevated per command through sudo instead.
func RequireUnprivileged() error {
	if os.Geteuid() == 0 {
		return ErrRunningAsRoot
	}

	return nil
}

// parseOSRelease extracts ID and VERSION_ID from an os-release style file.
func parseOSRelease(path string) (distribution, release string, err error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", "", fmt.Errorf("open os-release: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		value = strings.Trim(value, `"`)

		switch key {
		case "ID":
			distribution = value
		case "VERSION_ID":
			release = value
		}
	}

	if err = scanner.Err(); err != nil {
		return "", "", fmt.Errorf("read os-release: %w", err)
	}

	if distribution == "" || release == "" {
		return "", "", fmt.Errorf("%s: %w", path, errMissingOSReleaseField)
	}

	return distribution, release, nil
}
