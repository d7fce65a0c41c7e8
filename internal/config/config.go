package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything a sync run needs: the tracked package, the
// upstream endpoints and the local working directory. A single struct is
// threaded through every step instead of ambient globals.
type Config struct {
	// Package is the name of the RPM package kept in sync.
	Package string `yaml:"package"`
	// ArtifactURL is the direct download location of the package artifact.
	ArtifactURL string `yaml:"artifact_url"`
	// ListingURL is the remote directory listing used for cheap change detection.
	ListingURL string `yaml:"listing_url"`
	// KeyURL is the download location of the vendor signing key.
	KeyURL string `yaml:"key_url"`
	// SelfURL is the location of the latest pkgsync release, used by the
	// advisory self-version check. Optional: empty disables the check.
	SelfURL string `yaml:"self_url"`
	// DownloadsDir is the local working directory holding the artifact,
	// snapshots, key material and the generated repository index.
	DownloadsDir string `yaml:"downloads_dir"`
	// MediaName is the urpmi medium name referencing DownloadsDir.
	MediaName string `yaml:"media_name"`
	// Timeout bounds each network operation.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the default filename for sync settings.
	DefaultConfigFilename = "pkgsync-settings.yaml"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 30 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// defaultDownloadsSubdir is appended to the user's Downloads directory
	// when downloads_dir is not set explicitly.
	defaultDownloadsSubdir = "Downloads"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errPackageRequired is returned when the package name is missing.
	errPackageRequired = errors.New("package name must be provided")
	// errArtifactURLRequired is returned when the artifact URL is missing.
	errArtifactURLRequired = errors.New("artifact URL must be provided")
	// errListingURLRequired is returned when the listing URL is missing.
	errListingURLRequired = errors.New("listing URL must be provided")
	// errKeyURLRequired is returned when the signing key URL is missing.
	errKeyURLRequired = errors.New("signing key URL must be provided")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields, verifies URL syntax and fills defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.Package == "" {
		return errPackageRequired
	}

	required := []struct {
		name  string
		value string
		err   error
	}{
		{"artifact_url", cfg.ArtifactURL, errArtifactURLRequired},
		{"listing_url", cfg.ListingURL, errListingURLRequired},
		{"key_url", cfg.KeyURL, errKeyURLRequired},
	}
	for _, field := range required {
		if field.value == "" {
			return field.err
		}

		if _, err := url.ParseRequestURI(field.value); err != nil {
			return fmt.Errorf("invalid %s: %w", field.name, err)
		}
	}

	// self_url is optional, but must parse when present.
	if cfg.SelfURL != "" {
		if _, err := url.ParseRequestURI(cfg.SelfURL); err != nil {
			return fmt.Errorf("invalid self_url: %w", err)
		}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.MediaName == "" {
		cfg.MediaName = cfg.Package + "-local"
	}

	if cfg.DownloadsDir == "" {
		dir, err := defaultDownloadsDir(cfg.Package)
		if err != nil {
			return err
		}

		cfg.DownloadsDir = dir
	}

	return nil
}

// defaultDownloadsDir resolves the per-user working directory,
// e.g. ~/Downloads/pkgsync-<package>.
func defaultDownloadsDir(packageName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, defaultDownloadsSubdir, "pkgsync-"+packageName), nil
}
