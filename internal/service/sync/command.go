package sync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/oshokin/pkgsync/internal/command"
	"github.com/oshokin/pkgsync/internal/config"
	"github.com/oshokin/pkgsync/internal/fetch"
	"github.com/oshokin/pkgsync/internal/logger"
	"github.com/oshokin/pkgsync/internal/pkgmanager"
	"github.com/oshokin/pkgsync/internal/platform"
	"github.com/oshokin/pkgsync/internal/repository/snapshot"
	"github.com/oshokin/pkgsync/internal/service/selfupdate"
)

// Options are inputs accepted by the sync entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
}

// localState is what the inspector learns about this machine before the
// decision tree runs. It is informational only.
type localState struct {
	// installed reports whether the package database knows the package.
	installed bool
	// installedVersion is the version-release string when installed.
	installedVersion string
	// hasArtifact reports whether a previously downloaded artifact exists.
	hasArtifact bool
	// hasSnapshot reports whether a listing snapshot from a prior run exists.
	hasSnapshot bool
}

// runner holds the state and collaborators of a single sync execution.
// It is intentionally unexported: call Run(ctx, Options) from callers.
type runner struct {
	cfg       *config.Config
	client    *fetch.Client
	exec      command.Runner
	manager   *pkgmanager.Manager
	snapshots *snapshot.FileRepository
	selfcheck *selfupdate.Service

	// flags are the release-specific install options chosen by validation.
	flags platform.Flags
	// state is filled by the inspector step.
	state localState

	// trustStoreDir is where system signing keys live. A field so tests
	// can point it at a temporary directory.
	trustStoreDir string
	// osReleasePath is where the distribution identifies itself.
	osReleasePath string

	// lockAcquired tracks whether cleanup must remove the run marker.
	lockAcquired bool

	startedAt time.Time
}

// defaultTrustStoreDir is the system-wide location for imported signing keys.
const defaultTrustStoreDir = "/etc/pki/rpm-gpg"

// Run executes the full synchronization workflow and is the public entry
// point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "pkgsync")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	exec := command.NewExecRunner()
	r := newRunner(cfg, fetch.NewClient(cfg.Timeout), exec)

	defer r.cleanup(ctx)

	if err = r.Run(ctx); err != nil {
		logger.ErrorKV(ctx, "Synchronization failed", "error", err)
		return err
	}

	return nil
}

// newRunner wires a runner with the given collaborators. Production wiring
// happens in Run; tests call this directly with fakes.
func newRunner(cfg *config.Config, client *fetch.Client, exec command.Runner) *runner {
	return &runner{
		cfg:           cfg,
		client:        client,
		exec:          exec,
		manager:       pkgmanager.New(exec),
		snapshots:     snapshot.NewFileRepository(filepath.Join(cfg.DownloadsDir, snapshotFilename)),
		selfcheck:     selfupdate.NewService(client, cfg.SelfURL),
		trustStoreDir: defaultTrustStoreDir,
		osReleasePath: platform.DefaultOSReleasePath,
		startedAt:     time.Now(),
	}
}

// Run walks the workflow top to bottom:
// 1) Refuse root and concurrent runs.
// 2) Validate the platform and pick install flags.
// 3) Advise about newer pkgsync releases.
// 4) Inspect local state.
// 5) Detect upstream change and synchronize accordingly.
// Elapsed time is reported regardless of the outcome.
func (r *runner) Run(ctx context.Context) error {
	defer r.reportElapsed(ctx)

	steps := []step{
		{name: "acquire run lock", severity: SeverityFatal, run: r.acquireLock},
		{name: "validate platform", severity: SeverityFatal, run: r.validatePlatform},
		{name: "check for newer pkgsync", severity: SeverityWarning, run: r.checkSelfVersion},
		{name: "inspect local state", severity: SeverityFatal, run: r.inspectLocalState},
		{name: "synchronize package", severity: SeverityWarning, run: r.synchronize},
	}

	return drive(ctx, steps)
}

// validatePlatform aborts on a wrong distribution, architecture or when
// running as root, and selects install flags for the detected release.
func (r *runner) validatePlatform(ctx context.Context) error {
	if err := platform.RequireUnprivileged(); err != nil {
		return err
	}

	info, err := platform.Detect(ctx, r.exec, r.osReleasePath)
	if err != nil {
		return err
	}

	r.flags, err = platform.Validate(ctx, info)

	return err
}

// checkSelfVersion runs the advisory self-version comparison. A failed
// fetch surfaces as its own outcome; it never pretends to be "up to date".
func (r *runner) checkSelfVersion(ctx context.Context) error {
	if r.cfg.SelfURL == "" {
		logger.Debug(ctx, "Self-version check disabled, no self_url configured")
		return nil
	}

	r.selfcheck.Report(ctx, r.selfcheck.Check(ctx))

	return nil
}

// inspectLocalState queries the package database and the filesystem.
// Purely informational: nothing is mutated here.
func (r *runner) inspectLocalState(ctx context.Context) error {
	if err := os.MkdirAll(r.cfg.DownloadsDir, 0o755); err != nil {
		return fmt.Errorf("create downloads directory: %w", err)
	}

	installed, version, err := r.manager.QueryInstalled(ctx, r.cfg.Package)
	if err != nil {
		return err
	}

	r.state.installed = installed
	r.state.installedVersion = version
	r.state.hasArtifact = fileExists(r.artifactPath())

	if _, err = r.snapshots.Load(ctx); err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			return err
		}

		r.state.hasSnapshot = false
	} else {
		r.state.hasSnapshot = true
	}

	logger.InfoKV(ctx, "Local state",
		"installed", r.state.installed,
		"installed_version", r.state.installedVersion,
		"artifact_present", r.state.hasArtifact,
		"snapshot_present", r.state.hasSnapshot)

	return nil
}

// artifactPath is where the downloaded artifact lives locally.
func (r *runner) artifactPath() string {
	return filepath.Join(r.cfg.DownloadsDir, r.artifactFilename())
}

// artifactFilename is the artifact's name as published upstream.
func (r *runner) artifactFilename() string {
	parsed, err := url.Parse(r.cfg.ArtifactURL)
	if err != nil {
		// Validation already accepted the URL.
		return path.Base(r.cfg.ArtifactURL)
	}

	return path.Base(parsed.Path)
}

// cleanup releases the run lock.
func (r *runner) cleanup(ctx context.Context) {
	r.releaseLock(ctx)
}

// fileExists reports whether path names an existing file.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
