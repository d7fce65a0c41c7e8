package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/oshokin/pkgsync/internal/logger"
)

// snapshotFilename stores the remote-listing line inside the downloads
// directory. Its previous generation gets the repository's backup suffix.
const snapshotFilename = "remote-listing.txt"

// asidePrevSuffix tags the previous artifact when no version is known.
const asidePrevSuffix = ".prev"

var errArtifactLineNotFound = errors.New("artifact not present in remote listing")

// synchronize is the change-detection decision tree. Which branch runs is
// decided by three booleans: artifact downloaded before, listing snapshot
// saved before, package currently installed.
func (r *runner) synchronize(ctx context.Context) error {
	switch {
	case !r.state.hasArtifact:
		return r.freshInstall(ctx)
	case !r.state.hasSnapshot:
		return r.artifactCompare(ctx)
	default:
		return r.listingCompare(ctx)
	}
}

// freshInstall handles the first run on a machine: nothing local yet.
func (r *runner) freshInstall(ctx context.Context) error {
	logger.Info(ctx, "No previous artifact, performing a fresh install")

	listing, err := r.fetchListingLine(ctx)
	if err != nil {
		return err
	}

	return r.deploy(ctx, listing)
}

// artifactCompare runs when an artifact exists but no listing baseline does.
// The cheap comparison is impossible, so the old artifact is moved aside and
// the fresh download is compared against it byte for byte.
func (r *runner) artifactCompare(ctx context.Context) error {
	logger.Info(ctx, "No listing baseline, comparing artifact downloads directly")

	listing, err := r.fetchListingLine(ctx)
	if err != nil {
		return err
	}

	asidePath := r.artifactPath() + asidePrevSuffix
	if err = os.Rename(r.artifactPath(), asidePath); err != nil {
		return fmt.Errorf("move artifact aside: %w", err)
	}

	if err = r.downloadArtifact(ctx); err != nil {
		return err
	}

	identical, err := filesEqual(asidePath, r.artifactPath())
	if err != nil {
		return err
	}

	if identical {
		logger.Info(ctx, "Artifact is unchanged, nothing to do")
		// Record the baseline so the next run can compare listings instead.
		return r.snapshots.Save(ctx, listing)
	}

	logger.Info(ctx, "Artifact changed upstream")

	if r.state.installed {
		r.uninstallCurrent(ctx)
	}

	return r.finishDeploy(ctx, listing)
}

// listingCompare is the cheap path: one line of listing text decides whether
// a multi-megabyte download is needed at all.
func (r *runner) listingCompare(ctx context.Context) error {
	saved, err := r.snapshots.Load(ctx)
	if err != nil {
		return err
	}

	fresh, err := r.fetchListingLine(ctx)
	if err != nil {
		return err
	}

	// Purely textual equality. No version parsing.
	if fresh == saved {
		return r.handleUnchanged(ctx, fresh)
	}

	logger.InfoKV(ctx, "Remote listing changed",
		"previous", strings.TrimSpace(saved),
		"current", strings.TrimSpace(fresh))

	r.moveArtifactAside(ctx)

	if r.state.installed {
		r.uninstallCurrent(ctx)
	}

	return r.deploy(ctx, fresh)
}

// handleUnchanged covers the two "no upstream change" outcomes.
func (r *runner) handleUnchanged(ctx context.Context, listing string) error {
	if r.state.installed {
		logger.Info(ctx, "No change detected and package is installed, nothing to do")
		return nil
	}

	// Artifact on disk but package absent: reachable when a previous install
	// failed. Validate the local copy before trusting it; a corrupt file
	// forces a re-download instead of a doomed install.
	logger.Info(ctx, "No change detected but package is not installed")

	if err := r.validateArtifact(ctx); err != nil {
		logger.WarnKV(ctx, "Local artifact failed validation, re-downloading", "error", err)
		return r.deploy(ctx, listing)
	}

	return r.finishDeploy(ctx, listing)
}

// deploy downloads the artifact and completes the synchronization.
func (r *runner) deploy(ctx context.Context, listing string) error {
	if err := r.downloadArtifact(ctx); err != nil {
		return err
	}

	return r.finishDeploy(ctx, listing)
}

// finishDeploy runs the common tail of every install branch: repository
// sync, snapshot refresh, key verification, installation. Order matters:
// the key must be trusted before any install attempt, and the snapshot is
// saved only once the local repository matches the fetched listing.
func (r *runner) finishDeploy(ctx context.Context, listing string) error {
	if err := r.syncRepository(ctx); err != nil {
		return err
	}

	if err := r.snapshots.Save(ctx, listing); err != nil {
		return err
	}

	if err := r.ensureKey(ctx); err != nil {
		return err
	}

	return r.install(ctx)
}

// downloadArtifact fetches the artifact into the downloads directory.
func (r *runner) downloadArtifact(ctx context.Context) error {
	logger.InfoKV(ctx, "Downloading artifact", "url", r.cfg.ArtifactURL)

	return r.client.Download(ctx, r.cfg.ArtifactURL, r.artifactPath(), true)
}

// fetchListingLine retrieves the remote directory listing and extracts the
// artifact's line. When the listing format is unexpected the whole body is
// used: textual comparison still detects change either way.
func (r *runner) fetchListingLine(ctx context.Context) (string, error) {
	body, err := r.client.Get(ctx, r.cfg.ListingURL)
	if err != nil {
		return "", err
	}

	line, err := extractListingLine(string(body), r.artifactFilename())
	if err != nil {
		logger.WarnKV(ctx, "Falling back to the full listing body", "error", err)
		return string(body), nil
	}

	return line, nil
}

// extractListingLine returns the first listing line mentioning filename.
func extractListingLine(listing, filename string) (string, error) {
	for _, line := range strings.Split(listing, "\n") {
		if strings.Contains(line, filename) {
			return strings.TrimSpace(line), nil
		}
	}

	return "", fmt.Errorf("%w: %s", errArtifactLineNotFound, filename)
}

// moveArtifactAside renames the current artifact with a version-tagged
// suffix. Aside copies are never deleted by this tool.
func (r *runner) moveArtifactAside(ctx context.Context) {
	tag := r.state.installedVersion
	if tag == "" {
		tag = strings.TrimPrefix(asidePrevSuffix, ".")
	}

	asidePath := r.artifactPath() + "." + tag
	if err := os.Rename(r.artifactPath(), asidePath); err != nil {
		logger.WarnKV(ctx, "Could not move artifact aside", "error", err)
		return
	}

	logger.InfoKV(ctx, "Moved previous artifact aside", "path", asidePath)
}

// uninstallCurrent removes the installed package before a replacement.
// Failure is logged and the run continues: the forced install can still win.
func (r *runner) uninstallCurrent(ctx context.Context) {
	logger.InfoKV(ctx, "Uninstalling current package",
		"package", r.cfg.Package, "version", r.state.installedVersion)

	result, err := r.manager.Uninstall(ctx, r.cfg.Package)
	if err != nil {
		logger.WarnKV(ctx, "Uninstall could not be launched", "error", err)
		return
	}

	if !result.Ok() {
		logger.WarnKV(ctx, "Uninstall failed",
			"exit_code", result.ExitCode, "stderr", result.Stderr)
	}
}

// filesEqual compares two files byte for byte.
func filesEqual(pathA, pathB string) (bool, error) {
	a, err := os.ReadFile(pathA)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", pathA, err)
	}

	b, err := os.ReadFile(pathB)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", pathB, err)
	}

	return bytes.Equal(a, b), nil
}
