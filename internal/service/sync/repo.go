package sync

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/oshokin/pkgsync/internal/config"
	"github.com/oshokin/pkgsync/internal/logger"
)

const (
	// manifestFilename is the human-readable description of the local repository.
	manifestFilename = "MANIFEST.txt"

	// indexSubdir is where the index generator writes repository metadata.
	indexSubdir = "media_info"
)

// syncRepository regenerates the local repository index and makes sure the
// package manager references the downloads directory as a medium.
// A failure to register the medium is only a warning: the low-level install
// fallback works without it.
func (r *runner) syncRepository(ctx context.Context) error {
	logger.InfoKV(ctx, "Regenerating repository index", "directory", r.cfg.DownloadsDir)

	result, err := r.manager.GenerateIndex(ctx, r.cfg.DownloadsDir)
	if err != nil {
		return err
	}

	if !result.Ok() {
		return fmt.Errorf("index generation exited with code %d: %s", result.ExitCode, result.Stderr)
	}

	r.ensureMedia(ctx)

	if err = r.writeManifest(); err != nil {
		return err
	}

	return nil
}

// ensureMedia registers the local repository as a named medium when missing.
func (r *runner) ensureMedia(ctx context.Context) {
	present, err := r.manager.HasMedia(ctx, r.cfg.MediaName)
	if err != nil {
		logger.WarnKV(ctx, "Could not list package-manager media", "error", err)
		return
	}

	if present {
		logger.InfoKV(ctx, "Medium already registered", "medium", r.cfg.MediaName)
		return
	}

	result, err := r.manager.AddMedia(ctx, r.cfg.MediaName, r.cfg.DownloadsDir)
	if err != nil {
		logger.WarnKV(ctx, "Could not launch media registration", "error", err)
		return
	}

	if !result.Ok() {
		logger.WarnKV(ctx, "Failed to register medium",
			"medium", r.cfg.MediaName,
			"exit_code", result.ExitCode,
			"stderr", result.Stderr)

		return
	}

	logger.InfoKV(ctx, "Registered medium",
		"medium", r.cfg.MediaName, "directory", r.cfg.DownloadsDir)
}

// writeManifest overwrites the descriptive manifest enumerating repository
// contents. Consumed by humans, never read back by this tool.
func (r *runner) writeManifest() error {
	var b strings.Builder

	b.WriteString("Local repository for package: " + r.cfg.Package + "\n\n")
	b.WriteString("artifact:          " + r.artifactFilename() + "\n")
	b.WriteString("listing snapshot:  " + snapshotFilename + "\n")
	b.WriteString("signing key:       " + r.keyFilename() + "\n")
	b.WriteString("key checksum:      " + r.keyFilename() + keyChecksumSuffix + "\n")
	b.WriteString("repository index:  " + indexSubdir + string(os.PathSeparator) + "\n")

	manifestPath := filepath.Join(r.cfg.DownloadsDir, manifestFilename)
	if err := os.WriteFile(manifestPath, []byte(b.String()), config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}

// keyFilename is the signing key's name as published upstream.
func (r *runner) keyFilename() string {
	return path.Base(r.cfg.KeyURL)
}
