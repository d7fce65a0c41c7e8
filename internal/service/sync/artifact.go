package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sassoftware/go-rpmutils"

	"github.com/oshokin/pkgsync/internal/logger"
)

// validateArtifact parses the on-disk artifact's RPM header before any
// install that would reuse it without a fresh download. A file that was
// truncated or tampered with since the last run fails here instead of
// producing a cryptic install error.
func (r *runner) validateArtifact(ctx context.Context) error {
	file, err := os.Open(filepath.Clean(r.artifactPath()))
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	rpm, err := rpmutils.ReadRpm(file)
	if err != nil {
		return fmt.Errorf("parse artifact header: %w", err)
	}

	nevra, err := rpm.Header.GetNEVRA()
	if err != nil {
		return fmt.Errorf("read artifact identity: %w", err)
	}

	logger.InfoKV(ctx, "Local artifact validated",
		"name", nevra.Name,
		"version", nevra.Version,
		"release", nevra.Release,
		"architecture", nevra.Arch)

	return nil
}
