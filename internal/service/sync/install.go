package sync

import (
	"context"

	"github.com/oshokin/pkgsync/internal/logger"
)

// install attempts the high-level install/upgrade and, when the package
// database still does not know the package afterwards, falls back exactly
// once to a direct forced install of the downloaded file. Neither failure
// aborts the run: the operator is told what happened and durable state is
// left for the next run.
func (r *runner) install(ctx context.Context) error {
	logger.InfoKV(ctx, "Installing package",
		"package", r.cfg.Package, "flags", r.flags.Urpmi)

	result, err := r.manager.Install(ctx, r.cfg.Package, r.flags.Urpmi)
	if err != nil {
		return err
	}

	if !result.Ok() {
		logger.WarnKV(ctx, "High-level install failed",
			"exit_code", result.ExitCode, "stderr", result.Stderr)
	}

	installed, version, err := r.manager.QueryInstalled(ctx, r.cfg.Package)
	if err != nil {
		return err
	}

	if installed {
		logger.InfoKV(ctx, "Package installed",
			"package", r.cfg.Package, "version", version)

		return nil
	}

	// The upstream artifact declares a dependency the high-level resolver
	// sometimes cannot satisfy even when it is present; install the file
	// directly and accept that dependencies may go unchecked.
	logger.WarnKV(ctx, "Package still absent, attempting direct install",
		"artifact", r.artifactPath(), "flags", r.flags.RPM)

	fallback, err := r.manager.InstallFile(ctx, r.artifactPath(), r.flags.RPM)
	if err != nil {
		return err
	}

	if !fallback.Ok() {
		logger.WarnKV(ctx, "Direct install failed",
			"exit_code", fallback.ExitCode, "stderr", fallback.Stderr)
	}

	installed, version, err = r.manager.QueryInstalled(ctx, r.cfg.Package)
	if err != nil {
		return err
	}

	if installed {
		logger.InfoKV(ctx, "Package installed via direct install",
			"package", r.cfg.Package, "version", version)
	} else {
		logger.WarnKV(ctx, "Package could not be installed, investigate manually",
			"package", r.cfg.Package)
	}

	return nil
}
