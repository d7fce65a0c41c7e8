package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/pkgsync/internal/logger"
)

// Severity classifies how a step failure affects the rest of the run.
type Severity int

const (
	// SeverityFatal aborts the run immediately.
	SeverityFatal Severity = iota
	// SeverityWarning logs the failure and lets the run continue;
	// a later step or the next run is expected to reconcile.
	SeverityWarning
)

// step is one unit of the workflow with a declared failure severity.
// Individual errors can still escalate themselves with fatalErr.
type step struct {
	name     string
	severity Severity
	run      func(ctx context.Context) error
}

// fatalError marks an error that aborts the run regardless of the
// enclosing step's declared severity.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string {
	return e.err.Error()
}

func (e *fatalError) Unwrap() error {
	return e.err
}

// fatalErr escalates an error to run-aborting severity.
func fatalErr(err error) error {
	return &fatalError{err: err}
}

// isFatal reports whether the error was escalated with fatalErr.
func isFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// drive executes steps in order, applying each step's severity to its
// failure. This replaces scattered inline "warn and continue" judgments
// with one place that decides continue-versus-abort.
func drive(ctx context.Context, steps []step) error {
	for _, s := range steps {
		logger.InfoKV(ctx, "Starting step", "step", s.name)

		err := s.run(ctx)
		if err == nil {
			continue
		}

		if s.severity == SeverityFatal || isFatal(err) {
			return fmt.Errorf("%s: %w", s.name, err)
		}

		logger.WarnKV(ctx, "Step failed, continuing", "step", s.name, "error", err)
	}

	return nil
}
