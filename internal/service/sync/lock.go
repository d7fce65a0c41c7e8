package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/pkgsync/internal/logger"
)

const (
	// lockFilename marks a run in progress inside the downloads directory.
	lockFilename = "pkgsync-run-marker"

	// lockLifetime is the age past which a marker is considered stale.
	// A healthy run finishes well within it.
	lockLifetime = time.Hour

	// lockProcessName is what another live pkgsync shows up as in the
	// process table.
	lockProcessName = "pkgsync"
)

// errAlreadyRunning means another synchronization holds the run lock.
var errAlreadyRunning = errors.New("another pkgsync run is in progress")

// acquireLock takes the advisory run lock. Two simultaneous runs would race
// on the same artifact, snapshot and index files.
func (r *runner) acquireLock(ctx context.Context) error {
	if err := os.MkdirAll(r.cfg.DownloadsDir, 0o755); err != nil {
		return fmt.Errorf("create downloads directory: %w", err)
	}

	lockPath := r.lockPath()

	info, err := os.Stat(lockPath)
	if err == nil {
		if time.Since(info.ModTime()) <= lockLifetime {
			return errAlreadyRunning
		}

		// The marker outlived any healthy run. Trust it only if the process
		// table still shows another pkgsync.
		logger.Info(ctx, "Run marker is stale, checking for a live run")

		live, liveErr := anotherRunAlive()
		if liveErr != nil {
			return fmt.Errorf("inspect process table: %w", liveErr)
		}

		if live {
			return errAlreadyRunning
		}

		if err = os.Remove(lockPath); err != nil {
			return fmt.Errorf("remove stale run marker: %w", err)
		}

		logger.Info(ctx, "Removed stale run marker")
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("inspect run marker: %w", err)
	}

	marker, err := os.Create(filepath.Clean(lockPath))
	if err != nil {
		return fmt.Errorf("create run marker: %w", err)
	}

	if err = marker.Close(); err != nil {
		return fmt.Errorf("close run marker: %w", err)
	}

	r.lockAcquired = true

	return nil
}

// releaseLock removes the run marker if this run created it.
func (r *runner) releaseLock(ctx context.Context) {
	if !r.lockAcquired {
		return
	}

	if err := os.Remove(r.lockPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Could not remove run marker", "error", err)
	}

	r.lockAcquired = false
}

func (r *runner) lockPath() string {
	return filepath.Join(r.cfg.DownloadsDir, lockFilename)
}

// anotherRunAlive scans the process table for a pkgsync other than this one.
func anotherRunAlive() (bool, error) {
	processes, err := ps.Processes()
	if err != nil {
		return false, err
	}

	self := os.Getpid()

	for _, process := range processes {
		if process.Pid() == self {
			continue
		}

		if process.Executable() == lockProcessName {
			return true, nil
		}
	}

	return false, nil
}
