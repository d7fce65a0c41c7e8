package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oshokin/pkgsync/internal/config"
)

// Repository defines persistence operations for the remote-listing snapshot.
type Repository interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, listing string) error
}

// FileRepository persists the listing snapshot to a small text file.
// Saving rotates the current snapshot into a "-" suffixed backup, keeping
// exactly one previous generation for comparison and debugging.
type FileRepository struct {
	// path is the filesystem location of the snapshot file.
	path string
	// mu protects concurrent access to the snapshot files.
	mu sync.Mutex
}

// BackupSuffix is appended to the snapshot path for the previous generation.
const BackupSuffix = "-"

// ErrNotFound is returned when no snapshot has been saved yet.
var ErrNotFound = errors.New("snapshot not found")

// NewFileRepository creates a repository that reads/writes the snapshot at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the location of the current snapshot.
func (r *FileRepository) Path() string {
	return r.path
}

// BackupPath returns the location of the previous-generation snapshot.
func (r *FileRepository) BackupPath() string {
	return r.path + BackupSuffix
}

// Load reads the current snapshot from disk.
func (r *FileRepository) Load(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}

		return "", fmt.Errorf("read snapshot: %w", err)
	}

	return string(contents), nil
}

// Save writes a fresh snapshot, moving the existing one aside first.
// The snapshot on disk always reflects the listing as of the last
// successful synchronization.
func (r *FileRepository) Save(_ context.Context, listing string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.path); err == nil {
		if err = os.Rename(r.path, r.path+BackupSuffix); err != nil {
			return fmt.Errorf("rotate snapshot: %w", err)
		}
	}

	if err := os.WriteFile(r.path, []byte(listing), config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	return nil
}
