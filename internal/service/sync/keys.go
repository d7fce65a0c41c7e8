package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/pkgsync/internal/config"
	"github.com/oshokin/pkgsync/internal/logger"
)

// keyChecksumSuffix locates the checksum file next to the signing key.
const keyChecksumSuffix = ".sha256"

var (
	// errKeyChecksumMismatch means the local key no longer matches the
	// checksum recorded for it. A corrupted or tampered key must never be
	// imported, so this aborts the whole run.
	errKeyChecksumMismatch = errors.New("signing key does not match its recorded checksum")

	errMalformedKeyChecksum = errors.New("malformed key checksum file")
)

// ensureKey guarantees a verified signing key is present locally and
// installed in the system trust store before any install attempt.
func (r *runner) ensureKey(ctx context.Context) error {
	keyPath := filepath.Join(r.cfg.DownloadsDir, r.keyFilename())
	checksumPath := keyPath + keyChecksumSuffix

	keyData, err := r.ensureLocalKey(ctx, keyPath, checksumPath)
	if err != nil {
		return err
	}

	return r.ensureTrustedKey(ctx, keyData)
}

// ensureLocalKey returns the verified key bytes, downloading the key when
// absent. Verification policy is trust-on-first-use: the first run records
// a checksum, later runs verify against it and a mismatch is fatal.
func (r *runner) ensureLocalKey(ctx context.Context, keyPath, checksumPath string) ([]byte, error) {
	keyData, err := os.ReadFile(filepath.Clean(keyPath))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read signing key: %w", err)
	}

	if len(keyData) == 0 {
		logger.InfoKV(ctx, "Downloading signing key", "url", r.cfg.KeyURL)

		keyData, err = r.client.Get(ctx, r.cfg.KeyURL)
		if err != nil {
			return nil, err
		}

		if err = os.WriteFile(keyPath, keyData, config.DefaultFilePermissions); err != nil {
			return nil, fmt.Errorf("write signing key: %w", err)
		}

		return keyData, r.recordKeyChecksum(ctx, keyData, checksumPath)
	}

	recorded, err := os.ReadFile(filepath.Clean(checksumPath))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read key checksum: %w", err)
		}

		// Key predates checksum tracking: record one now.
		return keyData, r.recordKeyChecksum(ctx, keyData, checksumPath)
	}

	if err = verifyKeyChecksum(keyData, recorded); err != nil {
		return nil, fatalErr(err)
	}

	logger.Info(ctx, "Signing key verified against its recorded checksum")

	return keyData, nil
}

// recordKeyChecksum writes the key's checksum in sha256sum format.
func (r *runner) recordKeyChecksum(ctx context.Context, keyData []byte, checksumPath string) error {
	sum := sha256.Sum256(keyData)
	line := hex.EncodeToString(sum[:]) + "  " + r.keyFilename() + "\n"

	if err := os.WriteFile(checksumPath, []byte(line), config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write key checksum: %w", err)
	}

	logger.InfoKV(ctx, "Recorded signing key checksum", "path", checksumPath)

	return nil
}

// verifyKeyChecksum checks keyData against a sha256sum-format line.
func verifyKeyChecksum(keyData, recorded []byte) error {
	fields := bytes.Fields(recorded)
	if len(fields) == 0 {
		return errMalformedKeyChecksum
	}

	sum := sha256.Sum256(keyData)
	if hex.EncodeToString(sum[:]) != string(fields[0]) {
		return errKeyChecksumMismatch
	}

	return nil
}

// ensureTrustedKey installs the key into the system trust store and imports
// it into the package database when it is absent there or differs.
func (r *runner) ensureTrustedKey(ctx context.Context, keyData []byte) error {
	trustedPath := filepath.Join(r.trustStoreDir, r.keyFilename())

	trustedData, err := os.ReadFile(filepath.Clean(trustedPath))
	if err == nil && bytes.Equal(trustedData, keyData) {
		logger.Info(ctx, "Signing key already present in the trust store")
		return nil
	}

	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read trust store key: %w", err)
	}

	localPath := filepath.Join(r.cfg.DownloadsDir, r.keyFilename())

	// Copying into the trust store needs elevation.
	result, err := r.exec.RunElevated(ctx, "cp", localPath, trustedPath)
	if err != nil {
		return fmt.Errorf("install key into trust store: %w", err)
	}

	if !result.Ok() {
		return fmt.Errorf("install key into trust store exited with code %d: %s",
			result.ExitCode, result.Stderr)
	}

	importResult, err := r.manager.ImportKey(ctx, trustedPath)
	if err != nil {
		return err
	}

	if !importResult.Ok() {
		return fmt.Errorf("key import exited with code %d: %s",
			importResult.ExitCode, importResult.Stderr)
	}

	logger.InfoKV(ctx, "Imported signing key", "path", trustedPath)

	return nil
}
