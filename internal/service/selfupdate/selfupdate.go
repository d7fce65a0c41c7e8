package selfupdate

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/pkgsync/internal/fetch"
	"github.com/oshokin/pkgsync/internal/logger"
)

// Status classifies the outcome of a self-version check.
type Status int

const (
	// StatusUpToDate means the running binary matches the published release.
	StatusUpToDate Status = iota
	// StatusUpdateAvailable means the published release differs from the running binary.
	StatusUpdateAvailable
	// StatusCheckFailed means the published release could not be fetched.
	// This is deliberately distinct from "up to date": a network failure
	// must never masquerade as a successful comparison.
	StatusCheckFailed
)

// CheckResult carries the comparison details for reporting.
type CheckResult struct {
	// Status is the overall outcome.
	Status Status
	// LocalSum is the hex SHA-256 of the running binary.
	LocalSum string
	// RemoteSum is the hex SHA-256 of the published release.
	RemoteSum string
	// LocalSize and RemoteSize are the byte sizes of both copies.
	LocalSize  int64
	RemoteSize int64
	// Err holds the fetch or filesystem error when Status is StatusCheckFailed.
	Err error
}

const (
	// checksumSuffix locates the detached checksum next to the release binary.
	checksumSuffix = ".sha256"

	// executableMode is applied when replacing the running binary.
	executableMode os.FileMode = 0o755

	// sha256HexLength is the length of a hex-encoded SHA-256 digest.
	sha256HexLength = 64
)

var (
	errNoSelfURL         = errors.New("self-update URL is not configured")
	errMalformedChecksum = errors.New("malformed published checksum")
)

// Service checks for and applies newer releases of the tool itself.
type Service struct {
	client  *fetch.Client
	selfURL string
}

// NewService returns a self-update service fetching from selfURL.
func NewService(client *fetch.Client, selfURL string) *Service {
	return &Service{client: client, selfURL: selfURL}
}

// Check compares the published release against the running binary.
// It is purely advisory and never modifies anything. All failures fold into
// StatusCheckFailed so the caller can log and continue.
func (s *Service) Check(ctx context.Context) *CheckResult {
	if s.selfURL == "" {
		return &CheckResult{Status: StatusCheckFailed, Err: errNoSelfURL}
	}

	localData, err := readRunningBinary()
	if err != nil {
		return &CheckResult{Status: StatusCheckFailed, Err: err}
	}

	remoteData, err := s.client.Get(ctx, s.selfURL)
	if err != nil {
		return &CheckResult{Status: StatusCheckFailed, Err: err}
	}

	result := &CheckResult{
		LocalSum:   hexSum(localData),
		RemoteSum:  hexSum(remoteData),
		LocalSize:  int64(len(localData)),
		RemoteSize: int64(len(remoteData)),
	}

	if result.LocalSum == result.RemoteSum {
		result.Status = StatusUpToDate
	} else {
		result.Status = StatusUpdateAvailable
	}

	return result
}

// Report logs the check outcome in operator-friendly form.
func (s *Service) Report(ctx context.Context, result *CheckResult) {
	switch result.Status {
	case StatusUpToDate:
		logger.Info(ctx, "pkgsync is up to date")
	case StatusUpdateAvailable:
		logger.Warn(ctx, "==========================================")
		logger.Warn(ctx, "A newer release of pkgsync is available")
		logger.WarnKV(ctx, "Running binary", "size", result.LocalSize, "sha256", result.LocalSum)
		logger.WarnKV(ctx, "Published release", "size", result.RemoteSize, "sha256", result.RemoteSum)
		logger.Warnf(ctx, "Run `pkgsync self-update` or fetch it from %s", s.selfURL)
		logger.Warn(ctx, "==========================================")
	case StatusCheckFailed:
		logger.WarnKV(ctx, "Could not check for a newer pkgsync release", "error", result.Err)
	}
}

// Apply downloads the published release, verifies it against its detached
// SHA-256 checksum and replaces the running binary atomically.
func (s *Service) Apply(ctx context.Context) error {
	if s.selfURL == "" {
		return errNoSelfURL
	}

	logger.InfoKV(ctx, "Downloading published release", "url", s.selfURL)

	data, err := s.client.Get(ctx, s.selfURL)
	if err != nil {
		return err
	}

	checksum, err := s.publishedChecksum(ctx)
	if err != nil {
		return err
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate running binary: %w", err)
	}

	options := goupdate.Options{
		TargetPath: executable,
		TargetMode: executableMode,
		Checksum:   checksum,
		Hash:       crypto.SHA256,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("apply self-update: %w", err)
	}

	logger.InfoKV(ctx, "Replaced binary with the published release", "path", executable)

	return nil
}

// publishedChecksum fetches and decodes the release's detached checksum file.
func (s *Service) publishedChecksum(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.selfURL+checksumSuffix)
	if err != nil {
		return nil, fmt.Errorf("fetch published checksum: %w", err)
	}

	// Accept "sha256sum" output: the digest is the first field.
	fields := bytes.Fields(data)
	if len(fields) == 0 || len(fields[0]) != sha256HexLength {
		return nil, errMalformedChecksum
	}

	checksum, err := hex.DecodeString(string(fields[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedChecksum, err)
	}

	return checksum, nil
}

func readRunningBinary() ([]byte, error) {
	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate running binary: %w", err)
	}

	data, err := os.ReadFile(executable)
	if err != nil {
		return nil, fmt.Errorf("read running binary: %w", err)
	}

	return data, nil
}

func hexSum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
