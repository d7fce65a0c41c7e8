package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/schollz/progressbar/v3"

	"github.com/oshokin/pkgsync/internal/logger"
)

// errBadHTTPStatus is returned when the server answers anything but 200 OK.
var errBadHTTPStatus = errors.New("unexpected http status")

const (
	// defaultRetryMax bounds the number of retries per request.
	defaultRetryMax = 3

	// partSuffix marks an in-progress download next to its final destination.
	partSuffix = ".part"

	// artifactFileMode is applied to completed downloads.
	artifactFileMode os.FileMode = 0o644
)

// Client performs HTTP GETs with retries and bounded per-request time.
type Client struct {
	http *retryablehttp.Client
}

// retryLogger routes the retry client's chatter to the debug level.
type retryLogger struct{}

// Printf implements retryablehttp.Logger.
func (retryLogger) Printf(format string, args ...any) {
	logger.Debugf(context.Background(), format, args...)
}

// NewClient returns a Client whose individual requests are capped by timeout.
func NewClient(timeout time.Duration) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = defaultRetryMax
	c.HTTPClient.Timeout = timeout
	c.Logger = retryLogger{}

	return &Client{http: c}
}

// Get fetches the URL and returns the response body.
// Intended for small payloads: directory listings, keys, release manifests.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	response, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}

	return data, nil
}

// Download streams the URL into destination, rendering a progress bar when
// the caller asks for one. The file appears atomically: bytes go to a
// ".part" sibling first and are renamed into place only on success.
func (c *Client) Download(ctx context.Context, rawURL, destination string, showProgress bool) error {
	response, err := c.get(ctx, rawURL)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if err = os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}

	partPath := destination + partSuffix

	outputFile, err := os.OpenFile(filepath.Clean(partPath), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, artifactFileMode)
	if err != nil {
		return fmt.Errorf("create %s: %w", partPath, err)
	}

	var writer io.Writer = outputFile
	if showProgress {
		bar := progressbar.DefaultBytes(response.ContentLength, filepath.Base(destination))
		writer = io.MultiWriter(outputFile, bar)
	}

	if _, err = io.Copy(writer, response.Body); err != nil {
		_ = outputFile.Close()
		_ = os.Remove(partPath)

		return fmt.Errorf("download %s: %w", rawURL, err)
	}

	if err = outputFile.Close(); err != nil {
		_ = os.Remove(partPath)
		return fmt.Errorf("close %s: %w", partPath, err)
	}

	if err = os.Rename(partPath, destination); err != nil {
		_ = os.Remove(partPath)
		return fmt.Errorf("finalize %s: %w", destination, err)
	}

	logger.InfoKV(ctx, "Downloaded file", "url", rawURL, "path", destination)

	return nil
}

// get issues the request and enforces a 200 OK response.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	request, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", rawURL, err)
	}

	response, err := c.http.Do(request)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	if response.StatusCode != http.StatusOK {
		_ = response.Body.Close()
		return nil, fmt.Errorf("%s, %s: %w", rawURL, response.Status, errBadHTTPStatus)
	}

	return response, nil
}
