package selfupdate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/pkgsync/internal/fetch"
)

func newClient() *fetch.Client {
	return fetch.NewClient(5 * time.Second)
}

// TestCheck_UpToDate reports StatusUpToDate when the server serves the running binary.
func TestCheck_UpToDate(t *testing.T) {
	t.Parallel()

	executable, err := os.Executable()
	require.NoError(t, err)

	self, err := os.ReadFile(executable)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(self)
	}))
	defer server.Close()

	result := NewService(newClient(), server.URL).Check(context.Background())
	require.Equal(t, StatusUpToDate, result.Status)
	require.Equal(t, result.LocalSum, result.RemoteSum)
}

// TestCheck_UpdateAvailable reports a difference when the published bytes differ.
func TestCheck_UpdateAvailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("a different release"))
	}))
	defer server.Close()

	result := NewService(newClient(), server.URL).Check(context.Background())
	require.Equal(t, StatusUpdateAvailable, result.Status)
	require.NotEqual(t, result.LocalSum, result.RemoteSum)
}

// TestCheck_FetchFailure yields the distinct StatusCheckFailed outcome,
// never a silent "up to date".
func TestCheck_FetchFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer server.Close()

	result := NewService(newClient(), server.URL).Check(context.Background())
	require.Equal(t, StatusCheckFailed, result.Status)
	require.Error(t, result.Err)
}

// TestCheck_NoURL treats a missing self URL as a failed check.
func TestCheck_NoURL(t *testing.T) {
	t.Parallel()

	result := NewService(newClient(), "").Check(context.Background())
	require.Equal(t, StatusCheckFailed, result.Status)
	require.ErrorIs(t, result.Err, errNoSelfURL)
}

// TestApply_RejectsMissingChecksum refuses to replace the binary without a
// verifiable published checksum.
func TestApply_RejectsMissingChecksum(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/pkgsync", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("new release bytes"))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	err := NewService(newClient(), server.URL+"/pkgsync").Apply(context.Background())
	require.Error(t, err)
}

// TestPublishedChecksum_ParsesSha256sumOutput accepts "digest  filename" lines.
func TestPublishedChecksum_ParsesSha256sumOutput(t *testing.T) {
	t.Parallel()

	const digest = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

	mux := http.NewServeMux()
	mux.HandleFunc("/pkgsync.sha256", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(digest + "  pkgsync\n"))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	checksum, err := NewService(newClient(), server.URL+"/pkgsync").publishedChecksum(context.Background())
	require.NoError(t, err)
	require.Len(t, checksum, 32)
}
