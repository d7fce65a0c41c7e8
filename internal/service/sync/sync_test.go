package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/pkgsync/internal/command"
	"github.com/oshokin/pkgsync/internal/command/commandtest"
	"github.com/oshokin/pkgsync/internal/config"
	"github.com/oshokin/pkgsync/internal/fetch"
	"github.com/oshokin/pkgsync/internal/platform"
)

const (
	testPackage  = "acme-messenger"
	testArtifact = "acme-messenger.x86_64.rpm"
	testKeyFile  = "RPM-GPG-KEY-acme"
	testListing  = "-rw-r--r-- 1 ftp ftp 74216312 Mar 04 12:00 " + testArtifact
)

// fixture wires a runner against an httptest upstream and a scripted
// command runner, all rooted in temporary directories.
type fixture struct {
	t      *testing.T
	r      *runner
	exec   *commandtest.Runner
	mux    *http.ServeMux
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		Package:      testPackage,
		ArtifactURL:  server.URL + "/pool/" + testArtifact,
		ListingURL:   server.URL + "/pool/",
		KeyURL:       server.URL + "/keys/" + testKeyFile,
		DownloadsDir: t.TempDir(),
		MediaName:    "acme-local",
		Timeout:      5 * time.Second,
	}

	exec := commandtest.NewRunner()

	r := newRunner(cfg, fetch.NewClient(cfg.Timeout), exec)
	r.trustStoreDir = t.TempDir()
	r.flags = platform.Flags{Urpmi: []string{"--force"}, RPM: []string{"--force"}}

	return &fixture{t: t, r: r, exec: exec, mux: mux, server: server}
}

func (f *fixture) serveListing(lines string) {
	f.mux.HandleFunc("/pool/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(lines))
	})
}

func (f *fixture) serveArtifact(body []byte) {
	f.mux.HandleFunc("/pool/"+testArtifact, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	})
}

func (f *fixture) serveKey(body []byte) {
	f.mux.HandleFunc("/keys/"+testKeyFile, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	})
}

// scriptDeployTail registers the subprocess outcomes of the common deploy
// tail: index generation, media check, trust-store install, key import,
// high-level install and the post-install database query.
func (f *fixture) scriptDeployTail() {
	dir := f.r.cfg.DownloadsDir

	f.exec.Script(command.Result{}, "genhdlist2", "--clean", dir)
	f.exec.Script(command.Result{Stdout: "Core Release\nacme-local"}, "urpmq", "--list-media")
	f.exec.Script(command.Result{},
		"cp", filepath.Join(dir, testKeyFile), filepath.Join(f.r.trustStoreDir, testKeyFile))
	f.exec.Script(command.Result{}, "rpm", "--import", filepath.Join(f.r.trustStoreDir, testKeyFile))
	f.exec.Script(command.Result{}, "urpmi", "--auto", "--force", testPackage)
	f.exec.Script(command.Result{Stdout: "13.3.1-1"},
		"rpm", "-q", "--queryformat", "%{EVR}", testPackage)
}

func (f *fixture) artifactOnDisk() []byte {
	f.t.Helper()

	data, err := os.ReadFile(f.r.artifactPath())
	require.NoError(f.t, err)

	return data
}

func (f *fixture) writeArtifact(body []byte) {
	f.t.Helper()
	require.NoError(f.t, os.WriteFile(f.r.artifactPath(), body, 0o644))
}

func (f *fixture) writeSnapshot(listing string) {
	f.t.Helper()
	require.NoError(f.t, f.r.snapshots.Save(context.Background(), listing))
}

func (f *fixture) savedSnapshot() string {
	f.t.Helper()

	listing, err := f.r.snapshots.Load(context.Background())
	require.NoError(f.t, err)

	return listing
}

// indexOf returns the position of the first recorded call whose command
// line starts with prefix, or -1.
func (f *fixture) indexOf(prefix string) int {
	for i, line := range f.exec.CallLines() {
		if len(line) >= len(prefix) && line[:len(prefix)] == prefix {
			return i
		}
	}

	return -1
}
