package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/pkgsync/internal/command"
)

func TestSyncRepository_RegistersMissingMedium(t *testing.T) {
	f := newFixture(t)
	dir := f.r.cfg.DownloadsDir

	f.exec.Script(command.Result{}, "genhdlist2", "--clean", dir)
	f.exec.Script(command.Result{Stdout: "Core Release\nCore Updates"}, "urpmq", "--list-media")
	f.exec.Script(command.Result{}, "urpmi.addmedia", "acme-local", dir)

	require.NoError(t, f.r.syncRepository(context.Background()))

	require.Equal(t, 1, f.exec.CountCalls("urpmi.addmedia", "acme-local", dir))

	for _, call := range f.exec.Calls {
		if call.Name == "urpmi.addmedia" {
			require.True(t, call.Elevated)
		}
	}
}

func TestSyncRepository_SkipsRegisteredMedium(t *testing.T) {
	f := newFixture(t)
	dir := f.r.cfg.DownloadsDir

	f.exec.Script(command.Result{}, "genhdlist2", "--clean", dir)
	f.exec.Script(command.Result{Stdout: "Core Release\nacme-local"}, "urpmq", "--list-media")

	require.NoError(t, f.r.syncRepository(context.Background()))

	require.Zero(t, f.exec.CountCalls("urpmi.addmedia", "acme-local", dir))
}

func TestSyncRepository_MediaRegistrationFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	dir := f.r.cfg.DownloadsDir

	f.exec.Script(command.Result{}, "genhdlist2", "--clean", dir)
	f.exec.Script(command.Result{Stdout: "Core Release"}, "urpmq", "--list-media")
	f.exec.Script(command.Result{ExitCode: 1, Stderr: "unable to add medium"},
		"urpmi.addmedia", "acme-local", dir)

	require.NoError(t, f.r.syncRepository(context.Background()))

	// The rest of the repository sync still ran.
	_, err := os.Stat(filepath.Join(dir, manifestFilename))
	require.NoError(t, err)
}
