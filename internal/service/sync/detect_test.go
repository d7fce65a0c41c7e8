package sync

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/pkgsync/internal/command"
)

// TestExtractListingLine picks the line mentioning the artifact and errors
// when the listing does not mention it at all.
func TestExtractListingLine(t *testing.T) {
	t.Parallel()

	listing := "total 3\nsome-other-file.rpm\n" + testListing + "\ntrailer"

	line, err := extractListingLine(listing, testArtifact)
	require.NoError(t, err)
	require.Equal(t, testListing, line)

	_, err = extractListingLine("total 0\n", testArtifact)
	require.ErrorIs(t, err, errArtifactLineNotFound)
}

// TestSynchronize_FreshInstall covers the first run: download, repository
// sync, key handling and install all execute, in that order.
func TestSynchronize_FreshInstall(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.serveListing(testListing + "\n")
	f.serveArtifact([]byte("artifact v1"))
	f.serveKey([]byte("KEY DATA"))
	f.scriptDeployTail()

	require.NoError(t, f.r.synchronize(context.Background()))

	// Artifact downloaded, snapshot saved, manifest and key checksum written.
	require.Equal(t, []byte("artifact v1"), f.artifactOnDisk())
	require.Equal(t, testListing, f.savedSnapshot())
	require.FileExists(t, f.r.cfg.DownloadsDir+"/MANIFEST.txt")
	require.FileExists(t, f.r.cfg.DownloadsDir+"/"+testKeyFile+keyChecksumSuffix)

	// Repository sync before key import, key import before install.
	indexCall := f.indexOf("genhdlist2")
	importCall := f.indexOf("rpm --import")
	installCall := f.indexOf("urpmi")
	require.GreaterOrEqual(t, indexCall, 0)
	require.Greater(t, importCall, indexCall)
	require.Greater(t, installCall, importCall)
}

// TestSynchronize_Unchanged_Installed is the idempotence case: an unchanged
// listing and an installed package make the run a no-op.
func TestSynchronize_Unchanged_Installed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.serveListing(testListing + "\n")
	f.writeArtifact([]byte("artifact v1"))
	f.writeSnapshot(testListing)

	f.r.state = localState{
		installed:        true,
		installedVersion: "13.3.1-1",
		hasArtifact:      true,
		hasSnapshot:      true,
	}

	require.NoError(t, f.r.synchronize(context.Background()))

	// No subprocess ran at all: no download, no index, no install.
	require.Empty(t, f.exec.Calls)
	require.Equal(t, []byte("artifact v1"), f.artifactOnDisk())
}

// TestSynchronize_SecondRunIsNoOp runs a fresh install and then a second
// synchronization with no upstream change: the second run must not install.
func TestSynchronize_SecondRunIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.serveListing(testListing + "\n")
	f.serveArtifact([]byte("artifact v1"))
	f.serveKey([]byte("KEY DATA"))
	f.scriptDeployTail()

	f.r.state = localState{hasArtifact: false, hasSnapshot: false, installed: false}
	require.NoError(t, f.r.synchronize(context.Background()))

	installsAfterFirst := f.exec.CountCalls("urpmi", "--auto", "--force", testPackage)
	require.Equal(t, 1, installsAfterFirst)

	// Second run: the package is now installed and local files exist.
	f.r.state = localState{
		installed:        true,
		installedVersion: "13.3.1-1",
		hasArtifact:      true,
		hasSnapshot:      true,
	}
	require.NoError(t, f.r.synchronize(context.Background()))

	require.Equal(t, installsAfterFirst,
		f.exec.CountCalls("urpmi", "--auto", "--force", testPackage))
}

// TestSynchronize_ListingChanged re-deploys: artifact moved aside with a
// version tag, package uninstalled, fresh artifact downloaded.
func TestSynchronize_ListingChanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.serveListing(testListing + "\n")
	f.serveArtifact([]byte("artifact v2"))
	f.serveKey([]byte("KEY DATA"))
	f.scriptDeployTail()
	f.exec.Script(command.Result{}, "urpme", "--auto", testPackage)

	f.writeArtifact([]byte("artifact v1"))
	f.writeSnapshot("an older listing line mentioning " + testArtifact)

	f.r.state = localState{
		installed:        true,
		installedVersion: "13.2.0-1",
		hasArtifact:      true,
		hasSnapshot:      true,
	}

	require.NoError(t, f.r.synchronize(context.Background()))

	// Old artifact kept aside under its version tag.
	aside, err := os.ReadFile(f.r.artifactPath() + ".13.2.0-1")
	require.NoError(t, err)
	require.Equal(t, []byte("artifact v1"), aside)

	require.Equal(t, []byte("artifact v2"), f.artifactOnDisk())
	require.Equal(t, testListing, f.savedSnapshot())
	require.Equal(t, 1, f.exec.CountCalls("urpme", "--auto", testPackage))
	require.Equal(t, 1, f.exec.CountCalls("urpmi", "--auto", "--force", testPackage))
}

// TestSynchronize_ArtifactCompare_Unchanged covers the no-baseline case
// where the fresh download turns out identical: no install happens and the
// listing baseline is recorded for next time.
func TestSynchronize_ArtifactCompare_Unchanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.serveListing(testListing + "\n")
	f.serveArtifact([]byte("artifact v1"))

	f.writeArtifact([]byte("artifact v1"))

	f.r.state = localState{
		installed:   true,
		hasArtifact: true,
		hasSnapshot: false,
	}

	require.NoError(t, f.r.synchronize(context.Background()))

	require.Empty(t, f.exec.Calls)
	require.Equal(t, testListing, f.savedSnapshot())
	require.FileExists(t, f.r.artifactPath()+asidePrevSuffix)
}

// TestSynchronize_ArtifactCompare_Changed uninstalls and redeploys when the
// fresh download differs from the moved-aside copy.
func TestSynchronize_ArtifactCompare_Changed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.serveListing(testListing + "\n")
	f.serveArtifact([]byte("artifact v2"))
	f.serveKey([]byte("KEY DATA"))
	f.scriptDeployTail()
	f.exec.Script(command.Result{}, "urpme", "--auto", testPackage)

	f.writeArtifact([]byte("artifact v1"))

	f.r.state = localState{
		installed:   true,
		hasArtifact: true,
		hasSnapshot: false,
	}

	require.NoError(t, f.r.synchronize(context.Background()))

	require.Equal(t, 1, f.exec.CountCalls("urpme", "--auto", testPackage))
	require.Equal(t, 1, f.exec.CountCalls("urpmi", "--auto", "--force", testPackage))
	require.Equal(t, []byte("artifact v2"), f.artifactOnDisk())
}

// TestSynchronize_Unchanged_NotInstalled_InvalidArtifact re-downloads when
// the reusable local artifact fails header validation.
func TestSynchronize_Unchanged_NotInstalled_InvalidArtifact(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.serveListing(testListing + "\n")
	f.serveArtifact([]byte("fresh bytes from upstream"))
	f.serveKey([]byte("KEY DATA"))
	f.scriptDeployTail()

	// Not a valid RPM, so validation must reject it.
	f.writeArtifact([]byte("corrupt local artifact"))
	f.writeSnapshot(testListing)

	f.r.state = localState{
		installed:   false,
		hasArtifact: true,
		hasSnapshot: true,
	}

	require.NoError(t, f.r.synchronize(context.Background()))

	// The stale copy was replaced before installing.
	require.Equal(t, []byte("fresh bytes from upstream"), f.artifactOnDisk())
	require.Equal(t, 1, f.exec.CountCalls("urpmi", "--auto", "--force", testPackage))
}
