// Package snapshot stores the remote directory-listing snapshot used for
// cheap change detection.
//
// The snapshot is one line of text describing the remote artifact. Comparing
// it byte-for-byte against a freshly fetched listing decides "changed" versus
// "unchanged" without downloading the artifact itself.
package snapshot
