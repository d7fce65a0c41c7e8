// Package sync implements the package-synchronization workflow.
//
// A run walks a fixed sequence: run-lock acquisition, platform validation,
// an advisory self-version check, local-state inspection, change detection
// and the resulting repository synchronization, key verification and
// installation. A small driver applies each step's declared severity, so
// recoverable failures warn and continue while platform mismatches and a
// corrupted signing key abort.
//
// Change detection is deliberately cheap: one saved line of the remote
// directory listing is compared byte-for-byte against a fresh fetch, and the
// artifact itself is only downloaded when that comparison (or its absence)
// demands it.
package sync
