// Package platform validates that pkgsync is running where it is supported
// and selects release-specific install flags.
//
// The tool targets a single distribution and architecture; anything else
// aborts before any network or package-manager activity. An unrecognized
// release version is tolerated with a warning so that a new distribution
// release does not brick the tool.
package platform
