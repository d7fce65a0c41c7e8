// Package version exposes pkgsync build metadata.
//
// Version, Commit and BuildTime are injected through ldflags by the release
// build and fall back to placeholder values for local builds. Short and Full
// render them for CLI output and logs.
package version
