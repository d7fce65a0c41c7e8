// Package pkgmanager wraps the urpmi/rpm command-line stack with typed
// methods: query, install, uninstall, media management, index generation and
// key import.
//
// Exit-code policy stays with the caller: methods surface the subprocess
// Result instead of deciding what is fatal.
package pkgmanager
