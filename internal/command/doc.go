// Package command wraps subprocess execution behind a small Runner interface.
//
// Every external tool pkgsync talks to (urpmi, rpm, urpmq, genhdlist2) is
// invoked through a Runner with an explicit argument list. Services accept
// the interface, so tests substitute a scripted fake instead of spawning
// processes.
package command
