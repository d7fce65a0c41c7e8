// Package selfupdate keeps the tool itself current.
//
// During a normal sync run the check is advisory only: it compares the
// running binary against the published release and warns on a difference.
// Replacement happens solely through the explicit `self-update` subcommand,
// which applies the new binary atomically after verifying its detached
// SHA-256 checksum.
package selfupdate
