// Package fetch is the HTTP layer of pkgsync.
//
// A single Client handles every remote read the tool performs: directory
// listings, artifact downloads, the vendor signing key and the self-version
// check. Requests retry transient failures with backoff; large downloads are
// written atomically and can render a progress bar.
package fetch
