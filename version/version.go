// Package version carries the relay's build version and descriptive text,
// used in log lines, the relay information document, and --help output.
package version

// V is the relay's version string, normally overridden at build time with
// -ldflags "-X brokerly.dev/version.V=...".
var V = "v0.1.0-dev"

// Description is the one-line summary shown in the relay information
// document and help text.
const Description = "a nostr-style event relay: persistent store, filtered subscriptions, broadcast fan-out"
