// Package naming decodes the <id>--<protocol>--<timestamp> base names the
// converter emits into raw subject, session, protocol, and acquisition time.
//
// Decoding is a pure parse; identity correction happens in the identity
// package.
package naming
