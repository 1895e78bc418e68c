// Package address builds and validates replication peer addresses.
//
// A peer is either a remote database reached over a WebSocket-style URL
// (schemes ws, wss, blip, blips) or another local database reached through
// the in-process loopback transport (scheme file).
//
// # Database Names
//
// Remote database names follow the legacy CouchDB naming rules so that
// peers built on those systems interoperate:
//
//   - 1 to 239 bytes
//   - first byte is a lowercase ASCII letter
//   - remaining bytes drawn from [a-z0-9_$()+-/]
//
// # URL Format
//
//	scheme://host[:port]/databaseName[/]
//
// The default port is 443 for secure schemes (wss, blips) and 80 otherwise.
package address
