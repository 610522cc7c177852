// Package cache implements the local persistent key/value store that holds
// the last known user record and the legacy bearer token.
//
// Backends:
//   - FileStore: a JSON document on local disk (default)
//   - PostgresStore: a key/value table shared between processes
//   - MemoryStore: process-local, used by tests and ephemeral sessions
package cache
