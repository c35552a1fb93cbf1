// Package storage persists the identifiers of delivered transactions.
//
// Identifiers are namespaced by source (normally the receiver module name) so a
// receiver can reload everything it has delivered before on startup. The store
// only grows: there is no delete or update path.
//
// Drivers: memory, file (JSON-lines journal + snapshot), sqlite, redis.
package storage
