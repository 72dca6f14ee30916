// Package db defines the key-value database interface used by the engine's
// persistent caches. Implementations must be safe for concurrent use.
package db

import "errors"

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// Options contains the configuration for opening a database.
type Options struct {
	Path string
}

// Database is a minimal key-value store. Writes for the same key are
// last-write-wins; no transactional semantics are required by the engine.
type Database interface {
	// Get returns the value for the given key, or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)
	// Set stores the value under the given key, overwriting any previous
	// value.
	Set(key, value []byte) error
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(key []byte) error
	// Iterate calls the callback for every key with the given prefix, in
	// undefined order, until the callback returns false. The key passed to
	// the callback has the prefix stripped and is only valid during the
	// call.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
	// Close releases the database resources.
	Close() error
}
