// Package memdb implements an ephemeral in-memory db.Database, mainly for
// tests.
package memdb

import (
	"bytes"
	"sync"

	"github.com/zdao/zdao-node/db"
)

// MemDB is a map-backed db.Database.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ db.Database = (*MemDB)(nil)

// New returns a new in-memory database. Options are ignored.
func New(_ db.Options) (*MemDB, error) {
	return &MemDB{data: make(map[string][]byte)}, nil
}

func (d *MemDB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	value, ok := d.data[string(key)]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(value), nil
}

func (d *MemDB) Set(key, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[string(key)] = bytes.Clone(value)
	return nil
}

func (d *MemDB) Delete(key []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.data, string(key))
	return nil
}

func (d *MemDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	d.mu.RLock()
	entries := make(map[string][]byte)
	for k, v := range d.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			entries[k] = bytes.Clone(v)
		}
	}
	d.mu.RUnlock()
	for k, v := range entries {
		if !callback([]byte(k)[len(prefix):], v) {
			break
		}
	}
	return nil
}

func (d *MemDB) Close() error {
	return nil
}
