/*
Package storage provides the engine's persistent local state.

The key-value database is organized with prefixed namespaces:

  - dc/ : fingerprint → decryption cache entry (canonical decrypt result
    plus creation timestamp, pruned lazily after the TTL)

The decryption cache is keyed by a canonical, order-independent fingerprint
of the encrypted handle set being decrypted, so that repeated reveals of the
same proposal within the TTL never hit the relayer twice. A small LRU keeps
hot entries in memory in front of the database.
*/
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/zdao/zdao-node/db"
	"github.com/zdao/zdao-node/log"
	"github.com/zdao/zdao-node/types"
)

// DefaultCacheTTL is how long a decryption cache entry stays valid.
const DefaultCacheTTL = 24 * time.Hour

const cacheLRUSize = 512

var decryptCachePrefix = []byte("dc/")

// ErrNotFound is returned when an artifact is not in storage (or expired).
var ErrNotFound = errors.New("not found")

// cacheEntry is the on-disk form of a cached decryption result.
type cacheEntry struct {
	Result    types.DecryptResult `cbor:"1,keyasint"`
	CreatedAt int64               `cbor:"2,keyasint"`
}

// Storage manages the engine's local persistent state.
type Storage struct {
	db    db.Database
	ttl   time.Duration
	cache *lru.Cache[string, *cacheEntry]
	now   func() time.Time
}

// New creates a Storage on top of the given database with the default TTL.
func New(database db.Database) *Storage {
	return NewWithTTL(database, DefaultCacheTTL)
}

// NewWithTTL creates a Storage with a custom decryption cache TTL.
func NewWithTTL(database db.Database, ttl time.Duration) *Storage {
	cache, err := lru.New[string, *cacheEntry](cacheLRUSize)
	if err != nil {
		log.Fatalf("failed to create LRU cache: %v", err)
	}
	return &Storage{
		db:    database,
		ttl:   ttl,
		cache: cache,
		now:   time.Now,
	}
}

// Close closes the underlying database.
func (s *Storage) Close() error {
	s.cache.Purge()
	return s.db.Close()
}

// Fingerprint computes the canonical, order-independent cache key for a set
// of encrypted handles. Handles are lowercased and sorted before hashing, so
// the same set always yields the same fingerprint regardless of order.
func Fingerprint(handles []string) string {
	sorted := make([]string, len(handles))
	for i, h := range handles {
		sorted[i] = strings.ToLower(h)
	}
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:])
}

// DecryptResult returns the cached canonical result for the given
// fingerprint, or ErrNotFound. Expired entries are evicted on read.
func (s *Storage) DecryptResult(fingerprint string) (*types.DecryptResult, error) {
	if ent, ok := s.cache.Get(fingerprint); ok {
		if s.expired(ent) {
			s.evict(fingerprint)
			return nil, ErrNotFound
		}
		return &ent.Result, nil
	}

	data, err := s.db.Get(cacheKey(fingerprint))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read decrypt cache: %w", err)
	}
	ent := new(cacheEntry)
	if err := DecodeArtifact(data, ent); err != nil {
		// A corrupt entry is dropped, not surfaced.
		log.Warnw("dropping corrupt decrypt cache entry", "fingerprint", fingerprint, "error", err.Error())
		s.evict(fingerprint)
		return nil, ErrNotFound
	}
	if s.expired(ent) {
		s.evict(fingerprint)
		return nil, ErrNotFound
	}
	s.cache.Add(fingerprint, ent)
	return &ent.Result, nil
}

// SetDecryptResult stores the canonical result under the given fingerprint.
// Concurrent writers for the same fingerprint are idempotent (last write
// wins, values are identical by construction).
func (s *Storage) SetDecryptResult(fingerprint string, result *types.DecryptResult) error {
	ent := &cacheEntry{
		Result:    *result,
		CreatedAt: s.now().Unix(),
	}
	data, err := EncodeArtifact(ent)
	if err != nil {
		return fmt.Errorf("encode decrypt cache entry: %w", err)
	}
	if err := s.db.Set(cacheKey(fingerprint), data); err != nil {
		return fmt.Errorf("write decrypt cache: %w", err)
	}
	s.cache.Add(fingerprint, ent)
	return nil
}

// PruneExpired removes every expired decryption cache entry from the
// database. Corrupt entries are removed as well. Returns the number of
// entries pruned.
func (s *Storage) PruneExpired() (int, error) {
	var stale []string
	err := s.db.Iterate(decryptCachePrefix, func(key, value []byte) bool {
		ent := new(cacheEntry)
		if err := DecodeArtifact(value, ent); err != nil || s.expired(ent) {
			stale = append(stale, string(key))
		}
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("iterate decrypt cache: %w", err)
	}
	for _, fp := range stale {
		s.evict(fp)
	}
	return len(stale), nil
}

// ClearDecryptCache removes every decryption cache entry.
func (s *Storage) ClearDecryptCache() error {
	var all []string
	err := s.db.Iterate(decryptCachePrefix, func(key, _ []byte) bool {
		all = append(all, string(key))
		return true
	})
	if err != nil {
		return fmt.Errorf("iterate decrypt cache: %w", err)
	}
	for _, fp := range all {
		s.evict(fp)
	}
	return nil
}

func (s *Storage) expired(ent *cacheEntry) bool {
	return s.now().Sub(time.Unix(ent.CreatedAt, 0)) > s.ttl
}

func (s *Storage) evict(fingerprint string) {
	s.cache.Remove(fingerprint)
	if err := s.db.Delete(cacheKey(fingerprint)); err != nil {
		log.Warnw("failed to delete decrypt cache entry", "fingerprint", fingerprint, "error", err.Error())
	}
}

func cacheKey(fingerprint string) []byte {
	return append(decryptCachePrefix, []byte(fingerprint)...)
}
