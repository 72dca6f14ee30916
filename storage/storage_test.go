package storage

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/zdao/zdao-node/db"
	"github.com/zdao/zdao-node/db/memdb"
	"github.com/zdao/zdao-node/types"
)

func newTestStorage(c *qt.C, ttl time.Duration) *Storage {
	database, err := memdb.New(db.Options{})
	c.Assert(err, qt.IsNil)
	return NewWithTTL(database, ttl)
}

func TestFingerprintOrderIndependent(t *testing.T) {
	c := qt.New(t)

	a := Fingerprint([]string{"0xAA", "0xbb"})
	b := Fingerprint([]string{"0xBB", "0xaa"})
	c.Assert(a, qt.Equals, b)

	other := Fingerprint([]string{"0xaa", "0xcc"})
	c.Assert(a, qt.Not(qt.Equals), other)

	single := Fingerprint([]string{"0xAA"})
	c.Assert(single, qt.Equals, Fingerprint([]string{"0xaa"}))
	c.Assert(single, qt.Not(qt.Equals), a)
}

func TestDecryptCacheRoundTrip(t *testing.T) {
	c := qt.New(t)
	st := newTestStorage(c, DefaultCacheTTL)
	defer func() { c.Assert(st.Close(), qt.IsNil) }()

	fp := Fingerprint([]string{"0xaa", "0xbb"})
	_, err := st.DecryptResult(fp)
	c.Assert(err, qt.Equals, ErrNotFound)

	result := &types.DecryptResult{
		ClearValues: map[string]uint64{"0xaa": 3, "0xbb": 1},
	}
	c.Assert(st.SetDecryptResult(fp, result), qt.IsNil)

	got, err := st.DecryptResult(fp)
	c.Assert(err, qt.IsNil)
	c.Assert(got.ClearValues, qt.DeepEquals, result.ClearValues)

	// A cold read (LRU bypassed) must hit the database copy.
	st.cache.Purge()
	got, err = st.DecryptResult(fp)
	c.Assert(err, qt.IsNil)
	c.Assert(got.ClearValues, qt.DeepEquals, result.ClearValues)
}

func TestDecryptCacheExpiry(t *testing.T) {
	c := qt.New(t)
	st := newTestStorage(c, time.Hour)

	now := time.Now()
	st.now = func() time.Time { return now }

	fp := Fingerprint([]string{"0x01"})
	c.Assert(st.SetDecryptResult(fp, &types.DecryptResult{
		ClearValues: map[string]uint64{"0x01": 7},
	}), qt.IsNil)

	_, err := st.DecryptResult(fp)
	c.Assert(err, qt.IsNil)

	st.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = st.DecryptResult(fp)
	c.Assert(err, qt.Equals, ErrNotFound)

	// Evicted on read, so a second lookup also misses.
	_, err = st.DecryptResult(fp)
	c.Assert(err, qt.Equals, ErrNotFound)
}

func TestPruneExpired(t *testing.T) {
	c := qt.New(t)
	st := newTestStorage(c, time.Hour)

	now := time.Now()
	st.now = func() time.Time { return now }

	old := Fingerprint([]string{"0x01"})
	c.Assert(st.SetDecryptResult(old, &types.DecryptResult{
		ClearValues: map[string]uint64{"0x01": 1},
	}), qt.IsNil)

	st.now = func() time.Time { return now.Add(30 * time.Minute) }
	fresh := Fingerprint([]string{"0x02"})
	c.Assert(st.SetDecryptResult(fresh, &types.DecryptResult{
		ClearValues: map[string]uint64{"0x02": 2},
	}), qt.IsNil)

	st.now = func() time.Time { return now.Add(90 * time.Minute) }
	n, err := st.PruneExpired()
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 1)

	_, err = st.DecryptResult(old)
	c.Assert(err, qt.Equals, ErrNotFound)
	_, err = st.DecryptResult(fresh)
	c.Assert(err, qt.IsNil)
}

func TestClearDecryptCache(t *testing.T) {
	c := qt.New(t)
	st := newTestStorage(c, DefaultCacheTTL)

	for _, h := range []string{"0x01", "0x02", "0x03"} {
		fp := Fingerprint([]string{h})
		c.Assert(st.SetDecryptResult(fp, &types.DecryptResult{
			ClearValues: map[string]uint64{h: 1},
		}), qt.IsNil)
	}
	c.Assert(st.ClearDecryptCache(), qt.IsNil)

	for _, h := range []string{"0x01", "0x02", "0x03"} {
		_, err := st.DecryptResult(Fingerprint([]string{h}))
		c.Assert(err, qt.Equals, ErrNotFound)
	}
}

func TestInFlightSet(t *testing.T) {
	c := qt.New(t)
	s := NewInFlightSet()

	c.Assert(s.TryAcquire(1), qt.IsTrue)
	c.Assert(s.TryAcquire(1), qt.IsFalse)
	c.Assert(s.Contains(1), qt.IsTrue)
	c.Assert(s.Len(), qt.Equals, 1)

	s.Release(1)
	c.Assert(s.Contains(1), qt.IsFalse)
	c.Assert(s.TryAcquire(1), qt.IsTrue)

	c.Assert(s.TryAcquire(2), qt.IsTrue)
	s.Clear()
	c.Assert(s.Len(), qt.Equals, 0)
	c.Assert(s.TryAcquire(2), qt.IsTrue)
}
