package damage

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto/v2"
)

// deltaCacheFrames is K in "track up to K=5 recent frames keyed by a
// 64-bit hash" (§4.6).
const deltaCacheFrames = 5

// ContentCache is a shared, content-addressed store of recently
// transmitted frames, keyed by a 64-bit hash of their bytes (§4.6). It
// backs every surface's SurfaceDeltaTracker; ristretto (the teacher's
// cache library) gives it bounded memory with admission-aware eviction.
type ContentCache struct {
	frames *ristretto.Cache[uint64, []byte]
}

// NewContentCache builds a cache with the given approximate byte budget.
func NewContentCache(maxCostBytes int64) (*ContentCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: maxCostBytes / 64, // ~64 bytes per tracked key, ristretto's own rule of thumb
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ContentCache{frames: c}, nil
}

func (c *ContentCache) store(hash uint64, frame []byte) {
	c.frames.Set(hash, frame, int64(len(frame)))
}

func (c *ContentCache) lookup(hash uint64) ([]byte, bool) {
	return c.frames.Get(hash)
}

// SurfaceDeltaTracker keeps the last K frame hashes for one surface, in
// recency order, so Consider can find a recent frame to delta against.
type SurfaceDeltaTracker struct {
	mu     sync.Mutex
	hashes []uint64
	k      int
	cache  *ContentCache
}

// NewSurfaceDeltaTracker builds a tracker over the shared cache.
func NewSurfaceDeltaTracker(cache *ContentCache) *SurfaceDeltaTracker {
	return &SurfaceDeltaTracker{k: deltaCacheFrames, cache: cache}
}

// Consider hashes frame, looks for a same-length recent frame to delta
// against, and records frame as the most recent. It returns the
// candidate frame to XOR against and true if one was found.
func (t *SurfaceDeltaTracker) Consider(frame []byte) (candidate []byte, hash uint64, found bool) {
	hash = xxhash.Sum64(frame)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, h := range t.hashes {
		if h == hash {
			continue
		}
		if f, ok := t.cache.lookup(h); ok && len(f) == len(frame) {
			candidate, found = f, true
			break
		}
	}

	t.cache.store(hash, frame)
	t.hashes = append(t.hashes, hash)
	if len(t.hashes) > t.k {
		t.hashes = t.hashes[len(t.hashes)-t.k:]
	}
	return candidate, hash, found
}

// XORDelta computes the byte-wise XOR of two equal-length frames. The
// caller (encoder dispatch) only uses this when the client declared
// delta support for the chosen encoder (§4.6).
func XORDelta(base, next []byte) []byte {
	if len(base) != len(next) {
		return nil
	}
	out := make([]byte, len(next))
	for i := range next {
		out[i] = next[i] ^ base[i]
	}
	return out
}
