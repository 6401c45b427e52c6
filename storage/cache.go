package storage

import (
	"context"
	"encoding/binary"
	"hash/crc32"
	"sync/atomic"

	"github.com/coocood/freecache"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/blockmodel"
)

const (
	// freecache splits its buffer into 256 segments and refuses an entry
	// larger than a quarter of a segment, less a 24 byte entry header.
	cacheSegments  = 256
	cacheEntryHdr  = 24
	minCacheBytes  = 512 * bgrid.Kilo
	chunkSuffixLen = 5 // 0 byte and big-endian chunk number
	cacheHeaderLen = 12
)

// CachedStore keeps recently read elements in a freecache so repeated reads
// skip the engine and decompression.  Writes and deletes invalidate.
//
// An encoded element is cached as a header entry under its name plus as many
// chunks as needed to keep every entry under freecache's size limit.  The
// header records the chunk count, total length and CRC32, and a read that
// finds a chunk missing or the checksum wrong counts as a miss.
type CachedStore struct {
	Store
	cache    *freecache.Cache
	maxEntry int // largest key plus value freecache accepts
	maxValue int // largest encoded element worth caching

	attempts uint64
	hits     uint64
}

// NewCachedStore wraps a store with a cache of about numBytes.
func NewCachedStore(s Store, numBytes int) *CachedStore {
	if numBytes < minCacheBytes {
		numBytes = minCacheBytes
	}
	cache := freecache.NewCache(numBytes)
	bgrid.Infof("Created freecache of %s for elements.\n", bgrid.HumanBytes(numBytes))
	return &CachedStore{
		Store:    s,
		cache:    cache,
		maxEntry: numBytes/cacheSegments/4 - cacheEntryHdr,
		maxValue: numBytes / 4,
	}
}

func chunkKey(name string, i int) []byte {
	key := make([]byte, len(name)+chunkSuffixLen)
	copy(key, name)
	binary.BigEndian.PutUint32(key[len(name)+1:], uint32(i))
	return key
}

// chunkSize returns the value bytes per chunk for the element name, or 0 if
// the name leaves no room.
func (c *CachedStore) chunkSize(name string) int {
	n := c.maxEntry - len(name) - chunkSuffixLen
	if n < 0 {
		return 0
	}
	return n
}

func (c *CachedStore) get(name string) ([]byte, bool) {
	hdr, err := c.cache.Get([]byte(name))
	if err != nil || len(hdr) != cacheHeaderLen {
		return nil, false
	}
	numChunks := int(binary.BigEndian.Uint32(hdr[0:4]))
	size := int(binary.BigEndian.Uint32(hdr[4:8]))
	crc := binary.BigEndian.Uint32(hdr[8:12])
	rec := make([]byte, 0, size)
	for i := 0; i < numChunks; i++ {
		chunk, err := c.cache.Get(chunkKey(name, i))
		if err != nil {
			return nil, false
		}
		rec = append(rec, chunk...)
	}
	if len(rec) != size || crc32.ChecksumIEEE(rec) != crc {
		return nil, false
	}
	return rec, true
}

func (c *CachedStore) set(name string, rec []byte) {
	chunk := c.chunkSize(name)
	if chunk == 0 || len(rec) > c.maxValue || len(name)+cacheHeaderLen > c.maxEntry {
		bgrid.Debugf("Not caching element %q (%s)\n", name, bgrid.HumanBytes(len(rec)))
		return
	}
	c.cache.Del([]byte(name))
	numChunks := 0
	for off := 0; off < len(rec); off += chunk {
		end := off + chunk
		if end > len(rec) {
			end = len(rec)
		}
		if err := c.cache.Set(chunkKey(name, numChunks), rec[off:end], 0); err != nil {
			bgrid.Debugf("Not caching element %q: %v\n", name, err)
			return
		}
		numChunks++
	}
	hdr := make([]byte, cacheHeaderLen)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(numChunks))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(rec)))
	binary.BigEndian.PutUint32(hdr[8:12], crc32.ChecksumIEEE(rec))
	if err := c.cache.Set([]byte(name), hdr, 0); err != nil {
		bgrid.Debugf("Not caching element %q: %v\n", name, err)
	}
}

func (c *CachedStore) GetElement(ctx context.Context, name string) (*blockmodel.Element, error) {
	atomic.AddUint64(&c.attempts, 1)
	if rec, found := c.get(name); found {
		el, err := unmarshalElement(rec)
		if err == nil {
			atomic.AddUint64(&c.hits, 1)
			return el, nil
		}
		bgrid.Warningf("Dropping undecodable cached element %q: %v\n", name, err)
		c.cache.Del([]byte(name))
	}

	el, err := c.Store.GetElement(ctx, name)
	if err != nil {
		return nil, err
	}
	rec, err := marshalElement(el)
	if err != nil {
		return nil, err
	}
	c.set(name, rec)
	return el, nil
}

func (c *CachedStore) PutElement(ctx context.Context, el *blockmodel.Element, overwrite bool) error {
	c.cache.Del([]byte(el.Name))
	return c.Store.PutElement(ctx, el, overwrite)
}

func (c *CachedStore) DeleteElement(ctx context.Context, name string) error {
	c.cache.Del([]byte(name))
	return c.Store.DeleteElement(ctx, name)
}

// Stats returns the number of reads and cache hits.
func (c *CachedStore) Stats() (attempts, hits uint64) {
	return atomic.LoadUint64(&c.attempts), atomic.LoadUint64(&c.hits)
}
