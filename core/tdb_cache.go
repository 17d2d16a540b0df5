package core

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheKey mirrors tdbKey but stays string-comparable for use as an LRU key.
type cacheKey string

func tokenCacheKey(typ TokenType, domain, key Name128) cacheKey {
	return cacheKey(tdbKey{Type: typ, Domain: domain, Key: key}.bytes())
}

func assetCacheKey(addr Address, symID uint64) cacheKey {
	k := assetKey{Addr: string(addr.Bytes()), SymID: symID}
	return cacheKey(fmt.Sprintf("a:%s:%d", k.Addr, k.SymID))
}

// cacheEntry carries the deserialized value alongside a type tag so a
// mismatched read (wrong T requested for this key) is caught immediately
// rather than silently returning garbage.
type cacheEntry struct {
	typeTag string
	value   any
}

// Cache is a bounded LRU over (type, domain?, key) -> deserialized value,
// kept coherent with the TDB's rollback/remove signals.
// Backed by hashicorp/golang-lru/v2, a generic thread-safe LRU.
type Cache struct {
	mu    sync.Mutex
	inner *lru.Cache[cacheKey, *cacheEntry]
	db    *TDB
}

// DefaultCacheSize matches the order of magnitude of the original's
// newDiskLRU default (core/storage.go: defaultCacheEntries = 10_000).
const DefaultCacheSize = 10_000

func NewCache(db *TDB, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	inner, err := lru.New[cacheKey, *cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("token database cache: %w", err)
	}
	c := &Cache{inner: inner, db: db}
	db.Subscribe(c.onRollback, c.onRemove)
	return c, nil
}

func (c *Cache) onRollback(isAsset bool, key tdbKey, akey assetKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if isAsset {
		c.inner.Remove(cacheKey(fmt.Sprintf("a:%s:%d", akey.Addr, akey.SymID)))
	} else {
		c.inner.Remove(cacheKey(key.bytes()))
	}
}

func (c *Cache) onRemove(isAsset bool, key tdbKey, akey assetKey) {
	c.onRollback(isAsset, key, akey)
}

// PutToken writes through to the TDB then refreshes the cache entry.
func PutToken[T any](c *Cache, typ TokenType, op PutOp, domain, key Name128, val T, marshal func(T) ([]byte, error)) error {
	b, err := marshal(val)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBinary, err)
	}
	if err := c.db.PutToken(typ, op, domain, key, b); err != nil {
		return err
	}
	ck := tokenCacheKey(typ, domain, key)
	tag := typeTagOf[T]()
	c.mu.Lock()
	c.inner.Add(ck, &cacheEntry{typeTag: tag, value: val})
	c.mu.Unlock()
	return nil
}

// ReadToken returns a cached value if present (and type-matching), else
// deserializes from the TDB and populates the cache. A stored entry under
// a different T is fatal, matching the original's
// token_database_cache_exception.
func ReadToken[T any](c *Cache, typ TokenType, domain, key Name128, unmarshal func([]byte) (T, error)) (T, error) {
	var zero T
	ck := tokenCacheKey(typ, domain, key)
	tag := typeTagOf[T]()

	c.mu.Lock()
	if ent, ok := c.inner.Get(ck); ok {
		c.mu.Unlock()
		if ent.typeTag != tag {
			return zero, fmt.Errorf("%w: cached as %s, requested as %s", ErrCacheTypeMismatch, ent.typeTag, tag)
		}
		return ent.value.(T), nil
	}
	c.mu.Unlock()

	b, err := c.db.ReadToken(typ, domain, key, false)
	if err != nil {
		return zero, err
	}
	val, err := unmarshal(b)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidBinary, err)
	}
	c.mu.Lock()
	c.inner.Add(ck, &cacheEntry{typeTag: tag, value: val})
	c.mu.Unlock()
	return val, nil
}

func typeTagOf[T any]() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

// Evict drops a key from the cache without touching the TDB — used by
// callers that delete a key outside of a rollback (e.g. lock/suspend
// terminal transitions that replace a record wholesale).
func (c *Cache) Evict(typ TokenType, domain, key Name128) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(tokenCacheKey(typ, domain, key))
}
