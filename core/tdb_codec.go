package core

import (
	"encoding/json"
	"fmt"
)

// marshalJSON/unmarshalJSON are the TDB's on-disk encoding for every
// record type below. The ABI serializer (C9) already treats canonical
// JSON as this repo's "binary" contract (see abi.go); reusing it here
// keeps one encoding story for the whole core instead of a second
// bespoke binary codec.
func marshalJSON[T any](v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBinary, err)
	}
	return b, nil
}

func unmarshalJSON[T any](b []byte) (T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrInvalidBinary, err)
	}
	return v, nil
}

func PutDomain(c *Cache, op PutOp, d DomainDef) error {
	var zero Name128
	return PutToken(c, TokenTypeDomain, op, zero, d.Name, d, marshalJSON[DomainDef])
}
func GetDomain(c *Cache, name Name128) (DomainDef, error) {
	var zero Name128
	return ReadToken(c, TokenTypeDomain, zero, name, unmarshalJSON[DomainDef])
}

func PutTokenDef(c *Cache, op PutOp, t TokenDef) error {
	return PutToken(c, TokenTypeToken, op, t.Domain, t.Name, t, marshalJSON[TokenDef])
}
func GetTokenDef(c *Cache, domain, name Name128) (TokenDef, error) {
	return ReadToken(c, TokenTypeToken, domain, name, unmarshalJSON[TokenDef])
}

// CacheGroupLookup adapts a Cache into the GroupLookup interface the
// authorization engine (C8) needs, without tying auth.go to storage.
type CacheGroupLookup struct{ Cache *Cache }

func (l CacheGroupLookup) Group(name Name128) (Group, error) { return GetGroup(l.Cache, name) }

func PutGroup(c *Cache, op PutOp, g Group) error {
	var zero Name128
	return PutToken(c, TokenTypeGroup, op, zero, g.Name, g, marshalJSON[Group])
}
func GetGroup(c *Cache, name Name128) (Group, error) {
	var zero Name128
	return ReadToken(c, TokenTypeGroup, zero, name, unmarshalJSON[Group])
}

func PutFungible(c *Cache, op PutOp, f FungibleDef) error {
	var zero Name128
	return PutToken(c, TokenTypeFungible, op, zero, symKey(f.Sym.ID()), f, marshalJSON[FungibleDef])
}
func GetFungible(c *Cache, symID uint64) (FungibleDef, error) {
	var zero Name128
	return ReadToken(c, TokenTypeFungible, zero, symKey(symID), unmarshalJSON[FungibleDef])
}

// symKey packs a symbol id into a name128-shaped key (decimal digits are
// within the name128 alphabet) so fungible records share the token
// namespace's key type.
func symKey(symID uint64) Name128 {
	n, err := ParseName128(fmt.Sprintf("%d", symID))
	if err != nil {
		panic(err)
	}
	return n
}

func PutSuspend(c *Cache, op PutOp, s SuspendDef) error {
	var zero Name128
	return PutToken(c, TokenTypeSuspend, op, zero, s.Name, s, marshalJSON[SuspendDef])
}
func GetSuspend(c *Cache, name Name128) (SuspendDef, error) {
	var zero Name128
	return ReadToken(c, TokenTypeSuspend, zero, name, unmarshalJSON[SuspendDef])
}

func PutLock(c *Cache, op PutOp, l LockDef) error {
	var zero Name128
	return PutToken(c, TokenTypeLock, op, zero, l.Name, l, marshalJSON[LockDef])
}
func GetLock(c *Cache, name Name128) (LockDef, error) {
	var zero Name128
	return ReadToken(c, TokenTypeLock, zero, name, unmarshalJSON[LockDef])
}

func PutProperty(c *Cache, addr Address, sym Symbol, p Property) error {
	b, err := marshalJSON(p)
	if err != nil {
		return err
	}
	if err := c.db.PutAsset(addr, sym.ID(), b); err != nil {
		return err
	}
	ck := assetCacheKey(addr, sym.ID())
	tag := typeTagOf[Property]()
	c.mu.Lock()
	c.inner.Add(ck, &cacheEntry{typeTag: tag, value: p})
	c.mu.Unlock()
	return nil
}

func GetProperty(c *Cache, addr Address, sym Symbol) (Property, error) {
	ck := assetCacheKey(addr, sym.ID())
	tag := typeTagOf[Property]()
	c.mu.Lock()
	if ent, ok := c.inner.Get(ck); ok {
		c.mu.Unlock()
		if ent.typeTag != tag {
			return Property{}, ErrCacheTypeMismatch
		}
		return ent.value.(Property), nil
	}
	c.mu.Unlock()
	b, err := c.db.ReadAsset(addr, sym.ID(), true)
	if err != nil {
		return Property{}, err
	}
	if b == nil {
		return Property{Sym: sym}, nil // zero balance, not an error
	}
	p, err := unmarshalJSON[Property](b)
	if err != nil {
		return Property{}, err
	}
	c.mu.Lock()
	c.inner.Add(ck, &cacheEntry{typeTag: tag, value: p})
	c.mu.Unlock()
	return p, nil
}
