package core

import "fmt"

// GroupLookup resolves a group reference to its tree, the way the real
// engine consults the TDB/cache; kept as an interface so auth.go has no
// storage dependency and is trivial to unit test.
type GroupLookup interface {
	Group(name Name128) (Group, error)
}

// Checker evaluates permission_defs against a signing key set, tracking
// exactly which keys contributed to a satisfied permission (the "minimal
// used key set" invariant).
type Checker struct {
	groups GroupLookup
	used   *KeySet
}

func NewChecker(groups GroupLookup) *Checker {
	return &Checker{groups: groups, used: NewKeySet()}
}

// UsedKeys returns exactly the keys that contributed to at least one
// successful permission check made through this Checker.
func (c *Checker) UsedKeys() []PublicKey { return c.used.Keys() }

// checkOwner evaluates the "owner" pseudo-group against a token's owner
// list: true iff every owner address appears (as a public-key address) in
// signingKeys, each counted with weight 1.
func (c *Checker) checkOwner(owners []Address, signingKeys *KeySet) bool {
	var satisfied []PublicKey
	for _, o := range owners {
		if o.Kind != AddressPublicKey || !signingKeys.Contains(o.PubKey) {
			return false
		}
		satisfied = append(satisfied, o.PubKey)
	}
	// Only commit to "used" once the whole owner set is confirmed present,
	// so a partially-matching but ultimately failed owner ref contributes
	// no keys: a key used solely to satisfy an authorization that later
	// fails does not count as used.
	for _, k := range satisfied {
		c.used.Add(k)
	}
	return true
}

// checkRef evaluates one AuthorizerRef, returning whether it is satisfied.
// Keys contributing to a satisfied ref are recorded into c.used; a failed
// ref records nothing.
func (c *Checker) checkRef(ref AuthorizerRef, owners []Address, signingKeys *KeySet) (bool, error) {
	switch ref.Kind {
	case AuthorizerOwner:
		return c.checkOwner(owners, signingKeys), nil
	case AuthorizerAccount:
		if signingKeys.Contains(ref.Account) {
			c.used.Add(ref.Account)
			return true, nil
		}
		return false, nil
	case AuthorizerGroup:
		if c.groups == nil {
			return false, fmt.Errorf("%w: group authorizer without a group lookup", ErrInvalidArgument)
		}
		g, err := c.groups.Group(ref.Group)
		if err != nil {
			return false, err
		}
		local := NewKeySet()
		ok := g.Satisfied(signingKeys, local)
		if ok {
			for _, k := range local.Keys() {
				c.used.Add(k)
			}
		}
		return ok, nil
	default:
		return false, fmt.Errorf("%w: unknown authorizer kind", ErrInvalidArgument)
	}
}

// Check evaluates perm against signingKeys (and, for the owner ref, owners)
// summing the weights of satisfied refs; authorized iff the sum meets
// perm.Threshold.
func (c *Checker) Check(perm PermissionDef, owners []Address, signingKeys *KeySet) error {
	// Stage the keys of satisfied refs and merge them into c.used only once
	// the whole permission passes, so a failed check records no keys.
	committed := c.used
	staged := NewKeySet()
	c.used = staged
	var sum uint32
	for _, wa := range perm.Authorizers {
		ok, err := c.checkRef(wa.Ref, owners, signingKeys)
		if err != nil {
			c.used = committed
			return err
		}
		if ok {
			sum += uint32(wa.Weight)
		}
	}
	c.used = committed
	if sum < perm.Threshold {
		return fmt.Errorf("%w: weight %d below threshold %d for permission %q", ErrUnsatisfiedAuth, sum, perm.Threshold, perm.Name)
	}
	for _, k := range staged.Keys() {
		c.used.Add(k)
	}
	return nil
}

// UnusedKeys reports which of signingKeys never contributed to any
// successful check made through this Checker, so callers can reject
// over-signed transactions.
func (c *Checker) UnusedKeys(signingKeys *KeySet) []PublicKey {
	var out []PublicKey
	for _, k := range signingKeys.Keys() {
		if !c.used.Contains(k) {
			out = append(out, k)
		}
	}
	return out
}
