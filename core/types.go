package core

import (
	"fmt"
	"time"
)

// AuthorizerRefKind discriminates AuthorizerRef.
type AuthorizerRefKind uint8

const (
	AuthorizerOwner AuthorizerRefKind = iota
	AuthorizerAccount
	AuthorizerGroup
)

// AuthorizerRef is one of {owner, account(pubkey), group(name128)}.
type AuthorizerRef struct {
	Kind    AuthorizerRefKind
	Account PublicKey
	Group   Name128
}

func OwnerRef() AuthorizerRef { return AuthorizerRef{Kind: AuthorizerOwner} }
func AccountRef(pk PublicKey) AuthorizerRef {
	return AuthorizerRef{Kind: AuthorizerAccount, Account: pk}
}
func GroupRef(name Name128) AuthorizerRef {
	return AuthorizerRef{Kind: AuthorizerGroup, Group: name}
}

func (r AuthorizerRef) Equal(o AuthorizerRef) bool {
	if r.Kind != o.Kind {
		return false
	}
	switch r.Kind {
	case AuthorizerOwner:
		return true
	case AuthorizerAccount:
		return r.Account.Equal(o.Account)
	case AuthorizerGroup:
		return r.Group == o.Group
	}
	return false
}

// WeightedAuthorizer is one (ref, weight) pair inside a PermissionDef.
type WeightedAuthorizer struct {
	Ref    AuthorizerRef
	Weight uint16
}

// PermissionDef is (name, threshold, authorizers[]).
type PermissionDef struct {
	Name        string
	Threshold   uint32
	Authorizers []WeightedAuthorizer
}

// Validate enforces permission_def invariants: threshold>0 for issue/transfer
// (the caller indicates this via requirePositiveThreshold), distinct refs, and
// sum-of-weights >= threshold unless threshold==0.
func (p PermissionDef) Validate(requirePositiveThreshold bool) error {
	if requirePositiveThreshold && p.Threshold == 0 {
		return fmt.Errorf("%w: permission %q requires threshold>0", ErrPermissionType, p.Name)
	}
	seen := make([]AuthorizerRef, 0, len(p.Authorizers))
	var sum uint32
	for _, wa := range p.Authorizers {
		for _, s := range seen {
			if s.Equal(wa.Ref) {
				return fmt.Errorf("%w: permission %q has duplicate authorizer", ErrPermissionType, p.Name)
			}
		}
		seen = append(seen, wa.Ref)
		sum += uint32(wa.Weight)
	}
	if p.Threshold != 0 && sum < p.Threshold {
		return fmt.Errorf("%w: permission %q authorizer weights %d below threshold %d", ErrPermissionType, p.Name, sum, p.Threshold)
	}
	return nil
}

// MetaEntry is one (key, value, creator) metadata record.
type MetaEntry struct {
	Key     string
	Value   string
	Creator AuthorizerRef
}

// DomainDef is the principal record for an NFT namespace.
type DomainDef struct {
	Name       Name128
	Creator    PublicKey
	CreateTime time.Time
	Issue      PermissionDef
	Transfer   PermissionDef
	Manage     PermissionDef
	Metas      []MetaEntry
}

// TokenDef is one NFT: (domain, name, owner[], metas).
type TokenDef struct {
	Domain Name128
	Name   Name128
	Owner  []Address
	Metas  []MetaEntry
}

// Destroyed reports whether owner == [reserved].
func (t TokenDef) Destroyed() bool {
	return len(t.Owner) == 1 && t.Owner[0].IsReserved()
}

// Locked reports whether the token is held by a single `.lock:*` generated address.
func (t TokenDef) Locked() bool {
	if len(t.Owner) != 1 {
		return false
	}
	o := t.Owner[0]
	return o.Kind == AddressGenerated && o.Prefix.String() == "lock"
}

// FungibleDef is the principal record for a divisible asset class.
type FungibleDef struct {
	Name        Name128
	SymName     string
	Sym         Symbol
	Creator     PublicKey
	CreateTime  time.Time
	Issue       PermissionDef
	Transfer    PermissionDef
	Manage      PermissionDef
	TotalSupply Asset
	Metas       []MetaEntry
}

// SinkAddress is the distinguished holder for mint/recycle.
func (f FungibleDef) SinkAddress() Address { return FungibleSinkAddress(f.Sym.ID()) }

// Property is a balance record keyed by (address, sym_id).
type Property struct {
	Amount       int64
	FrozenAmount int64
	Sym          Symbol
	CreatedAt    time.Time
	CreatedIndex uint64
}

func (p Property) Asset() Asset { return Asset{Amount: p.Amount, Sym: p.Sym} }

// SuspendStatus enumerates a suspend proposal's lifecycle.
type SuspendStatus uint8

const (
	SuspendProposed SuspendStatus = iota
	SuspendExecuted
	SuspendFailed
	SuspendCancelled
)

// SuspendDef is a proposed transaction awaiting threshold signatures.
type SuspendDef struct {
	Name       Name128
	Proposer   PublicKey
	Status     SuspendStatus
	Trx        PackedTransaction
	SignedKeys []PublicKey
	Signatures []Signature
}

// LockStatus enumerates a lock proposal's lifecycle.
type LockStatus uint8

const (
	LockProposed LockStatus = iota
	LockSucceed
	LockFailed
)

// LockCondition is the (currently sole) condition kind: a weighted set of
// keys required to vote "succeed" before unlock_time/deadline expire it.
type LockCondition struct {
	Threshold uint32
	CondKeys  []PublicKey
}

func (c LockCondition) Validate() error {
	if c.Threshold == 0 {
		return fmt.Errorf("%w: lock condition threshold must be >0", ErrInvalidArgument)
	}
	if uint32(len(c.CondKeys)) < c.Threshold {
		return fmt.Errorf("%w: lock condition has fewer keys (%d) than threshold (%d)", ErrInvalidArgument, len(c.CondKeys), c.Threshold)
	}
	return nil
}

// Satisfied reports whether enough of CondKeys appear in signedKeys.
func (c LockCondition) Satisfied(signedKeys *KeySet) bool {
	var n uint32
	for _, k := range c.CondKeys {
		if signedKeys.Contains(k) {
			n++
		}
	}
	return n >= c.Threshold
}

// LockAssetKind discriminates a locked asset.
type LockAssetKind uint8

const (
	LockAssetNFT LockAssetKind = iota
	LockAssetFT
)

type LockAsset struct {
	Kind   LockAssetKind
	Domain Name128 // NFT
	Names  []Name128
	FT     Asset   // FT
	From   Address // FT: holder the locked balance is debited from
}

// LockDef is an escrow proposal.
type LockDef struct {
	Name       Name128
	Proposer   PublicKey
	Status     LockStatus
	UnlockTime time.Time
	Deadline   time.Time
	Assets     []LockAsset
	Condition  LockCondition
	Succeed    []Address
	Failed     []Address
	SignedKeys []PublicKey
}

// JmzkLinkObject records a finalized link so duplicate insertions fail.
type JmzkLinkObject struct {
	LinkID   [16]byte
	BlockNum uint32
	TrxID    Digest
}
