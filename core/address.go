package core

import (
	"encoding/binary"
	"fmt"
)

// AddressKind discriminates the Address tagged union. The discriminant is
// serialized as the first byte of Bytes(); the encoded length depends on
// the kind: 34 bytes for reserved and public-key addresses, 37 for
// generated ones.
type AddressKind uint8

const (
	AddressReserved AddressKind = iota
	AddressPublicKey
	AddressGenerated
)

// Address is a tagged union of {reserved, public_key(pubkey), generated(prefix,nonce,key)}.
// Only the fields relevant to Kind are meaningful.
type Address struct {
	Kind   AddressKind
	PubKey PublicKey // AddressPublicKey
	Prefix Name128   // AddressGenerated
	Nonce  uint32    // AddressGenerated
	GenKey Name128   // AddressGenerated
}

// ReservedAddress is the all-zero address used as a burn sink.
var ReservedAddress = Address{Kind: AddressReserved}

func NewPublicKeyAddress(pk PublicKey) Address {
	return Address{Kind: AddressPublicKey, PubKey: pk}
}

// NewGeneratedAddress builds a system-owned principal such as
// `.domain:<name>`, `.fungible:<sym_id>`, `.lock:<name>:0`, `.psvbonus:<sym_id>:<round>`.
func NewGeneratedAddress(prefix string, key string, nonce uint32) (Address, error) {
	p, err := ParseName128(prefix)
	if err != nil {
		return Address{}, fmt.Errorf("generated address prefix: %w", err)
	}
	k, err := ParseName128(key)
	if err != nil {
		return Address{}, fmt.Errorf("generated address key: %w", err)
	}
	return Address{Kind: AddressGenerated, Prefix: p, Nonce: nonce, GenKey: k}, nil
}

func (a Address) IsReserved() bool { return a.Kind == AddressReserved }

func (a Address) String() string {
	switch a.Kind {
	case AddressReserved:
		return "EVT00000000000000000000000000000000000000000000000000"
	case AddressPublicKey:
		return a.PubKey.String()
	case AddressGenerated:
		return fmt.Sprintf(".%s:%s:%d", a.Prefix.String(), a.GenKey.String(), a.Nonce)
	default:
		return "<invalid-address>"
	}
}

func (a Address) Equal(b Address) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case AddressReserved:
		return true
	case AddressPublicKey:
		return a.PubKey.Equal(b.PubKey)
	case AddressGenerated:
		return a.Prefix == b.Prefix && a.Nonce == b.Nonce && a.GenKey == b.GenKey
	}
	return false
}

// Bytes returns a stable binary encoding suitable for use as a TDB asset key.
func (a Address) Bytes() []byte {
	buf := make([]byte, 0, 38)
	buf = append(buf, byte(a.Kind))
	switch a.Kind {
	case AddressReserved:
		buf = append(buf, make([]byte, 33)...)
	case AddressPublicKey:
		buf = append(buf, a.PubKey.Compressed()...)
	case AddressGenerated:
		buf = append(buf, a.Prefix.Bytes()...)
		nb := make([]byte, 4)
		binary.BigEndian.PutUint32(nb, a.Nonce)
		buf = append(buf, nb...)
		buf = append(buf, a.GenKey.Bytes()...)
	}
	return buf
}

// AddressFromBytes decodes the encoding produced by Address.Bytes.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) == 0 {
		return Address{}, fmt.Errorf("%w: empty address bytes", ErrInvalidArgument)
	}
	kind := AddressKind(b[0])
	rest := b[1:]
	switch kind {
	case AddressReserved:
		return ReservedAddress, nil
	case AddressPublicKey:
		pk, err := ParsePublicKey(rest)
		if err != nil {
			return Address{}, err
		}
		return Address{Kind: AddressPublicKey, PubKey: pk}, nil
	case AddressGenerated:
		if len(rest) != 16+4+16 {
			return Address{}, fmt.Errorf("%w: malformed generated address bytes", ErrInvalidArgument)
		}
		var prefix, key Name128
		copy(prefix[:], rest[:16])
		nonce := binary.BigEndian.Uint32(rest[16:20])
		copy(key[:], rest[20:36])
		return Address{Kind: AddressGenerated, Prefix: prefix, Nonce: nonce, GenKey: key}, nil
	default:
		return Address{}, fmt.Errorf("%w: unknown address kind %d", ErrInvalidArgument, kind)
	}
}

// FungibleSinkAddress, LockAddress and PsvBonusAddress build well-known
// system addresses by convention.
func FungibleSinkAddress(symID uint64) Address {
	a, err := NewGeneratedAddress("fungible", fmt.Sprintf("%d", symID), 0)
	if err != nil {
		panic(err)
	}
	return a
}

func LockAddress(proposalName Name128) Address {
	prefix, err := ParseName128("lock")
	if err != nil {
		panic(err)
	}
	return Address{Kind: AddressGenerated, Prefix: prefix, GenKey: proposalName}
}

func PsvBonusAddress(symID uint64, round uint32) Address {
	a, err := NewGeneratedAddress("psvbonus", fmt.Sprintf("%d", symID), round)
	if err != nil {
		panic(err)
	}
	return a
}
