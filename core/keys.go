package core

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"

	decredec "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
)

// PublicKey wraps a compressed secp256k1 point, parsed through decred's
// dcrec so malformed curve points are rejected before we ever hand them to
// go-ethereum/crypto.
type PublicKey struct {
	pub *ecdsa.PublicKey
}

// PrivateKey wraps a secp256k1 scalar used to produce recoverable
// signatures via go-ethereum/crypto, the same library an ECRECOVER opcode
// or address-from-pubkey recovery would be built on.
type PrivateKey struct {
	priv *ecdsa.PrivateKey
}

// Digest is a 32-byte SHA-256 hash.
type Digest [32]byte

func Sha256(b []byte) Digest { return sha256.Sum256(b) }

// GeneratePrivateKey creates a fresh secp256k1 keypair.
func GeneratePrivateKey() (PrivateKey, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return PrivateKey{}, fmt.Errorf("generate key: %w", err)
	}
	return PrivateKey{priv: priv}, nil
}

// ParsePublicKey validates and parses a compressed secp256k1 public key.
func ParsePublicKey(compressed []byte) (PublicKey, error) {
	pk, err := decredec.ParsePubKey(compressed)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return PublicKey{pub: pk.ToECDSA()}, nil
}

// ParsePublicKeyString parses the "PUB_K1_<base58>" wire form produced by
// PublicKey.String.
func ParsePublicKeyString(s string) (PublicKey, error) {
	const prefix = "PUB_K1_"
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return PublicKey{}, fmt.Errorf("%w: missing %q prefix", ErrInvalidArgument, prefix)
	}
	b, err := base58.Decode(s[len(prefix):])
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return ParsePublicKey(b)
}

func (k PrivateKey) Public() PublicKey { return PublicKey{pub: &k.priv.PublicKey} }

// String encodes the raw 32-byte scalar as "PVT_K1_<base58>", the private
// counterpart to PublicKey.String's wire form.
func (k PrivateKey) String() string {
	return "PVT_K1_" + base58.Encode(crypto.FromECDSA(k.priv))
}

// ParsePrivateKeyString parses the "PVT_K1_<base58>" wire form produced by
// PrivateKey.String.
func ParsePrivateKeyString(s string) (PrivateKey, error) {
	const prefix = "PVT_K1_"
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return PrivateKey{}, fmt.Errorf("%w: missing %q prefix", ErrInvalidArgument, prefix)
	}
	b, err := base58.Decode(s[len(prefix):])
	if err != nil {
		return PrivateKey{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	priv, err := crypto.ToECDSA(b)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return PrivateKey{priv: priv}, nil
}

// Sign produces a 65-byte recoverable signature (r || s || v) over digest,
// the exact layout the jmzk-Link codec concatenates signatures in.
func (k PrivateKey) Sign(d Digest) (Signature, error) {
	sig, err := crypto.Sign(d[:], k.priv)
	if err != nil {
		return Signature{}, fmt.Errorf("sign: %w", err)
	}
	var out Signature
	copy(out[:], sig)
	return out, nil
}

// Signature is a 65-byte recoverable ECDSA signature (r || s || v).
type Signature [65]byte

// RecoverPublicKey recovers the signer's public key from sig over digest.
func (sig Signature) RecoverPublicKey(d Digest) (PublicKey, error) {
	pub, err := crypto.SigToPub(d[:], sig[:])
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: recover: %v", ErrInvalidArgument, err)
	}
	return PublicKey{pub: pub}, nil
}

func (k PublicKey) Compressed() []byte {
	return decredec.NewPublicKey(k.pub.X, k.pub.Y).SerializeCompressed()
}

func (k PublicKey) String() string {
	return "PUB_K1_" + base58.Encode(k.Compressed())
}

func (k PublicKey) Equal(other PublicKey) bool {
	if k.pub == nil || other.pub == nil {
		return k.pub == other.pub
	}
	return k.pub.X.Cmp(other.pub.X) == 0 && k.pub.Y.Cmp(other.pub.Y) == 0
}

// KeySet is a small helper over a set of recovered signing keys, keyed by
// their compressed wire form for O(1) membership checks.
type KeySet struct {
	m map[string]PublicKey
}

func NewKeySet(keys ...PublicKey) *KeySet {
	ks := &KeySet{m: make(map[string]PublicKey, len(keys))}
	for _, k := range keys {
		ks.Add(k)
	}
	return ks
}

func (ks *KeySet) Add(k PublicKey) { ks.m[string(k.Compressed())] = k }

func (ks *KeySet) Contains(k PublicKey) bool {
	_, ok := ks.m[string(k.Compressed())]
	return ok
}

func (ks *KeySet) Len() int { return len(ks.m) }

func (ks *KeySet) Keys() []PublicKey {
	out := make([]PublicKey, 0, len(ks.m))
	for _, k := range ks.m {
		out = append(out, k)
	}
	return out
}
