package core

import (
	"encoding/binary"
	"time"
)

// Action is the smallest unit of state transition: a typed payload aimed at
// a (domain, key) target. Name is the hashed action-type identifier (the
// execution context resolves it to a handler + version).
type Action struct {
	Name   string
	Domain Name128
	Key    Name128
	Data   []byte
}

// TransactionHeader matches the bit-exact wire layout the original chain
// client expects.
type TransactionHeader struct {
	Expiration      uint32 // seconds since epoch
	RefBlockNum     uint16
	RefBlockPrefix  uint32
	MaxCharge       uint32
}

func (h TransactionHeader) ExpirationTime() time.Time {
	return time.Unix(int64(h.Expiration), 0).UTC()
}

// Transaction is the unsigned payload: header, actions, payer, extensions.
type Transaction struct {
	Header               TransactionHeader
	Actions               []Action
	Payer                 Address
	TransactionExtensions []byte
}

// PackedTransaction is a Transaction plus its recoverable signatures, ready
// for the processor.
type PackedTransaction struct {
	Trx        Transaction
	Signatures []Signature
}

// SigDigest computes SHA-256(chainID || header || body).
// Header and body are serialized with a minimal deterministic binary
// encoding (big-endian fixed-width header, length-prefixed action fields).
func (t Transaction) SigDigest(chainID Digest) Digest {
	buf := make([]byte, 0, 128+len(t.Actions)*64)
	buf = append(buf, chainID[:]...)
	hb := make([]byte, 14)
	binary.BigEndian.PutUint32(hb[0:4], t.Header.Expiration)
	binary.BigEndian.PutUint16(hb[4:6], t.Header.RefBlockNum)
	binary.BigEndian.PutUint32(hb[6:10], t.Header.RefBlockPrefix)
	binary.BigEndian.PutUint32(hb[10:14], t.Header.MaxCharge)
	buf = append(buf, hb...)
	for _, a := range t.Actions {
		buf = appendLenPrefixed(buf, []byte(a.Name))
		buf = append(buf, a.Domain.Bytes()...)
		buf = append(buf, a.Key.Bytes()...)
		buf = appendLenPrefixed(buf, a.Data)
	}
	buf = append(buf, t.Payer.Bytes()...)
	buf = appendLenPrefixed(buf, t.TransactionExtensions)
	return Sha256(buf)
}

func appendLenPrefixed(buf []byte, b []byte) []byte {
	lb := make([]byte, 4)
	binary.BigEndian.PutUint32(lb, uint32(len(b)))
	buf = append(buf, lb...)
	return append(buf, b...)
}

// ID returns the transaction id: SHA-256 of the packed signed form, used as
// the suspend/trace correlation id.
func (pt PackedTransaction) ID(chainID Digest) Digest {
	d := pt.Trx.SigDigest(chainID)
	buf := append([]byte{}, d[:]...)
	for _, s := range pt.Signatures {
		buf = append(buf, s[:]...)
	}
	return Sha256(buf)
}

// RecoverKeys recovers every signer's public key over the transaction's
// signature digest.
func (pt PackedTransaction) RecoverKeys(chainID Digest) (*KeySet, error) {
	d := pt.Trx.SigDigest(chainID)
	ks := NewKeySet()
	for _, sig := range pt.Signatures {
		pk, err := sig.RecoverPublicKey(d)
		if err != nil {
			return nil, err
		}
		ks.Add(pk)
	}
	return ks, nil
}

// BlockRefFromID computes ref_block_num/ref_block_prefix from a 32-byte
// block id: ref_block_num = bswap32(id[0:4]) & 0xFFFF;
// ref_block_prefix = id[4:8] read as little-endian u32.
func BlockRefFromID(id [32]byte) (uint16, uint32) {
	w0 := binary.BigEndian.Uint32(id[0:4])
	swapped := (w0>>24)&0xFF | (w0>>8)&0xFF00 | (w0<<8)&0xFF0000 | (w0<<24)&0xFF000000
	refBlockNum := uint16(swapped & 0xFFFF)
	refBlockPrefix := binary.LittleEndian.Uint32(id[4:8])
	return refBlockNum, refBlockPrefix
}
