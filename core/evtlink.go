package core

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// jmzk-Link segment key ranges and their value encodings.
type linkValueKind uint8

const (
	linkValU8 linkValueKind = iota
	linkValU16
	linkValU32
	linkValStr
	linkValUUID
	linkValBytes
)

func linkKeyKind(key uint8) (linkValueKind, error) {
	switch {
	case key >= 1 && key <= 20:
		return linkValU8, nil
	case key >= 21 && key <= 40:
		return linkValU16, nil
	case key >= 41 && key <= 90:
		return linkValU32, nil
	case key >= 91 && key <= 155:
		return linkValStr, nil
	case key >= 156 && key <= 165:
		return linkValUUID, nil
	case key >= 166 && key <= 180:
		return linkValBytes, nil
	default:
		return 0, fmt.Errorf("%w: link segment key %d out of range", ErrInvalidArgument, key)
	}
}

// Well-known segment keys used by the contract actions in §4.11.
const (
	LinkKeyFlags         uint8 = 1  // u8: LinkFlag* bits, see flag bits below
	LinkKeySymbolID      uint8 = 42 // u32
	LinkKeyTimestamp     uint8 = 43 // u32
	LinkKeyMaxPay        uint8 = 44 // u32
	LinkKeyFixedAmount   uint8 = 45 // u32
	LinkKeyDomain        uint8 = 91  // str
	LinkKeyToken         uint8 = 92  // str
	LinkKeyMaxPayStr     uint8 = 93  // str
	LinkKeyFixedAmtStr   uint8 = 94  // str
	LinkKeyLinkID        uint8 = 156 // uuid-sized (16 bytes)
)

// ParseLinkID parses the standard hyphenated UUID form a CLI or wallet
// presents a link_id in and returns the raw 16 bytes the wire segment
// carries.
func ParseLinkID(s string) ([16]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}, fmt.Errorf("%w: %v", ErrLinkID, err)
	}
	return [16]byte(id), nil
}

// FormatLinkID renders a link_id segment's raw bytes back as the standard
// hyphenated UUID form.
func FormatLinkID(id [16]byte) string {
	return uuid.UUID(id).String()
}

// NewLinkID generates a random link_id, suitable for a wallet building a
// fresh everiPass/everiPay link.
func NewLinkID() [16]byte {
	return [16]byte(uuid.New())
}

// Flag bits packed into the LinkKeyFlags u8 segment.
const (
	LinkFlagVersion1  uint8 = 1 << 0
	LinkFlagEveriPass uint8 = 1 << 1
	LinkFlagEveriPay  uint8 = 1 << 2
	LinkFlagDestroy   uint8 = 1 << 3
)

// LinkSegment is one (key, value) entry of the segment map. Exactly one of
// the Value* fields is meaningful, selected by linkKeyKind(Key).
type LinkSegment struct {
	Key       uint8
	ValueU8   uint8
	ValueU16  uint16
	ValueU32  uint32
	ValueStr  string
	ValueUUID [16]byte
	ValueBin  []byte
}

// Link is segments[] + signatures[], the decoded form of a jmzk-Link URI.
type Link struct {
	Segments   []LinkSegment
	Signatures []Signature
}

const maxLinkSegmentBytes = 240

// AddSegment replaces-or-inserts by key, keeping Segments sorted by
// ascending key, mirroring the wire's ordering invariant.
func (l *Link) AddSegment(seg LinkSegment) {
	for i, s := range l.Segments {
		if s.Key == seg.Key {
			l.Segments[i] = seg
			return
		}
	}
	l.Segments = append(l.Segments, seg)
	sort.Slice(l.Segments, func(i, j int) bool { return l.Segments[i].Key < l.Segments[j].Key })
}

func (l *Link) Get(key uint8) (LinkSegment, bool) {
	for _, s := range l.Segments {
		if s.Key == key {
			return s, true
		}
	}
	return LinkSegment{}, false
}

func (l *Link) ClearSignatures() { l.Signatures = nil }

func (l *Link) Sign(priv PrivateKey) error {
	d, err := l.Digest()
	if err != nil {
		return err
	}
	sig, err := priv.Sign(d)
	if err != nil {
		return err
	}
	l.Signatures = append(l.Signatures, sig)
	return nil
}

// RestoreKeys recovers every signer's public key from Signatures and Digest.
func (l *Link) RestoreKeys() (*KeySet, error) {
	d, err := l.Digest()
	if err != nil {
		return nil, err
	}
	ks := NewKeySet()
	for _, sig := range l.Signatures {
		pk, err := sig.RecoverPublicKey(d)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		ks.Add(pk)
	}
	return ks, nil
}

// segmentBytes serializes the segment map: big-endian u16 header (segment
// count), then key:u8 + value per segment in strictly ascending key order.
func (l Link) segmentBytes() ([]byte, error) {
	segs := append([]LinkSegment{}, l.Segments...)
	sort.Slice(segs, func(i, j int) bool { return segs[i].Key < segs[j].Key })
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(len(segs)))
	lastKey := -1
	for _, s := range segs {
		if int(s.Key) <= lastKey {
			return nil, fmt.Errorf("%w: link segments out of order or duplicate", ErrInvalidArgument)
		}
		lastKey = int(s.Key)
		kind, err := linkKeyKind(s.Key)
		if err != nil {
			return nil, err
		}
		buf = append(buf, s.Key)
		switch kind {
		case linkValU8:
			buf = append(buf, s.ValueU8)
		case linkValU16:
			b := make([]byte, 2)
			binary.BigEndian.PutUint16(b, s.ValueU16)
			buf = append(buf, b...)
		case linkValU32:
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, s.ValueU32)
			buf = append(buf, b...)
		case linkValStr:
			if len(s.ValueStr) > 255 {
				return nil, fmt.Errorf("%w: link string segment too long", ErrInvalidArgument)
			}
			buf = append(buf, byte(len(s.ValueStr)))
			buf = append(buf, s.ValueStr...)
		case linkValUUID:
			buf = append(buf, s.ValueUUID[:]...)
		case linkValBytes:
			if len(s.ValueBin) > 255 {
				return nil, fmt.Errorf("%w: link binary segment too long", ErrInvalidArgument)
			}
			buf = append(buf, byte(len(s.ValueBin)))
			buf = append(buf, s.ValueBin...)
		}
	}
	if len(buf) > maxLinkSegmentBytes {
		return nil, fmt.Errorf("%w: link segment bytes exceed %d", ErrInvalidArgument, maxLinkSegmentBytes)
	}
	return buf, nil
}

// Digest is SHA-256 of the segment bytes (including header).
func (l Link) Digest() (Digest, error) {
	b, err := l.segmentBytes()
	if err != nil {
		return Digest{}, err
	}
	return Sha256(b), nil
}

const linkAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ$+-/:*"

var linkCharVal [256]int

func init() {
	for i := range linkCharVal {
		linkCharVal[i] = -1
	}
	for i := 0; i < len(linkAlphabet); i++ {
		linkCharVal[linkAlphabet[i]] = i
	}
}

func encodeBase42(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	n := new(big.Int).SetBytes(b)
	base := big.NewInt(int64(len(linkAlphabet)))
	zero := big.NewInt(0)
	var sb strings.Builder
	for n.Cmp(zero) > 0 {
		mod := new(big.Int)
		n.DivMod(n, base, mod)
		sb.WriteByte(linkAlphabet[mod.Int64()])
	}
	digits := reverseString(sb.String())
	// Preserve leading zero *bytes* as leading zero-value digits: each
	// leading 0x00 byte maps to a leading linkAlphabet[0] ('0') digit.
	leadingZeroBytes := 0
	for _, c := range b {
		if c != 0 {
			break
		}
		leadingZeroBytes++
	}
	return strings.Repeat(string(linkAlphabet[0]), leadingZeroBytes) + digits
}

func decodeBase42(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	n := new(big.Int)
	base := big.NewInt(int64(len(linkAlphabet)))
	leadingZeroDigits := 0
	for _, c := range s {
		if byte(c) != linkAlphabet[0] {
			break
		}
		leadingZeroDigits++
	}
	for i := 0; i < len(s); i++ {
		v := linkCharVal[s[i]]
		if v < 0 {
			return nil, fmt.Errorf("%w: invalid base-42 character %q", ErrInvalidArgument, s[i])
		}
		n.Mul(n, base)
		n.Add(n, big.NewInt(int64(v)))
	}
	raw := n.Bytes()
	out := make([]byte, leadingZeroDigits+len(raw))
	copy(out[leadingZeroDigits:], raw)
	return out, nil
}

func reverseString(s string) string {
	r := []byte(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// Encode renders the link as `segments_signatures` base-42 text (no URI prefix).
func (l Link) Encode() (string, error) {
	segBytes, err := l.segmentBytes()
	if err != nil {
		return "", err
	}
	sigBytes := make([]byte, 0, len(l.Signatures)*65)
	for _, s := range l.Signatures {
		sigBytes = append(sigBytes, s[:]...)
	}
	out := encodeBase42(segBytes)
	if len(sigBytes) > 0 {
		if len(sigBytes)%65 != 0 {
			return "", fmt.Errorf("%w: signature bytes not a multiple of 65", ErrInvalidArgument)
		}
		out += "_" + encodeBase42(sigBytes)
	}
	return out, nil
}

var linkURIPrefixes = []string{"https://jmzk.li/", "jmzklink://"}

// ParseLinkURI strips an accepted URI prefix (or none) and decodes.
func ParseLinkURI(uri string) (*Link, error) {
	body := uri
	for _, p := range linkURIPrefixes {
		if strings.HasPrefix(uri, p) {
			body = strings.TrimPrefix(uri, p)
			break
		}
	}
	return Decode(body)
}

// Decode parses the `segments[_signatures]` base-42 text form.
func Decode(body string) (*Link, error) {
	parts := strings.SplitN(body, "_", 2)
	segBytes, err := decodeBase42(parts[0])
	if err != nil {
		return nil, err
	}
	link, err := decodeSegments(segBytes)
	if err != nil {
		return nil, err
	}
	if len(parts) == 2 {
		sigBytes, err := decodeBase42(parts[1])
		if err != nil {
			return nil, err
		}
		if len(sigBytes) == 0 || len(sigBytes)%65 != 0 {
			return nil, fmt.Errorf("%w: jmzk-link signature bytes must be a positive multiple of 65", ErrInvalidArgument)
		}
		for i := 0; i < len(sigBytes); i += 65 {
			var sig Signature
			copy(sig[:], sigBytes[i:i+65])
			link.Signatures = append(link.Signatures, sig)
		}
	}
	return link, nil
}

func decodeSegments(b []byte) (*Link, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("%w: jmzk-link segment bytes too short", ErrInvalidArgument)
	}
	count := binary.BigEndian.Uint16(b[0:2])
	link := &Link{}
	pos := 2
	lastKey := -1
	for i := uint16(0); i < count; i++ {
		if pos >= len(b) {
			return nil, fmt.Errorf("%w: jmzk-link truncated", ErrInvalidArgument)
		}
		key := b[pos]
		pos++
		if int(key) <= lastKey {
			return nil, fmt.Errorf("%w: jmzk-link segment key out of order", ErrInvalidArgument)
		}
		lastKey = int(key)
		kind, err := linkKeyKind(key)
		if err != nil {
			return nil, err
		}
		seg := LinkSegment{Key: key}
		switch kind {
		case linkValU8:
			if pos+1 > len(b) {
				return nil, fmt.Errorf("%w: jmzk-link truncated u8", ErrInvalidArgument)
			}
			seg.ValueU8 = b[pos]
			pos++
		case linkValU16:
			if pos+2 > len(b) {
				return nil, fmt.Errorf("%w: jmzk-link truncated u16", ErrInvalidArgument)
			}
			seg.ValueU16 = binary.BigEndian.Uint16(b[pos : pos+2])
			pos += 2
		case linkValU32:
			if pos+4 > len(b) {
				return nil, fmt.Errorf("%w: jmzk-link truncated u32", ErrInvalidArgument)
			}
			seg.ValueU32 = binary.BigEndian.Uint32(b[pos : pos+4])
			pos += 4
		case linkValStr:
			if pos+1 > len(b) {
				return nil, fmt.Errorf("%w: jmzk-link truncated string length", ErrInvalidArgument)
			}
			n := int(b[pos])
			pos++
			if pos+n > len(b) {
				return nil, fmt.Errorf("%w: jmzk-link truncated string", ErrInvalidArgument)
			}
			seg.ValueStr = string(b[pos : pos+n])
			pos += n
		case linkValUUID:
			if pos+16 > len(b) {
				return nil, fmt.Errorf("%w: jmzk-link truncated uuid", ErrInvalidArgument)
			}
			copy(seg.ValueUUID[:], b[pos:pos+16])
			pos += 16
		case linkValBytes:
			if pos+1 > len(b) {
				return nil, fmt.Errorf("%w: jmzk-link truncated blob length", ErrInvalidArgument)
			}
			n := int(b[pos])
			pos++
			if pos+n > len(b) {
				return nil, fmt.Errorf("%w: jmzk-link truncated blob", ErrInvalidArgument)
			}
			seg.ValueBin = append([]byte{}, b[pos:pos+n]...)
			pos += n
		}
		link.Segments = append(link.Segments, seg)
	}
	return link, nil
}
