package core

import (
	"fmt"
	"strings"
)

// Name128 is a 128-bit packed identifier. The low 2 bits of the packed
// value encode a length class (0 <= 5 chars, 1 <= 10, 2 <= 15, 3 <= 21);
// each character above that is a 6-bit code over the alphabet below.
type Name128 [16]byte

const name128Alphabet = ".-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var name128CharCode [256]int8

func init() {
	for i := range name128CharCode {
		name128CharCode[i] = -1
	}
	for i := 0; i < len(name128Alphabet); i++ {
		name128CharCode[name128Alphabet[i]] = int8(i)
	}
}

func name128LenClassLimit(class uint8) int {
	switch class {
	case 0:
		return 5
	case 1:
		return 10
	case 2:
		return 15
	default:
		return 21
	}
}

func name128LenClassFor(n int) (uint8, error) {
	switch {
	case n <= 5:
		return 0, nil
	case n <= 10:
		return 1, nil
	case n <= 15:
		return 2, nil
	case n <= 21:
		return 3, nil
	default:
		return 0, fmt.Errorf("%w: name128 too long (%d chars)", ErrInvalidArgument, n)
	}
}

// ParseName128 validates s against the name128 alphabet and packs it.
func ParseName128(s string) (Name128, error) {
	var n Name128
	class, err := name128LenClassFor(len(s))
	if err != nil {
		return n, err
	}
	// 128 bits = 2 length-class bits + up to 21*6 = 126 bits of characters,
	// packed big-endian-ish into the byte array starting at bit 2.
	bits := make([]bool, 128)
	bits[0] = class&1 != 0
	bits[1] = class&2 != 0
	for i := 0; i < len(s); i++ {
		code := name128CharCode[s[i]]
		if code < 0 {
			return n, fmt.Errorf("%w: character %q not in name128 alphabet", ErrInvalidArgument, s[i])
		}
		base := 2 + i*6
		for b := 0; b < 6; b++ {
			bits[base+b] = (code>>uint(b))&1 != 0
		}
	}
	for i, bit := range bits {
		if bit {
			n[i/8] |= 1 << uint(i%8)
		}
	}
	return n, nil
}

// MustName128 panics on invalid input; used for compile-time-known names.
func MustName128(s string) Name128 {
	n, err := ParseName128(s)
	if err != nil {
		panic(err)
	}
	return n
}

// String unpacks the name128 back to its textual form.
func (n Name128) String() string {
	bits := make([]bool, 128)
	for i := 0; i < 16; i++ {
		for b := 0; b < 8; b++ {
			bits[i*8+b] = n[i]&(1<<uint(b)) != 0
		}
	}
	class := uint8(0)
	if bits[0] {
		class |= 1
	}
	if bits[1] {
		class |= 2
	}
	limit := name128LenClassLimit(class)
	var sb strings.Builder
	for i := 0; i < limit; i++ {
		base := 2 + i*6
		if base+6 > 128 {
			break
		}
		code := 0
		for b := 0; b < 6; b++ {
			if bits[base+b] {
				code |= 1 << uint(b)
			}
		}
		sb.WriteByte(name128Alphabet[code])
	}
	// Unused tail characters are zero-padding (code 0 == '.'); trailing
	// dots are indistinguishable from padding, matching the packed format's
	// own ambiguity (it carries a length class, not an exact length).
	return strings.TrimRight(sb.String(), string(name128Alphabet[0]))
}

// Reserved reports whether the first character (bits 2..7) is the zero code.
func (n Name128) Reserved() bool {
	code := 0
	for b := 0; b < 6; b++ {
		bitIndex := 2 + b
		if n[bitIndex/8]&(1<<uint(bitIndex%8)) != 0 {
			code |= 1 << uint(b)
		}
	}
	return code == 0
}

func (n Name128) Bytes() []byte { return n[:] }

func (n Name128) IsZero() bool {
	for _, b := range n {
		if b != 0 {
			return false
		}
	}
	return true
}
