package core

import (
	"fmt"
	"math"
)

// Symbol packs precision (<=18) and a symbol id into a 64-bit value:
// (precision << 32) | id. Id 1 is the native token, id 2 its pinned variant.
type Symbol uint64

const (
	NativeSymbolID uint64 = 1
	PinnedSymbolID uint64 = 2

	maxPrecision uint8 = 18
	maxAmount    int64 = 1<<62 - 1
)

// NewSymbol builds a Symbol, validating precision.
func NewSymbol(precision uint8, id uint64) (Symbol, error) {
	if precision > maxPrecision {
		return 0, fmt.Errorf("%w: symbol precision %d exceeds max %d", ErrInvalidArgument, precision, maxPrecision)
	}
	return Symbol(uint64(precision)<<32 | id), nil
}

func (s Symbol) Precision() uint8 { return uint8(uint64(s) >> 32) }
func (s Symbol) ID() uint64       { return uint64(s) & 0xFFFFFFFF }
func (s Symbol) IsNative() bool   { return s.ID() == NativeSymbolID }
func (s Symbol) IsPinned() bool   { return s.ID() == PinnedSymbolID }

// Asset is a fixed-point signed amount tied to a Symbol.
type Asset struct {
	Amount int64
	Sym    Symbol
}

// NewAsset validates |amount| <= 2^62-1.
func NewAsset(amount int64, sym Symbol) (Asset, error) {
	if amount > maxAmount || amount < -maxAmount {
		return Asset{}, fmt.Errorf("%w: asset amount %d out of range", ErrInvalidArgument, amount)
	}
	return Asset{Amount: amount, Sym: sym}, nil
}

func (a Asset) sameSymbol(b Asset) error {
	if a.Sym != b.Sym {
		return fmt.Errorf("%w: %d vs %d", ErrAssetSymbol, a.Sym.ID(), b.Sym.ID())
	}
	return nil
}

// Add returns a+b, failing if the symbols differ or the result overflows.
func (a Asset) Add(b Asset) (Asset, error) {
	if err := a.sameSymbol(b); err != nil {
		return Asset{}, err
	}
	return NewAsset(a.Amount+b.Amount, a.Sym)
}

// Sub returns a-b, failing if the symbols differ or the result overflows.
func (a Asset) Sub(b Asset) (Asset, error) {
	if err := a.sameSymbol(b); err != nil {
		return Asset{}, err
	}
	return NewAsset(a.Amount-b.Amount, a.Sym)
}

func (a Asset) IsNegative() bool { return a.Amount < 0 }
func (a Asset) IsZero() bool     { return a.Amount == 0 }

// String renders the amount with its decimal point placed by precision,
// e.g. Amount=150000 Precision=4 -> "15.0000".
func (a Asset) String() string {
	p := int(a.Sym.Precision())
	if p == 0 {
		return fmt.Sprintf("%d S#%d", a.Amount, a.Sym.ID())
	}
	divisor := int64(math.Pow10(p))
	whole := a.Amount / divisor
	frac := a.Amount % divisor
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%0*d S#%d", whole, p, frac, a.Sym.ID())
}
