package core

import (
	"fmt"
	"hash/crc32"
	"math"
	"time"
)

// DistRuleKind discriminates a passive-bonus distribution rule.
type DistRuleKind uint8

const (
	DistRuleFixed DistRuleKind = iota
	DistRulePercent
	DistRuleRemainingPercent
)

// DistReceiverKind discriminates a rule's target.
type DistReceiverKind uint8

const (
	DistReceiverAddress DistReceiverKind = iota
	DistReceiverFTHolders
)

// DistReceiver is either a plain address or "pro-rata holders of an FT
// above a threshold".
type DistReceiver struct {
	Kind      DistReceiverKind
	Address   Address
	HolderSym Symbol
	Threshold Asset
}

// DistRule is one tagged-union distribution rule.
type DistRule struct {
	Kind     DistRuleKind
	Amount   int64   // DistRuleFixed
	Percent  float64 // DistRulePercent / DistRuleRemainingPercent, in (0,1]
	Receiver DistReceiver
}

// PassiveBonus is one FT's registered fee schedule.
type PassiveBonus struct {
	SymID           uint64
	Rate            float64
	BaseCharge      int64
	ChargeThreshold int64
	HasThreshold    bool
	MinimumCharge   int64
	HasMinimum      bool
	DistThreshold   int64
	Rules           []DistRule
	Methods         []string
	Round           uint32
	Deadline        time.Time
	FinalReceiver   *Address
}

func (b PassiveBonus) allows(method string) bool {
	for _, m := range b.Methods {
		if m == method {
			return true
		}
	}
	return false
}

func psvbonusKey(symID uint64) Name128 { return symKey(symID) }

func PutPassiveBonus(c *Cache, op PutOp, b PassiveBonus) error {
	var zero Name128
	return PutToken(c, TokenTypePsvBonus, op, zero, psvbonusKey(b.SymID), b, marshalJSON[PassiveBonus])
}

func GetPassiveBonus(c *Cache, symID uint64) (PassiveBonus, error) {
	var zero Name128
	return ReadToken(c, TokenTypePsvBonus, zero, psvbonusKey(symID), unmarshalJSON[PassiveBonus])
}

// SetPsvBonusAction is setpsvbonus/setpsvbonus_v2's shared payload.
type SetPsvBonusAction struct {
	SymID           uint64     `json:"sym_id"`
	Rate            float64    `json:"rate"`
	BaseCharge      int64      `json:"base_charge"`
	ChargeThreshold *int64     `json:"charge_threshold"`
	MinimumCharge   *int64     `json:"minimum_charge"`
	DistThreshold   int64      `json:"dist_threshold"`
	Rules           []DistRule `json:"rules"`
	Methods         []string   `json:"methods"`
}

func validatePsvBonusRules(distThreshold int64, rules []DistRule) error {
	seenPercent, seenRemaining := false, false
	remainder := distThreshold
	remainingSum := 0.0
	for i, r := range rules {
		switch r.Kind {
		case DistRuleFixed:
			if seenPercent || seenRemaining {
				return fmt.Errorf("%w: fixed rule at index %d must precede percent/remaining-percent rules", ErrInvalidArgument, i)
			}
			if r.Amount < 1 {
				return fmt.Errorf("%w: fixed rule amount must be >= 1", ErrInvalidArgument)
			}
			remainder -= r.Amount
		case DistRulePercent:
			if seenRemaining {
				return fmt.Errorf("%w: percent rule at index %d must precede remaining-percent rules", ErrInvalidArgument, i)
			}
			seenPercent = true
			if r.Percent <= 0 || r.Percent > 1 {
				return fmt.Errorf("%w: percent must be in (0,1]", ErrInvalidArgument)
			}
			amt := int64(math.Floor(r.Percent * float64(distThreshold)))
			if amt < 1 {
				return fmt.Errorf("%w: percent rule amount must be >= 1", ErrInvalidArgument)
			}
			remainder -= amt
		case DistRuleRemainingPercent:
			seenRemaining = true
			if r.Percent <= 0 || r.Percent > 1 {
				return fmt.Errorf("%w: remaining-percent must be in (0,1]", ErrInvalidArgument)
			}
			remainingSum += r.Percent
		default:
			return fmt.Errorf("%w: unknown dist rule kind", ErrInvalidArgument)
		}
	}
	if remainingSum > 1.0000001 {
		return fmt.Errorf("%w: remaining-percent shares sum to more than 1", ErrInvalidArgument)
	}
	if remainder > 0 && seenRemaining && remainingSum < 0.9999999 {
		return fmt.Errorf("%w: remaining-percent shares must sum to exactly 1 when a remainder persists", ErrInvalidArgument)
	}
	return nil
}

func handleSetPsvBonus(ac *ApplyContext) error {
	act, err := decodeAction[SetPsvBonusAction](ac.Action)
	if err != nil {
		return err
	}
	f, err := GetFungible(ac.Cache, act.SymID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownFungible, err)
	}
	if err := ac.Authorize(f.Manage, nil); err != nil {
		return err
	}
	if act.Rate <= 0 || act.Rate > 1 {
		return fmt.Errorf("%w: rate must be in (0,1]", ErrInvalidArgument)
	}
	if act.BaseCharge < 0 || act.DistThreshold <= 0 {
		return fmt.Errorf("%w: base_charge must be >= 0 and dist_threshold must be > 0", ErrInvalidArgument)
	}
	b := PassiveBonus{SymID: act.SymID, Rate: act.Rate, BaseCharge: act.BaseCharge, DistThreshold: act.DistThreshold, Rules: act.Rules, Methods: act.Methods}
	if act.ChargeThreshold != nil {
		b.HasThreshold, b.ChargeThreshold = true, *act.ChargeThreshold
	}
	if act.MinimumCharge != nil {
		b.HasMinimum, b.MinimumCharge = true, *act.MinimumCharge
	}
	if b.HasMinimum && b.HasThreshold && b.MinimumCharge >= b.ChargeThreshold {
		return fmt.Errorf("%w: minimum_charge must be less than charge_threshold", ErrInvalidArgument)
	}
	if err := validatePsvBonusRules(b.DistThreshold, b.Rules); err != nil {
		return err
	}
	op := PutAdd
	if _, err := GetPassiveBonus(ac.Cache, act.SymID); err == nil {
		op = PutUpdate
	}
	return PutPassiveBonus(ac.Cache, op, b)
}

func HandleSetPsvBonus(ac *ApplyContext) error   { return handleSetPsvBonus(ac) }
func HandleSetPsvBonusV2(ac *ApplyContext) error { return handleSetPsvBonus(ac) }

// collectPassiveBonus debits the registered fee from payer and credits the
// FT's round-0 collection address, a no-op if no schedule is registered for
// this symbol or method.
func collectPassiveBonus(ac *ApplyContext, f FungibleDef, payer Address, amount Asset, method string) error {
	b, err := GetPassiveBonus(ac.Cache, f.Sym.ID())
	if err != nil {
		return nil
	}
	if !b.allows(method) {
		return nil
	}
	charge := int64(b.Rate * float64(amount.Amount))
	if b.HasMinimum && charge < b.MinimumCharge {
		charge = b.MinimumCharge
	}
	if b.HasThreshold && charge > b.ChargeThreshold {
		charge = b.ChargeThreshold
	}
	charge += b.BaseCharge
	if charge <= 0 {
		return nil
	}
	fee, err := NewAsset(charge, f.Sym)
	if err != nil {
		return err
	}
	if err := debitAddress(ac, payer, fee); err != nil {
		return err
	}
	return creditAddress(ac, PsvBonusAddress(f.Sym.ID(), 0), fee, 0)
}

// DistPsvBonusAction triggers a distribution round.
type DistPsvBonusAction struct {
	SymID         uint64  `json:"sym_id"`
	Deadline      int64   `json:"deadline"`
	FinalReceiver *string `json:"final_receiver"`
}

// holderSnapshot emulates the original's dense hashmap keyed by a 32-bit
// hash of the holder public key, with a collision-carrying string map: the
// u32 bucket is only a distribution-order hint, the string map is
// authoritative.
type holderSnapshot struct {
	buckets map[uint32][]string
	byKey   map[string]Asset
}

func newHolderSnapshot() *holderSnapshot {
	return &holderSnapshot{buckets: make(map[uint32][]string), byKey: make(map[string]Asset)}
}

func (s *holderSnapshot) add(addr Address, bal Asset) {
	key := addr.String()
	if _, ok := s.byKey[key]; ok {
		return
	}
	s.byKey[key] = bal
	h := crc32.ChecksumIEEE([]byte(key))
	s.buckets[h] = append(s.buckets[h], key)
}

func HandleDistPsvBonus(ac *ApplyContext) error {
	act, err := decodeAction[DistPsvBonusAction](ac.Action)
	if err != nil {
		return err
	}
	f, err := GetFungible(ac.Cache, act.SymID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownFungible, err)
	}
	if err := ac.Authorize(f.Manage, nil); err != nil {
		return err
	}
	b, err := GetPassiveBonus(ac.Cache, act.SymID)
	if err != nil {
		return fmt.Errorf("%w: no passive bonus registered for this symbol", ErrInvalidArgument)
	}
	collection := PsvBonusAddress(act.SymID, 0)
	p, err := GetProperty(ac.Cache, collection, f.Sym)
	if err != nil {
		return err
	}
	if p.Amount < b.DistThreshold {
		return fmt.Errorf("%w: collected %d below dist_threshold %d", ErrInvalidArgument, p.Amount, b.DistThreshold)
	}
	total := p.Amount
	if err := debitAddress(ac, collection, p.Asset()); err != nil {
		return err
	}
	b.Round++
	b.Deadline = time.Unix(act.Deadline, 0)
	if act.FinalReceiver != nil {
		addr, err := parseAddress(*act.FinalReceiver)
		if err != nil {
			return err
		}
		b.FinalReceiver = &addr
	}
	roundAddress := PsvBonusAddress(act.SymID, b.Round)
	if err := creditAddress(ac, roundAddress, Asset{Amount: total, Sym: f.Sym}, 0); err != nil {
		return err
	}
	if err := ac.distributeRound(f, b, roundAddress, total); err != nil {
		return err
	}
	return PutPassiveBonus(ac.Cache, PutUpdate, b)
}

// distributeRound pays out a collected round per the fixed/percent/
// remaining-percent ordering, returning any leftover to FinalReceiver.
func (ac *ApplyContext) distributeRound(f FungibleDef, b PassiveBonus, roundAddress Address, total int64) error {
	remainder := total
	var remaining []DistRule
	for _, r := range b.Rules {
		var amt int64
		switch r.Kind {
		case DistRuleFixed:
			amt = r.Amount
		case DistRulePercent:
			amt = int64(math.Floor(r.Percent * float64(b.DistThreshold)))
		case DistRuleRemainingPercent:
			remaining = append(remaining, r)
			continue
		}
		if amt > remainder {
			amt = remainder
		}
		if amt <= 0 {
			continue
		}
		paid, err := ac.payReceiver(f, r.Receiver, roundAddress, amt)
		if err != nil {
			return err
		}
		// Subtract what was actually paid, not the nominal amt: an
		// FT-holders receiver floors each holder's share, so its paid
		// total can fall short of amt. The floor leftover stays credited
		// to roundAddress and must remain part of remainder so the
		// FinalReceiver sweep below can still collect it.
		remainder -= paid
	}
	for _, r := range remaining {
		if remainder <= 0 {
			break
		}
		share := int64(math.Floor(r.Percent * float64(remainder)))
		if share <= 0 {
			continue
		}
		paid, err := ac.payReceiver(f, r.Receiver, roundAddress, share)
		if err != nil {
			return err
		}
		remainder -= paid
	}
	if remainder > 0 && b.FinalReceiver != nil {
		if err := debitAddress(ac, roundAddress, Asset{Amount: remainder, Sym: f.Sym}); err != nil {
			return err
		}
		return creditAddress(ac, *b.FinalReceiver, Asset{Amount: remainder, Sym: f.Sym}, 0)
	}
	return nil
}

// payReceiver pays amount out of from to r, returning how much actually
// left from: for an address receiver that's always amount, but an
// FT-holders receiver floors each holder's pro-rata share, so its paid
// total can be less than amount. The difference is credited back to from
// rather than silently dropped, and the caller is expected to fold the
// returned paid total back into its own remainder bookkeeping so that
// difference isn't treated as spent.
func (ac *ApplyContext) payReceiver(f FungibleDef, r DistReceiver, from Address, amount int64) (int64, error) {
	asset := Asset{Amount: amount, Sym: f.Sym}
	if r.Kind == DistReceiverAddress {
		if err := debitAddress(ac, from, asset); err != nil {
			return 0, err
		}
		if err := creditAddress(ac, r.Address, asset, 0); err != nil {
			return 0, err
		}
		return amount, nil
	}
	holders, err := ac.snapshotHolders(r.HolderSym, r.Threshold)
	if err != nil {
		return 0, err
	}
	if len(holders.byKey) == 0 {
		return 0, nil
	}
	var totalBal int64
	for _, bal := range holders.byKey {
		totalBal += bal.Amount
	}
	if totalBal == 0 {
		return 0, nil
	}
	if err := debitAddress(ac, from, asset); err != nil {
		return 0, err
	}
	var paid int64
	for _, bucket := range holders.buckets {
		for _, key := range bucket {
			bal := holders.byKey[key]
			share := amount * bal.Amount / totalBal
			if share <= 0 {
				continue
			}
			addr, err := parseAddress(key)
			if err != nil {
				continue // reserved/unaddressable holders are skipped, not fatal
			}
			if err := creditAddress(ac, addr, Asset{Amount: share, Sym: f.Sym}, 0); err != nil {
				return 0, err
			}
			paid += share
		}
	}
	leftover := amount - paid
	if leftover > 0 {
		if err := creditAddress(ac, from, Asset{Amount: leftover, Sym: f.Sym}, 0); err != nil {
			return 0, err
		}
	}
	return paid, nil
}

// snapshotHolders enumerates balances of sym above threshold across every
// property record in the TDB's asset range for this symbol.
func (ac *ApplyContext) snapshotHolders(sym Symbol, threshold Asset) (*holderSnapshot, error) {
	snap := newHolderSnapshot()
	ac.DB.ReadAssetsRange(sym.ID(), 0, func(addrBytes, value []byte) bool {
		p, err := unmarshalJSON[Property](value)
		if err != nil || p.Amount < threshold.Amount {
			return true
		}
		addr, err := AddressFromBytes(addrBytes)
		if err != nil {
			return true
		}
		snap.add(addr, p.Asset())
		return true
	})
	return snap, nil
}
