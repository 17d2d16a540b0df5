package core

import (
	"fmt"
	"hash/crc32"
)

// ValidatorDef is a registered validator's accounting record; no consensus
// participation is modeled here, only the stake accounting.
type ValidatorDef struct {
	Name        Name128
	Owner       PublicKey
	CommissionBP uint32 // basis points, 0..10000
	TotalStaked int64
	TotalActive int64
}

func ValidatorAddress(name Name128) Address {
	a, err := NewGeneratedAddress("validator", name.String(), 0)
	if err != nil {
		panic(err)
	}
	return a
}

func PutValidator(c *Cache, op PutOp, v ValidatorDef) error {
	var zero Name128
	return PutToken(c, TokenTypeValidator, op, zero, v.Name, v, marshalJSON[ValidatorDef])
}

func GetValidator(c *Cache, name Name128) (ValidatorDef, error) {
	var zero Name128
	return ReadToken(c, TokenTypeValidator, zero, name, unmarshalJSON[ValidatorDef])
}

// stakerKey derives a name128-shaped per-staker key from their public key,
// the same crc32-hash-as-digits convention contracts_bonus.go's holder
// snapshot uses for its dense bucket index.
func stakerKey(staker PublicKey) Name128 {
	h := crc32.ChecksumIEEE(staker.Compressed())
	n, err := ParseName128(fmt.Sprintf("%08X", h))
	if err != nil {
		panic(err)
	}
	return n
}

// StakeRecord is one staker's position against one validator: Pending
// stakes are promoted to Active by toactivetkns; Withdrawing holds an
// amount released from Active awaiting valiwithdraw.
type StakeRecord struct {
	Validator  Name128
	Staker     PublicKey
	Pending    int64
	Active     int64
	Withdrawing int64
}

func PutStakeRecord(c *Cache, op PutOp, r StakeRecord) error {
	return PutToken(c, TokenTypeStakePool, op, r.Validator, stakerKey(r.Staker), r, marshalJSON[StakeRecord])
}

func GetStakeRecord(c *Cache, validator Name128, staker PublicKey) (StakeRecord, error) {
	return ReadToken(c, TokenTypeStakePool, validator, stakerKey(staker), unmarshalJSON[StakeRecord])
}

func stakeRecordOrZero(c *Cache, validator Name128, staker PublicKey) StakeRecord {
	r, err := GetStakeRecord(c, validator, staker)
	if err != nil {
		return StakeRecord{Validator: validator, Staker: staker}
	}
	return r
}

// NewValidatorAction registers a validator accounting record.
type NewValidatorAction struct {
	Name         string    `json:"name"`
	Owner        PublicKey `json:"owner"`
	CommissionBP uint32    `json:"commission_bp"`
}

func HandleNewValidator(ac *ApplyContext) error {
	act, err := decodeAction[NewValidatorAction](ac.Action)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Name)
	if err != nil {
		return err
	}
	if ac.DB.ExistsToken(TokenTypeValidator, Name128{}, name) {
		return fmt.Errorf("%w: validator %q already exists", ErrInvalidArgument, act.Name)
	}
	if act.CommissionBP > 10000 {
		return fmt.Errorf("%w: commission_bp must be <= 10000", ErrInvalidArgument)
	}
	v := ValidatorDef{Name: name, Owner: act.Owner, CommissionBP: act.CommissionBP}
	return PutValidator(ac.Cache, PutAdd, v)
}

// StakeTknsAction moves native tokens from the staker into the validator's
// pending balance.
type StakeTknsAction struct {
	Validator string    `json:"validator"`
	Staker    PublicKey `json:"staker"`
	Amount    Asset     `json:"amount"`
}

func HandleStakeTkns(ac *ApplyContext) error {
	act, err := decodeAction[StakeTknsAction](ac.Action)
	if err != nil {
		return err
	}
	if !act.Amount.Sym.IsNative() {
		return fmt.Errorf("%w: staking is only defined for the native token", ErrAssetType)
	}
	name, err := ParseName128(act.Validator)
	if err != nil {
		return err
	}
	v, err := GetValidator(ac.Cache, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownValidator, err)
	}
	if err := ac.Authorize(PermissionDef{Threshold: 1, Authorizers: []WeightedAuthorizer{{Weight: 1, Ref: AuthorizerRef{Kind: AuthorizerAccount, Account: act.Staker}}}}, nil); err != nil {
		return err
	}
	staker := NewPublicKeyAddress(act.Staker)
	if err := debitAddress(ac, staker, act.Amount); err != nil {
		return err
	}
	if err := creditAddress(ac, ValidatorAddress(name), act.Amount, 0); err != nil {
		return err
	}
	r := stakeRecordOrZero(ac.Cache, name, act.Staker)
	op := PutUpdate
	if r.Pending == 0 && r.Active == 0 && r.Withdrawing == 0 {
		op = PutAdd
	}
	r.Pending += act.Amount.Amount
	v.TotalStaked += act.Amount.Amount
	if err := PutValidator(ac.Cache, PutUpdate, v); err != nil {
		return err
	}
	return PutStakeRecord(ac.Cache, op, r)
}

// ToActiveTknsAction promotes a staker's pending stake to active.
type ToActiveTknsAction struct {
	Validator string    `json:"validator"`
	Staker    PublicKey `json:"staker"`
}

func HandleToActiveTkns(ac *ApplyContext) error {
	act, err := decodeAction[ToActiveTknsAction](ac.Action)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Validator)
	if err != nil {
		return err
	}
	if _, err := GetValidator(ac.Cache, name); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownValidator, err)
	}
	r, err := GetStakeRecord(ac.Cache, name, act.Staker)
	if err != nil {
		return fmt.Errorf("%w: no stake position for this staker", ErrInvalidArgument)
	}
	if r.Pending == 0 {
		return fmt.Errorf("%w: nothing pending to activate", ErrInvalidArgument)
	}
	v, err := GetValidator(ac.Cache, name)
	if err != nil {
		return err
	}
	v.TotalActive += r.Pending
	r.Active += r.Pending
	r.Pending = 0
	if err := PutValidator(ac.Cache, PutUpdate, v); err != nil {
		return err
	}
	return PutStakeRecord(ac.Cache, PutUpdate, r)
}

// UnstakeTknsAction moves an amount from active to withdrawing.
type UnstakeTknsAction struct {
	Validator string    `json:"validator"`
	Staker    PublicKey `json:"staker"`
	Amount    int64     `json:"amount"`
}

func HandleUnstakeTkns(ac *ApplyContext) error {
	act, err := decodeAction[UnstakeTknsAction](ac.Action)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Validator)
	if err != nil {
		return err
	}
	if err := ac.Authorize(PermissionDef{Threshold: 1, Authorizers: []WeightedAuthorizer{{Weight: 1, Ref: AuthorizerRef{Kind: AuthorizerAccount, Account: act.Staker}}}}, nil); err != nil {
		return err
	}
	r, err := GetStakeRecord(ac.Cache, name, act.Staker)
	if err != nil {
		return fmt.Errorf("%w: no stake position for this staker", ErrInvalidArgument)
	}
	if act.Amount <= 0 || act.Amount > r.Active {
		return fmt.Errorf("%w: unstake amount exceeds active stake", ErrBalance)
	}
	v, err := GetValidator(ac.Cache, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownValidator, err)
	}
	r.Active -= act.Amount
	r.Withdrawing += act.Amount
	v.TotalActive -= act.Amount
	if err := PutValidator(ac.Cache, PutUpdate, v); err != nil {
		return err
	}
	return PutStakeRecord(ac.Cache, PutUpdate, r)
}

// ValiWithdrawAction releases a withdrawing balance back to the staker.
type ValiWithdrawAction struct {
	Validator string    `json:"validator"`
	Staker    PublicKey `json:"staker"`
}

func HandleValiWithdraw(ac *ApplyContext) error {
	act, err := decodeAction[ValiWithdrawAction](ac.Action)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Validator)
	if err != nil {
		return err
	}
	if err := ac.Authorize(PermissionDef{Threshold: 1, Authorizers: []WeightedAuthorizer{{Weight: 1, Ref: AuthorizerRef{Kind: AuthorizerAccount, Account: act.Staker}}}}, nil); err != nil {
		return err
	}
	r, err := GetStakeRecord(ac.Cache, name, act.Staker)
	if err != nil {
		return fmt.Errorf("%w: no stake position for this staker", ErrInvalidArgument)
	}
	if r.Withdrawing == 0 {
		return fmt.Errorf("%w: nothing to withdraw", ErrInvalidArgument)
	}
	native, err := NewSymbol(0, NativeSymbolID)
	if err != nil {
		return err
	}
	amount, err := NewAsset(r.Withdrawing, native)
	if err != nil {
		return err
	}
	v, err := GetValidator(ac.Cache, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownValidator, err)
	}
	v.TotalStaked -= r.Withdrawing
	if err := debitAddress(ac, ValidatorAddress(name), amount); err != nil {
		return err
	}
	if err := creditAddress(ac, NewPublicKeyAddress(act.Staker), amount, 0); err != nil {
		return err
	}
	r.Withdrawing = 0
	if err := PutValidator(ac.Cache, PutUpdate, v); err != nil {
		return err
	}
	return PutStakeRecord(ac.Cache, PutUpdate, r)
}

// RecvStkBonusAction credits a staking reward, net of the validator's
// commission, directly into the staker's active balance.
type RecvStkBonusAction struct {
	Validator string    `json:"validator"`
	Staker    PublicKey `json:"staker"`
	Amount    int64     `json:"amount"`
}

func HandleRecvStkBonus(ac *ApplyContext) error {
	act, err := decodeAction[RecvStkBonusAction](ac.Action)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Validator)
	if err != nil {
		return err
	}
	v, err := GetValidator(ac.Cache, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownValidator, err)
	}
	if err := ac.Authorize(PermissionDef{Threshold: 1, Authorizers: []WeightedAuthorizer{{Weight: 1, Ref: AuthorizerRef{Kind: AuthorizerAccount, Account: v.Owner}}}}, nil); err != nil {
		return err
	}
	if act.Amount <= 0 {
		return fmt.Errorf("%w: bonus amount must be positive", ErrInvalidArgument)
	}
	commission := act.Amount * int64(v.CommissionBP) / 10000
	net := act.Amount - commission
	r := stakeRecordOrZero(ac.Cache, name, act.Staker)
	op := PutUpdate
	if r.Pending == 0 && r.Active == 0 && r.Withdrawing == 0 {
		op = PutAdd
	}
	r.Active += net
	v.TotalActive += net
	v.TotalStaked += net
	if err := PutValidator(ac.Cache, PutUpdate, v); err != nil {
		return err
	}
	return PutStakeRecord(ac.Cache, op, r)
}
