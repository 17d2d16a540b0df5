package core

import (
	"fmt"
	"strings"
)

// NewFungibleAction creates an FT (newfungible / newfungible_v2 share this
// payload; v2 only adds optional fields the ABI layer tolerates via
// mapstructure's zero-value defaulting).
type NewFungibleAction struct {
	Name        string        `json:"name"`
	SymName     string        `json:"sym_name"`
	Sym         Symbol        `json:"sym"`
	Creator     PublicKey     `json:"creator"`
	Issue       PermissionDef `json:"issue"`
	Transfer    PermissionDef `json:"transfer"`
	Manage      PermissionDef `json:"manage"`
	TotalSupply int64         `json:"total_supply"`
}

func handleNewFungible(ac *ApplyContext) error {
	act, err := decodeAction[NewFungibleAction](ac.Action)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Name)
	if err != nil {
		return err
	}
	if ac.DB.ExistsToken(TokenTypeDomain, Name128{}, name) {
		return ErrDuplicateFungible // domain-style uniqueness namespace check stands in for fungible names
	}
	if ac.DB.ExistsToken(TokenTypeFungible, Name128{}, symKey(act.Sym.ID())) {
		return ErrDuplicateFungible
	}
	if err := act.Issue.Validate(true); err != nil {
		return err
	}
	if err := act.Transfer.Validate(true); err != nil {
		return err
	}
	if err := act.Manage.Validate(false); err != nil {
		return err
	}
	if err := ac.Authorize(act.Issue, nil); err != nil {
		return err
	}
	supply, err := NewAsset(act.TotalSupply, act.Sym)
	if err != nil {
		return err
	}
	f := FungibleDef{
		Name: name, SymName: act.SymName, Sym: act.Sym, Creator: act.Creator, CreateTime: ac.Now,
		Issue: act.Issue, Transfer: act.Transfer, Manage: act.Manage, TotalSupply: supply,
	}
	if err := PutFungible(ac.Cache, PutAdd, f); err != nil {
		return err
	}
	sink := f.SinkAddress()
	return creditAddress(ac, sink, supply, 0)
}

func HandleNewFungible(ac *ApplyContext) error   { return handleNewFungible(ac) }
func HandleNewFungibleV2(ac *ApplyContext) error { return handleNewFungible(ac) }

// IssueFungibleAction moves from the FT sink to a target address.
type IssueFungibleAction struct {
	Address string `json:"address"`
	Number  Asset  `json:"number"`
	Memo    string `json:"memo"`
}

func HandleIssueFungible(ac *ApplyContext) error {
	act, err := decodeAction[IssueFungibleAction](ac.Action)
	if err != nil {
		return err
	}
	f, err := GetFungible(ac.Cache, act.Number.Sym.ID())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownFungible, err)
	}
	if err := ac.Authorize(f.Issue, nil); err != nil {
		return err
	}
	to, err := parseAddress(act.Address)
	if err != nil {
		return err
	}
	sink := f.SinkAddress()
	if act.Number.Sym.IsNative() && to.Equal(sink) {
		return fmt.Errorf("%w: cannot issue native token to its own sink", ErrInvalidArgument)
	}
	if err := debitAddress(ac, sink, act.Number); err != nil {
		return err
	}
	return creditAddress(ac, to, act.Number, 0)
}

// TransferFtAction moves an FT balance between two addresses, possibly
// triggering passive-bonus collection (§4.9).
type TransferFtAction struct {
	From   Address `json:"from"`
	To     Address `json:"to"`
	Number Asset   `json:"number"`
	Memo   string  `json:"memo"`
}

func HandleTransferFt(ac *ApplyContext) error {
	act, err := decodeAction[TransferFtAction](ac.Action)
	if err != nil {
		return err
	}
	if act.Number.Sym.IsPinned() {
		return fmt.Errorf("%w: pinned native token cannot be transferred directly", ErrAssetType)
	}
	f, err := GetFungible(ac.Cache, act.Number.Sym.ID())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownFungible, err)
	}
	if err := ac.Authorize(f.Transfer, []Address{act.From}); err != nil {
		return err
	}
	if err := collectPassiveBonus(ac, f, act.From, act.Number, "transferft"); err != nil {
		return err
	}
	if err := debitAddress(ac, act.From, act.Number); err != nil {
		return err
	}
	return creditAddress(ac, act.To, act.Number, 0)
}

// RecycleFtAction / DestroyFtAction move balances back to the sink or to
// the reserved burn address respectively.
type RecycleFtAction struct {
	Address string `json:"address"`
	Number  Asset  `json:"number"`
}

func HandleRecycleFt(ac *ApplyContext) error {
	act, err := decodeAction[RecycleFtAction](ac.Action)
	if err != nil {
		return err
	}
	f, err := GetFungible(ac.Cache, act.Number.Sym.ID())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownFungible, err)
	}
	if err := ac.Authorize(f.Issue, nil); err != nil {
		return err
	}
	from, err := parseAddress(act.Address)
	if err != nil {
		return err
	}
	if err := debitAddress(ac, from, act.Number); err != nil {
		return err
	}
	return creditAddress(ac, f.SinkAddress(), act.Number, 0)
}

type DestroyFtAction struct {
	Address string `json:"address"`
	Number  Asset  `json:"number"`
}

func HandleDestroyFt(ac *ApplyContext) error {
	act, err := decodeAction[DestroyFtAction](ac.Action)
	if err != nil {
		return err
	}
	from, err := parseAddress(act.Address)
	if err != nil {
		return err
	}
	if err := debitAddress(ac, from, act.Number); err != nil {
		return err
	}
	return creditAddress(ac, ReservedAddress, act.Number, 0)
}

// --- balance helpers shared by fungible/staking/bonus handlers ---------

// parseAddress parses an Address's String() form: either a generated
// address (".prefix:key:nonce"), the reserved sink, or a public key
// (delegated to ParsePublicKey's "PUB_K1_..." form).
func parseAddress(s string) (Address, error) {
	if len(s) == 0 {
		return Address{}, fmt.Errorf("%w: empty address", ErrInvalidArgument)
	}
	if s == ReservedAddress.String() {
		return ReservedAddress, nil
	}
	if s[0] == '.' {
		parts := strings.SplitN(s[1:], ":", 3)
		if len(parts) != 3 {
			return Address{}, fmt.Errorf("%w: malformed generated address %q", ErrInvalidArgument, s)
		}
		var nonce uint32
		if _, err := fmt.Sscanf(parts[2], "%d", &nonce); err != nil {
			return Address{}, fmt.Errorf("%w: malformed address nonce in %q", ErrInvalidArgument, s)
		}
		return NewGeneratedAddress(parts[0], parts[1], nonce)
	}
	pk, err := ParsePublicKeyString(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return NewPublicKeyAddress(pk), nil
}

func debitAddress(ac *ApplyContext, addr Address, amount Asset) error {
	p, err := GetProperty(ac.Cache, addr, amount.Sym)
	if err != nil {
		return err
	}
	bal, err := p.Asset().Sub(amount)
	if err != nil {
		return err
	}
	if bal.Amount < 0 {
		return ErrBalance
	}
	p.Amount = bal.Amount
	return PutProperty(ac.Cache, addr, amount.Sym, p)
}

func creditAddress(ac *ApplyContext, addr Address, amount Asset, createdIndex uint64) error {
	p, err := GetProperty(ac.Cache, addr, amount.Sym)
	if err != nil {
		return err
	}
	bal, err := p.Asset().Add(amount)
	if err != nil {
		return err
	}
	p.Amount = bal.Amount
	p.Sym = amount.Sym
	if p.CreatedAt.IsZero() {
		p.CreatedAt = ac.Now
		p.CreatedIndex = createdIndex
	}
	return PutProperty(ac.Cache, addr, amount.Sym, p)
}
