package core

import (
	"fmt"
	"time"
)

func linkObjectKey(linkID [16]byte) Name128 {
	var n Name128
	copy(n[:], linkID[:])
	return n
}

func PutLinkObject(c *Cache, o JmzkLinkObject) error {
	var zero Name128
	return PutToken(c, TokenTypeJmzkLink, PutAdd, zero, linkObjectKey(o.LinkID), o, marshalJSON[JmzkLinkObject])
}

func linkObjectExists(db *TDB, linkID [16]byte) bool {
	var zero Name128
	return db.ExistsToken(TokenTypeJmzkLink, zero, linkObjectKey(linkID))
}

// checkLinkExpiration enforces |now - timestamp| <= jmzk_link_expired_secs
// unless the chain is in loadtest mode.
func checkLinkExpiration(cfg ChainConfig, now time.Time, timestamp uint32) error {
	if cfg.LoadtestMode {
		return nil
	}
	ts := time.Unix(int64(timestamp), 0)
	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}
	if diff > time.Duration(cfg.JmzkLinkExpiredSecs)*time.Second {
		return ErrLinkExpiration
	}
	return nil
}

func decodeAndVerifyLink(raw string) (*Link, *KeySet, error) {
	link, err := ParseLinkURI(raw)
	if err != nil {
		return nil, nil, err
	}
	keys, err := link.RestoreKeys()
	if err != nil {
		return nil, nil, err
	}
	if keys.Len() != 1 {
		return nil, nil, fmt.Errorf("%w: jmzk-link requires exactly one signature", ErrInvalidArgument)
	}
	return link, keys, nil
}

// EveriPassAction validates a link carrying domain/token/timestamp and
// either destroys the token (destroy flag) or, without that flag, only
// confirms the recovered key matches the token's owner set; the token's
// owner is not changed.
type EveriPassAction struct {
	Link string `json:"link"`
	Memo string `json:"memo"`
}

func handleEveriPass(ac *ApplyContext) error {
	act, err := decodeAction[EveriPassAction](ac.Action)
	if err != nil {
		return err
	}
	link, keys, err := decodeAndVerifyLink(act.Link)
	if err != nil {
		return err
	}
	flags, ok := link.Get(LinkKeyFlags)
	if !ok || flags.ValueU8&LinkFlagVersion1 == 0 || flags.ValueU8&LinkFlagEveriPass == 0 {
		return fmt.Errorf("%w: link is not a version1 everiPass link", ErrLinkType)
	}
	domainSeg, ok := link.Get(LinkKeyDomain)
	if !ok {
		return fmt.Errorf("%w: everiPass link missing domain segment", ErrLinkType)
	}
	tokenSeg, ok := link.Get(LinkKeyToken)
	if !ok {
		return fmt.Errorf("%w: everiPass link missing token segment", ErrLinkType)
	}
	tsSeg, ok := link.Get(LinkKeyTimestamp)
	if !ok {
		return fmt.Errorf("%w: everiPass link missing timestamp segment", ErrLinkType)
	}
	if err := checkLinkExpiration(ac.Config, ac.Now, tsSeg.ValueU32); err != nil {
		return err
	}
	domain, err := ParseName128(domainSeg.ValueStr)
	if err != nil {
		return err
	}
	name, err := ParseName128(tokenSeg.ValueStr)
	if err != nil {
		return err
	}
	t, err := GetTokenDef(ac.Cache, domain, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownToken, err)
	}
	if t.Destroyed() {
		return ErrTokenDestroyed
	}

	if flags.ValueU8&LinkFlagDestroy != 0 {
		// The destroy flag makes everiPass behave as if by destroytoken: the
		// same disable_destroy guard and Transfer permission apply, checked
		// against the key the link itself carries rather than the outer
		// transaction's signers.
		d, err := GetDomain(ac.Cache, domain)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnknownDomain, err)
		}
		if domainMetaFlag(d, ".disable_destroy") {
			return ErrDisableDestroy
		}
		if err := ac.Checker.Check(d.Transfer, t.Owner, keys); err != nil {
			return err
		}
		t.Owner = []Address{ReservedAddress}
		return PutTokenDef(ac.Cache, PutUpdate, t)
	}

	owners := NewKeySet()
	for _, o := range t.Owner {
		if o.Kind == AddressPublicKey {
			owners.Add(o.PubKey)
		}
	}
	recovered := keys.Keys()[0]
	if !owners.Contains(recovered) || owners.Len() != 1 {
		return fmt.Errorf("%w: recovered key does not equal the token's owner set", ErrUnsatisfiedAuth)
	}
	return nil
}

func HandleEveriPass(ac *ApplyContext) error   { return handleEveriPass(ac) }
func HandleEveriPassV2(ac *ApplyContext) error { return handleEveriPass(ac) }

// EveriPayAction validates a link carrying symbol_id/timestamp/(max_pay or
// max_pay_str)/(fixed_amount or fixed_amount_str)?/link_id, then moves
// Number from the recovered key's address to Payee.
type EveriPayAction struct {
	Link   string `json:"link"`
	Payee  Address `json:"payee"`
	Number Asset   `json:"number"`
}

func linkU32OrStr(link *Link, u32Key, strKey uint8) (uint64, bool, error) {
	u32Seg, hasU32 := link.Get(u32Key)
	strSeg, hasStr := link.Get(strKey)
	if hasU32 && hasStr {
		return 0, false, fmt.Errorf("%w: link segment %d and %d must not both be set", ErrInvalidArgument, u32Key, strKey)
	}
	if hasU32 {
		return uint64(u32Seg.ValueU32), true, nil
	}
	if hasStr {
		var v uint64
		if _, err := fmt.Sscanf(strSeg.ValueStr, "%d", &v); err != nil {
			return 0, false, fmt.Errorf("%w: malformed numeric string segment", ErrInvalidArgument)
		}
		return v, true, nil
	}
	return 0, false, nil
}

func handleEveriPay(ac *ApplyContext) error {
	act, err := decodeAction[EveriPayAction](ac.Action)
	if err != nil {
		return err
	}
	link, keys, err := decodeAndVerifyLink(act.Link)
	if err != nil {
		return err
	}
	flags, ok := link.Get(LinkKeyFlags)
	if !ok || flags.ValueU8&LinkFlagVersion1 == 0 || flags.ValueU8&LinkFlagEveriPay == 0 {
		return fmt.Errorf("%w: link is not a version1 everiPay link", ErrLinkType)
	}
	symSeg, ok := link.Get(LinkKeySymbolID)
	if !ok {
		return fmt.Errorf("%w: everiPay link missing symbol_id segment", ErrLinkType)
	}
	tsSeg, ok := link.Get(LinkKeyTimestamp)
	if !ok {
		return fmt.Errorf("%w: everiPay link missing timestamp segment", ErrLinkType)
	}
	if err := checkLinkExpiration(ac.Config, ac.Now, tsSeg.ValueU32); err != nil {
		return err
	}
	linkIDSeg, ok := link.Get(LinkKeyLinkID)
	if !ok {
		return ErrLinkID
	}
	if linkObjectExists(ac.DB, linkIDSeg.ValueUUID) {
		return ErrLinkDupe
	}
	fixed, hasFixed, err := linkU32OrStr(link, LinkKeyFixedAmount, LinkKeyFixedAmtStr)
	if err != nil {
		return err
	}
	maxPay, hasMax, err := linkU32OrStr(link, LinkKeyMaxPay, LinkKeyMaxPayStr)
	if err != nil {
		return err
	}
	if !hasMax {
		return fmt.Errorf("%w: everiPay link missing max_pay", ErrLinkType)
	}
	if act.Number.Sym.ID() != uint64(symSeg.ValueU32) {
		return fmt.Errorf("%w: payment symbol does not match link's symbol_id", ErrAssetSymbol)
	}
	if hasFixed && uint64(act.Number.Amount) != fixed {
		return fmt.Errorf("%w: paid amount does not match link's fixed_amount", ErrInvalidArgument)
	}
	if uint64(act.Number.Amount) > maxPay {
		return fmt.Errorf("%w: paid amount exceeds link's max_pay", ErrInvalidArgument)
	}
	payerKey := keys.Keys()[0]
	payer := NewPublicKeyAddress(payerKey)
	if payer.Equal(act.Payee) {
		return fmt.Errorf("%w: payer and payee must differ", ErrInvalidArgument)
	}
	f, err := GetFungible(ac.Cache, act.Number.Sym.ID())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownFungible, err)
	}
	if err := collectPassiveBonus(ac, f, payer, act.Number, "everipay"); err != nil {
		return err
	}
	if err := debitAddress(ac, payer, act.Number); err != nil {
		return err
	}
	if err := creditAddress(ac, act.Payee, act.Number, 0); err != nil {
		return err
	}
	return PutLinkObject(ac.Cache, JmzkLinkObject{LinkID: linkIDSeg.ValueUUID, TrxID: ac.proc.pt.ID(ac.ChainID)})
}

func HandleEveriPay(ac *ApplyContext) error   { return handleEveriPay(ac) }
func HandleEveriPayV2(ac *ApplyContext) error { return handleEveriPay(ac) }
