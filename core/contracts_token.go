package core

import "fmt"

// IssueTokenAction batches new NFTs under one domain.
type IssueTokenAction struct {
	Domain string   `json:"domain"`
	Names  []string `json:"names"`
	Owner  []Address `json:"owner"`
}

func HandleIssueToken(ac *ApplyContext) error {
	act, err := decodeAction[IssueTokenAction](ac.Action)
	if err != nil {
		return err
	}
	domain, err := ParseName128(act.Domain)
	if err != nil {
		return err
	}
	d, err := GetDomain(ac.Cache, domain)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownDomain, err)
	}
	if err := ac.Authorize(d.Issue, nil); err != nil {
		return err
	}
	names := make([]Name128, 0, len(act.Names))
	for _, s := range act.Names {
		n, err := ParseName128(s)
		if err != nil {
			return err
		}
		if n.Reserved() {
			return fmt.Errorf("%w: token name %q is reserved", ErrInvalidArgument, s)
		}
		if ac.DB.ExistsToken(TokenTypeToken, domain, n) {
			return fmt.Errorf("%w: token %q already exists in domain %q", ErrDuplicateToken, s, act.Domain)
		}
		names = append(names, n)
	}
	for _, n := range names {
		t := TokenDef{Domain: domain, Name: n, Owner: append([]Address{}, act.Owner...)}
		if err := PutTokenDef(ac.Cache, PutAdd, t); err != nil {
			return err
		}
	}
	return nil
}

// TransferAction replaces a token's owner list.
type TransferAction struct {
	Domain string    `json:"domain"`
	Name   string     `json:"name"`
	To     []Address `json:"to"`
}

func HandleTransfer(ac *ApplyContext) error {
	act, err := decodeAction[TransferAction](ac.Action)
	if err != nil {
		return err
	}
	domain, err := ParseName128(act.Domain)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Name)
	if err != nil {
		return err
	}
	d, err := GetDomain(ac.Cache, domain)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownDomain, err)
	}
	t, err := GetTokenDef(ac.Cache, domain, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownToken, err)
	}
	if t.Destroyed() {
		return ErrTokenDestroyed
	}
	if t.Locked() {
		return ErrTokenLocked
	}
	if err := ac.Authorize(d.Transfer, t.Owner); err != nil {
		return err
	}
	t.Owner = append([]Address{}, act.To...)
	return PutTokenDef(ac.Cache, PutUpdate, t)
}

// DestroyTokenAction marks a token destroyed (owner := [reserved]).
type DestroyTokenAction struct {
	Domain string `json:"domain"`
	Name   string `json:"name"`
}

func HandleDestroyToken(ac *ApplyContext) error {
	act, err := decodeAction[DestroyTokenAction](ac.Action)
	if err != nil {
		return err
	}
	domain, err := ParseName128(act.Domain)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Name)
	if err != nil {
		return err
	}
	d, err := GetDomain(ac.Cache, domain)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownDomain, err)
	}
	if domainMetaFlag(d, ".disable_destroy") {
		return ErrDisableDestroy
	}
	t, err := GetTokenDef(ac.Cache, domain, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownToken, err)
	}
	if t.Destroyed() {
		return ErrTokenDestroyed
	}
	if err := ac.Authorize(d.Transfer, t.Owner); err != nil {
		return err
	}
	t.Owner = []Address{ReservedAddress}
	return PutTokenDef(ac.Cache, PutUpdate, t)
}

// reservedMetaKeys names meta keys that are only valid on the subsystem
// they describe.
var reservedMetaKeys = map[string]bool{
	".disable_destroy": true,
}

// AddMetaAction appends one (key, value) to a domain/token/group/fungible's
// meta list.
type AddMetaAction struct {
	Target  string    `json:"target"` // "domain:<name>" | "token:<domain>/<name>" | "fungible:<symid>" | "group:<name>"
	Key     string    `json:"key"`
	Value   string    `json:"value"`
	Creator AuthorizerRef `json:"creator"`
}

func checkDuplicateMeta(metas []MetaEntry, key string) error {
	for _, m := range metas {
		if m.Key == key {
			return ErrDuplicateMetaKey
		}
	}
	return nil
}

func checkReservedMeta(key string, allowedSubsystem bool) error {
	if reservedMetaKeys[key] && !allowedSubsystem {
		return ErrReservedMetaKey
	}
	return nil
}

// HandleAddMeta involves the creator check ("meta_involve": the creator
// ref must itself be, or resolve through, the target's owner/issuer/manager
// permission) before appending.
func HandleAddMeta(ac *ApplyContext) error {
	act, err := decodeAction[AddMetaAction](ac.Action)
	if err != nil {
		return err
	}
	mt, owners, apply, err := resolveMetaTarget(ac, act.Target)
	if err != nil {
		return err
	}
	if err := checkDuplicateMeta(mt.metas, act.Key); err != nil {
		return err
	}
	if err := checkReservedMeta(act.Key, mt.allowedReserved); err != nil {
		return err
	}
	involved := false
	for _, wa := range mt.perm.Authorizers {
		if wa.Ref.Equal(act.Creator) {
			involved = true
			break
		}
	}
	if mt.perm.Threshold == 0 && !involved {
		// token metas: creator must be one of the token's current owners
		if act.Creator.Kind == AuthorizerAccount {
			for _, o := range owners {
				if o.Kind == AddressPublicKey && o.PubKey.Equal(act.Creator.Account) {
					involved = true
					break
				}
			}
		}
	}
	if !involved {
		return ErrMetaInvolve
	}
	if err := ac.Authorize(mt.perm, owners); err != nil {
		return err
	}
	return apply(MetaEntry{Key: act.Key, Value: act.Value, Creator: act.Creator})
}

type metaTarget struct {
	perm            PermissionDef
	metas           []MetaEntry
	allowedReserved bool
}

func resolveMetaTarget(ac *ApplyContext, target string) (metaTarget, []Address, func(MetaEntry) error, error) {
	var kind, rest string
	for i := 0; i < len(target); i++ {
		if target[i] == ':' {
			kind, rest = target[:i], target[i+1:]
			break
		}
	}
	switch kind {
	case "domain":
		name, err := ParseName128(rest)
		if err != nil {
			return metaTarget{}, nil, nil, err
		}
		d, err := GetDomain(ac.Cache, name)
		if err != nil {
			return metaTarget{}, nil, nil, fmt.Errorf("%w: %v", ErrUnknownDomain, err)
		}
		mt := metaTarget{perm: d.Manage, metas: d.Metas, allowedReserved: true}
		apply := func(m MetaEntry) error {
			d.Metas = append(d.Metas, m)
			return PutDomain(ac.Cache, PutUpdate, d)
		}
		return mt, nil, apply, nil
	case "fungible":
		var symID uint64
		fmt.Sscanf(rest, "%d", &symID)
		f, err := GetFungible(ac.Cache, symID)
		if err != nil {
			return metaTarget{}, nil, nil, fmt.Errorf("%w: %v", ErrUnknownFungible, err)
		}
		mt := metaTarget{perm: f.Manage, metas: f.Metas}
		apply := func(m MetaEntry) error {
			f.Metas = append(f.Metas, m)
			return PutFungible(ac.Cache, PutUpdate, f)
		}
		return mt, nil, apply, nil
	case "token":
		var domainStr, nameStr string
		for i := 0; i < len(rest); i++ {
			if rest[i] == '/' {
				domainStr, nameStr = rest[:i], rest[i+1:]
				break
			}
		}
		domain, err := ParseName128(domainStr)
		if err != nil {
			return metaTarget{}, nil, nil, err
		}
		name, err := ParseName128(nameStr)
		if err != nil {
			return metaTarget{}, nil, nil, err
		}
		t, err := GetTokenDef(ac.Cache, domain, name)
		if err != nil {
			return metaTarget{}, nil, nil, fmt.Errorf("%w: %v", ErrUnknownToken, err)
		}
		if t.Destroyed() {
			return metaTarget{}, nil, nil, ErrTokenDestroyed
		}
		mt := metaTarget{perm: PermissionDef{Threshold: 0}, metas: t.Metas}
		apply := func(m MetaEntry) error {
			t.Metas = append(t.Metas, m)
			return PutTokenDef(ac.Cache, PutUpdate, t)
		}
		return mt, t.Owner, apply, nil
	case "group":
		name, err := ParseName128(rest)
		if err != nil {
			return metaTarget{}, nil, nil, err
		}
		if _, err := GetGroup(ac.Cache, name); err != nil {
			return metaTarget{}, nil, nil, fmt.Errorf("%w: %v", ErrUnknownGroup, err)
		}
		return metaTarget{}, nil, nil, fmt.Errorf("%w: group metas are not supported", ErrInvalidArgument)
	default:
		return metaTarget{}, nil, nil, fmt.Errorf("%w: unknown addmeta target kind %q", ErrInvalidArgument, kind)
	}
}
