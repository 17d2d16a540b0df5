package core

import (
	"testing"
	"time"
)

func buildEveriPassLink(t *testing.T, priv PrivateKey, domain, token string, destroy bool) string {
	t.Helper()
	flags := LinkFlagVersion1 | LinkFlagEveriPass
	if destroy {
		flags |= LinkFlagDestroy
	}
	l := &Link{}
	l.AddSegment(LinkSegment{Key: LinkKeyFlags, ValueU8: flags})
	l.AddSegment(LinkSegment{Key: LinkKeyDomain, ValueStr: domain})
	l.AddSegment(LinkSegment{Key: LinkKeyToken, ValueStr: token})
	l.AddSegment(LinkSegment{Key: LinkKeyTimestamp, ValueU32: uint32(time.Now().Unix())})
	if err := l.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	text, err := l.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return text
}

func TestHandleEveriPassDestroysToken(t *testing.T) {
	owner, _ := GeneratePrivateKey()
	ac, _ := newTestApplyContext(t, owner.Public())
	ac.Config = DefaultChainConfig()
	setUpDomain(t, ac, owner.Public())
	ac.Action = actionWith("issuetoken", IssueTokenAction{Domain: "mydomain", Names: []string{"tokenone"}, Owner: []Address{NewPublicKeyAddress(owner.Public())}})
	if err := HandleIssueToken(ac); err != nil {
		t.Fatalf("HandleIssueToken: %v", err)
	}

	link := buildEveriPassLink(t, owner, "mydomain", "tokenone", true)
	ac.Action = actionWith("everipass", EveriPassAction{Link: link})
	if err := HandleEveriPass(ac); err != nil {
		t.Fatalf("HandleEveriPass: %v", err)
	}
	tok, err := GetTokenDef(ac.Cache, MustName128("mydomain"), MustName128("tokenone"))
	if err != nil {
		t.Fatalf("GetTokenDef: %v", err)
	}
	if !tok.Destroyed() {
		t.Fatal("expected everiPass with the destroy flag to destroy the token")
	}
}

func TestHandleEveriPassDestroyHonorsDisableDestroyMeta(t *testing.T) {
	owner, _ := GeneratePrivateKey()
	ac, _ := newTestApplyContext(t, owner.Public())
	ac.Config = DefaultChainConfig()
	setUpDomain(t, ac, owner.Public())
	ac.Action = actionWith("issuetoken", IssueTokenAction{Domain: "mydomain", Names: []string{"tokenone"}, Owner: []Address{NewPublicKeyAddress(owner.Public())}})
	if err := HandleIssueToken(ac); err != nil {
		t.Fatalf("HandleIssueToken: %v", err)
	}

	d, err := GetDomain(ac.Cache, MustName128("mydomain"))
	if err != nil {
		t.Fatalf("GetDomain: %v", err)
	}
	d.Metas = append(d.Metas, MetaEntry{Key: ".disable_destroy", Value: "true"})
	if err := PutDomain(ac.Cache, PutUpdate, d); err != nil {
		t.Fatalf("PutDomain: %v", err)
	}

	link := buildEveriPassLink(t, owner, "mydomain", "tokenone", true)
	ac.Action = actionWith("everipass", EveriPassAction{Link: link})
	if err := HandleEveriPass(ac); err == nil {
		t.Fatal("expected a disable_destroy domain to reject an everiPass destroy")
	}
	tok, err := GetTokenDef(ac.Cache, MustName128("mydomain"), MustName128("tokenone"))
	if err != nil {
		t.Fatalf("GetTokenDef: %v", err)
	}
	if tok.Destroyed() {
		t.Fatal("token must survive a rejected destroy attempt")
	}
}

func TestHandleEveriPassDestroyRequiresDomainTransferPermission(t *testing.T) {
	owner, _ := GeneratePrivateKey()
	manager, _ := GeneratePrivateKey()
	ac, _ := newTestApplyContext(t, owner.Public(), manager.Public())
	ac.Config = DefaultChainConfig()

	perm := ownerOnlyPermission(manager.Public())
	ac.Action = actionWith("newdomain", NewDomainAction{Name: "mydomain", Creator: manager.Public(), Issue: perm, Transfer: perm})
	if err := HandleNewDomain(ac); err != nil {
		t.Fatalf("HandleNewDomain: %v", err)
	}
	ac.Action = actionWith("issuetoken", IssueTokenAction{Domain: "mydomain", Names: []string{"tokenone"}, Owner: []Address{NewPublicKeyAddress(owner.Public())}})
	if err := HandleIssueToken(ac); err != nil {
		t.Fatalf("HandleIssueToken: %v", err)
	}

	// The link is signed by the token's owner, but the domain's Transfer
	// permission only lists the manager's key: the destroy branch must be
	// authorized by Transfer, not by a bare owner-equality check.
	link := buildEveriPassLink(t, owner, "mydomain", "tokenone", true)
	ac.Action = actionWith("everipass", EveriPassAction{Link: link})
	if err := HandleEveriPass(ac); err == nil {
		t.Fatal("expected destroy to require the domain's Transfer permission, not just owner equality")
	}
	tok, err := GetTokenDef(ac.Cache, MustName128("mydomain"), MustName128("tokenone"))
	if err != nil {
		t.Fatalf("GetTokenDef: %v", err)
	}
	if tok.Destroyed() {
		t.Fatal("token must survive a destroy attempt that fails the Transfer permission")
	}
}

func TestHandleEveriPassRejectsWrongSigner(t *testing.T) {
	owner, _ := GeneratePrivateKey()
	impostor, _ := GeneratePrivateKey()
	ac, _ := newTestApplyContext(t, owner.Public(), impostor.Public())
	ac.Config = DefaultChainConfig()
	setUpDomain(t, ac, owner.Public())
	ac.Action = actionWith("issuetoken", IssueTokenAction{Domain: "mydomain", Names: []string{"tokenone"}, Owner: []Address{NewPublicKeyAddress(owner.Public())}})
	if err := HandleIssueToken(ac); err != nil {
		t.Fatalf("HandleIssueToken: %v", err)
	}

	link := buildEveriPassLink(t, impostor, "mydomain", "tokenone", false)
	ac.Action = actionWith("everipass", EveriPassAction{Link: link})
	if err := HandleEveriPass(ac); err == nil {
		t.Fatal("expected error: link signer does not own the token")
	}
}

func TestHandleEveriPassRejectsExpiredLink(t *testing.T) {
	owner, _ := GeneratePrivateKey()
	ac, _ := newTestApplyContext(t, owner.Public())
	ac.Config = DefaultChainConfig()
	ac.Config.JmzkLinkExpiredSecs = 1
	setUpDomain(t, ac, owner.Public())
	ac.Action = actionWith("issuetoken", IssueTokenAction{Domain: "mydomain", Names: []string{"tokenone"}, Owner: []Address{NewPublicKeyAddress(owner.Public())}})
	if err := HandleIssueToken(ac); err != nil {
		t.Fatalf("HandleIssueToken: %v", err)
	}

	l := &Link{}
	l.AddSegment(LinkSegment{Key: LinkKeyFlags, ValueU8: LinkFlagVersion1 | LinkFlagEveriPass})
	l.AddSegment(LinkSegment{Key: LinkKeyDomain, ValueStr: "mydomain"})
	l.AddSegment(LinkSegment{Key: LinkKeyToken, ValueStr: "tokenone"})
	l.AddSegment(LinkSegment{Key: LinkKeyTimestamp, ValueU32: uint32(time.Now().Add(-time.Hour).Unix())})
	if err := l.Sign(owner); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	text, err := l.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ac.Action = actionWith("everipass", EveriPassAction{Link: text})
	if err := HandleEveriPass(ac); err == nil {
		t.Fatal("expected error for an expired link")
	}
}

func TestEveriPayMovesBalanceViaProcessor(t *testing.T) {
	payer, _ := GeneratePrivateKey()
	payeeKey, _ := GeneratePrivateKey()
	payee := NewPublicKeyAddress(payeeKey.Public())

	db := NewTDB()
	cache, err := NewCache(db, 64)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	sym, _ := NewSymbol(0, 10)
	f := FungibleDef{Name: MustName128("usd"), SymName: "USD", Sym: sym, Creator: payer.Public()}
	if err := PutFungible(cache, PutAdd, f); err != nil {
		t.Fatalf("PutFungible: %v", err)
	}
	payerAddr := NewPublicKeyAddress(payer.Public())
	if err := PutProperty(cache, payerAddr, sym, Property{Amount: 1000, Sym: sym, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("PutProperty: %v", err)
	}

	ec := NewExecutionContext()
	ec.Register("everipay", HandleEveriPay)

	cfg := DefaultChainConfig()
	p := NewProcessor(db, cache, ec, NewRegistry(), nil, cfg)

	l := &Link{}
	l.AddSegment(LinkSegment{Key: LinkKeyFlags, ValueU8: LinkFlagVersion1 | LinkFlagEveriPay})
	l.AddSegment(LinkSegment{Key: LinkKeySymbolID, ValueU32: uint32(sym.ID())})
	l.AddSegment(LinkSegment{Key: LinkKeyTimestamp, ValueU32: uint32(time.Now().Unix())})
	l.AddSegment(LinkSegment{Key: LinkKeyMaxPay, ValueU32: 500})
	l.AddSegment(LinkSegment{Key: LinkKeyLinkID, ValueUUID: [16]byte{9, 9, 9}})
	if err := l.Sign(payer); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	text, err := l.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	number, _ := NewAsset(100, sym)
	action := actionWith("everipay", EveriPayAction{Link: text, Payee: payee, Number: number})

	pt := buildSignedTransaction(t, payer, cfg.ChainID, []Action{action}, payerAddr)
	if err := p.Init(pt, 1, time.Now(), time.Time{}, 0, nativeBalanceOf(0)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := p.Exec(nil); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if _, err := p.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	payeeBalance, err := GetProperty(cache, payee, sym)
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	if payeeBalance.Amount != 100 {
		t.Fatalf("got payee balance %d, want 100", payeeBalance.Amount)
	}
	payerBalance, err := GetProperty(cache, payerAddr, sym)
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	if payerBalance.Amount != 900 {
		t.Fatalf("got payer balance %d, want 900", payerBalance.Amount)
	}
}
