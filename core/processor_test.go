package core

import (
	"errors"
	"testing"
	"time"
)

func buildSignedTransaction(t *testing.T, priv PrivateKey, chainID Digest, actions []Action, payer Address) PackedTransaction {
	t.Helper()
	trx := Transaction{
		Header: TransactionHeader{Expiration: uint32(time.Now().Add(time.Hour).Unix())},
		Actions: actions,
		Payer:   payer,
	}
	d := trx.SigDigest(chainID)
	sig, err := priv.Sign(d)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return PackedTransaction{Trx: trx, Signatures: []Signature{sig}}
}

func nativeBalanceOf(amount uint64) func(Address, Symbol) (Asset, error) {
	return func(Address, Symbol) (Asset, error) {
		return Asset{Amount: int64(amount)}, nil
	}
}

func TestProcessorHappyPathCommits(t *testing.T) {
	priv, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	payer := NewPublicKeyAddress(priv.Public())

	db := NewTDB()
	ec := NewExecutionContext()
	ran := false
	ec.Register("noop", func(ctx *ApplyContext) error { ran = true; return nil })

	cfg := DefaultChainConfig()
	p := NewProcessor(db, nil, ec, NewRegistry(), nil, cfg)

	pt := buildSignedTransaction(t, priv, cfg.ChainID, []Action{{Name: "noop"}}, payer)

	if err := p.Init(pt, 1, time.Now(), time.Time{}, 0, nativeBalanceOf(0)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := p.Exec(nil); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	trace, err := p.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !ran {
		t.Fatal("expected noop handler to run")
	}
	if trace.Except != nil {
		t.Fatalf("expected no exception, got %v", trace.Except)
	}
	if p.State() != StateCommitted {
		t.Fatalf("got state %v, want StateCommitted", p.State())
	}
}

func TestProcessorRejectsEmptyActions(t *testing.T) {
	priv, _ := GeneratePrivateKey()
	payer := NewPublicKeyAddress(priv.Public())
	db := NewTDB()
	ec := NewExecutionContext()
	cfg := DefaultChainConfig()
	p := NewProcessor(db, nil, ec, NewRegistry(), nil, cfg)
	pt := buildSignedTransaction(t, priv, cfg.ChainID, nil, payer)
	if err := p.Init(pt, 1, time.Now(), time.Time{}, 0, nativeBalanceOf(0)); err == nil {
		t.Fatal("expected error for a transaction with no actions")
	}
}

func TestProcessorRejectsExpiredTransaction(t *testing.T) {
	priv, _ := GeneratePrivateKey()
	payer := NewPublicKeyAddress(priv.Public())
	db := NewTDB()
	ec := NewExecutionContext()
	ec.Register("noop", func(ctx *ApplyContext) error { return nil })
	cfg := DefaultChainConfig()
	p := NewProcessor(db, nil, ec, NewRegistry(), nil, cfg)

	trx := Transaction{
		Header: TransactionHeader{Expiration: uint32(time.Now().Add(-time.Hour).Unix())},
		Actions: []Action{{Name: "noop"}},
		Payer:   payer,
	}
	d := trx.SigDigest(cfg.ChainID)
	sig, _ := priv.Sign(d)
	pt := PackedTransaction{Trx: trx, Signatures: []Signature{sig}}

	if err := p.Init(pt, 1, time.Now(), time.Time{}, 0, nativeBalanceOf(0)); err == nil {
		t.Fatal("expected error for an expired transaction")
	}
}

func TestProcessorAbortRollsBackMutations(t *testing.T) {
	priv, _ := GeneratePrivateKey()
	payer := NewPublicKeyAddress(priv.Public())

	db := NewTDB()
	domain := MustName128("mydomain")
	key := MustName128("alice")

	ec := NewExecutionContext()
	ec.Register("writethenfail", func(ctx *ApplyContext) error {
		if err := ctx.DB.PutToken(TokenTypeDomain, PutAdd, domain, key, []byte("v1")); err != nil {
			return err
		}
		return ErrInvalidArgument
	})

	cfg := DefaultChainConfig()
	p := NewProcessor(db, nil, ec, NewRegistry(), nil, cfg)
	pt := buildSignedTransaction(t, priv, cfg.ChainID, []Action{{Name: "writethenfail"}}, payer)

	if err := p.Init(pt, 1, time.Now(), time.Time{}, 0, nativeBalanceOf(0)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := p.Exec(nil); err == nil {
		t.Fatal("expected Exec to fail")
	}
	if p.State() != StateAborted {
		t.Fatalf("got state %v, want StateAborted", p.State())
	}
	if db.ExistsToken(TokenTypeDomain, domain, key) {
		t.Fatal("expected aborted transaction's write to be rolled back")
	}
}

func TestProcessorRejectsUnsignedPayer(t *testing.T) {
	priv, _ := GeneratePrivateKey()
	other, _ := GeneratePrivateKey()
	payer := NewPublicKeyAddress(other.Public())

	db := NewTDB()
	ec := NewExecutionContext()
	ec.Register("noop", func(ctx *ApplyContext) error { return nil })
	cfg := DefaultChainConfig()
	cfg.Charge.GlobalFactor = 1_000_000
	p := NewProcessor(db, nil, ec, NewRegistry(), nil, cfg)

	pt := buildSignedTransaction(t, priv, cfg.ChainID, []Action{{Name: "noop"}}, payer)
	if err := p.Init(pt, 1, time.Now(), time.Time{}, 1000, nativeBalanceOf(1_000_000)); err == nil {
		t.Fatal("expected error: payer address never signed the transaction")
	}
}

func TestProcessorRejectsNetUsageExceeded(t *testing.T) {
	priv, _ := GeneratePrivateKey()
	payer := NewPublicKeyAddress(priv.Public())
	db := NewTDB()
	ec := NewExecutionContext()
	ec.Register("noop", func(ctx *ApplyContext) error { return nil })
	cfg := DefaultChainConfig()
	cfg.TxNetUsageLimit = 10
	p := NewProcessor(db, nil, ec, NewRegistry(), nil, cfg)

	pt := buildSignedTransaction(t, priv, cfg.ChainID, []Action{{Name: "noop"}}, payer)
	// unprunableSize alone (1000) already dwarfs the 10-unit limit, well
	// before the per-signature SigSize term is even added in.
	err := p.Init(pt, 1, time.Now(), time.Time{}, 1000, nativeBalanceOf(0))
	if !errors.Is(err, ErrTxNetUsageExceeded) {
		t.Fatalf("got %v, want ErrTxNetUsageExceeded", err)
	}
	if p.State() != StateAborted {
		t.Fatalf("got state %v, want StateAborted", p.State())
	}
}

func TestProcessorAllowsNetUsageWithinLimit(t *testing.T) {
	priv, _ := GeneratePrivateKey()
	payer := NewPublicKeyAddress(priv.Public())
	db := NewTDB()
	ec := NewExecutionContext()
	ec.Register("noop", func(ctx *ApplyContext) error { return nil })
	cfg := DefaultChainConfig()
	cfg.TxNetUsageLimit = 1 << 20
	p := NewProcessor(db, nil, ec, NewRegistry(), nil, cfg)

	pt := buildSignedTransaction(t, priv, cfg.ChainID, []Action{{Name: "noop"}}, payer)
	if err := p.Init(pt, 1, time.Now(), time.Time{}, 0, nativeBalanceOf(0)); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

func TestProcessorFollowOnActionsRunInSameTransaction(t *testing.T) {
	priv, _ := GeneratePrivateKey()
	payer := NewPublicKeyAddress(priv.Public())

	db := NewTDB()
	ec := NewExecutionContext()
	followOnRan := false
	ec.Register("parent", func(ctx *ApplyContext) error {
		ctx.PushFollowOn(Action{Name: "child"})
		return nil
	})
	ec.Register("child", func(ctx *ApplyContext) error { followOnRan = true; return nil })

	cfg := DefaultChainConfig()
	p := NewProcessor(db, nil, ec, NewRegistry(), nil, cfg)
	pt := buildSignedTransaction(t, priv, cfg.ChainID, []Action{{Name: "parent"}}, payer)

	if err := p.Init(pt, 1, time.Now(), time.Time{}, 0, nativeBalanceOf(0)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := p.Exec(nil); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if _, err := p.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !followOnRan {
		t.Fatal("expected follow-on action to run within the same transaction")
	}
}
