package core

import (
	"testing"
	"time"
)

func TestSuspendProposeApproveExecuteLifecycle(t *testing.T) {
	proposer, _ := GeneratePrivateKey()
	payer := NewPublicKeyAddress(proposer.Public())

	db := NewTDB()
	cache, err := NewCache(db, 64)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	marked := false
	ec := NewExecutionContext()
	ec.Register("mark", func(ctx *ApplyContext) error { marked = true; return nil })
	ec.Register("newsuspend", HandleNewSuspend)
	ec.Register("aprvsuspend", HandleAprvSuspend)
	ec.Register("execsuspend", HandleExecSuspend)

	cfg := DefaultChainConfig()
	p := NewProcessor(db, cache, ec, NewRegistry(), nil, cfg)

	innerTrx := Transaction{
		Header:  TransactionHeader{Expiration: uint32(time.Now().Add(time.Hour).Unix())},
		Actions: []Action{{Name: "mark"}},
		Payer:   payer,
	}
	innerPT := PackedTransaction{Trx: innerTrx}

	newSuspend := actionWith("newsuspend", NewSuspendAction{Name: "myproposal", Proposer: proposer.Public(), Trx: innerPT})
	pt := buildSignedTransaction(t, proposer, cfg.ChainID, []Action{newSuspend}, payer)
	if err := p.Init(pt, 1, time.Now(), time.Time{}, 0, nativeBalanceOf(0)); err != nil {
		t.Fatalf("Init newsuspend: %v", err)
	}
	if err := p.Exec(nil); err != nil {
		t.Fatalf("Exec newsuspend: %v", err)
	}
	if _, err := p.Finalize(); err != nil {
		t.Fatalf("Finalize newsuspend: %v", err)
	}

	execSuspend := actionWith("execsuspend", ExecSuspendAction{Name: "myproposal", Executor: proposer.Public()})
	pt = buildSignedTransaction(t, proposer, cfg.ChainID, []Action{execSuspend}, payer)
	p = NewProcessor(db, cache, ec, NewRegistry(), nil, cfg)
	if err := p.Init(pt, 2, time.Now(), time.Time{}, 0, nativeBalanceOf(0)); err != nil {
		t.Fatalf("Init execsuspend: %v", err)
	}
	if err := p.Exec(nil); err != nil {
		t.Fatalf("Exec execsuspend: %v", err)
	}
	if _, err := p.Finalize(); err != nil {
		t.Fatalf("Finalize execsuspend: %v", err)
	}
	if !marked {
		t.Fatal("expected the suspended inner action to run on execution")
	}

	s, err := GetSuspend(cache, MustName128("myproposal"))
	if err != nil {
		t.Fatalf("GetSuspend: %v", err)
	}
	if s.Status != SuspendExecuted {
		t.Fatalf("got status %v, want SuspendExecuted", s.Status)
	}
}

func TestHandleNewSuspendRejectsDeferrableInnerAction(t *testing.T) {
	proposer, _ := GeneratePrivateKey()
	ac, _ := newTestApplyContext(t, proposer.Public())
	innerTrx := Transaction{Actions: []Action{{Name: "everipay"}}}
	ac.Action = actionWith("newsuspend", NewSuspendAction{Name: "badproposal", Proposer: proposer.Public(), Trx: PackedTransaction{Trx: innerTrx}})
	if err := HandleNewSuspend(ac); err == nil {
		t.Fatal("expected error: suspend proposals cannot contain deferrable actions")
	}
}

func TestHandleNewSuspendRejectsDuplicateName(t *testing.T) {
	proposer, _ := GeneratePrivateKey()
	ac, _ := newTestApplyContext(t, proposer.Public())
	innerTrx := Transaction{Actions: []Action{{Name: "mark"}}}
	act := NewSuspendAction{Name: "myproposal", Proposer: proposer.Public(), Trx: PackedTransaction{Trx: innerTrx}}
	ac.Action = actionWith("newsuspend", act)
	if err := HandleNewSuspend(ac); err != nil {
		t.Fatalf("HandleNewSuspend: %v", err)
	}
	ac.Action = actionWith("newsuspend", act)
	if err := HandleNewSuspend(ac); err == nil {
		t.Fatal("expected error for a duplicate suspend proposal name")
	}
}

func TestHandleCancelSuspendRequiresProposerAuthorization(t *testing.T) {
	proposer, _ := GeneratePrivateKey()
	other, _ := GeneratePrivateKey()
	ac, _ := newTestApplyContext(t, other.Public())
	innerTrx := Transaction{Actions: []Action{{Name: "mark"}}}
	ac.Action = actionWith("newsuspend", NewSuspendAction{Name: "myproposal", Proposer: proposer.Public(), Trx: PackedTransaction{Trx: innerTrx}})
	if err := HandleNewSuspend(ac); err != nil {
		t.Fatalf("HandleNewSuspend: %v", err)
	}
	ac.Action = actionWith("cancelsuspend", CancelSuspendAction{Name: "myproposal"})
	if err := HandleCancelSuspend(ac); err == nil {
		t.Fatal("expected error: only the proposer's key can cancel")
	}
}

func TestHandleCancelSuspendSucceedsForProposer(t *testing.T) {
	proposer, _ := GeneratePrivateKey()
	ac, cache := newTestApplyContext(t, proposer.Public())
	innerTrx := Transaction{Actions: []Action{{Name: "mark"}}}
	ac.Action = actionWith("newsuspend", NewSuspendAction{Name: "myproposal", Proposer: proposer.Public(), Trx: PackedTransaction{Trx: innerTrx}})
	if err := HandleNewSuspend(ac); err != nil {
		t.Fatalf("HandleNewSuspend: %v", err)
	}
	ac.Action = actionWith("cancelsuspend", CancelSuspendAction{Name: "myproposal"})
	if err := HandleCancelSuspend(ac); err != nil {
		t.Fatalf("HandleCancelSuspend: %v", err)
	}
	s, err := GetSuspend(cache, MustName128("myproposal"))
	if err != nil {
		t.Fatalf("GetSuspend: %v", err)
	}
	if s.Status != SuspendCancelled {
		t.Fatalf("got status %v, want SuspendCancelled", s.Status)
	}
}
