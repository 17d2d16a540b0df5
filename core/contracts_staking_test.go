package core

import (
	"testing"
	"time"
)

func TestStakingLifecycle(t *testing.T) {
	validatorOwner, _ := GeneratePrivateKey()
	staker, _ := GeneratePrivateKey()
	ac, cache := newTestApplyContext(t, validatorOwner.Public(), staker.Public())

	native, err := NewSymbol(0, NativeSymbolID)
	if err != nil {
		t.Fatalf("NewSymbol: %v", err)
	}
	stakerAddr := NewPublicKeyAddress(staker.Public())
	if err := PutProperty(cache, stakerAddr, native, Property{Amount: 50_000, Sym: native, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("PutProperty: %v", err)
	}

	ac.Action = actionWith("newvalidator", NewValidatorAction{Name: "myvalidator", Owner: validatorOwner.Public(), CommissionBP: 1000})
	if err := HandleNewValidator(ac); err != nil {
		t.Fatalf("HandleNewValidator: %v", err)
	}

	stake, _ := NewAsset(10_000, native)
	ac.Action = actionWith("staketkns", StakeTknsAction{Validator: "myvalidator", Staker: staker.Public(), Amount: stake})
	if err := HandleStakeTkns(ac); err != nil {
		t.Fatalf("HandleStakeTkns: %v", err)
	}
	r, err := GetStakeRecord(cache, MustName128("myvalidator"), staker.Public())
	if err != nil {
		t.Fatalf("GetStakeRecord: %v", err)
	}
	if r.Pending != 10_000 {
		t.Fatalf("got pending %d, want 10000", r.Pending)
	}

	ac.Action = actionWith("toactivetkns", ToActiveTknsAction{Validator: "myvalidator", Staker: staker.Public()})
	if err := HandleToActiveTkns(ac); err != nil {
		t.Fatalf("HandleToActiveTkns: %v", err)
	}
	r, err = GetStakeRecord(cache, MustName128("myvalidator"), staker.Public())
	if err != nil {
		t.Fatalf("GetStakeRecord: %v", err)
	}
	if r.Active != 10_000 || r.Pending != 0 {
		t.Fatalf("got active=%d pending=%d, want active=10000 pending=0", r.Active, r.Pending)
	}

	ac.Action = actionWith("recvstkbonus", RecvStkBonusAction{Validator: "myvalidator", Staker: staker.Public(), Amount: 1_000})
	if err := HandleRecvStkBonus(ac); err != nil {
		t.Fatalf("HandleRecvStkBonus: %v", err)
	}
	r, err = GetStakeRecord(cache, MustName128("myvalidator"), staker.Public())
	if err != nil {
		t.Fatalf("GetStakeRecord: %v", err)
	}
	// 10% commission on a bonus of 1000 leaves 900 net for the staker.
	if r.Active != 10_900 {
		t.Fatalf("got active %d, want 10900 after a 10%% commission bonus", r.Active)
	}

	ac.Action = actionWith("unstaketkns", UnstakeTknsAction{Validator: "myvalidator", Staker: staker.Public(), Amount: 4_000})
	if err := HandleUnstakeTkns(ac); err != nil {
		t.Fatalf("HandleUnstakeTkns: %v", err)
	}
	r, err = GetStakeRecord(cache, MustName128("myvalidator"), staker.Public())
	if err != nil {
		t.Fatalf("GetStakeRecord: %v", err)
	}
	if r.Active != 6_900 || r.Withdrawing != 4_000 {
		t.Fatalf("got active=%d withdrawing=%d, want active=6900 withdrawing=4000", r.Active, r.Withdrawing)
	}

	ac.Action = actionWith("valiwithdraw", ValiWithdrawAction{Validator: "myvalidator", Staker: staker.Public()})
	if err := HandleValiWithdraw(ac); err != nil {
		t.Fatalf("HandleValiWithdraw: %v", err)
	}
	r, err = GetStakeRecord(cache, MustName128("myvalidator"), staker.Public())
	if err != nil {
		t.Fatalf("GetStakeRecord: %v", err)
	}
	if r.Withdrawing != 0 {
		t.Fatalf("got withdrawing %d, want 0 after valiwithdraw", r.Withdrawing)
	}
	stakerBal, err := GetProperty(cache, stakerAddr, native)
	if err != nil {
		t.Fatalf("GetProperty staker: %v", err)
	}
	// started with 50000, staked 10000 away, got 4000 back: 50000-10000+4000=44000.
	if stakerBal.Amount != 44_000 {
		t.Fatalf("got staker balance %d, want 44000", stakerBal.Amount)
	}
}

func TestHandleUnstakeTknsRejectsExceedingActive(t *testing.T) {
	validatorOwner, _ := GeneratePrivateKey()
	staker, _ := GeneratePrivateKey()
	ac, cache := newTestApplyContext(t, validatorOwner.Public(), staker.Public())
	ac.Action = actionWith("newvalidator", NewValidatorAction{Name: "myvalidator", Owner: validatorOwner.Public()})
	if err := HandleNewValidator(ac); err != nil {
		t.Fatalf("HandleNewValidator: %v", err)
	}
	r := StakeRecord{Validator: MustName128("myvalidator"), Staker: staker.Public(), Active: 100}
	if err := PutStakeRecord(cache, PutAdd, r); err != nil {
		t.Fatalf("PutStakeRecord: %v", err)
	}
	ac.Action = actionWith("unstaketkns", UnstakeTknsAction{Validator: "myvalidator", Staker: staker.Public(), Amount: 500})
	if err := HandleUnstakeTkns(ac); err == nil {
		t.Fatal("expected error unstaking more than the active balance")
	}
}

func TestHandleNewValidatorRejectsOutOfRangeCommission(t *testing.T) {
	owner, _ := GeneratePrivateKey()
	ac, _ := newTestApplyContext(t, owner.Public())
	ac.Action = actionWith("newvalidator", NewValidatorAction{Name: "myvalidator", Owner: owner.Public(), CommissionBP: 20000})
	if err := HandleNewValidator(ac); err == nil {
		t.Fatal("expected error: commission_bp must be <= 10000")
	}
}

func TestHandleToActiveTknsRejectsWithNothingPending(t *testing.T) {
	owner, _ := GeneratePrivateKey()
	staker, _ := GeneratePrivateKey()
	ac, _ := newTestApplyContext(t, owner.Public(), staker.Public())
	ac.Action = actionWith("newvalidator", NewValidatorAction{Name: "myvalidator", Owner: owner.Public()})
	if err := HandleNewValidator(ac); err != nil {
		t.Fatalf("HandleNewValidator: %v", err)
	}
	ac.Action = actionWith("toactivetkns", ToActiveTknsAction{Validator: "myvalidator", Staker: staker.Public()})
	if err := HandleToActiveTkns(ac); err == nil {
		t.Fatal("expected error: no stake position exists for this staker")
	}
}
