package core

// RegisterActions wires every contract action's current (version-1) handler
// into ec. Later versions (the *V2 handlers) are registered as additional
// versions of the same action name so ExecutionContext.SetVersion/prodvote's
// "action-*" votes can promote them without replacing version 1 in place.
func RegisterActions(ec *ExecutionContext) {
	ec.Register("newdomain", HandleNewDomain)
	ec.Register("issuetoken", HandleIssueToken)
	ec.Register("transfer", HandleTransfer)
	ec.Register("destroytoken", HandleDestroyToken)
	ec.Register("addmeta", HandleAddMeta)

	ec.Register("newfungible", HandleNewFungible)
	ec.Register("newfungible", HandleNewFungibleV2)
	ec.Register("issuefungible", HandleIssueFungible)
	ec.Register("transferft", HandleTransferFt)
	ec.Register("recycleft", HandleRecycleFt)
	ec.Register("destroyft", HandleDestroyFt)

	ec.Register("newsuspend", HandleNewSuspend)
	ec.Register("aprvsuspend", HandleAprvSuspend)
	ec.Register("cancelsuspend", HandleCancelSuspend)
	ec.Register("execsuspend", HandleExecSuspend)

	ec.Register("newlock", HandleNewLock)
	ec.Register("aprvlock", HandleAprvLock)
	ec.Register("tryunlock", HandleTryUnlock)

	ec.Register("setpsvbonus", HandleSetPsvBonus)
	ec.Register("setpsvbonus", HandleSetPsvBonusV2)
	ec.Register("distpsvbonus", HandleDistPsvBonus)

	ec.Register("everipass", HandleEveriPass)
	ec.Register("everipass", HandleEveriPassV2)
	ec.Register("everipay", HandleEveriPay)
	ec.Register("everipay", HandleEveriPayV2)

	ec.Register("newscript", HandleNewScript)
	ec.Register("updscript", HandleUpdScript)

	ec.Register("newvalidator", HandleNewValidator)
	ec.Register("staketkns", HandleStakeTkns)
	ec.Register("unstaketkns", HandleUnstakeTkns)
	ec.Register("toactivetkns", HandleToActiveTkns)
	ec.Register("valiwithdraw", HandleValiWithdraw)
	ec.Register("recvstkbonus", HandleRecvStkBonus)

	ec.Register("prodvote", HandleProdVote)
}

// RegisterActionCosts installs the per-action cost overrides that differ
// from the default charge formula; every action not listed here falls back
// to the
// charge manager's defaults (cpu=15, storage=len(data), extra_factor=10).
func RegisterActionCosts(cm *ChargeManager) {
	cm.RegisterActionCost("issuetoken", func(a Action) ActionChargeParams {
		act, err := decodeAction[IssueTokenAction](a)
		names := 1
		if err == nil && len(act.Names) > 0 {
			names = len(act.Names)
		}
		return ActionChargeParams{CPU: uint64(3*(names-1) + 15), Storage: uint64(len(a.Data))}
	})
	cm.RegisterActionCost("addmeta", func(a Action) ActionChargeParams {
		return ActionChargeParams{CPU: 600, Storage: uint64(len(a.Data))}
	})
	cm.RegisterActionCost("issuefungible", func(a Action) ActionChargeParams {
		act, err := decodeAction[IssueFungibleAction](a)
		if err == nil && act.Number.Sym.IsNative() {
			return ActionChargeParams{CPU: defaultActionCPU, Storage: uint64(len(a.Data)), ExplicitZeroExtra: true}
		}
		return ActionChargeParams{CPU: defaultActionCPU, Storage: uint64(len(a.Data))}
	})
}
