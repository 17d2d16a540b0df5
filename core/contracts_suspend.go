package core

import "fmt"

// deferrableActionNames cannot appear inside a suspend proposal's inner
// transaction.
var deferrableActionNames = map[string]bool{
	"everipay":  true,
	"everipay2": true,
	"everipass": true,
}

const suspendDomainPrefix = ".suspend"

func checkSuspendableInner(trx Transaction) error {
	for _, a := range trx.Actions {
		if deferrableActionNames[a.Name] {
			return fmt.Errorf("%w: %q", ErrSuspendDeferred, a.Name)
		}
		if a.Domain.String() == suspendDomainPrefix {
			return fmt.Errorf("%w: actions in the .suspend domain", ErrSuspendDeferred)
		}
	}
	return nil
}

// NewSuspendAction stores a proposed inner transaction.
type NewSuspendAction struct {
	Name     string             `json:"name"`
	Proposer PublicKey          `json:"proposer"`
	Trx      PackedTransaction  `json:"trx"`
}

func HandleNewSuspend(ac *ApplyContext) error {
	act, err := decodeAction[NewSuspendAction](ac.Action)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Name)
	if err != nil {
		return err
	}
	if ac.DB.ExistsToken(TokenTypeSuspend, Name128{}, name) {
		return ErrDuplicateSuspend
	}
	if err := checkSuspendableInner(act.Trx.Trx); err != nil {
		return err
	}
	s := SuspendDef{Name: name, Proposer: act.Proposer, Status: SuspendProposed, Trx: act.Trx}
	return PutSuspend(ac.Cache, PutAdd, s)
}

// AprvSuspendAction merges newly observed signatures into signed_keys.
type AprvSuspendAction struct {
	Name       string    `json:"name"`
	Signatures []Signature `json:"signatures"`
}

func HandleAprvSuspend(ac *ApplyContext) error {
	act, err := decodeAction[AprvSuspendAction](ac.Action)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Name)
	if err != nil {
		return err
	}
	s, err := GetSuspend(ac.Cache, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownSuspend, err)
	}
	if s.Status != SuspendProposed {
		return ErrSuspendNotProposed
	}
	digest := s.Trx.Trx.SigDigest(ac.ChainID)
	existing := NewKeySet(s.SignedKeys...)
	added := false
	for _, sig := range act.Signatures {
		pk, err := sig.RecoverPublicKey(digest)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		if existing.Contains(pk) {
			continue // already recorded; the inner transaction's required key set is not checked
		}
		existing.Add(pk)
		s.SignedKeys = append(s.SignedKeys, pk)
		s.Signatures = append(s.Signatures, sig)
		added = true
	}
	if !added {
		return fmt.Errorf("%w: no new signatures to approve with", ErrInvalidArgument)
	}
	return PutSuspend(ac.Cache, PutUpdate, s)
}

// CancelSuspendAction terminates a proposal without execution.
type CancelSuspendAction struct {
	Name string `json:"name"`
}

func HandleCancelSuspend(ac *ApplyContext) error {
	act, err := decodeAction[CancelSuspendAction](ac.Action)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Name)
	if err != nil {
		return err
	}
	s, err := GetSuspend(ac.Cache, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownSuspend, err)
	}
	if s.Status != SuspendProposed {
		return ErrSuspendNotProposed
	}
	if err := ac.Authorize(PermissionDef{Threshold: 1, Authorizers: []WeightedAuthorizer{{Weight: 1, Ref: AuthorizerRef{Kind: AuthorizerAccount, Account: s.Proposer}}}}, nil); err != nil {
		return err
	}
	s.Status = SuspendCancelled
	return PutSuspend(ac.Cache, PutUpdate, s)
}

// ExecSuspendAction re-authorises the inner transaction against the
// collected signatures and pushes it as a follow-on.
type ExecSuspendAction struct {
	Name     string `json:"name"`
	Executor PublicKey `json:"executor"`
}

func HandleExecSuspend(ac *ApplyContext) error {
	act, err := decodeAction[ExecSuspendAction](ac.Action)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Name)
	if err != nil {
		return err
	}
	s, err := GetSuspend(ac.Cache, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownSuspend, err)
	}
	if s.Status != SuspendProposed {
		return ErrSuspendNotProposed
	}
	collected := NewKeySet(s.SignedKeys...)
	collected.Add(act.Executor)

	innerChecker := NewChecker(ac.Checker.groups)
	for _, a := range s.Trx.Trx.Actions {
		ec := ac.proc.ec
		handler, err := ec.Resolve(a.Name)
		if err != nil {
			s.Status = SuspendFailed
			_ = PutSuspend(ac.Cache, PutUpdate, s)
			return fmt.Errorf("%w: %v", ErrSuspendExecFailed, err)
		}
		inner := &ApplyContext{
			DB: ac.DB, Cache: ac.Cache, Config: ac.Config,
			Checker: innerChecker, SigningKeys: collected,
			Action: a, Now: ac.Now, ChainID: ac.ChainID, proc: ac.proc,
		}
		if err := handler(inner); err != nil {
			s.Status = SuspendFailed
			_ = PutSuspend(ac.Cache, PutUpdate, s)
			return fmt.Errorf("%w: inner action %q failed: %v", ErrSuspendExecFailed, a.Name, err)
		}
		ac.deferred = append(ac.deferred, inner.deferred...)
	}
	s.Status = SuspendExecuted
	return PutSuspend(ac.Cache, PutUpdate, s)
}
