package core

import (
	"fmt"
	"time"
)

// ProcessorState is the transaction processor's state machine.
type ProcessorState uint8

const (
	StateUninit ProcessorState = iota
	StateInitialized
	StateExecuting
	StateFinalising
	StateCommitted
	StateAborted
)

// ActionTrace records one applied action for the transaction trace.
type ActionTrace struct {
	Action Action
	Error  error
}

// TransactionTrace is the externally-visible result of processing a
// transaction, including a failed one (Except != nil).
type TransactionTrace struct {
	ID      Digest
	Actions []ActionTrace
	Charge  uint64
	Except  error
}

// Processor is a single transaction's execution: TDB savepoint, charge
// computation, payer solvency, per-action dispatch, atomic commit.
type Processor struct {
	db      *TDB
	cache   *Cache
	ec      *ExecutionContext
	abi     *Registry
	charge  *ChargeManager
	cfg     ChainConfig
	groups  GroupLookup

	state   ProcessorState
	session *Session
	trace   TransactionTrace

	pt          PackedTransaction
	signingKeys *KeySet
	checker     *Checker
	deadline    time.Time
	chargeFree  bool
}

// NewProcessor wires one transaction's processing pipeline.
func NewProcessor(db *TDB, cache *Cache, ec *ExecutionContext, abi *Registry, groups GroupLookup, cfg ChainConfig) *Processor {
	return &Processor{
		db:     db,
		cache:  cache,
		ec:     ec,
		abi:    abi,
		charge: NewChargeManager(cfg.Charge),
		cfg:    cfg,
		groups: groups,
		state:  StateUninit,
	}
}

// ApplyContext is handed to every action handler; it is the single seam
// through which contract actions (C13) touch the TDB, the cache, and the
// authorization engine.
type ApplyContext struct {
	DB          *TDB
	Cache       *Cache
	Config      ChainConfig
	Checker     *Checker
	SigningKeys *KeySet
	Action      Action
	Now         time.Time
	ChainID     Digest
	NoThrow     bool

	proc     *Processor
	deferred []Action
}

// PushFollowOn schedules an action to execute in this same outer action's
// scope once the current handler returns: no new savepoint, traces merged.
func (ac *ApplyContext) PushFollowOn(a Action) { ac.deferred = append(ac.deferred, a) }

// Authorize checks perm (and, for domain-level actions, the domain's
// permission set) against the transaction's signing keys.
func (ac *ApplyContext) Authorize(perm PermissionDef, owners []Address) error {
	return ac.Checker.Check(perm, owners, ac.SigningKeys)
}

// Init validates headers, opens the TDB savepoint, computes charge, and
// checks payer solvency before moving to the Initialized state.
func (p *Processor) Init(pt PackedTransaction, seq uint64, now time.Time, deadline time.Time, unprunableSize int, balanceOf func(Address, Symbol) (Asset, error)) error {
	if p.state != StateUninit {
		return fmt.Errorf("%w: processor already initialized", ErrInvalidArgument)
	}
	if len(pt.Trx.Actions) == 0 {
		return ErrTxNoAction
	}
	if !p.cfg.LoadtestMode {
		if now.After(pt.Trx.Header.ExpirationTime()) {
			return ErrDeadline
		}
	}

	keys, err := pt.RecoverKeys(p.cfg.ChainID)
	if err != nil {
		return err
	}

	session, err := p.db.NewSavepointSession(seq)
	if err != nil {
		return err
	}
	p.session = session
	p.deadline = deadline
	p.pt = pt
	p.signingKeys = keys
	p.checker = NewChecker(p.groups)
	p.chargeFree = p.cfg.ChargeFreeMode
	p.trace = TransactionTrace{ID: pt.ID(p.cfg.ChainID)}

	breakdown := p.charge.Compute(unprunableSize, len(pt.Signatures), pt.Trx.Actions)
	p.trace.Charge = breakdown.Total
	if p.cfg.TxNetUsageLimit > 0 && breakdown.NetworkUnits > p.cfg.TxNetUsageLimit {
		_ = p.session.Close()
		p.state = StateAborted
		log.WithField("tx", p.trace.ID).WithField("network_units", breakdown.NetworkUnits).Debug("transaction rejected: net usage exceeded")
		return ErrTxNetUsageExceeded
	}
	if p.trace.Charge > 0 && !p.chargeFree {
		if err := p.checkPayerSolvency(pt.Trx.Payer, breakdown.Total, balanceOf); err != nil {
			_ = p.session.Close()
			p.state = StateAborted
			return err
		}
	}

	p.state = StateInitialized
	return nil
}

// checkPayerSolvency enforces that the designated payer can cover the
// transaction's computed charge before execution begins.
func (p *Processor) checkPayerSolvency(payer Address, charge uint64, balanceOf func(Address, Symbol) (Asset, error)) error {
	if payer.IsReserved() {
		return fmt.Errorf("%w: reserved address cannot pay", ErrPayer)
	}
	if payer.Kind == AddressPublicKey && !p.loadtestSkipsPayerSig() {
		if !p.signingKeys.Contains(payer.PubKey) {
			return fmt.Errorf("%w: payer did not sign the transaction", ErrPayer)
		}
	}
	if payer.Kind == AddressGenerated {
		if err := p.validateGeneratedPayerScope(payer); err != nil {
			return err
		}
	}
	native, err := balanceOf(payer, Symbol(uint64(0)<<32|NativeSymbolID))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPayer, err)
	}
	pinned, err := balanceOf(payer, Symbol(uint64(0)<<32|PinnedSymbolID))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPayer, err)
	}
	if uint64(pinned.Amount)+uint64(native.Amount) < charge {
		return fmt.Errorf("%w: insufficient balance for charge %d", ErrBalance, charge)
	}
	return nil
}

func (p *Processor) loadtestSkipsPayerSig() bool { return p.cfg.LoadtestMode }

// validateGeneratedPayerScope enforces that a `.domain:<name>` payer only
// pays for its own domain's actions. A `.fungible:<sym_id>` payer is
// rejected when sym_id is the native token or its pinned variant; which
// fungible its actions touch is not checked.
func (p *Processor) validateGeneratedPayerScope(payer Address) error {
	prefix := payer.Prefix.String()
	switch prefix {
	case "domain":
		for _, a := range p.pt.Trx.Actions {
			if a.Domain != payer.GenKey {
				return fmt.Errorf("%w: domain payer scoped to %s cannot pay for domain %s", ErrPayer, payer.GenKey, a.Domain)
			}
		}
	case "fungible":
		if payer.GenKey.String() == fmt.Sprintf("%d", NativeSymbolID) || payer.GenKey.String() == fmt.Sprintf("%d", PinnedSymbolID) {
			return fmt.Errorf("%w: fungible payer cannot be scoped to the native token or its pinned variant", ErrPayer)
		}
	}
	return nil
}

// Exec dispatches every action in order, checking the deadline between
// each, then appends the synthetic paycharge action.
func (p *Processor) Exec(payCharge func(ac *ApplyContext) error) error {
	if p.state != StateInitialized {
		return fmt.Errorf("%w: processor not initialized", ErrInvalidArgument)
	}
	p.state = StateExecuting

	actions := append([]Action{}, p.pt.Trx.Actions...)
	for i := 0; i < len(actions); i++ {
		a := actions[i]
		if !p.cfg.LoadtestMode && !p.deadline.IsZero() && time.Now().After(p.deadline) {
			return p.abort(ErrDeadline)
		}
		handler, err := p.ec.Resolve(a.Name)
		if err != nil {
			return p.abort(err)
		}
		ac := &ApplyContext{
			DB: p.db, Cache: p.cache, Config: p.cfg,
			Checker: p.checker, SigningKeys: p.signingKeys,
			Action: a, Now: time.Now(), ChainID: p.cfg.ChainID,
			proc: p,
		}
		err = handler(ac)
		p.trace.Actions = append(p.trace.Actions, ActionTrace{Action: a, Error: err})
		if err != nil {
			return p.abort(err)
		}
		// Follow-on actions dispatch in the same scope: no new savepoint,
		// traces are merged into this same transaction.
		actions = append(actions, ac.deferred...)
	}

	p.state = StateFinalising
	if !p.chargeFree && payCharge != nil {
		ac := &ApplyContext{DB: p.db, Cache: p.cache, Config: p.cfg, Checker: p.checker, SigningKeys: p.signingKeys, Now: time.Now(), ChainID: p.cfg.ChainID, proc: p}
		if err := payCharge(ac); err != nil {
			return p.abort(err)
		}
		p.trace.Actions = append(p.trace.Actions, ActionTrace{Action: Action{Name: "paycharge"}})
	}
	return nil
}

func (p *Processor) abort(err error) error {
	p.trace.Except = err
	if p.session != nil {
		_ = p.session.Close()
	}
	p.state = StateAborted
	log.WithField("tx", p.trace.ID).WithError(err).Debug("transaction aborted")
	return err
}

// Finalize accepts the savepoint, committing every mutation (including the
// synthetic paycharge) atomically.
func (p *Processor) Finalize() (*TransactionTrace, error) {
	if p.state != StateFinalising {
		return nil, fmt.Errorf("%w: processor not ready to finalize", ErrInvalidArgument)
	}
	if err := p.session.Accept(); err != nil {
		p.state = StateAborted
		log.WithField("tx", p.trace.ID).WithError(err).Debug("transaction savepoint rejected")
		return nil, err
	}
	p.state = StateCommitted
	log.WithField("tx", p.trace.ID).Debug("transaction committed")
	return &p.trace, nil
}

// Abort discards every mutation made during this transaction.
func (p *Processor) Abort(err error) *TransactionTrace {
	if p.session != nil {
		_ = p.session.Close()
	}
	p.state = StateAborted
	p.trace.Except = err
	log.WithField("tx", p.trace.ID).WithError(err).Debug("transaction aborted")
	return &p.trace
}

func (p *Processor) Trace() TransactionTrace { return p.trace }
func (p *Processor) State() ProcessorState   { return p.state }

// SetConfigValue commits a prodvote-resolved numeric config key into the
// processor's live ChainConfig. Unknown keys are rejected: prodvote only
// governs the knobs this chain actually exposes.
func (p *Processor) SetConfigValue(key string, value int64) error {
	switch key {
	case "network_base_factor":
		p.cfg.Charge.NetworkBaseFactor = uint64(value)
	case "cpu_base_factor":
		p.cfg.Charge.CPUBaseFactor = uint64(value)
	case "storage_base_factor":
		p.cfg.Charge.StorageBaseFactor = uint64(value)
	case "global_factor":
		p.cfg.Charge.GlobalFactor = uint64(value)
	case "jmzk_link_expired_secs":
		p.cfg.JmzkLinkExpiredSecs = uint32(value)
	case "tx_net_usage_limit":
		p.cfg.TxNetUsageLimit = uint64(value)
	default:
		return fmt.Errorf("%w: unknown prodvote config key %q", ErrInvalidArgument, key)
	}
	return nil
}
