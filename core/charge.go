package core

// ActionChargeParams lets each action type override its cpu/storage/extra
// cost contribution. A zero CPU falls back to the default cpu cost and a zero
// ExtraFactor to the default extra factor; Storage is used as given.
type ActionChargeParams struct {
	CPU         uint64
	Storage     uint64
	ExtraFactor uint64 // 0 means "use DefaultExtraFactor" UNLESS ExplicitZeroExtra is set
	ExplicitZeroExtra bool
}

const (
	defaultActionCPU     uint64 = 15
	defaultExtraFactor   uint64 = 10
	perSigCPU            uint64 = 60
)

// ChargeManager computes the storage/cpu/network cost of a packed
// transaction.
type ChargeManager struct {
	factors ChargeFactors
	// perAction lets contract actions register their own cost shape; keyed
	// by action name. Unregistered actions use the package defaults.
	perAction map[string]func(a Action) ActionChargeParams
}

func NewChargeManager(factors ChargeFactors) *ChargeManager {
	return &ChargeManager{factors: factors, perAction: make(map[string]func(Action) ActionChargeParams)}
}

// RegisterActionCost installs a per-action-type cost function, e.g.
// issuetoken's "3*(names-1)+15" cpu growth or addmeta's flat 600. The
// function sees the full action so it can inspect its payload (e.g. count
// the names[] it issues) rather than just its encoded size.
func (cm *ChargeManager) RegisterActionCost(action string, f func(a Action) ActionChargeParams) {
	cm.perAction[action] = f
}

func (cm *ChargeManager) paramsFor(a Action) ActionChargeParams {
	if f, ok := cm.perAction[a.Name]; ok {
		return f(a)
	}
	return ActionChargeParams{CPU: defaultActionCPU, Storage: uint64(len(a.Data))}
}

// ChargeBreakdown is the computed per-category cost before the final /1e6
// division.
type ChargeBreakdown struct {
	NetworkUnits uint64
	CPUUnits     uint64
	StorageUnits uint64
	Total        uint64
}

// Compute implements the charge formula:
//
//	network_units = unprunable_size + k*sig_size
//	cpu_units     = 60*k + sum(cpu(act) * extra_factor(act))
//	storage_units = sum(storage(act))
//	total         = (network*netBase + cpu*cpuBase + storage*storageBase) * globalFactor / 1e6
func (cm *ChargeManager) Compute(unprunableSize int, numSigs int, actions []Action) ChargeBreakdown {
	var cpu, storage uint64
	for _, a := range actions {
		p := cm.paramsFor(a)
		extra := p.ExtraFactor
		if extra == 0 && !p.ExplicitZeroExtra {
			extra = defaultExtraFactor
		}
		cpuContribution := p.CPU
		if cpuContribution == 0 {
			cpuContribution = defaultActionCPU
		}
		cpu += cpuContribution * extra
		storage += p.Storage
	}
	k := uint64(numSigs)
	network := uint64(unprunableSize) + k*cm.factors.SigSize
	cpu += perSigCPU * k

	weighted := network*cm.factors.NetworkBaseFactor + cpu*cm.factors.CPUBaseFactor + storage*cm.factors.StorageBaseFactor
	total := weighted * cm.factors.GlobalFactor / 1_000_000

	return ChargeBreakdown{NetworkUnits: network, CPUUnits: cpu, StorageUnits: storage, Total: total}
}
