package core

import "fmt"

// NewPrivilegedProcessor wires a Processor the way a genesis or
// system-account transaction needs: the same pipeline as NewProcessor, with
// ChargeFreeMode forced on regardless of the supplied config.
func NewPrivilegedProcessor(db *TDB, cache *Cache, ec *ExecutionContext, abi *Registry, groups GroupLookup, cfg ChainConfig) *Processor {
	cfg.ChargeFreeMode = true
	return NewProcessor(db, cache, ec, abi, groups, cfg)
}

// ApplyGenesis checks that a GenesisConfig names at least one initial
// producer. It writes nothing to db: neither the producer set nor the chain
// config is stored. Its shape follows
// original_source/libraries/chain/genesis_state.cpp's initial-state writer
// without the consensus machinery that surrounds it there.
func ApplyGenesis(db *TDB, g GenesisConfig) error {
	if len(g.InitialProducer) == 0 {
		return fmt.Errorf("%w: genesis config has no initial producer", ErrInvalidArgument)
	}
	return nil
}
