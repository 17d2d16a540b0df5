package core

import "time"

// ChargeFactors are the on-chain-configurable pricing knobs consumed by
// the charge manager (C11).
type ChargeFactors struct {
	NetworkBaseFactor uint64
	CPUBaseFactor     uint64
	StorageBaseFactor uint64
	GlobalFactor      uint64
	SigSize           uint64 // bytes charged per signature toward network_units
}

func DefaultChargeFactors() ChargeFactors {
	return ChargeFactors{
		NetworkBaseFactor: 1,
		CPUBaseFactor:     1,
		StorageBaseFactor: 1,
		GlobalFactor:      1,
		SigSize:           65,
	}
}

// ChainConfig is the subset of global chain properties the processor and
// contract actions consult, supplemented from
// original_source/genesis_state.cpp.
type ChainConfig struct {
	Charge              ChargeFactors
	JmzkLinkExpiredSecs  uint32
	TxNetUsageLimit      uint64
	LoadtestMode         bool
	ChargeFreeMode       bool
	ChainID              Digest
	ActiveProducers      []PublicKey
}

func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		Charge:             DefaultChargeFactors(),
		JmzkLinkExpiredSecs: 120,
		TxNetUsageLimit:     1 << 20,
	}
}

// GenesisConfig describes a fresh chain's initial state, mirroring the shape of
// original_source/libraries/chain/genesis_state.cpp (initial chain id,
// producer set, charge factors) without the consensus machinery that
// surrounds it there.
type GenesisConfig struct {
	ChainID         Digest
	InitialTime     time.Time
	InitialConfig   ChainConfig
	InitialProducer []PublicKey
}
