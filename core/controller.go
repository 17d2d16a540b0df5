package core

import "time"

// PendingBlockState is the minimal view of the in-progress block the
// processor needs: its timestamp and the active producer set (used for
// prodvote's supermajority check).
type PendingBlockState struct {
	Time            time.Time
	ActiveProducers []PublicKey
}

// Controller is the narrow contract the transaction processor (C12)
// consumes from its host — block production, the fork database, and
// network plumbing all live on the other side of this interface and are
// out of scope for this repository.
type Controller interface {
	HeadBlockTime() time.Time
	PendingBlockTime() time.Time
	PendingBlockState() PendingBlockState

	GetGlobalProperties() (ChainConfig, map[string]int)
	SetChainConfig(cfg ChainConfig)
	SetActionVersion(name string, ver int) error

	GetExecutionContext() *ExecutionContext
	GetABISerializer() *Registry

	CheckAuthorization(keys *KeySet, perm PermissionDef, owners []Address) error

	PushSuspendTransaction(meta PackedTransaction, deadline time.Time) (*TransactionTrace, error)

	ValidateTapos(trx Transaction) error
	ValidateExpiration(trx Transaction) error

	TokenDB() *TDB
	TokenDBCache() *Cache
}

// ControllerSignals are the notifications an external collaborator (an
// explorer, a link-watcher) subscribes to. The core only emits these; it
// never depends on what subscribes.
type ControllerSignals struct {
	PreAcceptedBlock  func(blockNum uint64)
	AcceptedBlock     func(blockNum uint64)
	AppliedTransaction func(trace *TransactionTrace)
	IrreversibleBlock func(blockNum uint64)
}
