package core

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
)

// TokenType is the closed enumeration of TDB value kinds.
type TokenType uint8

const (
	TokenTypeAsset TokenType = iota
	TokenTypeDomain
	TokenTypeToken
	TokenTypeGroup
	TokenTypeSuspend
	TokenTypeLock
	TokenTypeFungible
	TokenTypeProdVote
	TokenTypeJmzkLink
	TokenTypePsvBonus
	TokenTypePsvBonusDist
	TokenTypeValidator
	TokenTypeStakePool
	TokenTypeScript
)

// PutOp selects put_token's write semantics.
type PutOp uint8

const (
	PutAdd PutOp = iota
	PutUpdate
	PutPut
)

// tdbKey is the internal composite key: type tag + optional domain +
// key component, composed so exact lookups stay O(log N) and range scans
// over (type, domain) stay contiguous.
type tdbKey struct {
	Type   TokenType
	Domain Name128
	Key    Name128
}

func (k tdbKey) bytes() []byte {
	buf := make([]byte, 0, 1+16+16)
	buf = append(buf, byte(k.Type))
	buf = append(buf, k.Domain.Bytes()...)
	buf = append(buf, k.Key.Bytes()...)
	return buf
}

func (k tdbKey) less(o tdbKey) bool { return bytes.Compare(k.bytes(), o.bytes()) < 0 }

// assetKey composes an address+symbol id into the dedicated asset namespace.
type assetKey struct {
	Addr  string // Address.Bytes() as a map-comparable string
	SymID uint64
}

// undoRecord captures enough to reverse one mutation.
type undoRecord struct {
	isAsset     bool
	key         tdbKey
	akey        assetKey
	priorBytes  []byte
	priorExists bool
}

// savepointFrame is one entry of the undo-log stack.
type savepointFrame struct {
	seq   uint64
	undos []undoRecord
	// index of the last undo recorded per key within this frame, so later
	// mutations of the same key in the same frame don't re-capture an
	// already-captured "prior" value.
	seen map[string]int
}

func newFrame(seq uint64) *savepointFrame {
	return &savepointFrame{seq: seq, seen: make(map[string]int)}
}

// RollbackSignal is emitted once per key restored by a rollback, so the
// cache (C7) can evict it.
type RollbackSignal func(isAsset bool, key tdbKey, akey assetKey)

// RemoveSignal is emitted when a key is deleted outside of rollback replay
// (not currently produced by TDB itself, but kept so the cache's eviction
// contract has a concrete hook).
type RemoveSignal func(isAsset bool, key tdbKey, akey assetKey)

// TDB is the token database: a typed KV store with a stack of nested
// savepoints supporting multi-level rollback and squash.
type TDB struct {
	mu sync.Mutex

	tokens map[string][]byte // tdbKey.bytes() -> value
	assets map[assetKey][]byte

	frames []*savepointFrame

	onRollback []RollbackSignal
	onRemove   []RemoveSignal
}

func NewTDB() *TDB {
	return &TDB{
		tokens: make(map[string][]byte),
		assets: make(map[assetKey][]byte),
	}
}

func (db *TDB) Subscribe(onRollback RollbackSignal, onRemove RemoveSignal) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if onRollback != nil {
		db.onRollback = append(db.onRollback, onRollback)
	}
	if onRemove != nil {
		db.onRemove = append(db.onRemove, onRemove)
	}
}

// --- savepoint stack -------------------------------------------------

func (db *TDB) AddSavepoint(seq uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.frames) > 0 && seq <= db.frames[len(db.frames)-1].seq {
		return fmt.Errorf("%w: savepoint seq %d not greater than top %d", ErrSeqNotValid, seq, db.frames[len(db.frames)-1].seq)
	}
	db.frames = append(db.frames, newFrame(seq))
	return nil
}

func (db *TDB) LatestSavepointSeq() (uint64, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.frames) == 0 {
		return 0, false
	}
	return db.frames[len(db.frames)-1].seq, true
}

func (db *TDB) SavepointsSize() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.frames)
}

// RollbackToLatestSavepoint replays the top frame's undo records in
// reverse, restoring prior state, then pops the frame.
func (db *TDB) RollbackToLatestSavepoint() error {
	db.mu.Lock()
	if len(db.frames) == 0 {
		db.mu.Unlock()
		return ErrNoSavepoint
	}
	top := db.frames[len(db.frames)-1]
	db.frames = db.frames[:len(db.frames)-1]
	// Replay in reverse so that multiple mutations of the same key within
	// the frame unwind back to the state at frame-open.
	for i := len(top.undos) - 1; i >= 0; i-- {
		u := top.undos[i]
		if u.isAsset {
			if u.priorExists {
				db.assets[u.akey] = u.priorBytes
			} else {
				delete(db.assets, u.akey)
			}
		} else {
			kb := string(u.key.bytes())
			if u.priorExists {
				db.tokens[kb] = u.priorBytes
			} else {
				delete(db.tokens, kb)
			}
		}
	}
	signals := append([]RollbackSignal{}, db.onRollback...)
	db.mu.Unlock()

	seen := make(map[string]bool, len(top.undos))
	for _, u := range top.undos {
		var sig string
		if u.isAsset {
			sig = fmt.Sprintf("a:%s:%d", u.akey.Addr, u.akey.SymID)
		} else {
			sig = "t:" + string(u.key.bytes())
		}
		if seen[sig] {
			continue
		}
		seen[sig] = true
		for _, cb := range signals {
			cb(u.isAsset, u.key, u.akey)
		}
	}
	return nil
}

// PopBackSavepoint discards the top frame's undo log, accepting its writes.
func (db *TDB) PopBackSavepoint() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.frames) == 0 {
		return ErrNoSavepoint
	}
	db.frames = db.frames[:len(db.frames)-1]
	return nil
}

// Squash merges the top frame into its parent: a key already recorded in
// the parent keeps the parent's (older) prior value; otherwise the child's
// undo record moves to the parent.
func (db *TDB) Squash() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.frames) < 2 {
		return fmt.Errorf("%w: squash requires at least two open savepoints", ErrNoSavepoint)
	}
	top := db.frames[len(db.frames)-1]
	parent := db.frames[len(db.frames)-2]
	for _, u := range top.undos {
		sig := undoSignature(u)
		if _, ok := parent.seen[sig]; ok {
			continue // parent already captures the older prior value
		}
		parent.seen[sig] = len(parent.undos)
		parent.undos = append(parent.undos, u)
	}
	db.frames = db.frames[:len(db.frames)-1]
	return nil
}

func undoSignature(u undoRecord) string {
	if u.isAsset {
		return fmt.Sprintf("a:%s:%d", u.akey.Addr, u.akey.SymID)
	}
	return "t:" + string(u.key.bytes())
}

// PopSavepoints releases all frames with seq < until in FIFO order, each
// acceptance equivalent to PopBackSavepoint.
func (db *TDB) PopSavepoints(until uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	keep := 0
	for keep < len(db.frames) && db.frames[keep].seq < until {
		keep++
	}
	db.frames = db.frames[keep:]
	return nil
}

// recordUndo appends an undo record for the current top frame, but only
// once per key per frame (first-write-wins within the frame).
func (db *TDB) recordUndo(u undoRecord) {
	if len(db.frames) == 0 {
		return // writes outside a savepoint are unsafe-but-allowed (genesis)
	}
	top := db.frames[len(db.frames)-1]
	sig := undoSignature(u)
	if _, ok := top.seen[sig]; ok {
		return
	}
	top.seen[sig] = len(top.undos)
	top.undos = append(top.undos, u)
}

// --- token operations --------------------------------------------------

func (db *TDB) PutToken(typ TokenType, op PutOp, domain Name128, key Name128, value []byte) error {
	return db.putTokenLocked(typ, op, domain, key, value)
}

func (db *TDB) putTokenLocked(typ TokenType, op PutOp, domain, key Name128, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	k := tdbKey{Type: typ, Domain: domain, Key: key}
	kb := string(k.bytes())
	prior, exists := db.tokens[kb]
	switch op {
	case PutAdd:
		if exists {
			return fmt.Errorf("%w: token already exists", ErrDuplicateEntry)
		}
	case PutUpdate:
		if !exists {
			return fmt.Errorf("%w: token does not exist", ErrNotFound)
		}
	case PutPut:
		// unconditional
	}
	db.recordUndo(undoRecord{key: k, priorBytes: prior, priorExists: exists})
	cp := append([]byte{}, value...)
	db.tokens[kb] = cp
	return nil
}

// PutTokens is the batched variant: fails atomically on first error (no
// writes from this call are retained if any key fails).
func (db *TDB) PutTokens(typ TokenType, op PutOp, domain Name128, keys []Name128, values [][]byte) error {
	if len(keys) != len(values) {
		return fmt.Errorf("%w: keys/values length mismatch", ErrInvalidArgument)
	}
	// Pre-validate before mutating so a mid-batch failure leaves no trace.
	db.mu.Lock()
	inBatch := make(map[string]bool, len(keys))
	for _, key := range keys {
		k := tdbKey{Type: typ, Domain: domain, Key: key}
		kb := string(k.bytes())
		_, exists := db.tokens[kb]
		if op == PutAdd && (exists || inBatch[kb]) {
			db.mu.Unlock()
			return fmt.Errorf("%w: token already exists", ErrDuplicateEntry)
		}
		if op == PutUpdate && !exists {
			db.mu.Unlock()
			return fmt.Errorf("%w: token does not exist", ErrNotFound)
		}
		inBatch[kb] = true
	}
	db.mu.Unlock()
	for i, key := range keys {
		if err := db.PutToken(typ, op, domain, key, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (db *TDB) PutAsset(addr Address, symID uint64, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	ak := assetKey{Addr: string(addr.Bytes()), SymID: symID}
	prior, exists := db.assets[ak]
	db.recordUndo(undoRecord{isAsset: true, akey: ak, priorBytes: prior, priorExists: exists})
	cp := append([]byte{}, value...)
	db.assets[ak] = cp
	return nil
}

func (db *TDB) ExistsToken(typ TokenType, domain, key Name128) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	k := tdbKey{Type: typ, Domain: domain, Key: key}
	_, ok := db.tokens[string(k.bytes())]
	return ok
}

func (db *TDB) ExistsAsset(addr Address, symID uint64) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.assets[assetKey{Addr: string(addr.Bytes()), SymID: symID}]
	return ok
}

func (db *TDB) ReadToken(typ TokenType, domain, key Name128, noThrow bool) ([]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	k := tdbKey{Type: typ, Domain: domain, Key: key}
	v, ok := db.tokens[string(k.bytes())]
	if !ok {
		if noThrow {
			return nil, nil
		}
		return nil, ErrNotFound
	}
	return append([]byte{}, v...), nil
}

func (db *TDB) ReadAsset(addr Address, symID uint64, noThrow bool) ([]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	v, ok := db.assets[assetKey{Addr: string(addr.Bytes()), SymID: symID}]
	if !ok {
		if noThrow {
			return nil, nil
		}
		return nil, ErrNotFound
	}
	return append([]byte{}, v...), nil
}

// ReadTokensRange visits (key, bytes) pairs for (typ, domain) in
// deterministic ascending-key order, honoring skip and the visitor's
// continue? return value.
func (db *TDB) ReadTokensRange(typ TokenType, domain Name128, skip int, visit func(key Name128, value []byte) bool) {
	db.mu.Lock()
	type kv struct {
		key Name128
		val []byte
	}
	var rows []kv
	for kb, v := range db.tokens {
		k := parseTdbKeyBytes([]byte(kb))
		if k.Type == typ && k.Domain == domain {
			rows = append(rows, kv{key: k.Key, val: append([]byte{}, v...)})
		}
	}
	db.mu.Unlock()
	sort.Slice(rows, func(i, j int) bool { return bytes.Compare(rows[i].key.Bytes(), rows[j].key.Bytes()) < 0 })
	if skip > len(rows) {
		skip = len(rows)
	}
	for _, r := range rows[skip:] {
		if !visit(r.key, r.val) {
			return
		}
	}
}

func (db *TDB) ReadAssetsRange(symID uint64, skip int, visit func(addr []byte, value []byte) bool) {
	db.mu.Lock()
	type kv struct {
		addr string
		val  []byte
	}
	var rows []kv
	for k, v := range db.assets {
		if k.SymID == symID {
			rows = append(rows, kv{addr: k.Addr, val: append([]byte{}, v...)})
		}
	}
	db.mu.Unlock()
	sort.Slice(rows, func(i, j int) bool { return rows[i].addr < rows[j].addr })
	if skip > len(rows) {
		skip = len(rows)
	}
	for _, r := range rows[skip:] {
		if !visit([]byte(r.addr), r.val) {
			return
		}
	}
}

// tokenRow and assetRow are the rows a snapshot section packs: a full
// export of one TokenType (or the asset namespace) regardless of domain,
// in deterministic key order.
type tokenRow struct {
	Domain Name128
	Key    Name128
	Value  []byte
}

type assetRow struct {
	Addr  []byte
	SymID uint64
	Value []byte
}

// dumpTokens exports every row of typ across all domains, sorted by the
// full composite key so the snapshot's byte layout is deterministic.
func (db *TDB) dumpTokens(typ TokenType) []tokenRow {
	db.mu.Lock()
	var rows []tokenRow
	for kb, v := range db.tokens {
		k := parseTdbKeyBytes([]byte(kb))
		if k.Type == typ {
			rows = append(rows, tokenRow{Domain: k.Domain, Key: k.Key, Value: append([]byte{}, v...)})
		}
	}
	db.mu.Unlock()
	sort.Slice(rows, func(i, j int) bool {
		ki := tdbKey{Type: typ, Domain: rows[i].Domain, Key: rows[i].Key}
		kj := tdbKey{Type: typ, Domain: rows[j].Domain, Key: rows[j].Key}
		return ki.less(kj)
	})
	return rows
}

// dumpAssets exports the entire asset namespace, sorted by (addr, sym_id).
func (db *TDB) dumpAssets() []assetRow {
	db.mu.Lock()
	var rows []assetRow
	for k, v := range db.assets {
		rows = append(rows, assetRow{Addr: []byte(k.Addr), SymID: k.SymID, Value: append([]byte{}, v...)})
	}
	db.mu.Unlock()
	sort.Slice(rows, func(i, j int) bool {
		if c := bytes.Compare(rows[i].Addr, rows[j].Addr); c != 0 {
			return c < 0
		}
		return rows[i].SymID < rows[j].SymID
	})
	return rows
}

// loadTokenRaw inserts a row outside the savepoint/undo machinery, for
// snapshot import into a freshly constructed TDB.
func (db *TDB) loadTokenRaw(typ TokenType, domain, key Name128, value []byte) {
	db.mu.Lock()
	defer db.mu.Unlock()
	k := tdbKey{Type: typ, Domain: domain, Key: key}
	db.tokens[string(k.bytes())] = append([]byte{}, value...)
}

// loadAssetRaw is loadTokenRaw's asset-namespace counterpart.
func (db *TDB) loadAssetRaw(addr []byte, symID uint64, value []byte) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.assets[assetKey{Addr: string(addr), SymID: symID}] = append([]byte{}, value...)
}

// Stats reports the total row counts across every token type and the
// asset namespace, mainly for CLI/debug reporting.
func (db *TDB) Stats() (tokens int, assets int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.tokens), len(db.assets)
}

func parseTdbKeyBytes(b []byte) tdbKey {
	var k tdbKey
	k.Type = TokenType(b[0])
	copy(k.Domain[:], b[1:17])
	copy(k.Key[:], b[17:33])
	return k
}

// --- savepoint session (RAII-style scoped guard) ------------------------

// Session is returned by NewSavepointSession. If neither Accept nor Squash
// is called before it goes out of scope, the caller must invoke Close
// (typically via defer) which rolls the savepoint back — the Go stand-in
// for the original's RAII destructor.
type Session struct {
	db       *TDB
	seq      uint64
	resolved bool
}

func (db *TDB) NewSavepointSession(seq uint64) (*Session, error) {
	if err := db.AddSavepoint(seq); err != nil {
		return nil, err
	}
	return &Session{db: db, seq: seq}, nil
}

func (s *Session) Accept() error {
	if s.resolved {
		return nil
	}
	s.resolved = true
	return s.db.PopBackSavepoint()
}

func (s *Session) Squash() error {
	if s.resolved {
		return nil
	}
	s.resolved = true
	return s.db.Squash()
}

// Close rolls back if the session was never explicitly resolved. Safe to
// call unconditionally via defer.
func (s *Session) Close() error {
	if s.resolved {
		return nil
	}
	s.resolved = true
	return s.db.RollbackToLatestSavepoint()
}
