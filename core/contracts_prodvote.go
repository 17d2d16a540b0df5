package core

import (
	"fmt"
	"sort"
	"strings"
)

// ProdVoteEntry is one producer's current vote for a config key. Keys
// prefixed "action-" carry a version number instead of a numeric value,
// resolved by version-majority among the active producers.
type ProdVoteEntry struct {
	Key      string
	Producer PublicKey
	Value    int64
	Version  uint32
}

func prodVoteDomain(key string) Name128 {
	n, err := ParseName128(strings.ReplaceAll(key, "_", "-"))
	if err != nil {
		panic(err)
	}
	return n
}

func PutProdVote(c *Cache, op PutOp, e ProdVoteEntry) error {
	return PutToken(c, TokenTypeProdVote, op, prodVoteDomain(e.Key), stakerKey(e.Producer), e, marshalJSON[ProdVoteEntry])
}

func GetProdVote(c *Cache, key string, producer PublicKey) (ProdVoteEntry, error) {
	return ReadToken(c, TokenTypeProdVote, prodVoteDomain(key), stakerKey(producer), unmarshalJSON[ProdVoteEntry])
}

// ProdVoteAction casts or updates one producer's vote. When casting pushes
// the tally over two-thirds of the active producer set, the value (median
// for numeric keys, majority for action-* keys) is committed immediately.
type ProdVoteAction struct {
	Producer PublicKey `json:"producer"`
	Key      string    `json:"key"`
	Value    int64     `json:"value"`
	Version  uint32    `json:"version"`
}

func isActionKey(key string) bool { return strings.HasPrefix(key, "action-") }

func producerIsActive(cfg ChainConfig, pk PublicKey) bool {
	for _, p := range cfg.ActiveProducers {
		if p.Equal(pk) {
			return true
		}
	}
	return false
}

func HandleProdVote(ac *ApplyContext) error {
	act, err := decodeAction[ProdVoteAction](ac.Action)
	if err != nil {
		return err
	}
	if act.Key == "" {
		return fmt.Errorf("%w: prodvote key must not be empty", ErrInvalidArgument)
	}
	if !producerIsActive(ac.Config, act.Producer) {
		return fmt.Errorf("%w: %s is not an active producer", ErrUnsatisfiedAuth, act.Producer.String())
	}
	if err := ac.Authorize(PermissionDef{Threshold: 1, Authorizers: []WeightedAuthorizer{{Weight: 1, Ref: AuthorizerRef{Kind: AuthorizerAccount, Account: act.Producer}}}}, nil); err != nil {
		return err
	}
	e := ProdVoteEntry{Key: act.Key, Producer: act.Producer, Value: act.Value, Version: act.Version}
	op := PutUpdate
	if !ac.DB.ExistsToken(TokenTypeProdVote, prodVoteDomain(act.Key), stakerKey(act.Producer)) {
		op = PutAdd
	}
	if err := PutProdVote(ac.Cache, op, e); err != nil {
		return err
	}
	return tryCommitProdVote(ac, act.Key)
}

// tryCommitProdVote tallies every recorded vote for key; once more than
// two-thirds of the active producer set has voted, it commits the result
// (median for numeric keys, the most-voted version for action-* keys) into
// the processor's live chain config.
func tryCommitProdVote(ac *ApplyContext, key string) error {
	total := len(ac.Config.ActiveProducers)
	if total == 0 {
		return nil
	}
	var values []int64
	versionCounts := make(map[uint32]int)
	n := 0
	ac.DB.ReadTokensRange(TokenTypeProdVote, prodVoteDomain(key), 0, func(_ Name128, raw []byte) bool {
		e, err := unmarshalJSON[ProdVoteEntry](raw)
		if err != nil || !producerIsActive(ac.Config, e.Producer) {
			return true
		}
		n++
		if isActionKey(key) {
			versionCounts[e.Version]++
		} else {
			values = append(values, e.Value)
		}
		return true
	})
	if n*3 <= total*2 {
		return nil
	}
	if isActionKey(key) {
		var best uint32
		bestCount := -1
		for v, c := range versionCounts {
			if c > bestCount || (c == bestCount && v > best) {
				best, bestCount = v, c
			}
		}
		name := strings.TrimPrefix(key, "action-")
		if ac.proc.ec.CurrentVersion(name) >= int(best) {
			return nil
		}
		return ac.proc.ec.SetVersion(name, int(best))
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	median := values[len(values)/2]
	return ac.proc.SetConfigValue(key, median)
}
