package core

import "fmt"

// GroupNode is one entry of the flattened n-ary weighted-key tree. Non-leaf
// nodes (Size>0) list their children as the contiguous slice
// tree.Nodes[Index:Index+Size]; leaves (Size==0) carry a PublicKey instead.
type GroupNode struct {
	Index     int
	Size      int
	Threshold uint32
	Weight    uint16
	Key       PublicKey // meaningful only when Size == 0
	IsLeaf    bool
}

// GroupTree is the flat array backing a Group's permission structure. Node 0
// is always the root.
type GroupTree struct {
	Nodes []GroupNode
}

// Validate enforces the authority-group invariants: the root carries no
// weight, every non-leaf's child range fits the array, and every non-leaf's
// children weigh enough to meet its own threshold.
func (t GroupTree) Validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: empty group tree", ErrInvalidArgument)
	}
	root := t.Nodes[0]
	if root.Weight != 0 {
		return fmt.Errorf("%w: group tree root must have weight 0", ErrInvalidArgument)
	}
	for i, n := range t.Nodes {
		if n.IsLeaf {
			continue
		}
		if n.Index < 0 || n.Size < 0 || n.Index+n.Size > len(t.Nodes) {
			return fmt.Errorf("%w: node %d child range out of bounds", ErrInvalidArgument, i)
		}
		var sum uint32
		for _, c := range t.Nodes[n.Index : n.Index+n.Size] {
			sum += uint32(c.Weight)
		}
		if sum < n.Threshold {
			return fmt.Errorf("%w: node %d children weight %d below threshold %d", ErrInvalidArgument, i, sum, n.Threshold)
		}
	}
	return nil
}

// Group is a named, keyed permission tree.
type Group struct {
	Name Name128
	Key  PublicKey
	Root GroupTree
}

// Satisfied reports whether keys satisfy the subtree rooted at nodeIdx,
// short-circuiting once the node's threshold is met. used collects every
// leaf public key that contributed to a satisfied ancestor, so callers can
// compute the authorization engine's "minimal used key set" invariant.
func (t GroupTree) Satisfied(nodeIdx int, keys *KeySet, used *KeySet) bool {
	node := t.Nodes[nodeIdx]
	if node.IsLeaf {
		if keys.Contains(node.Key) {
			if used != nil {
				used.Add(node.Key)
			}
			return true
		}
		return false
	}
	var local *KeySet
	if used != nil {
		local = NewKeySet()
	}
	var tally uint32
	for i := node.Index; i < node.Index+node.Size && tally < node.Threshold; i++ {
		child := t.Nodes[i]
		if t.Satisfied(i, keys, local) {
			tally += uint32(child.Weight)
		}
	}
	ok := tally >= node.Threshold
	if ok && used != nil {
		for _, k := range local.Keys() {
			used.Add(k)
		}
	}
	return ok
}

// Satisfied evaluates the whole tree (rooted at node 0) against a signing
// key set, recording every leaf key that contributed into used.
func (g Group) Satisfied(keys *KeySet, used *KeySet) bool {
	if len(g.Root.Nodes) == 0 {
		return false
	}
	return g.Root.Satisfied(0, keys, used)
}
