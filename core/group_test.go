package core

import "testing"

func TestGroupTreeValidateRejectsWeightedRoot(t *testing.T) {
	tree := GroupTree{Nodes: []GroupNode{{Weight: 1, IsLeaf: true}}}
	if err := tree.Validate(); err == nil {
		t.Fatal("expected error: root must have weight 0")
	}
}

func TestGroupTreeValidateRejectsUnmetThreshold(t *testing.T) {
	tree := GroupTree{Nodes: []GroupNode{
		{Index: 1, Size: 1, Threshold: 2},
		{IsLeaf: true, Weight: 1},
	}}
	if err := tree.Validate(); err == nil {
		t.Fatal("expected error: children weight below threshold")
	}
}

func TestGroupTreeValidateAcceptsWellFormedTree(t *testing.T) {
	tree := GroupTree{Nodes: []GroupNode{
		{Index: 1, Size: 2, Threshold: 2},
		{IsLeaf: true, Weight: 1},
		{IsLeaf: true, Weight: 1},
	}}
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestGroupSatisfiedTwoOfTwoLeaves(t *testing.T) {
	p1, _ := GeneratePrivateKey()
	p2, _ := GeneratePrivateKey()
	g := Group{
		Name: MustName128("g1"),
		Root: GroupTree{Nodes: []GroupNode{
			{Index: 1, Size: 2, Threshold: 2},
			{IsLeaf: true, Weight: 1, Key: p1.Public()},
			{IsLeaf: true, Weight: 1, Key: p2.Public()},
		}},
	}
	used := NewKeySet()
	if !g.Satisfied(NewKeySet(p1.Public(), p2.Public()), used) {
		t.Fatal("expected both leaves present to satisfy a threshold-2 root")
	}
	if used.Len() != 2 {
		t.Fatalf("expected 2 used keys, got %d", used.Len())
	}
}

func TestGroupSatisfiedOneOfTwoInsufficient(t *testing.T) {
	p1, _ := GeneratePrivateKey()
	p2, _ := GeneratePrivateKey()
	g := Group{
		Name: MustName128("g1"),
		Root: GroupTree{Nodes: []GroupNode{
			{Index: 1, Size: 2, Threshold: 2},
			{IsLeaf: true, Weight: 1, Key: p1.Public()},
			{IsLeaf: true, Weight: 1, Key: p2.Public()},
		}},
	}
	if g.Satisfied(NewKeySet(p1.Public()), NewKeySet()) {
		t.Fatal("expected a single satisfied leaf to fall short of threshold 2")
	}
}

func TestGroupSatisfiedNestedSubtree(t *testing.T) {
	p1, _ := GeneratePrivateKey()
	p2, _ := GeneratePrivateKey()
	p3, _ := GeneratePrivateKey()
	// root requires 1-of-2: the nested 2-of-2 subtree, or p3 alone.
	g := Group{
		Name: MustName128("g1"),
		Root: GroupTree{Nodes: []GroupNode{
			{Index: 1, Size: 2, Threshold: 1},
			{Index: 3, Size: 2, Threshold: 2, Weight: 1},
			{IsLeaf: true, Weight: 1, Key: p3.Public()},
			{IsLeaf: true, Weight: 1, Key: p1.Public()},
			{IsLeaf: true, Weight: 1, Key: p2.Public()},
		}},
	}
	used := NewKeySet()
	if !g.Satisfied(NewKeySet(p1.Public(), p2.Public()), used) {
		t.Fatal("expected nested 2-of-2 subtree to satisfy the root")
	}
	if used.Len() != 2 {
		t.Fatalf("expected 2 used keys from the nested subtree, got %d", used.Len())
	}
}

func TestGroupSatisfiedEmptyTree(t *testing.T) {
	g := Group{Name: MustName128("empty")}
	if g.Satisfied(NewKeySet(), NewKeySet()) {
		t.Fatal("expected an empty group tree to never be satisfied")
	}
}
