package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEmptyRoot(t *testing.T) {
	tree, err := Build(nil)
	require.NoError(t, err)
	assert.Equal(t, EmptyRoot, tree.Root())
}

func TestBuildSingleLeafRootEqualsLeafHash(t *testing.T) {
	leaf := Leaf{AccountID: "alice", TotalReward: 10, BasePoolReward: 4, PerformancePoolReward: 6}
	tree, err := Build([]Leaf{leaf})
	require.NoError(t, err)

	want, err := LeafHash(leaf)
	require.NoError(t, err)
	assert.Equal(t, want, tree.Root())
}

func TestProofVerifiesForEveryAccount(t *testing.T) {
	entries := []Leaf{
		{AccountID: "carol", TotalReward: 3, BasePoolReward: 1, PerformancePoolReward: 2},
		{AccountID: "alice", TotalReward: 10, BasePoolReward: 4, PerformancePoolReward: 6},
		{AccountID: "bob", TotalReward: 5, BasePoolReward: 2, PerformancePoolReward: 3},
	}
	tree, err := Build(entries)
	require.NoError(t, err)

	for _, e := range entries {
		leafHash, err := LeafHash(e)
		require.NoError(t, err)

		proof, ok := tree.Proof(e.AccountID)
		require.True(t, ok, "no proof for %s", e.AccountID)
		assert.True(t, VerifyProof(leafHash, proof, tree.Root()), "proof failed to verify for %s", e.AccountID)
	}
}

func TestProofMissingAccount(t *testing.T) {
	tree, err := Build([]Leaf{{AccountID: "alice", TotalReward: 1}})
	require.NoError(t, err)

	_, ok := tree.Proof("nobody")
	assert.False(t, ok, "expected no proof for unknown account")
}

func TestOddLevelDuplicatesLastNode(t *testing.T) {
	entries := []Leaf{
		{AccountID: "a", TotalReward: 1},
		{AccountID: "b", TotalReward: 2},
		{AccountID: "c", TotalReward: 3},
	}
	tree, err := Build(entries)
	require.NoError(t, err)
	require.Equal(t, 3, tree.LeafCount())

	for _, e := range entries {
		leafHash, _ := LeafHash(e)
		proof, _ := tree.Proof(e.AccountID)
		assert.True(t, VerifyProof(leafHash, proof, tree.Root()), "proof failed for %s in odd-count tree", e.AccountID)
	}
}
