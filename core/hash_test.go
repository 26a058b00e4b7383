package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFields_Deterministic(t *testing.T) {
	fields := map[string]any{
		"title":   "Trip planning",
		"content": "let's go to Paris",
	}

	first := HashFields(fields)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, HashFields(fields))
	}
	assert.Len(t, first, 64, "BLAKE2b-256 hex digest")
}

func TestHashFields_KeyOrderIndependent(t *testing.T) {
	// Maps iterate in random order in Go; build the same logical map twice
	// with different insertion orders and hash repeatedly.
	a := map[string]any{}
	a["x"] = "1"
	a["y"] = "2"
	a["z"] = []string{"p", "q"}

	b := map[string]any{}
	b["z"] = []string{"p", "q"}
	b["y"] = "2"
	b["x"] = "1"

	assert.Equal(t, HashFields(a), HashFields(b))
}

func TestHashFields_WhitespaceNormalized(t *testing.T) {
	a := HashFields(map[string]any{"content": "hello   world"})
	b := HashFields(map[string]any{"content": " hello\n\tworld "})
	c := HashFields(map[string]any{"content": "hello worlds"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestHashChat_MessageOrderIndependent(t *testing.T) {
	a := HashChat("title", []string{"h1", "h2", "h3"})
	b := HashChat("title", []string{"h3", "h1", "h2"})
	assert.Equal(t, a, b)

	changed := HashChat("title", []string{"h1", "h2", "h4"})
	assert.NotEqual(t, a, changed)
}

func TestHashEdge_PairOrderIndependent(t *testing.T) {
	a := HashEdge("chatA", "chatB", []string{"e1", "e2"})
	b := HashEdge("chatB", "chatA", []string{"e2", "e1"})
	assert.Equal(t, a, b)
}

func TestHashSet_OrderIndependent(t *testing.T) {
	assert.Equal(t,
		HashSet([]string{"a", "b", "c"}),
		HashSet([]string{"c", "a", "b"}))
	assert.NotEqual(t,
		HashSet([]string{"a", "b"}),
		HashSet([]string{"a", "b", "c"}))
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "abc_msg_2_chunk_0", ChunkID("abc", 2, 0))
}

func TestXRefIndex_Resolve(t *testing.T) {
	idx := NewXRefIndex()
	idx.AddChat("c1")
	idx.AddMessage("m1")

	require.NoError(t, idx.Resolve(XRef{ChatID: "c1", MessageID: "m1"}))
	require.NoError(t, idx.Resolve(XRef{}), "empty refs resolve trivially")

	err := idx.Resolve(XRef{ChatID: "c2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedXRef)
}

func TestXRefIndex_NoiseClusterAlwaysResolves(t *testing.T) {
	idx := NewXRefIndex()
	noise := NoiseCluster
	require.NoError(t, idx.Resolve(XRef{ClusterID: &noise}))

	three := 3
	require.Error(t, idx.Resolve(XRef{ClusterID: &three}))
	idx.AddCluster(3)
	require.NoError(t, idx.Resolve(XRef{ClusterID: &three}))
}

func TestXRefIndex_IndexRecord(t *testing.T) {
	idx := NewXRefIndex()
	idx.Index(&Chat{ID: "c1"})
	idx.Index(&Message{ID: "m1", ChatID: "c1"})
	idx.Index(&Chunk{ID: "c1_msg_0_chunk_0", Hash: "h", ChatID: "c1", MessageID: "m1"})

	require.NoError(t, idx.Resolve(XRef{ChatID: "c1", MessageID: "m1", ChunkID: "c1_msg_0_chunk_0"}))
}

func TestXRefIndex_SummaryParents(t *testing.T) {
	idx := NewXRefIndex()
	idx.Index(&Summary{Hash: "s1", Kind: SummaryChat, ParentID: "c1", ChatID: "c1"})
	idx.Index(&Summary{Hash: "s2", Kind: SummaryCluster, ParentID: "cluster_0"})

	pos := &Position{Hash: "p1", ParentID: "c1", SummaryHash: "s1"}
	require.NoError(t, idx.Resolve(pos.XRefs()))

	edge := &SimilarityEdge{Hash: "e1", IDA: "c1", IDB: "cluster_0"}
	require.NoError(t, idx.Resolve(edge.XRefs()))

	// An endpoint no accepted summary declared does not resolve.
	stray := &SimilarityEdge{Hash: "e2", IDA: "c1", IDB: "cluster_9"}
	err := idx.Resolve(stray.XRefs())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedXRef)
}
