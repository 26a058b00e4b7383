package artifact

import (
	"path/filepath"
	"testing"

	"github.com/poiesic/cartograph/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_AppendAndRead(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	w, err := NewWriter(ws.ArtifactPath("chats"), nil)
	require.NoError(t, err)

	chats := []*core.Chat{
		{ID: "c1", Title: "first", SourceFile: "a.json"},
		{ID: "c2", Title: "second", SourceFile: "a.json"},
	}
	for _, c := range chats {
		require.NoError(t, w.Append(c))
	}
	assert.Equal(t, 2, w.Count())
	require.NoError(t, w.Close())

	got, err := ReadAll[core.Chat](ws.ArtifactPath("chats"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, "second", got[1].Title)
}

func TestWriter_RejectsMissingHash(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	w, err := NewWriter(ws.ArtifactPath("chats"), nil)
	require.NoError(t, err)
	defer w.Close()

	err = w.Append(&core.Chat{Title: "no id"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaViolation)
	assert.Equal(t, 0, w.Count())
}

func TestWriter_EnforcesCrossReferences(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	idx := core.NewXRefIndex()
	idx.AddChat("c1")

	w, err := NewWriter(ws.ArtifactPath("messages"), idx)
	require.NoError(t, err)
	defer w.Close()

	ok := &core.Message{ID: "m1", ChatID: "c1", Role: core.RoleUser, Content: "hi"}
	require.NoError(t, w.Append(ok))

	orphan := &core.Message{ID: "m2", ChatID: "missing", Role: core.RoleUser, Content: "hi"}
	err = w.Append(orphan)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaViolation)

	// The accepted message was indexed, so its chunks resolve.
	chunk := &core.Chunk{
		ID: "c1_msg_0_chunk_0", Hash: "h", ChatID: "c1",
		MessageID: "m1", Content: "hi",
	}
	require.NoError(t, idx.Resolve(chunk.XRefs()))

	got, err := ReadAll[core.Message](ws.ArtifactPath("messages"))
	require.NoError(t, err)
	require.Len(t, got, 1, "rejected record never reached the file")
}

func TestForEach_MissingFile(t *testing.T) {
	err := ForEach[core.Chat](filepath.Join(t.TempDir(), "nope.ndjson"), func(*core.Chat) error {
		t.Fatal("should not be called")
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArtifactMissing)
}

func TestMetadata_RoundTrip(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	none, err := ReadMetadata(ws.MetadataPath("embedding"))
	require.NoError(t, err)
	assert.Nil(t, none)

	md := &Metadata{Stage: "embedding", Method: "cloud", Candidates: 10, Processed: 7, Skipped: 3}
	require.NoError(t, WriteMetadata(ws.MetadataPath("embedding"), md))

	got, err := ReadMetadata(ws.MetadataPath("embedding"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.Processed)
}
