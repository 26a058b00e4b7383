package core

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// NoiseCluster is the sentinel cluster id for chunks the clustering run left
// unassigned.
const NoiseCluster = -1

// Record is implemented by every artifact record. The record's own content
// hash and its cross-reference ids are what the artifact layer validates
// before a record is accepted into a stage's output.
type Record interface {
	RecordHash() string
	XRefs() XRef
}

// Chat is a whole conversation from a source archive. Its ID is the content
// hash of its normalized title and sorted message content hashes; a chat is
// immutable once hashed and is superseded by a new hash if the source
// content changes.
type Chat struct {
	ID         string   `json:"chat_id"`
	Title      string   `json:"title"`
	SourceFile string   `json:"source_file"`
	MessageIDs []string `json:"message_ids"`
}

func (c *Chat) RecordHash() string { return c.ID }
func (c *Chat) XRefs() XRef        { return XRef{} }

// Message belongs to exactly one Chat. Its ID is the content hash of
// (content, chat id, role, source message id).
type Message struct {
	ID       string `json:"message_id"`
	ChatID   string `json:"chat_id"`
	Role     Role   `json:"role"`
	Content  string `json:"content"`
	SourceID string `json:"source_id"`
	SeqNo    int    `json:"seq_no"`
}

func (m *Message) RecordHash() string { return m.ID }
func (m *Message) XRefs() XRef        { return XRef{ChatID: m.ChatID} }

// Chunk is a splitter-produced slice of one Message. ID is positional
// ({chat_id}_msg_{n}_chunk_{m}); Hash is the content hash. MessageHash is
// carried verbatim so staleness is detectable by hash comparison alone.
type Chunk struct {
	ID          string `json:"chunk_id"`
	Hash        string `json:"hash"`
	ChatID      string `json:"chat_id"`
	MessageID   string `json:"message_id"`
	MessageHash string `json:"message_hash"`
	MsgIdx      int    `json:"msg_idx"`
	ChunkIdx    int    `json:"chunk_idx"`
	Content     string `json:"content"`
}

func (c *Chunk) RecordHash() string { return c.Hash }
func (c *Chunk) XRefs() XRef {
	return XRef{ChatID: c.ChatID, MessageID: c.MessageID}
}

// OwnerKind says what an embedding's vector was computed from.
type OwnerKind string

const (
	OwnerChunk          OwnerKind = "chunk"
	OwnerChatSummary    OwnerKind = "chat_summary"
	OwnerClusterSummary OwnerKind = "cluster_summary"
)

// Embedding records the identity and provenance of one vector. The vector
// itself lives in the embedding repository keyed by Hash; the artifact
// record holds only scalars and cross-reference ids.
type Embedding struct {
	Hash      string    `json:"hash"`
	OwnerKind OwnerKind `json:"owner_kind"`
	OwnerID   string    `json:"owner_id"`
	OwnerHash string    `json:"owner_hash"`
	ChatID    string    `json:"chat_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Model     string    `json:"model"`
	Dims      int       `json:"dims"`
}

func (e *Embedding) RecordHash() string { return e.Hash }
func (e *Embedding) XRefs() XRef {
	x := XRef{ChatID: e.ChatID, MessageID: e.MessageID}
	if e.OwnerKind == OwnerChunk {
		x.ChunkID = e.OwnerID
	}
	return x
}

// ClusterAssignment maps one chunk to a cluster for a given clustering run.
// Cluster ids are stable only within one run: RunHash is the digest of the
// full input embedding-hash set, so a reclustering invalidates every
// cluster-keyed artifact downstream.
type ClusterAssignment struct {
	Hash          string  `json:"hash"`
	ChunkID       string  `json:"chunk_id"`
	ChunkHash     string  `json:"chunk_hash"`
	ChatID        string  `json:"chat_id"`
	MessageID     string  `json:"message_id"`
	EmbeddingHash string  `json:"embedding_hash"`
	ClusterID     int     `json:"cluster_id"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	RunHash       string  `json:"run_hash"`
}

func (a *ClusterAssignment) RecordHash() string { return a.Hash }
func (a *ClusterAssignment) XRefs() XRef {
	return XRef{
		ChatID:        a.ChatID,
		MessageID:     a.MessageID,
		ChunkID:       a.ChunkID,
		EmbeddingHash: a.EmbeddingHash,
	}
}

// Tag is attached to a Message and propagated to its chunks. ChunkIDs are
// carried so TAGS edges to chunks need no join at load time.
type Tag struct {
	Hash      string   `json:"hash"`
	Tag       string   `json:"tag"`
	MessageID string   `json:"message_id"`
	ChatID    string   `json:"chat_id"`
	ChunkIDs  []string `json:"chunk_ids"`
}

func (t *Tag) RecordHash() string { return t.Hash }
func (t *Tag) XRefs() XRef {
	return XRef{ChatID: t.ChatID, MessageID: t.MessageID}
}

// SummaryKind distinguishes chat-level from cluster-level summaries.
type SummaryKind string

const (
	SummaryChat    SummaryKind = "chat"
	SummaryCluster SummaryKind = "cluster"
)

// Summary is an LLM (or local) summary of a chat or cluster. Its hash covers
// the parent id and the sorted constituent hashes, so it is invalidated
// exactly when any constituent changes.
type Summary struct {
	Hash         string      `json:"hash"`
	Kind         SummaryKind `json:"kind"`
	ParentID     string      `json:"parent_id"`
	ChatID       string      `json:"chat_id,omitempty"`
	ClusterID    int         `json:"cluster_id,omitempty"`
	Text         string      `json:"text"`
	Constituents []string    `json:"constituent_hashes"`
	Method       string      `json:"method"`
}

func (s *Summary) RecordHash() string { return s.Hash }
func (s *Summary) XRefs() XRef {
	x := XRef{ChatID: s.ChatID}
	if s.Kind == SummaryCluster {
		id := s.ClusterID
		x.ClusterID = &id
	}
	return x
}

// Position is a 2-D coordinate for a chat or cluster derived from its
// summary embedding.
type Position struct {
	Hash          string      `json:"hash"`
	ParentKind    SummaryKind `json:"parent_kind"`
	ParentID      string      `json:"parent_id"`
	SummaryHash   string      `json:"summary_hash"`
	EmbeddingHash string      `json:"embedding_hash"`
	X             float64     `json:"x"`
	Y             float64     `json:"y"`
}

func (p *Position) RecordHash() string { return p.Hash }
func (p *Position) XRefs() XRef {
	return XRef{
		SummaryHash:   p.SummaryHash,
		EmbeddingHash: p.EmbeddingHash,
		ParentIDs:     []string{p.ParentID},
	}
}

// SimilarityEdge is a scored pair of chats or clusters, computed only from
// embeddings already persisted by the positioning stage.
type SimilarityEdge struct {
	Hash      string      `json:"hash"`
	Kind      SummaryKind `json:"kind"`
	IDA       string      `json:"id_a"`
	IDB       string      `json:"id_b"`
	Score     float32     `json:"score"`
	InputHash string      `json:"input_hash"`
}

func (e *SimilarityEdge) RecordHash() string { return e.Hash }
func (e *SimilarityEdge) XRefs() XRef        { return XRef{ParentIDs: []string{e.IDA, e.IDB}} }
