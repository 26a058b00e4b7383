package stages

// Stage names, in fixed dependency order.
const (
	StageIngestion   = "ingestion"
	StageChunking    = "chunking"
	StageEmbedding   = "embedding"
	StageClustering  = "clustering"
	StageTagging     = "tagging"
	StageChatSummary = "chat_summarization"
	StageClusterSumm = "cluster_summarization"
	StagePositioning = "positioning"
	StageSimilarity  = "similarity"
	StageLoading     = "loading"
)

// Artifact names. Each stage appends to exactly one artifact, except
// positioning which also emits the summary-embedding artifact.
const (
	ArtifactChats        = "chats"
	ArtifactMessages     = "messages"
	ArtifactChunks       = "chunks"
	ArtifactEmbeddings   = "embeddings"
	ArtifactClusters     = "clusters"
	ArtifactTags         = "tags"
	ArtifactChatSumms    = "chat_summaries"
	ArtifactClusterSumms = "cluster_summaries"
	ArtifactPositions    = "positions"
	ArtifactSummaryEmbs  = "summary_embeddings"
	ArtifactSimilarity   = "similarity"
)

// Named ledger slots beyond the per-stage default slot.
const (
	slotMessages    = "messages"
	slotChunks      = "chunks"
	slotEmbeddings  = "embeddings"
	slotAssignments = "assignments"
	slotTags        = "tags"
	slotEdges       = "edges"
)
