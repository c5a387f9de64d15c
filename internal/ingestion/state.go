package ingestion

// State is a document's position in the ingestion pipeline. Transitions are
// strictly forward: received → extracting → chunking → embedding → storing →
// complete. Any stage may transition to failed, which is terminal.
type State string

// Pipeline states, in processing order.
const (
	StateReceived   State = "received"
	StateExtracting State = "extracting"
	StateChunking   State = "chunking"
	StateEmbedding  State = "embedding"
	StateStoring    State = "storing"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Stage names used in failure records and metrics labels. They match the
// state the pipeline was in when the error occurred.
const (
	stageExtract = "extracting"
	stageChunk   = "chunking"
	stageEmbed   = "embedding"
	stageStore   = "storing"
)

// Error kinds recorded on failure, one per pipeline error type.
const (
	errKindExtraction = "extraction"
	errKindChunking   = "chunking"
	errKindEmbedding  = "embedding"
	errKindStore      = "vector_store"
	errKindCanceled   = "canceled"
	errKindInternal   = "internal"
)

// Progress is a point-in-time snapshot of one document's ingestion.
type Progress struct {
	// DocumentID identifies the document being processed.
	DocumentID string
	// Filename is the original upload filename.
	Filename string
	// State is the current pipeline state.
	State State
	// ChunksTotal is the number of chunks produced, once chunking completes.
	ChunksTotal int
	// ChunksEmbedded counts chunks embedded so far during the embedding stage.
	ChunksEmbedded int
	// Attempt is the current attempt number for the active stage, starting at 1.
	Attempt int
	// Err holds the failure message when State is failed.
	Err string
}
