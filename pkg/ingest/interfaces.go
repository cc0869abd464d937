package ingest

import "context"

// ParsedChunk is one unit of text a Parser emits from a source file,
// paired with whatever per-chunk metadata the parser attaches.
type ParsedChunk struct {
	Text     string
	Metadata map[string]interface{}
}

// Parser is a pure function bytes -> ordered list of (text, metadata).
// The pipeline does not prescribe parsing algorithms; it only requires
// determinism for a fixed input. External collaborator per spec.md §6.
type Parser interface {
	// Extensions returns the file extensions (including the leading
	// dot, e.g. ".md") this parser declares it handles, in the order
	// they should be matched.
	Extensions() []string
	Parse(data []byte) ([]ParsedChunk, error)
}

// Extractor is a pure function (text, metadata) -> additional
// metadata. Extractors MUST NOT modify text; the pipeline enforces
// this by only ever passing extractors a copy of the accumulated
// metadata map. External collaborator per spec.md §6.
type Extractor interface {
	Extract(text string, metadata map[string]interface{}) (map[string]interface{}, error)
}

// Embedder is an opaque function list<text> -> list<vector>. All
// vectors returned for a single database must have identical
// dimension. External collaborator per spec.md §6.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// StoredChunk is what the pipeline hands to VectorStore.Upsert: a
// chunk_id, its embedding, and flattened (scalar-only) metadata.
type StoredChunk struct {
	ChunkID  string
	Vector   []float32
	Metadata map[string]string
}

// VectorStore is the pipeline's storage collaborator. External
// collaborator per spec.md §6; concrete stores (chroma, pgvector, an
// in-memory store) live outside this package.
type VectorStore interface {
	Upsert(ctx context.Context, chunks []StoredChunk) error
	// Exists is the dedup fallback check described in spec.md §4.3
	// step 4; the DedupIndex is authoritative.
	Exists(ctx context.Context, chunkID string) (bool, error)
}

// DedupIndex is a set of known chunk_ids consulted before embedding.
type DedupIndex interface {
	Exists(chunkID string) (bool, error)
	Mark(chunkID string) error
}
