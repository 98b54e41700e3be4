package model

// Record is one vector entry decoded from a chunk document.
type Record struct {
	// ID is the writer-assigned identifier of the entry. It is opaque to the
	// loading pipeline and returned verbatim in search results.
	ID string `json:"id"`

	// Vector is the embedding. Its length must equal the collection's
	// declared dimensionality.
	Vector []float32 `json:"vector"`

	// Metadata is an opaque JSON document attached by the writer. Only
	// top-level scalar fields participate in search filtering.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Chunk is the decoded form of one chunk document.
type Chunk struct {
	ChunkID int      `json:"chunkId"`
	Vectors []Record `json:"vectors"`
}

// SearchResult is one scored match returned by a query.
type SearchResult struct {
	// ID is the writer-assigned identifier of the matched entry.
	ID string

	// Score is the cosine similarity of the match in [-1, 1], higher is
	// closer.
	Score float32

	// Metadata is the entry's metadata document, shared with the index;
	// callers must not mutate it.
	Metadata map[string]any
}
