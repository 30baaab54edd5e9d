package model

// VectorEntry is a stored embedding. One logical index groups all entries
// sharing an index name; Tag partitions search scope (e.g. one
// conversation) without requiring separate indices.
type VectorEntry struct {
	Key     string
	Vector  []float32
	Content string
	Tag     string
}

// VectorHit is a similarity search result. Score is always a similarity:
// higher means more similar, regardless of which backend produced it.
type VectorHit struct {
	Key     string  `json:"key"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
