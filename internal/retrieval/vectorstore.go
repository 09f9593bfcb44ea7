// Package retrieval provides embedding generation and vector similarity
// search over policy document chunks.
package retrieval

import "time"

// VectorStore is the interface for chunk storage and similarity search
// backends. The default implementation uses SQLite with brute-force cosine
// similarity, which is fine at policy-handbook scale.
type VectorStore interface {
	// Insert adds chunk records.
	Insert(records []Record) error

	// Search returns the top-K records most similar to the query vector.
	Search(vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteByPolicy removes all chunks belonging to a policy document.
	DeleteByPolicy(policyID int64) error

	// Count returns the number of stored chunks.
	Count() (int, error)
}

// Record represents one embedded chunk of a policy document.
type Record struct {
	ID           string
	PolicyID     int64
	ChunkIndex   int
	SectionTitle string
	Content      string
	Embedding    []float32
	CreatedAt    time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
