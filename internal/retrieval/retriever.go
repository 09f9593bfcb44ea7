package retrieval

import (
	"context"
	"time"
)

// PolicyChunk is a retrieved policy fragment with its similarity score.
type PolicyChunk struct {
	ID           string
	PolicyID     int64
	SectionTitle string
	Text         string
	Score        float32
	CreatedAt    time.Time
}

// Retriever combines embedding and vector search to find relevant policy text.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
func NewRetriever(embedder *Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve embeds the query and returns the top-K most similar policy chunks.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]PolicyChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := r.store.Search(vec, topK)
	if err != nil {
		return nil, err
	}

	chunks := make([]PolicyChunk, len(scored))
	for i, s := range scored {
		chunks[i] = PolicyChunk{
			ID:           s.ID,
			PolicyID:     s.PolicyID,
			SectionTitle: s.SectionTitle,
			Text:         s.Content,
			Score:        s.Score,
			CreatedAt:    s.CreatedAt,
		}
	}
	return chunks, nil
}
