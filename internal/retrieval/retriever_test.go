package retrieval

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
)

// mockEmbeddingClient returns canned vectors keyed by input text.
type mockEmbeddingClient struct {
	vectors map[string][]float32
	err     error
	calls   atomic.Int32
}

func (m *mockEmbeddingClient) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func TestEmbedBatch(t *testing.T) {
	mock := &mockEmbeddingClient{vectors: map[string][]float32{
		"a": {1, 0},
		"b": {0, 1},
	}}
	e := NewEmbedder(mock, "embed-model")

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch = %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("len(vecs) = %d, want 2", len(vecs))
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Fatalf("vecs = %v, order not preserved", vecs)
	}
}

func TestEmbedBatchEmpty(t *testing.T) {
	e := NewEmbedder(&mockEmbeddingClient{}, "m")
	vecs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil) = %v", err)
	}
	if vecs != nil {
		t.Fatalf("vecs = %v, want nil", vecs)
	}
}

func TestEmbedBatchPropagatesError(t *testing.T) {
	mock := &mockEmbeddingClient{err: fmt.Errorf("api down")}
	e := NewEmbedder(mock, "m")
	if _, err := e.EmbedBatch(context.Background(), []string{"a"}); err == nil {
		t.Fatal("EmbedBatch succeeded, want error")
	}
}

func TestRetrieve(t *testing.T) {
	store := openTestStore(t)
	seedPolicy(t, store, 1)

	if err := store.Insert([]Record{
		{ID: "n", PolicyID: 1, ChunkIndex: 0, SectionTitle: "Notice", Content: "7 days notice required", Embedding: []float32{1, 0, 0}},
		{ID: "s", PolicyID: 1, ChunkIndex: 1, SectionTitle: "Sick", Content: "sick leave rules", Embedding: []float32{0, 1, 0}},
	}); err != nil {
		t.Fatalf("Insert = %v", err)
	}

	mock := &mockEmbeddingClient{vectors: map[string][]float32{
		"notice period": {1, 0, 0},
	}}
	r := NewRetriever(NewEmbedder(mock, "m"), store)

	chunks, err := r.Retrieve(context.Background(), "notice period", 1)
	if err != nil {
		t.Fatalf("Retrieve = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if chunks[0].ID != "n" || chunks[0].SectionTitle != "Notice" {
		t.Fatalf("chunk = %+v, want the notice chunk", chunks[0])
	}
	if chunks[0].Score <= 0.99 {
		t.Fatalf("score = %f, want ~1", chunks[0].Score)
	}
}

func TestRetrieveEmbedError(t *testing.T) {
	store := openTestStore(t)
	r := NewRetriever(NewEmbedder(&mockEmbeddingClient{err: fmt.Errorf("down")}, "m"), store)
	if _, err := r.Retrieve(context.Background(), "q", 3); err == nil {
		t.Fatal("Retrieve succeeded, want error")
	}
}
