package retrieval

import (
	"fmt"
	"testing"

	"github.com/kalambet/leaveflow/internal/storage"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open(:memory:) = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewSQLiteStore(s.DB())
}

func seedPolicy(t *testing.T, db *SQLiteStore, id int64) {
	t.Helper()
	_, err := db.db.Exec(`
		INSERT INTO company_policies (id, filename, version, policy_type, extracted_text, embedding_status, is_active, upload_date)
		VALUES (?, 'p.pdf', 1, 'LEAVE', 'text', 'COMPLETED', 1, '2025-01-01T00:00:00Z')`, id)
	if err != nil {
		t.Fatalf("seeding policy = %v", err)
	}
}

func record(id string, policyID int64, idx int, content string, embedding []float32) Record {
	return Record{
		ID:         id,
		PolicyID:   policyID,
		ChunkIndex: idx,
		Content:    content,
		Embedding:  embedding,
	}
}

func TestInsertAndCount(t *testing.T) {
	store := openTestStore(t)
	seedPolicy(t, store, 1)

	records := []Record{
		record("a", 1, 0, "notice period", []float32{1, 0, 0}),
		record("b", 1, 1, "sick leave limits", []float32{0, 1, 0}),
	}
	if err := store.Insert(records); err != nil {
		t.Fatalf("Insert = %v", err)
	}

	n, err := store.Count()
	if err != nil {
		t.Fatalf("Count = %v", err)
	}
	if n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}
}

func TestSearchRanksBySimilarity(t *testing.T) {
	store := openTestStore(t)
	seedPolicy(t, store, 1)

	records := []Record{
		record("exact", 1, 0, "exact match", []float32{1, 0, 0}),
		record("close", 1, 1, "close match", []float32{0.9, 0.1, 0}),
		record("far", 1, 2, "unrelated", []float32{0, 0, 1}),
	}
	if err := store.Insert(records); err != nil {
		t.Fatalf("Insert = %v", err)
	}

	results, err := store.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].ID != "exact" || results[1].ID != "close" {
		t.Fatalf("order = %s, %s, want exact, close", results[0].ID, results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Fatalf("scores not descending: %f < %f", results[0].Score, results[1].Score)
	}
}

func TestSearchTopKLargerThanStore(t *testing.T) {
	store := openTestStore(t)
	seedPolicy(t, store, 1)

	if err := store.Insert([]Record{record("only", 1, 0, "text", []float32{1, 0})}); err != nil {
		t.Fatalf("Insert = %v", err)
	}

	results, err := store.Search([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
}

func TestSearchZeroVector(t *testing.T) {
	store := openTestStore(t)
	seedPolicy(t, store, 1)
	if err := store.Insert([]Record{record("a", 1, 0, "text", []float32{1, 0})}); err != nil {
		t.Fatalf("Insert = %v", err)
	}

	results, err := store.Search([]float32{0, 0}, 5)
	if err != nil {
		t.Fatalf("Search = %v", err)
	}
	if results != nil {
		t.Fatalf("results = %v, want nil for zero query", results)
	}
}

func TestSearchEmptyStore(t *testing.T) {
	store := openTestStore(t)

	results, err := store.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search = %v", err)
	}
	if results != nil {
		t.Fatalf("results = %v, want nil for empty store", results)
	}
}

func TestDeleteByPolicy(t *testing.T) {
	store := openTestStore(t)
	seedPolicy(t, store, 1)
	seedPolicy(t, store, 2)

	if err := store.Insert([]Record{
		record("a", 1, 0, "one", []float32{1, 0}),
		record("b", 2, 0, "two", []float32{0, 1}),
	}); err != nil {
		t.Fatalf("Insert = %v", err)
	}

	if err := store.DeleteByPolicy(1); err != nil {
		t.Fatalf("DeleteByPolicy = %v", err)
	}

	n, err := store.Count()
	if err != nil {
		t.Fatalf("Count = %v", err)
	}
	if n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}
}

func TestFloat32Codec(t *testing.T) {
	in := []float32{0.5, -1.25, 3.75, 0}
	blob := encodeFloat32s(in)

	out, err := decodeFloat32s(blob)
	if err != nil {
		t.Fatalf("decodeFloat32s = %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("out[%d] = %f, want %f", i, out[i], in[i])
		}
	}

	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Fatal("decodeFloat32s accepted truncated blob")
	}
}

func TestSearchManyChunks(t *testing.T) {
	store := openTestStore(t)
	seedPolicy(t, store, 1)

	var records []Record
	for i := range 50 {
		records = append(records, record(fmt.Sprintf("c%02d", i), 1, i, "chunk", []float32{float32(i), 1}))
	}
	if err := store.Insert(records); err != nil {
		t.Fatalf("Insert = %v", err)
	}

	results, err := store.Search([]float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	// Highest index vectors point closest to the query direction.
	if results[0].ID != "c49" {
		t.Fatalf("top = %s, want c49", results[0].ID)
	}
}
