package database

import (
	"path/filepath"
	"testing"

	"github.com/jsvoboda/faceguard/internal/constants"
)

func indexEmbedding(first float32) []float32 {
	emb := make([]float32, constants.EmbeddingDim)
	emb[0] = first
	return emb
}

func testIdentities() []StoredIdentity {
	return []StoredIdentity{
		{ID: "id-a", Name: "Alice", Embedding: indexEmbedding(0.0), Active: true},
		{ID: "id-b", Name: "Bob", Embedding: indexEmbedding(1.0), Active: true},
		{ID: "id-c", Name: "Carol", Embedding: indexEmbedding(2.0), Active: true},
	}
}

func TestHNSWIndex_Search(t *testing.T) {
	idx := NewHNSWIndex()
	if err := idx.BuildFromIdentities(testIdentities()); err != nil {
		t.Fatalf("BuildFromIdentities failed: %v", err)
	}

	ids, distances, err := idx.Search(indexEmbedding(0.1), 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "id-a" {
		t.Fatalf("expected nearest id-a, got %v", ids)
	}
	if distances[0] < 0.09 || distances[0] > 0.11 {
		t.Errorf("distance = %f, want ~0.1", distances[0])
	}
}

func TestHNSWIndex_SearchEmpty(t *testing.T) {
	idx := NewHNSWIndex()
	if _, _, err := idx.Search(indexEmbedding(0), 1); err == nil {
		t.Error("expected error for uninitialized index")
	}
}

func TestHNSWIndex_Delete(t *testing.T) {
	idx := NewHNSWIndex()
	if err := idx.BuildFromIdentities(testIdentities()); err != nil {
		t.Fatalf("BuildFromIdentities failed: %v", err)
	}

	idx.Delete("id-a")

	if idx.Count() != 2 {
		t.Errorf("Count = %d, want 2", idx.Count())
	}

	// Deleted entries must not surface in search results.
	ids, _, err := idx.Search(indexEmbedding(0.0), 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, id := range ids {
		if id == "id-a" {
			t.Error("deleted identity returned from search")
		}
	}
}

func TestHNSWIndex_AddIncremental(t *testing.T) {
	idx := NewHNSWIndex()

	identity := StoredIdentity{ID: "id-x", Name: "Xavier", Embedding: indexEmbedding(5.0)}
	if err := idx.Add(&identity); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ids, _, err := idx.Search(indexEmbedding(5.0), 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "id-x" {
		t.Fatalf("expected id-x, got %v", ids)
	}
	if got := idx.GetIdentity("id-x"); got == nil || got.Name != "Xavier" {
		t.Errorf("GetIdentity returned %+v", got)
	}
}

func TestHNSWIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identities.hnsw")

	idx := NewHNSWIndex()
	identities := testIdentities()
	if err := idx.BuildFromIdentities(identities); err != nil {
		t.Fatalf("BuildFromIdentities failed: %v", err)
	}
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := NewHNSWIndex()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.IsEmpty() {
		t.Fatal("loaded index is empty")
	}
	loaded.RebuildFromIdentities(identities)

	ids, _, err := loaded.Search(indexEmbedding(1.0), 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "id-b" {
		t.Fatalf("expected id-b, got %v", ids)
	}
}

func TestHNSWIndex_LoadMissingFile(t *testing.T) {
	idx := NewHNSWIndex()
	if err := idx.Load(filepath.Join(t.TempDir(), "missing.hnsw")); err != nil {
		t.Fatalf("Load of missing file must not error: %v", err)
	}
	if !idx.IsEmpty() {
		t.Error("index must stay empty when no file exists")
	}
}
