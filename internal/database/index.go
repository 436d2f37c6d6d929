package database

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"

	"github.com/jsvoboda/faceguard/internal/constants"
)

// HNSW index parameters for 128-dim face embeddings
const (
	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100
)

// HNSWIndex wraps the HNSW graph for duplicate-enrollment screening.
// Distances are Euclidean, matching the matcher contract.
type HNSWIndex struct {
	graph        *hnsw.Graph[string]
	savedGraph   *hnsw.SavedGraph[string]
	idToIdentity map[string]*StoredIdentity
	mu           sync.RWMutex
	path         string
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToIdentity: make(map[string]*StoredIdentity),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.EuclideanDistance
	return g
}

// BuildFromIdentities builds the index from a slice of identities.
func (h *HNSWIndex) BuildFromIdentities(identities []StoredIdentity) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(identities) == 0 {
		h.graph = nil
		h.savedGraph = nil
		h.idToIdentity = make(map[string]*StoredIdentity)
		return nil
	}

	g := newGraph()
	h.idToIdentity = make(map[string]*StoredIdentity, len(identities))

	for i := range identities {
		identity := &identities[i]
		if len(identity.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(identity.ID, identity.Embedding))
		h.idToIdentity[identity.ID] = identity
	}

	h.graph = g
	return nil
}

// Search finds the k nearest neighbors to the query embedding.
// Returns identity IDs and their Euclidean distances.
func (h *HNSWIndex) Search(query []float32, k int) ([]string, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	var neighbors []hnsw.Node[string]
	if h.savedGraph != nil {
		neighbors = h.savedGraph.Search(query, k)
	} else {
		neighbors = h.graph.Search(query, k)
	}

	ids := make([]string, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))

	for _, n := range neighbors {
		// Tombstoned entries stay in the graph but are filtered here.
		if _, ok := h.idToIdentity[n.Key]; !ok {
			continue
		}
		ids = append(ids, n.Key)
		if len(n.Value) > 0 {
			distances = append(distances, float64(hnsw.EuclideanDistance(query, n.Value)))
		} else {
			distances = append(distances, 0)
		}
	}

	return ids, distances, nil
}

// GetIdentity returns the identity for a given ID.
func (h *HNSWIndex) GetIdentity(id string) *StoredIdentity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idToIdentity[id]
}

// Add adds a single identity to the index.
func (h *HNSWIndex) Add(identity *StoredIdentity) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(identity.Embedding) == 0 {
		return nil
	}

	if h.graph == nil {
		h.graph = newGraph()
	}

	h.graph.Add(hnsw.MakeNode(identity.ID, identity.Embedding))
	h.idToIdentity[identity.ID] = identity

	return nil
}

// Delete removes an identity from the index (marks as deleted).
func (h *HNSWIndex) Delete(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.idToIdentity, id)
	// HNSW doesn't support true deletion; Search filters by the
	// idToIdentity lookup, which removes it from results.
}

// Count returns the number of indexed identities.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToIdentity)
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil && h.savedGraph == nil
}

// Save persists the index to disk.
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if path == "" {
		return nil
	}

	if h.graph == nil {
		// Remove existing file if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	return nil
}

// Load loads the index from disk. The idToIdentity map must be rebuilt
// separately via RebuildFromIdentities.
func (h *HNSWIndex) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // No index file, will build from identities
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.savedGraph = saved
	return nil
}

// RebuildFromIdentities rebuilds the idToIdentity map from identities.
// Called after loading the graph from disk.
func (h *HNSWIndex) RebuildFromIdentities(identities []StoredIdentity) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.idToIdentity = make(map[string]*StoredIdentity, len(identities))
	for i := range identities {
		h.idToIdentity[identities[i].ID] = &identities[i]
	}
}
