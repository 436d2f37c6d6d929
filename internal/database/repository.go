package database

import (
	"context"
)

// IdentityReader provides read-only access to enrolled identities
type IdentityReader interface {
	// Get retrieves an identity by ID, returns nil if not found
	Get(ctx context.Context, id string) (*StoredIdentity, error)
	// GetAllActive retrieves all active identities for store publication
	GetAllActive(ctx context.Context) ([]StoredIdentity, error)
	// Count returns the number of active identities
	Count(ctx context.Context) (int, error)
	// FindSimilar finds identities with similar embeddings and returns distances
	FindSimilar(ctx context.Context, embedding []float32, limit int) ([]StoredIdentity, []float64, error)
}

// IdentityWriter provides write access to enrolled identities
type IdentityWriter interface {
	IdentityReader

	// Save stores an identity, replacing any existing row with the same ID
	Save(ctx context.Context, identity *StoredIdentity) error

	// Deactivate marks an identity inactive so it no longer matches.
	// Returns false if the identity does not exist.
	Deactivate(ctx context.Context, id string) (bool, error)
}

// AnomalyWriter provides access to the anomaly event log
type AnomalyWriter interface {
	// Record appends an anomaly event and returns its assigned ID
	Record(ctx context.Context, event *StoredAnomalyEvent) (int64, error)
	// Recent returns the most recent anomaly events, newest first
	Recent(ctx context.Context, limit int) ([]StoredAnomalyEvent, error)
}
