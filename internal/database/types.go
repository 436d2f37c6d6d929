package database

import (
	"encoding/json"
	"time"
)

// StoredIdentity represents an enrolled identity stored in the database
type StoredIdentity struct {
	ID         string // UUID assigned at enrollment
	EmployeeID string // external HR identifier (empty if not linked)
	Name       string
	Embedding  []float32
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StoredAnomalyEvent represents a persisted anomaly row consumed by the
// external alerting collaborator
type StoredAnomalyEvent struct {
	ID         int64
	Category   string
	Severity   string
	IdentityID string // empty when the face was not recognized
	Detail     json.RawMessage
	CreatedAt  time.Time
}
