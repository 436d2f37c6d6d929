package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/pgvector/pgvector-go"

	"github.com/jsvoboda/faceguard/internal/constants"
	"github.com/jsvoboda/faceguard/internal/database"
)

// IdentityRepository provides PostgreSQL-backed identity storage with an
// optional in-memory HNSW index for duplicate-enrollment screening.
type IdentityRepository struct {
	pool          *Pool
	hnswIndex     *database.HNSWIndex
	hnswEnabled   bool
	hnswIndexPath string
	hnswMu        sync.RWMutex
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Save stores an identity, replacing any existing row with the same ID.
func (r *IdentityRepository) Save(ctx context.Context, identity *database.StoredIdentity) error {
	var employeeID sql.NullString
	if identity.EmployeeID != "" {
		employeeID = sql.NullString{String: identity.EmployeeID, Valid: true}
	}

	query := `
		INSERT INTO identities (id, employee_id, name, embedding, active)
		VALUES ($1, $2, $3, $4::vector, $5)
		ON CONFLICT (id) DO UPDATE SET
			employee_id = EXCLUDED.employee_id,
			name = EXCLUDED.name,
			embedding = EXCLUDED.embedding,
			active = EXCLUDED.active,
			updated_at = NOW()
	`

	vec := pgvector.NewVector(identity.Embedding)
	if _, err := r.pool.Exec(ctx, query, identity.ID, employeeID, identity.Name, vec, identity.Active); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}

	if r.isHNSWEnabled() {
		r.hnswMu.Lock()
		if err := r.hnswIndex.Add(identity); err != nil {
			log.Printf("Warning: failed to index identity %s: %v", identity.ID, err)
		}
		r.hnswMu.Unlock()
	}

	return nil
}

// Get retrieves an identity by ID, returns nil if not found.
func (r *IdentityRepository) Get(ctx context.Context, id string) (*database.StoredIdentity, error) {
	query := `
		SELECT id, employee_id, name, embedding, active, created_at, updated_at
		FROM identities
		WHERE id = $1
	`

	identity, err := scanIdentityRow(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// GetAllActive retrieves all active identities for store publication.
func (r *IdentityRepository) GetAllActive(ctx context.Context) ([]database.StoredIdentity, error) {
	query := `
		SELECT id, employee_id, name, embedding, active, created_at, updated_at
		FROM identities
		WHERE active
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active identities: %w", err)
	}
	defer rows.Close()

	return scanIdentities(rows)
}

// Count returns the number of active identities.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities WHERE active").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// Deactivate marks an identity inactive so it no longer matches.
// Returns false if the identity does not exist.
func (r *IdentityRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	result, err := r.pool.Exec(ctx, "UPDATE identities SET active = FALSE, updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("deactivate identity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate identity: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if r.isHNSWEnabled() {
		r.hnswMu.Lock()
		r.hnswIndex.Delete(id)
		r.hnswMu.Unlock()
	}

	return true, nil
}

// FindSimilar finds active identities with similar embeddings using
// Euclidean distance. Uses the in-memory HNSW index if enabled, otherwise
// falls back to PostgreSQL.
func (r *IdentityRepository) FindSimilar(
	ctx context.Context, embedding []float32, limit int,
) ([]database.StoredIdentity, []float64, error) {
	if r.isHNSWEnabled() {
		return r.findSimilarHNSW(embedding, limit)
	}
	return r.findSimilarPostgres(ctx, embedding, limit)
}

// findSimilarHNSW uses the in-memory HNSW index for similarity search.
func (r *IdentityRepository) findSimilarHNSW(
	embedding []float32, limit int,
) ([]database.StoredIdentity, []float64, error) {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndex == nil {
		return nil, nil, errors.New("HNSW index not initialized")
	}

	ids, distances, err := r.hnswIndex.Search(embedding, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("HNSW search: %w", err)
	}

	results := make([]database.StoredIdentity, 0, len(ids))
	distancesOut := make([]float64, 0, len(ids))
	for i, id := range ids {
		identity := r.hnswIndex.GetIdentity(id)
		if identity == nil {
			continue
		}
		results = append(results, *identity)
		distancesOut = append(distancesOut, distances[i])
	}

	return results, distancesOut, nil
}

// findSimilarPostgres uses PostgreSQL for similarity search with ef_search optimization.
func (r *IdentityRepository) findSimilarPostgres(
	ctx context.Context, embedding []float32, limit int,
) ([]database.StoredIdentity, []float64, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Set ef_search to match the in-memory HNSW configuration.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, nil, fmt.Errorf("set ef_search: %w", err)
	}

	query := `
		SELECT id, employee_id, name, embedding, active, created_at, updated_at,
		       embedding <-> $1::vector AS distance
		FROM identities
		WHERE active
		ORDER BY distance
		LIMIT $2
	`

	vec := pgvector.NewVector(embedding)
	rows, err := tx.QueryContext(ctx, query, vec, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query similar identities: %w", err)
	}
	defer rows.Close()

	var identities []database.StoredIdentity
	var distances []float64

	for rows.Next() {
		var dist float64
		identity, err := scanIdentityRow(rows, &dist)
		if err != nil {
			return nil, nil, err
		}
		identities = append(identities, identity)
		distances = append(distances, dist)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate identities: %w", err)
	}

	return identities, distances, nil
}

// FindDuplicate checks whether an embedding is close enough to an already
// enrolled identity to be the same face. Returns nil when no duplicate
// exists.
func (r *IdentityRepository) FindDuplicate(
	ctx context.Context, embedding []float32,
) (*database.StoredIdentity, float64, error) {
	identities, distances, err := r.FindSimilar(ctx, embedding, constants.DuplicateCheckLimit)
	if err != nil {
		return nil, 0, err
	}

	for i := range identities {
		if distances[i] < constants.DuplicateDistanceThreshold {
			return &identities[i], distances[i], nil
		}
	}
	return nil, 0, nil
}

// isHNSWEnabled checks whether the HNSW index is active.
func (r *IdentityRepository) isHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled && r.hnswIndex != nil
}

// EnableHNSW loads or builds the in-memory HNSW index. If indexPath is
// provided it tries to load from disk first and saves after building.
// Should be called once at startup.
func (r *IdentityRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	identities, err := r.GetAllActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load identities: %w", err)
	}

	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()

	r.hnswIndexPath = indexPath

	if indexPath != "" {
		idx := database.NewHNSWIndex()
		if err := idx.Load(indexPath); err != nil {
			log.Printf("Identity index: load failed: %v (will rebuild)", err)
		} else if !idx.IsEmpty() {
			idx.RebuildFromIdentities(identities)
			if idx.Count() == len(identities) {
				r.hnswIndex = idx
				r.hnswEnabled = true
				log.Printf("Identity index: loaded from disk (%d identities)", idx.Count())
				return nil
			}
			log.Printf("Identity index: stale (db: %d, cached: %d) (will rebuild)", len(identities), idx.Count())
		}
	}

	idx := database.NewHNSWIndex()
	if err := idx.BuildFromIdentities(identities); err != nil {
		return fmt.Errorf("failed to build HNSW index: %w", err)
	}

	if indexPath != "" && len(identities) > 0 {
		if err := idx.Save(indexPath); err != nil {
			log.Printf("Warning: failed to save HNSW index to disk: %v", err)
		}
	}

	r.hnswIndex = idx
	r.hnswEnabled = true
	return nil
}

// DisableHNSW disables the in-memory index, falling back to PostgreSQL queries.
func (r *IdentityRepository) DisableHNSW() {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswEnabled = false
	r.hnswIndex = nil
}

// IsHNSWEnabled returns whether the in-memory HNSW index is enabled.
func (r *IdentityRepository) IsHNSWEnabled() bool {
	return r.isHNSWEnabled()
}

// SaveHNSWIndex saves the current HNSW index to disk (if path configured).
func (r *IdentityRepository) SaveHNSWIndex() error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndexPath == "" || r.hnswIndex == nil {
		return nil
	}
	if err := r.hnswIndex.Save(r.hnswIndexPath); err != nil {
		return fmt.Errorf("saving HNSW identity index: %w", err)
	}
	return nil
}

// scanIdentityRow scans a single row into a StoredIdentity, with optional
// extra scan destinations appended after the standard columns.
func scanIdentityRow(scanner interface{ Scan(...any) error }, extraDest ...any) (database.StoredIdentity, error) {
	var identity database.StoredIdentity
	var vec pgvector.Vector
	var employeeID sql.NullString

	dest := make([]any, 0, 7+len(extraDest))
	dest = append(dest,
		&identity.ID,
		&employeeID,
		&identity.Name,
		&vec,
		&identity.Active,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	dest = append(dest, extraDest...)

	if err := scanner.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity, err
		}
		return identity, fmt.Errorf("scan identity: %w", err)
	}

	identity.Embedding = vec.Slice()
	if employeeID.Valid {
		identity.EmployeeID = employeeID.String
	}

	return identity, nil
}

func scanIdentities(rows *sql.Rows) ([]database.StoredIdentity, error) {
	var identities []database.StoredIdentity
	for rows.Next() {
		identity, err := scanIdentityRow(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// Verify interface compliance.
var _ database.IdentityReader = (*IdentityRepository)(nil)
var _ database.IdentityWriter = (*IdentityRepository)(nil)
