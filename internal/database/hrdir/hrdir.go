// Package hrdir resolves employee display names from an existing HR
// directory database. Access is strictly read-only.
package hrdir

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Pool manages a connection pool to the HR directory MySQL database.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new HR directory connection pool.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("HR directory DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open HR directory: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping HR directory: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Employee is a single HR directory record.
type Employee struct {
	EmployeeID string
	Name       string
	Department string
	Active     bool
}

// GetEmployee looks up an employee by their HR identifier.
// Returns nil if no such employee exists.
func (p *Pool) GetEmployee(ctx context.Context, employeeID string) (*Employee, error) {
	query := `
		SELECT employee_id, full_name, department, active
		FROM employees
		WHERE employee_id = ?
	`

	var emp Employee
	var department sql.NullString
	err := p.db.QueryRowContext(ctx, query, employeeID).Scan(&emp.EmployeeID, &emp.Name, &department, &emp.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query employee %s: %w", employeeID, err)
	}
	if department.Valid {
		emp.Department = department.String
	}

	return &emp, nil
}

// FindEmployeesByName returns employees whose normalized name matches the
// given name. Names are normalized before comparison (lowercase, no
// diacritics, dashes to spaces) to handle format differences
// (e.g., "jan-novak" matches "Jan Novák").
func (p *Pool) FindEmployeesByName(ctx context.Context, name string) ([]Employee, error) {
	query := `
		SELECT employee_id, full_name, department, active
		FROM employees
		WHERE active = 1
		ORDER BY employee_id
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	// MySQL has no unaccent, so normalization happens in Go on both sides.
	normalized := NormalizePersonName(name)

	var matches []Employee
	for rows.Next() {
		var emp Employee
		var department sql.NullString
		if err := rows.Scan(&emp.EmployeeID, &emp.Name, &department, &emp.Active); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		if NormalizePersonName(emp.Name) != normalized {
			continue
		}
		if department.Valid {
			emp.Department = department.String
		}
		matches = append(matches, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}

	return matches, nil
}
