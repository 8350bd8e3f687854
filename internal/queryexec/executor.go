// Package queryexec runs tenant-scoped statements against the store
// under a bounded timeout.
package queryexec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridpoint-systems/gridpoint/internal/models"
	"github.com/gridpoint-systems/gridpoint/internal/queryscope"
)

// pgUndefinedColumn is the SQLSTATE for a reference to a missing column.
const pgUndefinedColumn = "42703"

var (
	// ErrNoTenantColumn means the wrapped query's output hides the
	// organization column, so scoping cannot be proven. Failing here is
	// deliberate: returning unscoped rows is never an option.
	ErrNoTenantColumn = fmt.Errorf(
		"query result must expose the %s column so results can be confined to your organization",
		queryscope.TenantColumn,
	)

	// ErrQueryTimeout means execution exceeded the configured bound.
	ErrQueryTimeout = errors.New("query timed out")

	// ErrExecutionFailed is the generic user-facing failure; the
	// underlying store detail is logged, never returned.
	ErrExecutionFailed = errors.New("query execution failed")
)

// Executor runs scoped queries on a pgx pool.
type Executor struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewExecutor creates an Executor. timeout <= 0 selects 15s.
func NewExecutor(pool *pgxpool.Pool, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Executor{pool: pool, timeout: timeout}
}

// Run executes a scoped query with the organization bound as its only
// parameter and returns the aligned columns/rows/count triple. NULLs
// stay nil so they serialize as JSON null.
func (e *Executor) Run(ctx context.Context, scoped *queryscope.ScopedQuery, orgID string) (*models.QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.pool.Query(ctx, scoped.SQL, orgID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, field := range fields {
		columns[i] = field.Name
	}

	result := &models.QueryResult{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, mapError(err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	result.Count = len(result.Rows)
	return result, nil
}

// mapError converts store errors into user-facing ones. Only the
// missing-tenant-column case keeps detail; everything else collapses to
// a generic message so internals never leak.
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrQueryTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgUndefinedColumn && strings.Contains(pgErr.Message, queryscope.TenantColumn) {
			return ErrNoTenantColumn
		}
	}
	return ErrExecutionFailed
}
