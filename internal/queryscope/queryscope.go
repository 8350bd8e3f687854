// Package queryscope proves a caller-submitted query is a single
// read-only statement and rewrites it into a tenant-confined form.
//
// The validated text is wrapped as a derived subquery rather than edited
// in place: the outer layer pins the organization column and clamps the
// row limit, so nothing inside the caller's clauses ever needs to be
// parsed. The deny list is deliberately conservative; a false positive
// costs the caller a rewrite, a false negative would cost cross-tenant
// data.
package queryscope

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// TenantColumn is the column the outer predicate pins. A query whose
// output does not expose it fails at execution, never silently unscoped.
const TenantColumn = "organization_id"

var (
	ErrEmptyQuery         = errors.New("query must not be empty")
	ErrMultipleStatements = errors.New("query must contain exactly one statement")
	ErrNotSelect          = errors.New("query must be a single SELECT statement")
)

// ForbiddenKeywordError reports the first mutating keyword found.
type ForbiddenKeywordError struct {
	Keyword string
}

func (e *ForbiddenKeywordError) Error() string {
	return fmt.Sprintf("query contains forbidden keyword %q: only read-only SELECT statements are allowed", e.Keyword)
}

// forbiddenKeywords covers mutating, DDL, DCL and session-control
// statements. Presence anywhere in the text is a rejection.
var forbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "create", "truncate",
	"grant", "revoke", "copy", "merge", "call", "execute", "prepare",
	"deallocate", "vacuum", "analyze", "reindex", "cluster", "comment",
	"lock", "listen", "notify", "refresh", "begin", "commit", "rollback",
	"savepoint", "set", "reset", "do",
}

var forbiddenPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(forbiddenKeywords, "|") + `)\b`)

var selectPattern = regexp.MustCompile(`(?i)^\s*select\b`)

// ScopedQuery is a validated, rewritten statement ready for execution.
// SQL carries exactly one positional parameter: the organization bound
// by the executor.
type ScopedQuery struct {
	SQL   string
	Limit int
}

// Scoper validates raw query text and produces tenant-confined SQL.
type Scoper struct {
	defaultLimit int
	maxLimit     int
}

// NewScoper creates a Scoper with the given row caps. Non-positive
// values select 100 and 1000.
func NewScoper(defaultLimit, maxLimit int) *Scoper {
	if defaultLimit <= 0 {
		defaultLimit = 100
	}
	if maxLimit <= 0 {
		maxLimit = 1000
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Scoper{defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// ValidateAndScope checks rawQuery against the read-only policy and
// wraps it. limit <= 0 selects the default; anything above the hard
// maximum is clamped, regardless of what the caller asked for.
func (s *Scoper) ValidateAndScope(rawQuery string, limit int) (*ScopedQuery, error) {
	trimmed := strings.TrimSpace(rawQuery)
	if trimmed == "" {
		return nil, ErrEmptyQuery
	}

	body, err := singleStatement(trimmed)
	if err != nil {
		return nil, err
	}

	if !selectPattern.MatchString(body) {
		return nil, ErrNotSelect
	}

	if match := forbiddenPattern.FindString(body); match != "" {
		return nil, &ForbiddenKeywordError{Keyword: strings.ToUpper(match)}
	}

	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	sql := fmt.Sprintf(
		"SELECT * FROM (%s) AS scoped WHERE scoped.%s = $1 LIMIT %d",
		body, TenantColumn, limit,
	)

	return &ScopedQuery{SQL: sql, Limit: limit}, nil
}

// singleStatement strips one trailing statement terminator and rejects
// any text where a terminator is followed by more content.
func singleStatement(query string) (string, error) {
	if idx := strings.Index(query, ";"); idx >= 0 {
		rest := strings.TrimSpace(query[idx+1:])
		if rest != "" {
			return "", ErrMultipleStatements
		}
		query = strings.TrimSpace(query[:idx])
		if query == "" {
			return "", ErrEmptyQuery
		}
	}
	return query, nil
}
