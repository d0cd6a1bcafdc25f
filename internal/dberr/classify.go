// Package dberr classifies errors returned by the data store.
//
// The store reports failure kinds through SQLSTATE codes and human readable
// text only, so every fallback decision in the service goes through the
// predicates in this package instead of parsing messages at the call site.
package dberr

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE and PostgREST codes the predicates understand.
const (
	CodeUndefinedColumn   = "42703"
	CodeUndefinedTable    = "42P01"
	CodeUndefinedFunction = "42883"
	CodeInsufficientPriv  = "42501"
	CodeUniqueViolation   = "23505"
	CodeForeignKey        = "23503"
	CodeSchemaCacheColumn = "PGRST204"
	CodeSchemaCacheFunc   = "PGRST202"
)

var columnPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)column "([^"]+)"`),
	regexp.MustCompile(`(?i)could not find the '([^']+)' column`),
	regexp.MustCompile(`(?i)column ([a-z0-9_]+\.[a-z0-9_]+) does not exist`),
}

// Code returns the SQLSTATE (or vendor code) carried by err, or "".
func Code(err error) string {
	if err == nil {
		return ""
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var coded interface{ SQLState() string }
	if errors.As(err, &coded) {
		return coded.SQLState()
	}
	return ""
}

func message(err error) string {
	return strings.ToLower(err.Error())
}

// IsMissingColumn reports whether err looks like an unknown column.
func IsMissingColumn(err error) bool {
	if err == nil {
		return false
	}
	code := Code(err)
	if code == CodeUndefinedColumn || code == CodeSchemaCacheColumn {
		return true
	}
	msg := message(err)
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "schema cache")
}

// IsMissingRelation reports whether err looks like an unknown table.
func IsMissingRelation(err error) bool {
	if err == nil {
		return false
	}
	if Code(err) == CodeUndefinedTable {
		return true
	}
	msg := message(err)
	if strings.Contains(msg, "could not find the table") {
		return true
	}
	// `column "x" of relation "t" does not exist` names a relation too.
	if Code(err) == CodeUndefinedColumn || strings.Contains(msg, "column") {
		return false
	}
	return (strings.Contains(msg, "relation") || strings.Contains(msg, "table")) &&
		strings.Contains(msg, "does not exist")
}

// IsPermission reports a privilege or row-level security rejection.
func IsPermission(err error) bool {
	if err == nil {
		return false
	}
	if Code(err) == CodeInsufficientPriv {
		return true
	}
	msg := message(err)
	return strings.Contains(msg, "permission denied") || strings.Contains(msg, "row-level security")
}

// IsDuplicate reports a unique constraint violation.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if Code(err) == CodeUniqueViolation {
		return true
	}
	return strings.Contains(message(err), "duplicate key")
}

// IsForeignKey reports a foreign key violation.
func IsForeignKey(err error) bool {
	if err == nil {
		return false
	}
	if Code(err) == CodeForeignKey {
		return true
	}
	return strings.Contains(message(err), "foreign key constraint")
}

// IsFunctionMissing reports an unknown remote procedure. Only meaningful for
// errors returned by an RPC call: the generic "does not exist" phrase would
// also match column and table errors.
func IsFunctionMissing(err error) bool {
	if err == nil {
		return false
	}
	switch Code(err) {
	case CodeUndefinedFunction, CodeSchemaCacheFunc:
		return true
	}
	msg := message(err)
	return strings.Contains(msg, "could not find the function") || strings.Contains(msg, "does not exist")
}

// IsNotAuthenticated reports a call made without a session.
func IsNotAuthenticated(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(message(err), "not authenticated")
}

// RPCUnavailable reports whether an RPC failure means "use the manual path"
// rather than a real failure of the operation.
func RPCUnavailable(err error) bool {
	return IsFunctionMissing(err) || IsPermission(err) || IsNotAuthenticated(err) || IsMissingRelation(err)
}

// MissingColumnName extracts the column named by a missing-column error.
// Table qualifiers are stripped.
func MissingColumnName(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	msg := err.Error()
	for _, re := range columnPatterns {
		m := re.FindStringSubmatch(msg)
		if len(m) < 2 || m[1] == "" {
			continue
		}
		name := m[1]
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		return name, true
	}
	return "", false
}
