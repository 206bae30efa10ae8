package errors

// SQLite-specific helpers for mapping modernc.org/sqlite errors to project
// ErrorCode, and for retry semantics around the embedded database file

import (
	stderrs "errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
)

// Primary SQLite result codes we care about (see sqlite3.h / modernc.org/sqlite/lib)
const (
	sqliteBusy      = 5
	sqliteLocked    = 6
	sqliteConstr    = 19 // SQLITE_CONSTRAINT (primary, covers unique/fk/notnull/check)
	sqliteMismatch  = 20 // SQLITE_MISMATCH
	sqliteCorrupt   = 11
	sqliteCantOpen  = 14
	sqliteReadonly  = 8
	sqliteIoErr     = 10
	sqliteFull      = 13 // SQLITE_FULL
	sqliteProtocol  = 15
)

// ExtractSQLiteError returns (*sqlite.Error, true) if the root cause is a sqlite.Error
func ExtractSQLiteError(err error) (*sqlite.Error, bool) {
	var se *sqlite.Error
	if stderrs.As(Root(err), &se) {
		return se, true
	}
	return nil, false
}

// IsSQLiteCode reports whether err carries the given primary SQLite result code
func IsSQLiteCode(err error, code int) bool {
	se, ok := ExtractSQLiteError(err)
	return ok && se.Code() == code
}

// IsDuplicateKey reports whether the error is a unique/check constraint violation
func IsDuplicateKey(err error) bool {
	if IsSQLiteCode(err, sqliteConstr) {
		return true
	}
	return strings.Contains(strings.ToLower(errString(err)), "unique constraint")
}

// IsBusy reports whether the database file was locked by a concurrent writer
func IsBusy(err error) bool { return IsSQLiteCode(err, sqliteBusy) || IsSQLiteCode(err, sqliteLocked) }

// DBErrorCode maps a sqlite error to an ErrorCode with an ok flag
// !ok means err wasn't a sqlite.Error; caller may fall back to generic handling
func DBErrorCode(err error) (ErrorCode, bool) {
	se, ok := ExtractSQLiteError(err)
	if !ok {
		return ErrorCodeUnknown, false
	}

	switch se.Code() {
	case sqliteConstr:
		return ErrorCodeDuplicateKey, true
	case sqliteMismatch:
		return ErrorCodeInvalidArgument, true
	case sqliteBusy, sqliteLocked:
		return ErrorCodeUnavailable, true
	case sqliteReadonly, sqliteCantOpen, sqliteIoErr, sqliteCorrupt, sqliteFull, sqliteProtocol:
		return ErrorCodeDB, true
	}

	return ErrorCodeDB, true
}

// FromSQLite wraps a sqlite error with a mapped ErrorCode and message
// If err is nil, returns nil
func FromSQLite(err error, msg string) error {
	if err == nil {
		return nil
	}
	if code, ok := DBErrorCode(err); ok {
		return Wrap(err, code, msg)
	}
	return Wrap(err, ErrorCodeDB, msg)
}

// FromSQLitef is the formatted variant of FromSQLite
func FromSQLitef(err error, format string, a ...any) error {
	if err == nil {
		return nil
	}
	return FromSQLite(err, fmt.Sprintf(format, a...))
}

// IsRetryable reports whether a database error represents a transient
// condition worth retrying, primarily SQLITE_BUSY/SQLITE_LOCKED contention
// on the single shared database file
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := ExtractSQLiteError(err); ok {
		return se.Code() == sqliteBusy || se.Code() == sqliteLocked
	}
	s := strings.ToLower(errString(err))
	return strings.Contains(s, "database is locked") || strings.Contains(s, "busy")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
