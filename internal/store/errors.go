package store

import "strings"

// IsConflictError reports whether err is a SQLite lock contention error
// (SQLITE_BUSY or "database is locked") that is worth retrying.
func IsConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
