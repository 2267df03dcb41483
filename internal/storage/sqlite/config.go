package sqlite

import "strings"

// Config holds SQLite store configuration.
type Config struct {
	// DSN is a modernc.org/sqlite connection string or file path, e.g.
	//   "file:etl.db?_pragma=busy_timeout(5000)"
	//   ":memory:"
	DSN string
}

// BuildDSN turns a database path into a DSN with a busy timeout so that
// concurrent runs against one file wait for the write lock instead of failing.
func BuildDSN(database string) string {
	database = strings.TrimSpace(database)
	if database == "" || database == ":memory:" || strings.HasPrefix(database, "file:") {
		return database
	}
	return "file:" + database + "?_pragma=busy_timeout(5000)"
}
