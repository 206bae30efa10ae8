package store

import "time"

// Config aggregates backend configuration for the local store
type Config struct {
	AppName string

	SQLite SQLiteConfig
}

// SQLiteConfig configures the embedded sqlite file backing the store
type SQLiteConfig struct {
	Enabled     bool
	Path        string // filesystem path to the database file, e.g. ./data/suggestfed.db
	LogSQL      bool
	SlowQueryMs int

	// Guard/boot knobs:
	ConnectRetries int           // default 6
	PingTimeout    time.Duration // default 5s
}
