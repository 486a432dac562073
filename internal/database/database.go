package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB owns the SQLite connection and hands out repositories over it
type DB struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := optimizeSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to optimize database: %w", err)
	}

	database := &DB{db: db}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// optimizeSQLite sets the pragmas for a single-writer daemon with
// concurrent readers
func optimizeSQLite(db *sql.DB) error {
	// WAL lets the cache store read while a round is upserting
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// 64MB page cache
	if _, err := db.Exec("PRAGMA cache_size=-64000"); err != nil {
		return fmt.Errorf("failed to set cache size: %w", err)
	}

	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA temp_store=MEMORY"); err != nil {
		return fmt.Errorf("failed to set temp_store: %w", err)
	}

	// Provider workers write cache entries concurrently
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// Flights returns the repository for reconciled flight records
func (d *DB) Flights() FlightRepository {
	return NewFlightRepository(d.db)
}

// Rounds returns the repository for round audit rows
func (d *DB) Rounds() RoundRepository {
	return NewRoundRepository(d.db)
}

// CacheStore returns a request cache backend stored in this database
func (d *DB) CacheStore() *CacheStore {
	return NewCacheStore(d.db)
}

// initSchema creates the database schema if it doesn't exist
func (d *DB) initSchema() error {
	tables := []struct {
		name   string
		schema string
	}{
		{"flights", `CREATE TABLE IF NOT EXISTS flights (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			flight_number TEXT NOT NULL,
			airline_id TEXT NOT NULL,
			departure_airport TEXT NOT NULL,
			arrival_airport TEXT NOT NULL,
			flight_date TEXT NOT NULL,
			scheduled_departure TEXT NOT NULL,
			departure_ts INTEGER NOT NULL,
			scheduled_arrival TEXT,
			actual_departure TEXT,
			actual_arrival TEXT,
			status TEXT NOT NULL,
			aircraft_type TEXT,
			price REAL,
			booking_link TEXT,
			source TEXT NOT NULL,
			fetched_at TEXT NOT NULL,
			round_id TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(flight_number, departure_airport, arrival_airport, flight_date)
		);`},
		{"reconcile_rounds", `CREATE TABLE IF NOT EXISTS reconcile_rounds (
			id TEXT PRIMARY KEY,
			flight_date TEXT NOT NULL,
			outcome TEXT NOT NULL,
			fallback_used INTEGER NOT NULL DEFAULT 0,
			record_count INTEGER NOT NULL,
			provider_counts TEXT NOT NULL,
			provider_errors TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		);`},
		{"cache_entries", `CREATE TABLE IF NOT EXISTS cache_entries (
			cache_key TEXT PRIMARY KEY,
			blob BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		);`},
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_flights_date ON flights(flight_date, departure_ts)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_date ON reconcile_rounds(flight_date, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at)`,
	}

	for _, t := range tables {
		if _, err := d.db.Exec(t.schema); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}

	for _, idx := range indexes {
		if _, err := d.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
