package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"
)

const storeDBName = "intentd.db"

// Store is the SQLCipher-backed persistence layer. It implements all
// of the domain repository interfaces over a single encrypted database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (or creates) the encrypted intention database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewStore(dataDir string, key []byte) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_foreign_keys=on", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// createTables creates the schema if it doesn't exist.
// Child rows cascade on bundle/intention delete.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS intentions (
		id                    INTEGER PRIMARY KEY AUTOINCREMENT,
		text                  TEXT NOT NULL,
		duration_seconds      INTEGER NOT NULL DEFAULT 0,
		started_at            INTEGER NOT NULL,
		ended_at              INTEGER,
		end_reason            TEXT,
		llm_filtering_enabled INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_intentions_active ON intentions(ended_at);

	CREATE TABLE IF NOT EXISTS bundles (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		name           TEXT NOT NULL UNIQUE,
		allow_all_apps INTEGER NOT NULL DEFAULT 0,
		allow_all_urls INTEGER NOT NULL DEFAULT 0,
		created_at     INTEGER NOT NULL,
		updated_at     INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bundle_apps (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		bundle_id    INTEGER NOT NULL REFERENCES bundles(id) ON DELETE CASCADE,
		identifier   TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_bundle_apps_bundle ON bundle_apps(bundle_id);

	CREATE TABLE IF NOT EXISTS bundle_urls (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		bundle_id INTEGER NOT NULL REFERENCES bundles(id) ON DELETE CASCADE,
		pattern   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bundle_urls_bundle ON bundle_urls(bundle_id);

	CREATE TABLE IF NOT EXISTS intention_apps (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		intention_id INTEGER NOT NULL REFERENCES intentions(id) ON DELETE CASCADE,
		identifier   TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		from_bundle  INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_intention_apps_intention ON intention_apps(intention_id);

	CREATE TABLE IF NOT EXISTS intention_urls (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		intention_id INTEGER NOT NULL REFERENCES intentions(id) ON DELETE CASCADE,
		pattern      TEXT NOT NULL,
		from_bundle  INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_intention_urls_intention ON intention_urls(intention_id);

	CREATE TABLE IF NOT EXISTS intention_bundles (
		intention_id INTEGER NOT NULL REFERENCES intentions(id) ON DELETE CASCADE,
		bundle_id    INTEGER NOT NULL,
		PRIMARY KEY (intention_id, bundle_id)
	);

	CREATE TABLE IF NOT EXISTS access_log (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		intention_id     INTEGER NOT NULL,
		ts               INTEGER NOT NULL,
		kind             TEXT NOT NULL,
		identifier       TEXT NOT NULL,
		was_allowed      INTEGER NOT NULL,
		allowed_reason   TEXT,
		was_override     INTEGER NOT NULL DEFAULT 0,
		added_to_learned INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_access_log_ts ON access_log(ts DESC);

	CREATE TABLE IF NOT EXISTS learned_rules (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		intention_pattern TEXT NOT NULL,
		kind              TEXT NOT NULL,
		identifier        TEXT NOT NULL,
		allowed           INTEGER NOT NULL,
		created_at        INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_learned_rules_lookup ON learned_rules(kind, identifier, created_at DESC);

	CREATE TABLE IF NOT EXISTS intention_history (
		text             TEXT PRIMARY KEY,
		times_entered    INTEGER NOT NULL DEFAULT 0,
		times_selected   INTEGER NOT NULL DEFAULT 0,
		first_entered_at INTEGER NOT NULL,
		last_used_at     INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path (for status output and tests).
func (s *Store) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
