package index

import (
	"database/sql"
	"fmt"

	. "github.com/documind/cadalyst/internal/logging"
)

const schemaVersion = 1

// initSchema creates the index tables and keeps them migrated
func initSchema(db *sql.DB) error {
	L_debug("index: initializing schema", "version", schemaVersion)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		L_warn("index: failed to enable WAL mode", "error", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		L_warn("index: failed to set busy timeout", "error", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS index_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create index_meta table: %w", err)
	}

	var currentVersion int
	err := db.QueryRow("SELECT value FROM index_meta WHERE key = 'schema_version'").Scan(&currentVersion)
	if err == sql.ErrNoRows {
		currentVersion = 0
	} else if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	if currentVersion < schemaVersion {
		if err := migrateSchema(db, currentVersion); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}

	L_debug("index: schema ready", "version", schemaVersion)
	return nil
}

// migrateSchema runs migrations from the current version to the target version
func migrateSchema(db *sql.DB, fromVersion int) error {
	L_info("index: migrating schema", "from", fromVersion, "to", schemaVersion)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if fromVersion < 1 {
		if err := migrateV1(tx); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO index_meta (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, schemaVersion); err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	return nil
}

// migrateV1 creates the initial schema
func migrateV1(tx *sql.Tx) error {
	L_debug("index: creating v1 schema")

	// Documents table - one row per ingested document or analysis
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS index_docs (
			doc_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			chunk_count INTEGER NOT NULL,
			indexed_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create index_docs table: %w", err)
	}

	// Chunks table - stores text chunks with optional embeddings
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS index_chunks (
			id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			source TEXT NOT NULL,
			hash TEXT NOT NULL,
			text TEXT NOT NULL,
			embedding BLOB,
			embedding_model TEXT,
			updated_at INTEGER NOT NULL,
			FOREIGN KEY (doc_id) REFERENCES index_docs(doc_id) ON DELETE CASCADE
		)
	`); err != nil {
		return fmt.Errorf("create index_chunks table: %w", err)
	}

	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_chunks_doc ON index_chunks(doc_id)`); err != nil {
		return fmt.Errorf("create idx_chunks_doc: %w", err)
	}
	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_chunks_hash ON index_chunks(hash)`); err != nil {
		return fmt.Errorf("create idx_chunks_hash: %w", err)
	}

	// FTS5 virtual table for full-text keyword search
	if _, err := tx.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS index_fts USING fts5(
			text,
			id UNINDEXED,
			doc_id UNINDEXED,
			source UNINDEXED,
			content='index_chunks',
			content_rowid='rowid'
		)
	`); err != nil {
		return fmt.Errorf("create index_fts table: %w", err)
	}

	// Triggers to keep FTS5 in sync with the chunks table
	if _, err := tx.Exec(`
		CREATE TRIGGER IF NOT EXISTS index_chunks_ai AFTER INSERT ON index_chunks BEGIN
			INSERT INTO index_fts(rowid, text, id, doc_id, source)
			VALUES (NEW.rowid, NEW.text, NEW.id, NEW.doc_id, NEW.source);
		END
	`); err != nil {
		return fmt.Errorf("create insert trigger: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TRIGGER IF NOT EXISTS index_chunks_ad AFTER DELETE ON index_chunks BEGIN
			INSERT INTO index_fts(index_fts, rowid, text, id, doc_id, source)
			VALUES ('delete', OLD.rowid, OLD.text, OLD.id, OLD.doc_id, OLD.source);
		END
	`); err != nil {
		return fmt.Errorf("create delete trigger: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TRIGGER IF NOT EXISTS index_chunks_au AFTER UPDATE ON index_chunks BEGIN
			INSERT INTO index_fts(index_fts, rowid, text, id, doc_id, source)
			VALUES ('delete', OLD.rowid, OLD.text, OLD.id, OLD.doc_id, OLD.source);
			INSERT INTO index_fts(rowid, text, id, doc_id, source)
			VALUES (NEW.rowid, NEW.text, NEW.id, NEW.doc_id, NEW.source);
		END
	`); err != nil {
		return fmt.Errorf("create update trigger: %w", err)
	}

	// Embedding cache keyed by content hash so re-ingesting the same
	// chunk never re-hits the embedding API
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS embedding_cache (
			hash TEXT NOT NULL,
			model TEXT NOT NULL,
			embedding BLOB NOT NULL,
			dims INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (hash, model)
		)
	`); err != nil {
		return fmt.Errorf("create embedding_cache table: %w", err)
	}

	return nil
}
