// Package index maintains the local document index: a sqlite database of
// text chunks searched by FTS5 keywords and, when an embedding key is
// configured, Gemini embedding vectors.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/documind/cadalyst/internal/config"
	. "github.com/documind/cadalyst/internal/logging"
	"github.com/documind/cadalyst/internal/tokens"
)

// Record is one piece of source text to index under a document id.
type Record struct {
	Text     string
	Metadata map[string]string
}

// Store coordinates chunking, embedding and persistence for the index
type Store struct {
	db       *sql.DB
	embedder EmbeddingProvider
	cfg      config.IndexConfig

	mu     sync.RWMutex
	closed bool
}

// Open opens (creating if needed) the index database at cfg.Path.
func Open(cfg config.IndexConfig, embedder EmbeddingProvider) (*Store, error) {
	if embedder == nil {
		embedder = &NoopProvider{}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	L_info("index: store open", "path", cfg.Path, "embedder", embedder.ID())

	return &Store{db: db, embedder: embedder, cfg: cfg}, nil
}

// Close releases the database
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.db.Close(); err != nil {
		L_warn("index: error closing database", "error", err)
		return err
	}
	return nil
}

// Embedder returns the embedding provider in use
func (s *Store) Embedder() EmbeddingProvider {
	return s.embedder
}

// Index chunks the records, embeds them when possible, and replaces any
// previous content stored under docID. It returns the chunk count.
func (s *Store) Index(ctx context.Context, docID, name string, records []Record) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}
	if docID == "" {
		return 0, fmt.Errorf("document id is required")
	}

	L_info("index: indexing document", "docId", docID, "name", name, "records", len(records))

	opts := ChunkOptions{
		TargetTokens:  s.cfg.ChunkTokens,
		OverlapTokens: s.cfg.OverlapTokens,
	}

	var all []pendingChunk
	est := tokens.Get()
	for _, rec := range records {
		source := recordSource(rec)
		for _, chunk := range ChunkText(rec.Text, est, opts) {
			all = append(all, pendingChunk{chunk: chunk, source: source})
		}
	}
	if len(all) == 0 {
		return 0, fmt.Errorf("no indexable text in document %s", docID)
	}

	embeddings := s.embedChunks(ctx, all)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM index_chunks WHERE doc_id = ?", docID); err != nil {
		return 0, fmt.Errorf("delete existing chunks: %w", err)
	}

	now := time.Now().UnixMilli()
	for i, p := range all {
		chunkID := fmt.Sprintf("%s:%d", docID, i)

		var embeddingBlob []byte
		var embeddingModel string
		if i < len(embeddings) && embeddings[i] != nil {
			embeddingBlob, _ = json.Marshal(embeddings[i])
			embeddingModel = s.embedder.Model()
		}

		if _, err := tx.Exec(`
			INSERT INTO index_chunks (id, doc_id, seq, source, hash, text, embedding, embedding_model, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, chunkID, docID, i, p.source, p.chunk.Hash, p.chunk.Text, embeddingBlob, embeddingModel, now); err != nil {
			return 0, fmt.Errorf("insert chunk: %w", err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO index_docs (doc_id, name, chunk_count, indexed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET name=excluded.name, chunk_count=excluded.chunk_count, indexed_at=excluded.indexed_at
	`, docID, name, len(all), now); err != nil {
		return 0, fmt.Errorf("update document record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	L_info("index: document indexed", "docId", docID, "chunks", len(all), "embedded", countNonNil(embeddings))
	return len(all), nil
}

// pendingChunk pairs a chunk with its origin label before insertion
type pendingChunk struct {
	chunk  Chunk
	source string
}

// embedChunks embeds every chunk, consulting the embedding cache first.
// Embedding failures degrade to keyword-only chunks rather than failing
// the whole ingest.
func (s *Store) embedChunks(ctx context.Context, all []pendingChunk) [][]float32 {
	embeddings := make([][]float32, len(all))
	if !s.embedder.Available() {
		return embeddings
	}

	model := s.embedder.Model()
	var missTexts []string
	var missIdx []int
	for i, p := range all {
		if cached := s.cachedEmbedding(p.chunk.Hash, model); cached != nil {
			embeddings[i] = cached
			continue
		}
		missTexts = append(missTexts, p.chunk.Text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return embeddings
	}

	fresh, err := s.embedder.EmbedBatch(ctx, missTexts)
	if err != nil {
		L_warn("index: embedding batch failed, continuing keyword-only", "error", err)
		return embeddings
	}
	for j, emb := range fresh {
		if emb == nil {
			continue
		}
		i := missIdx[j]
		embeddings[i] = emb
		s.cacheEmbedding(all[i].chunk.Hash, model, emb)
	}
	return embeddings
}

func (s *Store) cachedEmbedding(hash, model string) []float32 {
	var blob []byte
	err := s.db.QueryRow(
		"SELECT embedding FROM embedding_cache WHERE hash = ? AND model = ?",
		hash, model,
	).Scan(&blob)
	if err != nil {
		return nil
	}
	var emb []float32
	if err := json.Unmarshal(blob, &emb); err != nil {
		return nil
	}
	return emb
}

func (s *Store) cacheEmbedding(hash, model string, emb []float32) {
	blob, err := json.Marshal(emb)
	if err != nil {
		return
	}
	if _, err := s.db.Exec(`
		INSERT INTO embedding_cache (hash, model, embedding, dims, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hash, model) DO NOTHING
	`, hash, model, blob, len(emb), time.Now().UnixMilli()); err != nil {
		L_warn("index: failed to cache embedding", "error", err)
	}
}

// Delete removes all chunks stored under docID
func (s *Store) Delete(docID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	L_info("index: deleting document", "docId", docID)

	if _, err := s.db.Exec("DELETE FROM index_chunks WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := s.db.Exec("DELETE FROM index_docs WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("delete document record: %w", err)
	}
	return nil
}

// DocumentInfo describes one indexed document
type DocumentInfo struct {
	DocID      string    `json:"doc_id"`
	Name       string    `json:"name"`
	ChunkCount int       `json:"chunk_count"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// Documents lists indexed documents, newest first
func (s *Store) Documents() ([]DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.Query(`
		SELECT doc_id, name, chunk_count, indexed_at
		FROM index_docs ORDER BY indexed_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []DocumentInfo
	for rows.Next() {
		var d DocumentInfo
		var indexedAt int64
		if err := rows.Scan(&d.DocID, &d.Name, &d.ChunkCount, &indexedAt); err != nil {
			continue
		}
		d.IndexedAt = time.UnixMilli(indexedAt)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return docs, nil
}

// Stats returns document and chunk counts
func (s *Store) Stats() (docs int, chunks int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, 0
	}

	s.db.QueryRow("SELECT COUNT(*) FROM index_docs").Scan(&docs)
	s.db.QueryRow("SELECT COUNT(*) FROM index_chunks").Scan(&chunks)
	return docs, chunks
}

// recordSource picks the human-readable origin label for a record
func recordSource(rec Record) string {
	if v := rec.Metadata["file_name"]; v != "" {
		return v
	}
	if v := rec.Metadata["stage_name"]; v != "" {
		return v
	}
	return "Unknown"
}

// countNonNil counts non-nil embeddings
func countNonNil(embeddings [][]float32) int {
	count := 0
	for _, e := range embeddings {
		if e != nil {
			count++
		}
	}
	return count
}
