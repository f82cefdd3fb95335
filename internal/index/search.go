package index

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	. "github.com/documind/cadalyst/internal/logging"
)

const snippetMaxChars = 300

// SearchResult is a single retrieved chunk
type SearchResult struct {
	DocID   string  `json:"doc_id"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
	Snippet string  `json:"snippet"`
}

// SearchOptions configures search behavior
type SearchOptions struct {
	MaxResults    int
	MinScore      float64
	VectorWeight  float64
	KeywordWeight float64
	DocIDs        []string // Restrict to these documents when non-empty
}

// DefaultSearchOptions returns default search options
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		MaxResults:    8,
		MinScore:      0.05,
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
	}
}

// searchResult is an internal result carrying both scores
type searchResult struct {
	ID           string
	DocID        string
	Source       string
	Text         string
	VectorScore  float64
	KeywordScore float64
	FinalScore   float64
}

// Search performs hybrid retrieval over the index: FTS5/BM25 keyword
// matching blended with embedding cosine similarity when vectors exist.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if query == "" {
		return nil, nil
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultSearchOptions().MaxResults
	}

	L_debug("index: searching", "query", truncateForLog(query, 50), "maxResults", opts.MaxResults)

	// Search more than we need, then filter
	candidateLimit := opts.MaxResults * 4

	keywordResults, err := s.searchKeyword(query, candidateLimit)
	if err != nil {
		L_warn("index: keyword search failed", "error", err)
		keywordResults = nil
	}

	var vectorResults map[string]float64
	if s.embedder != nil && s.embedder.Available() {
		vectorResults, err = s.searchVector(ctx, query, candidateLimit)
		if err != nil {
			L_warn("index: vector search failed", "error", err)
			vectorResults = nil
		}
	}

	merged := s.mergeResults(keywordResults, vectorResults, opts)

	allowed := docIDSet(opts.DocIDs)

	var results []SearchResult
	for _, r := range merged {
		if r.FinalScore < opts.MinScore {
			continue
		}
		if allowed != nil && !allowed[r.DocID] {
			continue
		}
		results = append(results, SearchResult{
			DocID:   r.DocID,
			Source:  r.Source,
			Score:   r.FinalScore,
			Text:    r.Text,
			Snippet: truncateSnippet(r.Text, snippetMaxChars),
		})
		if len(results) >= opts.MaxResults {
			break
		}
	}

	L_debug("index: search completed",
		"query", truncateForLog(query, 30),
		"keywordHits", len(keywordResults),
		"vectorHits", len(vectorResults),
		"results", len(results),
	)

	return results, nil
}

// searchKeyword performs FTS5 keyword search with BM25 ranking
func (s *Store) searchKeyword(query string, limit int) (map[string]float64, error) {
	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	// BM25 returns negative scores (lower is better)
	rows, err := s.db.Query(`
		SELECT id, bm25(index_fts) as rank
		FROM index_fts
		WHERE index_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, ftsQuery, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make(map[string]float64)
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			continue
		}
		// Convert BM25 rank to a 0-1 score
		results[id] = 1.0 / (1.0 + math.Abs(rank))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return results, nil
}

// buildFTSQuery converts a natural query to FTS5 query syntax. Terms are
// OR-joined: questions carry filler words that would sink an AND match,
// and BM25 still ranks chunks matching more terms higher.
func buildFTSQuery(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return ""
	}

	var parts []string
	for _, word := range words {
		// Strip anything FTS5 treats as query syntax
		word = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, word)
		if word != "" {
			// Prefix matching for better recall
			parts = append(parts, word+"*")
		}
	}

	return strings.Join(parts, " OR ")
}

// searchVector performs cosine similarity search over stored embeddings
func (s *Store) searchVector(ctx context.Context, query string, limit int) (map[string]float64, error) {
	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(queryEmbedding) == 0 {
		return nil, nil
	}

	// Load all embeddings; fine at this scale, sqlite-vec territory beyond it
	rows, err := s.db.Query(`
		SELECT id, embedding
		FROM index_chunks
		WHERE embedding IS NOT NULL AND embedding != ''
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type scored struct {
		id    string
		score float64
	}
	var scores []scored

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			continue
		}
		var embedding []float32
		if err := json.Unmarshal(blob, &embedding); err != nil {
			continue
		}
		if sim := cosineSimilarity(queryEmbedding, embedding); sim > 0 {
			scores = append(scores, scored{id: id, score: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	sort.Slice(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	results := make(map[string]float64)
	for i, sc := range scores {
		if i >= limit {
			break
		}
		results[sc.id] = sc.score
	}
	return results, nil
}

// cosineSimilarity computes cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// mergeResults merges keyword and vector results with weighted scoring
func (s *Store) mergeResults(keywordResults, vectorResults map[string]float64, opts SearchOptions) []searchResult {
	ids := make(map[string]bool)
	for id := range keywordResults {
		ids[id] = true
	}
	for id := range vectorResults {
		ids[id] = true
	}

	vectorWeight := opts.VectorWeight
	keywordWeight := opts.KeywordWeight
	if vectorWeight <= 0 {
		vectorWeight = 0.7
	}
	if keywordWeight <= 0 {
		keywordWeight = 0.3
	}

	var merged []searchResult
	for id := range ids {
		keywordScore := keywordResults[id]
		vectorScore := vectorResults[id]

		var finalScore float64
		switch {
		case vectorResults != nil && keywordResults != nil:
			finalScore = vectorWeight*vectorScore + keywordWeight*keywordScore
		case vectorResults != nil:
			finalScore = vectorScore
		default:
			finalScore = keywordScore
		}

		var docID, source, text string
		err := s.db.QueryRow(`
			SELECT doc_id, source, text
			FROM index_chunks
			WHERE id = ?
		`, id).Scan(&docID, &source, &text)
		if err != nil {
			continue
		}

		merged = append(merged, searchResult{
			ID:           id,
			DocID:        docID,
			Source:       source,
			Text:         text,
			VectorScore:  vectorScore,
			KeywordScore: keywordScore,
			FinalScore:   finalScore,
		})
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].FinalScore > merged[j].FinalScore
	})

	return merged
}

func docIDSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// truncateSnippet truncates text to max chars, breaking at word boundaries
func truncateSnippet(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}

	truncated := text[:maxChars]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > maxChars/2 {
		truncated = truncated[:lastSpace]
	}

	return truncated + "..."
}

// truncateForLog truncates text for logging purposes
func truncateForLog(text string, maxLen int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
