package index

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/documind/cadalyst/internal/tokens"
)

const (
	// DefaultChunkTokens is the target size for each chunk in tokens
	DefaultChunkTokens = 1024

	// DefaultOverlapTokens is the overlap between adjacent chunks
	DefaultOverlapTokens = 200

	// charsPerToken approximates token length when no encoding is loaded
	charsPerToken = 4
)

// Chunk is a slice of document text ready for indexing
type Chunk struct {
	Text string
	Hash string // SHA256 of the text
}

// ChunkOptions configures the chunking behavior
type ChunkOptions struct {
	TargetTokens  int
	OverlapTokens int
}

// DefaultChunkOptions returns default chunking options
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		TargetTokens:  DefaultChunkTokens,
		OverlapTokens: DefaultOverlapTokens,
	}
}

// ChunkText splits text into overlapping token windows. It chunks on real
// token boundaries when the estimator has an encoding, and falls back to
// character windows otherwise.
func ChunkText(text string, est *tokens.Estimator, opts ChunkOptions) []Chunk {
	if opts.TargetTokens <= 0 {
		opts.TargetTokens = DefaultChunkTokens
	}
	if opts.OverlapTokens < 0 || opts.OverlapTokens >= opts.TargetTokens {
		opts.OverlapTokens = DefaultOverlapTokens
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	ids := est.Encode(text)
	if ids == nil {
		return chunkByChars(text, opts)
	}

	if len(ids) <= opts.TargetTokens {
		return []Chunk{{Text: text, Hash: hashText(text)}}
	}

	step := opts.TargetTokens - opts.OverlapTokens
	var chunks []Chunk
	for start := 0; start < len(ids); start += step {
		end := start + opts.TargetTokens
		if end > len(ids) {
			end = len(ids)
		}
		piece := strings.TrimSpace(est.Decode(ids[start:end]))
		if piece != "" {
			chunks = append(chunks, Chunk{Text: piece, Hash: hashText(piece)})
		}
		if end == len(ids) {
			break
		}
	}
	return chunks
}

// chunkByChars is the estimator-less path using charsPerToken windows
func chunkByChars(text string, opts ChunkOptions) []Chunk {
	targetChars := opts.TargetTokens * charsPerToken
	overlapChars := opts.OverlapTokens * charsPerToken

	if len(text) <= targetChars {
		return []Chunk{{Text: text, Hash: hashText(text)}}
	}

	step := targetChars - overlapChars
	var chunks []Chunk
	for start := 0; start < len(text); start += step {
		end := start + targetChars
		if end > len(text) {
			end = len(text)
		}
		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			chunks = append(chunks, Chunk{Text: piece, Hash: hashText(piece)})
		}
		if end == len(text) {
			break
		}
	}
	return chunks
}

// hashText returns SHA256 hash of text
func hashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
