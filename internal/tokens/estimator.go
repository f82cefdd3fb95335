// Package tokens provides token counting for chunking and budget checks.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	. "github.com/documind/cadalyst/internal/logging"
)

// DefaultEncoding is cl100k_base, a reasonable proxy for the Gemini and
// OpenRouter tokenizers we never see directly.
const DefaultEncoding = "cl100k_base"

// Estimator counts tokens using tiktoken, falling back to a chars/4
// heuristic when the encoding cannot be loaded.
type Estimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.RWMutex
}

var (
	globalEstimator     *Estimator
	globalEstimatorOnce sync.Once
)

// Get returns the process-wide estimator.
func Get() *Estimator {
	globalEstimatorOnce.Do(func() {
		var err error
		globalEstimator, err = New()
		if err != nil {
			L_warn("tokens: failed to load encoding, using char heuristic", "error", err)
			globalEstimator = &Estimator{}
		}
	})
	return globalEstimator
}

// New creates an estimator with the default encoding.
func New() (*Estimator, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, err
	}
	return &Estimator{encoding: enc}, nil
}

// Count returns the token count for a string.
func (e *Estimator) Count(text string) int {
	if e == nil || e.encoding == nil {
		return len(text) / 4
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.encoding.Encode(text, nil, nil))
}

// Encode returns the token ids for a string, or nil when the encoding
// is unavailable. Callers that get nil should chunk by characters.
func (e *Estimator) Encode(text string) []int {
	if e == nil || e.encoding == nil {
		return nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.encoding.Encode(text, nil, nil)
}

// Decode converts token ids back to text.
func (e *Estimator) Decode(ids []int) string {
	if e == nil || e.encoding == nil {
		return ""
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.encoding.Decode(ids)
}

// Estimate counts tokens using the global estimator.
func Estimate(text string) int {
	return Get().Count(text)
}
