package contextstore

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// EstimateTokens is the budget heuristic used by every allocator in this
// package: ceil(len/4). Budget math deliberately stays on this heuristic so
// allocation results are deterministic and encoder-independent.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Estimator measures token counts for diagnostics. The default is the
// ceil(len/4) heuristic; a BPE-backed estimator can be plugged in for
// calibrated reporting.
type Estimator interface {
	Estimate(text string) int
}

type heuristicEstimator struct{}

func (heuristicEstimator) Estimate(text string) int { return EstimateTokens(text) }

// TiktokenEstimator measures tokens with a real BPE encoding.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator builds an estimator for the named encoding
// (cl100k_base when empty).
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &TiktokenEstimator{enc: enc}, nil
}

// Estimate returns the exact BPE token count.
func (e *TiktokenEstimator) Estimate(text string) int {
	return len(e.enc.Encode(text, nil, nil))
}

// SetEstimator installs the estimator used by MeasureTokens.
func (s *Store) SetEstimator(e Estimator) {
	if e == nil {
		e = heuristicEstimator{}
	}
	s.mu.Lock()
	s.estimator = e
	s.mu.Unlock()
}

// MeasureTokens reports the configured estimator's count for text. Intended
// for diagnostics and reporting, not for budget allocation.
func (s *Store) MeasureTokens(text string) int {
	s.mu.RLock()
	e := s.estimator
	s.mu.RUnlock()
	return e.Estimate(text)
}
