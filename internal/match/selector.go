package match

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/onetrueaddress/internal/debug"
	"github.com/onetrueaddress/internal/normalize"
)

// Selector ranks golden and internal candidates for an input address and
// optionally asks an oracle to adjudicate the best of them.
type Selector struct {
	oracle Oracle
	topN   int
	logger *zap.Logger
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithOracle enables oracle adjudication. A nil oracle disables it.
func WithOracle(o Oracle) SelectorOption {
	return func(s *Selector) {
		s.oracle = o
	}
}

// WithTopN sets how many candidates per source are sent to the oracle,
// clamped to [1, MaxOracleCandidates].
func WithTopN(n int) SelectorOption {
	return func(s *Selector) {
		if n < 1 {
			n = 1
		}
		if n > MaxOracleCandidates {
			n = MaxOracleCandidates
		}
		s.topN = n
	}
}

// WithLogger sets the logger used for oracle warnings and debug traces.
func WithLogger(l *zap.Logger) SelectorOption {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSelector creates a selector. Without WithOracle it scores by similarity only.
func NewSelector(opts ...SelectorOption) *Selector {
	s := &Selector{
		topN:   MaxOracleCandidates,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasOracle reports whether the selector will consult an oracle.
func (s *Selector) HasOracle() bool {
	return s.oracle != nil
}

// Select filters both pools, picks the best overall candidate and sets the
// confidence. Golden wins ties between sources. The oracle's confidence
// replaces the similarity score when it answers; when it fails the result
// falls back to similarity and the failure is only recorded.
func (s *Selector) Select(ctx context.Context, input string, golden, internal Pool, threshold, confidenceThreshold float64) (*MatchResult, error) {
	if normalize.IsBlank(input) {
		return nil, ErrEmptyAddress
	}
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if err := ValidateConfidenceThreshold(confidenceThreshold); err != nil {
		return nil, err
	}

	done := debug.Timing(s.logger, "select")
	defer done()

	result := &MatchResult{
		InputAddress:        input,
		GoldenSourceMatches: rank(input, golden, threshold),
		InternalMatches:     rank(input, internal, threshold),
		Threshold:           threshold,
		ConfidenceThreshold: confidenceThreshold,
		CandidatesSearched:  len(golden.Records) + len(internal.Records),
		SearchMethod:        SearchFuzzy,
	}

	s.logger.Debug("ranked candidates",
		zap.String("input", input),
		zap.Int("golden", len(result.GoldenSourceMatches)),
		zap.Int("internal", len(result.InternalMatches)),
		zap.Float64("threshold", threshold))

	best := bestOf(result.GoldenSourceMatches, result.InternalMatches)
	if best == nil {
		result.Reasoning = fmt.Sprintf("No candidate with a matching street number scored at or above %.0f.", threshold)
		result.BusinessRuleException = result.Confidence < confidenceThreshold
		return result, nil
	}

	result.MatchFound = true
	result.BestMatch = best
	result.SimilarityScore = best.SimilarityScore
	result.Confidence = best.SimilarityScore
	result.Reasoning = fmt.Sprintf("Best match %q from %s table %s scored %.2f on token-sort similarity.",
		best.Record.MasterAddress(), best.SourceType, best.SourceTable, best.SimilarityScore)

	if s.oracle != nil {
		s.adjudicate(ctx, result)
	}

	result.BusinessRuleException = result.Confidence < confidenceThreshold
	return result, nil
}

// adjudicate submits the top candidates of each list to the oracle.
func (s *Selector) adjudicate(ctx context.Context, result *MatchResult) {
	var submitted []ScoredCandidate
	submitted = append(submitted, top(result.GoldenSourceMatches, s.topN)...)
	submitted = append(submitted, top(result.InternalMatches, s.topN)...)

	verdict, err := s.oracle.Adjudicate(ctx, result.InputAddress, submitted)
	if err != nil {
		s.logger.Warn("oracle unavailable, using similarity confidence",
			zap.String("input", result.InputAddress),
			zap.Int("candidates", len(submitted)),
			zap.Error(err))
		result.OracleError = err.Error()
		return
	}

	result.Confidence = clamp(verdict.Confidence)
	if verdict.Reasoning != "" {
		result.Reasoning = verdict.Reasoning
	}
	result.OracleNotes = verdict.CandidateNotes
	result.SearchMethod = SearchFuzzyWithAI
}

// rank filters one pool and stamps source details and ids on the survivors.
func rank(input string, pool Pool, threshold float64) []ScoredCandidate {
	ranked := Filter(input, pool.Records, threshold)
	for i := range ranked {
		ranked[i].ID = fmt.Sprintf("%s-%d", pool.Type, i+1)
		ranked[i].SourceTable = pool.Table
		ranked[i].SourceType = pool.Type
	}
	return ranked
}

// bestOf returns the higher of the two list heads, preferring golden on ties.
func bestOf(golden, internal []ScoredCandidate) *ScoredCandidate {
	var best *ScoredCandidate
	if len(golden) > 0 {
		c := golden[0]
		best = &c
	}
	if len(internal) > 0 && (best == nil || internal[0].SimilarityScore > best.SimilarityScore) {
		c := internal[0]
		best = &c
	}
	return best
}

func top(list []ScoredCandidate, n int) []ScoredCandidate {
	if len(list) > n {
		return list[:n]
	}
	return list
}

func clamp(v float64) float64 {
	if v < 0 || v != v {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
