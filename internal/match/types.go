package match

import (
	"context"
	"encoding/json"

	"github.com/onetrueaddress/internal/record"
)

const (
	// DefaultThreshold is the similarity score a candidate must reach.
	DefaultThreshold = 90.0
	// ThresholdFloor is the lowest similarity threshold callers may configure.
	ThresholdFloor = 75.0
	// MaxThreshold is the highest similarity threshold.
	MaxThreshold = 100.0
	// DefaultConfidenceThreshold flags results below it for manual review.
	DefaultConfidenceThreshold = 90.0
	// MaxOracleCandidates caps how many candidates per source go to the oracle.
	MaxOracleCandidates = 5
)

// SourceType identifies which reference table a candidate came from.
type SourceType string

const (
	SourceGolden   SourceType = "golden_source"
	SourceInternal SourceType = "internal"
)

// Pool is the full candidate set fetched from one source table.
type Pool struct {
	Table   string
	Type    SourceType
	Records []record.AddressRecord
}

// ScoredCandidate is a candidate record annotated with its similarity to the
// input and where it came from.
type ScoredCandidate struct {
	Record          record.AddressRecord
	ID              string // "<source_type>-<rank>", used to key oracle notes
	SimilarityScore float64
	SourceTable     string
	SourceType      SourceType
}

// MarshalJSON flattens the record fields next to the annotations so the
// candidate renders as a single mapping.
func (c ScoredCandidate) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(c.Record)+4)
	for k, v := range c.Record {
		out[k] = v
	}
	out["candidate_id"] = c.ID
	out["similarity_score"] = c.SimilarityScore
	out["source_table"] = c.SourceTable
	out["source_type"] = c.SourceType
	return json.Marshal(out)
}

// Verdict is the oracle's assessment of a set of candidates.
type Verdict struct {
	Confidence     float64           `json:"confidence"`
	Reasoning      string            `json:"reasoning"`
	CandidateNotes map[string]string `json:"candidate_notes,omitempty"`
}

// Oracle adjudicates ranked candidates. Implementations may fail; a failure
// never fails the match.
type Oracle interface {
	Adjudicate(ctx context.Context, input string, candidates []ScoredCandidate) (*Verdict, error)
}

// Search methods reported on a MatchResult
const (
	SearchFuzzy       = "fuzzy_match"
	SearchFuzzyWithAI = "fuzzy_match_with_ai"
)

// MatchResult is the outcome of one matching request.
type MatchResult struct {
	InputAddress          string            `json:"input_address"`
	MatchFound            bool              `json:"match_found"`
	Confidence            float64           `json:"confidence"`
	SimilarityScore       float64           `json:"similarity_score"`
	BestMatch             *ScoredCandidate  `json:"best_match,omitempty"`
	GoldenSourceMatches   []ScoredCandidate `json:"golden_source_matches"`
	InternalMatches       []ScoredCandidate `json:"internal_matches"`
	Reasoning             string            `json:"reasoning"`
	BusinessRuleException bool              `json:"business_rule_exception"`
	Threshold             float64           `json:"threshold"`
	ConfidenceThreshold   float64           `json:"confidence_threshold"`
	CandidatesSearched    int               `json:"candidates_searched"`
	SearchMethod          string            `json:"search_method"`
	OracleNotes           map[string]string `json:"oracle_notes,omitempty"`
	OracleError           string            `json:"oracle_error,omitempty"`
}

// HasGoldenSource reports whether any golden-source candidate matched.
func (r *MatchResult) HasGoldenSource() bool {
	return len(r.GoldenSourceMatches) > 0
}

// HasInternal reports whether any internal candidate matched.
func (r *MatchResult) HasInternal() bool {
	return len(r.InternalMatches) > 0
}

// MarshalJSON adds the summary fields clients read without walking the lists.
func (r MatchResult) MarshalJSON() ([]byte, error) {
	type plain MatchResult
	out := struct {
		plain
		SourceTable       string `json:"source_table,omitempty"`
		SourceType        string `json:"source_type,omitempty"`
		TotalGoldenSource int    `json:"total_golden_source"`
		TotalInternal     int    `json:"total_internal"`
		HasGoldenSource   bool   `json:"has_golden_source"`
		HasInternal       bool   `json:"has_internal"`
	}{
		plain:             plain(r),
		TotalGoldenSource: len(r.GoldenSourceMatches),
		TotalInternal:     len(r.InternalMatches),
		HasGoldenSource:   r.HasGoldenSource(),
		HasInternal:       r.HasInternal(),
	}
	if r.BestMatch != nil {
		out.SourceTable = r.BestMatch.SourceTable
		out.SourceType = string(r.BestMatch.SourceType)
	}
	return json.Marshal(out)
}
