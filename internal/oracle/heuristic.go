package oracle

import (
	"context"
	"fmt"
	"math"

	"github.com/xrash/smetrics"

	"github.com/onetrueaddress/internal/match"
	"github.com/onetrueaddress/internal/normalize"
)

// Heuristic is an offline oracle. It rescores each candidate with
// Jaro-Winkler over the normalized addresses and blends that with the
// token-sort similarity already on the candidate. Confidence is the blend
// for the best candidate.
type Heuristic struct {
	// Weight given to Jaro-Winkler; the rest goes to the fuzzy score.
	JaroWeight float64
}

func NewHeuristic() *Heuristic {
	return &Heuristic{JaroWeight: 0.5}
}

// Adjudicate implements match.Oracle.
func (h *Heuristic) Adjudicate(ctx context.Context, input string, candidates []match.ScoredCandidate) (*match.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	verdict := &match.Verdict{CandidateNotes: make(map[string]string, len(candidates))}
	if len(candidates) == 0 {
		verdict.Reasoning = "no candidates to assess"
		return verdict, nil
	}

	in := normalize.Address(input)
	best, bestID := -1.0, ""
	for _, c := range candidates {
		jw := 100 * smetrics.JaroWinkler(in, normalize.Address(c.Record.MasterAddress()), 0.7, 4)
		blended := h.JaroWeight*jw + (1-h.JaroWeight)*c.SimilarityScore
		blended = math.Round(blended*100) / 100

		verdict.CandidateNotes[c.ID] = fmt.Sprintf("jaro-winkler %.1f, fuzzy %.1f, blended %.1f", jw, c.SimilarityScore, blended)
		if blended > best {
			best, bestID = blended, c.ID
		}
	}

	verdict.Confidence = math.Max(0, math.Min(100, best))
	verdict.Reasoning = fmt.Sprintf("%s is the closest candidate with blended score %.1f", bestID, best)
	return verdict, nil
}
