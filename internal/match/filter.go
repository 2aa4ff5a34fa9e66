package match

import (
	"sort"

	"github.com/onetrueaddress/internal/normalize"
	"github.com/onetrueaddress/internal/record"
)

// Filter narrows candidates to those sharing the input's leading street
// number, scores them, and keeps the ones at or above threshold, highest
// score first. Equal scores keep their input order.
//
// The street number gate is exact string equality on the leading digit run,
// so "123" never admits "1234" however similar the rest of the text is. An
// input without a street number admits nothing.
func Filter(input string, candidates []record.AddressRecord, threshold float64) []ScoredCandidate {
	core := normalize.Address(input)
	number := normalize.StreetNumber(core)

	out := make([]ScoredCandidate, 0)
	if number == "" {
		return out
	}
	for _, c := range candidates {
		candCore := normalize.Address(c.MasterAddress())
		if normalize.StreetNumber(candCore) != number {
			continue
		}

		score := TokenSortRatio(core, candCore)
		if score < threshold {
			continue
		}
		out = append(out, ScoredCandidate{Record: c, SimilarityScore: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SimilarityScore > out[j].SimilarityScore
	})
	return out
}
