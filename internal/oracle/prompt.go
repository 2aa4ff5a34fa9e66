package oracle

import (
	"fmt"
	"strings"

	"github.com/onetrueaddress/internal/match"
)

const promptHeader = `You are an expert at matching addresses. I will provide you with:
1. An input address (in free-form plain English)
2. Candidate addresses already ranked by fuzzy similarity, from the golden source and the internal system

Decide how confident you are that the best candidate is the same physical address as the input.
Consider variations in formatting, abbreviations and minor spelling differences, but the street
number, street name and unit must agree.

Input Address:
%s

Candidates:
%s

Reply with a single JSON object and nothing else:
{
    "match_found": true,
    "confidence": 95,
    "reasoning": "brief explanation",
    "candidate_notes": {"<candidate id>": "short note"}
}

The confidence field is a number from 0-100:
- 90-100: Very high confidence, exact match
- 70-89: High confidence, very close match with minor variations
- 50-69: Medium confidence, similar but some differences
- 0-49: Low confidence, uncertain match or no match`

// BuildPrompt renders the adjudication prompt for input and candidates.
func BuildPrompt(input string, candidates []match.ScoredCandidate) string {
	return fmt.Sprintf(promptHeader, input, formatCandidates(candidates))
}

func formatCandidates(candidates []match.ScoredCandidate) string {
	if len(candidates) == 0 {
		return "No candidates."
	}

	var b strings.Builder
	b.WriteString("id | source | similarity | address\n")
	b.WriteString("---------------------------------------\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "%s | %s | %.1f | %s\n", c.ID, c.SourceType, c.SimilarityScore, c.Record.MasterAddress())
	}
	return strings.TrimRight(b.String(), "\n")
}
