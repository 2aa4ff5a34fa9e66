package match

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/onetrueaddress/internal/normalize"
)

// Score returns the token-order independent similarity of two raw addresses
// in [0,100]. Both sides are normalized first.
func Score(a, b string) float64 {
	return TokenSortRatio(normalize.Address(a), normalize.Address(b))
}

// TokenSortRatio sorts the whitespace tokens of each normalized string before
// comparing them, so "MAIN ST 123" and "123 MAIN ST" score 100.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortTokens(a), sortTokens(b))
}

// Ratio is the Levenshtein similarity of two strings scaled to [0,100]:
// 100 * (1 - distance / longer length). Two empty strings are identical.
func Ratio(a, b string) float64 {
	la := utf8.RuneCountInString(a)
	lb := utf8.RuneCountInString(b)
	if la == 0 && lb == 0 {
		return 100
	}
	if la == 0 || lb == 0 {
		return 0
	}

	longest := la
	if lb > longest {
		longest = lb
	}

	dist := levenshtein.ComputeDistance(a, b)
	return 100 * float64(longest-dist) / float64(longest)
}

func sortTokens(s string) string {
	tokens := normalize.Tokens(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
