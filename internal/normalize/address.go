package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
)

// US state and territory abbreviations recognised in the trailing locality
var stateAbbrevs = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true,
	"CT": true, "DE": true, "FL": true, "GA": true, "HI": true, "ID": true,
	"IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true,
	"ME": true, "MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
	"MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true,
	"OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true, "DC": true, "PR": true, "VI": true, "GU": true,
	"AS": true, "MP": true,
}

// ZIP or ZIP+4
var reZip = regexp.MustCompile(`^\d{5}(?:-?\d{4})?$`)

// token is a cleaned word and the comma-delimited segment it came from
type token struct {
	text    string
	segment int
}

// Address reduces a free-form address to its comparable core: upper-cased,
// ASCII-folded, with the trailing state abbreviation, ZIP code and the city
// segment that precedes them removed. Commas become token separators and
// punctuation is trimmed from the edges of every token.
//
// A state is only removed when it precedes a removed ZIP or sits after a
// comma, so street suffixes such as "CT" or "LA" in the street segment survive.
func Address(raw string) string {
	tokens := tokenize(raw)
	if len(tokens) == 0 {
		return ""
	}

	stripped := false

	last := len(tokens) - 1
	if last > 0 && reZip.MatchString(tokens[last].text) {
		prev := tokens[last-1]
		if tokens[last].segment > 0 || stateAbbrevs[prev.text] {
			tokens = tokens[:last]
			stripped = true
		}
	}

	last = len(tokens) - 1
	if last > 0 && stateAbbrevs[tokens[last].text] && (stripped || tokens[last].segment > 0) {
		tokens = tokens[:last]
		stripped = true
	}

	if stripped {
		tokens = dropCitySegment(tokens)
	}

	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = t.text
	}
	return strings.Join(words, " ")
}

// dropCitySegment removes the last comma segment when it is not the first one
// and carries no digits, which is where the city sits in "street, city, ST zip".
func dropCitySegment(tokens []token) []token {
	if len(tokens) == 0 {
		return tokens
	}

	seg := tokens[len(tokens)-1].segment
	if seg == 0 {
		return tokens
	}

	start := len(tokens)
	for start > 0 && tokens[start-1].segment == seg {
		start--
	}
	if start == 0 {
		return tokens
	}

	for _, t := range tokens[start:] {
		if strings.IndexFunc(t.text, unicode.IsDigit) >= 0 {
			return tokens
		}
	}
	return tokens[:start]
}

// tokenize folds, upper-cases and splits the address, trimming punctuation
// from token edges and dropping tokens that were nothing but punctuation.
func tokenize(raw string) []token {
	s := strings.ToUpper(unidecode.Unidecode(raw))

	var out []token
	segment := 0
	for _, part := range strings.Split(s, ",") {
		added := false
		for _, field := range strings.Fields(part) {
			text := strings.TrimFunc(field, isEdgePunct)
			if text == "" {
				continue
			}
			out = append(out, token{text: text, segment: segment})
			added = true
		}
		// empty segments (",,") do not open a new segment
		if added {
			segment++
		}
	}
	return out
}

func isEdgePunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// Tokens splits an already normalized address on whitespace.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

// StreetNumber returns the leading run of digits of a normalized address, or
// "" when the address does not start with a digit.
func StreetNumber(normalized string) string {
	end := 0
	for end < len(normalized) && normalized[end] >= '0' && normalized[end] <= '9' {
		end++
	}
	return normalized[:end]
}

// IsBlank reports whether nothing comparable is left after normalization.
func IsBlank(raw string) bool {
	return Address(raw) == ""
}
