package oracle

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/onetrueaddress/internal/match"
)

var (
	// ErrUnavailable wraps transport or provider failures.
	ErrUnavailable = eris.New("oracle: unavailable")
	// ErrUnparseable is returned when a reply carries no usable verdict.
	ErrUnparseable = eris.New("oracle: unparseable response")
)

type reply struct {
	MatchFound     *bool             `json:"match_found"`
	Confidence     json.RawMessage   `json:"confidence"`
	Reasoning      string            `json:"reasoning"`
	CandidateNotes map[string]string `json:"candidate_notes"`
}

// ParseVerdict decodes the first JSON object found in a model reply. Models
// often wrap the object in prose or code fences, so anything before the first
// '{' and after the object is ignored. Confidence may be a number or a
// numeric string and is clamped to [0,100].
func ParseVerdict(text string) (*match.Verdict, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, eris.Wrap(ErrUnparseable, "no JSON object in reply")
	}

	var r reply
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	if err := dec.Decode(&r); err != nil {
		return nil, eris.Wrapf(ErrUnparseable, "decode: %v", err)
	}

	confidence, err := parseConfidence(r.Confidence)
	if err != nil {
		return nil, err
	}

	return &match.Verdict{
		Confidence:     confidence,
		Reasoning:      strings.TrimSpace(r.Reasoning),
		CandidateNotes: r.CandidateNotes,
	}, nil
}

func parseConfidence(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, eris.Wrap(ErrUnparseable, "confidence missing")
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, eris.Wrapf(ErrUnparseable, "confidence %s is not numeric", raw)
		}
		parsed, perr := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
		if perr != nil {
			return 0, eris.Wrapf(ErrUnparseable, "confidence %q is not numeric", s)
		}
		v = parsed
	}

	switch {
	case v < 0:
		return 0, nil
	case v > 100:
		return 100, nil
	}
	return v, nil
}
