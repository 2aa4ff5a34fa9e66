// Package oracle provides match.Oracle implementations: language-model
// adjudicators behind a small Generator interface, and a local heuristic that
// needs no network.
package oracle

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/onetrueaddress/internal/debug"
	"github.com/onetrueaddress/internal/match"
)

// Generator sends a prompt to a language model and returns its text reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMOracle adjudicates candidates by prompting a Generator and parsing the
// JSON verdict out of its reply.
type LLMOracle struct {
	gen     Generator
	name    string
	timeout time.Duration
	logger  *zap.Logger
}

// NewLLMOracle wraps gen. A zero timeout leaves the caller's deadline alone.
func NewLLMOracle(name string, gen Generator, timeout time.Duration, logger *zap.Logger) *LLMOracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMOracle{gen: gen, name: name, timeout: timeout, logger: logger}
}

// Adjudicate implements match.Oracle.
func (o *LLMOracle) Adjudicate(ctx context.Context, input string, candidates []match.ScoredCandidate) (*match.Verdict, error) {
	defer debug.Timing(o.logger, "oracle."+o.name)()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	prompt := BuildPrompt(input, candidates)
	o.logger.Debug("oracle prompt", zap.String("provider", o.name), zap.Int("candidates", len(candidates)))

	text, err := o.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, eris.Wrapf(ErrUnavailable, "%s: %v", o.name, err)
	}

	verdict, err := ParseVerdict(text)
	if err != nil {
		o.logger.Debug("oracle reply", zap.String("provider", o.name), zap.String("text", text))
		return nil, eris.Wrapf(err, "%s", o.name)
	}
	return verdict, nil
}
