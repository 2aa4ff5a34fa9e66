// Package agent ties the pieces together for a request: it fetches candidate
// pools, runs the selector, consolidates records and persists the outcome.
package agent

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/onetrueaddress/internal/audit"
	"github.com/onetrueaddress/internal/config"
	"github.com/onetrueaddress/internal/consolidate"
	"github.com/onetrueaddress/internal/match"
	"github.com/onetrueaddress/internal/normalize"
	"github.com/onetrueaddress/internal/record"
	"github.com/onetrueaddress/internal/store"
)

// CandidateSource fetches the candidate pool of one table.
type CandidateSource interface {
	FetchCandidates(ctx context.Context, src store.Source, f store.CoarseFilter) (match.Pool, error)
}

// Writer persists consolidated records and reports the ledger totals.
type Writer interface {
	Persist(ctx context.Context, rec *consolidate.ConsolidatedRecord) (*store.WriteReceipt, error)
	TimeSaved(ctx context.Context) (*audit.TimeSaved, error)
}

// Agent serves match and consolidation requests.
type Agent struct {
	source   CandidateSource
	writer   Writer
	selector *match.Selector

	golden   store.Source
	internal store.Source

	threshold           float64
	confidenceThreshold float64
	fetchLimit          int

	locks  *keyedMutex
	logger *zap.Logger
}

// New builds an agent from cfg. oracle may be nil.
func New(cfg *config.Config, source CandidateSource, writer Writer, oracle match.Oracle, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Agent{
		source: source,
		writer: writer,
		selector: match.NewSelector(
			match.WithOracle(oracle),
			match.WithTopN(cfg.Oracle.TopN),
			match.WithLogger(logger),
		),
		golden: store.Source{
			Table:  cfg.Database.GoldenTable,
			Type:   match.SourceGolden,
			Column: cfg.Database.GoldenColumn,
		},
		internal: store.Source{
			Table:  cfg.Database.InternalTable,
			Type:   match.SourceInternal,
			Column: cfg.Database.InternalColumn,
		},
		threshold:           cfg.Matching.SimilarityThreshold,
		confidenceThreshold: cfg.Matching.ConfidenceThreshold,
		fetchLimit:          cfg.Matching.FetchLimit,
		locks:               newKeyedMutex(),
		logger:              logger,
	}
}

// Threshold is the default similarity threshold.
func (a *Agent) Threshold() float64 { return a.threshold }

// HasOracle reports whether matches are adjudicated by an oracle.
func (a *Agent) HasOracle() bool { return a.selector.HasOracle() }

// Match finds the best golden-source or internal record for address. A zero
// threshold uses the configured default. Input is validated before anything
// is fetched.
func (a *Agent) Match(ctx context.Context, address string, threshold float64) (*match.MatchResult, error) {
	if normalize.IsBlank(address) {
		return nil, match.ErrEmptyAddress
	}
	if threshold == 0 {
		threshold = a.threshold
	}
	if err := match.ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	filter := store.CoarseFilter{
		StreetNumber: normalize.StreetNumber(normalize.Address(address)),
		Limit:        a.fetchLimit,
	}

	var golden, internal match.Pool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		golden, err = a.source.FetchCandidates(gctx, a.golden, filter)
		return eris.Wrap(err, "agent: fetch golden source candidates")
	})
	g.Go(func() error {
		var err error
		internal, err = a.source.FetchCandidates(gctx, a.internal, filter)
		return eris.Wrap(err, "agent: fetch internal candidates")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result, err := a.selector.Select(ctx, address, golden, internal, threshold, a.confidenceThreshold)
	if err != nil {
		return nil, err
	}

	if result.OracleError != "" {
		a.logger.Warn("oracle unavailable, using similarity confidence",
			zap.String("input", address),
			zap.String("error", result.OracleError))
	}
	a.logger.Info("match completed",
		zap.String("input", address),
		zap.Bool("match_found", result.MatchFound),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("business_rule_exception", result.BusinessRuleException),
		zap.Int("candidates_searched", result.CandidatesSearched))
	return result, nil
}

// Consolidate runs the consolidation rules without persisting anything.
func (a *Agent) Consolidate(ctx context.Context, internal []record.AddressRecord, golden record.AddressRecord, scenario consolidate.Scenario) (consolidate.Outcome, error) {
	return consolidate.Consolidate(internal, golden, scenario)
}

// PushResult is the outcome of a push: a receipt, or a conflict and no write.
type PushResult struct {
	consolidate.Outcome
	Receipt *store.WriteReceipt `json:"receipt,omitempty"`
}

// PushUpdates consolidates and persists. Requests for the same address group
// are serialized so two writers never interleave on one group. A conflict is
// returned as-is and nothing is written.
func (a *Agent) PushUpdates(ctx context.Context, internal []record.AddressRecord, golden record.AddressRecord, scenario consolidate.Scenario) (*PushResult, error) {
	unlock := a.locks.Lock(groupKey(internal, golden))
	defer unlock()

	outcome, err := consolidate.Consolidate(internal, golden, scenario)
	if err != nil {
		return nil, err
	}
	if outcome.Conflicted() {
		a.logger.Warn("consolidation conflict, manual review required",
			zap.Strings("conditions", outcome.Conflict.Conditions),
			zap.Int("records", len(internal)))
		return &PushResult{Outcome: outcome}, nil
	}

	receipt, err := a.writer.Persist(ctx, outcome.Record)
	if err != nil {
		return nil, err
	}
	return &PushResult{Outcome: outcome, Receipt: receipt}, nil
}

// WriteGolden writes a golden record for an address with no internal record.
func (a *Agent) WriteGolden(ctx context.Context, golden record.AddressRecord) (*PushResult, error) {
	return a.PushUpdates(ctx, nil, golden, consolidate.ScenarioGoldenOnly)
}

// TimeSaved reports the manual work saved so far.
func (a *Agent) TimeSaved(ctx context.Context) (*audit.TimeSaved, error) {
	return a.writer.TimeSaved(ctx)
}

// groupKey names the lock for an address group. Candidates are gated on the
// leading street number, so every record of a group shares it and the key is
// the same whether or not the caller sends the golden record, and whatever
// the order of the internal records. Records without a street number all
// share the empty key.
func groupKey(internal []record.AddressRecord, golden record.AddressRecord) string {
	var numbers []string
	add := func(r record.AddressRecord) {
		if n := normalize.StreetNumber(normalize.Address(r.MasterAddress())); n != "" {
			numbers = append(numbers, n)
		}
	}

	if len(golden) > 0 {
		add(golden)
	}
	for _, r := range internal {
		add(r)
	}
	if len(numbers) == 0 {
		return ""
	}
	sort.Strings(numbers)
	return "#" + numbers[0]
}
