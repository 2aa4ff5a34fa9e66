package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/onetrueaddress/internal/audit"
	"github.com/onetrueaddress/internal/consolidate"
	"github.com/onetrueaddress/internal/match"
	"github.com/onetrueaddress/internal/store"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed, color.Bold)
	dimColor    = color.New(color.Faint)
)

// render writes v as JSON or YAML, or calls text for the human format.
func render(w io.Writer, format string, v interface{}, text func(io.Writer)) error {
	switch strings.ToLower(format) {
	case "", "text":
		text(w)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		// go through JSON so the custom marshalers and json tags shape the YAML
		raw, err := json.Marshal(v)
		if err != nil {
			return eris.Wrap(err, "failed to encode output")
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return eris.Wrap(err, "failed to encode output")
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	}
	return eris.Errorf("unknown output format %q (want text, json or yaml)", format)
}

func printMatch(w io.Writer, r *match.MatchResult) {
	headerColor.Fprintf(w, "Input: %s\n", r.InputAddress)

	if !r.MatchFound {
		warnColor.Fprintln(w, "No match found")
	} else {
		goodColor.Fprintf(w, "Match: %s\n", r.BestMatch.Record.MasterAddress())
		fmt.Fprintf(w, "  source:     %s (%s)\n", r.BestMatch.SourceType, r.BestMatch.SourceTable)
		fmt.Fprintf(w, "  similarity: %.2f\n", r.SimilarityScore)
	}

	conf := goodColor
	if r.BusinessRuleException {
		conf = badColor
	}
	conf.Fprintf(w, "  confidence: %.2f (threshold %.0f)\n", r.Confidence, r.ConfidenceThreshold)
	if r.BusinessRuleException {
		badColor.Fprintln(w, "  manual review required")
	}
	fmt.Fprintf(w, "  reasoning:  %s\n", r.Reasoning)
	if r.OracleError != "" {
		warnColor.Fprintf(w, "  oracle:     %s\n", r.OracleError)
	}

	printCandidates(w, "Golden source", r.GoldenSourceMatches, r.OracleNotes)
	printCandidates(w, "Internal", r.InternalMatches, r.OracleNotes)
	dimColor.Fprintf(w, "%d candidates searched, method %s\n", r.CandidatesSearched, r.SearchMethod)
}

func printCandidates(w io.Writer, title string, list []match.ScoredCandidate, notes map[string]string) {
	headerColor.Fprintf(w, "%s matches (%d)\n", title, len(list))
	for _, c := range list {
		fmt.Fprintf(w, "  %6.2f  %s\n", c.SimilarityScore, c.Record.MasterAddress())
		if note := notes[c.ID]; note != "" {
			dimColor.Fprintf(w, "          %s\n", note)
		}
	}
}

func printOutcome(w io.Writer, o consolidate.Outcome, receipt *store.WriteReceipt) {
	if o.Conflicted() {
		badColor.Fprintln(w, o.Conflict.Reason)
		fmt.Fprintf(w, "  active customers: %d\n", o.Conflict.ActiveCount)
		fmt.Fprintf(w, "  fiber records:    %d\n", o.Conflict.FiberCount)
		return
	}

	rec := o.Record
	headerColor.Fprintf(w, "%s (tpi %d)\n", rec.Scenario, rec.TPI)
	fmt.Fprintf(w, "  %s\n", rec.AgentAction)

	keys := make([]string, 0, len(rec.Record))
	for k := range rec.Record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-20s %s\n", k+":", rec.Record[k])
	}

	if receipt != nil {
		goodColor.Fprintf(w, "Written as %s at %s\n", receipt.UpdateID, receipt.CreatedAt.Format("2006-01-02 15:04:05"))
	} else {
		dimColor.Fprintln(w, "Preview only, nothing written")
	}
}

func printTimeSaved(w io.Writer, s *audit.TimeSaved) {
	goodColor.Fprintf(w, "%.2f hours saved\n", s.HoursSaved)
	fmt.Fprintf(w, "  %d updates, %d tpi total\n", s.Events, s.TotalTPI)

	names := make([]string, 0, len(s.ByScenario))
	for name := range s.ByScenario {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := s.ByScenario[name]
		fmt.Fprintf(w, "  %-20s %4d updates %6d tpi\n", name, t.Events, t.TotalTPI)
	}
}

func printHistory(w io.Writer, events []audit.Event) {
	headerColor.Fprintf(w, "Recent updates (%d)\n", len(events))
	for _, e := range events {
		fmt.Fprintf(w, "  %s  %-36s  %-20s %3d\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.UpdateID, e.Scenario, e.TPI)
	}
}

func printCounts(w io.Writer, dbType string, tables []string, counts map[string]int64) {
	goodColor.Fprintf(w, "Database connection successful (%s)\n", dbType)
	for _, t := range tables {
		fmt.Fprintf(w, "  %-24s %d rows\n", t+":", counts[t])
	}
}
