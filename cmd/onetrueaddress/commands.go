package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/onetrueaddress/internal/consolidate"
	"github.com/onetrueaddress/internal/record"
	"github.com/onetrueaddress/internal/web"
)

// recordsFile is the JSON layout read by consolidate and push. It matches the
// body of POST /api/v1/consolidate.
type recordsFile struct {
	InternalMatches     []record.AddressRecord `json:"internal_matches"`
	GoldenSourceAddress record.AddressRecord   `json:"golden_source_address"`
	Scenario            *int                   `json:"scenario"`
}

// readJSON decodes path into v; "-" reads stdin.
func readJSON(path string, v interface{}) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "failed to open %s", path)
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return eris.Wrapf(err, "failed to parse %s", path)
	}
	return nil
}

// scenarioFor prefers the --scenario flag when given, then the file, then 1.
func scenarioFor(cmd *cobra.Command, flagValue int, in recordsFile) consolidate.Scenario {
	if cmd.Flags().Changed("scenario") {
		return consolidate.Scenario(flagValue)
	}
	if in.Scenario != nil {
		return consolidate.Scenario(*in.Scenario)
	}
	return consolidate.ScenarioMultipleRecords
}

func createMatchCmd() *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "match [address]",
		Short: "Find the best golden source or internal record for an address",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.agent.Match(cmd.Context(), strings.Join(args, " "), threshold)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), outputFmt, result, func(w io.Writer) { printMatch(w, result) })
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0, "similarity threshold, 75-100 (default from config)")
	return cmd
}

func createConsolidateCmd() *cobra.Command {
	var file string
	var scenario int

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Preview the consolidated record for a group without writing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in recordsFile
			if err := readJSON(file, &in); err != nil {
				return err
			}

			// consolidation needs no database
			outcome, err := consolidate.Consolidate(in.InternalMatches, in.GoldenSourceAddress, scenarioFor(cmd, scenario, in))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), outputFmt, outcome, func(w io.Writer) { printOutcome(w, outcome, nil) })
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON file with internal_matches and golden_source_address")
	cmd.Flags().IntVar(&scenario, "scenario", 1, "scenario: 1 multiple records, 2 address mismatch, 3 golden only")
	return cmd
}

func createPushCmd() *cobra.Command {
	var file string
	var scenario int

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Consolidate a group and write it to the updates table",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in recordsFile
			if err := readJSON(file, &in); err != nil {
				return err
			}

			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.agent.PushUpdates(cmd.Context(), in.InternalMatches, in.GoldenSourceAddress, scenarioFor(cmd, scenario, in))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), outputFmt, res, func(w io.Writer) { printOutcome(w, res.Outcome, res.Receipt) })
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON file with internal_matches and golden_source_address")
	cmd.Flags().IntVar(&scenario, "scenario", 1, "scenario: 1 multiple records, 2 address mismatch")
	return cmd
}

func createWriteGoldenCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "write-golden",
		Short: "Write a golden source record as a new internal record (scenario 3)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var golden record.AddressRecord
			if err := readJSON(file, &golden); err != nil {
				return err
			}

			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.agent.WriteGolden(cmd.Context(), golden)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), outputFmt, res, func(w io.Writer) { printOutcome(w, res.Outcome, res.Receipt) })
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON file holding one golden source record")
	return cmd
}

func createTimeSavedCmd() *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "time-saved",
		Short: "Report the manual work saved by persisted updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			saved, err := a.agent.TimeSaved(cmd.Context())
			if err != nil {
				return err
			}
			if err := render(cmd.OutOrStdout(), outputFmt, saved, func(w io.Writer) { printTimeSaved(w, saved) }); err != nil {
				return err
			}
			if history <= 0 {
				return nil
			}

			events, err := a.writer.History(cmd.Context(), history)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), outputFmt, events, func(w io.Writer) { printHistory(w, events) })
		},
	}

	cmd.Flags().IntVar(&history, "history", 0, "also list the most recent N ledger events")
	return cmd
}

func createServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Web.Port = port
			}

			a.logger.Info("starting api",
				zap.String("database", a.cfg.Database.Type),
				zap.String("oracle_provider", a.cfg.Oracle.Provider),
				zap.Bool("oracle", a.agent.HasOracle()))

			server := web.NewServer(a.cfg, a.agent, a.logger.Named("web"))
			server.OnShutdown(a.conn.Close)
			defer a.logger.Sync()

			return server.Start(cmd.Context())
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}

func createPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity and report table sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			tables := []string{a.cfg.Database.GoldenTable, a.cfg.Database.InternalTable, a.cfg.Database.UpdatesTable}
			counts := make(map[string]int64, len(tables))
			for _, table := range tables {
				n, err := a.conn.CountRows(cmd.Context(), table)
				if err != nil {
					return err
				}
				counts[table] = n
			}
			return render(cmd.OutOrStdout(), outputFmt, counts, func(w io.Writer) { printCounts(w, a.cfg.Database.Type, tables, counts) })
		},
	}
}
