package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/onetrueaddress/internal/audit"
	"github.com/onetrueaddress/internal/consolidate"
	"github.com/onetrueaddress/internal/match"
	"github.com/onetrueaddress/internal/record"
)

func init() {
	color.NoColor = true
}

func TestResolveLevel(t *testing.T) {
	tests := []struct {
		name       string
		flag       string
		debug      bool
		configured string
		want       string
	}{
		{"flag wins", "warn", true, "error", "warn"},
		{"debug flag", "", true, "error", "debug"},
		{"configured", "", false, "error", "error"},
		{"fallback", "", false, "", "info"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveLevel(tt.flag, tt.debug, tt.configured))
		})
	}
}

func TestRenderFormats(t *testing.T) {
	saved := &audit.TimeSaved{
		Events: 2, TotalTPI: 30, HoursSaved: 0.5,
		ByScenario: map[string]audit.ScenarioTotals{"multiple_records": {Events: 1, TotalTPI: 20}},
	}

	var buf bytes.Buffer
	require.NoError(t, render(&buf, "json", saved, nil))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 0.5, decoded["hours_saved"])

	buf.Reset()
	require.NoError(t, render(&buf, "yaml", saved, nil))
	var fromYAML map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, 30, fromYAML["total_tpi"])
	assert.Contains(t, buf.String(), "multiple_records:")

	buf.Reset()
	require.NoError(t, render(&buf, "text", saved, func(w io.Writer) { printTimeSaved(w, saved) }))
	assert.Contains(t, buf.String(), "0.50 hours saved")
	assert.Contains(t, buf.String(), "multiple_records")

	assert.Error(t, render(&buf, "xml", saved, nil))
}

func TestPrintMatch(t *testing.T) {
	golden := match.Pool{Table: "golden_source", Type: match.SourceGolden, Records: []record.AddressRecord{
		{"MasterAddress": "27466 US Highway 1, Dover, DE 19901"},
	}}
	result, err := match.NewSelector().Select(context.Background(), "27466 US Highway 1, Dover, DE 19901",
		golden, match.Pool{Table: "internal_addresses", Type: match.SourceInternal}, 90, 90)
	require.NoError(t, err)

	var buf bytes.Buffer
	printMatch(&buf, result)
	out := buf.String()
	assert.Contains(t, out, "Match: 27466 US Highway 1, Dover, DE 19901")
	assert.Contains(t, out, "golden_source (golden_source)")
	assert.Contains(t, out, "Golden source matches (1)")
	assert.Contains(t, out, "Internal matches (0)")

	buf.Reset()
	printMatch(&buf, &match.MatchResult{InputAddress: "1 Nowhere", BusinessRuleException: true, ConfidenceThreshold: 90})
	assert.Contains(t, buf.String(), "No match found")
	assert.Contains(t, buf.String(), "manual review required")
}

func writeFile(t *testing.T, v interface{}) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.json")
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestConsolidateCommand(t *testing.T) {
	path := writeFile(t, map[string]interface{}{
		"internal_matches": []map[string]string{
			{"MasterAddress": "5 Oak Ave, Dover, DE 19901", "Active Customer": "Y", "Media": "Copper"},
			{"MasterAddress": "5 Oak Ave, Dover, DE 19901", "Active Customer": "N", "Media": "Fiber"},
		},
		"golden_source_address": map[string]string{"address1": "5 Oak Avenue"},
	})

	outputFmt = "json"
	defer func() { outputFmt = "text" }()

	cmd := createConsolidateCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--file", path})
	require.NoError(t, cmd.Execute())

	var out map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "Fiber", out["consolidated_record"]["Media"])
	assert.Equal(t, 20.0, out["consolidated_record"]["tpi"])
}

func TestConsolidateCommandConflictText(t *testing.T) {
	path := writeFile(t, map[string]interface{}{
		"internal_matches": []map[string]string{
			{"MasterAddress": "5 Oak Ave", "Active Customer": "Y"},
			{"MasterAddress": "5 Oak Ave", "Active Customer": "Y"},
		},
	})

	cmd := createConsolidateCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--file", path})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), "Manual review required")
	assert.Contains(t, buf.String(), "active customers: 2")
}

func TestScenarioFor(t *testing.T) {
	two := 2

	cmd := createConsolidateCmd()
	assert.Equal(t, consolidate.ScenarioMultipleRecords, scenarioFor(cmd, 1, recordsFile{}))
	assert.Equal(t, consolidate.ScenarioAddressMismatch, scenarioFor(cmd, 1, recordsFile{Scenario: &two}))

	require.NoError(t, cmd.Flags().Set("scenario", "3"))
	assert.Equal(t, consolidate.ScenarioGoldenOnly, scenarioFor(cmd, 3, recordsFile{Scenario: &two}))
}

func TestReadJSONErrors(t *testing.T) {
	var v recordsFile
	assert.Error(t, readJSON(filepath.Join(t.TempDir(), "missing.json"), &v))

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	assert.Error(t, readJSON(path, &v))
}
