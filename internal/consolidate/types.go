package consolidate

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/onetrueaddress/internal/record"
)

// Scenario says why a record is being written. The caller decides it from how
// many internal records it found; the engine only tags the output with it.
type Scenario int

const (
	// ScenarioMultipleRecords merges several internal records for one address.
	ScenarioMultipleRecords Scenario = 1
	// ScenarioAddressMismatch corrects a single internal record whose
	// MasterAddress differs from the golden source.
	ScenarioAddressMismatch Scenario = 2
	// ScenarioGoldenOnly writes the golden record when no internal one exists.
	ScenarioGoldenOnly Scenario = 3
)

// TPI weights per scenario, read downstream as minutes of manual work saved
const (
	tpiMultipleRecords = 20
	tpiAddressMismatch = 10
	tpiGoldenOnly      = 5
)

// Valid reports whether s is one of the three known scenarios.
func (s Scenario) Valid() bool {
	return s >= ScenarioMultipleRecords && s <= ScenarioGoldenOnly
}

// TPI returns the task-priority weight for the scenario, 0 when unknown.
func (s Scenario) TPI() int {
	switch s {
	case ScenarioMultipleRecords:
		return tpiMultipleRecords
	case ScenarioAddressMismatch:
		return tpiAddressMismatch
	case ScenarioGoldenOnly:
		return tpiGoldenOnly
	}
	return 0
}

func (s Scenario) String() string {
	switch s {
	case ScenarioMultipleRecords:
		return "multiple_records"
	case ScenarioAddressMismatch:
		return "address_mismatch"
	case ScenarioGoldenOnly:
		return "golden_source_only"
	}
	return fmt.Sprintf("scenario(%d)", int(s))
}

// ConsolidatedRecord is the single record produced for an address group.
// Record holds the merged fields; AgentAction and TPI are the provenance the
// writer persists alongside it.
type ConsolidatedRecord struct {
	Record      record.AddressRecord
	Scenario    Scenario
	AgentAction string
	TPI         int
	SourceCount int
}

// Fields returns the record fields with Agent Action and tpi appended.
func (c *ConsolidatedRecord) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(c.Record)+2)
	for k, v := range c.Record {
		out[k] = v
	}
	out[string(record.FieldAgentAction)] = c.AgentAction
	out[string(record.FieldTPI)] = c.TPI
	return out
}

// MarshalJSON renders the record as one flat mapping.
func (c *ConsolidatedRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Fields())
}

// ConflictReport is returned instead of a record when the rules cannot pick a
// unique outcome. It is terminal: nothing should be persisted.
type ConflictReport struct {
	Reason               string   `json:"reason"`
	Conditions           []string `json:"conditions"`
	RequiresManualReview bool     `json:"requires_manual_review"`
	ActiveCount          int      `json:"active_count"`
	FiberCount           int      `json:"fiber_count"`
}

// Outcome carries exactly one of Record or Conflict.
type Outcome struct {
	Record   *ConsolidatedRecord `json:"consolidated_record,omitempty"`
	Conflict *ConflictReport     `json:"conflict,omitempty"`
}

// Conflicted reports whether the outcome requires manual review.
func (o Outcome) Conflicted() bool {
	return o.Conflict != nil
}

// Conflict condition names
const (
	ConditionMultipleActive = "multiple_active_customers"
	ConditionMultipleFiber  = "multiple_fiber_records"
)

// Input errors for Consolidate
var (
	ErrUnknownScenario   = eris.New("consolidate: unknown scenario")
	ErrNoRecords         = eris.New("consolidate: internal records are required")
	ErrGoldenRequired    = eris.New("consolidate: golden source record is required")
	ErrUnexpectedRecords = eris.New("consolidate: golden-only scenario takes no internal records")
)

// IsInputError reports whether err came from invalid Consolidate arguments.
func IsInputError(err error) bool {
	return errors.Is(err, ErrUnknownScenario) ||
		errors.Is(err, ErrNoRecords) ||
		errors.Is(err, ErrGoldenRequired) ||
		errors.Is(err, ErrUnexpectedRecords)
}
