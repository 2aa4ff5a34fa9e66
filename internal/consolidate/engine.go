// Package consolidate merges the internal records found for one physical
// address into a single record under fixed business rules, or reports a
// conflict that needs manual review.
//
// Rules, in order:
//  1. More than one active customer, or more than one fiber record, is a
//     conflict. Nothing is merged.
//  2. The base record is the active customer, else the fiber record, else the
//     first record given.
//  3. Fiber media, Exclusion=Y and Engineering Review=Y on any record carry
//     over to the base. Fiber is never downgraded.
//  4. A golden record, when given, overwrites the base's address fields only.
package consolidate

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/onetrueaddress/internal/record"
)

// addressFields are the fields the golden source is authoritative for.
var addressFields = []record.Field{
	record.FieldAddress,
	record.FieldCity,
	record.FieldState,
	record.FieldZipcode,
	record.FieldMasterAddress,
}

// Consolidate applies the rules to internal records that the caller has
// already grouped under one address. golden may be nil except for
// ScenarioGoldenOnly, where it is the whole output. The same inputs in the
// same order always give the same outcome.
func Consolidate(internal []record.AddressRecord, golden record.AddressRecord, scenario Scenario) (Outcome, error) {
	if !scenario.Valid() {
		return Outcome{}, eris.Wrapf(ErrUnknownScenario, "scenario %d", int(scenario))
	}

	if scenario == ScenarioGoldenOnly {
		if len(golden) == 0 {
			return Outcome{}, ErrGoldenRequired
		}
		if len(internal) > 0 {
			return Outcome{}, eris.Wrapf(ErrUnexpectedRecords, "got %d internal records", len(internal))
		}
		return Outcome{Record: &ConsolidatedRecord{
			Record:      GoldenToInternal(golden),
			Scenario:    scenario,
			AgentAction: "Scenario 3: no internal record existed; wrote golden source record",
			TPI:         scenario.TPI(),
			SourceCount: 0,
		}}, nil
	}

	if len(internal) == 0 {
		return Outcome{}, ErrNoRecords
	}

	activeIdx, fiberIdx := -1, -1
	activeCount, fiberCount := 0, 0
	exclusion, engineering := false, false

	for i, r := range internal {
		if r.Flag(record.FieldActiveCustomer) {
			activeCount++
			if activeIdx < 0 {
				activeIdx = i
			}
		}
		if r.HasFiber() {
			fiberCount++
			if fiberIdx < 0 {
				fiberIdx = i
			}
		}
		exclusion = exclusion || r.Flag(record.FieldExclusion)
		engineering = engineering || r.Flag(record.FieldEngineeringReview)
	}

	if conflict := detectConflict(activeCount, fiberCount); conflict != nil {
		return Outcome{Conflict: conflict}, nil
	}

	base, baseReason := 0, "first record"
	switch {
	case activeCount == 1:
		base, baseReason = activeIdx, "active customer record"
	case fiberCount == 1:
		base, baseReason = fiberIdx, "fiber record"
	}

	merged := internal[base].Clone()
	var applied []string

	if fiberCount > 0 && !merged.HasFiber() {
		merged.Set(record.FieldMedia, "Fiber")
		applied = append(applied, "media upgraded to Fiber")
	}
	if exclusion && !merged.Flag(record.FieldExclusion) {
		merged.Set(record.FieldExclusion, "Y")
		applied = append(applied, "exclusion retained")
	}
	if engineering && !merged.Flag(record.FieldEngineeringReview) {
		merged.Set(record.FieldEngineeringReview, "Y")
		applied = append(applied, "engineering review retained")
	}
	if len(golden) > 0 && applyGoldenAddress(merged, golden) {
		applied = append(applied, "address taken from golden source")
	}

	return Outcome{Record: &ConsolidatedRecord{
		Record:      merged,
		Scenario:    scenario,
		AgentAction: agentAction(scenario, len(internal), base, baseReason, applied),
		TPI:         scenario.TPI(),
		SourceCount: len(internal),
	}}, nil
}

func detectConflict(activeCount, fiberCount int) *ConflictReport {
	var conditions, reasons []string
	if activeCount > 1 {
		conditions = append(conditions, ConditionMultipleActive)
		reasons = append(reasons, fmt.Sprintf("%d records are marked Active Customer = Y", activeCount))
	}
	if fiberCount > 1 {
		conditions = append(conditions, ConditionMultipleFiber)
		reasons = append(reasons, fmt.Sprintf("%d records have fiber media", fiberCount))
	}
	if len(conditions) == 0 {
		return nil
	}

	return &ConflictReport{
		Reason:               "Manual review required: " + strings.Join(reasons, "; "),
		Conditions:           conditions,
		RequiresManualReview: true,
		ActiveCount:          activeCount,
		FiberCount:           fiberCount,
	}
}

// applyGoldenAddress copies non-empty address fields from the golden record
// and reports whether anything changed.
func applyGoldenAddress(base, golden record.AddressRecord) bool {
	mapped := GoldenToInternal(golden)
	changed := false
	for _, f := range addressFields {
		v := mapped.Get(f)
		if v == "" {
			continue
		}
		if current, ok := base.Lookup(f); ok && current == v {
			continue
		}
		base.Set(f, v)
		changed = true
	}
	return changed
}

func agentAction(scenario Scenario, count, base int, baseReason string, applied []string) string {
	var b strings.Builder
	switch scenario {
	case ScenarioMultipleRecords:
		fmt.Fprintf(&b, "Scenario 1: consolidated %d internal records into one; base was record %d (%s)", count, base+1, baseReason)
	case ScenarioAddressMismatch:
		b.WriteString("Scenario 2: corrected internal address mismatch against golden source")
	}
	if len(applied) > 0 {
		b.WriteString("; ")
		b.WriteString(strings.Join(applied, "; "))
	}
	return b.String()
}

// GoldenToInternal maps a golden-source row onto the internal record layout.
// The street is Address, or address1 and address2 joined. Customer and
// service flags start cleared since the golden source carries none.
func GoldenToInternal(golden record.AddressRecord) record.AddressRecord {
	street := golden.Get(record.FieldAddress)
	if street == "" {
		street = strings.TrimSpace(golden.Get(record.FieldAddress1) + " " + golden.Get(record.FieldAddress2))
	}

	out := record.AddressRecord{}
	out.Set(record.FieldAddress, street)
	out.Set(record.FieldCity, golden.Get(record.FieldCity))
	out.Set(record.FieldState, golden.Get(record.FieldState))
	out.Set(record.FieldZipcode, golden.Get(record.FieldZipcode))

	master := golden.Get(record.FieldMasterAddress)
	if master == "" {
		master = record.ComposeAddress(out)
	}
	out.Set(record.FieldMasterAddress, master)

	out.Set(record.FieldActiveCustomer, "N")
	out.Set(record.FieldMedia, "")
	out.Set(record.FieldExclusion, "N")
	out.Set(record.FieldEngineeringReview, "N")
	return out
}
