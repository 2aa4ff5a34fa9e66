// Package record holds the loosely-typed address rows read from the golden
// source and internal tables, with case and spacing tolerant field lookup.
package record

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Field is a canonical field name. The constant value doubles as the raw key
// written when a record does not already carry the field.
type Field string

const (
	FieldMasterAddress     Field = "MasterAddress"
	FieldAddress           Field = "Address"
	FieldAddress1          Field = "address1"
	FieldAddress2          Field = "address2"
	FieldCity              Field = "City"
	FieldState             Field = "State"
	FieldZipcode           Field = "Zipcode"
	FieldActiveCustomer    Field = "Active Customer"
	FieldMedia             Field = "Media"
	FieldExclusion         Field = "Exclusion"
	FieldEngineeringReview Field = "Engineering Review"
	FieldAgentAction       Field = "Agent Action"
	FieldTPI               Field = "tpi"
)

// aliases maps each canonical field to the squashed raw names accepted for
// it, in priority order. Golden-source column names (address1, Mailing City,
// zipcode) and internal column names share the table.
var aliases = map[Field][]string{
	FieldMasterAddress:     {"masteraddress", "fulladdress"},
	FieldAddress:           {"address", "streetaddress"},
	FieldAddress1:          {"address1", "addressline1"},
	FieldAddress2:          {"address2", "addressline2"},
	FieldCity:              {"city", "mailingcity"},
	FieldState:             {"state", "st"},
	FieldZipcode:           {"zipcode", "zip", "postalcode", "zip5"},
	FieldActiveCustomer:    {"activecustomer", "active"},
	FieldMedia:             {"media", "mediatype"},
	FieldExclusion:         {"exclusion", "excluded"},
	FieldEngineeringReview: {"engineeringreview"},
	FieldAgentAction:       {"agentaction"},
	FieldTPI:               {"tpi"},
}

// AddressRecord is a single row keyed by its source column names.
// Records are treated as read-only snapshots; use Clone before mutating.
type AddressRecord map[string]string

// squash lowercases a raw key and drops spaces, underscores, hyphens and dots.
func squash(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		switch r {
		case ' ', '_', '-', '.', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// rawKey returns the raw key holding field f. When several raw keys squash to
// the same alias the lexically smallest one wins so lookups are deterministic.
func (r AddressRecord) rawKey(f Field) (string, bool) {
	names, ok := aliases[f]
	if !ok {
		names = []string{squash(string(f))}
	}

	for _, alias := range names {
		var found []string
		for key := range r {
			if squash(key) == alias {
				found = append(found, key)
			}
		}
		if len(found) > 0 {
			sort.Strings(found)
			return found[0], true
		}
	}
	return "", false
}

// Lookup returns the trimmed value of field f and whether the record carries it.
func (r AddressRecord) Lookup(f Field) (string, bool) {
	key, ok := r.rawKey(f)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(r[key]), true
}

// Get returns the trimmed value of field f, or "" when absent.
func (r AddressRecord) Get(f Field) string {
	v, _ := r.Lookup(f)
	return v
}

// Set writes field f, reusing the record's own raw key when it has one.
func (r AddressRecord) Set(f Field, value string) {
	if key, ok := r.rawKey(f); ok {
		r[key] = value
		return
	}
	r[string(f)] = value
}

// Flag reports whether a Y/N style field is set.
func (r AddressRecord) Flag(f Field) bool {
	switch strings.ToUpper(r.Get(f)) {
	case "Y", "YES", "TRUE", "1":
		return true
	}
	return false
}

// HasFiber reports whether the Media field indicates fiber service.
func (r AddressRecord) HasFiber() bool {
	return strings.Contains(strings.ToLower(r.Get(FieldMedia)), "fiber")
}

// MasterAddress returns the full address used for matching. Rows without a
// MasterAddress column get one composed from their component fields.
func (r AddressRecord) MasterAddress() string {
	if v := r.Get(FieldMasterAddress); v != "" {
		return v
	}
	return ComposeAddress(r)
}

// ComposeAddress builds "street, city, ST zip" from component fields. The
// street is Address when present, otherwise address1 and address2 joined.
func ComposeAddress(r AddressRecord) string {
	street := r.Get(FieldAddress)
	if street == "" {
		street = strings.TrimSpace(r.Get(FieldAddress1) + " " + r.Get(FieldAddress2))
	}

	var parts []string
	if street != "" {
		parts = append(parts, street)
	}
	if city := r.Get(FieldCity); city != "" {
		parts = append(parts, city)
	}
	if stateZip := strings.TrimSpace(r.Get(FieldState) + " " + r.Get(FieldZipcode)); stateZip != "" {
		parts = append(parts, stateZip)
	}
	return strings.Join(parts, ", ")
}

// Clone returns an independent copy of the record.
func (r AddressRecord) Clone() AddressRecord {
	out := make(AddressRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// UnmarshalJSON accepts any scalar JSON value per key so that numeric zip
// codes or boolean flags coming from clients survive as strings. Nulls are
// dropped.
func (r *AddressRecord) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	out := make(AddressRecord, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return err
			}
			out[k] = string(b)
		}
	}
	*r = out
	return nil
}
