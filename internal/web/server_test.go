package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onetrueaddress/internal/agent"
	"github.com/onetrueaddress/internal/audit"
	"github.com/onetrueaddress/internal/config"
	"github.com/onetrueaddress/internal/consolidate"
	"github.com/onetrueaddress/internal/match"
	"github.com/onetrueaddress/internal/record"
	"github.com/onetrueaddress/internal/store"
)

// fakeService runs the real consolidation rules but keeps writes in memory.
type fakeService struct {
	matchThreshold float64
	persistErr     error
	persisted      int
}

func (f *fakeService) Match(ctx context.Context, address string, threshold float64) (*match.MatchResult, error) {
	f.matchThreshold = threshold
	if threshold == 0 {
		threshold = match.DefaultThreshold
	}
	golden := match.Pool{Table: "golden_source", Type: match.SourceGolden, Records: []record.AddressRecord{
		{"MasterAddress": "100 Elm St, Springfield, IL 62701"},
	}}
	internal := match.Pool{Table: "internal_addresses", Type: match.SourceInternal}
	return match.NewSelector().Select(ctx, address, golden, internal, threshold, match.DefaultConfidenceThreshold)
}

func (f *fakeService) Consolidate(ctx context.Context, internal []record.AddressRecord, golden record.AddressRecord, scenario consolidate.Scenario) (consolidate.Outcome, error) {
	return consolidate.Consolidate(internal, golden, scenario)
}

func (f *fakeService) PushUpdates(ctx context.Context, internal []record.AddressRecord, golden record.AddressRecord, scenario consolidate.Scenario) (*agent.PushResult, error) {
	outcome, err := consolidate.Consolidate(internal, golden, scenario)
	if err != nil {
		return nil, err
	}
	if outcome.Conflicted() {
		return &agent.PushResult{Outcome: outcome}, nil
	}
	if f.persistErr != nil {
		return nil, f.persistErr
	}
	f.persisted++
	return &agent.PushResult{Outcome: outcome, Receipt: &store.WriteReceipt{UpdateID: "u-1", Scenario: scenario, TPI: outcome.Record.TPI}}, nil
}

func (f *fakeService) WriteGolden(ctx context.Context, golden record.AddressRecord) (*agent.PushResult, error) {
	return f.PushUpdates(ctx, nil, golden, consolidate.ScenarioGoldenOnly)
}

func (f *fakeService) TimeSaved(ctx context.Context) (*audit.TimeSaved, error) {
	return &audit.TimeSaved{Events: 3, TotalTPI: 45, HoursSaved: 0.75}, nil
}

func newTestServer(t *testing.T, svc *fakeService, mutate func(*config.Config)) http.Handler {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	return NewServer(cfg, svc, nil).Router()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	rec, body := do(t, newTestServer(t, &fakeService{}, nil), http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestMatchEndpoint(t *testing.T) {
	svc := &fakeService{}
	rec, body := do(t, newTestServer(t, svc, nil), http.MethodPost, "/api/v1/match", map[string]interface{}{"address": "100 Elm St"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["match_found"])
	assert.Equal(t, 100.0, body["confidence"])
	assert.Equal(t, "golden_source", body["source_type"])
	assert.Equal(t, 1.0, body["total_golden_source"])
	assert.Equal(t, []interface{}{}, body["internal_matches"])
	assert.Zero(t, svc.matchThreshold, "absent threshold uses the default")
}

func TestMatchEndpointBadInput(t *testing.T) {
	h := newTestServer(t, &fakeService{}, nil)

	tests := []struct {
		name string
		body interface{}
	}{
		{"empty address", map[string]interface{}{"address": ""}},
		{"threshold below floor", map[string]interface{}{"address": "100 Elm St", "threshold": 70}},
		{"threshold above max", map[string]interface{}{"address": "100 Elm St", "threshold": 101}},
		{"explicit zero threshold", map[string]interface{}{"address": "100 Elm St", "threshold": 0}},
		{"malformed json", "{not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, h, http.MethodPost, "/api/v1/match", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func consolidateBody(active1, active2 string) map[string]interface{} {
	return map[string]interface{}{
		"internal_matches": []map[string]string{
			{"MasterAddress": "100 Elm St, Springfield, IL 62701", "Active Customer": active1, "Media": "Copper"},
			{"MasterAddress": "100 Elm St, Springfield, IL 62701", "Active Customer": active2, "Media": "Fiber"},
		},
		"golden_source_address": map[string]interface{}{
			"address1": "100 Elm Street", "Mailing City": "Springfield", "state": "IL", "zipcode": 62701,
		},
		"scenario": 1,
	}
}

func TestConsolidateEndpoint(t *testing.T) {
	rec, body := do(t, newTestServer(t, &fakeService{}, nil), http.MethodPost, "/api/v1/consolidate", consolidateBody("Y", "N"))

	require.Equal(t, http.StatusOK, rec.Code)
	consolidated := body["consolidated_record"].(map[string]interface{})
	assert.Equal(t, "Fiber", consolidated["Media"])
	assert.Equal(t, "62701", consolidated["Zipcode"])
	assert.Equal(t, 20.0, consolidated["tpi"])
}

func TestConsolidateEndpointConflict(t *testing.T) {
	rec, body := do(t, newTestServer(t, &fakeService{}, nil), http.MethodPost, "/api/v1/consolidate", consolidateBody("Y", "Y"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, true, body["requires_manual_review"])
	assert.Contains(t, body["error"], "Manual review required")
}

func TestConsolidateEndpointUnknownScenario(t *testing.T) {
	b := consolidateBody("Y", "N")
	b["scenario"] = 4
	rec, _ := do(t, newTestServer(t, &fakeService{}, nil), http.MethodPost, "/api/v1/consolidate", b)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPushUpdatesEndpoint(t *testing.T) {
	svc := &fakeService{}
	h := newTestServer(t, svc, nil)

	rec, body := do(t, h, http.MethodPost, "/api/v1/push_updates", consolidateBody("Y", "N"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", body["receipt"].(map[string]interface{})["update_id"])
	assert.Equal(t, 1, svc.persisted)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/push_updates", consolidateBody("Y", "Y"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, svc.persisted, "conflicts are never persisted")
}

func TestPushUpdatesPersistFailure(t *testing.T) {
	svc := &fakeService{persistErr: store.ErrPersist}
	rec, body := do(t, newTestServer(t, svc, nil), http.MethodPost, "/api/v1/push_updates", consolidateBody("Y", "N"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to persist record", body["error"])
}

func TestWriteToInternalEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeService{}, nil)

	rec, body := do(t, h, http.MethodPost, "/api/v1/write_to_internal", map[string]interface{}{
		"golden_source_record": map[string]string{"address1": "5 Oak Ave", "Mailing City": "Dover", "state": "DE", "zipcode": "19901"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	written := body["written_record"].(map[string]interface{})
	assert.Equal(t, "5 Oak Ave, Dover, DE 19901", written["MasterAddress"])
	assert.Equal(t, 5.0, written["tpi"])

	rec, _ = do(t, h, http.MethodPost, "/api/v1/write_to_internal", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimeSavedEndpoint(t *testing.T) {
	rec, body := do(t, newTestServer(t, &fakeService{}, nil), http.MethodGet, "/api/v1/time_saved", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.75, body["hours_saved"])
}

func TestAuthentication(t *testing.T) {
	h := newTestServer(t, &fakeService{}, func(c *config.Config) { c.Web.APIKey = "secret" })

	rec, _ := do(t, h, http.MethodGet, "/api/v1/time_saved", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/time_saved", nil, "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/time_saved", nil, "X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/time_saved", nil, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, &fakeService{}, func(c *config.Config) {
		c.Web.AllowedOrigins = []string{"https://ops.example.com"}
		c.Web.APIKey = "secret"
	})

	rec, _ := do(t, h, http.MethodOptions, "/api/v1/match", nil, "Origin", "https://ops.example.com")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = do(t, h, http.MethodOptions, "/api/v1/match", nil, "Origin", "https://evil.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
